// Package pairing persists the pairing records that authorize browser
// clients, together with the bridge's own server key.
//
// # Data Model
//
// A Record maps an opaque pairing id (UUID v4) to the verifier hash of the
// client key that proved knowledge of the shared secret. Records are
// immutable: they are created by a successful associate exchange and
// removed individually or all at once when the user forgets devices.
//
// # Concurrency
//
// SQLiteStore writes through a single-connection pool guarded by a mutex,
// so record creation and deletion are serialized. Reads use a separate
// pool and proceed concurrently.
package pairing
