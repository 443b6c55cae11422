// Package ctl implements bridgectl, the companion CLI of the bridge.
//
// Protocol commands (handshake, pair, logins, lock) talk to a running
// bridge. The devices commands open the pairing database directly and are
// meant to be run by the vault owner on the same machine.
package ctl
