// Package vault defines the bridge's view of the credential store and
// provides two adapters: an in-memory store and a read-only YAML export.
//
// The bridge never writes credentials. Its only side effect on a store is
// Lock, which asks the store to drop whatever decrypted state it holds.
package vault

import (
	"context"
	"errors"
)

// ErrLocked is returned by ListAll after Lock until the store is unlocked.
var ErrLocked = errors.New("vault is locked")

// CredentialView is the read-only projection of one credential.
type CredentialView struct {
	Name           string   `yaml:"name"`
	Login          string   `yaml:"login"`
	Secret         string   `yaml:"secret"`
	OriginPatterns []string `yaml:"origins"`
	// OTPSeed is a base32 seed or an otpauth:// URI; empty means no OTP.
	OTPSeed string `yaml:"otp,omitempty"`
}

// Store is the credential store consumed by the bridge.
type Store interface {
	// ListAll returns every credential. An empty vault is not an error.
	ListAll(ctx context.Context) ([]CredentialView, error)

	// Lock forgets any in-memory secrets and makes ListAll fail with
	// ErrLocked until the store is unlocked. It is idempotent.
	Lock(ctx context.Context) error
}
