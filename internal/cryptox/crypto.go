// Package cryptox holds the cryptographic primitives of the pairing
// protocol: the proof-of-knowledge MAC, constant-time comparison, the
// stored verifier hash and the public server identifier.
package cryptox

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base32"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/zeebo/blake3"
	"golang.org/x/crypto/hkdf"

	"github.com/dmitrijs2005/keeperbridge/internal/common"
)

const (
	// ClientKeySize is the size of keys generated by NewClientKey.
	ClientKeySize = 32
	// MinClientKeySize is the shortest client key the server accepts.
	MinClientKeySize = 16
	// ServerKeySize is the size of the persisted server key.
	ServerKeySize = 32

	serverIDSize = 16
)

// VerifierHash is the stored, non-reversible form of a client key.
type VerifierHash [32]byte

// verifierDomainKey separates verifier hashes from any other BLAKE3
// keyed hash. ASCII name zero-padded to 32 bytes; changing it
// invalidates every stored pairing.
var verifierDomainKey = [32]byte{
	'k', 'e', 'e', 'p', 'e', 'r', 'b', 'r', 'i', 'd', 'g', 'e', '.', 'p', 'a', 'i',
	'r', 'i', 'n', 'g', '.', 'v', 'e', 'r', 'i', 'f', 'i', 'e', 'r', 0, 0, 0,
}

var serverIDInfo = []byte("keeperbridge.server-id.v1")

// ProofMAC computes HMAC-SHA256 keyed by clientKey over sharedSecret.
// Client and server compute it independently; only the result travels.
func ProofMAC(clientKey, sharedSecret []byte) []byte {
	mac := hmac.New(sha256.New, clientKey)
	mac.Write(sharedSecret)
	return mac.Sum(nil)
}

// Equal reports whether a and b are equal without leaking, through
// timing, the position of the first differing byte.
func Equal(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}

// MakeVerifier derives the verifier stored for a paired client key.
func MakeVerifier(clientKey []byte) VerifierHash {
	h, err := blake3.NewKeyed(verifierDomainKey[:])
	if err != nil {
		panic("cryptox: blake3 keyed init failed: " + err.Error())
	}
	h.Write(clientKey)

	var out VerifierHash
	copy(out[:], h.Sum(nil))
	return out
}

// ServerIDHash derives the public server identifier from the server key.
// It lets clients tell local bridges apart and reveals nothing about the key.
func ServerIDHash(serverKey []byte) (string, error) {
	if len(serverKey) == 0 {
		return "", fmt.Errorf("server key: %w", common.ErrorInvalidArgument)
	}
	r := hkdf.New(sha256.New, serverKey, nil, serverIDInfo)
	id := make([]byte, serverIDSize)
	if _, err := io.ReadFull(r, id); err != nil {
		return "", fmt.Errorf("derive server id: %w", err)
	}
	return hex.EncodeToString(id), nil
}

// NewClientKey returns a fresh random client key.
func NewClientKey() []byte {
	return common.GenerateRandByteArray(ClientKeySize)
}

// NewServerKey returns a fresh random server key.
func NewServerKey() []byte {
	return common.GenerateRandByteArray(ServerKeySize)
}

// NewSharedSecret returns a random 160-bit secret in unpadded base32,
// suitable for displaying to a user or encoding in a QR code.
func NewSharedSecret() string {
	return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(common.GenerateRandByteArray(20))
}
