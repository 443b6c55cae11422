package cryptox

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base32"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProofMAC_MatchesHMACSHA256(t *testing.T) {
	key := []byte("0123456789abcdef0123456789abcdef")
	secret := []byte("correct horse battery staple")

	m := hmac.New(sha256.New, key)
	m.Write(secret)

	assert.Equal(t, m.Sum(nil), ProofMAC(key, secret))
}

func TestProofMAC_DependsOnBothInputs(t *testing.T) {
	k1, k2 := NewClientKey(), NewClientKey()
	s := []byte("shared")

	assert.False(t, Equal(ProofMAC(k1, s), ProofMAC(k2, s)))
	assert.False(t, Equal(ProofMAC(k1, s), ProofMAC(k1, []byte("other"))))
}

func TestEqual(t *testing.T) {
	tests := []struct {
		name string
		a, b []byte
		want bool
	}{
		{"equal", []byte{1, 2, 3}, []byte{1, 2, 3}, true},
		{"different", []byte{1, 2, 3}, []byte{1, 2, 4}, false},
		{"different length", []byte{1, 2, 3}, []byte{1, 2}, false},
		{"both empty", nil, []byte{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Equal(tt.a, tt.b))
		})
	}
}

func TestMakeVerifier(t *testing.T) {
	key := NewClientKey()

	v1 := MakeVerifier(key)
	v2 := MakeVerifier(key)
	assert.Equal(t, v1, v2, "verifier must be deterministic")

	assert.NotEqual(t, v1, MakeVerifier(NewClientKey()))
	assert.False(t, bytes.Contains(v1[:], key), "verifier must not embed the key")
}

func TestServerIDHash(t *testing.T) {
	key := NewServerKey()

	id, err := ServerIDHash(key)
	require.NoError(t, err)
	assert.Len(t, id, serverIDSize*2)

	again, err := ServerIDHash(key)
	require.NoError(t, err)
	assert.Equal(t, id, again)

	other, err := ServerIDHash(NewServerKey())
	require.NoError(t, err)
	assert.NotEqual(t, id, other)

	assert.NotContains(t, id, hex.EncodeToString(key[:serverIDSize]))
}

func TestServerIDHash_EmptyKey(t *testing.T) {
	_, err := ServerIDHash(nil)
	assert.Error(t, err)
}

func TestNewSharedSecret(t *testing.T) {
	s := NewSharedSecret()
	raw, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(s)
	require.NoError(t, err)
	assert.Len(t, raw, 20)
	assert.NotEqual(t, s, NewSharedSecret())
}
