package pairing

import (
	"time"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/keeperbridge/internal/cryptox"
)

// Record is one paired client.
type Record struct {
	ID           string
	VerifierHash cryptox.VerifierHash
	CreatedAt    time.Time
}

// NewRecord creates a record with a fresh id for clientKey. The key itself
// is not retained.
func NewRecord(clientKey []byte, now time.Time) Record {
	return Record{
		ID:           uuid.NewString(),
		VerifierHash: cryptox.MakeVerifier(clientKey),
		CreatedAt:    now.UTC().Truncate(time.Millisecond),
	}
}
