package processors

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/username/tradejournal/backend/src/models"
)

// FillProcessor tags normalized fills with their content fingerprint.
type FillProcessor struct{}

func NewFillProcessor() *FillProcessor { return &FillProcessor{} }

// Process sets Fingerprint on every fill in place and returns the slice.
func (p *FillProcessor) Process(fills []models.Fill) []models.Fill {
	for i := range fills {
		fills[i].Fingerprint = Fingerprint(fills[i])
	}
	return fills
}

// Fingerprint hashes the attributes that identify one execution for a user. Batch, order
// and row position are left out so the same fill reported by two files collapses.
func Fingerprint(f models.Fill) string {
	input := fmt.Sprintf("%d|%s|%s|%s|%d|%s",
		f.UserID,
		f.RawFillID,
		f.FillTime.UTC().Format(time.RFC3339Nano),
		f.Side,
		f.Quantity,
		f.Price.String(),
	)
	hash := sha256.Sum256([]byte(input))
	return hex.EncodeToString(hash[:])
}
