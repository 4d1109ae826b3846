package services

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/username/tradejournal/backend/src/model"
	"github.com/username/tradejournal/backend/src/models"
	"github.com/username/tradejournal/backend/src/processors"
)

type dedupServiceImpl struct {
	db            *sql.DB
	fillProcessor *processors.FillProcessor
}

func NewDedupService(db *sql.DB, fillProcessor *processors.FillProcessor) Deduplicator {
	return &dedupServiceImpl{db: db, fillProcessor: fillProcessor}
}

// Partition fingerprints every candidate, then checks all fingerprints with one batched
// existence query. A repeat of an earlier candidate in the same input is a duplicate too.
func (s *dedupServiceImpl) Partition(ctx context.Context, userID int64, fills []models.Fill) (*DedupResult, error) {
	result := &DedupResult{New: []models.Fill{}, Duplicates: []models.Fill{}}
	if len(fills) == 0 {
		return result, nil
	}
	for i := range fills {
		fills[i].UserID = userID
	}
	fills = s.fillProcessor.Process(fills)

	distinct := make([]string, 0, len(fills))
	seen := make(map[string]bool, len(fills))
	for _, f := range fills {
		if !seen[f.Fingerprint] {
			seen[f.Fingerprint] = true
			distinct = append(distinct, f.Fingerprint)
		}
	}

	existing, err := model.ExistingFingerprints(ctx, s.db, userID, distinct)
	if err != nil {
		return nil, fmt.Errorf("deduplication query failed: %w", err)
	}

	taken := make(map[string]bool, len(fills))
	for _, f := range fills {
		if existing[f.Fingerprint] || taken[f.Fingerprint] {
			result.Duplicates = append(result.Duplicates, f)
			continue
		}
		taken[f.Fingerprint] = true
		result.New = append(result.New, f)
	}
	return result, nil
}
