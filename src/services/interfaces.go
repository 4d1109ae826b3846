package services

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/shopspring/decimal"
	"github.com/username/tradejournal/backend/src/model"
	"github.com/username/tradejournal/backend/src/models"
)

// Define common service errors
var (
	ErrParsingFailed    = errors.New("csv parsing failed")
	ErrProcessingFailed = errors.New("import processing failed")
	ErrMissingUser      = errors.New("user identity is required")
	ErrUnknownUser      = errors.New("user does not exist")
	ErrUnresolvable     = errors.New("reference cannot be resolved")
	ErrNotFound         = model.ErrNotFound
)

// ImportOutcome summarizes a finished import for callers.
type ImportOutcome string

const (
	OutcomeClean          ImportOutcome = "clean"
	OutcomeCleanWithSkips ImportOutcome = "clean_with_skips"
	OutcomeFailed         ImportOutcome = "failed"
)

// ImportResult is what one Import call reports, whatever the batch status.
type ImportResult struct {
	BatchID        int64              `json:"batchId"`
	Status         models.BatchStatus `json:"status"`
	Outcome        ImportOutcome      `json:"outcome"`
	TotalRows      int                `json:"totalRows"`
	NewFills       int                `json:"newFills"`
	DuplicateFills int                `json:"duplicateFills"`
	TradesCreated  int                `json:"tradesCreated"`
	ErrorRows      int                `json:"errorRows"`
	Errors         []models.RowError  `json:"errors"`
}

// ImportService runs the ingestion pipeline inside a tracked batch.
type ImportService interface {
	Import(ctx context.Context, file io.Reader, filename, format string, userID int64) (*ImportResult, error)
	// SweepStaleBatches fails batches left processing for longer than maxAge.
	SweepStaleBatches(ctx context.Context, maxAge time.Duration) (int, error)
}

// DedupResult splits fingerprinted candidates into unseen fills and duplicates.
type DedupResult struct {
	New        []models.Fill
	Duplicates []models.Fill
}

// Deduplicator partitions fill candidates against what a user already imported.
type Deduplicator interface {
	Partition(ctx context.Context, userID int64, fills []models.Fill) (*DedupResult, error)
}

// ReferenceResolver maps external identifiers to internal ids for one batch.
type ReferenceResolver interface {
	ResolveAccount(ctx context.Context, externalID string) (int64, error)
	ResolveInstrument(ctx context.Context, rootSymbol string) (int64, error)
}

// TradeService reconstructs and stores the trades of stored fills that have none yet.
type TradeService interface {
	ReconstructAndPersist(ctx context.Context, userID int64, fills []models.Fill) ([]models.Trade, error)
}

// AggregateService maintains daily summaries and their cumulative P&L chain.
type AggregateService interface {
	// Recalculate rebuilds one day on top of the latest earlier summary.
	Recalculate(ctx context.Context, userID, accountID int64, tradingDay string) (*models.DailySummary, error)
	// RecomputeFrom rebuilds every day from fromDay onward, ascending.
	RecomputeFrom(ctx context.Context, userID, accountID int64, fromDay string) (int, error)
	// RecomputeAccounts runs RecomputeFrom for several accounts concurrently.
	RecomputeAccounts(ctx context.Context, userID int64, fromDays map[int64]string) error
	// RecomputeAll rebuilds an account from its earliest trading day.
	RecomputeAll(ctx context.Context, userID, accountID int64) (int, error)
}

// JournalService serves the persisted ledger to read-only collaborators.
type JournalService interface {
	ListBatches(ctx context.Context, userID int64) ([]models.ImportBatch, error)
	GetBatch(ctx context.Context, userID, batchID int64) (*models.ImportBatch, error)
	ListBatchFills(ctx context.Context, userID, batchID int64) ([]models.Fill, error)
	ListAccounts(ctx context.Context, userID int64) ([]models.Account, error)
	ListTrades(ctx context.Context, userID int64, filter model.TradeFilter) ([]models.TradeView, error)
	ListDailySummaries(ctx context.Context, userID, accountID int64) ([]models.DailySummary, error)
	GetDailySummary(ctx context.Context, userID, accountID int64, tradingDay string) (*models.DailySummary, error)
	InvalidateUserCache(userID int64)
}

// AnnotationService stores what the user adds to a reconstructed trade.
type AnnotationService interface {
	// SetRMultiple records the trade's R-multiple and refreshes its day's summary.
	SetRMultiple(ctx context.Context, userID, tradeID int64, r decimal.Decimal) (*models.Trade, error)
}
