package models

import (
	"database/sql"
	"time"
)

type BatchStatus string

const (
	BatchProcessing BatchStatus = "processing"
	BatchComplete   BatchStatus = "complete"
	BatchFailed     BatchStatus = "failed"
)

// ImportBatch tracks one ingestion run from creation to its single finalization.
type ImportBatch struct {
	ID             int64        `json:"id"`
	UserID         int64        `json:"user_id"`
	Filename       string       `json:"filename"`
	FileHash       string       `json:"file_hash"`
	Format         string       `json:"format"`
	Status         BatchStatus  `json:"status"`
	TotalRows      int          `json:"total_rows"`
	NewFills       int          `json:"new_fills"`
	DuplicateFills int          `json:"duplicate_fills"`
	ErrorRows      int          `json:"error_rows"`
	TradesCreated  int          `json:"trades_created"`
	Errors         []RowError   `json:"errors"`
	StartedAt      time.Time    `json:"started_at"`
	CompletedAt    sql.NullTime `json:"-"`
}
