package model

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/username/tradejournal/backend/src/models"
)

const batchColumns = `id, user_id, filename, file_hash, format, status, total_rows, new_fills, duplicate_fills,
	error_rows, trades_created, errors, started_at, completed_at`

// CreateBatch inserts a batch in the processing state.
func CreateBatch(ctx context.Context, db Querier, b *models.ImportBatch) error {
	if b.StartedAt.IsZero() {
		b.StartedAt = time.Now().UTC()
	}
	b.Status = models.BatchProcessing
	res, err := db.ExecContext(ctx, `
		INSERT INTO import_batches (user_id, filename, file_hash, format, status, started_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		b.UserID, b.Filename, b.FileHash, b.Format, string(b.Status), formatTimestamp(b.StartedAt))
	if err != nil {
		return err
	}
	b.ID, err = res.LastInsertId()
	return err
}

// ErrBatchAlreadyFinalized is returned when a batch has already left the processing state.
var ErrBatchAlreadyFinalized = errors.New("import batch already finalized")

// FinalizeBatch moves a processing batch to its terminal status together with its counts.
// Only the first call succeeds.
func FinalizeBatch(ctx context.Context, db Querier, b *models.ImportBatch) error {
	if b.Status == models.BatchProcessing {
		return fmt.Errorf("cannot finalize batch %d with status %q", b.ID, b.Status)
	}
	errs := b.Errors
	if errs == nil {
		errs = []models.RowError{}
	}
	errorsJSON, err := json.Marshal(errs)
	if err != nil {
		return fmt.Errorf("failed to encode batch errors: %w", err)
	}
	completedAt := time.Now().UTC()
	res, err := db.ExecContext(ctx, `
		UPDATE import_batches
		SET status = ?, total_rows = ?, new_fills = ?, duplicate_fills = ?, error_rows = ?, trades_created = ?,
			errors = ?, completed_at = ?
		WHERE id = ? AND user_id = ? AND status = 'processing'`,
		string(b.Status), b.TotalRows, b.NewFills, b.DuplicateFills, b.ErrorRows, b.TradesCreated,
		string(errorsJSON), formatTimestamp(completedAt), b.ID, b.UserID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrBatchAlreadyFinalized
	}
	b.CompletedAt = sql.NullTime{Time: completedAt, Valid: true}
	return nil
}

func scanBatch(scan func(dest ...any) error) (models.ImportBatch, error) {
	var b models.ImportBatch
	var status, errorsJSON string
	var startedAt, completedAt nullTimestamp
	err := scan(&b.ID, &b.UserID, &b.Filename, &b.FileHash, &b.Format, &status, &b.TotalRows, &b.NewFills,
		&b.DuplicateFills, &b.ErrorRows, &b.TradesCreated, &errorsJSON, &startedAt, &completedAt)
	if err != nil {
		return b, err
	}
	b.StartedAt = startedAt.Time
	b.CompletedAt = sql.NullTime{Time: completedAt.Time, Valid: completedAt.Valid}
	b.Status = models.BatchStatus(status)
	b.Errors = []models.RowError{}
	if errorsJSON != "" {
		if err := json.Unmarshal([]byte(errorsJSON), &b.Errors); err != nil {
			return b, fmt.Errorf("failed to decode errors of batch %d: %w", b.ID, err)
		}
	}
	return b, nil
}

func GetBatch(ctx context.Context, db Querier, userID, batchID int64) (*models.ImportBatch, error) {
	row := db.QueryRowContext(ctx, `SELECT `+batchColumns+` FROM import_batches WHERE user_id = ? AND id = ?`, userID, batchID)
	b, err := scanBatch(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &b, nil
}

func ListBatches(ctx context.Context, db Querier, userID int64, limit int) ([]models.ImportBatch, error) {
	if limit <= 0 {
		limit = 50
	}
	return queryBatches(ctx, db, `SELECT `+batchColumns+` FROM import_batches WHERE user_id = ? ORDER BY id DESC LIMIT ?`, userID, limit)
}

// FindBatchByHash returns the latest complete batch of the user with the same file hash.
func FindBatchByHash(ctx context.Context, db Querier, userID int64, fileHash string) (*models.ImportBatch, error) {
	row := db.QueryRowContext(ctx, `SELECT `+batchColumns+` FROM import_batches
		WHERE user_id = ? AND file_hash = ? AND status = 'complete' ORDER BY id DESC LIMIT 1`, userID, fileHash)
	b, err := scanBatch(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &b, nil
}

// ListStaleBatches returns batches of any user still processing since before the cutoff.
func ListStaleBatches(ctx context.Context, db Querier, cutoff time.Time) ([]models.ImportBatch, error) {
	return queryBatches(ctx, db, `SELECT `+batchColumns+` FROM import_batches
		WHERE status = 'processing' AND started_at < ? ORDER BY id ASC`, formatTimestamp(cutoff))
}

func queryBatches(ctx context.Context, db Querier, query string, args ...any) ([]models.ImportBatch, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	batches := []models.ImportBatch{}
	for rows.Next() {
		b, err := scanBatch(rows.Scan)
		if err != nil {
			return nil, err
		}
		batches = append(batches, b)
	}
	return batches, rows.Err()
}
