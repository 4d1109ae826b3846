package services

import (
	"bytes"
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/username/tradejournal/backend/src/logger"
	"github.com/username/tradejournal/backend/src/model"
	"github.com/username/tradejournal/backend/src/models"
	"github.com/username/tradejournal/backend/src/parsers"
)

type importServiceImpl struct {
	db            *sql.DB
	dedup         Deduplicator
	trades        TradeService
	aggregates    AggregateService
	journal       JournalService
	defaultBroker string
	defaultFormat string
}

func NewImportService(
	db *sql.DB,
	dedup Deduplicator,
	trades TradeService,
	aggregates AggregateService,
	journal JournalService,
	defaultBroker string,
	defaultFormat string,
) ImportService {
	return &importServiceImpl{
		db:            db,
		dedup:         dedup,
		trades:        trades,
		aggregates:    aggregates,
		journal:       journal,
		defaultBroker: defaultBroker,
		defaultFormat: defaultFormat,
	}
}

// importRun accumulates the outcome of each stage for the final batch update.
type importRun struct {
	stage         string
	totalRows     int
	newFills      int
	duplicates    int
	tradesCreated int
	rowErrors     []models.RowError
	stageErr      error
}

// Import runs normalize, resolve, deduplicate, persist, reconstruct and recompute for one
// file. Row problems are reported in the result; a failing stage marks the batch failed and
// returns the result together with an error wrapping ErrProcessingFailed. Fills stored before
// the failure are kept: a re-import skips them as duplicates.
func (s *importServiceImpl) Import(ctx context.Context, file io.Reader, filename, format string, userID int64) (result *ImportResult, err error) {
	if userID <= 0 {
		return nil, ErrMissingUser
	}
	if _, err := model.GetUserByID(ctx, s.db, userID); err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, fmt.Errorf("%w: %d", ErrUnknownUser, userID)
		}
		return nil, fmt.Errorf("failed to look up user %d: %w", userID, err)
	}
	if format == "" {
		format = s.defaultFormat
	}
	parser, err := parsers.GetParser(format)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParsingFailed, err)
	}
	content, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read import file: %w", err)
	}
	sum := sha256.Sum256(content)

	batch := &models.ImportBatch{
		UserID:   userID,
		Filename: filename,
		FileHash: hex.EncodeToString(sum[:]),
		Format:   parser.Format(),
	}
	if err := model.CreateBatch(ctx, s.db, batch); err != nil {
		return nil, fmt.Errorf("failed to create import batch: %w", err)
	}

	ctx = logger.With(ctx, "batchID", batch.ID, "userID", userID)
	log := logger.FromContext(ctx)
	startTime := time.Now()
	log.Info("Import START", "filename", filename, "format", batch.Format, "bytes", len(content))

	if prior, err := model.FindBatchByHash(ctx, s.db, userID, batch.FileHash); err == nil {
		log.Info("Same file content was imported before; duplicates will be skipped", "priorBatchID", prior.ID)
	}

	run := &importRun{rowErrors: []models.RowError{}}
	defer func() {
		if r := recover(); r != nil {
			run.stageErr = fmt.Errorf("panic: %v", r)
		}
		result, err = s.finalize(ctx, batch, run)
		log.Info("Import END", "status", batch.Status, "newFills", run.newFills, "duplicates", run.duplicates,
			"trades", run.tradesCreated, "errorRows", len(run.rowErrors), "duration", time.Since(startTime))
	}()

	run.stageErr = s.runStages(ctx, parser, content, batch, run)
	return // result and err are set by finalize
}

func (s *importServiceImpl) runStages(ctx context.Context, parser parsers.Parser, content []byte, batch *models.ImportBatch, run *importRun) error {
	log := logger.FromContext(ctx)
	userID := batch.UserID

	run.stage = "normalize"
	normalized, err := parser.Parse(bytes.NewReader(content), userID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrParsingFailed, err)
	}
	run.totalRows = normalized.TotalRows
	run.rowErrors = append(run.rowErrors, normalized.Errors...)

	resolver := NewBatchResolver(s.db, userID, s.defaultBroker)

	run.stage = "resolve_accounts"
	accountIDs, accountErrs, err := resolveDistinct(ctx, normalized.Fills,
		func(f models.Fill) string { return f.AccountExternalID }, resolver.ResolveAccount)
	if err != nil {
		return err
	}

	run.stage = "resolve_instruments"
	instrumentIDs, instrumentErrs, err := resolveDistinct(ctx, normalized.Fills,
		func(f models.Fill) string { return f.RootSymbol }, resolver.ResolveInstrument)
	if err != nil {
		return err
	}

	resolved := make([]models.Fill, 0, len(normalized.Fills))
	for _, f := range normalized.Fills {
		if rerr, bad := accountErrs[f.AccountExternalID]; bad {
			run.rowErrors = append(run.rowErrors, models.RowError{Row: f.Row, Message: rerr.Error()})
			continue
		}
		if rerr, bad := instrumentErrs[f.RootSymbol]; bad {
			run.rowErrors = append(run.rowErrors, models.RowError{Row: f.Row, Message: rerr.Error()})
			continue
		}
		f.AccountID = accountIDs[f.AccountExternalID]
		f.InstrumentID = instrumentIDs[f.RootSymbol]
		f.BatchID = batch.ID
		resolved = append(resolved, f)
	}

	run.stage = "deduplicate"
	partition, err := s.dedup.Partition(ctx, userID, resolved)
	if err != nil {
		return err
	}
	run.duplicates = len(partition.Duplicates)

	run.stage = "persist_fills"
	for _, f := range partition.New {
		if err := model.InsertFill(ctx, s.db, &f); err != nil {
			if model.IsUniqueViolation(err) {
				// Stored by a concurrent import after the existence check.
				log.Debug("Skipping duplicate fill on insert", "row", f.Row, "fingerprint", f.Fingerprint)
				run.duplicates++
				continue
			}
			return fmt.Errorf("error inserting fill (row %d): %w", f.Row, err)
		}
		run.newFills++
	}

	run.stage = "reconstruct_trades"
	// Duplicates count too: re-running a file rebuilds what an interrupted run stored without trades.
	trades, err := s.trades.ReconstructAndPersist(ctx, userID, resolved)
	run.tradesCreated = len(trades)
	if err != nil {
		return err
	}

	run.stage = "recompute_aggregates"
	// Each account is recomputed from the earliest day the file or a rebuilt trade touches,
	// not only the new days, so a re-run also repairs summaries a failed run left stale.
	fromDays := make(map[int64]string)
	touch := func(accountID int64, day string) {
		if earliest, ok := fromDays[accountID]; !ok || day < earliest {
			fromDays[accountID] = day
		}
	}
	for _, f := range resolved {
		touch(f.AccountID, f.TradingDay)
	}
	for _, t := range trades {
		touch(t.AccountID, t.TradingDay)
	}
	return s.aggregates.RecomputeAccounts(ctx, userID, fromDays)
}

// resolveDistinct resolves each distinct key once. Unresolvable keys are returned
// separately so their rows can be reported; any other failure aborts the stage.
func resolveDistinct(
	ctx context.Context,
	fills []models.Fill,
	keyOf func(models.Fill) string,
	resolve func(context.Context, string) (int64, error),
) (map[string]int64, map[string]error, error) {
	ids := make(map[string]int64)
	failed := make(map[string]error)
	for _, f := range fills {
		key := keyOf(f)
		if _, done := ids[key]; done {
			continue
		}
		if _, done := failed[key]; done {
			continue
		}
		id, err := resolve(ctx, key)
		if err != nil {
			if errors.Is(err, ErrUnresolvable) {
				failed[key] = err
				continue
			}
			return nil, nil, err
		}
		ids[key] = id
	}
	return ids, failed, nil
}

// finalize writes the terminal batch state. It runs on a context detached from
// cancellation so an aborted request still closes its batch.
func (s *importServiceImpl) finalize(ctx context.Context, batch *models.ImportBatch, run *importRun) (*ImportResult, error) {
	log := logger.FromContext(ctx)
	ctx = context.WithoutCancel(ctx)

	sort.SliceStable(run.rowErrors, func(i, j int) bool { return run.rowErrors[i].Row < run.rowErrors[j].Row })
	errs := append([]models.RowError{}, run.rowErrors...)

	batch.Status = models.BatchComplete
	if run.stageErr != nil {
		batch.Status = models.BatchFailed
		errs = append(errs, models.RowError{Row: 0, Message: fmt.Sprintf("stage %s failed: %v", run.stage, run.stageErr)})
		log.Error("Import stage failed", "stage", run.stage, "error", run.stageErr)
	}
	batch.TotalRows = run.totalRows
	batch.NewFills = run.newFills
	batch.DuplicateFills = run.duplicates
	batch.ErrorRows = len(run.rowErrors)
	batch.TradesCreated = run.tradesCreated
	batch.Errors = errs

	finalizeErr := model.FinalizeBatch(ctx, s.db, batch)
	if finalizeErr != nil {
		log.Error("Failed to finalize import batch", "error", finalizeErr)
	}
	if s.journal != nil {
		s.journal.InvalidateUserCache(batch.UserID)
	}

	result := &ImportResult{
		BatchID:        batch.ID,
		Status:         batch.Status,
		TotalRows:      batch.TotalRows,
		NewFills:       batch.NewFills,
		DuplicateFills: batch.DuplicateFills,
		TradesCreated:  batch.TradesCreated,
		ErrorRows:      batch.ErrorRows,
		Errors:         batch.Errors,
	}
	switch {
	case batch.Status == models.BatchFailed:
		result.Outcome = OutcomeFailed
	case batch.ErrorRows > 0:
		result.Outcome = OutcomeCleanWithSkips
	default:
		result.Outcome = OutcomeClean
	}

	if run.stageErr != nil {
		return result, fmt.Errorf("%w: stage %s: %v", ErrProcessingFailed, run.stage, run.stageErr)
	}
	if finalizeErr != nil {
		return result, fmt.Errorf("failed to finalize import batch %d: %w", batch.ID, finalizeErr)
	}
	return result, nil
}

func (s *importServiceImpl) SweepStaleBatches(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := time.Now().Add(-maxAge)
	stale, err := model.ListStaleBatches(ctx, s.db, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to list stale batches: %w", err)
	}
	swept := 0
	for i := range stale {
		b := &stale[i]
		b.Status = models.BatchFailed
		b.Errors = append(b.Errors, models.RowError{
			Row:     0,
			Message: fmt.Sprintf("batch abandoned: still processing %s after start", maxAge),
		})
		if err := model.FinalizeBatch(ctx, s.db, b); err != nil {
			if errors.Is(err, model.ErrBatchAlreadyFinalized) {
				continue
			}
			return swept, fmt.Errorf("failed to fail stale batch %d: %w", b.ID, err)
		}
		logger.L.Warn("Stale import batch marked failed", "batchID", b.ID, "userID", b.UserID, "startedAt", b.StartedAt)
		swept++
	}
	return swept, nil
}
