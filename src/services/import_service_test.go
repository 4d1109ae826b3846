package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/username/tradejournal/backend/src/model"
	"github.com/username/tradejournal/backend/src/models"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func scaledExitFile() []string {
	return []string{
		row("F1", "SIM-1", "XYZZ4", "Buy", 2, "100", "2024-12-02 14:30:00", "2024-12-02"),
		row("F2", "SIM-1", "XYZZ4", "Sell", 1, "105", "2024-12-02 14:31:00", "2024-12-02"),
		row("F3", "SIM-1", "XYZZ4", "Sell", 1, "110", "2024-12-02 14:32:00", "2024-12-02"),
	}
}

func TestImport_ReconstructsAndSummarizes(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	res, err := env.imports.Import(ctx, csvFile(scaledExitFile()...), "fills.csv", "", env.userID)
	require.NoError(t, err)
	assert.Equal(t, models.BatchComplete, res.Status)
	assert.Equal(t, OutcomeClean, res.Outcome)
	assert.Equal(t, 3, res.TotalRows)
	assert.Equal(t, 3, res.NewFills)
	assert.Equal(t, 0, res.DuplicateFills)
	assert.Equal(t, 1, res.TradesCreated)
	assert.Empty(t, res.Errors)

	trades, err := model.ListTrades(ctx, env.db, env.userID, model.TradeFilter{})
	require.NoError(t, err)
	require.Len(t, trades, 1)
	tr := trades[0]
	assert.Equal(t, models.TradeSideLong, tr.Side)
	assert.Equal(t, "XYZ", tr.RootSymbol)
	assert.Equal(t, int64(2), tr.EntryQty)
	assert.Equal(t, int64(2), tr.ExitQty)
	assert.True(t, dec("100").Equal(tr.AvgEntryPrice))
	assert.True(t, dec("107.5").Equal(tr.AvgExitPrice.Decimal))
	assert.True(t, dec("15").Equal(tr.GrossPnL.Decimal))
	assert.Equal(t, res.BatchID, tr.BatchID)

	linked, err := model.ListFillsByTrade(ctx, env.db, env.userID, tr.ID)
	require.NoError(t, err)
	assert.Len(t, linked, 3)

	instrument, err := model.GetInstrument(ctx, env.db, env.userID, tr.InstrumentID)
	require.NoError(t, err)
	assert.True(t, instrument.NeedsConfig)
	assert.True(t, dec("1").Equal(instrument.Multiplier))

	account, err := model.GetAccountByExternalID(ctx, env.db, env.userID, "SIM-1")
	require.NoError(t, err)
	assert.Equal(t, "SIM-1", account.DisplayName)
	assert.Equal(t, "tradovate", account.Broker)

	summaries, err := model.ListDailySummaries(ctx, env.db, env.userID, account.ID)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, 1, summaries[0].WinCount)
	assert.True(t, dec("15").Equal(summaries[0].CumulativePnL))

	batch, err := model.GetBatch(ctx, env.db, env.userID, res.BatchID)
	require.NoError(t, err)
	assert.Equal(t, models.BatchComplete, batch.Status)
	assert.True(t, batch.CompletedAt.Valid)
	assert.Len(t, batch.FileHash, 64)
}

func TestImport_IsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.imports.Import(ctx, csvFile(scaledExitFile()...), "fills.csv", "", env.userID)
	require.NoError(t, err)

	again, err := env.imports.Import(ctx, csvFile(scaledExitFile()...), "fills-copy.csv", "", env.userID)
	require.NoError(t, err)
	assert.Equal(t, 0, again.NewFills)
	assert.Equal(t, 3, again.DuplicateFills)
	assert.Equal(t, 0, again.TradesCreated)
	assert.Equal(t, OutcomeClean, again.Outcome)

	assert.Equal(t, 3, env.count(t, "fills"))
	assert.Equal(t, 1, env.count(t, "trades"))
	assert.Equal(t, 2, env.count(t, "import_batches"))
}

func TestImport_DuplicateWithinFileCollapses(t *testing.T) {
	env := newTestEnv(t)
	buy := row("F1", "SIM-1", "ESZ4", "Buy", 1, "6000", "2024-12-02 14:30:00", "2024-12-02")

	res, err := env.imports.Import(context.Background(), csvFile(buy, buy), "dup.csv", "", env.userID)
	require.NoError(t, err)
	assert.Equal(t, 1, res.NewFills)
	assert.Equal(t, 1, res.DuplicateFills)
	assert.Equal(t, 1, res.TradesCreated, "one open trade")
}

func TestImport_OpenTradeCarryover(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	res, err := env.imports.Import(ctx, csvFile(row("F1", "SIM-1", "ESZ4", "Buy", 1, "100", "2024-12-02T14:30:00Z", "2024-12-02")), "open.csv", "", env.userID)
	require.NoError(t, err)
	assert.Equal(t, 1, res.TradesCreated)

	trades, err := model.ListTrades(ctx, env.db, env.userID, model.TradeFilter{})
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.True(t, trades[0].IsOpen)
	assert.False(t, trades[0].AvgExitPrice.Valid)
	assert.False(t, trades[0].DurationSeconds.Valid)
	assert.Nil(t, trades[0].Outcome)
	assert.Equal(t, 0, env.count(t, "daily_summaries"), "open trades do not create summaries")
}

func TestImport_RowErrorsDoNotAbort(t *testing.T) {
	env := newTestEnv(t)

	res, err := env.imports.Import(context.Background(), csvFile(
		row("F1", "SIM-1", "ESZ4", "Buy", 1, "6000", "2024-12-02 14:30:00", "2024-12-02"),
		row("F2", "", "ESZ4", "Sell", 1, "6001", "2024-12-02 14:31:00", "2024-12-02"),
		row("F3", "SIM-1", "ESZ4", "Sell", 1, "", "2024-12-02 14:32:00", "2024-12-02"),
		row("F4", "SIM-1", "ESZ4", "Sell", 1, "6002", "2024-12-02 14:33:00", "2024-12-02"),
	), "skips.csv", "", env.userID)
	require.NoError(t, err)

	assert.Equal(t, models.BatchComplete, res.Status)
	assert.Equal(t, OutcomeCleanWithSkips, res.Outcome)
	assert.Equal(t, 4, res.TotalRows)
	assert.Equal(t, 2, res.NewFills)
	assert.Equal(t, 2, res.ErrorRows)
	require.Len(t, res.Errors, 2)
	assert.Equal(t, 3, res.Errors[0].Row)
	assert.Contains(t, res.Errors[0].Message, "account")
	assert.Equal(t, 4, res.Errors[1].Row)
	assert.Contains(t, res.Errors[1].Message, "price")
}

func TestImport_Preconditions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	res, err := env.imports.Import(ctx, csvFile(scaledExitFile()...), "fills.csv", "", 0)
	assert.ErrorIs(t, err, ErrMissingUser)
	assert.Nil(t, res)

	_, err = env.imports.Import(ctx, csvFile(scaledExitFile()...), "fills.csv", "", env.userID+100)
	assert.ErrorIs(t, err, ErrUnknownUser)

	_, err = env.imports.Import(ctx, csvFile(scaledExitFile()...), "fills.csv", "degiro", env.userID)
	assert.ErrorIs(t, err, ErrParsingFailed)

	assert.Equal(t, 0, env.count(t, "import_batches"))
	assert.Equal(t, 0, env.count(t, "fills"))
}

func TestImport_UnreadableHeaderFailsBatch(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	res, err := env.imports.Import(ctx, csvFile("a,b"), "bad.csv", "generic", env.userID)
	require.ErrorIs(t, err, ErrProcessingFailed)
	require.NotNil(t, res)
	assert.Equal(t, models.BatchFailed, res.Status)
	assert.Equal(t, OutcomeFailed, res.Outcome)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, 0, res.Errors[0].Row)
	assert.Contains(t, res.Errors[0].Message, "normalize")

	batch, err := model.GetBatch(ctx, env.db, env.userID, res.BatchID)
	require.NoError(t, err)
	assert.Equal(t, models.BatchFailed, batch.Status)
	assert.Equal(t, res.Errors, batch.Errors)
}

type mockAggregates struct {
	mock.Mock
}

func (m *mockAggregates) Recalculate(ctx context.Context, userID, accountID int64, day string) (*models.DailySummary, error) {
	args := m.Called(ctx, userID, accountID, day)
	return nil, args.Error(1)
}

func (m *mockAggregates) RecomputeFrom(ctx context.Context, userID, accountID int64, fromDay string) (int, error) {
	args := m.Called(ctx, userID, accountID, fromDay)
	return args.Int(0), args.Error(1)
}

func (m *mockAggregates) RecomputeAccounts(ctx context.Context, userID int64, fromDays map[int64]string) error {
	args := m.Called(ctx, userID, fromDays)
	if fn, ok := args.Get(0).(func()); ok {
		fn()
	}
	return args.Error(1)
}

func (m *mockAggregates) RecomputeAll(ctx context.Context, userID, accountID int64) (int, error) {
	args := m.Called(ctx, userID, accountID)
	return args.Int(0), args.Error(1)
}

func TestImport_StageFailureKeepsPersistedFills(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	failing := &mockAggregates{}
	failing.On("RecomputeAccounts", mock.Anything, env.userID, mock.Anything).Return(nil, errors.New("disk full")).Once()

	res, err := env.importService(env.dedup, failing).Import(ctx, csvFile(scaledExitFile()...), "fills.csv", "", env.userID)
	require.ErrorIs(t, err, ErrProcessingFailed)
	assert.Equal(t, models.BatchFailed, res.Status)
	assert.Equal(t, 3, res.NewFills)
	assert.Equal(t, 1, res.TradesCreated)
	require.NotEmpty(t, res.Errors)
	assert.Contains(t, res.Errors[len(res.Errors)-1].Message, "disk full")
	failing.AssertExpectations(t)

	assert.Zero(t, env.count(t, "daily_summaries"))

	retry, err := env.imports.Import(ctx, csvFile(scaledExitFile()...), "fills.csv", "", env.userID)
	require.NoError(t, err)
	assert.Equal(t, 3, retry.DuplicateFills)
	assert.Zero(t, retry.TradesCreated)
	assert.Equal(t, 3, env.count(t, "fills"))
	assert.Equal(t, 1, env.count(t, "trades"))

	account, err := model.GetAccountByExternalID(ctx, env.db, env.userID, "SIM-1")
	require.NoError(t, err)
	assertCumulative(t, env, account.ID, map[string]string{"2024-12-02": "15"})
}

func (e *testEnv) unlinkedFills(t *testing.T) int {
	t.Helper()
	var n int
	require.NoError(t, e.db.QueryRow("SELECT COUNT(*) FROM fills WHERE trade_id IS NULL").Scan(&n))
	return n
}

func TestImport_FillInsertFailureReportsStoredFills(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, err := env.db.Exec(`CREATE TRIGGER reject_f3 BEFORE INSERT ON fills WHEN NEW.raw_fill_id = 'F3'
		BEGIN SELECT RAISE(ABORT, 'disk I/O error'); END`)
	require.NoError(t, err)

	res, err := env.imports.Import(ctx, csvFile(scaledExitFile()...), "fills.csv", "", env.userID)
	require.ErrorIs(t, err, ErrProcessingFailed)
	assert.Equal(t, 2, res.NewFills)
	assert.Zero(t, res.TradesCreated)
	assert.Equal(t, 2, env.count(t, "fills"))

	batch, err := model.GetBatch(ctx, env.db, env.userID, res.BatchID)
	require.NoError(t, err)
	assert.Equal(t, models.BatchFailed, batch.Status)
	assert.Equal(t, 2, batch.NewFills)

	_, err = env.db.Exec(`DROP TRIGGER reject_f3`)
	require.NoError(t, err)

	retry, err := env.imports.Import(ctx, csvFile(scaledExitFile()...), "fills.csv", "", env.userID)
	require.NoError(t, err)
	assert.Equal(t, 1, retry.NewFills)
	assert.Equal(t, 2, retry.DuplicateFills)
	assert.Equal(t, 1, retry.TradesCreated)
	assert.Zero(t, env.unlinkedFills(t))

	account, err := model.GetAccountByExternalID(ctx, env.db, env.userID, "SIM-1")
	require.NoError(t, err)
	assertCumulative(t, env, account.ID, map[string]string{"2024-12-02": "15"})
}

func TestImport_RetryRebuildsTradesOfInterruptedRun(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	file := func() []string {
		return []string{
			row("E1", "SIM-1", "ESZ4", "Buy", 1, "6000", "2024-12-02 14:30:00", "2024-12-02"),
			row("N1", "SIM-1", "NQZ4", "Buy", 1, "21000", "2024-12-02 14:31:00", "2024-12-02"),
			row("E2", "SIM-1", "ESZ4", "Sell", 1, "6001", "2024-12-02 14:32:00", "2024-12-02"),
			row("N2", "SIM-1", "NQZ4", "Sell", 1, "21001", "2024-12-02 14:33:00", "2024-12-02"),
		}
	}
	_, err := env.db.Exec(`CREATE TRIGGER reject_nq BEFORE INSERT ON trades WHEN NEW.root_symbol = 'NQ'
		BEGIN SELECT RAISE(ABORT, 'trade store unavailable'); END`)
	require.NoError(t, err)

	first, err := env.imports.Import(ctx, csvFile(file()...), "session.csv", "", env.userID)
	require.ErrorIs(t, err, ErrProcessingFailed)
	assert.Equal(t, models.BatchFailed, first.Status)
	assert.Equal(t, 4, first.NewFills)
	assert.Equal(t, env.count(t, "trades"), first.TradesCreated, "committed trades are reported")
	assert.GreaterOrEqual(t, env.unlinkedFills(t), 2)

	_, err = env.db.Exec(`DROP TRIGGER reject_nq`)
	require.NoError(t, err)

	retry, err := env.imports.Import(ctx, csvFile(file()...), "session.csv", "", env.userID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeClean, retry.Outcome)
	assert.Zero(t, retry.NewFills)
	assert.Equal(t, 4, retry.DuplicateFills)
	assert.Equal(t, 2, first.TradesCreated+retry.TradesCreated)
	assert.Equal(t, 2, env.count(t, "trades"))
	assert.Zero(t, env.unlinkedFills(t))

	account, err := model.GetAccountByExternalID(ctx, env.db, env.userID, "SIM-1")
	require.NoError(t, err)
	// ES 1 point x 50 + NQ 1 point x 20
	assertCumulative(t, env, account.ID, map[string]string{"2024-12-02": "70"})
}

func TestImport_AccountsKeepSeparateChains(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	res, err := env.imports.Import(ctx, csvFile(
		row("A1", "SIM-1", "XYZZ4", "Buy", 1, "100", "2024-01-01 15:00:00", "2024-01-01"),
		row("B1", "SIM-2", "XYZZ4", "Sell", 2, "50", "2024-01-01 15:01:00", "2024-01-01"),
		row("A2", "SIM-1", "XYZZ4", "Sell", 1, "103", "2024-01-01 15:05:00", "2024-01-01"),
		row("B2", "SIM-2", "XYZZ4", "Buy", 2, "49", "2024-01-01 15:06:00", "2024-01-01"),
		row("A3", "SIM-1", "XYZZ4", "Buy", 1, "100", "2024-01-02 15:00:00", "2024-01-02"),
		row("A4", "SIM-1", "XYZZ4", "Sell", 1, "98", "2024-01-02 15:05:00", "2024-01-02"),
	), "two-accounts.csv", "", env.userID)
	require.NoError(t, err)
	assert.Equal(t, 3, res.TradesCreated)

	sim1, err := model.GetAccountByExternalID(ctx, env.db, env.userID, "SIM-1")
	require.NoError(t, err)
	sim2, err := model.GetAccountByExternalID(ctx, env.db, env.userID, "SIM-2")
	require.NoError(t, err)
	assertCumulative(t, env, sim1.ID, map[string]string{"2024-01-01": "3", "2024-01-02": "1"})
	assertCumulative(t, env, sim2.ID, map[string]string{"2024-01-01": "2"})

	shorts, err := model.ListTrades(ctx, env.db, env.userID, model.TradeFilter{AccountID: sim2.ID})
	require.NoError(t, err)
	require.Len(t, shorts, 1)
	assert.Equal(t, models.TradeSideShort, shorts[0].Side)
}

func TestImport_PanicIsFinalizedAsFailure(t *testing.T) {
	env := newTestEnv(t)

	panicking := &mockAggregates{}
	panicking.On("RecomputeAccounts", mock.Anything, env.userID, mock.Anything).
		Return(func() { panic("boom") }, nil).Once()

	res, err := env.importService(env.dedup, panicking).Import(context.Background(), csvFile(scaledExitFile()...), "fills.csv", "", env.userID)
	require.ErrorIs(t, err, ErrProcessingFailed)
	assert.Equal(t, models.BatchFailed, res.Status)

	batch, err := model.GetBatch(context.Background(), env.db, env.userID, res.BatchID)
	require.NoError(t, err)
	assert.Equal(t, models.BatchFailed, batch.Status)
	assert.Contains(t, batch.Errors[len(batch.Errors)-1].Message, "boom")
}

type passThroughDedup struct{ inner Deduplicator }

// Partition reports every candidate as new, as if a concurrent import stored them after the check.
func (p passThroughDedup) Partition(ctx context.Context, userID int64, fills []models.Fill) (*DedupResult, error) {
	res, err := p.inner.Partition(ctx, userID, fills)
	if err != nil {
		return nil, err
	}
	return &DedupResult{New: append(res.New, res.Duplicates...), Duplicates: []models.Fill{}}, nil
}

func TestImport_LateUniqueViolationCountsAsDuplicate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.imports.Import(ctx, csvFile(scaledExitFile()...), "fills.csv", "", env.userID)
	require.NoError(t, err)

	res, err := env.importService(passThroughDedup{env.dedup}, env.aggregates).Import(ctx, csvFile(scaledExitFile()...), "fills.csv", "", env.userID)
	require.NoError(t, err)
	assert.Equal(t, 0, res.NewFills)
	assert.Equal(t, 3, res.DuplicateFills)
	assert.Empty(t, res.Errors)
}

func TestImport_BackfillRecomputesLaterDays(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.imports.Import(ctx, csvFile(
		row("A1", "SIM-1", "XYZZ4", "Buy", 1, "100", "2024-01-01 15:00:00", "2024-01-01"),
		row("A2", "SIM-1", "XYZZ4", "Sell", 1, "101", "2024-01-01 15:05:00", "2024-01-01"),
		row("C1", "SIM-1", "XYZZ4", "Buy", 1, "100", "2024-01-03 15:00:00", "2024-01-03"),
		row("C2", "SIM-1", "XYZZ4", "Sell", 1, "110", "2024-01-03 15:05:00", "2024-01-03"),
		row("D1", "SIM-1", "XYZZ4", "Buy", 1, "100", "2024-01-04 15:00:00", "2024-01-04"),
		row("D2", "SIM-1", "XYZZ4", "Sell", 1, "95", "2024-01-04 15:05:00", "2024-01-04"),
	), "week.csv", "", env.userID)
	require.NoError(t, err)

	account, err := model.GetAccountByExternalID(ctx, env.db, env.userID, "SIM-1")
	require.NoError(t, err)
	assertCumulative(t, env, account.ID, map[string]string{"2024-01-01": "1", "2024-01-03": "11", "2024-01-04": "6"})

	before, err := model.GetDailySummary(ctx, env.db, env.userID, account.ID, "2024-01-01")
	require.NoError(t, err)

	_, err = env.imports.Import(ctx, csvFile(
		row("B1", "SIM-1", "XYZZ4", "Buy", 1, "100", "2024-01-02 15:00:00", "2024-01-02"),
		row("B2", "SIM-1", "XYZZ4", "Sell", 1, "120", "2024-01-02 15:05:00", "2024-01-02"),
	), "backfill.csv", "", env.userID)
	require.NoError(t, err)

	assertCumulative(t, env, account.ID, map[string]string{"2024-01-01": "1", "2024-01-02": "21", "2024-01-03": "31", "2024-01-04": "26"})

	after, err := model.GetDailySummary(ctx, env.db, env.userID, account.ID, "2024-01-01")
	require.NoError(t, err)
	assert.Equal(t, before.UpdatedAt, after.UpdatedAt, "days before the backfill are not rewritten")
}

func assertCumulative(t *testing.T, env *testEnv, accountID int64, want map[string]string) {
	t.Helper()
	summaries, err := model.ListDailySummaries(context.Background(), env.db, env.userID, accountID)
	require.NoError(t, err)
	got := make(map[string]string, len(summaries))
	for _, s := range summaries {
		got[s.TradingDay] = s.CumulativePnL.String()
	}
	assert.Equal(t, want, got)
}

func TestSweepStaleBatches(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	stale := &models.ImportBatch{UserID: env.userID, Filename: "old.csv", FileHash: "h1", Format: "tradovate", StartedAt: time.Now().Add(-3 * time.Hour)}
	require.NoError(t, model.CreateBatch(ctx, env.db, stale))
	fresh := &models.ImportBatch{UserID: env.userID, Filename: "new.csv", FileHash: "h2", Format: "tradovate"}
	require.NoError(t, model.CreateBatch(ctx, env.db, fresh))

	swept, err := env.imports.SweepStaleBatches(ctx, 2*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, swept)

	got, err := model.GetBatch(ctx, env.db, env.userID, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BatchFailed, got.Status)
	require.Len(t, got.Errors, 1)
	assert.Contains(t, got.Errors[0].Message, "abandoned")

	got, err = model.GetBatch(ctx, env.db, env.userID, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BatchProcessing, got.Status)

	swept, err = env.imports.SweepStaleBatches(ctx, 2*time.Hour)
	require.NoError(t, err)
	assert.Zero(t, swept)
}
