package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/username/tradejournal/backend/src/model"
)

func TestBatchResolver_Accounts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	resolver := NewBatchResolver(env.db, env.userID, "tradovate")

	id, err := resolver.ResolveAccount(ctx, " SIM-1 ")
	require.NoError(t, err)
	again, err := resolver.ResolveAccount(ctx, "SIM-1")
	require.NoError(t, err)
	assert.Equal(t, id, again)

	other, err := NewBatchResolver(env.db, env.userID, "tradovate").ResolveAccount(ctx, "SIM-1")
	require.NoError(t, err)
	assert.Equal(t, id, other, "a later batch reuses the stored account")
	assert.Equal(t, 1, env.count(t, "accounts"))

	_, err = resolver.ResolveAccount(ctx, "  ")
	assert.ErrorIs(t, err, ErrUnresolvable)
}

func TestBatchResolver_Instruments(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	resolver := NewBatchResolver(env.db, env.userID, "tradovate")

	esID, err := resolver.ResolveInstrument(ctx, "es")
	require.NoError(t, err)
	es, err := model.GetInstrument(ctx, env.db, env.userID, esID)
	require.NoError(t, err)
	assert.Equal(t, "ES", es.RootSymbol)
	assert.False(t, es.NeedsConfig)
	assert.True(t, dec("50").Equal(es.Multiplier), "got %s", es.Multiplier)

	unknownID, err := resolver.ResolveInstrument(ctx, "ZZQ")
	require.NoError(t, err)
	unknown, err := model.GetInstrument(ctx, env.db, env.userID, unknownID)
	require.NoError(t, err)
	assert.True(t, unknown.NeedsConfig)
	assert.True(t, unknown.TickSize.IsZero())

	cachedID, err := resolver.ResolveInstrument(ctx, "ES")
	require.NoError(t, err)
	assert.Equal(t, esID, cachedID)

	_, err = resolver.ResolveInstrument(ctx, "")
	assert.ErrorIs(t, err, ErrUnresolvable)
}

func TestJournalService_CacheInvalidatedByImport(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.imports.Import(ctx, csvFile(scaledExitFile()...), "a.csv", "", env.userID)
	require.NoError(t, err)

	trades, err := env.journal.ListTrades(ctx, env.userID, model.TradeFilter{})
	require.NoError(t, err)
	require.Len(t, trades, 1)
	require.NotNil(t, trades[0].ExitTime)
	require.NotNil(t, trades[0].DurationSeconds)
	assert.Equal(t, int64(120), *trades[0].DurationSeconds)

	_, err = env.imports.Import(ctx, csvFile(
		row("G1", "SIM-1", "XYZZ4", "Sell", 1, "100", "2024-12-03 14:30:00", "2024-12-03"),
		row("G2", "SIM-1", "XYZZ4", "Buy", 1, "90", "2024-12-03 14:35:00", "2024-12-03"),
	), "b.csv", "", env.userID)
	require.NoError(t, err)

	trades, err = env.journal.ListTrades(ctx, env.userID, model.TradeFilter{})
	require.NoError(t, err)
	assert.Len(t, trades, 2)

	accounts, err := env.journal.ListAccounts(ctx, env.userID)
	require.NoError(t, err)
	require.Len(t, accounts, 1)

	summaries, err := env.journal.ListDailySummaries(ctx, env.userID, accounts[0].ID)
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.True(t, dec("25").Equal(summaries[1].CumulativePnL))
}

func TestJournalService_InvalidationIsPerUser(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	other, err := model.CreateUser(ctx, env.db, "other")
	require.NoError(t, err)

	_, err = env.journal.ListAccounts(ctx, env.userID)
	require.NoError(t, err)
	_, err = env.journal.ListAccounts(ctx, other.ID)
	require.NoError(t, err)

	_, err = model.UpsertAccount(ctx, env.db, env.userID, "SIM-9", "tradovate")
	require.NoError(t, err)

	accounts, err := env.journal.ListAccounts(ctx, env.userID)
	require.NoError(t, err)
	assert.Empty(t, accounts, "served from cache")

	env.journal.InvalidateUserCache(other.ID)
	accounts, err = env.journal.ListAccounts(ctx, env.userID)
	require.NoError(t, err)
	assert.Empty(t, accounts)

	env.journal.InvalidateUserCache(env.userID)
	accounts, err = env.journal.ListAccounts(ctx, env.userID)
	require.NoError(t, err)
	assert.Len(t, accounts, 1)
}

func TestAggregateService_RecalculateAndRecomputeAll(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.imports.Import(ctx, csvFile(
		row("A1", "SIM-1", "XYZZ4", "Buy", 1, "100", "2024-01-01 15:00:00", "2024-01-01"),
		row("A2", "SIM-1", "XYZZ4", "Sell", 1, "104", "2024-01-01 15:05:00", "2024-01-01"),
		row("B1", "SIM-1", "XYZZ4", "Buy", 1, "100", "2024-01-02 15:00:00", "2024-01-02"),
		row("B2", "SIM-1", "XYZZ4", "Sell", 1, "98", "2024-01-02 15:05:00", "2024-01-02"),
	), "days.csv", "", env.userID)
	require.NoError(t, err)
	account, err := model.GetAccountByExternalID(ctx, env.db, env.userID, "SIM-1")
	require.NoError(t, err)

	day2, err := env.aggregates.Recalculate(ctx, env.userID, account.ID, "2024-01-02")
	require.NoError(t, err)
	assert.Equal(t, 1, day2.LossCount)
	assert.True(t, dec("-2").Equal(day2.NetPnL))
	assert.True(t, dec("2").Equal(day2.CumulativePnL))

	empty, err := env.aggregates.Recalculate(ctx, env.userID, account.ID, "2024-01-05")
	require.NoError(t, err)
	assert.Zero(t, empty.TotalTrades)
	assert.True(t, dec("2").Equal(empty.CumulativePnL), "an empty day carries the chain")

	days, err := env.aggregates.RecomputeAll(ctx, env.userID, account.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, days)
	assertCumulative(t, env, account.ID, map[string]string{"2024-01-01": "4", "2024-01-02": "2", "2024-01-05": "2"})

	none, err := env.aggregates.RecomputeAll(ctx, env.userID, account.ID+1)
	require.NoError(t, err)
	assert.Zero(t, none)
}

func TestJournalService_ListBatchFills(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	res, err := env.imports.Import(ctx, csvFile(scaledExitFile()...), "a.csv", "", env.userID)
	require.NoError(t, err)

	fills, err := env.journal.ListBatchFills(ctx, env.userID, res.BatchID)
	require.NoError(t, err)
	require.Len(t, fills, 3)
	assert.Equal(t, "F1", fills[0].RawFillID)
	assert.Equal(t, res.BatchID, fills[2].BatchID)

	other, err := model.CreateUser(ctx, env.db, "other")
	require.NoError(t, err)
	_, err = env.journal.ListBatchFills(ctx, other.ID, res.BatchID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = env.journal.ListBatchFills(ctx, env.userID, res.BatchID+100)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAnnotationService_SetRMultiple(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	annotations := NewAnnotationService(env.db, env.aggregates, env.journal)

	_, err := env.imports.Import(ctx, csvFile(append(scaledExitFile(),
		row("O1", "SIM-1", "XYZZ4", "Buy", 1, "100", "2024-12-03 14:30:00", "2024-12-03"),
	)...), "a.csv", "", env.userID)
	require.NoError(t, err)

	trades, err := env.journal.ListTrades(ctx, env.userID, model.TradeFilter{})
	require.NoError(t, err)
	require.Len(t, trades, 2)
	closed, open := trades[0], trades[1]
	require.False(t, closed.IsOpen)
	require.True(t, open.IsOpen)

	before, err := model.GetDailySummary(ctx, env.db, env.userID, closed.AccountID, closed.TradingDay)
	require.NoError(t, err)
	assert.False(t, before.AvgRMultiple.Valid)

	updated, err := annotations.SetRMultiple(ctx, env.userID, closed.ID, dec("1.5"))
	require.NoError(t, err)
	assert.True(t, dec("1.5").Equal(updated.RMultiple.Decimal))

	after, err := model.GetDailySummary(ctx, env.db, env.userID, closed.AccountID, closed.TradingDay)
	require.NoError(t, err)
	require.True(t, after.AvgRMultiple.Valid)
	assert.True(t, dec("1.5").Equal(after.AvgRMultiple.Decimal))
	assert.True(t, dec("1.5").Equal(after.TotalRMultiple))
	assert.True(t, before.CumulativePnL.Equal(after.CumulativePnL))

	views, err := env.journal.ListTrades(ctx, env.userID, model.TradeFilter{})
	require.NoError(t, err)
	require.Len(t, views, 2)
	assert.True(t, views[0].RMultiple.Valid, "cache dropped after annotation")

	_, err = annotations.SetRMultiple(ctx, env.userID, open.ID, dec("-1"))
	require.NoError(t, err)

	_, err = annotations.SetRMultiple(ctx, env.userID, closed.ID+100, dec("1"))
	assert.ErrorIs(t, err, ErrNotFound)
}
