package processors

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/username/tradejournal/backend/src/models"
)

var t0 = time.Date(2024, 12, 2, 14, 30, 0, 0, time.UTC)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func fill(id int64, side models.Side, qty int64, price string, at time.Duration) models.Fill {
	return models.Fill{
		ID:           id,
		UserID:       1,
		AccountID:    10,
		InstrumentID: 20,
		RootSymbol:   "ES",
		Side:         side,
		Quantity:     qty,
		Price:        d(price),
		FillTime:     t0.Add(at),
		TradingDay:   "2024-12-02",
		Commission:   decimal.Zero,
	}
}

func TestReconstruct_ScaledExitLong(t *testing.T) {
	fills := []models.Fill{
		fill(1, models.SideBuy, 2, "100", 0),
		fill(2, models.SideSell, 1, "105", time.Minute),
		fill(3, models.SideSell, 1, "110", 2*time.Minute),
	}
	trades := NewTradeProcessor().Reconstruct(fills, map[int64]models.Instrument{20: {ID: 20, Multiplier: d("1")}})

	require.Len(t, trades, 1)
	tr := trades[0].Trade
	assert.Equal(t, models.TradeSideLong, tr.Side)
	assert.False(t, tr.IsOpen)
	assert.Equal(t, int64(2), tr.EntryQty)
	assert.Equal(t, int64(2), tr.ExitQty)
	assert.True(t, d("100").Equal(tr.AvgEntryPrice))
	require.True(t, tr.AvgExitPrice.Valid)
	assert.True(t, d("107.5").Equal(tr.AvgExitPrice.Decimal), tr.AvgExitPrice.Decimal.String())
	assert.True(t, d("15").Equal(tr.GrossPnL.Decimal))
	assert.True(t, d("15").Equal(tr.NetPnL.Decimal))
	require.NotNil(t, tr.Outcome)
	assert.Equal(t, models.OutcomeWin, *tr.Outcome)
	assert.Equal(t, int64(120), tr.DurationSeconds.Int64)
	assert.Equal(t, t0.Add(2*time.Minute), tr.ExitTime.Time)
	assert.Equal(t, models.GroupingFlatToFlat, tr.GroupingMethod)
	assert.Len(t, trades[0].Fills, 3)
}

func TestReconstruct_LoneBuyIsOpen(t *testing.T) {
	trades := NewTradeProcessor().Reconstruct([]models.Fill{fill(1, models.SideBuy, 1, "100", 0)}, nil)

	require.Len(t, trades, 1)
	tr := trades[0].Trade
	assert.True(t, tr.IsOpen)
	assert.False(t, tr.AvgExitPrice.Valid)
	assert.False(t, tr.ExitTime.Valid)
	assert.False(t, tr.DurationSeconds.Valid)
	assert.False(t, tr.GrossPnL.Valid)
	assert.False(t, tr.NetPnL.Valid)
	assert.Nil(t, tr.Outcome)
	assert.Equal(t, int64(1), tr.EntryQty)
}

func TestReconstruct_ShortWithMultiplierAndCommission(t *testing.T) {
	sell := fill(1, models.SideSell, 1, "6000", 0)
	sell.Commission = d("1.29")
	buy := fill(2, models.SideBuy, 1, "5990.25", time.Minute)
	buy.Commission = d("1.29")

	trades := NewTradeProcessor().Reconstruct([]models.Fill{sell, buy}, map[int64]models.Instrument{20: {ID: 20, Multiplier: d("50")}})

	require.Len(t, trades, 1)
	tr := trades[0].Trade
	assert.Equal(t, models.TradeSideShort, tr.Side)
	assert.True(t, d("487.5").Equal(tr.GrossPnL.Decimal), tr.GrossPnL.Decimal.String())
	assert.True(t, d("2.58").Equal(tr.CommissionTotal))
	assert.True(t, d("484.92").Equal(tr.NetPnL.Decimal), tr.NetPnL.Decimal.String())
	assert.True(t, tr.NetPnL.Decimal.Equal(tr.GrossPnL.Decimal.Sub(tr.CommissionTotal).Sub(tr.FeesTotal)))
}

func TestReconstruct_SegmentsAndTrailingOpen(t *testing.T) {
	fills := []models.Fill{
		fill(1, models.SideBuy, 1, "100", 0),
		fill(2, models.SideSell, 1, "99", time.Minute),
		fill(3, models.SideSell, 2, "98", 2*time.Minute),
		fill(4, models.SideBuy, 2, "98", 3*time.Minute),
		fill(5, models.SideBuy, 3, "97", 4*time.Minute),
	}
	trades := NewTradeProcessor().Reconstruct(fills, nil)

	require.Len(t, trades, 3)
	assert.Equal(t, models.OutcomeLoss, *trades[0].Trade.Outcome)
	assert.Equal(t, models.OutcomeBreakeven, *trades[1].Trade.Outcome)
	assert.Equal(t, models.TradeSideShort, trades[1].Trade.Side)
	assert.True(t, trades[2].Trade.IsOpen)
	assert.Equal(t, []int64{5}, fillIDs(trades[2].Fills))
}

func TestReconstruct_FlipWithoutFlatStaysOneSegment(t *testing.T) {
	fills := []models.Fill{
		fill(1, models.SideBuy, 2, "100", 0),
		fill(2, models.SideSell, 3, "101", time.Minute),
		fill(3, models.SideBuy, 1, "99", 2*time.Minute),
	}
	trades := NewTradeProcessor().Reconstruct(fills, nil)

	require.Len(t, trades, 1)
	tr := trades[0].Trade
	assert.Equal(t, models.TradeSideLong, tr.Side)
	assert.Equal(t, int64(3), tr.EntryQty)
	assert.Equal(t, int64(3), tr.ExitQty)
	// bought 200 + 99, sold 303
	assert.True(t, d("4").Equal(tr.GrossPnL.Decimal), tr.GrossPnL.Decimal.String())
}

func TestReconstruct_FlipSegmentEndsAtFlatFill(t *testing.T) {
	fills := []models.Fill{
		fill(1, models.SideBuy, 2, "100", 0),
		fill(2, models.SideSell, 3, "101", time.Minute),
		fill(3, models.SideBuy, 1, "99", 2*time.Minute),
		fill(4, models.SideBuy, 1, "100", 10*time.Minute),
	}
	trades := NewTradeProcessor().Reconstruct(fills, nil)

	require.Len(t, trades, 2)
	closed := trades[0].Trade
	assert.Equal(t, []int64{1, 2, 3}, fillIDs(trades[0].Fills))
	assert.Equal(t, t0.Add(2*time.Minute), closed.ExitTime.Time)
	assert.Equal(t, int64(120), closed.DurationSeconds.Int64)
	assert.True(t, trades[1].Trade.IsOpen)
}

func TestReconstruct_TimeTiesKeepInsertionOrder(t *testing.T) {
	// Fills 2 and 3 share a timestamp; insertion order decides that 2 closes the first trade.
	fills := []models.Fill{
		fill(1, models.SideBuy, 1, "100", 0),
		fill(2, models.SideSell, 1, "101", time.Minute),
		fill(3, models.SideSell, 1, "102", time.Minute),
		fill(4, models.SideBuy, 1, "100", 2*time.Minute),
	}
	for i := 0; i < 5; i++ {
		trades := NewTradeProcessor().Reconstruct(fills, nil)
		require.Len(t, trades, 2)
		assert.Equal(t, []int64{1, 2}, fillIDs(trades[0].Fills))
		assert.Equal(t, []int64{3, 4}, fillIDs(trades[1].Fills))
		assert.Equal(t, models.TradeSideShort, trades[1].Trade.Side)
	}
}

func TestReconstruct_OutOfOrderInputAndGroups(t *testing.T) {
	other := fill(9, models.SideSell, 1, "50", 0)
	other.InstrumentID = 21
	fills := []models.Fill{
		fill(2, models.SideSell, 1, "105", time.Minute),
		other,
		fill(1, models.SideBuy, 1, "100", 0),
	}
	trades := NewTradeProcessor().Reconstruct(fills, nil)

	require.Len(t, trades, 2)
	assert.Equal(t, int64(20), trades[0].Trade.InstrumentID)
	assert.Equal(t, []int64{1, 2}, fillIDs(trades[0].Fills))
	assert.Equal(t, int64(21), trades[1].Trade.InstrumentID)
	assert.True(t, trades[1].Trade.IsOpen)
}

func fillIDs(fills []models.Fill) []int64 {
	ids := make([]int64, len(fills))
	for i, f := range fills {
		ids[i] = f.ID
	}
	return ids
}

func TestFingerprint(t *testing.T) {
	a := fill(1, models.SideBuy, 2, "5012.50", 0)
	a.RawFillID = "F1"
	b := a
	b.ID, b.BatchID, b.RawOrderID, b.Row = 99, 5, "other-order", 40
	b.Price = d("5012.5")
	b.FillTime = a.FillTime.In(time.FixedZone("EST", -5*3600))

	assert.Equal(t, Fingerprint(a), Fingerprint(b), "batch, order, row, price scale and zone do not matter")
	assert.Len(t, Fingerprint(a), 64)

	c := a
	c.UserID = 2
	assert.NotEqual(t, Fingerprint(a), Fingerprint(c), "fingerprints are user scoped")

	c = a
	c.Quantity = 3
	assert.NotEqual(t, Fingerprint(a), Fingerprint(c))

	fills := NewFillProcessor().Process([]models.Fill{a})
	assert.Equal(t, Fingerprint(a), fills[0].Fingerprint)
}

func TestLookupContract(t *testing.T) {
	es, ok := LookupContract("es")
	require.True(t, ok)
	assert.True(t, d("50").Equal(es.Multiplier()))

	mes, ok := LookupContract("MES")
	require.True(t, ok)
	assert.True(t, mes.IsMicro)
	assert.True(t, d("5").Equal(mes.Multiplier()))

	zn, _ := LookupContract("ZN")
	assert.True(t, d("1000").Equal(zn.Multiplier()))

	_, ok = LookupContract("XYZ")
	assert.False(t, ok)
	assert.True(t, d("1").Equal(UnknownContract("XYZ").Multiplier()))
}
