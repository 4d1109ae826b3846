package processors

import (
	"sort"

	"github.com/shopspring/decimal"
	"github.com/username/tradejournal/backend/src/models"
)

// TradeProcessor segments persisted fills into flat-to-flat trades.
type TradeProcessor struct{}

func NewTradeProcessor() *TradeProcessor { return &TradeProcessor{} }

// GroupKey identifies an independent position stream.
type GroupKey struct {
	AccountID    int64
	InstrumentID int64
}

// GroupFills partitions fills by (account, instrument) and returns the keys in ascending
// order. Fills keep their input order inside a group.
func GroupFills(fills []models.Fill) ([]GroupKey, map[GroupKey][]models.Fill) {
	groups := make(map[GroupKey][]models.Fill)
	for _, f := range fills {
		key := GroupKey{AccountID: f.AccountID, InstrumentID: f.InstrumentID}
		groups[key] = append(groups[key], f)
	}
	keys := make([]GroupKey, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].AccountID != keys[j].AccountID {
			return keys[i].AccountID < keys[j].AccountID
		}
		return keys[i].InstrumentID < keys[j].InstrumentID
	})
	return keys, groups
}

// Reconstruct builds the trades of every group. fills must be in insertion order;
// instruments supplies the current multiplier per instrument id.
func (p *TradeProcessor) Reconstruct(fills []models.Fill, instruments map[int64]models.Instrument) []models.ReconstructedTrade {
	keys, groups := GroupFills(fills)
	var trades []models.ReconstructedTrade
	for _, key := range keys {
		trades = append(trades, p.ReconstructGroup(groups[key], MultiplierFor(instruments, key.InstrumentID))...)
	}
	return trades
}

// MultiplierFor returns the current multiplier of an instrument, 1 when unknown or unset.
func MultiplierFor(instruments map[int64]models.Instrument, instrumentID int64) decimal.Decimal {
	if in, ok := instruments[instrumentID]; ok && !in.Multiplier.IsZero() {
		return in.Multiplier
	}
	return decimal.NewFromInt(1)
}

// ReconstructGroup walks one (account, instrument) stream in time order. A segment closes
// each time the running position is exactly zero; what remains becomes one open trade.
// Fills with equal times keep their input order.
func (p *TradeProcessor) ReconstructGroup(group []models.Fill, multiplier decimal.Decimal) []models.ReconstructedTrade {
	ordered := make([]models.Fill, len(group))
	copy(ordered, group)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].FillTime.Before(ordered[j].FillTime)
	})

	var trades []models.ReconstructedTrade
	var segment []models.Fill
	var position int64
	for _, f := range ordered {
		segment = append(segment, f)
		position += f.SignedQuantity()
		if position == 0 {
			trades = append(trades, buildTrade(segment, multiplier, false))
			segment = nil
		}
	}
	if len(segment) > 0 {
		trades = append(trades, buildTrade(segment, multiplier, true))
	}
	return trades
}

func buildTrade(segment []models.Fill, multiplier decimal.Decimal, open bool) models.ReconstructedTrade {
	first := segment[0]
	side := models.TradeSideLong
	if first.Side == models.SideSell {
		side = models.TradeSideShort
	}

	var entryQty, exitQty int64
	entryNotional, exitNotional, commission := decimal.Zero, decimal.Zero, decimal.Zero
	for _, f := range segment {
		notional := f.Price.Mul(decimal.NewFromInt(f.Quantity))
		if f.Side == first.Side {
			entryQty += f.Quantity
			entryNotional = entryNotional.Add(notional)
		} else {
			exitQty += f.Quantity
			exitNotional = exitNotional.Add(notional)
		}
		commission = commission.Add(f.Commission)
	}

	t := models.Trade{
		UserID:          first.UserID,
		AccountID:       first.AccountID,
		InstrumentID:    first.InstrumentID,
		BatchID:         first.BatchID,
		RootSymbol:      first.RootSymbol,
		TradingDay:      first.TradingDay,
		EntryTime:       first.FillTime,
		Side:            side,
		EntryQty:        entryQty,
		ExitQty:         exitQty,
		AvgEntryPrice:   entryNotional.Div(decimal.NewFromInt(entryQty)),
		IsOpen:          open,
		CommissionTotal: commission,
		FeesTotal:       decimal.Zero,
		GroupingMethod:  models.GroupingFlatToFlat,
	}

	if !open {
		last := segment[len(segment)-1]
		t.ExitTime.Time, t.ExitTime.Valid = last.FillTime, true
		t.DurationSeconds.Int64, t.DurationSeconds.Valid = int64(last.FillTime.Sub(first.FillTime).Seconds()), true
		t.AvgExitPrice = decimal.NewNullDecimal(exitNotional.Div(decimal.NewFromInt(exitQty)))

		// A closed segment has equal bought and sold quantity, so the notional difference
		// equals (avg exit - avg entry) x exit qty without rounding the averages.
		gross := side.Sign().Mul(exitNotional.Sub(entryNotional)).Mul(multiplier)
		net := gross.Sub(commission).Sub(t.FeesTotal)
		t.GrossPnL = decimal.NewNullDecimal(gross)
		t.NetPnL = decimal.NewNullDecimal(net)
		outcome := OutcomeOf(net)
		t.Outcome = &outcome
	}

	fills := make([]models.Fill, len(segment))
	copy(fills, segment)
	return models.ReconstructedTrade{Trade: t, Fills: fills}
}

// OutcomeOf classifies a closed trade by the sign of its net P&L.
func OutcomeOf(net decimal.Decimal) models.Outcome {
	switch net.Sign() {
	case 1:
		return models.OutcomeWin
	case -1:
		return models.OutcomeLoss
	default:
		return models.OutcomeBreakeven
	}
}
