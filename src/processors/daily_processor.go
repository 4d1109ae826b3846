package processors

import (
	"github.com/shopspring/decimal"
	"github.com/username/tradejournal/backend/src/models"
)

// ProfitFactorNoLosses is reported when a day has winning trades and no losing ones.
var ProfitFactorNoLosses = decimal.RequireFromString("9999.99")

var hundred = decimal.NewFromInt(100)

// SummarizeDay computes one day's metrics from its trades. Open trades are ignored.
// Identity fields and CumulativePnL are left for the caller.
func SummarizeDay(trades []models.Trade) models.DailySummary {
	s := models.DailySummary{
		GrossPnL:        decimal.Zero,
		NetPnL:          decimal.Zero,
		CommissionTotal: decimal.Zero,
		FeesTotal:       decimal.Zero,
		TotalRMultiple:  decimal.Zero,
		CumulativePnL:   decimal.Zero,
	}

	sumWins, sumLosses := decimal.Zero, decimal.Zero
	var largestWin, largestLoss decimal.Decimal
	rCount := 0

	for _, t := range trades {
		if t.IsOpen || !t.NetPnL.Valid {
			continue
		}
		net := t.NetPnL.Decimal
		s.TotalTrades++
		s.GrossPnL = s.GrossPnL.Add(t.GrossPnL.Decimal)
		s.NetPnL = s.NetPnL.Add(net)
		s.CommissionTotal = s.CommissionTotal.Add(t.CommissionTotal)
		s.FeesTotal = s.FeesTotal.Add(t.FeesTotal)
		if t.EntryQty > s.MaxContracts {
			s.MaxContracts = t.EntryQty
		}

		switch OutcomeOf(net) {
		case models.OutcomeWin:
			if s.WinCount == 0 || net.GreaterThan(largestWin) {
				largestWin = net
			}
			s.WinCount++
			sumWins = sumWins.Add(net)
		case models.OutcomeLoss:
			if s.LossCount == 0 || net.LessThan(largestLoss) {
				largestLoss = net
			}
			s.LossCount++
			sumLosses = sumLosses.Add(net)
		default:
			s.BreakevenCount++
		}

		if t.RMultiple.Valid {
			rCount++
			s.TotalRMultiple = s.TotalRMultiple.Add(t.RMultiple.Decimal)
		}
	}

	if s.TotalTrades > 0 {
		s.WinRate = decimal.NewNullDecimal(decimal.NewFromInt(int64(s.WinCount)).Mul(hundred).
			Div(decimal.NewFromInt(int64(s.TotalTrades))).Round(2))
	}
	s.ProfitFactor = profitFactor(s.WinCount, s.LossCount, sumWins, sumLosses)
	if s.WinCount > 0 {
		s.AvgWin = decimal.NewNullDecimal(sumWins.Div(decimal.NewFromInt(int64(s.WinCount))).Round(2))
		s.LargestWin = decimal.NewNullDecimal(largestWin)
	}
	if s.LossCount > 0 {
		s.AvgLoss = decimal.NewNullDecimal(sumLosses.Div(decimal.NewFromInt(int64(s.LossCount))).Round(2))
		s.LargestLoss = decimal.NewNullDecimal(largestLoss)
	}
	if rCount > 0 {
		s.AvgRMultiple = decimal.NewNullDecimal(s.TotalRMultiple.Div(decimal.NewFromInt(int64(rCount))).Round(2))
	}
	return s
}

// profitFactor is |sum of wins| / |sum of losses|, the sentinel when only wins exist,
// and null when the day has neither.
func profitFactor(wins, losses int, sumWins, sumLosses decimal.Decimal) decimal.NullDecimal {
	switch {
	case wins == 0 && losses == 0:
		return decimal.NullDecimal{}
	case losses == 0:
		return decimal.NewNullDecimal(ProfitFactorNoLosses)
	default:
		return decimal.NewNullDecimal(sumWins.Abs().Div(sumLosses.Abs()).Round(2))
	}
}
