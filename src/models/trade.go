package models

import (
	"database/sql"
	"time"

	"github.com/shopspring/decimal"
)

type TradeSide string

const (
	TradeSideLong  TradeSide = "LONG"
	TradeSideShort TradeSide = "SHORT"
)

// Sign returns +1 for LONG and -1 for SHORT.
func (s TradeSide) Sign() decimal.Decimal {
	if s == TradeSideShort {
		return decimal.NewFromInt(-1)
	}
	return decimal.NewFromInt(1)
}

type Outcome string

const (
	OutcomeWin       Outcome = "WIN"
	OutcomeLoss      Outcome = "LOSS"
	OutcomeBreakeven Outcome = "BREAKEVEN"
)

// GroupingFlatToFlat tags trades built by segmenting fills between flat positions.
const GroupingFlatToFlat = "flat_to_flat"

// Trade is a reconstructed round trip, or the single trailing open position of a group.
type Trade struct {
	ID              int64               `json:"id,omitempty"`
	UserID          int64               `json:"user_id"`
	AccountID       int64               `json:"account_id"`
	InstrumentID    int64               `json:"instrument_id"`
	BatchID         int64               `json:"batch_id,omitempty"`
	RootSymbol      string              `json:"root_symbol"`
	TradingDay      string              `json:"trading_day"`
	EntryTime       time.Time           `json:"entry_time"`
	ExitTime        sql.NullTime        `json:"-"`
	DurationSeconds sql.NullInt64       `json:"-"`
	Side            TradeSide           `json:"side"`
	EntryQty        int64               `json:"entry_qty"`
	ExitQty         int64               `json:"exit_qty"`
	AvgEntryPrice   decimal.Decimal     `json:"avg_entry_price"`
	AvgExitPrice    decimal.NullDecimal `json:"avg_exit_price"`
	IsOpen          bool                `json:"is_open"`
	GrossPnL        decimal.NullDecimal `json:"gross_pnl"`
	NetPnL          decimal.NullDecimal `json:"net_pnl"`
	CommissionTotal decimal.Decimal     `json:"commission_total"`
	FeesTotal       decimal.Decimal     `json:"fees_total"`
	Outcome         *Outcome            `json:"outcome"`
	RMultiple       decimal.NullDecimal `json:"r_multiple"`
	GroupingMethod  string              `json:"grouping_method"`
}

// TradeView is the JSON shape of a Trade, with nullable times flattened to pointers.
type TradeView struct {
	Trade
	ExitTime        *time.Time `json:"exit_time"`
	DurationSeconds *int64     `json:"duration_seconds"`
}

// View converts the trade into its JSON shape.
func (t Trade) View() TradeView {
	v := TradeView{Trade: t}
	if t.ExitTime.Valid {
		exit := t.ExitTime.Time
		v.ExitTime = &exit
	}
	if t.DurationSeconds.Valid {
		d := t.DurationSeconds.Int64
		v.DurationSeconds = &d
	}
	return v
}

// ReconstructedTrade pairs a trade with the fills it was built from, in processing order.
type ReconstructedTrade struct {
	Trade Trade
	Fills []Fill
}
