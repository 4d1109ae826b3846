package models

import (
	"database/sql"
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of a single execution.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Sign returns +1 for BUY and -1 for SELL.
func (s Side) Sign() int64 {
	if s == SideSell {
		return -1
	}
	return 1
}

// Fill is one matched execution. Normalized candidates carry the external identifiers;
// persisted fills also carry the resolved AccountID and InstrumentID.
type Fill struct {
	ID                int64           `json:"id,omitempty"`
	UserID            int64           `json:"user_id"`
	AccountID         int64           `json:"account_id"`
	InstrumentID      int64           `json:"instrument_id"`
	BatchID           int64           `json:"batch_id,omitempty"`
	TradeID           sql.NullInt64   `json:"-"`
	RawFillID         string          `json:"raw_fill_id"`
	RawOrderID        string          `json:"raw_order_id"`
	RawInstrument     string          `json:"raw_instrument"`
	RootSymbol        string          `json:"root_symbol"`
	AccountExternalID string          `json:"account_external_id,omitempty"`
	Side              Side            `json:"side"`
	Quantity          int64           `json:"quantity"`
	Price             decimal.Decimal `json:"price"`
	FillTime          time.Time       `json:"fill_time"`
	TradingDay        string          `json:"trading_day"`
	Commission        decimal.Decimal `json:"commission"`
	Fingerprint       string          `json:"fingerprint"`

	// Row is the source line of a normalized candidate. It is not persisted.
	Row int `json:"-"`
}

// SignedQuantity is +quantity for BUY, -quantity for SELL.
func (f Fill) SignedQuantity() int64 {
	return f.Side.Sign() * f.Quantity
}

// RowError is a row-level problem found while importing a file. Row 0 means the
// problem is not tied to a single line (a stage failure).
type RowError struct {
	Row     int    `json:"row"`
	Message string `json:"message"`
}

// NormalizeResult is what a parser produces for one file.
type NormalizeResult struct {
	Fills     []Fill     `json:"fills"`
	Errors    []RowError `json:"errors"`
	TotalRows int        `json:"total_rows"`
}
