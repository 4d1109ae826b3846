package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// User is the owner of every journal row. Users are provisioned outside the import pipeline.
type User struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
}

// Account is a broker account resolved from its external identifier.
type Account struct {
	ID          int64     `json:"id"`
	UserID      int64     `json:"user_id"`
	ExternalID  string    `json:"external_id"`
	DisplayName string    `json:"display_name"`
	Broker      string    `json:"broker"`
	CreatedAt   time.Time `json:"created_at"`
}

// Instrument holds the contract economics of a root symbol. The values are mutable
// after creation; P&L always reads the current multiplier.
type Instrument struct {
	ID                int64           `json:"id"`
	UserID            int64           `json:"user_id"`
	RootSymbol        string          `json:"root_symbol"`
	DisplayName       string          `json:"display_name"`
	TickSize          decimal.Decimal `json:"tick_size"`
	TickValue         decimal.Decimal `json:"tick_value"`
	Multiplier        decimal.Decimal `json:"multiplier"`
	CommissionPerSide decimal.Decimal `json:"commission_per_side"`
	IsMicro           bool            `json:"is_micro"`
	NeedsConfig       bool            `json:"needs_config"`
	CreatedAt         time.Time       `json:"created_at"`
}

// ContractSpec describes the economics used when an instrument is created.
type ContractSpec struct {
	DisplayName       string
	TickSize          decimal.Decimal
	TickValue         decimal.Decimal
	CommissionPerSide decimal.Decimal
	IsMicro           bool
}

// Multiplier is tick value divided by tick size, or 1 when the tick size is unknown.
func (c ContractSpec) Multiplier() decimal.Decimal {
	if c.TickSize.IsZero() {
		return decimal.NewFromInt(1)
	}
	return c.TickValue.Div(c.TickSize)
}
