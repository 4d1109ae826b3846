package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// DailySummary is the rollup of one account's closed trades on one trading day.
// CumulativePnL is the running total of NetPnL over every day up to and including TradingDay.
type DailySummary struct {
	ID              int64               `json:"id,omitempty"`
	UserID          int64               `json:"user_id"`
	AccountID       int64               `json:"account_id"`
	TradingDay      string              `json:"trading_day"`
	TotalTrades     int                 `json:"total_trades"`
	WinCount        int                 `json:"win_count"`
	LossCount       int                 `json:"loss_count"`
	BreakevenCount  int                 `json:"breakeven_count"`
	GrossPnL        decimal.Decimal     `json:"gross_pnl"`
	NetPnL          decimal.Decimal     `json:"net_pnl"`
	CommissionTotal decimal.Decimal     `json:"commission_total"`
	FeesTotal       decimal.Decimal     `json:"fees_total"`
	WinRate         decimal.NullDecimal `json:"win_rate"`
	ProfitFactor    decimal.NullDecimal `json:"profit_factor"`
	AvgWin          decimal.NullDecimal `json:"avg_win"`
	AvgLoss         decimal.NullDecimal `json:"avg_loss"`
	LargestWin      decimal.NullDecimal `json:"largest_win"`
	LargestLoss     decimal.NullDecimal `json:"largest_loss"`
	AvgRMultiple    decimal.NullDecimal `json:"avg_r_multiple"`
	TotalRMultiple  decimal.Decimal     `json:"total_r_multiple"`
	MaxContracts    int64               `json:"max_contracts"`
	CumulativePnL   decimal.Decimal     `json:"cumulative_pnl"`
	UpdatedAt       time.Time           `json:"updated_at"`
}
