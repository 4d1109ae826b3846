package model

import (
	"context"
	"database/sql"
	"errors"

	"github.com/shopspring/decimal"
	"github.com/username/tradejournal/backend/src/models"
)

const summaryColumns = `id, user_id, account_id, trading_day, total_trades, win_count, loss_count, breakeven_count,
	gross_pnl, net_pnl, commission_total, fees_total, win_rate, profit_factor, avg_win, avg_loss,
	largest_win, largest_loss, avg_r_multiple, total_r_multiple, max_contracts, cumulative_pnl, updated_at`

// UpsertDailySummary writes the summary keyed by (user, account, trading day).
func UpsertDailySummary(ctx context.Context, db Querier, s *models.DailySummary) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO daily_summaries (user_id, account_id, trading_day, total_trades, win_count, loss_count,
			breakeven_count, gross_pnl, net_pnl, commission_total, fees_total, win_rate, profit_factor, avg_win,
			avg_loss, largest_win, largest_loss, avg_r_multiple, total_r_multiple, max_contracts, cumulative_pnl, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (user_id, account_id, trading_day) DO UPDATE SET
			total_trades = excluded.total_trades,
			win_count = excluded.win_count,
			loss_count = excluded.loss_count,
			breakeven_count = excluded.breakeven_count,
			gross_pnl = excluded.gross_pnl,
			net_pnl = excluded.net_pnl,
			commission_total = excluded.commission_total,
			fees_total = excluded.fees_total,
			win_rate = excluded.win_rate,
			profit_factor = excluded.profit_factor,
			avg_win = excluded.avg_win,
			avg_loss = excluded.avg_loss,
			largest_win = excluded.largest_win,
			largest_loss = excluded.largest_loss,
			avg_r_multiple = excluded.avg_r_multiple,
			total_r_multiple = excluded.total_r_multiple,
			max_contracts = excluded.max_contracts,
			cumulative_pnl = excluded.cumulative_pnl,
			updated_at = CURRENT_TIMESTAMP`,
		s.UserID, s.AccountID, s.TradingDay, s.TotalTrades, s.WinCount, s.LossCount,
		s.BreakevenCount, s.GrossPnL, s.NetPnL, s.CommissionTotal, s.FeesTotal, s.WinRate, s.ProfitFactor, s.AvgWin,
		s.AvgLoss, s.LargestWin, s.LargestLoss, s.AvgRMultiple, s.TotalRMultiple, s.MaxContracts, s.CumulativePnL)
	return err
}

func scanSummary(scan func(dest ...any) error) (models.DailySummary, error) {
	var s models.DailySummary
	err := scan(&s.ID, &s.UserID, &s.AccountID, &s.TradingDay, &s.TotalTrades, &s.WinCount, &s.LossCount, &s.BreakevenCount,
		&s.GrossPnL, &s.NetPnL, &s.CommissionTotal, &s.FeesTotal, &s.WinRate, &s.ProfitFactor, &s.AvgWin, &s.AvgLoss,
		&s.LargestWin, &s.LargestLoss, &s.AvgRMultiple, &s.TotalRMultiple, &s.MaxContracts, &s.CumulativePnL, scanTime(&s.UpdatedAt))
	return s, err
}

func GetDailySummary(ctx context.Context, db Querier, userID, accountID int64, tradingDay string) (*models.DailySummary, error) {
	row := db.QueryRowContext(ctx, `SELECT `+summaryColumns+` FROM daily_summaries
		WHERE user_id = ? AND account_id = ? AND trading_day = ?`, userID, accountID, tradingDay)
	s, err := scanSummary(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}

// ListDailySummaries returns an account's summaries ascending by trading day.
func ListDailySummaries(ctx context.Context, db Querier, userID, accountID int64) ([]models.DailySummary, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+summaryColumns+` FROM daily_summaries
		WHERE user_id = ? AND account_id = ? ORDER BY trading_day ASC`, userID, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	summaries := []models.DailySummary{}
	for rows.Next() {
		s, err := scanSummary(rows.Scan)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

// CumulativeBefore returns the cumulative P&L of the latest summary strictly before tradingDay,
// or zero when the account has no earlier summary.
func CumulativeBefore(ctx context.Context, db Querier, userID, accountID int64, tradingDay string) (decimal.Decimal, error) {
	var cumulative decimal.Decimal
	err := db.QueryRowContext(ctx, `
		SELECT cumulative_pnl FROM daily_summaries
		WHERE user_id = ? AND account_id = ? AND trading_day < ?
		ORDER BY trading_day DESC LIMIT 1`, userID, accountID, tradingDay).Scan(&cumulative)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, nil
	}
	return cumulative, err
}
