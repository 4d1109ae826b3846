package model

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/username/tradejournal/backend/src/models"
)

const tradeColumns = `id, user_id, account_id, instrument_id, COALESCE(batch_id, 0), root_symbol, trading_day,
	entry_time, exit_time, duration_seconds, side, entry_qty, exit_qty, avg_entry_price, avg_exit_price,
	is_open, gross_pnl, net_pnl, commission_total, fees_total, outcome, r_multiple, grouping_method`

// InsertTrade persists a trade and sets its ID.
func InsertTrade(ctx context.Context, db Querier, t *models.Trade) error {
	var exitTime, outcome any
	if t.ExitTime.Valid {
		exitTime = formatTimestamp(t.ExitTime.Time)
	}
	if t.Outcome != nil {
		outcome = string(*t.Outcome)
	}
	res, err := db.ExecContext(ctx, `
		INSERT INTO trades (user_id, account_id, instrument_id, batch_id, root_symbol, trading_day,
			entry_time, exit_time, duration_seconds, side, entry_qty, exit_qty, avg_entry_price, avg_exit_price,
			is_open, gross_pnl, net_pnl, commission_total, fees_total, outcome, r_multiple, grouping_method)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.UserID, t.AccountID, t.InstrumentID, nullableID(t.BatchID), t.RootSymbol, t.TradingDay,
		formatTimestamp(t.EntryTime), exitTime, t.DurationSeconds, string(t.Side), t.EntryQty, t.ExitQty,
		t.AvgEntryPrice, t.AvgExitPrice, t.IsOpen, t.GrossPnL, t.NetPnL, t.CommissionTotal, t.FeesTotal,
		outcome, t.RMultiple, t.GroupingMethod)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	t.ID = id
	return nil
}

func scanTrade(scan func(dest ...any) error) (models.Trade, error) {
	var t models.Trade
	var entryTime, side string
	var exitTime, outcome sql.NullString
	err := scan(&t.ID, &t.UserID, &t.AccountID, &t.InstrumentID, &t.BatchID, &t.RootSymbol, &t.TradingDay,
		&entryTime, &exitTime, &t.DurationSeconds, &side, &t.EntryQty, &t.ExitQty, &t.AvgEntryPrice, &t.AvgExitPrice,
		&t.IsOpen, &t.GrossPnL, &t.NetPnL, &t.CommissionTotal, &t.FeesTotal, &outcome, &t.RMultiple, &t.GroupingMethod)
	if err != nil {
		return t, err
	}
	t.Side = models.TradeSide(side)
	if t.EntryTime, err = parseTimestamp(entryTime); err != nil {
		return t, err
	}
	if exitTime.Valid {
		exit, err := parseTimestamp(exitTime.String)
		if err != nil {
			return t, err
		}
		t.ExitTime = sql.NullTime{Time: exit, Valid: true}
	}
	if outcome.Valid {
		o := models.Outcome(outcome.String)
		t.Outcome = &o
	}
	return t, nil
}

func queryTrades(ctx context.Context, db Querier, query string, args ...any) ([]models.Trade, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	trades := []models.Trade{}
	for rows.Next() {
		t, err := scanTrade(rows.Scan)
		if err != nil {
			return nil, err
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// TradeFilter narrows ListTrades. Zero values mean "any".
type TradeFilter struct {
	AccountID  int64
	TradingDay string
	BatchID    int64
}

// ListTrades returns a user's trades ordered by entry time.
func ListTrades(ctx context.Context, db Querier, userID int64, filter TradeFilter) ([]models.Trade, error) {
	var where strings.Builder
	where.WriteString("user_id = ?")
	args := []any{userID}
	if filter.AccountID > 0 {
		where.WriteString(" AND account_id = ?")
		args = append(args, filter.AccountID)
	}
	if filter.TradingDay != "" {
		where.WriteString(" AND trading_day = ?")
		args = append(args, filter.TradingDay)
	}
	if filter.BatchID > 0 {
		where.WriteString(" AND batch_id = ?")
		args = append(args, filter.BatchID)
	}
	return queryTrades(ctx, db, `SELECT `+tradeColumns+` FROM trades WHERE `+where.String()+` ORDER BY entry_time ASC, id ASC`, args...)
}

// ListClosedTradesForDay returns the closed trades of one account on one trading day.
func ListClosedTradesForDay(ctx context.Context, db Querier, userID, accountID int64, tradingDay string) ([]models.Trade, error) {
	return queryTrades(ctx, db, `SELECT `+tradeColumns+` FROM trades
		WHERE user_id = ? AND account_id = ? AND trading_day = ? AND is_open = 0
		ORDER BY entry_time ASC, id ASC`, userID, accountID, tradingDay)
}

func GetTrade(ctx context.Context, db Querier, userID, tradeID int64) (*models.Trade, error) {
	row := db.QueryRowContext(ctx, `SELECT `+tradeColumns+` FROM trades WHERE user_id = ? AND id = ?`, userID, tradeID)
	t, err := scanTrade(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

// SetTradeRMultiple records the R-multiple a user assigned to a trade from its planned risk.
func SetTradeRMultiple(ctx context.Context, db Querier, userID, tradeID int64, r decimal.Decimal) error {
	res, err := db.ExecContext(ctx, `UPDATE trades SET r_multiple = ? WHERE user_id = ? AND id = ?`, r, userID, tradeID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// TradingDaysFrom lists, ascending, every day >= fromDay on which the account has closed
// trades or an existing summary.
func TradingDaysFrom(ctx context.Context, db Querier, userID, accountID int64, fromDay string) ([]string, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT trading_day FROM trades
		WHERE user_id = ? AND account_id = ? AND is_open = 0 AND trading_day >= ?
		UNION
		SELECT trading_day FROM daily_summaries
		WHERE user_id = ? AND account_id = ? AND trading_day >= ?
		ORDER BY trading_day ASC`,
		userID, accountID, fromDay, userID, accountID, fromDay)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var days []string
	for rows.Next() {
		var day string
		if err := rows.Scan(&day); err != nil {
			return nil, err
		}
		days = append(days, day)
	}
	return days, rows.Err()
}
