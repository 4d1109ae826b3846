package model

import (
	"context"
	"fmt"

	"github.com/username/tradejournal/backend/src/models"
)

// fingerprintChunkSize bounds the IN list of one existence query.
const fingerprintChunkSize = 500

// InsertFill persists one fill and sets its ID. A duplicate (user, fingerprint)
// surfaces as an error for which IsUniqueViolation is true.
func InsertFill(ctx context.Context, db Querier, f *models.Fill) error {
	res, err := db.ExecContext(ctx, `
		INSERT INTO fills (user_id, account_id, instrument_id, batch_id, raw_fill_id, raw_order_id,
			raw_instrument, root_symbol, side, quantity, price, fill_time, trading_day, commission, fingerprint)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.UserID, f.AccountID, f.InstrumentID, nullableID(f.BatchID), f.RawFillID, f.RawOrderID,
		f.RawInstrument, f.RootSymbol, string(f.Side), f.Quantity, f.Price, formatTimestamp(f.FillTime),
		f.TradingDay, f.Commission, f.Fingerprint)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	f.ID = id
	return nil
}

// ExistingFingerprints returns the subset of fingerprints already stored for the user.
func ExistingFingerprints(ctx context.Context, db Querier, userID int64, fingerprints []string) (map[string]bool, error) {
	existing := make(map[string]bool)
	for start := 0; start < len(fingerprints); start += fingerprintChunkSize {
		end := min(start+fingerprintChunkSize, len(fingerprints))
		chunk := fingerprints[start:end]

		args := make([]any, 0, len(chunk)+1)
		args = append(args, userID)
		for _, fp := range chunk {
			args = append(args, fp)
		}
		rows, err := db.QueryContext(ctx,
			`SELECT fingerprint FROM fills WHERE user_id = ? AND fingerprint IN (`+placeholders(len(chunk))+`)`, args...)
		if err != nil {
			return nil, fmt.Errorf("error querying fingerprints for userID %d: %w", userID, err)
		}
		for rows.Next() {
			var fp string
			if err := rows.Scan(&fp); err != nil {
				rows.Close()
				return nil, err
			}
			existing[fp] = true
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, err
		}
	}
	return existing, nil
}

// LinkFillsToTrade sets the trade back-reference on fills that do not have one yet.
// It returns the number of fills linked.
func LinkFillsToTrade(ctx context.Context, db Querier, userID, tradeID int64, fillIDs []int64) (int64, error) {
	if len(fillIDs) == 0 {
		return 0, nil
	}
	args := make([]any, 0, len(fillIDs)+2)
	args = append(args, tradeID, userID)
	for _, id := range fillIDs {
		args = append(args, id)
	}
	res, err := db.ExecContext(ctx,
		`UPDATE fills SET trade_id = ? WHERE user_id = ? AND trade_id IS NULL AND id IN (`+placeholders(len(fillIDs))+`)`, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const fillColumns = `id, user_id, account_id, instrument_id, COALESCE(batch_id, 0), trade_id, raw_fill_id, raw_order_id,
	raw_instrument, root_symbol, side, quantity, price, fill_time, trading_day, commission, fingerprint`

func scanFill(scan func(dest ...any) error) (models.Fill, error) {
	var f models.Fill
	var side, fillTime string
	err := scan(&f.ID, &f.UserID, &f.AccountID, &f.InstrumentID, &f.BatchID, &f.TradeID, &f.RawFillID, &f.RawOrderID,
		&f.RawInstrument, &f.RootSymbol, &side, &f.Quantity, &f.Price, &fillTime, &f.TradingDay, &f.Commission, &f.Fingerprint)
	if err != nil {
		return f, err
	}
	f.Side = models.Side(side)
	f.FillTime, err = parseTimestamp(fillTime)
	return f, err
}

func queryFills(ctx context.Context, db Querier, query string, args ...any) ([]models.Fill, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	fills := []models.Fill{}
	for rows.Next() {
		f, err := scanFill(rows.Scan)
		if err != nil {
			return nil, err
		}
		fills = append(fills, f)
	}
	return fills, rows.Err()
}

// ListFillsByTrade returns the fills linked to a trade in insertion order.
func ListFillsByTrade(ctx context.Context, db Querier, userID, tradeID int64) ([]models.Fill, error) {
	return queryFills(ctx, db, `SELECT `+fillColumns+` FROM fills WHERE user_id = ? AND trade_id = ? ORDER BY fill_time ASC, id ASC`, userID, tradeID)
}

// ListFillsByBatch returns the fills persisted by one batch in insertion order.
func ListFillsByBatch(ctx context.Context, db Querier, userID, batchID int64) ([]models.Fill, error) {
	return queryFills(ctx, db, `SELECT `+fillColumns+` FROM fills WHERE user_id = ? AND batch_id = ? ORDER BY id ASC`, userID, batchID)
}

// ListUnlinkedFills returns the fills of one (account, instrument) stream that belong to
// no trade yet, in insertion order. Fills left by an interrupted reconstruction show up here.
func ListUnlinkedFills(ctx context.Context, db Querier, userID, accountID, instrumentID int64) ([]models.Fill, error) {
	return queryFills(ctx, db, `SELECT `+fillColumns+` FROM fills
		WHERE user_id = ? AND account_id = ? AND instrument_id = ? AND trade_id IS NULL
		ORDER BY id ASC`, userID, accountID, instrumentID)
}

func nullableID(id int64) any {
	if id <= 0 {
		return nil
	}
	return id
}
