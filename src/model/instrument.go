package model

import (
	"context"
	"database/sql"
	"errors"

	"github.com/shopspring/decimal"
	"github.com/username/tradejournal/backend/src/models"
)

const instrumentColumns = `id, user_id, root_symbol, display_name, tick_size, tick_value, multiplier,
	commission_per_side, is_micro, needs_config, created_at`

// UpsertInstrument returns the id of the (user, rootSymbol) instrument, creating it from spec
// when missing. An existing row keeps its current economics.
func UpsertInstrument(ctx context.Context, db Querier, userID int64, rootSymbol string, spec models.ContractSpec, needsConfig bool) (int64, error) {
	displayName := spec.DisplayName
	if displayName == "" {
		displayName = rootSymbol
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO instruments (user_id, root_symbol, display_name, tick_size, tick_value, multiplier,
			commission_per_side, is_micro, needs_config)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, root_symbol) DO NOTHING`,
		userID, rootSymbol, displayName, spec.TickSize, spec.TickValue, spec.Multiplier(),
		spec.CommissionPerSide, spec.IsMicro, needsConfig)
	if err != nil {
		return 0, err
	}
	var id int64
	err = db.QueryRowContext(ctx, `SELECT id FROM instruments WHERE user_id = ? AND root_symbol = ?`, userID, rootSymbol).Scan(&id)
	return id, err
}

// UpdateInstrumentEconomics changes tick size and value and recomputes the multiplier.
// Later reconstructions pick up the new values; existing trades are not rewritten.
func UpdateInstrumentEconomics(ctx context.Context, db Querier, userID, instrumentID int64, tickSize, tickValue, commissionPerSide decimal.Decimal) error {
	multiplier := models.ContractSpec{TickSize: tickSize, TickValue: tickValue}.Multiplier()
	res, err := db.ExecContext(ctx, `
		UPDATE instruments
		SET tick_size = ?, tick_value = ?, multiplier = ?, commission_per_side = ?, needs_config = 0
		WHERE id = ? AND user_id = ?`,
		tickSize, tickValue, multiplier, commissionPerSide, instrumentID, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanInstrument(scan func(dest ...any) error) (models.Instrument, error) {
	var in models.Instrument
	err := scan(&in.ID, &in.UserID, &in.RootSymbol, &in.DisplayName, &in.TickSize, &in.TickValue,
		&in.Multiplier, &in.CommissionPerSide, &in.IsMicro, &in.NeedsConfig, scanTime(&in.CreatedAt))
	return in, err
}

func GetInstrument(ctx context.Context, db Querier, userID, instrumentID int64) (*models.Instrument, error) {
	row := db.QueryRowContext(ctx, `SELECT `+instrumentColumns+` FROM instruments WHERE user_id = ? AND id = ?`, userID, instrumentID)
	in, err := scanInstrument(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &in, nil
}

func GetInstrumentBySymbol(ctx context.Context, db Querier, userID int64, rootSymbol string) (*models.Instrument, error) {
	row := db.QueryRowContext(ctx, `SELECT `+instrumentColumns+` FROM instruments WHERE user_id = ? AND root_symbol = ?`, userID, rootSymbol)
	in, err := scanInstrument(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &in, nil
}

// ListInstruments returns the user's instruments by root symbol, those needing configuration first.
func ListInstruments(ctx context.Context, db Querier, userID int64) ([]models.Instrument, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+instrumentColumns+` FROM instruments
		WHERE user_id = ? ORDER BY needs_config DESC, root_symbol ASC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	instruments := []models.Instrument{}
	for rows.Next() {
		in, err := scanInstrument(rows.Scan)
		if err != nil {
			return nil, err
		}
		instruments = append(instruments, in)
	}
	return instruments, rows.Err()
}

// GetInstrumentsByIDs loads current instrument economics keyed by id.
func GetInstrumentsByIDs(ctx context.Context, db Querier, userID int64, ids []int64) (map[int64]models.Instrument, error) {
	result := make(map[int64]models.Instrument, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	args := make([]any, 0, len(ids)+1)
	args = append(args, userID)
	for _, id := range ids {
		args = append(args, id)
	}
	rows, err := db.QueryContext(ctx, `SELECT `+instrumentColumns+` FROM instruments WHERE user_id = ? AND id IN (`+placeholders(len(ids))+`)`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		in, err := scanInstrument(rows.Scan)
		if err != nil {
			return nil, err
		}
		result[in.ID] = in
	}
	return result, rows.Err()
}
