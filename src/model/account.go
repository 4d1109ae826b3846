package model

import (
	"context"
	"database/sql"
	"errors"

	"github.com/username/tradejournal/backend/src/models"
)

// UpsertAccount returns the id of the (user, externalID) account, creating it with
// displayName = externalID when it does not exist yet.
func UpsertAccount(ctx context.Context, db Querier, userID int64, externalID, broker string) (int64, error) {
	_, err := db.ExecContext(ctx, `
		INSERT INTO accounts (user_id, external_id, display_name, broker)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id, external_id) DO NOTHING`,
		userID, externalID, externalID, broker)
	if err != nil {
		return 0, err
	}
	var id int64
	err = db.QueryRowContext(ctx, `SELECT id FROM accounts WHERE user_id = ? AND external_id = ?`, userID, externalID).Scan(&id)
	return id, err
}

func GetAccountByExternalID(ctx context.Context, db Querier, userID int64, externalID string) (*models.Account, error) {
	var a models.Account
	err := db.QueryRowContext(ctx, `
		SELECT id, user_id, external_id, display_name, broker, created_at
		FROM accounts WHERE user_id = ? AND external_id = ?`, userID, externalID).
		Scan(&a.ID, &a.UserID, &a.ExternalID, &a.DisplayName, &a.Broker, scanTime(&a.CreatedAt))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

func ListAccounts(ctx context.Context, db Querier, userID int64) ([]models.Account, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, user_id, external_id, display_name, broker, created_at
		FROM accounts WHERE user_id = ? ORDER BY id ASC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	accounts := []models.Account{}
	for rows.Next() {
		var a models.Account
		if err := rows.Scan(&a.ID, &a.UserID, &a.ExternalID, &a.DisplayName, &a.Broker, scanTime(&a.CreatedAt)); err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}
