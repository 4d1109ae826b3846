package model

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/username/tradejournal/backend/src/models"
)

// CreateUser provisions a user row. The import pipeline never creates users.
func CreateUser(ctx context.Context, db Querier, username string) (*models.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, errors.New("username cannot be empty")
	}
	res, err := db.ExecContext(ctx, `INSERT INTO users (username) VALUES (?)`, username)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return GetUserByID(ctx, db, id)
}

func GetUserByID(ctx context.Context, db Querier, id int64) (*models.User, error) {
	var user models.User
	err := db.QueryRowContext(ctx, `SELECT id, username, created_at FROM users WHERE id = ?`, id).
		Scan(&user.ID, &user.Username, scanTime(&user.CreatedAt))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

func GetUserByUsername(ctx context.Context, db Querier, username string) (*models.User, error) {
	var user models.User
	err := db.QueryRowContext(ctx, `SELECT id, username, created_at FROM users WHERE username = ?`, username).
		Scan(&user.ID, &user.Username, scanTime(&user.CreatedAt))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}
