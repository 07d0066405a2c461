package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/pkg/errors"
)

var ErrPushTokenNotFound = errors.New("push token not found")

// PushTokenRepository stores the device push token on the user's profile.
type PushTokenRepository interface {
	SetPushToken(ctx context.Context, userID, token string) error
	GetPushToken(ctx context.Context, userID string) (string, error)
	DeletePushToken(ctx context.Context, userID string) error
}

type pushTokenRepository struct {
	db *sql.DB
}

func NewPushTokenRepository(db *sql.DB) PushTokenRepository {
	return &pushTokenRepository{db: db}
}

func (r *pushTokenRepository) SetPushToken(ctx context.Context, userID, token string) error {
	userID = strings.TrimSpace(userID)
	token = strings.TrimSpace(token)
	if userID == "" || token == "" {
		return errors.New("user id and token are required")
	}

	const query = `
		INSERT INTO safeme.user_push_tokens (user_id, fcm_token, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (user_id) DO UPDATE SET fcm_token = EXCLUDED.fcm_token, updated_at = NOW()
	`
	if _, err := r.db.ExecContext(ctx, query, userID, token); err != nil {
		return errors.Wrap(err, "set push token")
	}
	return nil
}

func (r *pushTokenRepository) GetPushToken(ctx context.Context, userID string) (string, error) {
	const query = `SELECT fcm_token FROM safeme.user_push_tokens WHERE user_id = $1`
	var token string
	err := r.db.QueryRowContext(ctx, query, strings.TrimSpace(userID)).Scan(&token)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrPushTokenNotFound
	}
	if err != nil {
		return "", errors.Wrap(err, "get push token")
	}
	return token, nil
}

// DeletePushToken removes the token on logout. Deleting a missing token is not an error.
func (r *pushTokenRepository) DeletePushToken(ctx context.Context, userID string) error {
	const query = `DELETE FROM safeme.user_push_tokens WHERE user_id = $1`
	if _, err := r.db.ExecContext(ctx, query, strings.TrimSpace(userID)); err != nil {
		return errors.Wrap(err, "delete push token")
	}
	return nil
}
