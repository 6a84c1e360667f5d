package database

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"taskcal/internal/models"

	"github.com/google/uuid"
)

// FindLatestCredential returns the newest calendar credential of the user or
// nil when none was linked.
func (db *DB) FindLatestCredential(ctx context.Context, userID string) (*models.ExternalCredential, error) {
	query := `SELECT id, user_id, access_token, refresh_token, provider, created_at
              FROM external_credentials
              WHERE user_id = ? AND provider = ?
              ORDER BY created_at DESC, rowid DESC LIMIT 1`

	var (
		c       models.ExternalCredential
		refresh sql.NullString
	)
	err := db.QueryRowContext(ctx, query, userID, models.ProviderGoogle).Scan(
		&c.ID, &c.UserID, &c.AccessToken, &refresh, &c.Provider, &c.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapErr("find credential", err)
	}
	c.RefreshToken = refresh.String
	return &c, nil
}

// SaveCredential stores a newly linked credential. Older rows are kept; the
// newest one wins on lookup.
func (db *DB) SaveCredential(ctx context.Context, cred *models.ExternalCredential) error {
	if cred.ID == "" {
		cred.ID = uuid.NewString()
	}
	if cred.Provider == "" {
		cred.Provider = models.ProviderGoogle
	}
	if cred.CreatedAt.IsZero() {
		cred.CreatedAt = time.Now().UTC()
	}

	query := `INSERT INTO external_credentials (id, user_id, access_token, refresh_token, provider, created_at)
              VALUES (?, ?, ?, ?, ?, ?)`
	_, err := db.ExecContext(ctx, query,
		cred.ID, cred.UserID, cred.AccessToken, nullString(&cred.RefreshToken), cred.Provider, cred.CreatedAt,
	)
	return wrapErr("save credential", err)
}
