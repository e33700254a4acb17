package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// TokenRepo is the MySQL revocation registry backed by the revoked_tokens
// table. It satisfies auth.RevocationStore and is shared by every replica
// using the same database.
type TokenRepo struct {
	DB  *sql.DB
	Now func() time.Time
}

func NewTokenRepo(db *sql.DB) *TokenRepo {
	return &TokenRepo{DB: db, Now: func() time.Time { return time.Now().UTC() }}
}

// Revoke inserts jti unless it is already present. It reports whether
// this call created the row.
func (r *TokenRepo) Revoke(ctx context.Context, jti string, expiresAt time.Time) (bool, error) {
	res, err := r.DB.ExecContext(ctx,
		"INSERT IGNORE INTO revoked_tokens (jti, expires_at, revoked_at) VALUES (?,?,?)",
		jti, expiresAt.UTC(), r.Now())
	if err != nil {
		return false, fmt.Errorf("revoke token: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("revoke token: %w", err)
	}
	return n == 1, nil
}

// IsRevoked reports whether jti has a row.
func (r *TokenRepo) IsRevoked(ctx context.Context, jti string) (bool, error) {
	var one int
	err := r.DB.QueryRowContext(ctx,
		"SELECT 1 FROM revoked_tokens WHERE jti=? LIMIT 1", jti).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup revoked token: %w", err)
	}
	return true, nil
}

// PurgeExpired deletes rows whose token has expired and returns how many
// were removed. Those tokens fail verification on expiry alone.
func (r *TokenRepo) PurgeExpired(ctx context.Context) (int64, error) {
	res, err := r.DB.ExecContext(ctx,
		"DELETE FROM revoked_tokens WHERE expires_at <= ?", r.Now())
	if err != nil {
		return 0, fmt.Errorf("purge revoked tokens: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge revoked tokens: %w", err)
	}
	return n, nil
}
