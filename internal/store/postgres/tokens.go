package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/markrhq/markr/internal/store"
)

// TokenRepository provides PostgreSQL-backed login session storage.
type TokenRepository struct {
	pool *Pool
}

// NewTokenRepository creates a new token repository.
func NewTokenRepository(pool *Pool) *TokenRepository {
	return &TokenRepository{pool: pool}
}

// SaveAuthSession stores a login session.
func (r *TokenRepository) SaveAuthSession(ctx context.Context, s store.AuthSession) error {
	query := `
		INSERT INTO auth_sessions (id, user_id, created_at, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			created_at = EXCLUDED.created_at,
			expires_at = EXCLUDED.expires_at
	`
	_, err := r.pool.Exec(ctx, query, s.ID, s.UserID, s.CreatedAt, s.ExpiresAt)
	if err != nil {
		return fmt.Errorf("save auth session: %w", err)
	}
	return nil
}

// AuthSessionByID retrieves a login session, returns nil if not found or expired.
func (r *TokenRepository) AuthSessionByID(ctx context.Context, id string) (*store.AuthSession, error) {
	query := `
		SELECT id, user_id, created_at, expires_at
		FROM auth_sessions
		WHERE id = $1 AND expires_at > NOW()
	`
	var s store.AuthSession
	err := r.pool.QueryRow(ctx, query, id).Scan(&s.ID, &s.UserID, &s.CreatedAt, &s.ExpiresAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get auth session: %w", err)
	}
	return &s, nil
}

// DeleteAuthSession removes a login session.
func (r *TokenRepository) DeleteAuthSession(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, "DELETE FROM auth_sessions WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete auth session: %w", err)
	}
	return nil
}

// DeleteExpiredAuthSessions removes all expired sessions and returns the count.
func (r *TokenRepository) DeleteExpiredAuthSessions(ctx context.Context) (int64, error) {
	result, err := r.pool.Exec(ctx, "DELETE FROM auth_sessions WHERE expires_at <= NOW()")
	if err != nil {
		return 0, fmt.Errorf("delete expired auth sessions: %w", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("getting rows affected: %w", err)
	}
	return count, nil
}

var _ store.TokenStore = (*TokenRepository)(nil)
