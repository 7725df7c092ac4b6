package token

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// PostgresStore keeps tokens in the scan_tokens table. The DELETE ... RETURNING
// row lock decides which of several concurrent consumers wins.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a store over an open pgx-backed *sql.DB.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Insert(ctx context.Context, t Token) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO scan_tokens (id, class_id, expires_at)
		VALUES ($1, $2, $3)
	`, t.ID, t.ClassID, t.ExpiresAt)
	return err
}

func (s *PostgresStore) ValidateAndConsume(ctx context.Context, id, classID string, now time.Time) error {
	var expiresAt time.Time
	err := s.db.QueryRowContext(ctx, `
		DELETE FROM scan_tokens
		WHERE id = $1 AND class_id = $2
		RETURNING expires_at
	`, id, classID).Scan(&expiresAt)
	switch {
	case err == nil:
		if now.After(expiresAt) {
			return ErrTokenExpired
		}
		return nil
	case !errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("consume token: %w", err)
	}

	// Nothing deleted: either the id is unknown (or already consumed) or it
	// belongs to another class.
	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM scan_tokens WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("lookup token: %w", err)
	}
	if exists {
		return ErrTokenClassMismatch
	}
	return ErrTokenNotFound
}

func (s *PostgresStore) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM scan_tokens WHERE expires_at < $1`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
