package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"qrattend/internal/clock"
)

// Manager mints and redeems tokens against a Store.
type Manager struct {
	store    Store
	clock    clock.Clock
	validity time.Duration
	log      zerolog.Logger
}

// NewManager creates a manager; validity <= 0 falls back to DefaultValidity.
func NewManager(store Store, clk clock.Clock, validity time.Duration, log zerolog.Logger) *Manager {
	if validity <= 0 {
		validity = DefaultValidity
	}
	if clk == nil {
		clk = clock.System{}
	}
	return &Manager{store: store, clock: clk, validity: validity, log: log.With().Str("component", "token").Logger()}
}

// Validity returns the configured token lifetime.
func (m *Manager) Validity() time.Duration { return m.validity }

// Mint stores a fresh token for classID. Expired tokens are purged on the
// way out; a purge failure is logged and does not fail the mint.
func (m *Manager) Mint(ctx context.Context, classID string) (Token, error) {
	if classID == "" {
		return Token{}, errors.New("class id required")
	}
	id, err := NewNonce()
	if err != nil {
		return Token{}, err
	}
	now := m.clock.Now()
	t := Token{ID: id, ClassID: classID, ExpiresAt: now.Add(m.validity)}
	if err := m.store.Insert(ctx, t); err != nil {
		return Token{}, fmt.Errorf("store token: %w", err)
	}

	if n, err := m.store.PurgeExpired(ctx, now); err != nil {
		m.log.Warn().Err(err).Msg("purge expired tokens failed")
	} else if n > 0 {
		m.log.Debug().Int64("purged", n).Msg("purged expired tokens")
	}
	return t, nil
}

// ValidateAndConsume redeems tokenID for classID at the current time.
func (m *Manager) ValidateAndConsume(ctx context.Context, tokenID, classID string) error {
	if tokenID == "" {
		return ErrTokenNotFound
	}
	return m.store.ValidateAndConsume(ctx, tokenID, classID, m.clock.Now())
}

// Purge removes every token already past its expiry.
func (m *Manager) Purge(ctx context.Context) (int64, error) {
	return m.store.PurgeExpired(ctx, m.clock.Now())
}
