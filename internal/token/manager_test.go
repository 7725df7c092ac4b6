package token

import (
	"context"
	"encoding/hex"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qrattend/internal/clock"
)

var t0 = time.Date(2025, 9, 10, 8, 0, 0, 0, time.UTC)

func newTestManager(validity time.Duration) (*Manager, *MemoryStore, *clock.Manual) {
	store := NewMemoryStore()
	clk := clock.NewManual(t0)
	return NewManager(store, clk, validity, zerolog.Nop()), store, clk
}

func TestMintSetsExpiryAndEntropy(t *testing.T) {
	m, store, _ := newTestManager(0)

	tok, err := m.Mint(context.Background(), "class-1")
	require.NoError(t, err)

	assert.Equal(t, "class-1", tok.ClassID)
	assert.Equal(t, t0.Add(DefaultValidity), tok.ExpiresAt)
	raw, err := hex.DecodeString(tok.ID)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(raw)*8, 128)
	assert.Equal(t, 1, store.Len())

	other, err := m.Mint(context.Background(), "class-1")
	require.NoError(t, err)
	assert.NotEqual(t, tok.ID, other.ID)
}

func TestMintRequiresClass(t *testing.T) {
	m, _, _ := newTestManager(time.Minute)
	_, err := m.Mint(context.Background(), "")
	require.Error(t, err)
}

func TestConsumeIsSingleUse(t *testing.T) {
	m, store, _ := newTestManager(time.Minute)
	ctx := context.Background()
	tok, err := m.Mint(ctx, "class-1")
	require.NoError(t, err)

	require.NoError(t, m.ValidateAndConsume(ctx, tok.ID, "class-1"))
	assert.ErrorIs(t, m.ValidateAndConsume(ctx, tok.ID, "class-1"), ErrTokenNotFound)
	assert.Equal(t, 0, store.Len())
}

func TestConsumeConcurrentExactlyOneWins(t *testing.T) {
	m, _, _ := newTestManager(time.Minute)
	ctx := context.Background()
	tok, err := m.Mint(ctx, "class-1")
	require.NoError(t, err)

	const callers = 64
	var ok, notFound atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			switch err := m.ValidateAndConsume(ctx, tok.ID, "class-1"); err {
			case nil:
				ok.Add(1)
			case ErrTokenNotFound:
				notFound.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.EqualValues(t, 1, ok.Load())
	assert.EqualValues(t, callers-1, notFound.Load())
}

func TestConsumeExpiryBoundary(t *testing.T) {
	ctx := context.Background()

	m, _, clk := newTestManager(90 * time.Second)
	tok, err := m.Mint(ctx, "class-1")
	require.NoError(t, err)
	clk.Set(tok.ExpiresAt)
	assert.NoError(t, m.ValidateAndConsume(ctx, tok.ID, "class-1"), "valid at exactly ExpiresAt")

	m, store, clk := newTestManager(90 * time.Second)
	tok, err = m.Mint(ctx, "class-1")
	require.NoError(t, err)
	clk.Advance(91 * time.Second)
	assert.ErrorIs(t, m.ValidateAndConsume(ctx, tok.ID, "class-1"), ErrTokenExpired)
	assert.Equal(t, 0, store.Len(), "expired token is removed by the failed validation")
	assert.ErrorIs(t, m.ValidateAndConsume(ctx, tok.ID, "class-1"), ErrTokenNotFound)
}

func TestConsumeClassMismatchKeepsToken(t *testing.T) {
	m, store, _ := newTestManager(time.Minute)
	ctx := context.Background()
	tok, err := m.Mint(ctx, "class-1")
	require.NoError(t, err)

	assert.ErrorIs(t, m.ValidateAndConsume(ctx, tok.ID, "class-2"), ErrTokenClassMismatch)
	assert.Equal(t, 1, store.Len())
	assert.NoError(t, m.ValidateAndConsume(ctx, tok.ID, "class-1"))
}

func TestConsumeUnknownAndEmpty(t *testing.T) {
	m, _, _ := newTestManager(time.Minute)
	ctx := context.Background()
	assert.ErrorIs(t, m.ValidateAndConsume(ctx, "nope", "class-1"), ErrTokenNotFound)
	assert.ErrorIs(t, m.ValidateAndConsume(ctx, "", "class-1"), ErrTokenNotFound)
}

func TestMintPurgesExpiredTokens(t *testing.T) {
	m, store, clk := newTestManager(time.Minute)
	ctx := context.Background()
	_, err := m.Mint(ctx, "class-1")
	require.NoError(t, err)
	_, err = m.Mint(ctx, "class-2")
	require.NoError(t, err)

	clk.Advance(2 * time.Minute)
	fresh, err := m.Mint(ctx, "class-1")
	require.NoError(t, err)

	assert.Equal(t, 1, store.Len())
	assert.NoError(t, m.ValidateAndConsume(ctx, fresh.ID, "class-1"))
}

func TestPurge(t *testing.T) {
	m, store, clk := newTestManager(time.Minute)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := m.Mint(ctx, "class-1")
		require.NoError(t, err)
	}
	clk.Advance(time.Minute + time.Second)

	n, err := m.Purge(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
	assert.Equal(t, 0, store.Len())
}
