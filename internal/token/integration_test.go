package token

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qrattend/internal/store"
)

// backendContract runs the Store semantics every backend must honour.
func backendContract(t *testing.T, s Store) {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	live, err := NewNonce()
	require.NoError(t, err)
	require.NoError(t, s.Insert(ctx, Token{ID: live, ClassID: "c1", ExpiresAt: now.Add(time.Minute)}))

	assert.ErrorIs(t, s.ValidateAndConsume(ctx, live, "c2", now), ErrTokenClassMismatch)
	assert.NoError(t, s.ValidateAndConsume(ctx, live, "c1", now))
	assert.ErrorIs(t, s.ValidateAndConsume(ctx, live, "c1", now), ErrTokenNotFound)

	stale, err := NewNonce()
	require.NoError(t, err)
	require.NoError(t, s.Insert(ctx, Token{ID: stale, ClassID: "c1", ExpiresAt: now.Add(time.Minute)}))
	assert.ErrorIs(t, s.ValidateAndConsume(ctx, stale, "c1", now.Add(91*time.Second)), ErrTokenExpired)
	assert.ErrorIs(t, s.ValidateAndConsume(ctx, stale, "c1", now), ErrTokenNotFound)
}

func TestMemoryStoreContract(t *testing.T) {
	backendContract(t, NewMemoryStore())
}

func TestRedisStoreContract(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })
	backendContract(t, NewRedisStore(client, "test:attendance:token:"))
}

func TestPostgresStoreContract(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	db, err := sql.Open("pgx", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, store.Migrate(context.Background(), db))

	backendContract(t, NewPostgresStore(db))
}
