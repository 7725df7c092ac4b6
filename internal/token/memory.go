package token

import (
	"context"
	"errors"
	"sync"
	"time"
)

// MemoryStore keeps tokens in a sync.Map. Each stored value is a distinct
// *Token, so CompareAndDelete on the pointer is the per-id atomic step.
type MemoryStore struct {
	tokens sync.Map // id -> *Token
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Insert(_ context.Context, t Token) error {
	if t.ID == "" {
		return errors.New("token id required")
	}
	tok := t
	if _, loaded := s.tokens.LoadOrStore(t.ID, &tok); loaded {
		return errors.New("token id collision")
	}
	return nil
}

func (s *MemoryStore) ValidateAndConsume(_ context.Context, id, classID string, now time.Time) error {
	v, ok := s.tokens.Load(id)
	if !ok {
		return ErrTokenNotFound
	}
	tok := v.(*Token)
	if tok.ClassID != classID {
		return ErrTokenClassMismatch
	}
	if !s.tokens.CompareAndDelete(id, tok) {
		// lost the race to another consumer
		return ErrTokenNotFound
	}
	if tok.Expired(now) {
		return ErrTokenExpired
	}
	return nil
}

func (s *MemoryStore) PurgeExpired(_ context.Context, now time.Time) (int64, error) {
	var n int64
	s.tokens.Range(func(key, value any) bool {
		if value.(*Token).Expired(now) && s.tokens.CompareAndDelete(key, value) {
			n++
		}
		return true
	})
	return n, nil
}

// Len counts outstanding tokens.
func (s *MemoryStore) Len() int {
	n := 0
	s.tokens.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
