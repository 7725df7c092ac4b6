// Package token issues and burns the single-use nonces encoded in class QR codes.
package token

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"qrattend/internal/errs"
)

// DefaultValidity is how long a freshly minted token can be redeemed.
const DefaultValidity = 300 * time.Second

// nonceBytes gives 256 bits of entropy per token id.
const nonceBytes = 32

var (
	ErrTokenNotFound      = errs.New(errs.ErrInvalidState, "token not found")
	ErrTokenClassMismatch = errs.New(errs.ErrInvalidState, "token issued for another class")
	ErrTokenExpired       = errs.New(errs.ErrInvalidState, "token expired")
)

// Token authorizes one scan for one class until ExpiresAt.
type Token struct {
	ID        string    `json:"token_id"`
	ClassID   string    `json:"class_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the token is unusable at now. A token is still
// valid at exactly ExpiresAt.
func (t Token) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// Store is the backend holding outstanding tokens.
//
// ValidateAndConsume must run lookup, checks and removal as one atomic step
// per token id: concurrent callers presenting the same id get exactly one
// nil error and ErrTokenNotFound for everyone else. Checks are applied in the
// order not found, class mismatch, expired. An expired token is removed by the
// failed call; a mismatched one is left alone.
type Store interface {
	Insert(ctx context.Context, t Token) error
	ValidateAndConsume(ctx context.Context, id, classID string, now time.Time) error
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

// NewNonce returns a hex-encoded random identifier from crypto/rand.
func NewNonce() (string, error) {
	b := make([]byte, nonceBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("read random nonce: %w", err)
	}
	return hex.EncodeToString(b), nil
}
