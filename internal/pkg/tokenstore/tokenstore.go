package tokenstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Purpose namespaces tokens so one flow can never redeem another flow's token.
type Purpose string

const (
	PurposeVerifyEmail   Purpose = "verify-email"
	PurposeLogin         Purpose = "login"
	PurposeResetPassword Purpose = "reset-password"
)

// ErrNotFound covers never issued, expired and already consumed tokens alike.
var ErrNotFound = errors.New("token not found")

// Store maps short-lived opaque tokens to a subject user id.
type Store interface {
	// Issue stores a fresh token for subject that expires after ttl.
	Issue(ctx context.Context, purpose Purpose, subject uint, ttl time.Duration) (string, error)
	// Peek returns the subject without consuming the token.
	Peek(ctx context.Context, purpose Purpose, token string) (uint, error)
	// Redeem atomically deletes the token and returns its subject.
	Redeem(ctx context.Context, purpose Purpose, token string) (uint, error)
	// Consume atomically deletes the token only if it still belongs to subject.
	Consume(ctx context.Context, purpose Purpose, token string, subject uint) error
}

func key(purpose Purpose, token string) string {
	return fmt.Sprintf("token:%s:%s", purpose, token)
}

func newToken() string {
	return uuid.NewString()
}

func validPurpose(p Purpose) bool {
	switch p {
	case PurposeVerifyEmail, PurposeLogin, PurposeResetPassword:
		return true
	default:
		return false
	}
}

func checkIssue(purpose Purpose, subject uint, ttl time.Duration) error {
	if !validPurpose(purpose) {
		return fmt.Errorf("unknown token purpose %q", purpose)
	}
	if subject == 0 {
		return errors.New("token subject is required")
	}
	if ttl <= 0 {
		return errors.New("token ttl must be positive")
	}
	return nil
}
