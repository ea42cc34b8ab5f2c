// Package ratelimit enforces the per-user daily character budget.
//
// The counter lives in the ephemeral store under "ratelimit:<userID>" and is
// written with create-if-absent semantics. Only the first commit within a
// window sets the stored total, later commits leave it untouched, so the
// limiter under-counts users who make several requests per window.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/speech-service/internal/core"
)

// Defaults of the character budget.
const (
	DefaultMaxCharacters = 50000
	DefaultTTL           = 24 * time.Hour

	keyPrefix = "ratelimit:"
)

// ErrUserIDEmpty indicates a budget operation without a user.
var ErrUserIDEmpty = errors.New("user id cannot be empty")

// Config holds the budget size and the counter lifetime.
type Config struct {
	MaxCharacters int
	TTL           time.Duration
}

// Decision is the outcome of CheckAndReserve.
type Decision struct {
	Allowed  bool
	NewTotal int
}

// Limiter checks and records per-user character usage.
type Limiter struct {
	store core.EphemeralStore
	cfg   Config
	log   *logger.Logger
}

// New creates a Limiter. Zero config values fall back to the defaults.
func New(store core.EphemeralStore, cfg Config, log *logger.Logger) *Limiter {
	if cfg.MaxCharacters <= 0 {
		cfg.MaxCharacters = DefaultMaxCharacters
	}

	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}

	return &Limiter{store: store, cfg: cfg, log: log}
}

// Key returns the ephemeral-store key of a user's counter.
func Key(userID string) string {
	return keyPrefix + userID
}

// CheckAndReserve computes the total the user would reach with increment
// more characters and whether it stays within budget. Nothing is written.
func (l *Limiter) CheckAndReserve(ctx context.Context, userID string, increment int) (Decision, error) {
	if userID == "" {
		return Decision{Allowed: false, NewTotal: 0}, ErrUserIDEmpty
	}

	current := l.current(ctx, userID)
	newTotal := current + increment

	return Decision{Allowed: newTotal <= l.cfg.MaxCharacters, NewTotal: newTotal}, nil
}

// Commit records newTotal for the user unless a counter already exists in
// the current window.
func (l *Limiter) Commit(ctx context.Context, userID string, newTotal int) error {
	if userID == "" {
		return ErrUserIDEmpty
	}

	_, err := l.store.SetIfAbsent(ctx, Key(userID), []byte(strconv.Itoa(newTotal)), l.cfg.TTL)
	if err != nil {
		return fmt.Errorf("failed to commit character count for user '%s': %w: %w", userID, core.ErrStoreUnavailable, err)
	}

	return nil
}

func (l *Limiter) current(ctx context.Context, userID string) int {
	raw, found, err := l.store.Get(ctx, Key(userID))
	if err != nil {
		l.log.Warn("Failed to read character count for user %s, assuming 0: %v", userID, err)

		return 0
	}

	if !found {
		return 0
	}

	count, err := strconv.Atoi(string(raw))
	if err != nil {
		l.log.Warn("Ignoring malformed character count for user %s: %v", userID, err)

		return 0
	}

	return count
}
