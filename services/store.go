package services

import (
	"context"
	"database/sql/driver"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// Store wraps the gorm handle with the retry policy every service shares.
type Store struct {
	db       *gorm.DB
	attempts int
	// initialInterval is the first backoff delay; tests shrink it.
	initialInterval time.Duration
}

func NewStore(db *gorm.DB, attempts int) *Store {
	if attempts < 1 {
		attempts = 1
	}
	return &Store{db: db, attempts: attempts, initialInterval: 50 * time.Millisecond}
}

func (s *Store) DB() *gorm.DB {
	return s.db
}

// Tx runs fn in a single transaction. Business errors returned by fn roll the
// transaction back and are passed through untouched; connectivity failures
// are retried with exponential backoff and then reported as
// StoreUnavailableError.
func (s *Store) Tx(ctx context.Context, op string, fn func(tx *gorm.DB) error) error {
	return s.retry(ctx, op, func() error {
		return s.db.WithContext(ctx).Transaction(fn)
	})
}

// Read runs a non-transactional query under the same retry policy.
func (s *Store) Read(ctx context.Context, op string, fn func(db *gorm.DB) error) error {
	return s.retry(ctx, op, func() error {
		return fn(s.db.WithContext(ctx))
	})
}

func (s *Store) retry(ctx context.Context, op string, fn func() error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = s.initialInterval
	policy.MaxElapsedTime = 0

	var lastErr error
	tries := 0
	err := backoff.Retry(func() error {
		tries++
		err := fn()
		if err == nil {
			return nil
		}
		if !isTransient(err) {
			return backoff.Permanent(err)
		}
		lastErr = err
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(policy, uint64(s.attempts-1)), ctx))

	if err == nil {
		return nil
	}
	if lastErr != nil && errors.Is(err, lastErr) {
		storeErrors.WithLabelValues(op).Inc()
		return &StoreUnavailableError{Op: op, Attempts: tries, Err: lastErr}
	}
	return err
}

// isTransient reports whether err looks like a lost or refused connection
// rather than a query or business failure.
func isTransient(err error) bool {
	if errors.Is(err, driver.ErrBadConn) {
		return true
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection reset")
}

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
