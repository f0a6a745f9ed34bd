package adapter

import (
	"context"
	"database/sql/driver"
	"errors"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sethvargo/go-retry"
)

// RetryPolicy bounds how often a transient failure is retried.
type RetryPolicy struct {
	// Attempts is the number of retries after the first try. Zero disables retrying.
	Attempts uint64
	// Base is the first backoff delay; later delays double.
	Base time.Duration
}

// DefaultRetryPolicy is used by adapters that do not set one.
var DefaultRetryPolicy = RetryPolicy{Attempts: 3, Base: 100 * time.Millisecond}

// Postgres SQLSTATEs that say nothing about the statement itself.
var transientCodes = map[string]bool{
	"40001": true, // serialization_failure
	"40P01": true, // deadlock_detected
	"53300": true, // too_many_connections
	"57P01": true, // admin_shutdown
	"57P02": true, // crash_shutdown
	"57P03": true, // cannot_connect_now
}

// IsTransient reports whether err is a connection-class failure worth
// retrying. Semantic errors (bad SQL, failed casts) are never transient.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return strings.HasPrefix(pgErr.Code, "08") || transientCodes[pgErr.Code]
	}
	if pgconn.SafeToRetry(err) || pgconn.Timeout(err) {
		return true
	}

	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// Do runs fn, retrying it with exponential backoff while it fails with a
// transient error.
func Do(ctx context.Context, p RetryPolicy, logger *slog.Logger, fn func(context.Context) error) error {
	if p.Attempts == 0 {
		return fn(ctx)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	base := p.Base
	if base <= 0 {
		base = DefaultRetryPolicy.Base
	}

	attempt := 0
	backoff := retry.WithMaxRetries(p.Attempts, retry.NewExponential(base))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		err := fn(ctx)
		if err != nil && IsTransient(err) {
			logger.Debug("transient failure, retrying", slog.Int("attempt", attempt), slog.String("error", err.Error()))
			return retry.RetryableError(err)
		}
		return err
	})
}
