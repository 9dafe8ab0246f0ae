// Package retry runs operations with bounded retries and jittered
// exponential backoff for transient failures.
package retry

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/eddiefleurent/condor_backtest/internal/logging"
)

// Config controls retry attempts and timing.
type Config struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Timeout        time.Duration // overall budget across all attempts, 0 = none
}

// DefaultConfig is used by callers that have no specific requirements.
var DefaultConfig = Config{
	MaxRetries:     3,
	InitialBackoff: 1 * time.Second,
	MaxBackoff:     30 * time.Second,
	Timeout:        2 * time.Minute,
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Do calls fn until it succeeds, returns a non-transient error, or the
// attempts are used up. The name is only used for logging.
func Do[T any](
	ctx context.Context,
	cfg Config,
	logger logrus.FieldLogger,
	name string,
	fn func(ctx context.Context) (T, error),
) (T, error) {
	var zero T
	logger = logging.OrDiscard(logger)

	opCtx := ctx
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		opCtx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	var lastErr error
	backoff := cfg.InitialBackoff

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			return zero, fmt.Errorf("operation canceled: %w", ctx.Err())
		}
		if opCtx.Err() != nil {
			return zero, fmt.Errorf("%s timed out after %v: %w", name, cfg.Timeout, opCtx.Err())
		}

		result, err := fn(opCtx)
		if err == nil {
			if attempt > 0 {
				logger.WithField("attempt", attempt+1).Infof("%s succeeded after retry", name)
			}
			return result, nil
		}

		lastErr = err
		log := logger.WithFields(logrus.Fields{"attempt": attempt + 1, "error": err})

		if !IsTransient(err) || attempt == cfg.MaxRetries {
			log.Warnf("%s failed", name)
			break
		}

		log.WithField("backoff", backoff).Warnf("%s failed with transient error, retrying", name)
		timer := time.NewTimer(backoff)
		select {
		case <-timer.C:
			backoff = nextBackoff(backoff, cfg.MaxBackoff)
		case <-opCtx.Done():
			timer.Stop()
			if ctx.Err() != nil {
				return zero, fmt.Errorf("operation canceled during backoff: %w", ctx.Err())
			}
			return zero, fmt.Errorf("%s timed out during backoff: %w", name, opCtx.Err())
		}
	}

	return zero, fmt.Errorf("%s failed after %d attempts: %w", name, cfg.MaxRetries+1, lastErr)
}

func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	backoff := time.Duration(float64(current) * 1.5)
	if maxBackoff > 0 && backoff > maxBackoff {
		backoff = maxBackoff
	}

	maxJitter := int64(backoff / 4)
	if maxJitter > 0 {
		if jitterVal, err := rand.Int(rand.Reader, big.NewInt(maxJitter)); err == nil {
			backoff += time.Duration(jitterVal.Int64())
		}
	}

	return backoff
}

var transientPatterns = []string{
	"timeout",
	"connection refused",
	"connection reset",
	"temporary failure",
	"server error",
	"rate limit",
	"429", // HTTP 429 Too Many Requests
	"502", // HTTP 502 Bad Gateway
	"503", // HTTP 503 Service Unavailable
	"504", // HTTP 504 Gateway Timeout
	"network",
	"dns",
	"tcp",
}

// IsTransient reports whether err looks like a failure that may clear up
// on its own. Errors wrapped with Permanent and context cancellation never are.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var perm *permanentError
	if errors.As(err, &perm) || errors.Is(err, context.Canceled) {
		return false
	}

	errStr := strings.ToLower(err.Error())
	for _, pattern := range transientPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}
