package pipeline

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"github.com/leadscout/leadscout/internal/models"
)

// RetryPolicy retries transient failures with exponential backoff. Only
// errors for which models.IsRetryable is true are retried.
type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// NoRetry runs an operation exactly once
var NoRetry = RetryPolicy{MaxAttempts: 1}

// Do runs op until it succeeds, fails permanently, runs out of attempts or
// ctx is done. The last error is returned.
func (p RetryPolicy) Do(ctx context.Context, name string, op func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialDelay
	b.MaxInterval = p.MaxDelay
	if b.MaxInterval < b.InitialInterval {
		b.MaxInterval = b.InitialInterval
	}
	b.MaxElapsedTime = 0
	b.Reset()

	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		err := op(ctx)
		if err == nil {
			return nil
		}
		if !models.IsRetryable(err) {
			return backoff.Permanent(err)
		}
		if attempt < attempts {
			logrus.WithFields(logrus.Fields{
				"operation": name,
				"attempt":   attempt,
				"error":     err,
			}).Warn("Transient failure, retrying")
		}
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(b, uint64(attempts-1)), ctx))
}
