package retry

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/killallgit/dataset-importer/pkg/yolo"
)

// Policy bounds an exponential backoff loop
type Policy struct {
	MaxAttempts int
	Initial     time.Duration
	Max         time.Duration
	// Retryable classifies errors; nil means IsRetryable
	Retryable func(error) bool
	// Name is used in log lines
	Name string
}

// DefaultPolicy returns the policy used for object store calls
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 4,
		Initial:     500 * time.Millisecond,
		Max:         10 * time.Second,
	}
}

// Permanent marks err as not worth retrying
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return backoff.Permanent(err)
}

// IsRetryable reports whether err may succeed on another attempt.
// Context errors and archive/dataset validation errors never do.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if _, ok := yolo.KindOf(err); ok {
		return false
	}
	var permanent *backoff.PermanentError
	return !errors.As(err, &permanent)
}

// Do runs op until it succeeds, returns a non-retryable error, the attempts
// are exhausted or ctx is done. The last error is returned.
func Do(ctx context.Context, p Policy, op func(ctx context.Context) error) error {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	if p.Initial <= 0 {
		p.Initial = DefaultPolicy().Initial
	}
	if p.Max < p.Initial {
		p.Max = p.Initial
	}
	retryable := p.Retryable
	if retryable == nil {
		retryable = IsRetryable
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.Initial
	eb.MaxInterval = p.Max
	eb.MaxElapsedTime = 0

	b := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(p.MaxAttempts-1)), ctx)

	attempt := 0
	operation := func() error {
		attempt++
		err := op(ctx)
		if err == nil {
			return nil
		}
		var permanent *backoff.PermanentError
		if errors.As(err, &permanent) {
			return err
		}
		if !retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		if p.Name != "" {
			log.Printf("[WARN] %s failed (attempt %d/%d), retrying in %s: %v", p.Name, attempt, p.MaxAttempts, wait.Round(time.Millisecond), err)
		}
	}

	return backoff.RetryNotify(operation, b, notify)
}
