package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/npezzotti/go-directmessages/internal/database"
)

const (
	DefaultStoreTimeout = 5 * time.Second
	DefaultStoreRetries = 2
)

// retrier bounds every store call with a per-attempt timeout and repeats
// the call while it keeps timing out.
type retrier struct {
	log     *log.Logger
	timeout time.Duration
	retries int
}

func newRetrier(logger *log.Logger, timeout time.Duration, retries int) *retrier {
	if timeout <= 0 {
		timeout = DefaultStoreTimeout
	}
	if retries < 0 {
		retries = 0
	}

	return &retrier{log: logger, timeout: timeout, retries: retries}
}

func isTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, database.ErrTimeout)
}

func (r *retrier) do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	var err error
	for attempt := 1; attempt <= r.retries+1; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, r.timeout)
		err = fn(attemptCtx)
		cancel()

		if err == nil {
			return nil
		}
		if !isTimeout(err) {
			return fmt.Errorf("%s: %w", op, err)
		}
		if ctx.Err() != nil {
			break
		}

		r.log.Printf("%s: attempt %d timed out: %v", op, attempt, err)
	}

	return fmt.Errorf("%s: %w: %v", op, ErrPersistenceTimeout, err)
}
