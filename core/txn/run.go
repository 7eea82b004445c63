package txn

import (
	"errors"
	"fmt"
	"time"

	sagaerrors "github.com/calounx/sagas-sub011/core/errors"
	"github.com/calounx/sagas-sub011/internal/logging"
)

// Run calls fn inside a new level. It commits when fn returns nil and rolls
// back otherwise, returning fn's error. A panicking fn is rolled back and the
// panic re-raised.
func (m *Manager) Run(fn func() error) error {
	_, err := Run(m, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// Run is Manager.Run for functions that produce a value.
func Run[T any](m *Manager, fn func() (T, error)) (value T, err error) {
	if err = m.Begin(); err != nil {
		return value, err
	}
	finished := false
	defer func() {
		if finished {
			return
		}
		if r := recover(); r != nil {
			if rbErr := m.Rollback(); rbErr != nil {
				logging.Error("rollback after panic failed", "error", rbErr.Error())
			}
			panic(r)
		}
	}()

	value, err = fn()
	if err != nil {
		finished = true
		if rbErr := m.Rollback(); rbErr != nil {
			return value, errors.Join(err, rbErr)
		}
		return value, err
	}
	finished = true
	if err = m.Commit(); err != nil {
		var zero T
		return zero, err
	}
	return value, nil
}

// RunWithRetry is Run, retried while fn fails with a transient lock or
// deadlock error. Attempt n waits baseDelay * 2^(n-1) before the next one.
// Other failures are returned immediately.
func (m *Manager) RunWithRetry(fn func() error, maxAttempts int, baseDelay time.Duration) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err = m.Run(fn); err == nil {
			return nil
		}
		if !sagaerrors.IsTransient(err) {
			return err
		}
		if attempt == maxAttempts {
			break
		}
		delay := baseDelay << (attempt - 1)
		logging.RetryScheduled(attempt, delay, err)
		m.sleep(delay)
	}
	return sagaerrors.NewTransaction("retry", fmt.Errorf("gave up after %d attempts: %w", maxAttempts, err))
}
