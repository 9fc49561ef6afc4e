package retry

import (
	"context"
	"errors"
	"fmt"
	"robotfleet/internal/apperrors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingSleep captures requested delays without waiting.
type recordingSleep struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *recordingSleep) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.delays = append(r.delays, d)
	r.mu.Unlock()
	return ctx.Err()
}

func (r *recordingSleep) recorded() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.delays...)
}

type fakeMetrics struct {
	mu        sync.Mutex
	attempts  int
	successes int
	retries   int
	cancelled int
	exhausted int
}

func (m *fakeMetrics) RecordAttempt(_ context.Context, _ string, success bool, _ float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts++
	if success {
		m.successes++
	}
}

func (m *fakeMetrics) RecordRetry(context.Context, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.retries++
}

func (m *fakeMetrics) RecordCancelled(context.Context, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelled++
}

func (m *fakeMetrics) RecordExhausted(context.Context, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exhausted++
}

func TestExecute_AlwaysFailingMakesMaxRetriesPlusOneAttempts(t *testing.T) {
	t.Parallel()

	for _, maxRetries := range []int{0, 1, 2, 5} {
		t.Run(fmt.Sprintf("maxRetries=%d", maxRetries), func(t *testing.T) {
			t.Parallel()
			rec := &recordingSleep{}
			ex := NewExecutor(WithSleep(rec.sleep))

			calls := 0
			_, err := Execute(context.Background(), ex, Policy{MaxRetries: maxRetries, RetryDelay: 100 * time.Millisecond}, "op",
				func(context.Context) (int, error) {
					calls++
					return 0, fmt.Errorf("HTTP 500: attempt %d", calls)
				})

			require.Error(t, err)
			assert.Equal(t, maxRetries+1, calls)
			assert.ErrorIs(t, err, apperrors.ErrTransport)
			assert.Equal(t, fmt.Sprintf("HTTP 500: attempt %d", calls), err.Error(), "last error message is surfaced")
			assert.Len(t, rec.recorded(), maxRetries)
		})
	}
}

func TestExecute_BackoffDoubles(t *testing.T) {
	t.Parallel()
	rec := &recordingSleep{}
	ex := NewExecutor(WithSleep(rec.sleep))

	_, err := Execute(context.Background(), ex, Policy{MaxRetries: 4, RetryDelay: time.Second}, "op",
		func(context.Context) (struct{}, error) {
			return struct{}{}, errors.New("down")
		})

	require.Error(t, err)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second}, rec.recorded())
}

func TestExecute_SucceedsAfterRetry(t *testing.T) {
	t.Parallel()
	rec := &recordingSleep{}
	m := &fakeMetrics{}
	ex := NewExecutor(WithSleep(rec.sleep), WithMetrics(m))

	calls := 0
	got, err := Execute(context.Background(), ex, Policy{MaxRetries: 2, RetryDelay: 500 * time.Millisecond}, "op",
		func(context.Context) (string, error) {
			calls++
			if calls == 1 {
				return "", errors.New("flaky")
			}
			return "ok", nil
		})

	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 2, calls)
	assert.Equal(t, []time.Duration{500 * time.Millisecond}, rec.recorded())
	assert.Equal(t, 2, m.attempts)
	assert.Equal(t, 1, m.successes)
	assert.Equal(t, 1, m.retries)
	assert.Zero(t, m.exhausted)
}

func TestExecute_CancelledBeforeFirstAttempt(t *testing.T) {
	t.Parallel()
	rec := &recordingSleep{}
	m := &fakeMetrics{}
	ex := NewExecutor(WithSleep(rec.sleep), WithMetrics(m))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	_, err := Execute(ctx, ex, DefaultPolicy(), "op", func(ctx context.Context) (int, error) {
		calls++
		return 0, ctx.Err()
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls, "exactly one attempt is made")
	assert.True(t, apperrors.IsCancelled(err))
	assert.Equal(t, "Request cancelled", err.Error())
	assert.Empty(t, rec.recorded(), "no retry sleep after cancellation")
	assert.Equal(t, 1, m.cancelled)
}

func TestExecute_CancelledDuringBackoff(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ex := NewExecutor(WithSleep(func(ctx context.Context, d time.Duration) error {
		cancel()
		return Sleep(ctx, d)
	}))

	calls := 0
	_, err := Execute(ctx, ex, Policy{MaxRetries: 3, RetryDelay: time.Hour}, "op", func(context.Context) (int, error) {
		calls++
		return 0, errors.New("HTTP 502: bad gateway")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.True(t, apperrors.IsCancelled(err))
}

func TestExecute_WrappedContextCanceledIsNotRetried(t *testing.T) {
	t.Parallel()
	rec := &recordingSleep{}
	ex := NewExecutor(WithSleep(rec.sleep))

	calls := 0
	_, err := Execute(context.Background(), ex, DefaultPolicy(), "op", func(context.Context) (int, error) {
		calls++
		return 0, fmt.Errorf("Get \"http://robots\": %w", context.Canceled)
	})

	assert.Equal(t, 1, calls)
	assert.True(t, apperrors.IsCancelled(err))
}

func TestExecute_NilExecutorUsesRealSleep(t *testing.T) {
	t.Parallel()

	calls := 0
	start := time.Now()
	_, err := Execute(context.Background(), nil, Policy{MaxRetries: 1, RetryDelay: 20 * time.Millisecond}, "op",
		func(context.Context) (int, error) {
			calls++
			return 0, errors.New("nope")
		})

	require.Error(t, err)
	assert.Equal(t, 2, calls)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestPolicy_Defaults(t *testing.T) {
	t.Parallel()
	assert.Equal(t, Policy{MaxRetries: 2, RetryDelay: time.Second}, DefaultPolicy())
	assert.Equal(t, 3, DefaultPolicy().Attempts())
	assert.Equal(t, 1, Policy{MaxRetries: -3}.Attempts())
	assert.Equal(t, DefaultRetryDelay, Policy{}.withDefaults().RetryDelay)
}

func TestSleep_ReturnsOnCancel(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Sleep(ctx, time.Hour), context.Canceled)
	assert.NoError(t, Sleep(context.Background(), time.Millisecond))
}
