package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errFlaky = errors.New("flaky")

func fast(n int) *Retrier {
	return New(WithMaxAttempts(n), WithInitialDelay(time.Millisecond), WithMaxDelay(time.Millisecond))
}

func TestDo_RetriesUntilSuccess(t *testing.T) {
	var retries []int
	calls := 0
	r := New(WithMaxAttempts(3), WithInitialDelay(time.Millisecond),
		WithOnRetry(func(attempt int, _ error, _ time.Duration) { retries = append(retries, attempt) }))

	err := r.Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return Retryable(errFlaky)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, retries)
}

func TestDo_ExhaustionUnwraps(t *testing.T) {
	calls := 0
	err := fast(2).Do(context.Background(), func(context.Context) error {
		calls++
		return Retryable(errFlaky)
	})
	assert.Equal(t, 2, calls)
	assert.Same(t, errFlaky, err)
}

func TestDo_PermanentStopsImmediately(t *testing.T) {
	calls := 0
	err := fast(5).Do(context.Background(), func(context.Context) error {
		calls++
		return Permanent(errFlaky)
	})
	assert.Equal(t, 1, calls)
	assert.Same(t, errFlaky, err)
}

func TestDo_PlainErrorIsNotRetriedByDefault(t *testing.T) {
	calls := 0
	err := fast(5).Do(context.Background(), func(context.Context) error {
		calls++
		return errFlaky
	})
	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, errFlaky)
}

func TestDo_RetryIfOverridesDefault(t *testing.T) {
	calls := 0
	r := New(WithMaxAttempts(3), WithInitialDelay(time.Millisecond),
		WithRetryIf(func(err error) bool { return errors.Is(err, errFlaky) }))
	err := r.Do(context.Background(), func(context.Context) error {
		calls++
		return errFlaky
	})
	assert.Equal(t, 3, calls)
	assert.ErrorIs(t, err, errFlaky)
}

func TestDo_CancelledContextReturnsLastError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := New(WithMaxAttempts(5), WithInitialDelay(time.Hour))

	calls := 0
	err := r.Do(ctx, func(context.Context) error {
		calls++
		cancel()
		return Retryable(errFlaky)
	})
	assert.Equal(t, 1, calls)
	assert.True(t, IsRetryable(err))
}

func TestDoWithData(t *testing.T) {
	calls := 0
	got, err := DoWithData(context.Background(), fast(3), func(context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", Retryable(errFlaky)
		}
		return "digest", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "digest", got)
}

func TestLLMRetrier_MinimumTwoAttempts(t *testing.T) {
	assert.Equal(t, 2, LLMRetrier(1).MaxAttempts())
	assert.Equal(t, 4, LLMRetrier(4).MaxAttempts())
}

func TestRetryable_Nil(t *testing.T) {
	assert.NoError(t, Retryable(nil))
	assert.NoError(t, Permanent(nil))
}
