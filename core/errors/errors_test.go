package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKind_String(t *testing.T) {
	assert.Equal(t, "setup_error", KindSetup.String())
	assert.Equal(t, "relationship_resolution_miss", KindResolutionMiss.String())
	assert.Equal(t, "unknown", Kind(99).String())
}

func TestKind_Fatal(t *testing.T) {
	assert.True(t, KindSetup.Fatal())
	assert.True(t, KindInvalidPath.Fatal())

	for _, k := range []Kind{KindFileRead, KindExtraction, KindSymbolPersist, KindResolutionMiss,
		KindEmbeddingDegraded, KindVectorBackendUnavailable, KindVersionControlUnavailable} {
		assert.False(t, k.Fatal(), k.String())
	}
}

func TestError_IsAndUnwrap(t *testing.T) {
	cause := errors.New("permission denied")
	err := fmt.Errorf("process: %w", WithPath(KindFileRead, "read", "/tmp/a.py", cause))

	assert.True(t, errors.Is(err, ErrFileRead))
	assert.False(t, errors.Is(err, ErrExtraction))
	assert.True(t, errors.Is(err, cause))
	assert.Equal(t, KindFileRead, KindOf(err))
	assert.False(t, IsFatal(err))
	assert.Contains(t, err.Error(), "/tmp/a.py")
}

func TestIsFatal(t *testing.T) {
	assert.False(t, IsFatal(nil))
	assert.True(t, IsFatal(New(KindInvalidPath, "index", nil)))
}

func TestCalculateDelay(t *testing.T) {
	policy := &RetryPolicy{InitialDelay: 100 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2}

	assert.Equal(t, 100*time.Millisecond, CalculateDelay(0, policy))
	assert.Equal(t, 400*time.Millisecond, CalculateDelay(2, policy))
	assert.Equal(t, time.Second, CalculateDelay(10, policy))
	assert.Equal(t, time.Duration(0), CalculateDelay(3, nil))
}

func TestAddJitter_Bounds(t *testing.T) {
	for i := 0; i < 50; i++ {
		d := AddJitter(time.Second, 0.1)
		assert.GreaterOrEqual(t, d, 900*time.Millisecond)
		assert.LessOrEqual(t, d, 1100*time.Millisecond)
	}
	assert.Equal(t, time.Second, AddJitter(time.Second, 0))
}

func TestRetry_SucceedsAfterFailures(t *testing.T) {
	policy := &RetryPolicy{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond}

	calls := 0
	err := Retry(context.Background(), policy, func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetry_StopsOnFatal(t *testing.T) {
	policy := &RetryPolicy{MaxAttempts: 5, InitialDelay: time.Millisecond}

	calls := 0
	err := Retry(context.Background(), policy, func() error {
		calls++
		return New(KindSetup, "embed", errors.New("no api key"))
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetry_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	policy := &RetryPolicy{MaxAttempts: 5, InitialDelay: time.Second}
	calls := 0
	err := Retry(ctx, policy, func() error {
		calls++
		return errors.New("boom")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}
