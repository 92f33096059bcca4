package harness

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAwaitReturnsImmediatelyWhenAlreadySatisfied(t *testing.T) {
	out := Await(context.Background(), AwaitOptions{Timeout: time.Second},
		func() (bool, error) { return true, nil })

	assert.True(t, out.Satisfied)
	assert.NoError(t, out.Err)
	assert.Less(t, out.Elapsed, 500*time.Millisecond)
}

func TestAwaitSeesConditionBecomeTrue(t *testing.T) {
	calls := 0
	out := Await(context.Background(),
		AwaitOptions{Timeout: 5 * time.Second, PollInterval: 10 * time.Millisecond},
		func() (bool, error) {
			calls++
			return calls >= 3, nil
		})

	assert.True(t, out.Satisfied)
	assert.GreaterOrEqual(t, calls, 3)
}

func TestAwaitIsBoundedByTimeout(t *testing.T) {
	const timeout = 300 * time.Millisecond
	const interval = 50 * time.Millisecond

	start := time.Now()
	out := Await(context.Background(),
		AwaitOptions{Timeout: timeout, PollInterval: interval},
		func() (bool, error) { return false, nil })

	assert.False(t, out.Satisfied)
	assert.NoError(t, out.Err)
	// The wait must return within timeout + one poll interval.
	assert.Less(t, time.Since(start), timeout+interval+100*time.Millisecond)
	assert.GreaterOrEqual(t, out.Elapsed, timeout-interval)
}

func TestAwaitTreatsIntermittentErrorsAsNotReady(t *testing.T) {
	calls := 0
	out := Await(context.Background(),
		AwaitOptions{Timeout: 2 * time.Second, PollInterval: 10 * time.Millisecond},
		func() (bool, error) {
			calls++
			if calls < 3 {
				return false, errors.New("probe unreachable")
			}
			return true, nil
		})

	assert.True(t, out.Satisfied)
	assert.NoError(t, out.Err, "an error that stops recurring must not surface")
}

func TestAwaitSurfacesPersistentError(t *testing.T) {
	sentinel := errors.New("permanently broken")
	out := Await(context.Background(),
		AwaitOptions{Timeout: 200 * time.Millisecond, PollInterval: 20 * time.Millisecond},
		func() (bool, error) { return false, sentinel })

	assert.False(t, out.Satisfied)
	require.Error(t, out.Err)
	assert.ErrorIs(t, out.Err, sentinel)
}

func TestAwaitErrorAfterSuccessIsStillATimeout(t *testing.T) {
	calls := 0
	out := Await(context.Background(),
		AwaitOptions{Timeout: 200 * time.Millisecond, PollInterval: 20 * time.Millisecond},
		func() (bool, error) {
			calls++
			if calls == 1 {
				return false, nil // at least one clean evaluation
			}
			return false, errors.New("flaky")
		})

	assert.False(t, out.Satisfied)
	assert.NoError(t, out.Err, "a predicate that ever evaluated cleanly is not permanently broken")
}

func TestAwaitHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	out := Await(ctx, AwaitOptions{Timeout: 10 * time.Second, PollInterval: 20 * time.Millisecond},
		func() (bool, error) { return false, nil })

	assert.False(t, out.Satisfied)
	assert.ErrorIs(t, out.Err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second, "cancellation must not wait out the timeout")
}

func TestAwaitFillsSnapshotFromBuffer(t *testing.T) {
	buf := NewCaptureBuffer()
	buf.Record("s1", "partial result")

	out := AwaitEffectCount(context.Background(), buf, 5, 100*time.Millisecond)

	assert.False(t, out.Satisfied)
	require.Len(t, out.Snapshot, 1)
	assert.Equal(t, "partial result", out.Snapshot[0].Payload)
	assert.Contains(t, out.String(), "timed out")
	assert.Contains(t, out.String(), "1 effects captured")
}

func TestAwaitSubjectEffects(t *testing.T) {
	buf := NewCaptureBuffer()
	go func() {
		time.Sleep(30 * time.Millisecond)
		buf.Record("s1", "one")
		buf.Record("s2", "noise")
		buf.Record("s1", "two")
	}()

	out := AwaitSubjectEffects(context.Background(), buf, "s1", 2, 2*time.Second)
	assert.True(t, out.Satisfied)
}
