package harness

import (
	"context"
	"fmt"
	"time"
)

const defaultPollInterval = 100 * time.Millisecond

// WaitOutcome is the result of a bounded poll. It is always returned, never
// panicked or thrown, so that callers can assert on partial state after a
// timeout. Snapshot holds whatever the capture buffer contained when the wait
// ended, which makes a timed-out wait diagnosable without a re-run.
type WaitOutcome struct {
	Satisfied bool
	Elapsed   time.Duration
	Snapshot  []Effect

	// Err is set only when the predicate returned the same class of failure
	// on every poll through the full window; a predicate that errors on some
	// polls but not others is treated as "not yet satisfied".
	Err error
}

func (w WaitOutcome) String() string {
	if w.Satisfied {
		return fmt.Sprintf("satisfied after %v (%d effects captured)", w.Elapsed, len(w.Snapshot))
	}
	if w.Err != nil {
		return fmt.Sprintf("failed after %v: %s (%d effects captured)", w.Elapsed, w.Err, len(w.Snapshot))
	}
	return fmt.Sprintf("timed out after %v (%d effects captured)", w.Elapsed, len(w.Snapshot))
}

// AwaitOptions configures one wait.
type AwaitOptions struct {
	// Timeout bounds the whole wait. Required: there is no unbounded wait
	// anywhere in the harness.
	Timeout time.Duration

	// PollInterval defaults to 100ms, an acceptable latency/CPU trade-off at
	// integration-test timescales.
	PollInterval time.Duration

	// Buffer, if set, is snapshotted into the outcome when the wait ends.
	Buffer *CaptureBuffer
}

// Await repeatedly evaluates predicate at the poll interval until it returns
// true, the timeout elapses, or ctx is cancelled. The system under test
// processes requests asynchronously with no completion acknowledgment, so
// polling is the only observation mechanism available from outside it.
//
// A predicate error is treated as "not yet satisfied" and retried; only if
// every evaluation in the window errored is the final error surfaced in the
// outcome, distinguishing a service that is permanently broken from one that
// is still warming up.
func Await(ctx context.Context, opts AwaitOptions, predicate func() (bool, error)) WaitOutcome {
	interval := opts.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}

	start := time.Now()
	deadline := time.NewTimer(opts.Timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	finish := func(satisfied bool, err error) WaitOutcome {
		out := WaitOutcome{Satisfied: satisfied, Elapsed: time.Since(start), Err: err}
		if opts.Buffer != nil {
			out.Snapshot = opts.Buffer.Snapshot()
		}
		return out
	}

	everSucceeded := false
	var lastErr error
	for {
		ok, err := predicate()
		if err == nil {
			everSucceeded = true
			lastErr = nil
			if ok {
				return finish(true, nil)
			}
		} else {
			lastErr = err
		}

		select {
		case <-ctx.Done():
			return finish(false, ctx.Err())
		case <-deadline.C:
			if !everSucceeded && lastErr != nil {
				return finish(false, lastErr)
			}
			return finish(false, nil)
		case <-ticker.C:
		}
	}
}

// AwaitEffectCount waits until the buffer holds at least n effects.
func AwaitEffectCount(ctx context.Context, buf *CaptureBuffer, n int, timeout time.Duration) WaitOutcome {
	return Await(ctx, AwaitOptions{Timeout: timeout, Buffer: buf}, func() (bool, error) {
		return buf.Len() >= n, nil
	})
}

// AwaitSubjectEffects waits until at least n effects attributed to the given
// subject have been captured.
func AwaitSubjectEffects(ctx context.Context, buf *CaptureBuffer, subject string, n int, timeout time.Duration) WaitOutcome {
	return Await(ctx, AwaitOptions{Timeout: timeout, Buffer: buf}, func() (bool, error) {
		return len(buf.ForSubject(subject)) >= n, nil
	})
}
