package msgtests

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/stretchr/testify/require"
	"gopkg.in/launchdarkly/go-sdk-common.v2/ldvalue"

	"github.com/courierlabs/messaging-test-harness/framework"
	"github.com/courierlabs/messaging-test-harness/harness"
	"github.com/courierlabs/messaging-test-harness/isolation"
	"github.com/courierlabs/messaging-test-harness/service"
)

const (
	awaitEffectTimeout = 15 * time.Second
	awaitStateTimeout  = 10 * time.Second
)

func optionalMS(ms int) ldvalue.OptionalInt {
	return ldvalue.NewOptionalInt(ms)
}

// Env is everything the suite content needs to exercise the harness.
type Env struct {
	Client    *ProbeClient
	Buffer    *harness.CaptureBuffer
	Sequencer *harness.Sequencer
	Isolation *isolation.Manager
	Fixtures  isolation.Fixtures

	lock        sync.Mutex
	lastOutcome *harness.WaitOutcome
}

func (e *Env) noteOutcome(out harness.WaitOutcome) {
	e.lock.Lock()
	e.lastOutcome = &out
	e.lock.Unlock()
}

// LastOutcome returns the most recent WaitOutcome observed during the run,
// if any. The CLI includes it in the diagnostic when setup or teardown fails,
// so that a contaminated run can be diagnosed without re-running.
func (e *Env) LastOutcome() *harness.WaitOutcome {
	e.lock.Lock()
	defer e.lock.Unlock()
	return e.lastOutcome
}

// T represents a test or subtest in the suite.
//
// It implements the same basic functionality as Go's testing.T, but in an
// environment that is outside of the Go test runner, with per-test debug
// logging replayed on failure. The assert and require packages accept a *T
// wherever they take a *testing.T.
type T struct {
	context *framework.Context
	env     *Env
}

// Errorf is called by assertions to log a test failure. It does not cause an
// immediate exit.
func (t *T) Errorf(format string, args ...interface{}) {
	t.context.Errorf(format, args...)
}

// FailNow is called by assertions when a test should fail and immediately
// exit. The methods in the require package call FailNow.
func (t *T) FailNow() {
	t.context.FailNow()
}

// Debug logs output that is replayed by the test logger at the end of the
// test, normally only when the test failed.
func (t *T) Debug(format string, args ...interface{}) {
	t.context.Debug(format, args...)
}

// Group runs a named group of tests. Groups do not reset per-test state;
// only Run does.
func (t *T) Group(name string, action func(*T)) {
	t.context.Run(name, func(c *framework.Context) {
		action(&T{context: c, env: t.env})
	})
}

// Run runs one test. Before the body executes, the sequencer clears the
// capture buffer and resets the namespace to the declared fixtures; the test
// slot is released on every exit path. A failed reset is suite-fatal.
func (t *T) Run(name string, action func(*T)) {
	t.context.Run(name, func(c *framework.Context) {
		ctx := context.Background()
		if err := t.env.Sequencer.BeginTest(ctx); err != nil {
			c.FatalSuiteError(err)
		}
		defer t.env.Sequencer.EndTest()
		action(&T{context: c, env: t.env})
	})
}

// Send submits an inbound message, failing the test immediately on a
// transport-level error.
func (t *T) Send(msg service.Inbound) {
	t.Debug("send: subject=%q text=%q", msg.Subject, msg.Text)
	require.NoError(t, t.env.Client.Send(msg))
}

// RequireEffects waits until at least n effects have been captured, failing
// the test with the partial snapshot if the wait times out.
func (t *T) RequireEffects(n int, timeout time.Duration) []harness.Effect {
	out := harness.AwaitEffectCount(context.Background(), t.env.Buffer, n, timeout)
	t.env.noteOutcome(out)
	t.requireSatisfied(out, fmt.Sprintf("waiting for %d captured effects", n))
	return out.Snapshot
}

// RequireSubjectEffects waits until at least n effects attributed to subject
// have been captured, failing with the partial snapshot on timeout.
func (t *T) RequireSubjectEffects(subject string, n int, timeout time.Duration) []harness.Effect {
	out := harness.AwaitSubjectEffects(context.Background(), t.env.Buffer, subject, n, timeout)
	t.env.noteOutcome(out)
	t.requireSatisfied(out, fmt.Sprintf("waiting for %d captured effects for subject %q", n, subject))
	return t.env.Buffer.ForSubject(subject)
}

// AwaitState polls the state probe until the predicate accepts the snapshot.
// A probe transport error mid-poll counts as "not ready yet", so a server
// that is momentarily unreachable does not immediately fail the test.
func (t *T) AwaitState(subject string, describe string, pred func(service.StateSnapshot) bool) service.StateSnapshot {
	var last service.StateSnapshot
	out := harness.Await(context.Background(),
		harness.AwaitOptions{Timeout: awaitStateTimeout, Buffer: t.env.Buffer},
		func() (bool, error) {
			snapshot, err := t.env.Client.State(subject)
			if err != nil {
				return false, err
			}
			last = snapshot
			return pred(snapshot), nil
		})
	t.env.noteOutcome(out)
	t.requireSatisfied(out, fmt.Sprintf("waiting for state of %q: %s", subject, describe))
	return last
}

func (t *T) requireSatisfied(out harness.WaitOutcome, what string) {
	if out.Satisfied {
		return
	}
	var lines []string
	lines = append(lines, fmt.Sprintf("%s: %s", what, out))
	for _, e := range out.Snapshot {
		lines = append(lines, fmt.Sprintf("  captured #%d subject=%q payload=%q", e.Seq, e.Subject, e.Payload))
	}
	t.Errorf("%s", strings.Join(lines, "\n"))
	t.FailNow()
}
