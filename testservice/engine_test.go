package testservice

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"gopkg.in/launchdarkly/go-sdk-common.v2/ldvalue"

	"github.com/courierlabs/messaging-test-harness/harness"
	"github.com/courierlabs/messaging-test-harness/isolation"
	"github.com/courierlabs/messaging-test-harness/service"
	"github.com/courierlabs/messaging-test-harness/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func optionalInt(n int) ldvalue.OptionalInt {
	return ldvalue.NewOptionalInt(n)
}

func newTestEngine(t *testing.T) (*Engine, *harness.CaptureBuffer) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "engine.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	buf := harness.NewCaptureBuffer()
	engine := New(st, isolation.NewNamespace(), zerolog.Nop())
	engine.OnOutboundEffect(buf.Record)
	t.Cleanup(func() { engine.Close() })
	return engine, buf
}

func awaitEffects(t *testing.T, buf *harness.CaptureBuffer, subject string, n int) []harness.Effect {
	t.Helper()
	out := harness.AwaitSubjectEffects(context.Background(), buf, subject, n, 15*time.Second)
	require.True(t, out.Satisfied, "expected %d effects for %q: %s", n, subject, out)
	return buf.ForSubject(subject)
}

func TestFirstContactProducesWelcome(t *testing.T) {
	engine, buf := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, engine.HandleInbound(ctx, service.Inbound{Subject: "ann", Text: "hello"}))
	effects := awaitEffects(t, buf, "ann", 1)

	assert.Contains(t, effects[0].Payload, WelcomePhrase)
	assert.Contains(t, effects[0].Payload, "ann")

	snapshot, err := engine.QueryState(ctx, "ann")
	require.NoError(t, err)
	assert.True(t, snapshot.Onboarded)
	assert.Equal(t, 2, snapshot.MessageCount)
	assert.Equal(t, 1, snapshot.SessionCount.OrElse(0))
}

func TestLaterMessagesAreAcknowledged(t *testing.T) {
	engine, buf := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, engine.HandleInbound(ctx, service.Inbound{Subject: "ann", Text: "hello"}))
	awaitEffects(t, buf, "ann", 1)

	require.NoError(t, engine.HandleInbound(ctx, service.Inbound{Subject: "ann", Text: "how are you"}))
	effects := awaitEffects(t, buf, "ann", 2)

	assert.NotContains(t, effects[1].Payload, WelcomePhrase)
	assert.Contains(t, effects[1].Payload, "how are you")

	snapshot, err := engine.QueryState(ctx, "ann")
	require.NoError(t, err)
	assert.Equal(t, 4, snapshot.MessageCount)
	assert.Equal(t, 1, snapshot.SessionCount.OrElse(0), "a known subject does not open a new session")
}

func TestHistoryOrderAndDirections(t *testing.T) {
	engine, buf := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, engine.HandleInbound(ctx, service.Inbound{Subject: "ann", Text: "hi"}))
	awaitEffects(t, buf, "ann", 1)

	snapshot, err := engine.QueryState(ctx, "ann")
	require.NoError(t, err)
	require.Len(t, snapshot.History, 2)
	assert.Equal(t, "in", snapshot.History[0].Direction)
	assert.Equal(t, "hi", snapshot.History[0].Body)
	assert.Equal(t, "out", snapshot.History[1].Direction)
	assert.True(t, snapshot.History[0].Seq < snapshot.History[1].Seq)
}

func TestDelayedProcessing(t *testing.T) {
	engine, buf := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, engine.HandleInbound(ctx, service.Inbound{
		Subject: "ann", Text: "slow", DelayMS: optionalInt(300),
	}))

	// The inbound message is visible immediately; the reply is not.
	snapshot, err := engine.QueryState(ctx, "ann")
	require.NoError(t, err)
	assert.Equal(t, 1, snapshot.MessageCount)
	assert.False(t, snapshot.Onboarded)

	awaitEffects(t, buf, "ann", 1)
}

func TestQueryStateUnknownSubject(t *testing.T) {
	engine, _ := newTestEngine(t)
	_, err := engine.QueryState(context.Background(), "nobody")
	assert.True(t, errors.Is(err, service.ErrUnknownSubject))
}

func TestHandleInboundRequiresSubject(t *testing.T) {
	engine, _ := newTestEngine(t)
	err := engine.HandleInbound(context.Background(), service.Inbound{Text: "anonymous"})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "subject"))
}

func TestCloseDrainsInFlightWork(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "engine.db"))
	require.NoError(t, err)
	defer st.Close()

	buf := harness.NewCaptureBuffer()
	engine := New(st, isolation.NewNamespace(), zerolog.Nop())
	engine.OnOutboundEffect(buf.Record)

	require.NoError(t, engine.HandleInbound(context.Background(), service.Inbound{
		Subject: "ann", Text: "hello", DelayMS: optionalInt(100),
	}))
	require.NoError(t, engine.Close())

	assert.Equal(t, 1, len(buf.ForSubject("ann")), "close must wait for the in-flight reply")
}

func TestSubjectsDoNotCrossContaminate(t *testing.T) {
	engine, buf := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, engine.HandleInbound(ctx, service.Inbound{Subject: "ann", Text: "from ann"}))
	require.NoError(t, engine.HandleInbound(ctx, service.Inbound{Subject: "bob", Text: "from bob"}))
	awaitEffects(t, buf, "ann", 1)
	awaitEffects(t, buf, "bob", 1)

	ann, err := engine.QueryState(ctx, "ann")
	require.NoError(t, err)
	bob, err := engine.QueryState(ctx, "bob")
	require.NoError(t, err)

	for _, entry := range ann.History {
		assert.NotContains(t, entry.Body, "from bob")
	}
	for _, entry := range bob.History {
		assert.NotContains(t, entry.Body, "from ann")
	}
}
