package msgtests

import (
	"context"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/courierlabs/messaging-test-harness/harness"
	"github.com/courierlabs/messaging-test-harness/service"
)

func DoCaptureTests(t *T) {
	t.Run("snapshots grow monotonically across an exchange", func(t *T) {
		subject := "subj-capture-1"
		t.Send(service.Inbound{Subject: subject, Text: "one"})
		first := t.RequireEffects(1, awaitEffectTimeout)

		t.Send(service.Inbound{Subject: subject, Text: "two"})
		second := t.RequireEffects(2, awaitEffectTimeout)

		require.True(t, len(second) >= len(first))
		for i, e := range first {
			assert.Equal(t, e.Seq, second[i].Seq, "earlier snapshot must be a prefix of the later one")
		}
	})

	t.Run("sequence numbers restart from one after a reset", func(t *T) {
		// BeginTest cleared the buffer before this body ran.
		t.Send(service.Inbound{Subject: "subj-capture-2", Text: "hello"})
		effects := t.RequireEffects(1, awaitEffectTimeout)
		assert.Equal(t, 1, effects[0].Seq)
	})

	t.Run("a timed-out wait reports the partial capture", func(t *T) {
		subject := "subj-capture-3"
		t.Send(service.Inbound{Subject: subject, Text: "only one"})
		t.RequireSubjectEffects(subject, 1, awaitEffectTimeout)

		// Deliberately wait for more effects than will ever arrive.
		out := harness.AwaitEffectCount(context.Background(), t.env.Buffer, 5, 500*time.Millisecond)
		t.env.noteOutcome(out)
		assert.False(t, out.Satisfied)
		assert.NoError(t, out.Err)
		require.Len(t, out.Snapshot, 1, "outcome must carry what was captured, not just a timeout")
		assert.Contains(t, out.Snapshot[0].Payload, "only one")
	})

	t.Run("delayed processing is observable before the effect arrives", func(t *T) {
		subject := "subj-capture-4"
		t.Send(service.Inbound{Subject: subject, Text: "slow", DelayMS: optionalMS(700)})

		// The inbound message is persisted synchronously, but the reply has
		// not been produced yet.
		state := t.AwaitState(subject, "inbound persisted", func(s service.StateSnapshot) bool {
			return s.MessageCount >= 1
		})
		assert.False(t, state.Onboarded, "onboarding happens during asynchronous processing")

		t.RequireSubjectEffects(subject, 1, awaitEffectTimeout)
	})
}
