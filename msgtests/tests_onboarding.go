package msgtests

import (
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/courierlabs/messaging-test-harness/service"
	"github.com/courierlabs/messaging-test-harness/testservice"
)

func DoOnboardingTests(t *T) {
	t.Run("first contact gets a welcome message", func(t *T) {
		t.Send(service.Inbound{Subject: "subj-onboard-1", Text: "hello"})

		effects := t.RequireSubjectEffects("subj-onboard-1", 1, awaitEffectTimeout)
		require.Len(t, effects, 1)
		assert.Contains(t, effects[0].Payload, testservice.WelcomePhrase)

		state := t.AwaitState("subj-onboard-1", "onboarded flag set", func(s service.StateSnapshot) bool {
			return s.Onboarded
		})
		assert.True(t, state.Onboarded)
		assert.Equal(t, 2, state.MessageCount, "history should hold the inbound message and the reply")
	})

	t.Run("later messages get an acknowledgment, not a welcome", func(t *T) {
		subject := "subj-onboard-2"
		t.Send(service.Inbound{Subject: subject, Text: "first"})
		t.RequireSubjectEffects(subject, 1, awaitEffectTimeout)

		t.Send(service.Inbound{Subject: subject, Text: "second"})
		effects := t.RequireSubjectEffects(subject, 2, awaitEffectTimeout)

		require.Len(t, effects, 2)
		assert.Contains(t, effects[0].Payload, testservice.WelcomePhrase)
		assert.NotContains(t, effects[1].Payload, testservice.WelcomePhrase)
		assert.Contains(t, effects[1].Payload, "second")
	})

	t.Run("history probe reflects the full exchange", func(t *T) {
		subject := "subj-onboard-3"
		t.Send(service.Inbound{Subject: subject, Text: "hi there"})
		t.RequireSubjectEffects(subject, 1, awaitEffectTimeout)

		t.AwaitState(subject, "reply persisted", func(s service.StateSnapshot) bool {
			return s.MessageCount >= 2
		})

		history, err := t.env.Client.History(subject)
		require.NoError(t, err)
		require.Len(t, history, 2)
		assert.Equal(t, "in", history[0].Direction)
		assert.Equal(t, "hi there", history[0].Body)
		assert.Equal(t, "out", history[1].Direction)
		assert.Contains(t, history[1].Body, testservice.WelcomePhrase)
	})

	t.Run("two subjects are attributed independently", func(t *T) {
		// Both sends are in flight at once from the service's perspective;
		// processing is asynchronous on the service side.
		t.Send(service.Inbound{Subject: "subj-pair-a", Text: "from a"})
		t.Send(service.Inbound{Subject: "subj-pair-b", Text: "from b"})

		effectsA := t.RequireSubjectEffects("subj-pair-a", 1, awaitEffectTimeout)
		effectsB := t.RequireSubjectEffects("subj-pair-b", 1, awaitEffectTimeout)
		require.Len(t, effectsA, 1)
		require.Len(t, effectsB, 1)
		assert.Contains(t, effectsA[0].Payload, "subj-pair-a")
		assert.Contains(t, effectsB[0].Payload, "subj-pair-b")

		stateA := t.AwaitState("subj-pair-a", "onboarded", func(s service.StateSnapshot) bool { return s.Onboarded })
		stateB := t.AwaitState("subj-pair-b", "onboarded", func(s service.StateSnapshot) bool { return s.Onboarded })

		// No cross-contamination: each history holds only its own exchange.
		assert.Equal(t, 2, stateA.MessageCount)
		assert.Equal(t, 2, stateB.MessageCount)
		for _, entry := range stateA.History {
			assert.NotContains(t, entry.Body, "from b")
		}
		for _, entry := range stateB.History {
			assert.NotContains(t, entry.Body, "from a")
		}
	})
}
