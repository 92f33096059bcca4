package msgtests

import (
	"context"
	"errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/courierlabs/messaging-test-harness/service"
)

func DoIsolationTests(t *T) {
	t.Run("declared fixtures are visible through the probe", func(t *T) {
		for _, fixture := range t.env.Fixtures.Subjects {
			state, err := t.env.Client.State(fixture.ID)
			require.NoError(t, err, "seeded subject %q should be probeable", fixture.ID)
			assert.Equal(t, fixture.Onboarded, state.Onboarded)
			assert.Equal(t, len(fixture.Messages), state.MessageCount)
		}
	})

	t.Run("purge removes a subject's records entirely", func(t *T) {
		subject := "subj-purge-1"
		t.Send(service.Inbound{Subject: subject, Text: "hello"})
		t.RequireSubjectEffects(subject, 1, awaitEffectTimeout)

		require.NoError(t, t.env.Isolation.Purge(context.Background()))

		_, err := t.env.Client.State(subject)
		assert.True(t, errors.Is(err, service.ErrUnknownSubject),
			"probe after purge should report not-found, got %v", err)

		count, err := t.env.Isolation.RecordCount(context.Background())
		require.NoError(t, err)
		assert.Zero(t, count, "no namespace-scoped rows may survive a purge")
	})

	t.Run("purge is idempotent", func(t *T) {
		subject := "subj-purge-2"
		t.Send(service.Inbound{Subject: subject, Text: "hello"})
		t.RequireSubjectEffects(subject, 1, awaitEffectTimeout)

		ctx := context.Background()
		require.NoError(t, t.env.Isolation.Purge(ctx))
		require.NoError(t, t.env.Isolation.Purge(ctx), "purging an already-empty namespace must not error")

		count, err := t.env.Isolation.RecordCount(ctx)
		require.NoError(t, err)
		assert.Zero(t, count)
	})

	t.Run("targeted user reset removes only that subject", func(t *T) {
		t.Send(service.Inbound{Subject: "subj-reset-gone", Text: "bye"})
		t.Send(service.Inbound{Subject: "subj-reset-stays", Text: "hi"})
		t.RequireSubjectEffects("subj-reset-gone", 1, awaitEffectTimeout)
		t.RequireSubjectEffects("subj-reset-stays", 1, awaitEffectTimeout)

		require.NoError(t, t.env.Client.ResetUser("subj-reset-gone"))

		_, err := t.env.Client.State("subj-reset-gone")
		assert.True(t, errors.Is(err, service.ErrUnknownSubject))

		state, err := t.env.Client.State("subj-reset-stays")
		require.NoError(t, err)
		assert.GreaterOrEqual(t, state.MessageCount, 1)
	})

	t.Run("runs are independent of prior run ordering", func(t *T) {
		// This body relies on the per-test purge+reseed: whatever earlier
		// tests wrote, the namespace holds exactly the fixtures again.
		expected := 0
		for _, fixture := range t.env.Fixtures.Subjects {
			expected += 1 + len(fixture.Messages)
		}
		count, err := t.env.Isolation.RecordCount(context.Background())
		require.NoError(t, err)
		assert.Equal(t, expected, count,
			"record count at test start must depend only on the declared fixtures")
	})
}
