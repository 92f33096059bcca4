package msgtests

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/courierlabs/messaging-test-harness/harness"
	"github.com/courierlabs/messaging-test-harness/isolation"
	"github.com/courierlabs/messaging-test-harness/store"
	"github.com/courierlabs/messaging-test-harness/testservice"
)

// The suite reserves this port for the duration of the run.
const suiteTestPort = 8147

// TestFullSuite runs the entire suite end to end: real listener, real store,
// real asynchronous engine. This is the harness's own acceptance test.
func TestFullSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("full suite run is not a short test")
	}

	st, err := store.Open(filepath.Join(t.TempDir(), "suite.db"))
	require.NoError(t, err)
	defer st.Close()

	namespace := isolation.NewNamespace()
	iso, err := isolation.NewManager(st, namespace, nil)
	require.NoError(t, err)

	fixtures := isolation.Fixtures{Subjects: []isolation.SubjectFixture{
		{ID: "fixture-ann", Onboarded: true, Messages: []string{"an earlier message"}},
	}}

	buffer := harness.NewCaptureBuffer()
	engine := testservice.New(st, namespace, zerolog.Nop())
	engine.OnOutboundEffect(buffer.Record)
	defer engine.Close()

	server := harness.NewServerLifecycle(suiteTestPort, engine, iso, zerolog.Nop())
	sequencer := harness.NewSequencer(iso, server, buffer, fixtures, nil, zerolog.Nop())

	ctx := context.Background()
	require.NoError(t, sequencer.SuiteSetup(ctx))
	defer func() {
		assert.NoError(t, sequencer.SuiteTeardown(ctx))
	}()

	env := &Env{
		Client:    NewProbeClient(server.BaseURL(), nil),
		Buffer:    buffer,
		Sequencer: sequencer,
		Isolation: iso,
		Fixtures:  fixtures,
	}

	results := RunTestSuite(env, nil, nil)

	for _, failure := range results.Failures {
		for _, ferr := range failure.Errors {
			t.Errorf("suite test %q failed: %s", failure.TestID, ferr)
		}
	}
	assert.True(t, results.OK())
	assert.NotEmpty(t, results.Tests)
	assert.NoError(t, results.SuiteAbortErr)
}
