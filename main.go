package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/courierlabs/messaging-test-harness/framework"
	"github.com/courierlabs/messaging-test-harness/harness"
	"github.com/courierlabs/messaging-test-harness/isolation"
	"github.com/courierlabs/messaging-test-harness/msgtests"
	"github.com/courierlabs/messaging-test-harness/store"
	"github.com/courierlabs/messaging-test-harness/testservice"
)

const defaultPort = 8111

func main() {
	os.Exit(run(os.Args))
}

func run(args []string) int {
	var params commandParams
	if !params.Read(args) {
		return 1
	}

	cfg, err := loadConfig(params.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %s\n", err)
		return 1
	}
	if params.port != 0 {
		cfg.Port = params.port
	}
	if params.storePath != "" {
		cfg.StorePath = params.storePath
	}

	level := zerolog.WarnLevel
	if params.debugAll {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).With().Timestamp().Logger()

	st, err := store.Open(cfg.StorePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Store error: %s\n", err)
		return 1
	}
	defer st.Close()

	namespace, reserved := cfg.namespaces()
	iso, err := isolation.NewManager(st, namespace, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Namespace error: %s\n", err)
		return 1
	}

	buffer := harness.NewCaptureBuffer()
	engine := testservice.New(st, namespace, logger)
	engine.OnOutboundEffect(buffer.Record)
	defer engine.Close()

	server := harness.NewServerLifecycle(cfg.Port, engine, iso, logger)
	sequencer := harness.NewSequencer(iso, server, buffer, cfg.Fixtures, reserved, logger)

	ctx := context.Background()
	env := &msgtests.Env{
		Client:    msgtests.NewProbeClient(server.BaseURL(), nil),
		Buffer:    buffer,
		Sequencer: sequencer,
		Isolation: iso,
		Fixtures:  cfg.Fixtures,
	}

	if err := sequencer.SuiteSetup(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Suite setup failed: %s\n", err)
		printLastOutcome(env)
		_ = sequencer.SuiteTeardown(ctx)
		return 1
	}

	framework.PrintFilterDescription(os.Stdout, params.filters)
	fmt.Println("Running test suite")

	testLogger := &framework.ConsoleTestLogger{
		DebugOutputOnFailure: params.debug || params.debugAll,
		DebugOutputOnSuccess: params.debugAll,
	}

	results := msgtests.RunTestSuite(env, params.filters.AsFilter, testLogger)

	teardownErr := sequencer.SuiteTeardown(ctx)

	fmt.Println()
	framework.PrintResults(results)
	if teardownErr != nil {
		fmt.Fprintf(os.Stderr, "Suite teardown failed: %s\n", teardownErr)
		printLastOutcome(env)
		return 1
	}
	if !results.OK() {
		fmt.Printf("\nTo re-run the failed tests:\n  %s\n", rerunCommand(params, results))
		return 1
	}
	return 0
}

func printLastOutcome(env *msgtests.Env) {
	out := env.LastOutcome()
	if out == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "Last wait outcome: %s\n", out)
	for _, e := range out.Snapshot {
		fmt.Fprintf(os.Stderr, "  captured #%d subject=%q payload=%q\n", e.Seq, e.Subject, e.Payload)
	}
}
