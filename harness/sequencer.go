package harness

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/courierlabs/messaging-test-harness/isolation"
)

// Sequencer orchestrates the suite-level and per-test setup and teardown
// hooks, in a fixed order:
//
//	once per suite:   validate namespaces -> purge -> seed -> start server
//	before each test: clear capture buffer -> purge -> reseed
//	once after suite: purge -> stop server
//
// It also enforces that tests execute strictly sequentially. They share one
// mutable namespace and one capture buffer; there is no per-test locking
// anywhere else, so correctness rests entirely on this guarantee.
type Sequencer struct {
	iso      *isolation.Manager
	server   *ServerLifecycle
	buffer   *CaptureBuffer
	fixtures isolation.Fixtures
	reserved []isolation.Namespace
	logger   zerolog.Logger

	testLock sync.Mutex
}

// NewSequencer builds a sequencer. reserved lists every namespace the host
// has configured, including the manager's own; overlapping markers are
// rejected at suite start.
func NewSequencer(
	iso *isolation.Manager,
	server *ServerLifecycle,
	buffer *CaptureBuffer,
	fixtures isolation.Fixtures,
	reserved []isolation.Namespace,
	logger zerolog.Logger,
) *Sequencer {
	return &Sequencer{
		iso:      iso,
		server:   server,
		buffer:   buffer,
		fixtures: fixtures,
		reserved: reserved,
		logger:   logger.With().Str("component", "sequencer").Logger(),
	}
}

// SuiteSetup prepares the environment for the whole suite. Any failure is
// fatal: a contaminated store or an unbound listener invalidates every test
// that would follow.
func (s *Sequencer) SuiteSetup(ctx context.Context) error {
	namespaces := append([]isolation.Namespace{s.iso.Namespace()}, s.reserved...)
	if err := isolation.ValidateNamespaces(dedupe(namespaces)...); err != nil {
		return fmt.Errorf("suite setup: %w", err)
	}
	if err := s.iso.Purge(ctx); err != nil {
		return fmt.Errorf("suite setup: %w", err)
	}
	if err := s.iso.Seed(ctx, s.fixtures); err != nil {
		return fmt.Errorf("suite setup: %w", err)
	}
	if err := s.server.Start(ctx); err != nil {
		return fmt.Errorf("suite setup: %w", err)
	}
	s.logger.Info().Str("namespace", s.iso.Namespace().String()).Msg("suite environment ready")
	return nil
}

// BeginTest acquires the single test slot and resets per-test state: the
// capture buffer is cleared and the namespace is purged and reseeded so the
// test starts from the declared fixtures regardless of what earlier tests
// wrote. Returns ErrOverlap if another test still holds the slot.
func (s *Sequencer) BeginTest(ctx context.Context) error {
	if !s.testLock.TryLock() {
		return ErrOverlap
	}
	s.buffer.Clear()
	if err := s.iso.Purge(ctx); err != nil {
		s.testLock.Unlock()
		return fmt.Errorf("per-test reset: %w", err)
	}
	if err := s.iso.Seed(ctx, s.fixtures); err != nil {
		s.testLock.Unlock()
		return fmt.Errorf("per-test reset: %w", err)
	}
	return nil
}

// EndTest releases the test slot. Must be deferred by the caller so that it
// runs on every exit path, including assertion failures.
func (s *Sequencer) EndTest() {
	s.testLock.Unlock()
}

// SuiteTeardown purges the namespace and stops the server. Both steps always
// run, even if the first fails; errors are aggregated. Callers defer this
// from suite setup so that teardown happens on every exit path.
func (s *Sequencer) SuiteTeardown(ctx context.Context) error {
	var errs []error
	if err := s.iso.Purge(ctx); err != nil {
		errs = append(errs, fmt.Errorf("suite teardown: %w", err))
	}
	if err := s.server.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("suite teardown: %w", err))
	}
	if len(errs) == 0 {
		s.logger.Info().Msg("suite environment torn down")
	}
	return errors.Join(errs...)
}

func dedupe(namespaces []isolation.Namespace) []isolation.Namespace {
	seen := make(map[isolation.Namespace]bool, len(namespaces))
	var out []isolation.Namespace
	for _, ns := range namespaces {
		if !seen[ns] {
			seen[ns] = true
			out = append(out, ns)
		}
	}
	return out
}
