// Package testservice contains the reference messaging engine the suite runs
// against. It is a real, asynchronous implementation of the service contract
// backed by the shared store, not a canned stub: inbound messages are
// persisted, processed on their own goroutine, and answered with an outbound
// effect that only the capture buffer can observe.
package testservice

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gopkg.in/launchdarkly/go-sdk-common.v2/ldvalue"

	"github.com/courierlabs/messaging-test-harness/isolation"
	"github.com/courierlabs/messaging-test-harness/service"
	"github.com/courierlabs/messaging-test-harness/store"
)

// WelcomePhrase starts every first-contact reply.
const WelcomePhrase = "Welcome aboard"

const closeTimeout = 10 * time.Second

// Engine implements service.Service over the SQLite store.
type Engine struct {
	store     *store.Store
	namespace isolation.Namespace
	logger    zerolog.Logger

	effectLock sync.RWMutex
	onEffect   service.EffectFunc

	workers sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
}

func New(st *store.Store, ns isolation.Namespace, logger zerolog.Logger) *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		store:     st,
		namespace: ns,
		logger:    logger.With().Str("component", "testservice").Logger(),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// OnOutboundEffect registers the outbound effect callback. The harness wires
// the capture buffer's Record here before any traffic flows.
func (e *Engine) OnOutboundEffect(fn service.EffectFunc) {
	e.effectLock.Lock()
	e.onEffect = fn
	e.effectLock.Unlock()
}

func (e *Engine) emit(subject, payload string) {
	e.effectLock.RLock()
	fn := e.onEffect
	e.effectLock.RUnlock()
	if fn != nil {
		fn(subject, payload)
	}
}

// HandleInbound accepts one message, persists it, and schedules asynchronous
// processing. The reply is produced later on a worker goroutine; callers get
// no synchronous acknowledgment of completion.
func (e *Engine) HandleInbound(ctx context.Context, msg service.Inbound) error {
	if msg.Subject == "" {
		return errors.New("inbound message requires a subject")
	}

	firstContact, err := e.recordInbound(ctx, msg)
	if err != nil {
		return err
	}

	e.workers.Add(1)
	go e.process(msg, firstContact)
	return nil
}

func (e *Engine) recordInbound(ctx context.Context, msg service.Inbound) (firstContact bool, err error) {
	_, err = e.store.GetSubject(ctx, msg.Subject)
	switch {
	case errors.Is(err, store.ErrNotFound):
		firstContact = true
	case err != nil:
		return false, fmt.Errorf("handle inbound: %w", err)
	}

	ns := e.namespace.String()
	if err := e.store.EnsureSubject(ctx, msg.Subject, ns); err != nil {
		return false, fmt.Errorf("handle inbound: %w", err)
	}
	if firstContact {
		if err := e.store.AppendSession(ctx, uuid.NewString(), msg.Subject, ns); err != nil {
			return false, fmt.Errorf("handle inbound: %w", err)
		}
	}
	if _, err := e.store.AppendMessage(ctx, uuid.NewString(), msg.Subject, ns, "in", msg.Text); err != nil {
		return false, fmt.Errorf("handle inbound: %w", err)
	}
	return firstContact, nil
}

func (e *Engine) process(msg service.Inbound, firstContact bool) {
	defer e.workers.Done()

	if delay := msg.DelayMS.OrElse(0); delay > 0 {
		select {
		case <-time.After(time.Duration(delay) * time.Millisecond):
		case <-e.ctx.Done():
			return
		}
	}

	reply := fmt.Sprintf("Got your message: %s", msg.Text)
	if firstContact {
		reply = fmt.Sprintf("%s, %s!", WelcomePhrase, msg.Subject)
		if err := e.store.SetOnboarded(e.ctx, msg.Subject); err != nil {
			e.logger.Error().Err(err).Str("subject", msg.Subject).Msg("could not mark subject onboarded")
			return
		}
	}

	if _, err := e.store.AppendMessage(e.ctx, uuid.NewString(), msg.Subject, e.namespace.String(), "out", reply); err != nil {
		e.logger.Error().Err(err).Str("subject", msg.Subject).Msg("could not persist outbound reply")
		return
	}

	e.logger.Debug().Str("subject", msg.Subject).Str("reply", reply).Msg("outbound effect")
	e.emit(msg.Subject, reply)
}

// QueryState returns the same view of a subject that the engine itself uses:
// the onboarding flag, message count, and full history.
func (e *Engine) QueryState(ctx context.Context, subject string) (service.StateSnapshot, error) {
	sub, err := e.store.GetSubject(ctx, subject)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return service.StateSnapshot{}, service.ErrUnknownSubject
		}
		return service.StateSnapshot{}, fmt.Errorf("query state: %w", err)
	}

	msgs, err := e.store.ListMessages(ctx, subject)
	if err != nil {
		return service.StateSnapshot{}, fmt.Errorf("query state: %w", err)
	}
	sessions, err := e.store.CountSessions(ctx, subject)
	if err != nil {
		return service.StateSnapshot{}, fmt.Errorf("query state: %w", err)
	}

	snapshot := service.StateSnapshot{
		Subject:      sub.ID,
		Onboarded:    sub.Onboarded,
		MessageCount: len(msgs),
		SessionCount: ldvalue.NewOptionalInt(sessions),
	}
	for _, m := range msgs {
		snapshot.History = append(snapshot.History, service.HistoryEntry{
			Direction: m.Direction,
			Body:      m.Body,
			Seq:       m.Seq,
			CreatedAt: m.CreatedAt,
		})
	}
	return snapshot, nil
}

// Close stops accepting new work and waits, bounded, for in-flight workers.
func (e *Engine) Close() error {
	done := make(chan struct{})
	go func() {
		e.workers.Wait()
		close(done)
	}()

	deadline := time.NewTimer(closeTimeout)
	defer deadline.Stop()
	select {
	case <-done:
	case <-deadline.C:
		e.cancel()
		<-done
	}
	e.cancel()
	return nil
}
