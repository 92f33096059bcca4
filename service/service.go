// Package service defines the capability contract that the harness requires
// from the system under test. The harness never reaches into the system's
// internals: it sends inbound traffic through HandleInbound, observes
// outbound effects through the OnOutboundEffect registration hook, and
// verifies state through QueryState, which must return the same view the
// system itself uses to make decisions.
package service

import (
	"context"
	"errors"
	"time"

	"gopkg.in/launchdarkly/go-sdk-common.v2/ldvalue"
)

// ErrUnknownSubject is returned by QueryState when no record of the subject
// exists. Probe endpoints translate it to a 404.
var ErrUnknownSubject = errors.New("unknown subject")

// Inbound is one message submitted to the system under test via POST /send.
type Inbound struct {
	// Subject identifies the conversation the message belongs to.
	Subject string `json:"subject"`

	// Text is the message body.
	Text string `json:"text"`

	// DelayMS optionally delays the system's asynchronous processing of this
	// message, for tests that need to observe the not-yet-processed window.
	DelayMS ldvalue.OptionalInt `json:"delayMs,omitempty"`
}

// HistoryEntry is one message in a subject's accumulated history.
type HistoryEntry struct {
	Direction string    `json:"direction"` // "in" or "out"
	Body      string    `json:"body"`
	Seq       int       `json:"seq"`
	CreatedAt time.Time `json:"createdAt"`
}

// StateSnapshot is the externally observable state of one subject.
type StateSnapshot struct {
	Subject      string              `json:"subject"`
	Onboarded    bool                `json:"onboarded"`
	MessageCount int                 `json:"messageCount"`
	SessionCount ldvalue.OptionalInt `json:"sessionCount,omitempty"`
	History      []HistoryEntry      `json:"history,omitempty"`
}

// EffectFunc receives one outbound effect produced by the system under test.
// It may be called from the system's own goroutines at arbitrary times.
type EffectFunc func(subject, payload string)

// Service is the entry-point surface of the system under test.
type Service interface {
	// HandleInbound accepts one inbound message. Processing is asynchronous;
	// a nil return means only that the message was accepted.
	HandleInbound(ctx context.Context, msg Inbound) error

	// OnOutboundEffect registers the callback invoked for every outbound
	// effect. The harness registers the capture buffer here. Must be called
	// before any traffic is sent.
	OnOutboundEffect(fn EffectFunc)

	// QueryState returns the current state of a subject, or ErrUnknownSubject.
	QueryState(ctx context.Context, subject string) (StateSnapshot, error)

	// Close waits for in-flight processing to finish and releases resources.
	Close() error
}
