package harness

import (
	"sync"
	"time"
)

// Effect is one outbound action recorded by the capture buffer. Sequence
// numbers reflect arrival order at the buffer, which is not necessarily the
// causal order inside the system under test.
type Effect struct {
	Seq     int       `json:"seq"`
	Time    time.Time `json:"time"`
	Subject string    `json:"subject"`
	Payload string    `json:"payload"`
}

// CaptureBuffer records outbound effects as the system under test produces
// them. It is append-only between clears: sequence numbers are strictly
// increasing within a buffer instance, and a snapshot's length never shrinks
// while no Clear intervenes. Record never fails; the buffer only accumulates.
type CaptureBuffer struct {
	effects []Effect
	lastSeq int
	lock    sync.RWMutex
}

func NewCaptureBuffer() *CaptureBuffer {
	return &CaptureBuffer{}
}

// Record appends an effect with the next sequence number. Safe to call from
// the system under test's own goroutines concurrently with Snapshot and Clear.
func (b *CaptureBuffer) Record(subject, payload string) {
	b.lock.Lock()
	b.lastSeq++
	b.effects = append(b.effects, Effect{
		Seq:     b.lastSeq,
		Time:    time.Now(),
		Subject: subject,
		Payload: payload,
	})
	b.lock.Unlock()
}

// Snapshot returns a copy of the current ordered effect list.
func (b *CaptureBuffer) Snapshot() []Effect {
	b.lock.RLock()
	ret := append([]Effect(nil), b.effects...)
	b.lock.RUnlock()
	return ret
}

// ForSubject returns the recorded effects attributed to one subject, in order.
func (b *CaptureBuffer) ForSubject(subject string) []Effect {
	b.lock.RLock()
	var ret []Effect
	for _, e := range b.effects {
		if e.Subject == subject {
			ret = append(ret, e)
		}
	}
	b.lock.RUnlock()
	return ret
}

func (b *CaptureBuffer) Len() int {
	b.lock.RLock()
	n := len(b.effects)
	b.lock.RUnlock()
	return n
}

// Clear resets the buffer to empty and the sequence counter to zero. The
// sequencer calls this at the start of every test.
func (b *CaptureBuffer) Clear() {
	b.lock.Lock()
	b.effects = nil
	b.lastSeq = 0
	b.lock.Unlock()
}
