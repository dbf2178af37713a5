// Package rto implements the TCP sender's retransmission timer: a
// monotonic countdown, advanced only by logical tick(ms) calls, with
// exponential backoff on expiry.
//
// The backoff growth itself is delegated to jpillora/backoff, whose
// Duration()/Reset() pair maps directly onto the timer's semantics: Start
// resets the backoff and takes its first Duration() as the initial RTO;
// HandleExpired asks the backoff for the next (doubled) Duration().
package rto

import (
	"time"

	"github.com/jpillora/backoff"
)

// Timer is a retransmission timer. It never fires on its own; callers
// observe Tick's return value and decide what to do.
type Timer struct {
	backoff *backoff.Backoff

	running bool
	rto     float64 // current RTO in ms
	elapsed float64 // accumulated ms since (re)start
}

// New creates a stopped Timer with the given initial RTO, in milliseconds.
func New(initialRTOMillis uint32) *Timer {
	return &Timer{
		backoff: &backoff.Backoff{
			Min:    durationFromMillis(initialRTOMillis),
			Max:    time.Hour,
			Factor: 2,
			Jitter: false,
		},
	}
}

// Start (re)starts the timer: idempotent if already running, otherwise
// resets the accumulator and the RTO back to the configured initial value.
func (t *Timer) Start() {
	if t.running {
		return
	}
	t.running = true
	t.elapsed = 0
	t.backoff.Reset()
	t.rto = millisFromDuration(t.backoff.Duration())
}

// Stop stops the timer. Idempotent.
func (t *Timer) Stop() {
	t.running = false
}

// Running reports whether the timer is currently counting down.
func (t *Timer) Running() bool {
	return t.running
}

// RTO returns the timer's current retransmission timeout, in milliseconds.
func (t *Timer) RTO() uint32 {
	return uint32(t.rto)
}

// Tick advances the timer by ms milliseconds and reports whether the
// accumulated time has reached the current RTO. The accumulator is not
// cleared here; callers that treat this as an expiry must call
// HandleExpired or Reset afterward, per the semantics in §4.D.
func (t *Timer) Tick(ms uint32) bool {
	if !t.running {
		return false
	}
	t.elapsed += float64(ms)
	return t.elapsed >= t.rto
}

// HandleExpired doubles the RTO and clears the accumulator. Used when a
// normal (non-zero-window) retransmission fires.
func (t *Timer) HandleExpired() {
	t.rto = millisFromDuration(t.backoff.Duration())
	t.elapsed = 0
}

// Reset clears the accumulator and sets the RTO back to the initial value,
// without stopping the timer. Used when new data is acknowledged.
func (t *Timer) Reset() {
	t.backoff.Reset()
	t.rto = millisFromDuration(t.backoff.Duration())
	t.elapsed = 0
}
