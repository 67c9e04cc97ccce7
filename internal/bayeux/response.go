package bayeux

import (
	"encoding/json"
	"sync"
	"time"
)

// state is the long-poll response's internal state (spec §4.6).
type state int32

const (
	stateNew state = iota
	statePark
	stateWoken
	stateWritten
)

// WakeReason records why a parked Response was woken, purely for tests
// exercising spec §8's "at-most-one long-poll" property.
type WakeReason int

const (
	WakeNone WakeReason = iota
	WakeEvents
	WakeSecondConnection
	WakeTimeout
)

// Response is an HTTP-request-scoped object that either returns
// immediately with queued events or parks on a session waiting for the
// first of: event, pipelined-hurry, or poll timeout (spec §4.6). It wakes
// at most once and must not be reused across requests.
type Response struct {
	mu    sync.Mutex
	state state
	woke  chan struct{}
	timer *time.Timer

	replies []json.RawMessage
	events  []json.RawMessage
	reason  WakeReason

	onResolve func()
}

// NewResponse creates a Response holding the immediate per-message
// replies already computed for the batch (spec §4.5 "Response
// assembly").
func NewResponse(replies []json.RawMessage) *Response {
	return &Response{state: stateNew, woke: make(chan struct{}), replies: replies}
}

// Park transitions NEW -> PARKED and arms the poll timeout. onTimeout
// fires from the timer's own goroutine if no other wake path preempts it;
// it is a no-op if Wake already ran.
func (r *Response) Park(timeout time.Duration, onTimeout func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != stateNew {
		return
	}
	r.state = statePark
	r.timer = time.AfterFunc(timeout, onTimeout)
}

// SetOnResolve registers a callback fired exactly once, the moment Wake
// first runs on this Response (whichever of events, hurry, second
// connection, or timeout gets there first). It must be set before the
// Response is published to a session's waiting field, since a concurrent
// request can hurry or wake it the instant that happens. The caller that
// parks a session's long-poll on this Response uses it to hold the
// session's use count open for the whole parked duration instead of
// releasing it before the poll is even armed.
func (r *Response) SetOnResolve(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onResolve = fn
}

// Wake transitions PARKED -> WOKEN exactly once, recording events and
// reason, then runs the onResolve callback if one was registered. Later
// calls are no-ops. Safe to call from any goroutine.
func (r *Response) Wake(events []json.RawMessage, reason WakeReason) {
	r.mu.Lock()
	if r.state == stateWoken || r.state == stateWritten {
		r.mu.Unlock()
		return
	}
	r.state = stateWoken
	r.events = events
	r.reason = reason
	if r.timer != nil {
		r.timer.Stop()
	}
	onResolve := r.onResolve
	r.onResolve = nil
	r.mu.Unlock()
	if onResolve != nil {
		onResolve()
	}
	close(r.woke)
}

// Wait blocks until Wake runs, then transitions to WRITTEN and returns the
// combined per-message replies followed by drained events, in that order
// (spec §4.5 "Response assembly").
func (r *Response) Wait() []json.RawMessage {
	<-r.woke
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = stateWritten
	return combine(r.replies, r.events)
}

// Immediate serves the fast path where events are already queued at
// assembly time, transitioning NEW -> WRITTEN directly with no parking.
func (r *Response) Immediate(events []json.RawMessage) []json.RawMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = stateWritten
	return combine(r.replies, events)
}

// Reason reports why a parked Response woke, valid only after Wait
// returns.
func (r *Response) Reason() WakeReason {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reason
}

func combine(replies, events []json.RawMessage) []json.RawMessage {
	out := make([]json.RawMessage, 0, len(replies)+len(events))
	out = append(out, replies...)
	out = append(out, events...)
	return out
}
