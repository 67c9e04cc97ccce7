package bayeux

import (
	"encoding/json"
	"sync"

	"github.com/xtroce/sioux/internal/pubsub"
)

type queuedEvent struct {
	msg  Message
	size int
}

// Session is a per-client mailbox of pending events, a reference to at
// most one waiting long-poll response, and a per-session event/size
// budget (spec §4.3, C3). It implements pubsub.Subscriber so the registry
// can push updates directly to it.
type Session struct {
	id       string
	config   Config
	registry *pubsub.Registry

	mu      sync.Mutex
	closed  bool
	queue   []queuedEvent
	bytes   int
	waiting *Response

	pendingSubscribeID   map[string]any
	pendingUnsubscribeID map[string]any
}

// NewSession creates a session bound to registry, using config's queue
// caps and delta budget.
func NewSession(id string, config Config, registry *pubsub.Registry) *Session {
	return &Session{
		id:                   id,
		config:               config,
		registry:             registry,
		pendingSubscribeID:   make(map[string]any),
		pendingUnsubscribeID: make(map[string]any),
	}
}

// ID returns the session's opaque wire clientId (spec §3, supplement 1's
// session_id() accessor).
func (s *Session) ID() string { return s.id }

// Subscribe validates the channel, then drives the registry's
// validate/authorize/initialize handshake. The ack (and, on success, the
// initial-data event) is enqueued asynchronously via OnSubscribeResult /
// OnUpdate - never returned inline (spec §4.5).
func (s *Session) Subscribe(channel string, id any) {
	name, ok := ChannelToName(channel)
	if !ok {
		s.enqueue(withID(Message{
			"channel":      "/meta/subscribe",
			"subscription": channel,
			"clientId":     s.id,
			"successful":   false,
			"error":        pubsub.ReasonInvalidSubscription,
		}, id))
		return
	}

	s.mu.Lock()
	s.pendingSubscribeID[name.Channel()] = id
	s.mu.Unlock()

	s.registry.Subscribe(s, name)
}

// Unsubscribe removes an established link through the registry. A
// channel that doesn't even parse as a valid node name answers
// not-subscribed directly, without a registry round trip.
func (s *Session) Unsubscribe(channel string, id any) {
	name, ok := ChannelToName(channel)
	if !ok {
		s.enqueue(withID(Message{
			"channel":      "/meta/unsubscribe",
			"subscription": channel,
			"clientId":     s.id,
			"successful":   false,
			"error":        pubsub.ReasonNotSubscribed,
		}, id))
		return
	}

	s.mu.Lock()
	s.pendingUnsubscribeID[name.Channel()] = id
	s.mu.Unlock()

	s.registry.Unsubscribe(s, name)
}

// Publish forwards a client-originated message to the adapter through the
// registry and enqueues its outcome as a reply once the adapter answers
// (spec §4.3 "publish"), which may happen synchronously or later.
func (s *Session) Publish(channel string, data, raw json.RawMessage, id any) {
	s.registry.Publish(channel, data, raw, s, func(ok bool, errText string) {
		reply := Message{"channel": channel, "successful": ok}
		if !ok {
			if errText == "" {
				errText = ErrInternal
			}
			reply["error"] = errText
		}
		s.enqueue(withID(reply, id))
	})
}

// OnUpdate implements pubsub.Subscriber, enqueuing a node-update event
// (spec §4.3).
func (s *Session) OnUpdate(name pubsub.Name, node *pubsub.Node) {
	value := node.Value()
	event := Message{"channel": name.Channel(), "data": json.RawMessage(value)}
	if id, ok := extractDataID(value); ok {
		event["id"] = id
	}
	s.enqueue(event)
}

// OnSubscribeResult implements pubsub.Subscriber, translating the
// registry's outcome into a subscribe-ack event carrying the id from the
// originating request, if any (spec §4.2).
func (s *Session) OnSubscribeResult(name pubsub.Name, ok bool, reason string) {
	channel := name.Channel()

	s.mu.Lock()
	id := s.pendingSubscribeID[channel]
	delete(s.pendingSubscribeID, channel)
	s.mu.Unlock()

	ack := Message{
		"channel":      "/meta/subscribe",
		"subscription": channel,
		"clientId":     s.id,
		"successful":   ok,
	}
	if !ok {
		ack["error"] = reason
	}
	s.enqueue(withID(ack, id))
}

// OnUnsubscribeResult implements pubsub.Subscriber (spec §4.2).
func (s *Session) OnUnsubscribeResult(name pubsub.Name, ok bool, reason string) {
	channel := name.Channel()

	s.mu.Lock()
	id := s.pendingUnsubscribeID[channel]
	delete(s.pendingUnsubscribeID, channel)
	s.mu.Unlock()

	ack := Message{
		"channel":      "/meta/unsubscribe",
		"subscription": channel,
		"clientId":     s.id,
		"successful":   ok,
	}
	if !ok {
		ack["error"] = reason
	}
	s.enqueue(withID(ack, id))
}

// Events drains and returns every pending event atomically (spec §4.3
// "events()").
func (s *Session) Events() []json.RawMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.drainLocked()
}

// WaitForEvents implements spec §4.3's wait_for_events: if the queue is
// non-empty it drains and returns immediately (parked=false); otherwise
// response becomes the session's waiting response (parked=true). A prior
// waiting response, if any, is woken with WakeSecondConnection and
// dropped.
func (s *Session) WaitForEvents(response *Response) (events []json.RawMessage, parked bool) {
	s.mu.Lock()
	if len(s.queue) > 0 {
		events := s.drainLocked()
		s.mu.Unlock()
		return events, false
	}
	prior := s.waiting
	s.waiting = response
	s.mu.Unlock()

	if prior != nil {
		prior.Wake(nil, WakeSecondConnection)
	}
	return nil, true
}

// Hurry wakes a waiting response early with whatever is currently queued,
// possibly nothing (spec §4.3 "hurry()").
func (s *Session) Hurry() {
	s.mu.Lock()
	w := s.waiting
	if w == nil {
		s.mu.Unlock()
		return
	}
	s.waiting = nil
	events := s.drainLocked()
	s.mu.Unlock()

	w.Wake(events, WakeEvents)
}

// Timeout wakes response with an empty event set, provided it is still
// this session's current waiting response (spec §4.3 "timeout()", §4.6
// "poll timeout").
func (s *Session) Timeout(response *Response) {
	s.mu.Lock()
	if s.waiting != response {
		s.mu.Unlock()
		return
	}
	s.waiting = nil
	s.mu.Unlock()

	response.Wake(nil, WakeTimeout)
}

// Close cancels all subscriptions through the registry, wakes any waiting
// response with an empty set, and clears the session's queue (spec §4.3
// "close()").
func (s *Session) Close() {
	s.mu.Lock()
	s.closed = true
	w := s.waiting
	s.waiting = nil
	s.queue = nil
	s.bytes = 0
	s.mu.Unlock()

	s.registry.UnsubscribeAll(s)

	if w != nil {
		w.Wake(nil, WakeTimeout)
	}
}

func (s *Session) enqueue(event Message) {
	b, err := json.Marshal(event)
	size := 0
	if err == nil {
		size = len(b)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, queuedEvent{msg: event, size: size})
	s.bytes += size
	s.evictLocked()

	w := s.waiting
	if w == nil {
		s.mu.Unlock()
		return
	}
	s.waiting = nil
	events := s.drainLocked()
	s.mu.Unlock()

	w.Wake(events, WakeEvents)
}

// evictLocked drops the oldest events until both caps hold (spec §4.3
// "Queue eviction policy").
func (s *Session) evictLocked() {
	for len(s.queue) > 0 && (s.overCountLocked() || s.overSizeLocked()) {
		s.bytes -= s.queue[0].size
		s.queue = s.queue[1:]
	}
}

func (s *Session) overCountLocked() bool {
	return s.config.MaxMessagesPerClient > 0 && len(s.queue) > s.config.MaxMessagesPerClient
}

func (s *Session) overSizeLocked() bool {
	return s.config.MaxMessagesSizePerClient > 0 && s.bytes > s.config.MaxMessagesSizePerClient
}

func (s *Session) drainLocked() []json.RawMessage {
	out := make([]json.RawMessage, 0, len(s.queue))
	for _, qe := range s.queue {
		b, err := json.Marshal(qe.msg)
		if err != nil {
			continue
		}
		out = append(out, b)
	}
	s.queue = nil
	s.bytes = 0
	return out
}
