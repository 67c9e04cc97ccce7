package pubsub

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAdapter answers every handshake step synchronously according to its
// configured fields, recording the calls it received for assertions.
type fakeAdapter struct {
	mu sync.Mutex

	validateOK   bool
	authorizeOK  bool
	initialValue json.RawMessage
	initPresent  bool

	published []publishCall
}

type publishCall struct {
	channel string
	data    json.RawMessage
}

func newFakeAdapter() *fakeAdapter {
	return &fakeAdapter{validateOK: true, authorizeOK: true, initPresent: true}
}

func (a *fakeAdapter) Validate(name Name, done func(ok bool)) {
	done(a.validateOK)
}

func (a *fakeAdapter) Authorize(subscriber Subscriber, name Name, done func(ok bool)) {
	done(a.authorizeOK)
}

func (a *fakeAdapter) Initialize(name Name, done func(value json.RawMessage, present bool)) {
	done(a.initialValue, a.initPresent)
}

func (a *fakeAdapter) Publish(channel string, data json.RawMessage, raw json.RawMessage, sessionOpaque any, done func(ok bool, errText string)) {
	a.mu.Lock()
	a.published = append(a.published, publishCall{channel: channel, data: data})
	a.mu.Unlock()
	done(true, "")
}

// fakeSubscriber records every callback invocation for assertions.
type fakeSubscriber struct {
	mu sync.Mutex

	updates            []Version
	subscribeResults   []subscribeResult
	unsubscribeResults []subscribeResult
}

type subscribeResult struct {
	name   Name
	ok     bool
	reason string
}

func (s *fakeSubscriber) OnUpdate(name Name, node *Node) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates = append(s.updates, node.CurrentVersion())
}

func (s *fakeSubscriber) OnSubscribeResult(name Name, ok bool, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribeResults = append(s.subscribeResults, subscribeResult{name, ok, reason})
}

func (s *fakeSubscriber) OnUnsubscribeResult(name Name, ok bool, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unsubscribeResults = append(s.unsubscribeResults, subscribeResult{name, ok, reason})
}

func (s *fakeSubscriber) last() subscribeResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subscribeResults[len(s.subscribeResults)-1]
}

func (s *fakeSubscriber) lastUnsub() subscribeResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unsubscribeResults[len(s.unsubscribeResults)-1]
}

func TestRegistrySubscribeSuccessDeliversInitialValue(t *testing.T) {
	adapter := newFakeAdapter()
	adapter.initialValue = json.RawMessage(`{"greeting":"hi"}`)
	reg := NewRegistry(adapter, Config{KeepUpdatePercent: 80})
	sub := &fakeSubscriber{}
	name, err := FromChannel("/room/lobby")
	require.NoError(t, err)

	reg.Subscribe(sub, name)

	require.Len(t, sub.subscribeResults, 1)
	assert.True(t, sub.last().ok)
	require.Len(t, sub.updates, 1)
}

func TestRegistrySubscribeFailsValidation(t *testing.T) {
	adapter := newFakeAdapter()
	adapter.validateOK = false
	reg := NewRegistry(adapter, Config{KeepUpdatePercent: 80})
	sub := &fakeSubscriber{}
	name, _ := FromChannel("/room/lobby")

	reg.Subscribe(sub, name)

	assert.Equal(t, subscribeResult{name, false, ReasonInvalidSubscription}, sub.last())
}

func TestRegistrySubscribeFailsAuthorization(t *testing.T) {
	adapter := newFakeAdapter()
	adapter.authorizeOK = false
	reg := NewRegistry(adapter, Config{KeepUpdatePercent: 80})
	sub := &fakeSubscriber{}
	name, _ := FromChannel("/room/lobby")

	reg.Subscribe(sub, name)

	assert.Equal(t, subscribeResult{name, false, ReasonAuthorizationFailed}, sub.last())
}

func TestRegistrySubscribeFailsInitialization(t *testing.T) {
	adapter := newFakeAdapter()
	adapter.initPresent = false
	reg := NewRegistry(adapter, Config{KeepUpdatePercent: 80})
	sub := &fakeSubscriber{}
	name, _ := FromChannel("/room/lobby")

	reg.Subscribe(sub, name)

	assert.Equal(t, subscribeResult{name, false, ReasonInitializationFailed}, sub.last())
}

func TestRegistryUnsubscribeWithoutEstablishedLinkFails(t *testing.T) {
	adapter := newFakeAdapter()
	reg := NewRegistry(adapter, Config{KeepUpdatePercent: 80})
	sub := &fakeSubscriber{}
	name, _ := FromChannel("/room/lobby")

	ok := reg.Unsubscribe(sub, name)

	assert.False(t, ok)
	assert.Equal(t, ReasonNotSubscribed, sub.lastUnsub().reason)
}

func TestRegistryUnsubscribeEstablishedLinkSucceeds(t *testing.T) {
	adapter := newFakeAdapter()
	reg := NewRegistry(adapter, Config{KeepUpdatePercent: 80})
	sub := &fakeSubscriber{}
	name, _ := FromChannel("/room/lobby")

	reg.Subscribe(sub, name)
	ok := reg.Unsubscribe(sub, name)

	assert.True(t, ok)
	assert.True(t, sub.lastUnsub().ok)

	// A second unsubscribe of the same, now-torn-down link reports not
	// subscribed.
	ok = reg.Unsubscribe(sub, name)
	assert.False(t, ok)
}

func TestRegistryUpdateNodeFansOutInInsertionOrder(t *testing.T) {
	adapter := newFakeAdapter()
	reg := NewRegistry(adapter, Config{KeepUpdatePercent: 80})
	name, _ := FromChannel("/room/lobby")

	var order []int
	var mu sync.Mutex
	makeSub := func(id int) *orderedSubscriber {
		return &orderedSubscriber{id: id, order: &order, mu: &mu}
	}

	first := makeSub(1)
	second := makeSub(2)
	third := makeSub(3)

	reg.SubscribeForTesting(first, name)
	reg.SubscribeForTesting(second, name)
	reg.SubscribeForTesting(third, name)

	reg.UpdateNode(name, json.RawMessage(`{"count":1}`))

	assert.Equal(t, []int{1, 2, 3}, order)
}

func TestRegistryUnsubscribeAllRemovesEveryLink(t *testing.T) {
	adapter := newFakeAdapter()
	reg := NewRegistry(adapter, Config{KeepUpdatePercent: 80})
	sub := &fakeSubscriber{}
	roomA, _ := FromChannel("/room/a")
	roomB, _ := FromChannel("/room/b")

	reg.SubscribeForTesting(sub, roomA)
	reg.SubscribeForTesting(sub, roomB)

	reg.UnsubscribeAll(sub)

	assert.False(t, reg.Unsubscribe(sub, roomA))
	assert.False(t, reg.Unsubscribe(sub, roomB))
}

func TestRegistryPublishForwardsToAdapter(t *testing.T) {
	adapter := newFakeAdapter()
	reg := NewRegistry(adapter, Config{KeepUpdatePercent: 80})

	var gotOK bool
	reg.Publish("/chat/room1", json.RawMessage(`{"text":"hi"}`), json.RawMessage(`{}`), nil, func(ok bool, errText string) {
		gotOK = ok
	})

	assert.True(t, gotOK)
	require.Len(t, adapter.published, 1)
	assert.Equal(t, "/chat/room1", adapter.published[0].channel)
}

// orderedSubscriber records the order in which OnUpdate is invoked across
// multiple subscribers sharing the same node.
type orderedSubscriber struct {
	id    int
	order *[]int
	mu    *sync.Mutex
}

func (s *orderedSubscriber) OnUpdate(name Name, node *Node) {
	s.mu.Lock()
	defer s.mu.Unlock()
	*s.order = append(*s.order, s.id)
}

func (s *orderedSubscriber) OnSubscribeResult(name Name, ok bool, reason string)   {}
func (s *orderedSubscriber) OnUnsubscribeResult(name Name, ok bool, reason string) {}
