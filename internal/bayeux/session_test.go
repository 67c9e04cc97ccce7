package bayeux

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xtroce/sioux/internal/pubsub"
)

func newTestSession() *Session {
	adapter := newSyncAdapter()
	registry := pubsub.NewRegistry(adapter, pubsub.Config{KeepUpdatePercent: 80})
	return NewSession("peer/0", testConfig(), registry)
}

func TestSessionWaitForEventsFastPathWhenQueueNonEmpty(t *testing.T) {
	s := newTestSession()
	name, _ := pubsub.FromChannel("/foo/bar")
	s.OnUpdate(name, pubsub.NewNode(pubsub.NewVersion(), json.RawMessage(`1`)))

	response := NewResponse(nil)
	events, parked := s.WaitForEvents(response)
	assert.False(t, parked)
	require.Len(t, events, 1)
}

func TestSessionSecondConcurrentLongPollNotifiesPrior(t *testing.T) {
	s := newTestSession()

	first := NewResponse(nil)
	_, parked1 := s.WaitForEvents(first)
	require.True(t, parked1)

	second := NewResponse(nil)
	_, parked2 := s.WaitForEvents(second)
	require.True(t, parked2)

	select {
	case <-first.woke:
		assert.Equal(t, WakeSecondConnection, first.Reason())
	case <-time.After(time.Second):
		t.Fatal("first response was never woken")
	}

	select {
	case <-second.woke:
		t.Fatal("second response should still be parked")
	default:
	}
}

func TestSessionHurryWakesWithQueuedEvents(t *testing.T) {
	s := newTestSession()
	response := NewResponse(nil)
	_, parked := s.WaitForEvents(response)
	require.True(t, parked)

	name, _ := pubsub.FromChannel("/foo/bar")
	s.OnUpdate(name, pubsub.NewNode(pubsub.NewVersion(), json.RawMessage(`7`)))

	select {
	case <-response.woke:
		assert.Equal(t, WakeEvents, response.Reason())
	case <-time.After(time.Second):
		t.Fatal("response was never woken by enqueue")
	}
}

func TestSessionTimeoutWakesWithEmptyEvents(t *testing.T) {
	s := newTestSession()
	response := NewResponse(nil)
	_, parked := s.WaitForEvents(response)
	require.True(t, parked)

	s.Timeout(response)

	select {
	case <-response.woke:
		assert.Equal(t, WakeTimeout, response.Reason())
		assert.Empty(t, response.events)
	case <-time.After(time.Second):
		t.Fatal("response was never woken by timeout")
	}
}

func TestSessionQueueCapDropsOldest(t *testing.T) {
	s := newTestSession()
	s.config.MaxMessagesPerClient = 2

	name, _ := pubsub.FromChannel("/foo/bar")
	s.OnUpdate(name, pubsub.NewNode(pubsub.NewVersion(), json.RawMessage(`1`)))
	s.OnUpdate(name, pubsub.NewNode(pubsub.NewVersion(), json.RawMessage(`2`)))
	s.OnUpdate(name, pubsub.NewNode(pubsub.NewVersion(), json.RawMessage(`3`)))

	events := s.Events()
	require.Len(t, events, 2)

	var first, second map[string]any
	require.NoError(t, json.Unmarshal(events[0], &first))
	require.NoError(t, json.Unmarshal(events[1], &second))
	assert.EqualValues(t, 2, first["data"])
	assert.EqualValues(t, 3, second["data"])
}

func TestSessionCloseWakesWaitingResponseAndClearsQueue(t *testing.T) {
	s := newTestSession()
	response := NewResponse(nil)
	_, parked := s.WaitForEvents(response)
	require.True(t, parked)

	s.Close()

	select {
	case <-response.woke:
		assert.Equal(t, WakeTimeout, response.Reason())
	case <-time.After(time.Second):
		t.Fatal("response was never woken by close")
	}

	assert.Empty(t, s.Events())
}
