package pubsub

import (
	"encoding/json"
	"sync"

	"github.com/xtroce/sioux/internal/logger"
)

// subscription is one established (subscriber, node_name) link (spec §3
// "Subscription"). It only exists once the full validate/authorize/
// initialize handshake has succeeded - a subscribe still in flight has no
// entry here (see Registry.Unsubscribe for why that matters).
type subscription struct {
	subscriber    Subscriber
	name          Name
	lastDelivered Version
}

// Registry is the subscription registry (C2): it holds every node's
// current state, mediates the adapter handshake, and fans updates out to
// subscribers in insertion order (spec §4.2).
type Registry struct {
	adapter Adapter
	config  Config

	mu sync.Mutex
	// nodes maps a node's canonical channel string to its store.
	nodes map[string]*Node
	// bySubscriber maps subscriber -> node channel -> subscription, used
	// for O(1) unsubscribe and full teardown on session close.
	bySubscriber map[Subscriber]map[string]*subscription
	// byNode maps node channel -> ordered subscription list, preserving
	// insertion order for update fan-out (spec §4.2 "in insertion
	// order").
	byNode map[string][]*subscription
}

// Config bounds the node store's delta-retention budget (spec §6
// "keep_update_percent").
type Config struct {
	KeepUpdatePercent int
}

// NewRegistry creates a Registry backed by the given adapter.
func NewRegistry(adapter Adapter, config Config) *Registry {
	return &Registry{
		adapter:      adapter,
		config:       config,
		nodes:        make(map[string]*Node),
		bySubscriber: make(map[Subscriber]map[string]*subscription),
		byNode:       make(map[string][]*subscription),
	}
}

// Subscribe drives the three-step adapter handshake (validate, authorize,
// initialize) and reports the outcome to subscriber via
// OnSubscribeResult, followed by an OnUpdate carrying the initial value if
// one was supplied (spec §4.2).
func (r *Registry) Subscribe(subscriber Subscriber, name Name) {
	r.adapter.Validate(name, func(validOK bool) {
		if !validOK {
			subscriber.OnSubscribeResult(name, false, ReasonInvalidSubscription)
			return
		}
		r.adapter.Authorize(subscriber, name, func(authOK bool) {
			if !authOK {
				subscriber.OnSubscribeResult(name, false, ReasonAuthorizationFailed)
				return
			}
			r.adapter.Initialize(name, func(value json.RawMessage, present bool) {
				if !present {
					subscriber.OnSubscribeResult(name, false, ReasonInitializationFailed)
					return
				}
				sub := r.establish(subscriber, name)
				subscriber.OnSubscribeResult(name, true, "")
				if len(value) > 0 && string(value) != "null" {
					node := r.ensureNode(name, value)
					sub.lastDelivered = node.CurrentVersion()
					subscriber.OnUpdate(name, node)
				}
			})
		})
	})
}

// establish records a subscription link once the handshake has fully
// succeeded.
func (r *Registry) establish(subscriber Subscriber, name Name) *subscription {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := name.Channel()
	sub := &subscription{subscriber: subscriber, name: name}

	if r.bySubscriber[subscriber] == nil {
		r.bySubscriber[subscriber] = make(map[string]*subscription)
	}
	r.bySubscriber[subscriber][key] = sub
	r.byNode[key] = append(r.byNode[key], sub)

	return sub
}

func (r *Registry) ensureNode(name Name, initial json.RawMessage) *Node {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := name.Channel()
	if n, ok := r.nodes[key]; ok {
		return n
	}
	n := NewNode(NewVersion(), initial)
	r.nodes[key] = n
	return n
}

// Unsubscribe removes an established link. If no such link exists - which
// includes the case of an outstanding Subscribe that hasn't been
// acknowledged yet, since no link is established until the handshake
// completes - it reports ReasonNotSubscribed. The in-flight subscribe (if
// any) is unaffected and will simply be acknowledged as success when it
// eventually completes (spec §4.2, §8 scenario 4).
func (r *Registry) Unsubscribe(subscriber Subscriber, name Name) (ok bool) {
	r.mu.Lock()
	key := name.Channel()
	subs, exists := r.bySubscriber[subscriber]
	var removed *subscription
	if exists {
		if sub, found := subs[key]; found {
			removed = sub
			delete(subs, key)
			if len(subs) == 0 {
				delete(r.bySubscriber, subscriber)
			}
			r.byNode[key] = removeSub(r.byNode[key], sub)
		}
	}
	r.mu.Unlock()

	if removed == nil {
		subscriber.OnUnsubscribeResult(name, false, ReasonNotSubscribed)
		return false
	}
	subscriber.OnUnsubscribeResult(name, true, "")
	return true
}

// UnsubscribeAll tears down every subscription belonging to subscriber,
// used on session close/timeout (spec §4.3 "close").
func (r *Registry) UnsubscribeAll(subscriber Subscriber) {
	r.mu.Lock()
	subs := r.bySubscriber[subscriber]
	delete(r.bySubscriber, subscriber)
	for key, sub := range subs {
		r.byNode[key] = removeSub(r.byNode[key], sub)
	}
	r.mu.Unlock()
}

func removeSub(list []*subscription, target *subscription) []*subscription {
	for i, s := range list {
		if s == target {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}

// UpdateNode applies value via the node store and fans out OnUpdate to
// every current subscriber of name, in insertion order (spec §4.2
// "update_node"). This is the entrypoint the embedding host (or the admin
// API) uses to push server-originated data, distinct from a client
// publish which flows through Adapter.Publish instead (SPEC_FULL.md
// supplement 2).
func (r *Registry) UpdateNode(name Name, value json.RawMessage) {
	key := name.Channel()

	r.mu.Lock()
	node, exists := r.nodes[key]
	if !exists {
		node = NewNode(NewVersion(), value)
		r.nodes[key] = node
	}
	subs := append([]*subscription(nil), r.byNode[key]...)
	r.mu.Unlock()

	if exists {
		changed, err := node.Update(value, r.config.KeepUpdatePercent)
		if err != nil {
			logger.Errorf("pubsub: update_node %s: %v", key, err)
			return
		}
		if !changed {
			return
		}
	}

	for _, sub := range subs {
		sub.lastDelivered = node.CurrentVersion()
		sub.subscriber.OnUpdate(name, node)
	}
}

// Node returns the current node for name, if it has ever been created.
func (r *Registry) Node(name Name) (*Node, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.nodes[name.Channel()]
	return n, ok
}

// Publish forwards a client-originated message to the adapter.
func (r *Registry) Publish(channel string, data json.RawMessage, raw json.RawMessage, sessionOpaque any, done func(ok bool, errText string)) {
	r.adapter.Publish(channel, data, raw, sessionOpaque, done)
}

// SubscribeForTesting attaches subscriber to name without going through
// the adapter handshake. It exists purely for tests, mirroring the
// original implementation's subscribe_for_testing hook (SPEC_FULL.md
// supplement 3); production code must always go through Subscribe.
func (r *Registry) SubscribeForTesting(subscriber Subscriber, name Name) {
	r.establish(subscriber, name)
}
