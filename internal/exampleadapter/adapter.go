// Package exampleadapter is a reference pubsub.Adapter that authorizes
// subscriptions with an Ed25519-signed challenge and answers Validate and
// Initialize from a small static namespace. cmd/bayeuxd wires it in so the
// server is runnable out of the box; embedding hosts are expected to
// supply their own Adapter for anything beyond the demo namespace.
package exampleadapter

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/xtroce/sioux/internal/crypto"
	"github.com/xtroce/sioux/internal/logger"
	"github.com/xtroce/sioux/internal/pubsub"
)

// AuthChallenge is the credential a subscriber presents to prove it may
// see a channel: an Ed25519 signature over a server-issued nonce (from
// IssueChallenge), checked against the public keys registered for that
// channel's top-level segment. Signing a fresh nonce rather than the
// channel path itself gives the check replay protection, per
// internal/crypto/verify.go's own preference for VerifyAuthSignature
// over the plain-challenge variant.
type AuthChallenge struct {
	PublicKeyB64 string
	SignatureB64 string
}

const nonceSize = 32

// Namespace holds the demo node values and per-channel authorized keys.
// It's deliberately in-memory and unbounded in scope; anything beyond
// simple ed25519 gating belongs in a host-specific Adapter.
type Namespace struct {
	mu             sync.Mutex
	seedValues     map[string]json.RawMessage
	authorizedKeys map[string][]string // top-level channel segment -> base64 public keys
	nonces         map[pubsub.Subscriber][]byte
	pendingAuth    map[pubsub.Subscriber]AuthChallenge
}

// NewNamespace creates an empty namespace. Open channels (those with no
// entry in authorizedKeys) are allowed for anyone.
func NewNamespace() *Namespace {
	return &Namespace{
		seedValues:     make(map[string]json.RawMessage),
		authorizedKeys: make(map[string][]string),
		nonces:         make(map[pubsub.Subscriber][]byte),
		pendingAuth:    make(map[pubsub.Subscriber]AuthChallenge),
	}
}

// IssueChallenge generates a fresh nonce for subscriber to sign before
// subscribing to a restricted channel. Callers present the returned bytes
// to the client out of band (e.g. in the subscribe reply's advice) and
// pass the resulting signature back via SetChallenge.
func (ns *Namespace) IssueChallenge(subscriber pubsub.Subscriber) ([]byte, error) {
	nonce := make([]byte, nonceSize)
	if _, err := crypto.RandBytes(nonce); err != nil {
		return nil, fmt.Errorf("exampleadapter: issue challenge: %w", err)
	}
	ns.mu.Lock()
	ns.nonces[subscriber] = nonce
	ns.mu.Unlock()
	return nonce, nil
}

// Seed sets the initial value a node should have the first time it is
// subscribed to, before any UpdateNode call has touched it.
func (ns *Namespace) Seed(channel string, value json.RawMessage) {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	ns.seedValues[channel] = value
}

// RequireKey restricts a top-level channel segment (e.g. "private") to
// subscribers who can present a signature from one of the given
// public keys.
func (ns *Namespace) RequireKey(segment string, publicKeyB64 string) {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	ns.authorizedKeys[segment] = append(ns.authorizedKeys[segment], publicKeyB64)
}

// SetChallenge records the credential a subscriber will present on its
// next Subscribe call. It must be recorded before that Subscribe reaches
// Authorize; nothing in the bayeux package calls it.
func (ns *Namespace) SetChallenge(subscriber pubsub.Subscriber, challenge AuthChallenge) {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	ns.pendingAuth[subscriber] = challenge
}

// Adapter implements pubsub.Adapter over a Namespace.
type Adapter struct {
	ns       *Namespace
	registry *pubsub.Registry
}

// New wires an Adapter over ns.
func New(ns *Namespace) *Adapter {
	return &Adapter{ns: ns}
}

// SetRegistry gives the adapter the registry it echoes publishes back
// through. It's separate from New because the registry itself is
// constructed from the adapter (pubsub.NewRegistry(adapter, ...)), so the
// two can't be wired in one step; the embedding host calls this right
// after building the registry.
func (a *Adapter) SetRegistry(registry *pubsub.Registry) {
	a.registry = registry
}

// Validate accepts any well-formed name; the namespace has no notion of
// "unknown" channels, only restricted ones.
func (a *Adapter) Validate(name pubsub.Name, done func(ok bool)) {
	done(true)
}

// Authorize checks the challenge set via Namespace.SetChallenge against
// the keys registered for name's top-level segment. Channels with no
// registered keys are open to everyone.
func (a *Adapter) Authorize(subscriber pubsub.Subscriber, name pubsub.Name, done func(ok bool)) {
	segment := topSegment(name)

	a.ns.mu.Lock()
	keys := a.ns.authorizedKeys[segment]
	nonce := a.ns.nonces[subscriber]
	challenge, hasChallenge := a.ns.pendingAuth[subscriber]
	delete(a.ns.nonces, subscriber)
	delete(a.ns.pendingAuth, subscriber)
	a.ns.mu.Unlock()

	if len(keys) == 0 {
		done(true)
		return
	}
	if !hasChallenge || len(nonce) == 0 {
		done(false)
		return
	}

	registered := false
	for _, key := range keys {
		if key == challenge.PublicKeyB64 {
			registered = true
			break
		}
	}
	if !registered {
		done(false)
		return
	}

	ok, err := crypto.VerifyAuthSignature(challenge.PublicKeyB64, nonce, challenge.SignatureB64)
	if err != nil {
		logger.Debugf("exampleadapter: challenge verification error for %s: %v", name.Channel(), err)
		done(false)
		return
	}
	done(ok)
}

// Initialize supplies the namespace's seed value for name, if any. An
// unseeded channel is not an initialization failure: the namespace has no
// notion of "unknown" channels (see Validate), so it reports present=true
// with a nil value, matching a node that simply has no data yet.
func (a *Adapter) Initialize(name pubsub.Name, done func(value json.RawMessage, present bool)) {
	a.ns.mu.Lock()
	value := a.ns.seedValues[name.Channel()]
	a.ns.mu.Unlock()
	done(value, true)
}

// Publish accepts every publish and immediately fans it back out onto the
// same channel, treating the namespace as a simple echo bus. A real host
// adapter would validate and route the message into its own domain here.
func (a *Adapter) Publish(channel string, data, raw json.RawMessage, sessionOpaque any, done func(ok bool, errText string)) {
	if a.registry != nil {
		if name, err := pubsub.FromChannel(channel); err == nil {
			a.registry.UpdateNode(name, data)
		}
	}
	done(true, "")
}

func topSegment(name pubsub.Name) string {
	channel := name.Channel()
	for i := 1; i < len(channel); i++ {
		if channel[i] == '/' {
			return channel[1:i]
		}
	}
	if len(channel) > 0 {
		return channel[1:]
	}
	return ""
}
