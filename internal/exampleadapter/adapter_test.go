package exampleadapter

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xtroce/sioux/internal/pubsub"
)

type stubSubscriber struct{}

func (stubSubscriber) OnUpdate(pubsub.Name, *pubsub.Node)            {}
func (stubSubscriber) OnSubscribeResult(pubsub.Name, bool, string)   {}
func (stubSubscriber) OnUnsubscribeResult(pubsub.Name, bool, string) {}

func TestAdapterOpenChannelNeedsNoChallenge(t *testing.T) {
	ns := NewNamespace()
	adapter := New(ns)
	name, err := pubsub.FromChannel("/public/room")
	require.NoError(t, err)

	var authorized bool
	adapter.Authorize(stubSubscriber{}, name, func(ok bool) { authorized = ok })
	assert.True(t, authorized)
}

func TestAdapterRestrictedChannelRequiresValidSignature(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	pubB64 := base64.StdEncoding.EncodeToString(pub)

	ns := NewNamespace()
	ns.RequireKey("private", pubB64)
	adapter := New(ns)

	name, err := pubsub.FromChannel("/private/room")
	require.NoError(t, err)

	sub := stubSubscriber{}
	nonce, err := ns.IssueChallenge(sub)
	require.NoError(t, err)

	sig := ed25519.Sign(priv, nonce)
	sigB64 := base64.StdEncoding.EncodeToString(sig)
	ns.SetChallenge(sub, AuthChallenge{PublicKeyB64: pubB64, SignatureB64: sigB64})

	var authorized bool
	adapter.Authorize(sub, name, func(ok bool) { authorized = ok })
	assert.True(t, authorized)
}

func TestAdapterRestrictedChannelRejectsUnregisteredKey(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	other, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	otherB64 := base64.StdEncoding.EncodeToString(other)

	ns := NewNamespace()
	ns.RequireKey("private", otherB64)
	adapter := New(ns)

	name, err := pubsub.FromChannel("/private/room")
	require.NoError(t, err)

	sub := stubSubscriber{}
	nonce, err := ns.IssueChallenge(sub)
	require.NoError(t, err)

	sig := ed25519.Sign(priv, nonce)
	sigB64 := base64.StdEncoding.EncodeToString(sig)
	ns.SetChallenge(sub, AuthChallenge{PublicKeyB64: base64.StdEncoding.EncodeToString(pub), SignatureB64: sigB64})

	var authorized bool
	adapter.Authorize(sub, name, func(ok bool) { authorized = ok })
	assert.False(t, authorized)
}

func TestAdapterRestrictedChannelRejectsMissingChallenge(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	pubB64 := base64.StdEncoding.EncodeToString(pub)

	ns := NewNamespace()
	ns.RequireKey("private", pubB64)
	adapter := New(ns)

	name, err := pubsub.FromChannel("/private/room")
	require.NoError(t, err)

	var authorized bool
	adapter.Authorize(stubSubscriber{}, name, func(ok bool) { authorized = ok })
	assert.False(t, authorized)
}

func TestAdapterRestrictedChannelRejectsSignatureOverWrongNonce(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	pubB64 := base64.StdEncoding.EncodeToString(pub)

	ns := NewNamespace()
	ns.RequireKey("private", pubB64)
	adapter := New(ns)

	name, err := pubsub.FromChannel("/private/room")
	require.NoError(t, err)

	sub := stubSubscriber{}
	_, err = ns.IssueChallenge(sub)
	require.NoError(t, err)

	sig := ed25519.Sign(priv, []byte("not the issued nonce"))
	sigB64 := base64.StdEncoding.EncodeToString(sig)
	ns.SetChallenge(sub, AuthChallenge{PublicKeyB64: pubB64, SignatureB64: sigB64})

	var authorized bool
	adapter.Authorize(sub, name, func(ok bool) { authorized = ok })
	assert.False(t, authorized)
}

func TestAdapterInitializeReturnsSeededValue(t *testing.T) {
	ns := NewNamespace()
	ns.Seed("/rooms/a", json.RawMessage(`{"topic":"go"}`))
	adapter := New(ns)

	name, err := pubsub.FromChannel("/rooms/a")
	require.NoError(t, err)

	var value json.RawMessage
	var present bool
	adapter.Initialize(name, func(v json.RawMessage, p bool) { value = v; present = p })

	assert.True(t, present)
	assert.JSONEq(t, `{"topic":"go"}`, string(value))
}

func TestAdapterInitializePresentWithNoValueForUnseededChannel(t *testing.T) {
	ns := NewNamespace()
	adapter := New(ns)

	name, err := pubsub.FromChannel("/rooms/b")
	require.NoError(t, err)

	var value json.RawMessage
	var present bool
	adapter.Initialize(name, func(v json.RawMessage, p bool) { value = v; present = p })
	assert.True(t, present)
	assert.Empty(t, value)
}

func TestAdapterPublishAlwaysAcknowledges(t *testing.T) {
	adapter := New(NewNamespace())

	var ok bool
	adapter.Publish("/rooms/a", json.RawMessage(`1`), json.RawMessage(`{}`), nil, func(o bool, errText string) {
		ok = o
		assert.Empty(t, errText)
	})
	assert.True(t, ok)
}

func TestAdapterPublishEchoesOntoRegistryWhenWired(t *testing.T) {
	adapter := New(NewNamespace())
	registry := pubsub.NewRegistry(adapter, pubsub.Config{KeepUpdatePercent: 80})
	adapter.SetRegistry(registry)

	name, err := pubsub.FromChannel("/rooms/a")
	require.NoError(t, err)

	var ok bool
	adapter.Publish("/rooms/a", json.RawMessage(`{"topic":"echo"}`), json.RawMessage(`{}`), nil, func(o bool, errText string) {
		ok = o
	})
	assert.True(t, ok)

	node, exists := registry.Node(name)
	require.True(t, exists)
	assert.JSONEq(t, `{"topic":"echo"}`, string(node.Value()))
}
