package pubsub

import "encoding/json"

// Subscriber is the narrow capability a session implements so the registry
// can push updates and subscription-lifecycle results to it (spec §4.2,
// design note "subscriber capability"). Every callback may be invoked from
// any goroutine; implementations must be safe for concurrent calls.
type Subscriber interface {
	// OnUpdate is called once per version, in the node's version order,
	// for every node the subscriber currently holds a live subscription
	// to (spec §5 "ordering guarantees").
	OnUpdate(name Name, node *Node)
	// OnSubscribeResult delivers the outcome of a prior Subscribe call.
	// reason is one of the failure strings in bayeux's error taxonomy
	// when ok is false, and empty when ok is true.
	OnSubscribeResult(name Name, ok bool, reason string)
	// OnUnsubscribeResult delivers the outcome of a prior Unsubscribe
	// call.
	OnUnsubscribeResult(name Name, ok bool, reason string)
}

// Failure reasons the registry can produce, echoed verbatim by the
// dispatcher in a message reply's "error" field (spec §7).
const (
	ReasonInvalidSubscription  = "invalid subscription"
	ReasonAuthorizationFailed  = "authorization failed"
	ReasonInitializationFailed = "initialization failed"
	ReasonNotSubscribed        = "not subscribed"
)

// Adapter is the application-supplied collaborator that authorizes
// subscriptions, supplies initial values, and receives published messages
// (spec §6 "Adapter callbacks"). Every method may answer synchronously
// (call done before returning) or later from a different goroutine
// (design note: "returns either an immediate outcome or a continuation
// token the core later resolves" - here the continuation is simply the
// done closure, which the registry may retain past the call's return).
type Adapter interface {
	// Validate reports whether name is a well-formed, known node at all.
	Validate(name Name, done func(ok bool))
	// Authorize reports whether subscriber may see name.
	Authorize(subscriber Subscriber, name Name, done func(ok bool))
	// Initialize supplies the node's initial value. present=false means
	// initialization was skipped/dropped and the subscribe should fail
	// with ReasonInitializationFailed.
	Initialize(name Name, done func(value json.RawMessage, present bool))
	// Publish forwards a client-originated message on a non-meta channel.
	// raw is the full incoming Bayeux message the publish was extracted
	// from, sessionOpaque an implementation-defined session handle.
	Publish(channel string, data json.RawMessage, raw json.RawMessage, sessionOpaque any, done func(ok bool, errText string))
}
