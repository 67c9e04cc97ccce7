// Package bayeux implements the session engine and long-poll dispatcher of
// the Bayeux 1.0 protocol subset described in spec §4.3-§4.6: sessions,
// the session connector, message decoding/routing, and the long-poll
// response state machine.
package bayeux

// Error taxonomy surfaced to clients verbatim in a reply's "error" field
// (spec §7). The spelling here is load-bearing wire format, not prose.
const (
	ErrInvalidClientID           = "invalid clientId"
	ErrUnsupportedConnectionType = "unsupported connection type"
	ErrInternal                  = "internal error"
	ErrUnknownMetaChannel        = "unknown meta channel"
)

// AdviceReconnectHandshake is the sole advice value the core emits (spec
// §9 glossary "Advice").
const AdviceReconnectHandshake = "handshake"
