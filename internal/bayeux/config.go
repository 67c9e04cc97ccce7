package bayeux

import "time"

// Config carries the subset of internal/config.Config the session engine
// and dispatcher need, decoupled from the process-wide config type so the
// package stays embeddable (spec §6 "Configuration (enumerated)").
type Config struct {
	// SessionTimeout is the idle duration after which a session with
	// use_count=0 is reaped (spec §4.4).
	SessionTimeout time.Duration
	// LongPollingTimeout bounds how long a /meta/connect may stay
	// parked (spec §4.6).
	LongPollingTimeout time.Duration
	// MaxMessagesPerClient caps a session's event queue by count
	// (spec §4.3).
	MaxMessagesPerClient int
	// MaxMessagesSizePerClient caps a session's event queue by summed
	// serialized size (spec §4.3).
	MaxMessagesSizePerClient int
	// KeepUpdatePercent is the node store's delta-ring budget, as a
	// percentage of the current value's size (spec §4.1).
	KeepUpdatePercent int
	// SupportedConnectionTypes records the connection types the embedding
	// host configured. The dispatcher does not read it: a handshake reply
	// always advertises DefaultSupportedConnectionTypes (spec §6).
	SupportedConnectionTypes []string
}

// DefaultSupportedConnectionTypes is the connection type list the server
// advertises regardless of what the client offers, provided long-polling
// is among the client's offered types (spec §6).
var DefaultSupportedConnectionTypes = []string{"long-polling"}
