package bayeux

import (
	"fmt"
	"sync"
	"time"

	"github.com/xtroce/sioux/internal/pubsub"
)

// debugAssertInvariants gates the connector's size(sessions)==size(index)
// checks (supplement 1, grounded on bayeux.cpp's drop_session assert).
// Off by default; cmd/bayeuxd turns it on when Config.Debug is set.
var debugAssertInvariants = false

// SetDebugAssertions toggles the connector's invariant assertions.
func SetDebugAssertions(enabled bool) { debugAssertInvariants = enabled }

type sessionEntry struct {
	session  *Session
	useCount int
	timer    *time.Timer
}

// Connector owns every live session keyed by id, generates ids, and
// tracks concurrent use counts to schedule idle-timeout expiry (spec
// §4.4, C4). Sessions are borrowed by short-lived handles obtained from
// Find or Create and returned via Idle (or Drop, for /meta/disconnect).
type Connector struct {
	config   Config
	registry *pubsub.Registry
	idgen    *IDGenerator

	mu       sync.Mutex
	sessions map[string]*sessionEntry
	index    map[*Session]string
}

// NewConnector creates an empty Connector.
func NewConnector(config Config, registry *pubsub.Registry) *Connector {
	return &Connector{
		config:   config,
		registry: registry,
		idgen:    NewIDGenerator(),
		sessions: make(map[string]*sessionEntry),
		index:    make(map[*Session]string),
	}
}

// Find looks up a session by clientId, incrementing its use count and
// cancelling any armed idle timer (spec §4.4, §5 "cancelled by any
// find_or_create on that id").
func (c *Connector) Find(id string) (*Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.sessions[id]
	if !ok {
		return nil, false
	}
	entry.useCount++
	if entry.timer != nil {
		entry.timer.Stop()
		entry.timer = nil
	}
	c.assertInvariantLocked()
	return entry.session, true
}

// Create generates a fresh session id for peer (retrying on collision)
// and registers a new session with use_count=1 (spec §4.4).
func (c *Connector) Create(peer string) *Session {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.idgen.Generate(peer)
	for {
		if _, exists := c.sessions[id]; !exists {
			break
		}
		id = c.idgen.GenerateWithEntropy(peer)
	}

	session := NewSession(id, c.config, c.registry)
	c.sessions[id] = &sessionEntry{session: session, useCount: 1}
	c.index[session] = id

	c.assertInvariantLocked()
	return session
}

// Idle decrements session's use count, arming the configured idle timer
// once it reaches zero (spec §4.4).
func (c *Connector) Idle(session *Session) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id, ok := c.index[session]
	if !ok {
		return
	}
	entry := c.sessions[id]
	if entry.useCount > 0 {
		entry.useCount--
	}
	if entry.useCount == 0 {
		entry.timer = time.AfterFunc(c.config.SessionTimeout, func() {
			c.reap(session)
		})
	}
	c.assertInvariantLocked()
}

// Drop is the explicit close path used by /meta/disconnect: it removes
// the session only if its use count is already zero (the caller must
// have released its own handle via Idle first), otherwise removal is
// deferred to the next idle-timeout expiry (spec §4.4).
func (c *Connector) Drop(id string) {
	c.mu.Lock()
	entry, ok := c.sessions[id]
	if !ok || entry.useCount != 0 {
		c.mu.Unlock()
		return
	}
	if entry.timer != nil {
		entry.timer.Stop()
	}
	delete(c.sessions, id)
	delete(c.index, entry.session)
	c.assertInvariantLocked()
	c.mu.Unlock()

	entry.session.Close()
}

// reap is the idle timer's expiry callback: it erases the session from
// both maps if use_count is still zero, otherwise the timer's firing was
// implicitly stale (the session was reacquired in the meantime) and it
// does nothing (spec §4.4 "Timer expiry").
func (c *Connector) reap(session *Session) {
	c.mu.Lock()
	id, ok := c.index[session]
	if !ok {
		c.mu.Unlock()
		return
	}
	entry := c.sessions[id]
	if entry.useCount != 0 {
		c.mu.Unlock()
		return
	}
	delete(c.sessions, id)
	delete(c.index, session)
	c.assertInvariantLocked()
	c.mu.Unlock()

	session.Close()
}

func (c *Connector) assertInvariantLocked() {
	if !debugAssertInvariants {
		return
	}
	if len(c.sessions) != len(c.index) {
		panic(fmt.Sprintf("bayeux: connector invariant violated: sessions=%d index=%d", len(c.sessions), len(c.index)))
	}
}

// Len reports the number of live sessions, for tests and admin
// diagnostics.
func (c *Connector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sessions)
}
