package bayeux

import (
	"encoding/json"
	"errors"
	"net/url"

	"github.com/xtroce/sioux/internal/audit"
	"github.com/xtroce/sioux/internal/pubsub"
)

// Dispatcher decodes incoming Bayeux message batches, routes them to
// session operations, and assembles the HTTP response (spec §4.5, C5).
type Dispatcher struct {
	connector *Connector
	registry  *pubsub.Registry
	config    Config
	auditor   *audit.DB
}

// NewDispatcher creates a Dispatcher over connector and registry.
func NewDispatcher(connector *Connector, registry *pubsub.Registry, config Config) *Dispatcher {
	return &Dispatcher{connector: connector, registry: registry, config: config}
}

// SetAuditor attaches an audit trail. Every handshake, connect,
// disconnect, subscribe, unsubscribe, and publish decision is then
// recorded there; nil disables auditing (the default).
func (d *Dispatcher) SetAuditor(db *audit.DB) { d.auditor = db }

func (d *Dispatcher) record(sessionID string, kind audit.Kind, channel string, ok bool, detail string) {
	if d.auditor == nil {
		return
	}
	d.auditor.Record(sessionID, kind, channel, ok, detail)
}

// Result is what Dispatch hands to the HTTP layer: either a payload ready
// to write immediately, or a parked Response the caller must Wait on.
type Result struct {
	Payload  []json.RawMessage
	Response *Response
}

// Dispatch decodes and processes one HTTP request's Bayeux batch. peer
// identifies the underlying network connection and is used only when a
// handshake message creates a fresh session. A non-nil error means the
// body failed to parse at the transport level; callers close the
// connection without a reply (spec §4.5, §9 malformed-body decision).
func (d *Dispatcher) Dispatch(peer, contentType string, body []byte, query url.Values) (*Result, error) {
	messages, err := DecodeBatch(contentType, body, query)
	if err != nil {
		return nil, err
	}
	if len(messages) == 0 {
		return nil, errors.New("bayeux: empty batch")
	}

	acquired := make(map[string]*Session)
	disconnected := make(map[string]bool)
	var replies []Message
	var connectSession *Session
	connectIsLast := false

	resolve := func(clientID string) (*Session, bool) {
		if sess, ok := acquired[clientID]; ok {
			return sess, true
		}
		sess, ok := d.connector.Find(clientID)
		if !ok {
			return nil, false
		}
		acquired[clientID] = sess
		// A subsequent HTTP request touching this session hurries any
		// response still parked from an earlier one before its own
		// messages are processed (spec §4.5, §8 "Hurry").
		sess.Hurry()
		return sess, true
	}

	for i, msg := range messages {
		isLast := i == len(messages)-1

		switch msg.Channel {
		case "/meta/handshake":
			reply, sess := d.handshake(peer, msg)
			replies = append(replies, reply)
			if sess != nil {
				// The handle Create opened is released with the rest of
				// the batch's, so an abandoned session can be reaped.
				acquired[sess.ID()] = sess
			}
			ok, _ := reply["successful"].(bool)
			clientID, _ := reply["clientId"].(string)
			d.record(clientID, audit.KindHandshake, msg.Channel, ok, "")

		case "/meta/connect":
			sess, ok := resolve(msg.ClientID)
			if !ok {
				replies = append(replies, withID(Message{
					"channel":    "/meta/connect",
					"clientId":   msg.ClientID,
					"successful": false,
					"error":      ErrInvalidClientID,
					"advice":     Message{"reconnect": AdviceReconnectHandshake},
				}, msg.ID))
				d.record(msg.ClientID, audit.KindConnect, msg.Channel, false, ErrInvalidClientID)
				break
			}
			if !supportsLongPolling(msg.ConnectionType) {
				replies = append(replies, withID(Message{
					"channel":    "/meta/connect",
					"clientId":   sess.ID(),
					"successful": false,
					"error":      ErrUnsupportedConnectionType,
				}, msg.ID))
				d.record(sess.ID(), audit.KindConnect, msg.Channel, false, ErrUnsupportedConnectionType)
				break
			}
			replies = append(replies, withID(Message{
				"channel":    "/meta/connect",
				"clientId":   sess.ID(),
				"successful": true,
			}, msg.ID))
			d.record(sess.ID(), audit.KindConnect, msg.Channel, true, "")
			connectSession = sess
			connectIsLast = isLast

		case "/meta/subscribe":
			sess, ok := resolve(msg.ClientID)
			if !ok {
				replies = append(replies, withID(Message{
					"channel":    "/meta/subscribe",
					"clientId":   msg.ClientID,
					"successful": false,
					"error":      ErrInvalidClientID,
				}, msg.ID))
				d.record(msg.ClientID, audit.KindSubscribe, msg.Subscription, false, ErrInvalidClientID)
				break
			}
			if msg.Subscription == "" {
				replies = append(replies, withID(Message{
					"channel":    "/meta/subscribe",
					"clientId":   sess.ID(),
					"successful": false,
					"error":      ErrInvalidClientID,
				}, msg.ID))
				d.record(sess.ID(), audit.KindSubscribe, msg.Subscription, false, ErrInvalidClientID)
				break
			}
			sess.Subscribe(msg.Subscription, msg.ID)
			d.record(sess.ID(), audit.KindSubscribe, msg.Subscription, true, "requested")

		case "/meta/unsubscribe":
			sess, ok := resolve(msg.ClientID)
			if !ok {
				replies = append(replies, withID(Message{
					"channel":    "/meta/unsubscribe",
					"clientId":   msg.ClientID,
					"successful": false,
					"error":      ErrInvalidClientID,
				}, msg.ID))
				d.record(msg.ClientID, audit.KindUnsubscribe, msg.Subscription, false, ErrInvalidClientID)
				break
			}
			if msg.Subscription == "" {
				replies = append(replies, withID(Message{
					"channel":    "/meta/unsubscribe",
					"clientId":   sess.ID(),
					"successful": false,
					"error":      ErrInvalidClientID,
				}, msg.ID))
				d.record(sess.ID(), audit.KindUnsubscribe, msg.Subscription, false, ErrInvalidClientID)
				break
			}
			sess.Unsubscribe(msg.Subscription, msg.ID)
			d.record(sess.ID(), audit.KindUnsubscribe, msg.Subscription, true, "requested")

		case "/meta/disconnect":
			sess, ok := resolve(msg.ClientID)
			if !ok {
				replies = append(replies, withID(Message{
					"channel":    "/meta/disconnect",
					"clientId":   msg.ClientID,
					"successful": false,
					"error":      ErrInvalidClientID,
				}, msg.ID))
				d.record(msg.ClientID, audit.KindDisconnect, msg.Channel, false, ErrInvalidClientID)
				break
			}
			replies = append(replies, withID(Message{
				"channel":    "/meta/disconnect",
				"clientId":   sess.ID(),
				"successful": true,
			}, msg.ID))
			d.record(sess.ID(), audit.KindDisconnect, msg.Channel, true, "")
			disconnected[sess.ID()] = true

		default:
			if isMeta(msg.Channel) {
				replies = append(replies, withID(Message{
					"channel":    msg.Channel,
					"successful": false,
					"error":      ErrUnknownMetaChannel,
				}, msg.ID))
				break
			}
			sess, ok := resolve(msg.ClientID)
			if !ok {
				replies = append(replies, withID(Message{
					"channel":    msg.Channel,
					"successful": false,
					"error":      ErrInvalidClientID,
				}, msg.ID))
				d.record(msg.ClientID, audit.KindPublish, msg.Channel, false, ErrInvalidClientID)
				break
			}
			sess.Publish(msg.Channel, msg.Data, msg.Raw, msg.ID)
			d.record(sess.ID(), audit.KindPublish, msg.Channel, true, "requested")
		}
	}

	replyPayload, err := marshalAll(replies)
	if err != nil {
		d.release(acquired, disconnected)
		return nil, err
	}
	response := NewResponse(replyPayload)

	// Response assembly (spec §4.5): a last-message /meta/connect with no
	// events queued parks; everything else drains and writes now. A parked
	// session must keep its use count above zero for as long as it's
	// parked, or the idle timer can reap it mid-poll (spec §4.4, §8 "Idle
	// reap"); its own Idle release is wired to fire only once the Response
	// actually resolves, not the moment it's handed off to WaitForEvents.
	if connectSession != nil && connectIsLast && !disconnected[connectSession.ID()] {
		response.SetOnResolve(func() { d.connector.Idle(connectSession) })
		events, parked := connectSession.WaitForEvents(response)
		if !parked {
			d.release(acquired, disconnected)
			return &Result{Payload: response.Immediate(events)}, nil
		}
		delete(acquired, connectSession.ID())
		d.release(acquired, disconnected)
		response.Park(d.config.LongPollingTimeout, func() {
			connectSession.Timeout(response)
		})
		return &Result{Response: response}, nil
	}

	var events []json.RawMessage
	for _, sess := range acquired {
		events = append(events, sess.Events()...)
	}
	d.release(acquired, disconnected)
	return &Result{Payload: response.Immediate(events)}, nil
}

func (d *Dispatcher) release(acquired map[string]*Session, disconnected map[string]bool) {
	for id, sess := range acquired {
		d.connector.Idle(sess)
		if disconnected[id] {
			d.connector.Drop(id)
		}
	}
}

func (d *Dispatcher) handshake(peer string, msg InMessage) (Message, *Session) {
	if !offersLongPolling(msg.SupportedConnectionTypes) {
		return withID(Message{
			"channel":    "/meta/handshake",
			"version":    "1.0",
			"successful": false,
			"error":      ErrUnsupportedConnectionType,
		}, msg.ID), nil
	}
	sess := d.connector.Create(peer)
	return withID(Message{
		"channel":                  "/meta/handshake",
		"version":                  "1.0",
		"clientId":                 sess.ID(),
		"successful":               true,
		"supportedConnectionTypes": DefaultSupportedConnectionTypes,
	}, msg.ID), sess
}

func offersLongPolling(offered []string) bool {
	for _, c := range offered {
		if c == "long-polling" {
			return true
		}
	}
	return false
}

func supportsLongPolling(connectionType string) bool {
	return connectionType == "long-polling"
}
