package bayeux

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/url"
	"strings"
)

// Message is an outbound Bayeux reply or event. Bayeux's wire objects
// carry a different, freely-extensible set of fields per message type
// (channel, clientId, successful, error, advice, subscription, data,
// id, ...), so a plain map is the natural Go shape - the same choice the
// wire protocol itself makes by never fixing a schema.
type Message map[string]any

// InMessage is one decoded incoming Bayeux message.
type InMessage struct {
	Channel                  string
	ClientID                 string
	ID                       any
	Subscription             string
	ConnectionType           string
	SupportedConnectionTypes []string
	Data                     json.RawMessage
	Raw                      json.RawMessage
}

// DecodeBatch turns a raw HTTP request body/query into an ordered slice of
// InMessage, honoring the three input encodings spec §4.5 requires.
// contentType is the request's Content-Type header value; query is
// non-nil only for GET requests, in which case it takes precedence.
func DecodeBatch(contentType string, body []byte, query url.Values) ([]InMessage, error) {
	var raws []json.RawMessage
	var err error

	switch {
	case query != nil:
		raws, err = decodeFormValues(query)
	case strings.HasPrefix(contentType, "application/json"):
		raws, err = decodeJSONBody(body)
	case strings.HasPrefix(contentType, "application/x-www-form-urlencoded"):
		values, perr := url.ParseQuery(string(body))
		if perr != nil {
			return nil, perr
		}
		raws, err = decodeFormValues(values)
	default:
		raws, err = decodeJSONBody(body)
	}
	if err != nil {
		return nil, err
	}

	out := make([]InMessage, 0, len(raws))
	for _, raw := range raws {
		msg, err := decodeMessage(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, msg)
	}
	return out, nil
}

func decodeJSONBody(body []byte) ([]json.RawMessage, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, errors.New("bayeux: empty request body")
	}
	if body[0] == '[' {
		var arr []json.RawMessage
		if err := json.Unmarshal(body, &arr); err != nil {
			return nil, err
		}
		return arr, nil
	}
	return []json.RawMessage{json.RawMessage(body)}, nil
}

// decodeFormValues flattens every "message" parameter left-to-right,
// where each parameter's decoded value may itself be a single JSON object
// or a JSON array of objects (spec §4.5 encoding 2 and 3).
func decodeFormValues(values url.Values) ([]json.RawMessage, error) {
	params := values["message"]
	if len(params) == 0 {
		return nil, errors.New("bayeux: missing message parameter")
	}
	var out []json.RawMessage
	for _, p := range params {
		msgs, err := decodeJSONBody([]byte(p))
		if err != nil {
			return nil, err
		}
		out = append(out, msgs...)
	}
	return out, nil
}

func decodeMessage(raw json.RawMessage) (InMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return InMessage{}, err
	}

	msg := InMessage{Raw: raw}
	if v, ok := fields["channel"]; ok {
		_ = json.Unmarshal(v, &msg.Channel)
	}
	if v, ok := fields["clientId"]; ok {
		_ = json.Unmarshal(v, &msg.ClientID)
	}
	if v, ok := fields["id"]; ok {
		var id any
		_ = json.Unmarshal(v, &id)
		msg.ID = id
	}
	if v, ok := fields["subscription"]; ok {
		_ = json.Unmarshal(v, &msg.Subscription)
	}
	if v, ok := fields["connectionType"]; ok {
		_ = json.Unmarshal(v, &msg.ConnectionType)
	}
	if v, ok := fields["supportedConnectionTypes"]; ok {
		_ = json.Unmarshal(v, &msg.SupportedConnectionTypes)
	}
	if v, ok := fields["data"]; ok {
		msg.Data = v
	}
	return msg, nil
}

// withID copies id into m under "id" if id was actually supplied on the
// request (spec §4.5 "Correlation": echoes a verbatim copy of any id
// field from the request").
func withID(m Message, id any) Message {
	if id != nil {
		m["id"] = id
	}
	return m
}

func marshalAll(msgs []Message) ([]json.RawMessage, error) {
	out := make([]json.RawMessage, 0, len(msgs))
	for _, m := range msgs {
		b, err := json.Marshal(m)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

// extractDataID hoists a top-level "id" key out of a node's JSON value, if
// present, so on_update events can carry it per spec §4.3
// ("id-if-present-in-data").
func extractDataID(value json.RawMessage) (any, bool) {
	var obj map[string]any
	if err := json.Unmarshal(value, &obj); err != nil {
		return nil, false
	}
	id, ok := obj["id"]
	return id, ok
}
