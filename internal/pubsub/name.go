// Package pubsub implements the versioned data-node store and the
// subscription registry that mediates the validate/authorize/initialize
// handshake with the host adapter (spec §4.1, §4.2).
package pubsub

import (
	"fmt"
	"sort"
	"strings"
)

// Name identifies a data node as an ordered set of (domain, value) key
// pairs with unique domains (spec §3 "Node name"). Two names are equal iff
// their canonical sequences are equal; ordering is by that same sequence.
type Name struct {
	keys []nameKey
}

type nameKey struct {
	domain string
	value  string
}

// NewName builds a Name from a domain/value map, canonically ordering the
// keys by domain.
func NewName(kv map[string]string) Name {
	keys := make([]nameKey, 0, len(kv))
	for d, v := range kv {
		keys = append(keys, nameKey{domain: d, value: v})
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].domain < keys[j].domain })
	return Name{keys: keys}
}

// FromChannel parses a Bayeux channel path ("/a/b/c/d") into a Name. The
// path must contain an even, non-zero number of non-empty segments,
// alternating domain/value (spec §6 "Channel <-> node mapping"). An empty
// or malformed path returns an error.
func FromChannel(channel string) (Name, error) {
	if channel == "" || channel[0] != '/' {
		return Name{}, fmt.Errorf("pubsub: channel %q must start with '/'", channel)
	}
	parts := strings.Split(channel[1:], "/")
	if len(parts) == 0 || len(parts)%2 != 0 {
		return Name{}, fmt.Errorf("pubsub: channel %q has an odd number of segments", channel)
	}
	kv := make(map[string]string, len(parts)/2)
	for i := 0; i < len(parts); i += 2 {
		domain, value := parts[i], parts[i+1]
		if domain == "" || value == "" {
			return Name{}, fmt.Errorf("pubsub: channel %q has an empty segment", channel)
		}
		if _, exists := kv[domain]; exists {
			return Name{}, fmt.Errorf("pubsub: channel %q repeats domain %q", channel, domain)
		}
		kv[domain] = value
	}
	return NewName(kv), nil
}

// Channel renders the Name back to its canonical "/d1/v1/d2/v2" wire form.
func (n Name) Channel() string {
	var b strings.Builder
	for _, k := range n.keys {
		b.WriteByte('/')
		b.WriteString(k.domain)
		b.WriteByte('/')
		b.WriteString(k.value)
	}
	return b.String()
}

// Map renders the Name as a domain->value map, matching the JSON-object
// wire form of a node name.
func (n Name) Map() map[string]string {
	out := make(map[string]string, len(n.keys))
	for _, k := range n.keys {
		out[k.domain] = k.value
	}
	return out
}

// Empty reports whether the name carries no keys at all.
func (n Name) Empty() bool {
	return len(n.keys) == 0
}

// Equal reports whether two names carry the same canonical key sequence.
func (n Name) Equal(other Name) bool {
	if len(n.keys) != len(other.keys) {
		return false
	}
	for i := range n.keys {
		if n.keys[i] != other.keys[i] {
			return false
		}
	}
	return true
}

// Less orders names first by key count, then lexicographically by their
// canonical (domain, value) sequence. It exists so Name can key ordered
// containers deterministically; map keys use String() instead.
func (n Name) Less(other Name) bool {
	if len(n.keys) != len(other.keys) {
		return len(n.keys) < len(other.keys)
	}
	for i := range n.keys {
		if n.keys[i].domain != other.keys[i].domain {
			return n.keys[i].domain < other.keys[i].domain
		}
		if n.keys[i].value != other.keys[i].value {
			return n.keys[i].value < other.keys[i].value
		}
	}
	return false
}

// String renders the name for logging, using the canonical channel form.
func (n Name) String() string {
	return n.Channel()
}
