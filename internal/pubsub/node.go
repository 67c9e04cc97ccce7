package pubsub

import (
	"encoding/json"
	"math"
	"math/rand"
)

// Version is a monotonically increasing per-node counter (spec §3 "Node
// version"). Two versions compare by signed difference, saturated to the
// int32 range so a very old known_version never overflows the comparison.
type Version int64

// NewVersion returns a randomized initial version, discouraging
// cross-session replay of a version number from a previous server
// instance (spec §3).
func NewVersion() Version {
	return Version(rand.Int31())
}

// VersionFromWire turns a client-supplied version number (as received in
// a resubscribe/reconnect request) back into a comparable Version. See
// SPEC_FULL.md supplement 5 for why this needs its own constructor
// instead of a bare cast.
func VersionFromWire(n int64) Version {
	return Version(n)
}

// Distance returns v-other, saturated to the int32 range.
func (v Version) Distance(other Version) int {
	d := int64(v) - int64(other)
	if d > math.MaxInt32 {
		return math.MaxInt32
	}
	if d < math.MinInt32 {
		return math.MinInt32
	}
	return int(d)
}

func (v Version) next() Version { return v + 1 }

// update is one retained (from_version -> delta) entry in a Node's ring
// (spec §3 "Node"). delta is the structural diff computed by
// computeDelta, not the full new value.
type update struct {
	fromVersion Version
	delta       json.RawMessage
	size        int
}

// Node holds a data node's current value, version counter, and a bounded
// ring of recent delta updates (spec §3, §4.1).
type Node struct {
	value   json.RawMessage
	version Version
	ring    []update
	// ringSize is the sum of len(u.delta) for u in ring, kept current
	// incrementally so budget checks don't re-walk the ring.
	ringSize int
}

// NewNode creates a node at the given version holding the given value.
func NewNode(version Version, value json.RawMessage) *Node {
	return &Node{value: cloneRaw(value), version: version}
}

// CurrentVersion returns the node's current version.
func (n *Node) CurrentVersion() Version { return n.version }

// OldestVersion returns the oldest version reachable via the retained
// ring (spec §4.1 invariant: oldest_version = current_version -
// ring.length()).
func (n *Node) OldestVersion() Version { return n.version - Version(len(n.ring)) }

// Value returns the node's current value.
func (n *Node) Value() json.RawMessage { return cloneRaw(n.value) }

// Update applies a new value to the node (spec §4.1 "update"). If the new
// value equals the current value byte-for-byte after canonicalization, no
// version bump occurs and Update returns false. Otherwise the version is
// bumped, and if the structural delta from the old to the new value
// serializes to no more than value.size()*keepPercent/100 bytes, that
// delta is pushed onto the ring; a larger delta isn't retained and the
// ring is emptied, since its older entries no longer lead to the new
// version (the version still advances - see SPEC_FULL.md supplement 4).
func (n *Node) Update(value json.RawMessage, keepPercent int) (changed bool, err error) {
	equal, err := jsonEqual(n.value, value)
	if err != nil {
		return false, err
	}
	if equal {
		return false, nil
	}

	budget := len(value) * keepPercent / 100
	stored := false
	if budget > 0 {
		deltaBytes, ok, derr := computeDelta(n.value, value, budget)
		if derr != nil {
			return false, derr
		}
		if ok {
			n.ring = append(n.ring, update{
				fromVersion: n.version,
				delta:       deltaBytes,
				size:        len(deltaBytes),
			})
			n.ringSize += len(deltaBytes)
			stored = true
		}
	}
	if !stored {
		// Older entries no longer chain up to the new version.
		n.ring = nil
		n.ringSize = 0
	}

	n.value = cloneRaw(value)
	n.version = n.version.next()
	n.trimRing(budget)

	return true, nil
}

// trimRing drops the oldest ring entries until the retained size is within
// budget (spec §4.1 "trims ring so total stored size <= the same budget").
func (n *Node) trimRing(budget int) {
	for len(n.ring) > 0 && n.ringSize > budget {
		n.ringSize -= n.ring[0].size
		n.ring = n.ring[1:]
	}
}

// UpdateFrom implements spec §4.1's update_from: if knownVersion is still
// within the ring, it returns the ordered array of retained deltas from
// knownVersion up to current, with isDelta=true. Otherwise it
// returns the full current value with isDelta=false - the known_version is
// "too old" and forces a full resend.
func (n *Node) UpdateFrom(knownVersion Version) (isDelta bool, payload json.RawMessage) {
	distance := n.version.Distance(knownVersion)
	if distance <= 0 || distance > len(n.ring) {
		return false, n.Value()
	}

	start := len(n.ring) - distance
	deltas := make([]json.RawMessage, 0, distance)
	for _, u := range n.ring[start:] {
		deltas = append(deltas, u.delta)
	}
	arr, err := json.Marshal(deltas)
	if err != nil {
		return false, n.Value()
	}
	return true, arr
}

func cloneRaw(v json.RawMessage) json.RawMessage {
	if v == nil {
		return nil
	}
	out := make(json.RawMessage, len(v))
	copy(out, v)
	return out
}

// jsonEqual compares two JSON documents for semantic equality
// (whitespace/key-order insensitive), matching the C++ original's
// json::value::operator== used in node::update (see
// _examples/original_source/source/pubsub/node.cpp).
func jsonEqual(a, b json.RawMessage) (bool, error) {
	if len(a) == 0 && len(b) == 0 {
		return true, nil
	}
	var av, bv any
	if len(a) > 0 {
		if err := json.Unmarshal(a, &av); err != nil {
			return false, err
		}
	}
	if len(b) > 0 {
		if err := json.Unmarshal(b, &bv); err != nil {
			return false, err
		}
	}
	return deepEqualJSON(av, bv), nil
}
