package bayeux

import "github.com/xtroce/sioux/internal/pubsub"

// ChannelToName converts a Bayeux channel string to a pubsub.Name (spec
// §6 "Channel <-> node mapping"). ok is false for anything that fails the
// mapping rules, in which case the caller should fail the operation with
// pubsub.ReasonInvalidSubscription.
func ChannelToName(channel string) (pubsub.Name, bool) {
	name, err := pubsub.FromChannel(channel)
	if err != nil {
		return pubsub.Name{}, false
	}
	return name, true
}

// isMeta reports whether channel is one of the reserved /meta/* protocol
// endpoints, as opposed to a data node or publish target (spec §4.5's
// routing table).
func isMeta(channel string) bool {
	return len(channel) >= len("/meta/") && channel[:len("/meta/")] == "/meta/"
}
