package message

import "fmt"

// Channel is a destination which accepts messages.
type Channel interface {
	// Send delivers the message. It returns false when the channel refused it.
	//
	// Send must be thread safe.
	Send(msg *Message) bool
}

// NamedChannel is a Channel which can be registered and looked up by name.
type NamedChannel interface {
	Channel
	Name() string
}

// ChannelRef points to a channel either directly or by a name which needs to be resolved.
type ChannelRef struct {
	channel Channel
	name    string
}

// Direct references the provided channel.
func Direct(ch Channel) ChannelRef {
	return ChannelRef{channel: ch}
}

// Named references a channel by name.
func Named(name string) ChannelRef {
	return ChannelRef{name: name}
}

// Channel returns the referenced channel when the reference is direct.
func (r ChannelRef) Channel() (Channel, bool) {
	return r.channel, r.channel != nil
}

// Name returns the channel name when the reference is by name.
func (r ChannelRef) Name() (string, bool) {
	if r.channel != nil {
		return "", false
	}
	return r.name, r.name != ""
}

func (r ChannelRef) IsZero() bool {
	return r.channel == nil && r.name == ""
}

func (r ChannelRef) String() string {
	if r.channel != nil {
		if named, ok := r.channel.(NamedChannel); ok {
			return named.Name()
		}
		return fmt.Sprintf("%T", r.channel)
	}

	return r.name
}

// channelRefFromHeader accepts every form a channel header can be set with.
func channelRefFromHeader(v interface{}) (ChannelRef, bool) {
	var ref ChannelRef

	switch val := v.(type) {
	case ChannelRef:
		ref = val
	case Channel:
		ref = Direct(val)
	case string:
		ref = Named(val)
	default:
		return ChannelRef{}, false
	}

	if ref.IsZero() {
		return ChannelRef{}, false
	}

	return ref, true
}
