package endpoint

import (
	"github.com/ThreeDotsLabs/dispatch/message"
)

// ChannelResolver looks up channels by name.
type ChannelResolver interface {
	// Resolve returns false when there is no channel with the provided name.
	Resolve(name string) (message.Channel, bool)
}

// DestinationSource tells which candidate the reply destination was resolved from.
type DestinationSource int

const (
	SourceNone DestinationSource = iota
	SourceNextTarget
	SourceOutputChannel
	SourceReturnAddress
)

func (s DestinationSource) String() string {
	switch s {
	case SourceNextTarget:
		return "next_target"
	case SourceOutputChannel:
		return "output_channel"
	case SourceReturnAddress:
		return "return_address"
	default:
		return "none"
	}
}

// Destination is the channel chosen for the reply.
type Destination struct {
	Channel message.Channel
	Source  DestinationSource

	// UnresolvedNextTarget is set when the reply had a next target which couldn't be resolved.
	// It's set also when no destination was found.
	UnresolvedNextTarget message.ChannelRef
}

// ResolveReplyDestination picks the channel which the reply should be delivered to.
//
// Candidates are checked in order:
//  1. next target header of the reply,
//  2. the endpoint's output channel,
//  3. return address header of the request.
//
// A candidate referenced by a name which channels can't resolve (or when channels is nil)
// is skipped. False is returned when no candidate was resolved.
func ResolveReplyDestination(
	request *message.Message,
	reply *message.Message,
	outputChannel message.Channel,
	channels ChannelResolver,
) (Destination, bool) {
	var unresolved message.ChannelRef

	if ref, ok := reply.NextTarget(); ok {
		if ch, ok := resolveRef(ref, channels); ok {
			return Destination{Channel: ch, Source: SourceNextTarget}, true
		}
		unresolved = ref
	}

	if outputChannel != nil {
		return Destination{
			Channel:              outputChannel,
			Source:               SourceOutputChannel,
			UnresolvedNextTarget: unresolved,
		}, true
	}

	if ref, ok := request.ReturnAddress(); ok {
		if ch, ok := resolveRef(ref, channels); ok {
			return Destination{
				Channel:              ch,
				Source:               SourceReturnAddress,
				UnresolvedNextTarget: unresolved,
			}, true
		}
	}

	return Destination{UnresolvedNextTarget: unresolved}, false
}

func resolveRef(ref message.ChannelRef, channels ChannelResolver) (message.Channel, bool) {
	if ch, ok := ref.Channel(); ok {
		return ch, true
	}

	name, ok := ref.Name()
	if !ok || channels == nil {
		return nil, false
	}

	ch, ok := channels.Resolve(name)
	return ch, ok && ch != nil
}
