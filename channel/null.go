package channel

import (
	"github.com/ThreeDotsLabs/dispatch/message"
)

// NullChannel accepts every message and drops it.
type NullChannel struct {
	ChannelName string
}

func (n NullChannel) Send(msg *message.Message) bool {
	return true
}

func (n NullChannel) Name() string {
	if n.ChannelName == "" {
		return "nullChannel"
	}

	return n.ChannelName
}
