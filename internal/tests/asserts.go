package tests

import (
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ThreeDotsLabs/dispatch/message"
)

func difference(a, b []string) []string {
	mb := map[string]bool{}
	for _, x := range b {
		mb[x] = true
	}
	ab := []string{}
	for _, x := range a {
		if _, ok := mb[x]; !ok {
			ab = append(ab, x)
		}
	}
	return ab
}

func messagesIDs(messages []*message.Message) []string {
	ids := make([]string, 0, len(messages))
	for _, msg := range messages {
		ids = append(ids, msg.ID())
	}

	sort.Strings(ids)
	return ids
}

func correlationIDs(messages []*message.Message) []string {
	ids := make([]string, 0, len(messages))
	for _, msg := range messages {
		ids = append(ids, msg.CorrelationID())
	}

	sort.Strings(ids)
	return ids
}

// MissingMessages returns ids of expected messages which are not in received.
func MissingMessages(expected []*message.Message, received []*message.Message) []string {
	return difference(messagesIDs(expected), messagesIDs(received))
}

// AssertAllRepliesReceived checks if every sent message has exactly one reply correlated with it.
func AssertAllRepliesReceived(t *testing.T, sent []*message.Message, replies []*message.Message) bool {
	t.Helper()

	return assert.Equal(
		t,
		messagesIDs(sent),
		correlationIDs(replies),
		"missing replies: %v", difference(messagesIDs(sent), correlationIDs(replies)),
	)
}

// AssertPayloadsByCorrelation checks payloads of replies, keyed by the id of the message they reply to.
func AssertPayloadsByCorrelation(t *testing.T, expected map[string]message.Payload, replies []*message.Message) bool {
	t.Helper()

	assert.Len(t, replies, len(expected))

	ok := true
	for _, reply := range replies {
		if !assert.Equal(t, expected[reply.CorrelationID()], reply.Payload(), "reply %s", reply.ID()) {
			ok = false
		}
	}

	return ok
}

// Receiver is a channel which can be drained by Collect.
type Receiver interface {
	ReceiveTimeout(timeout time.Duration) (*message.Message, bool)
}

// Collect receives messages until limit is reached or no message came during timeout.
func Collect(r Receiver, limit int, timeout time.Duration) []*message.Message {
	var received []*message.Message

	for len(received) < limit {
		msg, ok := r.ReceiveTimeout(timeout)
		if !ok {
			break
		}
		received = append(received, msg)
	}

	return received
}
