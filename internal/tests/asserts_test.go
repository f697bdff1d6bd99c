package tests_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ThreeDotsLabs/dispatch/internal/tests"
	"github.com/ThreeDotsLabs/dispatch/message"
)

func TestMissingMessages(t *testing.T) {
	msg1 := message.NewMessage("1")
	msg2 := message.NewMessage("2")
	msg3 := message.NewMessage("3")

	missing := tests.MissingMessages(
		[]*message.Message{msg1, msg2, msg3},
		[]*message.Message{msg2},
	)

	assert.ElementsMatch(t, []string{msg1.ID(), msg3.ID()}, missing)
}

func TestAssertAllRepliesReceived(t *testing.T) {
	msg1 := message.NewMessage("1")
	msg2 := message.NewMessage("2")

	replies := []*message.Message{
		message.WithPayload("2").SetCorrelationID(msg2.ID()).Build(),
		message.WithPayload("1").SetCorrelationID(msg1.ID()).Build(),
	}

	assert.True(t, tests.AssertAllRepliesReceived(t, []*message.Message{msg1, msg2}, replies))
	assert.True(t, tests.AssertPayloadsByCorrelation(t, map[string]message.Payload{
		msg1.ID(): "1",
		msg2.ID(): "2",
	}, replies))
}
