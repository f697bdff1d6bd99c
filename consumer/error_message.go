package consumer

import (
	"github.com/ThreeDotsLabs/dispatch/message"
)

// HeaderFailedMessage holds the message which failed to be handled.
const HeaderFailedMessage = "failedMessage"

// NewErrorMessage creates a message describing a failure of handling failed.
// Its payload is err and it's correlated with the failed message.
func NewErrorMessage(failed *message.Message, err error) *message.Message {
	return message.WithPayload(err).
		SetCorrelationID(failed.ID()).
		SetHeader(HeaderFailedMessage, failed).
		Build()
}

// FailedMessage returns the message carried by an error message.
func FailedMessage(errorMessage *message.Message) (*message.Message, bool) {
	v, ok := errorMessage.Header(HeaderFailedMessage)
	if !ok {
		return nil, false
	}

	failed, ok := v.(*message.Message)
	return failed, ok
}
