package endpoint

import (
	"github.com/pkg/errors"
)

var (
	// ErrMessageRejected is returned when the selector didn't accept the message.
	// The handler was not called.
	ErrMessageRejected = errors.New("message rejected by selector")

	// ErrReplyRequired is returned when the handler returned no reply, but the endpoint requires one.
	ErrReplyRequired = errors.New("handler returned no reply")

	// ErrNoReplyTarget is returned when neither the next target, the output channel
	// nor the return address could be resolved for the reply.
	ErrNoReplyTarget = errors.New("no reply target")

	// ErrDeliveryFailed is returned when the resolved reply target refused the reply.
	ErrDeliveryFailed = errors.New("reply delivery failed")
)

// IsRejected returns true when err was caused by the selector rejecting the message.
func IsRejected(err error) bool {
	return errors.Cause(err) == ErrMessageRejected
}
