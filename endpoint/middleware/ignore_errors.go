package middleware

import (
	"github.com/pkg/errors"

	"github.com/ThreeDotsLabs/dispatch/endpoint"
	"github.com/ThreeDotsLabs/dispatch/message"
)

// IgnoreErrors makes listed handler errors (compared by their cause) count as success.
//
// The reply returned together with an ignored error is routed like any other reply.
// Without a reply, the endpoint treats the message as handled with nothing to deliver,
// unless it requires a reply.
type IgnoreErrors struct {
	ignoredErrors map[string]struct{}
}

// NewIgnoreErrors creates IgnoreErrors for errs. Errors are matched by their message.
func NewIgnoreErrors(errs []error) IgnoreErrors {
	errsMap := make(map[string]struct{}, len(errs))

	for _, err := range errs {
		errsMap[err.Error()] = struct{}{}
	}

	return IgnoreErrors{errsMap}
}

// Middleware returns the IgnoreErrors middleware.
func (i IgnoreErrors) Middleware(h endpoint.HandlerFunc) endpoint.HandlerFunc {
	return func(msg *message.Message) (*message.Message, error) {
		reply, err := h(msg)
		if err != nil {
			if _, ok := i.ignoredErrors[errors.Cause(err).Error()]; ok {
				return reply, nil
			}

			return reply, err
		}

		return reply, nil
	}
}
