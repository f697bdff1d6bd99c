package middleware

import (
	"github.com/sony/gobreaker"

	"github.com/ThreeDotsLabs/dispatch/endpoint"
	"github.com/ThreeDotsLabs/dispatch/message"
)

// CircuitBreaker is a middleware that wraps the handler in a circuit breaker.
// When the handler keeps returning errors, the breaker opens and Send fails fast
// with gobreaker.ErrOpenState until the configured timeout passes.
type CircuitBreaker struct {
	cb *gobreaker.CircuitBreaker
}

// NewCircuitBreaker returns a new CircuitBreaker middleware.
// Refer to the gobreaker documentation for the available settings.
func NewCircuitBreaker(settings gobreaker.Settings) CircuitBreaker {
	return CircuitBreaker{
		cb: gobreaker.NewCircuitBreaker(settings),
	}
}

// State returns the current state of the breaker.
func (c CircuitBreaker) State() gobreaker.State {
	return c.cb.State()
}

// Middleware returns the CircuitBreaker middleware.
func (c CircuitBreaker) Middleware(h endpoint.HandlerFunc) endpoint.HandlerFunc {
	return func(msg *message.Message) (*message.Message, error) {
		out, err := c.cb.Execute(func() (interface{}, error) {
			return h(msg)
		})

		// typed nil reply is stored in the interface, so the assertion is safe
		reply, _ := out.(*message.Message)

		return reply, err
	}
}
