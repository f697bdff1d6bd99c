package endpoint

import (
	"github.com/ThreeDotsLabs/dispatch/message"
)

// Handler processes the inbound message.
//
// Returning a nil reply without an error means that there is nothing to deliver.
// Errors returned by Handle are returned to the caller of Endpoint.Send unchanged.
type Handler interface {
	Handle(msg *message.Message) (*message.Message, error)
}

// HandlerFunc is an adapter allowing to use an ordinary function as a Handler.
type HandlerFunc func(msg *message.Message) (*message.Message, error)

func (f HandlerFunc) Handle(msg *message.Message) (*message.Message, error) {
	return f(msg)
}

// HandlerMiddleware allows us to write something like decorators to HandlerFunc.
// It can execute something before the handler (for example: modify the consumed message)
// or after (modify the reply, observe the error, etc.).
type HandlerMiddleware func(h HandlerFunc) HandlerFunc
