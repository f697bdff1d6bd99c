package middleware

import (
	"fmt"
	"runtime/debug"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/ThreeDotsLabs/dispatch/endpoint"
	"github.com/ThreeDotsLabs/dispatch/message"
)

// RecoveredPanicError is returned by the endpoint instead of the handler's reply when the handler panicked.
type RecoveredPanicError struct {
	V          interface{}
	Stacktrace string
}

func (p RecoveredPanicError) Error() string {
	return fmt.Sprintf("panic occurred: %#v, stacktrace: \n%s", p.V, p.Stacktrace)
}

// Recoverer turns a handler panic into RecoveredPanicError.
// The endpoint then routes nothing: a reply the handler may have built before panicking is dropped,
// so a consumer sends the message to its error channel as for any other handler error.
func Recoverer(h endpoint.HandlerFunc) endpoint.HandlerFunc {
	return func(msg *message.Message) (reply *message.Message, err error) {
		defer func() {
			if r := recover(); r != nil {
				panicErr := errors.WithStack(RecoveredPanicError{V: r, Stacktrace: string(debug.Stack())})
				err = multierror.Append(err, panicErr)
				reply = nil
			}
		}()

		return h(msg)
	}
}
