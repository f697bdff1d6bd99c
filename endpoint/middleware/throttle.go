package middleware

import (
	"time"

	"github.com/ThreeDotsLabs/dispatch/endpoint"
	"github.com/ThreeDotsLabs/dispatch/message"
)

// Throttle limits the number of messages handled per unit of time.
// One Throttle can be shared by many endpoints, they will wait for their tick.
type Throttle struct {
	ticker *time.Ticker
}

// NewThrottle creates a new Throttle middleware.
// Example count and duration: NewThrottle(10, time.Second) for 10 messages per second.
func NewThrottle(count int64, duration time.Duration) *Throttle {
	return &Throttle{ticker: time.NewTicker(duration / time.Duration(count))}
}

func (t *Throttle) Middleware(h endpoint.HandlerFunc) endpoint.HandlerFunc {
	return func(msg *message.Message) (*message.Message, error) {
		<-t.ticker.C

		return h(msg)
	}
}

// Stop releases the ticker. Handlers waiting for a tick after Stop will block forever.
func (t *Throttle) Stop() {
	t.ticker.Stop()
}
