package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/ThreeDotsLabs/dispatch"
	"github.com/ThreeDotsLabs/dispatch/message"
)

// ErrRequestRefused is returned when the request channel didn't accept the request.
var ErrRequestRefused = errors.New("request channel refused request")

// ReplyTimeoutError is returned when no reply came within the timeout or before the context was done.
type ReplyTimeoutError struct {
	Duration time.Duration
	Err      error
}

func (e ReplyTimeoutError) Error() string {
	return fmt.Sprintf("reply timeout after %s: %s", e.Duration, e.Err)
}

type Config struct {
	// RequestChannel receives the requests. Endpoints consuming it should have no output channel,
	// so the replies are routed back to the return address.
	RequestChannel message.Channel

	// ReplyTimeout limits how long SendAndReceive waits for the reply.
	ReplyTimeout time.Duration
}

func (c *Config) setDefaults() {
	if c.ReplyTimeout == 0 {
		c.ReplyTimeout = time.Second * 30
	}
}

func (c Config) Validate() error {
	if c.RequestChannel == nil {
		return errors.New("missing request channel")
	}
	if c.ReplyTimeout < 0 {
		return errors.New("reply timeout should be positive")
	}

	return nil
}

// Gateway sends requests and waits for their replies.
type Gateway struct {
	config Config
	logger dispatch.LoggerAdapter
}

func NewGateway(config Config, logger dispatch.LoggerAdapter) (*Gateway, error) {
	config.setDefaults()
	if err := config.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid gateway config")
	}
	if logger == nil {
		logger = dispatch.NopLogger{}
	}

	return &Gateway{
		config: config,
		logger: logger,
	}, nil
}

// SendAndReceive sends msg with the return address set to a temporary reply channel
// and returns the first reply correlated with it.
//
// Any return address already set in msg is replaced. The request keeps the id of msg.
func (g *Gateway) SendAndReceive(ctx context.Context, msg *message.Message) (*message.Message, error) {
	replies := newReplyChannel()

	request := message.FromMessage(msg).
		SetID(msg.ID()).
		SetReturnAddress(message.Direct(replies)).
		Build()

	logFields := dispatch.LogFields{"message_id": request.ID()}

	if !g.config.RequestChannel.Send(request) {
		return nil, errors.Wrapf(ErrRequestRefused, "message %s", request.ID())
	}
	g.logger.Trace("Request sent, waiting for reply", logFields)

	timer := time.NewTimer(g.config.ReplyTimeout)
	defer timer.Stop()

	for {
		select {
		case reply := <-replies.ch:
			if reply.CorrelationID() != request.ID() {
				g.logger.Debug("Discarding reply not correlated with request", logFields.Add(dispatch.LogFields{
					"reply_id":       reply.ID(),
					"correlation_id": reply.CorrelationID(),
				}))
				continue
			}

			g.logger.Trace("Reply received", logFields.Add(dispatch.LogFields{"reply_id": reply.ID()}))
			return reply, nil
		case <-timer.C:
			return nil, ReplyTimeoutError{Duration: g.config.ReplyTimeout, Err: errors.New("no reply")}
		case <-ctx.Done():
			return nil, ReplyTimeoutError{Duration: g.config.ReplyTimeout, Err: ctx.Err()}
		}
	}
}

// replyChannel never blocks the sender, replies which can't be buffered are refused.
type replyChannel struct {
	ch chan *message.Message
}

func newReplyChannel() replyChannel {
	return replyChannel{ch: make(chan *message.Message, 1)}
}

func (r replyChannel) Send(msg *message.Message) bool {
	select {
	case r.ch <- msg:
		return true
	default:
		return false
	}
}
