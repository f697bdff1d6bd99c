package endpoint

import (
	"github.com/pkg/errors"

	"github.com/ThreeDotsLabs/dispatch"
	"github.com/ThreeDotsLabs/dispatch/message"
	"github.com/ThreeDotsLabs/dispatch/selector"
)

// Config holds the endpoint's reply routing policy. It can't be changed after the endpoint is created.
type Config struct {
	// Name is used in logs and metrics. Random short UUID is used when empty.
	Name string

	// OutputChannel receives replies when the handler didn't set a next target.
	OutputChannel message.Channel

	// Selector is consulted before the handler is called.
	// Messages which are not accepted are rejected with ErrMessageRejected.
	Selector selector.Selector

	// RequiresReply makes Send fail with ErrReplyRequired when the handler returns no reply.
	RequiresReply bool

	// ChannelResolver is used to resolve next targets and return addresses set by name.
	// Without it, only direct channel references can be used.
	ChannelResolver ChannelResolver

	// Middlewares wrap the handler. The first middleware is the outermost one.
	Middlewares []HandlerMiddleware
}

func (c *Config) setDefaults() {
	if c.Name == "" {
		c.Name = dispatch.NewShortUUID()
	}
}

// Endpoint binds a handler to a selector and a reply routing policy.
//
// Endpoint holds no per-call state, so Send can be called from multiple goroutines
// as long as the handler, selector and channels are thread safe.
type Endpoint struct {
	config  Config
	handler HandlerFunc
	logger  dispatch.LoggerAdapter
}

// New creates an Endpoint with the provided handler.
func New(handler Handler, config Config, logger dispatch.LoggerAdapter) (*Endpoint, error) {
	if handler == nil {
		return nil, errors.New("missing handler")
	}
	if logger == nil {
		logger = dispatch.NopLogger{}
	}

	config.setDefaults()

	h := HandlerFunc(handler.Handle)
	// first added middlewares should be executed first (so should be at the top of call stack)
	for i := len(config.Middlewares) - 1; i >= 0; i-- {
		h = config.Middlewares[i](h)
	}

	return &Endpoint{
		config:  config,
		handler: h,
		logger:  logger.With(dispatch.LogFields{"endpoint": config.Name}),
	}, nil
}

func (e *Endpoint) Name() string {
	return e.config.Name
}

// Send processes the message and delivers the reply.
//
// It returns true when the handler was called and its reply (if any) was delivered.
// Errors returned by the handler are returned unchanged. Other failures are reported
// with ErrMessageRejected, ErrReplyRequired, ErrNoReplyTarget or ErrDeliveryFailed,
// which can be checked with errors.Cause.
func (e *Endpoint) Send(msg *message.Message) (bool, error) {
	logFields := dispatch.LogFields{"message_id": msg.ID()}

	if e.config.Selector != nil && !e.config.Selector.Accept(msg) {
		e.logger.Debug("Message rejected by selector", logFields)
		return false, errors.Wrapf(ErrMessageRejected, "endpoint %s, message %s", e.config.Name, msg.ID())
	}

	e.logger.Trace("Calling handler", logFields)

	reply, err := e.handler(msg)
	if err != nil {
		e.logger.Debug("Handler returned error", logFields.Add(dispatch.LogFields{"err": err}))
		return false, err
	}

	if reply == nil {
		if e.config.RequiresReply {
			return false, errors.Wrapf(ErrReplyRequired, "endpoint %s, message %s", e.config.Name, msg.ID())
		}

		e.logger.Trace("Handler returned no reply", logFields)
		return true, nil
	}

	if _, ok := reply.Header(message.HeaderCorrelationID); !ok {
		reply = message.FromMessage(reply).
			SetID(reply.ID()).
			SetCorrelationID(msg.ID()).
			Build()
	}

	logFields = logFields.Add(dispatch.LogFields{"reply_id": reply.ID()})

	destination, ok := ResolveReplyDestination(msg, reply, e.config.OutputChannel, e.config.ChannelResolver)
	if !destination.UnresolvedNextTarget.IsZero() {
		e.logger.Debug("Next target not resolved, falling back", logFields.Add(dispatch.LogFields{
			"next_target": destination.UnresolvedNextTarget.String(),
		}))
	}
	if !ok {
		return false, errors.Wrapf(ErrNoReplyTarget, "endpoint %s, message %s", e.config.Name, msg.ID())
	}

	if destination.Source == SourceNextTarget {
		// next target is meant only for this endpoint, it must not be seen by the next one
		reply = message.FromMessage(reply).
			SetID(reply.ID()).
			RemoveHeader(message.HeaderNextTarget).
			Build()
	}

	logFields = logFields.Add(dispatch.LogFields{"reply_target": destination.Source})
	e.logger.Trace("Sending reply", logFields)

	if !destination.Channel.Send(reply) {
		return false, errors.Wrapf(
			ErrDeliveryFailed,
			"endpoint %s, message %s, target %s", e.config.Name, msg.ID(), destination.Source,
		)
	}

	e.logger.Trace("Reply sent", logFields)

	return true, nil
}
