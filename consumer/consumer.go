package consumer

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/ThreeDotsLabs/dispatch"
	"github.com/ThreeDotsLabs/dispatch/endpoint"
	"github.com/ThreeDotsLabs/dispatch/internal"
	sync_internal "github.com/ThreeDotsLabs/dispatch/internal/sync"
	"github.com/ThreeDotsLabs/dispatch/message"
)

// Endpoint handles messages taken by the consumer. It's implemented by *endpoint.Endpoint.
type Endpoint interface {
	Name() string
	Send(msg *message.Message) (bool, error)
}

// PollableChannel is a channel which messages can be received from.
type PollableChannel interface {
	message.Channel

	// Receive blocks until a message is available.
	// It returns false when ctx is done or when no more messages will come.
	Receive(ctx context.Context) (*message.Message, bool)
}

// SubscribableChannel is a channel which pushes messages to its subscribers.
type SubscribableChannel interface {
	message.Channel

	// Subscribe returns a Go channel which is closed when ctx is done or when no more messages will come.
	Subscribe(ctx context.Context) (<-chan *message.Message, error)
}

type Config struct {
	// Name is used in logs. Random ULID is used when empty.
	Name string

	// Workers is the number of messages handled concurrently.
	Workers int

	// CloseTimeout determines how long the consumer should work on messages when closing.
	CloseTimeout time.Duration

	// ErrorChannel receives an error message for every message which failed to be handled.
	// See NewErrorMessage for its format. When nil, failures are only logged.
	ErrorChannel message.Channel
}

func (c *Config) setDefaults() {
	if c.Name == "" {
		c.Name = dispatch.NewULID()
	}
	if c.Workers == 0 {
		c.Workers = 1
	}
	if c.CloseTimeout == 0 {
		c.CloseTimeout = time.Second * 30
	}
}

func (c Config) Validate() error {
	if c.Workers < 0 {
		return errors.New("workers count should be positive")
	}
	if c.CloseTimeout < 0 {
		return errors.New("close timeout should be positive")
	}

	return nil
}

// receiveFunc returns the next message, or false when the consumer should stop.
type receiveFunc func() (*message.Message, bool)

type source func(ctx context.Context) (receiveFunc, error)

// Consumer takes messages from a channel and sends them to an endpoint.
type Consumer struct {
	config   Config
	endpoint Endpoint
	source   source

	logger dispatch.LoggerAdapter

	workersWg *sync.WaitGroup

	running   chan struct{}
	isRunning bool
	runLock   sync.Mutex

	stopped  chan struct{}
	closeErr error

	closing    chan struct{}
	closed     bool
	closedLock sync.Mutex
}

// NewPollingConsumer creates a consumer which receives messages from ch with Config.Workers goroutines.
func NewPollingConsumer(ch PollableChannel, e Endpoint, config Config, logger dispatch.LoggerAdapter) (*Consumer, error) {
	if ch == nil {
		return nil, errors.New("missing channel")
	}

	src := func(ctx context.Context) (receiveFunc, error) {
		return func() (*message.Message, bool) {
			return ch.Receive(ctx)
		}, nil
	}

	return newConsumer(ch, src, e, config, logger)
}

// NewEventDrivenConsumer creates a consumer which subscribes to ch when it's run.
// Messages pushed by the subscription are handled by Config.Workers goroutines.
func NewEventDrivenConsumer(ch SubscribableChannel, e Endpoint, config Config, logger dispatch.LoggerAdapter) (*Consumer, error) {
	if ch == nil {
		return nil, errors.New("missing channel")
	}

	src := func(ctx context.Context) (receiveFunc, error) {
		messages, err := ch.Subscribe(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "cannot subscribe")
		}

		return func() (*message.Message, bool) {
			msg, ok := <-messages
			return msg, ok
		}, nil
	}

	return newConsumer(ch, src, e, config, logger)
}

func newConsumer(
	ch message.Channel,
	src source,
	e Endpoint,
	config Config,
	logger dispatch.LoggerAdapter,
) (*Consumer, error) {
	if e == nil {
		return nil, errors.New("missing endpoint")
	}

	config.setDefaults()
	if err := config.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid consumer config")
	}

	if logger == nil {
		logger = dispatch.NopLogger{}
	}

	return &Consumer{
		config:   config,
		endpoint: e,
		source:   src,
		logger: logger.With(dispatch.LogFields{
			"consumer":     config.Name,
			"endpoint":     e.Name(),
			"channel_type": internal.StructName(ch),
		}),
		workersWg: &sync.WaitGroup{},
		running:   make(chan struct{}),
		stopped:   make(chan struct{}),
		closing:   make(chan struct{}),
	}, nil
}

func (c *Consumer) Name() string {
	return c.config.Name
}

// Running is closed when the consumer is running.
// It stays open when Run failed to start, until a later Run succeeds.
// In other words: you can wait till the consumer is running using
//
//	<-c.Running()
func (c *Consumer) Running() chan struct{} {
	return c.running
}

// IsRunning returns true between the start of the workers and the return of Run.
func (c *Consumer) IsRunning() bool {
	return internal.IsChannelClosed(c.running) && !internal.IsChannelClosed(c.stopped)
}

// Run starts the workers and blocks until ctx is done, Close is called or the channel
// won't provide more messages. Messages being handled at that moment get CloseTimeout to finish.
func (c *Consumer) Run(ctx context.Context) error {
	c.runLock.Lock()
	if c.isRunning {
		c.runLock.Unlock()
		return errors.New("consumer is already running")
	}
	if c.isClosed() {
		c.runLock.Unlock()
		return errors.New("consumer is closed")
	}

	ctx, cancel := context.WithCancel(ctx)

	// the consumer isn't marked as running until it has a source, so Run can be retried
	receive, err := c.source(ctx)
	if err != nil {
		cancel()
		c.runLock.Unlock()
		return err
	}

	c.isRunning = true
	c.runLock.Unlock()

	defer close(c.stopped)
	defer cancel()

	go func() {
		select {
		case <-c.closing:
			cancel()
		case <-ctx.Done():
		}
	}()

	for i := 0; i < c.config.Workers; i++ {
		c.workersWg.Add(1)
		go c.work(receive)
	}

	workersDone := make(chan struct{})
	go func() {
		c.workersWg.Wait()
		close(workersDone)
	}()

	c.logger.Info("Consumer started", dispatch.LogFields{"workers": c.config.Workers})
	close(c.running)

	select {
	case <-ctx.Done():
		c.logger.Debug("Stopping consumer", nil)
	case <-workersDone:
		c.logger.Info("Channel won't provide more messages, stopping consumer", nil)
	}
	cancel()

	c.logger.Info("Waiting for messages", dispatch.LogFields{
		"timeout": c.config.CloseTimeout,
	})

	if timeouted := sync_internal.WaitGroupTimeout(c.workersWg, c.config.CloseTimeout); timeouted {
		c.closeErr = errors.New("consumer close timeouted")
		return c.closeErr
	}

	c.logger.Info("Consumer stopped", nil)

	return nil
}

func (c *Consumer) work(receive receiveFunc) {
	defer c.workersWg.Done()

	for {
		msg, ok := receive()
		if !ok {
			return
		}

		c.handle(msg)
	}
}

func (c *Consumer) handle(msg *message.Message) {
	logFields := dispatch.LogFields{"message_id": msg.ID()}
	c.logger.Trace("Received message", logFields)

	_, err := c.endpoint.Send(msg)
	if err == nil {
		c.logger.Trace("Message handled", logFields)
		return
	}

	if endpoint.IsRejected(err) {
		c.logger.Info("Message rejected", logFields)
	} else {
		c.logger.Error("Message handling failed", err, logFields)
	}

	if c.config.ErrorChannel == nil {
		return
	}

	if !c.config.ErrorChannel.Send(NewErrorMessage(msg, err)) {
		c.logger.Error("Error channel refused error message", err, logFields)
	}
}

func (c *Consumer) isClosed() bool {
	c.closedLock.Lock()
	defer c.closedLock.Unlock()

	return c.closed
}

// Close stops the consumer and waits until Run returns.
// It returns an error when the messages being handled didn't finish within CloseTimeout.
func (c *Consumer) Close() error {
	c.closedLock.Lock()
	if c.closed {
		c.closedLock.Unlock()
		return nil
	}
	c.closed = true
	close(c.closing)
	c.closedLock.Unlock()

	c.runLock.Lock()
	running := c.isRunning
	c.runLock.Unlock()

	if !running {
		return nil
	}

	c.logger.Info("Closing consumer", nil)
	<-c.stopped

	return c.closeErr
}
