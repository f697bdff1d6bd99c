package topology

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/ThreeDotsLabs/dispatch"
	"github.com/ThreeDotsLabs/dispatch/channel"
	"github.com/ThreeDotsLabs/dispatch/consumer"
	"github.com/ThreeDotsLabs/dispatch/endpoint"
	"github.com/ThreeDotsLabs/dispatch/endpoint/middleware"
	"github.com/ThreeDotsLabs/dispatch/internal"
	"github.com/ThreeDotsLabs/dispatch/message"
	"github.com/ThreeDotsLabs/dispatch/metrics"
	"github.com/ThreeDotsLabs/dispatch/selector"
)

// Handlers maps handler names used in EndpointConfig.Handler to handlers.
type Handlers map[string]endpoint.Handler

type BuildOptions struct {
	// Middlewares are added to every endpoint, after the panic recoverer.
	Middlewares []endpoint.HandlerMiddleware

	// Metrics, when set, records metrics of every channel and endpoint.
	Metrics *metrics.PrometheusMetricsBuilder
}

// Topology is a set of channels and endpoints connected by consumers.
type Topology struct {
	registry *channel.Registry

	queues  map[string]*channel.QueueChannel
	pubSubs map[string]*channel.PublishSubscribeChannel

	endpoints map[string]*endpoint.Endpoint
	consumers []*consumer.Consumer
	throttles []*middleware.Throttle

	logger dispatch.LoggerAdapter

	running   chan struct{}
	isRunning bool
	runLock   sync.Mutex
}

// Build creates all channels and endpoints described by config.
// Endpoints resolve channel names (in output channels, next targets and return addresses)
// using the channels of the topology.
func Build(config Config, handlers Handlers, options BuildOptions, logger dispatch.LoggerAdapter) (*Topology, error) {
	config.setDefaults()
	if err := config.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid topology config")
	}
	if logger == nil {
		logger = dispatch.NopLogger{}
	}

	t := &Topology{
		registry:  channel.NewRegistry(logger),
		queues:    map[string]*channel.QueueChannel{},
		pubSubs:   map[string]*channel.PublishSubscribeChannel{},
		endpoints: map[string]*endpoint.Endpoint{},
		logger:    logger,
		running:   make(chan struct{}),
	}

	for _, chConfig := range config.Channels {
		if err := t.addChannel(chConfig, options); err != nil {
			return nil, t.closeOnBuildError(errors.Wrapf(err, "cannot create channel %s", chConfig.Name))
		}
	}

	for _, eConfig := range config.Endpoints {
		if err := t.addEndpoint(eConfig, config.CloseTimeout, handlers, options); err != nil {
			return nil, t.closeOnBuildError(errors.Wrapf(err, "cannot create endpoint %s", eConfig.Name))
		}
	}

	return t, nil
}

func (t *Topology) closeOnBuildError(err error) error {
	if closeErr := t.closeChannels(); closeErr != nil {
		return multierror.Append(err, closeErr)
	}

	return err
}

func (t *Topology) addChannel(config ChannelConfig, options BuildOptions) error {
	var sendSide message.Channel

	switch config.Type {
	case ChannelTypeQueue:
		q, err := channel.NewQueueChannel(
			channel.QueueChannelConfig{Name: config.Name, Capacity: config.Capacity},
			t.logger,
		)
		if err != nil {
			return err
		}
		t.queues[config.Name] = q

		sendSide = q
		if config.SendTimeout > 0 {
			sendSide = timeoutSendingQueue{QueueChannel: q, timeout: config.SendTimeout}
		}
	case ChannelTypePublishSubscribe:
		p := channel.NewPublishSubscribeChannel(
			channel.PublishSubscribeChannelConfig{Name: config.Name, OutputChannelBuffer: int64(config.Capacity)},
			t.logger,
		)
		t.pubSubs[config.Name] = p
		sendSide = p
	case ChannelTypeNull:
		sendSide = channel.NullChannel{ChannelName: config.Name}
	default:
		return errors.Errorf("unknown channel type %s", config.Type)
	}

	if config.Retries > 0 {
		retrying, err := channel.NewRetryChannel(sendSide, channel.RetryChannelConfig{MaxRetries: config.Retries}, t.logger)
		if err != nil {
			return err
		}
		sendSide = retrying
	}

	if options.Metrics != nil {
		decorated, err := options.Metrics.DecorateChannel(config.Name, sendSide)
		if err != nil {
			return err
		}
		sendSide = decorated
	}

	return t.registry.RegisterAs(config.Name, sendSide)
}

func (t *Topology) addEndpoint(
	config EndpointConfig,
	closeTimeout time.Duration,
	handlers Handlers,
	options BuildOptions,
) error {
	handler, ok := handlers[config.Handler]
	if !ok {
		return errors.Errorf("unknown handler %s", config.Handler)
	}

	middlewares := []endpoint.HandlerMiddleware{middleware.Recoverer}
	if config.Throttle > 0 {
		throttle := middleware.NewThrottle(config.Throttle, time.Second)
		t.throttles = append(t.throttles, throttle)
		middlewares = append(middlewares, throttle.Middleware)
	}
	middlewares = append(middlewares, options.Middlewares...)

	if options.Metrics != nil {
		metricsMiddleware, err := options.Metrics.NewHandlerMiddleware(config.Name)
		if err != nil {
			return err
		}
		middlewares = append(middlewares, metricsMiddleware.Middleware)
	}

	endpointConfig := endpoint.Config{
		Name:            config.Name,
		RequiresReply:   config.RequiresReply,
		ChannelResolver: t.registry,
		Middlewares:     middlewares,
	}
	if config.Output != "" {
		endpointConfig.OutputChannel = t.mustResolve(config.Output)
	}
	if s := buildSelector(config.Selector); s.Len() > 0 {
		endpointConfig.Selector = s
	}

	e, err := endpoint.New(handler, endpointConfig, t.logger)
	if err != nil {
		return err
	}
	t.endpoints[config.Name] = e

	consumerConfig := consumer.Config{
		Name:         config.Name,
		Workers:      config.Workers,
		CloseTimeout: closeTimeout,
	}
	if config.ErrorChannel != "" {
		consumerConfig.ErrorChannel = t.mustResolve(config.ErrorChannel)
	}

	var c *consumer.Consumer
	if q, ok := t.queues[config.Input]; ok {
		c, err = consumer.NewPollingConsumer(q, e, consumerConfig, t.logger)
	} else if p, ok := t.pubSubs[config.Input]; ok {
		c, err = consumer.NewEventDrivenConsumer(p, e, consumerConfig, t.logger)
	} else {
		err = errors.Errorf("channel %s can't be consumed", config.Input)
	}
	if err != nil {
		return err
	}

	t.consumers = append(t.consumers, c)

	return nil
}

// mustResolve is used only for names checked by Config.Validate.
func (t *Topology) mustResolve(name string) message.Channel {
	ch, ok := t.registry.Resolve(name)
	if !ok {
		panic("channel " + name + " not registered")
	}

	return ch
}

func buildSelector(config SelectorConfig) *selector.Chain {
	chain := selector.NewChain()

	if len(config.PayloadTypes) > 0 {
		chain.Add(selector.PayloadTypeName(config.PayloadTypes...))
	}
	if len(config.HeaderExists) > 0 {
		chain.Add(selector.HeaderExists(config.HeaderExists...))
	}
	for key, value := range config.HeaderEquals {
		chain.Add(selector.HeaderEquals(key, value))
	}
	if config.Unexpired {
		chain.Add(selector.Unexpired())
	}

	return chain
}

// Channel returns the channel registered under name, as seen by senders.
func (t *Topology) Channel(name string) (message.Channel, bool) {
	return t.registry.Resolve(name)
}

// Queue returns the queue channel declared with name, to receive from it directly.
func (t *Topology) Queue(name string) (*channel.QueueChannel, bool) {
	q, ok := t.queues[name]
	return q, ok
}

// PublishSubscribe returns the pubsub channel declared with name, to subscribe to it directly.
func (t *Topology) PublishSubscribe(name string) (*channel.PublishSubscribeChannel, bool) {
	p, ok := t.pubSubs[name]
	return p, ok
}

func (t *Topology) Endpoint(name string) (*endpoint.Endpoint, bool) {
	e, ok := t.endpoints[name]
	return e, ok
}

// Running is closed when all consumers are running.
func (t *Topology) Running() chan struct{} {
	return t.running
}

// IsRunning returns true when the topology was started and some of its consumers are still running.
func (t *Topology) IsRunning() bool {
	if !internal.IsChannelClosed(t.running) {
		return false
	}

	for _, c := range t.consumers {
		if c.IsRunning() {
			return true
		}
	}

	return false
}

// Run runs all consumers and blocks until all of them stop.
func (t *Topology) Run(ctx context.Context) error {
	t.runLock.Lock()
	if t.isRunning {
		t.runLock.Unlock()
		return errors.New("topology is already running")
	}
	t.isRunning = true
	t.runLock.Unlock()

	t.logger.Info("Starting topology", dispatch.LogFields{
		"channels":  len(t.registry.Names()),
		"endpoints": len(t.endpoints),
	})

	errs := make(chan error, len(t.consumers))
	wg := &sync.WaitGroup{}

	for _, c := range t.consumers {
		wg.Add(1)
		go func(c *consumer.Consumer) {
			defer wg.Done()

			if err := c.Run(ctx); err != nil {
				errs <- errors.Wrapf(err, "consumer %s failed", c.Name())
			}
		}(c)
	}

	stopped := make(chan struct{})
	go func() {
		for _, c := range t.consumers {
			select {
			case <-c.Running():
			case <-stopped:
				return
			}
		}
		close(t.running)
	}()

	wg.Wait()
	close(stopped)
	close(errs)

	var result error
	for err := range errs {
		result = multierror.Append(result, err)
	}

	t.logger.Info("Topology stopped", nil)

	return result
}

// Close stops all consumers and closes all channels.
func (t *Topology) Close() error {
	t.logger.Info("Closing topology", nil)

	var result error
	for _, c := range t.consumers {
		if err := c.Close(); err != nil {
			result = multierror.Append(result, errors.Wrapf(err, "cannot close consumer %s", c.Name()))
		}
	}

	if err := t.closeChannels(); err != nil {
		result = multierror.Append(result, err)
	}

	for _, throttle := range t.throttles {
		throttle.Stop()
	}

	return result
}

func (t *Topology) closeChannels() error {
	var result error

	for name, q := range t.queues {
		if err := q.Close(); err != nil {
			result = multierror.Append(result, errors.Wrapf(err, "cannot close channel %s", name))
		}
	}
	for name, p := range t.pubSubs {
		if err := p.Close(); err != nil {
			result = multierror.Append(result, errors.Wrapf(err, "cannot close channel %s", name))
		}
	}

	return result
}

// timeoutSendingQueue refuses messages when the queue stays full for longer than timeout.
type timeoutSendingQueue struct {
	*channel.QueueChannel
	timeout time.Duration
}

func (q timeoutSendingQueue) Send(msg *message.Message) bool {
	return q.SendTimeout(msg, q.timeout)
}
