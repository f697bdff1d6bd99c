package channel

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/ThreeDotsLabs/dispatch"
	"github.com/ThreeDotsLabs/dispatch/message"
)

var ErrChannelClosed = errors.New("channel closed")

type PublishSubscribeChannelConfig struct {
	Name string

	// OutputChannelBuffer is the buffer size of every subscriber's channel.
	OutputChannelBuffer int64
}

// PublishSubscribeChannel sends every message to all of its subscribers.
//
// Send blocks until each subscriber's output channel took the message
// (or the subscriber was closed). When there are no subscribers, the message is dropped.
type PublishSubscribeChannel struct {
	config PublishSubscribeChannelConfig
	logger dispatch.LoggerAdapter

	subscribersWg   sync.WaitGroup
	subscribers     []*subscriber
	subscribersLock sync.RWMutex

	closed     bool
	closedLock sync.Mutex
	closing    chan struct{}
}

func NewPublishSubscribeChannel(config PublishSubscribeChannelConfig, logger dispatch.LoggerAdapter) *PublishSubscribeChannel {
	if logger == nil {
		logger = dispatch.NopLogger{}
	}

	return &PublishSubscribeChannel{
		config: config,
		logger: logger.With(dispatch.LogFields{
			"channel": config.Name,
		}),
		closing: make(chan struct{}),
	}
}

func (p *PublishSubscribeChannel) Name() string {
	return p.config.Name
}

// Send returns false only when the channel is closed.
func (p *PublishSubscribeChannel) Send(msg *message.Message) bool {
	if p.isClosed() {
		return false
	}

	p.subscribersLock.RLock()
	defer p.subscribersLock.RUnlock()

	logFields := dispatch.LogFields{"message_id": msg.ID()}

	if len(p.subscribers) == 0 {
		p.logger.Info("No subscribers to send message", logFields)
		return true
	}

	for _, s := range p.subscribers {
		s.sendMessageToSubscriber(msg, logFields)
	}

	return true
}

// Subscribe returns a channel receiving all messages sent after the subscription.
// The returned channel is closed when ctx is done or the PublishSubscribeChannel is closed.
func (p *PublishSubscribeChannel) Subscribe(ctx context.Context) (<-chan *message.Message, error) {
	p.closedLock.Lock()
	if p.closed {
		p.closedLock.Unlock()
		return nil, ErrChannelClosed
	}
	p.subscribersWg.Add(1)
	p.closedLock.Unlock()

	s := &subscriber{
		uuid:          dispatch.NewShortUUID(),
		outputChannel: make(chan *message.Message, p.config.OutputChannelBuffer),
		logger:        p.logger,
		closing:       make(chan struct{}),
	}

	p.subscribersLock.Lock()
	p.subscribers = append(p.subscribers, s)
	p.subscribersLock.Unlock()

	go func() {
		defer p.subscribersWg.Done()

		select {
		case <-ctx.Done():
		case <-p.closing:
		}

		s.Close()

		p.subscribersLock.Lock()
		defer p.subscribersLock.Unlock()

		p.removeSubscriber(s)
	}()

	p.logger.Debug("Subscribed", dispatch.LogFields{"subscriber_uuid": s.uuid})

	return s.outputChannel, nil
}

func (p *PublishSubscribeChannel) removeSubscriber(toRemove *subscriber) {
	for i, sub := range p.subscribers {
		if sub == toRemove {
			p.subscribers = append(p.subscribers[:i], p.subscribers[i+1:]...)
			return
		}
	}
}

// SubscribersCount returns the number of active subscribers.
func (p *PublishSubscribeChannel) SubscribersCount() int {
	p.subscribersLock.RLock()
	defer p.subscribersLock.RUnlock()

	return len(p.subscribers)
}

func (p *PublishSubscribeChannel) isClosed() bool {
	p.closedLock.Lock()
	defer p.closedLock.Unlock()

	return p.closed
}

// Close closes all subscriber channels and waits until they are removed.
func (p *PublishSubscribeChannel) Close() error {
	p.closedLock.Lock()
	if p.closed {
		p.closedLock.Unlock()
		return nil
	}
	p.closed = true
	close(p.closing)
	p.closedLock.Unlock()

	p.logger.Debug("Closing channel, waiting for subscribers", nil)
	p.subscribersWg.Wait()
	p.logger.Debug("Channel closed", nil)

	return nil
}

type subscriber struct {
	uuid string

	sending       sync.Mutex
	outputChannel chan *message.Message

	logger    dispatch.LoggerAdapter
	closed    bool
	closeOnce sync.Once
	closing   chan struct{}
}

func (s *subscriber) Close() {
	s.closeOnce.Do(func() {
		close(s.closing)

		// ensuring that we are not sending to closed channel
		s.sending.Lock()
		defer s.sending.Unlock()

		s.closed = true
		close(s.outputChannel)

		s.logger.Debug("Subscriber closed", dispatch.LogFields{"subscriber_uuid": s.uuid})
	})
}

func (s *subscriber) sendMessageToSubscriber(msg *message.Message, logFields dispatch.LogFields) {
	s.sending.Lock()
	defer s.sending.Unlock()

	if s.closed {
		s.logger.Trace("Subscriber closed, discarding msg", logFields)
		return
	}

	select {
	case s.outputChannel <- msg:
		s.logger.Trace("Sent message to subscriber", logFields)
	case <-s.closing:
		s.logger.Trace("Closing, message discarded", logFields)
	}
}
