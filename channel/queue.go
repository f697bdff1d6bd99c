package channel

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/ThreeDotsLabs/dispatch"
	"github.com/ThreeDotsLabs/dispatch/message"
	"github.com/ThreeDotsLabs/dispatch/selector"
)

const DefaultQueueCapacity = 100

type QueueChannelConfig struct {
	// Name is used when registering the channel in the Registry.
	Name string

	// Capacity is the maximum number of messages waiting in the queue.
	// DefaultQueueCapacity is used when zero.
	Capacity int
}

func (c *QueueChannelConfig) setDefaults() {
	if c.Capacity == 0 {
		c.Capacity = DefaultQueueCapacity
	}
}

func (c QueueChannelConfig) Validate() error {
	if c.Capacity < 0 {
		return errors.Errorf("capacity must be positive, got %d", c.Capacity)
	}

	return nil
}

// QueueChannel is a bounded FIFO queue of messages.
//
// Messages sent to the channel wait there until they are received.
// Every message is received by exactly one receiver.
type QueueChannel struct {
	config QueueChannelConfig
	logger dispatch.LoggerAdapter

	queue chan *message.Message

	purgeLock sync.Mutex

	closing    chan struct{}
	closed     bool
	closedLock sync.Mutex
}

func NewQueueChannel(config QueueChannelConfig, logger dispatch.LoggerAdapter) (*QueueChannel, error) {
	config.setDefaults()
	if err := config.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid QueueChannel config")
	}
	if logger == nil {
		logger = dispatch.NopLogger{}
	}

	return &QueueChannel{
		config: config,
		logger: logger.With(dispatch.LogFields{
			"channel": config.Name,
		}),
		queue:   make(chan *message.Message, config.Capacity),
		closing: make(chan struct{}),
	}, nil
}

func (c *QueueChannel) Name() string {
	return c.config.Name
}

// Send blocks until there is free space in the queue.
// It returns false when the channel is closed.
func (c *QueueChannel) Send(msg *message.Message) bool {
	if c.isClosed() {
		return false
	}

	select {
	case c.queue <- msg:
		c.logger.Trace("Message queued", dispatch.LogFields{"message_id": msg.ID()})
		return true
	case <-c.closing:
		return false
	}
}

// SendTimeout waits at most timeout for free space in the queue.
// With non-positive timeout, it doesn't wait at all.
func (c *QueueChannel) SendTimeout(msg *message.Message, timeout time.Duration) bool {
	if c.isClosed() {
		return false
	}

	if timeout <= 0 {
		select {
		case c.queue <- msg:
			return true
		default:
			c.logger.Debug("Queue full, message refused", dispatch.LogFields{"message_id": msg.ID()})
			return false
		}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case c.queue <- msg:
		return true
	case <-timer.C:
		c.logger.Debug("Queue full, send timeouted", dispatch.LogFields{
			"message_id": msg.ID(),
			"timeout":    timeout,
		})
		return false
	case <-c.closing:
		return false
	}
}

// Receive blocks until a message is available, ctx is done or the channel is closed.
func (c *QueueChannel) Receive(ctx context.Context) (*message.Message, bool) {
	select {
	case msg := <-c.queue:
		return msg, true
	default:
	}

	select {
	case msg := <-c.queue:
		return msg, true
	case <-ctx.Done():
		return nil, false
	case <-c.closing:
		return nil, false
	}
}

// ReceiveTimeout waits at most timeout for a message.
// With non-positive timeout, it only checks if a message is already waiting.
func (c *QueueChannel) ReceiveTimeout(timeout time.Duration) (*message.Message, bool) {
	if timeout <= 0 {
		select {
		case msg := <-c.queue:
			return msg, true
		default:
			return nil, false
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	return c.Receive(ctx)
}

// Len returns the number of messages waiting in the queue.
func (c *QueueChannel) Len() int {
	return len(c.queue)
}

// Clear removes all waiting messages and returns them.
func (c *QueueChannel) Clear() []*message.Message {
	return c.Purge(nil)
}

// Purge removes the waiting messages which are not accepted by s and returns them.
// When s is nil, all messages are removed.
//
// Purge is not atomic against concurrent Send calls. When a kept message can't be
// put back because the queue was filled in the meantime, it's returned as purged.
func (c *QueueChannel) Purge(s selector.Selector) []*message.Message {
	c.purgeLock.Lock()
	defer c.purgeLock.Unlock()

	var purged []*message.Message
	var kept []*message.Message

	waiting := len(c.queue)
	for i := 0; i < waiting; i++ {
		var msg *message.Message
		select {
		case msg = <-c.queue:
		default:
		}
		if msg == nil {
			break
		}

		if s != nil && s.Accept(msg) {
			kept = append(kept, msg)
		} else {
			purged = append(purged, msg)
		}
	}

	for _, msg := range kept {
		select {
		case c.queue <- msg:
		default:
			purged = append(purged, msg)
		}
	}

	if len(purged) > 0 {
		c.logger.Debug("Messages purged", dispatch.LogFields{"count": len(purged)})
	}

	return purged
}

func (c *QueueChannel) isClosed() bool {
	c.closedLock.Lock()
	defer c.closedLock.Unlock()

	return c.closed
}

// Close makes the channel refuse new messages and unblocks waiting senders and receivers.
// Messages left in the queue can still be received with ReceiveTimeout.
func (c *QueueChannel) Close() error {
	c.closedLock.Lock()
	defer c.closedLock.Unlock()

	if c.closed {
		return nil
	}

	c.closed = true
	close(c.closing)

	c.logger.Debug("Queue channel closed", dispatch.LogFields{"waiting_messages": len(c.queue)})

	return nil
}
