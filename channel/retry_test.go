package channel_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ThreeDotsLabs/dispatch/channel"
	"github.com/ThreeDotsLabs/dispatch/message"
)

// failingChannel refuses the first failures sends.
type failingChannel struct {
	lock     sync.Mutex
	failures int
	attempts int
	accepted []*message.Message
}

func (c *failingChannel) Send(msg *message.Message) bool {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.attempts++
	if c.failures > 0 {
		c.failures--
		return false
	}

	c.accepted = append(c.accepted, msg)
	return true
}

func TestRetryChannel_succeeds_after_retries(t *testing.T) {
	ch := &failingChannel{failures: 2}

	retry, err := channel.NewRetryChannel(ch, channel.RetryChannelConfig{
		MaxRetries:      3,
		InitialInterval: time.Millisecond,
	}, nil)
	require.NoError(t, err)

	assert.True(t, retry.Send(message.NewMessage("foo")))
	assert.Equal(t, 3, ch.attempts)
	assert.Len(t, ch.accepted, 1)
}

func TestRetryChannel_too_many_retries(t *testing.T) {
	ch := &failingChannel{failures: 10}

	retry, err := channel.NewRetryChannel(ch, channel.RetryChannelConfig{
		MaxRetries:      2,
		InitialInterval: time.Millisecond,
	}, nil)
	require.NoError(t, err)

	assert.False(t, retry.Send(message.NewMessage("foo")))
	assert.Equal(t, 3, ch.attempts)
	assert.Empty(t, ch.accepted)
}

func TestRetryChannel_Name(t *testing.T) {
	retry, err := channel.NewRetryChannel(newQueue(t, "orders", 1), channel.RetryChannelConfig{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "orders", retry.Name())

	retry, err = channel.NewRetryChannel(&failingChannel{}, channel.RetryChannelConfig{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "", retry.Name())
}

func TestRetryChannel_invalid_config(t *testing.T) {
	_, err := channel.NewRetryChannel(&failingChannel{}, channel.RetryChannelConfig{MaxRetries: -1}, nil)
	assert.Error(t, err)

	_, err = channel.NewRetryChannel(&failingChannel{}, channel.RetryChannelConfig{Multiplier: 0.5}, nil)
	assert.Error(t, err)
}
