package channel

import (
	"time"

	"github.com/cenkalti/backoff/v3"
	"github.com/pkg/errors"

	"github.com/ThreeDotsLabs/dispatch"
	"github.com/ThreeDotsLabs/dispatch/message"
)

type RetryChannelConfig struct {
	// MaxRetries is maximum number of times a retry will be attempted.
	MaxRetries int

	// InitialInterval is the first interval between retries. Subsequent intervals will be scaled by Multiplier.
	InitialInterval time.Duration
	// MaxInterval sets the limit for the exponential backoff of retries.
	MaxInterval time.Duration
	// Multiplier is the factor by which the waiting interval will be multiplied between retries.
	Multiplier float64
	// MaxElapsedTime sets the time limit of how long retries will be attempted. Disabled if 0.
	MaxElapsedTime time.Duration
}

func (c *RetryChannelConfig) setDefaults() {
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.InitialInterval == 0 {
		c.InitialInterval = 100 * time.Millisecond
	}
	if c.MaxInterval == 0 {
		c.MaxInterval = 5 * time.Second
	}
	if c.Multiplier == 0 {
		c.Multiplier = 2
	}
}

func (c RetryChannelConfig) Validate() error {
	if c.MaxRetries < 0 {
		return errors.New("number of retries should be positive")
	}
	if c.Multiplier < 1 {
		return errors.New("multiplier should be at least 1")
	}

	return nil
}

// RetryChannel is a decorator for a channel that retries refused sends with exponential backoff.
type RetryChannel struct {
	ch     message.Channel
	config RetryChannelConfig
	logger dispatch.LoggerAdapter
}

func NewRetryChannel(ch message.Channel, config RetryChannelConfig, logger dispatch.LoggerAdapter) (*RetryChannel, error) {
	config.setDefaults()
	if err := config.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid RetryChannel config")
	}
	if logger == nil {
		logger = dispatch.NopLogger{}
	}

	return &RetryChannel{
		ch:     ch,
		config: config,
		logger: logger,
	}, nil
}

// Name returns the name of the decorated channel, if it has one.
func (r *RetryChannel) Name() string {
	if named, ok := r.ch.(message.NamedChannel); ok {
		return named.Name()
	}

	return ""
}

func (r *RetryChannel) Send(msg *message.Message) bool {
	if r.ch.Send(msg) {
		return true
	}

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = r.config.InitialInterval
	expBackoff.MaxInterval = r.config.MaxInterval
	expBackoff.Multiplier = r.config.Multiplier
	expBackoff.MaxElapsedTime = r.config.MaxElapsedTime
	expBackoff.Reset()

	for retryNum := 1; retryNum <= r.config.MaxRetries; retryNum++ {
		waitTime := expBackoff.NextBackOff()
		if waitTime == backoff.Stop {
			break
		}

		r.logger.Info("Send refused, retrying", dispatch.LogFields{
			"message_id":  msg.ID(),
			"retry_no":    retryNum,
			"max_retries": r.config.MaxRetries,
			"wait_time":   waitTime,
		})
		time.Sleep(waitTime)

		if r.ch.Send(msg) {
			return true
		}
	}

	return false
}
