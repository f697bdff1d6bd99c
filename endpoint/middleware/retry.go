package middleware

import (
	"time"

	"github.com/cenkalti/backoff/v3"

	"github.com/ThreeDotsLabs/dispatch"
	"github.com/ThreeDotsLabs/dispatch/endpoint"
	"github.com/ThreeDotsLabs/dispatch/message"
)

// RetryParams holds the parameters for a retry attempt.
type RetryParams struct {
	// Err is the error that caused the retry attempt.
	Err error
	// RetryNum is the number of the retry attempt, starting from 1.
	RetryNum int
	// Delay is the delay for the next retry attempt.
	Delay time.Duration
}

// Retry provides a middleware that retries the handler if errors are returned.
// The retry behaviour is configurable, with exponential backoff and maximum elapsed time.
//
// Retry only sees handler errors. Rejections and routing failures happen outside the handler
// and are never retried.
type Retry struct {
	// MaxRetries is maximum number of times a retry will be attempted.
	MaxRetries int

	// InitialInterval is the first interval between retries. Subsequent intervals will be scaled by Multiplier.
	InitialInterval time.Duration
	// MaxInterval sets the limit for the exponential backoff of retries. The interval will not be increased beyond MaxInterval.
	MaxInterval time.Duration
	// Multiplier is the factor by which the waiting interval will be multiplied between retries.
	Multiplier float64
	// MaxElapsedTime sets the time limit of how long retries will be attempted. Disabled if 0.
	MaxElapsedTime time.Duration
	// RandomizationFactor randomizes the spread of the backoff times within the interval of:
	// [currentInterval * (1 - randomization_factor), currentInterval * (1 + randomization_factor)].
	RandomizationFactor float64

	// OnRetryHook is an optional function that will be executed on each retry attempt.
	OnRetryHook func(retryNum int, delay time.Duration)

	// ShouldRetry is an optional function that will be executed before each retry attempt.
	// If ShouldRetry returns false, the retry will not be attempted.
	ShouldRetry func(params RetryParams) bool

	Logger dispatch.LoggerAdapter
}

// Middleware returns the Retry middleware.
func (r Retry) Middleware(h endpoint.HandlerFunc) endpoint.HandlerFunc {
	return func(msg *message.Message) (*message.Message, error) {
		reply, err := h(msg)
		if err == nil {
			return reply, nil
		}

		expBackoff := backoff.NewExponentialBackOff()
		expBackoff.InitialInterval = r.InitialInterval
		expBackoff.MaxInterval = r.MaxInterval
		expBackoff.Multiplier = r.Multiplier
		expBackoff.MaxElapsedTime = r.MaxElapsedTime
		expBackoff.RandomizationFactor = r.RandomizationFactor
		expBackoff.Reset()

		for retryNum := 1; retryNum <= r.MaxRetries; retryNum++ {
			waitTime := expBackoff.NextBackOff()
			if waitTime == backoff.Stop {
				break
			}

			if r.ShouldRetry != nil && !r.ShouldRetry(RetryParams{RetryNum: retryNum, Err: err, Delay: waitTime}) {
				return reply, err
			}

			if r.Logger != nil {
				r.Logger.Error("Error occurred, retrying", err, dispatch.LogFields{
					"message_id":   msg.ID(),
					"retry_no":     retryNum,
					"max_retries":  r.MaxRetries,
					"wait_time":    waitTime,
					"elapsed_time": expBackoff.GetElapsedTime(),
				})
			}
			if r.OnRetryHook != nil {
				r.OnRetryHook(retryNum, waitTime)
			}

			time.Sleep(waitTime)

			reply, err = h(msg)
			if err == nil {
				return reply, nil
			}
		}

		return nil, err
	}
}
