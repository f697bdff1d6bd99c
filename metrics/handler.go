package metrics

import (
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ThreeDotsLabs/dispatch/endpoint"
	"github.com/ThreeDotsLabs/dispatch/message"
)

var (
	handlerLabelKeys = []string{
		labelKeyEndpointName,
		labelSuccess,
	}

	// handlerExecutionTimeBuckets are one order of magnitude smaller than default buckets (5ms~10s),
	// because the handler execution times are typically shorter (µs~ms range).
	handlerExecutionTimeBuckets = []float64{
		0.0005,
		0.001,
		0.0025,
		0.005,
		0.01,
		0.025,
		0.05,
		0.1,
		0.25,
		0.5,
		1,
	}
)

// HandlerPrometheusMetricsMiddleware is a middleware that captures Prometheus metrics of a single endpoint's handler.
type HandlerPrometheusMetricsMiddleware struct {
	endpointName string

	handlerExecutionTimeSeconds *prometheus.HistogramVec
	handlerMessagesTotal        *prometheus.CounterVec
}

// Middleware returns the middleware ready to be used in endpoint.Config.Middlewares.
func (m HandlerPrometheusMetricsMiddleware) Middleware(h endpoint.HandlerFunc) endpoint.HandlerFunc {
	return func(msg *message.Message) (reply *message.Message, err error) {
		now := time.Now()

		defer func() {
			labels := prometheus.Labels{
				labelKeyEndpointName: m.endpointName,
				labelSuccess:         boolLabel(err == nil),
			}

			m.handlerExecutionTimeSeconds.With(labels).Observe(time.Since(now).Seconds())
			m.handlerMessagesTotal.With(labels).Inc()
		}()

		return h(msg)
	}
}

// NewHandlerMiddleware returns a new middleware recording metrics labeled with endpointName.
func (b PrometheusMetricsBuilder) NewHandlerMiddleware(endpointName string) (HandlerPrometheusMetricsMiddleware, error) {
	if endpointName == "" {
		endpointName = labelValueNoName
	}

	var err, registerErr error
	m := HandlerPrometheusMetricsMiddleware{
		endpointName: endpointName,
	}

	m.handlerExecutionTimeSeconds, registerErr = b.registerHistogramVec(prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: b.Namespace,
			Subsystem: b.Subsystem,
			Name:      "handler_execution_time_seconds",
			Help:      "The total time elapsed while executing the handler function in seconds",
			Buckets:   handlerExecutionTimeBuckets,
		},
		handlerLabelKeys,
	))
	if registerErr != nil {
		err = multierror.Append(err, errors.Wrap(registerErr, "could not register handler execution time metric"))
	}

	m.handlerMessagesTotal, registerErr = b.registerCounterVec(prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: b.Namespace,
			Subsystem: b.Subsystem,
			Name:      "handler_messages_total",
			Help:      "The total number of messages handled, labeled by the handler's result",
		},
		handlerLabelKeys,
	))
	if registerErr != nil {
		err = multierror.Append(err, errors.Wrap(registerErr, "could not register handler messages metric"))
	}

	if err != nil {
		return HandlerPrometheusMetricsMiddleware{}, err
	}

	return m, nil
}
