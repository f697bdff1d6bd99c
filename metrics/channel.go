package metrics

import (
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ThreeDotsLabs/dispatch/message"
)

var channelLabelKeys = []string{
	labelKeyChannelName,
	labelAccepted,
}

// ChannelPrometheusMetricsDecorator decorates a channel to capture Prometheus metrics of sent messages.
type ChannelPrometheusMetricsDecorator struct {
	ch   message.Channel
	name string

	channelSendTotal       *prometheus.CounterVec
	channelSendTimeSeconds *prometheus.HistogramVec
}

func (d ChannelPrometheusMetricsDecorator) Name() string {
	return d.name
}

func (d ChannelPrometheusMetricsDecorator) Send(msg *message.Message) bool {
	start := time.Now()

	accepted := d.ch.Send(msg)

	labels := prometheus.Labels{
		labelKeyChannelName: d.name,
		labelAccepted:       boolLabel(accepted),
	}
	d.channelSendTotal.With(labels).Inc()
	d.channelSendTimeSeconds.With(labels).Observe(time.Since(start).Seconds())

	return accepted
}

// DecorateChannel wraps the channel with Prometheus metrics.
// When name is empty, the name of the channel is used (if it has one).
func (b PrometheusMetricsBuilder) DecorateChannel(name string, ch message.Channel) (ChannelPrometheusMetricsDecorator, error) {
	if name == "" {
		if named, ok := ch.(message.NamedChannel); ok {
			name = named.Name()
		}
	}
	if name == "" {
		name = labelValueNoName
	}

	var err error
	d := ChannelPrometheusMetricsDecorator{
		ch:   ch,
		name: name,
	}

	d.channelSendTotal, err = b.registerCounterVec(prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: b.Namespace,
			Subsystem: b.Subsystem,
			Name:      "channel_send_total",
			Help:      "The total number of messages sent to the channel, labeled by whether the channel accepted them",
		},
		channelLabelKeys,
	))
	if err != nil {
		return ChannelPrometheusMetricsDecorator{}, errors.Wrap(err, "could not register channel send metric")
	}

	d.channelSendTimeSeconds, err = b.registerHistogramVec(prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: b.Namespace,
			Subsystem: b.Subsystem,
			Name:      "channel_send_time_seconds",
			Help:      "The time that a send attempt (accepted or not) took in seconds",
		},
		channelLabelKeys,
	))
	if err != nil {
		return ChannelPrometheusMetricsDecorator{}, errors.Wrap(err, "could not register channel send time metric")
	}

	return d, nil
}
