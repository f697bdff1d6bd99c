package metrics_test

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ThreeDotsLabs/dispatch/channel"
	"github.com/ThreeDotsLabs/dispatch/message"
	"github.com/ThreeDotsLabs/dispatch/metrics"
)

func stringReader(s string) *strings.Reader {
	return strings.NewReader(s)
}

func TestChannelPrometheusMetricsDecorator(t *testing.T) {
	registry := prometheus.NewRegistry()
	builder := metrics.NewPrometheusMetricsBuilder(registry, "test", "")

	queue, err := channel.NewQueueChannel(channel.QueueChannelConfig{Name: "output", Capacity: 1}, nil)
	require.NoError(t, err)

	decorated, err := builder.DecorateChannel("", queue)
	require.NoError(t, err)
	assert.Equal(t, "output", decorated.Name())

	assert.True(t, decorated.Send(message.NewMessage("1")))

	// closed queue refuses messages
	require.NoError(t, queue.Close())
	assert.False(t, decorated.Send(message.NewMessage("2")))

	expected := `
# HELP test_channel_send_total The total number of messages sent to the channel, labeled by whether the channel accepted them
# TYPE test_channel_send_total counter
test_channel_send_total{accepted="false",channel="output"} 1
test_channel_send_total{accepted="true",channel="output"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(registry, stringReader(expected), "test_channel_send_total"))
}

func TestDecorateChannel_explicit_name(t *testing.T) {
	registry := prometheus.NewRegistry()
	builder := metrics.NewPrometheusMetricsBuilder(registry, "", "")

	decorated, err := builder.DecorateChannel("dropped", channel.NullChannel{})
	require.NoError(t, err)

	assert.Equal(t, "dropped", decorated.Name())
	assert.True(t, decorated.Send(message.NewMessage("1")))

	count, err := testutil.GatherAndCount(registry, "channel_send_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
