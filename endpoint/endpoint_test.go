package endpoint_test

import (
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ThreeDotsLabs/dispatch"
	"github.com/ThreeDotsLabs/dispatch/channel"
	"github.com/ThreeDotsLabs/dispatch/endpoint"
	"github.com/ThreeDotsLabs/dispatch/message"
	"github.com/ThreeDotsLabs/dispatch/selector"
)

func newQueue(t *testing.T, name string) *channel.QueueChannel {
	t.Helper()

	q, err := channel.NewQueueChannel(channel.QueueChannelConfig{Name: name, Capacity: 1}, nil)
	require.NoError(t, err)

	return q
}

func newEndpoint(t *testing.T, h endpoint.Handler, config endpoint.Config) *endpoint.Endpoint {
	t.Helper()

	e, err := endpoint.New(h, config, dispatch.NewCaptureLogger())
	require.NoError(t, err)

	return e
}

func receive(t *testing.T, q *channel.QueueChannel) *message.Message {
	t.Helper()

	msg, ok := q.ReceiveTimeout(0)
	require.True(t, ok, "expected message in %s", q.Name())

	return msg
}

func assertEmpty(t *testing.T, queues ...*channel.QueueChannel) {
	t.Helper()

	for _, q := range queues {
		_, ok := q.ReceiveTimeout(0)
		assert.False(t, ok, "expected no message in %s", q.Name())
	}
}

var upperCaseHandler = endpoint.HandlerFunc(func(msg *message.Message) (*message.Message, error) {
	return message.NewMessage(strings.ToUpper(msg.Payload().(string))), nil
})

var nilReplyHandler = endpoint.HandlerFunc(func(msg *message.Message) (*message.Message, error) {
	return nil, nil
})

var echoHandler = endpoint.HandlerFunc(func(msg *message.Message) (*message.Message, error) {
	return msg, nil
})

func nextTargetSettingHandler(ref message.ChannelRef) endpoint.HandlerFunc {
	return func(msg *message.Message) (*message.Message, error) {
		return message.WithPayload(msg.Payload()).SetNextTarget(ref).Build(), nil
	}
}

func countingHandler(counter *int32) endpoint.HandlerFunc {
	return func(msg *message.Message) (*message.Message, error) {
		atomic.AddInt32(counter, 1)
		return nil, nil
	}
}

func countingSelector(counter *int32, accept bool) selector.Selector {
	return selector.Func(func(msg *message.Message) bool {
		atomic.AddInt32(counter, 1)
		return accept
	})
}

func TestNew_missing_handler(t *testing.T) {
	_, err := endpoint.New(nil, endpoint.Config{}, nil)
	assert.Error(t, err)
}

func TestNew_default_name(t *testing.T) {
	e, err := endpoint.New(echoHandler, endpoint.Config{}, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, e.Name())
}

func TestEndpoint_output_channel(t *testing.T) {
	output := newQueue(t, "output")
	e := newEndpoint(t, upperCaseHandler, endpoint.Config{OutputChannel: output})

	msg := message.NewMessage("foo")
	ok, err := e.Send(msg)
	require.NoError(t, err)
	assert.True(t, ok)

	reply := receive(t, output)
	assert.Equal(t, "FOO", reply.Payload())
	assert.Equal(t, msg.ID(), reply.CorrelationID())

	assertEmpty(t, output)
}

func TestEndpoint_return_address(t *testing.T) {
	returnAddress := newQueue(t, "returnAddress")
	e := newEndpoint(t, upperCaseHandler, endpoint.Config{})

	msg := message.WithPayload("foo").SetReturnAddress(message.Direct(returnAddress)).Build()
	_, err := e.Send(msg)
	require.NoError(t, err)

	assert.Equal(t, "FOO", receive(t, returnAddress).Payload())
}

func TestEndpoint_return_address_by_name(t *testing.T) {
	returnAddress := newQueue(t, "testChannel")
	registry := channel.NewRegistry(nil)
	require.NoError(t, registry.Register(returnAddress))

	e := newEndpoint(t, upperCaseHandler, endpoint.Config{ChannelResolver: registry})

	msg := message.WithPayload("foo").SetReturnAddress(message.Named("testChannel")).Build()
	_, err := e.Send(msg)
	require.NoError(t, err)

	assert.Equal(t, "FOO", receive(t, returnAddress).Payload())
}

func TestEndpoint_next_target_takes_precedence(t *testing.T) {
	nextTarget := newQueue(t, "nextTarget")
	output := newQueue(t, "output")
	returnAddress := newQueue(t, "returnAddress")

	e := newEndpoint(t, nextTargetSettingHandler(message.Direct(nextTarget)), endpoint.Config{
		OutputChannel: output,
	})

	msg := message.WithPayload("foo").SetReturnAddress(message.Direct(returnAddress)).Build()
	_, err := e.Send(msg)
	require.NoError(t, err)

	reply := receive(t, nextTarget)
	assert.Equal(t, "foo", reply.Payload())

	_, hasNextTarget := reply.NextTarget()
	assert.False(t, hasNextTarget, "next target should be removed before delivery")

	assertEmpty(t, output, returnAddress)
}

func TestEndpoint_next_target_by_name(t *testing.T) {
	nextTarget := newQueue(t, "testChannel")
	output := newQueue(t, "output")
	returnAddress := newQueue(t, "returnAddress")

	registry := channel.NewRegistry(nil)
	require.NoError(t, registry.Register(nextTarget))

	e := newEndpoint(t, nextTargetSettingHandler(message.Named("testChannel")), endpoint.Config{
		OutputChannel:   output,
		ChannelResolver: registry,
	})

	msg := message.WithPayload("foo").SetReturnAddress(message.Direct(returnAddress)).Build()
	_, err := e.Send(msg)
	require.NoError(t, err)

	reply := receive(t, nextTarget)
	assert.Equal(t, "foo", reply.Payload())

	_, hasNextTarget := reply.NextTarget()
	assert.False(t, hasNextTarget)

	assertEmpty(t, output, returnAddress)
}

func TestEndpoint_unknown_next_target_falls_back_to_output_channel(t *testing.T) {
	output := newQueue(t, "output")
	returnAddress := newQueue(t, "returnAddress")

	e := newEndpoint(t, nextTargetSettingHandler(message.Named("unknown")), endpoint.Config{
		OutputChannel:   output,
		ChannelResolver: channel.NewRegistry(nil),
	})

	msg := message.WithPayload("foo").SetReturnAddress(message.Direct(returnAddress)).Build()
	_, err := e.Send(msg)
	require.NoError(t, err)

	assert.Equal(t, "foo", receive(t, output).Payload())
	assertEmpty(t, returnAddress)
}

func TestEndpoint_unknown_next_target_falls_back_to_return_address(t *testing.T) {
	returnAddress := newQueue(t, "returnAddress")

	// without a resolver, named next target can't be resolved at all
	e := newEndpoint(t, nextTargetSettingHandler(message.Named("unknown")), endpoint.Config{})

	msg := message.WithPayload("foo").SetReturnAddress(message.Direct(returnAddress)).Build()
	_, err := e.Send(msg)
	require.NoError(t, err)

	assert.Equal(t, "foo", receive(t, returnAddress).Payload())
}

func TestEndpoint_inbound_next_target_is_ignored(t *testing.T) {
	output := newQueue(t, "output")
	e := newEndpoint(t, upperCaseHandler, endpoint.Config{OutputChannel: output})

	msg := message.WithPayload("foo").SetNextTarget(message.Named("unknown")).Build()
	_, err := e.Send(msg)
	require.NoError(t, err)

	assert.Equal(t, "FOO", receive(t, output).Payload())
}

func TestEndpoint_dynamic_reply_channel(t *testing.T) {
	replyChannel1 := newQueue(t, "replyChannel1")
	replyChannel2 := newQueue(t, "replyChannel2")

	registry := channel.NewRegistry(nil)
	require.NoError(t, registry.Register(replyChannel2))

	e := newEndpoint(t, endpoint.HandlerFunc(func(msg *message.Message) (*message.Message, error) {
		return message.NewMessage("foo" + msg.Payload().(string)), nil
	}), endpoint.Config{ChannelResolver: registry})

	msg1 := message.WithPayload("bar").SetReturnAddress(message.Direct(replyChannel1)).Build()
	_, err := e.Send(msg1)
	require.NoError(t, err)

	assert.Equal(t, "foobar", receive(t, replyChannel1).Payload())
	assertEmpty(t, replyChannel2)

	msg2 := message.FromMessage(msg1).SetReturnAddress(message.Named("replyChannel2")).Build()
	_, err = e.Send(msg2)
	require.NoError(t, err)

	assertEmpty(t, replyChannel1)
	assert.Equal(t, "foobar", receive(t, replyChannel2).Payload())
}

func TestEndpoint_no_reply_target(t *testing.T) {
	e := newEndpoint(t, upperCaseHandler, endpoint.Config{})

	ok, err := e.Send(message.NewMessage("foo"))
	assert.False(t, ok)
	assert.Equal(t, endpoint.ErrNoReplyTarget, errors.Cause(err))
}

func TestEndpoint_no_reply_target_all_candidates_unresolved(t *testing.T) {
	e := newEndpoint(t, nextTargetSettingHandler(message.Named("unknown")), endpoint.Config{
		ChannelResolver: channel.NewRegistry(nil),
	})

	msg := message.WithPayload("foo").SetReturnAddress(message.Named("also-unknown")).Build()
	_, err := e.Send(msg)
	assert.Equal(t, endpoint.ErrNoReplyTarget, errors.Cause(err))
}

func TestEndpoint_no_reply_message(t *testing.T) {
	output := newQueue(t, "output")
	e := newEndpoint(t, nilReplyHandler, endpoint.Config{OutputChannel: output})

	ok, err := e.Send(message.NewMessage("foo"))
	require.NoError(t, err)
	assert.True(t, ok)

	assertEmpty(t, output)
}

func TestEndpoint_no_reply_message_with_requires_reply(t *testing.T) {
	output := newQueue(t, "output")
	e := newEndpoint(t, nilReplyHandler, endpoint.Config{
		OutputChannel: output,
		RequiresReply: true,
	})

	ok, err := e.Send(message.NewMessage("foo"))
	assert.False(t, ok)
	assert.Equal(t, endpoint.ErrReplyRequired, errors.Cause(err))
	assert.False(t, endpoint.IsRejected(err))

	assertEmpty(t, output)
}

func TestEndpoint_handler_error_is_returned_unchanged(t *testing.T) {
	handlerErr := errors.New("handler failed")
	output := newQueue(t, "output")

	e := newEndpoint(t, endpoint.HandlerFunc(func(msg *message.Message) (*message.Message, error) {
		return message.NewMessage("ignored"), handlerErr
	}), endpoint.Config{OutputChannel: output})

	ok, err := e.Send(message.NewMessage("foo"))
	assert.False(t, ok)
	assert.Equal(t, handlerErr, err)

	assertEmpty(t, output)
}

func TestEndpoint_delivery_refused(t *testing.T) {
	output := newQueue(t, "output")
	require.NoError(t, output.Close())

	e := newEndpoint(t, upperCaseHandler, endpoint.Config{OutputChannel: output})

	ok, err := e.Send(message.NewMessage("foo"))
	assert.False(t, ok)
	assert.Equal(t, endpoint.ErrDeliveryFailed, errors.Cause(err))
}

func TestEndpoint_selector_rejecting(t *testing.T) {
	var handlerCalls int32

	e := newEndpoint(t, countingHandler(&handlerCalls), endpoint.Config{
		Selector: selector.Func(func(*message.Message) bool { return false }),
	})

	ok, err := e.Send(message.NewMessage("test"))
	assert.False(t, ok)
	assert.Equal(t, endpoint.ErrMessageRejected, errors.Cause(err))
	assert.True(t, endpoint.IsRejected(err))
	assert.EqualValues(t, 0, handlerCalls)
}

func TestEndpoint_selector_accepting(t *testing.T) {
	var handlerCalls int32

	e := newEndpoint(t, countingHandler(&handlerCalls), endpoint.Config{
		Selector: selector.Func(func(*message.Message) bool { return true }),
	})

	ok, err := e.Send(message.NewMessage("test"))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.EqualValues(t, 1, handlerCalls, "handler should have been invoked")
}

func TestEndpoint_multiple_selectors_first_rejects(t *testing.T) {
	var counter int32

	e := newEndpoint(t, countingHandler(&counter), endpoint.Config{
		Selector: selector.NewChain(
			countingSelector(&counter, false),
			countingSelector(&counter, true),
		),
	})

	_, err := e.Send(message.NewMessage("test"))
	assert.True(t, endpoint.IsRejected(err))
	assert.EqualValues(t, 1, counter, "only the first selector should have been invoked")
}

func TestEndpoint_multiple_selectors_first_accepts(t *testing.T) {
	var selectorCalls, handlerCalls int32

	e := newEndpoint(t, countingHandler(&handlerCalls), endpoint.Config{
		Selector: selector.NewChain(
			countingSelector(&selectorCalls, true),
			countingSelector(&selectorCalls, false),
		),
	})

	_, err := e.Send(message.NewMessage("test"))
	assert.True(t, endpoint.IsRejected(err))
	assert.EqualValues(t, 2, selectorCalls, "both selectors should have been invoked")
	assert.EqualValues(t, 0, handlerCalls, "the handler should not have been invoked")
}

func TestEndpoint_multiple_selectors_both_accept(t *testing.T) {
	var counter int32

	e := newEndpoint(t, countingHandler(&counter), endpoint.Config{
		Selector: selector.NewChain(
			countingSelector(&counter, true),
			countingSelector(&counter, true),
		),
	})

	ok, err := e.Send(message.NewMessage("test"))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.EqualValues(t, 3, counter, "both selectors and handler should have been invoked")
}

func TestEndpoint_correlation_id(t *testing.T) {
	replyChannel := newQueue(t, "reply")
	e := newEndpoint(t, echoHandler, endpoint.Config{})

	msg := message.WithPayload("test").SetReturnAddress(message.Direct(replyChannel)).Build()
	_, err := e.Send(msg)
	require.NoError(t, err)

	reply := receive(t, replyChannel)
	assert.Equal(t, msg.ID(), reply.CorrelationID())
	assert.Empty(t, msg.CorrelationID(), "inbound message must not be modified")
}

func TestEndpoint_correlation_id_set_by_handler_takes_precedence(t *testing.T) {
	replyChannel := newQueue(t, "reply")
	e := newEndpoint(t, endpoint.HandlerFunc(func(msg *message.Message) (*message.Message, error) {
		return message.FromMessage(msg).SetCorrelationID("ABC-123").Build(), nil
	}), endpoint.Config{})

	msg := message.WithPayload("test").SetReturnAddress(message.Direct(replyChannel)).Build()
	_, err := e.Send(msg)
	require.NoError(t, err)

	reply := receive(t, replyChannel)
	assert.NotEqual(t, msg.ID(), reply.CorrelationID())
	assert.Equal(t, "ABC-123", reply.CorrelationID())
}

func TestEndpoint_non_string_correlation_id_set_by_handler_takes_precedence(t *testing.T) {
	output := newQueue(t, "output")
	e := newEndpoint(t, endpoint.HandlerFunc(func(msg *message.Message) (*message.Message, error) {
		return message.WithPayload("x").SetHeader(message.HeaderCorrelationID, 12345).Build(), nil
	}), endpoint.Config{OutputChannel: output})

	msg := message.NewMessage("test")
	_, err := e.Send(msg)
	require.NoError(t, err)

	reply := receive(t, output)
	correlationID, ok := reply.Header(message.HeaderCorrelationID)
	require.True(t, ok)
	assert.Equal(t, 12345, correlationID)
}

type countingResolver struct {
	channels map[string]message.Channel
	calls    int
}

func (r *countingResolver) Resolve(name string) (message.Channel, bool) {
	r.calls++
	ch, ok := r.channels[name]
	return ch, ok
}

func TestEndpoint_unresolved_next_target_is_resolved_once(t *testing.T) {
	output := newQueue(t, "output")
	resolver := &countingResolver{channels: map[string]message.Channel{}}
	logger := dispatch.NewCaptureLogger()

	e, err := endpoint.New(endpoint.HandlerFunc(func(msg *message.Message) (*message.Message, error) {
		return message.WithPayload("x").SetNextTarget(message.Named("unknown")).Build(), nil
	}), endpoint.Config{Name: "router", OutputChannel: output, ChannelResolver: resolver}, logger)
	require.NoError(t, err)

	_, err = e.Send(message.NewMessage("test"))
	require.NoError(t, err)

	receive(t, output)
	assert.Equal(t, 1, resolver.calls)
	assert.True(t, logger.HasMessage(dispatch.DebugLogLevel, "Next target not resolved, falling back"))
}

func TestEndpoint_typed_nil_selector_accepts(t *testing.T) {
	output := newQueue(t, "output")

	var chain *selector.Chain
	e := newEndpoint(t, upperCaseHandler, endpoint.Config{OutputChannel: output, Selector: chain})

	ok, err := e.Send(message.NewMessage("foo"))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "FOO", receive(t, output).Payload())
}

func TestEndpoint_correlation_stamping_keeps_reply_id(t *testing.T) {
	output := newQueue(t, "output")

	var handlerReply *message.Message
	e := newEndpoint(t, endpoint.HandlerFunc(func(msg *message.Message) (*message.Message, error) {
		handlerReply = message.WithPayload("reply").SetHeader("custom", "value").Build()
		return handlerReply, nil
	}), endpoint.Config{OutputChannel: output})

	msg := message.NewMessage("test")
	_, err := e.Send(msg)
	require.NoError(t, err)

	reply := receive(t, output)
	assert.Equal(t, handlerReply.ID(), reply.ID())
	assert.Equal(t, msg.ID(), reply.CorrelationID())
	assert.Equal(t, "value", reply.Headers().GetString("custom"))
	assert.Empty(t, handlerReply.CorrelationID(), "handler's reply must not be modified")
}

func TestEndpoint_return_address_propagates_with_next_target(t *testing.T) {
	nextTarget := newQueue(t, "nextTarget")
	returnAddress := newQueue(t, "returnAddress")

	e := newEndpoint(t, endpoint.HandlerFunc(func(msg *message.Message) (*message.Message, error) {
		return message.FromMessage(msg).SetNextTarget(message.Direct(nextTarget)).Build(), nil
	}), endpoint.Config{})

	msg := message.WithPayload("foo").SetReturnAddress(message.Direct(returnAddress)).Build()
	_, err := e.Send(msg)
	require.NoError(t, err)

	reply := receive(t, nextTarget)
	ref, ok := reply.ReturnAddress()
	require.True(t, ok)
	ch, _ := ref.Channel()
	assert.Equal(t, returnAddress, ch)

	assertEmpty(t, returnAddress)
}

func TestEndpoint_next_target_not_propagated_past_current_endpoint(t *testing.T) {
	intermediate := newQueue(t, "intermediate")
	final := newQueue(t, "final")

	primary := newEndpoint(t, endpoint.HandlerFunc(func(msg *message.Message) (*message.Message, error) {
		return message.FromMessage(msg).SetNextTarget(message.Direct(intermediate)).Build(), nil
	}), endpoint.Config{})

	secondary := newEndpoint(t, echoHandler, endpoint.Config{OutputChannel: final})

	_, err := primary.Send(message.NewMessage("test"))
	require.NoError(t, err)

	forwarded := receive(t, intermediate)

	_, err = secondary.Send(forwarded)
	require.NoError(t, err)

	assertEmpty(t, intermediate)
	receive(t, final)
}

func TestEndpoint_middlewares_order(t *testing.T) {
	var calls []string

	middleware := func(name string) endpoint.HandlerMiddleware {
		return func(h endpoint.HandlerFunc) endpoint.HandlerFunc {
			return func(msg *message.Message) (*message.Message, error) {
				calls = append(calls, name)
				return h(msg)
			}
		}
	}

	e := newEndpoint(t, nilReplyHandler, endpoint.Config{
		Middlewares: []endpoint.HandlerMiddleware{middleware("first"), middleware("second")},
	})

	_, err := e.Send(message.NewMessage("test"))
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, calls)
}

func TestEndpoint_rejection_is_logged(t *testing.T) {
	logger := dispatch.NewCaptureLogger()

	e, err := endpoint.New(nilReplyHandler, endpoint.Config{
		Name:     "gated",
		Selector: selector.Func(func(*message.Message) bool { return false }),
	}, logger)
	require.NoError(t, err)

	msg := message.NewMessage("test")
	_, _ = e.Send(msg)

	assert.True(t, logger.Has(dispatch.CapturedMessage{
		Level:  dispatch.DebugLogLevel,
		Fields: dispatch.LogFields{"endpoint": "gated", "message_id": msg.ID()},
		Msg:    "Message rejected by selector",
	}))
}

func TestEndpoint_concurrent_send(t *testing.T) {
	output, err := channel.NewQueueChannel(channel.QueueChannelConfig{Name: "output", Capacity: 100}, nil)
	require.NoError(t, err)

	e := newEndpoint(t, upperCaseHandler, endpoint.Config{OutputChannel: output})

	wg := sync.WaitGroup{}
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.Send(message.NewMessage("foo"))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 100, output.Len())
}
