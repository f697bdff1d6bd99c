package cmd

import (
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/ThreeDotsLabs/dispatch/endpoint"
	"github.com/ThreeDotsLabs/dispatch/message"
	"github.com/ThreeDotsLabs/dispatch/topology"
)

// builtinHandlers can be referenced by name in the topology config.
var builtinHandlers = topology.Handlers{
	"uppercase": stringHandler(strings.ToUpper),
	"lowercase": stringHandler(strings.ToLower),
	"trim":      stringHandler(strings.TrimSpace),
	"echo": endpoint.HandlerFunc(func(msg *message.Message) (*message.Message, error) {
		return message.NewMessage(msg.Payload()), nil
	}),
	// drop produces no reply
	"drop": endpoint.HandlerFunc(func(msg *message.Message) (*message.Message, error) {
		return nil, nil
	}),
}

func stringHandler(fn func(string) string) endpoint.HandlerFunc {
	return func(msg *message.Message) (*message.Message, error) {
		payload, ok := msg.Payload().(string)
		if !ok {
			return nil, errors.Errorf("expected string payload, got %T", msg.Payload())
		}

		return message.NewMessage(fn(payload)), nil
	}
}

func builtinHandlerNames() []string {
	names := make([]string, 0, len(builtinHandlers))
	for name := range builtinHandlers {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}
