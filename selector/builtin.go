package selector

import (
	"reflect"
	"time"

	"github.com/ThreeDotsLabs/dispatch/message"
)

// PayloadType accepts messages with payload of one of the provided types.
//
// Example:
//
//	selector.PayloadType("", []byte(nil))
//	// accepts string and []byte payloads
func PayloadType(examples ...interface{}) Selector {
	types := make([]reflect.Type, 0, len(examples))
	for _, e := range examples {
		types = append(types, reflect.TypeOf(e))
	}

	return Func(func(msg *message.Message) bool {
		payloadType := reflect.TypeOf(msg.Payload())
		for _, t := range types {
			if payloadType == t {
				return true
			}
		}
		return false
	})
}

// PayloadTypeName accepts messages whose payload type, as printed by %T, is one of names.
// It is useful when selectors are declared in configuration files.
func PayloadTypeName(names ...string) Selector {
	return Func(func(msg *message.Message) bool {
		payloadType := reflect.TypeOf(msg.Payload())
		if payloadType == nil {
			return false
		}

		for _, name := range names {
			if payloadType.String() == name {
				return true
			}
		}
		return false
	})
}

// HeaderExists accepts messages which have all provided headers set.
func HeaderExists(keys ...string) Selector {
	return Func(func(msg *message.Message) bool {
		for _, key := range keys {
			if _, ok := msg.Header(key); !ok {
				return false
			}
		}
		return true
	})
}

// HeaderEquals accepts messages with the header set to value.
func HeaderEquals(key string, value interface{}) Selector {
	return Func(func(msg *message.Message) bool {
		v, ok := msg.Header(key)
		return ok && reflect.DeepEqual(v, value)
	})
}

// Unexpired rejects messages with the expiration date in the past.
// Messages without the expiration date are accepted.
func Unexpired() Selector {
	return Func(func(msg *message.Message) bool {
		exp, ok := msg.ExpirationDate()
		if !ok {
			return true
		}

		return time.Now().Before(exp)
	})
}

// Not negates the selector.
func Not(s Selector) Selector {
	return Func(func(msg *message.Message) bool {
		return !s.Accept(msg)
	})
}
