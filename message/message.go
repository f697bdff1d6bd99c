package message

import (
	"fmt"
	"time"
)

// Payload is the message body. It is opaque to the endpoint.
type Payload interface{}

// Message is an immutable envelope of a payload and its headers.
//
// Messages are created with Builder and never modified afterwards,
// so they can be shared between goroutines freely.
type Message struct {
	payload Payload
	headers Headers
}

// NewMessage creates a message with a fresh id and no extra headers.
func NewMessage(payload Payload) *Message {
	return WithPayload(payload).Build()
}

// ID returns the id assigned when the message was built.
func (m *Message) ID() string {
	return m.headers.GetString(HeaderID)
}

func (m *Message) Payload() Payload {
	return m.payload
}

// Headers returns a copy of all headers.
func (m *Message) Headers() Headers {
	return m.headers.Copy()
}

// Header returns the header value and true if it's set.
func (m *Message) Header(key string) (interface{}, bool) {
	v, ok := m.headers[key]
	return v, ok
}

func (m *Message) Timestamp() time.Time {
	ts, _ := m.headers[HeaderTimestamp].(time.Time)
	return ts
}

// CorrelationID returns the correlation id, or an empty string when not set.
func (m *Message) CorrelationID() string {
	return m.headers.GetString(HeaderCorrelationID)
}

// ReturnAddress returns the address which replies should be sent to
// when the endpoint has no better destination.
func (m *Message) ReturnAddress() (ChannelRef, bool) {
	return channelRefFromHeader(m.headers[HeaderReturnAddress])
}

// NextTarget returns the single-hop routing override set by a handler.
func (m *Message) NextTarget() (ChannelRef, bool) {
	return channelRefFromHeader(m.headers[HeaderNextTarget])
}

func (m *Message) ExpirationDate() (time.Time, bool) {
	exp, ok := m.headers[HeaderExpirationDate].(time.Time)
	return exp, ok
}

func (m *Message) String() string {
	return fmt.Sprintf("Message{id: %s, payload: %v}", m.ID(), m.payload)
}
