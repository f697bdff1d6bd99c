package message

import (
	"time"

	"github.com/ThreeDotsLabs/dispatch"
)

// Builder creates messages. It never touches the message it was created from.
//
// Builder is not thread safe, it should be used by a single goroutine.
type Builder struct {
	payload Payload
	headers Headers
	id      string
}

// WithPayload starts building a message with the provided payload and no headers.
func WithPayload(payload Payload) *Builder {
	return &Builder{
		payload: payload,
		headers: Headers{},
	}
}

// FromMessage starts building a message with the payload and headers of msg.
// The built message gets a new id and timestamp unless SetID is called.
func FromMessage(msg *Message) *Builder {
	b := WithPayload(msg.payload)
	b.CopyHeaders(msg.headers)

	return b
}

// SetID overrides the generated id.
func (b *Builder) SetID(id string) *Builder {
	b.id = id
	return b
}

// SetHeader sets the header value. Nil value removes the header.
// The id and timestamp headers are ignored, use SetID to override the id.
func (b *Builder) SetHeader(key string, value interface{}) *Builder {
	if isReservedHeader(key) {
		return b
	}
	if value == nil {
		delete(b.headers, key)
		return b
	}

	b.headers[key] = value
	return b
}

// SetHeaderIfAbsent sets the header only when it's not set yet.
func (b *Builder) SetHeaderIfAbsent(key string, value interface{}) *Builder {
	if _, ok := b.headers[key]; ok {
		return b
	}

	return b.SetHeader(key, value)
}

// RemoveHeader removes the header if it's set.
func (b *Builder) RemoveHeader(key string) *Builder {
	delete(b.headers, key)
	return b
}

// CopyHeaders sets all provided headers, overriding existing values.
func (b *Builder) CopyHeaders(headers Headers) *Builder {
	for k, v := range headers {
		b.SetHeader(k, v)
	}

	return b
}

// CopyHeadersIfAbsent sets provided headers which are not set yet.
func (b *Builder) CopyHeadersIfAbsent(headers Headers) *Builder {
	for k, v := range headers {
		b.SetHeaderIfAbsent(k, v)
	}

	return b
}

func (b *Builder) SetCorrelationID(correlationID string) *Builder {
	if correlationID == "" {
		return b.RemoveHeader(HeaderCorrelationID)
	}

	return b.SetHeader(HeaderCorrelationID, correlationID)
}

func (b *Builder) SetReturnAddress(ref ChannelRef) *Builder {
	return b.setChannelRef(HeaderReturnAddress, ref)
}

func (b *Builder) SetNextTarget(ref ChannelRef) *Builder {
	return b.setChannelRef(HeaderNextTarget, ref)
}

func (b *Builder) SetExpirationDate(expiration time.Time) *Builder {
	return b.SetHeader(HeaderExpirationDate, expiration)
}

func (b *Builder) setChannelRef(key string, ref ChannelRef) *Builder {
	if ref.IsZero() {
		return b.RemoveHeader(key)
	}

	return b.SetHeader(key, ref)
}

// Build creates the message. The builder can be reused, every Build creates a separate message.
func (b *Builder) Build() *Message {
	headers := b.headers.Copy()

	id := b.id
	if id == "" {
		id = dispatch.NewUUID()
	}
	headers[HeaderID] = id
	headers[HeaderTimestamp] = time.Now()

	return &Message{
		payload: b.payload,
		headers: headers,
	}
}
