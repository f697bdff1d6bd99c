package selector_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ThreeDotsLabs/dispatch/message"
	"github.com/ThreeDotsLabs/dispatch/selector"
)

func TestPayloadType(t *testing.T) {
	s := selector.PayloadType("", []byte(nil))

	assert.True(t, s.Accept(message.NewMessage("foo")))
	assert.True(t, s.Accept(message.NewMessage([]byte("foo"))))
	assert.False(t, s.Accept(message.NewMessage(42)))
	assert.False(t, s.Accept(message.NewMessage(nil)))
}

func TestPayloadTypeName(t *testing.T) {
	s := selector.PayloadTypeName("string", "int")

	assert.True(t, s.Accept(message.NewMessage("foo")))
	assert.True(t, s.Accept(message.NewMessage(42)))
	assert.False(t, s.Accept(message.NewMessage(4.2)))
	assert.False(t, s.Accept(message.NewMessage(nil)))
}

func TestHeaderExists(t *testing.T) {
	s := selector.HeaderExists("a", "b")

	assert.True(t, s.Accept(message.WithPayload("foo").SetHeader("a", 1).SetHeader("b", 2).Build()))
	assert.False(t, s.Accept(message.WithPayload("foo").SetHeader("a", 1).Build()))
}

func TestHeaderEquals(t *testing.T) {
	s := selector.HeaderEquals("priority", "high")

	assert.True(t, s.Accept(message.WithPayload("foo").SetHeader("priority", "high").Build()))
	assert.False(t, s.Accept(message.WithPayload("foo").SetHeader("priority", "low").Build()))
	assert.False(t, s.Accept(message.NewMessage("foo")))
}

func TestUnexpired(t *testing.T) {
	s := selector.Unexpired()

	assert.True(t, s.Accept(message.NewMessage("no expiration")))
	assert.True(t, s.Accept(message.WithPayload("future").SetExpirationDate(time.Now().Add(time.Hour)).Build()))
	assert.False(t, s.Accept(message.WithPayload("past").SetExpirationDate(time.Now().Add(-time.Hour)).Build()))
}

func TestNot(t *testing.T) {
	s := selector.Not(selector.HeaderExists("a"))

	assert.False(t, s.Accept(message.WithPayload("foo").SetHeader("a", 1).Build()))
	assert.True(t, s.Accept(message.NewMessage("foo")))
}
