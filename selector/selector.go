package selector

import (
	"github.com/ThreeDotsLabs/dispatch/message"
)

// Selector decides whether a message should be accepted.
//
// Selectors may have side effects (like counting), so they must be safe
// to call from multiple goroutines when the endpoint using them is.
type Selector interface {
	Accept(msg *message.Message) bool
}

// Func is an adapter allowing to use an ordinary function as a Selector.
type Func func(msg *message.Message) bool

func (f Func) Accept(msg *message.Message) bool {
	return f(msg)
}

// Chain accepts a message only when all of its selectors accept it.
//
// Selectors are evaluated in the order they were added.
// Evaluation stops at the first selector which rejects the message,
// selectors after it are not called.
type Chain struct {
	selectors []Selector
}

// NewChain creates a chain of the provided selectors.
func NewChain(selectors ...Selector) *Chain {
	c := &Chain{}
	c.Add(selectors...)

	return c
}

// Add appends selectors to the chain.
//
// Chain is not safe for modification concurrent with Accept,
// it should be configured before first use.
func (c *Chain) Add(selectors ...Selector) {
	for _, s := range selectors {
		if s == nil {
			continue
		}
		c.selectors = append(c.selectors, s)
	}
}

func (c *Chain) Len() int {
	if c == nil {
		return 0
	}
	return len(c.selectors)
}

// Accept returns true when every selector accepts the message.
// Empty and nil chains accept everything.
func (c *Chain) Accept(msg *message.Message) bool {
	if c == nil {
		return true
	}

	for _, s := range c.selectors {
		if !s.Accept(msg) {
			return false
		}
	}

	return true
}
