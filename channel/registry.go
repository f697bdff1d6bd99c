package channel

import (
	"sort"
	"sync"

	"github.com/pkg/errors"

	"github.com/ThreeDotsLabs/dispatch"
	"github.com/ThreeDotsLabs/dispatch/message"
)

var (
	ErrEmptyChannelName         = errors.New("channel name is empty")
	ErrChannelAlreadyRegistered = errors.New("channel already registered")
)

// Registry maps channel names to channels.
// It's used by endpoints to resolve next targets and return addresses set by name.
//
// Registry is thread safe.
type Registry struct {
	channels map[string]message.Channel
	lock     sync.RWMutex

	logger dispatch.LoggerAdapter
}

func NewRegistry(logger dispatch.LoggerAdapter) *Registry {
	if logger == nil {
		logger = dispatch.NopLogger{}
	}

	return &Registry{
		channels: map[string]message.Channel{},
		logger:   logger,
	}
}

// Register adds the channel under its own name.
func (r *Registry) Register(ch message.NamedChannel) error {
	return r.RegisterAs(ch.Name(), ch)
}

// RegisterAs adds the channel under the provided name.
func (r *Registry) RegisterAs(name string, ch message.Channel) error {
	if name == "" {
		return ErrEmptyChannelName
	}
	if ch == nil {
		return errors.Errorf("channel %s is nil", name)
	}

	r.lock.Lock()
	defer r.lock.Unlock()

	if _, ok := r.channels[name]; ok {
		return errors.Wrap(ErrChannelAlreadyRegistered, name)
	}

	r.channels[name] = ch
	r.logger.Debug("Channel registered", dispatch.LogFields{"channel": name})

	return nil
}

// Resolve returns the channel registered under name.
func (r *Registry) Resolve(name string) (message.Channel, bool) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	ch, ok := r.channels[name]
	if !ok {
		r.logger.Trace("Channel not found", dispatch.LogFields{"channel": name})
	}

	return ch, ok
}

// Unregister removes the channel. It returns false when there was no such channel.
func (r *Registry) Unregister(name string) bool {
	r.lock.Lock()
	defer r.lock.Unlock()

	if _, ok := r.channels[name]; !ok {
		return false
	}

	delete(r.channels, name)
	return true
}

// Names returns sorted names of all registered channels.
func (r *Registry) Names() []string {
	r.lock.RLock()
	defer r.lock.RUnlock()

	names := make([]string, 0, len(r.channels))
	for name := range r.channels {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}
