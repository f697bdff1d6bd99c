package topology

import (
	"io"
	"time"

	mapset "github.com/deckarep/golang-set"
	"github.com/hashicorp/go-multierror"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

const (
	ChannelTypeQueue            = "queue"
	ChannelTypePublishSubscribe = "pubsub"
	ChannelTypeNull             = "null"
)

// Config describes channels and the endpoints connecting them.
type Config struct {
	Channels  []ChannelConfig  `mapstructure:"channels" yaml:"channels"`
	Endpoints []EndpointConfig `mapstructure:"endpoints" yaml:"endpoints"`

	// CloseTimeout is used by every consumer, see consumer.Config.
	CloseTimeout time.Duration `mapstructure:"close_timeout" yaml:"close_timeout"`
}

type ChannelConfig struct {
	Name string `mapstructure:"name" yaml:"name"`
	// Type is one of queue, pubsub or null. Queue is used when empty.
	Type string `mapstructure:"type" yaml:"type"`
	// Capacity of the queue channel, or the subscriber buffer of the pubsub channel.
	Capacity int `mapstructure:"capacity" yaml:"capacity,omitempty"`
	// SendTimeout makes senders give up on a full queue after the timeout instead of waiting.
	SendTimeout time.Duration `mapstructure:"send_timeout" yaml:"send_timeout,omitempty"`
	// Retries makes senders retry refused messages, see channel.RetryChannel.
	Retries int `mapstructure:"retries" yaml:"retries,omitempty"`
}

type EndpointConfig struct {
	Name string `mapstructure:"name" yaml:"name"`
	// Handler is the name of the handler passed to Build.
	Handler string `mapstructure:"handler" yaml:"handler"`

	Input        string `mapstructure:"input" yaml:"input"`
	Output       string `mapstructure:"output" yaml:"output,omitempty"`
	ErrorChannel string `mapstructure:"error_channel" yaml:"error_channel,omitempty"`

	RequiresReply bool           `mapstructure:"requires_reply" yaml:"requires_reply,omitempty"`
	Selector      SelectorConfig `mapstructure:"selector" yaml:"selector,omitempty"`

	Workers int `mapstructure:"workers" yaml:"workers,omitempty"`
	// Throttle limits the messages handled per second. Disabled if 0.
	Throttle int64 `mapstructure:"throttle" yaml:"throttle,omitempty"`
}

// SelectorConfig lists the conditions a message must meet to be handled. All of them must be met.
type SelectorConfig struct {
	// PayloadTypes accepts messages with payload of one of the types, as printed by %T (e.g. "string").
	PayloadTypes []string `mapstructure:"payload_types" yaml:"payload_types,omitempty"`
	// HeaderExists accepts messages with all the headers set.
	HeaderExists []string `mapstructure:"header_exists" yaml:"header_exists,omitempty"`
	// HeaderEquals accepts messages with the headers set to the values.
	HeaderEquals map[string]string `mapstructure:"header_equals" yaml:"header_equals,omitempty"`
	// Unexpired rejects messages which expiration date passed.
	Unexpired bool `mapstructure:"unexpired" yaml:"unexpired,omitempty"`
}

func (c *Config) setDefaults() {
	if c.CloseTimeout == 0 {
		c.CloseTimeout = time.Second * 30
	}

	for i := range c.Channels {
		if c.Channels[i].Type == "" {
			c.Channels[i].Type = ChannelTypeQueue
		}
	}
}

// Validate checks the whole config and returns all problems found.
func (c Config) Validate() error {
	var err error

	channelTypes := map[string]string{}
	for i, ch := range c.Channels {
		if ch.Name == "" {
			err = multierror.Append(err, errors.Errorf("channel %d: missing name", i))
			continue
		}
		if _, ok := channelTypes[ch.Name]; ok {
			err = multierror.Append(err, errors.Errorf("channel %s: declared more than once", ch.Name))
		}
		channelTypes[ch.Name] = ch.Type

		switch ch.Type {
		case "", ChannelTypeQueue, ChannelTypePublishSubscribe, ChannelTypeNull:
		default:
			err = multierror.Append(err, errors.Errorf("channel %s: unknown type %s", ch.Name, ch.Type))
		}

		if ch.Capacity < 0 {
			err = multierror.Append(err, errors.Errorf("channel %s: capacity should be positive", ch.Name))
		}
		if ch.SendTimeout != 0 && ch.Type != "" && ch.Type != ChannelTypeQueue {
			err = multierror.Append(err, errors.Errorf("channel %s: send timeout is supported only by queues", ch.Name))
		}
		if ch.Retries < 0 {
			err = multierror.Append(err, errors.Errorf("channel %s: retries should be positive", ch.Name))
		}
	}

	endpointNames := mapset.NewSet()
	for i, e := range c.Endpoints {
		name := e.Name
		if name == "" {
			err = multierror.Append(err, errors.Errorf("endpoint %d: missing name", i))
			name = e.Handler
		} else if !endpointNames.Add(name) {
			err = multierror.Append(err, errors.Errorf("endpoint %s: declared more than once", name))
		}

		if e.Handler == "" {
			err = multierror.Append(err, errors.Errorf("endpoint %s: missing handler", name))
		}
		if e.Workers < 0 {
			err = multierror.Append(err, errors.Errorf("endpoint %s: workers count should be positive", name))
		}
		if e.Throttle < 0 {
			err = multierror.Append(err, errors.Errorf("endpoint %s: throttle should be positive", name))
		}

		inputType, ok := channelTypes[e.Input]
		switch {
		case e.Input == "":
			err = multierror.Append(err, errors.Errorf("endpoint %s: missing input channel", name))
		case !ok:
			err = multierror.Append(err, errors.Errorf("endpoint %s: unknown input channel %s", name, e.Input))
		case inputType == ChannelTypeNull:
			err = multierror.Append(err, errors.Errorf("endpoint %s: null channel %s can't be an input", name, e.Input))
		}

		for _, ref := range []string{e.Output, e.ErrorChannel} {
			if ref == "" {
				continue
			}
			if _, ok := channelTypes[ref]; !ok {
				err = multierror.Append(err, errors.Errorf("endpoint %s: unknown channel %s", name, ref))
			}
		}
	}

	return err
}

// LoadConfig reads the config from a file. The format is detected by the file's extension.
// Values can be overridden with DISPATCH_ prefixed environment variables (e.g. DISPATCH_CLOSE_TIMEOUT).
func LoadConfig(path string) (Config, error) {
	v := newViper()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return Config{}, errors.Wrapf(err, "cannot read config %s", path)
	}

	return unmarshalConfig(v)
}

// ReadConfig reads the config of configType (e.g. "yaml" or "json") from r.
func ReadConfig(r io.Reader, configType string) (Config, error) {
	v := newViper()
	v.SetConfigType(configType)

	if err := v.ReadConfig(r); err != nil {
		return Config{}, errors.Wrap(err, "cannot read config")
	}

	return unmarshalConfig(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("dispatch")
	v.AutomaticEnv()
	// env variables are only looked up for keys which are known to viper
	_ = v.BindEnv("close_timeout")

	return v
}

func unmarshalConfig(v *viper.Viper) (Config, error) {
	var config Config

	err := v.Unmarshal(&config, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)))
	if err != nil {
		return Config{}, errors.Wrap(err, "cannot decode config")
	}

	return config, nil
}
