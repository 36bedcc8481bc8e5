package mqtt311

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the YAML-loadable form of the client options, for embedding
// the client in services that configure from files. Zero values fall back
// to the option defaults.
type Config struct {
	// Server is the broker address in URI format.
	Server string `yaml:"server"`

	// ClientID is the client identifier.
	ClientID string `yaml:"client_id"`

	// Username and Password are the CONNECT credentials.
	Username string `yaml:"username"`
	Password string `yaml:"password"`

	// KeepAlive is the keep-alive interval in seconds. Nil means the
	// default of 60; zero disables keep-alive.
	KeepAlive *uint16 `yaml:"keep_alive"`

	// CleanSession is the clean session flag. Nil means true.
	CleanSession *bool `yaml:"clean_session"`

	// ConnectDelayMS is the CONNACK wait window in milliseconds.
	ConnectDelayMS int `yaml:"connect_delay_ms"`

	// ConnectTimeoutMS bounds each connection attempt in milliseconds.
	ConnectTimeoutMS int `yaml:"connect_timeout_ms"`

	// MaxPacketSize bounds inbound packets. Zero means unlimited.
	MaxPacketSize uint32 `yaml:"max_packet_size"`

	// AutoReconnect enables automatic reconnection. Nil means true.
	AutoReconnect *bool `yaml:"auto_reconnect"`

	// MaxReconnectAttempts bounds lifetime reconnection attempts.
	MaxReconnectAttempts int `yaml:"max_reconnect_attempts"`

	// ReconnectUnready allows reconnection before the first CONNACK.
	ReconnectUnready bool `yaml:"reconnect_unready"`

	// Will configures the will message.
	Will *WillConfig `yaml:"will"`

	// LogLevel selects the default logger's level: debug, info, warn,
	// error or none. Empty keeps logging off.
	LogLevel string `yaml:"log_level"`
}

// WillConfig configures the will message in a Config.
type WillConfig struct {
	Topic   string `yaml:"topic"`
	Payload string `yaml:"payload"`
	QoS     byte   `yaml:"qos"`
	Retain  bool   `yaml:"retain"`
}

// Config errors.
var (
	ErrConfigServerRequired = errors.New("mqtt311: config: server is required")
)

// ParseConfig parses a YAML document into a Config.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("mqtt311: config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadConfig reads and parses a YAML config file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("mqtt311: config: %w", err)
	}
	return ParseConfig(data)
}

// Validate checks the config for internal consistency.
func (c *Config) Validate() error {
	if c.Server == "" {
		return ErrConfigServerRequired
	}
	if c.Will != nil {
		if err := ValidateTopicName(c.Will.Topic); err != nil {
			return err
		}
		if c.Will.QoS > 2 {
			return ErrInvalidWillQoS
		}
	}
	if c.ConnectDelayMS < 0 || c.ConnectTimeoutMS < 0 || c.MaxReconnectAttempts < 0 {
		return fmt.Errorf("mqtt311: config: negative duration or attempt count")
	}
	return nil
}

// Options converts the config to an Option list.
func (c *Config) Options() []Option {
	opts := []Option{WithServer(c.Server)}

	if c.ClientID != "" {
		opts = append(opts, WithClientID(c.ClientID))
	}
	if c.Username != "" {
		opts = append(opts, WithCredentials(c.Username, []byte(c.Password)))
	}
	if c.KeepAlive != nil {
		opts = append(opts, WithKeepAlive(*c.KeepAlive))
	}
	if c.CleanSession != nil {
		opts = append(opts, WithCleanSession(*c.CleanSession))
	}
	if c.ConnectDelayMS > 0 {
		opts = append(opts, WithConnectDelay(time.Duration(c.ConnectDelayMS)*time.Millisecond))
	}
	if c.ConnectTimeoutMS > 0 {
		opts = append(opts, WithConnectTimeout(time.Duration(c.ConnectTimeoutMS)*time.Millisecond))
	}
	if c.MaxPacketSize > 0 {
		opts = append(opts, WithMaxPacketSize(c.MaxPacketSize))
	}
	if c.AutoReconnect != nil {
		opts = append(opts, WithAutoReconnect(*c.AutoReconnect))
	}
	if c.MaxReconnectAttempts > 0 {
		opts = append(opts, WithMaxReconnectAttempts(c.MaxReconnectAttempts))
	}
	if c.ReconnectUnready {
		opts = append(opts, WithReconnectUnready(true))
	}
	if c.Will != nil {
		opts = append(opts, WithWill(c.Will.Topic, []byte(c.Will.Payload), c.Will.QoS, c.Will.Retain))
	}
	if c.LogLevel != "" {
		opts = append(opts, WithLogger(NewStdLogger(nil, ParseLogLevel(c.LogLevel))))
	}

	return opts
}

// NewFromConfig builds a client from a YAML config file. Extra options
// are applied after the file, so they win on conflict.
func NewFromConfig(path string, extra ...Option) (*Client, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}
	opts := append(cfg.Options(), extra...)
	return New(opts...), nil
}
