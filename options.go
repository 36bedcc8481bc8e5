package mqtt311

import (
	"crypto/tls"
	"time"
)

// clientOptions holds configuration for a Client. The set is immutable
// once New returns.
type clientOptions struct {
	// Connection settings
	server       string
	clientID     string
	username     string
	password     []byte
	keepAlive    uint16
	cleanSession bool

	// Will message
	willTopic   string
	willPayload []byte
	willRetain  bool
	willQoS     byte

	// Transport
	dialer    Dialer
	tlsConfig *tls.Config

	// Timeouts
	connectTimeout time.Duration
	connectDelay   time.Duration

	// Codec
	packetWriter  PacketWriter
	maxPacketSize uint32

	// Auto reconnect settings
	autoReconnect        bool
	reconnectStrategy    ReconnectStrategy
	maxReconnectAttempts int
	reconnectUnready     bool

	// Observability
	logger  Logger
	metrics Metrics
}

// defaultOptions returns options with sensible defaults: keep-alive 60
// seconds, clean session, auto-reconnect with the default strategy.
func defaultOptions() *clientOptions {
	return &clientOptions{
		keepAlive:      60,
		cleanSession:   true,
		connectTimeout: 30 * time.Second,
		packetWriter:   codecWriter{},
		autoReconnect:  true,
		logger:         NewNoOpLogger(),
		metrics:        &NoOpMetrics{},
	}
}

// Option configures a Client.
type Option func(*clientOptions)

// applyOptions builds the options from defaults and the given Option list.
func applyOptions(opts ...Option) *clientOptions {
	options := defaultOptions()
	for _, opt := range opts {
		opt(options)
	}
	return options
}

// WithServer sets the broker address in URI format, for example
// "tcp://broker:1883", "mqtts://broker:8883" or "ws://broker/mqtt".
func WithServer(address string) Option {
	return func(o *clientOptions) {
		o.server = address
	}
}

// WithDialer overrides scheme-based transport selection with a custom
// transport factory.
func WithDialer(dialer Dialer) Option {
	return func(o *clientOptions) {
		o.dialer = dialer
	}
}

// WithTLSConfig sets the TLS configuration for tls, wss and quic servers.
func WithTLSConfig(config *tls.Config) Option {
	return func(o *clientOptions) {
		o.tlsConfig = config
	}
}

// WithClientID sets the client identifier. When empty, a random
// identifier is generated.
func WithClientID(clientID string) Option {
	return func(o *clientOptions) {
		o.clientID = clientID
	}
}

// WithCredentials sets the username and password.
func WithCredentials(username string, password []byte) Option {
	return func(o *clientOptions) {
		o.username = username
		o.password = password
	}
}

// WithKeepAlive sets the keep-alive interval in seconds. Zero disables
// keep-alive entirely.
func WithKeepAlive(seconds uint16) Option {
	return func(o *clientOptions) {
		o.keepAlive = seconds
	}
}

// WithCleanSession sets the clean session flag.
func WithCleanSession(clean bool) Option {
	return func(o *clientOptions) {
		o.cleanSession = clean
	}
}

// WithWill sets the will message registered with the broker on connect.
func WithWill(topic string, payload []byte, qos byte, retain bool) Option {
	return func(o *clientOptions) {
		o.willTopic = topic
		o.willPayload = payload
		o.willQoS = qos
		o.willRetain = retain
	}
}

// WithConnectTimeout bounds each connection attempt.
func WithConnectTimeout(timeout time.Duration) Option {
	return func(o *clientOptions) {
		o.connectTimeout = timeout
	}
}

// WithConnectDelay sets the CONNACK wait window. When greater than zero
// and no CONNACK arrives within the window, the engine re-sends a
// byte-identical CONNECT on the same transport and keeps waiting.
func WithConnectDelay(delay time.Duration) Option {
	return func(o *clientOptions) {
		o.connectDelay = delay
	}
}

// WithPacketWriter overrides the encoder used to serialize outbound
// packets. This is a test hook.
func WithPacketWriter(writer PacketWriter) Option {
	return func(o *clientOptions) {
		o.packetWriter = writer
	}
}

// WithMaxPacketSize bounds inbound packet size. Zero means unlimited.
func WithMaxPacketSize(size uint32) Option {
	return func(o *clientOptions) {
		o.maxPacketSize = size
	}
}

// WithAutoReconnect enables or disables automatic reconnection. Enabled
// uses DefaultReconnectStrategy unless WithReconnectStrategy is also
// given.
func WithAutoReconnect(enabled bool) Option {
	return func(o *clientOptions) {
		o.autoReconnect = enabled
	}
}

// WithReconnectStrategy installs a custom reconnect strategy and enables
// automatic reconnection.
func WithReconnectStrategy(strategy ReconnectStrategy) Option {
	return func(o *clientOptions) {
		o.autoReconnect = true
		o.reconnectStrategy = strategy
	}
}

// WithMaxReconnectAttempts bounds the total number of reconnection
// attempts over the client's lifetime. Zero means no lifetime bound; the
// strategy still bounds consecutive attempts.
func WithMaxReconnectAttempts(max int) Option {
	return func(o *clientOptions) {
		o.maxReconnectAttempts = max
	}
}

// WithReconnectUnready allows reconnection attempts before the first
// successful CONNACK. When false (the default), a failed initial connect
// is terminal.
func WithReconnectUnready(allow bool) Option {
	return func(o *clientOptions) {
		o.reconnectUnready = allow
	}
}

// WithLogger sets the logger.
func WithLogger(logger Logger) Option {
	return func(o *clientOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(metrics Metrics) Option {
	return func(o *clientOptions) {
		if metrics != nil {
			o.metrics = metrics
		}
	}
}
