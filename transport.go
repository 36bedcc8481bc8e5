package mqtt311

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/url"
	"time"
)

// Conn represents a network connection carrying MQTT bytes. The engine
// only needs a bidirectional byte duplex with a close; net.Conn supplies
// that for every supported transport.
type Conn interface {
	net.Conn
}

// Dialer produces a fresh transport on demand. The session engine owns
// the returned connection exclusively until the session terminates.
type Dialer interface {
	// Dial connects to the address with the given context.
	Dial(ctx context.Context, address string) (Conn, error)
}

// DialerFunc adapts a function to the Dialer interface. Tests use it to
// hand the engine one end of a net.Pipe.
type DialerFunc func(ctx context.Context, address string) (Conn, error)

// Dial implements the Dialer interface.
func (f DialerFunc) Dial(ctx context.Context, address string) (Conn, error) {
	return f(ctx, address)
}

// TCPDialer connects to MQTT brokers over TCP.
type TCPDialer struct {
	// Timeout is the maximum time to wait for a connection.
	// Zero means no timeout.
	Timeout time.Duration
}

// Dial connects to the address.
func (d *TCPDialer) Dial(ctx context.Context, address string) (Conn, error) {
	var dialer net.Dialer
	if d.Timeout > 0 {
		dialer.Timeout = d.Timeout
	}
	return dialer.DialContext(ctx, "tcp", address)
}

// TLSDialer connects to MQTT brokers over TLS.
type TLSDialer struct {
	// Config is the TLS configuration.
	Config *tls.Config

	// Timeout is the maximum time to wait for a connection.
	Timeout time.Duration
}

// Dial connects to the address and performs the TLS handshake.
func (d *TLSDialer) Dial(ctx context.Context, address string) (Conn, error) {
	config := d.Config
	if config == nil {
		config = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	netDialer := &net.Dialer{}
	if d.Timeout > 0 {
		netDialer.Timeout = d.Timeout
	}

	tlsDialer := &tls.Dialer{NetDialer: netDialer, Config: config}
	return tlsDialer.DialContext(ctx, "tcp", address)
}

// hostPort fills in the scheme's default port when the address has none.
func hostPort(u *url.URL) string {
	if u.Port() != "" {
		return u.Host
	}
	switch u.Scheme {
	case "tcp", "mqtt":
		return net.JoinHostPort(u.Hostname(), "1883")
	case "ssl", "tls", "mqtts", "quic":
		return net.JoinHostPort(u.Hostname(), "8883")
	case "ws":
		return net.JoinHostPort(u.Hostname(), "80")
	case "wss":
		return net.JoinHostPort(u.Hostname(), "443")
	}
	return u.Host
}

// dialServer picks a transport for the server URI's scheme and connects.
// The address should be in URI format: scheme://host:port.
func dialServer(ctx context.Context, address string, tlsConfig *tls.Config) (Conn, error) {
	u, err := url.Parse(address)
	if err != nil {
		return nil, fmt.Errorf("invalid address: %w", err)
	}

	switch u.Scheme {
	case "tcp", "mqtt":
		return (&TCPDialer{}).Dial(ctx, hostPort(u))
	case "ssl", "tls", "mqtts":
		return (&TLSDialer{Config: tlsConfig}).Dial(ctx, hostPort(u))
	case "ws", "wss":
		dialer := NewWSDialer()
		if tlsConfig != nil && dialer.Dialer != nil {
			dialer.Dialer.TLSClientConfig = tlsConfig
		}
		return dialer.Dial(ctx, address)
	case "quic":
		return (&QUICDialer{TLSConfig: tlsConfig}).Dial(ctx, hostPort(u))
	default:
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
}
