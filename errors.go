package mqtt311

import (
	"errors"
	"fmt"
)

// Sentinel errors for protocol issues - check with errors.Is().
var (
	// ErrMalformedPacket is returned when bytes cannot be parsed as a packet.
	ErrMalformedPacket = errors.New("mqtt311: malformed packet")

	// ErrProtocolViolation is returned when the peer violated MQTT rules
	// (DUP set on a QoS 0 publish, reserved bits set, and so on).
	ErrProtocolViolation = errors.New("mqtt311: protocol violation")

	// ErrNoFreeIdentifier is returned when the packet identifier pool is
	// exhausted.
	ErrNoFreeIdentifier = errors.New("mqtt311: no free packet identifier")
)

// Sentinel errors for flow termination - check with errors.Is().
var (
	// ErrFlowStopped is the failure a flow observes after StopFlow.
	ErrFlowStopped = errors.New("mqtt311: flow stopped")

	// ErrSessionClosed is the failure in-flight flows observe when the
	// session terminates.
	ErrSessionClosed = errors.New("mqtt311: session closed")
)

// Sentinel errors for client operations - check with errors.Is().
var (
	// ErrClientClosed is returned when an operation is attempted on a
	// client that reached terminal disconnect.
	ErrClientClosed = errors.New("mqtt311: client closed")

	// ErrNotConnected is returned when an operation requires a ready
	// session and there is none.
	ErrNotConnected = errors.New("mqtt311: not connected")

	// ErrAlreadyConnected is returned when Connect is called twice.
	ErrAlreadyConnected = errors.New("mqtt311: already connected")

	// ErrKeepAliveTimeout is the session failure after two consecutive
	// missed PINGRESPs.
	ErrKeepAliveTimeout = errors.New("mqtt311: keep-alive timeout")
)

// User-initiated disconnect reasons. The default reconnect strategy refuses
// to reconnect on either.
var (
	// ErrSoftDisconnect is the termination reason after Disconnect(false).
	ErrSoftDisconnect = errors.New("mqtt311: soft disconnect")

	// ErrForcedDisconnect is the termination reason after Disconnect(true).
	ErrForcedDisconnect = errors.New("mqtt311: forced disconnect")
)

// ConnectReturnCode is the CONNACK return code.
// MQTT v3.1.1 spec: Section 3.2.2.3
type ConnectReturnCode byte

const (
	ConnectAccepted                    ConnectReturnCode = 0
	ConnectUnacceptableProtocolVersion ConnectReturnCode = 1
	ConnectIdentifierRejected          ConnectReturnCode = 2
	ConnectServerUnavailable           ConnectReturnCode = 3
	ConnectBadUsernameOrPassword       ConnectReturnCode = 4
	ConnectNotAuthorized               ConnectReturnCode = 5
)

// String returns the string representation of the return code.
func (c ConnectReturnCode) String() string {
	switch c {
	case ConnectAccepted:
		return "connection accepted"
	case ConnectUnacceptableProtocolVersion:
		return "unacceptable protocol version"
	case ConnectIdentifierRejected:
		return "identifier rejected"
	case ConnectServerUnavailable:
		return "server unavailable"
	case ConnectBadUsernameOrPassword:
		return "bad user name or password"
	case ConnectNotAuthorized:
		return "not authorized"
	default:
		return fmt.Sprintf("unknown return code %d", byte(c))
	}
}

// Valid returns true if the return code is defined by the specification.
func (c ConnectReturnCode) Valid() bool {
	return c <= ConnectNotAuthorized
}

// ConnectError is returned when the broker refuses a CONNECT with a
// non-zero CONNACK return code.
type ConnectError struct {
	Code ConnectReturnCode
}

// Error implements the error interface.
func (e *ConnectError) Error() string {
	return "mqtt311: connect refused: " + e.Code.String()
}

// Is reports a match against another ConnectError with the same code.
func (e *ConnectError) Is(target error) bool {
	var other *ConnectError
	if errors.As(target, &other) {
		return other.Code == e.Code
	}
	return false
}

// UnexpectedPacketError is returned when a parsed packet is illegal in the
// current session state, for example any packet other than CONNACK while
// the client awaits CONNACK, or an unknown type nibble.
type UnexpectedPacketError struct {
	Type PacketType
}

// Error implements the error interface.
func (e *UnexpectedPacketError) Error() string {
	return "mqtt311: unexpected packet: " + e.Type.String()
}

// TransportError wraps an underlying I/O failure.
type TransportError struct {
	Err error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	return "mqtt311: transport: " + e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *TransportError) Unwrap() error {
	return e.Err
}
