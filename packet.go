package mqtt311

import "io"

// Packet is the interface that all MQTT control packets implement.
// MQTT v3.1.1 spec: Section 2.1
type Packet interface {
	// Type returns the packet type.
	Type() PacketType

	// Encode writes the packet to the writer.
	// Returns the number of bytes written.
	Encode(w io.Writer) (int, error)

	// Decode reads the packet from the reader.
	// The fixed header should already be decoded.
	// Returns the number of bytes read.
	Decode(r io.Reader, header FixedHeader) (int, error)

	// Validate validates the packet contents.
	Validate() error
}

// PacketWithID is implemented by packets that carry a packet identifier.
// MQTT v3.1.1 spec: Section 2.3.1
type PacketWithID interface {
	Packet

	// PacketID returns the packet identifier.
	PacketID() uint16

	// SetPacketID sets the packet identifier.
	SetPacketID(id uint16)
}

// Message represents an MQTT application message.
// This is the user-facing struct with public fields for easy access.
type Message struct {
	// Topic is the topic name to publish to or received from.
	Topic string

	// Payload is the message payload.
	Payload []byte

	// QoS is the quality of service level (0, 1, or 2).
	QoS byte

	// Retain indicates whether the message is retained by the broker.
	Retain bool

	// Dup indicates this message is a re-delivery of an earlier attempt.
	Dup bool
}
