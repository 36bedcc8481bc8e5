package mqtt311

import (
	"bytes"
	"errors"
	"fmt"
	"io"
)

// PUBLISH flag bits within the fixed header.
// MQTT v3.1.1 spec: Section 3.3.1
const (
	publishFlagRetain = 0x01
	publishFlagDup    = 0x08
)

// PUBLISH packet errors.
var (
	ErrInvalidQoS       = errors.New("mqtt311: invalid QoS level")
	ErrPacketIDRequired = errors.New("mqtt311: packet identifier required for QoS > 0")
	ErrDupOnQoS0        = fmt.Errorf("%w: DUP flag set on QoS 0 publish", ErrProtocolViolation)
)

// PublishPacket represents an MQTT PUBLISH packet.
// MQTT v3.1.1 spec: Section 3.3
type PublishPacket struct {
	// Topic is the topic name the message is published to.
	Topic string

	// Payload is the application message payload.
	Payload []byte

	// QoS is the quality of service level.
	QoS byte

	// Retain requests the broker to retain the message.
	Retain bool

	// DUP indicates a re-delivery of an earlier attempt.
	DUP bool

	// ID is the packet identifier, present iff QoS > 0.
	ID uint16
}

// Type returns the packet type.
func (p *PublishPacket) Type() PacketType {
	return PacketPUBLISH
}

// PacketID returns the packet identifier.
func (p *PublishPacket) PacketID() uint16 {
	return p.ID
}

// SetPacketID sets the packet identifier.
func (p *PublishPacket) SetPacketID(id uint16) {
	p.ID = id
}

// FromMessage fills the packet from an application message.
func (p *PublishPacket) FromMessage(msg *Message) {
	p.Topic = msg.Topic
	p.Payload = msg.Payload
	p.QoS = msg.QoS
	p.Retain = msg.Retain
	p.DUP = msg.Dup
}

// ToMessage converts the packet to an application message.
func (p *PublishPacket) ToMessage() *Message {
	return &Message{
		Topic:   p.Topic,
		Payload: p.Payload,
		QoS:     p.QoS,
		Retain:  p.Retain,
		Dup:     p.DUP,
	}
}

// flags returns the fixed header flags for this packet.
func (p *PublishPacket) flags() byte {
	var flags byte
	if p.Retain {
		flags |= publishFlagRetain
	}
	flags |= (p.QoS & 0x03) << 1
	if p.DUP {
		flags |= publishFlagDup
	}
	return flags
}

// Encode writes the packet to the writer.
func (p *PublishPacket) Encode(w io.Writer) (int, error) {
	if err := p.Validate(); err != nil {
		return 0, err
	}

	var buf bytes.Buffer

	if _, err := encodeString(&buf, p.Topic); err != nil {
		return 0, err
	}
	if p.QoS > 0 {
		if _, err := encodeUint16(&buf, p.ID); err != nil {
			return 0, err
		}
	}
	buf.Write(p.Payload)

	header := FixedHeader{
		PacketType:      PacketPUBLISH,
		Flags:           p.flags(),
		RemainingLength: uint32(buf.Len()),
	}

	total, err := header.Encode(w)
	if err != nil {
		return total, err
	}

	n, err := w.Write(buf.Bytes())
	return total + n, err
}

// Decode reads the packet from the reader. The payload is the remainder of
// the remaining length after the topic and, for QoS > 0, the packet id.
func (p *PublishPacket) Decode(r io.Reader, header FixedHeader) (int, error) {
	p.Retain = header.Flags&publishFlagRetain != 0
	p.QoS = (header.Flags >> 1) & 0x03
	p.DUP = header.Flags&publishFlagDup != 0

	if p.QoS > 2 {
		return 0, ErrInvalidQoS
	}
	if p.QoS == 0 && p.DUP {
		return 0, ErrDupOnQoS0
	}

	var totalRead int

	topic, n, err := decodeString(r)
	totalRead += n
	if err != nil {
		return totalRead, err
	}
	p.Topic = topic

	if p.QoS > 0 {
		p.ID, n, err = decodeUint16(r)
		totalRead += n
		if err != nil {
			return totalRead, err
		}
	}

	payloadLen := int(header.RemainingLength) - totalRead
	if payloadLen < 0 {
		return totalRead, ErrMalformedPacket
	}
	p.Payload = make([]byte, payloadLen)
	n, err = io.ReadFull(r, p.Payload)
	totalRead += n
	if err != nil {
		return totalRead, err
	}

	return totalRead, p.Validate()
}

// Validate validates the packet contents.
func (p *PublishPacket) Validate() error {
	if p.QoS > 2 {
		return ErrInvalidQoS
	}
	if p.QoS == 0 && p.DUP {
		return ErrDupOnQoS0
	}
	if p.QoS > 0 && p.ID == 0 {
		return ErrPacketIDRequired
	}
	return ValidateTopicName(p.Topic)
}
