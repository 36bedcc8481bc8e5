package mqtt311

import (
	"bytes"
	"errors"
	"fmt"
	"io"
)

// SUBSCRIBE packet errors.
var (
	ErrNoSubscriptions   = fmt.Errorf("%w: SUBSCRIBE without subscriptions", ErrProtocolViolation)
	ErrInvalidRequestQoS = errors.New("mqtt311: requested QoS must be 0, 1 or 2")
)

// Subscription pairs a topic filter with a requested QoS level.
// MQTT v3.1.1 spec: Section 3.8.3
type Subscription struct {
	// TopicFilter is the topic filter, possibly containing wildcards.
	TopicFilter string

	// QoS is the maximum QoS level the client wants for this filter.
	QoS byte
}

// SubscribePacket represents an MQTT SUBSCRIBE packet. Its fixed header
// flags are the reserved value 0010.
// MQTT v3.1.1 spec: Section 3.8
type SubscribePacket struct {
	// ID is the packet identifier.
	ID uint16

	// Subscriptions lists the requested topic filters. At least one entry
	// is required.
	Subscriptions []Subscription
}

// Type returns the packet type.
func (p *SubscribePacket) Type() PacketType {
	return PacketSUBSCRIBE
}

// PacketID returns the packet identifier.
func (p *SubscribePacket) PacketID() uint16 { return p.ID }

// SetPacketID sets the packet identifier.
func (p *SubscribePacket) SetPacketID(id uint16) { p.ID = id }

// Encode writes the packet to the writer.
func (p *SubscribePacket) Encode(w io.Writer) (int, error) {
	if err := p.Validate(); err != nil {
		return 0, err
	}

	var buf bytes.Buffer

	if _, err := encodeUint16(&buf, p.ID); err != nil {
		return 0, err
	}
	for _, sub := range p.Subscriptions {
		if _, err := encodeString(&buf, sub.TopicFilter); err != nil {
			return 0, err
		}
		buf.WriteByte(sub.QoS)
	}

	header := FixedHeader{
		PacketType:      PacketSUBSCRIBE,
		Flags:           0x02,
		RemainingLength: uint32(buf.Len()),
	}

	total, err := header.Encode(w)
	if err != nil {
		return total, err
	}

	n, err := w.Write(buf.Bytes())
	return total + n, err
}

// Decode reads the packet from the reader.
func (p *SubscribePacket) Decode(r io.Reader, header FixedHeader) (int, error) {
	var totalRead int

	id, n, err := decodeUint16(r)
	totalRead += n
	if err != nil {
		return totalRead, err
	}
	p.ID = id

	p.Subscriptions = nil
	for uint32(totalRead) < header.RemainingLength {
		filter, n, err := decodeString(r)
		totalRead += n
		if err != nil {
			return totalRead, err
		}

		var qosBuf [1]byte
		n, err = io.ReadFull(r, qosBuf[:])
		totalRead += n
		if err != nil {
			return totalRead, err
		}

		p.Subscriptions = append(p.Subscriptions, Subscription{
			TopicFilter: filter,
			QoS:         qosBuf[0],
		})
	}

	return totalRead, p.Validate()
}

// Validate validates the packet contents.
func (p *SubscribePacket) Validate() error {
	if p.ID == 0 {
		return ErrInvalidPacketID
	}
	if len(p.Subscriptions) == 0 {
		return ErrNoSubscriptions
	}
	for _, sub := range p.Subscriptions {
		if sub.QoS > 2 {
			return ErrInvalidRequestQoS
		}
		if err := ValidateTopicFilter(sub.TopicFilter); err != nil {
			return err
		}
	}
	return nil
}
