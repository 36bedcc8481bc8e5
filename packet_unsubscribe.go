package mqtt311

import (
	"bytes"
	"fmt"
	"io"
)

// ErrNoTopicFilters is returned for an UNSUBSCRIBE without topic filters.
var ErrNoTopicFilters = fmt.Errorf("%w: UNSUBSCRIBE without topic filters", ErrProtocolViolation)

// UnsubscribePacket represents an MQTT UNSUBSCRIBE packet. Its fixed header
// flags are the reserved value 0010.
// MQTT v3.1.1 spec: Section 3.10
type UnsubscribePacket struct {
	// ID is the packet identifier.
	ID uint16

	// TopicFilters lists the filters to remove. At least one entry is
	// required.
	TopicFilters []string
}

// Type returns the packet type.
func (p *UnsubscribePacket) Type() PacketType {
	return PacketUNSUBSCRIBE
}

// PacketID returns the packet identifier.
func (p *UnsubscribePacket) PacketID() uint16 { return p.ID }

// SetPacketID sets the packet identifier.
func (p *UnsubscribePacket) SetPacketID(id uint16) { p.ID = id }

// Encode writes the packet to the writer.
func (p *UnsubscribePacket) Encode(w io.Writer) (int, error) {
	if err := p.Validate(); err != nil {
		return 0, err
	}

	var buf bytes.Buffer

	if _, err := encodeUint16(&buf, p.ID); err != nil {
		return 0, err
	}
	for _, filter := range p.TopicFilters {
		if _, err := encodeString(&buf, filter); err != nil {
			return 0, err
		}
	}

	header := FixedHeader{
		PacketType:      PacketUNSUBSCRIBE,
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
func (p *UnsubscribePacket) Decode(r io.Reader, header FixedHeader) (int, error) {
	var totalRead int

	id, n, err := decodeUint16(r)
	totalRead += n
	if err != nil {
		return totalRead, err
	}
	p.ID = id

	p.TopicFilters = nil
	for uint32(totalRead) < header.RemainingLength {
		filter, n, err := decodeString(r)
		totalRead += n
		if err != nil {
			return totalRead, err
		}
		p.TopicFilters = append(p.TopicFilters, filter)
	}

	return totalRead, p.Validate()
}

// Validate validates the packet contents.
func (p *UnsubscribePacket) Validate() error {
	if p.ID == 0 {
		return ErrInvalidPacketID
	}
	if len(p.TopicFilters) == 0 {
		return ErrNoTopicFilters
	}
	for _, filter := range p.TopicFilters {
		if err := ValidateTopicFilter(filter); err != nil {
			return err
		}
	}
	return nil
}
