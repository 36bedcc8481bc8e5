package mqtt311

import (
	"errors"
	"io"
)

// ErrInvalidPacketID is returned when an acknowledgment carries the
// reserved packet identifier zero.
var ErrInvalidPacketID = errors.New("mqtt311: packet identifier must not be zero")

// In MQTT 3.1.1 the four publish acknowledgments and UNSUBACK share the
// same shape: a two-byte variable header holding the packet identifier.
// MQTT v3.1.1 spec: Sections 3.4 to 3.7, 3.11

// encodeAck encodes an acknowledgment packet with the given type.
func encodeAck(w io.Writer, packetType PacketType, id uint16) (int, error) {
	if id == 0 {
		return 0, ErrInvalidPacketID
	}

	flags, _ := fixedFlags(packetType)
	header := FixedHeader{
		PacketType:      packetType,
		Flags:           flags,
		RemainingLength: 2,
	}

	total, err := header.Encode(w)
	if err != nil {
		return total, err
	}

	n, err := w.Write([]byte{byte(id >> 8), byte(id)})
	return total + n, err
}

// decodeAck decodes an acknowledgment packet's identifier.
func decodeAck(r io.Reader) (uint16, int, error) {
	id, n, err := decodeUint16(r)
	if err != nil {
		return 0, n, err
	}
	if id == 0 {
		return 0, n, ErrInvalidPacketID
	}
	return id, n, nil
}

// PubackPacket represents an MQTT PUBACK packet, the response to a QoS 1
// PUBLISH.
// MQTT v3.1.1 spec: Section 3.4
type PubackPacket struct {
	ID uint16
}

// Type returns the packet type.
func (p *PubackPacket) Type() PacketType { return PacketPUBACK }

// PacketID returns the packet identifier.
func (p *PubackPacket) PacketID() uint16 { return p.ID }

// SetPacketID sets the packet identifier.
func (p *PubackPacket) SetPacketID(id uint16) { p.ID = id }

// Encode writes the packet to the writer.
func (p *PubackPacket) Encode(w io.Writer) (int, error) {
	return encodeAck(w, PacketPUBACK, p.ID)
}

// Decode reads the packet from the reader.
func (p *PubackPacket) Decode(r io.Reader, _ FixedHeader) (int, error) {
	id, n, err := decodeAck(r)
	p.ID = id
	return n, err
}

// Validate validates the packet contents.
func (p *PubackPacket) Validate() error {
	if p.ID == 0 {
		return ErrInvalidPacketID
	}
	return nil
}

// PubrecPacket represents an MQTT PUBREC packet, the first response in the
// QoS 2 exchange.
// MQTT v3.1.1 spec: Section 3.5
type PubrecPacket struct {
	ID uint16
}

// Type returns the packet type.
func (p *PubrecPacket) Type() PacketType { return PacketPUBREC }

// PacketID returns the packet identifier.
func (p *PubrecPacket) PacketID() uint16 { return p.ID }

// SetPacketID sets the packet identifier.
func (p *PubrecPacket) SetPacketID(id uint16) { p.ID = id }

// Encode writes the packet to the writer.
func (p *PubrecPacket) Encode(w io.Writer) (int, error) {
	return encodeAck(w, PacketPUBREC, p.ID)
}

// Decode reads the packet from the reader.
func (p *PubrecPacket) Decode(r io.Reader, _ FixedHeader) (int, error) {
	id, n, err := decodeAck(r)
	p.ID = id
	return n, err
}

// Validate validates the packet contents.
func (p *PubrecPacket) Validate() error {
	if p.ID == 0 {
		return ErrInvalidPacketID
	}
	return nil
}

// PubrelPacket represents an MQTT PUBREL packet. Its fixed header flags are
// the reserved value 0010.
// MQTT v3.1.1 spec: Section 3.6
type PubrelPacket struct {
	ID uint16
}

// Type returns the packet type.
func (p *PubrelPacket) Type() PacketType { return PacketPUBREL }

// PacketID returns the packet identifier.
func (p *PubrelPacket) PacketID() uint16 { return p.ID }

// SetPacketID sets the packet identifier.
func (p *PubrelPacket) SetPacketID(id uint16) { p.ID = id }

// Encode writes the packet to the writer.
func (p *PubrelPacket) Encode(w io.Writer) (int, error) {
	return encodeAck(w, PacketPUBREL, p.ID)
}

// Decode reads the packet from the reader.
func (p *PubrelPacket) Decode(r io.Reader, _ FixedHeader) (int, error) {
	id, n, err := decodeAck(r)
	p.ID = id
	return n, err
}

// Validate validates the packet contents.
func (p *PubrelPacket) Validate() error {
	if p.ID == 0 {
		return ErrInvalidPacketID
	}
	return nil
}

// PubcompPacket represents an MQTT PUBCOMP packet, the final packet of the
// QoS 2 exchange.
// MQTT v3.1.1 spec: Section 3.7
type PubcompPacket struct {
	ID uint16
}

// Type returns the packet type.
func (p *PubcompPacket) Type() PacketType { return PacketPUBCOMP }

// PacketID returns the packet identifier.
func (p *PubcompPacket) PacketID() uint16 { return p.ID }

// SetPacketID sets the packet identifier.
func (p *PubcompPacket) SetPacketID(id uint16) { p.ID = id }

// Encode writes the packet to the writer.
func (p *PubcompPacket) Encode(w io.Writer) (int, error) {
	return encodeAck(w, PacketPUBCOMP, p.ID)
}

// Decode reads the packet from the reader.
func (p *PubcompPacket) Decode(r io.Reader, _ FixedHeader) (int, error) {
	id, n, err := decodeAck(r)
	p.ID = id
	return n, err
}

// Validate validates the packet contents.
func (p *PubcompPacket) Validate() error {
	if p.ID == 0 {
		return ErrInvalidPacketID
	}
	return nil
}

// UnsubackPacket represents an MQTT UNSUBACK packet.
// MQTT v3.1.1 spec: Section 3.11
type UnsubackPacket struct {
	ID uint16
}

// Type returns the packet type.
func (p *UnsubackPacket) Type() PacketType { return PacketUNSUBACK }

// PacketID returns the packet identifier.
func (p *UnsubackPacket) PacketID() uint16 { return p.ID }

// SetPacketID sets the packet identifier.
func (p *UnsubackPacket) SetPacketID(id uint16) { p.ID = id }

// Encode writes the packet to the writer.
func (p *UnsubackPacket) Encode(w io.Writer) (int, error) {
	return encodeAck(w, PacketUNSUBACK, p.ID)
}

// Decode reads the packet from the reader.
func (p *UnsubackPacket) Decode(r io.Reader, _ FixedHeader) (int, error) {
	id, n, err := decodeAck(r)
	p.ID = id
	return n, err
}

// Validate validates the packet contents.
func (p *UnsubackPacket) Validate() error {
	if p.ID == 0 {
		return ErrInvalidPacketID
	}
	return nil
}
