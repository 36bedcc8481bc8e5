package mqtt311

import (
	"bytes"
	"errors"
	"io"
)

var (
	// ErrPacketTooLarge is returned when a packet exceeds the configured
	// maximum size.
	ErrPacketTooLarge = errors.New("mqtt311: packet exceeds maximum size")
)

// PacketWriter serializes outbound packets. The session engine writes every
// outgoing packet through its PacketWriter, so tests can substitute an
// implementation that captures or corrupts the encoding.
type PacketWriter interface {
	// WritePacket encodes pkt onto w. Returns the number of bytes written.
	WritePacket(w io.Writer, pkt Packet) (int, error)
}

// codecWriter is the default PacketWriter using the packet's own encoder.
type codecWriter struct{}

func (codecWriter) WritePacket(w io.Writer, pkt Packet) (int, error) {
	return WritePacket(w, pkt)
}

// newPacket returns a zero value of the packet struct for the given type.
func newPacket(t PacketType) (Packet, error) {
	switch t {
	case PacketCONNECT:
		return &ConnectPacket{}, nil
	case PacketCONNACK:
		return &ConnackPacket{}, nil
	case PacketPUBLISH:
		return &PublishPacket{}, nil
	case PacketPUBACK:
		return &PubackPacket{}, nil
	case PacketPUBREC:
		return &PubrecPacket{}, nil
	case PacketPUBREL:
		return &PubrelPacket{}, nil
	case PacketPUBCOMP:
		return &PubcompPacket{}, nil
	case PacketSUBSCRIBE:
		return &SubscribePacket{}, nil
	case PacketSUBACK:
		return &SubackPacket{}, nil
	case PacketUNSUBSCRIBE:
		return &UnsubscribePacket{}, nil
	case PacketUNSUBACK:
		return &UnsubackPacket{}, nil
	case PacketPINGREQ:
		return &PingreqPacket{}, nil
	case PacketPINGRESP:
		return &PingrespPacket{}, nil
	case PacketDISCONNECT:
		return &DisconnectPacket{}, nil
	default:
		return nil, &UnexpectedPacketError{Type: t}
	}
}

// ReadPacket reads a complete MQTT packet from the reader.
// If maxSize is greater than 0, packets larger than maxSize return
// ErrPacketTooLarge.
func ReadPacket(r io.Reader, maxSize uint32) (Packet, int, error) {
	var header FixedHeader
	n, err := header.Decode(r)
	if err != nil {
		return nil, n, err
	}

	if maxSize > 0 && header.RemainingLength > maxSize {
		return nil, n, ErrPacketTooLarge
	}

	remaining := make([]byte, header.RemainingLength)
	if header.RemainingLength > 0 {
		rn, err := io.ReadFull(r, remaining)
		n += rn
		if err != nil {
			return nil, n, err
		}
	}

	pkt, err := newPacket(header.PacketType)
	if err != nil {
		return nil, n, err
	}

	_, err = pkt.Decode(bytes.NewReader(remaining), header)
	if err != nil {
		return nil, n, err
	}

	return pkt, n, nil
}

// WritePacket writes a complete MQTT packet to the writer.
func WritePacket(w io.Writer, pkt Packet) (int, error) {
	if err := pkt.Validate(); err != nil {
		return 0, err
	}
	return pkt.Encode(w)
}
