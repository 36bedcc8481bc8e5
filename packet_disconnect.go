package mqtt311

import (
	"fmt"
	"io"
)

// ErrNonEmptyDisconnect is returned when a DISCONNECT carries a payload.
var ErrNonEmptyDisconnect = fmt.Errorf("%w: DISCONNECT with non-zero remaining length", ErrMalformedPacket)

// DisconnectPacket represents an MQTT DISCONNECT packet. In MQTT 3.1.1 it
// has no variable header and no payload.
// MQTT v3.1.1 spec: Section 3.14
type DisconnectPacket struct{}

// Type returns the packet type.
func (p *DisconnectPacket) Type() PacketType {
	return PacketDISCONNECT
}

// Encode writes the packet to the writer.
func (p *DisconnectPacket) Encode(w io.Writer) (int, error) {
	header := FixedHeader{PacketType: PacketDISCONNECT}
	return header.Encode(w)
}

// Decode reads the packet from the reader.
func (p *DisconnectPacket) Decode(_ io.Reader, header FixedHeader) (int, error) {
	if header.RemainingLength != 0 {
		return 0, ErrNonEmptyDisconnect
	}
	return 0, nil
}

// Validate validates the packet contents.
func (p *DisconnectPacket) Validate() error {
	return nil
}
