package mqtt311

import (
	"bytes"
	"errors"
	"fmt"
	"io"
)

// CONNECT packet constants.
const (
	protocolName  = "MQTT"
	protocolLevel = 4
)

// Connect flag bit positions.
// MQTT v3.1.1 spec: Section 3.1.2.3
const (
	connectFlagCleanSession = 0x02
	connectFlagWillFlag     = 0x04
	connectFlagWillRetain   = 0x20
	connectFlagPasswordFlag = 0x40
	connectFlagUsernameFlag = 0x80
)

// CONNECT packet errors.
var (
	ErrInvalidProtocolName  = fmt.Errorf("%w: invalid protocol name", ErrMalformedPacket)
	ErrInvalidProtocolLevel = errors.New("mqtt311: unsupported protocol level")
	ErrInvalidConnectFlags  = fmt.Errorf("%w: reserved connect flag set", ErrMalformedPacket)
	ErrInvalidWillQoS       = errors.New("mqtt311: invalid will QoS")
	ErrClientIDRequired     = errors.New("mqtt311: client ID required with clean session false")
)

// ConnectPacket represents an MQTT CONNECT packet.
// MQTT v3.1.1 spec: Section 3.1
type ConnectPacket struct {
	// ClientID is the client identifier.
	ClientID string

	// CleanSession requests that the server discards any previous session
	// state for this client ID.
	CleanSession bool

	// KeepAlive is the keep alive interval in seconds.
	KeepAlive uint16

	// Username for authentication.
	Username string

	// Password for authentication.
	Password []byte

	// Will message configuration.
	WillFlag    bool
	WillRetain  bool
	WillQoS     byte
	WillTopic   string
	WillPayload []byte
}

// Type returns the packet type.
func (p *ConnectPacket) Type() PacketType {
	return PacketCONNECT
}

// connectFlags returns the connect flags byte.
func (p *ConnectPacket) connectFlags() byte {
	var flags byte

	if p.CleanSession {
		flags |= connectFlagCleanSession
	}

	if p.WillFlag {
		flags |= connectFlagWillFlag
		flags |= (p.WillQoS & 0x03) << 3
		if p.WillRetain {
			flags |= connectFlagWillRetain
		}
	}

	if len(p.Password) > 0 {
		flags |= connectFlagPasswordFlag
	}

	if p.Username != "" {
		flags |= connectFlagUsernameFlag
	}

	return flags
}

// setConnectFlags parses the connect flags byte.
func (p *ConnectPacket) setConnectFlags(flags byte) error {
	// Bit 0 is reserved and must be zero.
	if flags&0x01 != 0 {
		return ErrInvalidConnectFlags
	}

	p.CleanSession = flags&connectFlagCleanSession != 0
	p.WillFlag = flags&connectFlagWillFlag != 0
	p.WillQoS = (flags >> 3) & 0x03
	p.WillRetain = flags&connectFlagWillRetain != 0

	// Will QoS and retain must be zero when the will flag is unset.
	if !p.WillFlag && (p.WillQoS != 0 || p.WillRetain) {
		return ErrInvalidConnectFlags
	}
	if p.WillQoS > 2 {
		return ErrInvalidWillQoS
	}

	return nil
}

// Encode writes the packet to the writer.
func (p *ConnectPacket) Encode(w io.Writer) (int, error) {
	if err := p.Validate(); err != nil {
		return 0, err
	}

	var buf bytes.Buffer

	// Variable header: protocol name, level, connect flags, keep alive.
	if _, err := encodeString(&buf, protocolName); err != nil {
		return 0, err
	}
	buf.WriteByte(protocolLevel)
	buf.WriteByte(p.connectFlags())
	if _, err := encodeUint16(&buf, p.KeepAlive); err != nil {
		return 0, err
	}

	// Payload: client id, will topic, will payload, username, password.
	// MQTT v3.1.1 spec: Section 3.1.3
	if _, err := encodeString(&buf, p.ClientID); err != nil {
		return 0, err
	}
	if p.WillFlag {
		if _, err := encodeString(&buf, p.WillTopic); err != nil {
			return 0, err
		}
		if _, err := encodeBytes(&buf, p.WillPayload); err != nil {
			return 0, err
		}
	}
	if p.Username != "" {
		if _, err := encodeString(&buf, p.Username); err != nil {
			return 0, err
		}
	}
	if len(p.Password) > 0 {
		if _, err := encodeBytes(&buf, p.Password); err != nil {
			return 0, err
		}
	}

	header := FixedHeader{
		PacketType:      PacketCONNECT,
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
func (p *ConnectPacket) Decode(r io.Reader, _ FixedHeader) (int, error) {
	var totalRead int

	name, n, err := decodeString(r)
	totalRead += n
	if err != nil {
		return totalRead, err
	}
	if name != protocolName {
		return totalRead, ErrInvalidProtocolName
	}

	var levelBuf [2]byte
	n, err = io.ReadFull(r, levelBuf[:])
	totalRead += n
	if err != nil {
		return totalRead, err
	}
	if levelBuf[0] != protocolLevel {
		return totalRead, ErrInvalidProtocolLevel
	}
	if err := p.setConnectFlags(levelBuf[1]); err != nil {
		return totalRead, err
	}

	hasUsername := levelBuf[1]&connectFlagUsernameFlag != 0
	hasPassword := levelBuf[1]&connectFlagPasswordFlag != 0

	p.KeepAlive, n, err = decodeUint16(r)
	totalRead += n
	if err != nil {
		return totalRead, err
	}

	p.ClientID, n, err = decodeString(r)
	totalRead += n
	if err != nil {
		return totalRead, err
	}

	if p.WillFlag {
		p.WillTopic, n, err = decodeString(r)
		totalRead += n
		if err != nil {
			return totalRead, err
		}
		p.WillPayload, n, err = decodeBytes(r)
		totalRead += n
		if err != nil {
			return totalRead, err
		}
	}

	if hasUsername {
		p.Username, n, err = decodeString(r)
		totalRead += n
		if err != nil {
			return totalRead, err
		}
	}

	if hasPassword {
		p.Password, n, err = decodeBytes(r)
		totalRead += n
		if err != nil {
			return totalRead, err
		}
	}

	return totalRead, p.Validate()
}

// Validate validates the packet contents.
func (p *ConnectPacket) Validate() error {
	// A zero-length client id requires a clean session.
	// MQTT v3.1.1 spec: Section 3.1.3.1
	if p.ClientID == "" && !p.CleanSession {
		return ErrClientIDRequired
	}

	if p.WillFlag {
		if p.WillQoS > 2 {
			return ErrInvalidWillQoS
		}
		if p.WillTopic == "" {
			return ErrInvalidTopicName
		}
	} else if p.WillQoS != 0 || p.WillRetain {
		return ErrInvalidConnectFlags
	}

	// A password without a username is not allowed in 3.1.1.
	// MQTT v3.1.1 spec: Section 3.1.2.9
	if p.Username == "" && len(p.Password) > 0 {
		return ErrInvalidConnectFlags
	}

	return nil
}
