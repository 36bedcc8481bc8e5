package mqtt311

import (
	"bytes"
	"errors"
	"io"
)

// errNeedMore signals that the buffer does not yet hold a complete packet.
var errNeedMore = errors.New("mqtt311: need more data")

// FrameReader turns an inbound byte stream into a sequence of decoded
// packets. It keeps a growable buffer so the transport may deliver frames
// in arbitrary chunks; a decode error is sticky and ends the sequence for
// the lifetime of the transport attachment.
type FrameReader struct {
	buf     []byte
	err     error
	maxSize uint32
}

// NewFrameReader creates a frame reader. If maxSize is greater than 0,
// frames larger than maxSize fail with ErrPacketTooLarge.
func NewFrameReader(maxSize uint32) *FrameReader {
	return &FrameReader{maxSize: maxSize}
}

// Err returns the sticky decode error, if any.
func (f *FrameReader) Err() error {
	return f.err
}

// Buffered returns the number of bytes awaiting a complete frame.
func (f *FrameReader) Buffered() int {
	return len(f.buf)
}

// Feed appends a chunk and returns every complete packet now parseable
// from the front of the buffer. A partial trailing frame stays buffered
// for the next chunk. Once a chunk fails to decode, the error is returned
// from every subsequent call.
func (f *FrameReader) Feed(chunk []byte) ([]Packet, error) {
	if f.err != nil {
		return nil, f.err
	}

	f.buf = append(f.buf, chunk...)

	var packets []Packet
	for {
		pkt, consumed, err := f.parseFront()
		if errors.Is(err, errNeedMore) {
			return packets, nil
		}
		if err != nil {
			f.err = err
			return packets, err
		}
		f.buf = f.buf[consumed:]
		packets = append(packets, pkt)
	}
}

// parseFront attempts to decode one packet from the front of the buffer.
func (f *FrameReader) parseFront() (Packet, int, error) {
	if len(f.buf) < 2 {
		return nil, 0, errNeedMore
	}

	// Scan the variable byte integer without consuming; a continuation
	// bit on the fourth length byte is malformed regardless of how much
	// data follows.
	var remaining uint32
	var shift uint
	lenBytes := 0
	for {
		if 1+lenBytes >= len(f.buf) {
			if lenBytes == 4 {
				return nil, 0, ErrVarintMalformed
			}
			return nil, 0, errNeedMore
		}
		if lenBytes == 4 {
			return nil, 0, ErrVarintMalformed
		}
		b := f.buf[1+lenBytes]
		remaining |= uint32(b&varintValueMask) << shift
		shift += 7
		lenBytes++
		if b&varintContinueBit == 0 {
			break
		}
	}

	if f.maxSize > 0 && remaining > f.maxSize {
		return nil, 0, ErrPacketTooLarge
	}

	frameLen := 1 + lenBytes + int(remaining)
	if len(f.buf) < frameLen {
		return nil, 0, errNeedMore
	}

	pkt, _, err := ReadPacket(bytes.NewReader(f.buf[:frameLen]), f.maxSize)
	if err != nil {
		return nil, 0, err
	}

	return pkt, frameLen, nil
}

// Pump reads chunks from r and delivers decoded packets to deliver until
// the reader fails or deliver returns an error. A read failure is wrapped
// as a TransportError; decode failures are returned as-is.
func (f *FrameReader) Pump(r io.Reader, deliver func(Packet) error) error {
	chunk := make([]byte, 4096)
	for {
		n, err := r.Read(chunk)
		if n > 0 {
			packets, ferr := f.Feed(chunk[:n])
			for _, pkt := range packets {
				if derr := deliver(pkt); derr != nil {
					return derr
				}
			}
			if ferr != nil {
				return ferr
			}
		}
		if err != nil {
			return &TransportError{Err: err}
		}
	}
}
