package mqtt311

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeString(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"empty", ""},
		{"simple", "hello"},
		{"topic", "sensors/kitchen/temperature"},
		{"utf8", "héllo/wörld"},
		{"max length", strings.Repeat("a", 65535)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			n, err := encodeString(&buf, tt.in)
			require.NoError(t, err)
			assert.Equal(t, len(tt.in)+2, n)

			out, rn, err := decodeString(&buf)
			require.NoError(t, err)
			assert.Equal(t, n, rn)
			assert.Equal(t, tt.in, out)
		})
	}
}

func TestEncodeStringErrors(t *testing.T) {
	var buf bytes.Buffer

	_, err := encodeString(&buf, strings.Repeat("a", 65536))
	assert.ErrorIs(t, err, ErrStringTooLong)

	_, err = encodeString(&buf, "bad\x00string")
	assert.ErrorIs(t, err, ErrStringContainsNull)

	_, err = encodeString(&buf, string([]byte{0xff, 0xfe}))
	assert.ErrorIs(t, err, ErrInvalidUTF8)
}

func TestDecodeStringInvalidUTF8(t *testing.T) {
	_, _, err := decodeString(bytes.NewReader([]byte{0x00, 0x02, 0xff, 0xfe}))
	assert.ErrorIs(t, err, ErrInvalidUTF8)
}

func TestEncodeDecodeBytes(t *testing.T) {
	var buf bytes.Buffer
	in := []byte{0x01, 0x02, 0x03}

	n, err := encodeBytes(&buf, in)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	out, rn, err := decodeBytes(&buf)
	require.NoError(t, err)
	assert.Equal(t, 5, rn)
	assert.Equal(t, in, out)
}

func TestEncodeDecodeVarint(t *testing.T) {
	tests := []struct {
		value uint32
		bytes []byte
	}{
		{0, []byte{0x00}},
		{1, []byte{0x01}},
		{127, []byte{0x7f}},
		{128, []byte{0x80, 0x01}},
		{16383, []byte{0xff, 0x7f}},
		{16384, []byte{0x80, 0x80, 0x01}},
		{2097151, []byte{0xff, 0xff, 0x7f}},
		{2097152, []byte{0x80, 0x80, 0x80, 0x01}},
		{268435455, []byte{0xff, 0xff, 0xff, 0x7f}},
	}

	for _, tt := range tests {
		var buf bytes.Buffer
		n, err := encodeVarint(&buf, tt.value)
		require.NoError(t, err)
		assert.Equal(t, len(tt.bytes), n)
		assert.Equal(t, tt.bytes, buf.Bytes())

		value, rn, err := decodeVarint(&buf)
		require.NoError(t, err)
		assert.Equal(t, len(tt.bytes), rn)
		assert.Equal(t, tt.value, value)
	}
}

func TestEncodeVarintTooLarge(t *testing.T) {
	var buf bytes.Buffer
	_, err := encodeVarint(&buf, 268435456)
	assert.ErrorIs(t, err, ErrVarintTooLarge)
}

func TestDecodeVarintMalformed(t *testing.T) {
	// A continuation bit on the fourth byte requires a fifth byte, which
	// the encoding does not allow.
	_, _, err := decodeVarint(bytes.NewReader([]byte{0x80, 0x80, 0x80, 0x80, 0x01}))
	assert.ErrorIs(t, err, ErrVarintMalformed)
	assert.ErrorIs(t, err, ErrMalformedPacket)
}
