package mqtt311

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnackDecodeWireFormat(t *testing.T) {
	// Session present, connection accepted.
	pkt, n, err := ReadPacket(bytes.NewReader([]byte{0x20, 0x02, 0x01, 0x00}), 0)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	connack, ok := pkt.(*ConnackPacket)
	require.True(t, ok)
	assert.True(t, connack.SessionPresent)
	assert.Equal(t, ConnectAccepted, connack.ReturnCode)
	assert.NoError(t, connack.Err())
}

func TestConnackRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		pkt  ConnackPacket
	}{
		{"accepted", ConnackPacket{SessionPresent: false, ReturnCode: ConnectAccepted}},
		{"accepted with session", ConnackPacket{SessionPresent: true, ReturnCode: ConnectAccepted}},
		{"refused", ConnackPacket{SessionPresent: false, ReturnCode: ConnectServerUnavailable}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			_, err := tt.pkt.Encode(&buf)
			require.NoError(t, err)

			decoded, _, err := ReadPacket(&buf, 0)
			require.NoError(t, err)
			assert.Equal(t, &tt.pkt, decoded)
		})
	}
}

func TestConnackReturnCodeErrors(t *testing.T) {
	tests := []struct {
		code ConnectReturnCode
		want string
	}{
		{ConnectUnacceptableProtocolVersion, "unacceptable protocol version"},
		{ConnectIdentifierRejected, "identifier rejected"},
		{ConnectServerUnavailable, "server unavailable"},
		{ConnectBadUsernameOrPassword, "bad user name or password"},
		{ConnectNotAuthorized, "not authorized"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			pkt := &ConnackPacket{ReturnCode: tt.code}
			err := pkt.Err()
			require.Error(t, err)

			var connErr *ConnectError
			require.ErrorAs(t, err, &connErr)
			assert.Equal(t, tt.code, connErr.Code)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestConnackDecodeInvalidFlags(t *testing.T) {
	_, _, err := ReadPacket(bytes.NewReader([]byte{0x20, 0x02, 0x02, 0x00}), 0)
	assert.ErrorIs(t, err, ErrInvalidConnackFlags)
}

func TestConnackDecodeInvalidReturnCode(t *testing.T) {
	_, _, err := ReadPacket(bytes.NewReader([]byte{0x20, 0x02, 0x00, 0x06}), 0)
	assert.ErrorIs(t, err, ErrInvalidConnackReturnCode)
}

func TestConnackSessionPresentOnRefusal(t *testing.T) {
	_, _, err := ReadPacket(bytes.NewReader([]byte{0x20, 0x02, 0x01, 0x05}), 0)
	assert.ErrorIs(t, err, ErrInvalidConnackFlags)
}
