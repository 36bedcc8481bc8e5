package mqtt311

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectEncodeWireFormat(t *testing.T) {
	pkt := &ConnectPacket{
		ClientID:     "MQTTS",
		CleanSession: true,
		KeepAlive:    60,
	}

	var buf bytes.Buffer
	_, err := pkt.Encode(&buf)
	require.NoError(t, err)

	want := []byte{
		0x10, 0x11, // fixed header, remaining length 17
		0x00, 0x04, 'M', 'Q', 'T', 'T', // protocol name
		0x04,       // protocol level
		0x02,       // connect flags: clean session
		0x00, 0x3c, // keep alive 60
		0x00, 0x05, 'M', 'Q', 'T', 'T', 'S', // client id
	}
	assert.Equal(t, want, buf.Bytes())
}

func TestConnectRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		pkt  ConnectPacket
	}{
		{
			name: "minimal",
			pkt:  ConnectPacket{ClientID: "c1", CleanSession: true, KeepAlive: 60},
		},
		{
			name: "credentials",
			pkt: ConnectPacket{
				ClientID:     "c2",
				CleanSession: true,
				KeepAlive:    30,
				Username:     "user",
				Password:     []byte("secret"),
			},
		},
		{
			name: "will",
			pkt: ConnectPacket{
				ClientID:     "c3",
				CleanSession: false,
				KeepAlive:    10,
				WillFlag:     true,
				WillTopic:    "last/will",
				WillPayload:  []byte("gone"),
				WillQoS:      1,
				WillRetain:   true,
			},
		},
		{
			name: "everything",
			pkt: ConnectPacket{
				ClientID:     "c4",
				CleanSession: true,
				KeepAlive:    0,
				Username:     "user",
				Password:     []byte("pw"),
				WillFlag:     true,
				WillTopic:    "w",
				WillPayload:  []byte{},
				WillQoS:      2,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			_, err := tt.pkt.Encode(&buf)
			require.NoError(t, err)

			decoded, _, err := ReadPacket(&buf, 0)
			require.NoError(t, err)

			got, ok := decoded.(*ConnectPacket)
			require.True(t, ok)
			assert.Equal(t, tt.pkt, *got)
		})
	}
}

func TestConnectEmptyClientIDRequiresCleanSession(t *testing.T) {
	pkt := &ConnectPacket{ClientID: "", CleanSession: false, KeepAlive: 60}

	var buf bytes.Buffer
	_, err := pkt.Encode(&buf)
	assert.ErrorIs(t, err, ErrClientIDRequired)

	pkt.CleanSession = true
	_, err = pkt.Encode(&buf)
	assert.NoError(t, err)
}

func TestConnectPasswordWithoutUsername(t *testing.T) {
	pkt := &ConnectPacket{
		ClientID:     "c1",
		CleanSession: true,
		Password:     []byte("pw"),
	}
	assert.ErrorIs(t, pkt.Validate(), ErrInvalidConnectFlags)
}

func TestConnectDecodeReservedFlagBit(t *testing.T) {
	// Connect flags 0x03: clean session plus the reserved bit 0.
	raw := []byte{
		0x10, 0x0c,
		0x00, 0x04, 'M', 'Q', 'T', 'T',
		0x04,
		0x03,
		0x00, 0x3c,
		0x00, 0x00,
	}
	_, _, err := ReadPacket(bytes.NewReader(raw), 0)
	assert.ErrorIs(t, err, ErrInvalidConnectFlags)
}

func TestConnectDecodeWrongProtocolName(t *testing.T) {
	raw := []byte{
		0x10, 0x0c,
		0x00, 0x04, 'M', 'Q', 'X', 'X',
		0x04,
		0x02,
		0x00, 0x3c,
		0x00, 0x00,
	}
	_, _, err := ReadPacket(bytes.NewReader(raw), 0)
	assert.ErrorIs(t, err, ErrInvalidProtocolName)
}

func TestConnectDecodeWrongProtocolLevel(t *testing.T) {
	raw := []byte{
		0x10, 0x0c,
		0x00, 0x04, 'M', 'Q', 'T', 'T',
		0x05, // MQTT 5 level
		0x02,
		0x00, 0x3c,
		0x00, 0x00,
	}
	_, _, err := ReadPacket(bytes.NewReader(raw), 0)
	assert.ErrorIs(t, err, ErrInvalidProtocolLevel)
}
