package mqtt311

import (
	"bytes"
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testDialer hands the client one end of a net.Pipe per Dial and exposes
// the broker ends for the test to script.
type testDialer struct {
	conns chan net.Conn
}

func newTestDialer() *testDialer {
	return &testDialer{conns: make(chan net.Conn, 8)}
}

func (d *testDialer) Dial(_ context.Context, _ string) (Conn, error) {
	client, broker := net.Pipe()
	d.conns <- broker
	return client, nil
}

// broker returns the next accepted broker-side connection.
func (d *testDialer) broker(t *testing.T) net.Conn {
	t.Helper()
	select {
	case conn := <-d.conns:
		return conn
	case <-time.After(3 * time.Second):
		t.Fatal("no connection attempt observed")
		return nil
	}
}

func readBrokerPacket(t *testing.T, conn net.Conn) Packet {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	pkt, _, err := ReadPacket(conn, 0)
	require.NoError(t, err)
	return pkt
}

func writeBrokerPacket(t *testing.T, conn net.Conn, pkt Packet) {
	t.Helper()
	require.NoError(t, conn.SetWriteDeadline(time.Now().Add(3*time.Second)))
	_, err := WritePacket(conn, pkt)
	require.NoError(t, err)
}

func writeBrokerRaw(t *testing.T, conn net.Conn, raw []byte) {
	t.Helper()
	require.NoError(t, conn.SetWriteDeadline(time.Now().Add(3*time.Second)))
	_, err := conn.Write(raw)
	require.NoError(t, err)
}

// acceptConnect consumes the CONNECT and acknowledges it.
func acceptConnect(t *testing.T, conn net.Conn) *ConnectPacket {
	t.Helper()
	pkt := readBrokerPacket(t, conn)
	connect, ok := pkt.(*ConnectPacket)
	require.True(t, ok, "expected CONNECT, got %T", pkt)
	writeBrokerPacket(t, conn, &ConnackPacket{ReturnCode: ConnectAccepted})
	return connect
}

// connectedClient spins up a client against a scripted broker and
// completes the handshake.
func connectedClient(t *testing.T, opts ...Option) (*Client, net.Conn, *testDialer) {
	t.Helper()
	dialer := newTestDialer()

	all := append([]Option{
		WithDialer(dialer),
		WithServer("tcp://test"),
		WithClientID("test-client"),
		WithAutoReconnect(false),
	}, opts...)
	client := New(all...)

	errCh := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		errCh <- client.Connect(ctx)
	}()

	broker := dialer.broker(t)
	acceptConnect(t, broker)
	require.NoError(t, <-errCh)
	require.True(t, client.Ready())

	return client, broker, dialer
}

func TestConnectSuccessWireFormat(t *testing.T) {
	dialer := newTestDialer()
	client := New(
		WithDialer(dialer),
		WithServer("tcp://test"),
		WithClientID("MQTTS"),
		WithAutoReconnect(false),
	)

	errCh := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		errCh <- client.Connect(ctx)
	}()

	broker := dialer.broker(t)

	// Exactly one CONNECT with keep-alive 60, clean session, protocol
	// "MQTT" level 4.
	want := []byte{
		0x10, 0x11,
		0x00, 0x04, 'M', 'Q', 'T', 'T',
		0x04, 0x02, 0x00, 0x3c,
		0x00, 0x05, 'M', 'Q', 'T', 'T', 'S',
	}
	got := make([]byte, len(want))
	require.NoError(t, broker.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, err := io.ReadFull(broker, got)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	// CONNACK with session present, return code zero.
	writeBrokerRaw(t, broker, []byte{0x20, 0x02, 0x01, 0x00})

	require.NoError(t, <-errCh)
	assert.True(t, client.Ready())
	assert.False(t, client.Disconnected())

	require.NoError(t, client.Disconnect(true))
}

func TestConnectRefused(t *testing.T) {
	dialer := newTestDialer()
	client := New(
		WithDialer(dialer),
		WithServer("tcp://test"),
		WithClientID("c1"),
	)

	errCh := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		errCh <- client.Connect(ctx)
	}()

	broker := dialer.broker(t)
	readBrokerPacket(t, broker)
	writeBrokerPacket(t, broker, &ConnackPacket{ReturnCode: ConnectNotAuthorized})

	err := <-errCh
	var connErr *ConnectError
	require.ErrorAs(t, err, &connErr)
	assert.Equal(t, ConnectNotAuthorized, connErr.Code)
	assert.False(t, client.Ready())
	assert.True(t, client.Disconnected())
}

func TestConnectUnknownPacketDuringHandshake(t *testing.T) {
	dialer := newTestDialer()
	client := New(
		WithDialer(dialer),
		WithServer("tcp://test"),
		WithClientID("c1"),
		WithAutoReconnect(false),
	)

	errorEvents := make(chan any, 8)
	disconnectEvents := make(chan any, 8)
	client.On(EventError, func(p any) { errorEvents <- p })
	client.On(EventDisconnect, func(p any) { disconnectEvents <- p })

	errCh := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		errCh <- client.Connect(ctx)
	}()

	broker := dialer.broker(t)
	readBrokerPacket(t, broker)

	// Reserved packet type 15 while awaiting CONNACK.
	writeBrokerRaw(t, broker, []byte{0xf0, 0x02, 0x01, 0x00})

	err := <-errCh
	var unexpected *UnexpectedPacketError
	require.ErrorAs(t, err, &unexpected)
	assert.Equal(t, PacketType(15), unexpected.Type)

	assert.False(t, client.Ready())
	assert.True(t, client.Disconnected())

	// The error and disconnect events fire exactly once each.
	<-errorEvents
	<-disconnectEvents
	select {
	case extra := <-errorEvents:
		t.Fatalf("unexpected second error event: %v", extra)
	case extra := <-disconnectEvents:
		t.Fatalf("unexpected second disconnect event: %v", extra)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestConnectNonConnackPacketDuringHandshake(t *testing.T) {
	dialer := newTestDialer()
	client := New(
		WithDialer(dialer),
		WithServer("tcp://test"),
		WithClientID("c1"),
		WithAutoReconnect(false),
	)

	errCh := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		errCh <- client.Connect(ctx)
	}()

	broker := dialer.broker(t)
	readBrokerPacket(t, broker)

	// A well-formed PUBLISH is still illegal before CONNACK.
	writeBrokerPacket(t, broker, &PublishPacket{Topic: "a", Payload: []byte("b")})

	err := <-errCh
	var unexpected *UnexpectedPacketError
	require.ErrorAs(t, err, &unexpected)
	assert.Equal(t, PacketPUBLISH, unexpected.Type)
}

func TestConnectDelayResendsIdenticalConnect(t *testing.T) {
	dialer := newTestDialer()
	client := New(
		WithDialer(dialer),
		WithServer("tcp://test"),
		WithClientID("c1"),
		WithConnectDelay(100*time.Millisecond),
		WithAutoReconnect(false),
	)

	errCh := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		errCh <- client.Connect(ctx)
	}()

	broker := dialer.broker(t)

	var expected bytes.Buffer
	_, err := (&ConnectPacket{ClientID: "c1", CleanSession: true, KeepAlive: 60}).Encode(&expected)
	require.NoError(t, err)

	// Two byte-identical CONNECTs arrive before any CONNACK.
	first := make([]byte, expected.Len())
	require.NoError(t, broker.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, err = io.ReadFull(broker, first)
	require.NoError(t, err)

	second := make([]byte, expected.Len())
	_, err = io.ReadFull(broker, second)
	require.NoError(t, err)

	assert.Equal(t, expected.Bytes(), first)
	assert.Equal(t, first, second)

	writeBrokerPacket(t, broker, &ConnackPacket{ReturnCode: ConnectAccepted})
	require.NoError(t, <-errCh)

	require.NoError(t, client.Disconnect(true))
}

func TestPublishQoS0CompletesOnSend(t *testing.T) {
	client, broker, _ := connectedClient(t)
	defer client.Disconnect(true)

	errCh := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		errCh <- client.Publish(ctx, &Message{Topic: "a/b", Payload: []byte("x")})
	}()

	pub := readBrokerPacket(t, broker).(*PublishPacket)
	assert.Equal(t, "a/b", pub.Topic)
	assert.Equal(t, byte(0), pub.QoS)
	assert.Zero(t, pub.ID)

	require.NoError(t, <-errCh)
}

func TestPublishQoS1CompletesOnPuback(t *testing.T) {
	client, broker, _ := connectedClient(t)
	defer client.Disconnect(true)

	errCh := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		errCh <- client.Publish(ctx, &Message{Topic: "a/b", Payload: []byte("x"), QoS: 1})
	}()

	pub := readBrokerPacket(t, broker).(*PublishPacket)
	require.Equal(t, byte(1), pub.QoS)
	require.NotZero(t, pub.ID)

	writeBrokerPacket(t, broker, &PubackPacket{ID: pub.ID})
	require.NoError(t, <-errCh)
}

func TestPublishQoS2FourStepExchange(t *testing.T) {
	client, broker, _ := connectedClient(t)
	defer client.Disconnect(true)

	errCh := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		errCh <- client.Publish(ctx, &Message{Topic: "a/b", Payload: []byte("x"), QoS: 2})
	}()

	pub := readBrokerPacket(t, broker).(*PublishPacket)
	require.Equal(t, byte(2), pub.QoS)

	writeBrokerPacket(t, broker, &PubrecPacket{ID: pub.ID})

	pubrel := readBrokerPacket(t, broker).(*PubrelPacket)
	assert.Equal(t, pub.ID, pubrel.ID)

	writeBrokerPacket(t, broker, &PubcompPacket{ID: pub.ID})
	require.NoError(t, <-errCh)
}

func TestSubscribeReturnsGrantedQoS(t *testing.T) {
	client, broker, _ := connectedClient(t)
	defer client.Disconnect(true)

	type result struct {
		granted []byte
		err     error
	}
	resCh := make(chan result, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		granted, err := client.Subscribe(ctx,
			Subscription{TopicFilter: "a/#", QoS: 2},
			Subscription{TopicFilter: "b", QoS: 1},
		)
		resCh <- result{granted, err}
	}()

	sub := readBrokerPacket(t, broker).(*SubscribePacket)
	require.Len(t, sub.Subscriptions, 2)
	writeBrokerPacket(t, broker, &SubackPacket{ID: sub.ID, ReturnCodes: []byte{2, SubackFailure}})

	res := <-resCh
	require.NoError(t, res.err)
	assert.Equal(t, []byte{2, SubackFailure}, res.granted)
}

func TestUnsubscribeCompletesOnUnsuback(t *testing.T) {
	client, broker, _ := connectedClient(t)
	defer client.Disconnect(true)

	errCh := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		errCh <- client.Unsubscribe(ctx, "a/#")
	}()

	unsub := readBrokerPacket(t, broker).(*UnsubscribePacket)
	assert.Equal(t, []string{"a/#"}, unsub.TopicFilters)

	writeBrokerPacket(t, broker, &UnsubackPacket{ID: unsub.ID})
	require.NoError(t, <-errCh)
}

// idleFlow never emits and never accepts; it waits until stopped.
type idleFlow struct{}

func (idleFlow) Start() (FlowStep, error)      { return FlowStep{}, nil }
func (idleFlow) Accept(Packet) bool            { return false }
func (idleFlow) Next(Packet) (FlowStep, error) { return FlowStep{}, nil }

func TestStopFlow(t *testing.T) {
	client, _, _ := connectedClient(t)
	defer client.Disconnect(true)

	handle, err := client.StartFlow(func(uint16) Flow { return idleFlow{} })
	require.NoError(t, err)

	assert.True(t, client.StopFlow(handle.ID()))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err = handle.Wait(ctx)
	assert.ErrorIs(t, err, ErrFlowStopped)

	assert.False(t, client.StopFlow(handle.ID()))
}

func TestGracefulDisconnectEmitsDisconnectPacket(t *testing.T) {
	client, broker, _ := connectedClient(t)

	errCh := make(chan error, 1)
	go func() { errCh <- client.Disconnect(false) }()

	pkt := readBrokerPacket(t, broker)
	assert.IsType(t, &DisconnectPacket{}, pkt)

	require.NoError(t, <-errCh)
	assert.True(t, client.Disconnected())
	assert.False(t, client.Ready())
}

func TestForcedDisconnectAbortsFlows(t *testing.T) {
	client, broker, _ := connectedClient(t)

	disconnects := make(chan any, 8)
	errorEvents := make(chan any, 8)
	client.On(EventDisconnect, func(p any) { disconnects <- p })
	client.On(EventError, func(p any) { errorEvents <- p })

	// A publish flow left waiting for its PUBACK.
	pubErr := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		pubErr <- client.Publish(ctx, &Message{Topic: "t", Payload: []byte("x"), QoS: 1})
	}()
	readBrokerPacket(t, broker)

	require.NoError(t, client.Disconnect(true))

	assert.ErrorIs(t, <-pubErr, ErrSessionClosed)
	assert.True(t, client.Disconnected())

	// Only the terminal disconnect is emitted; no error event for a
	// user-initiated teardown.
	reason := <-disconnects
	assert.ErrorIs(t, reason.(error), ErrForcedDisconnect)
	select {
	case extra := <-errorEvents:
		t.Fatalf("unexpected error event: %v", extra)
	case extra := <-disconnects:
		t.Fatalf("unexpected second disconnect event: %v", extra)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestOperationsRequireReadySession(t *testing.T) {
	client := New(WithServer("tcp://test"), WithDialer(newTestDialer()))

	ctx := context.Background()
	assert.ErrorIs(t, client.Publish(ctx, &Message{Topic: "t"}), ErrNotConnected)
	_, err := client.Subscribe(ctx, Subscription{TopicFilter: "t"})
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.ErrorIs(t, client.Unsubscribe(ctx, "t"), ErrNotConnected)
	_, err = client.StartFlow(func(uint16) Flow { return idleFlow{} })
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestConnectTwice(t *testing.T) {
	client, _, _ := connectedClient(t)
	defer client.Disconnect(true)

	err := client.Connect(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyConnected)
}

func TestOperationsAfterTerminalDisconnect(t *testing.T) {
	client, _, _ := connectedClient(t)
	require.NoError(t, client.Disconnect(true))

	ctx := context.Background()
	assert.ErrorIs(t, client.Publish(ctx, &Message{Topic: "t"}), ErrClientClosed)
	assert.ErrorIs(t, client.Connect(ctx), ErrClientClosed)
}
