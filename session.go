package mqtt311

import (
	"bytes"
	"context"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// sessionState names the session engine's states.
type sessionState int32

const (
	stateIdle sessionState = iota
	stateConnecting
	stateAwaitingConnack
	stateReady
	stateDisconnecting
	stateDisconnected
)

// String returns the string representation of the state.
func (s sessionState) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateConnecting:
		return "connecting"
	case stateAwaitingConnack:
		return "awaiting-connack"
	case stateReady:
		return "ready"
	case stateDisconnecting:
		return "disconnecting"
	case stateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// session drives one transport attachment from connect handshake to
// terminal disconnect. The transport is exclusively owned by the session;
// listeners and the event bus are owned by the client and survive the
// session.
type session struct {
	opts      *clientOptions
	events    *eventBus
	listeners *listenerRegistry
	logger    Logger
	metrics   Metrics

	flows *flowManager

	conn    Conn
	writeMu sync.Mutex

	state    atomic.Int32
	lastSend atomic.Int64 // unix nanos of the last successful write
	lastRecv atomic.Int64

	// pingOutstanding counts keep-alive ticks without a PINGRESP; two
	// outstanding pings at tick time is a transport failure.
	pingOutstanding atomic.Int32

	inbound chan Packet
	readErr chan error

	// inflightIn holds inbound QoS 2 messages between PUBREC and PUBREL
	// so each is delivered exactly once.
	inflightMu sync.Mutex
	inflightIn map[uint16]*Message

	cancel  context.CancelFunc
	done    chan struct{}
	endOnce sync.Once

	reasonMu sync.Mutex
	reason   error
}

func newSession(opts *clientOptions, events *eventBus, listeners *listenerRegistry) *session {
	s := &session{
		opts:       opts,
		events:     events,
		listeners:  listeners,
		logger:     opts.logger,
		metrics:    opts.metrics,
		inbound:    make(chan Packet, 64),
		readErr:    make(chan error, 1),
		inflightIn: make(map[uint16]*Message),
		done:       make(chan struct{}),
	}
	s.flows = newFlowManager(s.write)
	return s
}

// currentState returns the engine state.
func (s *session) currentState() sessionState {
	return sessionState(s.state.Load())
}

// Ready reports whether the session passed the CONNACK handshake and has
// not terminated.
func (s *session) Ready() bool {
	return s.currentState() == stateReady
}

// Done returns a channel closed when the session reaches its terminal
// state.
func (s *session) Done() <-chan struct{} {
	return s.done
}

// Err returns the termination reason once the session is done.
func (s *session) Err() error {
	s.reasonMu.Lock()
	defer s.reasonMu.Unlock()
	return s.reason
}

// start dials the transport and performs the CONNECT/CONNACK handshake.
// On success the dispatch and keep-alive loops are running when start
// returns; on failure the session is terminal and the error is returned.
func (s *session) start(ctx context.Context, connect *ConnectPacket) error {
	s.state.Store(int32(stateConnecting))

	dialCtx := ctx
	if s.opts.connectTimeout > 0 {
		var cancelDial context.CancelFunc
		dialCtx, cancelDial = context.WithTimeout(ctx, s.opts.connectTimeout)
		defer cancelDial()
	}

	conn, err := s.dial(dialCtx)
	if err != nil {
		err = &TransportError{Err: err}
		s.terminate(err)
		s.finish()
		return err
	}
	s.conn = conn

	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	go s.readLoop(runCtx)

	connack, err := s.handshake(dialCtx, connect)
	if err != nil {
		s.terminate(err)
		s.finish()
		return err
	}

	s.state.Store(int32(stateReady))
	s.metrics.Gauge(MetricConnected, nil).Set(1)
	s.events.emit(EventConnect, connack)

	s.logger.Info("session ready", LogFields{
		"client_id":       connect.ClientID,
		"session_present": connack.SessionPresent,
	})

	go s.run(runCtx)

	return nil
}

// dial produces a fresh transport via the configured dialer or by the
// server URI's scheme.
func (s *session) dial(ctx context.Context) (Conn, error) {
	if s.opts.dialer != nil {
		return s.opts.dialer.Dial(ctx, s.opts.server)
	}
	return dialServer(ctx, s.opts.server, s.opts.tlsConfig)
}

// handshake writes CONNECT and waits for CONNACK. With a connect delay
// configured, the same CONNECT bytes are re-sent each time the delay
// elapses without a CONNACK. Any packet other than CONNACK is fatal.
func (s *session) handshake(ctx context.Context, connect *ConnectPacket) (*ConnackPacket, error) {
	s.state.Store(int32(stateAwaitingConnack))

	// Encode once; retries put byte-identical CONNECTs on the wire.
	var buf bytes.Buffer
	if _, err := s.opts.packetWriter.WritePacket(&buf, connect); err != nil {
		return nil, err
	}
	connectBytes := buf.Bytes()

	if err := s.writeBytes(connectBytes, PacketCONNECT); err != nil {
		return nil, err
	}

	var delayCh <-chan time.Time
	var delayTimer *time.Timer
	if s.opts.connectDelay > 0 {
		delayTimer = time.NewTimer(s.opts.connectDelay)
		defer delayTimer.Stop()
		delayCh = delayTimer.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-delayCh:
			if err := s.writeBytes(connectBytes, PacketCONNECT); err != nil {
				return nil, err
			}
			delayTimer.Reset(s.opts.connectDelay)
		case pkt, ok := <-s.inbound:
			if !ok {
				return nil, <-s.readErr
			}
			s.events.emit(PacketEvent(pkt.Type()), pkt)
			connack, isConnack := pkt.(*ConnackPacket)
			if !isConnack {
				return nil, &UnexpectedPacketError{Type: pkt.Type()}
			}
			if err := connack.Err(); err != nil {
				return nil, err
			}
			return connack, nil
		}
	}
}

// readLoop pumps the transport into the inbound channel until the
// transport fails or decoding breaks.
func (s *session) readLoop(ctx context.Context) {
	fr := NewFrameReader(s.opts.maxPacketSize)
	received := s.metrics.Counter(MetricBytesReceived, nil)

	err := fr.Pump(&countingReader{r: s.conn, counter: received}, func(pkt Packet) error {
		s.lastRecv.Store(time.Now().UnixNano())
		s.metrics.Counter(MetricPacketsReceived, MetricLabels{"type": pkt.Type().String()}).Inc()
		select {
		case s.inbound <- pkt:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	s.readErr <- err
	close(s.inbound)
}

// run supervises the dispatch and keep-alive loops and performs teardown
// when either fails.
func (s *session) run(ctx context.Context) {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.dispatchLoop(ctx) })
	g.Go(func() error { return s.keepAliveLoop(ctx) })

	err := g.Wait()
	s.terminate(err)
	s.finish()
}

// dispatchLoop delivers inbound packets to flows, listeners and events in
// arrival order.
func (s *session) dispatchLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case pkt, ok := <-s.inbound:
			if !ok {
				return <-s.readErr
			}
			if err := s.dispatch(pkt); err != nil {
				return err
			}
		}
	}
}

// dispatch routes one inbound packet: the per-packet event fires first,
// then the flow multiplexer is offered the packet; whatever no flow
// accepts is handled by the engine itself.
func (s *session) dispatch(pkt Packet) error {
	s.events.emit(PacketEvent(pkt.Type()), pkt)

	matched, err := s.flows.Route(pkt)
	if err != nil {
		return err
	}
	if matched {
		return nil
	}

	switch p := pkt.(type) {
	case *PublishPacket:
		return s.handlePublish(p)
	case *PubrelPacket:
		return s.handlePubrel(p)
	case *PingrespPacket:
		// A PINGRESP with no outstanding ping flow is harmless.
		return nil
	case *PubackPacket, *PubrecPacket, *PubcompPacket, *SubackPacket, *UnsubackPacket:
		s.logger.Warn("acknowledgment without matching flow", LogFields{
			"type": pkt.Type().String(),
		})
		return nil
	default:
		return &UnexpectedPacketError{Type: pkt.Type()}
	}
}

// handlePublish processes an inbound application message. QoS
// acknowledgments are written before listeners run, so a slow or failing
// listener never blocks the protocol.
func (s *session) handlePublish(p *PublishPacket) error {
	msg := p.ToMessage()

	switch p.QoS {
	case 0:
		s.deliver(msg)
	case 1:
		if err := s.write(&PubackPacket{ID: p.ID}); err != nil {
			return err
		}
		s.deliver(msg)
	case 2:
		s.inflightMu.Lock()
		if _, dup := s.inflightIn[p.ID]; !dup {
			s.inflightIn[p.ID] = msg
		}
		s.inflightMu.Unlock()
		if err := s.write(&PubrecPacket{ID: p.ID}); err != nil {
			return err
		}
	}

	return nil
}

// handlePubrel completes the receiver side of a QoS 2 exchange. The
// message is delivered exactly once, on the first PUBREL; PUBCOMP is
// answered in every case.
func (s *session) handlePubrel(p *PubrelPacket) error {
	s.inflightMu.Lock()
	msg, ok := s.inflightIn[p.ID]
	delete(s.inflightIn, p.ID)
	s.inflightMu.Unlock()

	if err := s.write(&PubcompPacket{ID: p.ID}); err != nil {
		return err
	}

	if ok {
		s.deliver(msg)
	}

	return nil
}

// deliver hands a message to the event bus and every matching listener.
func (s *session) deliver(msg *Message) {
	s.metrics.Counter(MetricMessagesDelivered, nil).Inc()
	s.events.emit(EventMessage, msg)
	s.listeners.dispatch(msg)
}

// keepAliveLoop starts one ping flow per keep-alive interval elapsed
// without an outbound packet. Two consecutive missed PINGRESPs make the
// transport failed.
func (s *session) keepAliveLoop(ctx context.Context) error {
	if s.opts.keepAlive == 0 {
		<-ctx.Done()
		return nil
	}

	interval := time.Duration(s.opts.keepAlive) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if time.Since(time.Unix(0, s.lastSend.Load())) < interval {
				continue
			}

			if s.pingOutstanding.Load() >= 2 {
				return ErrKeepAliveTimeout
			}

			handle, err := s.startFlow(newPingFlow())
			if err != nil {
				return err
			}
			s.pingOutstanding.Add(1)

			go func() {
				<-handle.Done()
				if handle.err == nil {
					s.pingOutstanding.Store(0)
				}
			}()
		}
	}
}

// startFlow registers a flow with the multiplexer and tracks it in the
// metrics.
func (s *session) startFlow(factory FlowFactory) (*FlowHandle, error) {
	handle, err := s.flows.Start(factory)
	s.metrics.Counter(MetricFlowsStarted, nil).Inc()
	if err != nil {
		s.metrics.Counter(MetricFlowsFailed, nil).Inc()
		return nil, err
	}

	active := s.metrics.Gauge(MetricActiveFlows, nil)
	active.Set(float64(s.flows.Active()))

	go func() {
		<-handle.Done()
		if handle.err != nil {
			s.metrics.Counter(MetricFlowsFailed, nil).Inc()
		}
		active.Set(float64(s.flows.Active()))
	}()

	return handle, nil
}

// stopFlow aborts one flow with ErrFlowStopped.
func (s *session) stopFlow(flowID uint64) bool {
	return s.flows.Stop(flowID)
}

// write serializes one packet onto the transport. The write mutex keeps
// packets on the wire in the order the engine produced them.
func (s *session) write(pkt Packet) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.conn == nil {
		return ErrNotConnected
	}

	n, err := s.opts.packetWriter.WritePacket(s.conn, pkt)
	if err != nil {
		return err
	}

	s.lastSend.Store(time.Now().UnixNano())
	s.metrics.Counter(MetricPacketsSent, MetricLabels{"type": pkt.Type().String()}).Inc()
	s.metrics.Counter(MetricBytesSent, nil).Add(float64(n))

	return nil
}

// writeBytes puts pre-encoded bytes on the wire, used for the
// byte-identical CONNECT retry.
func (s *session) writeBytes(b []byte, t PacketType) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.conn == nil {
		return ErrNotConnected
	}

	n, err := s.conn.Write(b)
	if err != nil {
		return &TransportError{Err: err}
	}

	s.lastSend.Store(time.Now().UnixNano())
	s.metrics.Counter(MetricPacketsSent, MetricLabels{"type": t.String()}).Inc()
	s.metrics.Counter(MetricBytesSent, nil).Add(float64(n))

	return nil
}

// disconnect drives the session to its terminal state. A graceful
// disconnect emits DISCONNECT and lets the write drain before the
// transport closes; a forced one closes the transport immediately.
func (s *session) disconnect(force bool) {
	if force {
		s.terminate(ErrForcedDisconnect)
	} else {
		s.state.Store(int32(stateDisconnecting))
		if err := s.write(&DisconnectPacket{}); err != nil {
			s.logger.Debug("disconnect write failed", LogFields{"error": err})
		}
		s.terminate(ErrSoftDisconnect)
	}
	<-s.done
}

// terminate records the first termination reason and tears the transport
// down. The loops observe the closed transport and exit.
func (s *session) terminate(reason error) {
	s.reasonMu.Lock()
	if s.reason == nil && reason != nil {
		s.reason = reason
	}
	s.reasonMu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}
	if s.conn != nil {
		_ = s.conn.Close()
	}
}

// finish moves the session to its terminal state exactly once: abort
// every active flow, then emit error (for failures) and disconnect.
func (s *session) finish() {
	s.endOnce.Do(func() {
		s.state.Store(int32(stateDisconnected))
		s.metrics.Gauge(MetricConnected, nil).Set(0)

		s.flows.Abort(ErrSessionClosed)

		reason := s.Err()
		if reason != nil && !isUserDisconnect(reason) {
			s.events.emit(EventError, reason)
		}
		s.events.emit(EventDisconnect, reason)

		s.logger.Info("session ended", LogFields{"reason": reason})
		close(s.done)
	})
}

// countingReader counts transport bytes as they are read.
type countingReader struct {
	r       io.Reader
	counter Counter
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if n > 0 {
		c.counter.Add(float64(n))
	}
	return n, err
}
