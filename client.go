package mqtt311

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Client is an MQTT 3.1.1 client. Create one with New, connect with
// Connect, and register listeners with Listen. The client owns the
// listener registry and the event bus, so both survive reconnects; every
// transport attachment gets a fresh session with fresh flows.
type Client struct {
	options *clientOptions

	events    *eventBus
	listeners *listenerRegistry
	strategy  ReconnectStrategy

	mu         sync.Mutex
	session    *session
	connectPkt *ConnectPacket
	started    bool

	// reconnects counts attempts over the client's lifetime, for the
	// maxReconnectAttempts bound.
	reconnects int

	everReady atomic.Bool
	closed    atomic.Bool
	done      chan struct{}
	doneOnce  sync.Once
}

// New creates a client from the given options.
func New(opts ...Option) *Client {
	options := applyOptions(opts...)

	if options.clientID == "" {
		options.clientID = generateClientID()
	}

	strategy := options.reconnectStrategy
	if strategy == nil {
		strategy = NewFixedIntervalStrategy(DefaultReconnectAttempts, DefaultReconnectInterval)
	}

	return &Client{
		options:   options,
		events:    newEventBus(),
		listeners: newListenerRegistry(options.logger),
		strategy:  strategy,
		done:      make(chan struct{}),
	}
}

// generateClientID generates a random client ID.
func generateClientID() string {
	return "mqtt311-" + uuid.NewString()[:13]
}

// ClientID returns the client identifier.
func (c *Client) ClientID() string {
	return c.options.clientID
}

// Ready reports whether the current session passed its CONNACK handshake
// and has not terminated. Ready and Disconnected are never true at the
// same time.
func (c *Client) Ready() bool {
	if c.closed.Load() {
		return false
	}
	sess := c.currentSession()
	return sess != nil && sess.Ready()
}

// Disconnected reports whether the client reached terminal disconnect.
func (c *Client) Disconnected() bool {
	return c.closed.Load()
}

// Done returns a channel closed when the client reaches terminal
// disconnect.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// On registers an event handler. It returns a subscription id for Off.
func (c *Client) On(event Event, handler EventHandler) uint64 {
	return c.events.on(event, handler)
}

// Off removes an event handler registered with On.
func (c *Client) Off(event Event, id uint64) bool {
	return c.events.off(event, id)
}

// Listen registers a callback for inbound messages matching the topic
// filter. Listeners survive reconnects.
func (c *Client) Listen(filter string, fn ListenerFunc) (*Listener, error) {
	return c.listeners.add(filter, fn)
}

// RemoveListener removes a listener. Returns whether it was registered.
func (c *Client) RemoveListener(l *Listener) bool {
	return c.listeners.remove(l)
}

// Connect dials the broker and completes on CONNACK. It fails with a
// *ConnectError for a refused CONNACK, an *UnexpectedPacketError when the
// broker speaks out of turn, or a *TransportError when the transport
// breaks first. With reconnectUnready enabled, pre-CONNACK failures are
// retried through the reconnect strategy before Connect gives up.
func (c *Client) Connect(ctx context.Context) error {
	if c.closed.Load() {
		return ErrClientClosed
	}

	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return ErrAlreadyConnected
	}
	c.started = true
	c.connectPkt = c.buildConnectPacket()
	c.mu.Unlock()

	for {
		sess := c.newSession()
		err := sess.start(ctx, c.connectPkt)
		if err == nil {
			if c.closed.Load() {
				sess.disconnect(true)
				c.terminal()
				return ErrClientClosed
			}
			c.setSession(sess)
			c.everReady.Store(true)
			c.strategy.Reset()
			go c.supervise(sess)
			return nil
		}

		if !c.options.reconnectUnready || !c.options.autoReconnect {
			c.terminal()
			return err
		}
		if !c.reserveAttempt(err) {
			c.terminal()
			return err
		}
		if werr := c.strategy.Wait(ctx); werr != nil {
			c.terminal()
			return err
		}
	}
}

// buildConnectPacket freezes the connect request. Reconnects re-use the
// same request for every attempt.
func (c *Client) buildConnectPacket() *ConnectPacket {
	pkt := &ConnectPacket{
		ClientID:     c.options.clientID,
		CleanSession: c.options.cleanSession,
		KeepAlive:    c.options.keepAlive,
		Username:     c.options.username,
		Password:     c.options.password,
	}
	if c.options.willTopic != "" {
		pkt.WillFlag = true
		pkt.WillTopic = c.options.willTopic
		pkt.WillPayload = c.options.willPayload
		pkt.WillQoS = c.options.willQoS
		pkt.WillRetain = c.options.willRetain
	}
	return pkt
}

func (c *Client) newSession() *session {
	return newSession(c.options, c.events, c.listeners)
}

func (c *Client) currentSession() *session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

func (c *Client) setSession(sess *session) {
	c.mu.Lock()
	c.session = sess
	c.mu.Unlock()
}

// reserveAttempt checks the lifetime bound and the strategy, and counts
// the attempt if both allow it.
func (c *Client) reserveAttempt(reason error) bool {
	c.mu.Lock()
	if c.options.maxReconnectAttempts > 0 && c.reconnects >= c.options.maxReconnectAttempts {
		c.mu.Unlock()
		return false
	}
	c.mu.Unlock()

	if !c.strategy.Should(reason) {
		return false
	}

	c.mu.Lock()
	c.reconnects++
	c.mu.Unlock()

	c.options.metrics.Counter(MetricReconnectAttempts, nil).Inc()
	return true
}

// supervise watches a session until it terminates, then either re-drives
// the engine through the reconnect strategy or settles into terminal
// disconnect. Listeners, event handlers and the connect request are
// preserved across reconnects; in-flight flows are not.
func (c *Client) supervise(sess *session) {
	<-sess.Done()
	reason := sess.Err()

	for {
		if c.closed.Load() {
			c.terminal()
			return
		}
		if isUserDisconnect(reason) || !c.options.autoReconnect {
			c.terminal()
			return
		}
		if !c.reserveAttempt(reason) {
			c.terminal()
			return
		}

		c.options.logger.Info("reconnecting", LogFields{"reason": reason})

		if err := c.strategy.Wait(context.Background()); err != nil || c.closed.Load() {
			c.terminal()
			return
		}

		next := c.newSession()
		if err := next.start(context.Background(), c.connectPkt); err != nil {
			reason = err
			continue
		}

		c.setSession(next)
		c.strategy.Reset()

		if c.closed.Load() {
			next.disconnect(true)
			c.terminal()
			return
		}

		<-next.Done()
		reason = next.Err()
	}
}

// terminal marks the client disconnected for good.
func (c *Client) terminal() {
	c.closed.Store(true)
	c.doneOnce.Do(func() { close(c.done) })
}

// Disconnect drives the client to terminal disconnect. With force, every
// pending flow aborts and the transport closes immediately; otherwise
// DISCONNECT is emitted and outstanding writes drain first. Disconnect
// returns once the terminal state is reached.
func (c *Client) Disconnect(force bool) error {
	if c.closed.Swap(true) {
		return nil
	}

	sess := c.currentSession()
	if sess == nil {
		c.terminal()
		return nil
	}

	sess.disconnect(force)
	<-c.done

	return nil
}

// Publish sends an application message. QoS 0 completes on send, QoS 1 on
// PUBACK, QoS 2 on PUBCOMP.
func (c *Client) Publish(ctx context.Context, msg *Message) error {
	if msg.QoS > 2 {
		return ErrInvalidQoS
	}
	if err := ValidateTopicName(msg.Topic); err != nil {
		return err
	}

	sess, err := c.readySession()
	if err != nil {
		return err
	}

	handle, err := sess.startFlow(newPublishFlow(msg))
	if err != nil {
		return err
	}

	_, err = handle.Wait(ctx)
	return err
}

// Subscribe requests the given subscriptions and returns the granted QoS
// list from SUBACK, one byte per filter in request order; a granted value
// of SubackFailure reports a refused filter.
func (c *Client) Subscribe(ctx context.Context, subscriptions ...Subscription) ([]byte, error) {
	if len(subscriptions) == 0 {
		return nil, ErrNoSubscriptions
	}
	for _, sub := range subscriptions {
		if err := ValidateTopicFilter(sub.TopicFilter); err != nil {
			return nil, err
		}
		if sub.QoS > 2 {
			return nil, ErrInvalidRequestQoS
		}
	}

	sess, err := c.readySession()
	if err != nil {
		return nil, err
	}

	handle, err := sess.startFlow(newSubscribeFlow(subscriptions))
	if err != nil {
		return nil, err
	}

	value, err := handle.Wait(ctx)
	if err != nil {
		return nil, err
	}

	granted, _ := value.([]byte)
	return granted, nil
}

// Unsubscribe removes the given topic filters and completes on UNSUBACK.
func (c *Client) Unsubscribe(ctx context.Context, filters ...string) error {
	if len(filters) == 0 {
		return ErrNoTopicFilters
	}
	for _, filter := range filters {
		if err := ValidateTopicFilter(filter); err != nil {
			return err
		}
	}

	sess, err := c.readySession()
	if err != nil {
		return err
	}

	handle, err := sess.startFlow(newUnsubscribeFlow(filters))
	if err != nil {
		return err
	}

	_, err = handle.Wait(ctx)
	return err
}

// Ping starts a PINGREQ flow and completes on PINGRESP.
func (c *Client) Ping(ctx context.Context) error {
	sess, err := c.readySession()
	if err != nil {
		return err
	}

	handle, err := sess.startFlow(newPingFlow())
	if err != nil {
		return err
	}

	_, err = handle.Wait(ctx)
	return err
}

// StartFlow registers a custom flow with the current session's
// multiplexer and returns its handle. The handle resolves with the flow's
// terminal value.
func (c *Client) StartFlow(factory FlowFactory) (*FlowHandle, error) {
	sess, err := c.readySession()
	if err != nil {
		return nil, err
	}
	return sess.startFlow(factory)
}

// StopFlow aborts one flow with ErrFlowStopped. Returns whether the flow
// was found.
func (c *Client) StopFlow(flowID uint64) bool {
	sess := c.currentSession()
	if sess == nil {
		return false
	}
	return sess.stopFlow(flowID)
}

// readySession returns the current session when it is ready.
func (c *Client) readySession() (*session, error) {
	if c.closed.Load() {
		return nil, ErrClientClosed
	}
	sess := c.currentSession()
	if sess == nil || !sess.Ready() {
		return nil, ErrNotConnected
	}
	return sess, nil
}
