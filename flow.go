package mqtt311

import (
	"context"
)

// FlowStep is the outcome of advancing a flow: an optional packet to put
// on the wire, and optionally the flow's terminal value.
type FlowStep struct {
	// Send is a packet to write, or nil.
	Send Packet

	// Done marks the flow complete; Value is its terminal value.
	Done bool

	// Value is the flow's result, meaningful only when Done is set.
	Value any
}

// Flow is a multi-step protocol exchange sharing the wire with other
// flows. The multiplexer treats flows as opaque: any handshake expressible
// as accept, respond, possibly loop is a flow.
//
// Start returns the initial packet to emit when the flow is registered
// (nil if the flow waits for an external event first) and may complete the
// flow immediately, as a QoS 0 publish does. Accept decides whether an
// inbound packet belongs to this flow, typically by type and packet
// identifier. Next is called with each accepted packet and produces the
// next outbound packet and/or the flow's terminal value.
type Flow interface {
	Start() (FlowStep, error)
	Accept(pkt Packet) bool
	Next(pkt Packet) (FlowStep, error)
}

// FlowFactory builds a flow around the packet identifier the multiplexer
// allocated for it. Flows that never put the identifier on the wire, such
// as the ping flow, simply ignore it; the identifier is still the flow's
// claim ticket and is released when the flow ends.
type FlowFactory func(packetID uint16) Flow

// FlowHandle is the caller's reference to a registered flow.
type FlowHandle struct {
	id       uint64
	packetID uint16

	done  chan struct{}
	value any
	err   error
}

// ID returns the process-unique flow identifier.
func (h *FlowHandle) ID() uint64 {
	return h.id
}

// Done returns a channel closed when the flow completes or fails.
func (h *FlowHandle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the flow completes, fails, or ctx is done, and
// returns the flow's terminal value.
func (h *FlowHandle) Wait(ctx context.Context) (any, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-h.done:
		return h.value, h.err
	}
}

// complete resolves the handle. It must be called at most once.
func (h *FlowHandle) complete(value any, err error) {
	h.value = value
	h.err = err
	close(h.done)
}
