package mqtt311

import (
	"sync"
	"sync/atomic"
)

// flowCounter yields process-unique flow identifiers, distinct from packet
// identifiers.
var flowCounter atomic.Uint64

// flowEntry binds a registered flow to its handle and claimed packet
// identifier.
type flowEntry struct {
	handle *FlowHandle
	flow   Flow
}

// flowManager multiplexes concurrent flows over one wire. It owns packet
// identifier allocation and routes every inbound packet to at most one
// flow. Flows are stored in insertion order and queried in that order, so
// when two flows could accept the same packet the earlier one wins; this
// is deterministic and testable.
type flowManager struct {
	mu      sync.Mutex
	ids     *PacketIDAllocator
	entries []*flowEntry
	write   func(Packet) error
	closed  bool
}

func newFlowManager(write func(Packet) error) *flowManager {
	return &flowManager{
		ids:   NewPacketIDAllocator(),
		write: write,
	}
}

// Start allocates a packet identifier, builds the flow and registers it.
// If the flow's Start step carries a packet it is written before Start
// returns, keeping wire order identical to registration order.
func (m *flowManager) Start(factory FlowFactory) (*FlowHandle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrSessionClosed
	}

	packetID, err := m.ids.Allocate()
	if err != nil {
		return nil, err
	}

	handle := &FlowHandle{
		id:       flowCounter.Add(1),
		packetID: packetID,
		done:     make(chan struct{}),
	}

	flow := factory(packetID)
	entry := &flowEntry{handle: handle, flow: flow}

	step, err := flow.Start()
	if err != nil {
		_ = m.ids.Release(packetID)
		handle.complete(nil, err)
		return handle, err
	}

	if !step.Done {
		m.entries = append(m.entries, entry)
	}

	if step.Send != nil {
		if err := m.write(step.Send); err != nil {
			m.removeLocked(handle.id)
			_ = m.ids.Release(packetID)
			handle.complete(nil, err)
			return handle, err
		}
	}

	if step.Done {
		_ = m.ids.Release(packetID)
		handle.complete(step.Value, nil)
	}

	return handle, nil
}

// Route offers an inbound packet to the active flows in insertion order.
// The first flow to accept it consumes it; no other flow sees the packet.
// Returns true if a flow accepted the packet.
func (m *flowManager) Route(pkt Packet) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, entry := range m.entries {
		if !entry.flow.Accept(pkt) {
			continue
		}

		step, err := entry.flow.Next(pkt)
		if err != nil {
			m.removeLocked(entry.handle.id)
			_ = m.ids.Release(entry.handle.packetID)
			entry.handle.complete(nil, err)
			return true, nil
		}

		if step.Send != nil {
			if werr := m.write(step.Send); werr != nil {
				m.removeLocked(entry.handle.id)
				_ = m.ids.Release(entry.handle.packetID)
				entry.handle.complete(nil, werr)
				return true, werr
			}
		}

		if step.Done {
			m.removeLocked(entry.handle.id)
			_ = m.ids.Release(entry.handle.packetID)
			entry.handle.complete(step.Value, nil)
		}

		return true, nil
	}

	return false, nil
}

// Stop removes one flow and fails it with ErrFlowStopped. Returns whether
// the flow was found.
func (m *flowManager) Stop(flowID uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, entry := range m.entries {
		if entry.handle.id != flowID {
			continue
		}
		m.removeLocked(flowID)
		_ = m.ids.Release(entry.handle.packetID)
		entry.handle.complete(nil, ErrFlowStopped)
		return true
	}

	return false
}

// Abort fails every active flow with err and releases all identifiers.
// The manager refuses new flows afterwards.
func (m *flowManager) Abort(err error) {
	m.mu.Lock()
	entries := m.entries
	m.entries = nil
	m.closed = true
	m.ids.Reset()
	m.mu.Unlock()

	for _, entry := range entries {
		entry.handle.complete(nil, err)
	}
}

// Active returns the number of registered flows.
func (m *flowManager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// removeLocked deletes the entry with the given flow id, preserving the
// insertion order of the rest. Callers hold m.mu.
func (m *flowManager) removeLocked(flowID uint64) {
	for i, entry := range m.entries {
		if entry.handle.id == flowID {
			m.entries = append(m.entries[:i], m.entries[i+1:]...)
			return
		}
	}
}
