package mqtt311

import (
	"sync"
	"sync/atomic"
)

// ListenerFunc is a callback for inbound messages matching a listener's
// topic filter.
type ListenerFunc func(msg *Message)

// listenerCounter yields process-unique listener identifiers.
var listenerCounter atomic.Uint64

// Listener is a registered (filter, callback) pair. Listeners are owned by
// the client, not the session, so they keep working across reconnects.
type Listener struct {
	id     uint64
	filter string
	fn     ListenerFunc
}

// Filter returns the listener's topic filter.
func (l *Listener) Filter() string {
	return l.filter
}

// listenerRegistry maps topic filters to callbacks. Dispatch never blocks
// protocol acknowledgement: the engine acknowledges QoS > 0 publishes
// before or independent of callback invocation, and a panicking callback
// is recovered so the remaining listeners still run.
type listenerRegistry struct {
	mu      sync.RWMutex
	entries []*Listener
	logger  Logger
}

func newListenerRegistry(logger Logger) *listenerRegistry {
	return &listenerRegistry{logger: logger}
}

// add registers a callback for a topic filter.
func (r *listenerRegistry) add(filter string, fn ListenerFunc) (*Listener, error) {
	if err := ValidateTopicFilter(filter); err != nil {
		return nil, err
	}

	l := &Listener{
		id:     listenerCounter.Add(1),
		filter: filter,
		fn:     fn,
	}

	r.mu.Lock()
	r.entries = append(r.entries, l)
	r.mu.Unlock()

	return l, nil
}

// remove deletes a listener. Returns whether it was registered.
func (r *listenerRegistry) remove(l *Listener) bool {
	if l == nil {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for i, entry := range r.entries {
		if entry.id == l.id {
			r.entries = append(r.entries[:i], r.entries[i+1:]...)
			return true
		}
	}
	return false
}

// dispatch invokes every listener whose filter matches the message topic,
// in registration order.
func (r *listenerRegistry) dispatch(msg *Message) {
	r.mu.RLock()
	var matched []*Listener
	for _, entry := range r.entries {
		if TopicMatch(entry.filter, msg.Topic) {
			matched = append(matched, entry)
		}
	}
	r.mu.RUnlock()

	for _, entry := range matched {
		r.invoke(entry, msg)
	}
}

func (r *listenerRegistry) invoke(l *Listener, msg *Message) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("listener panic", LogFields{
				"filter": l.filter,
				"topic":  msg.Topic,
				"panic":  rec,
			})
		}
	}()
	l.fn(msg)
}

// len returns the number of registered listeners.
func (r *listenerRegistry) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
