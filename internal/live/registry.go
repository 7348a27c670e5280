package live

import (
	"encoding/json"
	"log"
	"sync"
)

const defaultQueueSize = 16

// Observer is an opaque handle for one connected live view. Events are
// queued on a bounded channel; the owning connection drains it. Sends never
// block the fanout path: a full or closed queue drops the event.
type Observer struct {
	mu     sync.Mutex
	queue  chan []byte
	closed bool
}

// NewObserver allocates an observer with a bounded queue.
func NewObserver() *Observer {
	return &Observer{queue: make(chan []byte, defaultQueueSize)}
}

// Send queues a payload without blocking. It reports whether the payload was
// accepted; closed or saturated observers are counted as non-delivered.
func (o *Observer) Send(payload []byte) bool {
	if o == nil {
		return false
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return false
	}
	select {
	case o.queue <- payload:
		return true
	default:
		return false
	}
}

// Messages exposes the drain side of the queue. The channel is closed when
// the observer closes.
func (o *Observer) Messages() <-chan []byte {
	return o.queue
}

// Close marks the observer closed and closes its queue. Idempotent.
func (o *Observer) Close() {
	if o == nil {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	o.closed = true
	close(o.queue)
}

// Registry maps device ids to the observers watching them. It is the one
// structure shared by the ingestion path and the connection handlers, so all
// access is mutex-protected. It is constructed once and injected, never
// held as package state.
type Registry struct {
	mu        sync.RWMutex
	observers map[string]map[*Observer]struct{}
	logger    *log.Logger
}

// NewRegistry constructs an empty registry.
func NewRegistry(logger *log.Logger) *Registry {
	if logger == nil {
		logger = log.Default()
	}
	return &Registry{
		observers: make(map[string]map[*Observer]struct{}),
		logger:    logger,
	}
}

// Subscribe registers an observer under one device id.
func (r *Registry) Subscribe(deviceID string, observer *Observer) {
	if r == nil || deviceID == "" || observer == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	set := r.observers[deviceID]
	if set == nil {
		set = make(map[*Observer]struct{})
		r.observers[deviceID] = set
	}
	set[observer] = struct{}{}
}

// Unsubscribe removes an observer. Removing an observer that is already gone
// is a no-op; empty device sets are pruned.
func (r *Registry) Unsubscribe(deviceID string, observer *Observer) {
	if r == nil || deviceID == "" || observer == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	set := r.observers[deviceID]
	if set == nil {
		return
	}
	delete(set, observer)
	if len(set) == 0 {
		delete(r.observers, deviceID)
	}
}

// Publish sends an event to every open observer of the device and returns
// how many accepted it. Devices without observers are a silent no-op.
// Delivery order per device follows Publish invocation order.
func (r *Registry) Publish(deviceID string, event Event) int {
	if r == nil || deviceID == "" {
		return 0
	}

	r.mu.RLock()
	set := r.observers[deviceID]
	targets := make([]*Observer, 0, len(set))
	for observer := range set {
		targets = append(targets, observer)
	}
	r.mu.RUnlock()

	if len(targets) == 0 {
		return 0
	}

	payload, err := json.Marshal(event)
	if err != nil {
		r.logger.Printf("live registry: encode event: %v", err)
		return 0
	}

	delivered := 0
	for _, observer := range targets {
		if observer.Send(payload) {
			delivered++
		}
	}
	return delivered
}

// ObserverCount reports how many observers are registered for a device.
func (r *Registry) ObserverCount(deviceID string) int {
	if r == nil {
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.observers[deviceID])
}
