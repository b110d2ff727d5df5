package session

import (
	log "github.com/sirupsen/logrus"

	"sle-engine/pkg/types"
)

// Listener receives asynchronous notifications from a service instance.
// Notifications are delivered in order per listener, outside the state lock;
// a panicking listener is logged and never affects the state machine.
type Listener interface {
	StateChanged(from, to State)
	PDUReceived(pdu types.PDU)
}

const listenerQueueSize = 64

type listenerEventKind int

const (
	eventStateChanged listenerEventKind = iota
	eventPDUReceived
)

type listenerEvent struct {
	kind     listenerEventKind
	from, to State
	pdu      types.PDU
}

type listenerEntry struct {
	listener Listener
	events   chan listenerEvent
	quit     chan struct{}
}

func (e *listenerEntry) run() {
	for {
		select {
		case ev := <-e.events:
			e.dispatch(ev)
		case <-e.quit:
			return
		}
	}
}

func (e *listenerEntry) dispatch(ev listenerEvent) {
	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", r).Error("Listener panicked during notification")
		}
	}()
	switch ev.kind {
	case eventStateChanged:
		e.listener.StateChanged(ev.from, ev.to)
	case eventPDUReceived:
		e.listener.PDUReceived(ev.pdu)
	}
}

// RegisterListener subscribes a listener and returns its handle for
// unsubscription. Delivery starts with the next event.
func (s *ServiceInstance) RegisterListener(l Listener) int {
	entry := &listenerEntry{
		listener: l,
		events:   make(chan listenerEvent, listenerQueueSize),
		quit:     make(chan struct{}),
	}
	go entry.run()

	s.lmu.Lock()
	defer s.lmu.Unlock()
	s.nextListenerID++
	handle := s.nextListenerID
	s.listeners[handle] = entry
	return handle
}

// UnregisterListener cancels the subscription with the given handle.
func (s *ServiceInstance) UnregisterListener(handle int) {
	s.lmu.Lock()
	entry, ok := s.listeners[handle]
	if ok {
		delete(s.listeners, handle)
	}
	s.lmu.Unlock()

	if ok {
		close(entry.quit)
	}
}

// publish enqueues an event for every registered listener. A listener whose
// queue is full loses the event rather than stalling the caller.
func (s *ServiceInstance) publish(ev listenerEvent) {
	s.lmu.Lock()
	entries := make([]*listenerEntry, 0, len(s.listeners))
	for _, entry := range s.listeners {
		entries = append(entries, entry)
	}
	s.lmu.Unlock()

	for _, entry := range entries {
		select {
		case entry.events <- ev:
		default:
			log.Warn("Listener queue full, dropping notification")
		}
	}
}
