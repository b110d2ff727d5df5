// Package transport provides an in-process PDU link connecting two session
// endpoints. It stands in for the reliable transport mapping layer during
// local runs and tests; wire framing of real TML connections stays outside
// the engine.
package transport

import (
	"context"
	"errors"
	"sync"

	log "github.com/sirupsen/logrus"

	"sle-engine/pkg/types"
)

// ErrClosed reports a send on a closed endpoint.
var ErrClosed = errors.New("transport endpoint closed")

const defaultBuffer = 1000

// Endpoint is one end of a bidirectional PDU link.
type Endpoint struct {
	out chan<- types.PDU
	in  <-chan types.PDU

	closeOnce sync.Once
	closed    chan struct{}
}

// Pipe creates two connected endpoints. PDUs sent on one are received on the
// other, in order, through buffered channels.
func Pipe() (*Endpoint, *Endpoint) {
	ab := make(chan types.PDU, defaultBuffer)
	ba := make(chan types.PDU, defaultBuffer)
	a := &Endpoint{out: ab, in: ba, closed: make(chan struct{})}
	b := &Endpoint{out: ba, in: ab, closed: make(chan struct{})}
	return a, b
}

// Send delivers a PDU to the remote endpoint, honoring the context deadline.
func (e *Endpoint) Send(ctx context.Context, pdu types.PDU) error {
	select {
	case <-e.closed:
		return ErrClosed
	default:
	}

	select {
	case e.out <- pdu:
		return nil
	case <-e.closed:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Receive returns the channel of inbound PDUs.
func (e *Endpoint) Receive() <-chan types.PDU {
	return e.in
}

// Close shuts the endpoint down. Subsequent sends fail with ErrClosed.
func (e *Endpoint) Close() {
	e.closeOnce.Do(func() { close(e.closed) })
}

// Handler consumes inbound PDUs, typically a session service instance.
type Handler interface {
	HandlePDU(pdu types.PDU)
}

// Pump forwards inbound PDUs from the endpoint to the handler until the
// context is cancelled or the endpoint closes.
func Pump(ctx context.Context, e *Endpoint, h Handler) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.closed:
			return
		case pdu, ok := <-e.in:
			if !ok {
				return
			}
			h.HandlePDU(pdu)
		}
	}
}

// StartPump runs Pump in a goroutine.
func StartPump(ctx context.Context, e *Endpoint, h Handler) {
	go func() {
		Pump(ctx, e, h)
		log.Debug("Transport pump stopped")
	}()
}
