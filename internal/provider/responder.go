// Package provider drives a provider-role service instance for local runs
// and end-to-end tests: it answers the user's operations through the session
// engine and emits telemetry transfer PDUs while the data phase is active.
package provider

import (
	"context"
	"encoding/binary"
	"time"

	log "github.com/sirupsen/logrus"

	"sle-engine/internal/session"
	"sle-engine/internal/transport"
)

// Responder runs the provider end of an in-process SLE link.
type Responder struct {
	instance *session.ServiceInstance
	endpoint *transport.Endpoint
	interval time.Duration
	size     int
	count    int
}

// New creates a responder emitting count transfer PDUs of the given size at
// the given interval while the session is active. A count of zero emits
// until the context is cancelled.
func New(instance *session.ServiceInstance, endpoint *transport.Endpoint, interval time.Duration, size, count int) *Responder {
	return &Responder{
		instance: instance,
		endpoint: endpoint,
		interval: interval,
		size:     size,
		count:    count,
	}
}

// Run pumps inbound PDUs into the provider instance and emits transfer data
// while the session is active. It returns when the context is cancelled or
// the configured transfer count has been emitted and the session unbound.
func (r *Responder) Run(ctx context.Context) {
	transport.StartPump(ctx, r.endpoint, r.instance)

	sent := 0
	for r.count == 0 || sent < r.count {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if !r.instance.WaitForState(session.Active, 200*time.Millisecond) {
			continue
		}

		if err := r.instance.TransferData(ctx, r.frame(sent)); err != nil {
			// The user may have stopped between the wait and the send.
			log.WithError(err).Debug("Transfer emission skipped")
			continue
		}
		sent++

		select {
		case <-ctx.Done():
			return
		case <-time.After(r.interval):
		}
	}

	log.WithField("transfers", sent).Info("Provider finished emitting transfer data")

	// Remain responsive for stop/unbind until the user releases the session.
	r.instance.WaitForState(session.Unbound, time.Minute)
}

// frame builds a deterministic telemetry payload carrying its sequence
// number in the first four bytes.
func (r *Responder) frame(seq int) []byte {
	data := make([]byte, r.size)
	if r.size >= 4 {
		binary.BigEndian.PutUint32(data[0:4], uint32(seq))
	}
	for i := 4; i < len(data); i++ {
		data[i] = byte(i)
	}
	return data
}
