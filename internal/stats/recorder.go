// Package stats observes a running service instance: operation outcome
// aggregation, throughput sampling and report generation.
package stats

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"sle-engine/internal/session"
	"sle-engine/pkg/types"
)

// RateSample is an immutable snapshot of the session traffic counters at a
// sampling instant.
type RateSample struct {
	PDUCount  uint64
	ByteCount uint64
	Instant   time.Time
}

// Rate is the throughput between two samples.
type Rate struct {
	PDUsPerSecond  float64
	BytesPerSecond float64
}

// CounterSource exposes the traffic counters of a service instance as a
// consistent pair. Implemented by session.ServiceInstance.
type CounterSource interface {
	Counters() (pdus, bytes uint64)
}

// Recorder samples the traffic counters of one service instance. Registered
// as a session listener it also tracks the last observed state and keeps the
// most recent sample for delta computation. Sampling never blocks on or
// mutates the observed instance.
type Recorder struct {
	source CounterSource

	mu        sync.Mutex
	lastState session.State
	last      RateSample
	hasLast   bool
}

// NewRecorder creates a recorder observing the given counter source.
func NewRecorder(source CounterSource) *Recorder {
	return &Recorder{source: source}
}

// Sample reads the current counters and wall-clock instant. The returned
// sample is consistent: PDU and byte counts were read atomically.
func (r *Recorder) Sample() RateSample {
	pdus, bytes := r.source.Counters()
	sample := RateSample{PDUCount: pdus, ByteCount: bytes, Instant: time.Now()}

	r.mu.Lock()
	r.last = sample
	r.hasLast = true
	r.mu.Unlock()

	return sample
}

// Last returns the most recent sample, if any.
func (r *Recorder) Last() (RateSample, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last, r.hasLast
}

// RateBetween computes the throughput between two samples. The zero Rate is
// returned when the interval is not positive.
func RateBetween(a, b RateSample) Rate {
	interval := b.Instant.Sub(a.Instant).Seconds()
	if interval <= 0 {
		return Rate{}
	}
	return Rate{
		PDUsPerSecond:  float64(b.PDUCount-a.PDUCount) / interval,
		BytesPerSecond: float64(b.ByteCount-a.ByteCount) / interval,
	}
}

// StateChanged implements session.Listener.
func (r *Recorder) StateChanged(from, to session.State) {
	r.mu.Lock()
	r.lastState = to
	r.mu.Unlock()

	log.WithFields(log.Fields{
		"from": from,
		"to":   to,
	}).Debug("Recorder observed state change")
}

// PDUReceived implements session.Listener.
func (r *Recorder) PDUReceived(pdu types.PDU) {
	log.WithFields(log.Fields{
		"pdu_type": pdu.Type,
		"bytes":    pdu.Size(),
	}).Trace("Recorder observed PDU")
}

// LastState returns the state most recently reported to the recorder.
func (r *Recorder) LastState() session.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastState
}
