package stats

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sle-engine/internal/session"
	"sle-engine/pkg/types"
)

// pairSource hands out counter pairs that always satisfy bytes = pdus * 100,
// mimicking the consistent-pair guarantee of a service instance.
type pairSource struct {
	mu   sync.Mutex
	pdus uint64
}

func (s *pairSource) Counters() (uint64, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pdus, s.pdus * 100
}

func (s *pairSource) add(n uint64) {
	s.mu.Lock()
	s.pdus += n
	s.mu.Unlock()
}

func TestRecorder_SampleAndLast(t *testing.T) {
	source := &pairSource{}
	r := NewRecorder(source)

	_, ok := r.Last()
	assert.False(t, ok, "no sample taken yet")

	source.add(7)
	sample := r.Sample()
	assert.Equal(t, uint64(7), sample.PDUCount)
	assert.Equal(t, uint64(700), sample.ByteCount)

	last, ok := r.Last()
	require.True(t, ok)
	assert.Equal(t, sample, last)
}

func TestRecorder_SamplesStayConsistentUnderConcurrency(t *testing.T) {
	source := &pairSource{}
	r := NewRecorder(source)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 1000; i++ {
			source.add(1)
		}
	}()

	for sampling := true; sampling; {
		select {
		case <-done:
			sampling = false
		default:
		}
		sample := r.Sample()
		require.Equal(t, sample.PDUCount*100, sample.ByteCount,
			"sample must be a consistent counter pair")
	}
}

func TestRateBetween(t *testing.T) {
	base := time.Now()
	a := RateSample{PDUCount: 10, ByteCount: 1000, Instant: base}
	b := RateSample{PDUCount: 30, ByteCount: 3000, Instant: base.Add(2 * time.Second)}

	rate := RateBetween(a, b)
	assert.InDelta(t, 10.0, rate.PDUsPerSecond, 0.001)
	assert.InDelta(t, 1000.0, rate.BytesPerSecond, 0.001)
}

func TestRateBetween_NonPositiveInterval(t *testing.T) {
	now := time.Now()
	a := RateSample{PDUCount: 10, Instant: now}
	b := RateSample{PDUCount: 30, Instant: now}

	assert.Equal(t, Rate{}, RateBetween(a, b))
	assert.Equal(t, Rate{}, RateBetween(b, a))
}

func TestRecorder_TracksLastState(t *testing.T) {
	r := NewRecorder(&pairSource{})
	assert.Equal(t, session.Unbound, r.LastState())

	r.StateChanged(session.Unbound, session.BindPending)
	r.StateChanged(session.BindPending, session.Ready)
	assert.Equal(t, session.Ready, r.LastState())

	r.PDUReceived(types.PDU{Type: types.PDUTransferData, Data: []byte("x")})
	assert.Equal(t, session.Ready, r.LastState(), "PDU delivery does not change the tracked state")
}
