package stats

import (
	"sort"
	"sync"
	"time"
)

// OperationStats holds per-operation-type outcome counts.
type OperationStats struct {
	Sent     uint64
	Received uint64
	Success  uint64
	Failed   uint64
	Timeout  uint64
}

// Collector aggregates operation outcomes and confirmation round-trip times
// for one engine run. It satisfies the session stats sink.
type Collector struct {
	StartTime time.Time
	EndTime   time.Time

	Operations map[string]*OperationStats

	ResponseTimes []time.Duration

	mu sync.Mutex
}

// NewCollector creates a new statistics collector.
func NewCollector() *Collector {
	return &Collector{
		StartTime:  time.Now(),
		Operations: make(map[string]*OperationStats),
	}
}

func (c *Collector) getOrCreate(op string) *OperationStats {
	if _, ok := c.Operations[op]; !ok {
		c.Operations[op] = &OperationStats{}
	}
	return c.Operations[op]
}

// RecordSent records an operation PDU being sent.
func (c *Collector) RecordSent(op string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.getOrCreate(op).Sent++
}

// RecordReceived records an operation PDU being received.
func (c *Collector) RecordReceived(op string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.getOrCreate(op).Received++
}

// RecordSuccess records a positively confirmed operation.
func (c *Collector) RecordSuccess(op string, responseTime time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.getOrCreate(op).Success++
	c.ResponseTimes = append(c.ResponseTimes, responseTime)
}

// RecordFailure records a rejected operation.
func (c *Collector) RecordFailure(op string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.getOrCreate(op).Failed++
}

// RecordTimeout records an operation that ran out of its confirmation window.
func (c *Collector) RecordTimeout(op string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.getOrCreate(op).Timeout++
}

// Finish marks the end of the collection period.
func (c *Collector) Finish() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.EndTime = time.Now()
}

// Duration returns the elapsed collection time.
func (c *Collector) Duration() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.EndTime.IsZero() {
		return time.Since(c.StartTime)
	}
	return c.EndTime.Sub(c.StartTime)
}

// TotalSent returns the total number of operation PDUs sent.
func (c *Collector) TotalSent() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	var total uint64
	for _, s := range c.Operations {
		total += s.Sent
	}
	return total
}

// TotalReceived returns the total number of operation PDUs received.
func (c *Collector) TotalReceived() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	var total uint64
	for _, s := range c.Operations {
		total += s.Received
	}
	return total
}

// ResponseTimeStats returns min, avg, max, and p99 confirmation times.
func (c *Collector) ResponseTimeStats() (min, avg, max, p99 time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.ResponseTimes) == 0 {
		return 0, 0, 0, 0
	}

	sorted := make([]time.Duration, len(c.ResponseTimes))
	copy(sorted, c.ResponseTimes)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	min = sorted[0]
	max = sorted[len(sorted)-1]

	var total time.Duration
	for _, d := range sorted {
		total += d
	}
	avg = total / time.Duration(len(sorted))

	p99Idx := int(float64(len(sorted)) * 0.99)
	if p99Idx >= len(sorted) {
		p99Idx = len(sorted) - 1
	}
	p99 = sorted[p99Idx]

	return
}

// Snapshot returns a copy of the current statistics (thread-safe).
func (c *Collector) Snapshot() *Collector {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := &Collector{
		StartTime:     c.StartTime,
		EndTime:       c.EndTime,
		Operations:    make(map[string]*OperationStats),
		ResponseTimes: make([]time.Duration, len(c.ResponseTimes)),
	}
	copy(snap.ResponseTimes, c.ResponseTimes)

	for k, v := range c.Operations {
		stats := *v
		snap.Operations[k] = &stats
	}

	return snap
}
