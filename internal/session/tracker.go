package session

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"sle-engine/pkg/types"
)

// pendingOperation is a confirmed operation awaiting its return PDU.
type pendingOperation struct {
	invokeID uint32
	opType   types.PDUType
	sentAt   time.Time
	resultCh chan types.OperationResult
}

// operationTracker matches inbound return PDUs to pending confirmed
// operations by invoke id.
type operationTracker struct {
	pending map[uint32]*pendingOperation
	mu      sync.Mutex
}

func newOperationTracker() *operationTracker {
	return &operationTracker{pending: make(map[uint32]*pendingOperation)}
}

// track registers a new pending operation and returns a channel that will
// deliver exactly one result.
func (t *operationTracker) track(invokeID uint32, opType types.PDUType) <-chan types.OperationResult {
	t.mu.Lock()
	defer t.mu.Unlock()

	resultCh := make(chan types.OperationResult, 1)
	t.pending[invokeID] = &pendingOperation{
		invokeID: invokeID,
		opType:   opType,
		sentAt:   time.Now(),
		resultCh: resultCh,
	}
	return resultCh
}

// resolve delivers a return PDU to the matching pending operation. It
// reports whether a pending operation existed for the invoke id.
func (t *operationTracker) resolve(invokeID uint32, ret types.PDU) bool {
	t.mu.Lock()
	op, exists := t.pending[invokeID]
	if !exists {
		t.mu.Unlock()
		log.WithFields(log.Fields{
			"invoke_id": invokeID,
			"pdu_type":  ret.Type,
		}).Warn("Received return for unknown operation")
		return false
	}
	delete(t.pending, invokeID)
	t.mu.Unlock()

	op.resultCh <- types.OperationResult{
		InvokeID:     invokeID,
		Return:       ret,
		ResponseTime: time.Since(op.sentAt),
	}
	return true
}

// cancel fails a single pending operation with the given error.
func (t *operationTracker) cancel(invokeID uint32, err error) {
	t.mu.Lock()
	op, exists := t.pending[invokeID]
	if exists {
		delete(t.pending, invokeID)
	}
	t.mu.Unlock()

	if exists {
		op.resultCh <- types.OperationResult{InvokeID: invokeID, Err: err}
	}
}

// cancelAll fails every pending operation, e.g. on peer abort.
func (t *operationTracker) cancelAll(err error) {
	t.mu.Lock()
	cancelled := make([]*pendingOperation, 0, len(t.pending))
	for invokeID, op := range t.pending {
		cancelled = append(cancelled, op)
		delete(t.pending, invokeID)
	}
	t.mu.Unlock()

	for _, op := range cancelled {
		op.resultCh <- types.OperationResult{InvokeID: op.invokeID, Err: err}
	}
}

// pendingCount returns the number of operations awaiting confirmation.
func (t *operationTracker) pendingCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

// invokeIDCounter issues operation invoke ids (24-bit, wraps, never zero).
type invokeIDCounter struct {
	current uint32
	mu      sync.Mutex
}

func (c *invokeIDCounter) next() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current++
	if c.current > 0xFFFFFF {
		c.current = 1
	}
	return c.current
}
