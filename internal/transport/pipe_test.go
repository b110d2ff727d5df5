package transport

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sle-engine/pkg/types"
)

func TestPipe_DeliversInOrderBothDirections(t *testing.T) {
	a, b := Pipe()
	defer a.Close()
	defer b.Close()

	ctx := context.Background()
	for i := 0; i < 10; i++ {
		require.NoError(t, a.Send(ctx, types.PDU{Type: types.PDUTransferData, InvokeID: uint32(i)}))
	}
	for i := 0; i < 10; i++ {
		pdu := <-b.Receive()
		assert.Equal(t, uint32(i), pdu.InvokeID)
	}

	require.NoError(t, b.Send(ctx, types.PDU{Type: types.PDUBindReturn}))
	pdu := <-a.Receive()
	assert.Equal(t, types.PDUBindReturn, pdu.Type)
}

func TestPipe_SendAfterCloseFails(t *testing.T) {
	a, b := Pipe()
	defer b.Close()

	a.Close()
	a.Close() // idempotent

	err := a.Send(context.Background(), types.PDU{Type: types.PDUBind})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestPipe_SendHonorsContext(t *testing.T) {
	a, b := Pipe()
	defer a.Close()
	defer b.Close()

	// Fill the buffer so the next send blocks on the context.
	ctx := context.Background()
	for i := 0; i < defaultBuffer; i++ {
		require.NoError(t, a.Send(ctx, types.PDU{Type: types.PDUTransferData}))
	}

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	err := a.Send(cancelled, types.PDU{Type: types.PDUTransferData})
	assert.ErrorIs(t, err, context.Canceled)
}

type collectHandler struct {
	received chan types.PDU
}

func (h *collectHandler) HandlePDU(pdu types.PDU) { h.received <- pdu }

func TestPump_ForwardsUntilCancelled(t *testing.T) {
	a, b := Pipe()
	defer a.Close()
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	handler := &collectHandler{received: make(chan types.PDU, 10)}

	done := make(chan struct{})
	go func() {
		Pump(ctx, b, handler)
		close(done)
	}()

	require.NoError(t, a.Send(ctx, types.PDU{Type: types.PDUStart, InvokeID: 7}))
	select {
	case pdu := <-handler.received:
		assert.Equal(t, uint32(7), pdu.InvokeID)
	case <-time.After(time.Second):
		t.Fatal("pump did not forward the PDU")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("pump did not stop on context cancellation")
	}
}

func TestPump_StopsOnEndpointClose(t *testing.T) {
	a, b := Pipe()
	defer a.Close()

	handler := &collectHandler{received: make(chan types.PDU, 10)}
	done := make(chan struct{})
	go func() {
		Pump(context.Background(), b, handler)
		close(done)
	}()

	b.Close()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("pump did not stop on endpoint close")
	}
}
