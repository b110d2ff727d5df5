// Package session implements the per-service-instance binding state machine:
// the session controller that enforces the legal SLE operation sequence
// (bind, start, data transfer, stop, unbind), authenticates peer traffic and
// maintains the traffic counters observed by the statistics recorder.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"sle-engine/internal/isp1"
	"sle-engine/internal/peers"
	"sle-engine/internal/si"
	"sle-engine/pkg/types"
)

// Transport delivers outbound PDUs to the remote peer. The send must respect
// the context deadline; a blocked transport surfaces as a transition failure,
// never a hang.
type Transport interface {
	Send(ctx context.Context, pdu types.PDU) error
}

// StatsSink receives per-operation outcomes. Implemented by stats.Collector;
// a nil sink disables recording.
type StatsSink interface {
	RecordSent(op string)
	RecordReceived(op string)
	RecordSuccess(op string, responseTime time.Duration)
	RecordFailure(op string)
	RecordTimeout(op string)
}

type noopStats struct{}

func (noopStats) RecordSent(string)                   {}
func (noopStats) RecordReceived(string)               {}
func (noopStats) RecordSuccess(string, time.Duration) {}
func (noopStats) RecordFailure(string)                {}
func (noopStats) RecordTimeout(string)                {}

// Config carries the identity and policy of one service instance session.
type Config struct {
	Identifier        si.Identifier
	ServiceType       si.ServiceType
	Role              Role
	Version           int
	LocalID           string // our peer id, placed in outgoing credentials
	LocalPassword     []byte
	RemotePeerID      string
	HashAlgorithm     isp1.HashAlgorithm // hash for outgoing credentials
	AuthMode          AuthMode
	AuthDelaySeconds  int
	AuthFailurePolicy AuthFailurePolicy
	ResponseTimeout   time.Duration
}

// ServiceInstance is the session controller for one SLE service instance.
// Each instance owns independent state, counters and credential material.
type ServiceInstance struct {
	cfg       Config
	transport Transport
	peers     *peers.Directory
	stats     StatsSink

	mu        sync.Mutex
	state     State
	changed   chan struct{}
	pduCount  uint64
	byteCount uint64

	invokeIDs invokeIDCounter
	pending   *operationTracker

	lmu            sync.Mutex
	listeners      map[int]*listenerEntry
	nextListenerID int
}

// New creates a service instance in the UNBOUND state.
func New(cfg Config, transport Transport, directory *peers.Directory, stats StatsSink) *ServiceInstance {
	if stats == nil {
		stats = noopStats{}
	}
	if cfg.ResponseTimeout <= 0 {
		cfg.ResponseTimeout = 5 * time.Second
	}
	if cfg.AuthDelaySeconds <= 0 {
		cfg.AuthDelaySeconds = 60
	}
	return &ServiceInstance{
		cfg:       cfg,
		transport: transport,
		peers:     directory,
		stats:     stats,
		state:     Unbound,
		changed:   make(chan struct{}),
		pending:   newOperationTracker(),
		listeners: make(map[int]*listenerEntry),
	}
}

// State returns the current binding state.
func (s *ServiceInstance) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Counters returns the accepted PDU count and payload byte count as a
// consistent pair.
func (s *ServiceInstance) Counters() (pdus, bytes uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pduCount, s.byteCount
}

// Bind establishes the session binding with the peer. Legal only for the
// user role in the UNBOUND state; the session moves to BIND-PENDING and, on
// a positive BIND-RETURN, to READY. A rejection or timeout returns the
// session to UNBOUND.
func (s *ServiceInstance) Bind(ctx context.Context, version int) error {
	s.mu.Lock()
	if s.cfg.Role != RoleUser {
		s.mu.Unlock()
		return fmt.Errorf("%w: BIND is user-initiated", ErrProtocolViolation)
	}
	if s.state != Unbound {
		st := s.state
		s.mu.Unlock()
		return fmt.Errorf("%w: BIND in state %v", ErrProtocolViolation, st)
	}
	credentials, err := s.outboundCredentials(types.PDUBind)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.setStateLocked(BindPending)
	s.mu.Unlock()

	pdu := types.PDU{
		Type:        types.PDUBind,
		InvokeID:    s.invokeIDs.next(),
		Credentials: credentials,
		Version:     version,
		Identifier:  s.cfg.Identifier.String(),
		Initiator:   s.cfg.LocalID,
	}

	result, err := s.invoke(ctx, "BIND", pdu)
	if err != nil {
		s.transitionTo(Unbound)
		if err == errConfirmationTimeout {
			return fmt.Errorf("%w after %v", ErrBindTimeout, s.cfg.ResponseTimeout)
		}
		return fmt.Errorf("bind failed: %w", err)
	}
	if result.Return.Result != types.ResultPositive {
		s.transitionTo(Unbound)
		s.stats.RecordFailure("BIND")
		return fmt.Errorf("%w: %s", ErrBindRejected, result.Return.Diagnostic)
	}

	s.transitionTo(Ready)
	s.stats.RecordSuccess("BIND", result.ResponseTime)
	log.WithFields(log.Fields{
		"instance":      s.cfg.Identifier.String(),
		"version":       version,
		"response_time": result.ResponseTime.Round(time.Microsecond),
	}).Info("Session bound")
	return nil
}

// Start opens the data transfer phase. Legal only in READY; moves through
// START-PENDING to ACTIVE on a positive START-RETURN.
func (s *ServiceInstance) Start(ctx context.Context) error {
	if err := s.beginTransition(Ready, StartPending, "START"); err != nil {
		return err
	}

	pdu := types.PDU{Type: types.PDUStart, InvokeID: s.invokeIDs.next()}
	var err error
	pdu.Credentials, err = s.outboundCredentials(types.PDUStart)
	if err != nil {
		s.transitionTo(Ready)
		return err
	}

	result, err := s.invoke(ctx, "START", pdu)
	if err != nil {
		s.transitionTo(Ready)
		if err == errConfirmationTimeout {
			return fmt.Errorf("%w after %v", ErrStartTimeout, s.cfg.ResponseTimeout)
		}
		return fmt.Errorf("start failed: %w", err)
	}
	if result.Return.Result != types.ResultPositive {
		s.transitionTo(Ready)
		s.stats.RecordFailure("START")
		return fmt.Errorf("%w: %s", ErrStartRejected, result.Return.Diagnostic)
	}

	s.transitionTo(Active)
	s.stats.RecordSuccess("START", result.ResponseTime)
	return nil
}

// Stop closes the data transfer phase. Legal only in ACTIVE; moves through
// STOP-PENDING back to READY on a positive STOP-RETURN.
func (s *ServiceInstance) Stop(ctx context.Context) error {
	if err := s.beginTransition(Active, StopPending, "STOP"); err != nil {
		return err
	}

	pdu := types.PDU{Type: types.PDUStop, InvokeID: s.invokeIDs.next()}
	var err error
	pdu.Credentials, err = s.outboundCredentials(types.PDUStop)
	if err != nil {
		s.transitionTo(Active)
		return err
	}

	result, err := s.invoke(ctx, "STOP", pdu)
	if err != nil {
		s.transitionTo(Active)
		if err == errConfirmationTimeout {
			return fmt.Errorf("%w after %v", ErrStopTimeout, s.cfg.ResponseTimeout)
		}
		return fmt.Errorf("stop failed: %w", err)
	}
	if result.Return.Result != types.ResultPositive {
		s.transitionTo(Active)
		s.stats.RecordFailure("STOP")
		return fmt.Errorf("%w: %s", ErrStopRejected, result.Return.Diagnostic)
	}

	s.transitionTo(Ready)
	s.stats.RecordSuccess("STOP", result.ResponseTime)
	return nil
}

// Unbind releases the session binding. Legal only in READY. The local
// session always ends in UNBOUND; a missing UNBIND-RETURN is reported as
// ErrUnbindTimeout rather than blocking the release.
func (s *ServiceInstance) Unbind(ctx context.Context, reason string) error {
	if err := s.beginTransition(Ready, UnbindPending, "UNBIND"); err != nil {
		return err
	}

	pdu := types.PDU{Type: types.PDUUnbind, InvokeID: s.invokeIDs.next(), Reason: reason}
	var err error
	pdu.Credentials, err = s.outboundCredentials(types.PDUUnbind)
	if err != nil {
		s.transitionTo(Unbound)
		return err
	}

	result, err := s.invoke(ctx, "UNBIND", pdu)
	s.transitionTo(Unbound)
	if err != nil {
		if err == errConfirmationTimeout {
			return fmt.Errorf("%w after %v", ErrUnbindTimeout, s.cfg.ResponseTimeout)
		}
		return fmt.Errorf("unbind confirmation failed: %w", err)
	}

	s.stats.RecordSuccess("UNBIND", result.ResponseTime)
	log.WithFields(log.Fields{
		"instance": s.cfg.Identifier.String(),
		"reason":   reason,
	}).Info("Session unbound")
	return nil
}

// TransferData sends one unconfirmed data PDU. Legal only in ACTIVE.
func (s *ServiceInstance) TransferData(ctx context.Context, data []byte) error {
	s.mu.Lock()
	if s.state != Active {
		st := s.state
		s.mu.Unlock()
		return fmt.Errorf("%w: TRANSFER-DATA in state %v", ErrProtocolViolation, st)
	}
	s.mu.Unlock()

	credentials, err := s.outboundCredentials(types.PDUTransferData)
	if err != nil {
		return err
	}
	pdu := types.PDU{Type: types.PDUTransferData, Credentials: credentials, Data: data}
	if err := s.send(ctx, pdu); err != nil {
		s.stats.RecordFailure("TRANSFER-DATA")
		return err
	}
	s.stats.RecordSent("TRANSFER-DATA")
	return nil
}

// HandlePDU processes one inbound PDU from the transport. Every PDU received
// while bound is authenticated before acceptance; rejected PDUs change no
// state and are not counted.
func (s *ServiceInstance) HandlePDU(pdu types.PDU) {
	if !s.authenticate(pdu) {
		return
	}

	if pdu.Type == types.PDUTransferData && s.State() != Active {
		log.WithField("state", s.State()).Warn("Discarding TRANSFER-DATA outside active phase")
		return
	}

	s.recordAccepted(pdu)
	s.publish(listenerEvent{kind: eventPDUReceived, pdu: pdu})

	if pdu.Type.IsReturn() {
		s.stats.RecordReceived(pdu.Type.String())
		s.pending.resolve(pdu.InvokeID, pdu)
		return
	}

	switch pdu.Type {
	case types.PDUBind:
		s.handleBindInvocation(pdu)
	case types.PDUStart:
		s.handleStartInvocation(pdu)
	case types.PDUStop:
		s.handleStopInvocation(pdu)
	case types.PDUUnbind:
		s.handleUnbindInvocation(pdu)
	case types.PDUTransferData:
		s.stats.RecordReceived("TRANSFER-DATA")
	case types.PDUPeerAbort:
		s.handlePeerAbort(pdu)
	}
}

// WaitForState blocks until the session reaches the target state or the
// timeout elapses. It never mutates state.
func (s *ServiceInstance) WaitForState(target State, timeout time.Duration) bool {
	return s.waitFor(func(st State) bool { return st == target }, timeout)
}

// WaitForBind blocks until the session binding is established or the timeout
// elapses: the provider waits for a peer-initiated bind, the user for the
// completion of its own.
func (s *ServiceInstance) WaitForBind(isProvider bool, timeout time.Duration) bool {
	bound := s.waitFor(State.Bound, timeout)
	if !bound {
		log.WithFields(log.Fields{
			"provider": isProvider,
			"timeout":  timeout,
		}).Debug("Bind wait elapsed without binding")
	}
	return bound
}

// PeerAbort tears the session down immediately, notifying the peer on a
// best-effort basis and failing every pending operation.
func (s *ServiceInstance) PeerAbort(reason string) {
	log.WithFields(log.Fields{
		"instance": s.cfg.Identifier.String(),
		"reason":   reason,
	}).Warn("Aborting session")

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ResponseTimeout)
	defer cancel()
	if err := s.send(ctx, types.PDU{Type: types.PDUPeerAbort, Reason: reason}); err != nil {
		log.WithError(err).Warn("Peer abort notification failed")
	}
	s.pending.cancelAll(fmt.Errorf("session aborted: %s", reason))
	s.transitionTo(Unbound)
}

// beginTransition atomically checks the current state and enters the pending
// state of a confirmed operation.
func (s *ServiceInstance) beginTransition(from, pending State, op string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != from {
		return fmt.Errorf("%w: %s in state %v", ErrProtocolViolation, op, s.state)
	}
	s.setStateLocked(pending)
	return nil
}

// invoke sends a confirmed operation and waits for its return PDU.
func (s *ServiceInstance) invoke(ctx context.Context, op string, pdu types.PDU) (types.OperationResult, error) {
	resultCh := s.pending.track(pdu.InvokeID, pdu.Type)

	if err := s.send(ctx, pdu); err != nil {
		s.pending.cancel(pdu.InvokeID, err)
		s.stats.RecordFailure(op)
		return types.OperationResult{}, err
	}
	s.stats.RecordSent(op)

	timer := time.NewTimer(s.cfg.ResponseTimeout)
	defer timer.Stop()

	select {
	case result := <-resultCh:
		if result.Err != nil {
			return types.OperationResult{}, result.Err
		}
		return result, nil
	case <-timer.C:
		s.pending.cancel(pdu.InvokeID, errConfirmationTimeout)
		s.stats.RecordTimeout(op)
		return types.OperationResult{}, errConfirmationTimeout
	case <-ctx.Done():
		s.pending.cancel(pdu.InvokeID, ctx.Err())
		return types.OperationResult{}, ctx.Err()
	}
}

// send delivers a PDU through the transport with a bounded deadline and
// counts it on success.
func (s *ServiceInstance) send(ctx context.Context, pdu types.PDU) error {
	sendCtx, cancel := context.WithTimeout(ctx, s.cfg.ResponseTimeout)
	defer cancel()
	if err := s.transport.Send(sendCtx, pdu); err != nil {
		return fmt.Errorf("transport send of %v failed: %w", pdu.Type, err)
	}
	s.recordAccepted(pdu)
	return nil
}

func (s *ServiceInstance) recordAccepted(pdu types.PDU) {
	s.mu.Lock()
	s.pduCount++
	s.byteCount += uint64(pdu.Size())
	s.mu.Unlock()
}

// authenticate verifies inbound credentials per the configured mode. A
// failed state-changing PDU is rejected outright; a failed data PDU follows
// the configured policy.
func (s *ServiceInstance) authenticate(pdu types.PDU) bool {
	if !s.authRequired(pdu.Type) {
		return true
	}

	peer, err := s.peers.Lookup(s.cfg.RemotePeerID)
	if err != nil {
		log.WithError(err).WithField("peer", s.cfg.RemotePeerID).Error("Peer lookup failed, rejecting PDU")
		return false
	}

	if isp1.Verify(peer.ID, peer.Password, peer.Hash, pdu.Credentials, s.cfg.AuthDelaySeconds) {
		return true
	}

	log.WithFields(log.Fields{
		"peer":        peer.ID,
		"pdu_type":    pdu.Type,
		"credentials": fmt.Sprintf("% X", pdu.Credentials),
	}).Warn("Authentication rejected")

	if pdu.Type == types.PDUTransferData && s.cfg.AuthFailurePolicy == AuthFailureAbort {
		s.PeerAbort("data authentication failure")
	}
	return false
}

func (s *ServiceInstance) authRequired(t types.PDUType) bool {
	switch s.cfg.AuthMode {
	case AuthAll:
		// Peer abort carries no credentials by definition.
		return t != types.PDUPeerAbort
	case AuthBind:
		switch t {
		case types.PDUBind, types.PDUBindReturn, types.PDUUnbind, types.PDUUnbindReturn:
			return true
		}
		return false
	default:
		return false
	}
}

// outboundCredentials builds the ISP1 credentials for an outgoing PDU, or
// nil when the auth mode leaves the operation unprotected.
func (s *ServiceInstance) outboundCredentials(t types.PDUType) ([]byte, error) {
	credentials, err := isp1.Build(s.authRequired(t), s.cfg.LocalID, s.cfg.LocalPassword, s.cfg.HashAlgorithm)
	if err != nil {
		return nil, err
	}
	return credentials.Bytes(), nil
}

// handleBindInvocation accepts a peer-initiated bind on an unbound provider.
func (s *ServiceInstance) handleBindInvocation(pdu types.PDU) {
	ret := types.PDU{Type: types.PDUBindReturn, InvokeID: pdu.InvokeID, Result: types.ResultPositive}

	s.mu.Lock()
	switch {
	case s.cfg.Role != RoleProvider:
		ret.Result = types.ResultNegative
		ret.Diagnostic = "role mismatch"
	case s.state != Unbound:
		ret.Result = types.ResultNegative
		ret.Diagnostic = fmt.Sprintf("already bound, state %v", s.state)
	case pdu.Identifier != s.cfg.Identifier.String():
		ret.Result = types.ResultNegative
		ret.Diagnostic = "no such service instance"
	case pdu.Version < 1 || pdu.Version > 5:
		ret.Result = types.ResultNegative
		ret.Diagnostic = fmt.Sprintf("version %d not supported", pdu.Version)
	default:
		s.setStateLocked(Ready)
	}
	s.mu.Unlock()

	s.reply(ret, "BIND-RETURN")
	if ret.Result == types.ResultPositive {
		log.WithFields(log.Fields{
			"instance":  s.cfg.Identifier.String(),
			"initiator": pdu.Initiator,
		}).Info("Accepted bind from peer")
	} else {
		log.WithFields(log.Fields{
			"initiator":  pdu.Initiator,
			"diagnostic": ret.Diagnostic,
		}).Warn("Rejected bind from peer")
	}
}

func (s *ServiceInstance) handleStartInvocation(pdu types.PDU) {
	ret := types.PDU{Type: types.PDUStartReturn, InvokeID: pdu.InvokeID, Result: types.ResultPositive}

	s.mu.Lock()
	if s.cfg.Role != RoleProvider || s.state != Ready {
		ret.Result = types.ResultNegative
		ret.Diagnostic = fmt.Sprintf("START not legal in state %v", s.state)
	} else {
		s.setStateLocked(Active)
	}
	s.mu.Unlock()

	s.reply(ret, "START-RETURN")
}

func (s *ServiceInstance) handleStopInvocation(pdu types.PDU) {
	ret := types.PDU{Type: types.PDUStopReturn, InvokeID: pdu.InvokeID, Result: types.ResultPositive}

	s.mu.Lock()
	if s.cfg.Role != RoleProvider || s.state != Active {
		ret.Result = types.ResultNegative
		ret.Diagnostic = fmt.Sprintf("STOP not legal in state %v", s.state)
	} else {
		s.setStateLocked(Ready)
	}
	s.mu.Unlock()

	s.reply(ret, "STOP-RETURN")
}

func (s *ServiceInstance) handleUnbindInvocation(pdu types.PDU) {
	ret := types.PDU{Type: types.PDUUnbindReturn, InvokeID: pdu.InvokeID, Result: types.ResultPositive}

	s.mu.Lock()
	if s.cfg.Role == RoleProvider && s.state == Ready {
		s.setStateLocked(Unbound)
	} else {
		ret.Result = types.ResultNegative
		ret.Diagnostic = fmt.Sprintf("UNBIND not legal in state %v", s.state)
	}
	s.mu.Unlock()

	s.reply(ret, "UNBIND-RETURN")
}

func (s *ServiceInstance) handlePeerAbort(pdu types.PDU) {
	log.WithFields(log.Fields{
		"instance": s.cfg.Identifier.String(),
		"reason":   pdu.Reason,
	}).Warn("Peer aborted session")
	s.pending.cancelAll(fmt.Errorf("peer abort: %s", pdu.Reason))
	s.transitionTo(Unbound)
}

// reply sends a return PDU with freshly built credentials.
func (s *ServiceInstance) reply(ret types.PDU, op string) {
	credentials, err := s.outboundCredentials(ret.Type)
	if err != nil {
		log.WithError(err).Error("Failed to build return credentials")
		return
	}
	ret.Credentials = credentials

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ResponseTimeout)
	defer cancel()
	if err := s.send(ctx, ret); err != nil {
		log.WithError(err).WithField("pdu_type", ret.Type).Error("Failed to send return PDU")
		return
	}
	s.stats.RecordSent(op)
}

func (s *ServiceInstance) transitionTo(st State) {
	s.mu.Lock()
	s.setStateLocked(st)
	s.mu.Unlock()
}

// setStateLocked mutates the state, wakes blocked waiters and queues the
// listener notification. Callers hold s.mu.
func (s *ServiceInstance) setStateLocked(st State) {
	if s.state == st {
		return
	}
	from := s.state
	s.state = st
	close(s.changed)
	s.changed = make(chan struct{})

	log.WithFields(log.Fields{
		"instance": s.cfg.Identifier.String(),
		"from":     from,
		"to":       st,
	}).Debug("State transition")
	s.publish(listenerEvent{kind: eventStateChanged, from: from, to: st})
}

// waitFor blocks until the predicate holds for the current state or the
// timeout elapses. Waiters are woken by transition broadcasts, not polling.
func (s *ServiceInstance) waitFor(predicate func(State) bool, timeout time.Duration) bool {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		s.mu.Lock()
		if predicate(s.state) {
			s.mu.Unlock()
			return true
		}
		changed := s.changed
		s.mu.Unlock()

		select {
		case <-changed:
		case <-deadline.C:
			return false
		}
	}
}
