// Package types holds the PDU model shared between the session engine, the
// transport link and the provider responder. The engine owns only the
// semantic content of a PDU; producing the ASN.1/BER wire bytes is the job
// of the transport mapping layer.
package types

import (
	"fmt"
	"time"
)

// PDUType identifies one SLE operation message.
type PDUType int

const (
	PDUBind PDUType = iota
	PDUBindReturn
	PDUStart
	PDUStartReturn
	PDUTransferData
	PDUStop
	PDUStopReturn
	PDUUnbind
	PDUUnbindReturn
	PDUPeerAbort
)

func (t PDUType) String() string {
	switch t {
	case PDUBind:
		return "BIND"
	case PDUBindReturn:
		return "BIND-RETURN"
	case PDUStart:
		return "START"
	case PDUStartReturn:
		return "START-RETURN"
	case PDUTransferData:
		return "TRANSFER-DATA"
	case PDUStop:
		return "STOP"
	case PDUStopReturn:
		return "STOP-RETURN"
	case PDUUnbind:
		return "UNBIND"
	case PDUUnbindReturn:
		return "UNBIND-RETURN"
	case PDUPeerAbort:
		return "PEER-ABORT"
	default:
		return fmt.Sprintf("PDUType(%d)", int(t))
	}
}

// IsReturn reports whether the PDU confirms a previously sent operation.
func (t PDUType) IsReturn() bool {
	switch t {
	case PDUBindReturn, PDUStartReturn, PDUStopReturn, PDUUnbindReturn:
		return true
	default:
		return false
	}
}

// Result is the outcome carried by a return PDU.
type Result int

const (
	ResultPositive Result = iota
	ResultNegative
)

// PDU is the semantic content of one SLE protocol message.
type PDU struct {
	Type        PDUType
	InvokeID    uint32
	Credentials []byte // encoded ISP1 credentials, nil when unused
	Version     int    // bind only
	Identifier  string // service instance identifier string, bind only
	Initiator   string // peer id of the sender, bind only
	Result      Result // return PDUs only
	Diagnostic  string // negative returns only
	Reason      string // unbind and peer abort
	Data        []byte // transfer data only
}

// Size returns the payload byte count this PDU contributes to the session
// byte counters.
func (p PDU) Size() int {
	return len(p.Data)
}

// OperationResult is the outcome of a confirmed operation: the return PDU
// and its round-trip time, or the error that ended the wait.
type OperationResult struct {
	InvokeID     uint32
	Return       PDU
	ResponseTime time.Duration
	Err          error
}
