// Package si defines SLE service types and the structured service instance
// identifier built from its dotted string representation.
package si

import (
	"errors"
	"fmt"
	"strings"
)

// ServiceType identifies the SLE service an instance provides.
type ServiceType int

const (
	RAF ServiceType = iota
	RCF
	ROCF
	CLTU
	FSP
)

func (t ServiceType) String() string {
	switch t {
	case RAF:
		return "RAF"
	case RCF:
		return "RCF"
	case ROCF:
		return "ROCF"
	case CLTU:
		return "CLTU"
	case FSP:
		return "FSP"
	default:
		return fmt.Sprintf("ServiceType(%d)", int(t))
	}
}

// ErrUnsupportedServiceType reports a service type with no identifier
// attribute mapping.
var ErrUnsupportedServiceType = errors.New("unsupported service type")

// ParseServiceType maps a configuration string to a ServiceType.
func ParseServiceType(s string) (ServiceType, error) {
	switch strings.ToUpper(s) {
	case "RAF":
		return RAF, nil
	case "RCF":
		return RCF, nil
	case "ROCF":
		return ROCF, nil
	case "CLTU":
		return CLTU, nil
	case "FSP":
		return FSP, nil
	default:
		return RAF, fmt.Errorf("%w: %q", ErrUnsupportedServiceType, s)
	}
}

// AttributeKind is the semantic kind of one service instance attribute.
type AttributeKind int

const (
	KindSagr AttributeKind = iota // spacecraft/agency group
	KindSpack                     // space packet group
	KindRslFg                     // return service link functional group
	KindFslFg                     // forward service link functional group
	KindRaf
	KindRcf
	KindRocf
	KindFsp
	KindCltu
)

func (k AttributeKind) String() string {
	switch k {
	case KindSagr:
		return "sagr"
	case KindSpack:
		return "spack"
	case KindRslFg:
		return "rsl-fg"
	case KindFslFg:
		return "fsl-fg"
	case KindRaf:
		return "raf"
	case KindRcf:
		return "rcf"
	case KindRocf:
		return "rocf"
	case KindFsp:
		return "fsp"
	case KindCltu:
		return "cltu"
	default:
		return fmt.Sprintf("AttributeKind(%d)", int(k))
	}
}

// Attribute is one (kind, value) pair of a service instance identifier. The
// value is an opaque token; no semantic validation happens at this layer.
type Attribute struct {
	Kind  AttributeKind
	Value string
}

// Identifier is the ordered set of four attributes identifying a service
// instance.
type Identifier struct {
	Attributes []Attribute
}

// Parse builds a service instance identifier from its dotted string form:
// four dot-separated key=value segments. The key names are carried by the
// standard but only the values are significant here; the attribute kind of
// segments three and four follows the declared service type.
func Parse(s string, serviceType ServiceType) (Identifier, error) {
	segments := strings.Split(s, ".")
	if len(segments) != 4 {
		return Identifier{}, fmt.Errorf("service instance identifier %q: expected 4 dot-separated segments, got %d", s, len(segments))
	}

	values := make([]string, 4)
	for i, segment := range segments {
		_, value, found := strings.Cut(segment, "=")
		if !found {
			return Identifier{}, fmt.Errorf("service instance identifier %q: segment %d is not of form key=value", s, i+1)
		}
		values[i] = value
	}

	var fgKind AttributeKind
	switch serviceType {
	case RAF, RCF, ROCF:
		fgKind = KindRslFg
	case FSP, CLTU:
		fgKind = KindFslFg
	default:
		return Identifier{}, fmt.Errorf("%w: %v", ErrUnsupportedServiceType, serviceType)
	}

	var svcKind AttributeKind
	switch serviceType {
	case RAF:
		svcKind = KindRaf
	case RCF:
		svcKind = KindRcf
	case ROCF:
		svcKind = KindRocf
	case FSP:
		svcKind = KindFsp
	case CLTU:
		svcKind = KindCltu
	default:
		return Identifier{}, fmt.Errorf("%w: %v", ErrUnsupportedServiceType, serviceType)
	}

	return Identifier{Attributes: []Attribute{
		{Kind: KindSagr, Value: values[0]},
		{Kind: KindSpack, Value: values[1]},
		{Kind: fgKind, Value: values[2]},
		{Kind: svcKind, Value: values[3]},
	}}, nil
}

// String formats the identifier back into its canonical dotted form.
func (id Identifier) String() string {
	parts := make([]string, 0, len(id.Attributes))
	for _, attr := range id.Attributes {
		parts = append(parts, fmt.Sprintf("%s=%s", attr.Kind, attr.Value))
	}
	return strings.Join(parts, ".")
}
