package interfaces

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ServiceIDKind distinguishes account identifiers from phone number identifiers.
type ServiceIDKind byte

const (
	ACIKind ServiceIDKind = 0
	PNIKind ServiceIDKind = 1
)

func (k ServiceIDKind) String() string {
	switch k {
	case ACIKind:
		return "ACI"
	case PNIKind:
		return "PNI"
	default:
		return fmt.Sprintf("ServiceIDKind(%d)", byte(k))
	}
}

const (
	pniPrefix = "PNI:"

	// canonical hyphenated UUID length
	uuidStringLen = 36

	// ServiceIDFixedWidthLen is the size of the fixed-width binary encoding.
	ServiceIDFixedWidthLen = 17
)

// ServiceIDFixedWidthBinary is the wire encoding of a ServiceID: the kind byte
// followed by the 16 raw UUID bytes.
type ServiceIDFixedWidthBinary [ServiceIDFixedWidthLen]byte

// ServiceID identifies an account (ACI) or a phone number identity (PNI).
type ServiceID struct {
	Kind ServiceIDKind
	UUID uuid.UUID
}

// NewACI wraps a UUID as an account identifier.
func NewACI(u uuid.UUID) ServiceID {
	return ServiceID{Kind: ACIKind, UUID: u}
}

// NewPNI wraps a UUID as a phone number identifier.
func NewPNI(u uuid.UUID) ServiceID {
	return ServiceID{Kind: PNIKind, UUID: u}
}

// ParseServiceIDString parses the string form of a service identifier.
// ACIs are bare hyphenated UUIDs, PNIs carry a "PNI:" prefix.
func ParseServiceIDString(s string) (ServiceID, error) {
	kind := ACIKind
	raw := s
	if strings.HasPrefix(s, pniPrefix) {
		kind = PNIKind
		raw = strings.TrimPrefix(s, pniPrefix)
	}

	if len(raw) != uuidStringLen {
		return ServiceID{}, fmt.Errorf("%w: %q is not a hyphenated uuid", ErrParse, s)
	}

	u, err := uuid.Parse(raw)
	if err != nil {
		return ServiceID{}, fmt.Errorf("%w: %q: %v", ErrParse, s, err)
	}

	return ServiceID{Kind: kind, UUID: u}, nil
}

// ParseACIFromServiceIDString parses s and requires it to be an ACI.
func ParseACIFromServiceIDString(s string) (ServiceID, error) {
	id, err := ParseServiceIDString(s)
	if err != nil {
		return ServiceID{}, err
	}
	if id.Kind != ACIKind {
		return ServiceID{}, fmt.Errorf("%w: %q is a %s, expected ACI", ErrParse, s, id.Kind)
	}
	return id, nil
}

// ParsePNIFromServiceIDString parses s and requires it to be a PNI.
func ParsePNIFromServiceIDString(s string) (ServiceID, error) {
	id, err := ParseServiceIDString(s)
	if err != nil {
		return ServiceID{}, err
	}
	if id.Kind != PNIKind {
		return ServiceID{}, fmt.Errorf("%w: %q is a %s, expected PNI", ErrParse, s, id.Kind)
	}
	return id, nil
}

// ParseServiceIDFixedWidthBinary decodes the 17-byte wire form.
func ParseServiceIDFixedWidthBinary(b []byte) (ServiceID, error) {
	if len(b) != ServiceIDFixedWidthLen {
		return ServiceID{}, fmt.Errorf("%w: fixed-width service id must be %d bytes, got %d", ErrParse, ServiceIDFixedWidthLen, len(b))
	}

	kind := ServiceIDKind(b[0])
	if kind != ACIKind && kind != PNIKind {
		return ServiceID{}, fmt.Errorf("%w: unknown service id kind %d", ErrParse, b[0])
	}

	u, err := uuid.FromBytes(b[1:])
	if err != nil {
		return ServiceID{}, fmt.Errorf("%w: %v", ErrParse, err)
	}

	return ServiceID{Kind: kind, UUID: u}, nil
}

// FixedWidthBinary returns the 17-byte wire form.
func (id ServiceID) FixedWidthBinary() ServiceIDFixedWidthBinary {
	var res ServiceIDFixedWidthBinary
	res[0] = byte(id.Kind)
	copy(res[1:], id.UUID[:])
	return res
}

// String returns the service id string form: a bare UUID for ACIs, "PNI:<uuid>" for PNIs.
func (id ServiceID) String() string {
	if id.Kind == PNIKind {
		return pniPrefix + id.UUID.String()
	}
	return id.UUID.String()
}

// MarshalText implements encoding.TextMarshaler.
func (id ServiceID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *ServiceID) UnmarshalText(text []byte) error {
	parsed, err := ParseServiceIDString(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
