package directory

import (
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ruteri/cdsi-client/interfaces"
)

// ErrInvalidRecord is returned when a directory document cannot be used.
var ErrInvalidRecord = errors.New("invalid directory record")

// Record is one registered phone number as stored in the directory file.
type Record struct {
	E164      string `json:"e164"`
	ACI       string `json:"aci,omitempty"`
	PNI       string `json:"pni"`
	AccessKey string `json:"access_key,omitempty"`
}

type entry struct {
	aci       *interfaces.ServiceID
	pni       interfaces.ServiceID
	accessKey []byte
}

// Directory maps phone numbers to their identifiers. It is immutable after
// construction and safe for concurrent use.
type Directory struct {
	entries map[string]entry
}

// ACIAccessKey is an ACI presented by a client together with its access key.
type ACIAccessKey struct {
	ACI       interfaces.ServiceID
	AccessKey []byte
}

// Match is one matched phone number.
type Match struct {
	E164 string
	ACI  *interfaces.ServiceID
	PNI  interfaces.ServiceID
}

// New validates records and builds a directory.
func New(records []Record) (*Directory, error) {
	d := &Directory{entries: make(map[string]entry, len(records))}
	for i, r := range records {
		if r.E164 == "" {
			return nil, fmt.Errorf("%w: record %d has no phone number", ErrInvalidRecord, i)
		}
		if _, found := d.entries[r.E164]; found {
			return nil, fmt.Errorf("%w: duplicate phone number %s", ErrInvalidRecord, r.E164)
		}

		pni, err := interfaces.ParsePNIFromServiceIDString(r.PNI)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrInvalidRecord, r.E164, err)
		}
		e := entry{pni: pni}

		if r.ACI != "" {
			aci, err := interfaces.ParseACIFromServiceIDString(r.ACI)
			if err != nil {
				return nil, fmt.Errorf("%w: %s: %w", ErrInvalidRecord, r.E164, err)
			}
			e.aci = &aci

			e.accessKey, err = base64.StdEncoding.DecodeString(r.AccessKey)
			if err != nil {
				return nil, fmt.Errorf("%w: %s: access key: %w", ErrInvalidRecord, r.E164, err)
			}
		}

		d.entries[r.E164] = e
	}
	return d, nil
}

// Parse decodes a JSON list of records.
func Parse(data []byte) (*Directory, error) {
	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRecord, err)
	}
	return New(records)
}

// Len returns the number of registered phone numbers.
func (d *Directory) Len() int {
	return len(d.entries)
}

// Lookup matches e164s against the directory. Every known number yields its
// PNI; the ACI is revealed only when the caller presented that ACI with the
// correct access key. Unknown numbers are omitted and duplicates are matched
// once. permitsUsed is the number of distinct phone numbers requested.
func (d *Directory) Lookup(e164s []string, acis []ACIAccessKey) (matches []Match, permitsUsed int) {
	seen := make(map[string]struct{}, len(e164s))
	for _, e164 := range e164s {
		if _, dup := seen[e164]; dup {
			continue
		}
		seen[e164] = struct{}{}

		e, ok := d.entries[e164]
		if !ok {
			continue
		}

		m := Match{E164: e164, PNI: e.pni}
		if e.aci != nil && presented(acis, *e.aci, e.accessKey) {
			aci := *e.aci
			m.ACI = &aci
		}
		matches = append(matches, m)
	}
	return matches, len(seen)
}

func presented(acis []ACIAccessKey, aci interfaces.ServiceID, accessKey []byte) bool {
	for _, candidate := range acis {
		if candidate.ACI == aci && subtle.ConstantTimeCompare(candidate.AccessKey, accessKey) == 1 {
			return true
		}
	}
	return false
}
