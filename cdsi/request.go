package cdsi

import (
	"encoding/base64"
	"fmt"

	"github.com/ruteri/cdsi-client/interfaces"
)

// IdentityEntry is an ACI in fixed-width binary form with its decoded access key.
type IdentityEntry struct {
	ACI       interfaces.ServiceIDFixedWidthBinary
	AccessKey []byte
}

// LookupRequest accumulates the numbers and identities of a single lookup.
// It belongs to one lookup call and must not be reused.
type LookupRequest struct {
	e164s             []string
	acisAndAccessKeys []IdentityEntry
	sealed            bool
}

// NewLookupRequest returns an empty request.
func NewLookupRequest() *LookupRequest {
	return &LookupRequest{}
}

// AddE164 appends a phone number. The number must already be in the canonical
// form expected by the service; it is validated remotely.
func (r *LookupRequest) AddE164(e164 string) {
	r.mustNotBeSealed()
	r.e164s = append(r.e164s, e164)
}

// AddACIAndAccessKey parses aci and decodes the base64 access key, then appends
// the pair. On error nothing is appended.
func (r *LookupRequest) AddACIAndAccessKey(aci string, accessKeyBase64 string) error {
	r.mustNotBeSealed()

	id, err := interfaces.ParseACIFromServiceIDString(aci)
	if err != nil {
		return err
	}

	accessKey, err := base64.StdEncoding.DecodeString(accessKeyBase64)
	if err != nil {
		return fmt.Errorf("%w: access key for %s: %v", interfaces.ErrEncoding, aci, err)
	}

	r.acisAndAccessKeys = append(r.acisAndAccessKeys, IdentityEntry{
		ACI:       id.FixedWidthBinary(),
		AccessKey: accessKey,
	})
	return nil
}

// E164s returns a copy of the phone numbers in insertion order.
func (r *LookupRequest) E164s() []string {
	return append([]string(nil), r.e164s...)
}

// ACIsAndAccessKeys returns a copy of the identity entries in insertion order.
func (r *LookupRequest) ACIsAndAccessKeys() []IdentityEntry {
	return append([]IdentityEntry(nil), r.acisAndAccessKeys...)
}

func (r *LookupRequest) seal() {
	r.sealed = true
}

func (r *LookupRequest) mustNotBeSealed() {
	if r.sealed {
		panic("cdsi: lookup request modified after submission")
	}
}

// BuildRequest assembles a request from caller options. The first malformed
// identity aborts construction.
func BuildRequest(opts RequestOptions) (*LookupRequest, error) {
	req := NewLookupRequest()
	for _, e164 := range opts.E164s {
		req.AddE164(e164)
	}

	for _, pair := range opts.ACIsAndAccessKeys {
		if err := req.AddACIAndAccessKey(pair.ACI, pair.AccessKey); err != nil {
			return nil, err
		}
	}

	return req, nil
}
