package cdsi

import "github.com/ruteri/cdsi-client/interfaces"

// ResponseEntry holds the identifiers found for one phone number. A nil field
// was not returned by the service.
type ResponseEntry struct {
	ACI *string `json:"aci,omitempty"`
	PNI *string `json:"pni,omitempty"`
}

// Response is the caller-facing lookup result. Entries is keyed by E.164 number;
// numbers without a match are absent.
type Response struct {
	Entries          map[string]ResponseEntry `json:"entries"`
	DebugPermitsUsed int                      `json:"debug_permits_used"`
}

// ProjectResponse converts an engine result into a Response. Keys and entries are
// carried over one to one.
func ProjectResponse(raw *interfaces.RawLookupResult) *Response {
	if raw == nil {
		return &Response{Entries: map[string]ResponseEntry{}}
	}

	resp := &Response{
		Entries:          make(map[string]ResponseEntry, len(raw.Entries)),
		DebugPermitsUsed: raw.DebugPermitsUsed,
	}
	for e164, entry := range raw.Entries {
		resp.Entries[e164] = ResponseEntry{
			ACI: serviceIDString(entry.ACI),
			PNI: serviceIDString(entry.PNI),
		}
	}
	return resp
}

func serviceIDString(id *interfaces.ServiceID) *string {
	if id == nil {
		return nil
	}
	s := id.String()
	return &s
}
