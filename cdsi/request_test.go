package cdsi

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/ruteri/cdsi-client/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testACI = "9d0652a3-dcc3-4d11-975f-74d61598733f"
	testPNI = "PNI:ad2f6e47-e57f-4a44-9ba3-7a9c7a0b6f7e"
)

var testAccessKey = []byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15}

func TestLookupRequest_AddE164(t *testing.T) {
	req := NewLookupRequest()
	req.AddE164("+15551234567")
	req.AddE164("+15557654321")
	req.AddE164("+15551234567")

	assert.Equal(t, []string{"+15551234567", "+15557654321", "+15551234567"}, req.E164s(), "Order and duplicates are preserved")

	// returned slices are copies
	req.E164s()[0] = "changed"
	assert.Equal(t, "+15551234567", req.E164s()[0])
}

func TestLookupRequest_AddACIAndAccessKey(t *testing.T) {
	req := NewLookupRequest()
	err := req.AddACIAndAccessKey(testACI, base64.StdEncoding.EncodeToString(testAccessKey))
	require.NoError(t, err)

	entries := req.ACIsAndAccessKeys()
	require.Len(t, entries, 1)

	aci, err := interfaces.ParseACIFromServiceIDString(testACI)
	require.NoError(t, err)
	assert.Equal(t, aci.FixedWidthBinary(), entries[0].ACI)
	assert.Equal(t, testAccessKey, entries[0].AccessKey)
}

func TestLookupRequest_AddACIAndAccessKey_Errors(t *testing.T) {
	validKey := base64.StdEncoding.EncodeToString(testAccessKey)

	tests := []struct {
		name      string
		aci       string
		accessKey string
		want      error
	}{
		{"malformed aci", "not-an-aci", validKey, interfaces.ErrParse},
		{"pni instead of aci", testPNI, validKey, interfaces.ErrParse},
		{"non base64 key", testACI, "%%%not base64%%%", interfaces.ErrEncoding},
		{"url-safe alphabet", testACI, "-_-_", interfaces.ErrEncoding},
		{"missing padding", testACI, strings.TrimRight(validKey, "="), interfaces.ErrEncoding},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := NewLookupRequest()
			err := req.AddACIAndAccessKey(tt.aci, tt.accessKey)
			assert.ErrorIs(t, err, tt.want)
			assert.Empty(t, req.ACIsAndAccessKeys(), "Failed additions must not append")
		})
	}
}

func TestLookupRequest_NoRollback(t *testing.T) {
	req := NewLookupRequest()
	require.NoError(t, req.AddACIAndAccessKey(testACI, base64.StdEncoding.EncodeToString(testAccessKey)))
	require.Error(t, req.AddACIAndAccessKey(testACI, "***"))

	assert.Len(t, req.ACIsAndAccessKeys(), 1, "Earlier successful additions stay")
}

func TestLookupRequest_SealedPanics(t *testing.T) {
	req := NewLookupRequest()
	req.seal()

	assert.Panics(t, func() { req.AddE164("+15551234567") })
}

func TestBuildRequest(t *testing.T) {
	req, err := BuildRequest(RequestOptions{
		E164s: []string{"+15551234567"},
		ACIsAndAccessKeys: []AccessKeyPair{
			{ACI: testACI, AccessKey: base64.StdEncoding.EncodeToString(testAccessKey)},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"+15551234567"}, req.E164s())
	assert.Len(t, req.ACIsAndAccessKeys(), 1)

	_, err = BuildRequest(RequestOptions{
		ACIsAndAccessKeys: []AccessKeyPair{{ACI: testACI, AccessKey: "not base64!"}},
	})
	assert.ErrorIs(t, err, interfaces.ErrEncoding)
}
