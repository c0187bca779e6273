package cryptoutils

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	tdx_abi "github.com/google/go-tdx-guest/abi"
	tdx_client "github.com/google/go-tdx-guest/client"
	tdx_pb "github.com/google/go-tdx-guest/proto/tdx"
	"github.com/google/go-tdx-guest/verify"
)

var (
	DCAPAttestation = AttestationType{
		StringID: "qemu-tdx",
	}

	DummyAttestation = AttestationType{
		StringID: "dummy",
	}
)

// ErrInsecureAttestation is returned when a dummy quote is presented but the
// policy does not allow it.
var ErrInsecureAttestation = errors.New("insecure attestation not allowed")

// AttestationType names the kind of quote an enclave produces.
type AttestationType struct {
	StringID string
}

func (t AttestationType) String() string {
	return t.StringID
}

// AttestationTypeFromString parses the attestation type sent on the wire.
func AttestationTypeFromString(str string) (AttestationType, error) {
	switch str {
	case DCAPAttestation.StringID:
		return DCAPAttestation, nil
	case DummyAttestation.StringID:
		return DummyAttestation, nil
	default:
		return AttestationType{}, errors.ErrUnsupported
	}
}

// AttestationPolicy decides which quotes a client accepts.
type AttestationPolicy struct {
	// AllowInsecure accepts dummy quotes. Development only.
	AllowInsecure bool

	// ExpectedMeasurements maps register index (0 = MRTD, 1-4 = RTMR0-3) to the
	// expected hex value. Registers not listed are not checked.
	ExpectedMeasurements map[int]string
}

// AttestationProvider produces quotes over report data.
type AttestationProvider interface {
	AttestationType() AttestationType
	Attest(reportData [64]byte) ([]byte, error)
}

// ReportData binds both session public keys into quote report data.
func ReportData(serverPubkey, clientPubkey []byte) [64]byte {
	var reportData [64]byte
	h := sha256.New()
	h.Write(serverPubkey)
	h.Write(clientPubkey)
	copy(reportData[:32], h.Sum(nil))
	return reportData
}

// DCAPAttestationProvider produces TDX quotes through configfs-tsm or the TDX guest device.
type DCAPAttestationProvider struct{}

func (DCAPAttestationProvider) AttestationType() AttestationType { return DCAPAttestation }

func (DCAPAttestationProvider) Attest(reportData [64]byte) ([]byte, error) {
	qp := &tdx_client.LinuxConfigFsQuoteProvider{}
	if qp.IsSupported() == nil {
		return qp.GetRawQuote(reportData)
	}

	qd, err := tdx_client.OpenDevice()
	if err != nil {
		return nil, err
	}
	defer qd.Close()

	return tdx_client.GetRawQuote(qd, reportData)
}

// DummyAttestationProvider produces deterministic quotes for development.
type DummyAttestationProvider struct{}

func (DummyAttestationProvider) AttestationType() AttestationType {
	return DummyAttestation
}

func (DummyAttestationProvider) Attest(reportData [64]byte) ([]byte, error) {
	return []byte(fmt.Sprintf("dummy attestation %x", reportData)), nil
}

// VerifyAttestation checks a quote of the given type against the expected report
// data and the policy.
func VerifyAttestation(policy AttestationPolicy, attestationType string, reportData [64]byte, quote []byte) error {
	at, err := AttestationTypeFromString(attestationType)
	if err != nil {
		return fmt.Errorf("attestation type %q: %w", attestationType, err)
	}

	switch at {
	case DummyAttestation:
		if !policy.AllowInsecure {
			return ErrInsecureAttestation
		}
		expected, _ := DummyAttestationProvider{}.Attest(reportData)
		if !bytes.Equal(expected, quote) {
			return errors.New("dummy attestation does not match report data")
		}
		return nil
	case DCAPAttestation:
		measurements, err := VerifyDCAPAttestation(reportData, quote)
		if err != nil {
			return err
		}
		return checkMeasurements(policy.ExpectedMeasurements, measurements)
	default:
		return errors.ErrUnsupported
	}
}

func checkMeasurements(expected, actual map[int]string) error {
	for idx, want := range expected {
		got, ok := actual[idx]
		if !ok {
			return fmt.Errorf("measurement %d missing from quote", idx)
		}
		if !strings.EqualFold(got, want) {
			return fmt.Errorf("measurement %d mismatch: got %s, expected %s", idx, got, want)
		}
	}
	return nil
}

// VerifyDCAPAttestation checks a TDX quote and its report data and returns the
// measurements, keyed 0 for MRTD and 1-4 for RTMR0-3.
func VerifyDCAPAttestation(reportData [64]byte, report []byte) (map[int]string, error) {
	protoQuote, err := tdx_abi.QuoteToProto(report)
	if err != nil {
		return nil, fmt.Errorf("could not parse quote: %w", err)
	}

	v4Quote, ok := protoQuote.(*tdx_pb.QuoteV4)
	if !ok {
		return nil, fmt.Errorf("unsupported quote type: %T", protoQuote)
	}

	options := verify.DefaultOptions()
	err = verify.TdxQuote(protoQuote, options)
	if err != nil {
		return nil, fmt.Errorf("quote verification failed: %w", err)
	}

	if !bytes.Equal(v4Quote.TdQuoteBody.ReportData, reportData[:]) {
		return nil, fmt.Errorf("invalid report data %x, expected %x", v4Quote.TdQuoteBody.ReportData, reportData[:])
	}

	measurements := map[int]string{
		0: hex.EncodeToString(v4Quote.TdQuoteBody.MrTd),
		1: hex.EncodeToString(v4Quote.TdQuoteBody.Rtmrs[0]),
		2: hex.EncodeToString(v4Quote.TdQuoteBody.Rtmrs[1]),
		3: hex.EncodeToString(v4Quote.TdQuoteBody.Rtmrs[2]),
		4: hex.EncodeToString(v4Quote.TdQuoteBody.Rtmrs[3]),
	}

	return measurements, nil
}
