package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/ruteri/cdsi-client/interfaces"
)

// maxResponseSize bounds how much of a response body is read.
const maxResponseSize = 16 * 1024 * 1024

// errUnreachable marks failures that should move the route strategy on to the
// next route.
var errUnreachable = errors.New("endpoint unreachable")

// statusError is a non-200 response.
type statusError struct {
	StatusCode int
	Body       string
}

func (e *statusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("endpoint returned non-200 response: %d", e.StatusCode)
	}
	return fmt.Sprintf("endpoint returned error %d: %s", e.StatusCode, e.Body)
}

func (e *statusError) Unwrap() error {
	if e.StatusCode == http.StatusBadGateway || e.StatusCode == http.StatusServiceUnavailable || e.StatusCode == http.StatusGatewayTimeout {
		return errUnreachable
	}
	return nil
}

// doJSON sends in as a JSON body and decodes a 200 response into out.
func doJSON(ctx context.Context, client *http.Client, method, url string, auth *interfaces.ServiceAuth, in, out any) error {
	var body io.Reader
	if in != nil {
		encoded, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("could not encode request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("could not initialize request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth != nil && auth.Username != "" {
		req.SetBasicAuth(auth.Username, auth.Password)
	}

	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		return fmt.Errorf("%w: %w", errUnreachable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("could not read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return &statusError{StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(respBody))}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("could not parse response: %w", err)
	}
	return nil
}
