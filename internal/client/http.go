// Package client holds the HTTP clients the BTM uses to reach the
// identity service, the Core registry and peer bartering engines.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Cheertaboi/bartering-trading-manager/internal/models"
)

const defaultTimeout = 10 * time.Second

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &http.Client{Timeout: timeout}
}

func normalizeBase(raw string) string {
	base := strings.TrimRight(strings.TrimSpace(raw), "/")
	if base != "" && !strings.Contains(base, "://") {
		base = "http://" + base
	}
	return base
}

// call sends in as JSON (when non-nil) and decodes the response into out.
// Error bodies carrying a known code map back to the matching sentinel;
// any other transport failure or 5xx becomes ErrCommunication.
func call(ctx context.Context, hc *http.Client, component, method, url string, hdr http.Header, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: encode: %w", component, err)
		}
		body = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("%w: %s: request: %v", models.ErrCommunication, component, err)
	}
	for k, vs := range hdr {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: call: %v", models.ErrCommunication, component, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(component, resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %s: decode: %v", models.ErrCommunication, component, err)
	}
	return nil
}

func decodeError(component string, resp *http.Response) error {
	var payload models.ErrorResponse
	_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&payload)

	if payload.Error != "" && payload.Error != "internal_error" {
		return fmt.Errorf("%s: %w", component, models.ErrorFromCode(payload.Error, payload.Detail))
	}
	if resp.StatusCode >= 500 {
		return fmt.Errorf("%w: %s: status %d %s", models.ErrCommunication, component, resp.StatusCode, payload.Detail)
	}
	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s: %s", models.ErrNotFound, component, resp.Request.URL.Path)
	}
	return fmt.Errorf("%w: %s: unexpected status %d", models.ErrCommunication, component, resp.StatusCode)
}
