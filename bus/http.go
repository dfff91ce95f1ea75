package bus

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hazyhaar/scrollguard/protocol"
)

// maxResponseBody caps what is read back from a remote daemon (1 MiB).
const maxResponseBody int64 = 1 << 20

// MessagePath is the HTTP route a daemon serves envelopes on; the message
// type is appended.
const MessagePath = "/api/messages/"

// HTTPOptions tunes the HTTP transport.
type HTTPOptions struct {
	// Timeout per call. Default: 10s.
	Timeout time.Duration
	// Client overrides the HTTP client (tests).
	Client *http.Client
}

// HTTPTransport returns a Handler that POSTs each envelope to
// baseURL + MessagePath + type and returns the response body. A 204 answer
// yields a nil response.
func HTTPTransport(baseURL string, opts HTTPOptions) (Handler, func(), error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("bus/http: parse endpoint: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, nil, fmt.Errorf("bus/http: unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, nil, fmt.Errorf("bus/http: endpoint %q has no host", baseURL)
	}
	base := strings.TrimRight(u.String(), "/")

	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}

	handler := func(ctx context.Context, env protocol.Envelope) (json.RawMessage, error) {
		body, err := env.Marshal()
		if err != nil {
			return nil, fmt.Errorf("bus/http: marshal: %w", err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+MessagePath+string(env.Type), bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("bus/http: create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("bus/http: do request: %w", err)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
		if err != nil {
			return nil, fmt.Errorf("bus/http: read response: %w", err)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, &ErrRemote{Type: env.Type, Status: resp.StatusCode, Body: strings.TrimSpace(string(data))}
		}
		if resp.StatusCode == http.StatusNoContent || len(data) == 0 {
			return nil, nil
		}
		return json.RawMessage(data), nil
	}

	return handler, client.CloseIdleConnections, nil
}
