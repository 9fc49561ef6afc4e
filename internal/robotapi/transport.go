package robotapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Default transport settings.
const (
	DefaultTimeout         = 10 * time.Second
	DefaultConnectTimeout  = 5 * time.Second
	DefaultKeepAlive       = 30 * time.Second
	DefaultIdleConnTimeout = 90 * time.Second

	// maxErrorBody bounds how much of an error response is kept in messages.
	maxErrorBody = 4 << 10
)

// RequestIDHeader carries an identifier that stays the same across retries
// of one logical call.
const RequestIDHeader = "X-Request-Id"

// NewHTTPClient creates an HTTP client with the given overall timeout. The
// timeout is the only bound on a hung call.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   DefaultConnectTimeout,
				KeepAlive: DefaultKeepAlive,
			}).DialContext,
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   10,
			IdleConnTimeout:       DefaultIdleConnTimeout,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}
}

// HTTPError represents a non-2xx response.
type HTTPError struct {
	StatusCode int
	Body       string
}

// Error renders "HTTP <code>: <body or status text>".
func (e *HTTPError) Error() string {
	detail := e.Body
	if detail == "" {
		detail = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, detail)
}

// call describes one HTTP exchange.
type call struct {
	method    string
	path      string
	body      any // nil: no request body
	out       any // nil: response body is drained and ignored
	requestID string
}

func newCall(method, path string, body, out any) call {
	return call{method: method, path: path, body: body, out: out, requestID: uuid.NewString()}
}

// do performs a single attempt. Retrying is the caller's concern.
func (c *Client) do(ctx context.Context, cl call) error {
	var reader io.Reader
	if cl.body != nil {
		data, err := json.Marshal(cl.body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, cl.method, c.baseURL+cl.path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if cl.method != http.MethodGet {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(RequestIDHeader, cl.requestID)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &HTTPError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(text))}
	}

	if cl.out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(cl.out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
