// Package transport carries pending operations to the remote service.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	apperrors "github.com/kimhsiao/opsync/internal/errors"
)

// Result is the classified outcome of one dispatch.
type Result struct {
	OK         bool
	Conflict   bool
	Remote     json.RawMessage // remote snapshot, set when Conflict
	StatusCode int
}

// Dispatcher sends one mutation to the remote service. A returned error
// means the attempt failed in a way the caller should count as transient
// (network failure, timeout, server error).
type Dispatcher interface {
	Dispatch(ctx context.Context, method, endpoint string, payload json.RawMessage) (*Result, error)
}

// TokenProvider supplies auth material for outgoing requests. The engine
// treats the material as opaque header values.
type TokenProvider interface {
	AuthHeaders(ctx context.Context) (map[string]string, error)
}

// StaticToken is a TokenProvider holding a fixed bearer token.
type StaticToken string

// AuthHeaders returns the Authorization header for the fixed token.
func (t StaticToken) AuthHeaders(ctx context.Context) (map[string]string, error) {
	if t == "" {
		return nil, nil
	}
	return map[string]string{"Authorization": "Bearer " + string(t)}, nil
}

// HTTPDispatcher implements Dispatcher over HTTP. A 409 response is a
// declared version conflict and carries the remote snapshot in its body.
type HTTPDispatcher struct {
	BaseURL string
	Tokens  TokenProvider
	HTTP    *http.Client
}

// NewHTTPDispatcher creates an HTTPDispatcher with a bounded per-request
// timeout.
func NewHTTPDispatcher(baseURL string, tokens TokenProvider, timeout time.Duration) *HTTPDispatcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPDispatcher{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Tokens:  tokens,
		HTTP:    &http.Client{Timeout: timeout},
	}
}

// Dispatch sends the payload and classifies the response.
func (d *HTTPDispatcher) Dispatch(ctx context.Context, method, endpoint string, payload json.RawMessage) (*Result, error) {
	url := d.BaseURL + "/" + strings.TrimLeft(endpoint, "/")

	var body io.Reader
	if len(payload) > 0 {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDispatchFailed, "failed to build request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if d.Tokens != nil {
		headers, err := d.Tokens.AuthHeaders(ctx)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrAuthFailed, "failed to obtain auth headers", err)
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}
	}

	resp, err := d.HTTP.Do(req)
	if err != nil {
		// Timeouts and network failures both count as transient.
		return nil, apperrors.Wrap(apperrors.ErrDispatchFailed, "request failed", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return &Result{OK: true, StatusCode: resp.StatusCode}, nil

	case resp.StatusCode == http.StatusConflict:
		snapshot, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrDispatchFailed, "failed to read conflict body", err)
		}
		return &Result{Conflict: true, Remote: snapshot, StatusCode: resp.StatusCode}, nil

	default:
		return nil, apperrors.New(apperrors.ErrDispatchFailed,
			fmt.Sprintf("remote returned status %d", resp.StatusCode))
	}
}
