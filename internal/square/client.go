// Package square is a thin client for the Square Connect v2 REST API.
package square

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rcourtman/paybridge/internal/config"
	internalerrors "github.com/rcourtman/paybridge/internal/errors"
	"github.com/rcourtman/paybridge/internal/metrics"
	"github.com/rs/zerolog/log"
)

const (
	requestTimeout  = 30 * time.Second
	maxResponseBody = 4 << 20
)

// CredentialSource yields the credentials for the active mode.
// It is consulted on every request so a sandbox/production switch takes effect immediately.
type CredentialSource interface {
	Active() config.Credentials
}

// Client performs authenticated JSON calls against the gateway.
type Client struct {
	creds CredentialSource
	http  *http.Client
}

type Option func(*Client)

// WithHTTPClient replaces the default transport (tests use this with httptest).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func NewClient(creds CredentialSource, opts ...Option) *Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = dialContext

	c := &Client{
		creds: creds,
		http: &http.Client{
			Timeout:   requestTimeout,
			Transport: transport,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// LocationID returns the location id for the active mode.
func (c *Client) LocationID() string {
	return c.creds.Active().LocationID
}

// Request issues method against path with body encoded as JSON and returns the decoded response body.
// Non-2xx responses become protocol errors carrying the gateway's error list. There is no retry.
func (c *Client) Request(ctx context.Context, method, path string, body any) (json.RawMessage, error) {
	return c.do(ctx, "raw", method, path, body)
}

func (c *Client) do(ctx context.Context, endpoint, method, path string, body any) (json.RawMessage, error) {
	creds := c.creds.Active()
	if strings.TrimSpace(creds.AccessToken) == "" {
		return nil, internalerrors.Configuration(endpoint, "no %s access token configured", creds.Mode())
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode %s request: %w", endpoint, err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, creds.APIBaseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", endpoint, err)
	}
	req.Header.Set("Authorization", "Bearer "+creds.AccessToken)
	req.Header.Set("Square-Version", creds.APIVersion)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	metrics.GatewayRequestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.GatewayRequestsTotal.WithLabelValues(endpoint, "transport_error").Inc()
		return nil, internalerrors.Transport(endpoint, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		metrics.GatewayRequestsTotal.WithLabelValues(endpoint, "transport_error").Inc()
		return nil, internalerrors.Transport(endpoint, err)
	}

	log.Debug().
		Str("endpoint", endpoint).
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Str("mode", creds.Mode()).
		Msg("Gateway request completed")

	if len(bytes.TrimSpace(raw)) == 0 || !json.Valid(raw) {
		metrics.GatewayRequestsTotal.WithLabelValues(endpoint, "decode_error").Inc()
		return nil, internalerrors.New(internalerrors.ErrorTypeDecode, endpoint,
			fmt.Errorf("response body is not valid JSON (%d bytes)", len(raw))).WithStatusCode(resp.StatusCode)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var envelope struct {
			Errors []internalerrors.GatewayDetail `json:"errors"`
		}
		_ = json.Unmarshal(raw, &envelope)
		metrics.GatewayRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()
		return nil, internalerrors.Protocol(endpoint, resp.StatusCode, envelope.Errors)
	}

	metrics.GatewayRequestsTotal.WithLabelValues(endpoint, "ok").Inc()
	return raw, nil
}

// call is do followed by decoding into out.
func (c *Client) call(ctx context.Context, endpoint, method, path string, body, out any) error {
	raw, err := c.do(ctx, endpoint, method, path, body)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return internalerrors.Decode(endpoint, err)
	}
	return nil
}
