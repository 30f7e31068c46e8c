// Package gatewayclient reaches exchanges through the proxy gateway instead
// of calling them directly. It implements market.RawSource so the regular
// adapters can run unchanged behind it.
package gatewayclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"marketdesk/pkg/market"
)

// Envelope is the gateway's response wrapper.
type Envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// Client talks to one exchange through the gateway.
type Client struct {
	baseURL    string
	exchange   market.ID
	httpClient *http.Client
}

func New(baseURL string, exchange market.ID, timeout time.Duration) *Client {
	return &Client{
		baseURL:    baseURL,
		exchange:   exchange,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *Client) RawTicker(ctx context.Context, symbol string) (json.RawMessage, error) {
	path := fmt.Sprintf("/api/prices/%s/%s", c.exchange, url.PathEscape(symbol))
	return c.do(ctx, "ticker", http.MethodGet, path, nil)
}

func (c *Client) RawKlines(ctx context.Context, symbol, interval string, limit int) (json.RawMessage, error) {
	path := fmt.Sprintf("/api/klines/%s/%s/%s?limit=%s",
		c.exchange, url.PathEscape(symbol), url.PathEscape(interval), strconv.Itoa(limit))
	return c.do(ctx, "klines", http.MethodGet, path, nil)
}

func (c *Client) RawInstruments(ctx context.Context) (json.RawMessage, error) {
	return c.do(ctx, "symbols", http.MethodGet, fmt.Sprintf("/api/symbols/%s", c.exchange), nil)
}

// RequiresSecret mirrors the gateway rule: only dhan is token-only.
func (c *Client) RequiresSecret() bool { return c.exchange != market.Dhan }

// TestCredentials runs the gateway's connectivity test for this exchange.
func (c *Client) TestCredentials(ctx context.Context, creds market.Credentials) (json.RawMessage, error) {
	if err := market.ValidateCredentials(c, creds); err != nil {
		return nil, err
	}
	body, err := json.Marshal(creds)
	if err != nil {
		return nil, fmt.Errorf("encoding credentials: %w", err)
	}
	return c.do(ctx, "test", http.MethodPost, fmt.Sprintf("/api/%s/test", c.exchange), body)
}

// Health calls /health and reports whether the gateway answered OK.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", market.ErrProxyUnreachable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: health status %d", market.ErrProxyUnreachable, resp.StatusCode)
	}
	return nil
}

func (c *Client) do(ctx context.Context, op, method, path string, payload []byte) (json.RawMessage, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %v", market.ErrProxyUnreachable, c.exchange, op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading body: %v", market.ErrProxyUnreachable, err)
	}

	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, market.Malformed(c.exchange, op, err)
	}
	if !env.Success {
		msg := env.Error
		if msg == "" {
			msg = "gateway request failed"
		}
		return nil, &market.UpstreamError{
			Exchange: c.exchange,
			Op:       op,
			Status:   resp.StatusCode,
			Message:  msg,
		}
	}
	if len(env.Data) == 0 {
		return nil, market.Malformed(c.exchange, op, fmt.Errorf("empty data"))
	}
	return env.Data, nil
}
