package dhan

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"marketdesk/pkg/market"
)

const BaseURL = "https://api.dhan.co"

// errorResponse covers both shapes Dhan uses for failures.
type errorResponse struct {
	Message      string `json:"message"`
	ErrorMessage string `json:"errorMessage"`
}

// RESTClient talks to the Dhan trading API. Only the token check is wired;
// Dhan has no public market-data endpoint in this system.
type RESTClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewRESTClient(baseURL string, timeout time.Duration) *RESTClient {
	return &RESTClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Orders lists today's orders; used to prove the access token works.
func (c *RESTClient) Orders(ctx context.Context, accessToken string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/orders", nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("access-token", accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &market.UpstreamError{Exchange: market.Dhan, Op: "orders", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &market.UpstreamError{Exchange: market.Dhan, Op: "orders", Status: resp.StatusCode, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e errorResponse
		_ = json.Unmarshal(body, &e)
		msg := e.Message
		if msg == "" {
			msg = e.ErrorMessage
		}
		return nil, &market.UpstreamError{
			Exchange: market.Dhan,
			Op:       "orders",
			Status:   resp.StatusCode,
			Message:  msg,
			Err:      fmt.Errorf("dhan error: %s", body),
		}
	}
	if !json.Valid(body) {
		return nil, market.Malformed(market.Dhan, "orders", fmt.Errorf("invalid JSON body"))
	}
	return json.RawMessage(body), nil
}

// Prober checks a Dhan access token. Dhan has no separate secret.
type Prober struct {
	client *RESTClient
}

func NewProber(client *RESTClient) *Prober {
	return &Prober{client: client}
}

func (p *Prober) RequiresSecret() bool { return false }

func (p *Prober) TestCredentials(ctx context.Context, creds market.Credentials) (json.RawMessage, error) {
	if err := market.ValidateCredentials(p, creds); err != nil {
		return nil, err
	}
	return p.client.Orders(ctx, creds.APIKey)
}
