package bybit

import (
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

type RESTClient struct {
	baseURL    string
	category   string
	httpClient *http.Client
}

func NewRESTClient(baseURL, category string, timeout time.Duration) *RESTClient {
	if category == "" {
		category = CategoryLinear
	}
	return &RESTClient{
		baseURL:    baseURL,
		category:   category,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// RawTicker returns the /v5/market/tickers payload for one symbol.
func (c *RESTClient) RawTicker(ctx context.Context, symbol string) (json.RawMessage, error) {
	q := url.Values{"category": {c.category}, "symbol": {symbol}}
	return c.get(ctx, "ticker", "/v5/market/tickers?"+q.Encode(), nil)
}

// RawKlines returns the /v5/market/kline payload. interval is a Bybit token.
func (c *RESTClient) RawKlines(ctx context.Context, symbol, interval string, limit int) (json.RawMessage, error) {
	q := url.Values{
		"category": {c.category},
		"symbol":   {symbol},
		"interval": {interval},
		"limit":    {strconv.Itoa(limit)},
	}
	return c.get(ctx, "klines", "/v5/market/kline?"+q.Encode(), nil)
}

// RawInstruments returns the instrument list for the configured category.
func (c *RESTClient) RawInstruments(ctx context.Context) (json.RawMessage, error) {
	q := url.Values{"category": {c.category}}
	return c.get(ctx, "instruments", "/v5/market/instruments-info?"+q.Encode(), nil)
}

// WalletBalance performs the signed wallet-balance call used as a credential check.
func (c *RESTClient) WalletBalance(ctx context.Context, creds market.Credentials) (json.RawMessage, error) {
	query := market.NewSigner(creds.SecretKey, "sign").Sign(url.Values{"api_key": {creds.APIKey}})
	return c.get(ctx, "wallet balance", "/v2/private/wallet/balance?"+query, nil)
}

func (c *RESTClient) get(ctx context.Context, op, path string, header http.Header) (json.RawMessage, error) {
	// Construct the GET request with context for timeout/cancel support
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	// Execute the HTTP request
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &market.UpstreamError{Exchange: market.Bybit, Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &market.UpstreamError{Exchange: market.Bybit, Op: op, Status: resp.StatusCode, Err: err}
	}

	var envelope BybitResponse
	decodeErr := json.Unmarshal(body, &envelope)

	// Check HTTP status code
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := ""
		if decodeErr == nil {
			msg = envelope.Message()
		}
		return nil, &market.UpstreamError{
			Exchange: market.Bybit,
			Op:       op,
			Status:   resp.StatusCode,
			Message:  msg,
			Err:      fmt.Errorf("bybit error: %s", body),
		}
	}
	if decodeErr != nil {
		return nil, market.Malformed(market.Bybit, op, decodeErr)
	}
	if envelope.Code() != 0 {
		return nil, &market.UpstreamError{
			Exchange: market.Bybit,
			Op:       op,
			Status:   resp.StatusCode,
			Message:  envelope.Message(),
			Err:      fmt.Errorf("bybit retCode %d", envelope.Code()),
		}
	}

	return json.RawMessage(body), nil
}

// Prober checks Bybit API keys against mainnet or testnet.
type Prober struct {
	mainnet *RESTClient
	testnet *RESTClient
}

func NewProber(mainnet, testnet *RESTClient) *Prober {
	return &Prober{mainnet: mainnet, testnet: testnet}
}

func (p *Prober) RequiresSecret() bool { return true }

func (p *Prober) TestCredentials(ctx context.Context, creds market.Credentials) (json.RawMessage, error) {
	if err := market.ValidateCredentials(p, creds); err != nil {
		return nil, err
	}
	client := p.mainnet
	if creds.Testnet {
		client = p.testnet
	}
	return client.WalletBalance(ctx, creds)
}
