package binance

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
	httpClient *http.Client
}

func NewRESTClient(baseURL string, timeout time.Duration) *RESTClient {
	return &RESTClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// RawTicker returns the 24h rolling ticker for symbol.
func (c *RESTClient) RawTicker(ctx context.Context, symbol string) (json.RawMessage, error) {
	q := url.Values{"symbol": {symbol}}
	return c.get(ctx, "ticker", "/api/v3/ticker/24hr?"+q.Encode(), nil)
}

// RawKlines returns kline rows oldest first. interval is a Binance token.
func (c *RESTClient) RawKlines(ctx context.Context, symbol, interval string, limit int) (json.RawMessage, error) {
	q := url.Values{
		"symbol":   {symbol},
		"interval": {interval},
		"limit":    {strconv.Itoa(limit)},
	}
	return c.get(ctx, "klines", "/api/v3/klines?"+q.Encode(), nil)
}

// RawInstruments returns /api/v3/exchangeInfo.
func (c *RESTClient) RawInstruments(ctx context.Context) (json.RawMessage, error) {
	return c.get(ctx, "exchange info", "/api/v3/exchangeInfo", nil)
}

// Account performs the signed account call used as a credential check.
func (c *RESTClient) Account(ctx context.Context, creds market.Credentials) (json.RawMessage, error) {
	query := market.NewSigner(creds.SecretKey, "signature").Sign(nil)
	header := http.Header{"X-MBX-APIKEY": {creds.APIKey}}
	return c.get(ctx, "account", "/api/v3/account?"+query, header)
}

func (c *RESTClient) get(ctx context.Context, op, path string, header http.Header) (json.RawMessage, error) {
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

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &market.UpstreamError{Exchange: market.Binance, Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &market.UpstreamError{Exchange: market.Binance, Op: op, Status: resp.StatusCode, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e errorResponse
		_ = json.Unmarshal(body, &e)
		return nil, &market.UpstreamError{
			Exchange: market.Binance,
			Op:       op,
			Status:   resp.StatusCode,
			Message:  e.Msg,
			Err:      fmt.Errorf("binance error: %s", body),
		}
	}
	if !json.Valid(body) {
		return nil, market.Malformed(market.Binance, op, fmt.Errorf("invalid JSON body"))
	}

	return json.RawMessage(body), nil
}

// Prober checks Binance API keys against mainnet or the spot testnet.
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
	return client.Account(ctx, creds)
}
