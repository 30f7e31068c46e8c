package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"marketdesk/config"
	"marketdesk/internal/connectivity"
	"marketdesk/internal/credstore"
	"marketdesk/internal/metrics"
	"marketdesk/internal/poller"
	"marketdesk/pkg/gatewayclient"
	"marketdesk/pkg/market"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type upstream struct {
	srv  *httptest.Server
	hits atomic.Int32
	last atomic.Value // *http.Request
}

func newUpstream(t *testing.T) *upstream {
	t.Helper()
	u := &upstream{}
	u.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u.hits.Add(1)
		u.last.Store(r.Clone(context.Background()))
		switch r.URL.Path {
		case "/v5/market/tickers":
			w.Write([]byte(`{"retCode":0,"retMsg":"OK","result":{"category":"linear","list":[{"symbol":"BTCUSDT","lastPrice":"43250.5"}]}}`))
		case "/v5/market/kline":
			w.Write([]byte(`{"retCode":0,"retMsg":"OK","result":{"list":[]}}`))
		case "/api/v3/ticker/24hr":
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"code":-1121,"msg":"Invalid symbol."}`))
		case "/api/v3/account":
			w.Write([]byte(`{"canTrade":true}`))
		case "/orders":
			w.Write([]byte(`[]`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(u.srv.Close)
	return u
}

func (u *upstream) lastRequest() *http.Request {
	r, _ := u.last.Load().(*http.Request)
	return r
}

func testRegistry(u *upstream) Registry {
	rest := config.RESTConfig{BaseURL: u.srv.URL, TestnetURL: u.srv.URL}
	return NewRegistry(config.ExchangesConfig{
		Timeout: 2 * time.Second,
		Binance: rest,
		Bybit:   config.BybitConfig{RESTConfig: rest, Category: "linear"},
		Dhan:    rest,
	})
}

type fixture struct {
	up     *upstream
	router *gin.Engine
	store  *credstore.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	up := newUpstream(t)
	reg := testRegistry(up)
	store := credstore.New(credstore.NewMemoryBackend(), "", nil)
	registry := prometheus.NewRegistry()

	srv := New(Options{
		Registry: reg,
		Store:    store,
		Tester:   connectivity.NewTester(store, reg.Probers(), nil, nil),
		Poller:   poller.New(reg.Adapters(nil), poller.Options{}),
		Metrics:  metrics.New(registry, false),
		Gatherer: registry,
	})
	return &fixture{up: up, router: srv.Router(), store: store}
}

func (f *fixture) do(method, path, body string) (*httptest.ResponseRecorder, gatewayclient.Envelope) {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	var env gatewayclient.Envelope
	_ = json.Unmarshal(w.Body.Bytes(), &env)
	return w, env
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	w, _ := f.do(http.MethodGet, "/health", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"OK","message":"Trading API Proxy Server is running"}`, w.Body.String())
	assert.NotEmpty(t, w.Header().Get(RequestIDHeaderKey))
}

func TestMissingCredentialsMakesNoCall(t *testing.T) {
	f := newFixture(t)

	w, env := f.do(http.MethodPost, "/api/binance/test", `{"apiKey":"","secretKey":"x"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.False(t, env.Success)
	assert.Equal(t, "Missing apiKey or secretKey", env.Error)

	_, env = f.do(http.MethodPost, "/api/bybit/test", ``)
	assert.Equal(t, "Missing apiKey or secretKey", env.Error)

	_, env = f.do(http.MethodPost, "/api/dhan/test", `{}`)
	assert.Equal(t, "Missing apiKey", env.Error)

	assert.Zero(t, f.up.hits.Load())
}

func TestBinanceTestIsSigned(t *testing.T) {
	f := newFixture(t)

	w, env := f.do(http.MethodPost, "/api/binance/test", `{"apiKey":"k","secretKey":"s","testnet":true}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, env.Success)
	assert.JSONEq(t, `{"canTrade":true}`, string(env.Data))

	r := f.up.lastRequest()
	require.NotNil(t, r)
	assert.Equal(t, "k", r.Header.Get("X-MBX-APIKEY"))
	assert.Len(t, r.URL.Query().Get("signature"), 64)
}

func TestDhanTestUsesAccessToken(t *testing.T) {
	f := newFixture(t)

	w, env := f.do(http.MethodPost, "/api/dhan/test", `{"apiKey":"token-1"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, env.Success)
	assert.Equal(t, "token-1", f.up.lastRequest().Header.Get("access-token"))
}

func TestPricesRelaysRawBody(t *testing.T) {
	f := newFixture(t)

	w, env := f.do(http.MethodGet, "/api/prices/bybit/BTCUSDT", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, env.Success)
	assert.Contains(t, string(env.Data), `"lastPrice":"43250.5"`)
	assert.Equal(t, "BTCUSDT", f.up.lastRequest().URL.Query().Get("symbol"))
}

func TestPricesRelaysUpstreamMessage(t *testing.T) {
	f := newFixture(t)

	w, env := f.do(http.MethodGet, "/api/prices/binance/NOPE", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.False(t, env.Success)
	assert.Equal(t, "Invalid symbol.", env.Error)
}

func TestKlinesMapsIntervalAndDefaultsLimit(t *testing.T) {
	f := newFixture(t)

	w, _ := f.do(http.MethodGet, "/api/klines/bybit/BTCUSDT/1h", "")
	require.Equal(t, http.StatusOK, w.Code)
	q := f.up.lastRequest().URL.Query()
	assert.Equal(t, "60", q.Get("interval"))
	assert.Equal(t, "100", q.Get("limit"))

	// unmapped intervals pass through
	f.do(http.MethodGet, "/api/klines/bybit/BTCUSDT/7?limit=5", "")
	q = f.up.lastRequest().URL.Query()
	assert.Equal(t, "7", q.Get("interval"))
	assert.Equal(t, "5", q.Get("limit"))

	w, env := f.do(http.MethodGet, "/api/klines/bybit/BTCUSDT/1h?limit=abc", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid limit", env.Error)
}

func TestUnsupportedExchange(t *testing.T) {
	f := newFixture(t)

	for _, path := range []string{"/api/prices/kraken/BTCUSD", "/api/prices/dhan/RELIANCE", "/api/symbols/dhan", "/api/klines/kraken/X/1h"} {
		w, env := f.do(http.MethodGet, path, "")
		assert.Equal(t, http.StatusBadRequest, w.Code, path)
		assert.Equal(t, "Unsupported exchange", env.Error, path)
	}
	assert.Zero(t, f.up.hits.Load())
}

type panicSource struct{}

func (panicSource) RawTicker(context.Context, string) (json.RawMessage, error) { panic("boom") }
func (panicSource) RawKlines(context.Context, string, string, int) (json.RawMessage, error) {
	panic("boom")
}
func (panicSource) RawInstruments(context.Context) (json.RawMessage, error) { panic("boom") }

func TestPanicBecomesEnvelope(t *testing.T) {
	srv := New(Options{Registry: Registry{market.Bybit: {ID: market.Bybit, Source: panicSource{}}}})
	req := httptest.NewRequest(http.MethodGet, "/api/prices/bybit/BTCUSDT", nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"success":false,"error":"Internal server error"}`, w.Body.String())
}

func TestConfigEndpoints(t *testing.T) {
	f := newFixture(t)

	w, env := f.do(http.MethodPut, "/api/config/binance", `{"apiKey":"abcdefgh","secretKey":"secret-1234"}`)
	require.Equal(t, http.StatusOK, w.Code)
	var cred credstore.Credential
	require.NoError(t, json.Unmarshal(env.Data, &cred))
	assert.Equal(t, "****efgh", cred.APIKey)

	// stored unmasked
	stored, err := f.store.Get(context.Background(), market.Binance)
	require.NoError(t, err)
	assert.Equal(t, "abcdefgh", stored.APIKey)

	w, env = f.do(http.MethodPost, "/api/config/binance/trading", `{"enabled":true}`)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.False(t, env.Success)

	w, env = f.do(http.MethodPost, "/api/config/bybit/test", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Missing apiKey or secretKey", env.Error)

	w, env = f.do(http.MethodPost, "/api/config/binance/test", "")
	require.Equal(t, http.StatusOK, w.Code)
	var out struct {
		Result connectivity.Result `json:"result"`
		Config credstore.Credential `json:"config"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &out))
	assert.True(t, out.Result.Success)
	assert.Equal(t, credstore.StatusConnected, out.Config.Status)
	assert.True(t, out.Config.Enabled)

	w, _ = f.do(http.MethodPost, "/api/config/binance/trading", `{"enabled":false}`)
	assert.Equal(t, http.StatusOK, w.Code)

	w, env = f.do(http.MethodGet, "/api/config", "")
	require.Equal(t, http.StatusOK, w.Code)
	var all credstore.Credentials
	require.NoError(t, json.Unmarshal(env.Data, &all))
	assert.Len(t, all, 3)
	assert.False(t, all[market.Binance].Enabled)

	w, env = f.do(http.MethodPut, "/api/config/kraken", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Unsupported exchange", env.Error)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)
	f.do(http.MethodGet, "/health", "")

	w, _ := f.do(http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `marketdesk_gateway_requests_total{route="/health",status="200"} 1`)
}

func TestMarketStreamPushesSnapshots(t *testing.T) {
	f := newFixture(t)
	srv := httptest.NewServer(f.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/market?exchange=dhan&symbol=RELIANCE&interval=1d&kind=chart"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var snap poller.Snapshot
	require.NoError(t, conn.ReadJSON(&snap))

	assert.Equal(t, poller.SourceSample, snap.Source)
	assert.Equal(t, "RELIANCE", snap.Subscription.Symbol)
	assert.Len(t, snap.Candles, poller.SampleLength)
}

func TestMarketStreamRejectsBadQuery(t *testing.T) {
	f := newFixture(t)

	w, env := f.do(http.MethodGet, "/ws/market?exchange=kraken&symbol=X", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Unsupported exchange", env.Error)

	w, _ = f.do(http.MethodGet, "/ws/market?exchange=bybit&symbol=BTCUSDT&every=10ms", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
