package gatewayclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"marketdesk/pkg/bybit"
	"marketdesk/pkg/market"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRawTickerUnwrapsData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/prices/bybit/BTCUSDT", r.URL.Path)
		w.Write([]byte(`{"success":true,"data":{"retCode":0,"result":{"list":[{"symbol":"BTCUSDT","lastPrice":"43250.5","price24hPcnt":"0.021","volume24h":"12345.67","highPrice24h":"44000","lowPrice24h":"42000"}]}}}`))
	}))
	defer srv.Close()

	// adapter runs unchanged on top of the gateway source
	a := bybit.NewAdapter(New(srv.URL, market.Bybit, time.Second))
	got, err := a.Ticker(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("43250.5").Equal(got.Price))
	assert.True(t, decimal.RequireFromString("2.1").Equal(got.Change24hPercent))
}

func TestRawKlinesPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/klines/binance/ETHUSDT/1h", r.URL.Path)
		assert.Equal(t, "50", r.URL.Query().Get("limit"))
		w.Write([]byte(`{"success":true,"data":[]}`))
	}))
	defer srv.Close()

	raw, err := New(srv.URL, market.Binance, time.Second).RawKlines(context.Background(), "ETHUSDT", "1h", 50)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(raw))
}

func TestFailureEnvelopeCarriesMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"success":false,"error":"Invalid symbol."}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL, market.Binance, time.Second).RawTicker(context.Background(), "NOPE")
	require.Error(t, err)
	assert.True(t, errors.Is(err, market.ErrUpstreamUnavailable))
	assert.False(t, errors.Is(err, market.ErrProxyUnreachable))
	assert.Equal(t, "Invalid symbol.", market.Message(err))
}

func TestUnreachableGateway(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := srv.URL
	srv.Close()

	c := New(addr, market.Bybit, time.Second)
	_, err := c.RawInstruments(context.Background())
	assert.True(t, errors.Is(err, market.ErrProxyUnreachable))
	assert.True(t, errors.Is(c.Health(context.Background()), market.ErrProxyUnreachable))
}

func TestNonJSONIsMalformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("<html>bad gateway</html>"))
	}))
	defer srv.Close()

	_, err := New(srv.URL, market.Bybit, time.Second).RawTicker(context.Background(), "BTCUSDT")
	assert.True(t, errors.Is(err, market.ErrMalformedResponse))
}

func TestTestCredentialsPostsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/dhan/test", r.URL.Path)
		var creds market.Credentials
		require.NoError(t, json.NewDecoder(r.Body).Decode(&creds))
		assert.Equal(t, "tok", creds.APIKey)
		w.Write([]byte(`{"success":true,"data":[]}`))
	}))
	defer srv.Close()

	c := New(srv.URL, market.Dhan, time.Second)
	_, err := c.TestCredentials(context.Background(), market.Credentials{APIKey: "tok"})
	require.NoError(t, err)

	_, err = New(srv.URL, market.Binance, time.Second).TestCredentials(context.Background(), market.Credentials{APIKey: "k"})
	assert.True(t, errors.Is(err, market.ErrMissingCredentials))
}

func TestHealthOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		w.Write([]byte(`{"status":"OK","message":"Trading API Proxy Server is running"}`))
	}))
	defer srv.Close()

	assert.NoError(t, New(srv.URL, market.Bybit, time.Second).Health(context.Background()))
}
