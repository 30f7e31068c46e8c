package market

import (
	"context"
	"encoding/json"
)

// Adapter turns logical market-data requests into exchange calls and
// normalizes the responses. Adapters never retry.
type Adapter interface {
	Exchange() ID
	Ticker(ctx context.Context, symbol string) (Ticker, error)
	// Candles returns at most limit candles ascending by OpenTime.
	// A limit <= 0 yields an empty slice without a network call.
	Candles(ctx context.Context, symbol string, interval Interval, limit int) ([]Candle, error)
	MapInterval(interval Interval) string
	// SupportsLive is false for exchanges without public market data wired up.
	SupportsLive() bool
}

// RawSource returns upstream payloads untouched. interval is already the
// exchange-specific token.
type RawSource interface {
	RawTicker(ctx context.Context, symbol string) (json.RawMessage, error)
	RawKlines(ctx context.Context, symbol, interval string, limit int) (json.RawMessage, error)
	RawInstruments(ctx context.Context) (json.RawMessage, error)
}

// CredentialProber runs an authenticated no-op call to prove a key works.
type CredentialProber interface {
	TestCredentials(ctx context.Context, creds Credentials) (json.RawMessage, error)
	// RequiresSecret is false for token-only brokers.
	RequiresSecret() bool
}

// ValidateCredentials applies the missing-field rule shared by every prober.
func ValidateCredentials(p CredentialProber, creds Credentials) error {
	if creds.APIKey == "" || (p.RequiresSecret() && creds.SecretKey == "") {
		return ErrMissingCredentials
	}
	return nil
}
