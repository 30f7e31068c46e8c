package market

import (
	"time"

	"github.com/shopspring/decimal"
)

// ID identifies an exchange in URLs, config keys and subscriptions.
type ID string

const (
	Binance ID = "binance" // crypto spot
	Bybit   ID = "bybit"   // crypto derivatives
	Dhan    ID = "dhan"    // equities broker
)

// Exchanges lists every exchange the dashboard knows about, in display order.
var Exchanges = []ID{Binance, Bybit, Dhan}

// IsKnown reports whether id is one of Exchanges.
func (id ID) IsKnown() bool {
	for _, e := range Exchanges {
		if e == id {
			return true
		}
	}
	return false
}

// Ticker is the normalized 24h snapshot of one symbol.
// Change24hPercent is already multiplied by 100 (2.1 means +2.1%).
type Ticker struct {
	Exchange         ID              `json:"exchange"`
	Symbol           string          `json:"symbol"`
	Price            decimal.Decimal `json:"price"`
	Change24hPercent decimal.Decimal `json:"change24hPercent"`
	Volume24h        decimal.Decimal `json:"volume24h"`
	High24h          decimal.Decimal `json:"high24h"`
	Low24h           decimal.Decimal `json:"low24h"`
	ObservedAt       time.Time       `json:"observedAt"`
}

// Candle is one OHLCV bucket. Volume is in base units.
type Candle struct {
	OpenTime time.Time       `json:"openTime"`
	Open     decimal.Decimal `json:"open"`
	High     decimal.Decimal `json:"high"`
	Low      decimal.Decimal `json:"low"`
	Close    decimal.Decimal `json:"close"`
	Volume   decimal.Decimal `json:"volume"`
}

// Credentials are the caller-supplied secrets for a connectivity test.
// The gateway never stores them.
type Credentials struct {
	APIKey    string `json:"apiKey"`
	SecretKey string `json:"secretKey"`
	Testnet   bool   `json:"testnet"`
}
