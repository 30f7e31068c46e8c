package binance

const (
	BaseURLMainnet = "https://api.binance.com"
	BaseURLTestnet = "https://testnet.binance.vision"
)

// Ticker24h is the /api/v3/ticker/24hr payload. Numbers arrive as strings and
// priceChangePercent is already a percentage.
type Ticker24h struct {
	Symbol             string `json:"symbol"`
	LastPrice          string `json:"lastPrice"`
	PriceChangePercent string `json:"priceChangePercent"`
	Volume             string `json:"volume"`
	QuoteVolume        string `json:"quoteVolume"`
	HighPrice          string `json:"highPrice"`
	LowPrice           string `json:"lowPrice"`
}

// errorResponse is Binance's error body, e.g. {"code":-2015,"msg":"Invalid API-key"}.
type errorResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}
