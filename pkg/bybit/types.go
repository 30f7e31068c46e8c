package bybit

import "encoding/json"

// BybitResponse represents a generic response from Bybit's REST API.
// V5 endpoints use camelCase fields, the legacy v2 private endpoints use
// snake_case; both are decoded so either can be checked.
type BybitResponse struct {
	RetCode    int                    `json:"retCode"`    // 0 means success; non-zero indicates an error code
	RetMsg     string                 `json:"retMsg"`     // Human-readable message describing the result or error
	Result     json.RawMessage        `json:"result"`     // Delay decoding // Main response payload (varies per endpoint)
	RetExtInfo map[string]interface{} `json:"retExtInfo"` // Optional extra info (e.g. rate limits, error hints)
	Time       int64                  `json:"time"`       // Server timestamp (in milliseconds since epoch)

	LegacyRetCode int    `json:"ret_code"`
	LegacyRetMsg  string `json:"ret_msg"`
}

// Code returns the non-zero error code from either envelope style.
func (r *BybitResponse) Code() int {
	if r.RetCode != 0 {
		return r.RetCode
	}
	return r.LegacyRetCode
}

// Message returns the error message from either envelope style.
func (r *BybitResponse) Message() string {
	if r.RetMsg != "" {
		return r.RetMsg
	}
	return r.LegacyRetMsg
}

type InstrumentListResponse struct {
	Category       string `json:"category"` // e.g., "linear", "spot"
	NextPageCursor string `json:"nextPageCursor"`
	List           []struct {
		Symbol    string `json:"symbol"`    // e.g., "BTCUSDT"
		BaseCoin  string `json:"baseCoin"`  // e.g., "BTC"
		QuoteCoin string `json:"quoteCoin"` // e.g., "USDT"
		Status    string `json:"status"`
	} `json:"list"`
}

type TickerListResponse struct {
	Category string       `json:"category"`
	List     []TickerInfo `json:"list"`
}

// TickerInfo is one entry of /v5/market/tickers. Every number is a string.
type TickerInfo struct {
	Symbol       string `json:"symbol"`
	LastPrice    string `json:"lastPrice"`
	Price24hPcnt string `json:"price24hPcnt"` // fraction: 0.021 means +2.1%
	Volume24h    string `json:"volume24h"`
	Turnover24h  string `json:"turnover24h"`
	HighPrice24h string `json:"highPrice24h"`
	LowPrice24h  string `json:"lowPrice24h"`
}

// KlinesResponse rows are [start, open, high, low, close, volume, turnover],
// newest first.
type KlinesResponse struct {
	Category       string     `json:"category"` // e.g., "linear", "spot"
	Symbol         string     `json:"symbol"`
	NextPageCursor string     `json:"nextPageCursor"`
	List           [][]string `json:"list"`
}
