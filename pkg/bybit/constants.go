package bybit

import "marketdesk/pkg/market"

const (
	BaseURLMainnet = "https://api.bybit.com"
	BaseURLTestnet = "https://api-testnet.bybit.com"

	// CategoryLinear is the USDT perpetual market, the default for this exchange.
	CategoryLinear = "linear"
	CategorySpot   = "spot"
)

// KlineInterval is the interval token used in Bybit API requests.
type KlineInterval string

const (
	Interval1Min    KlineInterval = "1"
	Interval3Min    KlineInterval = "3"
	Interval5Min    KlineInterval = "5"
	Interval15Min   KlineInterval = "15"
	Interval30Min   KlineInterval = "30"
	Interval60Min   KlineInterval = "60"
	Interval120Min  KlineInterval = "120"
	Interval240Min  KlineInterval = "240"
	Interval360Min  KlineInterval = "360"
	Interval720Min  KlineInterval = "720"
	IntervalDaily   KlineInterval = "D"
	IntervalWeekly  KlineInterval = "W"
	IntervalMonthly KlineInterval = "M"
)

// Intervals maps canonical intervals to Bybit tokens (minutes, or D/W/M).
var Intervals = market.IntervalMap{
	market.Interval1m:  string(Interval1Min),
	market.Interval3m:  string(Interval3Min),
	market.Interval5m:  string(Interval5Min),
	market.Interval15m: string(Interval15Min),
	market.Interval30m: string(Interval30Min),
	market.Interval1h:  string(Interval60Min),
	market.Interval2h:  string(Interval120Min),
	market.Interval4h:  string(Interval240Min),
	market.Interval6h:  string(Interval360Min),
	market.Interval12h: string(Interval720Min),
	market.Interval1d:  string(IntervalDaily),
	market.Interval1w:  string(IntervalWeekly),
	market.Interval1M:  string(IntervalMonthly),
}
