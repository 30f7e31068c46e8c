package dhan

import (
	"context"

	"marketdesk/pkg/market"
)

// Intervals are the chart resolutions Dhan offers.
var Intervals = market.IntervalMap{
	market.Interval1m:  "1",
	market.Interval5m:  "5",
	market.Interval15m: "15",
	market.Interval1h:  "60",
	market.Interval1d:  "D",
}

// Adapter exists so dhan subscriptions resolve like any other exchange; it
// reports no live support and the poller serves sample data instead.
type Adapter struct{}

func NewAdapter() *Adapter { return &Adapter{} }

func (a *Adapter) Exchange() market.ID { return market.Dhan }

func (a *Adapter) SupportsLive() bool { return false }

func (a *Adapter) MapInterval(i market.Interval) string { return Intervals.Map(i) }

func (a *Adapter) Ticker(ctx context.Context, symbol string) (market.Ticker, error) {
	return market.Ticker{}, market.ErrLiveUnsupported
}

func (a *Adapter) Candles(ctx context.Context, symbol string, interval market.Interval, limit int) ([]market.Candle, error) {
	if limit <= 0 {
		return []market.Candle{}, nil
	}
	return nil, market.ErrLiveUnsupported
}
