package binance

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"marketdesk/pkg/market"
)

// Intervals: Binance uses the canonical tokens verbatim.
var Intervals = market.IdentityIntervals()

// Adapter normalizes Binance spot market data.
type Adapter struct {
	src market.RawSource
	now func() time.Time
}

func NewAdapter(src market.RawSource) *Adapter {
	return &Adapter{src: src, now: time.Now}
}

func (a *Adapter) Exchange() market.ID { return market.Binance }

func (a *Adapter) SupportsLive() bool { return true }

func (a *Adapter) MapInterval(i market.Interval) string { return Intervals.Map(i) }

func (a *Adapter) Ticker(ctx context.Context, symbol string) (market.Ticker, error) {
	if symbol == "" {
		return market.Ticker{}, market.ErrInvalidSymbol
	}
	raw, err := a.src.RawTicker(ctx, symbol)
	if err != nil {
		return market.Ticker{}, err
	}

	var t Ticker24h
	if err := json.Unmarshal(raw, &t); err != nil {
		return market.Ticker{}, market.Malformed(market.Binance, "ticker", err)
	}
	out, err := parseTicker(t)
	if err != nil {
		return market.Ticker{}, market.Malformed(market.Binance, "ticker", err)
	}
	out.ObservedAt = a.now()
	return out, nil
}

func (a *Adapter) Candles(ctx context.Context, symbol string, interval market.Interval, limit int) ([]market.Candle, error) {
	if limit <= 0 {
		return []market.Candle{}, nil
	}
	if symbol == "" {
		return nil, market.ErrInvalidSymbol
	}
	raw, err := a.src.RawKlines(ctx, symbol, a.MapInterval(interval), limit)
	if err != nil {
		return nil, err
	}
	candles, err := ParseKlines(raw)
	if err != nil {
		return nil, market.Malformed(market.Binance, "klines", err)
	}
	return candles, nil
}

func parseTicker(t Ticker24h) (market.Ticker, error) {
	price, err := market.ParseDecimal("lastPrice", t.LastPrice)
	if err != nil {
		return market.Ticker{}, err
	}
	change, err := market.ParseDecimal("priceChangePercent", t.PriceChangePercent)
	if err != nil {
		return market.Ticker{}, err
	}
	volume, err := market.ParseDecimal("volume", t.Volume)
	if err != nil {
		return market.Ticker{}, err
	}
	high, err := market.ParseDecimal("highPrice", t.HighPrice)
	if err != nil {
		return market.Ticker{}, err
	}
	low, err := market.ParseDecimal("lowPrice", t.LowPrice)
	if err != nil {
		return market.Ticker{}, err
	}
	return market.Ticker{
		Exchange:         market.Binance,
		Symbol:           t.Symbol,
		Price:            price,
		Change24hPercent: change,
		Volume24h:        volume,
		High24h:          high,
		Low24h:           low,
	}, nil
}

// ParseKlines decodes Binance kline rows:
// [openTime(ms), "open", "high", "low", "close", "volume", closeTime, ...].
func ParseKlines(raw json.RawMessage) ([]market.Candle, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var rows [][]interface{}
	if err := dec.Decode(&rows); err != nil {
		return nil, err
	}

	out := make([]market.Candle, 0, len(rows))
	for i, row := range rows {
		if len(row) < 6 {
			return nil, fmt.Errorf("row %d: expected at least 6 fields, got %d", i, len(row))
		}
		openTime, ok := row[0].(json.Number)
		if !ok {
			return nil, fmt.Errorf("row %d: open time is %T", i, row[0])
		}
		ms, err := openTime.Int64()
		if err != nil {
			return nil, fmt.Errorf("row %d open time: %w", i, err)
		}

		var vals [5]string
		for j := range vals {
			s, ok := row[j+1].(string)
			if !ok {
				return nil, fmt.Errorf("row %d field %d is %T", i, j+1, row[j+1])
			}
			vals[j] = s
		}
		open, err := market.ParseDecimal("open", vals[0])
		if err != nil {
			return nil, err
		}
		high, err := market.ParseDecimal("high", vals[1])
		if err != nil {
			return nil, err
		}
		low, err := market.ParseDecimal("low", vals[2])
		if err != nil {
			return nil, err
		}
		closeVal, err := market.ParseDecimal("close", vals[3])
		if err != nil {
			return nil, err
		}
		volume, err := market.ParseDecimal("volume", vals[4])
		if err != nil {
			return nil, err
		}

		out = append(out, market.Candle{
			OpenTime: time.UnixMilli(ms).UTC(),
			Open:     open,
			High:     high,
			Low:      low,
			Close:    closeVal,
			Volume:   volume,
		})
	}
	return out, nil
}
