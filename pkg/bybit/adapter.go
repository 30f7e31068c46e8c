package bybit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"time"

	"marketdesk/pkg/market"
)

// Adapter normalizes Bybit v5 market data.
type Adapter struct {
	src market.RawSource
	now func() time.Time
}

// NewAdapter reads through src, usually a *RESTClient or a gateway client.
func NewAdapter(src market.RawSource) *Adapter {
	return &Adapter{src: src, now: time.Now}
}

func (a *Adapter) Exchange() market.ID { return market.Bybit }

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

	var result TickerListResponse
	if err := json.Unmarshal(unwrapResult(raw), &result); err != nil {
		return market.Ticker{}, market.Malformed(market.Bybit, "ticker", err)
	}
	if len(result.List) == 0 {
		return market.Ticker{}, market.Malformed(market.Bybit, "ticker", fmt.Errorf("empty ticker list for %s", symbol))
	}

	t, err := parseTicker(result.List[0])
	if err != nil {
		return market.Ticker{}, market.Malformed(market.Bybit, "ticker", err)
	}
	t.ObservedAt = a.now()
	return t, nil
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

	var result KlinesResponse
	if err := json.Unmarshal(unwrapResult(raw), &result); err != nil {
		return nil, market.Malformed(market.Bybit, "klines", err)
	}
	candles, err := ParseKlineList(result.List)
	if err != nil {
		return nil, market.Malformed(market.Bybit, "klines", err)
	}
	return candles, nil
}

func parseTicker(info TickerInfo) (market.Ticker, error) {
	price, err := market.ParseDecimal("lastPrice", info.LastPrice)
	if err != nil {
		return market.Ticker{}, err
	}
	pcnt, err := market.ParseDecimal("price24hPcnt", info.Price24hPcnt)
	if err != nil {
		return market.Ticker{}, err
	}
	volume, err := market.ParseDecimal("volume24h", info.Volume24h)
	if err != nil {
		return market.Ticker{}, err
	}
	high, err := market.ParseDecimal("highPrice24h", info.HighPrice24h)
	if err != nil {
		return market.Ticker{}, err
	}
	low, err := market.ParseDecimal("lowPrice24h", info.LowPrice24h)
	if err != nil {
		return market.Ticker{}, err
	}
	return market.Ticker{
		Exchange:         market.Bybit,
		Symbol:           info.Symbol,
		Price:            price,
		Change24hPercent: pcnt.Mul(market.Hundred),
		Volume24h:        volume,
		High24h:          high,
		Low24h:           low,
	}, nil
}

// ParseKlineList converts Bybit REST kline rows to candles ascending by open time.
// Bybit returns rows newest first.
func ParseKlineList(raw [][]string) ([]market.Candle, error) {
	out := make([]market.Candle, 0, len(raw))

	for i, row := range raw {
		if len(row) < 6 {
			return nil, fmt.Errorf("row %d: expected at least 6 fields, got %d", i, len(row))
		}
		start, err := strconv.ParseInt(row[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("row %d start: %w", i, err)
		}
		open, err := market.ParseDecimal("open", row[1])
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		high, err := market.ParseDecimal("high", row[2])
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		low, err := market.ParseDecimal("low", row[3])
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		closeVal, err := market.ParseDecimal("close", row[4])
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		volume, err := market.ParseDecimal("volume", row[5])
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}

		out = append(out, market.Candle{
			OpenTime: time.UnixMilli(start).UTC(),
			Open:     open,
			High:     high,
			Low:      low,
			Close:    closeVal,
			Volume:   volume,
		})
	}

	slices.Reverse(out)
	return out, nil
}

// unwrapResult returns the "result" member of a v5 envelope, or raw itself
// when the payload is already the bare result object.
func unwrapResult(raw json.RawMessage) json.RawMessage {
	var envelope BybitResponse
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return raw
	}
	if len(envelope.Result) == 0 || bytes.Equal(envelope.Result, []byte("null")) {
		return raw
	}
	return envelope.Result
}
