package poller

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"marketdesk/pkg/market"

	"github.com/shopspring/decimal"
)

// SampleLength is the number of candles in a generated sample series.
const SampleLength = 101

type sampleProfile struct {
	basePrice  float64
	volatility float64
	volumeMin  float64
	volumeSpan float64
}

var (
	equityProfile = sampleProfile{basePrice: 2500, volatility: 0.015, volumeMin: 25000, volumeSpan: 50000}
	cryptoProfile = sampleProfile{basePrice: 43000, volatility: 0.02, volumeMin: 500000, volumeSpan: 1000000}
)

func profileFor(id market.ID) sampleProfile {
	if id == market.Dhan {
		return equityProfile
	}
	return cryptoProfile
}

// Generator produces random-walk OHLCV series for display when no live data
// is available.
type Generator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func NewGenerator(rng *rand.Rand) *Generator {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Generator{rng: rng}
}

// Series returns SampleLength candles spaced by interval, the last one
// opening at end truncated to the interval.
func (g *Generator) Series(id market.ID, interval market.Interval, end time.Time) []market.Candle {
	g.mu.Lock()
	defer g.mu.Unlock()

	step := interval.Duration()
	if step == 0 {
		step = time.Hour
	}
	end = end.Truncate(step).UTC()
	p := profileFor(id)

	price := p.basePrice
	out := make([]market.Candle, 0, SampleLength)
	for i := SampleLength - 1; i >= 0; i-- {
		change := (g.rng.Float64() - 0.5) * 2 * p.volatility

		open := price
		closePrice := open * (1 + change)
		high := math.Max(open, closePrice) * (1 + g.rng.Float64()*0.01)
		low := math.Min(open, closePrice) * (1 - g.rng.Float64()*0.01)
		volume := g.rng.Float64()*p.volumeSpan + p.volumeMin

		out = append(out, market.Candle{
			OpenTime: end.Add(-time.Duration(i) * step),
			Open:     round2(open),
			High:     round2(high),
			Low:      round2(low),
			Close:    round2(closePrice),
			Volume:   round2(volume),
		})
		price = closePrice
	}
	return out
}

func round2(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f).Round(2)
}

// TickerFromSeries derives a ticker from a candle series: last close,
// change from the first open, extreme high/low and summed volume.
func TickerFromSeries(id market.ID, symbol string, candles []market.Candle, observedAt time.Time) market.Ticker {
	t := market.Ticker{Exchange: id, Symbol: symbol, ObservedAt: observedAt}
	if len(candles) == 0 {
		return t
	}

	first, last := candles[0], candles[len(candles)-1]
	t.Price = last.Close
	t.High24h = first.High
	t.Low24h = first.Low
	for _, c := range candles {
		if c.High.GreaterThan(t.High24h) {
			t.High24h = c.High
		}
		if c.Low.LessThan(t.Low24h) {
			t.Low24h = c.Low
		}
		t.Volume24h = t.Volume24h.Add(c.Volume)
	}
	if !first.Open.IsZero() {
		t.Change24hPercent = last.Close.Sub(first.Open).Div(first.Open).Mul(market.Hundred).Round(2)
	}
	return t
}
