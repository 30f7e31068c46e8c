package gateway

import (
	"marketdesk/config"
	"marketdesk/pkg/binance"
	"marketdesk/pkg/bybit"
	"marketdesk/pkg/dhan"
	"marketdesk/pkg/market"
)

// Exchange bundles what the gateway needs to serve one exchange.
type Exchange struct {
	ID market.ID
	// Source is nil for exchanges without public market data.
	Source    market.RawSource
	Intervals market.IntervalMap
	Prober    market.CredentialProber
	// NewAdapter builds the normalizing adapter over any raw source.
	NewAdapter func(market.RawSource) market.Adapter
}

type Registry map[market.ID]Exchange

// NewRegistry wires the REST clients of every supported exchange.
func NewRegistry(cfg config.ExchangesConfig) Registry {
	timeout := cfg.Timeout

	binanceMain := binance.NewRESTClient(cfg.Binance.BaseURL, timeout)
	binanceTest := binance.NewRESTClient(cfg.Binance.TestnetURL, timeout)

	bybitMain := bybit.NewRESTClient(cfg.Bybit.BaseURL, cfg.Bybit.Category, timeout)
	bybitTest := bybit.NewRESTClient(cfg.Bybit.TestnetURL, cfg.Bybit.Category, timeout)

	return Registry{
		market.Binance: {
			ID:        market.Binance,
			Source:    binanceMain,
			Intervals: binance.Intervals,
			Prober:    binance.NewProber(binanceMain, binanceTest),
			NewAdapter: func(src market.RawSource) market.Adapter {
				return binance.NewAdapter(src)
			},
		},
		market.Bybit: {
			ID:        market.Bybit,
			Source:    bybitMain,
			Intervals: bybit.Intervals,
			Prober:    bybit.NewProber(bybitMain, bybitTest),
			NewAdapter: func(src market.RawSource) market.Adapter {
				return bybit.NewAdapter(src)
			},
		},
		market.Dhan: {
			ID:        market.Dhan,
			Intervals: dhan.Intervals,
			Prober:    dhan.NewProber(dhan.NewRESTClient(cfg.Dhan.BaseURL, timeout)),
			NewAdapter: func(market.RawSource) market.Adapter {
				return dhan.NewAdapter()
			},
		},
	}
}

// Probers returns the credential probers keyed by exchange.
func (r Registry) Probers() map[market.ID]market.CredentialProber {
	out := make(map[market.ID]market.CredentialProber, len(r))
	for id, ex := range r {
		if ex.Prober != nil {
			out[id] = ex.Prober
		}
	}
	return out
}

// Adapters builds one adapter per exchange. source picks where each adapter
// reads from; nil means the exchange's own REST client.
func (r Registry) Adapters(source func(Exchange) market.RawSource) []market.Adapter {
	out := make([]market.Adapter, 0, len(r))
	for _, id := range market.Exchanges {
		ex, ok := r[id]
		if !ok || ex.NewAdapter == nil {
			continue
		}
		src := ex.Source
		if source != nil {
			src = source(ex)
		}
		out = append(out, ex.NewAdapter(src))
	}
	return out
}
