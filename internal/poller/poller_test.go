package poller

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"marketdesk/pkg/market"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type manualTask struct {
	fn      func()
	stopped atomic.Bool
}

func (t *manualTask) Stop() { t.stopped.Store(true) }

func (t *manualTask) Fire() {
	if !t.stopped.Load() {
		t.fn()
	}
}

type manualScheduler struct {
	mu    sync.Mutex
	tasks []*manualTask
}

func (m *manualScheduler) Every(_ time.Duration, fn func()) Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := &manualTask{fn: fn}
	m.tasks = append(m.tasks, t)
	return t
}

func (m *manualScheduler) last() *manualTask {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tasks[len(m.tasks)-1]
}

// funcAdapter answers synchronously from the configured functions.
type funcAdapter struct {
	id      market.ID
	live    bool
	ticker  func() (market.Ticker, error)
	candles func() ([]market.Candle, error)
}

func (a *funcAdapter) Exchange() market.ID                  { return a.id }
func (a *funcAdapter) SupportsLive() bool                   { return a.live }
func (a *funcAdapter) MapInterval(i market.Interval) string { return string(i) }

func (a *funcAdapter) Ticker(context.Context, string) (market.Ticker, error) {
	return a.ticker()
}

func (a *funcAdapter) Candles(context.Context, string, market.Interval, int) ([]market.Candle, error) {
	return a.candles()
}

type reply struct {
	ticker market.Ticker
	err    error
}

// gatedAdapter blocks every Ticker call until the test answers it.
type gatedAdapter struct {
	calls chan chan reply
}

func (a *gatedAdapter) Exchange() market.ID                  { return market.Bybit }
func (a *gatedAdapter) SupportsLive() bool                   { return true }
func (a *gatedAdapter) MapInterval(i market.Interval) string { return string(i) }

func (a *gatedAdapter) Ticker(context.Context, string) (market.Ticker, error) {
	ch := make(chan reply)
	a.calls <- ch
	r := <-ch
	return r.ticker, r.err
}

func (a *gatedAdapter) Candles(context.Context, string, market.Interval, int) ([]market.Candle, error) {
	return nil, errors.New("not used")
}

type countingNotifier struct{ n atomic.Int32 }

func (c *countingNotifier) Notify(context.Context, string) { c.n.Add(1) }
func (c *countingNotifier) Wait()                           {}

var t0 = time.Date(2024, 1, 2, 3, 0, 0, 0, time.UTC)

func candleAt(h int, closePrice string) market.Candle {
	p := decimal.RequireFromString(closePrice)
	return market.Candle{OpenTime: t0.Add(time.Duration(h) * time.Hour), Open: p, High: p, Low: p, Close: p, Volume: decimal.NewFromInt(1)}
}

func tickerWith(price string) market.Ticker {
	return market.Ticker{Exchange: market.Bybit, Symbol: "BTCUSDT", Price: decimal.RequireFromString(price), ObservedAt: t0}
}

func newTestPoller(adapters ...market.Adapter) (*Poller, *manualScheduler) {
	sched := &manualScheduler{}
	p := New(adapters, Options{
		Scheduler: sched,
		Rand:      rand.New(rand.NewSource(1)),
		Now:       func() time.Time { return t0 },
	})
	return p, sched
}

func TestOutOfOrderCompletionKeepsNewest(t *testing.T) {
	a := &gatedAdapter{calls: make(chan chan reply)}
	p, sched := newTestPoller(a)

	h, err := p.Subscribe(Subscription{Exchange: market.Bybit, Symbol: "BTCUSDT", Kind: KindTicker, Live: true})
	require.NoError(t, err)
	task := sched.last()

	task.Fire()
	first := <-a.calls
	task.Fire()
	second := <-a.calls

	second <- reply{ticker: tickerWith("200")}
	snap := <-h.Updates()
	assert.Equal(t, uint64(2), snap.Seq)

	// the older request finishes last and must not win
	first <- reply{ticker: tickerWith("100")}
	p.inflight.Wait()

	got := h.Snapshot()
	assert.Equal(t, uint64(2), got.Seq)
	require.NotNil(t, got.Ticker)
	assert.True(t, decimal.NewFromInt(200).Equal(got.Ticker.Price))
}

func TestLateResultAfterUnsubscribeIsDropped(t *testing.T) {
	a := &gatedAdapter{calls: make(chan chan reply)}
	p, sched := newTestPoller(a)

	h, err := p.Subscribe(Subscription{Exchange: market.Bybit, Symbol: "BTCUSDT", Kind: KindTicker, Live: true})
	require.NoError(t, err)

	sched.last().Fire()
	pending := <-a.calls

	require.NoError(t, p.Unsubscribe(h.ID()))
	pending <- reply{ticker: tickerWith("100")}
	p.inflight.Wait()

	got := h.Snapshot()
	assert.Zero(t, got.Seq)
	assert.Nil(t, got.Ticker)

	_, open := <-h.Updates()
	assert.False(t, open)

	// ticks after unsubscribe do nothing
	sched.last().Fire()
	assert.ErrorIs(t, p.Unsubscribe(h.ID()), ErrUnknownSubscription)
}

func TestSampleWhenLiveUnsupported(t *testing.T) {
	p, sched := newTestPoller(&funcAdapter{id: market.Dhan, live: false})

	h, err := p.Subscribe(Subscription{Exchange: market.Dhan, Symbol: "RELIANCE", Interval: market.Interval1d, Live: true})
	require.NoError(t, err)
	sched.last().Fire()
	p.inflight.Wait()

	snap := h.Snapshot()
	assert.Equal(t, SourceSample, snap.Source)
	assert.Empty(t, snap.Err)
	assert.False(t, snap.Stale)
	require.Len(t, snap.Candles, SampleLength)
	require.NotNil(t, snap.Ticker)
	assert.True(t, snap.Candles[len(snap.Candles)-1].Close.Equal(snap.Ticker.Price))

	// a second tick keeps the same sample chart
	sched.last().Fire()
	p.inflight.Wait()
	assert.Equal(t, snap.Candles, h.Snapshot().Candles)
}

func TestFailureKeepsStaleData(t *testing.T) {
	var fail atomic.Bool
	a := &funcAdapter{
		id:   market.Bybit,
		live: true,
		ticker: func() (market.Ticker, error) {
			if fail.Load() {
				return market.Ticker{}, &market.UpstreamError{Exchange: market.Bybit, Op: "ticker", Status: 403, Message: "forbidden"}
			}
			return tickerWith("43250.5"), nil
		},
		candles: func() ([]market.Candle, error) {
			if fail.Load() {
				return nil, errors.New("unreachable")
			}
			return []market.Candle{candleAt(0, "1"), candleAt(1, "2")}, nil
		},
	}
	n := &countingNotifier{}
	sched := &manualScheduler{}
	p := New([]market.Adapter{a}, Options{Scheduler: sched, Notifier: n, Now: func() time.Time { return t0 }})

	h, err := p.Subscribe(Subscription{Exchange: market.Bybit, Symbol: "BTCUSDT", Live: true})
	require.NoError(t, err)
	task := sched.last()

	task.Fire()
	p.inflight.Wait()
	live := h.Snapshot()
	assert.Equal(t, SourceLive, live.Source)
	assert.Len(t, live.Candles, 2)

	fail.Store(true)
	task.Fire()
	p.inflight.Wait()
	task.Fire()
	p.inflight.Wait()

	stale := h.Snapshot()
	assert.True(t, stale.Stale)
	assert.Equal(t, "forbidden", stale.Err)
	assert.Equal(t, SourceLive, stale.Source)
	assert.Equal(t, live.Candles, stale.Candles)
	assert.Equal(t, live.Ticker.Price, stale.Ticker.Price)
	assert.Equal(t, int32(1), n.n.Load(), "one alert per outage")

	fail.Store(false)
	task.Fire()
	p.inflight.Wait()
	recovered := h.Snapshot()
	assert.False(t, recovered.Stale)
	assert.Empty(t, recovered.Err)
}

func TestFailureWithoutLiveDataFallsBackToSample(t *testing.T) {
	a := &funcAdapter{
		id:     market.Binance,
		live:   true,
		ticker: func() (market.Ticker, error) { return market.Ticker{}, &market.UpstreamError{Exchange: market.Binance, Op: "ticker", Message: "boom"} },
	}
	p, sched := newTestPoller(a)

	h, err := p.Subscribe(Subscription{Exchange: market.Binance, Symbol: "ETHUSDT", Kind: KindTicker, Live: true})
	require.NoError(t, err)
	sched.last().Fire()
	p.inflight.Wait()

	snap := h.Snapshot()
	assert.Equal(t, SourceSample, snap.Source)
	assert.Equal(t, "boom", snap.Err)
	assert.NotNil(t, snap.Ticker)
	assert.Nil(t, snap.Candles)
}

func TestProxyUnreachableAlwaysFallsBack(t *testing.T) {
	var down atomic.Bool
	a := &funcAdapter{
		id:   market.Bybit,
		live: true,
		ticker: func() (market.Ticker, error) {
			if down.Load() {
				return market.Ticker{}, fmt.Errorf("%w: dial tcp", market.ErrProxyUnreachable)
			}
			return tickerWith("1"), nil
		},
	}
	p, sched := newTestPoller(a)
	h, err := p.Subscribe(Subscription{Exchange: market.Bybit, Symbol: "BTCUSDT", Kind: KindTicker, Live: true})
	require.NoError(t, err)

	sched.last().Fire()
	p.inflight.Wait()
	assert.Equal(t, SourceLive, h.Snapshot().Source)

	down.Store(true)
	sched.last().Fire()
	p.inflight.Wait()
	snap := h.Snapshot()
	assert.Equal(t, SourceSample, snap.Source)
	assert.False(t, snap.Stale)
}

func TestObservedAtStrictlyIncreases(t *testing.T) {
	a := &funcAdapter{id: market.Bybit, live: true, ticker: func() (market.Ticker, error) { return tickerWith("1"), nil }}
	p, sched := newTestPoller(a)
	h, err := p.Subscribe(Subscription{Exchange: market.Bybit, Symbol: "BTCUSDT", Kind: KindTicker, Live: true})
	require.NoError(t, err)

	var prev time.Time
	for i := 0; i < 3; i++ {
		sched.last().Fire()
		p.inflight.Wait()
		got := h.Snapshot().Ticker.ObservedAt
		assert.True(t, got.After(prev))
		prev = got
	}
}

func TestUpdatesKeepsNewest(t *testing.T) {
	a := &funcAdapter{id: market.Bybit, live: true, ticker: func() (market.Ticker, error) { return tickerWith("1"), nil }}
	p, sched := newTestPoller(a)
	h, err := p.Subscribe(Subscription{Exchange: market.Bybit, Symbol: "BTCUSDT", Kind: KindTicker, Live: true})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		sched.last().Fire()
		p.inflight.Wait()
	}
	snap := <-h.Updates()
	assert.Equal(t, uint64(3), snap.Seq)
	assert.Len(t, h.Updates(), 0)
}

func TestSubscribeValidation(t *testing.T) {
	p, _ := newTestPoller(&funcAdapter{id: market.Bybit, live: true})

	_, err := p.Subscribe(Subscription{Exchange: "kraken", Symbol: "X"})
	assert.ErrorIs(t, err, market.ErrUnsupportedExchange)

	_, err = p.Subscribe(Subscription{Exchange: market.Bybit})
	assert.ErrorIs(t, err, market.ErrInvalidSymbol)

	_, err = p.Subscribe(Subscription{Exchange: market.Bybit, Symbol: "BTCUSDT", Interval: "7m"})
	assert.ErrorIs(t, err, market.ErrInvalidInterval)

	h, err := p.Subscribe(Subscription{Exchange: market.Bybit, Symbol: "BTCUSDT", Kind: KindTicker})
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, h.Subscription().PollInterval)
	assert.Equal(t, market.Interval1h, h.Subscription().Interval)
	assert.NotEmpty(t, h.ID())
	assert.Len(t, p.Subscriptions(), 1)

	p.Close()
	assert.Empty(t, p.Subscriptions())
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("")
	require.NoError(t, err)
	assert.Equal(t, KindBoth, k)

	_, err = ParseKind("depth")
	assert.Error(t, err)
}

func TestSampleWhenLiveDisabled(t *testing.T) {
	var calls atomic.Int32
	a := &funcAdapter{
		id:   market.Bybit,
		live: true,
		ticker: func() (market.Ticker, error) {
			calls.Add(1)
			return tickerWith("43000"), nil
		},
		candles: func() ([]market.Candle, error) {
			calls.Add(1)
			return []market.Candle{candleAt(0, "43000")}, nil
		},
	}
	p, sched := newTestPoller(a)

	h, err := p.Subscribe(Subscription{Exchange: market.Bybit, Symbol: "BTCUSDT", Interval: market.Interval1h, Live: false})
	require.NoError(t, err)
	sched.last().Fire()
	p.inflight.Wait()

	snap := h.Snapshot()
	assert.Zero(t, calls.Load())
	assert.Equal(t, SourceSample, snap.Source)
	assert.Empty(t, snap.Err)
	require.Len(t, snap.Candles, SampleLength)
	for i, c := range snap.Candles {
		assert.True(t, c.High.GreaterThanOrEqual(decimal.Max(c.Open, c.Close)), "candle %d high", i)
		assert.True(t, c.Low.LessThanOrEqual(decimal.Min(c.Open, c.Close)), "candle %d low", i)
	}
}

func TestSampleNotCutBySmallWindow(t *testing.T) {
	sched := &manualScheduler{}
	p := New([]market.Adapter{&funcAdapter{id: market.Dhan}}, Options{
		Window:    50,
		Scheduler: sched,
		Rand:      rand.New(rand.NewSource(1)),
		Now:       func() time.Time { return t0 },
	})

	h, err := p.Subscribe(Subscription{Exchange: market.Dhan, Symbol: "RELIANCE", Interval: market.Interval1d, Kind: KindChart})
	require.NoError(t, err)
	sched.last().Fire()
	p.inflight.Wait()

	assert.Len(t, h.Snapshot().Candles, SampleLength)
}

// hookScheduler calls before ahead of creating each task.
type hookScheduler struct {
	manualScheduler
	before func()
}

func (h *hookScheduler) Every(d time.Duration, fn func()) Task {
	if h.before != nil {
		h.before()
	}
	return h.manualScheduler.Every(d, fn)
}

func TestUnsubscribeDuringSubscribeStopsTask(t *testing.T) {
	sched := &hookScheduler{}
	p := New([]market.Adapter{&funcAdapter{id: market.Dhan}}, Options{
		Scheduler: sched,
		Rand:      rand.New(rand.NewSource(1)),
		Now:       func() time.Time { return t0 },
	})
	sched.before = func() { require.NoError(t, p.Unsubscribe("chart-1")) }

	_, err := p.Subscribe(Subscription{ID: "chart-1", Exchange: market.Dhan, Symbol: "RELIANCE"})
	require.NoError(t, err)

	assert.True(t, sched.last().stopped.Load())
	assert.Empty(t, p.Subscriptions())
}
