// Package poller keeps per-subscription market snapshots fresh by polling
// exchange adapters on a schedule.
//
// Every tick of a subscription gets a sequence number. Ticks do not wait for
// each other, so responses may complete out of order; a response is applied
// only while the subscription is active and only if no newer tick has been
// applied yet. Subscriptions are independent: two subscriptions on the same
// symbol poll separately.
package poller

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"marketdesk/internal/metrics"
	"marketdesk/internal/notify"
	"marketdesk/pkg/market"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var ErrUnknownSubscription = errors.New("unknown subscription")

// Kind selects what a subscription fetches.
type Kind string

const (
	KindTicker Kind = "ticker"
	KindChart  Kind = "chart"
	KindBoth   Kind = "both"
)

func (k Kind) wantsTicker() bool { return k == KindTicker || k == KindBoth }
func (k Kind) wantsChart() bool  { return k == KindChart || k == KindBoth }

// ParseKind accepts "", "ticker", "chart" and "both"; empty means both.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case "":
		return KindBoth, nil
	case KindTicker, KindChart, KindBoth:
		return Kind(s), nil
	}
	return "", fmt.Errorf("unknown subscription kind %q", s)
}

// Source tells whether a snapshot holds exchange data or generated data.
type Source string

const (
	SourceLive   Source = "live"
	SourceSample Source = "sample"
)

type Subscription struct {
	ID           string          `json:"id"`
	Exchange     market.ID       `json:"exchange"`
	Symbol       string          `json:"symbol"`
	Interval     market.Interval `json:"interval"`
	PollInterval time.Duration   `json:"pollInterval"`
	Live         bool            `json:"live"`
	Kind         Kind            `json:"kind"`
}

// Snapshot is the latest state of one subscription.
type Snapshot struct {
	Subscription Subscription    `json:"subscription"`
	Seq          uint64          `json:"seq"`
	Ticker       *market.Ticker  `json:"ticker,omitempty"`
	Candles      []market.Candle `json:"candles,omitempty"`
	Source       Source          `json:"source,omitempty"`
	// Stale is set when the last poll failed and the data is from an earlier one.
	Stale     bool      `json:"stale"`
	Err       string    `json:"error,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type Options struct {
	TickerEvery time.Duration
	ChartEvery  time.Duration
	Window      int

	Scheduler Scheduler
	Metrics   *metrics.Metrics
	Notifier  notify.Notifier
	Logger    *zap.Logger
	Rand      *rand.Rand
	Now       func() time.Time
}

type Poller struct {
	adapters map[market.ID]market.Adapter
	opts     Options
	log      *zap.Logger
	sample   *Generator

	mu   sync.RWMutex
	subs map[string]*subscription

	inflight sync.WaitGroup
}

func New(adapters []market.Adapter, opts Options) *Poller {
	if opts.TickerEvery <= 0 {
		opts.TickerEvery = 2 * time.Second
	}
	if opts.ChartEvery <= 0 {
		opts.ChartEvery = 30 * time.Second
	}
	if opts.Window <= 0 {
		opts.Window = DefaultWindow
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Scheduler == nil {
		opts.Scheduler = TickerScheduler{Logger: opts.Logger}
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.Nop{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	byID := make(map[market.ID]market.Adapter, len(adapters))
	for _, a := range adapters {
		byID[a.Exchange()] = a
	}
	return &Poller{
		adapters: byID,
		opts:     opts,
		log:      opts.Logger.With(zap.String("component", "poller")),
		sample:   NewGenerator(opts.Rand),
		subs:     make(map[string]*subscription),
	}
}

type subscription struct {
	cfg     Subscription
	adapter market.Adapter
	task    Task

	mu      sync.Mutex
	active  bool
	nextSeq uint64
	applied uint64
	series  *Series
	ticker  *market.Ticker
	source  Source
	stale   bool
	errMsg  string
	updated time.Time
	alerted bool
	updates chan Snapshot
}

// Handle is the subscriber's view of a subscription.
type Handle struct {
	sub *subscription
}

func (h *Handle) ID() string { return h.sub.cfg.ID }

func (h *Handle) Subscription() Subscription { return h.sub.cfg }

// Updates delivers every applied snapshot. Only the newest undelivered
// snapshot is buffered. The channel is closed on unsubscribe.
func (h *Handle) Updates() <-chan Snapshot { return h.sub.updates }

// Snapshot returns the current state.
func (h *Handle) Snapshot() Snapshot {
	h.sub.mu.Lock()
	defer h.sub.mu.Unlock()
	return h.sub.snapshot()
}

// Subscribe validates sub, fills defaults and starts polling it.
func (p *Poller) Subscribe(sub Subscription) (*Handle, error) {
	adapter, ok := p.adapters[sub.Exchange]
	if !ok {
		return nil, fmt.Errorf("%w: %s", market.ErrUnsupportedExchange, sub.Exchange)
	}
	if sub.Symbol == "" {
		return nil, market.ErrInvalidSymbol
	}
	if sub.Interval == "" {
		sub.Interval = market.Interval1h
	}
	if !sub.Interval.IsValid() {
		return nil, fmt.Errorf("%w: %s", market.ErrInvalidInterval, sub.Interval)
	}
	if sub.Kind == "" {
		sub.Kind = KindBoth
	}
	if sub.PollInterval <= 0 {
		sub.PollInterval = p.opts.ChartEvery
		if sub.Kind == KindTicker {
			sub.PollInterval = p.opts.TickerEvery
		}
	}
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}

	s := &subscription{
		cfg:     sub,
		adapter: adapter,
		active:  true,
		series:  NewSeries(p.opts.Window),
		updates: make(chan Snapshot, 1),
	}

	p.mu.Lock()
	if _, dup := p.subs[sub.ID]; dup {
		p.mu.Unlock()
		return nil, fmt.Errorf("subscription %s already exists", sub.ID)
	}
	p.subs[sub.ID] = s
	p.mu.Unlock()

	p.opts.Metrics.SubscriptionAdded()
	p.log.Info("subscribed",
		zap.String("id", sub.ID),
		zap.String("exchange", string(sub.Exchange)),
		zap.String("symbol", sub.Symbol),
		zap.String("interval", string(sub.Interval)),
		zap.String("kind", string(sub.Kind)),
		zap.Bool("live", sub.Live),
		zap.Duration("every", sub.PollInterval),
	)

	task := p.opts.Scheduler.Every(sub.PollInterval, func() { p.tick(s) })
	s.mu.Lock()
	s.task = task
	unsubscribed := !s.active
	s.mu.Unlock()
	// Unsubscribe ran before the task existed
	if unsubscribed {
		task.Stop()
	}

	return &Handle{sub: s}, nil
}

// Unsubscribe stops polling id. Results still in flight are discarded.
func (p *Poller) Unsubscribe(id string) error {
	p.mu.Lock()
	s, ok := p.subs[id]
	delete(p.subs, id)
	p.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSubscription, id)
	}

	s.mu.Lock()
	task := s.task
	s.active = false
	close(s.updates)
	s.mu.Unlock()

	if task != nil {
		task.Stop()
	}
	p.opts.Metrics.SubscriptionRemoved()
	p.log.Info("unsubscribed", zap.String("id", id))
	return nil
}

// Subscriptions lists the active subscriptions.
func (p *Poller) Subscriptions() []Subscription {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Subscription, 0, len(p.subs))
	for _, s := range p.subs {
		out = append(out, s.cfg)
	}
	return out
}

// Close unsubscribes everything and waits for in-flight polls to finish.
func (p *Poller) Close() {
	p.mu.RLock()
	ids := make([]string, 0, len(p.subs))
	for id := range p.subs {
		ids = append(ids, id)
	}
	p.mu.RUnlock()

	for _, id := range ids {
		_ = p.Unsubscribe(id)
	}
	p.inflight.Wait()
}

func (p *Poller) tick(s *subscription) {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return
	}
	s.nextSeq++
	seq := s.nextSeq
	s.mu.Unlock()

	p.opts.Metrics.PollTick(string(s.cfg.Exchange))

	p.inflight.Add(1)
	go func() {
		defer p.inflight.Done()
		p.apply(s, p.fetch(s, seq))
	}()
}

type result struct {
	seq     uint64
	sample  bool
	ticker  *market.Ticker
	candles []market.Candle
	err     error
}

func (p *Poller) fetch(s *subscription, seq uint64) result {
	res := result{seq: seq}
	if !s.cfg.Live || !s.adapter.SupportsLive() {
		res.sample = true
		return res
	}

	ctx := context.Background()
	if s.cfg.Kind.wantsTicker() {
		t, err := s.adapter.Ticker(ctx, s.cfg.Symbol)
		if err != nil {
			res.err = err
			return res
		}
		res.ticker = &t
	}
	if s.cfg.Kind.wantsChart() {
		c, err := s.adapter.Candles(ctx, s.cfg.Symbol, s.cfg.Interval, p.opts.Window)
		if err != nil {
			res.err = err
			return res
		}
		res.candles = c
	}
	return res
}

func (p *Poller) apply(s *subscription, res result) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active || res.seq <= s.applied {
		p.opts.Metrics.StaleDiscarded(string(s.cfg.Exchange))
		p.log.Debug("discarding poll result",
			zap.String("id", s.cfg.ID),
			zap.Uint64("seq", res.seq),
			zap.Uint64("applied", s.applied),
			zap.Bool("active", s.active),
		)
		return
	}
	s.applied = res.seq
	now := p.opts.Now()

	switch {
	case res.sample:
		p.useSample(s, now)
		s.errMsg = ""
	case res.err != nil:
		p.opts.Metrics.PollFailure(string(s.cfg.Exchange))
		p.log.Warn("poll failed",
			zap.String("id", s.cfg.ID),
			zap.String("exchange", string(s.cfg.Exchange)),
			zap.String("symbol", s.cfg.Symbol),
			zap.Error(res.err),
		)
		s.errMsg = market.Message(res.err)
		if errors.Is(res.err, market.ErrProxyUnreachable) || s.source != SourceLive {
			p.useSample(s, now)
		} else {
			s.stale = true
		}
		if !s.alerted {
			s.alerted = true
			p.opts.Notifier.Notify(context.Background(), fmt.Sprintf("%s %s feed failing: %s", s.cfg.Exchange, s.cfg.Symbol, s.errMsg))
		}
	default:
		if s.source != SourceLive {
			s.series = NewSeries(p.opts.Window)
			s.ticker = nil
		}
		if res.candles != nil {
			s.series.Merge(res.candles)
		}
		if res.ticker != nil {
			s.setTicker(*res.ticker)
		}
		s.source = SourceLive
		s.stale = false
		s.errMsg = ""
		s.alerted = false
	}

	s.updated = now
	s.publish()
}

// useSample switches s to generated data. An existing sample series is kept
// so that the chart does not jump on every tick. The sample is never cut to
// a window smaller than SampleLength.
func (p *Poller) useSample(s *subscription, now time.Time) {
	if s.source != SourceSample || s.series.Len() == 0 {
		s.series = NewSeries(max(p.opts.Window, SampleLength))
		s.series.Merge(p.sample.Series(s.cfg.Exchange, s.cfg.Interval, now))
		s.ticker = nil
	}
	s.setTicker(TickerFromSeries(s.cfg.Exchange, s.cfg.Symbol, s.series.Candles(), now))
	s.source = SourceSample
	s.stale = false
}

// setTicker stores t, keeping ObservedAt strictly increasing.
func (s *subscription) setTicker(t market.Ticker) {
	if s.ticker != nil && !t.ObservedAt.After(s.ticker.ObservedAt) {
		t.ObservedAt = s.ticker.ObservedAt.Add(time.Millisecond)
	}
	s.ticker = &t
}

func (s *subscription) snapshot() Snapshot {
	snap := Snapshot{
		Subscription: s.cfg,
		Seq:          s.applied,
		Source:       s.source,
		Stale:        s.stale,
		Err:          s.errMsg,
		UpdatedAt:    s.updated,
	}
	if s.ticker != nil && s.cfg.Kind.wantsTicker() {
		t := *s.ticker
		snap.Ticker = &t
	}
	if s.cfg.Kind.wantsChart() {
		snap.Candles = s.series.Candles()
	}
	return snap
}

// publish must be called with s.mu held; it is the only sender on updates.
func (s *subscription) publish() {
	snap := s.snapshot()
	select {
	case s.updates <- snap:
	default:
		select {
		case <-s.updates:
		default:
		}
		s.updates <- snap
	}
}
