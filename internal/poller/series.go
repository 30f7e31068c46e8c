package poller

import (
	"sort"

	"marketdesk/pkg/market"
)

// DefaultWindow is the number of candles kept per series.
const DefaultWindow = 200

// Series is a sliding window of candles ascending by OpenTime with no
// duplicate OpenTime. It is not safe for concurrent use.
type Series struct {
	window  int
	candles []market.Candle
}

func NewSeries(window int) *Series {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Series{window: window, candles: make([]market.Candle, 0, window)}
}

// Merge folds fetched candles (ascending) into the series. Newer candles are
// appended, a candle matching an existing OpenTime replaces it, and anything
// older than the head is dropped. The head is evicted past the window.
func (s *Series) Merge(candles []market.Candle) {
	for _, c := range candles {
		n := len(s.candles)
		switch {
		case n == 0 || c.OpenTime.After(s.candles[n-1].OpenTime):
			s.candles = append(s.candles, c)
		case c.OpenTime.Equal(s.candles[n-1].OpenTime):
			// the forming bar
			s.candles[n-1] = c
		default:
			i := sort.Search(n, func(i int) bool { return !s.candles[i].OpenTime.Before(c.OpenTime) })
			if i < n && s.candles[i].OpenTime.Equal(c.OpenTime) {
				s.candles[i] = c
			}
		}
	}
	if over := len(s.candles) - s.window; over > 0 {
		s.candles = append(s.candles[:0], s.candles[over:]...)
	}
}

func (s *Series) Reset() {
	s.candles = s.candles[:0]
}

func (s *Series) Len() int {
	return len(s.candles)
}

// Candles returns a copy of the series.
func (s *Series) Candles() []market.Candle {
	cp := make([]market.Candle, len(s.candles))
	copy(cp, s.candles)
	return cp
}
