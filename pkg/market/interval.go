package market

import (
	"fmt"
	"time"
)

// Interval is a canonical candle interval as used by the dashboard.
type Interval string

const (
	Interval1m  Interval = "1m"
	Interval3m  Interval = "3m"
	Interval5m  Interval = "5m"
	Interval15m Interval = "15m"
	Interval30m Interval = "30m"
	Interval1h  Interval = "1h"
	Interval2h  Interval = "2h"
	Interval4h  Interval = "4h"
	Interval6h  Interval = "6h"
	Interval12h Interval = "12h"
	Interval1d  Interval = "1d"
	Interval1w  Interval = "1w"
	Interval1M  Interval = "1M"
)

// Intervals is the enumerated canonical set, shortest first.
var Intervals = []Interval{
	Interval1m, Interval3m, Interval5m, Interval15m, Interval30m,
	Interval1h, Interval2h, Interval4h, Interval6h, Interval12h,
	Interval1d, Interval1w, Interval1M,
}

var intervalDurations = map[Interval]time.Duration{
	Interval1m:  time.Minute,
	Interval3m:  3 * time.Minute,
	Interval5m:  5 * time.Minute,
	Interval15m: 15 * time.Minute,
	Interval30m: 30 * time.Minute,
	Interval1h:  time.Hour,
	Interval2h:  2 * time.Hour,
	Interval4h:  4 * time.Hour,
	Interval6h:  6 * time.Hour,
	Interval12h: 12 * time.Hour,
	Interval1d:  24 * time.Hour,
	Interval1w:  7 * 24 * time.Hour,
	Interval1M:  30 * 24 * time.Hour, // 30 days, close enough for bucket spacing
}

// IsValid checks if the interval is one of the canonical intervals.
func (i Interval) IsValid() bool {
	_, ok := intervalDurations[i]
	return ok
}

// Duration returns the bucket width, or zero for unknown intervals.
func (i Interval) Duration() time.Duration {
	return intervalDurations[i]
}

// ParseInterval parses a canonical interval string.
func ParseInterval(s string) (Interval, error) {
	i := Interval(s)
	if !i.IsValid() {
		return "", fmt.Errorf("%w: %s", ErrInvalidInterval, s)
	}
	return i, nil
}

// IntervalMap translates canonical intervals into an exchange's own tokens.
type IntervalMap map[Interval]string

// Map returns the exchange token for i. Intervals missing from the map are
// passed through unchanged.
func (m IntervalMap) Map(i Interval) string {
	if tok, ok := m[i]; ok {
		return tok
	}
	return string(i)
}

// Supports reports whether the exchange has a token for i.
func (m IntervalMap) Supports(i Interval) bool {
	_, ok := m[i]
	return ok
}

// IdentityIntervals maps every canonical interval to itself.
func IdentityIntervals() IntervalMap {
	m := make(IntervalMap, len(Intervals))
	for _, i := range Intervals {
		m[i] = string(i)
	}
	return m
}
