package poller

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Task is a running recurring job.
type Task interface {
	// Stop prevents further runs. A run already in progress is not interrupted.
	Stop()
}

// Scheduler starts recurring jobs.
type Scheduler interface {
	Every(d time.Duration, fn func()) Task
}

// TickerScheduler runs fn once immediately and then every d on its own
// goroutine. A panicking run is logged and the schedule continues.
type TickerScheduler struct {
	Logger *zap.Logger
}

func (s TickerScheduler) Every(d time.Duration, fn func()) Task {
	log := s.Logger
	if log == nil {
		log = zap.NewNop()
	}
	t := &tickerTask{stop: make(chan struct{})}

	go func() {
		s.runOnce(log, fn)

		ticker := time.NewTicker(d)
		defer ticker.Stop()

		for {
			select {
			case <-t.stop:
				return
			case <-ticker.C:
				s.runOnce(log, fn)
			}
		}
	}()
	return t
}

func (s TickerScheduler) runOnce(log *zap.Logger, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("scheduled task panicked", zap.Any("panic", r))
		}
	}()
	fn()
}

type tickerTask struct {
	once sync.Once
	stop chan struct{}
}

func (t *tickerTask) Stop() {
	t.once.Do(func() { close(t.stop) })
}
