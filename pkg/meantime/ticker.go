// Copyright 2025 Smart Transaction
//
// TimeTicker - periodic driver for the aggregator. Ticks that arrive
// while a previous round is still running are skipped, not queued.

package meantime

import (
	"context"
	"log"
	"time"

	"github.com/smart-transaction/blockclock-backend/pkg/metrics"
)

// Ticker fires the aggregator on a fixed period.
type Ticker struct {
	period time.Duration
	agg    *Aggregator
	logger *log.Logger
}

// NewTicker creates a ticker driving the given aggregator.
func NewTicker(period time.Duration, agg *Aggregator, logger *log.Logger) *Ticker {
	if logger == nil {
		logger = log.New(log.Writer(), "[TimeTicker] ", log.LstdFlags)
	}
	return &Ticker{
		period: period,
		agg:    agg,
		logger: logger,
	}
}

// Run loops until the context is cancelled. Each tick attempts a
// non-blocking lock on the aggregator; when acquired, the round runs in
// its own goroutine holding the lock for the lifetime of the call.
func (t *Ticker) Run(ctx context.Context) {
	ticker := time.NewTicker(t.period)
	defer ticker.Stop()

	t.logger.Printf("Ticker started (period=%s)", t.period)
	for {
		select {
		case <-ctx.Done():
			t.logger.Println("Ticker stopped")
			return
		case <-ticker.C:
			if !t.agg.TryLock() {
				// Previous round still in flight.
				metrics.TicksTotal.WithLabelValues("skipped_busy").Inc()
				continue
			}
			go func() {
				defer t.agg.Unlock()
				t.agg.HandleTick(ctx, time.Now())
			}()
		}
	}
}
