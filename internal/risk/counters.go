package risk

import (
	"sync"
	"sync/atomic"
	"time"
)

// errorCounter tracks consecutive-failure and hourly-failure counts on the
// fast path with atomics, adapted from the teacher's CircuitBreaker atomic
// counter mechanics but generalized from a single AllowTrading() gate into
// raw counters the state machine in manager.go consults directly.
type errorCounter struct {
	consecutive atomic.Int64

	hourlyMu  sync.Mutex
	hourlyLog []time.Time
}

func (c *errorCounter) recordError(now time.Time) {
	c.consecutive.Add(1)
	c.hourlyMu.Lock()
	c.hourlyLog = append(c.hourlyLog, now)
	c.hourlyMu.Unlock()
}

func (c *errorCounter) recordSuccess() {
	c.consecutive.Store(0)
}

func (c *errorCounter) consecutiveCount() int64 {
	return c.consecutive.Load()
}

func (c *errorCounter) hourlyCount(now time.Time) int {
	c.hourlyMu.Lock()
	defer c.hourlyMu.Unlock()
	cutoff := now.Add(-time.Hour)
	kept := c.hourlyLog[:0:0]
	count := 0
	for _, t := range c.hourlyLog {
		if t.After(cutoff) {
			kept = append(kept, t)
			count++
		}
	}
	c.hourlyLog = kept
	return count
}

// pnlTracker tracks realized+unrealized P&L peak-to-current drawdown,
// adapted from the teacher's day-keyed atomic PnL accumulator but tracking
// a running peak instead of a fixed daily reset, per spec §4.7's
// "peak-to-current ... bounded below by zero" drawdown definition.
type pnlTracker struct {
	mu      sync.Mutex
	peak    float64
	current float64
}

func (p *pnlTracker) update(pnl float64) (drawdown float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current = pnl
	if pnl > p.peak {
		p.peak = pnl
	}
	dd := p.peak - p.current
	if dd < 0 {
		dd = 0
	}
	return dd
}
