// Copyright 2025 Smart Transaction
//
// SignaturePool - shared bag of pending time attestations.
// Ingress appends concurrently; the aggregator drains a sliding window
// once per tick. Draining a non-empty pool always empties it: whatever
// falls outside the window is discarded, not preserved.

package chronicle

import (
	"math/big"
	"sort"
	"sync"
	"time"
)

// WindowSelection is the per-tick result of draining the pool.
type WindowSelection struct {
	UpperBound *big.Int
	LowerBound *big.Int
	Selected   []Chronicle
	Mean       *big.Int
}

// Pool is a mutex-guarded multiset of chronicles.
type Pool struct {
	mu   sync.Mutex
	sigs []Chronicle
}

// NewPool creates an empty pool.
func NewPool() *Pool {
	return &Pool{}
}

// Append adds a chronicle to the pool.
func (p *Pool) Append(c Chronicle) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sigs = append(p.sigs, c)
}

// Len reports the number of pending chronicles.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sigs)
}

// Snapshot returns a copy of the current pool contents.
func (p *Pool) Snapshot() []Chronicle {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Chronicle, len(p.sigs))
	for i, c := range p.sigs {
		out[i] = c.Clone()
	}
	return out
}

// DrainWindow selects the chronicles whose epochs lie in
// (upper-window, upper] where upper = min(now in nanoseconds, the
// largest epoch in the pool), computes their floored mean epoch, and
// empties the pool. It returns nil when the pool is empty or when no
// chronicle falls inside the window; the pool is cleared either way
// once it was entered non-empty.
func (p *Pool) DrainWindow(window time.Duration, now time.Time) *WindowSelection {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.sigs) == 0 {
		return nil
	}

	sort.Slice(p.sigs, func(i, j int) bool {
		return p.sigs[i].Epoch.Cmp(p.sigs[j].Epoch) < 0
	})

	upper := big.NewInt(now.UnixNano())
	if max := p.sigs[len(p.sigs)-1].Epoch; max.Cmp(upper) < 0 {
		upper = new(big.Int).Set(max)
	}
	lower := new(big.Int).Sub(upper, big.NewInt(int64(window)))

	var selected []Chronicle
	sum := new(big.Int)
	for _, c := range p.sigs {
		if c.Epoch.Cmp(lower) > 0 && c.Epoch.Cmp(upper) <= 0 {
			selected = append(selected, c.Clone())
			sum.Add(sum, c.Epoch)
		}
	}

	p.sigs = p.sigs[:0]

	if len(selected) == 0 {
		return nil
	}

	return &WindowSelection{
		UpperBound: upper,
		LowerBound: lower,
		Selected:   selected,
		Mean:       sum.Div(sum, big.NewInt(int64(len(selected)))),
	}
}
