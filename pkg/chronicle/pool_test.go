// Copyright 2025 Smart Transaction
//
// Unit tests for the signature pool's sliding-window drain.

package chronicle

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

func epochSeconds(sec int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(sec), big.NewInt(int64(time.Second)))
}

func poolWith(epochs ...int64) *Pool {
	keeper := common.HexToAddress("0x25ee756f5d93e26f5011b7ed4866afb192ce483e")
	pool := NewPool()
	for i, sec := range epochs {
		pool.Append(New(epochSeconds(sec), keeper, []byte{byte(i)}))
	}
	return pool
}

func TestDrainWindow_Midpoint(t *testing.T) {
	pool := poolWith(1734220767, 1734220768, 1734220760)

	sel := pool.DrainWindow(2*time.Second, time.Unix(1734220768, 0))
	if sel == nil {
		t.Fatal("expected a selection")
	}
	if len(sel.Selected) != 2 {
		t.Fatalf("expected 2 selected chronicles, got %d", len(sel.Selected))
	}
	wantMean := new(big.Int).Add(epochSeconds(1734220767), big.NewInt(500000000))
	if sel.Mean.Cmp(wantMean) != 0 {
		t.Errorf("mean = %s, want %s", sel.Mean, wantMean)
	}
	if pool.Len() != 0 {
		t.Errorf("pool must be empty after a drain, has %d", pool.Len())
	}
}

func TestDrainWindow_NowBeforeMaxEpoch(t *testing.T) {
	pool := poolWith(1734220767, 1734220768, 1734220760)

	sel := pool.DrainWindow(2*time.Second, time.Unix(1734220767, 0))
	if sel == nil {
		t.Fatal("expected a selection")
	}
	if got := sel.UpperBound.Cmp(epochSeconds(1734220767)); got != 0 {
		t.Errorf("upper bound = %s, want %s", sel.UpperBound, epochSeconds(1734220767))
	}
	if len(sel.Selected) != 1 {
		t.Fatalf("expected 1 selected chronicle, got %d", len(sel.Selected))
	}
	if sel.Mean.Cmp(epochSeconds(1734220767)) != 0 {
		t.Errorf("mean = %s, want %s", sel.Mean, epochSeconds(1734220767))
	}
}

func TestDrainWindow_EmptyPool(t *testing.T) {
	pool := NewPool()
	if sel := pool.DrainWindow(2*time.Second, time.Unix(1734220768, 0)); sel != nil {
		t.Errorf("expected nil selection from an empty pool, got %+v", sel)
	}
}

func TestDrainWindow_SelectedSorted(t *testing.T) {
	pool := poolWith(1734220768, 1734220766, 1734220767)

	sel := pool.DrainWindow(5*time.Second, time.Unix(1734220768, 0))
	if sel == nil {
		t.Fatal("expected a selection")
	}
	for i := 1; i < len(sel.Selected); i++ {
		if sel.Selected[i-1].Epoch.Cmp(sel.Selected[i].Epoch) > 0 {
			t.Fatal("selection is not sorted by epoch")
		}
	}
}

func TestDrainWindow_OutOfWindowDiscarded(t *testing.T) {
	// Every epoch lies in the future of the drain's upper bound, so
	// nothing is selected, yet the pool is still emptied.
	pool := poolWith(1734220800, 1734220900)

	sel := pool.DrainWindow(2*time.Second, time.Unix(1734220700, 0))
	if sel != nil {
		t.Fatalf("expected nil selection, got %d chronicles", len(sel.Selected))
	}
	if pool.Len() != 0 {
		t.Errorf("pool must be empty after any non-empty drain, has %d", pool.Len())
	}
}

func TestDrainWindow_BoundsInvariant(t *testing.T) {
	pool := poolWith(1734220760, 1734220765, 1734220767, 1734220768)

	window := 3 * time.Second
	sel := pool.DrainWindow(window, time.Unix(1734220768, 0))
	if sel == nil {
		t.Fatal("expected a selection")
	}
	for _, c := range sel.Selected {
		if c.Epoch.Cmp(sel.LowerBound) <= 0 || c.Epoch.Cmp(sel.UpperBound) > 0 {
			t.Errorf("epoch %s outside (%s, %s]", c.Epoch, sel.LowerBound, sel.UpperBound)
		}
	}
	gotWindow := new(big.Int).Sub(sel.UpperBound, sel.LowerBound)
	if gotWindow.Cmp(big.NewInt(int64(window))) != 0 {
		t.Errorf("window span = %s ns, want %d", gotWindow, window)
	}
}

func TestAppendConcurrent(t *testing.T) {
	pool := NewPool()
	keeper := common.HexToAddress("0x25ee756f5d93e26f5011b7ed4866afb192ce483e")

	done := make(chan struct{})
	for g := 0; g < 8; g++ {
		go func() {
			defer func() { done <- struct{}{} }()
			for i := 0; i < 100; i++ {
				pool.Append(New(epochSeconds(1734220767), keeper, []byte{1}))
			}
		}()
	}
	for g := 0; g < 8; g++ {
		<-done
	}
	if pool.Len() != 800 {
		t.Errorf("expected 800 chronicles, got %d", pool.Len())
	}
}
