// Copyright 2025 Smart Transaction
//
// Unit tests for the tick pipeline: digest idempotence, reward
// materialization and the primary/secondary dispatch policy.

package meantime

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/smart-transaction/blockclock-backend/pkg/chain"
	"github.com/smart-transaction/blockclock-backend/pkg/chronicle"
	"github.com/smart-transaction/blockclock-backend/pkg/referral"
)

type stubDispatcher struct {
	name   string
	result bool

	mu    sync.Mutex
	calls []chain.Payload
}

func (s *stubDispatcher) Name() string { return s.name }

func (s *stubDispatcher) Dispatch(ctx context.Context, payload chain.Payload) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, payload)
	return s.result
}

func (s *stubDispatcher) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

// noopStore is a referral store with no graph behind it.
type noopStore struct {
	err error
}

func (n *noopStore) ReferralCodes(ctx context.Context, addresses []string) ([]string, error) {
	return nil, n.err
}

func (n *noopStore) ReferrerRows(ctx context.Context, addresses []string) ([]referral.ReferrerRow, error) {
	return nil, n.err
}

var testKeeper = common.HexToAddress("0x25ee756f5d93e26f5011b7ed4866afb192ce483e")

func fillPool(pool *chronicle.Pool) {
	for i, sec := range []int64{1734220767, 1734220768, 1734220760} {
		epoch := new(big.Int).Mul(big.NewInt(sec), big.NewInt(int64(time.Second)))
		sig := make([]byte, 65)
		sig[0] = byte(i + 1)
		pool.Append(chronicle.New(epoch, testKeeper, sig))
	}
}

func newTestAggregator(store referral.Store, primary, secondary Dispatcher, dryRun bool) (*Aggregator, *chronicle.Pool) {
	pool := chronicle.NewPool()
	agg := NewAggregator(pool, 2*time.Second, referral.NewExpander(store, nil), primary, secondary, dryRun, nil)
	return agg, pool
}

func tickNow() time.Time {
	return time.Unix(1734220768, 0)
}

func TestHandleTick_EmptyPool(t *testing.T) {
	primary := &stubDispatcher{name: "primary", result: true}
	secondary := &stubDispatcher{name: "secondary", result: true}
	agg, _ := newTestAggregator(&noopStore{}, primary, secondary, false)

	agg.HandleTick(context.Background(), tickNow())

	if primary.callCount() != 0 || secondary.callCount() != 0 {
		t.Error("an empty pool must not dispatch")
	}
}

func TestHandleTick_DispatchesBothChains(t *testing.T) {
	primary := &stubDispatcher{name: "primary", result: true}
	secondary := &stubDispatcher{name: "secondary", result: true}
	agg, pool := newTestAggregator(&noopStore{}, primary, secondary, false)

	fillPool(pool)
	agg.HandleTick(context.Background(), tickNow())

	if primary.callCount() != 1 || secondary.callCount() != 1 {
		t.Fatalf("expected one dispatch per chain, got primary=%d secondary=%d",
			primary.callCount(), secondary.callCount())
	}

	payload := primary.calls[0]
	if len(payload.Selected) != 2 {
		t.Errorf("selected = %d chronicles, want 2", len(payload.Selected))
	}
	if len(payload.Receivers) != 1 || payload.Receivers[0] != testKeeper {
		t.Errorf("receivers = %v, want [%s]", payload.Receivers, testKeeper.Hex())
	}
	// Two selected chronicles from the same keeper: 2 ether.
	want, _ := new(big.Int).SetString("2000000000000000000", 10)
	if len(payload.Amounts) != 1 || payload.Amounts[0].Cmp(want) != 0 {
		t.Errorf("amounts = %v, want [%s]", payload.Amounts, want)
	}
	if pool.Len() != 0 {
		t.Error("pool must be drained by the tick")
	}
}

func TestHandleTick_IdempotentSelection(t *testing.T) {
	primary := &stubDispatcher{name: "primary", result: true}
	secondary := &stubDispatcher{name: "secondary", result: true}
	agg, pool := newTestAggregator(&noopStore{}, primary, secondary, false)

	fillPool(pool)
	agg.HandleTick(context.Background(), tickNow())
	fillPool(pool)
	agg.HandleTick(context.Background(), tickNow())

	if primary.callCount() != 1 {
		t.Errorf("identical selection dispatched %d times, want 1", primary.callCount())
	}
}

func TestHandleTick_PrimaryFailureRetries(t *testing.T) {
	primary := &stubDispatcher{name: "primary", result: false}
	secondary := &stubDispatcher{name: "secondary", result: true}
	agg, pool := newTestAggregator(&noopStore{}, primary, secondary, false)

	fillPool(pool)
	agg.HandleTick(context.Background(), tickNow())
	// The digest must not advance on a failed primary, so a refilled
	// identical window dispatches again.
	fillPool(pool)
	agg.HandleTick(context.Background(), tickNow())

	if primary.callCount() != 2 {
		t.Errorf("failed primary retried %d times, want 2", primary.callCount())
	}
}

func TestHandleTick_SecondaryFailureAdvancesDigest(t *testing.T) {
	primary := &stubDispatcher{name: "primary", result: true}
	secondary := &stubDispatcher{name: "secondary", result: false}
	agg, pool := newTestAggregator(&noopStore{}, primary, secondary, false)

	fillPool(pool)
	agg.HandleTick(context.Background(), tickNow())
	fillPool(pool)
	agg.HandleTick(context.Background(), tickNow())

	if primary.callCount() != 1 {
		t.Errorf("secondary failure must not force a retry, primary ran %d times", primary.callCount())
	}
}

func TestHandleTick_BackendErrorSkipsTick(t *testing.T) {
	store := &noopStore{err: errors.New("connection refused")}
	primary := &stubDispatcher{name: "primary", result: true}
	secondary := &stubDispatcher{name: "secondary", result: true}
	agg, pool := newTestAggregator(store, primary, secondary, false)

	fillPool(pool)
	agg.HandleTick(context.Background(), tickNow())
	if primary.callCount() != 0 {
		t.Fatal("a database error must abort the tick before dispatch")
	}

	// Once the store recovers, a fresh identical window goes out.
	store.err = nil
	fillPool(pool)
	agg.HandleTick(context.Background(), tickNow())
	if primary.callCount() != 1 {
		t.Errorf("recovered store dispatched %d times, want 1", primary.callCount())
	}
}

func TestHandleTick_DryRun(t *testing.T) {
	primary := &stubDispatcher{name: "primary", result: true}
	secondary := &stubDispatcher{name: "secondary", result: true}
	agg, pool := newTestAggregator(&noopStore{}, primary, secondary, true)

	fillPool(pool)
	agg.HandleTick(context.Background(), tickNow())

	if primary.callCount() != 0 || secondary.callCount() != 0 {
		t.Error("dry run must not dispatch")
	}
	if pool.Len() != 0 {
		t.Error("dry run still drains the pool")
	}
}

func TestHandleTick_PayloadsAreIndependent(t *testing.T) {
	primary := &stubDispatcher{name: "primary", result: true}
	secondary := &stubDispatcher{name: "secondary", result: true}
	agg, pool := newTestAggregator(&noopStore{}, primary, secondary, false)

	fillPool(pool)
	agg.HandleTick(context.Background(), tickNow())

	p, s := primary.calls[0], secondary.calls[0]
	p.Mean.SetUint64(0)
	if s.Mean.Sign() == 0 {
		t.Error("primary and secondary payloads share a mean value")
	}
	p.Amounts[0].SetUint64(0)
	if s.Amounts[0].Sign() == 0 {
		t.Error("primary and secondary payloads share amount values")
	}
}

func TestParseEther(t *testing.T) {
	cases := []struct {
		in   float64
		want string
	}{
		{1.0, "1000000000000000000"},
		{0.1, "100000000000000000"},
		{0.05, "50000000000000000"},
		{2.5, "2500000000000000000"},
		{0, "0"},
	}
	for _, tc := range cases {
		got, err := ParseEther(tc.in)
		if err != nil {
			t.Errorf("ParseEther(%v): %v", tc.in, err)
			continue
		}
		if got.String() != tc.want {
			t.Errorf("ParseEther(%v) = %s, want %s", tc.in, got, tc.want)
		}
	}

	for _, bad := range []float64{-1.0, 1e-19} {
		if _, err := ParseEther(bad); err == nil {
			t.Errorf("ParseEther(%v): expected an error", bad)
		}
	}
}

func TestSelectionDigest(t *testing.T) {
	a := chronicle.New(big.NewInt(1), testKeeper, []byte{1, 2, 3})
	b := chronicle.New(big.NewInt(2), testKeeper, []byte{4, 5, 6})

	d1 := selectionDigest([]chronicle.Chronicle{a, b})
	d2 := selectionDigest([]chronicle.Chronicle{a, b})
	if d1 != d2 {
		t.Error("digest is not deterministic")
	}
	d3 := selectionDigest([]chronicle.Chronicle{b, a})
	if d1 == d3 {
		t.Error("digest must depend on signature order")
	}
}

func TestMaterialize_SkipsPairsTogether(t *testing.T) {
	agg, _ := newTestAggregator(&noopStore{}, &stubDispatcher{}, &stubDispatcher{}, false)

	rewards := map[string]float64{
		strings.ToLower(testKeeper.Hex()): 1.0,
		"not-an-address":                  1.0,
	}
	receivers, amounts := agg.materialize(rewards)
	if len(receivers) != len(amounts) {
		t.Fatalf("receivers (%d) and amounts (%d) diverged", len(receivers), len(amounts))
	}
	if len(receivers) != 1 {
		t.Errorf("expected the unparseable pair to be dropped, got %d entries", len(receivers))
	}
}
