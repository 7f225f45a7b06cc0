// Copyright 2025 Smart Transaction
//
// MeanTimeAggregator - per-tick orchestrator. Drains the signature
// pool, guards against re-dispatching an identical selection, composes
// direct and referral rewards, and fans the envelope out to both
// chains. The primary chain's receipt is the ground truth for the
// idempotence digest; the secondary is best-effort.
//
// The pool is drained before dispatch, so a failed primary dispatch
// can only be retried once fresh attestations arrive. Forward-only,
// on purpose.

package meantime

import (
	"context"
	"crypto/md5"
	"fmt"
	"log"
	"math"
	"math/big"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/smart-transaction/blockclock-backend/pkg/chain"
	"github.com/smart-transaction/blockclock-backend/pkg/chronicle"
	"github.com/smart-transaction/blockclock-backend/pkg/metrics"
	"github.com/smart-transaction/blockclock-backend/pkg/referral"
)

// TimeKeeperReward is the direct reward per selected chronicle, in ether.
const TimeKeeperReward = 1.0

// Dispatcher submits one payload to one chain and reports success.
type Dispatcher interface {
	Name() string
	Dispatch(ctx context.Context, payload chain.Payload) bool
}

// Aggregator owns the tick pipeline. The ticker acquires its lock with
// TryLock before every HandleTick and holds it for the whole call.
type Aggregator struct {
	mu sync.Mutex

	pool      *chronicle.Pool
	window    time.Duration
	expander  *referral.Expander
	primary   Dispatcher
	secondary Dispatcher

	currentDigest [md5.Size]byte
	dryRun        bool

	logger *log.Logger
}

// NewAggregator wires the aggregator. The digest starts at a dummy
// value so the first real selection always dispatches.
func NewAggregator(pool *chronicle.Pool, window time.Duration, expander *referral.Expander, primary, secondary Dispatcher, dryRun bool, logger *log.Logger) *Aggregator {
	if logger == nil {
		logger = log.New(log.Writer(), "[MeanTime] ", log.LstdFlags)
	}
	return &Aggregator{
		pool:          pool,
		window:        window,
		expander:      expander,
		primary:       primary,
		secondary:     secondary,
		currentDigest: md5.Sum([]byte("--dummy--")),
		dryRun:        dryRun,
		logger:        logger,
	}
}

// TryLock attempts a non-blocking acquisition of the aggregator lock.
func (a *Aggregator) TryLock() bool {
	return a.mu.TryLock()
}

// Unlock releases the aggregator lock.
func (a *Aggregator) Unlock() {
	a.mu.Unlock()
}

// HandleTick runs one aggregation round. The caller must hold the
// aggregator lock.
func (a *Aggregator) HandleTick(ctx context.Context, now time.Time) {
	sel := a.pool.DrainWindow(a.window, now)
	metrics.PoolSize.Set(0)
	if sel == nil {
		metrics.TicksTotal.WithLabelValues("empty").Inc()
		return
	}

	digest := selectionDigest(sel.Selected)
	if digest == a.currentDigest {
		// Same selection as the last confirmed dispatch.
		metrics.TicksTotal.WithLabelValues("duplicate").Inc()
		return
	}

	rewards := make(map[string]float64)
	for _, c := range sel.Selected {
		rewards[strings.ToLower(c.TimeKeeper.Hex())] += TimeKeeperReward
	}

	if err := a.expander.Expand(ctx, rewards); err != nil {
		a.logger.Printf("Error expanding referral rewards, skipping tick: %v", err)
		metrics.TicksTotal.WithLabelValues("backend_error").Inc()
		return
	}

	receivers, amounts := a.materialize(rewards)

	if a.dryRun {
		a.logger.Printf("Dry run: mean=%s selected=%d receivers=%d, not dispatching",
			sel.Mean, len(sel.Selected), len(receivers))
		metrics.TicksTotal.WithLabelValues("dry_run").Inc()
		return
	}

	payload := chain.Payload{
		Selected:  sel.Selected,
		Mean:      sel.Mean,
		Receivers: receivers,
		Amounts:   amounts,
	}

	primaryCh := make(chan bool, 1)
	secondaryCh := make(chan bool, 1)
	go func(p chain.Payload) {
		primaryCh <- a.primary.Dispatch(ctx, p)
	}(payload.Clone())
	go func(p chain.Payload) {
		secondaryCh <- a.secondary.Dispatch(ctx, p)
	}(payload.Clone())

	if <-primaryCh {
		a.currentDigest = digest
		metrics.TicksTotal.WithLabelValues("dispatched").Inc()
	} else {
		// The pool is already drained: this window is gone for good and
		// the next attempt needs fresh attestations.
		a.logger.Printf("Primary dispatch failed; window (%s, %s] with %d attestations is lost",
			sel.LowerBound, sel.UpperBound, len(sel.Selected))
		metrics.TicksTotal.WithLabelValues("primary_failed").Inc()
	}

	if !<-secondaryCh {
		a.logger.Printf("Secondary dispatch failed on %s", a.secondary.Name())
	}
}

// materialize converts the reward map into parallel receiver/amount
// slices, iterating in key order. A pair is dropped whole when either
// the address or the amount fails to parse, keeping the slices aligned.
func (a *Aggregator) materialize(rewards map[string]float64) ([]common.Address, []*big.Int) {
	keys := make([]string, 0, len(rewards))
	for k := range rewards {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	receivers := make([]common.Address, 0, len(keys))
	amounts := make([]*big.Int, 0, len(keys))
	for _, k := range keys {
		if !common.IsHexAddress(k) {
			a.logger.Printf("Skipping reward for unparseable address %q", k)
			continue
		}
		amount, err := ParseEther(rewards[k])
		if err != nil {
			a.logger.Printf("Skipping reward for %s: %v", k, err)
			continue
		}
		receivers = append(receivers, common.HexToAddress(k))
		amounts = append(amounts, amount)
	}
	return receivers, amounts
}

// selectionDigest is the MD5 of the concatenated signatures of the
// selection, the identity used for tick idempotence.
func selectionDigest(selected []chronicle.Chronicle) [md5.Size]byte {
	h := md5.New()
	for _, c := range selected {
		h.Write(c.Signature)
	}
	var out [md5.Size]byte
	copy(out[:], h.Sum(nil))
	return out
}

// ParseEther converts an ether amount to wei the way parse_units does:
// through the shortest decimal representation, so 1.0 becomes exactly
// 10^18. Amounts with more than 18 decimal places, negatives and
// non-finite values are rejected.
func ParseEther(amount float64) (*big.Int, error) {
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return nil, fmt.Errorf("amount %v is not finite", amount)
	}
	if amount < 0 {
		return nil, fmt.Errorf("amount %v is negative", amount)
	}

	text := strconv.FormatFloat(amount, 'f', -1, 64)
	whole, frac, _ := strings.Cut(text, ".")
	if len(frac) > 18 {
		return nil, fmt.Errorf("amount %s has more than 18 decimal places", text)
	}
	frac += strings.Repeat("0", 18-len(frac))

	wei, ok := new(big.Int).SetString(whole+frac, 10)
	if !ok {
		return nil, fmt.Errorf("failed to parse amount %s", text)
	}
	return wei, nil
}
