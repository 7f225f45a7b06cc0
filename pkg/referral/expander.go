// Copyright 2025 Smart Transaction
//
// Referral expansion - walks the referral graph breadth-first and
// extends a reward map with indirect payouts for referrer ancestors.
// Cycles are broken with a visited set keyed by referral code: the
// codes of already-paid accounts are seeded first, and a code can only
// be paid out once per expansion.

package referral

import (
	"context"
	"fmt"
	"log"
	"sort"
)

// ReferrerRow is one edge of the referral graph: Referrer earned
// because Source did, and ReferrerCode is the referrer's own code.
type ReferrerRow struct {
	Source       string
	Referrer     string
	ReferrerCode string
}

// Store is the database surface the expander needs.
type Store interface {
	// ReferralCodes returns the non-empty referral codes of the given
	// addresses.
	ReferralCodes(ctx context.Context, addresses []string) ([]string, error)
	// ReferrerRows returns, for each given address that has a non-empty
	// referred_from, the account whose referral code it names.
	ReferrerRows(ctx context.Context, addresses []string) ([]ReferrerRow, error)
}

// Expander computes multi-level referral rewards.
type Expander struct {
	store  Store
	logger *log.Logger
}

// NewExpander creates an expander over the given store.
func NewExpander(store Store, logger *log.Logger) *Expander {
	if logger == nil {
		logger = log.New(log.Writer(), "[Referral] ", log.LstdFlags)
	}
	return &Expander{store: store, logger: logger}
}

// Expand extends total with indirect rewards for every referrer
// reachable from the accounts already in it. total maps lowercase hex
// addresses to reward amounts; it is mutated in place. On any store
// error the map may hold partial additions and the caller must discard
// the whole tick.
func (e *Expander) Expand(ctx context.Context, total map[string]float64) error {
	codes, err := e.store.ReferralCodes(ctx, sortedKeys(total))
	if err != nil {
		return fmt.Errorf("failed to read referral codes: %w", err)
	}
	visited := make(map[string]struct{}, len(codes))
	for _, code := range codes {
		visited[code] = struct{}{}
	}

	frontier := make(map[string]float64, len(total))
	for addr, amount := range total {
		frontier[addr] = amount
	}

	for level := 1; ; level++ {
		rows, err := e.store.ReferrerRows(ctx, sortedKeys(frontier))
		if err != nil {
			return fmt.Errorf("failed to read referrers at level %d: %w", level, err)
		}

		candidates := make(map[string]float64)
		for _, row := range rows {
			if _, seen := visited[row.ReferrerCode]; seen {
				// Cyclic referral, this code has been paid already.
				continue
			}
			visited[row.ReferrerCode] = struct{}{}
			srcAmount, ok := total[row.Source]
			if !ok {
				continue
			}
			candidates[row.Referrer] += Amount(srcAmount, level)
		}

		if len(candidates) == 0 {
			break
		}
		for addr, amount := range candidates {
			total[addr] += amount
		}
		frontier = candidates
	}

	e.logger.Printf("Expanded rewards over %d accounts", len(total))
	return nil
}

// Amount is the payout for a referrer at the given depth, derived from
// the amount its referee earned.
func Amount(srcAmount float64, level int) float64 {
	switch level {
	case 0:
		return 1.0
	case 1:
		return 0.1 * srcAmount
	default:
		return 0.5 * srcAmount
	}
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
