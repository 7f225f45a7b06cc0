// Copyright 2025 Smart Transaction
//
// Objective nonce counter. A single atomic cell per dispatcher: the
// envelope builder reads it, and it advances only after a confirmed
// receipt, so a failed dispatch reuses the same nonce next tick.

package chain

import (
	"math/big"
	"sync/atomic"
)

// NonceCounter is a monotonic counter for user objective nonces.
// It is not persisted; a restart while a transaction is in flight
// starts over from zero.
type NonceCounter struct {
	value atomic.Uint64
}

// NewNonceCounter creates a counter starting at zero.
func NewNonceCounter() *NonceCounter {
	return &NonceCounter{}
}

// Current returns the nonce to use for the next objective.
func (n *NonceCounter) Current() *big.Int {
	return new(big.Int).SetUint64(n.value.Load())
}

// Advance increments the counter by one. Called only after the
// dispatched transaction has a confirmed receipt.
func (n *NonceCounter) Advance() uint64 {
	return n.value.Add(1)
}
