// Copyright 2025 Smart Transaction
//
// ChainDispatcher - submits one tick's envelope to one CallBreaker
// endpoint: estimate gas, pad it, send, await the receipt. Failures are
// logged and reported as a boolean; the nonce advances only on success.

package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"log"
	"math/big"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/smart-transaction/blockclock-backend/pkg/callbreaker"
	"github.com/smart-transaction/blockclock-backend/pkg/chronicle"
	"github.com/smart-transaction/blockclock-backend/pkg/metrics"
)

// Gas limit padding applied on top of the node's estimate.
const (
	gasBumpNumerator   = 120
	gasBumpDenominator = 100
)

// Payload is the logical content of one dispatch.
type Payload struct {
	Selected  []chronicle.Chronicle
	Mean      *big.Int
	Receivers []common.Address
	Amounts   []*big.Int
}

// Clone deep-copies the payload so concurrent dispatches cannot share
// mutable state.
func (p Payload) Clone() Payload {
	out := Payload{
		Selected:  make([]chronicle.Chronicle, len(p.Selected)),
		Mean:      new(big.Int).Set(p.Mean),
		Receivers: append([]common.Address(nil), p.Receivers...),
		Amounts:   make([]*big.Int, len(p.Amounts)),
	}
	for i, c := range p.Selected {
		out.Selected[i] = c.Clone()
	}
	for i, a := range p.Amounts {
		out.Amounts[i] = new(big.Int).Set(a)
	}
	return out
}

// Dispatcher submits envelopes to one chain.
type Dispatcher struct {
	name        string
	client      *Client
	builder     *callbreaker.Builder
	callBreaker common.Address
	solverKey   *ecdsa.PrivateKey
	nonce       *NonceCounter
	logger      *log.Logger
}

// NewDispatcher wires a dispatcher for one chain endpoint. name is only
// used for logging and metrics labels ("primary", "secondary").
func NewDispatcher(name string, client *Client, builder *callbreaker.Builder, callBreakerAddress common.Address, solverKey *ecdsa.PrivateKey, logger *log.Logger) *Dispatcher {
	if logger == nil {
		logger = log.New(log.Writer(), "[Dispatcher:"+name+"] ", log.LstdFlags)
	}
	return &Dispatcher{
		name:        name,
		client:      client,
		builder:     builder,
		callBreaker: callBreakerAddress,
		solverKey:   solverKey,
		nonce:       NewNonceCounter(),
		logger:      logger,
	}
}

// Name returns the dispatcher's label.
func (d *Dispatcher) Name() string {
	return d.name
}

// Nonce exposes the objective nonce counter.
func (d *Dispatcher) Nonce() *NonceCounter {
	return d.nonce
}

// Dispatch builds the envelope for the payload and submits it. It
// returns true only when the transaction was mined with a successful
// receipt; every failure path logs and returns false.
func (d *Dispatcher) Dispatch(ctx context.Context, payload Payload) bool {
	env, err := d.builder.Build(payload.Selected, payload.Mean, payload.Receivers, payload.Amounts, d.nonce.Current())
	if err != nil {
		d.logger.Printf("Error building envelope: %v", err)
		metrics.DispatchTotal.WithLabelValues(d.name, "build_error").Inc()
		return false
	}

	calldata, err := callbreaker.PackExecuteAndVerify(env)
	if err != nil {
		d.logger.Printf("Error packing executeAndVerify: %v", err)
		metrics.DispatchTotal.WithLabelValues(d.name, "build_error").Inc()
		return false
	}

	from := d.builder.SolverAddress()
	estimate, err := d.client.EstimateGas(ctx, ethereum.CallMsg{
		From: from,
		To:   &d.callBreaker,
		Data: calldata,
	})
	if err != nil {
		d.logger.Printf("Error estimating gas: %v", err)
		metrics.DispatchTotal.WithLabelValues(d.name, "estimate_error").Inc()
		return false
	}
	gasLimit := GasLimit(estimate)

	tx, err := d.sendTransaction(ctx, from, gasLimit, calldata)
	if err != nil {
		d.logger.Printf("Error sending transaction: %v", err)
		metrics.DispatchTotal.WithLabelValues(d.name, "send_error").Inc()
		return false
	}
	d.logger.Printf("Transaction is sent, txhash: %s", tx.Hash().Hex())

	receipt, err := d.client.WaitForTransaction(ctx, tx)
	if err != nil {
		d.logger.Printf("Error pending transaction: %v", err)
		metrics.DispatchTotal.WithLabelValues(d.name, "receipt_error").Inc()
		return false
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		d.logger.Printf("Transaction reverted, txhash: %s", tx.Hash().Hex())
		metrics.DispatchTotal.WithLabelValues(d.name, "reverted").Inc()
		return false
	}

	d.logger.Printf("Got transaction status: %d (gas used %d)", receipt.Status, receipt.GasUsed)
	metrics.DispatchTotal.WithLabelValues(d.name, "success").Inc()
	d.nonce.Advance()
	return true
}

// GasLimit applies the dispatch padding to a raw estimate.
func GasLimit(estimate uint64) uint64 {
	return estimate * gasBumpNumerator / gasBumpDenominator
}

func (d *Dispatcher) sendTransaction(ctx context.Context, from common.Address, gasLimit uint64, calldata []byte) (*types.Transaction, error) {
	accountNonce, err := d.client.PendingNonce(ctx, from)
	if err != nil {
		return nil, err
	}
	gasPrice, err := d.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, err
	}

	tx := types.NewTransaction(accountNonce, d.callBreaker, big.NewInt(0), gasLimit, gasPrice, calldata)
	signedTx, err := types.SignTx(tx, types.NewEIP155Signer(d.client.ChainID()), d.solverKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}
	if err := d.client.SendTransaction(ctx, signedTx); err != nil {
		return nil, err
	}
	return signedTx, nil
}
