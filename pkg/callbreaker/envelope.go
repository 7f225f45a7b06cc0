// Copyright 2025 Smart Transaction
//
// Envelope construction: one user objective wrapping a moveTime call,
// plus the validator-signed MEV-time side channel.

package callbreaker

import (
	"crypto/ecdsa"
	"log"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/smart-transaction/blockclock-backend/pkg/chronicle"
)

// Fixed fields of the single call object carried per tick.
const (
	callObjectSalt = 1
	callObjectGas  = 1_000_000
)

// MEV-time data keys, keccak256 of the field names.
var (
	KeyChronicles      = crypto.Keccak256Hash([]byte("Chronicles"))
	KeyCurrentMeanTime = crypto.Keccak256Hash([]byte("CurrentMeanTime"))
	KeyReceivers       = crypto.Keccak256Hash([]byte("Receivers"))
	KeyAmounts         = crypto.Keccak256Hash([]byte("Amounts"))
)

// Envelope is everything executeAndVerify takes: the signed objectives,
// their expected return values, the execution order and the side channel.
type Envelope struct {
	UserObjectives []UserObjective
	ReturnValues   [][]byte
	Order          []*big.Int
	MevTimeData    MevTimeData
}

// Builder constructs envelopes for one target chain.
type Builder struct {
	appID            []byte
	solverKey        *ecdsa.PrivateKey
	validatorKey     *ecdsa.PrivateKey
	solverAddress    common.Address
	blockTimeAddress common.Address
	logger           *log.Logger
}

// NewBuilder creates an envelope builder. The solver address is derived
// from the solver key.
func NewBuilder(appID []byte, solverKey, validatorKey *ecdsa.PrivateKey, blockTimeAddress common.Address, logger *log.Logger) *Builder {
	if logger == nil {
		logger = log.New(log.Writer(), "[Envelope] ", log.LstdFlags)
	}
	return &Builder{
		appID:            appID,
		solverKey:        solverKey,
		validatorKey:     validatorKey,
		solverAddress:    crypto.PubkeyToAddress(solverKey.PublicKey),
		blockTimeAddress: blockTimeAddress,
		logger:           logger,
	}
}

// SolverAddress is the sender of every objective this builder produces.
func (b *Builder) SolverAddress() common.Address {
	return b.solverAddress
}

// Build assembles the envelope for one tick: a single skippable call
// object invoking moveTime, wrapped in a solver-signed objective, and
// the four MEV-time entries signed by the validator. nonce is read from
// the caller's counter and not advanced here.
func (b *Builder) Build(selected []chronicle.Chronicle, mean *big.Int, receivers []common.Address, amounts []*big.Int, nonce *big.Int) (*Envelope, error) {
	callvalue, err := PackMoveTime(selected, mean, receivers, amounts)
	if err != nil {
		return nil, err
	}

	callObject := CallObject{
		Salt:         big.NewInt(callObjectSalt),
		Amount:       big.NewInt(0),
		Gas:          big.NewInt(callObjectGas),
		Addr:         b.blockTimeAddress,
		Callvalue:    callvalue,
		Returnvalue:  []byte{},
		Skippable:    true,
		Verifiable:   false,
		ExposeReturn: true,
	}

	// TODO: pass the dispatcher's configured chain id instead of the
	// mainnet literal.
	objective, err := NewUserObjective(
		b.appID,
		nonce,
		big.NewInt(0), // tip
		big.NewInt(1), // chainId
		big.NewInt(0), // maxFeePerGas
		big.NewInt(0), // maxPriorityFeePerGas
		b.solverAddress,
		b.solverKey,
		[]CallObject{callObject},
	)
	if err != nil {
		return nil, err
	}

	values, err := b.mevTimeValues(selected, mean, receivers, amounts)
	if err != nil {
		return nil, err
	}
	mevTimeData, err := NewMevTimeData(b.validatorKey, values)
	if err != nil {
		return nil, err
	}

	return &Envelope{
		UserObjectives: []UserObjective{objective},
		ReturnValues:   [][]byte{{}},
		Order:          []*big.Int{big.NewInt(0)},
		MevTimeData:    mevTimeData,
	}, nil
}

func (b *Builder) mevTimeValues(selected []chronicle.Chronicle, mean *big.Int, receivers []common.Address, amounts []*big.Int) ([]AdditionalData, error) {
	chroniclesValue, err := EncodeChronicles(selected)
	if err != nil {
		return nil, err
	}
	meanValue, err := EncodeUint(mean)
	if err != nil {
		return nil, err
	}
	receiversValue, err := EncodeAddresses(receivers)
	if err != nil {
		return nil, err
	}
	amountsValue, err := EncodeUintList(amounts)
	if err != nil {
		return nil, err
	}
	return []AdditionalData{
		{Key: KeyChronicles, Value: chroniclesValue},
		{Key: KeyCurrentMeanTime, Value: meanValue},
		{Key: KeyReceivers, Value: receiversValue},
		{Key: KeyAmounts, Value: amountsValue},
	}, nil
}

func keccak(data []byte) [32]byte {
	var out [32]byte
	copy(out[:], crypto.Keccak256(data))
	return out
}
