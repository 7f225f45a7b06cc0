// Copyright 2025 Smart Transaction
//
// CallBreaker envelope entities. Field order and ABI layout mirror the
// CallBreaker contract structs; the Go field names map onto the ABI
// component names, so these structs pack directly with accounts/abi.

package callbreaker

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// CallObject is one inner call carried by a user objective.
type CallObject struct {
	Salt         *big.Int
	Amount       *big.Int
	Gas          *big.Int
	Addr         common.Address
	Callvalue    []byte
	Returnvalue  []byte
	Skippable    bool
	Verifiable   bool
	ExposeReturn bool
}

// UserObjective is the solver-signed half of the envelope.
type UserObjective struct {
	AppId                []byte
	Nonce                *big.Int
	Tip                  *big.Int
	ChainId              *big.Int
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
	Sender               common.Address
	Signature            []byte
	CallObjects          []CallObject
}

// AdditionalData is one keyed entry of the MEV-time side channel.
type AdditionalData struct {
	Key   common.Hash
	Value []byte
}

// MevTimeData is the validator-signed half of the envelope.
type MevTimeData struct {
	ValidatorSignature []byte
	MevTimeDataValues  []AdditionalData
}

// NewUserObjective assembles a user objective and signs it with the
// sender's key. The signature covers the EIP-191 hash of
// keccak256(abi(nonce, sender, abi([callObjects]))).
func NewUserObjective(
	appID []byte,
	nonce, tip, chainID, maxFeePerGas, maxPriorityFeePerGas *big.Int,
	sender common.Address,
	signerKey *ecdsa.PrivateKey,
	callObjects []CallObject,
) (UserObjective, error) {
	sig, err := senderSignature(nonce, sender, signerKey, callObjects)
	if err != nil {
		return UserObjective{}, err
	}
	return UserObjective{
		AppId:                appID,
		Nonce:                nonce,
		Tip:                  tip,
		ChainId:              chainID,
		MaxFeePerGas:         maxFeePerGas,
		MaxPriorityFeePerGas: maxPriorityFeePerGas,
		Sender:               sender,
		Signature:            sig,
		CallObjects:          callObjects,
	}, nil
}

func senderSignature(nonce *big.Int, sender common.Address, signerKey *ecdsa.PrivateKey, callObjects []CallObject) ([]byte, error) {
	digest, err := ObjectiveDigest(nonce, sender, callObjects)
	if err != nil {
		return nil, err
	}
	return signPersonal(digest, signerKey)
}

// NewMevTimeData assembles the side channel and signs its encoded
// values with the validator key.
func NewMevTimeData(validatorKey *ecdsa.PrivateKey, values []AdditionalData) (MevTimeData, error) {
	digest, err := MevValuesDigest(values)
	if err != nil {
		return MevTimeData{}, err
	}
	sig, err := signPersonal(digest, validatorKey)
	if err != nil {
		return MevTimeData{}, err
	}
	return MevTimeData{
		ValidatorSignature: sig,
		MevTimeDataValues:  values,
	}, nil
}

// signPersonal signs the EIP-191 prefix of the given 32-byte digest and
// returns the 65-byte compact form with v in {27, 28}.
func signPersonal(digest [32]byte, key *ecdsa.PrivateKey) ([]byte, error) {
	ethHash := accounts.TextHash(digest[:])
	sig, err := crypto.Sign(ethHash, key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign digest: %w", err)
	}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}
