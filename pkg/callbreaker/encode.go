// Copyright 2025 Smart Transaction
//
// ABI encoding for the envelope entities and the two on-chain calls.
//
// One quirk is deliberately preserved for contract compatibility: the
// receivers entry of the MEV-time data is a proper one-element ABI
// array encoding, while the amounts entry is a flat head concatenation
// of uint256 words with no array framing.

package callbreaker

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/smart-transaction/blockclock-backend/pkg/chronicle"
)

const blockTimeABI = `[{
	"name": "moveTime",
	"type": "function",
	"stateMutability": "nonpayable",
	"inputs": [
		{"name": "chronicles", "type": "tuple[]", "components": [
			{"name": "epoch", "type": "uint256"},
			{"name": "timeKeeper", "type": "address"},
			{"name": "signature", "type": "bytes"}
		]},
		{"name": "meanCurrentTime", "type": "uint256"},
		{"name": "receivers", "type": "address[]"},
		{"name": "amounts", "type": "uint256[]"}
	],
	"outputs": []
}]`

const callBreakerABI = `[{
	"name": "executeAndVerify",
	"type": "function",
	"stateMutability": "payable",
	"inputs": [
		{"name": "userObjs", "type": "tuple[]", "components": [
			{"name": "appId", "type": "bytes"},
			{"name": "nonce", "type": "uint256"},
			{"name": "tip", "type": "uint256"},
			{"name": "chainId", "type": "uint256"},
			{"name": "maxFeePerGas", "type": "uint256"},
			{"name": "maxPriorityFeePerGas", "type": "uint256"},
			{"name": "sender", "type": "address"},
			{"name": "signature", "type": "bytes"},
			{"name": "callObjects", "type": "tuple[]", "components": [
				{"name": "salt", "type": "uint256"},
				{"name": "amount", "type": "uint256"},
				{"name": "gas", "type": "uint256"},
				{"name": "addr", "type": "address"},
				{"name": "callvalue", "type": "bytes"},
				{"name": "returnvalue", "type": "bytes"},
				{"name": "skippable", "type": "bool"},
				{"name": "verifiable", "type": "bool"},
				{"name": "exposeReturn", "type": "bool"}
			]}
		]},
		{"name": "returnValues", "type": "bytes[]"},
		{"name": "order", "type": "uint256[]"},
		{"name": "mevTimeData", "type": "tuple", "components": [
			{"name": "validatorSignature", "type": "bytes"},
			{"name": "mevTimeDataValues", "type": "tuple[]", "components": [
				{"name": "key", "type": "bytes32"},
				{"name": "value", "type": "bytes"}
			]}
		]}
	],
	"outputs": []
}]`

var (
	parsedBlockTimeABI   abi.ABI
	parsedCallBreakerABI abi.ABI

	uint256Type        = mustType("uint256", nil)
	bytesType          = mustType("bytes", nil)
	addressType        = mustType("address", nil)
	addressArrayType   = mustType("address[]", nil)
	chronicleArrayType = mustType("tuple[]", []abi.ArgumentMarshaling{
		{Name: "epoch", Type: "uint256"},
		{Name: "timeKeeper", Type: "address"},
		{Name: "signature", Type: "bytes"},
	})
	callObjectArrayType = mustType("tuple[]", []abi.ArgumentMarshaling{
		{Name: "salt", Type: "uint256"},
		{Name: "amount", Type: "uint256"},
		{Name: "gas", Type: "uint256"},
		{Name: "addr", Type: "address"},
		{Name: "callvalue", Type: "bytes"},
		{Name: "returnvalue", Type: "bytes"},
		{Name: "skippable", Type: "bool"},
		{Name: "verifiable", Type: "bool"},
		{Name: "exposeReturn", Type: "bool"},
	})
	additionalDataArrayType = mustType("tuple[]", []abi.ArgumentMarshaling{
		{Name: "key", Type: "bytes32"},
		{Name: "value", Type: "bytes"},
	})
)

func init() {
	var err error
	parsedBlockTimeABI, err = abi.JSON(strings.NewReader(blockTimeABI))
	if err != nil {
		panic(fmt.Sprintf("invalid BlockTime ABI: %v", err))
	}
	parsedCallBreakerABI, err = abi.JSON(strings.NewReader(callBreakerABI))
	if err != nil {
		panic(fmt.Sprintf("invalid CallBreaker ABI: %v", err))
	}
}

func mustType(t string, components []abi.ArgumentMarshaling) abi.Type {
	typ, err := abi.NewType(t, "", components)
	if err != nil {
		panic(fmt.Sprintf("invalid ABI type %q: %v", t, err))
	}
	return typ
}

// PackMoveTime builds the calldata of
// moveTime((uint256,address,bytes)[], uint256, address[], uint256[]).
func PackMoveTime(chronicles []chronicle.Chronicle, mean *big.Int, receivers []common.Address, amounts []*big.Int) ([]byte, error) {
	data, err := parsedBlockTimeABI.Pack("moveTime", chronicles, mean, receivers, amounts)
	if err != nil {
		return nil, fmt.Errorf("failed to pack moveTime call: %w", err)
	}
	return data, nil
}

// PackExecuteAndVerify builds the calldata of the CallBreaker entry point.
func PackExecuteAndVerify(env *Envelope) ([]byte, error) {
	data, err := parsedCallBreakerABI.Pack("executeAndVerify",
		env.UserObjectives, env.ReturnValues, env.Order, env.MevTimeData)
	if err != nil {
		return nil, fmt.Errorf("failed to pack executeAndVerify call: %w", err)
	}
	return data, nil
}

// UnpackMoveTime decodes moveTime calldata back into its arguments.
func UnpackMoveTime(calldata []byte) ([]interface{}, error) {
	method := parsedBlockTimeABI.Methods["moveTime"]
	if len(calldata) < 4 {
		return nil, fmt.Errorf("calldata shorter than a selector")
	}
	return method.Inputs.Unpack(calldata[4:])
}

// EncodeCallObjects is abi([callObjects]), the inner encoding of the
// objective digest.
func EncodeCallObjects(callObjects []CallObject) ([]byte, error) {
	return abi.Arguments{{Type: callObjectArrayType}}.Pack(callObjects)
}

// ObjectiveDigest is keccak256(abi(nonce, sender, abi([callObjects]))),
// the preimage of the sender's EIP-191 signature.
func ObjectiveDigest(nonce *big.Int, sender common.Address, callObjects []CallObject) ([32]byte, error) {
	encoded, err := EncodeCallObjects(callObjects)
	if err != nil {
		return [32]byte{}, fmt.Errorf("failed to encode call objects: %w", err)
	}
	data, err := abi.Arguments{
		{Type: uint256Type},
		{Type: addressType},
		{Type: bytesType},
	}.Pack(nonce, sender, encoded)
	if err != nil {
		return [32]byte{}, fmt.Errorf("failed to encode objective: %w", err)
	}
	return keccak(data), nil
}

// MevValuesDigest is keccak256(abi([values])), the preimage of the
// validator's EIP-191 signature.
func MevValuesDigest(values []AdditionalData) ([32]byte, error) {
	encoded, err := abi.Arguments{{Type: additionalDataArrayType}}.Pack(values)
	if err != nil {
		return [32]byte{}, fmt.Errorf("failed to encode additional data: %w", err)
	}
	return keccak(encoded), nil
}

// EncodeChronicles is abi([chronicles]).
func EncodeChronicles(chronicles []chronicle.Chronicle) ([]byte, error) {
	return abi.Arguments{{Type: chronicleArrayType}}.Pack(chronicles)
}

// EncodeUint is the 32-byte big-endian encoding of a single uint256.
func EncodeUint(value *big.Int) ([]byte, error) {
	return abi.Arguments{{Type: uint256Type}}.Pack(value)
}

// EncodeAddresses is abi([receivers]), a one-element array encoding.
func EncodeAddresses(receivers []common.Address) ([]byte, error) {
	return abi.Arguments{{Type: addressArrayType}}.Pack(receivers)
}

// EncodeUintList is the flat head concatenation of uint256 words, with
// no array length prefix.
func EncodeUintList(values []*big.Int) ([]byte, error) {
	out := make([]byte, 0, 32*len(values))
	for _, v := range values {
		word, err := EncodeUint(v)
		if err != nil {
			return nil, err
		}
		out = append(out, word...)
	}
	return out, nil
}
