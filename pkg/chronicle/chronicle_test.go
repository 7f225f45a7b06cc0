// Copyright 2025 Smart Transaction
//
// Unit tests for Chronicle verification.

package chronicle

import (
	"encoding/hex"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

func signEpoch(t *testing.T, epoch *big.Int) (common.Address, []byte) {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	digest := accounts.TextHash([]byte(epoch.String()))
	sig, err := crypto.Sign(digest, key)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	sig[crypto.RecoveryIDOffset] += 27
	return crypto.PubkeyToAddress(key.PublicKey), sig
}

func TestVerify(t *testing.T) {
	epoch := new(big.Int).SetUint64(1734554316445000000)
	keeper, sig := signEpoch(t, epoch)

	c := New(epoch, keeper, sig)
	if !c.Verify() {
		t.Error("expected a freshly signed chronicle to verify")
	}
}

func TestVerify_KnownVector(t *testing.T) {
	keeper := common.HexToAddress("0x2c57d1CFC6d5f8E4182a56b4cf75421472eBAEa4")
	sig, err := hex.DecodeString("99d6d06c0e655a617cb043aed547410d7575466ffe36f907d410b03ea7e63e2456ddeace270811317fc1360678f682124944e76484e1019d7c1f5b8cdfb91c131b")
	if err != nil {
		t.Fatalf("decode signature: %v", err)
	}
	epoch, _ := new(big.Int).SetString("1734554316445000000", 10)

	c := New(epoch, keeper, sig)
	if !c.Verify() {
		t.Error("known-good attestation failed to verify")
	}
}

func TestVerify_WrongKeeper(t *testing.T) {
	epoch := big.NewInt(1734220767)
	_, sig := signEpoch(t, epoch)

	c := New(epoch, common.HexToAddress("0x25ee756f5d93e26f5011b7ed4866afb192ce483e"), sig)
	if c.Verify() {
		t.Error("chronicle with mismatched keeper must not verify")
	}
}

func TestVerify_FailsClosed(t *testing.T) {
	epoch := big.NewInt(1734220767)
	keeper, sig := signEpoch(t, epoch)

	cases := []struct {
		name string
		c    Chronicle
	}{
		{"nil epoch", New(nil, keeper, sig)},
		{"short signature", New(epoch, keeper, sig[:64])},
		{"empty signature", New(epoch, keeper, nil)},
		{"bad recovery id", New(epoch, keeper, append(append([]byte{}, sig[:64]...), 99))},
	}
	for _, tc := range cases {
		if tc.c.Verify() {
			t.Errorf("%s: expected verification to fail", tc.name)
		}
	}
}

func TestVerify_EpochMutation(t *testing.T) {
	epoch := big.NewInt(1734220767)
	keeper, sig := signEpoch(t, epoch)

	c := New(big.NewInt(1734220768), keeper, sig)
	if c.Verify() {
		t.Error("signature over a different epoch must not verify")
	}
}

func TestClone(t *testing.T) {
	epoch := big.NewInt(42)
	keeper, sig := signEpoch(t, epoch)
	c := New(epoch, keeper, sig)

	clone := c.Clone()
	clone.Epoch.SetUint64(43)
	clone.Signature[0] ^= 0xff

	if c.Epoch.Uint64() != 42 {
		t.Error("mutating a clone's epoch leaked into the original")
	}
	if c.Signature[0] == clone.Signature[0] {
		t.Error("mutating a clone's signature leaked into the original")
	}
}
