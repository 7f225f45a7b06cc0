// Copyright 2025 Smart Transaction
//
// Chronicle - one signed time attestation from a time keeper.
// The signature is a 65-byte recoverable secp256k1 signature over the
// EIP-191 prefixed hash of the decimal string of the epoch.

package chronicle

import (
	"log"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Chronicle is a single time attestation. The ABI layout is the tuple
// (uint256 epoch, address timeKeeper, bytes signature).
type Chronicle struct {
	Epoch      *big.Int       `json:"epoch"`
	TimeKeeper common.Address `json:"time_keeper"`
	Signature  []byte         `json:"signature"`
}

// New builds a Chronicle from its parts.
func New(epoch *big.Int, timeKeeper common.Address, signature []byte) Chronicle {
	return Chronicle{
		Epoch:      epoch,
		TimeKeeper: timeKeeper,
		Signature:  signature,
	}
}

// Verify reports whether the signature recovers to exactly the time keeper.
// The signed message is the base-10 string of the epoch, hashed with the
// EIP-191 personal-message prefix. Any parse or recovery error fails closed.
func (c Chronicle) Verify() bool {
	if c.Epoch == nil || len(c.Signature) != crypto.SignatureLength {
		return false
	}

	sig := make([]byte, crypto.SignatureLength)
	copy(sig, c.Signature)
	// Accept both the 27/28 compact form and the raw 0/1 recovery id.
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}
	if sig[crypto.RecoveryIDOffset] > 1 {
		return false
	}

	digest := accounts.TextHash([]byte(c.Epoch.String()))
	pubKey, err := crypto.SigToPub(digest, sig)
	if err != nil {
		log.Printf("Error recovering time signature signer: %v", err)
		return false
	}
	return crypto.PubkeyToAddress(*pubKey) == c.TimeKeeper
}

// Clone returns a deep copy of the chronicle.
func (c Chronicle) Clone() Chronicle {
	out := Chronicle{
		TimeKeeper: c.TimeKeeper,
		Signature:  append([]byte(nil), c.Signature...),
	}
	if c.Epoch != nil {
		out.Epoch = new(big.Int).Set(c.Epoch)
	}
	return out
}
