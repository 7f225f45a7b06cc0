// Copyright 2025 Smart Transaction
//
// Package database sentinel errors.

package database

import "errors"

var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("entity not found")

	// ErrAvatarTaken is returned when another account already claimed
	// the avatar.
	ErrAvatarTaken = errors.New("avatar is already in use")

	// ErrReferralCodeTaken is returned when another account already
	// claimed the referral code.
	ErrReferralCodeTaken = errors.New("referral code is already in use")
)
