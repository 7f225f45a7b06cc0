// Copyright 2025 Smart Transaction
//
// Whitelist repository: time keeper onboarding, avatar and referral
// code bookkeeping over the whitelisted_addresses table.

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// StoreUserData inserts a new whitelisted account unless a row already
// exists in either address form. Existing rows are left untouched.
func (c *Client) StoreUserData(ctx context.Context, addr common.Address, avatar, referralCode string) error {
	address, truncated := AddressStrings(addr)

	var existing string
	err := c.db.QueryRowContext(ctx,
		"SELECT address FROM whitelisted_addresses WHERE address = ? OR address = ?",
		address, truncated).Scan(&existing)
	switch {
	case err == nil:
		return nil
	case !errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("failed to check whitelisted address: %w", err)
	}

	if _, err := c.db.ExecContext(ctx,
		"INSERT INTO whitelisted_addresses (address, avatar, referral_code) VALUES (?, ?, ?)",
		address, avatar, referralCode); err != nil {
		return fmt.Errorf("failed to insert whitelisted address: %w", err)
	}
	return nil
}

// UpdateAvatar sets the avatar on the account's row in either form.
func (c *Client) UpdateAvatar(ctx context.Context, addr common.Address, avatar string) error {
	address, truncated := AddressStrings(addr)
	if _, err := c.db.ExecContext(ctx,
		"UPDATE whitelisted_addresses SET avatar = ? WHERE address = ? OR address = ?",
		avatar, address, truncated); err != nil {
		return fmt.Errorf("failed to update avatar: %w", err)
	}
	return nil
}

// UpdateReferralCode sets the account's own referral code.
func (c *Client) UpdateReferralCode(ctx context.Context, addr common.Address, referralCode string) error {
	address, truncated := AddressStrings(addr)
	if _, err := c.db.ExecContext(ctx,
		"UPDATE whitelisted_addresses SET referral_code = ? WHERE address = ? OR address = ?",
		referralCode, address, truncated); err != nil {
		return fmt.Errorf("failed to update referral code: %w", err)
	}
	return nil
}

// UpdateReferredFrom records which referral code brought the account in.
func (c *Client) UpdateReferredFrom(ctx context.Context, addr common.Address, referredFrom string) error {
	address, truncated := AddressStrings(addr)
	if _, err := c.db.ExecContext(ctx,
		"UPDATE whitelisted_addresses SET referred_from = ? WHERE address = ? OR address = ?",
		referredFrom, address, truncated); err != nil {
		return fmt.Errorf("failed to update referred from: %w", err)
	}
	return nil
}

// IsWhitelisted reports whether the address has a whitelist row.
func (c *Client) IsWhitelisted(ctx context.Context, addr common.Address) (bool, error) {
	address, truncated := AddressStrings(addr)
	var existing string
	err := c.db.QueryRowContext(ctx,
		"SELECT address FROM whitelisted_addresses WHERE address = ? OR address = ?",
		address, truncated).Scan(&existing)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	default:
		return false, fmt.Errorf("failed to check whitelisted address: %w", err)
	}
}

// IsAvatarAvailable reports whether no other account uses the avatar.
func (c *Client) IsAvatarAvailable(ctx context.Context, addr common.Address, avatar string) (bool, error) {
	address, truncated := AddressStrings(addr)
	var existing string
	err := c.db.QueryRowContext(ctx,
		"SELECT address FROM whitelisted_addresses WHERE address != ? AND address != ? AND avatar = ?",
		address, truncated, avatar).Scan(&existing)
	switch {
	case err == nil:
		return false, nil
	case errors.Is(err, sql.ErrNoRows):
		return true, nil
	default:
		return false, fmt.Errorf("failed to check avatar: %w", err)
	}
}

// IsReferralCodeAvailable reports whether no other account uses the code.
func (c *Client) IsReferralCodeAvailable(ctx context.Context, addr common.Address, referralCode string) (bool, error) {
	address, truncated := AddressStrings(addr)
	var existing string
	err := c.db.QueryRowContext(ctx,
		"SELECT address FROM whitelisted_addresses WHERE address != ? AND address != ? AND referral_code = ?",
		address, truncated, referralCode).Scan(&existing)
	switch {
	case err == nil:
		return false, nil
	case errors.Is(err, sql.ErrNoRows):
		return true, nil
	default:
		return false, fmt.Errorf("failed to check referral code: %w", err)
	}
}

// TimeKeeperCount returns the number of whitelisted accounts.
func (c *Client) TimeKeeperCount(ctx context.Context) (uint64, error) {
	var count uint64
	if err := c.db.QueryRowContext(ctx,
		"SELECT count(address) FROM whitelisted_addresses").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count time keepers: %w", err)
	}
	return count, nil
}

// RepairLegacyAddress rewrites a legacy truncated row for the given
// account to the canonical lowercase form. Returns the number of rows
// repaired (0 or 1).
func (c *Client) RepairLegacyAddress(ctx context.Context, addr common.Address) (int64, error) {
	address, truncated := AddressStrings(addr)
	res, err := c.db.ExecContext(ctx,
		"UPDATE whitelisted_addresses SET address = ? WHERE address = ?",
		address, truncated)
	if err != nil {
		return 0, fmt.Errorf("failed to repair legacy address: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read repair result: %w", err)
	}
	return rows, nil
}
