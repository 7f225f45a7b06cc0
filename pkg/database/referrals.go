// Copyright 2025 Smart Transaction
//
// Referral queries: the referral-graph reads backing the reward
// expansion, and the referrals key-value pair used by the onboarding
// front end.

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/smart-transaction/blockclock-backend/pkg/referral"
)

// ReferralCodes returns the non-empty referral codes of the given
// addresses. Implements referral.Store.
func (c *Client) ReferralCodes(ctx context.Context, addresses []string) ([]string, error) {
	if len(addresses) == 0 {
		return nil, nil
	}
	query := fmt.Sprintf(
		`SELECT referral_code
			FROM whitelisted_addresses
			WHERE address IN(%s)
			AND NULLIF(referral_code, '') IS NOT NULL`,
		placeholders(len(addresses)))
	rows, err := c.db.QueryContext(ctx, query, stringArgs(addresses)...)
	if err != nil {
		return nil, fmt.Errorf("failed to query referral codes: %w", err)
	}
	defer rows.Close()

	var codes []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, fmt.Errorf("failed to scan referral code: %w", err)
		}
		codes = append(codes, code)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate referral codes: %w", err)
	}
	return codes, nil
}

// ReferrerRows joins the given addresses to the accounts whose referral
// code they were referred from. Implements referral.Store.
func (c *Client) ReferrerRows(ctx context.Context, addresses []string) ([]referral.ReferrerRow, error) {
	if len(addresses) == 0 {
		return nil, nil
	}
	query := fmt.Sprintf(
		`SELECT a1.address, a2.address, a2.referral_code
			FROM whitelisted_addresses AS a1
			JOIN whitelisted_addresses AS a2
			ON a2.referral_code = a1.referred_from
			WHERE a1.address IN(%s)
			AND NULLIF(a1.referred_from, '') IS NOT NULL`,
		placeholders(len(addresses)))
	rows, err := c.db.QueryContext(ctx, query, stringArgs(addresses)...)
	if err != nil {
		return nil, fmt.Errorf("failed to query referrers: %w", err)
	}
	defer rows.Close()

	var out []referral.ReferrerRow
	for rows.Next() {
		var row referral.ReferrerRow
		if err := rows.Scan(&row.Source, &row.Referrer, &row.ReferrerCode); err != nil {
			return nil, fmt.Errorf("failed to scan referrer row: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate referrers: %w", err)
	}
	return out, nil
}

// ReadReferral returns the stored referral code for a front-end key, or
// the empty string when none exists.
func (c *Client) ReadReferral(ctx context.Context, refKey string) (string, error) {
	var value string
	err := c.db.QueryRowContext(ctx,
		"SELECT refvalue FROM referrals WHERE refkey = ?", refKey).Scan(&value)
	switch {
	case err == nil:
		return value, nil
	case errors.Is(err, sql.ErrNoRows):
		return "", nil
	default:
		return "", fmt.Errorf("failed to read referral: %w", err)
	}
}

// WriteReferral stores the referral code for a front-end key. The first
// write wins; later writes for the same key are ignored.
func (c *Client) WriteReferral(ctx context.Context, refKey, refValue string) error {
	existing, err := c.ReadReferral(ctx, refKey)
	if err != nil {
		return err
	}
	if existing != "" {
		return nil
	}
	if _, err := c.db.ExecContext(ctx,
		"INSERT INTO referrals (refkey, refvalue) VALUES (?, ?)",
		refKey, refValue); err != nil {
		return fmt.Errorf("failed to store referral: %w", err)
	}
	return nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func stringArgs(values []string) []interface{} {
	args := make([]interface{}, len(values))
	for i, v := range values {
		args[i] = v
	}
	return args
}
