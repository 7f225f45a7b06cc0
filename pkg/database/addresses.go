// Copyright 2025 Smart Transaction
//
// Address string forms. Canonical rows are the lowercase 42-character
// 0x form; early deployments stored the display-truncated form
// ("0x1234…cdef"), so lookups match both and a repair path rewrites
// legacy rows to canonical.

package database

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// AddressStrings returns the canonical lowercase form and the legacy
// truncated display form of an address.
func AddressStrings(addr common.Address) (canonical, truncated string) {
	canonical = strings.ToLower(addr.Hex())
	truncated = fmt.Sprintf("0x%x…%x", addr[:2], addr[18:])
	return canonical, truncated
}
