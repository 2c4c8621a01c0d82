package validation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// ErrInvalidAddress is returned for holder addresses that are not 0x followed by 40 hex characters.
var ErrInvalidAddress = errors.New("invalid holder address")

// NormalizeAddress trims s, adds a missing 0x prefix and lowercases it. The result
// must be 0x followed by exactly 40 hex characters.
func NormalizeAddress(s string) (string, error) {
	addr := strings.ToLower(strings.TrimSpace(s))
	if addr == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidAddress)
	}
	if !strings.HasPrefix(addr, "0x") {
		addr = "0x" + addr
	}
	if len(addr) != 2+2*common.AddressLength || !common.IsHexAddress(addr) {
		return "", fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	return addr, nil
}
