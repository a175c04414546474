package escrow

import "strings"

// Known stablecoin mints accepted for token escrows, with their decimal
// precision. Unknown mints are rejected at initialization.
const (
	MintUSDC = "USDC"
	MintUSDT = "USDT"
)

var supportedMints = map[string]uint8{
	MintUSDC: 6,
	MintUSDT: 6,
}

// NormalizeMint uppercases and validates a mint symbol against the supported
// set, returning the canonical form.
func NormalizeMint(mint string) (string, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(mint))
	if trimmed == "" {
		return "", ErrMissingTokenMint
	}
	if _, ok := supportedMints[trimmed]; !ok {
		return "", ErrTokenMintMismatch
	}
	return trimmed, nil
}

// MintDecimals returns the decimal precision of a supported mint.
func MintDecimals(mint string) (uint8, bool) {
	dec, ok := supportedMints[strings.ToUpper(strings.TrimSpace(mint))]
	return dec, ok
}
