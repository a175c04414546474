package types

import "math/big"

// Account is the balance view the escrow engine settles against. The native
// balance funds regular escrows; token balances are keyed by mint symbol and
// fund token escrows.
type Account struct {
	Nonce         uint64              `json:"nonce"`
	BalanceNative *big.Int            `json:"balanceNative"`
	TokenBalances map[string]*big.Int `json:"tokenBalances,omitempty"`
}

// Normalize replaces nil balance fields with zero values so callers can
// operate on the account without nil checks.
func (a *Account) Normalize() *Account {
	if a == nil {
		return &Account{BalanceNative: big.NewInt(0)}
	}
	if a.BalanceNative == nil {
		a.BalanceNative = big.NewInt(0)
	}
	return a
}

// TokenBalance returns the balance held for the given mint, zero when the
// account has never touched the mint.
func (a *Account) TokenBalance(mint string) *big.Int {
	if a == nil || a.TokenBalances == nil {
		return big.NewInt(0)
	}
	bal, ok := a.TokenBalances[mint]
	if !ok || bal == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(bal)
}

// SetTokenBalance records the balance held for the given mint.
func (a *Account) SetTokenBalance(mint string, amount *big.Int) {
	if a == nil {
		return
	}
	if a.TokenBalances == nil {
		a.TokenBalances = make(map[string]*big.Int)
	}
	if amount == nil {
		amount = big.NewInt(0)
	}
	a.TokenBalances[mint] = new(big.Int).Set(amount)
}
