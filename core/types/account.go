package types

import "math/big"

// Account holds a principal's native balance plus any fungible token
// balances. Accounts are created lazily on first credit; balances are
// never negative.
type Account struct {
	Nonce         uint64              `json:"nonce"`
	BalanceNative *big.Int            `json:"balanceNative"`
	Tokens        map[string]*big.Int `json:"tokens,omitempty"`
}

// Clone returns a deep copy so callers can mutate the result without
// touching the stored instance.
func (a *Account) Clone() *Account {
	if a == nil {
		return &Account{BalanceNative: big.NewInt(0)}
	}
	clone := &Account{Nonce: a.Nonce, BalanceNative: big.NewInt(0)}
	if a.BalanceNative != nil {
		clone.BalanceNative = new(big.Int).Set(a.BalanceNative)
	}
	if len(a.Tokens) > 0 {
		clone.Tokens = make(map[string]*big.Int, len(a.Tokens))
		for symbol, balance := range a.Tokens {
			if balance == nil {
				clone.Tokens[symbol] = big.NewInt(0)
				continue
			}
			clone.Tokens[symbol] = new(big.Int).Set(balance)
		}
	}
	return clone
}

// Normalize ensures every balance pointer is non-nil.
func (a *Account) Normalize() *Account {
	if a == nil {
		return &Account{BalanceNative: big.NewInt(0)}
	}
	if a.BalanceNative == nil {
		a.BalanceNative = big.NewInt(0)
	}
	for symbol, balance := range a.Tokens {
		if balance == nil {
			a.Tokens[symbol] = big.NewInt(0)
		}
	}
	return a
}
