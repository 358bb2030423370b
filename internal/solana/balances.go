package solana

import (
	"github.com/shopspring/decimal"
)

// TokenDelta returns how many whole tokens of mint the transaction credited to owner.
// With an empty owner the account whose balance grew the most is used. ok is false
// when no balance of mint matches.
func (m *TransactionMeta) TokenDelta(mint, owner string) (delta decimal.Decimal, ok bool) {
	deltas := make(map[int]decimal.Decimal)
	collect := func(balances []TokenBalance, sign int64) {
		for _, b := range balances {
			if b.Mint != mint || (owner != "" && b.Owner != owner) {
				continue
			}
			amount, err := decimal.NewFromString(b.Amount)
			if err != nil {
				continue
			}
			amount = amount.Shift(-int32(b.Decimals)).Mul(decimal.NewFromInt(sign))
			deltas[b.AccountIndex] = deltas[b.AccountIndex].Add(amount)
		}
	}
	collect(m.PreTokenBalances, -1)
	collect(m.PostTokenBalances, 1)
	if len(deltas) == 0 {
		return decimal.Zero, false
	}

	if owner != "" {
		for _, d := range deltas {
			delta = delta.Add(d)
		}
		return delta, true
	}
	first := true
	for _, d := range deltas {
		if first || d.GreaterThan(delta) {
			delta, first = d, false
		}
	}
	return delta, true
}
