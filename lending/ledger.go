package lending

import "math/big"

// debtFromBase converts a stored borrow base into current debt at the given
// index. Rounds up so accrued debt is never understated against the pool.
func debtFromBase(base, index *big.Int) *big.Int {
	if base == nil || base.Sign() == 0 {
		return big.NewInt(0)
	}
	return wadMulUp(base, index)
}

// baseFromDebt converts a debt amount into the borrow base stored at the
// given index. Rounds up, again in the pool's favor.
func baseFromDebt(debt, index *big.Int) *big.Int {
	if debt == nil || debt.Sign() == 0 {
		return big.NewInt(0)
	}
	return wadDivUp(debt, index)
}

// currentDebt reports the account's debt at the given index.
func (a *Account) currentDebt(index *big.Int) *big.Int {
	return debtFromBase(a.BorrowBase, index)
}

// increaseBorrow re-derives the borrow base after adding amount of new debt
// and mirrors the increase into the pool's total borrows.
func (p *Pool) increaseBorrow(a *Account, amount *big.Int) {
	newDebt := new(big.Int).Add(a.currentDebt(p.BorrowIndex), amount)
	a.BorrowBase = baseFromDebt(newDebt, p.BorrowIndex)
	p.TotalBorrows = new(big.Int).Add(p.TotalBorrows, amount)
}

// decreaseBorrow repays up to the account's current debt, returning the
// amount actually applied. Repaying to zero clears the base exactly so a
// settled account never retains rounding dust.
func (p *Pool) decreaseBorrow(a *Account, amount *big.Int) *big.Int {
	debt := a.currentDebt(p.BorrowIndex)
	actual := minInt(amount, debt)
	remaining := new(big.Int).Sub(debt, actual)
	if remaining.Sign() == 0 {
		a.BorrowBase = big.NewInt(0)
	} else {
		a.BorrowBase = baseFromDebt(remaining, p.BorrowIndex)
	}
	p.TotalBorrows = new(big.Int).Sub(p.TotalBorrows, actual)
	if p.TotalBorrows.Sign() < 0 {
		p.TotalBorrows = big.NewInt(0)
	}
	return actual
}
