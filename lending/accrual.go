package lending

import (
	"math/big"
	"time"
)

// accrue advances the borrow index and total borrows to now using the
// simple-interest-per-second factor rate*elapsed. The index compounds across
// successive calls even though each single call applies a flat factor to the
// elapsed interval, so accrual frequency shapes the realized compounding
// curve. When no time elapsed, nothing is borrowed, or the rate is zero, only
// the timestamp advances.
func (p *Pool) accrue(now time.Time) *big.Int {
	if p.LastAccrual.IsZero() {
		p.LastAccrual = now
		return big.NewInt(0)
	}
	elapsed := elapsedSeconds(p.LastAccrual, now)
	if elapsed <= 0 {
		return big.NewInt(0)
	}
	if p.TotalBorrows.Sign() == 0 || p.InterestRatePerSecond.Sign() == 0 {
		p.LastAccrual = now
		return big.NewInt(0)
	}

	factor := new(big.Int).Mul(p.InterestRatePerSecond, big.NewInt(elapsed))
	interest := wadMul(p.TotalBorrows, factor)
	growth := wadMul(p.BorrowIndex, factor)

	p.TotalBorrows = new(big.Int).Add(p.TotalBorrows, interest)
	p.BorrowIndex = new(big.Int).Add(p.BorrowIndex, growth)
	p.LastAccrual = now
	return interest
}

// previewAccrual projects (borrowIndex, totalBorrows) to now without mutating
// the pool. All read-only views use it so reads reflect "as of now" values.
func (p *Pool) previewAccrual(now time.Time) (index, totalBorrows *big.Int) {
	index = cloneInt(p.BorrowIndex)
	totalBorrows = cloneInt(p.TotalBorrows)

	elapsed := elapsedSeconds(p.LastAccrual, now)
	if elapsed <= 0 || totalBorrows.Sign() == 0 || p.InterestRatePerSecond.Sign() == 0 {
		return index, totalBorrows
	}

	factor := new(big.Int).Mul(p.InterestRatePerSecond, big.NewInt(elapsed))
	totalBorrows.Add(totalBorrows, wadMul(totalBorrows, factor))
	index.Add(index, wadMul(index, factor))
	return index, totalBorrows
}

func elapsedSeconds(last, now time.Time) int64 {
	if last.IsZero() {
		return 0
	}
	delta := now.Unix() - last.Unix()
	if delta < 0 {
		return 0
	}
	return delta
}
