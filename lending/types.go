package lending

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Pool captures the global accounting state of the lending pool. Amounts are
// denominated in the native unit of the respective asset and expressed as big
// integers so intermediate products never truncate.
type Pool struct {
	// TotalCollateral is the aggregate collateral asset held for all accounts.
	TotalCollateral *big.Int
	// TotalBorrows is the outstanding debt across all accounts, including
	// accrued interest.
	TotalBorrows *big.Int
	// Cash is the un-borrowed debt-asset balance available for borrows and
	// manager withdrawals.
	Cash *big.Int
	// BorrowIndex is the cumulative, monotonically non-decreasing interest
	// index converting borrow bases into current debt. WAD scaled, starts at
	// 1.0.
	BorrowIndex *big.Int
	// InterestRatePerSecond is the WAD-scaled simple-interest rate applied per
	// elapsed second between accruals.
	InterestRatePerSecond *big.Int
	// LastAccrual records when the index was last advanced.
	LastAccrual time.Time
	// Params holds the manager-settable risk parameters.
	Params RiskParameters
}

// Clone returns a deep copy so staged mutations never leak before commit.
func (p *Pool) Clone() *Pool {
	if p == nil {
		return nil
	}
	return &Pool{
		TotalCollateral:       cloneInt(p.TotalCollateral),
		TotalBorrows:          cloneInt(p.TotalBorrows),
		Cash:                  cloneInt(p.Cash),
		BorrowIndex:           cloneInt(p.BorrowIndex),
		InterestRatePerSecond: cloneInt(p.InterestRatePerSecond),
		LastAccrual:           p.LastAccrual,
		Params:                p.Params.Clone(),
	}
}

func (p *Pool) normalize() {
	if p.TotalCollateral == nil {
		p.TotalCollateral = big.NewInt(0)
	}
	if p.TotalBorrows == nil {
		p.TotalBorrows = big.NewInt(0)
	}
	if p.Cash == nil {
		p.Cash = big.NewInt(0)
	}
	if p.BorrowIndex == nil || p.BorrowIndex.Sign() == 0 {
		p.BorrowIndex = Wad()
	}
	if p.InterestRatePerSecond == nil {
		p.InterestRatePerSecond = big.NewInt(0)
	}
}

// availableLiquidity reports the debt-asset balance not currently lent out.
func (p *Pool) availableLiquidity() *big.Int {
	if p.Cash == nil || p.Cash.Sign() < 0 {
		return big.NewInt(0)
	}
	return new(big.Int).Set(p.Cash)
}

// utilization is totalBorrows / (totalBorrows + cash), WAD scaled. Zero when
// the pool holds no debt-asset value at all.
func (p *Pool) utilization() *big.Int {
	total := new(big.Int).Add(p.TotalBorrows, p.Cash)
	if total.Sign() == 0 {
		return big.NewInt(0)
	}
	return wadDiv(p.TotalBorrows, total)
}

// Account maintains one participant's position. Accounts are created lazily
// and never deleted; zero balances are the terminal state.
type Account struct {
	Address common.Address
	// Collateral is the collateral-asset amount held on the account's behalf.
	Collateral *big.Int
	// BorrowBase is the value-preserving debt unit: current debt equals
	// borrowBase * borrowIndex / 1e18.
	BorrowBase *big.Int
}

// Clone returns a deep copy of the account.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	return &Account{
		Address:    a.Address,
		Collateral: cloneInt(a.Collateral),
		BorrowBase: cloneInt(a.BorrowBase),
	}
}

func (a *Account) normalize() {
	if a.Collateral == nil {
		a.Collateral = big.NewInt(0)
	}
	if a.BorrowBase == nil {
		a.BorrowBase = big.NewInt(0)
	}
}

// AccountData is the read-only view of a position, computed against the
// projected "as of now" borrow index.
type AccountData struct {
	Collateral   *big.Int
	Debt         *big.Int
	HealthFactor *big.Int
	BorrowLimit  *big.Int
}

// PoolData is the read-only view of the pool aggregates.
type PoolData struct {
	TotalCollateral    *big.Int
	TotalBorrows       *big.Int
	AvailableLiquidity *big.Int
	Utilization        *big.Int
	BorrowIndex        *big.Int
}

// PriceData carries the current WAD-scaled USD prices of both assets.
type PriceData struct {
	CollateralPriceUsd *big.Int
	DebtPriceUsd       *big.Int
}
