package lending

import "errors"

// Error taxonomy for the pool engine. Validation and solvency failures are
// expected business outcomes; oracle failures are hard stops. Every failure
// leaves pool and account state untouched.
var (
	// ErrZeroAmount rejects zero or negative operation amounts.
	ErrZeroAmount = errors.New("lending: amount must be positive")
	// ErrInsufficientCollateral covers withdrawals past the balance and any
	// borrow/withdraw that would leave the account insolvent.
	ErrInsufficientCollateral = errors.New("lending: insufficient collateral")
	// ErrInsufficientLiquidity rejects borrows and liquidity withdrawals that
	// exceed the pool's un-borrowed debt-asset balance.
	ErrInsufficientLiquidity = errors.New("lending: insufficient liquidity")
	// ErrNothingToRepay rejects repayments against a zero-debt account.
	ErrNothingToRepay = errors.New("lending: no outstanding debt to repay")
	// ErrSelfLiquidation rejects a borrower liquidating their own position.
	ErrSelfLiquidation = errors.New("lending: self liquidation not allowed")
	// ErrAccountHealthy rejects liquidation of a position whose health factor
	// is at or above 1.0.
	ErrAccountHealthy = errors.New("lending: borrower not eligible for liquidation")
	// ErrNoDebt rejects liquidation of an account with no debt.
	ErrNoDebt = errors.New("lending: borrower has no debt")
	// ErrInvalidRiskParameters signals an ordering violation between the
	// collateral factor, liquidation threshold and liquidation bonus.
	ErrInvalidRiskParameters = errors.New("lending: invalid risk parameters")
	// ErrOracleZero rejects wiring a nil price feed.
	ErrOracleZero = errors.New("lending: oracle must not be nil")
	// ErrInvalidPrice signals a non-positive feed answer.
	ErrInvalidPrice = errors.New("lending: invalid oracle price")
	// ErrStalePrice signals a feed answer older than the staleness bound.
	ErrStalePrice = errors.New("lending: stale oracle price")
	// ErrReentrantCall signals a mutating call issued while another mutating
	// call on the same pool is still in flight.
	ErrReentrantCall = errors.New("lending: reentrant call rejected")
	// ErrNilState signals an engine without a wired state backend.
	ErrNilState = errors.New("lending: state not configured")
	// ErrPoolNotInitialized signals operations before Bootstrap.
	ErrPoolNotInitialized = errors.New("lending: pool not initialized")
)
