package lending

import (
	"fmt"
	"math/big"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Engine orchestrates all state transitions of the lending pool. It is a
// single-writer accounting core: a mutating call that arrives while another
// is still in flight — including any callback from a vault or feed — is
// rejected with ErrReentrantCall instead of blocking or corrupting state.
// Callers own serialization; the HTTP gateway serializes its mutating
// requests before dispatching here.
//
// Every mutating operation accrues interest first, stages its changes on
// copies loaded from State, runs all guards, performs vault transfers, and
// only then commits. A failure anywhere leaves pool and account state exactly
// as it was.
type Engine struct {
	state State
	vault TokenVault

	collateralFeed PriceFeed
	debtFeed       PriceFeed

	collateralDecimals uint8
	debtDecimals       uint8

	emitter Emitter
	clock   func() time.Time
	busy    atomic.Bool
}

// NewEngine constructs an engine over the given state and vault. Asset
// decimals are immutable, taken from the underlying asset metadata at
// construction.
func NewEngine(state State, vault TokenVault, collateralDecimals, debtDecimals uint8) *Engine {
	return &Engine{
		state:              state,
		vault:              vault,
		collateralDecimals: collateralDecimals,
		debtDecimals:       debtDecimals,
		emitter:            NoopEmitter{},
		clock:              time.Now,
	}
}

// SetEmitter wires the downstream event subscriber.
func (e *Engine) SetEmitter(emitter Emitter) {
	if emitter == nil {
		emitter = NoopEmitter{}
	}
	e.emitter = emitter
}

// SetClock overrides the wall clock, used for virtual time in tests.
func (e *Engine) SetClock(clock func() time.Time) {
	if clock != nil {
		e.clock = clock
	}
}

// Bootstrap initializes the pool record if it does not exist yet. The risk
// parameters are validated and the rate is the WAD-scaled per-second simple
// interest rate.
func (e *Engine) Bootstrap(params RiskParameters, ratePerSecond *big.Int) error {
	if e.state == nil {
		return ErrNilState
	}
	if err := params.Validate(); err != nil {
		return err
	}
	existing, err := e.state.GetPool()
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}
	pool := &Pool{
		TotalCollateral:       big.NewInt(0),
		TotalBorrows:          big.NewInt(0),
		Cash:                  big.NewInt(0),
		BorrowIndex:           Wad(),
		InterestRatePerSecond: cloneInt(ratePerSecond),
		LastAccrual:           e.clock(),
		Params:                params.Clone(),
	}
	return e.state.PutPool(pool)
}

// SetOracles wires the price feeds for both assets. Both must be non-nil.
func (e *Engine) SetOracles(collateral, debt PriceFeed) error {
	if err := e.begin(); err != nil {
		return err
	}
	defer e.end()
	if collateral == nil || debt == nil {
		return ErrOracleZero
	}
	e.collateralFeed = collateral
	e.debtFeed = debt
	e.emitter.Emit(OraclesEvent{Meta: newMeta(e.clock())})
	return nil
}

func (e *Engine) begin() error {
	if !e.busy.CompareAndSwap(false, true) {
		return ErrReentrantCall
	}
	if e.state == nil {
		e.busy.Store(false)
		return ErrNilState
	}
	return nil
}

func (e *Engine) end() { e.busy.Store(false) }

// loadPool fetches and accrues a working copy of the pool.
func (e *Engine) loadPool(now time.Time) (*Pool, *big.Int, error) {
	pool, err := e.state.GetPool()
	if err != nil {
		return nil, nil, err
	}
	if pool == nil {
		return nil, nil, ErrPoolNotInitialized
	}
	pool.normalize()
	interest := pool.accrue(now)
	return pool, interest, nil
}

// loadAccount fetches a working copy of the account, creating a blank record
// for first-time addresses.
func (e *Engine) loadAccount(addr common.Address) (*Account, error) {
	acct, err := e.state.GetAccount(addr)
	if err != nil {
		return nil, err
	}
	if acct == nil {
		acct = &Account{Address: addr}
	}
	acct.normalize()
	return acct, nil
}

func (e *Engine) commit(pool *Pool, accounts ...*Account) error {
	for _, acct := range accounts {
		if err := e.state.PutAccount(acct); err != nil {
			return err
		}
	}
	return e.state.PutPool(pool)
}

// prices reads both feeds, validated and WAD scaled. Any oracle failure is a
// hard stop for the calling operation.
func (e *Engine) prices(now time.Time) (collateralUsd, debtUsd *big.Int, err error) {
	collateralUsd, err = feedPrice(e.collateralFeed, now)
	if err != nil {
		return nil, nil, err
	}
	debtUsd, err = feedPrice(e.debtFeed, now)
	if err != nil {
		return nil, nil, err
	}
	return collateralUsd, debtUsd, nil
}

// DepositCollateral pulls collateral from the user into pool custody.
func (e *Engine) DepositCollateral(user common.Address, amount *big.Int) error {
	if err := e.begin(); err != nil {
		return err
	}
	defer e.end()
	if amount == nil || amount.Sign() <= 0 {
		return ErrZeroAmount
	}
	now := e.clock()
	pool, _, err := e.loadPool(now)
	if err != nil {
		return err
	}
	acct, err := e.loadAccount(user)
	if err != nil {
		return err
	}

	if err := e.vault.TransferIn(AssetCollateral, user, amount); err != nil {
		return err
	}

	acct.Collateral = new(big.Int).Add(acct.Collateral, amount)
	pool.TotalCollateral = new(big.Int).Add(pool.TotalCollateral, amount)
	if err := e.commit(pool, acct); err != nil {
		return err
	}
	e.emitter.Emit(DepositEvent{Meta: newMeta(now), Account: user, Amount: cloneInt(amount)})
	return nil
}

// WithdrawCollateral releases collateral back to the user provided the
// position stays solvent at the collateral factor. Debt-free accounts never
// consult the oracle.
func (e *Engine) WithdrawCollateral(user common.Address, amount *big.Int) error {
	if err := e.begin(); err != nil {
		return err
	}
	defer e.end()
	if amount == nil || amount.Sign() <= 0 {
		return ErrZeroAmount
	}
	now := e.clock()
	pool, _, err := e.loadPool(now)
	if err != nil {
		return err
	}
	acct, err := e.loadAccount(user)
	if err != nil {
		return err
	}
	if acct.Collateral.Cmp(amount) < 0 {
		return ErrInsufficientCollateral
	}

	remaining := new(big.Int).Sub(acct.Collateral, amount)
	debt := acct.currentDebt(pool.BorrowIndex)
	if debt.Sign() > 0 {
		collateralPrice, debtPrice, err := e.prices(now)
		if err != nil {
			return err
		}
		collateralValue := valueUsd(remaining, e.collateralDecimals, collateralPrice)
		debtValue := valueUsd(debt, e.debtDecimals, debtPrice)
		if !solvent(collateralValue, debtValue, pool.Params.CollateralFactor) {
			return ErrInsufficientCollateral
		}
	}

	if err := e.vault.TransferOut(AssetCollateral, user, amount); err != nil {
		return err
	}

	acct.Collateral = remaining
	pool.TotalCollateral = new(big.Int).Sub(pool.TotalCollateral, amount)
	if err := e.commit(pool, acct); err != nil {
		return err
	}
	e.emitter.Emit(WithdrawEvent{Meta: newMeta(now), Account: user, Amount: cloneInt(amount)})
	return nil
}

// Borrow draws the debt asset against the user's collateral. The post-borrow
// position must satisfy the collateral-factor gate and the pool must hold
// enough un-borrowed liquidity.
func (e *Engine) Borrow(user common.Address, amount *big.Int) error {
	if err := e.begin(); err != nil {
		return err
	}
	defer e.end()
	if amount == nil || amount.Sign() <= 0 {
		return ErrZeroAmount
	}
	now := e.clock()
	pool, _, err := e.loadPool(now)
	if err != nil {
		return err
	}
	if pool.availableLiquidity().Cmp(amount) < 0 {
		return ErrInsufficientLiquidity
	}
	acct, err := e.loadAccount(user)
	if err != nil {
		return err
	}

	collateralPrice, debtPrice, err := e.prices(now)
	if err != nil {
		return err
	}
	projectedDebt := new(big.Int).Add(acct.currentDebt(pool.BorrowIndex), amount)
	collateralValue := valueUsd(acct.Collateral, e.collateralDecimals, collateralPrice)
	debtValue := valueUsd(projectedDebt, e.debtDecimals, debtPrice)
	if !solvent(collateralValue, debtValue, pool.Params.CollateralFactor) {
		return ErrInsufficientCollateral
	}

	if err := e.vault.TransferOut(AssetDebt, user, amount); err != nil {
		return err
	}

	pool.increaseBorrow(acct, amount)
	pool.Cash = new(big.Int).Sub(pool.Cash, amount)
	if err := e.commit(pool, acct); err != nil {
		return err
	}
	e.emitter.Emit(BorrowEvent{Meta: newMeta(now), Account: user, Amount: cloneInt(amount)})
	return nil
}

// Repay pays down the user's debt, capped at the amount outstanding. The
// actual amount applied is returned.
func (e *Engine) Repay(user common.Address, amount *big.Int) (*big.Int, error) {
	if err := e.begin(); err != nil {
		return nil, err
	}
	defer e.end()
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrZeroAmount
	}
	now := e.clock()
	pool, _, err := e.loadPool(now)
	if err != nil {
		return nil, err
	}
	acct, err := e.loadAccount(user)
	if err != nil {
		return nil, err
	}
	if acct.currentDebt(pool.BorrowIndex).Sign() == 0 {
		return nil, ErrNothingToRepay
	}

	actual := minInt(amount, acct.currentDebt(pool.BorrowIndex))
	if err := e.vault.TransferIn(AssetDebt, user, actual); err != nil {
		return nil, err
	}

	applied := pool.decreaseBorrow(acct, actual)
	pool.Cash = new(big.Int).Add(pool.Cash, applied)
	if err := e.commit(pool, acct); err != nil {
		return nil, err
	}
	e.emitter.Emit(RepayEvent{
		Meta:      newMeta(now),
		Account:   user,
		Requested: cloneInt(amount),
		Applied:   cloneInt(applied),
	})
	return applied, nil
}

// Liquidate lets a third party repay part of an unhealthy borrower's debt in
// exchange for bonus-priced collateral. The repaid amount is clamped to the
// outstanding debt and the seizure to the available collateral. No minimum
// repay is enforced.
func (e *Engine) Liquidate(liquidator, borrower common.Address, repayAmount *big.Int) (repaid, seized *big.Int, err error) {
	if err := e.begin(); err != nil {
		return nil, nil, err
	}
	defer e.end()
	if liquidator == borrower {
		return nil, nil, ErrSelfLiquidation
	}
	if repayAmount == nil || repayAmount.Sign() <= 0 {
		return nil, nil, ErrZeroAmount
	}
	now := e.clock()
	pool, _, err := e.loadPool(now)
	if err != nil {
		return nil, nil, err
	}
	acct, err := e.loadAccount(borrower)
	if err != nil {
		return nil, nil, err
	}
	debt := acct.currentDebt(pool.BorrowIndex)
	if debt.Sign() == 0 {
		return nil, nil, ErrNoDebt
	}

	collateralPrice, debtPrice, err := e.prices(now)
	if err != nil {
		return nil, nil, err
	}
	collateralValue := valueUsd(acct.Collateral, e.collateralDecimals, collateralPrice)
	debtValue := valueUsd(debt, e.debtDecimals, debtPrice)
	if healthy(collateralValue, debtValue, pool.Params.LiquidationThreshold) {
		return nil, nil, ErrAccountHealthy
	}

	actual := minInt(repayAmount, debt)
	seize := wadMul(actual, pool.Params.LiquidationBonus)
	seize = minInt(seize, acct.Collateral)

	if err := e.vault.TransferIn(AssetDebt, liquidator, actual); err != nil {
		return nil, nil, err
	}
	if err := e.vault.TransferOut(AssetCollateral, liquidator, seize); err != nil {
		// Hand the repayment back; the vault transfer pair must net to zero
		// when the operation aborts. A failed refund strands the repayment in
		// custody, so it is surfaced alongside the original failure.
		if refundErr := e.vault.TransferOut(AssetDebt, liquidator, actual); refundErr != nil {
			return nil, nil, fmt.Errorf("%w (repayment refund failed: %v)", err, refundErr)
		}
		return nil, nil, err
	}

	applied := pool.decreaseBorrow(acct, actual)
	pool.Cash = new(big.Int).Add(pool.Cash, applied)
	acct.Collateral = new(big.Int).Sub(acct.Collateral, seize)
	pool.TotalCollateral = new(big.Int).Sub(pool.TotalCollateral, seize)
	if err := e.commit(pool, acct); err != nil {
		return nil, nil, err
	}
	e.emitter.Emit(LiquidationEvent{
		Meta:       newMeta(now),
		Liquidator: liquidator,
		Borrower:   borrower,
		Repaid:     cloneInt(applied),
		Seized:     cloneInt(seize),
	})
	return applied, seize, nil
}

// ProvideLiquidity moves debt-asset liquidity from the manager into the pool.
// Role checks happen outside the engine.
func (e *Engine) ProvideLiquidity(manager common.Address, amount *big.Int) error {
	if err := e.begin(); err != nil {
		return err
	}
	defer e.end()
	if amount == nil || amount.Sign() <= 0 {
		return ErrZeroAmount
	}
	now := e.clock()
	pool, _, err := e.loadPool(now)
	if err != nil {
		return err
	}
	if err := e.vault.TransferIn(AssetDebt, manager, amount); err != nil {
		return err
	}
	pool.Cash = new(big.Int).Add(pool.Cash, amount)
	if err := e.commit(pool); err != nil {
		return err
	}
	e.emitter.Emit(LiquidityEvent{Meta: newMeta(now), Manager: manager, Amount: cloneInt(amount), Provided: true})
	return nil
}

// WithdrawLiquidity returns un-borrowed debt-asset liquidity to the manager,
// capped at the pool's available balance.
func (e *Engine) WithdrawLiquidity(manager common.Address, amount *big.Int) error {
	if err := e.begin(); err != nil {
		return err
	}
	defer e.end()
	if amount == nil || amount.Sign() <= 0 {
		return ErrZeroAmount
	}
	now := e.clock()
	pool, _, err := e.loadPool(now)
	if err != nil {
		return err
	}
	if pool.availableLiquidity().Cmp(amount) < 0 {
		return ErrInsufficientLiquidity
	}
	if err := e.vault.TransferOut(AssetDebt, manager, amount); err != nil {
		return err
	}
	pool.Cash = new(big.Int).Sub(pool.Cash, amount)
	if err := e.commit(pool); err != nil {
		return err
	}
	e.emitter.Emit(LiquidityEvent{Meta: newMeta(now), Manager: manager, Amount: cloneInt(amount), Provided: false})
	return nil
}

// SetRiskParameters replaces the risk-parameter set after validating the
// ordering invariants.
func (e *Engine) SetRiskParameters(params RiskParameters) error {
	if err := e.begin(); err != nil {
		return err
	}
	defer e.end()
	if err := params.Validate(); err != nil {
		return err
	}
	now := e.clock()
	pool, _, err := e.loadPool(now)
	if err != nil {
		return err
	}
	pool.Params = params.Clone()
	if err := e.commit(pool); err != nil {
		return err
	}
	e.emitter.Emit(RiskParamsEvent{Meta: newMeta(now), Params: params.Clone()})
	return nil
}

// SetInterestRate changes the per-second rate. The pool accrues at the old
// rate up to now first, so no interval is double-counted or skipped.
func (e *Engine) SetInterestRate(ratePerSecond *big.Int) error {
	if err := e.begin(); err != nil {
		return err
	}
	defer e.end()
	now := e.clock()
	pool, _, err := e.loadPool(now)
	if err != nil {
		return err
	}
	pool.InterestRatePerSecond = cloneInt(ratePerSecond)
	if err := e.commit(pool); err != nil {
		return err
	}
	e.emitter.Emit(InterestRateEvent{Meta: newMeta(now), RatePerSecond: cloneInt(ratePerSecond)})
	return nil
}

// AccrueInterest forces an accrual to now. Idempotent when no time elapsed.
func (e *Engine) AccrueInterest() error {
	if err := e.begin(); err != nil {
		return err
	}
	defer e.end()
	now := e.clock()
	pool, interest, err := e.loadPool(now)
	if err != nil {
		return err
	}
	if err := e.commit(pool); err != nil {
		return err
	}
	e.emitter.Emit(AccrualEvent{
		Meta:         newMeta(now),
		BorrowIndex:  cloneInt(pool.BorrowIndex),
		TotalBorrows: cloneInt(pool.TotalBorrows),
		Interest:     interest,
	})
	return nil
}

// AccountData reports a position as of now, using the projected accrual so no
// state-changing call is needed first. Never blocks and never mutates.
func (e *Engine) AccountData(user common.Address) (AccountData, error) {
	if e.state == nil {
		return AccountData{}, ErrNilState
	}
	now := e.clock()
	pool, err := e.state.GetPool()
	if err != nil {
		return AccountData{}, err
	}
	if pool == nil {
		return AccountData{}, ErrPoolNotInitialized
	}
	pool.normalize()
	acct, err := e.loadAccount(user)
	if err != nil {
		return AccountData{}, err
	}

	index, _ := pool.previewAccrual(now)
	debt := debtFromBase(acct.BorrowBase, index)

	collateralPrice, debtPrice, err := e.prices(now)
	if err != nil {
		return AccountData{}, err
	}
	collateralValue := valueUsd(acct.Collateral, e.collateralDecimals, collateralPrice)
	debtValue := valueUsd(debt, e.debtDecimals, debtPrice)
	return AccountData{
		Collateral:   cloneInt(acct.Collateral),
		Debt:         debt,
		HealthFactor: healthFactor(collateralValue, debtValue, pool.Params.LiquidationThreshold),
		BorrowLimit:  maxBorrowInDebtTokens(collateralValue, pool.Params.CollateralFactor, debtPrice, e.debtDecimals),
	}, nil
}

// PoolData reports the pool aggregates as of now.
func (e *Engine) PoolData() (PoolData, error) {
	if e.state == nil {
		return PoolData{}, ErrNilState
	}
	pool, err := e.state.GetPool()
	if err != nil {
		return PoolData{}, err
	}
	if pool == nil {
		return PoolData{}, ErrPoolNotInitialized
	}
	pool.normalize()
	index, totalBorrows := pool.previewAccrual(e.clock())
	projected := pool.Clone()
	projected.TotalBorrows = totalBorrows
	return PoolData{
		TotalCollateral:    cloneInt(pool.TotalCollateral),
		TotalBorrows:       totalBorrows,
		AvailableLiquidity: pool.availableLiquidity(),
		Utilization:        projected.utilization(),
		BorrowIndex:        index,
	}, nil
}

// PriceData reports both oracle prices, validated and WAD scaled.
func (e *Engine) PriceData() (PriceData, error) {
	now := e.clock()
	collateralPrice, debtPrice, err := e.prices(now)
	if err != nil {
		return PriceData{}, err
	}
	return PriceData{CollateralPriceUsd: collateralPrice, DebtPriceUsd: debtPrice}, nil
}
