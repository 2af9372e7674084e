package lending

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// Event is a structured notification emitted after a successful mutating
// operation. Events are for downstream observers and indexers; they are not
// part of the engine's correctness contract.
type Event interface {
	EventType() string
}

// Emitter broadcasts events to downstream subscribers.
type Emitter interface {
	Emit(Event)
}

// NoopEmitter satisfies Emitter while discarding all events.
type NoopEmitter struct{}

// Emit implements Emitter.
func (NoopEmitter) Emit(Event) {}

// MultiEmitter fans one event out to several subscribers.
type MultiEmitter []Emitter

// Emit implements Emitter.
func (m MultiEmitter) Emit(ev Event) {
	for _, e := range m {
		if e != nil {
			e.Emit(ev)
		}
	}
}

// Event type identifiers.
const (
	TypeDeposit            = "pool.deposit"
	TypeWithdraw           = "pool.withdraw"
	TypeBorrow             = "pool.borrow"
	TypeRepay              = "pool.repay"
	TypeLiquidation        = "pool.liquidation"
	TypeAccrual            = "pool.accrual"
	TypeLiquidityProvided  = "pool.liquidity_provided"
	TypeLiquidityWithdrawn = "pool.liquidity_withdrawn"
	TypeRiskParamsUpdated  = "pool.risk_params_updated"
	TypeInterestRateSet    = "pool.interest_rate_set"
	TypeOraclesSet         = "pool.oracles_set"
)

// Meta carries the fields shared by every event.
type Meta struct {
	ID        uuid.UUID
	Timestamp time.Time
}

func newMeta(now time.Time) Meta {
	return Meta{ID: uuid.New(), Timestamp: now}
}

// DepositEvent records a collateral deposit.
type DepositEvent struct {
	Meta
	Account common.Address
	Amount  *big.Int
}

func (DepositEvent) EventType() string { return TypeDeposit }

// WithdrawEvent records a collateral withdrawal.
type WithdrawEvent struct {
	Meta
	Account common.Address
	Amount  *big.Int
}

func (WithdrawEvent) EventType() string { return TypeWithdraw }

// BorrowEvent records a draw of the debt asset.
type BorrowEvent struct {
	Meta
	Account common.Address
	Amount  *big.Int
}

func (BorrowEvent) EventType() string { return TypeBorrow }

// RepayEvent records a repayment; Applied may be lower than Requested when
// the repayment was capped at the outstanding debt.
type RepayEvent struct {
	Meta
	Account   common.Address
	Requested *big.Int
	Applied   *big.Int
}

func (RepayEvent) EventType() string { return TypeRepay }

// LiquidationEvent records a third-party liquidation.
type LiquidationEvent struct {
	Meta
	Liquidator common.Address
	Borrower   common.Address
	Repaid     *big.Int
	Seized     *big.Int
}

func (LiquidationEvent) EventType() string { return TypeLiquidation }

// AccrualEvent records an explicit interest accrual.
type AccrualEvent struct {
	Meta
	BorrowIndex  *big.Int
	TotalBorrows *big.Int
	Interest     *big.Int
}

func (AccrualEvent) EventType() string { return TypeAccrual }

// LiquidityEvent records a manager liquidity movement.
type LiquidityEvent struct {
	Meta
	Manager  common.Address
	Amount   *big.Int
	Provided bool
}

func (e LiquidityEvent) EventType() string {
	if e.Provided {
		return TypeLiquidityProvided
	}
	return TypeLiquidityWithdrawn
}

// RiskParamsEvent records a risk-parameter change.
type RiskParamsEvent struct {
	Meta
	Params RiskParameters
}

func (RiskParamsEvent) EventType() string { return TypeRiskParamsUpdated }

// InterestRateEvent records an interest-rate change.
type InterestRateEvent struct {
	Meta
	RatePerSecond *big.Int
}

func (InterestRateEvent) EventType() string { return TypeInterestRateSet }

// OraclesEvent records a feed rewiring.
type OraclesEvent struct {
	Meta
}

func (OraclesEvent) EventType() string { return TypeOraclesSet }
