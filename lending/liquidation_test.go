package lending

import (
	"errors"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

// Sets up a borrower at 100 collateral / 70 debt, then drops the collateral
// price to $0.50 so the health factor sits well below 1.
func underwaterFixture(t *testing.T) (*fixture, common.Address, common.Address) {
	t.Helper()
	f := newFixture(t, defaultParams(), big.NewInt(0))
	borrower := addr(0x20)
	liquidator := addr(0x21)
	manager := addr(0xAA)

	f.fundAndProvide(t, manager, tokens(1000))
	f.deposit(t, borrower, tokens(100))
	if err := f.engine.Borrow(borrower, tokens(70)); err != nil {
		t.Fatalf("borrow: %v", err)
	}

	f.collateralFeed.Set(usd8(0.5), f.clock.now)
	f.vault.Credit(AssetDebt, liquidator, tokens(100))
	return f, borrower, liquidator
}

func TestLiquidateSeizesBonusCollateral(t *testing.T) {
	f, borrower, liquidator := underwaterFixture(t)

	repaid, seized, err := f.engine.Liquidate(liquidator, borrower, tokens(10))
	if err != nil {
		t.Fatalf("liquidate: %v", err)
	}
	if repaid.Cmp(tokens(10)) != 0 {
		t.Fatalf("repaid: got %s want %s", repaid, tokens(10))
	}
	if seized.Cmp(tokens(11)) != 0 {
		t.Fatalf("seized: got %s want %s", seized, tokens(11))
	}

	acct := f.state.accounts[borrower]
	if acct.Collateral.Cmp(tokens(89)) != 0 {
		t.Fatalf("borrower collateral: %s", acct.Collateral)
	}
	if got := acct.currentDebt(f.state.pool.BorrowIndex); got.Cmp(tokens(60)) != 0 {
		t.Fatalf("borrower debt: %s", got)
	}
	if got := f.vault.Balance(AssetCollateral, liquidator); got.Cmp(tokens(11)) != 0 {
		t.Fatalf("liquidator collateral: %s", got)
	}
	if got := f.state.pool.TotalCollateral; got.Cmp(tokens(89)) != 0 {
		t.Fatalf("pool total collateral: %s", got)
	}
	if got := f.state.pool.Cash; got.Cmp(tokens(940)) != 0 {
		t.Fatalf("pool cash: %s", got)
	}
}

func TestLiquidateClampsRepayToDebt(t *testing.T) {
	f, borrower, liquidator := underwaterFixture(t)

	repaid, seized, err := f.engine.Liquidate(liquidator, borrower, tokens(500))
	if err != nil {
		t.Fatalf("liquidate: %v", err)
	}
	if repaid.Cmp(tokens(70)) != 0 {
		t.Fatalf("repaid: got %s want %s", repaid, tokens(70))
	}
	if seized.Cmp(tokens(77)) != 0 {
		t.Fatalf("seized: got %s want %s", seized, tokens(77))
	}
	if got := f.state.accounts[borrower].BorrowBase; got.Sign() != 0 {
		t.Fatalf("borrow base after full liquidation: %s", got)
	}
}

func TestLiquidateClampsSeizureToCollateral(t *testing.T) {
	f := newFixture(t, defaultParams(), big.NewInt(0))
	borrower := addr(0x22)
	liquidator := addr(0x23)
	manager := addr(0xAA)

	f.fundAndProvide(t, manager, tokens(1000))
	f.deposit(t, borrower, tokens(100))
	if err := f.engine.Borrow(borrower, tokens(130)); err != nil {
		t.Fatalf("borrow: %v", err)
	}

	// Collateral at $0.10: the bonus-priced seizure for a full repay exceeds
	// what the borrower holds.
	f.collateralFeed.Set(usd8(0.1), f.clock.now)
	f.vault.Credit(AssetDebt, liquidator, tokens(200))

	repaid, seized, err := f.engine.Liquidate(liquidator, borrower, tokens(130))
	if err != nil {
		t.Fatalf("liquidate: %v", err)
	}
	if repaid.Cmp(tokens(130)) != 0 {
		t.Fatalf("repaid: %s", repaid)
	}
	if seized.Cmp(tokens(100)) != 0 {
		t.Fatalf("seized not clamped to collateral: %s", seized)
	}
	if got := f.state.accounts[borrower].Collateral; got.Sign() != 0 {
		t.Fatalf("borrower collateral after clamp: %s", got)
	}
}

func TestLiquidateRejectsHealthyPosition(t *testing.T) {
	f := newFixture(t, defaultParams(), big.NewInt(0))
	borrower := addr(0x24)
	liquidator := addr(0x25)
	manager := addr(0xAA)

	f.fundAndProvide(t, manager, tokens(1000))
	f.deposit(t, borrower, tokens(100))
	if err := f.engine.Borrow(borrower, tokens(70)); err != nil {
		t.Fatalf("borrow: %v", err)
	}

	f.vault.Credit(AssetDebt, liquidator, tokens(100))
	if _, _, err := f.engine.Liquidate(liquidator, borrower, tokens(10)); !errors.Is(err, ErrAccountHealthy) {
		t.Fatalf("healthy liquidation: %v", err)
	}
}

func TestLiquidateGuards(t *testing.T) {
	f, borrower, liquidator := underwaterFixture(t)

	if _, _, err := f.engine.Liquidate(borrower, borrower, tokens(10)); !errors.Is(err, ErrSelfLiquidation) {
		t.Fatalf("self liquidation: %v", err)
	}
	if _, _, err := f.engine.Liquidate(liquidator, borrower, big.NewInt(0)); !errors.Is(err, ErrZeroAmount) {
		t.Fatalf("zero repay: %v", err)
	}
	debtFree := addr(0x26)
	if _, _, err := f.engine.Liquidate(liquidator, debtFree, tokens(10)); !errors.Is(err, ErrNoDebt) {
		t.Fatalf("debt-free target: %v", err)
	}
}

func TestLiquidateRequiresFreshOracle(t *testing.T) {
	f, borrower, liquidator := underwaterFixture(t)

	f.clock.advance(2 * 3600)
	if _, _, err := f.engine.Liquidate(liquidator, borrower, tokens(10)); !errors.Is(err, ErrStalePrice) {
		t.Fatalf("stale oracle: %v", err)
	}
	if got := f.state.accounts[borrower].currentDebt(f.state.pool.BorrowIndex); got.Cmp(tokens(70)) != 0 {
		t.Fatalf("debt changed on aborted liquidation: %s", got)
	}
}

func TestLiquidateUnwindsRepayWhenSeizureFails(t *testing.T) {
	f, borrower, liquidator := underwaterFixture(t)

	// Drain the vault's collateral custody so the seizure transfer fails.
	blocked := &seizeBlockingVault{inner: f.vault}
	f.engine.vault = blocked

	before := f.vault.Balance(AssetDebt, liquidator)
	if _, _, err := f.engine.Liquidate(liquidator, borrower, tokens(10)); !errors.Is(err, ErrVaultInsufficientFunds) {
		t.Fatalf("blocked seizure: %v", err)
	}
	if got := f.vault.Balance(AssetDebt, liquidator); got.Cmp(before) != 0 {
		t.Fatalf("repayment not refunded: got %s want %s", got, before)
	}
	if got := f.state.accounts[borrower].currentDebt(f.state.pool.BorrowIndex); got.Cmp(tokens(70)) != 0 {
		t.Fatalf("debt changed: %s", got)
	}
}

func TestLiquidateSurfacesFailedRefund(t *testing.T) {
	f, borrower, liquidator := underwaterFixture(t)

	// Every outbound transfer fails: the seizure aborts the operation and the
	// refund of the pulled repayment cannot complete either.
	f.engine.vault = &outBlockingVault{inner: f.vault}

	_, _, err := f.engine.Liquidate(liquidator, borrower, tokens(10))
	if !errors.Is(err, ErrVaultInsufficientFunds) {
		t.Fatalf("blocked seizure: %v", err)
	}
	if !strings.Contains(err.Error(), "refund failed") {
		t.Fatalf("stranded refund not surfaced: %v", err)
	}
	if got := f.state.accounts[borrower].currentDebt(f.state.pool.BorrowIndex); got.Cmp(tokens(70)) != 0 {
		t.Fatalf("debt changed: %s", got)
	}
}

type outBlockingVault struct {
	inner *MemVault
}

func (v *outBlockingVault) TransferIn(asset Asset, from common.Address, amount *big.Int) error {
	return v.inner.TransferIn(asset, from, amount)
}

func (v *outBlockingVault) TransferOut(Asset, common.Address, *big.Int) error {
	return ErrVaultInsufficientFunds
}

type seizeBlockingVault struct {
	inner *MemVault
}

func (v *seizeBlockingVault) TransferIn(asset Asset, from common.Address, amount *big.Int) error {
	return v.inner.TransferIn(asset, from, amount)
}

func (v *seizeBlockingVault) TransferOut(asset Asset, to common.Address, amount *big.Int) error {
	if asset == AssetCollateral {
		return ErrVaultInsufficientFunds
	}
	return v.inner.TransferOut(asset, to, amount)
}
