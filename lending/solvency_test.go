package lending

import (
	"math/big"
	"testing"
)

func usdWad(dollars int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(dollars), wad)
}

func TestHealthFactorSentinelForDebtFree(t *testing.T) {
	got := healthFactor(usdWad(100), big.NewInt(0), wadFrac(8, 10))
	if got.Cmp(HealthFactorMax) != 0 {
		t.Fatalf("debt-free health factor: %s", got)
	}
	got = healthFactor(usdWad(100), nil, wadFrac(8, 10))
	if got.Cmp(HealthFactorMax) != 0 {
		t.Fatalf("nil debt health factor: %s", got)
	}
}

func TestHealthFactorArithmetic(t *testing.T) {
	// $200 collateral, $100 debt, threshold 0.8: factor 1.6.
	got := healthFactor(usdWad(200), usdWad(100), wadFrac(8, 10))
	if got.Cmp(wadFrac(16, 10)) != 0 {
		t.Fatalf("health factor: got %s want %s", got, wadFrac(16, 10))
	}

	// $50 collateral, $70 debt, threshold 0.8: factor 4/7, below 1.
	got = healthFactor(usdWad(50), usdWad(70), wadFrac(8, 10))
	if got.Cmp(wad) >= 0 {
		t.Fatalf("underwater factor not below 1: %s", got)
	}
}

func TestSolventBoundary(t *testing.T) {
	factor := wadFrac(7, 10)
	collateral := usdWad(200)

	if !solvent(collateral, usdWad(140), factor) {
		t.Fatalf("exact limit must pass")
	}
	if solvent(collateral, new(big.Int).Add(usdWad(140), big.NewInt(1)), factor) {
		t.Fatalf("one above limit must fail")
	}
	if !solvent(collateral, big.NewInt(0), factor) {
		t.Fatalf("zero debt is always solvent")
	}
	if solvent(big.NewInt(0), usdWad(1), factor) {
		t.Fatalf("debt without collateral must fail")
	}
}

func TestHealthyUsesThreshold(t *testing.T) {
	// $100 collateral, $75 debt: fails at factor 0.7 but holds at
	// threshold 0.8.
	collateral := usdWad(100)
	debt := usdWad(75)
	if solvent(collateral, debt, wadFrac(7, 10)) {
		t.Fatalf("position should fail the borrow gate")
	}
	if !healthy(collateral, debt, wadFrac(8, 10)) {
		t.Fatalf("position should pass the liquidation gate")
	}
}

func TestMaxBorrowInDebtTokens(t *testing.T) {
	// $200 at factor 0.7, debt priced $2: 70 tokens.
	price := new(big.Int).Mul(big.NewInt(2), wad)
	got := maxBorrowInDebtTokens(usdWad(200), wadFrac(7, 10), price, 18)
	if got.Cmp(tokens(70)) != 0 {
		t.Fatalf("max borrow: got %s want %s", got, tokens(70))
	}
	if got := maxBorrowInDebtTokens(usdWad(200), wadFrac(7, 10), big.NewInt(0), 18); got.Sign() != 0 {
		t.Fatalf("zero price: %s", got)
	}
}
