package lending

import "math/big"

// HealthFactorMax is the sentinel returned for debt-free positions. It orders
// above any real factor while remaining renderable as a plain integer.
var HealthFactorMax = mustBigInt("1000000000000000000000000000000000000") // 1e36

// healthFactor computes collateralValueUsd * threshold / debtValueUsd, WAD
// scaled. A result below 1e18 marks the position liquidatable. Debt-free
// positions (and any zero debt value, which would otherwise divide by zero)
// report the sentinel.
func healthFactor(collateralValueUsd, debtValueUsd, threshold *big.Int) *big.Int {
	if debtValueUsd == nil || debtValueUsd.Sign() == 0 {
		return cloneInt(HealthFactorMax)
	}
	scaled := wadMul(collateralValueUsd, threshold)
	return wadDiv(scaled, debtValueUsd)
}

// solvent is the stricter borrow-time gate: collateral value discounted by
// the collateral factor must cover the debt value.
func solvent(collateralValueUsd, debtValueUsd, collateralFactor *big.Int) bool {
	if debtValueUsd == nil || debtValueUsd.Sign() == 0 {
		return true
	}
	limit := wadMul(collateralValueUsd, collateralFactor)
	return limit.Cmp(debtValueUsd) >= 0
}

// healthy is the looser liquidation gate, evaluated at the liquidation
// threshold. Liquidation requires this to be false.
func healthy(collateralValueUsd, debtValueUsd, threshold *big.Int) bool {
	return healthFactor(collateralValueUsd, debtValueUsd, threshold).Cmp(wad) >= 0
}

// maxBorrowInDebtTokens converts the USD borrow limit back into debt-asset
// units at the current debt price, for informational queries.
func maxBorrowInDebtTokens(collateralValueUsd, collateralFactor, debtPriceUsd *big.Int, debtDecimals uint8) *big.Int {
	if debtPriceUsd == nil || debtPriceUsd.Sign() == 0 {
		return big.NewInt(0)
	}
	limitUsd := wadMul(collateralValueUsd, collateralFactor)
	return mulDiv(limitUsd, pow10(debtDecimals), debtPriceUsd)
}
