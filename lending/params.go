package lending

import "math/big"

// RiskParameters groups the manager-settable safety limits. All three are WAD
// scaled: factors are fractions of 1e18, the bonus is a multiplier at or above
// 1e18.
type RiskParameters struct {
	// CollateralFactor caps borrowing: collateralValue * factor bounds the
	// debt value an account may take on. Strictly positive, at most 1.0.
	CollateralFactor *big.Int
	// LiquidationThreshold is the looser bound that, once crossed, makes a
	// position liquidatable. At least the collateral factor, at most 1.0.
	LiquidationThreshold *big.Int
	// LiquidationBonus multiplies the repaid amount to price the collateral
	// seized by a liquidator. At least 1.0.
	LiquidationBonus *big.Int
}

// Clone returns a deep copy of the parameter set.
func (p RiskParameters) Clone() RiskParameters {
	return RiskParameters{
		CollateralFactor:     cloneInt(p.CollateralFactor),
		LiquidationThreshold: cloneInt(p.LiquidationThreshold),
		LiquidationBonus:     cloneInt(p.LiquidationBonus),
	}
}

// Validate enforces the ordering invariants:
// 0 < collateralFactor <= liquidationThreshold <= 1.0 and
// liquidationBonus >= 1.0.
func (p RiskParameters) Validate() error {
	if p.CollateralFactor == nil || p.CollateralFactor.Sign() <= 0 {
		return ErrInvalidRiskParameters
	}
	if p.CollateralFactor.Cmp(wad) > 0 {
		return ErrInvalidRiskParameters
	}
	if p.LiquidationThreshold == nil || p.LiquidationThreshold.Cmp(p.CollateralFactor) < 0 {
		return ErrInvalidRiskParameters
	}
	if p.LiquidationThreshold.Cmp(wad) > 0 {
		return ErrInvalidRiskParameters
	}
	if p.LiquidationBonus == nil || p.LiquidationBonus.Cmp(wad) < 0 {
		return ErrInvalidRiskParameters
	}
	return nil
}
