package lending

import "math/big"

var (
	// wad is the 1e18 fixed-point scale used for prices, rates, indexes and
	// all ratio parameters.
	wad    = big.NewInt(1_000_000_000_000_000_000)
	bigTen = big.NewInt(10)
)

// Wad returns the 1e18 fixed-point unit.
func Wad() *big.Int { return new(big.Int).Set(wad) }

func cloneInt(x *big.Int) *big.Int {
	if x == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(x)
}

// wadMul computes a*b/1e18 rounding toward zero. The intermediate product is
// carried at full width, so the result never overflows before the division.
func wadMul(a, b *big.Int) *big.Int {
	if a == nil || b == nil {
		return big.NewInt(0)
	}
	product := new(big.Int).Mul(a, b)
	return product.Quo(product, wad)
}

// wadDiv computes a*1e18/b rounding toward zero.
func wadDiv(a, b *big.Int) *big.Int {
	if a == nil || b == nil || b.Sign() == 0 {
		return big.NewInt(0)
	}
	numerator := new(big.Int).Mul(a, wad)
	return numerator.Quo(numerator, b)
}

// wadDivUp computes a*1e18/b rounding away from zero. Used where the result
// is owed to the pool and must never be understated.
func wadDivUp(a, b *big.Int) *big.Int {
	if a == nil || b == nil || b.Sign() == 0 {
		return big.NewInt(0)
	}
	numerator := new(big.Int).Mul(a, wad)
	return ceilQuo(numerator, b)
}

// wadMulUp computes a*b/1e18 rounding away from zero.
func wadMulUp(a, b *big.Int) *big.Int {
	if a == nil || b == nil {
		return big.NewInt(0)
	}
	product := new(big.Int).Mul(a, b)
	return ceilQuo(product, wad)
}

func ceilQuo(num, den *big.Int) *big.Int {
	if den == nil || den.Sign() == 0 {
		return big.NewInt(0)
	}
	quo, rem := new(big.Int).QuoRem(num, den, new(big.Int))
	if rem.Sign() != 0 {
		quo.Add(quo, big.NewInt(1))
	}
	return quo
}

// mulDiv computes a*b/den at full intermediate width, rounding toward zero.
func mulDiv(a, b, den *big.Int) *big.Int {
	if a == nil || b == nil || den == nil || den.Sign() == 0 {
		return big.NewInt(0)
	}
	product := new(big.Int).Mul(a, b)
	return product.Quo(product, den)
}

// pow10 returns 10^n for asset decimal rescaling.
func pow10(n uint8) *big.Int {
	return new(big.Int).Exp(bigTen, big.NewInt(int64(n)), nil)
}

func minInt(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}

func mustBigInt(value string) *big.Int {
	v, ok := new(big.Int).SetString(value, 10)
	if !ok {
		panic("invalid big integer constant")
	}
	return v
}
