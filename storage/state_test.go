package storage

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"lendpool/lending"
)

func wadInt(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
}

func testPool() *lending.Pool {
	return &lending.Pool{
		TotalCollateral:       wadInt(100),
		TotalBorrows:          wadInt(40),
		Cash:                  wadInt(60),
		BorrowIndex:           lending.Wad(),
		InterestRatePerSecond: big.NewInt(1_000_000_000_000),
		LastAccrual:           time.Unix(1_700_000_000, 0).UTC(),
		Params: lending.RiskParameters{
			CollateralFactor:     big.NewInt(700_000_000_000_000_000),
			LiquidationThreshold: big.NewInt(800_000_000_000_000_000),
			LiquidationBonus:     big.NewInt(1_100_000_000_000_000_000),
		},
	}
}

func TestPoolRoundTrip(t *testing.T) {
	state := NewState(NewMemDB())

	got, err := state.GetPool()
	if err != nil {
		t.Fatalf("get empty pool: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil pool before bootstrap, got %+v", got)
	}

	want := testPool()
	if err := state.PutPool(want); err != nil {
		t.Fatalf("put pool: %v", err)
	}
	got, err = state.GetPool()
	if err != nil {
		t.Fatalf("get pool: %v", err)
	}
	if got.TotalBorrows.Cmp(want.TotalBorrows) != 0 || got.Cash.Cmp(want.Cash) != 0 {
		t.Fatalf("pool mismatch: %+v", got)
	}
	if !got.LastAccrual.Equal(want.LastAccrual) {
		t.Fatalf("last accrual: got %s want %s", got.LastAccrual, want.LastAccrual)
	}
	if got.Params.LiquidationBonus.Cmp(want.Params.LiquidationBonus) != 0 {
		t.Fatalf("params mismatch: %+v", got.Params)
	}
}

func TestAccountRoundTrip(t *testing.T) {
	state := NewState(NewMemDB())
	addr := common.HexToAddress("0x00000000000000000000000000000000000000aa")

	got, err := state.GetAccount(addr)
	if err != nil {
		t.Fatalf("get unknown account: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil for unknown account, got %+v", got)
	}

	want := &lending.Account{Address: addr, Collateral: wadInt(25), BorrowBase: wadInt(5)}
	if err := state.PutAccount(want); err != nil {
		t.Fatalf("put account: %v", err)
	}
	got, err = state.GetAccount(addr)
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	if got.Address != addr || got.Collateral.Cmp(want.Collateral) != 0 || got.BorrowBase.Cmp(want.BorrowBase) != 0 {
		t.Fatalf("account mismatch: %+v", got)
	}
}

func TestGetReturnsFreshValues(t *testing.T) {
	state := NewState(NewMemDB())
	if err := state.PutPool(testPool()); err != nil {
		t.Fatalf("put pool: %v", err)
	}

	first, _ := state.GetPool()
	first.Cash.SetInt64(0)

	second, err := state.GetPool()
	if err != nil {
		t.Fatalf("get pool: %v", err)
	}
	if second.Cash.Cmp(wadInt(60)) != 0 {
		t.Fatalf("stored pool mutated through a snapshot: %s", second.Cash)
	}
}

func TestLevelDBBacked(t *testing.T) {
	db, err := NewLevelDB(t.TempDir())
	if err != nil {
		t.Fatalf("open leveldb: %v", err)
	}
	defer db.Close()

	state := NewState(db)
	if err := state.PutPool(testPool()); err != nil {
		t.Fatalf("put pool: %v", err)
	}
	got, err := state.GetPool()
	if err != nil {
		t.Fatalf("get pool: %v", err)
	}
	if got.TotalCollateral.Cmp(wadInt(100)) != 0 {
		t.Fatalf("pool mismatch after leveldb round trip: %+v", got)
	}
}
