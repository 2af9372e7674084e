package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"lendpool/lending"
)

var (
	poolKey       = []byte("lending/pool")
	accountPrefix = "lending/account/"
)

// State persists the lending engine's pool and account records in a Database.
// Getters decode into fresh values, so the engine's copy-then-commit contract
// holds for free.
type State struct {
	db Database
}

// NewState wraps a database as engine state.
func NewState(db Database) *State {
	return &State{db: db}
}

type poolRecord struct {
	TotalCollateral       *big.Int  `json:"totalCollateral"`
	TotalBorrows          *big.Int  `json:"totalBorrows"`
	Cash                  *big.Int  `json:"cash"`
	BorrowIndex           *big.Int  `json:"borrowIndex"`
	InterestRatePerSecond *big.Int  `json:"interestRatePerSecond"`
	LastAccrual           time.Time `json:"lastAccrual"`
	CollateralFactor      *big.Int  `json:"collateralFactor"`
	LiquidationThreshold  *big.Int  `json:"liquidationThreshold"`
	LiquidationBonus      *big.Int  `json:"liquidationBonus"`
}

type accountRecord struct {
	Address    common.Address `json:"address"`
	Collateral *big.Int       `json:"collateral"`
	BorrowBase *big.Int       `json:"borrowBase"`
}

// GetPool implements lending.State.
func (s *State) GetPool() (*lending.Pool, error) {
	raw, err := s.db.Get(poolKey)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var rec poolRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode pool: %w", err)
	}
	return &lending.Pool{
		TotalCollateral:       rec.TotalCollateral,
		TotalBorrows:          rec.TotalBorrows,
		Cash:                  rec.Cash,
		BorrowIndex:           rec.BorrowIndex,
		InterestRatePerSecond: rec.InterestRatePerSecond,
		LastAccrual:           rec.LastAccrual,
		Params: lending.RiskParameters{
			CollateralFactor:     rec.CollateralFactor,
			LiquidationThreshold: rec.LiquidationThreshold,
			LiquidationBonus:     rec.LiquidationBonus,
		},
	}, nil
}

// PutPool implements lending.State.
func (s *State) PutPool(pool *lending.Pool) error {
	if pool == nil {
		return errors.New("storage: nil pool")
	}
	raw, err := json.Marshal(poolRecord{
		TotalCollateral:       pool.TotalCollateral,
		TotalBorrows:          pool.TotalBorrows,
		Cash:                  pool.Cash,
		BorrowIndex:           pool.BorrowIndex,
		InterestRatePerSecond: pool.InterestRatePerSecond,
		LastAccrual:           pool.LastAccrual,
		CollateralFactor:      pool.Params.CollateralFactor,
		LiquidationThreshold:  pool.Params.LiquidationThreshold,
		LiquidationBonus:      pool.Params.LiquidationBonus,
	})
	if err != nil {
		return fmt.Errorf("encode pool: %w", err)
	}
	return s.db.Put(poolKey, raw)
}

// GetAccount implements lending.State.
func (s *State) GetAccount(addr common.Address) (*lending.Account, error) {
	raw, err := s.db.Get(accountKey(addr))
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var rec accountRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode account %s: %w", addr.Hex(), err)
	}
	return &lending.Account{
		Address:    rec.Address,
		Collateral: rec.Collateral,
		BorrowBase: rec.BorrowBase,
	}, nil
}

// PutAccount implements lending.State.
func (s *State) PutAccount(acct *lending.Account) error {
	if acct == nil {
		return errors.New("storage: nil account")
	}
	raw, err := json.Marshal(accountRecord{
		Address:    acct.Address,
		Collateral: acct.Collateral,
		BorrowBase: acct.BorrowBase,
	})
	if err != nil {
		return fmt.Errorf("encode account %s: %w", acct.Address.Hex(), err)
	}
	return s.db.Put(accountKey(acct.Address), raw)
}

func accountKey(addr common.Address) []byte {
	return []byte(accountPrefix + addr.Hex())
}
