package lending

import (
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// ErrVaultInsufficientFunds mirrors the reverting transfer primitive: a pull
// from a holder without enough balance fails with no partial effect.
var ErrVaultInsufficientFunds = errors.New("vault: insufficient funds")

// MemVault is an in-process TokenVault tracking per-holder balances for both
// assets. The daemon uses it as the custody ledger; production deployments
// substitute their own settlement-backed vault.
type MemVault struct {
	mu       sync.Mutex
	balances map[Asset]map[common.Address]*big.Int
	pool     map[Asset]*big.Int
}

// NewMemVault constructs an empty vault.
func NewMemVault() *MemVault {
	return &MemVault{
		balances: map[Asset]map[common.Address]*big.Int{
			AssetCollateral: {},
			AssetDebt:       {},
		},
		pool: map[Asset]*big.Int{
			AssetCollateral: big.NewInt(0),
			AssetDebt:       big.NewInt(0),
		},
	}
}

// Credit funds a holder's balance, used to seed test and demo accounts.
func (v *MemVault) Credit(asset Asset, holder common.Address, amount *big.Int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.balances[asset][holder] = new(big.Int).Add(v.balance(asset, holder), amount)
}

// Balance reports a holder's free balance.
func (v *MemVault) Balance(asset Asset, holder common.Address) *big.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return new(big.Int).Set(v.balance(asset, holder))
}

// PoolBalance reports the custody balance held for the pool.
func (v *MemVault) PoolBalance(asset Asset) *big.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return new(big.Int).Set(v.pool[asset])
}

func (v *MemVault) balance(asset Asset, holder common.Address) *big.Int {
	if b, ok := v.balances[asset][holder]; ok {
		return b
	}
	return big.NewInt(0)
}

// TransferIn implements TokenVault.
func (v *MemVault) TransferIn(asset Asset, from common.Address, amount *big.Int) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	balance := v.balance(asset, from)
	if balance.Cmp(amount) < 0 {
		return ErrVaultInsufficientFunds
	}
	v.balances[asset][from] = new(big.Int).Sub(balance, amount)
	v.pool[asset] = new(big.Int).Add(v.pool[asset], amount)
	return nil
}

// TransferOut implements TokenVault.
func (v *MemVault) TransferOut(asset Asset, to common.Address, amount *big.Int) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.pool[asset].Cmp(amount) < 0 {
		return ErrVaultInsufficientFunds
	}
	v.pool[asset] = new(big.Int).Sub(v.pool[asset], amount)
	v.balances[asset][to] = new(big.Int).Add(v.balance(asset, to), amount)
	return nil
}
