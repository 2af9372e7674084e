package lending

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// State is the persistence boundary of the engine. Implementations must
// return copies from the getters: mutations staged by the engine become
// visible only through the Put calls, which is what makes every operation
// all-or-nothing.
type State interface {
	// GetPool returns the pool snapshot, or nil when not yet bootstrapped.
	GetPool() (*Pool, error)
	PutPool(*Pool) error
	// GetAccount returns the account snapshot, or nil when the address has
	// never interacted with the pool.
	GetAccount(addr common.Address) (*Account, error)
	PutAccount(*Account) error
}

// Asset identifies which of the two pool assets a vault transfer moves.
type Asset uint8

const (
	// AssetCollateral is the asset users pledge.
	AssetCollateral Asset = iota
	// AssetDebt is the asset users borrow.
	AssetDebt
)

func (a Asset) String() string {
	if a == AssetCollateral {
		return "collateral"
	}
	return "debt"
}

// TokenVault is the external asset-transfer primitive. Transfers are assumed
// atomic: they either complete or fail without partial effect. Vault
// implementations must not call back into the engine; such calls are rejected
// with ErrReentrantCall.
type TokenVault interface {
	// TransferIn pulls amount of the asset from the holder into pool custody.
	TransferIn(asset Asset, from common.Address, amount *big.Int) error
	// TransferOut releases amount of the asset from pool custody to the
	// recipient.
	TransferOut(asset Asset, to common.Address, amount *big.Int) error
}
