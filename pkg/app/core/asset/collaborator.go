package asset

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Token is the minimal ERC20 surface the exchange consumes.
// A handle is bound to its caller: Transfer and TransferFrom act with the
// bound address as msg.sender (compare abigen's *Session types).
type Token interface {
	Transfer(ctx context.Context, to common.Address, amount *uint256.Int) error
	TransferFrom(ctx context.Context, from, to common.Address, amount *uint256.Int) error
	BalanceOf(ctx context.Context, owner common.Address) (*uint256.Int, error)
	Allowance(ctx context.Context, owner, spender common.Address) (*uint256.Int, error)
}

// Resolver looks up the token contract behind an external asset, bound to caller
type Resolver interface {
	Token(addr common.Address, caller common.Address) (Token, error)
}

// NativeBank releases native currency held by the bound address
type NativeBank interface {
	Send(ctx context.Context, to common.Address, amount *uint256.Int) error
}
