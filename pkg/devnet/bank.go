package devnet

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/uhyunpark/hyperswap/pkg/app/core/asset"
)

var ErrInsufficientFunds = errors.New("insufficient native funds")

// Bank holds native-currency wallet balances for the devnet
type Bank struct {
	mu       sync.RWMutex
	balances map[common.Address]*uint256.Int
	onChange func()
}

// NewBank seeds wallets from a genesis allocation
func NewBank(alloc map[common.Address]*uint256.Int) *Bank {
	b := &Bank{balances: make(map[common.Address]*uint256.Int, len(alloc))}
	for addr, amt := range alloc {
		b.balances[addr] = amt.Clone()
	}
	return b
}

func (b *Bank) BalanceOf(addr common.Address) *uint256.Int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if v, ok := b.balances[addr]; ok {
		return v.Clone()
	}
	return new(uint256.Int)
}

// Transfer moves native value between wallets
func (b *Bank) Transfer(from, to common.Address, amount *uint256.Int) error {
	b.mu.Lock()
	if err := b.moveLocked(from, to, amount); err != nil {
		b.mu.Unlock()
		return err
	}
	onChange := b.onChange
	b.mu.Unlock()

	if onChange != nil {
		onChange()
	}
	return nil
}

func (b *Bank) moveLocked(from, to common.Address, amount *uint256.Int) error {
	src := b.get(from)
	if src.Lt(amount) {
		return fmt.Errorf("%w: %s has %s, needs %s", ErrInsufficientFunds, from.Hex(), src.Dec(), amount.Dec())
	}
	dst := b.get(to)
	if from != to {
		if _, overflow := new(uint256.Int).AddOverflow(dst, amount); overflow {
			return fmt.Errorf("credit %s: balance overflow", to.Hex())
		}
	}
	src.Sub(src, amount)
	dst.Add(dst, amount)
	return nil
}

// watch registers fn to run after every successful transfer, outside the lock
func (b *Bank) watch(fn func()) {
	b.mu.Lock()
	b.onChange = fn
	b.mu.Unlock()
}

func (b *Bank) snapshot() map[common.Address]*uint256.Int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return cloneBalances(b.balances)
}

// restore replaces every wallet with saved
func (b *Bank) restore(saved map[common.Address]*uint256.Int) {
	b.mu.Lock()
	b.balances = cloneBalances(saved)
	b.mu.Unlock()
}

func cloneBalances(m map[common.Address]*uint256.Int) map[common.Address]*uint256.Int {
	out := make(map[common.Address]*uint256.Int, len(m))
	for addr, v := range m {
		if v != nil && !v.IsZero() {
			out[addr] = v.Clone()
		}
	}
	return out
}

func (b *Bank) get(addr common.Address) *uint256.Int {
	v, ok := b.balances[addr]
	if !ok {
		v = new(uint256.Int)
		b.balances[addr] = v
	}
	return v
}

// Account returns a NativeBank that sends from addr
func (b *Bank) Account(addr common.Address) asset.NativeBank {
	return &account{bank: b, addr: addr}
}

type account struct {
	bank *Bank
	addr common.Address
}

func (a *account) Send(ctx context.Context, to common.Address, amount *uint256.Int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return a.bank.Transfer(a.addr, to, amount)
}
