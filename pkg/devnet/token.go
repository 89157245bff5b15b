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

var (
	ErrInsufficientBalance   = errors.New("token: insufficient balance")
	ErrInsufficientAllowance = errors.New("token: insufficient allowance")
	ErrInvalidRecipient      = errors.New("token: invalid recipient")
)

const (
	TokenName     = "BMR Token"
	TokenSymbol   = "BMR"
	TokenDecimals = 18
)

// TokenSupply is 1,000,000 whole tokens in base units
var TokenSupply = new(uint256.Int).Mul(uint256.NewInt(1_000_000), new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(TokenDecimals)))

// Token is an in-memory ERC20 with the reference token's metadata.
// The whole supply is minted to the deployer.
type Token struct {
	address     common.Address
	name        string
	symbol      string
	decimals    uint8
	totalSupply *uint256.Int

	mu         sync.RWMutex
	balances   map[common.Address]*uint256.Int
	allowances map[common.Address]map[common.Address]*uint256.Int

	// hook runs after a successful state change and outside the token lock.
	// Tests use it to play a malicious contract that calls back.
	hook func(ctx context.Context, from, to common.Address, amount *uint256.Int)

	// onChange runs after every successful state change, before hook
	onChange func()
}

func NewToken(addr, deployer common.Address) *Token {
	return &Token{
		address:     addr,
		name:        TokenName,
		symbol:      TokenSymbol,
		decimals:    TokenDecimals,
		totalSupply: TokenSupply.Clone(),
		balances:    map[common.Address]*uint256.Int{deployer: TokenSupply.Clone()},
		allowances:  make(map[common.Address]map[common.Address]*uint256.Int),
	}
}

func (t *Token) Address() common.Address   { return t.address }
func (t *Token) Name() string              { return t.name }
func (t *Token) Symbol() string            { return t.symbol }
func (t *Token) Decimals() uint8           { return t.decimals }
func (t *Token) TotalSupply() *uint256.Int { return t.totalSupply.Clone() }
func (t *Token) Asset() asset.Asset        { return asset.External(t.address) }

// SetHook installs fn to run after every transfer
func (t *Token) SetHook(fn func(ctx context.Context, from, to common.Address, amount *uint256.Int)) {
	t.mu.Lock()
	t.hook = fn
	t.mu.Unlock()
}

func (t *Token) BalanceOf(owner common.Address) *uint256.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if v, ok := t.balances[owner]; ok {
		return v.Clone()
	}
	return new(uint256.Int)
}

func (t *Token) Allowance(owner, spender common.Address) *uint256.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if v, ok := t.allowances[owner][spender]; ok {
		return v.Clone()
	}
	return new(uint256.Int)
}

// Transfer moves amount from sender to to
func (t *Token) Transfer(ctx context.Context, sender, to common.Address, amount *uint256.Int) error {
	t.mu.Lock()
	if err := t.moveLocked(sender, to, amount); err != nil {
		t.mu.Unlock()
		return err
	}
	hook, onChange := t.hook, t.onChange
	t.mu.Unlock()

	if onChange != nil {
		onChange()
	}
	if hook != nil {
		hook(ctx, sender, to, amount)
	}
	return nil
}

func (t *Token) Approve(owner, spender common.Address, amount *uint256.Int) error {
	if spender == (common.Address{}) {
		return fmt.Errorf("%w: approve zero address", ErrInvalidRecipient)
	}
	t.mu.Lock()
	m, ok := t.allowances[owner]
	if !ok {
		m = make(map[common.Address]*uint256.Int)
		t.allowances[owner] = m
	}
	m[spender] = amount.Clone()
	onChange := t.onChange
	t.mu.Unlock()

	if onChange != nil {
		onChange()
	}
	return nil
}

// TransferFrom moves amount from from to to, spending spender's allowance
func (t *Token) TransferFrom(ctx context.Context, spender, from, to common.Address, amount *uint256.Int) error {
	t.mu.Lock()
	allowed := new(uint256.Int)
	if v, ok := t.allowances[from][spender]; ok {
		allowed = v
	}
	if allowed.Lt(amount) {
		t.mu.Unlock()
		return fmt.Errorf("%w: %s allows %s %s, needs %s", ErrInsufficientAllowance, from.Hex(), spender.Hex(), allowed.Dec(), amount.Dec())
	}
	if err := t.moveLocked(from, to, amount); err != nil {
		t.mu.Unlock()
		return err
	}
	allowed.Sub(allowed, amount)
	hook, onChange := t.hook, t.onChange
	t.mu.Unlock()

	if onChange != nil {
		onChange()
	}
	if hook != nil {
		hook(ctx, from, to, amount)
	}
	return nil
}

func (t *Token) moveLocked(from, to common.Address, amount *uint256.Int) error {
	if to == (common.Address{}) {
		return ErrInvalidRecipient
	}
	src, ok := t.balances[from]
	if !ok {
		src = new(uint256.Int)
	}
	if src.Lt(amount) {
		return fmt.Errorf("%w: %s has %s, needs %s", ErrInsufficientBalance, from.Hex(), src.Dec(), amount.Dec())
	}
	if !ok {
		t.balances[from] = src
	}
	src.Sub(src, amount)
	dst, ok := t.balances[to]
	if !ok {
		dst = new(uint256.Int)
		t.balances[to] = dst
	}
	// total supply is fixed, so no overflow
	dst.Add(dst, amount)
	return nil
}

func (t *Token) watch(fn func()) {
	t.mu.Lock()
	t.onChange = fn
	t.mu.Unlock()
}

func (t *Token) snapshot() TokenState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	st := TokenState{
		Balances:   cloneBalances(t.balances),
		Allowances: make(map[common.Address]map[common.Address]*uint256.Int, len(t.allowances)),
	}
	for owner, m := range t.allowances {
		if c := cloneBalances(m); len(c) > 0 {
			st.Allowances[owner] = c
		}
	}
	return st
}

// restore replaces balances and allowances with saved ones. Total supply is
// fixed, so a saved state that does not add up to it is rejected.
func (t *Token) restore(saved TokenState) error {
	sum := new(uint256.Int)
	for addr, v := range saved.Balances {
		if v == nil {
			continue
		}
		if _, overflow := sum.AddOverflow(sum, v); overflow {
			return fmt.Errorf("token %s: balance of %s overflows supply", t.address.Hex(), addr.Hex())
		}
	}
	if !sum.Eq(t.totalSupply) {
		return fmt.Errorf("token %s: saved balances sum to %s, supply is %s", t.address.Hex(), sum.Dec(), t.totalSupply.Dec())
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.balances = cloneBalances(saved.Balances)
	t.allowances = make(map[common.Address]map[common.Address]*uint256.Int, len(saved.Allowances))
	for owner, m := range saved.Allowances {
		t.allowances[owner] = cloneBalances(m)
	}
	return nil
}

// Session binds the token to caller, who acts as msg.sender
func (t *Token) Session(caller common.Address) asset.Token {
	return &session{token: t, caller: caller}
}

type session struct {
	token  *Token
	caller common.Address
}

func (s *session) Transfer(ctx context.Context, to common.Address, amount *uint256.Int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.token.Transfer(ctx, s.caller, to, amount)
}

func (s *session) TransferFrom(ctx context.Context, from, to common.Address, amount *uint256.Int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.token.TransferFrom(ctx, s.caller, from, to, amount)
}

func (s *session) BalanceOf(ctx context.Context, owner common.Address) (*uint256.Int, error) {
	return s.token.BalanceOf(owner), nil
}

func (s *session) Allowance(ctx context.Context, owner, spender common.Address) (*uint256.Int, error) {
	return s.token.Allowance(owner, spender), nil
}
