package devnet

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/uhyunpark/hyperswap/pkg/app/core/asset"
)

var ErrUnknownToken = errors.New("no token deployed at address")

// Registry maps token contract addresses to devnet tokens
type Registry struct {
	mu     sync.RWMutex
	tokens map[common.Address]*Token
}

func NewRegistry(tokens ...*Token) *Registry {
	r := &Registry{tokens: make(map[common.Address]*Token)}
	for _, t := range tokens {
		r.Register(t)
	}
	return r
}

func (r *Registry) Register(t *Token) {
	r.mu.Lock()
	r.tokens[t.Address()] = t
	r.mu.Unlock()
}

func (r *Registry) Get(addr common.Address) (*Token, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tokens[addr]
	return t, ok
}

// Token implements asset.Resolver
func (r *Registry) Token(addr, caller common.Address) (asset.Token, error) {
	t, ok := r.Get(addr)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownToken, addr.Hex())
	}
	return t.Session(caller), nil
}

// Tokens returns every registered token ordered by address
func (r *Registry) Tokens() []*Token {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Token, 0, len(r.tokens))
	for _, t := range r.tokens {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address().Cmp(out[j].Address()) < 0 })
	return out
}

// ContractAddress is where deployer's nonce-th contract creation lands
func ContractAddress(deployer common.Address, nonce uint64) common.Address {
	return crypto.CreateAddress(deployer, nonce)
}
