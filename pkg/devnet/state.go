package devnet

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/uhyunpark/hyperswap/pkg/app/core/asset"
)

// State is a copy of every devnet wallet and token ledger
type State struct {
	Wallets map[common.Address]*uint256.Int `json:"wallets"`
	Tokens  map[common.Address]TokenState   `json:"tokens"`
}

type TokenState struct {
	Balances   map[common.Address]*uint256.Int                    `json:"balances"`
	Allowances map[common.Address]map[common.Address]*uint256.Int `json:"allowances"`
}

// StateStore persists devnet state next to the exchange ledger.
// LoadDevnet returns nil, nil when nothing has been saved yet.
type StateStore interface {
	LoadDevnet() (*State, error)
	SaveDevnet(s *State) error
}

// Chain keeps the bank and tokens in a StateStore, so wallets and custody
// survive a restart together with the ledger that owes them.
type Chain struct {
	Bank   *Bank
	Tokens *Registry

	store StateStore
	log   *zap.SugaredLogger
	mu    sync.Mutex
}

// NewChain restores saved state into bank and tokens, or records their
// genesis state if the store is empty, and then saves after every change.
func NewChain(bank *Bank, tokens *Registry, store StateStore, logger *zap.SugaredLogger) (*Chain, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	c := &Chain{Bank: bank, Tokens: tokens, store: store, log: logger}

	saved, err := store.LoadDevnet()
	if err != nil {
		return nil, fmt.Errorf("load devnet state: %w", err)
	}
	if saved != nil {
		if err := c.restore(saved); err != nil {
			return nil, err
		}
		c.log.Infow("devnet_restored", "wallets", len(saved.Wallets), "tokens", len(saved.Tokens))
	} else if err := store.SaveDevnet(c.Snapshot()); err != nil {
		return nil, fmt.Errorf("save devnet genesis: %w", err)
	}

	bank.watch(c.persist)
	for _, t := range tokens.Tokens() {
		t.watch(c.persist)
	}
	return c, nil
}

func (c *Chain) restore(saved *State) error {
	for addr, ts := range saved.Tokens {
		t, ok := c.Tokens.Get(addr)
		if !ok {
			c.log.Warnw("devnet_token_dropped", "token", addr.Hex())
			continue
		}
		if err := t.restore(ts); err != nil {
			return err
		}
	}
	c.Bank.restore(saved.Wallets)
	return nil
}

// Snapshot copies the current state of every wallet and token
func (c *Chain) Snapshot() *State {
	s := &State{
		Wallets: c.Bank.snapshot(),
		Tokens:  make(map[common.Address]TokenState),
	}
	for _, t := range c.Tokens.Tokens() {
		s.Tokens[t.Address()] = t.snapshot()
	}
	return s
}

// persist runs after a change. The snapshot is taken under mu, so the last
// save to finish always carries the latest state.
func (c *Chain) persist() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.store.SaveDevnet(c.Snapshot()); err != nil {
		c.log.Errorw("devnet_save_failed", "err", err)
	}
}

// CheckCustody fails when holder owns less of the native currency or of any
// token than owed reports. The node runs it at startup so a ledger is never
// served against wallets that cannot pay it out.
func (c *Chain) CheckCustody(holder common.Address, owed func(asset.Asset) (*uint256.Int, error)) error {
	check := func(a asset.Asset, held *uint256.Int) error {
		want, err := owed(a)
		if err != nil {
			return err
		}
		if held.Lt(want) {
			return fmt.Errorf("custody of %s: %s holds %s, ledger owes %s", a, holder.Hex(), held.Dec(), want.Dec())
		}
		return nil
	}
	if err := check(asset.Native(), c.Bank.BalanceOf(holder)); err != nil {
		return err
	}
	for _, t := range c.Tokens.Tokens() {
		if err := check(t.Asset(), t.BalanceOf(holder)); err != nil {
			return err
		}
	}
	return nil
}
