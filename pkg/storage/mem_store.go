package storage

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/hyperswap/pkg/app/core/events"
	"github.com/uhyunpark/hyperswap/pkg/app/core/ledger"
	"github.com/uhyunpark/hyperswap/pkg/app/core/orderbook"
	"github.com/uhyunpark/hyperswap/pkg/app/exchange"
	"github.com/uhyunpark/hyperswap/pkg/devnet"
)

// InMemoryStore keeps the same state as PebbleStore in maps. A failure set
// with FailCommits makes every Commit return it, for fault tests.
type InMemoryStore struct {
	mu        sync.Mutex
	cfg       *exchange.Config
	balances  map[ledger.Key]ledger.Cell
	orders    []*orderbook.Order
	filled    []uint64
	cancelled []uint64
	events    []events.Record
	nonces    map[common.Address]uint64
	devnet    []byte
	failure   error
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		balances: make(map[ledger.Key]ledger.Cell),
		nonces:   make(map[common.Address]uint64),
	}
}

func (s *InMemoryStore) FailCommits(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failure = err
}

func (s *InMemoryStore) SaveConfig(cfg exchange.Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = &cfg
	return nil
}

func (s *InMemoryStore) Commit(cs exchange.ChangeSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failure != nil {
		return s.failure
	}
	for _, c := range cs.Balances {
		if c.Amount == nil || c.Amount.IsZero() {
			delete(s.balances, c.Key())
			continue
		}
		c.Amount = c.Amount.Clone()
		s.balances[c.Key()] = c
	}
	if cs.Order != nil {
		s.orders = append(s.orders, cs.Order.Clone())
	}
	if cs.Filled != 0 {
		s.filled = append(s.filled, cs.Filled)
	}
	if cs.Cancelled != 0 {
		s.cancelled = append(s.cancelled, cs.Cancelled)
	}
	s.events = append(s.events, cs.Events...)
	return nil
}

func (s *InMemoryStore) Load() (*exchange.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := &exchange.Snapshot{
		Filled:    append([]uint64(nil), s.filled...),
		Cancelled: append([]uint64(nil), s.cancelled...),
		Events:    append([]events.Record(nil), s.events...),
	}
	if s.cfg != nil {
		cfg := *s.cfg
		snap.Config = &cfg
	}
	for _, c := range s.balances {
		snap.Balances = append(snap.Balances, c)
	}
	for _, o := range s.orders {
		snap.Orders = append(snap.Orders, o.Clone())
	}
	return snap, nil
}

func (s *InMemoryStore) Nonce(addr common.Address) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nonces[addr], nil
}

func (s *InMemoryStore) SetNonce(addr common.Address, nonce uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nonces[addr] = nonce
	return nil
}

// LoadDevnet decodes a fresh copy of the saved state, nil if none
func (s *InMemoryStore) LoadDevnet() (*devnet.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.devnet == nil {
		return nil, nil
	}
	var st devnet.State
	if err := decode(s.devnet, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

func (s *InMemoryStore) SaveDevnet(st *devnet.State) error {
	data, err := encode(st)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.devnet = data
	return nil
}

var (
	_ exchange.Store    = (*InMemoryStore)(nil)
	_ devnet.StateStore = (*InMemoryStore)(nil)
	_ devnet.StateStore = (*PebbleStore)(nil)
)
