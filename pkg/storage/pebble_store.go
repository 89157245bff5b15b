package storage

import (
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/hyperswap/pkg/app/core/events"
	"github.com/uhyunpark/hyperswap/pkg/app/core/ledger"
	"github.com/uhyunpark/hyperswap/pkg/app/core/orderbook"
	"github.com/uhyunpark/hyperswap/pkg/app/exchange"
	"github.com/uhyunpark/hyperswap/pkg/devnet"
)

// PebbleStore persists the exchange ledger and account nonces.
// Every exchange operation lands in one synced batch.
type PebbleStore struct {
	db *pebble.DB
}

// NewPebbleStore opens (or creates) a database at path
func NewPebbleStore(path string) (*PebbleStore, error) {
	opts := &pebble.Options{
		Cache:                    pebble.NewCache(64 << 20), // 64MB cache
		MemTableSize:             32 << 20,                  // 32MB memtable
		MaxConcurrentCompactions: func() int { return 2 },
		L0CompactionThreshold:    2,
		L0StopWritesThreshold:    12,
		LBaseMaxBytes:            64 << 20,
		MaxOpenFiles:             1000,
		BytesPerSync:             512 << 10,
	}
	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble db at %s: %w", path, err)
	}
	return &PebbleStore{db: db}, nil
}

// NewMemPebbleStore is backed by an in-memory filesystem
func NewMemPebbleStore() (*PebbleStore, error) {
	return NewMemPebbleStoreFS(vfs.NewMem())
}

// NewMemPebbleStoreFS reopens a store on an existing in-memory filesystem,
// which lets tests simulate a restart.
func NewMemPebbleStoreFS(fs vfs.FS) (*PebbleStore, error) {
	db, err := pebble.Open("", &pebble.Options{FS: fs})
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory pebble db: %w", err)
	}
	return &PebbleStore{db: db}, nil
}

func (s *PebbleStore) Close() error { return s.db.Close() }

// SaveConfig records the exchange configuration
func (s *PebbleStore) SaveConfig(cfg exchange.Config) error {
	data, err := encode(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := s.db.Set(keyConfig, data, pebble.Sync); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	return nil
}

// Commit writes one operation's changes atomically
func (s *PebbleStore) Commit(cs exchange.ChangeSet) error {
	batch := s.db.NewBatch()
	defer batch.Close()

	for _, c := range cs.Balances {
		key := balanceKey(c.Asset, c.Owner)
		if c.Amount == nil || c.Amount.IsZero() {
			if err := batch.Delete(key, nil); err != nil {
				return err
			}
			continue
		}
		data, err := encode(c)
		if err != nil {
			return fmt.Errorf("failed to marshal balance: %w", err)
		}
		if err := batch.Set(key, data, nil); err != nil {
			return err
		}
	}

	if cs.Order != nil {
		data, err := encode(cs.Order)
		if err != nil {
			return fmt.Errorf("failed to marshal order: %w", err)
		}
		if err := batch.Set(orderKey(cs.Order.ID), data, nil); err != nil {
			return err
		}
		if err := batch.Set(keyOrderCount, encodeUint(cs.Order.ID), nil); err != nil {
			return err
		}
	}
	if cs.Filled != 0 {
		if err := batch.Set(filledKey(cs.Filled), flagSet, nil); err != nil {
			return err
		}
	}
	if cs.Cancelled != 0 {
		if err := batch.Set(cancelledKey(cs.Cancelled), flagSet, nil); err != nil {
			return err
		}
	}

	for _, rec := range cs.Events {
		data, err := encode(rec)
		if err != nil {
			return fmt.Errorf("failed to marshal event %d: %w", rec.Seq, err)
		}
		if err := batch.Set(eventKey(rec.Seq), data, nil); err != nil {
			return err
		}
	}
	if n := len(cs.Events); n > 0 {
		if err := batch.Set(keyLastEventID, encodeUint(cs.Events[n-1].Seq), nil); err != nil {
			return err
		}
	}

	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("failed to commit batch: %w", err)
	}
	return nil
}

// Load reads the full ledger state
func (s *PebbleStore) Load() (*exchange.Snapshot, error) {
	snap := &exchange.Snapshot{}

	var cfg exchange.Config
	found, err := s.getJSON(keyConfig, &cfg)
	if err != nil {
		return nil, err
	}
	if found {
		snap.Config = &cfg
	}

	err = s.scan(prefixBalance, func(_, v []byte) error {
		var c ledger.Cell
		if err := decode(v, &c); err != nil {
			return fmt.Errorf("failed to unmarshal balance: %w", err)
		}
		snap.Balances = append(snap.Balances, c)
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = s.scan(prefixOrder, func(_, v []byte) error {
		var o orderbook.Order
		if err := decode(v, &o); err != nil {
			return fmt.Errorf("failed to unmarshal order: %w", err)
		}
		snap.Orders = append(snap.Orders, &o)
		return nil
	})
	if err != nil {
		return nil, err
	}
	count, err := s.getUint(keyOrderCount)
	if err != nil {
		return nil, err
	}
	if count != uint64(len(snap.Orders)) {
		return nil, fmt.Errorf("order count %d does not match %d stored orders", count, len(snap.Orders))
	}

	if snap.Filled, err = s.scanIDs(prefixFilled); err != nil {
		return nil, err
	}
	if snap.Cancelled, err = s.scanIDs(prefixCancelled); err != nil {
		return nil, err
	}

	err = s.scan(prefixEvent, func(_, v []byte) error {
		var r events.Record
		if err := decode(v, &r); err != nil {
			return fmt.Errorf("failed to unmarshal event: %w", err)
		}
		snap.Events = append(snap.Events, r)
		return nil
	})
	if err != nil {
		return nil, err
	}
	last, err := s.getUint(keyLastEventID)
	if err != nil {
		return nil, err
	}
	if n := len(snap.Events); n > 0 && snap.Events[n-1].Seq != last {
		return nil, fmt.Errorf("last event seq %d does not match meta %d", snap.Events[n-1].Seq, last)
	}

	return snap, nil
}

// Nonce returns the last nonce used by addr, 0 if none
func (s *PebbleStore) Nonce(addr common.Address) (uint64, error) {
	return s.getUint(nonceKey(addr))
}

func (s *PebbleStore) SetNonce(addr common.Address, nonce uint64) error {
	if err := s.db.Set(nonceKey(addr), encodeUint(nonce), pebble.Sync); err != nil {
		return fmt.Errorf("failed to save nonce: %w", err)
	}
	return nil
}

// LoadDevnet returns the saved devnet state, nil if none
func (s *PebbleStore) LoadDevnet() (*devnet.State, error) {
	var st devnet.State
	found, err := s.getJSON(keyDevnet, &st)
	if err != nil || !found {
		return nil, err
	}
	return &st, nil
}

func (s *PebbleStore) SaveDevnet(st *devnet.State) error {
	data, err := encode(st)
	if err != nil {
		return fmt.Errorf("failed to marshal devnet state: %w", err)
	}
	if err := s.db.Set(keyDevnet, data, pebble.Sync); err != nil {
		return fmt.Errorf("failed to save devnet state: %w", err)
	}
	return nil
}

func (s *PebbleStore) getJSON(key []byte, v any) (bool, error) {
	data, closer, err := s.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get %s: %w", key, err)
	}
	defer closer.Close()
	if err := decode(data, v); err != nil {
		return false, fmt.Errorf("failed to unmarshal %s: %w", key, err)
	}
	return true, nil
}

func (s *PebbleStore) getUint(key []byte) (uint64, error) {
	data, closer, err := s.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get %s: %w", key, err)
	}
	defer closer.Close()
	return decodeUint(data)
}

func (s *PebbleStore) scan(prefix string, fn func(k, v []byte) error) error {
	p := []byte(prefix)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: p,
		UpperBound: keyUpperBound(p),
	})
	if err != nil {
		return fmt.Errorf("failed to open iterator: %w", err)
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		if err := fn(iter.Key(), iter.Value()); err != nil {
			return err
		}
	}
	return iter.Error()
}

func (s *PebbleStore) scanIDs(prefix string) ([]uint64, error) {
	var ids []uint64
	err := s.scan(prefix, func(k, _ []byte) error {
		id, err := idFromKey(prefix, k)
		if err != nil {
			return err
		}
		ids = append(ids, id)
		return nil
	})
	return ids, err
}

var _ exchange.Store = (*PebbleStore)(nil)
