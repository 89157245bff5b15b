package exchange

import (
	"github.com/uhyunpark/hyperswap/pkg/app/core/events"
	"github.com/uhyunpark/hyperswap/pkg/app/core/ledger"
	"github.com/uhyunpark/hyperswap/pkg/app/core/orderbook"
)

// ChangeSet is everything one operation writes. A Store must apply it
// atomically: all of it or none of it.
type ChangeSet struct {
	Balances  []ledger.Cell // zero amounts delete the cell
	Order     *orderbook.Order
	Filled    uint64 // 0 when unset
	Cancelled uint64
	Events    []events.Record
}

// Snapshot is the full persisted state, used to rebuild an Exchange
type Snapshot struct {
	Config    *Config // nil on first start
	Balances  []ledger.Cell
	Orders    []*orderbook.Order // ascending id
	Filled    []uint64
	Cancelled []uint64
	Events    []events.Record // ascending seq
}

// Store is the durable backing of an Exchange
type Store interface {
	Load() (*Snapshot, error)
	SaveConfig(cfg Config) error
	Commit(cs ChangeSet) error
}
