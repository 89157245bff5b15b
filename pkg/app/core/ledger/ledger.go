package ledger

import (
	"errors"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/uhyunpark/hyperswap/pkg/app/core/asset"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrAmountOverflow      = errors.New("amount overflows 256 bits")
)

// Key addresses one balance cell
type Key struct {
	Asset asset.Asset
	Owner common.Address
}

// Cell is a balance cell as it is persisted and reported
type Cell struct {
	Asset  asset.Asset    `json:"asset"`
	Owner  common.Address `json:"owner"`
	Amount *uint256.Int   `json:"amount"`
}

func (c Cell) Key() Key { return Key{Asset: c.Asset, Owner: c.Owner} }

// Table is the custodial balance sheet. Missing cells read as zero.
// Not safe for concurrent use; the exchange serializes access.
type Table struct {
	cells map[Key]*uint256.Int
}

func NewTable() *Table {
	return &Table{cells: make(map[Key]*uint256.Int)}
}

// Get returns a copy of the balance of (a, owner)
func (t *Table) Get(a asset.Asset, owner common.Address) *uint256.Int {
	if v, ok := t.cells[Key{Asset: a, Owner: owner}]; ok {
		return v.Clone()
	}
	return new(uint256.Int)
}

// Load installs a persisted cell without touching any other state
func (t *Table) Load(c Cell) {
	t.set(c.Key(), c.Amount)
}

func (t *Table) set(k Key, v *uint256.Int) {
	if v == nil || v.IsZero() {
		delete(t.cells, k)
		return
	}
	t.cells[k] = v.Clone()
}

// Cells returns every non-zero cell ordered by asset then owner
func (t *Table) Cells() []Cell {
	out := make([]Cell, 0, len(t.cells))
	for k, v := range t.cells {
		out = append(out, Cell{Asset: k.Asset, Owner: k.Owner, Amount: v.Clone()})
	}
	sortCells(out)
	return out
}

// Owned returns the non-zero cells of one owner ordered by asset
func (t *Table) Owned(owner common.Address) []Cell {
	var out []Cell
	for k, v := range t.cells {
		if k.Owner == owner {
			out = append(out, Cell{Asset: k.Asset, Owner: k.Owner, Amount: v.Clone()})
		}
	}
	sortCells(out)
	return out
}

// Total sums all balances held in a. Overflow is impossible while every
// credit is backed by a real transfer, but is still reported.
func (t *Table) Total(a asset.Asset) (*uint256.Int, error) {
	sum := new(uint256.Int)
	for k, v := range t.cells {
		if k.Asset != a {
			continue
		}
		if _, overflow := sum.AddOverflow(sum, v); overflow {
			return nil, ErrAmountOverflow
		}
	}
	return sum, nil
}

func sortCells(cells []Cell) {
	sort.Slice(cells, func(i, j int) bool {
		if c := cells[i].Asset.Compare(cells[j].Asset); c != 0 {
			return c < 0
		}
		return cells[i].Owner.Cmp(cells[j].Owner) < 0
	})
}

// Stage opens a change set over t. Nothing is visible in t until Apply.
func (t *Table) Stage() *Changes {
	return &Changes{table: t, pending: make(map[Key]*uint256.Int)}
}

// Changes accumulates credits and debits for one operation.
// Either every change is applied or none is.
type Changes struct {
	table   *Table
	pending map[Key]*uint256.Int
	order   []Key
}

// Balance returns the staged balance of (a, owner)
func (c *Changes) Balance(a asset.Asset, owner common.Address) *uint256.Int {
	k := Key{Asset: a, Owner: owner}
	if v, ok := c.pending[k]; ok {
		return v.Clone()
	}
	return c.table.Get(a, owner)
}

func (c *Changes) Credit(a asset.Asset, owner common.Address, amount *uint256.Int) error {
	cur := c.Balance(a, owner)
	if _, overflow := cur.AddOverflow(cur, amount); overflow {
		return fmt.Errorf("credit %s to %s: %w", a, owner.Hex(), ErrAmountOverflow)
	}
	c.put(Key{Asset: a, Owner: owner}, cur)
	return nil
}

func (c *Changes) Debit(a asset.Asset, owner common.Address, amount *uint256.Int) error {
	cur := c.Balance(a, owner)
	if cur.Lt(amount) {
		return fmt.Errorf("%w: %s of %s holds %s, needs %s",
			ErrInsufficientBalance, owner.Hex(), a, cur.Dec(), amount.Dec())
	}
	cur.Sub(cur, amount)
	c.put(Key{Asset: a, Owner: owner}, cur)
	return nil
}

func (c *Changes) put(k Key, v *uint256.Int) {
	if _, seen := c.pending[k]; !seen {
		c.order = append(c.order, k)
	}
	c.pending[k] = v
}

// Cells lists the touched cells with their staged values, in first-touch order.
// Zero amounts are included so a store can delete the cell.
func (c *Changes) Cells() []Cell {
	out := make([]Cell, 0, len(c.order))
	for _, k := range c.order {
		out = append(out, Cell{Asset: k.Asset, Owner: k.Owner, Amount: c.pending[k].Clone()})
	}
	return out
}

func (c *Changes) Empty() bool { return len(c.order) == 0 }

// Apply writes the staged values into the table
func (c *Changes) Apply() {
	for _, k := range c.order {
		c.table.set(k, c.pending[k])
	}
	c.pending = make(map[Key]*uint256.Int)
	c.order = nil
}
