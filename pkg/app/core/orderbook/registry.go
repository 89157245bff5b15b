package orderbook

import (
	"errors"
	"fmt"
)

var (
	ErrOrderNotFound         = errors.New("order not found")
	ErrOrderAlreadyFilled    = errors.New("order already filled")
	ErrOrderAlreadyCancelled = errors.New("order already cancelled")
)

// Registry is the append-only order table with its filled and cancelled flags.
// Ids are 1-indexed and assigned sequentially. Not safe for concurrent use.
type Registry struct {
	orders    []*Order // orders[i] has ID i+1
	filled    map[uint64]bool
	cancelled map[uint64]bool
}

func NewRegistry() *Registry {
	return &Registry{
		filled:    make(map[uint64]bool),
		cancelled: make(map[uint64]bool),
	}
}

// Count is the number of orders ever created, i.e. the highest assigned id
func (r *Registry) Count() uint64 { return uint64(len(r.orders)) }

func (r *Registry) NextID() uint64 { return r.Count() + 1 }

func (r *Registry) lookup(id uint64) (*Order, bool) {
	if id == 0 || id > r.Count() {
		return nil, false
	}
	return r.orders[id-1], true
}

// Get returns a copy of order id
func (r *Registry) Get(id uint64) (*Order, bool) {
	o, ok := r.lookup(id)
	if !ok {
		return nil, false
	}
	return o.Clone(), true
}

// Filled and Cancelled report false for ids never assigned
func (r *Registry) Filled(id uint64) bool    { return r.filled[id] }
func (r *Registry) Cancelled(id uint64) bool { return r.cancelled[id] }

func (r *Registry) Status(id uint64) (Status, bool) {
	if _, ok := r.lookup(id); !ok {
		return StatusAny, false
	}
	return r.status(id), true
}

func (r *Registry) status(id uint64) Status {
	switch {
	case r.filled[id]:
		return StatusFilled
	case r.cancelled[id]:
		return StatusCancelled
	default:
		return StatusOpen
	}
}

// Open returns a copy of order id if it can still be filled or cancelled
func (r *Registry) Open(id uint64) (*Order, error) {
	o, ok := r.lookup(id)
	if !ok {
		return nil, fmt.Errorf("%w: id %d (count %d)", ErrOrderNotFound, id, r.Count())
	}
	if r.filled[id] {
		return nil, fmt.Errorf("%w: id %d", ErrOrderAlreadyFilled, id)
	}
	if r.cancelled[id] {
		return nil, fmt.Errorf("%w: id %d", ErrOrderAlreadyCancelled, id)
	}
	return o.Clone(), nil
}

// Append stores o, whose ID must be NextID()
func (r *Registry) Append(o *Order) error {
	if o.ID != r.NextID() {
		return fmt.Errorf("order id %d out of sequence, expected %d", o.ID, r.NextID())
	}
	r.orders = append(r.orders, o.Clone())
	return nil
}

func (r *Registry) MarkFilled(id uint64) error {
	if _, err := r.Open(id); err != nil {
		return err
	}
	r.filled[id] = true
	return nil
}

func (r *Registry) MarkCancelled(id uint64) error {
	if _, err := r.Open(id); err != nil {
		return err
	}
	r.cancelled[id] = true
	return nil
}

// OpenCount is the number of orders neither filled nor cancelled
func (r *Registry) OpenCount() int {
	return len(r.orders) - len(r.filled) - len(r.cancelled)
}

// List returns copies of the orders matching f in id order
func (r *Registry) List(f Filter) []*Order {
	var out []*Order
	for _, o := range r.orders {
		if f.Status != StatusAny && r.status(o.ID) != f.Status {
			continue
		}
		if f.User != nil && o.User != *f.User {
			continue
		}
		out = append(out, o.Clone())
	}
	return out
}
