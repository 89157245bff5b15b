package exchange

import "github.com/uhyunpark/hyperswap/pkg/app/core/events"

// Subscribe returns a live feed of committed records. Delivery never blocks
// the ledger: a subscriber whose buffer is full misses records and should
// backfill with EventsSince using the last Seq it saw.
func (e *Exchange) Subscribe(buffer int) (<-chan events.Record, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan events.Record, buffer)

	e.subMu.Lock()
	id := e.nextSub
	e.nextSub++
	e.subs[id] = ch
	e.subMu.Unlock()

	cancel := func() {
		e.subMu.Lock()
		defer e.subMu.Unlock()
		if c, ok := e.subs[id]; ok {
			delete(e.subs, id)
			close(c)
		}
	}
	return ch, cancel
}

// publish is called with e.mu held so subscribers see records in seq order
func (e *Exchange) publish(recs []events.Record) {
	if len(recs) == 0 {
		return
	}
	e.subMu.Lock()
	defer e.subMu.Unlock()
	for id, ch := range e.subs {
		for _, r := range recs {
			select {
			case ch <- r:
			default:
				e.log.Warnw("subscriber_lagging", "subscriber", id, "seq", r.Seq)
			}
		}
	}
}
