package events

import "sort"

// Outbox is the append-only notification log. Not safe for concurrent use.
type Outbox struct {
	records []Record
}

func NewOutbox() *Outbox { return &Outbox{} }

// LastSeq is 0 when empty
func (o *Outbox) LastSeq() uint64 {
	if len(o.records) == 0 {
		return 0
	}
	return o.records[len(o.records)-1].Seq
}

// Sequence assigns the next sequence numbers to payloads without appending
func (o *Outbox) Sequence(payloads ...Payload) []Record {
	next := o.LastSeq() + 1
	out := make([]Record, len(payloads))
	for i, p := range payloads {
		out[i] = Record{Seq: next + uint64(i), Payload: p}
	}
	return out
}

// Append adds records previously produced by Sequence or restored from disk
func (o *Outbox) Append(recs ...Record) {
	o.records = append(o.records, recs...)
}

// Since returns up to limit records with Seq > after. limit <= 0 means all.
func (o *Outbox) Since(after uint64, limit int) []Record {
	i := sort.Search(len(o.records), func(i int) bool { return o.records[i].Seq > after })
	rest := o.records[i:]
	if limit > 0 && len(rest) > limit {
		rest = rest[:limit]
	}
	out := make([]Record, len(rest))
	copy(out, rest)
	return out
}

func (o *Outbox) Len() int { return len(o.records) }
