package events

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/uhyunpark/hyperswap/pkg/app/core/asset"
	"github.com/uhyunpark/hyperswap/pkg/app/core/orderbook"
)

type Kind string

const (
	KindDeposit  Kind = "Deposit"
	KindWithdraw Kind = "Withdraw"
	KindOrder    Kind = "Order"
	KindTrade    Kind = "Trade"
	KindCancel   Kind = "Cancel"
)

// Payload is the body of one ledger notification
type Payload interface {
	Kind() Kind
	// Accounts lists the addresses whose state the event touches
	Accounts() []common.Address
}

// Deposit is emitted after a credit from outside; Balance is the new balance
type Deposit struct {
	Asset   asset.Asset    `json:"asset"`
	User    common.Address `json:"user"`
	Amount  *uint256.Int   `json:"amount"`
	Balance *uint256.Int   `json:"balance"`
}

type Withdraw struct {
	Asset   asset.Asset    `json:"asset"`
	User    common.Address `json:"user"`
	Amount  *uint256.Int   `json:"amount"`
	Balance *uint256.Int   `json:"balance"`
}

// Order carries every field of the created order
type Order struct {
	ID         uint64         `json:"id"`
	User       common.Address `json:"user"`
	AssetGet   asset.Asset    `json:"assetGet"`
	AmountGet  *uint256.Int   `json:"amountGet"`
	AssetGive  asset.Asset    `json:"assetGive"`
	AmountGive *uint256.Int   `json:"amountGive"`
	Timestamp  int64          `json:"timestamp"`
}

// Trade is emitted on fill. User is the maker, UserFill the taker,
// Timestamp the fill time.
type Trade struct {
	ID         uint64         `json:"id"`
	User       common.Address `json:"user"`
	AssetGet   asset.Asset    `json:"assetGet"`
	AmountGet  *uint256.Int   `json:"amountGet"`
	AssetGive  asset.Asset    `json:"assetGive"`
	AmountGive *uint256.Int   `json:"amountGive"`
	UserFill   common.Address `json:"userFill"`
	Timestamp  int64          `json:"timestamp"`
}

// Cancel carries the order fields with the cancellation time
type Cancel struct {
	ID         uint64         `json:"id"`
	User       common.Address `json:"user"`
	AssetGet   asset.Asset    `json:"assetGet"`
	AmountGet  *uint256.Int   `json:"amountGet"`
	AssetGive  asset.Asset    `json:"assetGive"`
	AmountGive *uint256.Int   `json:"amountGive"`
	Timestamp  int64          `json:"timestamp"`
}

func (Deposit) Kind() Kind  { return KindDeposit }
func (Withdraw) Kind() Kind { return KindWithdraw }
func (Order) Kind() Kind    { return KindOrder }
func (Trade) Kind() Kind    { return KindTrade }
func (Cancel) Kind() Kind   { return KindCancel }

func (e Deposit) Accounts() []common.Address  { return []common.Address{e.User} }
func (e Withdraw) Accounts() []common.Address { return []common.Address{e.User} }
func (e Order) Accounts() []common.Address    { return []common.Address{e.User} }
func (e Trade) Accounts() []common.Address    { return []common.Address{e.User, e.UserFill} }
func (e Cancel) Accounts() []common.Address   { return []common.Address{e.User} }

func NewOrder(o *orderbook.Order) Order {
	return Order{
		ID:         o.ID,
		User:       o.User,
		AssetGet:   o.AssetGet,
		AmountGet:  o.AmountGet.Clone(),
		AssetGive:  o.AssetGive,
		AmountGive: o.AmountGive.Clone(),
		Timestamp:  o.Timestamp,
	}
}

func NewTrade(o *orderbook.Order, taker common.Address, ts int64) Trade {
	return Trade{
		ID:         o.ID,
		User:       o.User,
		AssetGet:   o.AssetGet,
		AmountGet:  o.AmountGet.Clone(),
		AssetGive:  o.AssetGive,
		AmountGive: o.AmountGive.Clone(),
		UserFill:   taker,
		Timestamp:  ts,
	}
}

func NewCancel(o *orderbook.Order, ts int64) Cancel {
	return Cancel{
		ID:         o.ID,
		User:       o.User,
		AssetGet:   o.AssetGet,
		AmountGet:  o.AmountGet.Clone(),
		AssetGive:  o.AssetGive,
		AmountGive: o.AmountGive.Clone(),
		Timestamp:  ts,
	}
}

// Record is a sequenced notification. Seq is global and starts at 1.
type Record struct {
	Seq     uint64
	Payload Payload
}

func (r Record) Kind() Kind { return r.Payload.Kind() }

type wireRecord struct {
	Seq  uint64          `json:"seq"`
	Kind Kind            `json:"event"`
	Args json.RawMessage `json:"args"`
}

func (r Record) MarshalJSON() ([]byte, error) {
	if r.Payload == nil {
		return nil, fmt.Errorf("record %d has no payload", r.Seq)
	}
	args, err := json.Marshal(r.Payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireRecord{Seq: r.Seq, Kind: r.Payload.Kind(), Args: args})
}

func (r *Record) UnmarshalJSON(b []byte) error {
	var w wireRecord
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	var (
		p   Payload
		err error
	)
	switch w.Kind {
	case KindDeposit:
		p, err = decode[Deposit](w.Args)
	case KindWithdraw:
		p, err = decode[Withdraw](w.Args)
	case KindOrder:
		p, err = decode[Order](w.Args)
	case KindTrade:
		p, err = decode[Trade](w.Args)
	case KindCancel:
		p, err = decode[Cancel](w.Args)
	default:
		return fmt.Errorf("unknown event kind %q", w.Kind)
	}
	if err != nil {
		return fmt.Errorf("decode %s args: %w", w.Kind, err)
	}
	r.Seq = w.Seq
	r.Payload = p
	return nil
}

func decode[T Payload](raw json.RawMessage) (Payload, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}
