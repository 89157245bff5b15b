package exchange

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/uhyunpark/hyperswap/pkg/app/core/asset"
	"github.com/uhyunpark/hyperswap/pkg/app/core/events"
	"github.com/uhyunpark/hyperswap/pkg/app/core/ledger"
	"github.com/uhyunpark/hyperswap/pkg/app/core/orderbook"
	"github.com/uhyunpark/hyperswap/pkg/metrics"
	"github.com/uhyunpark/hyperswap/pkg/util"
)

// Config is fixed at construction and never changes afterwards
type Config struct {
	Address    common.Address `json:"address"`    // custody address, msg.sender toward tokens
	FeeAccount common.Address `json:"feeAccount"` // collects trade fees
	FeePercent uint64         `json:"feePercent"` // parts per hundred of amountGet
}

func (c Config) Validate() error {
	if c.Address == (common.Address{}) {
		return errors.New("exchange address is required")
	}
	if c.FeeAccount == (common.Address{}) {
		return errors.New("fee account is required")
	}
	return nil
}

// Deps are the collaborators of an Exchange. Store may be nil for a purely
// in-memory ledger.
type Deps struct {
	Assets asset.Resolver
	Bank   asset.NativeBank
	Store  Store
	Clock  util.Clock
	Logger *zap.SugaredLogger
}

// Receipt lists the notifications produced by one successful operation
type Receipt struct {
	Events []events.Record `json:"events"`
}

// Exchange is the custodial ledger: balances, orders and the fee schedule.
//
// All state lives behind mu. Mutations hold the write lock only for the
// in-memory and persisted commit; calls into token contracts and the native
// bank happen outside it, guarded per (asset, user) by the inflight set.
type Exchange struct {
	cfg    Config
	assets asset.Resolver
	bank   asset.NativeBank
	store  Store
	clock  util.Clock
	log    *zap.SugaredLogger

	mu       sync.RWMutex
	balances *ledger.Table
	orders   *orderbook.Registry
	outbox   *events.Outbox

	inflightMu sync.Mutex
	inflight   map[ledger.Key]struct{}

	subMu   sync.Mutex
	subs    map[uint64]chan events.Record
	nextSub uint64
}

// New builds an exchange, restoring state from deps.Store when present.
// A store written with a different Config is rejected with ErrConfigMismatch.
func New(cfg Config, deps Deps) (*Exchange, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Assets == nil {
		return nil, errors.New("asset resolver is required")
	}
	if deps.Clock == nil {
		deps.Clock = util.RealClock{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop().Sugar()
	}

	e := &Exchange{
		cfg:      cfg,
		assets:   deps.Assets,
		bank:     deps.Bank,
		store:    deps.Store,
		clock:    deps.Clock,
		log:      deps.Logger,
		balances: ledger.NewTable(),
		orders:   orderbook.NewRegistry(),
		outbox:   events.NewOutbox(),
		inflight: make(map[ledger.Key]struct{}),
		subs:     make(map[uint64]chan events.Record),
	}

	if e.store != nil {
		if err := e.restore(); err != nil {
			return nil, err
		}
	}
	metrics.SetOrders(e.orders.Count(), e.orders.OpenCount())
	return e, nil
}

func (e *Exchange) restore() error {
	snap, err := e.store.Load()
	if err != nil {
		return fmt.Errorf("load exchange state: %w", err)
	}
	if snap.Config == nil {
		if err := e.store.SaveConfig(e.cfg); err != nil {
			return fmt.Errorf("save exchange config: %w", err)
		}
	} else if *snap.Config != e.cfg {
		return fmt.Errorf("%w: stored %+v, configured %+v", ErrConfigMismatch, *snap.Config, e.cfg)
	}

	for _, c := range snap.Balances {
		e.balances.Load(c)
	}
	for _, o := range snap.Orders {
		if err := e.orders.Append(o); err != nil {
			return fmt.Errorf("restore order: %w", err)
		}
	}
	for _, id := range snap.Filled {
		if err := e.orders.MarkFilled(id); err != nil {
			return fmt.Errorf("restore filled flag: %w", err)
		}
	}
	for _, id := range snap.Cancelled {
		if err := e.orders.MarkCancelled(id); err != nil {
			return fmt.Errorf("restore cancelled flag: %w", err)
		}
	}
	e.outbox.Append(snap.Events...)

	e.log.Infow("exchange_restored",
		"orders", e.orders.Count(),
		"balances", len(snap.Balances),
		"events", e.outbox.LastSeq(),
	)
	return nil
}

// commitLocked persists cs plus the staged balances and the events, then
// makes them visible. apply runs only after the store accepted the write.
// Caller holds e.mu.
func (e *Exchange) commitLocked(ch *ledger.Changes, cs ChangeSet, apply func(), payloads ...events.Payload) (*Receipt, error) {
	recs := e.outbox.Sequence(payloads...)
	if ch != nil {
		cs.Balances = ch.Cells()
	}
	cs.Events = recs

	if e.store != nil {
		if err := e.store.Commit(cs); err != nil {
			return nil, fmt.Errorf("persist: %w", err)
		}
	}
	if ch != nil {
		ch.Apply()
	}
	if apply != nil {
		apply()
	}
	e.outbox.Append(recs...)
	e.publish(recs)
	return &Receipt{Events: recs}, nil
}

// observe is deferred by every public operation
func (e *Exchange) observe(op string, started time.Time, errp *error) {
	metrics.ObserveOperation(op, Code(*errp), started)
	if *errp != nil {
		e.log.Debugw("operation_rejected", "op", op, "code", Code(*errp), "err", *errp)
	}
}

// enter marks (a, user) busy for the duration of an external call
func (e *Exchange) enter(a asset.Asset, user common.Address) (func(), error) {
	k := ledger.Key{Asset: a, Owner: user}
	e.inflightMu.Lock()
	defer e.inflightMu.Unlock()
	if _, busy := e.inflight[k]; busy {
		return nil, fmt.Errorf("%w: %s %s", ErrReentrantCall, a, user.Hex())
	}
	e.inflight[k] = struct{}{}
	return func() {
		e.inflightMu.Lock()
		delete(e.inflight, k)
		e.inflightMu.Unlock()
	}, nil
}

func (e *Exchange) now() int64 { return e.clock.Now().Unix() }

func zeroIfNil(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return v
}

// ---- Balance Ledger ----

// DepositEther credits attached native value. value is what the caller
// actually sent; it must equal amount.
func (e *Exchange) DepositEther(ctx context.Context, user common.Address, value, amount *uint256.Int) (rcpt *Receipt, err error) {
	defer e.observe("deposit_ether", time.Now(), &err)
	value, amount = zeroIfNil(value), zeroIfNil(amount)
	if !value.Eq(amount) {
		return nil, fmt.Errorf("%w: value %s, amount %s", ErrValueMismatch, value.Dec(), amount.Dec())
	}
	release, err := e.enter(asset.Native(), user)
	if err != nil {
		return nil, err
	}
	defer release()

	rcpt, err = e.credit(asset.Native(), user, amount)
	if err != nil {
		return nil, err
	}
	e.log.Infow("ether_deposited", "user", user.Hex(), "amount", amount.Dec())
	return rcpt, nil
}

// DepositToken pulls amount of a from user via transferFrom (the user must
// have approved the exchange) and credits it.
func (e *Exchange) DepositToken(ctx context.Context, user common.Address, a asset.Asset, amount *uint256.Int) (rcpt *Receipt, err error) {
	defer e.observe("deposit_token", time.Now(), &err)
	amount = zeroIfNil(amount)
	tok, err := e.token(a)
	if err != nil {
		return nil, err
	}
	release, err := e.enter(a, user)
	if err != nil {
		return nil, err
	}
	defer release()

	if err := tok.TransferFrom(ctx, user, e.cfg.Address, amount); err != nil {
		return nil, fmt.Errorf("pull %s %s from %s: %w", amount.Dec(), a, user.Hex(), err)
	}

	rcpt, err = e.credit(a, user, amount)
	if err != nil {
		// tokens already moved; hand them back
		if rerr := tok.Transfer(ctx, user, amount); rerr != nil {
			e.log.Errorw("deposit_refund_failed", "asset", a.String(), "user", user.Hex(), "amount", amount.Dec(), "err", rerr)
		}
		return nil, err
	}
	e.log.Infow("token_deposited", "asset", a.String(), "user", user.Hex(), "amount", amount.Dec())
	return rcpt, nil
}

func (e *Exchange) token(a asset.Asset) (asset.Token, error) {
	if a.IsNative() {
		return nil, ErrInvalidAssetForNativeOperation
	}
	addr, ok := a.Address()
	if !ok || a.Validate() != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAsset, a)
	}
	tok, err := e.assets.Token(addr, e.cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrUnknownAsset, a, err)
	}
	return tok, nil
}

func (e *Exchange) credit(a asset.Asset, user common.Address, amount *uint256.Int) (*Receipt, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ch := e.balances.Stage()
	if err := ch.Credit(a, user, amount); err != nil {
		return nil, err
	}
	return e.commitLocked(ch, ChangeSet{}, nil, events.Deposit{
		Asset:   a,
		User:    user,
		Amount:  amount.Clone(),
		Balance: ch.Balance(a, user),
	})
}

// WithdrawEther debits the native balance and sends it to user
func (e *Exchange) WithdrawEther(ctx context.Context, user common.Address, amount *uint256.Int) (rcpt *Receipt, err error) {
	defer e.observe("withdraw_ether", time.Now(), &err)
	if e.bank == nil {
		return nil, errors.New("native bank not configured")
	}
	return e.withdraw(ctx, asset.Native(), user, zeroIfNil(amount), func(ctx context.Context, amt *uint256.Int) error {
		return e.bank.Send(ctx, user, amt)
	})
}

// WithdrawToken debits a and transfers it to user
func (e *Exchange) WithdrawToken(ctx context.Context, user common.Address, a asset.Asset, amount *uint256.Int) (rcpt *Receipt, err error) {
	defer e.observe("withdraw_token", time.Now(), &err)
	tok, err := e.token(a)
	if err != nil {
		return nil, err
	}
	return e.withdraw(ctx, a, user, zeroIfNil(amount), func(ctx context.Context, amt *uint256.Int) error {
		return tok.Transfer(ctx, user, amt)
	})
}

// withdraw commits the debit together with its Withdraw event, releases
// funds outside the lock, and reverses the debit if the release fails.
// Once the release succeeds nothing else can fail.
func (e *Exchange) withdraw(ctx context.Context, a asset.Asset, user common.Address, amount *uint256.Int, release func(context.Context, *uint256.Int) error) (*Receipt, error) {
	done, err := e.enter(a, user)
	if err != nil {
		return nil, err
	}
	defer done()

	rcpt, err := e.debit(a, user, amount)
	if err != nil {
		return nil, err
	}

	if err := release(ctx, amount); err != nil {
		err = fmt.Errorf("release %s %s to %s: %w", amount.Dec(), a, user.Hex(), err)
		if cerr := e.compensate(a, user, amount); cerr != nil {
			e.log.Errorw("withdraw_compensation_failed",
				"asset", a.String(), "user", user.Hex(), "amount", amount.Dec(), "err", cerr)
			return nil, errors.Join(err, cerr)
		}
		return nil, err
	}

	e.log.Infow("withdrawn", "asset", a.String(), "user", user.Hex(), "amount", amount.Dec())
	return rcpt, nil
}

func (e *Exchange) debit(a asset.Asset, user common.Address, amount *uint256.Int) (*Receipt, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ch := e.balances.Stage()
	if err := ch.Debit(a, user, amount); err != nil {
		return nil, err
	}
	return e.commitLocked(ch, ChangeSet{}, nil, events.Withdraw{
		Asset:   a,
		User:    user,
		Amount:  amount.Clone(),
		Balance: ch.Balance(a, user),
	})
}

// compensate credits back a debit whose release failed. The reversal is
// recorded as a Deposit so the event stream ends on the restored balance.
func (e *Exchange) compensate(a asset.Asset, user common.Address, amount *uint256.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	ch := e.balances.Stage()
	if err := ch.Credit(a, user, amount); err != nil {
		return err
	}
	_, err := e.commitLocked(ch, ChangeSet{}, nil, events.Deposit{
		Asset:   a,
		User:    user,
		Amount:  amount.Clone(),
		Balance: ch.Balance(a, user),
	})
	return err
}

// Fallback handles a bare native transfer to the exchange. It always fails;
// native currency enters only through DepositEther.
func (e *Exchange) Fallback(ctx context.Context, from common.Address, value *uint256.Int) (err error) {
	defer e.observe("fallback", time.Now(), &err)
	return fmt.Errorf("%w: %s from %s", ErrDirectTransfer, zeroIfNil(value).Dec(), from.Hex())
}

// BalanceOf returns the custodial balance, zero for unknown pairs
func (e *Exchange) BalanceOf(a asset.Asset, user common.Address) *uint256.Int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.balances.Get(a, user)
}

func (e *Exchange) Balances(user common.Address) []ledger.Cell {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.balances.Owned(user)
}

// Owed is the sum of every custodial balance in a
func (e *Exchange) Owed(a asset.Asset) (*uint256.Int, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.balances.Total(a)
}

// ---- Order Book ----

// MakeOrder records an offer to give amountGive of assetGive for amountGet
// of assetGet. Balances are not checked until fill.
func (e *Exchange) MakeOrder(ctx context.Context, user common.Address, assetGet asset.Asset, amountGet *uint256.Int, assetGive asset.Asset, amountGive *uint256.Int) (rcpt *Receipt, err error) {
	defer e.observe("make_order", time.Now(), &err)
	if err := assetGet.Validate(); err != nil {
		return nil, fmt.Errorf("%w: get asset: %w", ErrUnknownAsset, err)
	}
	if err := assetGive.Validate(); err != nil {
		return nil, fmt.Errorf("%w: give asset: %w", ErrUnknownAsset, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	o := &orderbook.Order{
		ID:         e.orders.NextID(),
		User:       user,
		AssetGet:   assetGet,
		AmountGet:  zeroIfNil(amountGet).Clone(),
		AssetGive:  assetGive,
		AmountGive: zeroIfNil(amountGive).Clone(),
		Timestamp:  e.now(),
	}
	rcpt, err = e.commitLocked(nil, ChangeSet{Order: o}, func() {
		mustApply(e.orders.Append(o))
	}, events.NewOrder(o))
	if err != nil {
		return nil, err
	}
	metrics.SetOrders(e.orders.Count(), e.orders.OpenCount())
	e.log.Infow("order_created",
		"id", o.ID,
		"user", user.Hex(),
		"asset_get", assetGet.String(),
		"amount_get", o.AmountGet.Dec(),
		"asset_give", assetGive.String(),
		"amount_give", o.AmountGive.Dec(),
	)
	return rcpt, nil
}

// Fee is amountGet * feePercent / 100, truncated
func (e *Exchange) Fee(amountGet *uint256.Int) (*uint256.Int, error) {
	fee, overflow := new(uint256.Int).MulDivOverflow(amountGet, uint256.NewInt(e.cfg.FeePercent), uint256.NewInt(100))
	if overflow {
		return nil, fmt.Errorf("fee on %s: %w", amountGet.Dec(), ErrAmountOverflow)
	}
	return fee, nil
}

// FillOrder settles order id against taker. The taker pays amountGet plus
// the fee in the get asset and receives amountGive. Permissionless.
func (e *Exchange) FillOrder(ctx context.Context, taker common.Address, id uint64) (rcpt *Receipt, err error) {
	defer e.observe("fill_order", time.Now(), &err)

	e.mu.Lock()
	defer e.mu.Unlock()

	o, err := e.orders.Open(id)
	if err != nil {
		return nil, err
	}
	fee, err := e.Fee(o.AmountGet)
	if err != nil {
		return nil, err
	}
	takerCost, overflow := new(uint256.Int).AddOverflow(o.AmountGet, fee)
	if overflow {
		return nil, fmt.Errorf("taker cost of order %d: %w", id, ErrAmountOverflow)
	}

	ch := e.balances.Stage()
	steps := []func() error{
		func() error { return ch.Debit(o.AssetGet, taker, takerCost) },
		func() error { return ch.Credit(o.AssetGet, o.User, o.AmountGet) },
		func() error { return ch.Credit(o.AssetGet, e.cfg.FeeAccount, fee) },
		func() error { return ch.Debit(o.AssetGive, o.User, o.AmountGive) },
		func() error { return ch.Credit(o.AssetGive, taker, o.AmountGive) },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return nil, fmt.Errorf("fill order %d: %w", id, err)
		}
	}

	rcpt, err = e.commitLocked(ch, ChangeSet{Filled: id}, func() {
		mustApply(e.orders.MarkFilled(id))
	}, events.NewTrade(o, taker, e.now()))
	if err != nil {
		return nil, err
	}
	metrics.SetOrders(e.orders.Count(), e.orders.OpenCount())
	e.log.Infow("order_filled", "id", id, "maker", o.User.Hex(), "taker", taker.Hex(), "fee", fee.Dec())
	return rcpt, nil
}

// CancelOrder marks an open order cancelled. Only its creator may cancel.
func (e *Exchange) CancelOrder(ctx context.Context, caller common.Address, id uint64) (rcpt *Receipt, err error) {
	defer e.observe("cancel_order", time.Now(), &err)

	e.mu.Lock()
	defer e.mu.Unlock()

	o, ok := e.orders.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: id %d", ErrOrderNotFound, id)
	}
	if o.User != caller {
		return nil, fmt.Errorf("%w: order %d belongs to %s", ErrUnauthorized, id, o.User.Hex())
	}
	if _, err := e.orders.Open(id); err != nil {
		return nil, err
	}

	rcpt, err = e.commitLocked(nil, ChangeSet{Cancelled: id}, func() {
		mustApply(e.orders.MarkCancelled(id))
	}, events.NewCancel(o, e.now()))
	if err != nil {
		return nil, err
	}
	metrics.SetOrders(e.orders.Count(), e.orders.OpenCount())
	e.log.Infow("order_cancelled", "id", id, "user", caller.Hex())
	return rcpt, nil
}

// mustApply guards in-memory updates that were validated under the same lock
func mustApply(err error) {
	if err != nil {
		panic(fmt.Errorf("exchange state diverged from store: %w", err))
	}
}

// ---- Queries ----

func (e *Exchange) Address() common.Address    { return e.cfg.Address }
func (e *Exchange) FeeAccount() common.Address { return e.cfg.FeeAccount }
func (e *Exchange) FeePercent() uint64         { return e.cfg.FeePercent }
func (e *Exchange) Config() Config             { return e.cfg }

func (e *Exchange) OrderCount() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.orders.Count()
}

// Order returns a copy of order id; ok is false outside [1, OrderCount]
func (e *Exchange) Order(id uint64) (*orderbook.Order, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.orders.Get(id)
}

func (e *Exchange) OrderFilled(id uint64) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.orders.Filled(id)
}

func (e *Exchange) OrderCancelled(id uint64) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.orders.Cancelled(id)
}

func (e *Exchange) Status(id uint64) (orderbook.Status, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.orders.Status(id)
}

func (e *Exchange) Orders(f orderbook.Filter) []*orderbook.Order {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.orders.List(f)
}

// OrderState is an order together with its status, both read at once
type OrderState struct {
	Order  *orderbook.Order
	Status orderbook.Status
}

// OrderWithStatus is Order plus the status it had at the same instant
func (e *Exchange) OrderWithStatus(id uint64) (OrderState, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	o, ok := e.orders.Get(id)
	if !ok {
		return OrderState{}, false
	}
	status, _ := e.orders.Status(id)
	return OrderState{Order: o, Status: status}, true
}

// OrdersWithStatus lists the orders matching f with their status under a
// single read lock, so a concurrent fill cannot split order and status.
func (e *Exchange) OrdersWithStatus(f orderbook.Filter) []OrderState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	orders := e.orders.List(f)
	out := make([]OrderState, len(orders))
	for i, o := range orders {
		status, _ := e.orders.Status(o.ID)
		out[i] = OrderState{Order: o, Status: status}
	}
	return out
}

// EventsSince returns up to limit records with sequence > after
func (e *Exchange) EventsSince(after uint64, limit int) []events.Record {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.outbox.Since(after, limit)
}

func (e *Exchange) LastEventSeq() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.outbox.LastSeq()
}
