package exchange_test

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"pgregory.net/rapid"

	"github.com/uhyunpark/hyperswap/pkg/app/core/asset"
	"github.com/uhyunpark/hyperswap/pkg/app/core/ledger"
	"github.com/uhyunpark/hyperswap/pkg/app/core/orderbook"
	"github.com/uhyunpark/hyperswap/pkg/app/exchange"
	"github.com/uhyunpark/hyperswap/pkg/devnet"
	"github.com/uhyunpark/hyperswap/pkg/util"
)

// ledgerModel is the reference arithmetic the exchange is checked against.
// Amounts drawn by the property stay far below 2^64.
type ledgerModel struct {
	feePercent uint64
	balances   map[ledger.Key]uint64
	orders     []modelOrder
}

type modelOrder struct {
	user       common.Address
	assetGet   asset.Asset
	amountGet  uint64
	assetGive  asset.Asset
	amountGive uint64
	status     orderbook.Status
}

func (m *ledgerModel) get(a asset.Asset, u common.Address) uint64 {
	return m.balances[ledger.Key{Asset: a, Owner: u}]
}

func (m *ledgerModel) credit(a asset.Asset, u common.Address, v uint64) {
	m.balances[ledger.Key{Asset: a, Owner: u}] += v
}

func (m *ledgerModel) debit(a asset.Asset, u common.Address, v uint64) bool {
	k := ledger.Key{Asset: a, Owner: u}
	if m.balances[k] < v {
		return false
	}
	m.balances[k] -= v
	return true
}

func (m *ledgerModel) order(id uint64) (*modelOrder, bool) {
	if id == 0 || id > uint64(len(m.orders)) {
		return nil, false
	}
	return &m.orders[id-1], true
}

// fill applies a fill step by step on a copy and keeps it only if every
// step succeeds. Reports whether the fill should succeed.
func (m *ledgerModel) fill(taker common.Address, id uint64) bool {
	o, ok := m.order(id)
	if !ok || o.status != orderbook.StatusOpen {
		return false
	}
	fee := o.amountGet * m.feePercent / 100

	staged := &ledgerModel{balances: make(map[ledger.Key]uint64, len(m.balances))}
	for k, v := range m.balances {
		staged.balances[k] = v
	}
	if !staged.debit(o.assetGet, taker, o.amountGet+fee) {
		return false
	}
	staged.credit(o.assetGet, o.user, o.amountGet)
	staged.credit(o.assetGet, feeAccount, fee)
	if !staged.debit(o.assetGive, o.user, o.amountGive) {
		return false
	}
	staged.credit(o.assetGive, taker, o.amountGive)

	m.balances = staged.balances
	o.status = orderbook.StatusFilled
	return true
}

// Whatever sequence of deposits, orders, fills, cancels and withdrawals
// runs, every balance matches the reference arithmetic, failed operations
// leave the state root untouched, the exchange's wallet and token holdings
// equal the sum of the custodial balances, and fees only ever grow.
func TestLedgerModelProperty(t *testing.T) {
	users := []common.Address{user1, user2, deployer}
	owners := append(append([]common.Address{}, users...), feeAccount)

	rapid.Check(t, func(t *rapid.T) {
		tok := devnet.NewToken(devnet.ContractAddress(deployer, 0), deployer)
		bank := devnet.NewBank(map[common.Address]*uint256.Int{
			user1:    util.Ether("1000"),
			user2:    util.Ether("1000"),
			deployer: util.Ether("1000"),
		})
		model := &ledgerModel{
			feePercent: rapid.Uint64Range(0, 50).Draw(t, "feePercent"),
			balances:   make(map[ledger.Key]uint64),
		}
		ex, err := exchange.New(exchange.Config{
			Address:    exchangeAdr,
			FeeAccount: feeAccount,
			FeePercent: model.feePercent,
		}, exchange.Deps{
			Assets: devnet.NewRegistry(tok),
			Bank:   bank.Account(exchangeAdr),
			Clock:  fixedClock{t: time.Unix(1700000000, 0)},
		})
		if err != nil {
			t.Fatalf("new exchange: %v", err)
		}
		ctx := context.Background()
		for _, u := range users[:2] {
			if err := tok.Transfer(ctx, deployer, u, util.Ether("1000")); err != nil {
				t.Fatalf("seed tokens: %v", err)
			}
		}

		assets := []asset.Asset{asset.Native(), tok.Asset()}
		user := rapid.SampledFrom(users)
		amount := rapid.Uint64Range(0, 1000)
		lastFee := map[asset.Asset]*uint256.Int{asset.Native(): new(uint256.Int), tok.Asset(): new(uint256.Int)}

		// expect checks the outcome the model predicted. A rejected call
		// must leave the state root as it was.
		expect := func(t *rapid.T, op string, want bool, root common.Hash, err error) {
			switch {
			case want && err != nil:
				t.Fatalf("%s: unexpected error: %v", op, err)
			case !want && err == nil:
				t.Fatalf("%s: succeeded, model expected a rejection", op)
			case err != nil && ex.StateRoot() != root:
				t.Fatalf("%s: rejected but state root moved", op)
			}
		}

		t.Repeat(map[string]func(*rapid.T){
			"depositEther": func(t *rapid.T) {
				u, v := user.Draw(t, "user"), amount.Draw(t, "amount")
				amt := uint256.NewInt(v)
				if err := bank.Transfer(u, exchangeAdr, amt); err != nil {
					t.Skip("wallet empty")
				}
				root := ex.StateRoot()
				_, err := ex.DepositEther(ctx, u, amt, amt)
				expect(t, "deposit ether", true, root, err)
				model.credit(asset.Native(), u, v)
			},
			"depositToken": func(t *rapid.T) {
				u, v := user.Draw(t, "user"), amount.Draw(t, "amount")
				amt := uint256.NewInt(v)
				if err := tok.Approve(u, exchangeAdr, amt); err != nil {
					t.Fatalf("approve: %v", err)
				}
				want := !tok.BalanceOf(u).Lt(amt)
				root := ex.StateRoot()
				_, err := ex.DepositToken(ctx, u, tok.Asset(), amt)
				expect(t, "deposit token", want, root, err)
				if err == nil {
					model.credit(tok.Asset(), u, v)
				}
			},
			"withdraw": func(t *rapid.T) {
				u, v := user.Draw(t, "user"), amount.Draw(t, "amount")
				a := assets[rapid.IntRange(0, 1).Draw(t, "asset")]
				want := model.get(a, u) >= v
				root := ex.StateRoot()
				var err error
				if a.IsNative() {
					_, err = ex.WithdrawEther(ctx, u, uint256.NewInt(v))
				} else {
					_, err = ex.WithdrawToken(ctx, u, a, uint256.NewInt(v))
				}
				expect(t, "withdraw", want, root, err)
				if err == nil {
					model.debit(a, u, v)
				}
			},
			"makeOrder": func(t *rapid.T) {
				u := user.Draw(t, "user")
				get := rapid.IntRange(0, 1).Draw(t, "get")
				o := modelOrder{
					user:       u,
					assetGet:   assets[get],
					amountGet:  amount.Draw(t, "amountGet"),
					assetGive:  assets[1-get],
					amountGive: amount.Draw(t, "amountGive"),
					status:     orderbook.StatusOpen,
				}
				root := ex.StateRoot()
				_, err := ex.MakeOrder(ctx, u, o.assetGet, uint256.NewInt(o.amountGet), o.assetGive, uint256.NewInt(o.amountGive))
				expect(t, "make order", true, root, err)
				model.orders = append(model.orders, o)
			},
			"fillOrder": func(t *rapid.T) {
				id := rapid.Uint64Range(0, ex.OrderCount()+1).Draw(t, "id")
				taker := user.Draw(t, "taker")
				root := ex.StateRoot()
				want := model.fill(taker, id)
				_, err := ex.FillOrder(ctx, taker, id)
				expect(t, "fill order", want, root, err)
			},
			"cancelOrder": func(t *rapid.T) {
				id := rapid.Uint64Range(0, ex.OrderCount()+1).Draw(t, "id")
				caller := user.Draw(t, "caller")
				o, ok := model.order(id)
				want := ok && o.status == orderbook.StatusOpen && o.user == caller
				root := ex.StateRoot()
				_, err := ex.CancelOrder(ctx, caller, id)
				expect(t, "cancel order", want, root, err)
				if err == nil {
					o.status = orderbook.StatusCancelled
				}
			},
			"": func(t *rapid.T) {
				for _, a := range assets {
					for _, u := range owners {
						got, want := ex.BalanceOf(a, u), model.get(a, u)
						if !got.IsUint64() || got.Uint64() != want {
							t.Fatalf("%s of %s: ledger %s, model %d", a, u.Hex(), got.Dec(), want)
						}
					}
				}
				for id := uint64(1); id <= uint64(len(model.orders)); id++ {
					st, _ := ex.Status(id)
					if o, _ := model.order(id); st != o.status {
						t.Fatalf("order %d: status %s, model %s", id, st, o.status)
					}
				}

				native, err := sumBalances(ex, asset.Native(), owners)
				if err != nil {
					t.Fatal(err)
				}
				if held := bank.BalanceOf(exchangeAdr); !held.Eq(native) {
					t.Fatalf("native: wallet holds %s, ledger owes %s", held.Dec(), native.Dec())
				}
				tokens, err := sumBalances(ex, tok.Asset(), owners)
				if err != nil {
					t.Fatal(err)
				}
				if held := tok.BalanceOf(exchangeAdr); !held.Eq(tokens) {
					t.Fatalf("token: contract holds %s, ledger owes %s", held.Dec(), tokens.Dec())
				}
				for _, a := range assets {
					fee := ex.BalanceOf(a, feeAccount)
					if fee.Lt(lastFee[a]) {
						t.Fatalf("fee balance of %s shrank", a)
					}
					lastFee[a] = fee
				}
			},
		})
	})
}

func sumBalances(ex *exchange.Exchange, a asset.Asset, owners []common.Address) (*uint256.Int, error) {
	sum := new(uint256.Int)
	for _, o := range owners {
		if _, overflow := sum.AddOverflow(sum, ex.BalanceOf(a, o)); overflow {
			return nil, exchange.ErrAmountOverflow
		}
	}
	return sum, nil
}
