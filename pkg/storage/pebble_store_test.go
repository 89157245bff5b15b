package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cockroachdb/pebble/vfs"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uhyunpark/hyperswap/pkg/app/core/asset"
	"github.com/uhyunpark/hyperswap/pkg/app/exchange"
	"github.com/uhyunpark/hyperswap/pkg/devnet"
	"github.com/uhyunpark/hyperswap/pkg/util"
)

var (
	deployer   = common.HexToAddress("0x90F8bf6A479f320ead074411a4B0e7944Ea8c9C1")
	feeAccount = common.HexToAddress("0xFFcf8FDEE72ac11b5c542428B35EEF5769C409f0")
	maker      = common.HexToAddress("0x22d491Bde2303f2f43325b2108D26f1eAbA1e32b")
	taker      = common.HexToAddress("0xE11BA2b4D45Eaed5996Cd0823791E0C93114882d")
	exAddr     = devnet.ContractAddress(deployer, 1)
	cfg        = exchange.Config{Address: exAddr, FeeAccount: feeAccount, FeePercent: 10}
)

type stubClock struct{}

func (stubClock) After(d time.Duration) <-chan time.Time { return time.After(d) }
func (stubClock) Now() time.Time                         { return time.Unix(1700000000, 0) }

type world struct {
	token *devnet.Token
	bank  *devnet.Bank
	reg   *devnet.Registry
}

func newWorld(t *testing.T) *world {
	tok := devnet.NewToken(devnet.ContractAddress(deployer, 0), deployer)
	require.NoError(t, tok.Transfer(context.Background(), deployer, taker, util.Ether("10")))
	return &world{
		token: tok,
		bank:  devnet.NewBank(map[common.Address]*uint256.Int{maker: util.Ether("10")}),
		reg:   devnet.NewRegistry(tok),
	}
}

func (w *world) open(t *testing.T, st exchange.Store, c exchange.Config) (*exchange.Exchange, error) {
	t.Helper()
	return exchange.New(c, exchange.Deps{
		Assets: w.reg,
		Bank:   w.bank.Account(exAddr),
		Store:  st,
		Clock:  stubClock{},
	})
}

// trade runs deposit, make, fill and a second cancelled order
func (w *world) trade(t *testing.T, ex *exchange.Exchange) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, w.bank.Transfer(maker, exAddr, util.Ether("1")))
	_, err := ex.DepositEther(ctx, maker, util.Ether("1"), util.Ether("1"))
	require.NoError(t, err)

	require.NoError(t, w.token.Approve(taker, exAddr, util.Ether("2")))
	_, err = ex.DepositToken(ctx, taker, w.token.Asset(), util.Ether("2"))
	require.NoError(t, err)

	_, err = ex.MakeOrder(ctx, maker, w.token.Asset(), util.Ether("1"), asset.Native(), util.Ether("1"))
	require.NoError(t, err)
	_, err = ex.FillOrder(ctx, taker, 1)
	require.NoError(t, err)

	_, err = ex.MakeOrder(ctx, maker, w.token.Asset(), util.Ether("5"), asset.Native(), util.Ether("5"))
	require.NoError(t, err)
	_, err = ex.CancelOrder(ctx, maker, 2)
	require.NoError(t, err)
}

func TestPebbleStoreRestoresExchange(t *testing.T) {
	fs := vfs.NewMem()
	st, err := NewMemPebbleStoreFS(fs)
	require.NoError(t, err)

	w := newWorld(t)
	ex, err := w.open(t, st, cfg)
	require.NoError(t, err)
	w.trade(t, ex)
	root := ex.StateRoot()
	seq := ex.LastEventSeq()
	require.NoError(t, st.Close())

	st, err = NewMemPebbleStoreFS(fs)
	require.NoError(t, err)
	defer st.Close()
	restored, err := w.open(t, st, cfg)
	require.NoError(t, err)

	assert.Equal(t, root, restored.StateRoot())
	assert.Equal(t, uint64(2), restored.OrderCount())
	assert.True(t, restored.OrderFilled(1))
	assert.True(t, restored.OrderCancelled(2))
	assert.Equal(t, util.Ether("0.1"), restored.BalanceOf(w.token.Asset(), feeAccount))
	assert.Equal(t, seq, restored.LastEventSeq())
	assert.Len(t, restored.EventsSince(0, 0), int(seq))

	// ids and sequence numbers continue where they left off
	rcpt, err := restored.MakeOrder(context.Background(), taker, asset.Native(), uint256.NewInt(1), w.token.Asset(), uint256.NewInt(1))
	require.NoError(t, err)
	assert.Equal(t, seq+1, rcpt.Events[0].Seq)
	assert.Equal(t, uint64(3), restored.OrderCount())
}

// freshWorld rebuilds the devnet from genesis the way a restarted node does
func freshWorld(t *testing.T, st devnet.StateStore) (*world, *devnet.Chain) {
	t.Helper()
	tok := devnet.NewToken(devnet.ContractAddress(deployer, 0), deployer)
	w := &world{
		token: tok,
		bank:  devnet.NewBank(map[common.Address]*uint256.Int{maker: util.Ether("10")}),
		reg:   devnet.NewRegistry(tok),
	}
	chain, err := devnet.NewChain(w.bank, w.reg, st, nil)
	require.NoError(t, err)
	return w, chain
}

func TestPebbleStoreRestoresDevnetWithLedger(t *testing.T) {
	fs := vfs.NewMem()
	st, err := NewMemPebbleStoreFS(fs)
	require.NoError(t, err)

	w, _ := freshWorld(t, st)
	require.NoError(t, w.token.Transfer(context.Background(), deployer, taker, util.Ether("10")))
	ex, err := w.open(t, st, cfg)
	require.NoError(t, err)
	w.trade(t, ex)
	makerWallet := w.bank.BalanceOf(maker)
	custody := w.token.BalanceOf(exAddr)
	require.NoError(t, st.Close())

	st, err = NewMemPebbleStoreFS(fs)
	require.NoError(t, err)
	defer st.Close()
	w, chain := freshWorld(t, st)
	restored, err := w.open(t, st, cfg)
	require.NoError(t, err)

	assert.Equal(t, makerWallet, w.bank.BalanceOf(maker))
	assert.Equal(t, util.Ether("1"), w.bank.BalanceOf(exAddr))
	assert.Equal(t, custody, w.token.BalanceOf(exAddr))
	require.NoError(t, chain.CheckCustody(exAddr, restored.Owed))

	// custody survived, so balances earned before the restart can leave
	_, err = restored.WithdrawToken(context.Background(), maker, w.token.Asset(), util.Ether("1"))
	require.NoError(t, err)
	_, err = restored.WithdrawEther(context.Background(), taker, util.Ether("1"))
	require.NoError(t, err)
	assert.Equal(t, util.Ether("1"), w.token.BalanceOf(maker))
}

func TestInMemoryStoreDevnetRoundTrip(t *testing.T) {
	st := NewInMemoryStore()
	saved, err := st.LoadDevnet()
	require.NoError(t, err)
	assert.Nil(t, saved)

	w, _ := freshWorld(t, st)
	require.NoError(t, w.bank.Transfer(maker, taker, util.Ether("3")))

	saved, err = st.LoadDevnet()
	require.NoError(t, err)
	require.NotNil(t, saved)
	assert.Equal(t, util.Ether("3"), saved.Wallets[taker])
	assert.Equal(t, devnet.TokenSupply, saved.Tokens[w.token.Address()].Balances[deployer])
}

func TestPebbleStoreConfigMismatch(t *testing.T) {
	fs := vfs.NewMem()
	st, err := NewMemPebbleStoreFS(fs)
	require.NoError(t, err)
	w := newWorld(t)
	_, err = w.open(t, st, cfg)
	require.NoError(t, err)
	require.NoError(t, st.Close())

	st, err = NewMemPebbleStoreFS(fs)
	require.NoError(t, err)
	defer st.Close()
	changed := cfg
	changed.FeePercent = 5
	_, err = w.open(t, st, changed)
	assert.ErrorIs(t, err, exchange.ErrConfigMismatch)
}

func TestPebbleStoreDeletesZeroBalances(t *testing.T) {
	st, err := NewMemPebbleStore()
	require.NoError(t, err)
	defer st.Close()

	w := newWorld(t)
	ex, err := w.open(t, st, cfg)
	require.NoError(t, err)
	require.NoError(t, w.bank.Transfer(maker, exAddr, util.Ether("1")))
	_, err = ex.DepositEther(context.Background(), maker, util.Ether("1"), util.Ether("1"))
	require.NoError(t, err)
	_, err = ex.WithdrawEther(context.Background(), maker, util.Ether("1"))
	require.NoError(t, err)

	snap, err := st.Load()
	require.NoError(t, err)
	assert.Empty(t, snap.Balances)
	assert.Len(t, snap.Events, 2)
}

func TestPebbleStoreNonces(t *testing.T) {
	st, err := NewMemPebbleStore()
	require.NoError(t, err)
	defer st.Close()

	n, err := st.Nonce(maker)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), n)

	require.NoError(t, st.SetNonce(maker, 7))
	n, err = st.Nonce(maker)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), n)
}

func TestStoreFailureLeavesStateUntouched(t *testing.T) {
	st := NewInMemoryStore()
	w := newWorld(t)
	ex, err := w.open(t, st, cfg)
	require.NoError(t, err)
	w.trade(t, ex)
	root := ex.StateRoot()

	boom := errors.New("disk full")
	st.FailCommits(boom)
	ctx := context.Background()

	_, err = ex.MakeOrder(ctx, maker, asset.Native(), uint256.NewInt(1), w.token.Asset(), uint256.NewInt(1))
	assert.ErrorIs(t, err, boom)
	_, err = ex.WithdrawToken(ctx, taker, w.token.Asset(), uint256.NewInt(1))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, root, ex.StateRoot())
	assert.Equal(t, uint64(2), ex.OrderCount())

	st.FailCommits(nil)
	restored, err := w.open(t, st, cfg)
	require.NoError(t, err)
	assert.Equal(t, root, restored.StateRoot())
}

func TestKeysSortNumerically(t *testing.T) {
	assert.Less(t, string(orderKey(9)), string(orderKey(10)))
	id, err := idFromKey(prefixEvent, eventKey(12345))
	require.NoError(t, err)
	assert.Equal(t, uint64(12345), id)
	assert.Equal(t, "bal:ETH:"+maker.Hex(), string(balanceKey(asset.Native(), maker)))
}
