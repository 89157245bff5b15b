package dex

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/uhyunpark/hyperswap/pkg/app/core/events"
	"github.com/uhyunpark/hyperswap/pkg/app/core/transaction"
	"github.com/uhyunpark/hyperswap/pkg/app/exchange"
	"github.com/uhyunpark/hyperswap/pkg/crypto"
	"github.com/uhyunpark/hyperswap/pkg/devnet"
)

// NonceStore persists the last accepted nonce per sender
type NonceStore interface {
	Nonce(addr common.Address) (uint64, error)
	SetNonce(addr common.Address, nonce uint64) error
}

type Deps struct {
	Exchange *exchange.Exchange
	Verifier *transaction.Verifier
	Nonces   NonceStore
	Bank     *devnet.Bank
	Tokens   *devnet.Registry
	Logger   *zap.SugaredLogger
}

// Receipt is the result of one applied transaction
type Receipt struct {
	Type   transaction.TxType `json:"type"`
	From   common.Address     `json:"from"`
	Nonce  uint64             `json:"nonce"`
	Events []events.Record    `json:"events"`
}

// App turns signed transactions into exchange and devnet calls
type App struct {
	ex       *exchange.Exchange
	verifier *transaction.Verifier
	nonces   NonceStore
	bank     *devnet.Bank
	tokens   *devnet.Registry
	logger   *zap.SugaredLogger

	nonceMu sync.Mutex
}

func New(deps Deps) (*App, error) {
	if deps.Exchange == nil || deps.Verifier == nil || deps.Nonces == nil {
		return nil, errors.New("dex: exchange, verifier and nonce store are required")
	}
	if deps.Bank == nil || deps.Tokens == nil {
		return nil, errors.New("dex: devnet bank and token registry are required")
	}
	if deps.Verifier.Domain().VerifyingContract != deps.Exchange.Address() {
		return nil, fmt.Errorf("dex: signing domain bound to %s, exchange is %s",
			deps.Verifier.Domain().VerifyingContract.Hex(), deps.Exchange.Address().Hex())
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &App{
		ex:       deps.Exchange,
		verifier: deps.Verifier,
		nonces:   deps.Nonces,
		bank:     deps.Bank,
		tokens:   deps.Tokens,
		logger:   logger,
	}, nil
}

func (a *App) Exchange() *exchange.Exchange { return a.ex }
func (a *App) Bank() *devnet.Bank           { return a.bank }
func (a *App) Tokens() *devnet.Registry     { return a.tokens }

// Domain is the EIP-712 domain transactions must be signed for
func (a *App) Domain() crypto.EIP712Domain { return a.verifier.Domain() }

// Nonce returns the last nonce consumed by addr; the next transaction
// must carry a greater one.
func (a *App) Nonce(addr common.Address) (uint64, error) {
	return a.nonces.Nonce(addr)
}
