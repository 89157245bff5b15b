package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"go.uber.org/zap"

	"github.com/uhyunpark/hyperswap/params"
	"github.com/uhyunpark/hyperswap/pkg/api"
	"github.com/uhyunpark/hyperswap/pkg/app/core/transaction"
	"github.com/uhyunpark/hyperswap/pkg/app/dex"
	"github.com/uhyunpark/hyperswap/pkg/app/exchange"
	"github.com/uhyunpark/hyperswap/pkg/crypto"
	"github.com/uhyunpark/hyperswap/pkg/devnet"
	"github.com/uhyunpark/hyperswap/pkg/storage"
	"github.com/uhyunpark/hyperswap/pkg/util"
)

// store is what the node needs from either storage backend
type store interface {
	exchange.Store
	dex.NonceStore
	devnet.StateStore
}

func main() {
	// Load config from .env file and environment variables
	cfg, err := params.LoadFromEnv("")
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	var logger *zap.Logger
	if cfg.Node.LogFile != "" {
		logger, err = util.NewLoggerWithFile(cfg.Node.LogFile, cfg.Node.Verbose)
	} else {
		logger, err = util.NewLogger(cfg.Node.Verbose)
	}
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, sugar); err != nil {
		sugar.Fatalw("node_failed", "err", err)
	}
	sugar.Info("node_stopped")
}

func openStore(dir string, logger *zap.SugaredLogger) (store, func(), error) {
	if dir == "" {
		logger.Warn("DATA_DIR is empty, ledger state is kept in memory")
		return storage.NewInMemoryStore(), func() {}, nil
	}
	path := filepath.Join(dir, "ledger")
	st, err := storage.NewPebbleStore(path)
	if err != nil {
		return nil, nil, err
	}
	logger.Infow("store_opened", "path", path)
	return st, func() {
		if err := st.Close(); err != nil {
			logger.Errorw("store_close_failed", "err", err)
		}
	}, nil
}

func run(ctx context.Context, cfg params.Config, logger *zap.SugaredLogger) error {
	st, closeStore, err := openStore(cfg.Node.DataDir, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	// ---- Devnet: token contract and native bank ----
	token := devnet.NewToken(cfg.Devnet.Token, cfg.Devnet.Deployer)
	tokens := devnet.NewRegistry(token)
	bank := devnet.NewBank(cfg.Devnet.Alloc)
	chain, err := devnet.NewChain(bank, tokens, st, logger.Named("devnet"))
	if err != nil {
		return err
	}
	logger.Infow("devnet_ready",
		"chain_id", cfg.Devnet.ChainID.String(),
		"deployer", cfg.Devnet.Deployer.Hex(),
		"token", token.Address().Hex(),
		"token_symbol", token.Symbol(),
		"funded_accounts", len(cfg.Devnet.Alloc))

	// ---- Exchange ----
	ex, err := exchange.New(exchange.Config{
		Address:    cfg.Exchange.Address,
		FeeAccount: cfg.Exchange.FeeAccount,
		FeePercent: cfg.Exchange.FeePercent,
	}, exchange.Deps{
		Assets: tokens,
		Bank:   bank.Account(cfg.Exchange.Address),
		Store:  st,
		Logger: logger.Named("exchange"),
	})
	if err != nil {
		return err
	}
	if err := chain.CheckCustody(ex.Address(), ex.Owed); err != nil {
		return fmt.Errorf("exchange custody does not cover the ledger: %w", err)
	}
	logger.Infow("exchange_ready",
		"address", ex.Address().Hex(),
		"fee_account", ex.FeeAccount().Hex(),
		"fee_percent", ex.FeePercent(),
		"orders", ex.OrderCount(),
		"last_event_seq", ex.LastEventSeq(),
		"state_root", ex.StateRoot().Hex())

	// ---- Signed transaction front end ----
	domain := crypto.NewDomain(cfg.Devnet.ChainID, ex.Address())
	app, err := dex.New(dex.Deps{
		Exchange: ex,
		Verifier: transaction.NewVerifier(domain),
		Nonces:   st,
		Bank:     bank,
		Tokens:   tokens,
		Logger:   logger.Named("dex"),
	})
	if err != nil {
		return err
	}

	// ---- API Server ----
	server := api.NewServer(app, api.Options{
		CORSOrigins: cfg.Node.CORSOrigins,
		Logger:      logger.Named("api"),
	})
	return server.Start(ctx, cfg.Node.APIAddr)
}
