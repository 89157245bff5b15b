package dex

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/uhyunpark/hyperswap/pkg/app/core/transaction"
	"github.com/uhyunpark/hyperswap/pkg/app/exchange"
	"github.com/uhyunpark/hyperswap/pkg/devnet"
	"github.com/uhyunpark/hyperswap/pkg/metrics"
)

// Apply verifies and executes one signed transaction.
// The nonce is consumed once the signature checks out, even if the
// exchange then rejects the transaction.
func (a *App) Apply(ctx context.Context, raw []byte) (*Receipt, error) {
	tx, err := transaction.ParseTransaction(raw)
	if err != nil {
		metrics.ObserveTransaction("unknown", CodeMalformed)
		return nil, err
	}

	rcpt, err := a.apply(ctx, tx)
	metrics.ObserveTransaction(string(tx.Type), Code(err))
	if err != nil {
		a.logger.Debugw("tx_rejected", "type", tx.Type, "from", tx.From.Hex(), "nonce", tx.Nonce, "code", Code(err), "err", err)
		return nil, err
	}
	a.logger.Infow("tx_applied", "type", tx.Type, "from", tx.From.Hex(), "nonce", tx.Nonce, "events", len(rcpt.Events))
	return rcpt, nil
}

func (a *App) apply(ctx context.Context, tx *transaction.SignedTransaction) (*Receipt, error) {
	from, err := a.verifier.Recover(tx)
	if err != nil {
		return nil, err
	}
	if err := a.consumeNonce(from, tx.Nonce); err != nil {
		return nil, err
	}

	exRcpt, err := a.dispatch(ctx, from, tx)
	if err != nil {
		return nil, err
	}
	rcpt := &Receipt{Type: tx.Type, From: from, Nonce: tx.Nonce}
	if exRcpt != nil {
		rcpt.Events = exRcpt.Events
	}
	return rcpt, nil
}

func (a *App) consumeNonce(from common.Address, nonce uint64) error {
	a.nonceMu.Lock()
	defer a.nonceMu.Unlock()

	last, err := a.nonces.Nonce(from)
	if err != nil {
		return fmt.Errorf("read nonce: %w", err)
	}
	if nonce <= last {
		return fmt.Errorf("%w: got %d, last used %d", ErrNonceTooLow, nonce, last)
	}
	if err := a.nonces.SetNonce(from, nonce); err != nil {
		return fmt.Errorf("store nonce: %w", err)
	}
	return nil
}

func (a *App) dispatch(ctx context.Context, from common.Address, tx *transaction.SignedTransaction) (*exchange.Receipt, error) {
	switch tx.Type {
	case transaction.TxDepositEther:
		return a.withValue(from, tx.Value, func() (*exchange.Receipt, error) {
			return a.ex.DepositEther(ctx, from, tx.Value, tx.Amount)
		})
	case transaction.TxTransfer:
		return a.withValue(from, tx.Value, func() (*exchange.Receipt, error) {
			return nil, a.ex.Fallback(ctx, from, tx.Value)
		})
	case transaction.TxWithdrawEther:
		return a.ex.WithdrawEther(ctx, from, tx.Amount)
	case transaction.TxDepositToken:
		return a.ex.DepositToken(ctx, from, *tx.Asset, tx.Amount)
	case transaction.TxWithdrawToken:
		return a.ex.WithdrawToken(ctx, from, *tx.Asset, tx.Amount)
	case transaction.TxMakeOrder:
		return a.ex.MakeOrder(ctx, from, *tx.Asset, tx.Amount, *tx.CounterAsset, tx.CounterAmount)
	case transaction.TxFillOrder:
		return a.ex.FillOrder(ctx, from, tx.OrderID)
	case transaction.TxCancelOrder:
		return a.ex.CancelOrder(ctx, from, tx.OrderID)
	case transaction.TxTokenApprove, transaction.TxTokenTransfer:
		addr, _ := tx.Asset.Address()
		token, ok := a.tokens.Get(addr)
		if !ok {
			return nil, fmt.Errorf("%w: %s", devnet.ErrUnknownToken, addr.Hex())
		}
		if tx.Type == transaction.TxTokenApprove {
			return nil, token.Approve(from, tx.Target, tx.Amount)
		}
		return nil, token.Transfer(ctx, from, tx.Target, tx.Amount)
	default:
		return nil, fmt.Errorf("%w: unknown transaction type: %s", transaction.ErrMalformed, tx.Type)
	}
}

// withValue moves value from the sender's wallet to the exchange before
// call and returns it if call fails, like a reverted payable call.
func (a *App) withValue(from common.Address, value *uint256.Int, call func() (*exchange.Receipt, error)) (*exchange.Receipt, error) {
	exAddr := a.ex.Address()
	if err := a.bank.Transfer(from, exAddr, value); err != nil {
		return nil, err
	}
	rcpt, err := call()
	if err != nil {
		if refundErr := a.bank.Transfer(exAddr, from, value); refundErr != nil {
			a.logger.Errorw("value_refund_failed", "from", from.Hex(), "value", value.Dec(), "err", refundErr)
			return nil, errors.Join(err, refundErr)
		}
		return nil, err
	}
	return rcpt, nil
}
