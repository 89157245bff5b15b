package dex

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/uhyunpark/hyperswap/pkg/app/core/asset"
	"github.com/uhyunpark/hyperswap/pkg/app/core/transaction"
	"github.com/uhyunpark/hyperswap/pkg/crypto"
)

// TxBuilder signs transactions for one key and tracks its nonce
type TxBuilder struct {
	signer *crypto.Signer
	eip712 *crypto.EIP712Signer
	nonce  uint64 // last nonce handed out
}

// NewTxBuilder starts after lastNonce, the sender's last consumed nonce
func NewTxBuilder(domain crypto.EIP712Domain, signer *crypto.Signer, lastNonce uint64) *TxBuilder {
	return &TxBuilder{
		signer: signer,
		eip712: crypto.NewEIP712Signer(domain),
		nonce:  lastNonce,
	}
}

func (b *TxBuilder) Address() common.Address { return b.signer.Address() }
func (b *TxBuilder) Nonce() uint64           { return b.nonce }

// Sign assigns the next nonce to tx and signs it
func (b *TxBuilder) Sign(tx *transaction.SignedTransaction) (*transaction.SignedTransaction, error) {
	b.nonce++
	tx.Nonce = b.nonce
	if err := tx.Sign(b.eip712, b.signer); err != nil {
		return nil, fmt.Errorf("sign %s: %w", tx.Type, err)
	}
	return tx, nil
}

// Build signs tx and returns its JSON encoding
func (b *TxBuilder) Build(tx *transaction.SignedTransaction) ([]byte, error) {
	signed, err := b.Sign(tx)
	if err != nil {
		return nil, err
	}
	return signed.Serialize()
}

func ptr(a asset.Asset) *asset.Asset { return &a }

func (b *TxBuilder) DepositEther(amount *uint256.Int) ([]byte, error) {
	return b.Build(&transaction.SignedTransaction{Type: transaction.TxDepositEther, Amount: amount, Value: amount})
}

func (b *TxBuilder) WithdrawEther(amount *uint256.Int) ([]byte, error) {
	return b.Build(&transaction.SignedTransaction{Type: transaction.TxWithdrawEther, Amount: amount})
}

func (b *TxBuilder) DepositToken(a asset.Asset, amount *uint256.Int) ([]byte, error) {
	return b.Build(&transaction.SignedTransaction{Type: transaction.TxDepositToken, Asset: ptr(a), Amount: amount})
}

func (b *TxBuilder) WithdrawToken(a asset.Asset, amount *uint256.Int) ([]byte, error) {
	return b.Build(&transaction.SignedTransaction{Type: transaction.TxWithdrawToken, Asset: ptr(a), Amount: amount})
}

func (b *TxBuilder) MakeOrder(assetGet asset.Asset, amountGet *uint256.Int, assetGive asset.Asset, amountGive *uint256.Int) ([]byte, error) {
	return b.Build(&transaction.SignedTransaction{
		Type:          transaction.TxMakeOrder,
		Asset:         ptr(assetGet),
		Amount:        amountGet,
		CounterAsset:  ptr(assetGive),
		CounterAmount: amountGive,
	})
}

func (b *TxBuilder) FillOrder(id uint64) ([]byte, error) {
	return b.Build(&transaction.SignedTransaction{Type: transaction.TxFillOrder, OrderID: id})
}

func (b *TxBuilder) CancelOrder(id uint64) ([]byte, error) {
	return b.Build(&transaction.SignedTransaction{Type: transaction.TxCancelOrder, OrderID: id})
}

func (b *TxBuilder) ApproveToken(token asset.Asset, spender common.Address, amount *uint256.Int) ([]byte, error) {
	return b.Build(&transaction.SignedTransaction{Type: transaction.TxTokenApprove, Asset: ptr(token), Target: spender, Amount: amount})
}

func (b *TxBuilder) TransferToken(token asset.Asset, to common.Address, amount *uint256.Int) ([]byte, error) {
	return b.Build(&transaction.SignedTransaction{Type: transaction.TxTokenTransfer, Asset: ptr(token), Target: to, Amount: amount})
}

func (b *TxBuilder) Transfer(value *uint256.Int) ([]byte, error) {
	return b.Build(&transaction.SignedTransaction{Type: transaction.TxTransfer, Value: value})
}
