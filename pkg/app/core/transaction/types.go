package transaction

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"

	"github.com/uhyunpark/hyperswap/pkg/app/core/asset"
	"github.com/uhyunpark/hyperswap/pkg/crypto"
)

// TxType represents the type of transaction
type TxType string

const (
	TxDepositEther  TxType = "deposit_ether"
	TxWithdrawEther TxType = "withdraw_ether"
	TxDepositToken  TxType = "deposit_token"
	TxWithdrawToken TxType = "withdraw_token"
	TxMakeOrder     TxType = "make_order"
	TxFillOrder     TxType = "fill_order"
	TxCancelOrder   TxType = "cancel_order"
	TxTokenApprove  TxType = "token_approve"
	TxTokenTransfer TxType = "token_transfer"
	TxTransfer      TxType = "transfer" // bare native transfer to the exchange
)

var ErrMalformed = errors.New("malformed transaction")

// SignedTransaction is the envelope accepted by POST /tx.
// Field use per type:
//
//	deposit_ether   amount, value
//	withdraw_ether  amount
//	deposit_token   asset, amount
//	withdraw_token  asset, amount
//	make_order      asset/amount = get leg, counterAsset/counterAmount = give leg
//	fill_order      orderId
//	cancel_order    orderId
//	token_approve   asset, target (spender), amount
//	token_transfer  asset, target (recipient), amount
//	transfer        value
type SignedTransaction struct {
	Type          TxType         `json:"type"`
	From          common.Address `json:"from"`
	Nonce         uint64         `json:"nonce"`
	Asset         *asset.Asset   `json:"asset,omitempty"`
	Amount        *uint256.Int   `json:"amount,omitempty"`
	CounterAsset  *asset.Asset   `json:"counterAsset,omitempty"`
	CounterAmount *uint256.Int   `json:"counterAmount,omitempty"`
	OrderID       uint64         `json:"orderId,omitempty"`
	Target        common.Address `json:"target,omitempty"`
	Value         *uint256.Int   `json:"value,omitempty"`
	Signature     hexutil.Bytes  `json:"signature"`
}

func wire(a *asset.Asset) common.Address {
	if a == nil {
		return common.Address{}
	}
	return a.WireAddress()
}

// Action returns the typed struct the signature covers
func (tx *SignedTransaction) Action() *crypto.ActionEIP712 {
	return &crypto.ActionEIP712{
		Type:          string(tx.Type),
		From:          tx.From,
		Nonce:         tx.Nonce,
		Asset:         wire(tx.Asset),
		Amount:        tx.Amount,
		CounterAsset:  wire(tx.CounterAsset),
		CounterAmount: tx.CounterAmount,
		OrderID:       tx.OrderID,
		Target:        tx.Target,
		Value:         tx.Value,
	}
}

// Serialize converts SignedTransaction to JSON bytes
func (tx *SignedTransaction) Serialize() ([]byte, error) {
	return json.Marshal(tx)
}

// Deserialize parses JSON bytes into SignedTransaction
func Deserialize(data []byte) (*SignedTransaction, error) {
	var tx SignedTransaction
	if err := json.Unmarshal(data, &tx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return &tx, nil
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformed, fmt.Sprintf(format, args...))
}

// Validate performs basic validation on transaction structure
func (tx *SignedTransaction) Validate() error {
	if tx.Type == "" {
		return malformed("missing transaction type")
	}
	if tx.From == (common.Address{}) {
		return malformed("missing sender")
	}
	if tx.Nonce == 0 {
		return malformed("nonce must be positive")
	}
	if len(tx.Signature) == 0 {
		return malformed("missing signature")
	}

	switch tx.Type {
	case TxDepositEther:
		if tx.Amount == nil || tx.Value == nil {
			return malformed("%s requires amount and value", tx.Type)
		}
	case TxWithdrawEther:
		if tx.Amount == nil {
			return malformed("%s requires amount", tx.Type)
		}
	case TxDepositToken, TxWithdrawToken:
		if tx.Asset == nil || tx.Amount == nil {
			return malformed("%s requires asset and amount", tx.Type)
		}
	case TxMakeOrder:
		if tx.Asset == nil || tx.Amount == nil || tx.CounterAsset == nil || tx.CounterAmount == nil {
			return malformed("%s requires both order legs", tx.Type)
		}
	case TxFillOrder, TxCancelOrder:
		if tx.OrderID == 0 {
			return malformed("%s requires orderId", tx.Type)
		}
	case TxTokenApprove, TxTokenTransfer:
		if tx.Asset == nil || tx.Amount == nil {
			return malformed("%s requires asset and amount", tx.Type)
		}
		if tx.Asset.IsNative() {
			return malformed("%s requires a token asset", tx.Type)
		}
	case TxTransfer:
		if tx.Value == nil {
			return malformed("%s requires value", tx.Type)
		}
	default:
		return malformed("unknown transaction type: %s", tx.Type)
	}
	return nil
}

// ParseTransaction decodes and validates a JSON transaction
func ParseTransaction(data []byte) (*SignedTransaction, error) {
	tx, err := Deserialize(data)
	if err != nil {
		return nil, err
	}
	if err := tx.Validate(); err != nil {
		return nil, err
	}
	return tx, nil
}

// Sign fills From and Signature using signer
func (tx *SignedTransaction) Sign(e *crypto.EIP712Signer, signer *crypto.Signer) error {
	tx.From = signer.Address()
	sig, err := e.SignAction(signer, tx.Action())
	if err != nil {
		return err
	}
	tx.Signature = sig
	return nil
}

// Example:
//   {
//     "type": "make_order",
//     "from": "0x22d491bde2303f2f43325b2108d26f1eaba1e32b",
//     "nonce": 3,
//     "asset": "0x5FbDB2315678afecb367f032d93F642f64180aa3",
//     "amount": "1000000000000000000",
//     "counterAsset": "ETH",
//     "counterAmount": "1000000000000000000",
//     "signature": "0x1234567890abcdef..."
//   }
