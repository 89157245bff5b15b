package transaction

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uhyunpark/hyperswap/pkg/app/core/asset"
	"github.com/uhyunpark/hyperswap/pkg/crypto"
)

var (
	exchangeAddr = common.HexToAddress("0xe7f1725E7734CE288F8367e1Bb143E90bb3F0512")
	tokenAsset   = asset.External(common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3"))
	nativeAsset  = asset.Native()
	domain       = crypto.NewDomain(big.NewInt(1337), exchangeAddr)
)

func signedOrder(t *testing.T, signer *crypto.Signer) *SignedTransaction {
	t.Helper()
	tx := &SignedTransaction{
		Type:          TxMakeOrder,
		Nonce:         1,
		Asset:         &tokenAsset,
		Amount:        uint256.NewInt(1e18),
		CounterAsset:  &nativeAsset,
		CounterAmount: uint256.NewInt(1e18),
	}
	require.NoError(t, tx.Sign(crypto.NewEIP712Signer(domain), signer))
	return tx
}

func TestSignedTransactionRoundTrip(t *testing.T) {
	signer, err := crypto.GenerateKey()
	require.NoError(t, err)
	tx := signedOrder(t, signer)

	raw, err := tx.Serialize()
	require.NoError(t, err)
	parsed, err := ParseTransaction(raw)
	require.NoError(t, err)

	assert.Equal(t, TxMakeOrder, parsed.Type)
	assert.Equal(t, signer.Address(), parsed.From)
	assert.Equal(t, tokenAsset, *parsed.Asset)
	assert.True(t, parsed.CounterAsset.IsNative())
	assert.Equal(t, uint256.NewInt(1e18), parsed.Amount)

	from, err := NewVerifier(domain).Recover(parsed)
	require.NoError(t, err)
	assert.Equal(t, signer.Address(), from)
}

func TestRecoverRejectsForgedSender(t *testing.T) {
	signer, _ := crypto.GenerateKey()
	other, _ := crypto.GenerateKey()
	tx := signedOrder(t, signer)
	tx.From = other.Address()

	_, err := NewVerifier(domain).Recover(tx)
	assert.ErrorIs(t, err, ErrBadSignature)
}

func TestRecoverRejectsOtherDomain(t *testing.T) {
	signer, _ := crypto.GenerateKey()
	tx := signedOrder(t, signer)

	_, err := NewVerifier(crypto.NewDomain(big.NewInt(1), exchangeAddr)).Recover(tx)
	assert.ErrorIs(t, err, ErrBadSignature)
}

func TestRecoverRejectsTampering(t *testing.T) {
	signer, _ := crypto.GenerateKey()
	tx := signedOrder(t, signer)
	tx.CounterAmount = uint256.NewInt(1)

	_, err := NewVerifier(domain).Recover(tx)
	assert.ErrorIs(t, err, ErrBadSignature)
}

func TestValidate(t *testing.T) {
	sig := []byte{1}
	from := common.HexToAddress("0x22d491Bde2303f2f43325b2108D26f1eAbA1e32b")
	one := uint256.NewInt(1)

	cases := []struct {
		name string
		tx   SignedTransaction
		ok   bool
	}{
		{"deposit ether", SignedTransaction{Type: TxDepositEther, From: from, Nonce: 1, Amount: one, Value: one, Signature: sig}, true},
		{"deposit ether without value", SignedTransaction{Type: TxDepositEther, From: from, Nonce: 1, Amount: one, Signature: sig}, false},
		{"withdraw token", SignedTransaction{Type: TxWithdrawToken, From: from, Nonce: 1, Asset: &tokenAsset, Amount: one, Signature: sig}, true},
		{"withdraw token without asset", SignedTransaction{Type: TxWithdrawToken, From: from, Nonce: 1, Amount: one, Signature: sig}, false},
		{"fill", SignedTransaction{Type: TxFillOrder, From: from, Nonce: 1, OrderID: 1, Signature: sig}, true},
		{"cancel without id", SignedTransaction{Type: TxCancelOrder, From: from, Nonce: 1, Signature: sig}, false},
		{"approve native", SignedTransaction{Type: TxTokenApprove, From: from, Nonce: 1, Asset: &nativeAsset, Amount: one, Signature: sig}, false},
		{"transfer", SignedTransaction{Type: TxTransfer, From: from, Nonce: 1, Value: one, Signature: sig}, true},
		{"zero nonce", SignedTransaction{Type: TxFillOrder, From: from, OrderID: 1, Signature: sig}, false},
		{"missing sender", SignedTransaction{Type: TxFillOrder, Nonce: 1, OrderID: 1, Signature: sig}, false},
		{"unsigned", SignedTransaction{Type: TxFillOrder, From: from, Nonce: 1, OrderID: 1}, false},
		{"unknown type", SignedTransaction{Type: "mint", From: from, Nonce: 1, Signature: sig}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.tx.Validate()
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrMalformed)
			}
		})
	}
}

func TestDeserializeMalformed(t *testing.T) {
	_, err := ParseTransaction([]byte(`{"type":`))
	assert.ErrorIs(t, err, ErrMalformed)
	_, err = ParseTransaction([]byte(`{"type":"fill_order","from":"0x22d491Bde2303f2f43325b2108D26f1eAbA1e32b","nonce":1,"orderId":1,"asset":"BTC","signature":"0x01"}`))
	assert.ErrorIs(t, err, ErrMalformed)
}
