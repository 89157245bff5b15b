package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uhyunpark/hyperswap/params"
	"github.com/uhyunpark/hyperswap/pkg/app/core/transaction"
	"github.com/uhyunpark/hyperswap/pkg/crypto"
	"github.com/uhyunpark/hyperswap/pkg/util"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestKeygen(t *testing.T) {
	out, err := execute(t, "keygen")
	require.NoError(t, err)

	var kp keyPair
	require.NoError(t, json.Unmarshal([]byte(out), &kp))
	signer, err := crypto.FromPrivateKeyHex(kp.PrivateKey)
	require.NoError(t, err)
	assert.Equal(t, kp.Address, signer.Address().Hex())
}

func TestSignMakeOrder(t *testing.T) {
	signer, err := crypto.GenerateKey()
	require.NoError(t, err)
	cfg := params.Default()

	out, err := execute(t, "sign", "make-order",
		"--key", signer.PrivateKeyHex(),
		"--nonce", "3",
		"--get", cfg.Devnet.Token.Hex(),
		"--amount-get", "1",
		"--give", "ETH",
		"--amount-give", "0.5",
	)
	require.NoError(t, err)

	tx, err := transaction.ParseTransaction([]byte(out))
	require.NoError(t, err)
	assert.Equal(t, transaction.TxMakeOrder, tx.Type)
	assert.Equal(t, uint64(3), tx.Nonce)
	assert.Equal(t, util.Ether("0.5"), tx.CounterAmount)
	assert.True(t, tx.CounterAsset.IsNative())

	domain := crypto.NewDomain(cfg.Devnet.ChainID, cfg.Exchange.Address)
	from, err := transaction.NewVerifier(domain).Recover(tx)
	require.NoError(t, err)
	assert.Equal(t, signer.Address(), from)
}

func TestSignTypedData(t *testing.T) {
	signer, err := crypto.GenerateKey()
	require.NoError(t, err)

	out, err := execute(t, "sign", "fill-order", "--key", signer.PrivateKeyHex(), "--nonce", "1", "--id", "7", "--typed-data")
	require.NoError(t, err)
	assert.Contains(t, out, `"primaryType": "Action"`)
	assert.Contains(t, out, `"fill_order"`)
}

func TestSignRejectsBadInput(t *testing.T) {
	signer, err := crypto.GenerateKey()
	require.NoError(t, err)
	key := signer.PrivateKeyHex()

	cases := map[string][]string{
		"missing flag":  {"sign", "deposit-ether", "--key", key, "--nonce", "1"},
		"zero nonce":    {"sign", "deposit-ether", "--key", key, "--nonce", "0", "--amount", "1"},
		"bad amount":    {"sign", "deposit-ether", "--key", key, "--nonce", "1", "--amount", "-1"},
		"bad recipient": {"sign", "transfer-token", "--key", key, "--nonce", "1", "--token", params.Default().Devnet.Token.Hex(), "--to", "bob", "--amount", "1"},
		"native token":  {"sign", "approve", "--key", key, "--nonce", "1", "--token", "ETH", "--spender", params.Default().Exchange.Address.Hex(), "--amount", "1"},
		"bad key":       {"sign", "fill-order", "--key", "0x1234", "--nonce", "1", "--id", "1"},
		"bad chain":     {"sign", "fill-order", "--key", key, "--nonce", "1", "--id", "1", "--chain-id", "x"},
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := execute(t, args...)
			assert.Error(t, err)
		})
	}
}

func TestUnits(t *testing.T) {
	out, err := execute(t, "units", "to-wei", "0.1")
	require.NoError(t, err)
	assert.Equal(t, "100000000000000000", strings.TrimSpace(out))

	out, err = execute(t, "units", "from-wei", "100000000000000000")
	require.NoError(t, err)
	assert.Equal(t, "0.1", strings.TrimSpace(out))

	out, err = execute(t, "units", "to-wei", "1.5", "--decimals", "6")
	require.NoError(t, err)
	assert.Equal(t, "1500000", strings.TrimSpace(out))

	_, err = execute(t, "units", "to-wei", "0.0000001", "--decimals", "6")
	assert.Error(t, err)
}
