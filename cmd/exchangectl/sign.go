package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/spf13/cobra"

	"github.com/uhyunpark/hyperswap/params"
	"github.com/uhyunpark/hyperswap/pkg/app/core/asset"
	"github.com/uhyunpark/hyperswap/pkg/app/core/transaction"
	"github.com/uhyunpark/hyperswap/pkg/crypto"
	"github.com/uhyunpark/hyperswap/pkg/util"
)

// signFlags are shared by every sign subcommand
type signFlags struct {
	key       string
	nonce     uint64
	chainID   string
	exchange  string
	typedData bool
}

func (f *signFlags) domain() (crypto.EIP712Domain, error) {
	id, ok := new(big.Int).SetString(f.chainID, 10)
	if !ok || id.Sign() <= 0 {
		return crypto.EIP712Domain{}, fmt.Errorf("invalid chain id %q", f.chainID)
	}
	if !common.IsHexAddress(f.exchange) {
		return crypto.EIP712Domain{}, fmt.Errorf("invalid exchange address %q", f.exchange)
	}
	return crypto.NewDomain(id, common.HexToAddress(f.exchange)), nil
}

func newSignCmd() *cobra.Command {
	f := &signFlags{}
	defaults := params.Default()

	cmd := &cobra.Command{
		Use:   "sign",
		Short: "Sign an exchange transaction with EIP-712",
		Long: `Sign an exchange transaction with EIP-712 and print the JSON body
for POST /api/v1/tx. Amounts are in ether units (18 decimals).`,
	}
	pf := cmd.PersistentFlags()
	pf.StringVar(&f.key, "key", "", "private key (hex)")
	pf.Uint64Var(&f.nonce, "nonce", 0, "transaction nonce; must exceed the account's last nonce")
	pf.StringVar(&f.chainID, "chain-id", defaults.Devnet.ChainID.String(), "chain id of the signing domain")
	pf.StringVar(&f.exchange, "exchange", defaults.Exchange.Address.Hex(), "exchange address of the signing domain")
	pf.BoolVar(&f.typedData, "typed-data", false, "print eth_signTypedData_v4 input instead of the signed transaction")
	_ = cmd.MarkPersistentFlagRequired("key")
	_ = cmd.MarkPersistentFlagRequired("nonce")

	cmd.AddCommand(
		actionCmd(f, "deposit-ether", "Deposit native ether", transaction.TxDepositEther, []string{"amount"}),
		actionCmd(f, "withdraw-ether", "Withdraw native ether", transaction.TxWithdrawEther, []string{"amount"}),
		actionCmd(f, "deposit-token", "Deposit an approved token", transaction.TxDepositToken, []string{"token", "amount"}),
		actionCmd(f, "withdraw-token", "Withdraw a token", transaction.TxWithdrawToken, []string{"token", "amount"}),
		actionCmd(f, "make-order", "Post an order", transaction.TxMakeOrder, []string{"get", "amount-get", "give", "amount-give"}),
		actionCmd(f, "fill-order", "Fill an order in full", transaction.TxFillOrder, []string{"id"}),
		actionCmd(f, "cancel-order", "Cancel one of your orders", transaction.TxCancelOrder, []string{"id"}),
		actionCmd(f, "approve", "Approve a spender on a devnet token", transaction.TxTokenApprove, []string{"token", "spender", "amount"}),
		actionCmd(f, "transfer-token", "Transfer a devnet token", transaction.TxTokenTransfer, []string{"token", "to", "amount"}),
		actionCmd(f, "transfer", "Send ether straight to the exchange (always rejected)", transaction.TxTransfer, []string{"value"}),
	)
	return cmd
}

// actionFlags holds every per-action flag; each subcommand registers only
// the ones it uses.
type actionFlags struct {
	amount, amountGet, amountGive, value string
	token, get, give, spender, to        string
	id                                   uint64
}

func (a *actionFlags) register(cmd *cobra.Command, name string) {
	fs := cmd.Flags()
	switch name {
	case "amount":
		fs.StringVar(&a.amount, name, "", "amount in ether units")
	case "amount-get":
		fs.StringVar(&a.amountGet, name, "", "amount wanted, in ether units")
	case "amount-give":
		fs.StringVar(&a.amountGive, name, "", "amount offered, in ether units")
	case "value":
		fs.StringVar(&a.value, name, "", "ether attached, in ether units")
	case "token":
		fs.StringVar(&a.token, name, "", "token address")
	case "get":
		fs.StringVar(&a.get, name, "", `asset wanted ("ETH" or token address)`)
	case "give":
		fs.StringVar(&a.give, name, "", `asset offered ("ETH" or token address)`)
	case "spender":
		fs.StringVar(&a.spender, name, "", "spender address, usually the exchange")
	case "to":
		fs.StringVar(&a.to, name, "", "recipient address")
	case "id":
		fs.Uint64Var(&a.id, name, 0, "order id")
	}
	_ = cmd.MarkFlagRequired(name)
}

func actionCmd(f *signFlags, use, short string, typ transaction.TxType, required []string) *cobra.Command {
	a := &actionFlags{}
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tx, err := a.transaction(typ)
			if err != nil {
				return err
			}
			return signAndPrint(cmd, f, tx)
		},
	}
	for _, name := range required {
		a.register(cmd, name)
	}
	return cmd
}

func (a *actionFlags) transaction(typ transaction.TxType) (*transaction.SignedTransaction, error) {
	tx := &transaction.SignedTransaction{Type: typ, OrderID: a.id}
	var err error
	switch typ {
	case transaction.TxDepositEther:
		if tx.Amount, err = amount("amount", a.amount); err == nil {
			tx.Value = tx.Amount.Clone()
		}
	case transaction.TxWithdrawEther:
		tx.Amount, err = amount("amount", a.amount)
	case transaction.TxDepositToken, transaction.TxWithdrawToken:
		err = errors.Join(
			assign(&tx.Asset, parseAsset, "token", a.token),
			assign(&tx.Amount, amount, "amount", a.amount),
		)
	case transaction.TxMakeOrder:
		err = errors.Join(
			assign(&tx.Asset, parseAsset, "get", a.get),
			assign(&tx.Amount, amount, "amount-get", a.amountGet),
			assign(&tx.CounterAsset, parseAsset, "give", a.give),
			assign(&tx.CounterAmount, amount, "amount-give", a.amountGive),
		)
	case transaction.TxTokenApprove, transaction.TxTokenTransfer:
		target := a.spender
		name := "spender"
		if typ == transaction.TxTokenTransfer {
			target, name = a.to, "to"
		}
		err = errors.Join(
			assign(&tx.Asset, parseAsset, "token", a.token),
			assign(&tx.Target, address, name, target),
			assign(&tx.Amount, amount, "amount", a.amount),
		)
	case transaction.TxTransfer:
		tx.Value, err = amount("value", a.value)
	}
	return tx, err
}

func assign[T any](dst *T, parse func(name, v string) (T, error), name, v string) error {
	out, err := parse(name, v)
	if err != nil {
		return err
	}
	*dst = out
	return nil
}

func amount(name, v string) (*uint256.Int, error) {
	out, err := util.ParseUnits(v, util.EtherDecimals)
	if err != nil {
		return nil, fmt.Errorf("--%s: %w", name, err)
	}
	return out, nil
}

func parseAsset(name, v string) (*asset.Asset, error) {
	a, err := asset.Parse(v)
	if err != nil {
		return nil, fmt.Errorf("--%s: %w", name, err)
	}
	return &a, nil
}

func address(name, v string) (common.Address, error) {
	if !common.IsHexAddress(v) {
		return common.Address{}, fmt.Errorf("--%s: invalid address %q", name, v)
	}
	return common.HexToAddress(v), nil
}

func signAndPrint(cmd *cobra.Command, f *signFlags, tx *transaction.SignedTransaction) error {
	signer, err := crypto.FromPrivateKeyHex(f.key)
	if err != nil {
		return err
	}
	domain, err := f.domain()
	if err != nil {
		return err
	}
	if f.nonce == 0 {
		return errors.New("--nonce must be at least 1")
	}

	tx.Nonce = f.nonce
	eip712 := crypto.NewEIP712Signer(domain)
	if err := tx.Sign(eip712, signer); err != nil {
		return err
	}
	if err := tx.Validate(); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if f.typedData {
		typed, err := eip712.ActionToJSON(tx.Action())
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(out, typed)
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(tx)
}
