package dex

import (
	"errors"

	"github.com/uhyunpark/hyperswap/pkg/app/core/transaction"
	"github.com/uhyunpark/hyperswap/pkg/app/exchange"
	"github.com/uhyunpark/hyperswap/pkg/devnet"
)

var ErrNonceTooLow = errors.New("nonce too low")

const (
	CodeBadSignature          = "bad_signature"
	CodeNonceTooLow           = "nonce_too_low"
	CodeMalformed             = "malformed"
	CodeInsufficientFunds     = "insufficient_funds"
	CodeInsufficientAllowance = "insufficient_allowance"
	CodeTokenBalance          = "insufficient_token_balance"
	CodeInvalidRecipient      = "invalid_recipient"
	CodeUnknownToken          = "unknown_token"
)

var codes = []struct {
	err  error
	code string
}{
	{transaction.ErrBadSignature, CodeBadSignature},
	{ErrNonceTooLow, CodeNonceTooLow},
	{transaction.ErrMalformed, CodeMalformed},
	{devnet.ErrInsufficientFunds, CodeInsufficientFunds},
	{devnet.ErrInsufficientAllowance, CodeInsufficientAllowance},
	{devnet.ErrInsufficientBalance, CodeTokenBalance},
	{devnet.ErrInvalidRecipient, CodeInvalidRecipient},
	{devnet.ErrUnknownToken, CodeUnknownToken},
}

// Code extends exchange.Code with transaction and devnet failures.
// Exchange codes take precedence.
func Code(err error) string {
	if c := exchange.Code(err); c != exchange.CodeInternal {
		return c
	}
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return exchange.CodeInternal
}
