package exchange

import (
	"errors"

	"github.com/uhyunpark/hyperswap/pkg/app/core/ledger"
	"github.com/uhyunpark/hyperswap/pkg/app/core/orderbook"
)

var (
	ErrInsufficientBalance   = ledger.ErrInsufficientBalance
	ErrAmountOverflow        = ledger.ErrAmountOverflow
	ErrOrderNotFound         = orderbook.ErrOrderNotFound
	ErrOrderAlreadyFilled    = orderbook.ErrOrderAlreadyFilled
	ErrOrderAlreadyCancelled = orderbook.ErrOrderAlreadyCancelled

	ErrUnauthorized                   = errors.New("caller is not the order creator")
	ErrInvalidAssetForNativeOperation = errors.New("native asset not allowed in token operation")
	ErrValueMismatch                  = errors.New("attached value does not match amount")
	ErrUnknownAsset                   = errors.New("unknown asset")
	ErrReentrantCall                  = errors.New("operation already in progress for asset and user")
	ErrDirectTransfer                 = errors.New("direct native transfers are rejected")
	ErrConfigMismatch                 = errors.New("stored fee configuration differs")
)

// Wire codes, stable across releases
const (
	CodeOK                      = "ok"
	CodeInsufficientBalance     = "insufficient_balance"
	CodeAmountOverflow          = "amount_overflow"
	CodeOrderNotFound           = "order_not_found"
	CodeOrderAlreadyFilled      = "order_already_filled"
	CodeOrderAlreadyCancelled   = "order_already_cancelled"
	CodeUnauthorized            = "unauthorized"
	CodeInvalidAssetForNativeOp = "invalid_asset_for_native_operation"
	CodeValueMismatch           = "value_mismatch"
	CodeUnknownAsset            = "unknown_asset"
	CodeReentrantCall           = "reentrant_call"
	CodeDirectTransfer          = "direct_transfer"
	CodeConfigMismatch          = "config_mismatch"
	CodeInternal                = "internal"
)

var codes = []struct {
	err  error
	code string
}{
	{ErrInsufficientBalance, CodeInsufficientBalance},
	{ErrAmountOverflow, CodeAmountOverflow},
	{ErrOrderNotFound, CodeOrderNotFound},
	{ErrOrderAlreadyFilled, CodeOrderAlreadyFilled},
	{ErrOrderAlreadyCancelled, CodeOrderAlreadyCancelled},
	{ErrUnauthorized, CodeUnauthorized},
	{ErrInvalidAssetForNativeOperation, CodeInvalidAssetForNativeOp},
	{ErrValueMismatch, CodeValueMismatch},
	{ErrUnknownAsset, CodeUnknownAsset},
	{ErrReentrantCall, CodeReentrantCall},
	{ErrDirectTransfer, CodeDirectTransfer},
	{ErrConfigMismatch, CodeConfigMismatch},
}

// Code maps err to its wire code. nil maps to CodeOK, anything
// unrecognised to CodeInternal.
func Code(err error) string {
	if err == nil {
		return CodeOK
	}
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return CodeInternal
}
