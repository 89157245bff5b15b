package asset

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Kind distinguishes the chain's base currency from token contracts
type Kind uint8

const (
	KindNative Kind = iota + 1
	KindExternal
)

func (k Kind) String() string {
	switch k {
	case KindNative:
		return "native"
	case KindExternal:
		return "external"
	default:
		return "invalid"
	}
}

// NativeSymbol is the text form of the native asset
const NativeSymbol = "ETH"

var ErrInvalidAsset = errors.New("invalid asset")

// Asset identifies one leg of a balance cell or an order.
// The zero value is invalid; use Native() or External().
type Asset struct {
	kind Kind
	addr common.Address
}

// Native returns the chain's base currency
func Native() Asset { return Asset{kind: KindNative} }

// External returns the asset backed by the token contract at addr
func External(addr common.Address) Asset {
	return Asset{kind: KindExternal, addr: addr}
}

func (a Asset) Kind() Kind     { return a.kind }
func (a Asset) IsNative() bool { return a.kind == KindNative }

// Address returns the token contract address. ok is false for the native asset.
func (a Asset) Address() (addr common.Address, ok bool) {
	if a.kind != KindExternal {
		return common.Address{}, false
	}
	return a.addr, true
}

// WireAddress is the legacy 20-byte encoding: zero address for native.
// Used only where a fixed-width address is required (EIP-712 messages).
func (a Asset) WireAddress() common.Address {
	if a.kind == KindExternal {
		return a.addr
	}
	return common.Address{}
}

// Validate rejects the zero value and External(0x0)
func (a Asset) Validate() error {
	switch a.kind {
	case KindNative:
		return nil
	case KindExternal:
		if a.addr == (common.Address{}) {
			return fmt.Errorf("%w: external asset with zero address", ErrInvalidAsset)
		}
		return nil
	default:
		return fmt.Errorf("%w: unset", ErrInvalidAsset)
	}
}

func (a Asset) String() string {
	switch a.kind {
	case KindNative:
		return NativeSymbol
	case KindExternal:
		return a.addr.Hex()
	default:
		return "invalid"
	}
}

// Compare orders native first, then external assets by address bytes
func (a Asset) Compare(b Asset) int {
	if a.kind != b.kind {
		if a.kind < b.kind {
			return -1
		}
		return 1
	}
	return bytes.Compare(a.addr[:], b.addr[:])
}

// Parse accepts "ETH" (any case), "native", or a hex address.
// The zero address is the legacy spelling of the native asset.
func Parse(s string) (Asset, error) {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, NativeSymbol) || strings.EqualFold(s, "native") {
		return Native(), nil
	}
	if !common.IsHexAddress(s) {
		return Asset{}, fmt.Errorf("%w: %q", ErrInvalidAsset, s)
	}
	addr := common.HexToAddress(s)
	if addr == (common.Address{}) {
		return Native(), nil
	}
	return External(addr), nil
}

// FromWireAddress is the inverse of WireAddress
func FromWireAddress(addr common.Address) Asset {
	if addr == (common.Address{}) {
		return Native()
	}
	return External(addr)
}

func (a Asset) MarshalText() ([]byte, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return []byte(a.String()), nil
}

func (a *Asset) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
