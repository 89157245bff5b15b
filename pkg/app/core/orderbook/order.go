package orderbook

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/uhyunpark/hyperswap/pkg/app/core/asset"
)

// Order is a standing offer: User gives AmountGive of AssetGive in exchange
// for AmountGet of AssetGet. Orders are all-or-nothing and never removed.
type Order struct {
	ID         uint64         `json:"id"`
	User       common.Address `json:"user"`
	AssetGet   asset.Asset    `json:"assetGet"`
	AmountGet  *uint256.Int   `json:"amountGet"`
	AssetGive  asset.Asset    `json:"assetGive"`
	AmountGive *uint256.Int   `json:"amountGive"`
	Timestamp  int64          `json:"timestamp"`
}

// Clone returns a deep copy so callers cannot alias registry amounts
func (o *Order) Clone() *Order {
	cp := *o
	cp.AmountGet = o.AmountGet.Clone()
	cp.AmountGive = o.AmountGive.Clone()
	return &cp
}

// Status is the lifecycle state of an order: Open -> Filled or Open -> Cancelled
type Status uint8

const (
	StatusAny Status = iota
	StatusOpen
	StatusFilled
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusOpen:
		return "open"
	case StatusFilled:
		return "filled"
	case StatusCancelled:
		return "cancelled"
	default:
		return "all"
	}
}

func ParseStatus(s string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "all", "any":
		return StatusAny, nil
	case "open":
		return StatusOpen, nil
	case "filled":
		return StatusFilled, nil
	case "cancelled", "canceled":
		return StatusCancelled, nil
	default:
		return StatusAny, fmt.Errorf("unknown order status %q", s)
	}
}

func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Status) UnmarshalText(b []byte) error {
	parsed, err := ParseStatus(string(b))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Filter selects orders for listing. Zero values match everything.
type Filter struct {
	Status Status
	User   *common.Address
}
