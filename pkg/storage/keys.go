package storage

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/hyperswap/pkg/app/core/asset"
)

// Pebble key schema
//
//   cfg                     → exchange.Config (JSON)
//   bal:<asset>:<owner>     → ledger.Cell (JSON); asset is "ETH" or token hex
//   ord:<id>                → orderbook.Order (JSON)
//   fil:<id>                → filled flag
//   cxl:<id>                → cancelled flag
//   evt:<seq>               → events.Record (JSON)
//   nonce:<address>         → last used transaction nonce
//   devnet                  → devnet.State (JSON): wallets and token ledgers
//   meta:orders             → order count
//   meta:events             → last event seq
//
// Numeric ids are zero-padded to 20 digits so iteration order is numeric order.

const (
	prefixBalance   = "bal:"
	prefixOrder     = "ord:"
	prefixFilled    = "fil:"
	prefixCancelled = "cxl:"
	prefixEvent     = "evt:"
	prefixNonce     = "nonce:"
)

var (
	keyConfig      = []byte("cfg")
	keyDevnet      = []byte("devnet")
	keyOrderCount  = []byte("meta:orders")
	keyLastEventID = []byte("meta:events")
)

// balanceKey returns the key for one balance cell
// Format: "bal:{asset}:{owner}"
func balanceKey(a asset.Asset, owner common.Address) []byte {
	return []byte(fmt.Sprintf("%s%s:%s", prefixBalance, a.String(), owner.Hex()))
}

func orderKey(id uint64) []byte     { return idKey(prefixOrder, id) }
func filledKey(id uint64) []byte    { return idKey(prefixFilled, id) }
func cancelledKey(id uint64) []byte { return idKey(prefixCancelled, id) }
func eventKey(seq uint64) []byte    { return idKey(prefixEvent, seq) }

func idKey(prefix string, id uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", prefix, id))
}

// nonceKey returns the key for an account nonce
// Format: "nonce:{address}"
func nonceKey(addr common.Address) []byte {
	return []byte(fmt.Sprintf("%s%s", prefixNonce, addr.Hex()))
}

// idFromKey parses the numeric suffix of an idKey
func idFromKey(prefix string, key []byte) (uint64, error) {
	var id uint64
	if _, err := fmt.Sscanf(string(key[len(prefix):]), "%d", &id); err != nil {
		return 0, fmt.Errorf("invalid key %q: %w", key, err)
	}
	return id, nil
}

// keyUpperBound returns the exclusive upper bound for a prefix scan
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}
