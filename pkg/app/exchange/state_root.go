package exchange

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/sha3"
)

// StateRoot is a keccak-256 digest of the fee configuration, every non-zero
// balance, every order and its flags. Two ledgers with the same committed
// history have the same root, across restarts.
func (e *Exchange) StateRoot() common.Hash {
	e.mu.RLock()
	defer e.mu.RUnlock()

	h := sha3.NewLegacyKeccak256()
	var u64 [8]byte
	writeUint := func(v uint64) {
		binary.BigEndian.PutUint64(u64[:], v)
		h.Write(u64[:])
	}

	h.Write(e.cfg.Address.Bytes())
	h.Write(e.cfg.FeeAccount.Bytes())
	writeUint(e.cfg.FeePercent)

	for _, c := range e.balances.Cells() {
		h.Write([]byte{byte(c.Asset.Kind())})
		h.Write(c.Asset.WireAddress().Bytes())
		h.Write(c.Owner.Bytes())
		amt := c.Amount.Bytes32()
		h.Write(amt[:])
	}

	for id := uint64(1); id <= e.orders.Count(); id++ {
		o, _ := e.orders.Get(id)
		writeUint(o.ID)
		h.Write(o.User.Bytes())
		h.Write(o.AssetGet.WireAddress().Bytes())
		get := o.AmountGet.Bytes32()
		h.Write(get[:])
		h.Write(o.AssetGive.WireAddress().Bytes())
		give := o.AmountGive.Bytes32()
		h.Write(give[:])
		writeUint(uint64(o.Timestamp))

		var flags byte
		if e.orders.Filled(id) {
			flags |= 1
		}
		if e.orders.Cancelled(id) {
			flags |= 2
		}
		h.Write([]byte{flags})
	}

	return common.BytesToHash(h.Sum(nil))
}
