package api

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/uhyunpark/hyperswap/pkg/app/core/asset"
	"github.com/uhyunpark/hyperswap/pkg/app/core/events"
	"github.com/uhyunpark/hyperswap/pkg/app/core/orderbook"
)

// API response types for REST endpoints and WebSocket messages

// ==============================
// REST Response Types
// ==============================

// ExchangeInfo is the deployment and fee configuration plus a state digest
type ExchangeInfo struct {
	Address      common.Address `json:"address"`
	FeeAccount   common.Address `json:"feeAccount"`
	FeePercent   uint64         `json:"feePercent"`
	OrderCount   uint64         `json:"orderCount"`
	StateRoot    common.Hash    `json:"stateRoot"`
	LastEventSeq uint64         `json:"lastEventSeq"`
	ChainID      string         `json:"chainId"`
}

// OrderInfo is an order with its derived lifecycle state
type OrderInfo struct {
	*orderbook.Order
	Status orderbook.Status `json:"status"` // "open" | "filled" | "cancelled"
}

// BalanceInfo is one custodial balance. Formatted uses 18 decimals.
type BalanceInfo struct {
	Asset     asset.Asset  `json:"asset"`
	Amount    *uint256.Int `json:"amount"`
	Formatted string       `json:"formatted"`
}

// TokenHolding is a wallet's position in a devnet token
type TokenHolding struct {
	Token     common.Address `json:"token"`
	Symbol    string         `json:"symbol"`
	Balance   *uint256.Int   `json:"balance"`
	Allowance *uint256.Int   `json:"allowance"` // granted to the exchange
}

// AccountInfo combines the exchange view and the devnet wallet of one address
type AccountInfo struct {
	Address  common.Address `json:"address"`
	Nonce    uint64         `json:"nonce"` // last consumed; sign with nonce+1
	Wallet   *uint256.Int   `json:"wallet"`
	Tokens   []TokenHolding `json:"tokens"`
	Balances []BalanceInfo  `json:"balances"`
}

// EventsPage is a slice of the outbox
type EventsPage struct {
	Events  []events.Record `json:"events"`
	LastSeq uint64          `json:"lastSeq"`
}

// ErrorResponse is returned for all errors
type ErrorResponse struct {
	Error   string `json:"error"` // stable wire code
	Message string `json:"message"`
}

// ==============================
// WebSocket Message Types
// ==============================

// WSMessage carries one ledger notification on one channel
type WSMessage struct {
	Channel string        `json:"channel"` // "events", "trades", "orders", "account:0x..."
	Data    events.Record `json:"data"`
}

// WSSubscribeRequest is sent by client to subscribe to channels
type WSSubscribeRequest struct {
	Op       string   `json:"op"`       // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"` // e.g., ["trades", "account:0x..."]
}

// WSAck confirms a subscription change
type WSAck struct {
	Op       string   `json:"op"`
	Channels []string `json:"channels"`
}
