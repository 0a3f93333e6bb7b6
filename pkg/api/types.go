package api

// API request and response types for REST endpoints and WebSocket messages

// ==============================
// REST Response Types
// ==============================

// PoolInfo represents the settlement pool's configuration and counters
type PoolInfo struct {
	Address          string `json:"address"`
	VaultAuthority   string `json:"vaultAuthority"`
	BackendAuthority string `json:"backendAuthority"`
	TotalOrders      uint64 `json:"totalOrders"`
	CreatedAt        int64  `json:"createdAt"`
}

// SymbolInfo represents a registered stock symbol
type SymbolInfo struct {
	Address     string `json:"address"`
	Symbol      string `json:"symbol"`
	Decimals    uint8  `json:"decimals"`
	TotalSupply uint64 `json:"totalSupply"`
	CreatedAt   int64  `json:"createdAt"`
}

// AccountInfo represents a user's collateral and share holdings
type AccountInfo struct {
	Address    string            `json:"address"`
	Collateral uint64            `json:"collateral"` // Lamports
	Shares     map[string]uint64 `json:"shares"`     // Symbol -> share count
}

// BuyOrderInfo represents a buy order (pending or settled)
type BuyOrderInfo struct {
	Address             string `json:"address"`
	User                string `json:"user"`
	Symbol              string `json:"symbol"`
	OrderID             uint64 `json:"orderId"`
	SolAmount           uint64 `json:"solAmount"`
	MaxPricePerShare    uint64 `json:"maxPricePerShare"`
	Status              string `json:"status"`
	Timestamp           int64  `json:"timestamp"`
	SharesReceived      uint64 `json:"sharesReceived"`
	ActualPricePerShare uint64 `json:"actualPricePerShare"`
}

// SellOrderInfo represents a sell order (pending or settled)
type SellOrderInfo struct {
	Address             string `json:"address"`
	User                string `json:"user"`
	Symbol              string `json:"symbol"`
	OrderID             uint64 `json:"orderId"`
	SharesToSell        uint64 `json:"sharesToSell"`
	MinPricePerShare    uint64 `json:"minPricePerShare"`
	Status              string `json:"status"`
	Timestamp           int64  `json:"timestamp"`
	SolReceived         uint64 `json:"solReceived"`
	ActualPricePerShare uint64 `json:"actualPricePerShare"`
}

// EscrowInfo represents one symbol's share escrow account
type EscrowInfo struct {
	Address string `json:"address"`
	Shares  uint64 `json:"shares"`
}

// VaultInfo represents vault and per-symbol escrow balances
type VaultInfo struct {
	Address string                `json:"address"`
	Balance uint64                `json:"balance"` // Lamports
	Escrow  map[string]EscrowInfo `json:"escrow"`  // Symbol -> escrow account
}

// PendingOrders groups the unsettled order backlog
type PendingOrders struct {
	Buys  []BuyOrderInfo  `json:"buys"`
	Sells []SellOrderInfo `json:"sells"`
}

// PriceInfo represents a market quote
type PriceInfo struct {
	Symbol    string `json:"symbol"`
	Price     string `json:"price"` // Decimal USD string
	Timestamp int64  `json:"timestamp"`
}

// ErrorResponse is the body of any non-2xx response
type ErrorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

// ==============================
// REST Request Types
// ==============================

// CreateSymbolRequest registers a new stock symbol (vault authority only)
type CreateSymbolRequest struct {
	Caller   string `json:"caller"`
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`
}

// PlaceBuyOrderRequest escrows collateral against a buy order
type PlaceBuyOrderRequest struct {
	User             string `json:"user"`
	Symbol           string `json:"symbol"`
	SolAmount        uint64 `json:"solAmount"`
	MaxPricePerShare uint64 `json:"maxPricePerShare"`
}

// PlaceSellOrderRequest escrows shares against a sell order
type PlaceSellOrderRequest struct {
	User             string `json:"user"`
	Symbol           string `json:"symbol"`
	SharesToSell     uint64 `json:"sharesToSell"`
	MinPricePerShare uint64 `json:"minPricePerShare"`
}

// VaultFundsRequest moves lamports between the vault authority and the vault
type VaultFundsRequest struct {
	Caller string `json:"caller"`
	Amount uint64 `json:"amount"`
}

// CollateralRequest moves lamports across the external bridge
type CollateralRequest struct {
	User   string `json:"user"`
	Amount uint64 `json:"amount"`
}

// UpdateAuthoritiesRequest rotates pool authorities (vault authority only).
// Omitted fields are left unchanged.
type UpdateAuthoritiesRequest struct {
	Caller           string `json:"caller"`
	VaultAuthority   string `json:"vaultAuthority,omitempty"`
	BackendAuthority string `json:"backendAuthority,omitempty"`
}

// ==============================
// WebSocket Message Types
// ==============================

// WSSubscribeRequest is sent by client to subscribe to channels
type WSSubscribeRequest struct {
	Op       string   `json:"op"`       // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"` // e.g., ["events", "events:AAPL", "account:0x..."]
}

// WSEvent wraps one audit-log entry for broadcast
type WSEvent struct {
	Type string `json:"type"` // "event"
	Data any    `json:"data"`
}
