package ledger

import (
	"github.com/ethereum/go-ethereum/common"
)

// MaxSymbolLen bounds traded symbol names ("ACME", "TSLA", ...).
const MaxSymbolLen = 10

// Pool is the singleton registry governing the deployment. It carries the two
// authorities and the global order counter. There is exactly one live Pool per
// ledger; TotalOrders never decreases and is the next order id to be assigned.
type Pool struct {
	Address          common.Address `json:"address"`
	VaultAuthority   common.Address `json:"vaultAuthority"`
	BackendAuthority common.Address `json:"backendAuthority"`
	TotalOrders      uint64         `json:"totalOrders"`
	CreatedAt        int64          `json:"createdAt"` // Unix seconds
}

// Symbol is the per-asset registry entry tracking outstanding synthetic supply.
// TotalSupply changes only by the exact amount minted on buy fulfillment or
// burned on sell fulfillment.
type Symbol struct {
	Address common.Address `json:"address"`
	Symbol  string         `json:"symbol"`
	// Decimals is advisory display metadata; the ledger treats shares as
	// whole units.
	Decimals    uint8  `json:"decimals"`
	TotalSupply uint64 `json:"totalSupply"`
	CreatedAt   int64  `json:"createdAt"`
}

// OrderStatus is the lifecycle state of an order.
// Pending → Fulfilled is the only wired transition. Cancelled is a declared
// terminal state with no operation leading into it.
type OrderStatus int8

const (
	Pending OrderStatus = iota
	Fulfilled
	Cancelled
)

func (s OrderStatus) String() string {
	switch s {
	case Pending:
		return "pending"
	case Fulfilled:
		return "fulfilled"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// BuyOrder is an append-only record of a collateral-for-shares request.
// While Pending, SolAmount lamports sit in the vault and belong to this order
// alone. After fulfillment SharesReceived and ActualPricePerShare are frozen.
type BuyOrder struct {
	Address common.Address `json:"address"` // derived from (label, user, id)
	User    common.Address `json:"user"`
	Symbol  string         `json:"symbol"`
	OrderID uint64         `json:"orderId"`

	SolAmount        uint64 `json:"solAmount"`        // escrowed collateral, lamports
	MaxPricePerShare uint64 `json:"maxPricePerShare"` // lamports per share

	Status    OrderStatus `json:"status"`
	Timestamp int64       `json:"timestamp"`

	// Settlement results, zero until fulfilled
	SharesReceived      uint64 `json:"sharesReceived"`
	ActualPricePerShare uint64 `json:"actualPricePerShare"`
}

// SellOrder is the symmetric record for shares-for-collateral. While Pending,
// SharesToSell shares sit in the symbol's escrow balance.
type SellOrder struct {
	Address common.Address `json:"address"`
	User    common.Address `json:"user"`
	Symbol  string         `json:"symbol"`
	OrderID uint64         `json:"orderId"`

	SharesToSell     uint64 `json:"sharesToSell"`
	MinPricePerShare uint64 `json:"minPricePerShare"`

	Status    OrderStatus `json:"status"`
	Timestamp int64       `json:"timestamp"`

	SolReceived         uint64 `json:"solReceived"`
	ActualPricePerShare uint64 `json:"actualPricePerShare"`
}

// Account holds a user's free balances. Collateral escrowed by a pending buy
// order lives in the vault, not here; shares escrowed by a pending sell order
// live in the symbol's escrow balance.
type Account struct {
	Address    common.Address    `json:"address"`
	Collateral uint64            `json:"collateral"` // lamports
	Shares     map[string]uint64 `json:"shares"`     // symbol → whole shares
}

// NewAccount creates an empty account.
func NewAccount(addr common.Address) *Account {
	return &Account{
		Address: addr,
		Shares:  make(map[string]uint64),
	}
}

// ShareBalance returns the free share balance for a symbol.
func (a *Account) ShareBalance(symbol string) uint64 {
	return a.Shares[symbol]
}

// clone returns a deep copy used for staging mutations.
func (a *Account) clone() *Account {
	c := &Account{
		Address:    a.Address,
		Collateral: a.Collateral,
		Shares:     make(map[string]uint64, len(a.Shares)),
	}
	for sym, n := range a.Shares {
		c.Shares[sym] = n
	}
	return c
}
