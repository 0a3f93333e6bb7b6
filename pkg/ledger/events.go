package ledger

import (
	"github.com/ethereum/go-ethereum/common"
)

// EventType identifies a state-mutating operation in the audit log.
type EventType string

const (
	EvSymbolCreated       EventType = "symbol_created"
	EvBuyOrderPlaced      EventType = "buy_order_placed"
	EvBuyOrderFulfilled   EventType = "buy_order_fulfilled"
	EvSellOrderPlaced     EventType = "sell_order_placed"
	EvSellOrderFulfilled  EventType = "sell_order_fulfilled"
	EvVaultDeposited      EventType = "vault_deposited"
	EvVaultWithdrawn      EventType = "vault_withdrawn"
	EvAuthoritiesUpdated  EventType = "authorities_updated"
	EvCollateralDeposited EventType = "collateral_deposited"
	EvCollateralWithdrawn EventType = "collateral_withdrawn"
)

// Event is one entry of the append-only audit log. Seq is assigned by the
// ledger, strictly increasing, and committed in the same batch as the state
// mutation it records; no event is ever revised or deleted. Numeric and string
// fields that do not apply to a given event type are omitted; address fields
// serialize as the zero address when unused.
type Event struct {
	Seq       uint64    `json:"seq"`
	Type      EventType `json:"type"`
	Timestamp int64     `json:"timestamp"`

	User   common.Address `json:"user"`
	Symbol string         `json:"symbol,omitempty"`

	OrderID uint64 `json:"orderId,omitempty"`
	Amount  uint64 `json:"amount,omitempty"`

	// Placement terms
	SolAmount        uint64 `json:"solAmount,omitempty"`
	MaxPricePerShare uint64 `json:"maxPricePerShare,omitempty"`
	SharesToSell     uint64 `json:"sharesToSell,omitempty"`
	MinPricePerShare uint64 `json:"minPricePerShare,omitempty"`

	// Settlement results
	SharesPurchased uint64 `json:"sharesPurchased,omitempty"`
	SharesSold      uint64 `json:"sharesSold,omitempty"`
	SharesReturned  uint64 `json:"sharesReturned,omitempty"`
	PricePerShare   uint64 `json:"pricePerShare,omitempty"`
	TotalCost       uint64 `json:"totalCost,omitempty"`
	TotalProceeds   uint64 `json:"totalProceeds,omitempty"`
	RefundAmount    uint64 `json:"refundAmount,omitempty"`

	// Administration
	Decimals         uint8          `json:"decimals,omitempty"`
	VaultAuthority   common.Address `json:"vaultAuthority"`
	BackendAuthority common.Address `json:"backendAuthority"`
}

// Subscribe registers a buffered event channel. Delivery is best-effort: a
// subscriber that falls behind misses events and should resynchronize with
// Events(). The committed log in the store is the source of truth.
func (l *Ledger) Subscribe(buffer int) chan Event {
	ch := make(chan Event, buffer)
	l.subMu.Lock()
	l.subs[ch] = struct{}{}
	l.subMu.Unlock()
	return ch
}

// Unsubscribe removes and closes a channel returned by Subscribe.
func (l *Ledger) Unsubscribe(ch chan Event) {
	l.subMu.Lock()
	if _, ok := l.subs[ch]; ok {
		delete(l.subs, ch)
		close(ch)
	}
	l.subMu.Unlock()
}

// publish fans an already-committed event out to subscribers without blocking.
func (l *Ledger) publish(ev Event) {
	l.subMu.RLock()
	defer l.subMu.RUnlock()
	for ch := range l.subs {
		select {
		case ch <- ev:
		default:
			// Subscriber buffer full; it must catch up via Events().
		}
	}
}
