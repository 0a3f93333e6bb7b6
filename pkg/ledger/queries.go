package ledger

import (
	"github.com/ethereum/go-ethereum/common"
)

// Pool returns a copy of the pool registry, or nil before Initialize.
func (l *Ledger) Pool() *Pool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.pool == nil {
		return nil
	}
	p := *l.pool
	return &p
}

// Symbol returns a copy of a symbol registry entry, or nil if unregistered.
func (l *Ledger) Symbol(symbol string) *Symbol {
	l.mu.Lock()
	defer l.mu.Unlock()
	sym, ok := l.symbols[symbol]
	if !ok {
		return nil
	}
	s := *sym
	return &s
}

// Symbols returns a snapshot of every registered symbol.
func (l *Ledger) Symbols() []*Symbol {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*Symbol, 0, len(l.symbols))
	for _, sym := range l.symbols {
		s := *sym
		out = append(out, &s)
	}
	return out
}

// Account returns a copy of a user account; a never-seen address yields an
// empty account.
func (l *Ledger) Account(addr common.Address) (*Account, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	acc, err := l.accountLocked(addr)
	if err != nil {
		return nil, err
	}
	return acc.clone(), nil
}

// VaultBalance returns the custodial collateral balance.
func (l *Ledger) VaultBalance() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.vault
}

// EscrowBalance returns the shares currently escrowed for a symbol.
func (l *Ledger) EscrowBalance(symbol string) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.escrow[symbol]
}

// Escrows returns a snapshot of every per-symbol escrowed share balance.
func (l *Ledger) Escrows() map[string]uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]uint64, len(l.escrow))
	for sym, n := range l.escrow {
		out[sym] = n
	}
	return out
}

// BuyOrder returns a buy order by (user, id).
func (l *Ledger) BuyOrder(user common.Address, id uint64) (*BuyOrder, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.buyOrderLocked(user, id)
}

// SellOrder returns a sell order by (user, id).
func (l *Ledger) SellOrder(user common.Address, id uint64) (*SellOrder, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sellOrderLocked(user, id)
}

// PendingBuyOrders returns every buy order still awaiting settlement.
func (l *Ledger) PendingBuyOrders() ([]*BuyOrder, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.store.PendingBuyOrders()
}

// PendingSellOrders returns every sell order still awaiting settlement.
func (l *Ledger) PendingSellOrders() ([]*SellOrder, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.store.PendingSellOrders()
}

// UserBuyOrders returns all buy orders a user has placed, oldest first.
func (l *Ledger) UserBuyOrders(user common.Address) ([]*BuyOrder, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.store.UserBuyOrders(user)
}

// UserSellOrders returns all sell orders a user has placed, oldest first.
func (l *Ledger) UserSellOrders(user common.Address) ([]*SellOrder, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.store.UserSellOrders(user)
}

// Events replays the committed audit log from fromSeq, oldest first.
func (l *Ledger) Events(fromSeq uint64, limit int) ([]Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.store.Events(fromSeq, limit)
}
