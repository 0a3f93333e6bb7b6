package ledger

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/stockswap-labs/stockswap/pkg/util"
)

// Ledger is the order settlement core. It owns the pool registry, the symbol
// registries, the order books of record, the custodial vault and the per-symbol
// share escrows.
//
// Every mutating operation runs as one critical section under mu: inputs are
// validated, the outcome is staged on copies, the whole outcome is committed to
// Pebble in a single batch, and only then is the in-memory state swapped in and
// the audit event published. An error at any point leaves no trace.
type Ledger struct {
	mu    sync.Mutex
	store *Store
	clock util.Clock
	log   *zap.SugaredLogger

	pool     *Pool
	symbols  map[string]*Symbol
	accounts map[common.Address]*Account // lazily loaded cache
	escrow   map[string]uint64           // symbol → escrowed shares
	vault    uint64                      // custodial collateral, lamports

	lastEventSeq uint64

	closeOnce sync.Once

	subMu sync.RWMutex
	subs  map[chan Event]struct{}
}

// Open loads ledger state from the Pebble database at path. A fresh database
// yields an uninitialized ledger; Initialize must be called before any other
// operation.
func Open(path string, clock util.Clock, log *zap.SugaredLogger) (*Ledger, error) {
	store, err := NewStore(path)
	if err != nil {
		return nil, err
	}

	pool, err := store.LoadPool()
	if err != nil {
		store.Close()
		return nil, err
	}
	symbols, err := store.LoadSymbols()
	if err != nil {
		store.Close()
		return nil, err
	}
	escrow, err := store.LoadEscrows()
	if err != nil {
		store.Close()
		return nil, err
	}
	vault, err := store.LoadVault()
	if err != nil {
		store.Close()
		return nil, err
	}
	lastSeq, err := store.LastEventSeq()
	if err != nil {
		store.Close()
		return nil, err
	}

	return &Ledger{
		store:        store,
		clock:        clock,
		log:          log,
		pool:         pool,
		symbols:      symbols,
		accounts:     make(map[common.Address]*Account),
		escrow:       escrow,
		vault:        vault,
		lastEventSeq: lastSeq,
		subs:         make(map[chan Event]struct{}),
	}, nil
}

// Close closes the underlying database and all subscriber channels. Calling
// Close more than once is safe; later calls return nil.
func (l *Ledger) Close() error {
	var err error
	l.closeOnce.Do(func() {
		l.subMu.Lock()
		for ch := range l.subs {
			delete(l.subs, ch)
			close(ch)
		}
		l.subMu.Unlock()
		err = l.store.Close()
	})
	return err
}

// Initialize creates the singleton pool registry with the two governing
// authorities and a zero order counter. Fails if the ledger was already
// initialized, including across restarts.
func (l *Ledger) Initialize(vaultAuthority, backendAuthority common.Address) (*Pool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.pool != nil {
		return nil, ErrAlreadyInitialized
	}
	if vaultAuthority == (common.Address{}) || backendAuthority == (common.Address{}) {
		return nil, fmt.Errorf("%w: zero authority", ErrInvalidAmount)
	}

	pool := &Pool{
		Address:          PoolAddress(),
		VaultAuthority:   vaultAuthority,
		BackendAuthority: backendAuthority,
		TotalOrders:      0,
		CreatedAt:        l.clock.Now().Unix(),
	}

	batch := l.store.NewBatch()
	defer batch.Close()
	if err := batch.SetPool(pool); err != nil {
		return nil, err
	}
	if err := batch.Commit(); err != nil {
		return nil, fmt.Errorf("commit initialize: %w", err)
	}

	l.pool = pool
	l.log.Infow("pool_initialized",
		"vault_authority", vaultAuthority.Hex(),
		"backend_authority", backendAuthority.Hex())
	return pool, nil
}

// UpdateAuthorities rotates the governing authorities. Only the current vault
// authority may call it; nil arguments leave the corresponding field unchanged.
func (l *Ledger) UpdateAuthorities(caller common.Address, newVault, newBackend *common.Address) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.pool == nil {
		return ErrNotInitialized
	}
	if caller != l.pool.VaultAuthority {
		return ErrUnauthorizedVaultAccess
	}

	pool := *l.pool
	if newVault != nil {
		pool.VaultAuthority = *newVault
	}
	if newBackend != nil {
		pool.BackendAuthority = *newBackend
	}

	ev := l.nextEvent(EvAuthoritiesUpdated)
	ev.VaultAuthority = pool.VaultAuthority
	ev.BackendAuthority = pool.BackendAuthority

	batch := l.store.NewBatch()
	defer batch.Close()
	if err := batch.SetPool(&pool); err != nil {
		return err
	}
	if err := batch.AppendEvent(ev); err != nil {
		return err
	}
	if err := batch.Commit(); err != nil {
		return fmt.Errorf("commit update authorities: %w", err)
	}

	l.pool = &pool
	l.lastEventSeq = ev.Seq
	l.publish(ev)
	l.log.Infow("authorities_updated",
		"vault_authority", pool.VaultAuthority.Hex(),
		"backend_authority", pool.BackendAuthority.Hex())
	return nil
}

// CreateSymbol registers a traded symbol with zero outstanding supply. Only the
// vault authority may register symbols. Decimals is display metadata only.
func (l *Ledger) CreateSymbol(caller common.Address, symbol string, decimals uint8) (*Symbol, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.pool == nil {
		return nil, ErrNotInitialized
	}
	if caller != l.pool.VaultAuthority {
		return nil, ErrUnauthorizedVaultAccess
	}
	if len(symbol) > MaxSymbolLen {
		return nil, ErrStockSymbolTooLong
	}
	if symbol == "" {
		return nil, fmt.Errorf("%w: empty symbol", ErrStockSymbolTooLong)
	}
	if _, exists := l.symbols[symbol]; exists {
		return nil, ErrSymbolExists
	}

	sym := &Symbol{
		Address:     SymbolAddress(symbol),
		Symbol:      symbol,
		Decimals:    decimals,
		TotalSupply: 0,
		CreatedAt:   l.clock.Now().Unix(),
	}

	ev := l.nextEvent(EvSymbolCreated)
	ev.Symbol = symbol
	ev.Decimals = decimals

	batch := l.store.NewBatch()
	defer batch.Close()
	if err := batch.SetSymbol(sym); err != nil {
		return nil, err
	}
	if err := batch.AppendEvent(ev); err != nil {
		return nil, err
	}
	if err := batch.Commit(); err != nil {
		return nil, fmt.Errorf("commit create symbol: %w", err)
	}

	l.symbols[symbol] = sym
	l.lastEventSeq = ev.Seq
	l.publish(ev)
	l.log.Infow("symbol_created", "symbol", symbol, "decimals", decimals)
	return sym, nil
}

// PlaceBuyOrder escrows solAmount of the user's collateral into the vault and
// creates a Pending buy order carrying the next order id. The transfer and the
// order creation commit together or not at all.
func (l *Ledger) PlaceBuyOrder(user common.Address, symbol string, solAmount, maxPricePerShare uint64) (*BuyOrder, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.pool == nil {
		return nil, ErrNotInitialized
	}
	if len(symbol) > MaxSymbolLen {
		return nil, ErrStockSymbolTooLong
	}
	if solAmount == 0 {
		return nil, ErrInvalidAmount
	}

	acc, err := l.accountLocked(user)
	if err != nil {
		return nil, err
	}
	if acc.Collateral < solAmount {
		return nil, ErrInsufficientFunds
	}

	// Stage: debit user, credit vault, create order, bump counter.
	newAcc := acc.clone()
	newAcc.Collateral -= solAmount
	newVault, err := checkedAdd(l.vault, solAmount)
	if err != nil {
		return nil, err
	}

	pool := *l.pool
	order := &BuyOrder{
		Address:          BuyOrderAddress(user, pool.TotalOrders),
		User:             user,
		Symbol:           symbol,
		OrderID:          pool.TotalOrders,
		SolAmount:        solAmount,
		MaxPricePerShare: maxPricePerShare,
		Status:           Pending,
		Timestamp:        l.clock.Now().Unix(),
	}
	pool.TotalOrders++

	ev := l.nextEvent(EvBuyOrderPlaced)
	ev.User = user
	ev.Symbol = symbol
	ev.OrderID = order.OrderID
	ev.SolAmount = solAmount
	ev.MaxPricePerShare = maxPricePerShare

	batch := l.store.NewBatch()
	defer batch.Close()
	if err := stageAll(
		func() error { return batch.SetAccount(newAcc) },
		func() error { return batch.SetVault(newVault) },
		func() error { return batch.SetBuyOrder(order) },
		func() error { return batch.SetPool(&pool) },
		func() error { return batch.AppendEvent(ev) },
	); err != nil {
		return nil, err
	}
	if err := batch.Commit(); err != nil {
		return nil, fmt.Errorf("commit place buy order: %w", err)
	}

	l.accounts[user] = newAcc
	l.vault = newVault
	l.pool = &pool
	l.lastEventSeq = ev.Seq
	l.publish(ev)
	l.log.Infow("buy_order_placed",
		"order_id", order.OrderID, "user", user.Hex(), "symbol", symbol,
		"sol_amount", solAmount, "max_price_per_share", maxPricePerShare)
	return order, nil
}

// PlaceSellOrder moves sharesToSell of the user's shares into the symbol's
// escrow and creates a Pending sell order carrying the next order id.
func (l *Ledger) PlaceSellOrder(user common.Address, symbol string, sharesToSell, minPricePerShare uint64) (*SellOrder, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.pool == nil {
		return nil, ErrNotInitialized
	}
	if len(symbol) > MaxSymbolLen {
		return nil, ErrStockSymbolTooLong
	}
	if sharesToSell == 0 {
		return nil, ErrInvalidAmount
	}

	acc, err := l.accountLocked(user)
	if err != nil {
		return nil, err
	}
	if acc.ShareBalance(symbol) < sharesToSell {
		return nil, ErrInsufficientTokens
	}

	newAcc := acc.clone()
	newAcc.Shares[symbol] -= sharesToSell
	newEscrow, err := checkedAdd(l.escrow[symbol], sharesToSell)
	if err != nil {
		return nil, err
	}

	pool := *l.pool
	order := &SellOrder{
		Address:          SellOrderAddress(user, pool.TotalOrders),
		User:             user,
		Symbol:           symbol,
		OrderID:          pool.TotalOrders,
		SharesToSell:     sharesToSell,
		MinPricePerShare: minPricePerShare,
		Status:           Pending,
		Timestamp:        l.clock.Now().Unix(),
	}
	pool.TotalOrders++

	ev := l.nextEvent(EvSellOrderPlaced)
	ev.User = user
	ev.Symbol = symbol
	ev.OrderID = order.OrderID
	ev.SharesToSell = sharesToSell
	ev.MinPricePerShare = minPricePerShare

	batch := l.store.NewBatch()
	defer batch.Close()
	if err := stageAll(
		func() error { return batch.SetAccount(newAcc) },
		func() error { return batch.SetEscrow(symbol, newEscrow) },
		func() error { return batch.SetSellOrder(order) },
		func() error { return batch.SetPool(&pool) },
		func() error { return batch.AppendEvent(ev) },
	); err != nil {
		return nil, err
	}
	if err := batch.Commit(); err != nil {
		return nil, fmt.Errorf("commit place sell order: %w", err)
	}

	l.accounts[user] = newAcc
	l.escrow[symbol] = newEscrow
	l.pool = &pool
	l.lastEventSeq = ev.Seq
	l.publish(ev)
	l.log.Infow("sell_order_placed",
		"order_id", order.OrderID, "user", user.Hex(), "symbol", symbol,
		"shares_to_sell", sharesToSell, "min_price_per_share", minPricePerShare)
	return order, nil
}

// FulfillBuyOrder finalizes a pending buy order with execution results supplied
// by the settlement agent. Only the backend authority may call it. The ledger
// enforces the user's price limit and collateral conservation; it does not
// verify the off-chain trade itself.
func (l *Ledger) FulfillBuyOrder(caller, user common.Address, orderID, sharesPurchased, pricePerShare, totalCost, refundAmount uint64) (*BuyOrder, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.pool == nil {
		return nil, ErrNotInitialized
	}
	if caller != l.pool.BackendAuthority {
		return nil, ErrUnauthorizedBackend
	}

	order, err := l.buyOrderLocked(user, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != Pending {
		return nil, ErrInvalidOrderStatus
	}
	if pricePerShare > order.MaxPricePerShare {
		return nil, ErrPriceExceedsLimit
	}
	// Conservation: fulfillment may not spend or refund more collateral than
	// the order escrowed.
	spent, err := checkedAdd(totalCost, refundAmount)
	if err != nil {
		return nil, err
	}
	if spent > order.SolAmount {
		return nil, ErrInvalidCalculation
	}

	sym, ok := l.symbols[order.Symbol]
	if !ok {
		return nil, ErrUnknownSymbol
	}

	// Stage every mutation before touching live state.
	acc, err := l.accountLocked(user)
	if err != nil {
		return nil, err
	}
	newAcc := acc.clone()
	newSym := *sym
	newVault := l.vault

	if sharesPurchased > 0 {
		if newAcc.Shares[order.Symbol], err = checkedAdd(newAcc.Shares[order.Symbol], sharesPurchased); err != nil {
			return nil, err
		}
		if newSym.TotalSupply, err = checkedAdd(newSym.TotalSupply, sharesPurchased); err != nil {
			return nil, err
		}
	}
	if refundAmount > 0 {
		if newVault, err = checkedSub(newVault, refundAmount); err != nil {
			return nil, err
		}
		if newAcc.Collateral, err = checkedAdd(newAcc.Collateral, refundAmount); err != nil {
			return nil, err
		}
	}

	fulfilled := *order
	fulfilled.Status = Fulfilled
	fulfilled.SharesReceived = sharesPurchased
	fulfilled.ActualPricePerShare = pricePerShare

	ev := l.nextEvent(EvBuyOrderFulfilled)
	ev.User = user
	ev.Symbol = order.Symbol
	ev.OrderID = orderID
	ev.SharesPurchased = sharesPurchased
	ev.PricePerShare = pricePerShare
	ev.TotalCost = totalCost
	ev.RefundAmount = refundAmount

	batch := l.store.NewBatch()
	defer batch.Close()
	if err := stageAll(
		func() error { return batch.SetBuyOrder(&fulfilled) },
		func() error { return batch.SetAccount(newAcc) },
		func() error { return batch.SetSymbol(&newSym) },
		func() error { return batch.SetVault(newVault) },
		func() error { return batch.AppendEvent(ev) },
	); err != nil {
		return nil, err
	}
	if err := batch.Commit(); err != nil {
		return nil, fmt.Errorf("commit fulfill buy order: %w", err)
	}

	l.accounts[user] = newAcc
	l.symbols[order.Symbol] = &newSym
	l.vault = newVault
	l.lastEventSeq = ev.Seq
	l.publish(ev)
	l.log.Infow("buy_order_fulfilled",
		"order_id", orderID, "user", user.Hex(), "symbol", order.Symbol,
		"shares_purchased", sharesPurchased, "price_per_share", pricePerShare,
		"total_cost", totalCost, "refund_amount", refundAmount)
	return &fulfilled, nil
}

// FulfillSellOrder finalizes a pending sell order. Every escrowed share must be
// accounted for as either sold or returned; sold shares are burned from supply
// and proceeds paid from the vault.
func (l *Ledger) FulfillSellOrder(caller, user common.Address, orderID, sharesSold, pricePerShare, totalProceeds, sharesReturned uint64) (*SellOrder, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.pool == nil {
		return nil, ErrNotInitialized
	}
	if caller != l.pool.BackendAuthority {
		return nil, ErrUnauthorizedBackend
	}

	order, err := l.sellOrderLocked(user, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != Pending {
		return nil, ErrInvalidOrderStatus
	}
	if pricePerShare < order.MinPricePerShare {
		return nil, ErrPriceBelowMinimum
	}
	accounted, err := checkedAdd(sharesSold, sharesReturned)
	if err != nil {
		return nil, err
	}
	if accounted != order.SharesToSell {
		return nil, ErrInvalidCalculation
	}

	sym, ok := l.symbols[order.Symbol]
	if !ok {
		return nil, ErrUnknownSymbol
	}

	acc, err := l.accountLocked(user)
	if err != nil {
		return nil, err
	}
	newAcc := acc.clone()
	newSym := *sym
	newVault := l.vault
	newEscrow := l.escrow[order.Symbol]

	if sharesSold > 0 {
		// Burn from escrow and supply; escrow shortfall should be unreachable
		// given placement invariants but is guarded all the same.
		if newEscrow, err = checkedSub(newEscrow, sharesSold); err != nil {
			return nil, err
		}
		if newSym.TotalSupply, err = checkedSub(newSym.TotalSupply, sharesSold); err != nil {
			return nil, err
		}
		if newVault, err = checkedSub(newVault, totalProceeds); err != nil {
			return nil, err
		}
		if newAcc.Collateral, err = checkedAdd(newAcc.Collateral, totalProceeds); err != nil {
			return nil, err
		}
	}
	if sharesReturned > 0 {
		if newEscrow, err = checkedSub(newEscrow, sharesReturned); err != nil {
			return nil, err
		}
		if newAcc.Shares[order.Symbol], err = checkedAdd(newAcc.Shares[order.Symbol], sharesReturned); err != nil {
			return nil, err
		}
	}

	fulfilled := *order
	fulfilled.Status = Fulfilled
	fulfilled.SolReceived = totalProceeds
	fulfilled.ActualPricePerShare = pricePerShare

	ev := l.nextEvent(EvSellOrderFulfilled)
	ev.User = user
	ev.Symbol = order.Symbol
	ev.OrderID = orderID
	ev.SharesSold = sharesSold
	ev.PricePerShare = pricePerShare
	ev.TotalProceeds = totalProceeds
	ev.SharesReturned = sharesReturned

	batch := l.store.NewBatch()
	defer batch.Close()
	if err := stageAll(
		func() error { return batch.SetSellOrder(&fulfilled) },
		func() error { return batch.SetAccount(newAcc) },
		func() error { return batch.SetSymbol(&newSym) },
		func() error { return batch.SetVault(newVault) },
		func() error { return batch.SetEscrow(order.Symbol, newEscrow) },
		func() error { return batch.AppendEvent(ev) },
	); err != nil {
		return nil, err
	}
	if err := batch.Commit(); err != nil {
		return nil, fmt.Errorf("commit fulfill sell order: %w", err)
	}

	l.accounts[user] = newAcc
	l.symbols[order.Symbol] = &newSym
	l.vault = newVault
	l.escrow[order.Symbol] = newEscrow
	l.lastEventSeq = ev.Seq
	l.publish(ev)
	l.log.Infow("sell_order_fulfilled",
		"order_id", orderID, "user", user.Hex(), "symbol", order.Symbol,
		"shares_sold", sharesSold, "price_per_share", pricePerShare,
		"total_proceeds", totalProceeds, "shares_returned", sharesReturned)
	return &fulfilled, nil
}

// DepositVaultFunds transfers amount from the vault authority's own account
// into the custodial vault.
func (l *Ledger) DepositVaultFunds(caller common.Address, amount uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.pool == nil {
		return ErrNotInitialized
	}
	if caller != l.pool.VaultAuthority {
		return ErrUnauthorizedVaultAccess
	}

	acc, err := l.accountLocked(caller)
	if err != nil {
		return err
	}
	if acc.Collateral < amount {
		return ErrInsufficientFunds
	}
	newAcc := acc.clone()
	newAcc.Collateral -= amount
	newVault, err := checkedAdd(l.vault, amount)
	if err != nil {
		return err
	}

	ev := l.nextEvent(EvVaultDeposited)
	ev.User = caller
	ev.Amount = amount

	batch := l.store.NewBatch()
	defer batch.Close()
	if err := stageAll(
		func() error { return batch.SetAccount(newAcc) },
		func() error { return batch.SetVault(newVault) },
		func() error { return batch.AppendEvent(ev) },
	); err != nil {
		return err
	}
	if err := batch.Commit(); err != nil {
		return fmt.Errorf("commit vault deposit: %w", err)
	}

	l.accounts[caller] = newAcc
	l.vault = newVault
	l.lastEventSeq = ev.Seq
	l.publish(ev)
	l.log.Infow("vault_deposited", "authority", caller.Hex(), "amount", amount)
	return nil
}

// WithdrawVaultFunds transfers amount from the custodial vault to the vault
// authority's account. The vault authority is trusted to leave enough balance
// for pending-order refund liability; no reserve invariant is enforced here.
func (l *Ledger) WithdrawVaultFunds(caller common.Address, amount uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.pool == nil {
		return ErrNotInitialized
	}
	if caller != l.pool.VaultAuthority {
		return ErrUnauthorizedVaultAccess
	}

	newVault, err := checkedSub(l.vault, amount)
	if err != nil {
		return err
	}
	acc, err := l.accountLocked(caller)
	if err != nil {
		return err
	}
	newAcc := acc.clone()
	if newAcc.Collateral, err = checkedAdd(newAcc.Collateral, amount); err != nil {
		return err
	}

	ev := l.nextEvent(EvVaultWithdrawn)
	ev.User = caller
	ev.Amount = amount

	batch := l.store.NewBatch()
	defer batch.Close()
	if err := stageAll(
		func() error { return batch.SetAccount(newAcc) },
		func() error { return batch.SetVault(newVault) },
		func() error { return batch.AppendEvent(ev) },
	); err != nil {
		return err
	}
	if err := batch.Commit(); err != nil {
		return fmt.Errorf("commit vault withdraw: %w", err)
	}

	l.accounts[caller] = newAcc
	l.vault = newVault
	l.lastEventSeq = ev.Seq
	l.publish(ev)
	l.log.Infow("vault_withdrawn", "authority", caller.Hex(), "amount", amount)
	return nil
}

// DepositCollateral credits free collateral to a user account. This is the
// bridge by which external funds enter the closed ledger.
func (l *Ledger) DepositCollateral(user common.Address, amount uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if amount == 0 {
		return ErrInvalidAmount
	}
	acc, err := l.accountLocked(user)
	if err != nil {
		return err
	}
	newAcc := acc.clone()
	if newAcc.Collateral, err = checkedAdd(newAcc.Collateral, amount); err != nil {
		return err
	}

	ev := l.nextEvent(EvCollateralDeposited)
	ev.User = user
	ev.Amount = amount

	batch := l.store.NewBatch()
	defer batch.Close()
	if err := stageAll(
		func() error { return batch.SetAccount(newAcc) },
		func() error { return batch.AppendEvent(ev) },
	); err != nil {
		return err
	}
	if err := batch.Commit(); err != nil {
		return fmt.Errorf("commit collateral deposit: %w", err)
	}

	l.accounts[user] = newAcc
	l.lastEventSeq = ev.Seq
	l.publish(ev)
	return nil
}

// WithdrawCollateral debits free collateral from a user account. Collateral
// escrowed by pending orders is in the vault and cannot be withdrawn here.
func (l *Ledger) WithdrawCollateral(user common.Address, amount uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if amount == 0 {
		return ErrInvalidAmount
	}
	acc, err := l.accountLocked(user)
	if err != nil {
		return err
	}
	if acc.Collateral < amount {
		return ErrInsufficientFunds
	}
	newAcc := acc.clone()
	newAcc.Collateral -= amount

	ev := l.nextEvent(EvCollateralWithdrawn)
	ev.User = user
	ev.Amount = amount

	batch := l.store.NewBatch()
	defer batch.Close()
	if err := stageAll(
		func() error { return batch.SetAccount(newAcc) },
		func() error { return batch.AppendEvent(ev) },
	); err != nil {
		return err
	}
	if err := batch.Commit(); err != nil {
		return fmt.Errorf("commit collateral withdraw: %w", err)
	}

	l.accounts[user] = newAcc
	l.lastEventSeq = ev.Seq
	l.publish(ev)
	return nil
}

// ---- internal helpers (mu held) ----

func (l *Ledger) accountLocked(addr common.Address) (*Account, error) {
	if acc, ok := l.accounts[addr]; ok {
		return acc, nil
	}
	acc, err := l.store.LoadAccount(addr)
	if err != nil {
		return nil, err
	}
	if acc == nil {
		acc = NewAccount(addr)
	}
	l.accounts[addr] = acc
	return acc, nil
}

func (l *Ledger) buyOrderLocked(user common.Address, id uint64) (*BuyOrder, error) {
	order, err := l.store.LoadBuyOrder(user, id)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	return order, nil
}

func (l *Ledger) sellOrderLocked(user common.Address, id uint64) (*SellOrder, error) {
	order, err := l.store.LoadSellOrder(user, id)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	return order, nil
}

func (l *Ledger) nextEvent(t EventType) Event {
	return Event{
		Seq:       l.lastEventSeq + 1,
		Type:      t,
		Timestamp: l.clock.Now().Unix(),
	}
}

func stageAll(stages ...func() error) error {
	for _, stage := range stages {
		if err := stage(); err != nil {
			return err
		}
	}
	return nil
}
