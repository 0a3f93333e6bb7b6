package ledger

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cockroachdb/pebble"
	"github.com/ethereum/go-ethereum/common"
)

// Store is the Pebble persistence layer beneath the ledger. It is not
// thread-safe on its own; all access goes through the Ledger's mutex.
type Store struct {
	db *pebble.DB
}

// NewStore opens a Pebble database at the given path.
func NewStore(path string) (*Store, error) {
	opts := &pebble.Options{
		Cache:                 pebble.NewCache(64 << 20),
		MemTableSize:          32 << 20,
		L0CompactionThreshold: 2,
		MaxOpenFiles:          500,
		BytesPerSync:          512 << 10,
	}
	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, fmt.Errorf("open pebble db at %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) getJSON(key []byte, v any) (bool, error) {
	data, closer, err := s.db.Get(key)
	if err == pebble.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get %s: %w", key, err)
	}
	defer closer.Close()
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("unmarshal %s: %w", key, err)
	}
	return true, nil
}

// LoadPool returns the pool registry, or nil if not initialized.
func (s *Store) LoadPool() (*Pool, error) {
	var p Pool
	ok, err := s.getJSON([]byte(keyPool), &p)
	if err != nil || !ok {
		return nil, err
	}
	return &p, nil
}

// LoadSymbols returns every registered symbol.
func (s *Store) LoadSymbols() (map[string]*Symbol, error) {
	prefix := []byte(prefixSymbol)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	symbols := make(map[string]*Symbol)
	for iter.First(); iter.Valid(); iter.Next() {
		var sym Symbol
		if err := json.Unmarshal(iter.Value(), &sym); err != nil {
			return nil, fmt.Errorf("unmarshal symbol %s: %w", iter.Key(), err)
		}
		symbols[sym.Symbol] = &sym
	}
	return symbols, nil
}

// LoadAccount returns a user account, or nil if it has never been seen.
func (s *Store) LoadAccount(addr common.Address) (*Account, error) {
	var acc Account
	ok, err := s.getJSON(accountKey(addr), &acc)
	if err != nil || !ok {
		return nil, err
	}
	if acc.Shares == nil {
		acc.Shares = make(map[string]uint64)
	}
	return &acc, nil
}

// LoadBuyOrder returns a buy order by its natural key, or nil if absent.
func (s *Store) LoadBuyOrder(user common.Address, id uint64) (*BuyOrder, error) {
	var o BuyOrder
	ok, err := s.getJSON(buyOrderKey(user, id), &o)
	if err != nil || !ok {
		return nil, err
	}
	return &o, nil
}

// LoadSellOrder returns a sell order by its natural key, or nil if absent.
func (s *Store) LoadSellOrder(user common.Address, id uint64) (*SellOrder, error) {
	var o SellOrder
	ok, err := s.getJSON(sellOrderKey(user, id), &o)
	if err != nil || !ok {
		return nil, err
	}
	return &o, nil
}

// LoadVault returns the custodial collateral balance.
func (s *Store) LoadVault() (uint64, error) {
	return s.loadBalance([]byte(keyVault))
}

// LoadEscrows returns the escrowed share balance for every symbol.
func (s *Store) LoadEscrows() (map[string]uint64, error) {
	prefix := []byte(prefixEscrow)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	escrows := make(map[string]uint64)
	for iter.First(); iter.Valid(); iter.Next() {
		symbol := strings.TrimPrefix(string(iter.Key()), prefixEscrow)
		if len(iter.Value()) != 8 {
			return nil, fmt.Errorf("corrupt escrow balance for %s", symbol)
		}
		escrows[symbol] = binary.BigEndian.Uint64(iter.Value())
	}
	return escrows, nil
}

func (s *Store) loadBalance(key []byte) (uint64, error) {
	data, closer, err := s.db.Get(key)
	if err == pebble.ErrNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get %s: %w", key, err)
	}
	defer closer.Close()
	if len(data) != 8 {
		return 0, fmt.Errorf("corrupt balance at %s", key)
	}
	return binary.BigEndian.Uint64(data), nil
}

// LastEventSeq returns the sequence number of the newest audit event, or 0 if
// the log is empty.
func (s *Store) LastEventSeq() (uint64, error) {
	prefix := []byte(prefixEvent)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return 0, err
	}
	defer iter.Close()

	if !iter.Last() {
		return 0, nil
	}
	var ev Event
	if err := json.Unmarshal(iter.Value(), &ev); err != nil {
		return 0, fmt.Errorf("unmarshal last event: %w", err)
	}
	return ev.Seq, nil
}

// Events replays committed audit events with seq >= fromSeq, oldest first,
// up to limit entries (limit <= 0 means no cap).
func (s *Store) Events(fromSeq uint64, limit int) ([]Event, error) {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: eventKey(fromSeq),
		UpperBound: keyUpperBound([]byte(prefixEvent)),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var events []Event
	for iter.First(); iter.Valid(); iter.Next() {
		if limit > 0 && len(events) >= limit {
			break
		}
		var ev Event
		if err := json.Unmarshal(iter.Value(), &ev); err != nil {
			return nil, fmt.Errorf("unmarshal event %s: %w", iter.Key(), err)
		}
		events = append(events, ev)
	}
	return events, nil
}

// PendingBuyOrders scans every buy order still in Pending status.
func (s *Store) PendingBuyOrders() ([]*BuyOrder, error) {
	prefix := []byte(prefixBuy)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var orders []*BuyOrder
	for iter.First(); iter.Valid(); iter.Next() {
		var o BuyOrder
		if err := json.Unmarshal(iter.Value(), &o); err != nil {
			return nil, fmt.Errorf("unmarshal buy order %s: %w", iter.Key(), err)
		}
		if o.Status == Pending {
			orders = append(orders, &o)
		}
	}
	return orders, nil
}

// PendingSellOrders scans every sell order still in Pending status.
func (s *Store) PendingSellOrders() ([]*SellOrder, error) {
	prefix := []byte(prefixSell)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var orders []*SellOrder
	for iter.First(); iter.Valid(); iter.Next() {
		var o SellOrder
		if err := json.Unmarshal(iter.Value(), &o); err != nil {
			return nil, fmt.Errorf("unmarshal sell order %s: %w", iter.Key(), err)
		}
		if o.Status == Pending {
			orders = append(orders, &o)
		}
	}
	return orders, nil
}

// UserBuyOrders returns all buy orders placed by a user, oldest first.
func (s *Store) UserBuyOrders(user common.Address) ([]*BuyOrder, error) {
	prefix := []byte(prefixBuy + user.Hex() + ":")
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var orders []*BuyOrder
	for iter.First(); iter.Valid(); iter.Next() {
		var o BuyOrder
		if err := json.Unmarshal(iter.Value(), &o); err != nil {
			return nil, fmt.Errorf("unmarshal buy order %s: %w", iter.Key(), err)
		}
		orders = append(orders, &o)
	}
	return orders, nil
}

// UserSellOrders returns all sell orders placed by a user, oldest first.
func (s *Store) UserSellOrders(user common.Address) ([]*SellOrder, error) {
	prefix := []byte(prefixSell + user.Hex() + ":")
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var orders []*SellOrder
	for iter.First(); iter.Valid(); iter.Next() {
		var o SellOrder
		if err := json.Unmarshal(iter.Value(), &o); err != nil {
			return nil, fmt.Errorf("unmarshal sell order %s: %w", iter.Key(), err)
		}
		orders = append(orders, &o)
	}
	return orders, nil
}

// Batch stages the writes of one ledger operation and commits them atomically.
// Either every mutation in the batch reaches disk or none does.
type Batch struct {
	batch *pebble.Batch
}

// NewBatch starts an atomic write batch.
func (s *Store) NewBatch() *Batch {
	return &Batch{batch: s.db.NewBatch()}
}

func (b *Batch) setJSON(key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.batch.Set(key, data, nil)
}

// SetPool stages the pool registry.
func (b *Batch) SetPool(p *Pool) error {
	return b.setJSON([]byte(keyPool), p)
}

// SetSymbol stages a symbol registry entry.
func (b *Batch) SetSymbol(sym *Symbol) error {
	return b.setJSON(symbolKey(sym.Symbol), sym)
}

// SetAccount stages a user account.
func (b *Batch) SetAccount(acc *Account) error {
	return b.setJSON(accountKey(acc.Address), acc)
}

// SetBuyOrder stages a buy order.
func (b *Batch) SetBuyOrder(o *BuyOrder) error {
	return b.setJSON(buyOrderKey(o.User, o.OrderID), o)
}

// SetSellOrder stages a sell order.
func (b *Batch) SetSellOrder(o *SellOrder) error {
	return b.setJSON(sellOrderKey(o.User, o.OrderID), o)
}

// SetVault stages the custodial collateral balance.
func (b *Batch) SetVault(balance uint64) error {
	return b.batch.Set([]byte(keyVault), encodeBalance(balance), nil)
}

// SetEscrow stages a symbol's escrowed share balance.
func (b *Batch) SetEscrow(symbol string, balance uint64) error {
	return b.batch.Set(escrowKey(symbol), encodeBalance(balance), nil)
}

// AppendEvent stages an audit event at its sequence slot.
func (b *Batch) AppendEvent(ev Event) error {
	return b.setJSON(eventKey(ev.Seq), ev)
}

// Commit writes the batch durably.
func (b *Batch) Commit() error {
	return b.batch.Commit(pebble.Sync)
}

// Close discards the batch without committing.
func (b *Batch) Close() error {
	return b.batch.Close()
}

func encodeBalance(v uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	return buf[:]
}
