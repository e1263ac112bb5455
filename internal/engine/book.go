package engine

import (
	"sync"
	"time"

	"github.com/efreitasn/exchangesim/internal/domain"
	"github.com/google/btree"
)

// Entry is a single resting order inside a price level: the order's UUID and
// its remaining (working) quantity. The remaining quantity is distinct from
// the order's original quantity and is mutated only by the matching pass that
// owns the book at that instant.
type Entry struct {
	UUID       string
	Quantity   int64
	Registered time.Time
}

// entryLess orders entries by arrival time ascending, UUID breaking ties —
// strict FIFO within a price level.
func entryLess(a, b Entry) bool {
	if !a.Registered.Equal(b.Registered) {
		return a.Registered.Before(b.Registered)
	}
	return a.UUID < b.UUID
}

// priceLevel bundles all entries resting at one price.
type priceLevel struct {
	price   int64
	entries *btree.BTreeG[Entry]
}

func newPriceLevel(price int64) *priceLevel {
	const degree = 32
	return &priceLevel{
		price:   price,
		entries: btree.NewG[Entry](degree, entryLess),
	}
}

// bookSide holds the price levels of one side, ordered by price priority:
// ascending for the sell side (lowest offer first), descending for the buy
// side (highest bid first).
type bookSide struct {
	levels *btree.BTreeG[*priceLevel]
}

func newBookSide(less btree.LessFunc[*priceLevel]) *bookSide {
	const degree = 32
	return &bookSide{levels: btree.NewG[*priceLevel](degree, less)}
}

func (s *bookSide) add(price int64, e Entry) {
	level, ok := s.levels.Get(&priceLevel{price: price})
	if !ok {
		level = newPriceLevel(price)
		s.levels.ReplaceOrInsert(level)
	}
	level.entries.ReplaceOrInsert(e)
}

// prices returns the side's prices in priority order.
func (s *bookSide) prices() []int64 {
	prices := make([]int64, 0, s.levels.Len())
	s.levels.Ascend(func(level *priceLevel) bool {
		prices = append(prices, level.price)
		return true
	})
	return prices
}

// entries returns the level's entries in FIFO order, or nil if the level
// no longer exists.
func (s *bookSide) entriesAt(price int64) []Entry {
	level, ok := s.levels.Get(&priceLevel{price: price})
	if !ok {
		return nil
	}
	entries := make([]Entry, 0, level.entries.Len())
	level.entries.Ascend(func(e Entry) bool {
		entries = append(entries, e)
		return true
	})
	return entries
}

func (s *bookSide) emptyAt(price int64) bool {
	level, ok := s.levels.Get(&priceLevel{price: price})
	return !ok || level.entries.Len() == 0
}

// remove deletes an entry, pruning the level once it drains.
func (s *bookSide) remove(price int64, e Entry) {
	level, ok := s.levels.Get(&priceLevel{price: price})
	if !ok {
		return
	}
	level.entries.Delete(e)
	if level.entries.Len() == 0 {
		s.levels.Delete(level)
	}
}

// update replaces an entry's remaining quantity in place.
func (s *bookSide) update(price int64, e Entry, quantity int64) {
	level, ok := s.levels.Get(&priceLevel{price: price})
	if !ok {
		return
	}
	e.Quantity = quantity
	level.entries.ReplaceOrInsert(e)
}

func (s *bookSide) count() int {
	n := 0
	s.levels.Ascend(func(level *priceLevel) bool {
		n += level.entries.Len()
		return true
	})
	return n
}

// OrderBook is the per-symbol two-sided book: sell side ordered by ascending
// price then arrival time, buy side by descending price then arrival time.
// It is safe for concurrent insertion (order submission) and traversal
// (matching); resting quantities are only mutated by the matching pass, which
// is single-writer per symbol.
type OrderBook struct {
	symbol string
	mu     sync.RWMutex
	sells  *bookSide
	buys   *bookSide
}

// NewOrderBook creates an order book for the given symbol.
func NewOrderBook(symbol string) *OrderBook {
	return &OrderBook{
		symbol: symbol,
		sells: newBookSide(func(a, b *priceLevel) bool {
			return a.price < b.price
		}),
		buys: newBookSide(func(a, b *priceLevel) bool {
			return a.price > b.price
		}),
	}
}

// Add routes the order to the correct side, inserting its UUID and original
// quantity under the order's price, creating the level if absent.
func (ob *OrderBook) Add(order domain.Order) {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	e := Entry{
		UUID:       order.UUID,
		Quantity:   order.Quantity,
		Registered: order.Registered,
	}
	if order.Type == domain.OrderTypeBuy {
		ob.buys.add(order.Price, e)
	} else {
		ob.sells.add(order.Price, e)
	}
}

// SellPrices returns the sell-side prices, lowest first.
func (ob *OrderBook) SellPrices() []int64 {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	return ob.sells.prices()
}

// BuyPrices returns the buy-side prices, highest first.
func (ob *OrderBook) BuyPrices() []int64 {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	return ob.buys.prices()
}

// SellEntries returns the sell entries at the given price, oldest first.
func (ob *OrderBook) SellEntries(price int64) []Entry {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	return ob.sells.entriesAt(price)
}

// BuyEntries returns the buy entries at the given price, oldest first.
func (ob *OrderBook) BuyEntries(price int64) []Entry {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	return ob.buys.entriesAt(price)
}

// SellLevelEmpty reports whether no sell entries remain at the given price.
func (ob *OrderBook) SellLevelEmpty(price int64) bool {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	return ob.sells.emptyAt(price)
}

// RemoveSell deletes a sell entry.
func (ob *OrderBook) RemoveSell(price int64, e Entry) {
	ob.mu.Lock()
	defer ob.mu.Unlock()
	ob.sells.remove(price, e)
}

// RemoveBuy deletes a buy entry.
func (ob *OrderBook) RemoveBuy(price int64, e Entry) {
	ob.mu.Lock()
	defer ob.mu.Unlock()
	ob.buys.remove(price, e)
}

// UpdateSell sets a sell entry's remaining quantity.
func (ob *OrderBook) UpdateSell(price int64, e Entry, quantity int64) {
	ob.mu.Lock()
	defer ob.mu.Unlock()
	ob.sells.update(price, e, quantity)
}

// UpdateBuy sets a buy entry's remaining quantity.
func (ob *OrderBook) UpdateBuy(price int64, e Entry, quantity int64) {
	ob.mu.Lock()
	defer ob.mu.Unlock()
	ob.buys.update(price, e, quantity)
}

// SellCount returns the number of resting sell entries.
func (ob *OrderBook) SellCount() int {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	return ob.sells.count()
}

// BuyCount returns the number of resting buy entries.
func (ob *OrderBook) BuyCount() int {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	return ob.buys.count()
}

// BookRegistry is a thread-safe map of symbol → OrderBook, created lazily on
// the first order for a symbol.
type BookRegistry struct {
	mu    sync.RWMutex
	books map[string]*OrderBook
}

// NewBookRegistry creates an empty BookRegistry.
func NewBookRegistry() *BookRegistry {
	return &BookRegistry{
		books: make(map[string]*OrderBook),
	}
}

// GetOrCreate returns the order book for the given symbol, creating
// one if it doesn't already exist.
func (r *BookRegistry) GetOrCreate(symbol string) *OrderBook {
	r.mu.RLock()
	book, ok := r.books[symbol]
	r.mu.RUnlock()
	if ok {
		return book
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	// Double-check after acquiring write lock.
	if book, ok = r.books[symbol]; ok {
		return book
	}
	book = NewOrderBook(symbol)
	r.books[symbol] = book
	return book
}

// Get returns the order book for the symbol, if one exists.
func (r *BookRegistry) Get(symbol string) (*OrderBook, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	book, ok := r.books[symbol]
	return book, ok
}

// Symbols returns a snapshot of all known symbols.
func (r *BookRegistry) Symbols() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	symbols := make([]string, 0, len(r.books))
	for symbol := range r.books {
		symbols = append(symbols, symbol)
	}
	return symbols
}
