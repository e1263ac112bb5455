package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/efreitasn/exchangesim/internal/domain"
	"github.com/efreitasn/exchangesim/internal/store"
)

// Matcher is the matching engine: a recurring pass that, for every known
// symbol, walks that symbol's book and executes crossable quantity, emitting
// trades to the bus.
//
// Matching never takes a per-symbol mutex. Each candidate pair is claimed
// through the order store's pairwise lock, so a cancellation on an unrelated
// order never blocks a pass, and passes for different symbols run fully in
// parallel.
type Matcher struct {
	interval time.Duration
	books    *BookRegistry
	orders   *store.OrderStore
	bus      *TradeBus
	logger   *slog.Logger
}

// NewMatcher creates a Matcher ticking at the given interval.
func NewMatcher(
	interval time.Duration,
	books *BookRegistry,
	orders *store.OrderStore,
	bus *TradeBus,
	logger *slog.Logger,
) *Matcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Matcher{
		interval: interval,
		books:    books,
		orders:   orders,
		bus:      bus,
		logger:   logger,
	}
}

// Start launches a background goroutine that runs one matching pass per tick
// until ctx is cancelled.
func (m *Matcher) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.RunPass()
			}
		}
	}()
}

// RunPass crosses every known symbol's book once. Symbols are processed in
// parallel — books are disjoint by symbol — and the pass returns when all
// symbols are done, so passes for the same symbol never overlap.
func (m *Matcher) RunPass() {
	var wg sync.WaitGroup
	for _, symbol := range m.books.Symbols() {
		book, ok := m.books.Get(symbol)
		if !ok {
			continue
		}
		wg.Add(1)
		go func(symbol string, book *OrderBook) {
			defer wg.Done()
			m.matchBook(symbol, book)
		}(symbol, book)
	}
	wg.Wait()
}

// matchBook runs one crossing pass over a symbol's book: sell levels in
// ascending price order, and for each, buy levels in descending price order.
// Once the best remaining bid is below the current sell price, no buy level
// can cross this or any higher sell price, and the pass terminates.
func (m *Matcher) matchBook(symbol string, book *OrderBook) {
	for _, sellPrice := range book.SellPrices() {
		for _, buyPrice := range book.BuyPrices() {
			if book.SellLevelEmpty(sellPrice) {
				break
			}
			if buyPrice < sellPrice {
				return
			}
			m.matchLevels(symbol, book, sellPrice, buyPrice)
		}
	}
}

// matchLevels crosses one pair of price levels, oldest orders first on both
// sides. Each sell entry consumes buy entries until its remaining quantity
// reaches zero or the buy level is exhausted.
func (m *Matcher) matchLevels(symbol string, book *OrderBook, sellPrice, buyPrice int64) {
	for _, sell := range book.SellEntries(sellPrice) {
		sellQty := sell.Quantity
		for _, buy := range book.BuyEntries(buyPrice) {
			var buyQty int64
			sellQty, buyQty = m.matchPair(symbol, sellPrice, sell.UUID, sellQty, buy.UUID, buy.Quantity)
			if sellQty == 0 {
				if buyQty != 0 {
					book.UpdateBuy(buyPrice, buy, buyQty)
				} else {
					book.RemoveBuy(buyPrice, buy)
				}
				book.RemoveSell(sellPrice, sell)
				break
			}
			book.RemoveBuy(buyPrice, buy)
		}
		if sellQty != 0 {
			book.UpdateSell(sellPrice, sell, sellQty)
		}
	}
}

// matchPair attempts one match between a resting sell and a resting buy. It
// returns the pair's remaining quantities after the attempt; at most one of
// the two is nonzero when a trade executes.
//
// The pair is claimed through the store's all-or-nothing lock. Only when
// both sides land in a processing state does a trade occur: quantity is the
// smaller remainder, the execution price is the sell order's price (price
// improvement goes to the crossing buy), each side unlocks to EXECUTED when
// fully consumed or PARTIALLY_EXECUTED otherwise, and exactly one trade is
// published.
//
// When a side fails to lock — concurrently cancelled, or claimed elsewhere —
// no trade occurs and that side's quantity is returned unmodified while the
// other side's is zeroed. The level bookkeeping in matchLevels therefore
// drops the counterparty entry from its level even though nothing executed;
// cancelled orders leave the book this way, lazily, during the first pass
// that touches them.
func (m *Matcher) matchPair(symbol string, sellPrice int64, sellUUID string, sellQty int64, buyUUID string, buyQty int64) (int64, int64) {
	sellState, buyState := m.orders.LockToProcess(sellUUID, buyUUID)

	switch {
	case sellState.Processing() && buyState.Processing():
		if sellQty > buyQty {
			m.orders.UnlockProcessed(sellUUID, domain.OrderStatePartiallyExecuted)
			m.orders.UnlockProcessed(buyUUID, domain.OrderStateExecuted)
			m.bus.Publish(domain.NewTrade(symbol, sellPrice, buyQty, sellUUID, buyUUID))
			return sellQty - buyQty, 0
		}
		remaining := buyQty - sellQty
		m.orders.UnlockProcessed(sellUUID, domain.OrderStateExecuted)
		if remaining > 0 {
			m.orders.UnlockProcessed(buyUUID, domain.OrderStatePartiallyExecuted)
		} else {
			m.orders.UnlockProcessed(buyUUID, domain.OrderStateExecuted)
		}
		m.bus.Publish(domain.NewTrade(symbol, sellPrice, sellQty, sellUUID, buyUUID))
		return 0, remaining
	case sellState.Processing():
		// Our own claim would have been rolled back inside LockToProcess, so
		// a processing sell here means another pass holds it.
		m.logger.Warn("sell side locked elsewhere", slog.String("uuid", sellUUID))
		return sellQty, 0
	case buyState.Processing():
		m.logger.Warn("buy side locked elsewhere", slog.String("uuid", buyUUID))
		return 0, buyQty
	default:
		m.logger.Warn("neither side lockable",
			slog.String("sellUuid", sellUUID), slog.String("buyUuid", buyUUID))
		return 0, 0
	}
}
