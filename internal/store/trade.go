package store

import (
	"context"
	"log/slog"
	"sync"

	"github.com/efreitasn/exchangesim/internal/domain"
)

// TradeStore is a deduplicating record of executed trades, fed from the trade
// bus. Trades are keyed by UUID with put-if-absent semantics: a duplicate
// UUID (which should not occur) is ignored rather than overwritten. A
// per-symbol chronological index supports listing.
type TradeStore struct {
	mu       sync.RWMutex
	trades   map[string]domain.Trade
	bySymbol map[string][]domain.Trade
	logger   *slog.Logger
}

// NewTradeStore creates an empty TradeStore.
func NewTradeStore(logger *slog.Logger) *TradeStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &TradeStore{
		trades:   make(map[string]domain.Trade),
		bySymbol: make(map[string][]domain.Trade),
		logger:   logger,
	}
}

// Run consumes trades from the given subscription channel until it is closed
// or ctx is cancelled. Wire it to a trade bus subscription at startup.
func (s *TradeStore) Run(ctx context.Context, trades <-chan domain.Trade) {
	for {
		select {
		case <-ctx.Done():
			return
		case trade, ok := <-trades:
			if !ok {
				return
			}
			s.Add(trade)
		}
	}
}

// Add records a trade unless its UUID is already present.
func (s *TradeStore) Add(trade domain.Trade) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.trades[trade.UUID]; ok {
		return
	}
	s.trades[trade.UUID] = trade
	s.bySymbol[trade.Symbol] = append(s.bySymbol[trade.Symbol], trade)
	s.logger.Debug("trade recorded",
		slog.String("uuid", trade.UUID),
		slog.String("symbol", trade.Symbol),
		slog.Int64("price", trade.Price),
		slog.Int64("quantity", trade.Quantity),
	)
}

// Get retrieves a trade by UUID.
func (s *TradeStore) Get(uuid string) (domain.Trade, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.trades[uuid]
	return t, ok
}

// ListBySymbol returns all trades for a symbol in recording order.
// Returns an empty slice if no trades exist for the symbol.
func (s *TradeStore) ListBySymbol(symbol string) []domain.Trade {
	s.mu.RLock()
	defer s.mu.RUnlock()

	trades := s.bySymbol[symbol]
	result := make([]domain.Trade, len(trades))
	copy(result, trades)
	return result
}

// Len returns the number of recorded trades.
func (s *TradeStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.trades)
}
