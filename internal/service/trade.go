package service

import (
	"github.com/efreitasn/exchangesim/internal/domain"
	"github.com/efreitasn/exchangesim/internal/engine"
	"github.com/efreitasn/exchangesim/internal/store"
)

// TradeService exposes trade subscription and lookup to the boundary layer.
type TradeService struct {
	bus    *engine.TradeBus
	trades *store.TradeStore
}

// NewTradeService creates a new TradeService.
func NewTradeService(bus *engine.TradeBus, trades *store.TradeStore) *TradeService {
	return &TradeService{
		bus:    bus,
		trades: trades,
	}
}

// Subscribe opens a live trade subscription. The caller receives every trade
// published from this point forward; there is no replay of history. Close the
// subscription when done.
func (s *TradeService) Subscribe() *engine.Subscription {
	return s.bus.Subscribe()
}

// Get retrieves a recorded trade by UUID.
func (s *TradeService) Get(uuid string) (domain.Trade, bool) {
	return s.trades.Get(uuid)
}

// ListBySymbol returns recorded trades for a symbol in recording order.
func (s *TradeService) ListBySymbol(symbol string) []domain.Trade {
	return s.trades.ListBySymbol(symbol)
}
