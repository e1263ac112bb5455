package service

import (
	"fmt"
	"regexp"

	"github.com/efreitasn/exchangesim/internal/domain"
	"github.com/efreitasn/exchangesim/internal/engine"
	"github.com/efreitasn/exchangesim/internal/store"
)

var orderSymbolRegex = regexp.MustCompile(`^[A-Z]{1,10}$`)

// SubmitOrderRequest represents the input for order submission. UUID is
// client-supplied and doubles as the idempotency key for retrying clients.
type SubmitOrderRequest struct {
	UUID     string
	Symbol   string
	Quantity int64
	Price    int64
}

// OrderService exposes the order operation contracts to the boundary layer:
// validated submission, cancellation and lookup. New orders are registered
// into their symbol's book exactly once.
type OrderService struct {
	orders *store.OrderStore
	books  *engine.BookRegistry
}

// NewOrderService creates a new OrderService with the given dependencies.
func NewOrderService(orders *store.OrderStore, books *engine.BookRegistry) *OrderService {
	return &OrderService{
		orders: orders,
		books:  books,
	}
}

// SubmitBuy validates and stores a buy order.
func (s *OrderService) SubmitBuy(req SubmitOrderRequest) (domain.Order, error) {
	if err := validate(req); err != nil {
		return domain.Order{}, err
	}
	return s.add(domain.NewBuyOrder(req.UUID, req.Symbol, req.Quantity, req.Price))
}

// SubmitSell validates and stores a sell order.
func (s *OrderService) SubmitSell(req SubmitOrderRequest) (domain.Order, error) {
	if err := validate(req); err != nil {
		return domain.Order{}, err
	}
	return s.add(domain.NewSellOrder(req.UUID, req.Symbol, req.Quantity, req.Price))
}

// add stores the order and, on first insert, registers it into the book.
// A duplicate UUID returns the stored order's current view: the book never
// gains a second entry for the same order.
func (s *OrderService) add(order domain.Order) (domain.Order, error) {
	stored, created := s.orders.Add(order)
	if created {
		s.books.GetOrCreate(order.Symbol).Add(order)
	}
	return stored, nil
}

// Cancel cancels the order with the given UUID. An unknown UUID is a benign
// no-op. Returns domain.ErrOrderLocked while the order is claimed by an
// in-flight match, or domain.ErrOrderNotCancellable from a terminal state.
func (s *OrderService) Cancel(uuid string) error {
	return s.orders.Cancel(uuid)
}

// Get returns the order merged with its live state.
func (s *OrderService) Get(uuid string) (domain.Order, bool) {
	return s.orders.Get(uuid)
}

func validate(req SubmitOrderRequest) error {
	if req.UUID == "" {
		return &domain.ValidationError{Message: "uuid must not be empty"}
	}
	if !orderSymbolRegex.MatchString(req.Symbol) {
		return &domain.ValidationError{
			Message: fmt.Sprintf("symbol must match %s", orderSymbolRegex.String()),
		}
	}
	if req.Quantity <= 0 {
		return &domain.ValidationError{Message: "quantity must be a positive integer"}
	}
	if req.Price <= 0 {
		return &domain.ValidationError{Message: "price must be a positive integer"}
	}
	return nil
}
