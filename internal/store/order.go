package store

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/efreitasn/exchangesim/internal/domain"
)

// orderEntity pairs an immutable order with the single mutable field holding
// its current state. The order's identity and content never change, but the
// state is contended between the cancel path and the matching path, so it
// lives in an atomic cell advanced only by compare-and-swap. The cell is
// never handed out; callers receive snapshot views.
type orderEntity struct {
	order domain.Order
	state atomic.Int32
}

func newOrderEntity(order domain.Order) *orderEntity {
	e := &orderEntity{order: order}
	e.state.Store(int32(order.State))
	return e
}

// view returns the order merged with its live state.
func (e *orderEntity) view() domain.Order {
	return e.order.WithState(domain.OrderState(e.state.Load()))
}

func (e *orderEntity) cas(from, to domain.OrderState) bool {
	return e.state.CompareAndSwap(int32(from), int32(to))
}

// OrderStore is the authoritative in-memory store for orders. It owns each
// order's current state and exposes the two-phase lock/unlock protocol used
// by the matching engine. Orders are never deleted, so terminal orders stay
// queryable.
type OrderStore struct {
	mu     sync.RWMutex
	orders map[string]*orderEntity
	logger *slog.Logger
}

// NewOrderStore creates an empty OrderStore.
func NewOrderStore(logger *slog.Logger) *OrderStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &OrderStore{
		orders: make(map[string]*orderEntity),
		logger: logger,
	}
}

// Add inserts the order unless an entity already exists for its UUID. The
// boolean reports whether the order was inserted; on a duplicate submission
// the existing entity's current view is returned unchanged, making Add
// idempotent on UUID.
func (s *OrderStore) Add(order domain.Order) (domain.Order, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if current, ok := s.orders[order.UUID]; ok {
		s.logger.Debug("duplicate order submission", slog.String("uuid", order.UUID))
		return current.view(), false
	}
	s.orders[order.UUID] = newOrderEntity(order)
	s.logger.Debug("order added",
		slog.String("uuid", order.UUID),
		slog.String("symbol", order.Symbol),
		slog.String("type", string(order.Type)),
		slog.Int64("quantity", order.Quantity),
		slog.Int64("price", order.Price),
	)
	return order, true
}

// Get returns the order merged with its live state. It never mutates.
func (s *OrderStore) Get(uuid string) (domain.Order, bool) {
	e, ok := s.get(uuid)
	if !ok {
		return domain.Order{}, false
	}
	return e.view(), true
}

func (s *OrderStore) get(uuid string) (*orderEntity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.orders[uuid]
	return e, ok
}

// Cancel attempts to cancel the order with the given UUID.
//
// An unknown UUID or an already-cancelled order is a benign no-op. A PENDING
// order transitions to CANCELLED and a PARTIALLY_EXECUTED order to
// PARTIALLY_CANCELED, both via compare-and-swap so a concurrent match attempt
// cannot be raced. An order currently locked for processing yields
// ErrOrderLocked; the caller may retry once the matching pass releases it.
// Any other state yields ErrOrderNotCancellable.
func (s *OrderStore) Cancel(uuid string) error {
	e, ok := s.get(uuid)
	if !ok {
		s.logger.Debug("cancel for unknown order treated as success", slog.String("uuid", uuid))
		return nil
	}

	switch state := domain.OrderState(e.state.Load()); state {
	case domain.OrderStateCancelled, domain.OrderStatePartiallyCanceled:
		s.logger.Debug("order already cancelled", slog.String("uuid", uuid))
		return nil
	case domain.OrderStatePending, domain.OrderStatePartiallyExecuted:
		if e.cas(domain.OrderStatePending, domain.OrderStateCancelled) {
			s.logger.Debug("order cancelled", slog.String("uuid", uuid))
			return nil
		}
		if e.cas(domain.OrderStatePartiallyExecuted, domain.OrderStatePartiallyCanceled) {
			s.logger.Debug("order partially cancelled", slog.String("uuid", uuid))
			return nil
		}
		// The state moved under us; it can only have been claimed by a
		// matching pass or fully executed.
		current := domain.OrderState(e.state.Load())
		s.logger.Debug("cancel lost race",
			slog.String("uuid", uuid), slog.String("state", current.String()))
		if current.Processing() {
			return domain.ErrOrderLocked
		}
		return domain.ErrOrderNotCancellable
	case domain.OrderStateProcessPending, domain.OrderStateProcessPartiallyExecuted:
		s.logger.Debug("cancel refused, order locked for matching",
			slog.String("uuid", uuid), slog.String("state", state.String()))
		return domain.ErrOrderLocked
	default:
		s.logger.Debug("cancel refused",
			slog.String("uuid", uuid), slog.String("state", state.String()))
		return domain.ErrOrderNotCancellable
	}
}

// LockToProcess attempts to claim both sides of a prospective match. Each
// side is independently advanced PENDING->PROCESS_PENDING or
// PARTIALLY_EXECUTED->PROCESS_PARTIALLY_EXECUTED by compare-and-swap. If
// exactly one side was claimed, the claim is rolled back so neither side is
// left locked: the pairwise lock is all-or-nothing without a shared mutex.
//
// The resulting states of both sides are returned. Both states report
// Processing() only when the caller owns the pair and must follow up with
// UnlockProcessed on each side.
func (s *OrderStore) LockToProcess(sellUUID, buyUUID string) (domain.OrderState, domain.OrderState) {
	sell, sellOK := s.get(sellUUID)
	buy, buyOK := s.get(buyUUID)
	if !sellOK || !buyOK {
		// Book entries always refer to stored orders; treat a missing side
		// as unlockable.
		return s.stateOf(sell), s.stateOf(buy)
	}

	sellPrepared := prepare(sell)
	buyPrepared := prepare(buy)

	if sellPrepared != buyPrepared {
		rollback(sell)
		rollback(buy)
		s.logger.Debug("pairwise lock failed",
			slog.String("sellUuid", sellUUID),
			slog.String("buyUuid", buyUUID),
		)
	} else if sellPrepared {
		s.logger.Debug("orders locked for matching",
			slog.String("sellUuid", sellUUID),
			slog.String("buyUuid", buyUUID),
		)
	}

	return domain.OrderState(sell.state.Load()), domain.OrderState(buy.state.Load())
}

func (s *OrderStore) stateOf(e *orderEntity) domain.OrderState {
	if e == nil {
		return domain.OrderStateCancelled
	}
	return domain.OrderState(e.state.Load())
}

func prepare(e *orderEntity) bool {
	switch domain.OrderState(e.state.Load()) {
	case domain.OrderStatePending:
		return e.cas(domain.OrderStatePending, domain.OrderStateProcessPending)
	case domain.OrderStatePartiallyExecuted:
		return e.cas(domain.OrderStatePartiallyExecuted, domain.OrderStateProcessPartiallyExecuted)
	}
	return false
}

func rollback(e *orderEntity) {
	e.cas(domain.OrderStateProcessPending, domain.OrderStatePending)
	e.cas(domain.OrderStateProcessPartiallyExecuted, domain.OrderStatePartiallyExecuted)
}

// UnlockProcessed releases an order claimed by LockToProcess, setting the
// outcome of the matching round (EXECUTED or PARTIALLY_EXECUTED). Ownership
// is exclusive once locked, so the write is unconditional; it must only be
// called by the pass that holds the lock.
func (s *OrderStore) UnlockProcessed(uuid string, state domain.OrderState) {
	e, ok := s.get(uuid)
	if !ok {
		return
	}
	e.state.Store(int32(state))
	s.logger.Debug("order unlocked",
		slog.String("uuid", uuid), slog.String("state", state.String()))
}
