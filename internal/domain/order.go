package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// OrderType indicates whether an order buys or sells.
type OrderType string

const (
	OrderTypeBuy  OrderType = "BUY"
	OrderTypeSell OrderType = "SELL"
)

// OrderState represents the lifecycle state of an order. It is backed by an
// integer so the store can keep it in an atomic cell and advance it with
// compare-and-swap.
//
// Transitions:
//
//	PENDING -> PROCESS_PENDING -> PENDING | PARTIALLY_EXECUTED | EXECUTED
//	PARTIALLY_EXECUTED -> PROCESS_PARTIALLY_EXECUTED -> PARTIALLY_EXECUTED | EXECUTED
//	PENDING -> CANCELLED
//	PARTIALLY_EXECUTED -> PARTIALLY_CANCELED
//
// EXECUTED, CANCELLED and PARTIALLY_CANCELED are terminal.
type OrderState int32

const (
	OrderStatePending OrderState = iota
	OrderStateProcessPending
	OrderStatePartiallyExecuted
	OrderStateProcessPartiallyExecuted
	OrderStateCancelled
	OrderStatePartiallyCanceled
	OrderStateExecuted
)

var orderStateNames = map[OrderState]string{
	OrderStatePending:                  "PENDING",
	OrderStateProcessPending:           "PROCESS_PENDING",
	OrderStatePartiallyExecuted:        "PARTIALLY_EXECUTED",
	OrderStateProcessPartiallyExecuted: "PROCESS_PARTIALLY_EXECUTED",
	OrderStateCancelled:                "CANCELLED",
	OrderStatePartiallyCanceled:        "PARTIALLY_CANCELED",
	OrderStateExecuted:                 "EXECUTED",
}

func (s OrderState) String() string {
	if name, ok := orderStateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("OrderState(%d)", int32(s))
}

// Processing reports whether the state marks the order as claimed by an
// in-flight match attempt.
func (s OrderState) Processing() bool {
	return s == OrderStateProcessPending || s == OrderStateProcessPartiallyExecuted
}

// Terminal reports whether no further transitions are possible.
func (s OrderState) Terminal() bool {
	switch s {
	case OrderStateExecuted, OrderStateCancelled, OrderStatePartiallyCanceled:
		return true
	}
	return false
}

// MarshalJSON encodes the state as its name.
func (s OrderState) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// UnmarshalJSON decodes a state name from a JSON string.
func (s *OrderState) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return fmt.Errorf("order state must be a string: %w", err)
	}
	for state, n := range orderStateNames {
		if n == name {
			*s = state
			return nil
		}
	}
	return fmt.Errorf("unknown order state: %q", name)
}

// Order represents a limit buy or sell instruction. Orders are immutable
// values: the canonical mutable state lives in the order store, and views
// handed to callers carry a snapshot of it in State.
type Order struct {
	UUID       string     `json:"uuid"`
	Symbol     string     `json:"symbol"`
	Quantity   int64      `json:"quantity"`
	Price      int64      `json:"price"`
	Type       OrderType  `json:"type"`
	Registered time.Time  `json:"registered"`
	State      OrderState `json:"state"`
}

// NewBuyOrder creates a PENDING buy order registered now.
func NewBuyOrder(uuid, symbol string, quantity, price int64) Order {
	return newOrder(uuid, symbol, quantity, price, OrderTypeBuy)
}

// NewSellOrder creates a PENDING sell order registered now.
func NewSellOrder(uuid, symbol string, quantity, price int64) Order {
	return newOrder(uuid, symbol, quantity, price, OrderTypeSell)
}

func newOrder(uuid, symbol string, quantity, price int64, typ OrderType) Order {
	return Order{
		UUID:       uuid,
		Symbol:     symbol,
		Quantity:   quantity,
		Price:      price,
		Type:       typ,
		Registered: time.Now(),
		State:      OrderStatePending,
	}
}

// WithState returns a copy of the order carrying the given state.
func (o Order) WithState(state OrderState) Order {
	o.State = state
	return o
}
