package service

import (
	"errors"
	"testing"

	"github.com/efreitasn/exchangesim/internal/domain"
	"github.com/efreitasn/exchangesim/internal/engine"
	"github.com/efreitasn/exchangesim/internal/store"
)

func newTestOrderService() (*OrderService, *engine.BookRegistry) {
	books := engine.NewBookRegistry()
	return NewOrderService(store.NewOrderStore(nil), books), books
}

func validBuy() SubmitOrderRequest {
	return SubmitOrderRequest{
		UUID:     "o-1",
		Symbol:   "GOOG",
		Quantity: 10,
		Price:    25,
	}
}

func TestSubmitBuy(t *testing.T) {
	svc, books := newTestOrderService()

	order, err := svc.SubmitBuy(validBuy())
	if err != nil {
		t.Fatalf("submit error: %v", err)
	}
	if order.Type != domain.OrderTypeBuy {
		t.Errorf("type = %s, want BUY", order.Type)
	}
	if order.State != domain.OrderStatePending {
		t.Errorf("state = %s, want PENDING", order.State)
	}
	if order.Registered.IsZero() {
		t.Error("expected registration timestamp to be set")
	}

	book, ok := books.Get("GOOG")
	if !ok {
		t.Fatal("expected a GOOG book after first order")
	}
	if book.BuyCount() != 1 {
		t.Errorf("buy count = %d, want 1", book.BuyCount())
	}
}

func TestSubmitSell(t *testing.T) {
	svc, books := newTestOrderService()

	req := validBuy()
	order, err := svc.SubmitSell(req)
	if err != nil {
		t.Fatalf("submit error: %v", err)
	}
	if order.Type != domain.OrderTypeSell {
		t.Errorf("type = %s, want SELL", order.Type)
	}

	book, _ := books.Get("GOOG")
	if book.SellCount() != 1 {
		t.Errorf("sell count = %d, want 1", book.SellCount())
	}
}

func TestSubmit_DuplicateUUIDIsIdempotent(t *testing.T) {
	svc, books := newTestOrderService()

	first, err := svc.SubmitBuy(validBuy())
	if err != nil {
		t.Fatalf("submit error: %v", err)
	}

	retry := validBuy()
	retry.Quantity = 999
	second, err := svc.SubmitBuy(retry)
	if err != nil {
		t.Fatalf("retry error: %v", err)
	}
	if second.Quantity != first.Quantity {
		t.Errorf("retry returned quantity %d, want the stored %d", second.Quantity, first.Quantity)
	}

	// The book must not gain a second entry for the same order.
	book, _ := books.Get("GOOG")
	if book.BuyCount() != 1 {
		t.Errorf("buy count = %d, want 1", book.BuyCount())
	}
}

func TestSubmit_Validation(t *testing.T) {
	svc, _ := newTestOrderService()

	tests := []struct {
		name   string
		mutate func(*SubmitOrderRequest)
	}{
		{"empty uuid", func(r *SubmitOrderRequest) { r.UUID = "" }},
		{"empty symbol", func(r *SubmitOrderRequest) { r.Symbol = "" }},
		{"lowercase symbol", func(r *SubmitOrderRequest) { r.Symbol = "goog" }},
		{"symbol too long", func(r *SubmitOrderRequest) { r.Symbol = "ABCDEFGHIJK" }},
		{"zero quantity", func(r *SubmitOrderRequest) { r.Quantity = 0 }},
		{"negative quantity", func(r *SubmitOrderRequest) { r.Quantity = -5 }},
		{"zero price", func(r *SubmitOrderRequest) { r.Price = 0 }},
		{"negative price", func(r *SubmitOrderRequest) { r.Price = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validBuy()
			tt.mutate(&req)

			_, err := svc.SubmitBuy(req)
			var verr *domain.ValidationError
			if !errors.As(err, &verr) {
				t.Errorf("got %v, want a ValidationError", err)
			}
		})
	}
}

func TestCancel(t *testing.T) {
	svc, _ := newTestOrderService()

	if _, err := svc.SubmitBuy(validBuy()); err != nil {
		t.Fatalf("submit error: %v", err)
	}
	if err := svc.Cancel("o-1"); err != nil {
		t.Fatalf("cancel error: %v", err)
	}

	order, ok := svc.Get("o-1")
	if !ok {
		t.Fatal("expected order to be found")
	}
	if order.State != domain.OrderStateCancelled {
		t.Errorf("state = %s, want CANCELLED", order.State)
	}

	// Cancelling an unknown order is a benign no-op.
	if err := svc.Cancel("missing"); err != nil {
		t.Errorf("cancel of unknown uuid: got %v, want nil", err)
	}
}

func TestGet_Missing(t *testing.T) {
	svc, _ := newTestOrderService()
	if _, ok := svc.Get("missing"); ok {
		t.Error("expected missing order to not be found")
	}
}
