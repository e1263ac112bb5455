package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/efreitasn/exchangesim/internal/domain"
	"github.com/efreitasn/exchangesim/internal/engine"
	"github.com/efreitasn/exchangesim/internal/service"
	"github.com/efreitasn/exchangesim/internal/store"
	"github.com/gorilla/websocket"
)

// testServer wires the full stack behind an httptest server: stores, books,
// bus, matcher, services and router, plus the trade recording consumer.
type testServer struct {
	srv     *httptest.Server
	orders  *store.OrderStore
	trades  *store.TradeStore
	books   *engine.BookRegistry
	bus     *engine.TradeBus
	matcher *engine.Matcher
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	orders := store.NewOrderStore(logger)
	trades := store.NewTradeStore(logger)
	books := engine.NewBookRegistry()
	bus := engine.NewTradeBus(16, logger)
	matcher := engine.NewMatcher(time.Second, books, orders, bus, logger)

	orderSvc := service.NewOrderService(orders, books)
	tradeSvc := service.NewTradeService(bus, trades)

	ctx, cancel := context.WithCancel(context.Background())
	storeSub := bus.Subscribe()
	go trades.Run(ctx, storeSub.C)

	srv := httptest.NewServer(NewRouter(orderSvc, tradeSvc, logger))
	t.Cleanup(func() {
		srv.Close()
		cancel()
		storeSub.Close()
	})

	return &testServer{
		srv:     srv,
		orders:  orders,
		trades:  trades,
		books:   books,
		bus:     bus,
		matcher: matcher,
	}
}

func (ts *testServer) postJSON(t *testing.T, path, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(ts.srv.URL+path, "application/json", bytes.NewBufferString(body))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	return resp
}

func (ts *testServer) do(t *testing.T, method, path string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, ts.srv.URL+path, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

func decodeOrder(t *testing.T, resp *http.Response) domain.Order {
	t.Helper()
	defer resp.Body.Close()
	var order domain.Order
	if err := json.NewDecoder(resp.Body).Decode(&order); err != nil {
		t.Fatalf("decode order: %v", err)
	}
	return order
}

func TestPostBuy(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.postJSON(t, "/orders/buy",
		`{"uuid":"o-1","symbol":"GOOG","quantity":10,"price":25}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}
	if loc := resp.Header.Get("Location"); loc != "/orders/o-1" {
		t.Errorf("Location = %q, want /orders/o-1", loc)
	}

	order := decodeOrder(t, resp)
	if order.UUID != "o-1" || order.Type != domain.OrderTypeBuy {
		t.Errorf("order = %+v, want uuid o-1 type BUY", order)
	}
	if order.State != domain.OrderStatePending {
		t.Errorf("state = %s, want PENDING", order.State)
	}
}

func TestPostSell(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.postJSON(t, "/orders/sell",
		`{"uuid":"o-1","symbol":"GOOG","quantity":10,"price":25}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}
	if order := decodeOrder(t, resp); order.Type != domain.OrderTypeSell {
		t.Errorf("type = %s, want SELL", order.Type)
	}
}

func TestPostOrder_BadRequests(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{`},
		{"unknown field", `{"uuid":"o-1","symbol":"GOOG","quantity":10,"price":25,"side":"buy"}`},
		{"missing uuid", `{"symbol":"GOOG","quantity":10,"price":25}`},
		{"bad symbol", `{"uuid":"o-1","symbol":"goog","quantity":10,"price":25}`},
		{"zero quantity", `{"uuid":"o-1","symbol":"GOOG","quantity":0,"price":25}`},
		{"negative price", `{"uuid":"o-1","symbol":"GOOG","quantity":10,"price":-1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := ts.postJSON(t, "/orders/buy", tt.body)
			resp.Body.Close()
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", resp.StatusCode)
			}
		})
	}
}

func TestPostOrder_RequiresJSONContentType(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Post(ts.srv.URL+"/orders/buy", "text/plain",
		strings.NewReader(`{"uuid":"o-1","symbol":"GOOG","quantity":10,"price":25}`))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestGetOrder(t *testing.T) {
	ts := newTestServer(t)

	ts.postJSON(t, "/orders/buy",
		`{"uuid":"o-1","symbol":"GOOG","quantity":10,"price":25}`).Body.Close()

	resp := ts.do(t, http.MethodGet, "/orders/o-1")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if order := decodeOrder(t, resp); order.State != domain.OrderStatePending {
		t.Errorf("state = %s, want PENDING", order.State)
	}

	resp = ts.do(t, http.MethodGet, "/orders/missing")
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestDeleteOrder(t *testing.T) {
	ts := newTestServer(t)

	ts.postJSON(t, "/orders/buy",
		`{"uuid":"o-1","symbol":"GOOG","quantity":10,"price":25}`).Body.Close()

	resp := ts.do(t, http.MethodDelete, "/orders/o-1")
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	resp = ts.do(t, http.MethodGet, "/orders/o-1")
	if order := decodeOrder(t, resp); order.State != domain.OrderStateCancelled {
		t.Errorf("state = %s, want CANCELLED", order.State)
	}

	// Unknown orders cancel without error.
	resp = ts.do(t, http.MethodDelete, "/orders/missing")
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestDeleteOrder_Locked(t *testing.T) {
	ts := newTestServer(t)

	ts.postJSON(t, "/orders/sell",
		`{"uuid":"s-1","symbol":"GOOG","quantity":10,"price":25}`).Body.Close()
	ts.postJSON(t, "/orders/buy",
		`{"uuid":"b-1","symbol":"GOOG","quantity":10,"price":25}`).Body.Close()

	// Claim the pair the way an in-flight matching pass would.
	sellState, buyState := ts.orders.LockToProcess("s-1", "b-1")
	if !sellState.Processing() || !buyState.Processing() {
		t.Fatalf("lock failed: sell=%s buy=%s", sellState, buyState)
	}

	resp := ts.do(t, http.MethodDelete, "/orders/s-1")
	resp.Body.Close()
	if resp.StatusCode != http.StatusLocked {
		t.Errorf("status = %d, want 423", resp.StatusCode)
	}
}

func TestDeleteOrder_Executed(t *testing.T) {
	ts := newTestServer(t)

	ts.postJSON(t, "/orders/sell",
		`{"uuid":"s-1","symbol":"GOOG","quantity":10,"price":25}`).Body.Close()
	ts.postJSON(t, "/orders/buy",
		`{"uuid":"b-1","symbol":"GOOG","quantity":10,"price":25}`).Body.Close()
	ts.matcher.RunPass()

	resp := ts.do(t, http.MethodDelete, "/orders/s-1")
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", resp.StatusCode)
	}
}

func TestGetTrade(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, http.MethodGet, "/trades/missing")
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}

	trade := domain.NewTrade("GOOG", 25, 10, "s-1", "b-1")
	ts.trades.Add(trade)

	resp = ts.do(t, http.MethodGet, "/trades/"+trade.UUID)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var got domain.Trade
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode trade: %v", err)
	}
	if got.UUID != trade.UUID || got.Price != 25 {
		t.Errorf("got %+v, want %+v", got, trade)
	}
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, http.MethodGet, "/healthz")
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestTradeStream(t *testing.T) {
	ts := newTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(ts.srv.URL, "http") + "/trades"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if resp != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	trade := domain.NewTrade("GOOG", 25, 10, "s-1", "b-1")
	ts.bus.Publish(trade)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got domain.Trade
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("read trade: %v", err)
	}
	if got.UUID != trade.UUID || got.Quantity != 10 || got.Price != 25 {
		t.Errorf("got %+v, want %+v", got, trade)
	}
}

// TestEndToEnd submits a crossing pair over HTTP, runs a matching pass, and
// observes the execution through every read surface: order states, the
// WebSocket feed, and the recorded trade endpoint.
func TestEndToEnd(t *testing.T) {
	ts := newTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(ts.srv.URL, "http") + "/trades"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if resp != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	ts.postJSON(t, "/orders/buy",
		`{"uuid":"b-1","symbol":"GOOG","quantity":50,"price":27}`).Body.Close()
	ts.postJSON(t, "/orders/sell",
		`{"uuid":"s-1","symbol":"GOOG","quantity":15,"price":27}`).Body.Close()

	ts.matcher.RunPass()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var trade domain.Trade
	if err := conn.ReadJSON(&trade); err != nil {
		t.Fatalf("read trade: %v", err)
	}
	if trade.Quantity != 15 || trade.Price != 27 {
		t.Errorf("trade = qty %d at %d, want qty 15 at 27", trade.Quantity, trade.Price)
	}

	r := ts.do(t, http.MethodGet, "/orders/s-1")
	if order := decodeOrder(t, r); order.State != domain.OrderStateExecuted {
		t.Errorf("sell state = %s, want EXECUTED", order.State)
	}
	r = ts.do(t, http.MethodGet, "/orders/b-1")
	if order := decodeOrder(t, r); order.State != domain.OrderStatePartiallyExecuted {
		t.Errorf("buy state = %s, want PARTIALLY_EXECUTED", order.State)
	}

	// The recording consumer runs off the same bus; wait for it to catch up.
	deadline := time.After(2 * time.Second)
	for ts.trades.Len() == 0 {
		select {
		case <-deadline:
			t.Fatal("trade never recorded")
		case <-time.After(5 * time.Millisecond):
		}
	}
	r = ts.do(t, http.MethodGet, "/trades/"+trade.UUID)
	r.Body.Close()
	if r.StatusCode != http.StatusOK {
		t.Errorf("recorded trade status = %d, want 200", r.StatusCode)
	}
}
