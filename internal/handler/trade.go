package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/efreitasn/exchangesim/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

// TradeHandler handles the trade lookup endpoint and the WebSocket trade
// feed.
type TradeHandler struct {
	tradeSvc *service.TradeService
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewTradeHandler creates a new TradeHandler.
func NewTradeHandler(tradeSvc *service.TradeService, logger *slog.Logger) *TradeHandler {
	return &TradeHandler{
		tradeSvc: tradeSvc,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The simulator has no browser-facing auth; any origin may read
			// the public trade feed.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger: logger,
	}
}

// Get handles GET /trades/{uuid}.
func (h *TradeHandler) Get(w http.ResponseWriter, r *http.Request) {
	uuid := chi.URLParam(r, "uuid")
	trade, ok := h.tradeSvc.Get(uuid)
	if !ok {
		WriteError(w, http.StatusNotFound, "not_found", "trade not found")
		return
	}
	WriteJSON(w, http.StatusOK, trade)
}

// Stream handles GET /trades: upgrades to a WebSocket session and pushes
// every trade executed after the session subscribed, one JSON message per
// trade, until the client disconnects.
func (h *TradeHandler) Stream(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		h.logger.Debug("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	sub := h.tradeSvc.Subscribe()
	defer sub.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Drain client frames so closes and pings are noticed.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case trade, ok := <-sub.C:
			if !ok {
				return
			}
			if err := conn.WriteJSON(trade); err != nil {
				h.logger.Debug("trade feed write failed", slog.String("error", err.Error()))
				return
			}
		}
	}
}
