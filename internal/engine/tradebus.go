package engine

import (
	"log/slog"
	"sync"
	"time"

	"github.com/efreitasn/exchangesim/internal/domain"
)

// publishWait bounds how long a publish waits on one slow subscriber before
// dropping the trade for that subscriber.
const publishWait = 100 * time.Millisecond

// Subscription is one subscriber's view of the trade bus. Trades published
// after Subscribe are delivered on C; there is no replay of history. Close
// the subscription when done reading.
type Subscription struct {
	C <-chan domain.Trade

	id  int
	bus *TradeBus
}

// Close removes the subscription from the bus and closes C.
func (s *Subscription) Close() {
	s.bus.unsubscribe(s.id)
}

// subscriber owns one delivery channel. Its mutex serializes sends against
// the close in unsubscribe, so a channel is never closed mid-send.
type subscriber struct {
	mu     sync.Mutex
	ch     chan domain.Trade
	closed bool
}

// deliver sends the trade, waiting up to publishWait on a full buffer. It
// reports whether the trade was delivered.
func (s *subscriber) deliver(trade domain.Trade) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return true
	}
	select {
	case s.ch <- trade:
		return true
	default:
	}
	select {
	case s.ch <- trade:
		return true
	case <-time.After(publishWait):
		return false
	}
}

func (s *subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// TradeBus broadcasts executed trades to any number of subscribers. Each
// subscriber has its own buffered channel; a slow subscriber delays a
// publisher by at most publishWait and never blocks other bus operations,
// since the registry lock is only held to snapshot the subscriber list.
type TradeBus struct {
	mu     sync.Mutex
	subs   map[int]*subscriber
	nextID int
	buffer int
	logger *slog.Logger
}

// NewTradeBus creates a TradeBus whose subscriber channels buffer up to
// buffer trades.
func NewTradeBus(buffer int, logger *slog.Logger) *TradeBus {
	if buffer <= 0 {
		buffer = 256
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TradeBus{
		subs:   make(map[int]*subscriber),
		buffer: buffer,
		logger: logger,
	}
}

// Subscribe registers a new subscriber. The subscription starts receiving
// trades published from this point forward.
func (b *TradeBus) Subscribe() *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &subscriber{ch: make(chan domain.Trade, b.buffer)}
	id := b.nextID
	b.nextID++
	b.subs[id] = sub
	return &Subscription{C: sub.ch, id: id, bus: b}
}

func (b *TradeBus) unsubscribe(id int) {
	b.mu.Lock()
	sub, ok := b.subs[id]
	if ok {
		delete(b.subs, id)
	}
	b.mu.Unlock()

	if ok {
		sub.close()
	}
}

// Publish delivers the trade to every subscriber live at the time of the
// call. Delivery into a full subscriber buffer is retried for up to
// publishWait, after which the trade is dropped for that subscriber with a
// warning. Delivery happens outside the registry lock, so a stalled
// subscriber never delays Subscribe, Close, or fan-out by other publishers.
func (b *TradeBus) Publish(trade domain.Trade) {
	b.mu.Lock()
	ids := make([]int, 0, len(b.subs))
	subs := make([]*subscriber, 0, len(b.subs))
	for id, sub := range b.subs {
		ids = append(ids, id)
		subs = append(subs, sub)
	}
	b.mu.Unlock()

	for i, sub := range subs {
		if !sub.deliver(trade) {
			b.logger.Warn("trade dropped for slow subscriber",
				slog.Int("subscriber", ids[i]),
				slog.String("uuid", trade.UUID),
			)
		}
	}
}

// SubscriberCount returns the number of live subscribers.
func (b *TradeBus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
