package domain

import (
	"time"

	"github.com/google/uuid"
)

// Trade represents a matched execution between a sell and a buy order.
// Trades are append-only facts: never updated, never deleted.
type Trade struct {
	UUID          string    `json:"uuid"`
	Symbol        string    `json:"symbol"`
	Price         int64     `json:"price"`
	Quantity      int64     `json:"quantity"`
	SellOrderUUID string    `json:"sellOrderUuid"`
	BuyOrderUUID  string    `json:"buyOrderUuid"`
	Timestamp     time.Time `json:"timestamp"`
}

// NewTrade creates a trade with a generated UUID and the current timestamp.
func NewTrade(symbol string, price, quantity int64, sellOrderUUID, buyOrderUUID string) Trade {
	return Trade{
		UUID:          uuid.NewString(),
		Symbol:        symbol,
		Price:         price,
		Quantity:      quantity,
		SellOrderUUID: sellOrderUUID,
		BuyOrderUUID:  buyOrderUUID,
		Timestamp:     time.Now(),
	}
}
