// Package broker defines the abstract collaborator interfaces the risk core
// talks to: order submission, market data and account snapshots. Real broker
// adapters live outside this module; the paper engine implements all three.
package broker

import (
	"context"
	"time"
)

type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// Opposite returns the closing side for a position opened on s.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// OrderType for submitted orders. Managed exits default to market.
type OrderType string

const (
	Market OrderType = "MARKET"
	Limit  OrderType = "LIMIT"
)

type OrderRequest struct {
	Symbol string // canonical EXCHANGE:SYMBOL
	Side   Side
	Qty    float64
	Type   OrderType
	Price  float64 // limit price, ignored for market orders
}

// Fill is a confirmed execution reported back by the broker or paper engine.
type Fill struct {
	OrderID string
	Symbol  string
	Side    Side
	Qty     float64
	Price   float64
	Time    time.Time
}

// AccountSnapshot feeds the account-level enforcement group.
type AccountSnapshot struct {
	Equity         float64
	OpenPositions  int
	DayRealizedPnL float64
}

type Broker interface {
	SubmitOrder(ctx context.Context, req OrderRequest) (orderID string, err error)
	CancelOrder(ctx context.Context, orderID string) error
}

type MarketData interface {
	LivePrice(ctx context.Context, symbol string) (float64, error)
	ATR(ctx context.Context, symbol string, period int, timeframe string) (float64, error)
}

type AccountProvider interface {
	Account(ctx context.Context) (AccountSnapshot, error)
}
