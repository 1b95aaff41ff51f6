// Package paper is an in-process execution backend: it fills market orders
// at the last stored price, tracks net positions and realized PnL, and
// serves live prices and ATR to the managed-exit monitor. It implements
// every collaborator interface the risk core consumes, which makes it both
// the demo backend for the CLI and the workhorse for tests.
package paper

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tradeops/riskgate/broker"
	"github.com/tradeops/riskgate/indicators"
	"github.com/tradeops/riskgate/internal/id"
)

// FillListener is notified after an order fills. Called outside the engine
// lock to avoid deadlocks with callers that immediately query the engine.
type FillListener interface {
	OnFill(broker.Fill)
}

const maxCandleHistory = 500

type position struct {
	side  broker.Side
	qty   float64
	entry float64
}

type Engine struct {
	mu        sync.Mutex
	prices    map[string]float64
	candles   map[string][]indicators.Candle
	positions map[string]*position // net position per symbol
	fills     map[string]broker.Fill

	equity      float64
	dayRealized float64
	listener    FillListener
}

func NewEngine(startEquity float64) *Engine {
	return &Engine{
		prices:    make(map[string]float64),
		candles:   make(map[string][]indicators.Candle),
		positions: make(map[string]*position),
		fills:     make(map[string]broker.Fill),
		equity:    startEquity,
	}
}

func (e *Engine) SetFillListener(l FillListener) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listener = l
}

// SetPrice stores the current price for a symbol.
func (e *Engine) SetPrice(symbol string, px float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.prices[symbol] = px
}

// AppendCandle extends the symbol's bar history used for ATR.
func (e *Engine) AppendCandle(symbol string, c indicators.Candle) {
	e.mu.Lock()
	defer e.mu.Unlock()
	h := append(e.candles[symbol], c)
	if len(h) > maxCandleHistory {
		h = h[len(h)-maxCandleHistory:]
	}
	e.candles[symbol] = h
}

func (e *Engine) LivePrice(ctx context.Context, symbol string) (float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	px, ok := e.prices[symbol]
	if !ok {
		return 0, fmt.Errorf("no price for %q", symbol)
	}
	return px, nil
}

// ATR computes over the single stored bar history per symbol; the paper
// engine does not maintain separate histories per timeframe.
func (e *Engine) ATR(ctx context.Context, symbol string, period int, timeframe string) (float64, error) {
	e.mu.Lock()
	h := e.candles[symbol]
	e.mu.Unlock()
	return indicators.ATRFunc(h, period)
}

// SubmitOrder fills immediately at the stored price. Orders on the opposite
// side of an existing net position reduce it and realize PnL; same-side
// orders extend it at a blended entry.
func (e *Engine) SubmitOrder(ctx context.Context, req broker.OrderRequest) (string, error) {
	if req.Qty <= 0 {
		return "", fmt.Errorf("order qty must be positive, got %v", req.Qty)
	}

	e.mu.Lock()
	px, ok := e.prices[req.Symbol]
	if !ok {
		e.mu.Unlock()
		return "", fmt.Errorf("no price for %q", req.Symbol)
	}

	orderID := id.New()
	fill := broker.Fill{
		OrderID: orderID,
		Symbol:  req.Symbol,
		Side:    req.Side,
		Qty:     req.Qty,
		Price:   px,
		Time:    time.Now().UTC(),
	}
	e.fills[orderID] = fill
	e.apply(fill)

	listener := e.listener
	e.mu.Unlock()

	if listener != nil {
		listener.OnFill(fill)
	}
	return orderID, nil
}

// CancelOrder exists to satisfy the broker contract; paper market orders
// fill synchronously, so there is never anything in flight to cancel.
func (e *Engine) CancelOrder(ctx context.Context, orderID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.fills[orderID]; ok {
		return fmt.Errorf("order %s already filled", orderID)
	}
	return fmt.Errorf("order %s not found", orderID)
}

func (e *Engine) Account(ctx context.Context) (broker.AccountSnapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	open := 0
	for _, p := range e.positions {
		if p.qty > 0 {
			open++
		}
	}
	return broker.AccountSnapshot{
		Equity:         e.equity,
		OpenPositions:  open,
		DayRealizedPnL: e.dayRealized,
	}, nil
}

// ResetDay zeroes the realized-PnL counter at a day boundary.
func (e *Engine) ResetDay() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.dayRealized = 0
}

// Fill returns the recorded fill for an order id.
func (e *Engine) Fill(orderID string) (broker.Fill, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	f, ok := e.fills[orderID]
	return f, ok
}

// apply nets a fill into the symbol's position. Caller holds the lock.
func (e *Engine) apply(f broker.Fill) {
	p := e.positions[f.Symbol]
	if p == nil || p.qty == 0 {
		e.positions[f.Symbol] = &position{side: f.Side, qty: f.Qty, entry: f.Price}
		return
	}

	if p.side == f.Side {
		// Extend at blended entry.
		total := p.qty + f.Qty
		p.entry = (p.entry*p.qty + f.Price*f.Qty) / total
		p.qty = total
		return
	}

	// Opposite side reduces, possibly flips.
	closed := f.Qty
	if closed > p.qty {
		closed = p.qty
	}
	pnl := (f.Price - p.entry) * closed
	if p.side == broker.Sell {
		pnl = -pnl
	}
	e.equity += pnl
	e.dayRealized += pnl

	remainder := f.Qty - p.qty
	p.qty -= closed
	if p.qty == 0 {
		if remainder > 0 {
			e.positions[f.Symbol] = &position{side: f.Side, qty: remainder, entry: f.Price}
		} else {
			delete(e.positions, f.Symbol)
		}
	}
}
