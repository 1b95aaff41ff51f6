package exits

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/tradeops/riskgate/broker"
	"github.com/tradeops/riskgate/internal/id"
	"github.com/tradeops/riskgate/journal"
	"github.com/tradeops/riskgate/metrics"
	"github.com/tradeops/riskgate/risk"
)

// Status of a managed position.
//
// Transitions: ACTIVE <-> PAUSED (operator toggle), ACTIVE|PAUSED -> EXITING
// (stop breach or ExitNow), EXITING -> EXITED (exit fill confirmed, terminal).
type Status string

const (
	Active  Status = "ACTIVE"
	Paused  Status = "PAUSED"
	Exiting Status = "EXITING"
	Exited  Status = "EXITED"
)

var ErrPositionNotFound = errors.New("position not found")

// Exit triggers, used for journal events and metrics labels.
const (
	TriggerStopLoss     = "stop_loss"
	TriggerTrailingStop = "trailing_stop"
	TriggerManual       = "manual"
)

// Position is one confirmed entry under managed-exit monitoring. Created
// exactly once per entry fill; terminal once the exit order fills.
type Position struct {
	ID       string
	ScopeKey risk.ScopeKey
	Side     broker.Side
	Qty      float64
	Entry    float64
	Spec     RiskSpec
	Status   Status

	BestFavorable  float64
	StopPrice      float64 // current stop computed from entry, 0 until first tick
	TrailPrice     float64 // 0 until trailing activates
	TrailingActive bool
	ExitOrderID    string
	OpenedAt       time.Time
}

// legal transitions; everything else is a programming defect.
var transitions = map[Status][]Status{
	Active:  {Paused, Exiting},
	Paused:  {Active, Exiting},
	Exiting: {Exited},
}

func canTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Monitor owns all managed positions and drives their price evaluation. One
// Tick walks every ACTIVE position; a failure evaluating one position never
// stops the others.
type Monitor struct {
	mu        sync.Mutex
	positions map[string]*Position

	broker  broker.Broker
	market  broker.MarketData
	journal journal.Journal

	callTimeout time.Duration
	now         func() time.Time
}

func NewMonitor(b broker.Broker, m broker.MarketData, j journal.Journal) *Monitor {
	if j == nil {
		j = journal.Nop{}
	}
	return &Monitor{
		positions:   make(map[string]*Position),
		broker:      b,
		market:      m,
		journal:     j,
		callTimeout: 5 * time.Second,
		now:         time.Now,
	}
}

// Track registers a confirmed entry fill as a managed position. The spec is
// normalized before use; structural problems are rejected.
func (m *Monitor) Track(key risk.ScopeKey, fill broker.Fill, spec RiskSpec) (*Position, error) {
	spec = Normalize(spec)
	if err := Validate(spec); err != nil {
		return nil, err
	}

	p := &Position{
		ID:            id.New(),
		ScopeKey:      key,
		Side:          fill.Side,
		Qty:           fill.Qty,
		Entry:         fill.Price,
		Spec:          spec,
		Status:        Active,
		BestFavorable: fill.Price,
		OpenedAt:      fill.Time,
	}

	m.mu.Lock()
	m.positions[p.ID] = p
	n := len(m.positions)
	m.mu.Unlock()

	metrics.SetActivePositions(n)
	return p, nil
}

// Get returns a copy of the position, if known.
func (m *Monitor) Get(positionID string) (Position, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.positions[positionID]
	if !ok {
		return Position{}, false
	}
	return *p, true
}

// Pause suspends price evaluation for a position. Its prices are still the
// market's problem; nothing about the stop state changes while paused.
func (m *Monitor) Pause(positionID string) error {
	return m.setStatus(positionID, Paused)
}

// Resume re-enables price evaluation.
func (m *Monitor) Resume(positionID string) error {
	return m.setStatus(positionID, Active)
}

func (m *Monitor) setStatus(positionID string, to Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.positions[positionID]
	if !ok {
		return ErrPositionNotFound
	}
	if !canTransition(p.Status, to) {
		return fmt.Errorf("cannot move position %s from %s to %s", positionID, p.Status, to)
	}
	p.Status = to
	return nil
}

// UpdateSpec replaces a position's risk spec. Cascades are auto-corrected by
// Normalize; structurally invalid specs are rejected with InvalidSpecError
// and the stored spec is untouched. Not permitted once an exit is in flight.
func (m *Monitor) UpdateSpec(positionID string, spec RiskSpec) error {
	spec = Normalize(spec)
	if err := Validate(spec); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.positions[positionID]
	if !ok {
		return ErrPositionNotFound
	}
	if p.Status == Exiting || p.Status == Exited {
		return fmt.Errorf("cannot update spec for position %s in status %s", positionID, p.Status)
	}
	p.Spec = spec
	if !spec.TrailingStop.Enabled {
		p.TrailingActive = false
		p.TrailPrice = 0
	}
	return nil
}

// ExitNow forces an immediate market exit regardless of price. On submission
// failure the position stays where it was and the caller gets the error.
func (m *Monitor) ExitNow(ctx context.Context, positionID string) error {
	m.mu.Lock()
	p, ok := m.positions[positionID]
	if !ok {
		m.mu.Unlock()
		return ErrPositionNotFound
	}
	if !canTransition(p.Status, Exiting) {
		status := p.Status
		m.mu.Unlock()
		return fmt.Errorf("cannot exit position %s in status %s", positionID, status)
	}
	prev := p.Status
	p.Status = Exiting
	snapshot := *p
	m.mu.Unlock()

	if err := m.submitExit(ctx, snapshot, TriggerManual); err != nil {
		m.mu.Lock()
		if cur, ok := m.positions[positionID]; ok && cur.Status == Exiting {
			cur.Status = prev
		}
		m.mu.Unlock()
		return err
	}
	return nil
}

// OnExitFill marks the position whose exit order filled as EXITED and drops
// it from monitoring. EXITED is terminal; keeping dead entries around would
// grow the table without bound on a long-running monitor.
func (m *Monitor) OnExitFill(orderID string) {
	m.mu.Lock()
	for pid, p := range m.positions {
		if p.ExitOrderID == orderID && p.Status == Exiting {
			p.Status = Exited
			delete(m.positions, pid)
		}
	}
	n := len(m.positions)
	m.mu.Unlock()
	metrics.SetActivePositions(n)
}

// Tick evaluates every ACTIVE position against current prices. Each position
// is isolated: an evaluation panic or collaborator failure skips only that
// position for this tick.
func (m *Monitor) Tick(ctx context.Context) {
	m.mu.Lock()
	ids := make([]string, 0, len(m.positions))
	for pid, p := range m.positions {
		if p.Status == Active {
			ids = append(ids, pid)
		}
	}
	m.mu.Unlock()

	for _, pid := range ids {
		m.evaluateOne(ctx, pid)
	}
}

// Run drives Tick on a fixed cadence until the context is cancelled.
func (m *Monitor) Run(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			m.Tick(ctx)
		}
	}
}

func (m *Monitor) evaluateOne(ctx context.Context, positionID string) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("exits: position %s evaluation panic: %v", positionID, r)
		}
	}()

	m.mu.Lock()
	p, ok := m.positions[positionID]
	if !ok || p.Status != Active {
		m.mu.Unlock()
		return
	}
	snapshot := *p
	m.mu.Unlock()

	cctx, cancel := context.WithTimeout(ctx, m.callTimeout)
	defer cancel()

	price, err := m.market.LivePrice(cctx, snapshot.ScopeKey.Symbol)
	if err != nil {
		// Price-feed trouble never changes position status; the tick is
		// simply skipped and retried on the next one.
		return
	}

	eval, err := m.evaluatePrice(cctx, snapshot, price)
	if err != nil {
		// ATR unavailable etc. Same treatment as a missing price.
		return
	}

	m.mu.Lock()
	p, ok = m.positions[positionID]
	if !ok || p.Status != Active {
		// Operator moved it while we were computing; drop this result.
		m.mu.Unlock()
		return
	}
	p.BestFavorable = eval.bestFavorable
	p.StopPrice = eval.stopPrice
	p.TrailPrice = eval.trailPrice
	p.TrailingActive = eval.trailingActive
	if !eval.breached {
		m.mu.Unlock()
		return
	}
	p.Status = Exiting
	snapshot = *p
	m.mu.Unlock()

	if err := m.submitExit(ctx, snapshot, eval.trigger); err != nil {
		// Keep the position ACTIVE so the breach is re-evaluated and the
		// submission retried on the next tick.
		m.mu.Lock()
		if cur, ok := m.positions[positionID]; ok && cur.Status == Exiting {
			cur.Status = Active
		}
		m.mu.Unlock()

		_ = m.journal.RecordEvent(journal.Event{
			Category: journal.CategoryOrder,
			Level:    journal.LevelError,
			ScopeKey: snapshot.ScopeKey.String(),
			Code:     "EXIT_SUBMIT_FAILED",
			Message:  err.Error(),
			Time:     m.now().UTC(),
		})
	}
}

type tickResult struct {
	bestFavorable  float64
	stopPrice      float64
	trailPrice     float64
	trailingActive bool
	breached       bool
	trigger        string
}

// evaluatePrice applies one price observation to a position snapshot. Pure
// with respect to monitor state: rerunning it with the same inputs yields
// the same result, which is what makes crash-recovery replays safe.
func (m *Monitor) evaluatePrice(ctx context.Context, p Position, price float64) (tickResult, error) {
	long := p.Side == broker.Buy
	r := tickResult{
		bestFavorable:  p.BestFavorable,
		stopPrice:      p.StopPrice,
		trailPrice:     p.TrailPrice,
		trailingActive: p.TrailingActive,
	}

	if long && price > r.bestFavorable {
		r.bestFavorable = price
	}
	if !long && (r.bestFavorable == 0 || price < r.bestFavorable) {
		r.bestFavorable = price
	}

	if !p.Spec.StopLoss.Enabled {
		return r, nil
	}

	stopDist, err := p.Spec.StopLoss.Distance(ctx, p.Entry, p.ScopeKey.Symbol, m.market)
	if err != nil {
		return r, err
	}
	if long {
		r.stopPrice = p.Entry - stopDist
	} else {
		r.stopPrice = p.Entry + stopDist
	}
	effective := r.stopPrice
	trigger := TriggerStopLoss

	if p.Spec.TrailingActivation.Enabled && !r.trailingActive {
		actDist, err := p.Spec.TrailingActivation.Distance(ctx, p.Entry, p.ScopeKey.Symbol, m.market)
		if err != nil {
			return r, err
		}
		excursion := r.bestFavorable - p.Entry
		if !long {
			excursion = p.Entry - r.bestFavorable
		}
		if excursion >= actDist {
			r.trailingActive = true
		}
	}
	// Without an activation gate, trailing runs from the first tick.
	if p.Spec.TrailingStop.Enabled && !p.Spec.TrailingActivation.Enabled {
		r.trailingActive = true
	}

	if r.trailingActive && p.Spec.TrailingStop.Enabled {
		trailDist, err := p.Spec.TrailingStop.Distance(ctx, r.bestFavorable, p.ScopeKey.Symbol, m.market)
		if err != nil {
			return r, err
		}
		if long {
			r.trailPrice = r.bestFavorable - trailDist
			// Trailing never loosens the stop.
			if r.trailPrice > effective {
				effective = r.trailPrice
				trigger = TriggerTrailingStop
			}
		} else {
			r.trailPrice = r.bestFavorable + trailDist
			if r.trailPrice < effective {
				effective = r.trailPrice
				trigger = TriggerTrailingStop
			}
		}
	}

	if long && price <= effective {
		r.breached = true
		r.trigger = trigger
	}
	if !long && price >= effective {
		r.breached = true
		r.trigger = trigger
	}
	return r, nil
}

// submitExit sends the exit order for the full remaining quantity and
// records the order id on the position.
func (m *Monitor) submitExit(ctx context.Context, p Position, trigger string) error {
	orderType := broker.Market
	if p.Spec.ExitOrderType == string(broker.Limit) {
		orderType = broker.Limit
	}

	orderID, err := m.broker.SubmitOrder(ctx, broker.OrderRequest{
		Symbol: p.ScopeKey.Symbol,
		Side:   p.Side.Opposite(),
		Qty:    p.Qty,
		Type:   orderType,
	})
	if err != nil {
		return fmt.Errorf("submit exit for %s: %w", p.ID, err)
	}

	m.mu.Lock()
	if cur, ok := m.positions[p.ID]; ok {
		cur.ExitOrderID = orderID
	}
	m.mu.Unlock()

	metrics.ExitTriggered(trigger, string(p.Side))
	_ = m.journal.RecordEvent(journal.Event{
		Category: journal.CategoryOrder,
		Level:    journal.LevelInfo,
		ScopeKey: p.ScopeKey.String(),
		Code:     "EXIT_TRIGGERED",
		Message:  fmt.Sprintf("%s exit submitted (order %s, qty %.4f)", trigger, orderID, p.Qty),
		Time:     m.now().UTC(),
	})
	return nil
}
