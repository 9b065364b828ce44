package ledger

import (
	"context"
	"strings"

	"tradeEngine/internal/domain"
	"tradeEngine/internal/ports"
)

// Config holds construction parameters for the ledger.
type Config struct {
	Logger ports.Logger

	// SplitCloseExchanges lists exchanges that settle today/yesterday closes
	// separately; instruments there run in split-today-first mode.
	SplitCloseExchanges []string

	// TodayPenaltyProducts lists product codes whose same-day closes carry a
	// penalty fee; matching instruments run in today-penalty mode.
	TodayPenaltyProducts []string
}

// Ledger is the authoritative in-memory record of ticks, orders, trades and
// per-instrument position details. It is driven exclusively from the event
// dispatch goroutine, so it needs no internal locking; external readers get
// copies.
type Ledger struct {
	logger ports.Logger

	splitExchanges  map[string]bool
	penaltyProducts []string

	details       map[string]*PositionDetail
	ticks         map[string]*domain.Tick
	contracts     map[string]*domain.Contract
	orders        map[string]*domain.Order
	workingOrders map[string]*domain.Order
	trades        map[string]*domain.Trade
}

// New creates an empty ledger.
func New(cfg Config) (*Ledger, error) {
	if cfg.Logger == nil {
		return nil, ports.ErrConfigurationError
	}
	split := make(map[string]bool, len(cfg.SplitCloseExchanges))
	for _, ex := range cfg.SplitCloseExchanges {
		split[ex] = true
	}
	return &Ledger{
		logger:          cfg.Logger,
		splitExchanges:  split,
		penaltyProducts: cfg.TodayPenaltyProducts,
		details:         make(map[string]*PositionDetail),
		ticks:           make(map[string]*domain.Tick),
		contracts:       make(map[string]*domain.Contract),
		orders:          make(map[string]*domain.Order),
		workingOrders:   make(map[string]*domain.Order),
		trades:          make(map[string]*domain.Trade),
	}, nil
}

// Detail returns the position detail for an instrument, creating it lazily on
// first reference. Created details live for the process lifetime.
func (l *Ledger) Detail(instrument string) *PositionDetail {
	if detail, ok := l.details[instrument]; ok {
		return detail
	}
	detail := newPositionDetail(instrument)
	l.details[instrument] = detail
	if contract, ok := l.contracts[instrument]; ok {
		l.assignMode(detail, contract)
	}
	return detail
}

// assignMode picks the conversion mode from contract metadata.
func (l *Ledger) assignMode(detail *PositionDetail, contract *domain.Contract) {
	detail.Exchange = contract.Exchange
	if contract.Size > 0 {
		detail.Size = contract.Size
	}
	if l.splitExchanges[contract.Exchange] {
		detail.Mode = ModeSplitTodayFirst
		detail.splitCloses = true
	}
	for _, product := range l.penaltyProducts {
		if product != "" && strings.Contains(contract.Symbol, product) {
			detail.Mode = ModeTodayPenalty
			break
		}
	}
}

// ProcessTick caches the latest tick and refreshes mark-to-market PnL.
func (l *Ledger) ProcessTick(tick *domain.Tick) {
	l.ticks[tick.Instrument] = tick
	l.Detail(tick.Instrument).applyTick(tick)
}

// ProcessContract caches contract metadata and, if the detail already exists,
// re-applies the conversion mode derived from it.
func (l *Ledger) ProcessContract(contract *domain.Contract) {
	l.contracts[contract.Instrument] = contract
	if detail, ok := l.details[contract.Instrument]; ok {
		l.assignMode(detail, contract)
	}
}

// ProcessOrder records the latest order report, maintains the working-order
// index and recomputes frozen quantities.
func (l *Ledger) ProcessOrder(order *domain.Order) {
	l.orders[order.ID] = order
	if order.Status.IsFinished() {
		delete(l.workingOrders, order.ID)
	} else {
		l.workingOrders[order.ID] = order
	}
	l.Detail(order.Instrument).applyOrder(order)
}

// ProcessTrade folds a fill into the instrument's position detail. A spill
// that drives a bucket negative means the exchange knows about more closes
// than the local ledger has position for; that is surfaced as a warning
// rather than silently absorbed.
func (l *Ledger) ProcessTrade(trade *domain.Trade) {
	l.trades[trade.ID] = trade
	if l.Detail(trade.Instrument).applyTrade(trade) {
		l.logger.Warn(context.Background(), "Close trade exceeded recorded position, ledger may be out of sync with exchange", map[string]interface{}{
			"instrument": trade.Instrument,
			"tradeID":    trade.ID,
			"volume":     trade.Volume,
			"offset":     trade.Offset,
		})
	}
}

// ProcessPosition overwrites one side of a detail with the authoritative
// exchange snapshot.
func (l *Ledger) ProcessPosition(pos *domain.Position) {
	l.Detail(pos.Instrument).applyPosition(pos)
}

// RegisterOrderRequest pre-registers a just-sent order so frozen quantities
// reflect it before the first broker report arrives.
func (l *Ledger) RegisterOrderRequest(req domain.OrderRequest, orderID string) {
	l.Detail(req.Instrument).registerOrderRequest(req, orderID)
}

// Convert turns an order request into exchange-legal legs according to the
// instrument's mode. An instrument never referenced before passes through
// unchanged. An empty result with a nil error never happens: rejection is
// reported as ErrConversionRejected and the caller must not submit anything.
func (l *Ledger) Convert(req domain.OrderRequest) ([]domain.OrderRequest, error) {
	detail, ok := l.details[req.Instrument]
	if !ok {
		return []domain.OrderRequest{req}, nil
	}
	legs := detail.convert(req)
	if len(legs) == 0 {
		return nil, ports.ErrConversionRejected
	}
	return legs, nil
}

// Tick returns the latest cached tick for an instrument, or nil.
func (l *Ledger) Tick(instrument string) *domain.Tick {
	return l.ticks[instrument]
}

// Contract returns cached contract metadata, or nil.
func (l *Ledger) Contract(instrument string) *domain.Contract {
	return l.contracts[instrument]
}

// Order returns the latest report for an order id, or nil.
func (l *Ledger) Order(orderID string) *domain.Order {
	return l.orders[orderID]
}

// WorkingOrders returns the ids of all orders not yet in a terminal status.
func (l *Ledger) WorkingOrders() []*domain.Order {
	out := make([]*domain.Order, 0, len(l.workingOrders))
	for _, order := range l.workingOrders {
		out = append(out, order)
	}
	return out
}

// Snapshot returns a copy of an instrument's position detail for diagnostic
// readers outside the dispatch goroutine.
func (l *Ledger) Snapshot(instrument string) PositionDetail {
	return l.Detail(instrument).snapshot()
}
