package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"tradeEngine/internal/domain"
	"tradeEngine/internal/eventbus"
	"tradeEngine/internal/ledger"
	"tradeEngine/internal/ports"
	"tradeEngine/internal/risk"
	"tradeEngine/internal/runtime"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockLogger implements ports.Logger for testing
type mockLogger struct {
	mu    sync.Mutex
	warns []string
}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.warns = append(m.warns, msg)
}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

// mockGateway scripts one venue connection.
type mockGateway struct {
	name    string
	sendErr error

	requests  []domain.OrderRequest
	cancels   []domain.CancelRequest
	subs      []domain.SubscribeRequest
	connected bool
	closed    bool
	count     int
}

func (m *mockGateway) Name() string { return m.name }

func (m *mockGateway) Connect(ctx context.Context) error {
	m.connected = true
	return nil
}

func (m *mockGateway) Subscribe(req domain.SubscribeRequest) error {
	m.subs = append(m.subs, req)
	return nil
}

func (m *mockGateway) SendOrder(req domain.OrderRequest) (string, error) {
	if m.sendErr != nil {
		return "", m.sendErr
	}
	m.requests = append(m.requests, req)
	m.count++
	return fmt.Sprintf("%s.%d", m.name, m.count), nil
}

func (m *mockGateway) CancelOrder(req domain.CancelRequest) error {
	m.cancels = append(m.cancels, req)
	return nil
}

func (m *mockGateway) Close() error {
	m.closed = true
	return nil
}

type fixture struct {
	eng      *Engine
	bus      *eventbus.Bus
	ledger   *ledger.Ledger
	registry *runtime.Registry
	gw       *mockGateway
	logger   *mockLogger
}

func newFixture(t *testing.T, riskCfg risk.Config) *fixture {
	t.Helper()
	logger := &mockLogger{}

	bus, err := eventbus.New(eventbus.Config{Logger: logger, TimerInterval: time.Hour})
	require.NoError(t, err)
	led, err := ledger.New(ledger.Config{Logger: logger, SplitCloseExchanges: []string{"SPLITX"}})
	require.NoError(t, err)
	riskMgr, err := risk.NewManager(riskCfg, logger)
	require.NoError(t, err)

	registry := runtime.NewRegistry()
	eng, err := New(Config{
		Logger:   logger,
		Bus:      bus,
		Ledger:   led,
		Risk:     riskMgr,
		Registry: registry,
	})
	require.NoError(t, err)

	gw := &mockGateway{name: "GW1"}
	eng.AddGateway(gw)
	return &fixture{eng: eng, bus: bus, ledger: led, registry: registry, gw: gw, logger: logger}
}

func contractFor(instrument, exchange, gateway string, priceTick float64) *domain.Contract {
	return &domain.Contract{
		Origin:     domain.Origin{Gateway: gateway},
		Instrument: instrument,
		Symbol:     instrument,
		Exchange:   exchange,
		Size:       1,
		PriceTick:  priceTick,
	}
}

func openReq(instrument string, price, volume float64) domain.OrderRequest {
	return domain.OrderRequest{
		Instrument: instrument,
		Direction:  domain.DirectionLong,
		Offset:     domain.OffsetOpen,
		Price:      price,
		Volume:     volume,
	}
}

func TestNew_RequiresDependencies(t *testing.T) {
	_, err := New(Config{Logger: &mockLogger{}})
	require.Error(t, err)
}

func TestAddGateway_ReplaceWarns(t *testing.T) {
	f := newFixture(t, risk.Config{})

	f.eng.AddGateway(&mockGateway{name: "GW1"})
	assert.NotEmpty(t, f.logger.warns)

	gw, ok := f.eng.Gateway("GW1")
	require.True(t, ok)
	assert.False(t, gw.(*mockGateway).connected)

	_, ok = f.eng.Gateway("missing")
	assert.False(t, ok)
}

func TestSendOrder(t *testing.T) {
	f := newFixture(t, risk.Config{})

	ids, err := f.eng.SendOrder(openReq("INST1", 100, 2))
	require.NoError(t, err)
	assert.Equal(t, []string{"GW1.1"}, ids)
	require.Len(t, f.gw.requests, 1)
	assert.Equal(t, 2.0, f.gw.requests[0].Volume)
}

func TestSendOrder_PreRegistersWithLedger(t *testing.T) {
	f := newFixture(t, risk.Config{})
	f.ledger.ProcessTrade(&domain.Trade{ID: "t1", Instrument: "INST1", Direction: domain.DirectionLong, Offset: domain.OffsetOpen, Price: 100, Volume: 5})

	req := domain.OrderRequest{
		Instrument: "INST1",
		Direction:  domain.DirectionShort,
		Offset:     domain.OffsetClose,
		Price:      100,
		Volume:     2,
	}
	_, err := f.eng.SendOrder(req)
	require.NoError(t, err)

	// frozen reflects the in-flight close before any broker report
	snap := f.eng.PositionSnapshot("INST1")
	assert.Equal(t, 2.0, snap.Long.Frozen)
}

func TestSendOrder_RiskRefusal(t *testing.T) {
	f := newFixture(t, risk.Config{MaxOrderVolume: 1})

	_, err := f.eng.SendOrder(openReq("INST1", 100, 5))
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrRejectedBySite)
	assert.Empty(t, f.gw.requests, "a refused order never reaches the gateway")
}

func TestSendOrder_ConversionRejection(t *testing.T) {
	f := newFixture(t, risk.Config{})
	f.ledger.ProcessContract(contractFor("INST1", "SPLITX", "GW1", 0))
	f.ledger.Detail("INST1")

	req := openReq("INST1", 100, 5)
	req.Offset = domain.OffsetClose
	_, err := f.eng.SendOrder(req)
	assert.ErrorIs(t, err, ports.ErrConversionRejected)
	assert.Empty(t, f.gw.requests)
}

func TestSendOrder_SplitCloseProducesBothLegs(t *testing.T) {
	f := newFixture(t, risk.Config{})
	f.ledger.ProcessContract(contractFor("INST1", "SPLITX", "GW1", 0))

	// 2 lots opened today, 3 carried over
	f.ledger.ProcessTrade(&domain.Trade{ID: "t1", Instrument: "INST1", Direction: domain.DirectionLong, Offset: domain.OffsetOpen, Price: 100, Volume: 2})
	f.ledger.ProcessPosition(&domain.Position{Instrument: "INST1", Direction: domain.DirectionLong, Volume: 5, YesterdayVolume: 3, Price: 100})

	req := domain.OrderRequest{
		Instrument: "INST1",
		Direction:  domain.DirectionShort,
		Offset:     domain.OffsetClose,
		Price:      100,
		Volume:     4,
	}
	ids, err := f.eng.SendOrder(req)
	require.NoError(t, err)
	assert.Len(t, ids, 2)

	require.Len(t, f.gw.requests, 2)
	assert.Equal(t, domain.OffsetCloseToday, f.gw.requests[0].Offset)
	assert.Equal(t, 2.0, f.gw.requests[0].Volume)
	assert.Equal(t, domain.OffsetCloseYesterday, f.gw.requests[1].Offset)
	assert.Equal(t, 2.0, f.gw.requests[1].Volume)
}

func TestSendOrder_RoundsPriceToContractTick(t *testing.T) {
	f := newFixture(t, risk.Config{})
	f.ledger.ProcessContract(contractFor("INST1", "EX", "GW1", 0.5))

	_, err := f.eng.SendOrder(openReq("INST1", 100.3, 1))
	require.NoError(t, err)
	require.Len(t, f.gw.requests, 1)
	assert.Equal(t, 100.5, f.gw.requests[0].Price)
}

func TestSendOrder_GatewayRefusal(t *testing.T) {
	f := newFixture(t, risk.Config{})
	f.gw.sendErr = fmt.Errorf("venue says no")

	_, err := f.eng.SendOrder(openReq("INST1", 100, 1))
	assert.ErrorIs(t, err, ports.ErrRejectedBySite)
}

func TestSendOrder_NoGatewayForInstrument(t *testing.T) {
	f := newFixture(t, risk.Config{})
	f.eng.AddGateway(&mockGateway{name: "GW2"})

	// two gateways, no contract metadata: nothing decides the route
	_, err := f.eng.SendOrder(openReq("INST1", 100, 1))
	assert.ErrorIs(t, err, ports.ErrGatewayNotFound)
}

func TestSendOrder_RoutesByContractGateway(t *testing.T) {
	f := newFixture(t, risk.Config{})
	gw2 := &mockGateway{name: "GW2"}
	f.eng.AddGateway(gw2)
	f.ledger.ProcessContract(contractFor("INST2", "EX", "GW2", 0))

	ids, err := f.eng.SendOrder(openReq("INST2", 100, 1))
	require.NoError(t, err)
	assert.Equal(t, []string{"GW2.1"}, ids)
	assert.Empty(t, f.gw.requests)
}

func TestCancelOrder(t *testing.T) {
	f := newFixture(t, risk.Config{})
	f.ledger.ProcessOrder(&domain.Order{
		Origin:     domain.Origin{Gateway: "GW1"},
		ID:         "GW1.1",
		Instrument: "INST1",
		Status:     domain.StatusNotTraded,
	})

	require.NoError(t, f.eng.CancelOrder("GW1.1"))
	require.Len(t, f.gw.cancels, 1)
	assert.Equal(t, "GW1.1", f.gw.cancels[0].OrderID)
}

func TestCancelOrder_UnknownID(t *testing.T) {
	f := newFixture(t, risk.Config{})

	err := f.eng.CancelOrder("nope")
	assert.ErrorIs(t, err, ports.ErrStaleReference)
}

func TestCancelOrder_TerminalIsNoOp(t *testing.T) {
	f := newFixture(t, risk.Config{})
	f.ledger.ProcessOrder(&domain.Order{
		Origin:     domain.Origin{Gateway: "GW1"},
		ID:         "GW1.1",
		Instrument: "INST1",
		Status:     domain.StatusAllTraded,
	})

	require.NoError(t, f.eng.CancelOrder("GW1.1"))
	assert.Empty(t, f.gw.cancels)
}

func TestCancelOrder_CancelCapRefusal(t *testing.T) {
	f := newFixture(t, risk.Config{MaxCancelCount: 1})
	for _, id := range []string{"GW1.1", "GW1.2"} {
		f.ledger.ProcessOrder(&domain.Order{
			Origin:     domain.Origin{Gateway: "GW1"},
			ID:         id,
			Instrument: "INST1",
			Status:     domain.StatusNotTraded,
		})
	}

	require.NoError(t, f.eng.CancelOrder("GW1.1"))
	err := f.eng.CancelOrder("GW1.2")
	assert.ErrorIs(t, err, ports.ErrRejectedBySite)
	assert.Len(t, f.gw.cancels, 1)
}

func TestSubscribe(t *testing.T) {
	f := newFixture(t, risk.Config{})
	gw2 := &mockGateway{name: "GW2"}
	f.eng.AddGateway(gw2)

	t.Run("routed by contract when known", func(t *testing.T) {
		f.ledger.ProcessContract(contractFor("INST2", "EX", "GW2", 0))
		require.NoError(t, f.eng.Subscribe(domain.SubscribeRequest{Instrument: "INST2"}))
		assert.Len(t, gw2.subs, 1)
		assert.Empty(t, f.gw.subs)
	})

	t.Run("broadcast when unknown", func(t *testing.T) {
		require.NoError(t, f.eng.Subscribe(domain.SubscribeRequest{Instrument: "INST9"}))
		assert.Len(t, f.gw.subs, 1)
		assert.Len(t, gw2.subs, 2)
	})
}

func TestStartStop(t *testing.T) {
	f := newFixture(t, risk.Config{})

	f.eng.Start(context.Background())
	assert.True(t, f.gw.connected)

	// events published by gateways flow through the handlers
	tick := &domain.Tick{Instrument: "INST1", LastPrice: 42}
	f.bus.Publish(domain.NewEvent(domain.EventTick, tick))
	require.Eventually(t, func() bool {
		return f.eng.LastTick("INST1") != nil
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 42.0, f.eng.LastTick("INST1").LastPrice)

	f.eng.Stop()
	assert.True(t, f.gw.closed)
}

// tickCounterStrategy counts callbacks without any locking of its own; the
// dispatch goroutine is the only writer.
type tickCounterStrategy struct {
	ticks int
	stops int
}

func (s *tickCounterStrategy) OnInit() error  { return nil }
func (s *tickCounterStrategy) OnStart() error { return nil }
func (s *tickCounterStrategy) OnStop() error {
	s.stops++
	return nil
}
func (s *tickCounterStrategy) OnTick(tick *domain.Tick) error {
	s.ticks++
	return nil
}
func (s *tickCounterStrategy) OnOrder(order *domain.Order) error      { return nil }
func (s *tickCounterStrategy) OnTrade(trade *domain.Trade) error      { return nil }
func (s *tickCounterStrategy) OnStopOrder(so *domain.StopOrder) error { return nil }
func (s *tickCounterStrategy) Schema() ports.Schema                   { return ports.Schema{} }

func TestStrategyLifecycle_WhileTicksFlowing(t *testing.T) {
	f := newFixture(t, risk.Config{})

	var strat *tickCounterStrategy
	f.registry.Register("Counter", func(sc ports.StrategyContext, instrument string, params map[string]interface{}) (ports.Strategy, error) {
		strat = &tickCounterStrategy{}
		return strat, nil
	})

	f.eng.Start(context.Background())

	// market data keeps flowing while the strategy is loaded and started
	feedStop := make(chan struct{})
	feedDone := make(chan struct{})
	go func() {
		defer close(feedDone)
		for i := 0; ; i++ {
			select {
			case <-feedStop:
				return
			default:
				f.bus.Publish(domain.NewEvent(domain.EventTick, &domain.Tick{
					Instrument: "INST1",
					LastPrice:  100 + float64(i%5),
					Timestamp:  time.Now(),
				}))
				time.Sleep(time.Millisecond)
			}
		}
	}()

	require.NoError(t, f.eng.LoadStrategy(runtime.StrategyConfig{Name: "c1", ClassName: "Counter", Instrument: "INST1"}))
	f.eng.InitStrategies()
	f.eng.StartStrategies()

	require.Eventually(t, func() bool {
		var n int
		f.bus.Do(func() { n = strat.ticks })
		return n > 0
	}, 2*time.Second, 5*time.Millisecond)

	close(feedStop)
	<-feedDone
	f.eng.Stop()

	// Stop joined the dispatch goroutine, so plain reads are safe here
	assert.Equal(t, 1, strat.stops)
	assert.True(t, f.gw.closed)
}
