package ledger

import (
	"context"
	"testing"

	"tradeEngine/internal/domain"
	"tradeEngine/internal/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockLogger implements ports.Logger for testing
type mockLogger struct {
	warns []string
}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.warns = append(m.warns, msg)
}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

func newTestLedger(t *testing.T, cfg Config) (*Ledger, *mockLogger) {
	t.Helper()
	logger := &mockLogger{}
	cfg.Logger = logger
	l, err := New(cfg)
	require.NoError(t, err)
	return l, logger
}

func TestNew_RequiresLogger(t *testing.T) {
	_, err := New(Config{})
	require.ErrorIs(t, err, ports.ErrConfigurationError)
}

func TestLedger_ContractAssignsMode(t *testing.T) {
	l, _ := newTestLedger(t, Config{
		SplitCloseExchanges:  []string{"SPLITX"},
		TodayPenaltyProducts: []string{"PEN"},
	})

	l.ProcessContract(&domain.Contract{Instrument: "a.SPLITX", Symbol: "a", Exchange: "SPLITX", Size: 10})
	l.ProcessContract(&domain.Contract{Instrument: "PEN01.X", Symbol: "PEN01", Exchange: "X", Size: 5})
	l.ProcessContract(&domain.Contract{Instrument: "b.X", Symbol: "b", Exchange: "X"})

	assert.Equal(t, ModeSplitTodayFirst, l.Detail("a.SPLITX").Mode)
	assert.Equal(t, 10.0, l.Detail("a.SPLITX").Size)
	assert.Equal(t, ModeTodayPenalty, l.Detail("PEN01.X").Mode)
	assert.Equal(t, ModeNormal, l.Detail("b.X").Mode)
}

func TestLedger_ContractAfterDetailReassignsMode(t *testing.T) {
	l, _ := newTestLedger(t, Config{SplitCloseExchanges: []string{"SPLITX"}})

	// detail referenced before the contract arrives
	detail := l.Detail("a.SPLITX")
	assert.Equal(t, ModeNormal, detail.Mode)

	l.ProcessContract(&domain.Contract{Instrument: "a.SPLITX", Symbol: "a", Exchange: "SPLITX"})
	assert.Equal(t, ModeSplitTodayFirst, detail.Mode)
}

func TestLedger_TradeFlow(t *testing.T) {
	l, logger := newTestLedger(t, Config{})

	l.ProcessTrade(&domain.Trade{ID: "t1", Instrument: "INST1", Direction: domain.DirectionLong, Offset: domain.OffsetOpen, Price: 100, Volume: 2})
	assert.Empty(t, logger.warns)
	assert.Equal(t, 2.0, l.Detail("INST1").Long.Position)

	// closing more than held is a desync warning, not a crash
	l.ProcessTrade(&domain.Trade{ID: "t2", Instrument: "INST1", Direction: domain.DirectionShort, Offset: domain.OffsetClose, Price: 100, Volume: 5})
	assert.Len(t, logger.warns, 1)
}

func TestLedger_OrderIndexes(t *testing.T) {
	l, _ := newTestLedger(t, Config{})

	working := &domain.Order{ID: "o1", Instrument: "INST1", Status: domain.StatusNotTraded}
	l.ProcessOrder(working)
	assert.Same(t, working, l.Order("o1"))
	assert.Len(t, l.WorkingOrders(), 1)

	l.ProcessOrder(&domain.Order{ID: "o1", Instrument: "INST1", Status: domain.StatusAllTraded})
	assert.Empty(t, l.WorkingOrders())
	assert.Nil(t, l.Order("missing"))
}

func TestLedger_ConvertUnknownInstrumentPassesThrough(t *testing.T) {
	l, _ := newTestLedger(t, Config{SplitCloseExchanges: []string{"SPLITX"}})

	req := domain.OrderRequest{Instrument: "never-seen", Direction: domain.DirectionLong, Offset: domain.OffsetClose, Volume: 1}
	legs, err := l.Convert(req)

	require.NoError(t, err)
	require.Len(t, legs, 1)
	assert.Equal(t, req, legs[0])
}

func TestLedger_ConvertRejection(t *testing.T) {
	l, _ := newTestLedger(t, Config{SplitCloseExchanges: []string{"SPLITX"}})
	l.ProcessContract(&domain.Contract{Instrument: "a.SPLITX", Symbol: "a", Exchange: "SPLITX"})
	detail := l.Detail("a.SPLITX")
	detail.Long.Yesterday = 1
	detail.updatePosition()

	_, err := l.Convert(domain.OrderRequest{
		Instrument: "a.SPLITX",
		Direction:  domain.DirectionShort,
		Offset:     domain.OffsetClose,
		Volume:     5,
	})

	require.ErrorIs(t, err, ports.ErrConversionRejected)
}

func TestLedger_TickCacheAndPnL(t *testing.T) {
	l, _ := newTestLedger(t, Config{})
	l.ProcessTrade(&domain.Trade{ID: "t1", Instrument: "INST1", Direction: domain.DirectionLong, Offset: domain.OffsetOpen, Price: 100, Volume: 1})

	tick := &domain.Tick{Instrument: "INST1", LastPrice: 110}
	l.ProcessTick(tick)

	assert.Same(t, tick, l.Tick("INST1"))
	assert.Nil(t, l.Tick("other"))
	assert.InDelta(t, 10.0, l.Snapshot("INST1").Long.PnL, 1e-9)
}

func TestLedger_PositionSnapshotOverwrite(t *testing.T) {
	l, _ := newTestLedger(t, Config{})
	l.ProcessTrade(&domain.Trade{ID: "t1", Instrument: "INST1", Direction: domain.DirectionLong, Offset: domain.OffsetOpen, Price: 100, Volume: 9})

	l.ProcessPosition(&domain.Position{Instrument: "INST1", Direction: domain.DirectionLong, Volume: 3, YesterdayVolume: 3, Price: 100})

	snap := l.Snapshot("INST1")
	assert.Equal(t, 3.0, snap.Long.Position)
	assert.Equal(t, 0.0, snap.Long.Today)
}
