package strategies

import (
	"fmt"
	"testing"

	"tradeEngine/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type orderCall struct {
	direction domain.Direction
	offset    domain.Offset
	price     float64
	volume    float64
}

// mockContext implements ports.StrategyContext and records every call.
type mockContext struct {
	orders         []orderCall
	stops          []orderCall
	stopIDs        []string
	cancelledStops []string
	sendErr        error
	stopCount      int
}

func (m *mockContext) SendOrder(direction domain.Direction, offset domain.Offset, price, volume float64) ([]string, error) {
	if m.sendErr != nil {
		return nil, m.sendErr
	}
	m.orders = append(m.orders, orderCall{direction, offset, price, volume})
	return []string{fmt.Sprintf("GW.%d", len(m.orders))}, nil
}

func (m *mockContext) SendStopOrder(direction domain.Direction, offset domain.Offset, triggerPrice, volume float64) (string, error) {
	m.stops = append(m.stops, orderCall{direction, offset, triggerPrice, volume})
	m.stopCount++
	id := fmt.Sprintf("stop.%d", m.stopCount)
	m.stopIDs = append(m.stopIDs, id)
	return id, nil
}

func (m *mockContext) CancelOrder(orderID string) error { return nil }

func (m *mockContext) CancelStopOrder(stopOrderID string) error {
	m.cancelledStops = append(m.cancelledStops, stopOrderID)
	return nil
}

func (m *mockContext) CancelAll() {}

func (m *mockContext) LastTick() *domain.Tick { return nil }

func (m *mockContext) Log(msg string, fields ...map[string]interface{}) {}

func tickAt(last float64) *domain.Tick {
	return &domain.Tick{Instrument: "INST1", LastPrice: last}
}

func TestWindow(t *testing.T) {
	w := NewWindow(3)

	assert.False(t, w.Full())
	assert.Equal(t, 0.0, w.SMA(1), "empty window yields zero")

	w.Push(10)
	w.Push(20)
	assert.Equal(t, 0.0, w.SMA(3), "not enough values yet")
	assert.Equal(t, 15.0, w.SMA(2))

	w.Push(30)
	assert.True(t, w.Full())
	assert.Equal(t, 20.0, w.SMA(3))
	assert.Equal(t, 25.0, w.SMA(2))
	assert.Equal(t, 30.0, w.Highest(3))
	assert.Equal(t, 10.0, w.Lowest(3))

	// eviction: the oldest value drops out
	w.Push(40)
	assert.Equal(t, 30.0, w.SMA(3))
	assert.Equal(t, 40.0, w.Highest(3))
	assert.Equal(t, 20.0, w.Lowest(3))
	assert.Equal(t, 40.0, w.Lowest(1))
}

func TestNewDoubleMA_ParameterValidation(t *testing.T) {
	sc := &mockContext{}
	tests := []struct {
		name    string
		params  map[string]interface{}
		wantErr bool
	}{
		{"defaults", nil, false},
		{"yaml integers arrive as int", map[string]interface{}{"fastPeriod": 5, "slowPeriod": 20}, false},
		{"json numbers arrive as float64", map[string]interface{}{"fastPeriod": 5.0, "slowPeriod": 20.0, "volume": 2.0}, false},
		{"fast must be below slow", map[string]interface{}{"fastPeriod": 20, "slowPeriod": 10}, true},
		{"periods must be positive", map[string]interface{}{"fastPeriod": -1, "slowPeriod": 10}, true},
		{"volume must be positive", map[string]interface{}{"volume": 0}, true},
		{"non-numeric parameter refused", map[string]interface{}{"fastPeriod": "ten"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewDoubleMA(sc, "INST1", tt.params)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDoubleMA_CrossOverGoesLong(t *testing.T) {
	sc := &mockContext{}
	s, err := NewDoubleMA(sc, "INST1", map[string]interface{}{"fastPeriod": 2, "slowPeriod": 3})
	require.NoError(t, err)

	// fill the window on a downtrend: fast sits below slow
	for _, p := range []float64{10, 9, 8} {
		require.NoError(t, s.OnTick(tickAt(p)))
	}
	assert.Empty(t, sc.orders, "first full window only seeds the averages")

	// a sharp rally lifts the fast average through the slow one
	require.NoError(t, s.OnTick(tickAt(12)))
	require.Len(t, sc.orders, 1)
	assert.Equal(t, orderCall{domain.DirectionLong, domain.OffsetOpen, 12, 1}, sc.orders[0])
}

func TestDoubleMA_CrossBelowFlipsShort(t *testing.T) {
	sc := &mockContext{}
	s, err := NewDoubleMA(sc, "INST1", map[string]interface{}{"fastPeriod": 2, "slowPeriod": 3})
	require.NoError(t, err)

	for _, p := range []float64{10, 9, 8, 12} {
		require.NoError(t, s.OnTick(tickAt(p)))
	}
	require.Len(t, sc.orders, 1)

	// the long entry fills
	require.NoError(t, s.OnTrade(&domain.Trade{Direction: domain.DirectionLong, Volume: 1, Price: 12}))

	// collapse drops the fast average back below: close the long, open short
	require.NoError(t, s.OnTick(tickAt(1)))
	require.Len(t, sc.orders, 3)
	assert.Equal(t, orderCall{domain.DirectionShort, domain.OffsetClose, 1, 1}, sc.orders[1])
	assert.Equal(t, orderCall{domain.DirectionShort, domain.OffsetOpen, 1, 1}, sc.orders[2])
}

func TestDoubleMA_SchemaSyncRestoresPosition(t *testing.T) {
	sc := &mockContext{}
	s, err := NewDoubleMA(sc, "INST1", nil)
	require.NoError(t, err)

	schema := s.Schema()
	require.Len(t, schema.Sync, 1)
	require.NoError(t, schema.Sync[0].Set(3.0))
	assert.Equal(t, 3.0, schema.Sync[0].Get())

	assert.Error(t, schema.Sync[0].Set("three"))
}

func TestNewChannelBreakout_ParameterValidation(t *testing.T) {
	sc := &mockContext{}

	_, err := NewChannelBreakout(sc, "INST1", map[string]interface{}{"windowSize": 1})
	assert.Error(t, err)
	_, err = NewChannelBreakout(sc, "INST1", map[string]interface{}{"volume": -1})
	assert.Error(t, err)
	_, err = NewChannelBreakout(sc, "INST1", nil)
	assert.NoError(t, err)
}

func TestChannelBreakout_EntryStopsAtBands(t *testing.T) {
	sc := &mockContext{}
	s, err := NewChannelBreakout(sc, "INST1", map[string]interface{}{"windowSize": 2, "volume": 1})
	require.NoError(t, err)

	require.NoError(t, s.OnTick(tickAt(10)))
	assert.Empty(t, sc.stops, "window not full yet")

	require.NoError(t, s.OnTick(tickAt(11)))
	require.Len(t, sc.stops, 2)
	assert.Equal(t, orderCall{domain.DirectionLong, domain.OffsetOpen, 11, 1}, sc.stops[0])
	assert.Equal(t, orderCall{domain.DirectionShort, domain.OffsetOpen, 10, 1}, sc.stops[1])
}

func TestChannelBreakout_RefreshesStopsEachTick(t *testing.T) {
	sc := &mockContext{}
	s, err := NewChannelBreakout(sc, "INST1", map[string]interface{}{"windowSize": 2, "volume": 1})
	require.NoError(t, err)

	require.NoError(t, s.OnTick(tickAt(10)))
	require.NoError(t, s.OnTick(tickAt(11)))
	require.Len(t, sc.stops, 2)

	// the engine confirms both stops as waiting
	for _, id := range sc.stopIDs {
		require.NoError(t, s.OnStopOrder(&domain.StopOrder{ID: id, Status: domain.StopOrderWaiting}))
	}

	require.NoError(t, s.OnTick(tickAt(12)))
	assert.ElementsMatch(t, []string{"stop.1", "stop.2"}, sc.cancelledStops)
	require.Len(t, sc.stops, 4)
	assert.Equal(t, orderCall{domain.DirectionLong, domain.OffsetOpen, 12, 1}, sc.stops[2])
	assert.Equal(t, orderCall{domain.DirectionShort, domain.OffsetOpen, 11, 1}, sc.stops[3])
}

func TestChannelBreakout_PositionedKeepsSingleExitStop(t *testing.T) {
	sc := &mockContext{}
	s, err := NewChannelBreakout(sc, "INST1", map[string]interface{}{"windowSize": 2, "volume": 1})
	require.NoError(t, err)

	require.NoError(t, s.OnTick(tickAt(10)))
	require.NoError(t, s.OnTick(tickAt(11)))
	require.Len(t, sc.stops, 2)

	// the long entry stop triggers and fills
	require.NoError(t, s.OnStopOrder(&domain.StopOrder{ID: sc.stopIDs[0], Status: domain.StopOrderTriggered}))
	require.NoError(t, s.OnTrade(&domain.Trade{Direction: domain.DirectionLong, Volume: 1, Price: 11}))

	require.NoError(t, s.OnTick(tickAt(12)))
	require.Len(t, sc.stops, 3)
	assert.Equal(t, orderCall{domain.DirectionShort, domain.OffsetClose, 11, 1}, sc.stops[2])
}

func TestChannelBreakout_StopBookkeeping(t *testing.T) {
	sc := &mockContext{}
	s, err := NewChannelBreakout(sc, "INST1", map[string]interface{}{"windowSize": 2})
	require.NoError(t, err)
	cb := s.(*ChannelBreakout)

	require.NoError(t, s.OnStopOrder(&domain.StopOrder{ID: "stop.1", Status: domain.StopOrderWaiting}))
	assert.Contains(t, cb.pendingStops, "stop.1")

	require.NoError(t, s.OnStopOrder(&domain.StopOrder{ID: "stop.1", Status: domain.StopOrderCancelled}))
	assert.NotContains(t, cb.pendingStops, "stop.1")
}
