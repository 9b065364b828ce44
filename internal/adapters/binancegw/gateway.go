// Package binancegw connects the engine to Binance USD-M futures using the
// go-binance library. Market data arrives over the partial depth and
// aggregate trade streams and is merged into tick snapshots; order and fill
// reports arrive over the user data stream.
package binancegw

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"tradeEngine/internal/domain"
	"tradeEngine/internal/ports"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
	"github.com/google/uuid"
)

const (
	baseURLProduction = "https://fapi.binance.com"
	baseURLTestnet    = "https://testnet.binancefuture.com"

	gatewayName  = "BINANCE"
	exchangeName = "BINANCE"

	listenKeyKeepalive = 20 * time.Minute
)

// Config holds configuration specific to the Binance gateway adapter.
type Config struct {
	APIKey               string
	SecretKey            string
	UseTestnet           bool
	Logger               ports.Logger
	Publisher            ports.EventPublisher
	Symbols              []string      // symbols whose contracts are published on connect
	ReconnectDelay       time.Duration // base websocket reconnect delay, defaults to 1s
	MaxReconnectAttempts int           // attempts before a stream gives up, defaults to 10
}

// Gateway implements ports.Gateway against Binance USD-M futures.
type Gateway struct {
	client               *futures.Client
	logger               ports.Logger
	publisher            ports.EventPublisher
	symbols              []string
	reconnectDelay       time.Duration
	maxReconnectAttempts int

	mu        sync.Mutex
	ticks     map[string]*domain.Tick
	listenKey string
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// New creates a Binance gateway adapter.
func New(cfg Config) (*Gateway, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Binance gateway")
	}
	if cfg.Publisher == nil {
		return nil, fmt.Errorf("event publisher is required for Binance gateway")
	}
	if cfg.APIKey == "" || cfg.SecretKey == "" {
		cfg.Logger.Warn(context.Background(), "APIKey or SecretKey is empty. Gateway will only work for public endpoints.")
	}

	client := futures.NewClient(cfg.APIKey, cfg.SecretKey)
	if cfg.UseTestnet {
		client.BaseURL = baseURLTestnet
		cfg.Logger.Info(context.Background(), "Binance gateway configured for Testnet", map[string]interface{}{"baseURL": client.BaseURL})
	} else {
		client.BaseURL = baseURLProduction
		cfg.Logger.Info(context.Background(), "Binance gateway configured for Production", map[string]interface{}{"baseURL": client.BaseURL})
	}

	reconnectDelay := cfg.ReconnectDelay
	if reconnectDelay <= 0 {
		reconnectDelay = time.Second
	}
	maxAttempts := cfg.MaxReconnectAttempts
	if maxAttempts <= 0 {
		maxAttempts = 10
	}

	return &Gateway{
		client:               client,
		logger:               cfg.Logger,
		publisher:            cfg.Publisher,
		symbols:              cfg.Symbols,
		reconnectDelay:       reconnectDelay,
		maxReconnectAttempts: maxAttempts,
		ticks:                make(map[string]*domain.Tick),
	}, nil
}

// Name implements ports.Gateway.
func (g *Gateway) Name() string { return gatewayName }

// Connect implements ports.Gateway: it verifies connectivity, publishes the
// contracts for the configured symbols and starts the user data stream.
func (g *Gateway) Connect(ctx context.Context) error {
	op := "Connect"
	if err := g.client.NewPingService().Do(ctx); err != nil {
		return g.handleError(ctx, err, op)
	}
	if _, err := g.client.NewSetServerTimeService().Do(ctx); err != nil {
		return g.handleError(ctx, err, op)
	}

	streamCtx, cancel := context.WithCancel(context.Background())
	g.mu.Lock()
	g.ctx = streamCtx
	g.cancel = cancel
	g.mu.Unlock()

	if err := g.publishContracts(ctx); err != nil {
		return err
	}
	if err := g.startUserStream(ctx); err != nil {
		// Market data still works without the private stream.
		g.logger.Error(ctx, err, "User data stream unavailable, order reports will not arrive", nil)
	}

	g.logger.Info(ctx, "Binance gateway connected", map[string]interface{}{"symbols": len(g.symbols)})
	return nil
}

// Subscribe implements ports.Gateway: it starts the partial depth and
// aggregate trade streams for one symbol and merges them into ticks.
func (g *Gateway) Subscribe(req domain.SubscribeRequest) error {
	symbol := req.Symbol
	if symbol == "" {
		symbol = strings.TrimSuffix(req.Instrument, "."+exchangeName)
	}
	if symbol == "" {
		return fmt.Errorf("subscribe request carries no symbol")
	}

	g.serveLoop("depth:"+symbol, func() (chan struct{}, chan struct{}, error) {
		return futures.WsPartialDepthServe(symbol, domain.DepthLevels, func(event *futures.WsDepthEvent) {
			g.onDepth(event)
		}, g.wsErrHandler("depth", symbol))
	})
	g.serveLoop("aggTrade:"+symbol, func() (chan struct{}, chan struct{}, error) {
		return futures.WsAggTradeServe(symbol, func(event *futures.WsAggTradeEvent) {
			g.onAggTrade(event)
		}, g.wsErrHandler("aggTrade", symbol))
	})
	return nil
}

// SendOrder implements ports.Gateway. Orders are limit GTC; the returned id
// is gateway-qualified.
func (g *Gateway) SendOrder(req domain.OrderRequest) (string, error) {
	op := "SendOrder"
	ctx := context.Background()

	side := futures.SideTypeBuy
	if req.Direction == domain.DirectionShort {
		side = futures.SideTypeSell
	}
	clientID := "x-" + uuid.NewString()

	svc := g.client.NewCreateOrderService().
		Symbol(req.Symbol).
		Side(side).
		Type(futures.OrderTypeLimit).
		TimeInForce(futures.TimeInForceTypeGTC).
		Price(strconv.FormatFloat(req.Price, 'f', -1, 64)).
		Quantity(strconv.FormatFloat(req.Volume, 'f', -1, 64)).
		NewClientOrderID(clientID)
	if req.Offset.IsClose() {
		svc = svc.ReduceOnly(true)
	}
	res, err := svc.Do(ctx)
	if err != nil {
		return "", g.handleError(ctx, err, op)
	}

	id := fmt.Sprintf("%s.%d", gatewayName, res.OrderID)
	order := &domain.Order{
		Origin:      domain.Origin{Gateway: gatewayName, Raw: res},
		Instrument:  instrumentFor(req.Symbol),
		Symbol:      req.Symbol,
		Exchange:    exchangeName,
		ID:          id,
		ClientID:    clientID,
		Direction:   req.Direction,
		Offset:      req.Offset,
		Price:       req.Price,
		TotalVolume: req.Volume,
		Status:      translateOrderStatus(res.Status),
		OrderTime:   time.UnixMilli(res.UpdateTime).Format("15:04:05"),
	}
	g.publishBoth(domain.EventOrder, id, order)
	g.logger.Info(ctx, op+" successful", map[string]interface{}{"symbol": req.Symbol, "side": side, "price": req.Price, "volume": req.Volume, "orderID": id})
	return id, nil
}

// CancelOrder implements ports.Gateway.
func (g *Gateway) CancelOrder(req domain.CancelRequest) error {
	op := "CancelOrder"
	ctx := context.Background()

	numericID, err := numericOrderID(req.OrderID)
	if err != nil {
		return fmt.Errorf("%w: %v", ports.ErrStaleReference, err)
	}
	symbol := req.Symbol
	if symbol == "" {
		symbol = strings.TrimSuffix(req.Instrument, "."+exchangeName)
	}
	_, err = g.client.NewCancelOrderService().Symbol(symbol).OrderID(numericID).Do(ctx)
	if err != nil {
		return g.handleError(ctx, err, op)
	}
	g.logger.Info(ctx, op+" successful", map[string]interface{}{"symbol": symbol, "orderID": req.OrderID})
	return nil
}

// Close implements ports.Gateway: it stops every stream goroutine.
func (g *Gateway) Close() error {
	g.mu.Lock()
	cancel := g.cancel
	g.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	g.wg.Wait()
	return nil
}

// publishContracts fetches exchange info and pushes one contract per
// configured symbol.
func (g *Gateway) publishContracts(ctx context.Context) error {
	op := "ExchangeInfo"
	info, err := g.client.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return g.handleError(ctx, err, op)
	}
	wanted := make(map[string]struct{}, len(g.symbols))
	for _, s := range g.symbols {
		wanted[s] = struct{}{}
	}
	for i := range info.Symbols {
		s := info.Symbols[i]
		if _, ok := wanted[s.Symbol]; !ok && len(wanted) > 0 {
			continue
		}
		priceTick := 0.0
		if pf := s.PriceFilter(); pf != nil {
			priceTick, _ = strconv.ParseFloat(pf.TickSize, 64)
		}
		contract := &domain.Contract{
			Origin:     domain.Origin{Gateway: gatewayName},
			Instrument: instrumentFor(s.Symbol),
			Symbol:     s.Symbol,
			Exchange:   exchangeName,
			Name:       s.Symbol,
			Size:       1,
			PriceTick:  priceTick,
		}
		g.publishBoth(domain.EventContract, contract.Instrument, contract)
	}
	return nil
}

// startUserStream opens the listen key, starts the user data websocket and
// keeps the key alive.
func (g *Gateway) startUserStream(ctx context.Context) error {
	op := "StartUserStream"
	listenKey, err := g.client.NewStartUserStreamService().Do(ctx)
	if err != nil {
		return g.handleError(ctx, err, op)
	}
	g.mu.Lock()
	g.listenKey = listenKey
	streamCtx := g.ctx
	g.mu.Unlock()

	g.serveLoop("userData", func() (chan struct{}, chan struct{}, error) {
		return futures.WsUserDataServe(listenKey, func(event *futures.WsUserDataEvent) {
			g.onUserData(event)
		}, g.wsErrHandler("userData", ""))
	})

	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		ticker := time.NewTicker(listenKeyKeepalive)
		defer ticker.Stop()
		for {
			select {
			case <-streamCtx.Done():
				return
			case <-ticker.C:
				if err := g.client.NewKeepaliveUserStreamService().ListenKey(listenKey).Do(streamCtx); err != nil {
					g.logger.Warn(streamCtx, "Listen key keepalive failed", map[string]interface{}{"error": err.Error()})
				}
			}
		}
	}()
	return nil
}

// serveLoop runs one websocket stream with reconnect and exponential backoff.
func (g *Gateway) serveLoop(name string, dial func() (doneCh, stopCh chan struct{}, err error)) {
	g.mu.Lock()
	streamCtx := g.ctx
	g.mu.Unlock()
	if streamCtx == nil {
		streamCtx = context.Background()
	}

	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		attempt := 0
		for {
			select {
			case <-streamCtx.Done():
				return
			default:
			}

			doneCh, stopCh, err := dial()
			if err != nil {
				attempt++
				if attempt >= g.maxReconnectAttempts {
					g.logger.Error(streamCtx, err, "Max reconnection attempts exceeded, giving up on stream", map[string]interface{}{"stream": name, "maxAttempts": g.maxReconnectAttempts})
					return
				}
				delay := g.reconnectDelay * time.Duration(1<<uint(attempt-1))
				g.logger.Warn(streamCtx, "Stream connection failed, retrying", map[string]interface{}{"stream": name, "attempt": attempt, "delay": delay.String()})
				select {
				case <-time.After(delay):
					continue
				case <-streamCtx.Done():
					return
				}
			}

			attempt = 0
			g.logger.Info(streamCtx, "Stream connected", map[string]interface{}{"stream": name})
			select {
			case <-doneCh:
				g.logger.Warn(streamCtx, "Stream closed unexpectedly, reconnecting", map[string]interface{}{"stream": name})
			case <-streamCtx.Done():
				select {
				case stopCh <- struct{}{}:
				default:
				}
				return
			}
		}
	}()
}

func (g *Gateway) wsErrHandler(stream, symbol string) futures.ErrHandler {
	return func(err error) {
		g.logger.Warn(context.Background(), "Stream error reported", map[string]interface{}{"stream": stream, "symbol": symbol, "error": err.Error()})
	}
}

// onDepth merges a partial depth event into the cached tick and publishes it.
func (g *Gateway) onDepth(event *futures.WsDepthEvent) {
	if event == nil {
		return
	}
	g.mu.Lock()
	tick := g.tickLocked(event.Symbol)
	for i := 0; i < domain.DepthLevels && i < len(event.Bids); i++ {
		price, qty, err := event.Bids[i].Parse()
		if err != nil {
			continue
		}
		tick.BidPrice[i], tick.BidVolume[i] = price, qty
	}
	for i := 0; i < domain.DepthLevels && i < len(event.Asks); i++ {
		price, qty, err := event.Asks[i].Parse()
		if err != nil {
			continue
		}
		tick.AskPrice[i], tick.AskVolume[i] = price, qty
	}
	g.stampLocked(tick, event.Time)
	snapshot := *tick
	g.mu.Unlock()

	g.publishBoth(domain.EventTick, snapshot.Instrument, &snapshot)
}

// onAggTrade merges an aggregate trade event into the cached tick and
// publishes it.
func (g *Gateway) onAggTrade(event *futures.WsAggTradeEvent) {
	if event == nil {
		return
	}
	price, err := strconv.ParseFloat(event.Price, 64)
	if err != nil {
		return
	}
	qty, _ := strconv.ParseFloat(event.Quantity, 64)

	g.mu.Lock()
	tick := g.tickLocked(event.Symbol)
	tick.LastPrice = price
	tick.LastVolume = qty
	tick.Volume += qty
	if tick.HighPrice == 0 || price > tick.HighPrice {
		tick.HighPrice = price
	}
	if tick.LowPrice == 0 || price < tick.LowPrice {
		tick.LowPrice = price
	}
	g.stampLocked(tick, event.TradeTime)
	snapshot := *tick
	g.mu.Unlock()

	g.publishBoth(domain.EventTick, snapshot.Instrument, &snapshot)
}

// onUserData translates order and fill reports from the user data stream.
func (g *Gateway) onUserData(event *futures.WsUserDataEvent) {
	if event == nil || event.Event != futures.UserDataEventTypeOrderTradeUpdate {
		return
	}
	update := event.OrderTradeUpdate

	direction := domain.DirectionLong
	if update.Side == futures.SideTypeSell {
		direction = domain.DirectionShort
	}
	offset := domain.OffsetOpen
	if update.IsReduceOnly {
		offset = domain.OffsetClose
	}
	price, _ := strconv.ParseFloat(update.OriginalPrice, 64)
	totalVolume, _ := strconv.ParseFloat(update.OriginalQty, 64)
	tradedVolume, _ := strconv.ParseFloat(update.AccumulatedFilledQty, 64)

	id := fmt.Sprintf("%s.%d", gatewayName, update.ID)
	order := &domain.Order{
		Origin:       domain.Origin{Gateway: gatewayName, Raw: event},
		Instrument:   instrumentFor(update.Symbol),
		Symbol:       update.Symbol,
		Exchange:     exchangeName,
		ID:           id,
		ClientID:     update.ClientOrderID,
		Direction:    direction,
		Offset:       offset,
		Price:        price,
		TotalVolume:  totalVolume,
		TradedVolume: tradedVolume,
		Status:       translateOrderStatus(update.Status),
		OrderTime:    time.UnixMilli(event.Time).Format("15:04:05"),
	}
	g.publishBoth(domain.EventOrder, id, order)

	if update.ExecutionType == futures.OrderExecutionTypeTrade && update.TradeID != 0 {
		fillPrice, _ := strconv.ParseFloat(update.LastFilledPrice, 64)
		fillQty, _ := strconv.ParseFloat(update.LastFilledQty, 64)
		trade := &domain.Trade{
			Origin:     domain.Origin{Gateway: gatewayName, Raw: event},
			Instrument: order.Instrument,
			Symbol:     order.Symbol,
			Exchange:   exchangeName,
			ID:         fmt.Sprintf("%s.%d", gatewayName, update.TradeID),
			OrderID:    id,
			Direction:  direction,
			Offset:     offset,
			Price:      fillPrice,
			Volume:     fillQty,
			TradeTime:  time.UnixMilli(event.Time).Format("15:04:05"),
		}
		g.publishBoth(domain.EventTrade, trade.ID, trade)
	}
}

// tickLocked returns the cached merge state for a symbol, creating it on
// first use. Caller holds g.mu.
func (g *Gateway) tickLocked(symbol string) *domain.Tick {
	instrument := instrumentFor(symbol)
	tick, ok := g.ticks[instrument]
	if !ok {
		tick = &domain.Tick{
			Origin:     domain.Origin{Gateway: gatewayName},
			Instrument: instrument,
			Symbol:     symbol,
			Exchange:   exchangeName,
		}
		g.ticks[instrument] = tick
	}
	return tick
}

// stampLocked fills the tick's time fields from an exchange millisecond
// timestamp. Caller holds g.mu.
func (g *Gateway) stampLocked(tick *domain.Tick, millis int64) {
	ts := time.UnixMilli(millis).UTC()
	tick.Timestamp = ts
	tick.Date = ts.Format("20060102")
	tick.Time = ts.Format("15:04:05.000")
}

// handleError translates common Binance API errors into the engine's
// sentinel errors.
func (g *Gateway) handleError(ctx context.Context, err error, operation string) error {
	if err == nil {
		return nil
	}
	fields := map[string]interface{}{"operation": operation, "originalError": err.Error()}

	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		fields["apiErrorCode"] = apiErr.Code
		fields["apiErrorMessage"] = apiErr.Message

		var mappedErr error
		switch apiErr.Code {
		case -2010, -2019, -2022, -3005, -3041, -4003, -4014:
			mappedErr = ports.ErrRejectedBySite
		case -2011, -2013:
			mappedErr = ports.ErrStaleReference
		default:
			mappedErr = fmt.Errorf("binance api error %d", apiErr.Code)
		}
		finalErr := fmt.Errorf("%s failed: %w: %w", operation, mappedErr, err)
		g.logger.Error(ctx, err, fmt.Sprintf("%s failed with API error", operation), fields)
		return finalErr
	}

	g.logger.Error(ctx, err, fmt.Sprintf("%s failed", operation), fields)
	return fmt.Errorf("%s failed: %w", operation, err)
}

// publishBoth publishes on the generic type and the key-suffixed type.
func (g *Gateway) publishBoth(eventType, suffix string, payload interface{}) {
	g.publisher.Publish(domain.NewEvent(eventType, payload))
	g.publisher.Publish(domain.NewEvent(eventType+suffix, payload))
}

func instrumentFor(symbol string) string {
	return symbol + "." + exchangeName
}

// numericOrderID strips the gateway qualifier from an engine order id.
func numericOrderID(id string) (int64, error) {
	trimmed := strings.TrimPrefix(id, gatewayName+".")
	n, err := strconv.ParseInt(trimmed, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("order id %q is not a %s id", id, gatewayName)
	}
	return n, nil
}

func translateOrderStatus(status futures.OrderStatusType) domain.OrderStatus {
	switch status {
	case futures.OrderStatusTypeNew:
		return domain.StatusNotTraded
	case futures.OrderStatusTypePartiallyFilled:
		return domain.StatusPartTraded
	case futures.OrderStatusTypeFilled:
		return domain.StatusAllTraded
	case futures.OrderStatusTypeCanceled, futures.OrderStatusTypeExpired:
		return domain.StatusCancelled
	case futures.OrderStatusTypeRejected:
		return domain.StatusRejected
	default:
		return domain.StatusUnknown
	}
}
