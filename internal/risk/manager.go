package risk

import (
	"context"
	"fmt"

	"tradeEngine/internal/domain"
	"tradeEngine/internal/ports"
)

// Config holds configuration for pre-trade risk checks.
type Config struct {
	// MaxOrderVolume is the largest single order volume allowed. Zero
	// disables the check.
	MaxOrderVolume float64
	// MaxTotalOrders caps the number of orders sent per session. Zero
	// disables the check.
	MaxTotalOrders int
	// MaxFlowCount caps orders sent within one flow window (reset on each
	// timer event). Zero disables the check.
	MaxFlowCount int
	// MaxCancelCount caps cancel requests per session. Zero disables the
	// check.
	MaxCancelCount int
}

// Manager performs pre-trade checks on every outgoing order request. A
// failed check refuses the order before it reaches the gateway; the refusal
// surfaces to the caller as an empty order id.
type Manager struct {
	cfg    Config
	logger ports.Logger
	active bool

	orderCount  int
	flowCount   int
	cancelCount int
}

// NewManager creates an active risk manager.
func NewManager(cfg Config, logger ports.Logger) (*Manager, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required for risk manager")
	}
	return &Manager{cfg: cfg, logger: logger, active: true}, nil
}

// SetActive toggles all checks at once; an inactive manager passes
// everything.
func (m *Manager) SetActive(active bool) { m.active = active }

// CheckOrder validates one outgoing order request. It returns nil when the
// order may be sent; otherwise the reason it was refused.
func (m *Manager) CheckOrder(req domain.OrderRequest) error {
	if !m.active {
		return nil
	}
	if req.Volume <= 0 {
		return fmt.Errorf("order volume must be positive, got %v", req.Volume)
	}
	if m.cfg.MaxOrderVolume > 0 && req.Volume > m.cfg.MaxOrderVolume {
		return fmt.Errorf("order volume %v exceeds limit %v", req.Volume, m.cfg.MaxOrderVolume)
	}
	if m.cfg.MaxTotalOrders > 0 && m.orderCount >= m.cfg.MaxTotalOrders {
		return fmt.Errorf("session order count limit %d reached", m.cfg.MaxTotalOrders)
	}
	if m.cfg.MaxFlowCount > 0 && m.flowCount >= m.cfg.MaxFlowCount {
		return fmt.Errorf("order flow limit %d reached for current window", m.cfg.MaxFlowCount)
	}

	m.orderCount++
	m.flowCount++
	return nil
}

// CheckCancel validates one cancel request against the session cancel cap.
func (m *Manager) CheckCancel(req domain.CancelRequest) error {
	if !m.active {
		return nil
	}
	if m.cfg.MaxCancelCount > 0 && m.cancelCount >= m.cfg.MaxCancelCount {
		return fmt.Errorf("session cancel count limit %d reached", m.cfg.MaxCancelCount)
	}
	m.cancelCount++
	return nil
}

// OnTimer resets the flow window. Wired to the bus timer event.
func (m *Manager) OnTimer() {
	if m.flowCount > 0 && m.cfg.MaxFlowCount > 0 && m.flowCount >= m.cfg.MaxFlowCount {
		m.logger.Warn(context.Background(), "Order flow limit was hit during the last window", map[string]interface{}{
			"flowCount": m.flowCount,
			"limit":     m.cfg.MaxFlowCount,
		})
	}
	m.flowCount = 0
}
