package ports

import "errors"

// Standard application-level errors.
// Adapters and core components wrap underlying errors with these sentinels so
// callers can branch on the condition without inspecting message text.
var (
	// General
	ErrNotFound           = errors.New("resource not found")
	ErrConfigurationError = errors.New("invalid or missing configuration")

	// Order flow
	ErrRejectedBySite     = errors.New("order refused before reaching the venue (risk or gateway)")
	ErrConversionRejected = errors.New("close request exceeds available position")
	ErrStaleReference     = errors.New("event references an unknown order or strategy")
	ErrDuplicateTrade     = errors.New("trade id already processed")

	// Registries
	ErrStrategyNotFound  = errors.New("strategy instance not found")
	ErrStrategyDuplicate = errors.New("strategy instance name already in use")
	ErrGatewayNotFound   = errors.New("gateway not found")

	// Persistence
	ErrDuplicateEntry   = errors.New("store record already exists")
	ErrStoreUnavailable = errors.New("store is not connected")
)
