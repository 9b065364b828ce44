package strategies

import "tradeEngine/internal/runtime"

// RegisterAll adds every built-in strategy class to a registry.
func RegisterAll(reg *runtime.Registry) {
	reg.Register("DoubleMA", NewDoubleMA)
	reg.Register("ChannelBreakout", NewChannelBreakout)
}
