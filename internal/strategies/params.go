package strategies

import "fmt"

// intParam reads an integer strategy parameter, accepting the numeric types
// that YAML and JSON decoding produce.
func intParam(params map[string]interface{}, name string, def int) (int, error) {
	raw, ok := params[name]
	if !ok {
		return def, nil
	}
	switch v := raw.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		return int(v), nil
	default:
		return 0, fmt.Errorf("parameter %q must be an integer, got %T", name, raw)
	}
}

// floatParam reads a float strategy parameter with the same tolerance.
func floatParam(params map[string]interface{}, name string, def float64) (float64, error) {
	raw, ok := params[name]
	if !ok {
		return def, nil
	}
	switch v := raw.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	default:
		return 0, fmt.Errorf("parameter %q must be a number, got %T", name, raw)
	}
}
