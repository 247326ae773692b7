// Package params reads loosely typed keyword parameters, as they arrive
// from YAML configuration or query strings, into concrete Go values.
package params

import (
	"fmt"
	"strconv"
)

// Params maps parameter names to values.
type Params map[string]any

// Float returns the named parameter as a float64, or def when absent.
func (p Params) Float(name string, def float64) (float64, error) {
	v, ok := p[name]
	if !ok || v == nil {
		return def, nil
	}
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case string:
		f, err := strconv.ParseFloat(x, 64)
		if err != nil {
			return 0, fmt.Errorf("parameter %s: %w", name, err)
		}
		return f, nil
	}
	return 0, fmt.Errorf("parameter %s: expected a number, got %T", name, v)
}

// Int returns the named parameter as an int, or def when absent.
func (p Params) Int(name string, def int) (int, error) {
	v, ok := p[name]
	if !ok || v == nil {
		return def, nil
	}
	switch x := v.(type) {
	case int:
		return x, nil
	case int64:
		return int(x), nil
	case float64:
		if x != float64(int(x)) {
			return 0, fmt.Errorf("parameter %s: %v is not an integer", name, x)
		}
		return int(x), nil
	case string:
		i, err := strconv.Atoi(x)
		if err != nil {
			return 0, fmt.Errorf("parameter %s: %w", name, err)
		}
		return i, nil
	}
	return 0, fmt.Errorf("parameter %s: expected an integer, got %T", name, v)
}

// String returns the named parameter as a string, or def when absent.
func (p Params) String(name, def string) (string, error) {
	v, ok := p[name]
	if !ok || v == nil {
		return def, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("parameter %s: expected a string, got %T", name, v)
	}
	return s, nil
}

// Bool returns the named parameter as a bool, or def when absent.
func (p Params) Bool(name string, def bool) (bool, error) {
	v, ok := p[name]
	if !ok || v == nil {
		return def, nil
	}
	switch x := v.(type) {
	case bool:
		return x, nil
	case string:
		b, err := strconv.ParseBool(x)
		if err != nil {
			return false, fmt.Errorf("parameter %s: %w", name, err)
		}
		return b, nil
	}
	return false, fmt.Errorf("parameter %s: expected a bool, got %T", name, v)
}

// FloatPair returns a two-element numeric list such as a quantile range.
func (p Params) FloatPair(name string, def [2]float64) ([2]float64, error) {
	v, ok := p[name]
	if !ok || v == nil {
		return def, nil
	}
	var items []any
	switch x := v.(type) {
	case []any:
		items = x
	case []float64:
		for _, f := range x {
			items = append(items, f)
		}
	case [2]float64:
		return x, nil
	default:
		return def, fmt.Errorf("parameter %s: expected a pair, got %T", name, v)
	}
	if len(items) != 2 {
		return def, fmt.Errorf("parameter %s: expected 2 values, got %d", name, len(items))
	}
	var out [2]float64
	for i, item := range items {
		f, err := Params{name: item}.Float(name, 0)
		if err != nil {
			return def, err
		}
		out[i] = f
	}
	return out, nil
}
