package operations

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Parameters is the free-form parameter map of an analysis. Numbers may
// arrive as any Go numeric type, json.Number or a numeric string.
type Parameters map[string]any

func (p Parameters) lookup(keys ...string) (string, any, bool) {
	for _, k := range keys {
		if v, ok := p[k]; ok && v != nil {
			return k, v, true
		}
	}
	return "", nil, false
}

// Has reports whether any of keys is set.
func (p Parameters) Has(keys ...string) bool {
	_, _, ok := p.lookup(keys...)
	return ok
}

// Float reads the first present key as float64, def when none is set.
func (p Parameters) Float(def float64, keys ...string) (float64, error) {
	key, v, ok := p.lookup(keys...)
	if !ok {
		return def, nil
	}
	f, err := toFloat(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrInvalidParameter, key, err)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: %s must be finite", ErrInvalidParameter, key)
	}
	return f, nil
}

// Int reads the first present key as an integer. Fractional values are rejected.
func (p Parameters) Int(def int, keys ...string) (int, error) {
	key, v, ok := p.lookup(keys...)
	if !ok {
		return def, nil
	}
	f, err := toFloat(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrInvalidParameter, key, err)
	}
	if f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		return 0, fmt.Errorf("%w: %s must be an integer, got %v", ErrInvalidParameter, key, v)
	}
	return int(f), nil
}

// String reads the first present key as a trimmed string.
func (p Parameters) String(def string, keys ...string) (string, error) {
	key, v, ok := p.lookup(keys...)
	if !ok {
		return def, nil
	}
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s), nil
	case fmt.Stringer:
		return strings.TrimSpace(s.String()), nil
	case float64, int, int64:
		return fmt.Sprint(s), nil
	}
	return "", fmt.Errorf("%w: %s must be a string", ErrInvalidParameter, key)
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint:
		return float64(n), nil
	case json.Number:
		return n.Float64()
	case string:
		return strconv.ParseFloat(strings.TrimSpace(n), 64)
	}
	return 0, fmt.Errorf("not a number: %v", v)
}
