package pdf

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Parameters are decoded from JSON, so numbers arrive as float64 and lists as
// []any. The helpers below coerce them and report the offending key.

func lookup(params map[string]any, keys ...string) (any, string, bool) {
	for _, k := range keys {
		if v, ok := params[k]; ok && v != nil {
			return v, k, true
		}
	}
	return nil, "", false
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int(n), true
	case float32:
		if float64(n) != math.Trunc(float64(n)) {
			return 0, false
		}
		return int(n), true
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		return i, err == nil
	}
	return 0, false
}

// IntList reads a list of positive integers under the first present key.
// Returns nil, nil when none of the keys is set.
func IntList(params map[string]any, keys ...string) ([]int, error) {
	raw, key, ok := lookup(params, keys...)
	if !ok {
		return nil, nil
	}

	var items []any
	switch list := raw.(type) {
	case []any:
		items = list
	case []int:
		for _, i := range list {
			items = append(items, i)
		}
	default:
		return nil, fmt.Errorf("%s must be a list of page numbers", key)
	}

	out := make([]int, 0, len(items))
	for _, item := range items {
		n, ok := toInt(item)
		if !ok || n < 1 {
			return nil, fmt.Errorf("%s must contain positive integers", key)
		}
		out = append(out, n)
	}
	return out, nil
}

// Int reads an integer parameter with a default.
func Int(params map[string]any, key string, def int) (int, error) {
	raw, _, ok := lookup(params, key)
	if !ok {
		return def, nil
	}
	n, ok := toInt(raw)
	if !ok {
		return 0, fmt.Errorf("%s must be an integer", key)
	}
	return n, nil
}

// Float reads a numeric parameter with a default.
func Float(params map[string]any, key string, def float64) (float64, error) {
	raw, _, ok := lookup(params, key)
	if !ok {
		return def, nil
	}
	switch n := raw.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err == nil {
			return f, nil
		}
	}
	return 0, fmt.Errorf("%s must be a number", key)
}

// String reads a string parameter under the first present key.
func String(params map[string]any, def string, keys ...string) string {
	raw, _, ok := lookup(params, keys...)
	if !ok {
		return def
	}
	if s, ok := raw.(string); ok {
		return s
	}
	return fmt.Sprint(raw)
}

func pageSelection(pages []int) []string {
	if len(pages) == 0 {
		return nil
	}
	sel := make([]string, len(pages))
	for i, p := range pages {
		sel[i] = strconv.Itoa(p)
	}
	return sel
}
