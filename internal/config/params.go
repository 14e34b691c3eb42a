package config

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Params holds the provider-specific keys of a provider block.
// Values come straight from the decoded document, so numbers are float64.
type Params map[string]any

// String returns the trimmed string value for key.
func (p Params) String(key string) (string, bool) {
	v, ok := p[key]
	if !ok || v == nil {
		return "", false
	}
	s, ok := v.(string)
	if !ok {
		return "", false
	}
	s = strings.TrimSpace(s)
	return s, s != ""
}

// StringOr returns the string value for key, or def when unset.
func (p Params) StringOr(key, def string) string {
	if s, ok := p.String(key); ok {
		return s
	}
	return def
}

// Duration parses key as a Go duration string ("90s", "10m") or a number of
// seconds, returning def when unset.
func (p Params) Duration(key string, def time.Duration) (time.Duration, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return def, nil
	}
	switch t := v.(type) {
	case string:
		d, err := time.ParseDuration(strings.TrimSpace(t))
		if err != nil {
			return 0, fmt.Errorf("%s: invalid duration %q", key, t)
		}
		if d <= 0 {
			return 0, fmt.Errorf("%s: must be positive", key)
		}
		return d, nil
	case float64:
		if t <= 0 {
			return 0, fmt.Errorf("%s: must be positive", key)
		}
		return time.Duration(t * float64(time.Second)), nil
	}
	return 0, fmt.Errorf("%s: expected a duration, got %T", key, v)
}

// Int returns key as an integer, returning def when unset.
func (p Params) Int(key string, def int) (int, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return def, nil
	}
	switch t := v.(type) {
	case float64:
		if t != math.Trunc(t) {
			return 0, fmt.Errorf("%s: expected an integer, got %v", key, t)
		}
		return int(t), nil
	case int:
		return t, nil
	case int64:
		return int(t), nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			return 0, fmt.Errorf("%s: expected an integer, got %q", key, t)
		}
		return n, nil
	}
	return 0, fmt.Errorf("%s: expected an integer, got %T", key, v)
}

// Bool returns key as a boolean, returning def when unset.
func (p Params) Bool(key string, def bool) (bool, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return def, nil
	}
	switch t := v.(type) {
	case bool:
		return t, nil
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(t))
		if err != nil {
			return false, fmt.Errorf("%s: expected a boolean, got %q", key, t)
		}
		return b, nil
	}
	return false, fmt.Errorf("%s: expected a boolean, got %T", key, v)
}

// Require returns a violation for every key that is missing or empty.
func (p Params) Require(keys ...string) []Violation {
	var out []Violation
	for _, k := range keys {
		if _, ok := p.String(k); !ok {
			out = append(out, Violation{Path: k, Message: "is required"})
		}
	}
	return out
}

// CheckErr converts a param accessor error into a violation on key.
func CheckErr(key string, err error) []Violation {
	if err == nil {
		return nil
	}
	return []Violation{{Path: key, Message: err.Error()}}
}
