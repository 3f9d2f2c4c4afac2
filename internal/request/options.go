package request

import (
	"strconv"
	"time"
)

// Client option keys understood by the HTTP transport. Unknown keys are
// carried along untouched.
const (
	OptTimeout      = "timeout"
	OptContentType  = "content_type"
	OptMaxBodyBytes = "max_body_bytes"
)

// lookup walks nested option maps, e.g. lookup(opts, "xhr", "timeout").
func lookup(m map[string]interface{}, keys ...string) (interface{}, bool) {
	if m == nil || len(keys) == 0 {
		return nil, false
	}

	var current interface{} = m
	for _, key := range keys {
		currentMap, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		val, exists := currentMap[key]
		if !exists {
			return nil, false
		}
		current = val
	}
	return current, true
}

// OptionString returns a string option.
func (d *Description) OptionString(keys ...string) (string, bool) {
	v, ok := lookup(d.Options, keys...)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// OptionBool returns a bool option.
func (d *Description) OptionBool(keys ...string) (bool, bool) {
	v, ok := lookup(d.Options, keys...)
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

// OptionInt returns an integer option. JSON numbers decode as float64 and
// YAML numbers as int, so both are accepted.
func (d *Description) OptionInt(keys ...string) (int64, bool) {
	v, ok := lookup(d.Options, keys...)
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		return int64(n), true
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		return i, err == nil
	default:
		return 0, false
	}
}

// OptionDuration accepts a Go duration string ("1500ms") or a number of
// milliseconds, which is how browser clients express timeouts.
func (d *Description) OptionDuration(keys ...string) (time.Duration, bool) {
	v, ok := lookup(d.Options, keys...)
	if !ok {
		return 0, false
	}
	if s, isStr := v.(string); isStr {
		if dur, err := time.ParseDuration(s); err == nil {
			return dur, true
		}
	}
	ms, ok := d.OptionInt(keys...)
	if !ok {
		return 0, false
	}
	return time.Duration(ms) * time.Millisecond, true
}
