package config

import (
	"encoding/json"
	"time"
)

// Options carries backend-specific settings from the pipeline file. Lookups
// fall back to a default when a key is absent or holds another type.
type Options map[string]any

// String returns the string stored under key.
func (o Options) String(key, def string) string {
	if s, ok := o[key].(string); ok {
		return s
	}
	return def
}

// Int returns the integer stored under key. JSON decodes numbers as float64
// and YAML as int, so both are accepted.
func (o Options) Int(key string, def int) int {
	switch n := o[key].(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return def
}

// Seconds reads key as a whole number of seconds.
func (o Options) Seconds(key string, def int) time.Duration {
	return time.Duration(o.Int(key, def)) * time.Second
}

// UnmarshalJSON decodes a null or missing options object as an empty map so
// lookups never need a nil check on the caller side.
func (o *Options) UnmarshalJSON(b []byte) error {
	m := map[string]any{}
	if len(b) > 0 && string(b) != "null" {
		if err := json.Unmarshal(b, &m); err != nil {
			return err
		}
	}
	*o = m
	return nil
}
