package worker

import (
	"encoding/json"
	"strconv"
	"time"
)

// Payload-опции приходят из JSON (float64), из API (json.Number)
// или из CLI (строки), поэтому читаются терпимо к типу.

func payloadString(payload map[string]any, key string) (string, bool) {
	v, ok := payload[key]
	if !ok || v == nil {
		return "", false
	}
	s, ok := v.(string)
	return s, ok && s != ""
}

func payloadBool(payload map[string]any, key string, def bool) bool {
	switch v := payload[key].(type) {
	case bool:
		return v
	case string:
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func payloadInt(payload map[string]any, key string) (int64, bool) {
	switch v := payload[key].(type) {
	case float64:
		return int64(v), true
	case int:
		return int64(v), true
	case int64:
		return v, true
	case json.Number:
		n, err := v.Int64()
		return n, err == nil
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		return n, err == nil
	}
	return 0, false
}

// payloadMillis читает длительность в миллисекундах; неположительные значения игнорируются.
func payloadMillis(payload map[string]any, key string, def time.Duration) time.Duration {
	if ms, ok := payloadInt(payload, key); ok && ms > 0 {
		return time.Duration(ms) * time.Millisecond
	}
	return def
}
