package ddp

import (
	"bytes"
	"encoding/json"
	"time"
)

var dateKey = []byte(`"$date"`)

// NormalizeDates rewrites EJSON dates ({"$date": <epoch ms>}) into RFC 3339
// strings so documents decode straight into time.Time fields
func NormalizeDates(raw json.RawMessage) json.RawMessage {
	if !bytes.Contains(raw, dateKey) {
		return raw
	}
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return raw
	}
	out, err := json.Marshal(rewriteDates(v))
	if err != nil {
		return raw
	}
	return out
}

func rewriteDates(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		if len(val) == 1 {
			if ms, ok := val["$date"].(float64); ok {
				return time.UnixMilli(int64(ms)).UTC().Format(time.RFC3339Nano)
			}
		}
		for k, item := range val {
			val[k] = rewriteDates(item)
		}
		return val
	case []interface{}:
		for i, item := range val {
			val[i] = rewriteDates(item)
		}
		return val
	default:
		return v
	}
}

func normalizeFields(fields map[string]json.RawMessage) map[string]json.RawMessage {
	for k, v := range fields {
		fields[k] = NormalizeDates(v)
	}
	return fields
}
