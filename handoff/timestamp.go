package handoff

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// unixMillisCutoff separates unix seconds from unix milliseconds. Seconds
// values stay below it until the year 33658.
const unixMillisCutoff = 1e12

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// NormalizeTimestamp converts the timestamp shapes found in stored thread
// documents into a UTC time.Time. Accepted are time values, RFC3339 strings,
// unix seconds or milliseconds and {seconds, nanoseconds} objects.
func NormalizeTimestamp(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t.UTC(), nil
	case *time.Time:
		if t == nil {
			return time.Time{}, fmt.Errorf("handoff: nil timestamp")
		}
		return t.UTC(), nil
	case string:
		for _, layout := range timeLayouts {
			if ts, err := time.Parse(layout, t); err == nil {
				return ts.UTC(), nil
			}
		}
		if n, err := strconv.ParseFloat(t, 64); err == nil {
			return fromUnix(n), nil
		}
		return time.Time{}, fmt.Errorf("handoff: unparsable timestamp %q", t)
	case float64:
		return fromUnix(t), nil
	case int64:
		return fromUnix(float64(t)), nil
	case int:
		return fromUnix(float64(t)), nil
	case json.Number:
		n, err := t.Float64()
		if err != nil {
			return time.Time{}, fmt.Errorf("handoff: unparsable timestamp %q", t)
		}
		return fromUnix(n), nil
	case map[string]any:
		secs, ok := number(t["seconds"], t["_seconds"])
		if !ok {
			return time.Time{}, fmt.Errorf("handoff: timestamp object without seconds")
		}
		nanos, _ := number(t["nanoseconds"], t["_nanoseconds"])
		return time.Unix(int64(secs), int64(nanos)).UTC(), nil
	case nil:
		return time.Time{}, fmt.Errorf("handoff: missing timestamp")
	default:
		return time.Time{}, fmt.Errorf("handoff: unsupported timestamp type %T", v)
	}
}

func fromUnix(n float64) time.Time {
	if n >= unixMillisCutoff {
		return time.UnixMilli(int64(n)).UTC()
	}

	secs := int64(n)

	return time.Unix(secs, int64((n-float64(secs))*1e9)).UTC()
}

func number(candidates ...any) (float64, bool) {
	for _, c := range candidates {
		switch n := c.(type) {
		case float64:
			return n, true
		case int64:
			return float64(n), true
		case int:
			return float64(n), true
		}
	}

	return 0, false
}
