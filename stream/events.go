package stream

import (
	"fmt"
	"time"

	"github.com/Neumenon/dson/dson"
)

// ============================================================
// Standard event payloads
// ============================================================
//
// These are the payload shapes for kind=event and kind=err frames. Each is
// an object whose header alias names the event, e.g.
// {@Progress pct: 0.42, msg: "processing step 3"}.

func event(alias string, members ...any) *dson.Object[string] {
	obj := dson.NewObject[string](dson.Header{Alias: alias})
	for i := 0; i+1 < len(members); i += 2 {
		obj.Set(members[i].(string), members[i+1].(dson.Value))
	}
	return obj
}

// Progress represents a progress update.
func Progress(pct float64, msg string) *dson.Object[string] {
	return event("Progress", "pct", dson.Float64(pct), "msg", dson.String(msg))
}

// Log represents a log message stamped with the current UTC time.
func Log(level, msg string) *dson.Object[string] {
	return event("Log",
		"level", dson.String(level),
		"msg", dson.String(msg),
		"ts", dson.String(time.Now().UTC().Format(time.RFC3339)),
	)
}

// LogInfo is a convenience for info-level logs.
func LogInfo(msg string) *dson.Object[string] { return Log("info", msg) }

// LogWarn is a convenience for warning-level logs.
func LogWarn(msg string) *dson.Object[string] { return Log("warn", msg) }

// LogError is a convenience for error-level logs.
func LogError(msg string) *dson.Object[string] { return Log("error", msg) }

// Metric represents a numeric metric. The unit is omitted when empty.
func Metric(name string, value float64, unit string) *dson.Object[string] {
	obj := event("Metric", "name", dson.String(name), "value", dson.Float64(value))
	if unit != "" {
		obj.Set("unit", dson.String(unit))
	}
	return obj
}

// Counter is a convenience for count metrics.
func Counter(name string, count int64) *dson.Object[string] {
	return event("Metric", "name", dson.String(name), "value", dson.Int64(count), "unit", dson.String("count"))
}

// Artifact represents a reference to an artifact (file, blob, etc).
func Artifact(mime, ref, name string) *dson.Object[string] {
	return event("Artifact", "mime", dson.String(mime), "ref", dson.String(ref), "name", dson.String(name))
}

// ResyncRequest is sent when a receiver needs a fresh snapshot. want is
// the digest the receiver holds, if any.
func ResyncRequest(sid, seq uint64, want *[32]byte, reason string) *dson.Object[string] {
	obj := event("ResyncRequest", "sid", dson.Int64(sid), "seq", dson.Int64(seq))
	if want != nil {
		obj.Set("want", dson.String("blake3:"+HashToHex(*want)))
	}
	obj.Set("reason", dson.String(reason))
	return obj
}

// Error represents an error event for kind=err frames.
func Error(code, msg string, sid, seq uint64) *dson.Object[string] {
	return event("Error",
		"code", dson.String(code),
		"msg", dson.String(msg),
		"sid", dson.Int64(sid),
		"seq", dson.Int64(seq),
	)
}

// ============================================================
// Parse helpers
// ============================================================

// ParseEvent decodes an event payload and returns its alias and members
// as Go values (string, int64, float64, bool, or the dson.Value itself
// for anything else).
func ParseEvent(payload []byte, format dson.Format) (alias string, fields map[string]any, err error) {
	v, err := decodePayload(payload, format)
	if err != nil {
		return "", nil, fmt.Errorf("parse event: %w", err)
	}
	obj, ok := v.(*dson.Object[string])
	if !ok {
		return "", nil, fmt.Errorf("event must be an object, got %s", v.DsonType())
	}
	if obj.Header.Alias == "" {
		return "", nil, fmt.Errorf("event has no alias")
	}

	fields = make(map[string]any, obj.Len())
	obj.Range(func(k string, v dson.Value) bool {
		switch x := v.(type) {
		case dson.String:
			fields[k] = string(x)
		case dson.Int32:
			fields[k] = int64(x)
		case dson.Int64:
			fields[k] = int64(x)
		case dson.Float32:
			fields[k] = float64(x)
		case dson.Float64:
			fields[k] = float64(x)
		case dson.Bool:
			fields[k] = bool(x)
		default:
			fields[k] = v
		}
		return true
	})
	return obj.Header.Alias, fields, nil
}
