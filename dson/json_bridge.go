package dson

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"math"
	"strconv"

	j "github.com/goccy/go-json"
)

// ============================================================
// JSON Bridge
// ============================================================
//
// Converts between JSON and the value model. Two modes:
//   - Strict (default): plain JSON. Headers are dropped, binary data
//     becomes base64, extended scalars become their value and references
//     their local id.
//   - Extended: "$dson" marker objects keep every variant, so that
//     FromJSONWithOpts(ToJSONWithOpts(v)) equals v.

// markerKey tags extended-mode marker objects.
const markerKey = "$dson"

// headerKey carries a container header in extended mode.
const headerKey = "$header"

// BridgeOpts configures the JSON bridge.
type BridgeOpts struct {
	// Extended writes and recognizes "$dson" markers.
	Extended bool
	// Indent pretty-prints output with the given indent string.
	Indent string
}

// DefaultBridgeOpts returns strict, compact options.
func DefaultBridgeOpts() BridgeOpts {
	return BridgeOpts{}
}

// ============================================================
// FromJSON
// ============================================================

// FromJSON parses relaxed JSON (comments and trailing commas allowed) into
// the value model in strict mode. Numbers are typed as in Dson text.
func FromJSON(data []byte) (Value, error) {
	return FromJSONWithOpts(data, DefaultBridgeOpts())
}

// FromJSONWithOpts parses relaxed JSON with options.
func FromJSONWithOpts(data []byte, opts BridgeOpts) (Value, error) {
	r := NewJSONReader(data)
	defer r.Close()
	v, err := readSingle[string](r)
	if err != nil {
		return nil, fmt.Errorf("JSON parse error: %w", err)
	}
	if !opts.Extended {
		return v, nil
	}
	return fromMarkers(v)
}

func fromMarkers(v Value) (Value, error) {
	switch x := v.(type) {
	case *Object[string]:
		if m, ok := x.Get(markerKey); ok {
			kind, ok := m.(String)
			if !ok {
				return nil, fmt.Errorf("%s marker must be a string", markerKey)
			}
			return fromMarker(string(kind), x)
		}
		out := NewObject[string](x.Header)
		for _, k := range x.keys {
			if k == headerKey {
				h, err := markerHeader(x.values[k])
				if err != nil {
					return nil, err
				}
				out.Header = h
				continue
			}
			cv, err := fromMarkers(x.values[k])
			if err != nil {
				return nil, fmt.Errorf("object[%q]: %w", k, err)
			}
			out.Set(k, cv)
		}
		return out, nil
	case *Array:
		out := NewArray(x.Header)
		for i, item := range x.Items {
			cv, err := fromMarkers(item)
			if err != nil {
				return nil, fmt.Errorf("array[%d]: %w", i, err)
			}
			out.Items = append(out.Items, cv)
		}
		return out, nil
	default:
		return v, nil
	}
}

func markerHeader(v Value) (Header, error) {
	s, ok := v.(String)
	if !ok {
		return Header{}, fmt.Errorf("%s must be a string", headerKey)
	}
	return parseHeader(string(s))
}

func fromMarker(kind string, obj *Object[string]) (Value, error) {
	get := func(k string) (Value, error) {
		v, ok := obj.Get(k)
		if !ok {
			return nil, fmt.Errorf("%s %s marker missing %s", markerKey, kind, k)
		}
		return v, nil
	}
	getInt := func(k string) (int64, error) {
		v, err := get(k)
		if err != nil {
			return 0, err
		}
		switch n := v.(type) {
		case Int32:
			return int64(n), nil
		case Int64:
			return int64(n), nil
		case String:
			return strconv.ParseInt(string(n), 10, 64)
		}
		return 0, fmt.Errorf("%s %s marker: %s must be an integer", markerKey, kind, k)
	}
	getString := func(k string) (string, error) {
		v, err := get(k)
		if err != nil {
			return "", err
		}
		s, ok := v.(String)
		if !ok {
			return "", fmt.Errorf("%s %s marker: %s must be a string", markerKey, kind, k)
		}
		return string(s), nil
	}
	getFloat := func(k string) (float64, error) {
		v, err := get(k)
		if err != nil {
			return 0, err
		}
		switch n := v.(type) {
		case Int32:
			return float64(n), nil
		case Int64:
			return float64(n), nil
		case Float64:
			return float64(n), nil
		case String:
			return parseFloatLiteral(string(n), 64)
		}
		return 0, fmt.Errorf("%s %s marker: %s must be a number", markerKey, kind, k)
	}

	switch kind {
	case "int64":
		n, err := getInt("value")
		return Int64(n), err
	case "float32":
		f, err := getFloat("value")
		return Float32(f), err
	case "float64":
		f, err := getFloat("value")
		return Float64(f), err
	case "binary":
		st, err := getInt("subtype")
		if err != nil {
			return nil, err
		}
		b64, err := getString("base64")
		if err != nil {
			return nil, err
		}
		data, err := base64.StdEncoding.DecodeString(b64)
		if err != nil {
			return nil, fmt.Errorf("invalid base64: %w", err)
		}
		return Binary{Subtype: uint8(st), Data: data}, nil
	case "extInt32", "extInt64":
		st, err := getInt("subtype")
		if err != nil {
			return nil, err
		}
		n, err := getInt("value")
		if err != nil {
			return nil, err
		}
		if kind == "extInt32" {
			return ExtInt32{Subtype: int32(st), Value: int32(n)}, nil
		}
		return ExtInt64{Subtype: int32(st), Value: n}, nil
	case "extString":
		st, err := getInt("subtype")
		if err != nil {
			return nil, err
		}
		s, err := getString("value")
		return ExtString{Subtype: int32(st), Value: s}, err
	case "ref":
		lid, err := getString("localId")
		if err != nil {
			return nil, err
		}
		ref := Reference{LocalID: lid}
		if _, ok := obj.Get("namespace"); ok {
			ref.Namespace, err = getString("namespace")
		}
		return ref, err
	case "array":
		items, err := get("items")
		if err != nil {
			return nil, err
		}
		arr, ok := items.(*Array)
		if !ok {
			return nil, fmt.Errorf("%s array marker: items must be an array", markerKey)
		}
		out, err := fromMarkers(arr)
		if err != nil {
			return nil, err
		}
		if hv, ok := obj.Get(headerKey); ok {
			h, err := markerHeader(hv)
			if err != nil {
				return nil, err
			}
			out.(*Array).Header = h
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unknown %s marker type: %s", markerKey, kind)
	}
}

// ============================================================
// ToJSON
// ============================================================

// ToJSON renders v as compact strict JSON.
func ToJSON(v Value) ([]byte, error) {
	return ToJSONWithOpts(v, DefaultBridgeOpts())
}

// ToJSONWithOpts renders v as JSON with options.
func ToJSONWithOpts(v Value, opts BridgeOpts) ([]byte, error) {
	out, err := appendJSON(nil, v, opts)
	if err != nil {
		return nil, err
	}
	if opts.Indent == "" {
		return out, nil
	}
	var buf bytes.Buffer
	if err := j.Indent(&buf, out, "", opts.Indent); err != nil {
		return nil, fmt.Errorf("indenting JSON: %w", err)
	}
	return buf.Bytes(), nil
}

func appendJSONString(b []byte, s string) ([]byte, error) {
	q, err := j.Marshal(s)
	if err != nil {
		return nil, err
	}
	return append(b, q...), nil
}

// appendMarker writes {"$dson": kind, fields...}. Field values are already
// JSON.
func appendMarker(b []byte, kind string, fields ...string) []byte {
	b = append(b, `{"`+markerKey+`":"`+kind+`"`...)
	for i := 0; i+1 < len(fields); i += 2 {
		b = append(b, `,"`+fields[i]+`":`+fields[i+1]...)
	}
	return append(b, '}')
}

// jsonFloat formats f and reports whether it must be wrapped in a marker.
func jsonFloat(f float64, bits int, opts BridgeOpts) (string, bool, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		if !opts.Extended {
			return "", false, newError(KindTypeMismatch, "%s is not representable in JSON", formatFloat(f, bits))
		}
		return strconv.Quote(formatFloat(f, bits)), true, nil
	}
	return strconv.FormatFloat(f, 'g', -1, bits), bits == 32 && opts.Extended, nil
}

func appendJSON(b []byte, v Value, opts BridgeOpts) ([]byte, error) {
	switch x := v.(type) {
	case nil, Null:
		return append(b, "null"...), nil
	case Bool:
		return strconv.AppendBool(b, bool(x)), nil
	case Int32:
		return strconv.AppendInt(b, int64(x), 10), nil
	case Int64:
		if opts.Extended && int64(x) >= math.MinInt32 && int64(x) <= math.MaxInt32 {
			return appendMarker(b, "int64", "value", strconv.FormatInt(int64(x), 10)), nil
		}
		return strconv.AppendInt(b, int64(x), 10), nil
	case Float32:
		s, marked, err := jsonFloat(float64(x), 32, opts)
		if err != nil {
			return nil, err
		}
		if marked {
			return appendMarker(b, "float32", "value", s), nil
		}
		return append(b, s...), nil
	case Float64:
		s, marked, err := jsonFloat(float64(x), 64, opts)
		if err != nil {
			return nil, err
		}
		if marked {
			return appendMarker(b, "float64", "value", s), nil
		}
		if opts.Extended && !bytes.ContainsAny([]byte(s), ".eE") {
			s += ".0"
		}
		return append(b, s...), nil
	case String:
		return appendJSONString(b, string(x))
	case Binary:
		data := base64.StdEncoding.EncodeToString(x.Data)
		if !opts.Extended {
			return appendJSONString(b, data)
		}
		return appendMarker(b, "binary", "subtype", strconv.Itoa(int(x.Subtype)), "base64", strconv.Quote(data)), nil
	case ExtInt32:
		if !opts.Extended {
			return strconv.AppendInt(b, int64(x.Value), 10), nil
		}
		return appendMarker(b, "extInt32", "subtype", strconv.Itoa(int(x.Subtype)), "value", strconv.Itoa(int(x.Value))), nil
	case ExtInt64:
		if !opts.Extended {
			return strconv.AppendInt(b, x.Value, 10), nil
		}
		return appendMarker(b, "extInt64", "subtype", strconv.Itoa(int(x.Subtype)), "value", strconv.FormatInt(x.Value, 10)), nil
	case ExtString:
		if !opts.Extended {
			return appendJSONString(b, x.Value)
		}
		val, err := appendJSONString(nil, x.Value)
		if err != nil {
			return nil, err
		}
		return appendMarker(b, "extString", "subtype", strconv.Itoa(int(x.Subtype)), "value", string(val)), nil
	case Reference:
		if !opts.Extended {
			return appendJSONString(b, x.LocalID)
		}
		lid, err := appendJSONString(nil, x.LocalID)
		if err != nil {
			return nil, err
		}
		if x.Namespace == "" {
			return appendMarker(b, "ref", "localId", string(lid)), nil
		}
		ns, err := appendJSONString(nil, x.Namespace)
		if err != nil {
			return nil, err
		}
		return appendMarker(b, "ref", "localId", string(lid), "namespace", string(ns)), nil
	case *Object[string]:
		return appendJSONObject(b, x, opts)
	case *Object[FieldNumber]:
		return appendJSONObject(b, StringKeys(x).(*Object[string]), opts)
	case *Array:
		if opts.Extended && !x.Header.IsZero() {
			b = append(b, `{"`+markerKey+`":"array","`+headerKey+`":`...)
			b = strconv.AppendQuote(b, x.Header.String())
			b = append(b, `,"items":`...)
			var err error
			if b, err = appendJSONItems(b, x.Items, opts); err != nil {
				return nil, err
			}
			return append(b, '}'), nil
		}
		return appendJSONItems(b, x.Items, opts)
	case *RawValue:
		inner, err := x.Value()
		if err != nil {
			return nil, err
		}
		return appendJSON(b, inner, opts)
	default:
		return nil, fmt.Errorf("unsupported value type: %T", v)
	}
}

func appendJSONItems(b []byte, items []Value, opts BridgeOpts) ([]byte, error) {
	b = append(b, '[')
	for i, item := range items {
		if i > 0 {
			b = append(b, ',')
		}
		var err error
		if b, err = appendJSON(b, item, opts); err != nil {
			return nil, fmt.Errorf("array[%d]: %w", i, err)
		}
	}
	return append(b, ']'), nil
}

func appendJSONObject(b []byte, o *Object[string], opts BridgeOpts) ([]byte, error) {
	b = append(b, '{')
	n := 0
	if opts.Extended && !o.Header.IsZero() {
		b = append(b, `"`+headerKey+`":`...)
		b = strconv.AppendQuote(b, o.Header.String())
		n++
	}
	for _, k := range o.keys {
		if n > 0 {
			b = append(b, ',')
		}
		n++
		var err error
		if b, err = appendJSONString(b, k); err != nil {
			return nil, err
		}
		b = append(b, ':')
		if b, err = appendJSON(b, o.values[k], opts); err != nil {
			return nil, fmt.Errorf("object[%q]: %w", k, err)
		}
	}
	return append(b, '}'), nil
}
