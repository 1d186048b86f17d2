package logging

import (
	"bytes"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

const circularMarker = "[Circular]"

// Attr is a single key/value pair attached to a LogEvent.
type Attr struct {
	Key   string
	Value any
}

func String(key, value string) Attr { return Attr{Key: key, Value: value} }

func Int(key string, value int) Attr { return Attr{Key: key, Value: int64(value)} }

func Int64(key string, value int64) Attr { return Attr{Key: key, Value: value} }

func Float64(key string, value float64) Attr { return Attr{Key: key, Value: value} }

func Bool(key string, value bool) Attr { return Attr{Key: key, Value: value} }

// Duration stores d in milliseconds.
func Duration(key string, d time.Duration) Attr {
	return Float64(key, float64(d)/float64(time.Millisecond))
}

// Err stores err under the "error" key.
func Err(err error) Attr { return Attr{Key: "error", Value: err} }

func Any(key string, value any) Attr { return Attr{Key: key, Value: value} }

// Attrs is an ordered attribute list. It marshals as a JSON object that keeps
// insertion order; a repeated key keeps its first position and last value.
type Attrs []Attr

// MarshalJSON implements json.Marshaler.
func (a Attrs) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')

	index := make(map[string]int, len(a))
	keys := make([]string, 0, len(a))
	values := make([]any, 0, len(a))
	for _, attr := range a {
		v := sanitize(attr.Value, make(map[uintptr]struct{}))
		if i, ok := index[attr.Key]; ok {
			values[i] = v
			continue
		}
		index[attr.Key] = len(keys)
		keys = append(keys, attr.Key)
		values = append(values, v)
	}

	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(values[i])
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", k, err)
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// sanitize converts v into a value safe to marshal: errors become their
// message and any container revisiting itself on the current path becomes
// circularMarker.
func sanitize(v any, path map[uintptr]struct{}) any {
	// a typed nil may still satisfy error or fmt.Stringer
	if rv := reflect.ValueOf(v); rv.IsValid() {
		switch rv.Kind() {
		case reflect.Pointer, reflect.Map, reflect.Slice:
			if rv.IsNil() {
				return nil
			}
		}
	}

	switch val := v.(type) {
	case nil:
		return nil
	case error:
		return val.Error()
	case string, bool, int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64, float32, float64:
		return val
	case time.Time:
		return val
	case time.Duration:
		return val.String()
	case fmt.Stringer:
		return val.String()
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer:
		if rv.IsNil() {
			return nil
		}
		return visit(rv, path, func() any {
			return sanitize(rv.Elem().Interface(), path)
		})

	case reflect.Map:
		if rv.IsNil() {
			return nil
		}
		return visit(rv, path, func() any {
			out := make(map[string]any, rv.Len())
			iter := rv.MapRange()
			for iter.Next() {
				out[fmt.Sprint(iter.Key().Interface())] = sanitize(iter.Value().Interface(), path)
			}
			return out
		})

	case reflect.Slice:
		if rv.IsNil() {
			return nil
		}
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return v
		}
		if rv.Len() == 0 {
			return []any{}
		}
		return visit(rv, path, func() any {
			return sanitizeList(rv, path)
		})

	case reflect.Array:
		return sanitizeList(rv, path)

	case reflect.Struct:
		return sanitizeStruct(rv, path)

	case reflect.Func, reflect.Chan, reflect.UnsafePointer:
		return fmt.Sprintf("%T", v)
	}

	return v
}

func visit(rv reflect.Value, path map[uintptr]struct{}, fn func() any) any {
	ptr := rv.Pointer()
	if _, ok := path[ptr]; ok {
		return circularMarker
	}
	path[ptr] = struct{}{}
	defer delete(path, ptr)
	return fn()
}

func sanitizeList(rv reflect.Value, path map[uintptr]struct{}) []any {
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = sanitize(rv.Index(i).Interface(), path)
	}
	return out
}

func sanitizeStruct(rv reflect.Value, path map[uintptr]struct{}) map[string]any {
	t := rv.Type()
	out := make(map[string]any, t.NumField())
	for i := range t.NumField() {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		name := field.Name
		if tag, ok := field.Tag.Lookup("json"); ok {
			tagName, _, _ := strings.Cut(tag, ",")
			if tagName == "-" {
				continue
			}
			if tagName != "" {
				name = tagName
			}
		}
		out[name] = sanitize(rv.Field(i).Interface(), path)
	}
	return out
}
