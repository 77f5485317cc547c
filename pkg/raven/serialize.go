// serialize.go encodes events to JSON, replacing reference cycles in
// user supplied data with a sentinel instead of failing.

package raven

import (
	"encoding"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strings"
)

// CircularSentinel replaces a value that refers back to one of its ancestors.
const CircularSentinel = "[Circular ~]"

// maxDepth bounds the nesting of sanitized values.
const maxDepth = 64

var (
	jsonMarshalerType = reflect.TypeFor[json.Marshaler]()
	textMarshalerType = reflect.TypeFor[encoding.TextMarshaler]()
	errorInterface    = reflect.TypeFor[error]()
)

// MarshalEvent encodes ev as JSON. Extra data, breadcrumb data, user data and
// request data may contain arbitrary values, including cycles.
func MarshalEvent(ev *Event) ([]byte, error) {
	out := *ev
	out.Extra = sanitizeMap(ev.Extra)
	if ev.User != nil && ev.User.Data != nil {
		u := *ev.User
		u.Data = sanitizeMap(u.Data)
		out.User = &u
	}
	if len(ev.Breadcrumbs) > 0 {
		out.Breadcrumbs = make([]Breadcrumb, len(ev.Breadcrumbs))
		for i, b := range ev.Breadcrumbs {
			b.Data = sanitizeMap(b.Data)
			out.Breadcrumbs[i] = b
		}
	}
	if ev.Request != nil && ev.Request.Data != nil {
		r := *ev.Request
		r.Data = sanitize(reflect.ValueOf(r.Data), map[uintptr]bool{}, 0)
		out.Request = &r
	}
	if ev.Contexts != nil {
		out.Contexts = sanitizeMap(ev.Contexts)
	}
	return json.Marshal(&out)
}

func sanitizeMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	v, _ := sanitize(reflect.ValueOf(m), map[uintptr]bool{}, 0).(map[string]any)
	return v
}

// sanitize converts v into a tree of maps, slices and scalars that
// encoding/json can always encode. seen holds the addresses of the containers
// on the path from the root to v.
func sanitize(v reflect.Value, seen map[uintptr]bool, depth int) any {
	if !v.IsValid() {
		return nil
	}
	if depth > maxDepth {
		return CircularSentinel
	}

	if v.Kind() == reflect.Interface {
		if v.IsNil() {
			return nil
		}
		return sanitize(v.Elem(), seen, depth)
	}

	t := v.Type()
	if t.Implements(errorInterface) && !t.Implements(jsonMarshalerType) {
		if v.Kind() == reflect.Pointer && v.IsNil() {
			return nil
		}
		return errorMessage(v.Interface().(error))
	}
	if t.Implements(jsonMarshalerType) || t.Implements(textMarshalerType) {
		if v.Kind() == reflect.Pointer && v.IsNil() {
			return nil
		}
		return v.Interface()
	}

	switch v.Kind() {
	case reflect.Pointer:
		if v.IsNil() {
			return nil
		}
		addr := v.Pointer()
		if seen[addr] {
			return CircularSentinel
		}
		seen[addr] = true
		defer delete(seen, addr)
		return sanitize(v.Elem(), seen, depth+1)

	case reflect.Map:
		if v.IsNil() {
			return nil
		}
		addr := v.Pointer()
		if seen[addr] {
			return CircularSentinel
		}
		seen[addr] = true
		defer delete(seen, addr)
		out := make(map[string]any, v.Len())
		iter := v.MapRange()
		for iter.Next() {
			out[mapKey(iter.Key())] = sanitize(iter.Value(), seen, depth+1)
		}
		return out

	case reflect.Slice:
		if v.IsNil() {
			return nil
		}
		if t.Elem().Kind() == reflect.Uint8 {
			return v.Bytes()
		}
		if v.Len() > 0 {
			addr := v.Pointer()
			if seen[addr] {
				return CircularSentinel
			}
			seen[addr] = true
			defer delete(seen, addr)
		}
		return sanitizeList(v, seen, depth)

	case reflect.Array:
		return sanitizeList(v, seen, depth)

	case reflect.Struct:
		return sanitizeStruct(v, seen, depth)

	case reflect.Float32, reflect.Float64:
		f := v.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Sprint(f)
		}
		return f

	case reflect.Complex64, reflect.Complex128, reflect.Func, reflect.Chan, reflect.UnsafePointer:
		return fmt.Sprintf("<%s>", t)

	default:
		return v.Interface()
	}
}

func sanitizeList(v reflect.Value, seen map[uintptr]bool, depth int) []any {
	out := make([]any, v.Len())
	for i := range out {
		out[i] = sanitize(v.Index(i), seen, depth+1)
	}
	return out
}

// sanitizeStruct maps exported fields by their json names.
func sanitizeStruct(v reflect.Value, seen map[uintptr]bool, depth int) map[string]any {
	t := v.Type()
	out := make(map[string]any, t.NumField())
	for i := range t.NumField() {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		name, omitEmpty := field.Name, false
		if tag, ok := field.Tag.Lookup("json"); ok {
			if tag == "-" {
				continue
			}
			tagName, opts, _ := strings.Cut(tag, ",")
			if tagName != "" {
				name = tagName
			}
			omitEmpty = strings.Contains(opts, "omitempty")
		}
		fv := v.Field(i)
		if omitEmpty && fv.IsZero() {
			continue
		}
		out[name] = sanitize(fv, seen, depth+1)
	}
	return out
}

func mapKey(k reflect.Value) string {
	if k.Kind() == reflect.String {
		return k.String()
	}
	if tm, ok := k.Interface().(encoding.TextMarshaler); ok {
		if b, err := tm.MarshalText(); err == nil {
			return string(b)
		}
	}
	return fmt.Sprint(k.Interface())
}
