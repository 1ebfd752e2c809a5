// Package sanitize converts arbitrary values into a form that can always be
// encoded as JSON.
//
// The result only contains nil, bool, string, int64, float64, map[string]any
// and []any. Non-finite floats (NaN, +Inf, -Inf) are replaced by 0.0. This is
// lossy: after sanitizing, a missing value cannot be told apart from zero.
package sanitize

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Value returns the sanitized form of v. Value(Value(v)) equals Value(v).
//
//nolint:cyclop // type switch
func Value(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case string:
		return x
	case bool:
		return x
	case int64:
		return x
	case int:
		return int64(x)
	case float64:
		return Float(x)
	case map[string]any:
		if x == nil {
			return nil
		}
		ret := make(map[string]any, len(x))
		for k, item := range x {
			ret[k] = Value(item)
		}
		return ret
	case []any:
		if x == nil {
			return nil
		}
		ret := make([]any, len(x))
		for i, item := range x {
			ret[i] = Value(item)
		}
		return ret
	}
	return value(reflect.ValueOf(v))
}

// Float replaces non-finite values by 0
func Float(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0.0
	}
	return f
}

// unwrap handles wrapper types which need to be converted before their kind
// is inspected.
func unwrap(rv reflect.Value) (any, bool) {
	if !rv.CanInterface() {
		return nil, false
	}
	switch x := rv.Interface().(type) {
	case time.Time:
		return x.Format(time.RFC3339Nano), true
	case time.Duration:
		return x.String(), true
	case decimal.Decimal:
		return Float(x.InexactFloat64()), true
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i, true
		}
		if f, err := x.Float64(); err == nil {
			return Float(f), true
		}
		return x.String(), true
	}
	return nil, false
}

//nolint:cyclop,exhaustive // type dispatch
func value(rv reflect.Value) any {
	if !rv.IsValid() {
		return nil
	}
	if ret, ok := unwrap(rv); ok {
		return ret
	}
	switch rv.Kind() {
	case reflect.Bool:
		return rv.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Uintptr:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return float64(u)
		}
		return int64(u)
	case reflect.Float32, reflect.Float64:
		return Float(rv.Float())
	case reflect.Complex64, reflect.Complex128:
		c := rv.Complex()
		return []any{Float(real(c)), Float(imag(c))}
	case reflect.String:
		return rv.String()
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return nil
		}
		return value(rv.Elem())
	case reflect.Slice:
		if rv.IsNil() {
			return nil
		}
		return sequence(rv)
	case reflect.Array:
		return sequence(rv)
	case reflect.Map:
		if rv.IsNil() {
			return nil
		}
		return mapping(rv)
	case reflect.Struct:
		ret := make(map[string]any, rv.NumField())
		structFields(rv, ret)
		return ret
	default:
		// channels, funcs and unsafe pointers cannot be transported
		return nil
	}
}

func sequence(rv reflect.Value) []any {
	ret := make([]any, rv.Len())
	for i := range ret {
		ret[i] = value(rv.Index(i))
	}
	return ret
}

func mapping(rv reflect.Value) map[string]any {
	ret := make(map[string]any, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		var key string
		if k := iter.Key(); k.Kind() == reflect.String {
			key = k.String()
		} else {
			key = fmt.Sprint(value(k))
		}
		ret[key] = value(iter.Value())
	}
	return ret
}

// structFields adds the exported fields of rv to ret using their json names.
// Embedded structs without a json name are flattened.
func structFields(rv reflect.Value, ret map[string]any) {
	rt := rv.Type()
	for i := range rt.NumField() {
		f := rt.Field(i)
		if !f.IsExported() && !f.Anonymous {
			continue
		}
		name, omitEmpty, skip := jsonName(f)
		if skip {
			continue
		}
		fv := rv.Field(i)
		if f.Anonymous && name == "" {
			if fv.Kind() == reflect.Pointer {
				if fv.IsNil() {
					continue
				}
				fv = fv.Elem()
			}
			if fv.Kind() == reflect.Struct {
				if _, special := unwrap(fv); !special {
					structFields(fv, ret)
					continue
				}
			}
		}
		if !f.IsExported() {
			continue
		}
		if omitEmpty && fv.IsZero() {
			continue
		}
		if name == "" {
			name = f.Name
		}
		ret[name] = value(fv)
	}
}

func jsonName(f reflect.StructField) (name string, omitEmpty, skip bool) {
	tag, ok := f.Tag.Lookup("json")
	if !ok {
		return "", false, false
	}
	if tag == "-" {
		return "", false, true
	}
	parts := strings.Split(tag, ",")
	for _, opt := range parts[1:] {
		if opt == "omitempty" {
			omitEmpty = true
		}
	}
	return parts[0], omitEmpty, false
}
