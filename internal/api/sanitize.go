package api

import (
	"math"
	"reflect"
	"strings"
	"time"
)

// Sanitize walks a value and replaces every NaN or infinite float with nil,
// so the JSON encoder emits null instead of failing. Struct fields follow
// their json tags; the shape of the value is otherwise preserved.
func Sanitize(v interface{}) interface{} {
	if v == nil {
		return nil
	}
	return sanitizeValue(reflect.ValueOf(v))
}

func sanitizeValue(v reflect.Value) interface{} {
	switch v.Kind() {
	case reflect.Invalid:
		return nil

	case reflect.Ptr, reflect.Interface:
		if v.IsNil() {
			return nil
		}
		return sanitizeValue(v.Elem())

	case reflect.Float32, reflect.Float64:
		f := v.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil
		}
		return f

	case reflect.Slice:
		if v.IsNil() {
			return nil
		}
		return sanitizeSeq(v)

	case reflect.Array:
		return sanitizeSeq(v)

	case reflect.Map:
		if v.IsNil() {
			return nil
		}
		out := make(map[string]interface{}, v.Len())
		iter := v.MapRange()
		for iter.Next() {
			key, ok := iter.Key().Interface().(string)
			if !ok {
				key = iter.Key().String()
			}
			out[key] = sanitizeValue(iter.Value())
		}
		return out

	case reflect.Struct:
		// time.Time marshals itself and carries no floats
		if t, ok := v.Interface().(time.Time); ok {
			return t
		}
		return sanitizeStruct(v)

	default:
		return v.Interface()
	}
}

func sanitizeSeq(v reflect.Value) interface{} {
	out := make([]interface{}, v.Len())
	for i := range out {
		out[i] = sanitizeValue(v.Index(i))
	}
	return out
}

func sanitizeStruct(v reflect.Value) map[string]interface{} {
	t := v.Type()
	out := make(map[string]interface{}, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if field.PkgPath != "" { // unexported
			continue
		}

		name := field.Name
		omitEmpty := false
		if tag, ok := field.Tag.Lookup("json"); ok {
			parts := strings.Split(tag, ",")
			if parts[0] == "-" {
				continue
			}
			if parts[0] != "" {
				name = parts[0]
			}
			for _, opt := range parts[1:] {
				if opt == "omitempty" {
					omitEmpty = true
				}
			}
		}

		fv := v.Field(i)
		if field.Anonymous && fv.Kind() == reflect.Struct {
			if embedded, ok := sanitizeValue(fv).(map[string]interface{}); ok {
				for k, val := range embedded {
					out[k] = val
				}
				continue
			}
		}
		if omitEmpty && fv.IsZero() {
			continue
		}
		out[name] = sanitizeValue(fv)
	}
	return out
}
