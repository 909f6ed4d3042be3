package http

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
)

const maxJSONDepth = 512

var jsonMarshalerType = reflect.TypeOf((*json.Marshaler)(nil)).Elem()

// checkSerializable reports the first value inside v that is not a string,
// boolean, finite number, null, array or string-keyed object.
func checkSerializable(v any) error {
	return walkJSON(reflect.ValueOf(v), "$", 0)
}

func walkJSON(v reflect.Value, path string, depth int) error {
	if depth > maxJSONDepth {
		return fmt.Errorf("%s: nesting deeper than %d levels", path, maxJSONDepth)
	}
	if !v.IsValid() {
		return nil
	}
	if v.Type().Implements(jsonMarshalerType) {
		return nil
	}

	switch v.Kind() {
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return nil
	case reflect.Float32, reflect.Float64:
		f := v.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("%s: non-finite number %v", path, f)
		}
		return nil
	case reflect.Interface, reflect.Pointer:
		if v.IsNil() {
			return nil
		}
		return walkJSON(v.Elem(), path, depth+1)
	case reflect.Slice, reflect.Array:
		if v.Kind() == reflect.Slice && v.IsNil() {
			return nil
		}
		if v.Type().Elem().Kind() == reflect.Uint8 {
			return fmt.Errorf("%s: binary buffer is not a JSON value", path)
		}
		for i := 0; i < v.Len(); i++ {
			if err := walkJSON(v.Index(i), fmt.Sprintf("%s[%d]", path, i), depth+1); err != nil {
				return err
			}
		}
		return nil
	case reflect.Map:
		if v.Type().Key().Kind() != reflect.String {
			return fmt.Errorf("%s: object keys must be strings, got %s", path, v.Type().Key())
		}
		iter := v.MapRange()
		for iter.Next() {
			if err := walkJSON(iter.Value(), path+"."+iter.Key().String(), depth+1); err != nil {
				return err
			}
		}
		return nil
	case reflect.Struct:
		t := v.Type()
		for i := 0; i < t.NumField(); i++ {
			if !t.Field(i).IsExported() {
				continue
			}
			if err := walkJSON(v.Field(i), path+"."+t.Field(i).Name, depth+1); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("%s: %s is not a JSON value", path, v.Type())
	}
}

// encodeJSON validates v and serializes it.
func encodeJSON(field string, v any) ([]byte, error) {
	if err := checkSerializable(v); err != nil {
		return nil, &Error{Kind: KindNonSerializableValue, Field: field, Err: err}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, &Error{Kind: KindNonSerializableValue, Field: field, Err: err}
	}
	return data, nil
}
