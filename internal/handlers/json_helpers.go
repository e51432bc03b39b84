package handlers

import (
	"encoding/json"
	"net/http"
	"reflect"
	"time"
)

// JSONResponse writes a JSON body, encoding nil slices as [] instead of
// null so list endpoints always return arrays.
func JSONResponse(w http.ResponseWriter, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(emptySlices(data))
}

// emptySlices recursively replaces nil slices with empty ones. Time
// values are passed through untouched so their custom marshalling is
// preserved.
func emptySlices(data interface{}) interface{} {
	if data == nil {
		return data
	}

	v := reflect.ValueOf(data)
	switch v.Kind() {
	case reflect.Ptr:
		if v.IsNil() || v.Elem().Type() == reflect.TypeOf(time.Time{}) {
			return data
		}
		out := reflect.New(v.Elem().Type())
		out.Elem().Set(reflect.ValueOf(emptySlices(v.Elem().Interface())))
		return out.Interface()

	case reflect.Slice:
		if v.IsNil() {
			return reflect.MakeSlice(v.Type(), 0, 0).Interface()
		}
		out := reflect.MakeSlice(v.Type(), v.Len(), v.Len())
		for i := 0; i < v.Len(); i++ {
			out.Index(i).Set(reflect.ValueOf(emptySlices(v.Index(i).Interface())))
		}
		return out.Interface()

	case reflect.Struct:
		if v.Type() == reflect.TypeOf(time.Time{}) {
			return data
		}
		out := reflect.New(v.Type()).Elem()
		for i := 0; i < v.NumField(); i++ {
			field := v.Field(i)
			if !field.CanInterface() || !out.Field(i).CanSet() {
				continue
			}
			switch field.Kind() {
			case reflect.Slice, reflect.Ptr, reflect.Struct:
				out.Field(i).Set(reflect.ValueOf(emptySlices(field.Interface())))
			default:
				out.Field(i).Set(field)
			}
		}
		return out.Interface()
	}

	return data
}
