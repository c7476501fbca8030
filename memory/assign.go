package memory

import (
	"database/sql"
	"fmt"
	"reflect"
)

// assign copies a stored column value into a Scan destination.
func assign(dest, src any) error {
	if scanner, ok := dest.(sql.Scanner); ok {
		return scanner.Scan(src)
	}

	target := reflect.ValueOf(dest)
	if target.Kind() != reflect.Pointer || target.IsNil() {
		return fmt.Errorf("%w: destination %T is not a non-nil pointer", ErrScan, dest)
	}
	elem := target.Elem()

	if src == nil {
		elem.Set(reflect.Zero(elem.Type()))

		return nil
	}

	value := reflect.ValueOf(src)
	switch {
	case value.Type().AssignableTo(elem.Type()):
		elem.Set(value)
	case elem.Kind() == reflect.String && value.Kind() != reflect.String && value.Kind() != reflect.Slice:
		return fmt.Errorf("%w: cannot assign %T to %T", ErrScan, src, dest)
	case value.Type().ConvertibleTo(elem.Type()):
		elem.Set(value.Convert(elem.Type()))
	default:
		return fmt.Errorf("%w: cannot assign %T to %T", ErrScan, src, dest)
	}

	return nil
}

func cloneValue(v any) any {
	if b, ok := v.([]byte); ok && b != nil {
		return append([]byte(nil), b...)
	}

	return v
}
