package repose

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"time"
)

// Field converts a single resource value between its wire and in-memory representations
type Field interface {
	// Decode converts raw value, as found in an API response, into an in-memory value
	Decode(raw any) (any, error)

	// Encode converts in-memory value into a value to be sent to the API
	Encode(ctx context.Context, value any) (any, error)

	// Validate checks in-memory value. Nil is always valid.
	Validate(value any) error
}

// ParentLinker is implemented by fields whose values are themselves part of the resource graph.
// Owner is the resource holding the value.
type ParentLinker interface {
	LinkParent(value any, owner *Resource)
}

// Coercer is implemented by fields accepting several in-memory representations of a value.
// Coerce is applied to non-nil values assigned to the field before validation.
type Coercer interface {
	Coerce(value any) (any, error)
}

type scalarField struct {
	typeName   string
	convert    func(value any) (any, bool)
	encode     func(value any) any
	validators []Validator
}

func (f *scalarField) Decode(raw any) (any, error) {
	if raw == nil {
		return nil, nil
	}

	value, ok := f.convert(raw)
	if !ok {
		return nil, fmt.Errorf("%w: %T can not be decoded as %s", ErrUnexpectedType, raw, f.typeName)
	}

	return value, nil
}

func (f *scalarField) Encode(_ context.Context, value any) (any, error) {
	if value == nil {
		return nil, nil
	}

	converted, ok := f.convert(value)
	if !ok {
		return nil, fmt.Errorf("%w: %T can not be encoded as %s", ErrUnexpectedType, value, f.typeName)
	}
	if f.encode != nil {
		return f.encode(converted), nil
	}

	return converted, nil
}

func (f *scalarField) Coerce(value any) (any, error) {
	converted, ok := f.convert(value)
	if !ok {
		return nil, fmt.Errorf("%w: %T is not %s", ErrInvalidValue, value, f.typeName)
	}

	return converted, nil
}

func (f *scalarField) Validate(value any) error {
	if value == nil {
		return nil
	}

	if _, ok := f.convert(value); !ok {
		return fmt.Errorf("%w: %T is not %s", ErrInvalidValue, value, f.typeName)
	}

	for _, v := range f.validators {
		if err := v.Validate(value); err != nil {
			return err
		}
	}

	return nil
}

func Integer(validators ...Validator) Field {
	return &scalarField{
		typeName: "an integer",
		convert: func(value any) (any, bool) {
			n, ok := toInt64(value)
			return n, ok
		},
		validators: validators,
	}
}

func Float(validators ...Validator) Field {
	return &scalarField{
		typeName: "a number",
		convert: func(value any) (any, bool) {
			n, ok := toFloat64(value)
			return n, ok
		},
		validators: validators,
	}
}

func String(validators ...Validator) Field {
	return &scalarField{
		typeName: "a string",
		convert: func(value any) (any, bool) {
			s, ok := value.(string)
			return s, ok
		},
		validators: validators,
	}
}

func Boolean(validators ...Validator) Field {
	return &scalarField{
		typeName: "a boolean",
		convert: func(value any) (any, bool) {
			b, ok := value.(bool)
			return b, ok
		},
		validators: validators,
	}
}

// Dictionary is a field holding JSON object as map[string]any
func Dictionary(validators ...Validator) Field {
	return &scalarField{
		typeName: "a dictionary",
		convert: func(value any) (any, bool) {
			m, ok := value.(map[string]any)
			return m, ok
		},
		validators: append([]Validator{DictionaryValidator()}, validators...),
	}
}

// List is a field holding JSON array as []any
func List(validators ...Validator) Field {
	return &scalarField{
		typeName: "a list",
		convert: func(value any) (any, bool) {
			l, ok := value.([]any)
			return l, ok
		},
		validators: validators,
	}
}

// Raw is a field passing values through as is
func Raw(validators ...Validator) Field {
	return &scalarField{
		typeName: "a value",
		convert: func(value any) (any, bool) {
			return value, true
		},
		validators: validators,
	}
}

// IsoDate is a field holding RFC 3339 timestamp on the wire and time.Time in memory
func IsoDate(validators ...Validator) Field {
	return &scalarField{
		typeName: "an ISO 8601 date",
		convert: func(value any) (any, bool) {
			switch v := value.(type) {
			case time.Time:
				return v, true
			case string:
				t, err := time.Parse(time.RFC3339, v)
				return t, err == nil
			}
			return nil, false
		},
		encode: func(value any) any {
			return value.(time.Time).Format(time.RFC3339)
		},
		validators: validators,
	}
}

func toInt64(value any) (int64, bool) {
	switch v := value.(type) {
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n, true
		}
		f, err := v.Float64()
		if err != nil {
			return 0, false
		}
		return toInt64(f)
	case float64:
		if v != math.Trunc(v) || math.IsInf(v, 0) {
			return 0, false
		}
		return int64(v), true
	case float32:
		return toInt64(float64(v))
	}

	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return 0, false
		}
		return int64(u), true
	}

	return 0, false
}

func toFloat64(value any) (float64, bool) {
	switch v := value.(type) {
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case float64:
		return v, true
	case float32:
		return float64(v), true
	}

	if n, ok := toInt64(value); ok {
		return float64(n), true
	}

	return 0, false
}
