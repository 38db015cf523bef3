package repose

import (
	"fmt"
)

var (
	ErrUnknownField       = fmt.Errorf("unknown field")
	ErrDuplicateField     = fmt.Errorf("duplicate field")
	ErrInvalidKind        = fmt.Errorf("invalid resource kind")
	ErrNotRegistered      = fmt.Errorf("resource kind is not registered with an API")
	ErrNoEndpoint         = fmt.Errorf("resource kind has no endpoint template")
	ErrMissingPlaceholder = fmt.Errorf("missing endpoint placeholder value")
	ErrMalformedTemplate  = fmt.Errorf("malformed endpoint template")
	ErrUnexpectedPayload  = fmt.Errorf("unexpected payload")
	ErrUnexpectedType     = fmt.Errorf("unexpected value type")
	ErrInvalidValue       = fmt.Errorf("invalid value")
	ErrRequired           = fmt.Errorf("value is required")
)

// ValidationError is returned when a field value is rejected on assignment or decoding
type ValidationError struct {
	Kind  string
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s.%s: %v", e.Kind, e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}
