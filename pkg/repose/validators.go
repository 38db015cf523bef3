package repose

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validator checks an in-memory field value.
// Validators are only called for non-nil values.
type Validator interface {
	Validate(value any) error
}

// ValidatorFunc adapts a plain function to the Validator interface
type ValidatorFunc func(value any) error

func (f ValidatorFunc) Validate(value any) error {
	return f(value)
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Range accepts integers between min and max inclusive
func Range(min, max int64) Validator {
	return &rangeValidator{
		tag: fmt.Sprintf("gte=%d,lte=%d", min, max),
		min: &min,
		max: &max,
	}
}

// Min accepts integers greater than or equal to min
func Min(min int64) Validator {
	return &rangeValidator{
		tag: fmt.Sprintf("gte=%d", min),
		min: &min,
	}
}

// Max accepts integers less than or equal to max
func Max(max int64) Validator {
	return &rangeValidator{
		tag: fmt.Sprintf("lte=%d", max),
		max: &max,
	}
}

type rangeValidator struct {
	tag string
	min *int64
	max *int64
}

func (v *rangeValidator) Validate(value any) error {
	if value == nil {
		return nil
	}

	n, ok := toInt64(value)
	if !ok {
		return fmt.Errorf("%w: %v is not an integer", ErrInvalidValue, value)
	}

	err := validate.Var(n, v.tag)
	if err == nil {
		return nil
	}

	var fieldErrors validator.ValidationErrors
	if !errors.As(err, &fieldErrors) || len(fieldErrors) == 0 {
		return err
	}

	switch fieldErrors[0].Tag() {
	case "lte":
		return fmt.Errorf("%w: %d exceeds maximum of %d", ErrInvalidValue, n, *v.max)
	case "gte":
		return fmt.Errorf("%w: %d is below the minimum of %d", ErrInvalidValue, n, *v.min)
	}

	return fmt.Errorf("%w: %v", ErrInvalidValue, fieldErrors[0])
}

// DictionaryValidator accepts JSON objects only
func DictionaryValidator() Validator {
	return ValidatorFunc(func(value any) error {
		if value == nil {
			return nil
		}
		if _, ok := value.(map[string]any); !ok {
			return fmt.Errorf("%w: %T is not a dictionary", ErrInvalidValue, value)
		}
		return nil
	})
}

// OneOf accepts strings from the given set
func OneOf(options ...string) Validator {
	return Tag("oneof=" + strings.Join(options, " "))
}

// Tag checks a value against a go-playground/validator tag, e.g. "email" or "max=255"
func Tag(tag string) Validator {
	return ValidatorFunc(func(value any) error {
		if value == nil {
			return nil
		}

		err := validate.Var(value, tag)
		if err == nil {
			return nil
		}

		var fieldErrors validator.ValidationErrors
		if errors.As(err, &fieldErrors) && len(fieldErrors) > 0 {
			return fmt.Errorf("%w: %v does not satisfy %q", ErrInvalidValue, value, fieldErrors[0].ActualTag())
		}

		return fmt.Errorf("%w: %w", ErrInvalidValue, err)
	})
}
