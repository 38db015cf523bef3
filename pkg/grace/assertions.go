// Package grace helps command line tools to fail and shut down gracefully.
package grace

import "fmt"

// Error describes a failure the user can act upon
type Error interface {
	error

	WhatExpected() string
	WhatHappened() string
	WhatToDo() string
}

type ActionableError struct {
	expected     string
	got          string
	callToAction string
	cause        error
}

func (e *ActionableError) WhatExpected() string {
	return e.expected
}

func (e *ActionableError) WhatHappened() string {
	return e.got
}

func (e *ActionableError) WhatToDo() string {
	return e.callToAction
}

func (e *ActionableError) Error() string {
	return fmt.Sprintf("expected: %s, got: %s; What to do: %s", e.expected, e.got, e.callToAction)
}

func (e *ActionableError) Unwrap() error {
	return e.cause
}

func RaiseError(
	expected, got, cta string,
) Error {
	return &ActionableError{
		expected:     expected,
		got:          got,
		callToAction: cta,
	}
}

// WrapError raises an actionable error caused by err
func WrapError(err error, expected, cta string) Error {
	return &ActionableError{
		expected:     expected,
		got:          err.Error(),
		callToAction: cta,
		cause:        err,
	}
}
