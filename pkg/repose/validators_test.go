package repose_test

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/sre-norns/repose/pkg/repose"
	"github.com/stretchr/testify/require"
)

func TestValidators(t *testing.T) {
	testCases := map[string]struct {
		validator     repose.Validator
		value         any
		expectMessage string
	}{
		"range-nil": {
			validator: repose.Range(0, 10),
			value:     nil,
		},
		"range-inside": {
			validator: repose.Range(0, 10),
			value:     5,
		},
		"range-lower-bound": {
			validator: repose.Range(0, 10),
			value:     0,
		},
		"range-upper-bound": {
			validator: repose.Range(0, 10),
			value:     int64(10),
		},
		"range-json-number": {
			validator: repose.Range(0, 10),
			value:     json.Number("7"),
		},
		"range-above": {
			validator:     repose.Range(0, 10),
			value:         11,
			expectMessage: "exceeds maximum",
		},
		"range-below": {
			validator:     repose.Range(0, 10),
			value:         -1,
			expectMessage: "below the minimum",
		},
		"range-not-integer": {
			validator:     repose.Range(0, 10),
			value:         "abc",
			expectMessage: "not an integer",
		},
		"min": {
			validator:     repose.Min(1),
			value:         0,
			expectMessage: "below the minimum",
		},
		"max": {
			validator: repose.Max(1),
			value:     1,
		},
		"dictionary": {
			validator: repose.DictionaryValidator(),
			value:     map[string]any{"a": 1},
		},
		"dictionary-nil": {
			validator: repose.DictionaryValidator(),
			value:     nil,
		},
		"dictionary-list": {
			validator:     repose.DictionaryValidator(),
			value:         []any{1},
			expectMessage: "not a dictionary",
		},
		"dictionary-string": {
			validator:     repose.DictionaryValidator(),
			value:         "abc",
			expectMessage: "not a dictionary",
		},
		"one-of": {
			validator: repose.OneOf("open", "closed"),
			value:     "open",
		},
		"one-of-other": {
			validator:     repose.OneOf("open", "closed"),
			value:         "merged",
			expectMessage: "does not satisfy",
		},
		"tag": {
			validator: repose.Tag("url"),
			value:     "https://api.github.com",
		},
		"tag-fails": {
			validator:     repose.Tag("max=3"),
			value:         "octocat",
			expectMessage: `"max"`,
		},
	}

	for name, tc := range testCases {
		test := tc
		t.Run(fmt.Sprintf("validator:%s", name), func(t *testing.T) {
			err := test.validator.Validate(test.value)
			if test.expectMessage == "" {
				require.NoError(t, err)
				return
			}

			require.ErrorIs(t, err, repose.ErrInvalidValue)
			require.ErrorContains(t, err, test.expectMessage)
		})
	}
}
