package repose_test

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/sre-norns/repose/pkg/repose"
	"github.com/stretchr/testify/require"
)

func TestField_Decode(t *testing.T) {
	testCases := map[string]struct {
		field     repose.Field
		raw       any
		expect    any
		expectErr error
	}{
		"integer": {
			field:  repose.Integer(),
			raw:    json.Number("42"),
			expect: int64(42),
		},
		"integer-from-float": {
			field:  repose.Integer(),
			raw:    float64(42),
			expect: int64(42),
		},
		"integer-nil": {
			field: repose.Integer(),
			raw:   nil,
		},
		"integer-from-string": {
			field:     repose.Integer(),
			raw:       "42",
			expectErr: repose.ErrUnexpectedType,
		},
		"float": {
			field:  repose.Float(),
			raw:    json.Number("2.5"),
			expect: 2.5,
		},
		"string": {
			field:  repose.String(),
			raw:    "hello",
			expect: "hello",
		},
		"boolean": {
			field:  repose.Boolean(),
			raw:    true,
			expect: true,
		},
		"boolean-from-string": {
			field:     repose.Boolean(),
			raw:       "true",
			expectErr: repose.ErrUnexpectedType,
		},
		"dictionary": {
			field:  repose.Dictionary(),
			raw:    map[string]any{"on": true},
			expect: map[string]any{"on": true},
		},
		"list": {
			field:  repose.List(),
			raw:    []any{"a"},
			expect: []any{"a"},
		},
		"raw": {
			field:  repose.Raw(),
			raw:    json.Number("1.0"),
			expect: json.Number("1.0"),
		},
		"iso-date": {
			field:  repose.IsoDate(),
			raw:    "2024-03-01T12:30:00Z",
			expect: time.Date(2024, time.March, 1, 12, 30, 0, 0, time.UTC),
		},
		"iso-date-invalid": {
			field:     repose.IsoDate(),
			raw:       "yesterday",
			expectErr: repose.ErrUnexpectedType,
		},
	}

	for name, tc := range testCases {
		test := tc
		t.Run(fmt.Sprintf("decode:%s", name), func(t *testing.T) {
			got, err := test.field.Decode(test.raw)
			if test.expectErr != nil {
				require.ErrorIs(t, err, test.expectErr)
				return
			}

			require.NoError(t, err)
			require.Equal(t, test.expect, got)
		})
	}
}

func TestField_IsoDateEncode(t *testing.T) {
	field := repose.IsoDate()
	when := time.Date(2024, time.March, 1, 12, 30, 0, 0, time.UTC)

	encoded, err := field.Encode(context.Background(), when)
	require.NoError(t, err)
	require.Equal(t, "2024-03-01T12:30:00Z", encoded)

	encoded, err = field.Encode(context.Background(), nil)
	require.NoError(t, err)
	require.Nil(t, encoded)

	_, err = field.Encode(context.Background(), 42)
	require.ErrorIs(t, err, repose.ErrUnexpectedType)
}

func TestField_DictionaryValidates(t *testing.T) {
	field := repose.Dictionary()
	require.NoError(t, field.Validate(nil))
	require.NoError(t, field.Validate(map[string]any{}))
	require.ErrorIs(t, field.Validate("abc"), repose.ErrInvalidValue)
}
