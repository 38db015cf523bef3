package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRenderTable_Records(t *testing.T) {
	var out bytes.Buffer
	err := renderTable(&out, []map[string]any{
		{"id": 1, "name": "Test User"},
		{"id": 2, "tags": []any{"go"}},
	})
	require.NoError(t, err)

	rendered := out.String()
	require.Contains(t, rendered, "ID")
	require.Contains(t, rendered, "NAME")
	require.Contains(t, rendered, "TAGS")
	require.Contains(t, rendered, "Test User")
	require.Contains(t, rendered, `["go"]`)
}

func TestRenderTable_Record(t *testing.T) {
	var out bytes.Buffer
	err := renderTable(&out, map[string]any{
		"name":    "Test User",
		"profile": map[string]any{"age": 42},
	})
	require.NoError(t, err)

	rendered := out.String()
	require.Contains(t, rendered, "FIELD")
	require.Contains(t, rendered, `{"age":42}`)
	require.Less(t, bytes.Index(out.Bytes(), []byte("name")), bytes.Index(out.Bytes(), []byte("profile")))
}

func TestGetFormatter(t *testing.T) {
	for _, name := range []outputFormat{"yaml", "yml", "json", "table"} {
		f, err := getFormatter(name)
		require.NoError(t, err)
		require.NotNil(t, f)
	}

	_, err := getFormatter("xml")
	require.Error(t, err)
}
