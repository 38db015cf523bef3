package main

import (
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"

	"github.com/jedib0t/go-pretty/v6/table"
	"gopkg.in/yaml.v3"
)

type formatter func(any) error

func yamlFormatter(resource any) error {
	data, err := yaml.Marshal(resource)
	if err != nil {
		return err
	}
	fmt.Print(string(data))

	return nil
}

func jsonFormatter(resource any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "\t")

	err := encoder.Encode(resource)
	if err != nil {
		return err
	}

	return nil
}

func tableFormatter(resource any) error {
	return renderTable(os.Stdout, resource)
}

// renderTable prints a list of records as rows, a single record as key/value pairs
func renderTable(out io.Writer, resource any) error {
	t := table.NewWriter()
	t.SetOutputMirror(out)

	switch value := resource.(type) {
	case []map[string]any:
		columns := tableColumns(value)
		header := make(table.Row, 0, len(columns))
		for _, column := range columns {
			header = append(header, column)
		}
		t.AppendHeader(header)

		for _, record := range value {
			row := make(table.Row, 0, len(columns))
			for _, column := range columns {
				row = append(row, cellValue(record[column]))
			}
			t.AppendRow(row)
		}
	case map[string]any:
		t.AppendHeader(table.Row{"Field", "Value"})
		for _, key := range slices.Sorted(maps.Keys(value)) {
			t.AppendRow(table.Row{key, cellValue(value[key])})
		}
	default:
		return yamlFormatter(resource)
	}

	t.Render()
	return nil
}

func tableColumns(records []map[string]any) []string {
	seen := make(map[string]struct{})
	for _, record := range records {
		for key := range record {
			seen[key] = struct{}{}
		}
	}

	return slices.Sorted(maps.Keys(seen))
}

// cellValue renders nested values inline
func cellValue(value any) any {
	switch value.(type) {
	case nil:
		return ""
	case map[string]any, []any:
		data, err := json.Marshal(value)
		if err != nil {
			return fmt.Sprint(value)
		}
		return string(data)
	}

	return value
}

func getFormatter(formatName outputFormat) (formatter, error) {
	switch formatName {
	case "yaml", "yml":
		return yamlFormatter, nil
	case "json":
		return jsonFormatter, nil
	case "table":
		return tableFormatter, nil
	}

	return nil, fmt.Errorf("unexpected output format %q", formatName)
}
