package main

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// parseAssignments parses field=value pairs. Values are YAML scalars or flow collections,
// so 42 is an integer, true is a boolean and an empty value is null.
func parseAssignments(assignments []string) (map[string]any, error) {
	result := make(map[string]any, len(assignments))
	for _, assignment := range assignments {
		name, raw, ok := strings.Cut(assignment, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("expected field=value, got %q", assignment)
		}

		var value any
		if err := yaml.Unmarshal([]byte(raw), &value); err != nil {
			return nil, fmt.Errorf("failed to parse value of %q: %w", name, err)
		}
		result[name] = value
	}

	return result, nil
}
