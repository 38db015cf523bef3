package repose

import (
	"encoding/json"
	"fmt"
	"maps"
	"strconv"
	"strings"
	"time"
)

// Params are values available to endpoint templates
type Params map[string]any

type segment struct {
	text          string
	isPlaceholder bool
}

func parseTemplate(tmpl string) ([]segment, error) {
	var result []segment
	var literal strings.Builder

	for i := 0; i < len(tmpl); i++ {
		c := tmpl[i]
		switch c {
		case '{':
			if i+1 < len(tmpl) && tmpl[i+1] == '{' {
				literal.WriteByte('{')
				i++
				continue
			}

			end := strings.IndexAny(tmpl[i+1:], "{}")
			if end < 0 || tmpl[i+1+end] != '}' {
				return nil, fmt.Errorf("%w: unclosed placeholder at %d in %q", ErrMalformedTemplate, i, tmpl)
			}
			name := tmpl[i+1 : i+1+end]
			if name == "" {
				return nil, fmt.Errorf("%w: empty placeholder at %d in %q", ErrMalformedTemplate, i, tmpl)
			}

			if literal.Len() > 0 {
				result = append(result, segment{text: literal.String()})
				literal.Reset()
			}
			result = append(result, segment{text: name, isPlaceholder: true})
			i += end + 1
		case '}':
			if i+1 < len(tmpl) && tmpl[i+1] == '}' {
				literal.WriteByte('}')
				i++
				continue
			}
			return nil, fmt.Errorf("%w: single '}' at %d in %q", ErrMalformedTemplate, i, tmpl)
		default:
			literal.WriteByte(c)
		}
	}

	if literal.Len() > 0 {
		result = append(result, segment{text: literal.String()})
	}

	return result, nil
}

// Placeholders returns names of all placeholders used in the template, in order of appearance
func Placeholders(tmpl string) ([]string, error) {
	segments, err := parseTemplate(tmpl)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, s := range segments {
		if s.isPlaceholder {
			names = append(names, s.text)
		}
	}

	return names, nil
}

// FormatEndpoint substitutes {name} placeholders in the template with given values.
// Literal braces are written as {{ and }}. A placeholder without a value, or with a nil value, is an error.
func FormatEndpoint(tmpl string, values map[string]any) (string, error) {
	segments, err := parseTemplate(tmpl)
	if err != nil {
		return "", err
	}

	var result strings.Builder
	for _, s := range segments {
		if !s.isPlaceholder {
			result.WriteString(s.text)
			continue
		}

		value, ok := values[s.text]
		if !ok || value == nil {
			return "", fmt.Errorf("%w: %q in %q", ErrMissingPlaceholder, s.text, tmpl)
		}
		result.WriteString(formatValue(value))
	}

	return result.String(), nil
}

func formatValue(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case time.Time:
		return v.Format(time.RFC3339)
	case fmt.Stringer:
		return v.String()
	}

	return fmt.Sprint(value)
}

// MakeEndpoint resolves the singular endpoint of the resource
func MakeEndpoint(r *Resource) (string, error) {
	if r.kind.endpoint == "" {
		return "", fmt.Errorf("%w: %s", ErrNoEndpoint, r.kind.name)
	}

	return FormatEndpoint(r.kind.endpoint, r.templateValues())
}

// MakeListEndpoint resolves the list endpoint of the resource, used to create new resources
func MakeListEndpoint(r *Resource) (string, error) {
	if r.kind.endpointList == "" {
		return "", fmt.Errorf("%w: %s", ErrNoEndpoint, r.kind.name)
	}

	return FormatEndpoint(r.kind.endpointList, r.templateValues())
}

// ancestry returns the resource followed by its parent, grandparent and so on
func (r *Resource) ancestry() []*Resource {
	chain := []*Resource{r}
	seen := map[*Resource]bool{r: true}

	for parent := r.Parent(); parent != nil && !seen[parent]; parent = parent.Parent() {
		seen[parent] = true
		chain = append(chain, parent)
	}

	return chain
}

// templateValues collects values for the resource's endpoint templates.
// Fetch parameters come first, then qualified "{kind}_{field}" values of the farthest
// ancestor down to the resource itself, then bare field names of the resource, then
// values of fields sourced from the endpoint.
func (r *Resource) templateValues() map[string]any {
	values := make(map[string]any)
	maps.Copy(values, r.fetchParams)

	chain := r.ancestry()
	for i := len(chain) - 1; i >= 0; i-- {
		inst := chain[i]
		prefix := strings.ToLower(inst.kind.name) + "_"
		for _, def := range inst.kind.fields {
			if value, ok := inst.values[def.Name]; ok && value != nil {
				values[prefix+def.Name] = value
			}
		}
	}

	for _, def := range r.kind.fields {
		if value, ok := r.values[def.Name]; ok && value != nil {
			values[def.Name] = value
		}
	}

	maps.Copy(values, r.endpointValues)

	return values
}
