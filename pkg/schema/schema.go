// Package schema declares resource kinds in YAML documents and compiles them into repose kinds.
package schema

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/sre-norns/repose/pkg/repose"
	"gopkg.in/yaml.v3"
)

var (
	ErrInvalidSchema = fmt.Errorf("invalid schema")
	ErrUnknownKind   = fmt.Errorf("unknown kind")
	ErrKindCycle     = fmt.Errorf("kinds refer to each other")
)

type FieldType string

const (
	TypeInteger    FieldType = "integer"
	TypeFloat      FieldType = "float"
	TypeString     FieldType = "string"
	TypeBoolean    FieldType = "boolean"
	TypeDictionary FieldType = "dictionary"
	TypeList       FieldType = "list"
	TypeRaw        FieldType = "raw"
	TypeDate       FieldType = "date"
	TypeEmbedded   FieldType = "embedded"
	TypeCollection FieldType = "collection"
	TypeIDList     FieldType = "idlist"
)

func (t FieldType) refersToKind() bool {
	return t == TypeEmbedded || t == TypeCollection || t == TypeIDList
}

type Range struct {
	Min *int64 `yaml:"min,omitempty" json:"min,omitempty"`
	Max *int64 `yaml:"max,omitempty" json:"max,omitempty"`
}

type FieldSpec struct {
	Name string    `yaml:"name" json:"name" validate:"required"`
	Type FieldType `yaml:"type" json:"type" validate:"required,oneof=integer float string boolean dictionary list raw date embedded collection idlist"`

	// Kind of resources held by embedded, collection and idlist fields
	Kind    string `yaml:"kind,omitempty" json:"kind,omitempty" validate:"required_if=Type embedded,required_if=Type collection,required_if=Type idlist"`
	IDField string `yaml:"idField,omitempty" json:"idField,omitempty"`

	FromEndpoint string `yaml:"fromEndpoint,omitempty" json:"fromEndpoint,omitempty"`
	Required     bool   `yaml:"required,omitempty" json:"required,omitempty"`

	Range    *Range   `yaml:"range,omitempty" json:"range,omitempty"`
	OneOf    []string `yaml:"oneOf,omitempty" json:"oneOf,omitempty"`
	Validate string   `yaml:"validate,omitempty" json:"validate,omitempty"`
}

type ManagerSpec struct {
	Name            string `yaml:"name" json:"name" validate:"required"`
	ResultsEndpoint string `yaml:"resultsEndpoint,omitempty" json:"resultsEndpoint,omitempty"`
	// ResultsKey unwraps results from an object envelope
	ResultsKey string `yaml:"resultsKey,omitempty" json:"resultsKey,omitempty"`
	// IDList marks results as a list of identifiers of resources to fetch
	IDList bool `yaml:"idList,omitempty" json:"idList,omitempty"`
	// Match keeps only resources whose fields are equal to the given values
	Match map[string]string `yaml:"match,omitempty" json:"match,omitempty"`
}

type KindSpec struct {
	Name         string        `yaml:"name" json:"name" validate:"required"`
	Endpoint     string        `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`
	EndpointList string        `yaml:"endpointList,omitempty" json:"endpointList,omitempty"`
	Fields       []FieldSpec   `yaml:"fields" json:"fields" validate:"dive"`
	Managers     []ManagerSpec `yaml:"managers,omitempty" json:"managers,omitempty" validate:"dive"`
}

// Schema is a set of resource kind declarations
type Schema struct {
	BaseUrl string     `yaml:"baseUrl,omitempty" json:"baseUrl,omitempty" validate:"omitempty,url"`
	Kinds   []KindSpec `yaml:"kinds" json:"kinds" validate:"required,min=1,dive"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Parse reads and validates a YAML schema document
func Parse(data []byte) (*Schema, error) {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)

	var result Schema
	if err := decoder.Decode(&result); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSchema, err)
	}

	if err := result.Validate(); err != nil {
		return nil, err
	}

	return &result, nil
}

// Load reads a schema from a file
func Load(filename string) (*Schema, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema %q: %w", filename, err)
	}

	return Parse(data)
}

// Validate checks declarations and references between kinds
func (s *Schema) Validate() error {
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSchema, err)
	}

	names := make(map[string]bool, len(s.Kinds))
	for _, k := range s.Kinds {
		key := strings.ToLower(k.Name)
		if names[key] {
			return fmt.Errorf("%w: kind %q is declared more than once", ErrInvalidSchema, k.Name)
		}
		names[key] = true
	}

	for _, k := range s.Kinds {
		for _, f := range k.Fields {
			if f.Type.refersToKind() && !names[strings.ToLower(f.Kind)] {
				return fmt.Errorf("%w: %q referred by %s.%s", ErrUnknownKind, f.Kind, k.Name, f.Name)
			}
			if f.Range != nil && f.Range.Min != nil && f.Range.Max != nil && *f.Range.Min > *f.Range.Max {
				return fmt.Errorf("%w: %s.%s range minimum %d exceeds maximum %d", ErrInvalidSchema, k.Name, f.Name, *f.Range.Min, *f.Range.Max)
			}
		}
	}

	return nil
}

// Build compiles declared kinds. Kinds are returned in declaration order.
func (s *Schema) Build() ([]*repose.Kind, error) {
	specs := make(map[string]KindSpec, len(s.Kinds))
	for _, k := range s.Kinds {
		specs[strings.ToLower(k.Name)] = k
	}

	built := make(map[string]*repose.Kind, len(s.Kinds))
	visiting := make(map[string]bool)

	var build func(name string) (*repose.Kind, error)
	build = func(name string) (*repose.Kind, error) {
		key := strings.ToLower(name)
		if k, ok := built[key]; ok {
			return k, nil
		}
		spec, ok := specs[key]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownKind, name)
		}
		if visiting[key] {
			return nil, fmt.Errorf("%w: %s", ErrKindCycle, name)
		}
		visiting[key] = true
		defer delete(visiting, key)

		deps := make(map[string]*repose.Kind)
		for _, f := range spec.Fields {
			if !f.Type.refersToKind() {
				continue
			}
			dep, err := build(f.Kind)
			if err != nil {
				return nil, fmt.Errorf("%s.%s: %w", spec.Name, f.Name, err)
			}
			deps[strings.ToLower(f.Kind)] = dep
		}

		k, err := spec.build(deps)
		if err != nil {
			return nil, err
		}

		built[key] = k
		return k, nil
	}

	result := make([]*repose.Kind, 0, len(s.Kinds))
	var errs []error
	for _, spec := range s.Kinds {
		k, err := build(spec.Name)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		result = append(result, k)
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	return result, nil
}

// Register builds declared kinds and registers them with the Api
func (s *Schema) Register(a *repose.Api) ([]*repose.Kind, error) {
	kinds, err := s.Build()
	if err != nil {
		return nil, err
	}

	if err := a.Register(kinds...); err != nil {
		return nil, err
	}

	return kinds, nil
}

func (k KindSpec) build(deps map[string]*repose.Kind) (*repose.Kind, error) {
	builder := repose.NewKind(k.Name).
		Endpoint(k.Endpoint).
		EndpointList(k.EndpointList)

	for _, f := range k.Fields {
		field, err := f.field(deps)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", k.Name, f.Name, err)
		}

		var options []repose.FieldOption
		if f.FromEndpoint != "" {
			options = append(options, repose.FromEndpoint(f.FromEndpoint))
		}
		if f.Required {
			options = append(options, repose.Required())
		}

		builder.Field(f.Name, field, options...)
	}

	var self *repose.Kind
	for _, m := range k.Managers {
		builder.Manager(m.Name, m.options(func() *repose.Kind { return self })...)
	}

	result, err := builder.Build()
	if err != nil {
		return nil, err
	}
	self = result

	return result, nil
}

func (f FieldSpec) validators() []repose.Validator {
	var result []repose.Validator

	if f.Range != nil {
		switch {
		case f.Range.Min != nil && f.Range.Max != nil:
			result = append(result, repose.Range(*f.Range.Min, *f.Range.Max))
		case f.Range.Min != nil:
			result = append(result, repose.Min(*f.Range.Min))
		case f.Range.Max != nil:
			result = append(result, repose.Max(*f.Range.Max))
		}
	}
	if len(f.OneOf) > 0 {
		result = append(result, repose.OneOf(f.OneOf...))
	}
	if f.Validate != "" {
		result = append(result, repose.Tag(f.Validate))
	}

	return result
}

func (f FieldSpec) field(deps map[string]*repose.Kind) (repose.Field, error) {
	validators := f.validators()

	switch f.Type {
	case TypeInteger:
		return repose.Integer(validators...), nil
	case TypeFloat:
		return repose.Float(validators...), nil
	case TypeString:
		return repose.String(validators...), nil
	case TypeBoolean:
		return repose.Boolean(validators...), nil
	case TypeDictionary:
		return repose.Dictionary(validators...), nil
	case TypeList:
		return repose.List(validators...), nil
	case TypeRaw:
		return repose.Raw(validators...), nil
	case TypeDate:
		return repose.IsoDate(validators...), nil
	case TypeEmbedded:
		return repose.Embedded(deps[strings.ToLower(f.Kind)]), nil
	case TypeCollection:
		return repose.ManagedCollection(deps[strings.ToLower(f.Kind)]), nil
	case TypeIDList:
		field := repose.ManagedIDListCollection(deps[strings.ToLower(f.Kind)])
		if f.IDField != "" {
			field = field.WithIDField(f.IDField)
		}
		return field, nil
	}

	return nil, fmt.Errorf("%w: unsupported field type %q", ErrInvalidSchema, f.Type)
}

// options of the manager. Kind is resolved lazily since the manager belongs to the kind being built.
func (m ManagerSpec) options(kind func() *repose.Kind) []repose.ManagerOption {
	var result []repose.ManagerOption

	if m.ResultsEndpoint != "" {
		result = append(result, repose.WithResultsEndpoint(m.ResultsEndpoint))
	}

	var decoders []repose.ListDecoder
	if m.ResultsKey != "" {
		decoders = append(decoders, repose.ResultsKey(m.ResultsKey))
	}
	if m.IDList {
		decoders = append(decoders, func(raw any) (any, error) {
			return repose.IDList(kind())(raw)
		})
	}
	if len(decoders) > 0 {
		result = append(result, repose.WithDecoders(decoders...))
	}

	if len(m.Match) > 0 {
		match := m.Match
		result = append(result, repose.WithFilter(func(r *repose.Resource) bool {
			for field, expected := range match {
				value := r.Value(field)
				if value == nil || fmt.Sprint(value) != expected {
					return false
				}
			}
			return true
		}))
	}

	return result
}
