package repose

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
)

const DefaultManager = "objects"

// FieldDef is a named field of a resource kind
type FieldDef struct {
	Name  string
	Field Field

	// FromEndpoint names the endpoint parameter the field value is taken from when present
	FromEndpoint string
	Required     bool
}

type FieldOption func(def *FieldDef)

// FromEndpoint sources the field value from the named endpoint parameter used to fetch the resource,
// rather than from the response body.
func FromEndpoint(param string) FieldOption {
	return func(def *FieldDef) {
		def.FromEndpoint = param
	}
}

// Required rejects nil values of the field
func Required() FieldOption {
	return func(def *FieldDef) {
		def.Required = true
	}
}

// PrepareSaveFunc adjusts changes of a resource before they are sent to the API
type PrepareSaveFunc func(r *Resource, changes map[string]any) (map[string]any, error)

// Kind describes a type of API resource: its fields, endpoints and managers.
// Kinds are created with NewKind builder and bound to a transport by Api.Register.
type Kind struct {
	name         string
	endpoint     string
	endpointList string

	fields      []FieldDef
	fieldIndex  map[string]int
	managers    map[string]*Manager
	prepareSave PrepareSaveFunc

	api *Api
}

func (k *Kind) Name() string         { return k.name }
func (k *Kind) Endpoint() string     { return k.endpoint }
func (k *Kind) EndpointList() string { return k.endpointList }

// Fields returns field definitions in declaration order
func (k *Kind) Fields() []FieldDef {
	result := make([]FieldDef, len(k.fields))
	copy(result, k.fields)
	return result
}

func (k *Kind) Field(name string) (FieldDef, bool) {
	i, ok := k.fieldIndex[name]
	if !ok {
		return FieldDef{}, false
	}

	return k.fields[i], true
}

// Objects returns the default manager of the kind
func (k *Kind) Objects() *Manager {
	return k.managers[DefaultManager]
}

// Manager returns manager by its name, or nil if the kind has no such manager
func (k *Kind) Manager(name string) *Manager {
	return k.managers[name]
}

// ManagerNames returns names of all managers of the kind
func (k *Kind) ManagerNames() []string {
	return slices.Sorted(maps.Keys(k.managers))
}

func (k *Kind) transport() (*Api, error) {
	if k.api == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotRegistered, k.name)
	}

	return k.api, nil
}

// New constructs a resource locally from in-memory values. Fields not listed get their empty value.
func (k *Kind) New(values map[string]any) (*Resource, error) {
	r := newResource(k)
	for _, def := range k.fields {
		value, err := def.Field.Decode(nil)
		if err != nil {
			return nil, &ValidationError{Kind: k.name, Field: def.Name, Err: err}
		}
		r.values[def.Name] = value
	}

	for name, value := range values {
		if err := r.set(name, value); err != nil {
			return nil, err
		}
	}

	if err := k.checkRequired(r); err != nil {
		return nil, err
	}

	r.linkChildren()
	if err := r.resetSnapshot(context.Background()); err != nil {
		return nil, err
	}

	return r, nil
}

// Decode constructs a resource from data as received from the API
func (k *Kind) Decode(raw any) (*Resource, error) {
	return k.decode(raw, nil)
}

func (k *Kind) decode(raw any, params Params) (*Resource, error) {
	data, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: %s expects an object, got %T", ErrUnexpectedPayload, k.name, raw)
	}

	r := newResource(k)
	for _, def := range k.fields {
		rawValue := data[def.Name]
		if def.FromEndpoint != "" {
			if param, ok := params[def.FromEndpoint]; ok {
				rawValue = param
				r.endpointValues[def.FromEndpoint] = param
			}
		}

		value, err := def.Field.Decode(rawValue)
		if err != nil {
			return nil, &ValidationError{Kind: k.name, Field: def.Name, Err: err}
		}
		if err := def.Field.Validate(value); err != nil {
			return nil, &ValidationError{Kind: k.name, Field: def.Name, Err: err}
		}

		r.values[def.Name] = value
	}

	if err := k.checkRequired(r); err != nil {
		return nil, err
	}

	r.linkChildren()
	if err := r.resetSnapshot(context.Background()); err != nil {
		return nil, err
	}

	return r, nil
}

func (k *Kind) checkRequired(r *Resource) error {
	for _, def := range k.fields {
		if def.Required && r.values[def.Name] == nil {
			return &ValidationError{Kind: k.name, Field: def.Name, Err: ErrRequired}
		}
	}

	return nil
}

// kindReference is implemented by fields holding resources of another kind
type kindReference interface {
	referencedKind() *Kind
}

// KindBuilder declares a resource kind
type KindBuilder struct {
	kind     *Kind
	managers []managerDecl
	errs     []error
}

type managerDecl struct {
	name    string
	options []ManagerOption
}

func NewKind(name string) *KindBuilder {
	return &KindBuilder{
		kind: &Kind{
			name:       name,
			fieldIndex: make(map[string]int),
			managers:   make(map[string]*Manager),
		},
	}
}

// Endpoint sets template of the endpoint used to get, save and refresh a single resource
func (b *KindBuilder) Endpoint(tmpl string) *KindBuilder {
	b.kind.endpoint = tmpl
	return b
}

// EndpointList sets template of the endpoint used to list and create resources
func (b *KindBuilder) EndpointList(tmpl string) *KindBuilder {
	b.kind.endpointList = tmpl
	return b
}

func (b *KindBuilder) Field(name string, field Field, options ...FieldOption) *KindBuilder {
	if name == "" || field == nil {
		b.errs = append(b.errs, fmt.Errorf("%w: field %q of %s has no name or type", ErrInvalidKind, name, b.kind.name))
		return b
	}
	if _, ok := b.kind.fieldIndex[name]; ok {
		b.errs = append(b.errs, fmt.Errorf("%w: %s.%s", ErrDuplicateField, b.kind.name, name))
		return b
	}

	def := FieldDef{Name: name, Field: field}
	for _, option := range options {
		option(&def)
	}

	b.kind.fieldIndex[name] = len(b.kind.fields)
	b.kind.fields = append(b.kind.fields, def)
	return b
}

// Manager adds a named manager. Declaring a manager named DefaultManager customises the default one.
func (b *KindBuilder) Manager(name string, options ...ManagerOption) *KindBuilder {
	b.managers = append(b.managers, managerDecl{name: name, options: options})
	return b
}

// PrepareSave sets a hook called with the changes of a resource before they are saved
func (b *KindBuilder) PrepareSave(fn PrepareSaveFunc) *KindBuilder {
	b.kind.prepareSave = fn
	return b
}

func (b *KindBuilder) Build() (*Kind, error) {
	k := b.kind
	var errs []error
	errs = append(errs, b.errs...)

	if strings.TrimSpace(k.name) == "" {
		errs = append(errs, fmt.Errorf("%w: empty name", ErrInvalidKind))
	}
	for _, tmpl := range []string{k.endpoint, k.endpointList} {
		if _, err := parseTemplate(tmpl); err != nil {
			errs = append(errs, err)
		}
	}

	k.managers[DefaultManager] = newManager(k)
	for _, decl := range b.managers {
		if decl.name == "" {
			errs = append(errs, fmt.Errorf("%w: %s has a manager without name", ErrInvalidKind, k.name))
			continue
		}
		k.managers[decl.name] = newManager(k, decl.options...)
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	return k, nil
}

func (b *KindBuilder) MustBuild() *Kind {
	k, err := b.Build()
	if err != nil {
		panic(err)
	}

	return k
}
