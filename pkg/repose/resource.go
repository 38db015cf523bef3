package repose

import (
	"context"
	"fmt"
	"maps"
	"reflect"
	"slices"
	"weak"

	"github.com/go-kit/log/level"
)

// Resource is an instance of a Kind: one addressable object of the remote API.
//
// A resource holds a non-owning reference to the resource containing it, if any,
// and a snapshot of its encoded values as last persisted.
// Resources are not safe for concurrent modification.
type Resource struct {
	kind   *Kind
	values map[string]any

	parent weak.Pointer[Resource]

	persisted map[string]any

	// values of fields sourced from the endpoint they were fetched with
	endpointValues Params
	// parameters the resource was fetched with
	fetchParams Params
}

func newResource(k *Kind) *Resource {
	return &Resource{
		kind:           k,
		values:         make(map[string]any, len(k.fields)),
		endpointValues: make(Params),
		fetchParams:    make(Params),
	}
}

func (r *Resource) Kind() *Kind {
	return r.kind
}

// Parent returns the resource containing this one, or nil for a root resource
// or if the parent is no longer referenced anywhere else.
func (r *Resource) Parent() *Resource {
	return r.parent.Value()
}

// SetParent links the resource to the resource containing it
func (r *Resource) SetParent(parent *Resource) {
	if parent == nil {
		r.parent = weak.Pointer[Resource]{}
		return
	}

	r.parent = weak.Make(parent)
}

// linkChildren links values of embedded and collection fields to this resource
func (r *Resource) linkChildren() {
	for _, def := range r.kind.fields {
		if linker, ok := def.Field.(ParentLinker); ok && r.values[def.Name] != nil {
			linker.LinkParent(r.values[def.Name], r)
		}
	}
}

// Get returns in-memory value of the field
func (r *Resource) Get(name string) (any, error) {
	if _, ok := r.kind.fieldIndex[name]; !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrUnknownField, r.kind.name, name)
	}

	return r.values[name], nil
}

// Value returns in-memory value of the field, or nil for unknown fields
func (r *Resource) Value(name string) any {
	return r.values[name]
}

// Set validates and assigns the value of the field
func (r *Resource) Set(name string, value any) error {
	return r.set(name, value)
}

func (r *Resource) set(name string, value any) error {
	i, ok := r.kind.fieldIndex[name]
	if !ok {
		return fmt.Errorf("%w: %s.%s", ErrUnknownField, r.kind.name, name)
	}
	def := r.kind.fields[i]

	if value != nil {
		if coercer, ok := def.Field.(Coercer); ok {
			coerced, err := coercer.Coerce(value)
			if err != nil {
				return &ValidationError{Kind: r.kind.name, Field: name, Err: err}
			}
			value = coerced
		}
	}

	if value == nil && def.Required {
		return &ValidationError{Kind: r.kind.name, Field: name, Err: ErrRequired}
	}
	if err := def.Field.Validate(value); err != nil {
		return &ValidationError{Kind: r.kind.name, Field: name, Err: err}
	}

	r.values[name] = value
	if linker, ok := def.Field.(ParentLinker); ok && value != nil {
		linker.LinkParent(value, r)
	}

	return nil
}

func (r *Resource) GetInt(name string) (int64, bool) {
	n, ok := toInt64(r.values[name])
	return n, ok
}

func (r *Resource) GetString(name string) (string, bool) {
	s, ok := r.values[name].(string)
	return s, ok
}

func (r *Resource) GetBool(name string) (bool, bool) {
	b, ok := r.values[name].(bool)
	return b, ok
}

// Embedded returns value of an embedded resource field
func (r *Resource) Embedded(name string) (*Resource, error) {
	value, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	if value == nil {
		return nil, nil
	}

	embedded, ok := value.(*Resource)
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s is not an embedded resource", ErrUnexpectedType, r.kind.name, name)
	}

	return embedded, nil
}

// Collection returns value of a managed collection field
func (r *Resource) Collection(name string) (*Collection, error) {
	value, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	if value == nil {
		return nil, nil
	}

	c, ok := value.(*Collection)
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s is not a collection", ErrUnexpectedType, r.kind.name, name)
	}

	return c, nil
}

// Encode returns values of all fields in their wire form
func (r *Resource) Encode(ctx context.Context) (map[string]any, error) {
	result := make(map[string]any, len(r.kind.fields))
	for _, def := range r.kind.fields {
		value, err := def.Field.Encode(ctx, r.values[def.Name])
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s.%s: %w", r.kind.name, def.Name, err)
		}
		result[def.Name] = value
	}

	return result, nil
}

func (r *Resource) resetSnapshot(ctx context.Context) error {
	encoded, err := r.Encode(ctx)
	if err != nil {
		return err
	}

	r.persisted = encoded
	return nil
}

// Persisted returns a copy of the encoded values as last persisted
func (r *Resource) Persisted() map[string]any {
	return maps.Clone(r.persisted)
}

// changes returns encoded values that differ from the persisted snapshot, passed through
// the kind's PrepareSave hook, together with the full encoding.
func (r *Resource) changes(ctx context.Context) (map[string]any, map[string]any, error) {
	encoded, err := r.Encode(ctx)
	if err != nil {
		return nil, nil, err
	}

	changed := make(map[string]any)
	for name, value := range encoded {
		if persisted, ok := r.persisted[name]; ok && reflect.DeepEqual(value, persisted) {
			continue
		}
		changed[name] = value
	}

	if r.kind.prepareSave != nil {
		if changed, err = r.kind.prepareSave(r, changed); err != nil {
			return nil, nil, err
		}
	}

	return changed, encoded, nil
}

// Changes returns values that would be sent by Save
func (r *Resource) Changes(ctx context.Context) (map[string]any, error) {
	changed, _, err := r.changes(ctx)
	return changed, err
}

// IsDirty reports whether Save would send anything
func (r *Resource) IsDirty(ctx context.Context) (bool, error) {
	changed, err := r.Changes(ctx)
	return len(changed) > 0, err
}

// ChangedFields returns sorted names of fields that would be sent by Save
func (r *Resource) ChangedFields(ctx context.Context) ([]string, error) {
	changed, err := r.Changes(ctx)
	if err != nil {
		return nil, err
	}

	return slices.Sorted(maps.Keys(changed)), nil
}

// Save sends values changed since the resource was last persisted to its endpoint.
// Nothing is sent when there are no changes.
func (r *Resource) Save(ctx context.Context) error {
	a, err := r.kind.transport()
	if err != nil {
		return err
	}

	endpoint, err := MakeEndpoint(r)
	if err != nil {
		return err
	}

	changed, encoded, err := r.changes(ctx)
	if err != nil {
		return err
	}

	if len(changed) == 0 {
		level.Debug(a.logger).Log("msg", "nothing to save", "kind", r.kind.name, "endpoint", endpoint)
		r.persisted = encoded
		return nil
	}

	level.Debug(a.logger).Log("msg", "saving", "kind", r.kind.name, "endpoint", endpoint, "fields", fmt.Sprint(slices.Sorted(maps.Keys(changed))))
	if _, err := a.client.Put(ctx, endpoint, changed); err != nil {
		return err
	}

	r.persisted = encoded
	return nil
}

// Refresh fetches the resource from its endpoint and updates it in place
func (r *Resource) Refresh(ctx context.Context) error {
	a, err := r.kind.transport()
	if err != nil {
		return err
	}

	endpoint, err := MakeEndpoint(r)
	if err != nil {
		return err
	}

	data, err := a.client.Get(ctx, endpoint)
	if err != nil {
		return err
	}

	return r.apply(data)
}

// Create sends the resource to its list endpoint. If the API responds with an object,
// the resource is updated from it.
func (r *Resource) Create(ctx context.Context) error {
	a, err := r.kind.transport()
	if err != nil {
		return err
	}

	endpoint, err := MakeListEndpoint(r)
	if err != nil {
		return err
	}

	encoded, err := r.Encode(ctx)
	if err != nil {
		return err
	}

	level.Debug(a.logger).Log("msg", "creating", "kind", r.kind.name, "endpoint", endpoint)
	data, err := a.client.Post(ctx, endpoint, encoded)
	if err != nil {
		return err
	}

	if _, ok := data.(map[string]any); ok {
		return r.apply(data)
	}

	r.persisted = encoded
	return nil
}

// apply decodes data and replaces values of the resource with the result
func (r *Resource) apply(data any) error {
	params := make(Params)
	maps.Copy(params, r.fetchParams)
	maps.Copy(params, r.endpointValues)

	fresh, err := r.kind.decode(data, params)
	if err != nil {
		return err
	}

	r.values = fresh.values
	r.persisted = fresh.persisted
	maps.Copy(r.endpointValues, fresh.endpointValues)
	r.linkChildren()

	return nil
}

func (r *Resource) String() string {
	if endpoint, err := MakeEndpoint(r); err == nil {
		return fmt.Sprintf("%s(%s)", r.kind.name, endpoint)
	}

	return r.kind.name
}
