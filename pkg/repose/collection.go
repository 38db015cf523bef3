package repose

import (
	"context"
	"fmt"
	"reflect"

	"github.com/sre-norns/repose/pkg/lazy"
)

// Collection is the value of a managed collection field: a manager whose results
// are the resources held by the field rather than fetched from a list endpoint.
type Collection struct {
	*Manager

	// wire is the list of identifiers the collection was decoded from, if any
	wire any
}

func newCollection(kind *Kind, options []ManagerOption, results *lazy.Sequence[*Resource]) *Collection {
	m := newManager(kind, options...)
	m.results = results

	return &Collection{Manager: m}
}

// Sequence returns the sequence of resources held by the collection
func (c *Collection) Sequence() *lazy.Sequence[*Resource] {
	return c.results
}

// Len returns number of resources in the collection without fetching them
func (c *Collection) Len() int {
	return c.results.Len()
}

func (c *Collection) IsMaterialized() bool {
	return c.results.IsMaterialized()
}

func (c *Collection) HasChanged() bool {
	return c.results.HasChanged()
}

// At returns the resource at index
func (c *Collection) At(ctx context.Context, index int) (*Resource, error) {
	return c.results.Get(ctx, index)
}

func (c *Collection) Append(ctx context.Context, resources ...*Resource) error {
	for _, r := range resources {
		if r.kind != c.kind {
			return fmt.Errorf("%w: %s collection can not hold %s", ErrUnexpectedType, c.kind.name, r.kind.name)
		}
	}

	return c.results.Append(ctx, resources...)
}

// Load fetches resources of the collection if they have not been fetched yet
func (c *Collection) Load(ctx context.Context) error {
	return c.results.Load(ctx)
}

type collectionField struct {
	kind    *Kind
	options []ManagerOption
}

// ManagedCollection is a field holding a list of nested resource objects
func ManagedCollection(kind *Kind, options ...ManagerOption) Field {
	return &collectionField{
		kind:    kind,
		options: options,
	}
}

func (f *collectionField) referencedKind() *Kind {
	return f.kind
}

func (f *collectionField) Decode(raw any) (any, error) {
	items, err := toSlice(raw)
	if err != nil {
		return nil, err
	}

	resources := make([]*Resource, 0, len(items))
	for i, item := range items {
		r, err := f.kind.Decode(item)
		if err != nil {
			return nil, fmt.Errorf("failed to decode %s #%d: %w", f.kind.name, i, err)
		}
		resources = append(resources, r)
	}

	return newCollection(f.kind, f.options, lazy.FromSlice(resources)), nil
}

func (f *collectionField) Encode(ctx context.Context, value any) (any, error) {
	if value == nil {
		return nil, nil
	}

	c, ok := value.(*Collection)
	if !ok {
		return nil, fmt.Errorf("%w: %T is not a collection", ErrUnexpectedType, value)
	}

	items, err := c.results.Items(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]any, 0, len(items))
	for _, r := range items {
		encoded, err := r.Encode(ctx)
		if err != nil {
			return nil, err
		}
		result = append(result, encoded)
	}

	return result, nil
}

func (f *collectionField) Coerce(value any) (any, error) {
	return coerceCollection(f.kind, f.options, value)
}

func (f *collectionField) Validate(value any) error {
	return validateCollection(f.kind, value)
}

func (f *collectionField) LinkParent(value any, owner *Resource) {
	if c, ok := value.(*Collection); ok {
		lazy.AttachParent(c.results, owner)
	}
}

// IDListCollectionField is a field holding a list of resource identifiers on the wire
// and a lazily fetched list of the identified resources in memory.
type IDListCollectionField struct {
	kind    *Kind
	options []ManagerOption
	idField string
}

// ManagedIDListCollection is a field holding identifiers of resources of the kind.
// Resources are fetched one by one, with the kind's default manager, when the collection is first accessed.
func ManagedIDListCollection(kind *Kind, options ...ManagerOption) *IDListCollectionField {
	return &IDListCollectionField{
		kind:    kind,
		options: options,
		idField: "id",
	}
}

// WithIDField sets the field identifiers are taken from when the list is re-encoded
func (f *IDListCollectionField) WithIDField(name string) *IDListCollectionField {
	f.idField = name
	return f
}

func (f *IDListCollectionField) referencedKind() *Kind {
	return f.kind
}

func (f *IDListCollectionField) Decode(raw any) (any, error) {
	ids, err := toSlice(raw)
	if err != nil {
		return nil, err
	}

	c := newCollection(f.kind, f.options, lazyFetch(f.kind, ids))
	c.wire = raw

	return c, nil
}

// Encode returns the identifiers the collection was decoded from as is, unless the collection was modified
func (f *IDListCollectionField) Encode(ctx context.Context, value any) (any, error) {
	if value == nil {
		return nil, nil
	}

	c, ok := value.(*Collection)
	if !ok {
		return nil, fmt.Errorf("%w: %T is not a collection", ErrUnexpectedType, value)
	}

	if !c.results.HasChanged() {
		return c.wire, nil
	}

	items, err := c.results.Items(ctx)
	if err != nil {
		return nil, err
	}

	idDef, typed := f.kind.Field(f.idField)
	ids := make([]any, 0, len(items))
	for _, r := range items {
		id, err := r.Get(f.idField)
		if err != nil {
			return nil, err
		}
		if typed {
			if id, err = idDef.Field.Encode(ctx, id); err != nil {
				return nil, err
			}
		}
		ids = append(ids, id)
	}

	// Edits that restore the original identifiers keep the original list
	if f.sameIDs(ctx, c.wire, ids) {
		return c.wire, nil
	}

	return ids, nil
}

// sameIDs reports whether the wire list holds the given identifiers once normalised by the id field
func (f *IDListCollectionField) sameIDs(ctx context.Context, wire any, ids []any) bool {
	if wire == nil {
		return false
	}
	wireIDs, err := toSlice(wire)
	if err != nil || len(wireIDs) != len(ids) {
		return false
	}

	idDef, typed := f.kind.Field(f.idField)
	for i, raw := range wireIDs {
		normalised := raw
		if typed {
			decoded, err := idDef.Field.Decode(raw)
			if err != nil {
				return false
			}
			if normalised, err = idDef.Field.Encode(ctx, decoded); err != nil {
				return false
			}
		}
		if !reflect.DeepEqual(normalised, ids[i]) {
			return false
		}
	}

	return true
}

func (f *IDListCollectionField) Coerce(value any) (any, error) {
	return coerceCollection(f.kind, f.options, value)
}

func (f *IDListCollectionField) Validate(value any) error {
	return validateCollection(f.kind, value)
}

func (f *IDListCollectionField) LinkParent(value any, owner *Resource) {
	if c, ok := value.(*Collection); ok {
		lazy.AttachParent(c.results, owner)
	}
}

func coerceCollection(kind *Kind, options []ManagerOption, value any) (any, error) {
	switch v := value.(type) {
	case *Collection:
		return v, nil
	case []*Resource:
		// An assigned list is always encoded from its resources
		c := newCollection(kind, options, lazy.Of[*Resource]())
		c.wire = []any{}
		if err := c.Append(context.Background(), v...); err != nil {
			return nil, err
		}
		return c, nil
	}

	return nil, fmt.Errorf("%w: %T is not a collection", ErrInvalidValue, value)
}

func validateCollection(kind *Kind, value any) error {
	if value == nil {
		return nil
	}

	c, ok := value.(*Collection)
	if !ok {
		return fmt.Errorf("%w: %T is not a collection", ErrInvalidValue, value)
	}
	if c.kind != kind {
		return fmt.Errorf("%w: collection of %s where %s is expected", ErrInvalidValue, c.kind.name, kind.name)
	}

	return nil
}

type embeddedField struct {
	kind *Kind
}

// Embedded is a field holding a single nested resource object
func Embedded(kind *Kind) Field {
	return &embeddedField{kind: kind}
}

func (f *embeddedField) referencedKind() *Kind {
	return f.kind
}

func (f *embeddedField) Decode(raw any) (any, error) {
	if raw == nil {
		return nil, nil
	}

	return f.kind.Decode(raw)
}

func (f *embeddedField) Encode(ctx context.Context, value any) (any, error) {
	if value == nil {
		return nil, nil
	}

	r, ok := value.(*Resource)
	if !ok {
		return nil, fmt.Errorf("%w: %T is not a resource", ErrUnexpectedType, value)
	}

	return r.Encode(ctx)
}

func (f *embeddedField) Coerce(value any) (any, error) {
	if data, ok := value.(map[string]any); ok {
		return f.kind.New(data)
	}

	return value, nil
}

func (f *embeddedField) Validate(value any) error {
	if value == nil {
		return nil
	}

	r, ok := value.(*Resource)
	if !ok {
		return fmt.Errorf("%w: %T is not a resource", ErrInvalidValue, value)
	}
	if r.kind != f.kind {
		return fmt.Errorf("%w: %s where %s is expected", ErrInvalidValue, r.kind.name, f.kind.name)
	}

	return nil
}

func (f *embeddedField) LinkParent(value any, owner *Resource) {
	if r, ok := value.(*Resource); ok {
		r.SetParent(owner)
	}
}
