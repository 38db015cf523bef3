package repose

import (
	"context"
	"fmt"
	"iter"
	"maps"
	"reflect"
	"strings"
	"sync"

	"github.com/go-kit/log/level"
	"github.com/sre-norns/repose/pkg/lazy"
)

// FilterFunc selects resources returned by a manager
type FilterFunc func(r *Resource) bool

// ListDecoder transforms the raw list payload before its elements are decoded.
// Decoders may return a []any of objects or a ready *lazy.Sequence[*Resource].
type ListDecoder func(raw any) (any, error)

type ManagerOption func(m *Manager)

// WithFilter makes the manager return only resources matching the filter.
// The filter is evaluated on every call against the cached results.
func WithFilter(filter FilterFunc) ManagerOption {
	return func(m *Manager) {
		m.filter = filter
	}
}

// WithDecoders sets list decoders applied, in order, to the list payload
func WithDecoders(decoders ...ListDecoder) ManagerOption {
	return func(m *Manager) {
		m.decoders = append(m.decoders, decoders...)
	}
}

// WithResultsEndpoint sets the endpoint template results are fetched from instead of the kind's list endpoint
func WithResultsEndpoint(tmpl string) ManagerOption {
	return func(m *Manager) {
		m.resultsEndpoint = tmpl
	}
}

// Manager fetches resources of a single kind.
//
// The list of all resources is fetched at most once per manager and is shared
// by every caller of All, Count and Iter. Resources in it are not copied, so
// changes made to them are visible to all callers.
type Manager struct {
	kind            *Kind
	filter          FilterFunc
	decoders        []ListDecoder
	resultsEndpoint string
	params          Params

	mu      sync.Mutex
	results *lazy.Sequence[*Resource]
}

func newManager(k *Kind, options ...ManagerOption) *Manager {
	m := &Manager{
		kind:   k,
		params: make(Params),
	}
	for _, option := range options {
		option(m)
	}

	return m
}

func (m *Manager) Kind() *Kind {
	return m.kind
}

// Where returns a copy of the manager with additional endpoint parameters and its own results cache
func (m *Manager) Where(params Params) *Manager {
	result := &Manager{
		kind:            m.kind,
		filter:          m.filter,
		decoders:        m.decoders,
		resultsEndpoint: m.resultsEndpoint,
		params:          m.mergeParams(params),
	}

	return result
}

func (m *Manager) mergeParams(params Params) Params {
	result := make(Params, len(m.params)+len(params))
	maps.Copy(result, m.params)
	maps.Copy(result, params)
	return result
}

// Get fetches a single resource from the kind's endpoint formatted with the params.
// Results of Get are never cached.
func (m *Manager) Get(ctx context.Context, params Params) (*Resource, error) {
	a, err := m.kind.transport()
	if err != nil {
		return nil, err
	}
	if m.kind.endpoint == "" {
		return nil, fmt.Errorf("%w: %s", ErrNoEndpoint, m.kind.name)
	}

	merged := m.mergeParams(params)
	endpoint, err := FormatEndpoint(m.kind.endpoint, merged)
	if err != nil {
		return nil, err
	}

	level.Debug(a.logger).Log("msg", "get", "kind", m.kind.name, "endpoint", endpoint)
	data, err := a.client.Get(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	r, err := m.kind.decode(data, merged)
	if err != nil {
		return nil, err
	}
	r.fetchParams = merged

	return r, nil
}

func (m *Manager) load(ctx context.Context) (*lazy.Sequence[*Resource], error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.results != nil {
		return m.results, nil
	}

	a, err := m.kind.transport()
	if err != nil {
		return nil, err
	}

	tmpl := m.resultsEndpoint
	if tmpl == "" {
		tmpl = m.kind.endpointList
	}
	if tmpl == "" {
		return nil, fmt.Errorf("%w: %s", ErrNoEndpoint, m.kind.name)
	}

	endpoint, err := FormatEndpoint(tmpl, m.params)
	if err != nil {
		return nil, err
	}

	level.Debug(a.logger).Log("msg", "list", "kind", m.kind.name, "endpoint", endpoint)
	data, err := a.client.Get(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	for _, decoder := range m.decoders {
		if data, err = decoder(data); err != nil {
			return nil, err
		}
	}

	results, err := m.decodeResults(data)
	if err != nil {
		return nil, err
	}

	m.results = results
	return m.results, nil
}

func (m *Manager) decodeResults(data any) (*lazy.Sequence[*Resource], error) {
	switch v := data.(type) {
	case nil:
		return lazy.Of[*Resource](), nil
	case *lazy.Sequence[*Resource]:
		return v, nil
	case []any:
		items := make([]*Resource, 0, len(v))
		for i, raw := range v {
			r, err := m.kind.decode(raw, m.params)
			if err != nil {
				return nil, fmt.Errorf("failed to decode %s #%d: %w", m.kind.name, i, err)
			}
			r.fetchParams = maps.Clone(m.params)
			items = append(items, r)
		}
		return lazy.FromSlice(items), nil
	}

	return nil, fmt.Errorf("%w: %s list expects an array, got %T", ErrUnexpectedPayload, m.kind.name, data)
}

// Results returns the live, unfiltered sequence of all resources, fetching it if needed
func (m *Manager) Results(ctx context.Context) (*lazy.Sequence[*Resource], error) {
	return m.load(ctx)
}

// All returns resources matching the manager's filter
func (m *Manager) All(ctx context.Context) ([]*Resource, error) {
	results, err := m.load(ctx)
	if err != nil {
		return nil, err
	}

	items, err := results.Items(ctx)
	if err != nil {
		return nil, err
	}

	if m.filter == nil {
		return items, nil
	}

	filtered := items[:0]
	for _, r := range items {
		if m.filter(r) {
			filtered = append(filtered, r)
		}
	}

	return filtered, nil
}

// Count returns number of resources returned by All.
// This fetches and materializes all of them.
func (m *Manager) Count(ctx context.Context) (int, error) {
	items, err := m.All(ctx)
	return len(items), err
}

// Iter iterates over resources returned by All
func (m *Manager) Iter(ctx context.Context) iter.Seq2[*Resource, error] {
	return func(yield func(*Resource, error) bool) {
		items, err := m.All(ctx)
		if err != nil {
			yield(nil, err)
			return
		}

		for _, r := range items {
			if !yield(r, nil) {
				return
			}
		}
	}
}

// Create sends a new resource to the list endpoint, resolved with the manager's parameters
func (m *Manager) Create(ctx context.Context, r *Resource) error {
	if r.kind != m.kind {
		return fmt.Errorf("%w: %s manager can not create %s", ErrUnexpectedType, m.kind.name, r.kind.name)
	}

	for k, v := range m.params {
		if _, ok := r.fetchParams[k]; !ok {
			r.fetchParams[k] = v
		}
	}

	return r.Create(ctx)
}

// ResultsKey unwraps the list from an object envelope such as {"results": [...]}
func ResultsKey(key string) ListDecoder {
	return func(raw any) (any, error) {
		envelope, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: expected an object with %q, got %T", ErrUnexpectedPayload, key, raw)
		}

		value, ok := envelope[key]
		if !ok {
			return nil, fmt.Errorf("%w: no %q in the response", ErrUnexpectedPayload, key)
		}

		return value, nil
	}
}

// IDList turns a list of identifiers into a lazily fetched sequence of resources of the kind
func IDList(kind *Kind) ListDecoder {
	return func(raw any) (any, error) {
		ids, err := toSlice(raw)
		if err != nil {
			return nil, err
		}

		return lazyFetch(kind, ids), nil
	}
}

// IDParam returns the endpoint parameter identifiers of the kind are passed in, e.g. "user_id"
func IDParam(kind *Kind) string {
	return strings.ToLower(kind.name) + "_id"
}

// lazyFetch returns a sequence fetching resources of the kind by id when it is first accessed
func lazyFetch(kind *Kind, ids []any) *lazy.Sequence[*Resource] {
	producer := func(ctx context.Context) iter.Seq2[*Resource, error] {
		return func(yield func(*Resource, error) bool) {
			for _, id := range ids {
				r, err := kind.Objects().Get(ctx, Params{IDParam(kind): id})
				if !yield(r, err) || err != nil {
					return
				}
			}
		}
	}

	return lazy.New(producer, len(ids))
}

func toSlice(raw any) ([]any, error) {
	if raw == nil {
		return nil, nil
	}
	if items, ok := raw.([]any); ok {
		return items, nil
	}

	value := reflect.ValueOf(raw)
	if value.Kind() != reflect.Slice && value.Kind() != reflect.Array {
		return nil, fmt.Errorf("%w: expected a list, got %T", ErrUnexpectedPayload, raw)
	}

	items := make([]any, value.Len())
	for i := range items {
		items[i] = value.Index(i).Interface()
	}

	return items, nil
}
