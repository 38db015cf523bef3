// Package lazy provides a list container whose content is produced on first
// element access rather than on construction.
package lazy

import (
	"context"
	"fmt"
	"iter"
	"reflect"
	"slices"
	"sync"
	"sync/atomic"
)

var (
	ErrIndexOutOfRange  = fmt.Errorf("index out of range")
	ErrProducerConsumed = fmt.Errorf("sequence producer already consumed")
)

// Producer is a one-shot routine yielding the elements of a sequence.
// A Sequence drains it at most once.
type Producer[T any] func(ctx context.Context) iter.Seq2[T, error]

// ParentAware is implemented by elements that accept a link to the value owning the sequence.
type ParentAware[P any] interface {
	SetParent(parent P)
}

// Sequence is a list-like container backed either by known values or by a
// not yet invoked Producer.
//
// Length queries never force materialization, every element level access does.
// Any mutation after materialization marks the sequence as changed, and the
// flag is never reset.
type Sequence[T any] struct {
	// mu serializes materialization and mutations of items
	mu sync.Mutex

	producer Producer[T]
	size     int

	items []T
	err   error

	// Readable without mu, so introspection does not wait for a producer in progress
	materialized atomic.Bool
	changed      atomic.Bool
	length       atomic.Int64

	link func(T)
}

// New returns a sequence that will be populated by the given producer.
// Size is reported by Len until the sequence is materialized.
func New[T any](producer Producer[T], size int) *Sequence[T] {
	return &Sequence[T]{
		producer: producer,
		size:     size,
	}
}

// Of returns an already materialized sequence holding given items.
func Of[T any](items ...T) *Sequence[T] {
	return FromSlice(items)
}

// FromSlice returns an already materialized sequence holding a copy of the items.
func FromSlice[T any](items []T) *Sequence[T] {
	s := &Sequence[T]{
		items: slices.Clone(items),
		size:  len(items),
	}
	s.length.Store(int64(len(items)))
	s.materialized.Store(true)

	return s
}

// AttachParent records a parent to be linked to every element implementing ParentAware.
// Elements of a materialized sequence are linked immediately, otherwise linking
// is deferred until the sequence is materialized.
// Elements inserted afterwards are linked as they are added.
func AttachParent[T any, P any](s *Sequence[T], parent P) {
	link := func(item T) {
		if aware, ok := any(item).(ParentAware[P]); ok {
			aware.SetParent(parent)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.link = link
	if s.materialized.Load() {
		for _, item := range s.items {
			link(item)
		}
	}
}

// Len returns declared size of an unmaterialized sequence or actual number of elements otherwise.
// It never waits for a materialization in progress.
func (s *Sequence[T]) Len() int {
	if s.materialized.Load() {
		return int(s.length.Load())
	}

	return s.size
}

func (s *Sequence[T]) IsMaterialized() bool {
	return s.materialized.Load()
}

func (s *Sequence[T]) HasChanged() bool {
	return s.changed.Load()
}

// mutated records a change of items made after materialization
func (s *Sequence[T]) mutated() {
	s.length.Store(int64(len(s.items)))
	s.changed.Store(true)
}

// Load materializes the sequence if it has not been yet.
func (s *Sequence[T]) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.load(ctx)
}

func (s *Sequence[T]) load(ctx context.Context) error {
	if s.materialized.Load() {
		return nil
	}
	if s.err != nil {
		return fmt.Errorf("%w: %w", ErrProducerConsumed, s.err)
	}

	producer := s.producer
	s.producer = nil

	items := make([]T, 0, s.size)
	if producer != nil {
		for item, err := range producer(ctx) {
			if err != nil {
				s.err = err
				return err
			}
			items = append(items, item)
		}
	}

	s.items = items
	s.length.Store(int64(len(items)))
	s.materialized.Store(true)

	if s.link != nil {
		for _, item := range s.items {
			s.link(item)
		}
	}

	return nil
}

func (s *Sequence[T]) checkIndex(index, limit int) error {
	if index < 0 || index >= limit {
		return fmt.Errorf("%w: %d (length %d)", ErrIndexOutOfRange, index, len(s.items))
	}

	return nil
}

func (s *Sequence[T]) Get(ctx context.Context, index int) (result T, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err = s.load(ctx); err != nil {
		return
	}
	if err = s.checkIndex(index, len(s.items)); err != nil {
		return
	}

	return s.items[index], nil
}

func (s *Sequence[T]) Set(ctx context.Context, index int, value T) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.load(ctx); err != nil {
		return err
	}
	if err := s.checkIndex(index, len(s.items)); err != nil {
		return err
	}

	s.items[index] = value
	s.mutated()
	if s.link != nil {
		s.link(value)
	}

	return nil
}

func (s *Sequence[T]) Delete(ctx context.Context, index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.load(ctx); err != nil {
		return err
	}
	if err := s.checkIndex(index, len(s.items)); err != nil {
		return err
	}

	s.items = slices.Delete(s.items, index, index+1)
	s.mutated()

	return nil
}

// Insert places value at the given index, shifting later elements. Index equal to Len appends.
func (s *Sequence[T]) Insert(ctx context.Context, index int, value T) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.load(ctx); err != nil {
		return err
	}
	if err := s.checkIndex(index, len(s.items)+1); err != nil {
		return err
	}

	s.items = slices.Insert(s.items, index, value)
	s.mutated()
	if s.link != nil {
		s.link(value)
	}

	return nil
}

func (s *Sequence[T]) Append(ctx context.Context, values ...T) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.load(ctx); err != nil {
		return err
	}
	if len(values) == 0 {
		return nil
	}

	s.items = append(s.items, values...)
	s.mutated()
	if s.link != nil {
		for _, value := range values {
			s.link(value)
		}
	}

	return nil
}

// Equal reports whether the materialized content is element-wise deep equal to other.
func (s *Sequence[T]) Equal(ctx context.Context, other []T) (bool, error) {
	return s.EqualFunc(ctx, other, func(a, b T) bool {
		return reflect.DeepEqual(a, b)
	})
}

// EqualFunc is like Equal but compares elements with eq.
func (s *Sequence[T]) EqualFunc(ctx context.Context, other []T, eq func(a, b T) bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.load(ctx); err != nil {
		return false, err
	}

	return slices.EqualFunc(s.items, other, eq), nil
}

// Items materializes the sequence and returns a copy of its elements.
// Elements themselves are shared.
func (s *Sequence[T]) Items(ctx context.Context) ([]T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.load(ctx); err != nil {
		return nil, err
	}

	return slices.Clone(s.items), nil
}

// Snapshot returns a copy of the elements if the sequence is materialized, without triggering materialization.
func (s *Sequence[T]) Snapshot() ([]T, bool) {
	if !s.materialized.Load() {
		return nil, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return slices.Clone(s.items), true
}
