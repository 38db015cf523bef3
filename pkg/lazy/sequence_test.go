package lazy_test

import (
	"context"
	"fmt"
	"iter"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sre-norns/repose/pkg/lazy"
	"github.com/stretchr/testify/require"
)

type countingProducer struct {
	calls  atomic.Int32
	yields atomic.Int32
	values []int
	fail   error
}

func (p *countingProducer) produce(ctx context.Context) iter.Seq2[int, error] {
	p.calls.Add(1)
	return func(yield func(int, error) bool) {
		for _, v := range p.values {
			p.yields.Add(1)
			if !yield(v, nil) {
				return
			}
		}
		if p.fail != nil {
			yield(0, p.fail)
		}
	}
}

func TestSequence_LenDoesNotMaterialize(t *testing.T) {
	p := &countingProducer{values: []int{1, 2, 3}}
	seq := lazy.New(p.produce, 3)

	require.Equal(t, 3, seq.Len())
	require.Equal(t, 3, seq.Len())
	require.False(t, seq.IsMaterialized())
	require.False(t, seq.HasChanged())
	require.EqualValues(t, 0, p.calls.Load())
}

func TestSequence_LenAdoptsMaterializedCount(t *testing.T) {
	p := &countingProducer{values: []int{1, 2}}
	seq := lazy.New(p.produce, 5)

	require.Equal(t, 5, seq.Len())
	require.NoError(t, seq.Load(context.Background()))
	require.Equal(t, 2, seq.Len())
}

func TestSequence_AccessMaterializesOnce(t *testing.T) {
	ctx := context.Background()
	testCases := map[string]struct {
		access        func(seq *lazy.Sequence[int]) error
		expectChanged bool
	}{
		"get": {
			access: func(seq *lazy.Sequence[int]) error {
				_, err := seq.Get(ctx, 1)
				return err
			},
		},
		"set": {
			access: func(seq *lazy.Sequence[int]) error {
				return seq.Set(ctx, 0, 42)
			},
			expectChanged: true,
		},
		"delete": {
			access: func(seq *lazy.Sequence[int]) error {
				return seq.Delete(ctx, 0)
			},
			expectChanged: true,
		},
		"insert": {
			access: func(seq *lazy.Sequence[int]) error {
				return seq.Insert(ctx, 1, 7)
			},
			expectChanged: true,
		},
		"equal": {
			access: func(seq *lazy.Sequence[int]) error {
				_, err := seq.Equal(ctx, []int{1, 2, 3})
				return err
			},
		},
		"items": {
			access: func(seq *lazy.Sequence[int]) error {
				_, err := seq.Items(ctx)
				return err
			},
		},
	}

	for name, tc := range testCases {
		test := tc
		t.Run(fmt.Sprintf("access:%s", name), func(t *testing.T) {
			p := &countingProducer{values: []int{1, 2, 3}}
			seq := lazy.New(p.produce, 3)

			require.NoError(t, test.access(seq))
			require.True(t, seq.IsMaterialized())
			require.Equal(t, test.expectChanged, seq.HasChanged())

			// Repeated access never re-drains the producer
			_ = test.access(seq)
			_ = test.access(seq)
			require.EqualValues(t, 1, p.calls.Load())
			require.EqualValues(t, 3, p.yields.Load())
		})
	}
}

func TestSequence_Mutations(t *testing.T) {
	ctx := context.Background()
	seq := lazy.Of(1, 2, 3)
	require.True(t, seq.IsMaterialized())
	require.False(t, seq.HasChanged())

	require.NoError(t, seq.Insert(ctx, 3, 4))
	require.NoError(t, seq.Set(ctx, 0, 10))
	require.NoError(t, seq.Delete(ctx, 1))
	require.NoError(t, seq.Append(ctx, 5, 6))

	equal, err := seq.Equal(ctx, []int{10, 3, 4, 5, 6})
	require.NoError(t, err)
	require.True(t, equal)
	require.Equal(t, 5, seq.Len())
	require.True(t, seq.HasChanged())
}

func TestSequence_EqualDoesNotMarkChanged(t *testing.T) {
	ctx := context.Background()
	seq := lazy.Of("a", "b")

	equal, err := seq.Equal(ctx, []string{"a", "c"})
	require.NoError(t, err)
	require.False(t, equal)

	equal, err = seq.Equal(ctx, []string{"a"})
	require.NoError(t, err)
	require.False(t, equal)
	require.False(t, seq.HasChanged())
}

func TestSequence_EqualFunc(t *testing.T) {
	ctx := context.Background()
	producer := &countingProducer{values: []int{1, 2, 3}}
	seq := lazy.New(producer.produce, 3)

	sameParity := func(a, b int) bool { return a%2 == b%2 }
	equal, err := seq.EqualFunc(ctx, []int{5, 4, 7}, sameParity)
	require.NoError(t, err)
	require.True(t, equal)
	require.True(t, seq.IsMaterialized())

	equal, err = seq.EqualFunc(ctx, []int{5, 4}, sameParity)
	require.NoError(t, err)
	require.False(t, equal)
	require.EqualValues(t, 1, producer.calls.Load())
}

func TestSequence_EmptyAppendIsNotAChange(t *testing.T) {
	seq := lazy.Of[int]()
	require.NoError(t, seq.Append(context.Background()))
	require.False(t, seq.HasChanged())
}

func TestSequence_IndexOutOfRange(t *testing.T) {
	ctx := context.Background()
	seq := lazy.Of(1, 2)

	_, err := seq.Get(ctx, 2)
	require.ErrorIs(t, err, lazy.ErrIndexOutOfRange)
	_, err = seq.Get(ctx, -1)
	require.ErrorIs(t, err, lazy.ErrIndexOutOfRange)
	require.ErrorIs(t, seq.Set(ctx, 5, 1), lazy.ErrIndexOutOfRange)
	require.ErrorIs(t, seq.Delete(ctx, 2), lazy.ErrIndexOutOfRange)
	require.ErrorIs(t, seq.Insert(ctx, 3, 1), lazy.ErrIndexOutOfRange)
	require.False(t, seq.HasChanged())
}

func TestSequence_ProducerFailureIsSticky(t *testing.T) {
	ctx := context.Background()
	failure := fmt.Errorf("boom")
	p := &countingProducer{values: []int{1}, fail: failure}
	seq := lazy.New(p.produce, 2)

	_, err := seq.Get(ctx, 0)
	require.ErrorIs(t, err, failure)
	require.False(t, seq.IsMaterialized())

	_, err = seq.Get(ctx, 0)
	require.ErrorIs(t, err, failure)
	require.ErrorIs(t, err, lazy.ErrProducerConsumed)
	require.EqualValues(t, 1, p.calls.Load())
	require.Equal(t, 2, seq.Len())
}

func TestSequence_Snapshot(t *testing.T) {
	p := &countingProducer{values: []int{1, 2}}
	seq := lazy.New(p.produce, 2)

	items, ok := seq.Snapshot()
	require.False(t, ok)
	require.Nil(t, items)
	require.False(t, seq.IsMaterialized())

	require.NoError(t, seq.Load(context.Background()))
	items, ok = seq.Snapshot()
	require.True(t, ok)
	require.Equal(t, []int{1, 2}, items)
}

func TestSequence_NilProducerIsEmpty(t *testing.T) {
	seq := lazy.New[int](nil, 0)
	items, err := seq.Items(context.Background())
	require.NoError(t, err)
	require.Empty(t, items)
	require.True(t, seq.IsMaterialized())
}

type node struct {
	name   string
	parent *node
}

func (n *node) SetParent(parent *node) {
	n.parent = parent
}

func TestAttachParent(t *testing.T) {
	ctx := context.Background()
	owner := &node{name: "owner"}

	t.Run("deferred", func(t *testing.T) {
		children := []*node{{name: "a"}, {name: "b"}}
		seq := lazy.New(func(ctx context.Context) iter.Seq2[*node, error] {
			return func(yield func(*node, error) bool) {
				for _, c := range children {
					if !yield(c, nil) {
						return
					}
				}
			}
		}, len(children))

		lazy.AttachParent(seq, owner)
		require.False(t, seq.IsMaterialized())
		require.Nil(t, children[0].parent)

		require.NoError(t, seq.Load(ctx))
		for _, c := range children {
			require.Same(t, owner, c.parent)
		}
	})

	t.Run("immediate", func(t *testing.T) {
		a := &node{name: "a"}
		seq := lazy.Of(a)

		lazy.AttachParent(seq, owner)
		require.Same(t, owner, a.parent)
	})

	t.Run("inserted", func(t *testing.T) {
		seq := lazy.Of[*node]()
		lazy.AttachParent(seq, owner)

		added := &node{name: "new"}
		require.NoError(t, seq.Append(ctx, added))
		require.Same(t, owner, added.parent)
	})

	t.Run("non-aware-elements", func(t *testing.T) {
		seq := lazy.Of(1, 2, 3)
		lazy.AttachParent(seq, owner)

		got, err := seq.Items(ctx)
		require.NoError(t, err)
		require.Equal(t, []int{1, 2, 3}, got)
	})
}

func TestSequence_ConcurrentMaterialization(t *testing.T) {
	ctx := context.Background()
	p := &countingProducer{values: []int{1, 2, 3, 4}}
	seq := lazy.New(p.produce, 4)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := seq.Get(ctx, i%4)
			require.NoError(t, err)
		}(i)
	}
	wg.Wait()

	require.EqualValues(t, 1, p.calls.Load())
	require.EqualValues(t, 4, p.yields.Load())
}

func TestSequence_IntrospectionDuringMaterialization(t *testing.T) {
	ctx := context.Background()
	started := make(chan struct{})
	release := make(chan struct{})
	seq := lazy.New(func(ctx context.Context) iter.Seq2[int, error] {
		return func(yield func(int, error) bool) {
			close(started)
			<-release
			for _, v := range []int{1, 2} {
				if !yield(v, nil) {
					return
				}
			}
		}
	}, 5)

	loaded := make(chan error, 1)
	go func() {
		loaded <- seq.Load(ctx)
	}()
	<-started

	type introspection struct {
		length       int
		materialized bool
		changed      bool
		snapshot     bool
	}
	observed := make(chan introspection, 1)
	go func() {
		_, snapshot := seq.Snapshot()
		observed <- introspection{
			length:       seq.Len(),
			materialized: seq.IsMaterialized(),
			changed:      seq.HasChanged(),
			snapshot:     snapshot,
		}
	}()

	select {
	case got := <-observed:
		require.Equal(t, introspection{length: 5}, got)
	case <-time.After(5 * time.Second):
		t.Fatal("introspection waited for the producer")
	}

	close(release)
	require.NoError(t, <-loaded)
	require.Equal(t, 2, seq.Len())
	require.True(t, seq.IsMaterialized())

	require.NoError(t, seq.Delete(ctx, 0))
	require.Equal(t, 1, seq.Len())
	require.True(t, seq.HasChanged())
}
