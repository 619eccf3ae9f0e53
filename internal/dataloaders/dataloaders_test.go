package dataloaders_test

import (
	"context"
	"slices"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/fabienheureux/graphene-async/internal/dataloaders"
	"github.com/fabienheureux/graphene-async/internal/model"
)

type fakeSource struct {
	mu      sync.Mutex
	calls   int
	batches [][]int64
	authors map[int64]*model.Author
	err     error
}

func (f *fakeSource) AuthorsByID(ctx context.Context, ids []int64) (map[int64]*model.Author, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++
	f.batches = append(f.batches, append([]int64(nil), ids...))
	if f.err != nil {
		return nil, f.err
	}

	out := make(map[int64]*model.Author, len(ids))
	for _, id := range ids {
		if a, ok := f.authors[id]; ok {
			out[id] = a
		}
	}
	return out, nil
}

func (f *fakeSource) snapshot() (int, [][]int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls, f.batches
}

func newFakeSource() *fakeSource {
	return &fakeSource{authors: map[int64]*model.Author{
		1: {ID: 1, Name: "Jeff"},
		2: {ID: 2, Name: "Madonna"},
	}}
}

func TestAuthorLoaderBatchesAndDedupes(t *testing.T) {
	src := newFakeSource()
	loaders := dataloaders.New(src)
	ctx := context.Background()

	// register every load before blocking on any thunk
	t1a := loaders.Authors.Load(ctx, 1)
	t1b := loaders.Authors.Load(ctx, 1)
	t2 := loaders.Authors.Load(ctx, 2)

	a1a, err := t1a()
	require.NoError(t, err)
	a1b, err := t1b()
	require.NoError(t, err)
	a2, err := t2()
	require.NoError(t, err)

	require.Equal(t, "Jeff", a1a.Name)
	require.Equal(t, "Madonna", a2.Name)
	// duplicate keys fan out the identical instance
	require.Same(t, a1a, a1b)

	calls, batches := src.snapshot()
	require.Equal(t, 1, calls)
	keys := batches[0]
	slices.Sort(keys)
	require.Equal(t, []int64{1, 2}, keys)
}

func TestAuthorLoaderCachesWithinRequest(t *testing.T) {
	src := newFakeSource()
	loaders := dataloaders.New(src)
	ctx := context.Background()

	first, err := loaders.Authors.Load(ctx, 1)()
	require.NoError(t, err)

	// a later load for the same key hits the request cache
	second, err := loaders.Authors.Load(ctx, 1)()
	require.NoError(t, err)
	require.Same(t, first, second)

	calls, _ := src.snapshot()
	require.Equal(t, 1, calls)
}

func TestAuthorLoaderMissingKeyIsAbsenceNotError(t *testing.T) {
	src := newFakeSource()
	loaders := dataloaders.New(src)
	ctx := context.Background()

	author, err := loaders.Authors.Load(ctx, 99)()
	require.NoError(t, err)
	require.Nil(t, author)

	// absence is cached like any other result
	author, err = loaders.Authors.Load(ctx, 99)()
	require.NoError(t, err)
	require.Nil(t, author)

	calls, _ := src.snapshot()
	require.Equal(t, 1, calls)
}

func TestAuthorLoaderBatchErrorFansOut(t *testing.T) {
	src := newFakeSource()
	src.err = errors.New("connection reset")
	loaders := dataloaders.New(src)
	ctx := context.Background()

	t1 := loaders.Authors.Load(ctx, 1)
	t2 := loaders.Authors.Load(ctx, 2)

	_, err1 := t1()
	_, err2 := t2()

	// every pending key in the failed batch observes the same failure
	require.EqualError(t, err1, "connection reset")
	require.EqualError(t, err2, "connection reset")

	calls, _ := src.snapshot()
	require.Equal(t, 1, calls)
}

func TestAuthorLoaderConcurrentSameKey(t *testing.T) {
	src := newFakeSource()
	loaders := dataloaders.New(src)
	ctx := context.Background()

	const n = 8
	results := make([]*model.Author, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, err := loaders.Authors.Load(ctx, 1)()
			require.NoError(t, err)
			results[i] = a
		}(i)
	}
	wg.Wait()

	for i := 1; i < n; i++ {
		require.Same(t, results[0], results[i])
	}

	calls, batches := src.snapshot()
	require.Equal(t, 1, calls)
	require.Equal(t, []int64{1}, batches[0])
}
