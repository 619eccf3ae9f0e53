package dataloaders

import (
	"context"
	"time"

	dataloader "github.com/graph-gophers/dataloader/v7"
	"github.com/samber/lo"

	"github.com/fabienheureux/graphene-async/internal/model"
)

// AuthorSource is the single read the author loader needs. Absent ids must be
// missing from the returned map, not reported as errors.
type AuthorSource interface {
	AuthorsByID(ctx context.Context, ids []int64) (map[int64]*model.Author, error)
}

// batchWait is the window during which loads issued by one resolution wave
// accumulate into a single batch. The executor registers every sibling load
// before blocking on a thunk, so the window is a backstop, not the primary
// coalescing mechanism.
const batchWait = 2 * time.Millisecond

// Loaders holds the per-request dataloaders. A fresh instance is built for
// every incoming request and discarded with it, so there is no cross-request
// caching and nothing to invalidate.
type Loaders struct {
	Authors *dataloader.Loader[int64, *model.Author]
}

// New builds the loaders for a single request.
func New(src AuthorSource) *Loaders {
	return &Loaders{
		Authors: dataloader.NewBatchedLoader(
			authorBatch(src),
			dataloader.WithWait[int64, *model.Author](batchWait),
		),
	}
}

// authorBatch fetches one batch of authors. Results are aligned positionally
// with the unique id set the loader accumulated. A missing id resolves to a
// nil author with no error; a failed fetch resolves every pending id to the
// same error.
func authorBatch(src AuthorSource) dataloader.BatchFunc[int64, *model.Author] {
	return func(ctx context.Context, ids []int64) []*dataloader.Result[*model.Author] {
		authors, err := src.AuthorsByID(ctx, ids)
		if err != nil {
			return lo.Map(ids, func(int64, int) *dataloader.Result[*model.Author] {
				return &dataloader.Result[*model.Author]{Error: err}
			})
		}
		return lo.Map(ids, func(id int64, _ int) *dataloader.Result[*model.Author] {
			return &dataloader.Result[*model.Author]{Data: authors[id]}
		})
	}
}

type ctxKey struct{}

// NewContext returns ctx carrying the given loaders. The loaders travel as an
// explicit context value threaded into execution, never as package state,
// since concurrent requests must not share a batch window.
func NewContext(ctx context.Context, l *Loaders) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext returns the loaders attached by NewContext, or nil.
func FromContext(ctx context.Context) *Loaders {
	l, _ := ctx.Value(ctxKey{}).(*Loaders)
	return l
}
