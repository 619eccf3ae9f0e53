// Package schema builds the GraphQL schema: Author and Book object types and
// the root query. Field resolution is delegated to the graphql-go engine; the
// only bespoke resolver logic is reading Book.AuthorID through the per-request
// author loader.
package schema

import (
	"context"

	"github.com/graphql-go/graphql"
	"github.com/pkg/errors"

	"github.com/fabienheureux/graphene-async/internal/dataloaders"
	"github.com/fabienheureux/graphene-async/internal/model"
)

// Store lists the reads the schema depends on.
type Store interface {
	dataloaders.AuthorSource
	AllBooks(ctx context.Context) ([]*model.Book, error)
}

// New constructs the executable schema over the given store.
func New(store Store) (graphql.Schema, error) {
	authorType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Author",
		Fields: graphql.Fields{
			"id":   &graphql.Field{Type: graphql.NewNonNull(graphql.Int)},
			"name": &graphql.Field{Type: graphql.NewNonNull(graphql.String)},
		},
	})

	bookType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Book",
		Fields: graphql.Fields{
			"id":    &graphql.Field{Type: graphql.NewNonNull(graphql.Int)},
			"title": &graphql.Field{Type: graphql.NewNonNull(graphql.String)},
			// Nullable so a missing author stays a field-scoped error: the
			// engine nulls this field only, leaving sibling books intact.
			"author": &graphql.Field{
				Type:    authorType,
				Resolve: resolveBookAuthor,
			},
		},
	})

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"hello": &graphql.Field{
				Type: graphql.String,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return "world", nil
				},
			},
			"books": &graphql.Field{
				Type: graphql.NewList(bookType),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return store.AllBooks(p.Context)
				},
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{Query: queryType})
}

// resolveBookAuthor registers the author id with the request's loader and
// hands the engine a thunk. The engine resolves thunks breadth-first after the
// synchronous resolution wave, by which time every sibling book has registered
// its author id, so one batched fetch serves them all. The loader reports a
// missing author as absence; surfacing absence as a field error (rather than
// a silent null) is this resolver's decision, not the loader's.
func resolveBookAuthor(p graphql.ResolveParams) (interface{}, error) {
	book, ok := p.Source.(*model.Book)
	if !ok {
		return nil, errors.Errorf("unexpected source type %T for Book.author", p.Source)
	}

	loaders := dataloaders.FromContext(p.Context)
	if loaders == nil {
		return nil, errors.New("no dataloaders attached to request context")
	}

	thunk := loaders.Authors.Load(p.Context, book.AuthorID)
	return func() (interface{}, error) {
		author, err := thunk()
		if err != nil {
			return nil, err
		}
		if author == nil {
			return nil, errors.Errorf("author %d not found", book.AuthorID)
		}
		return author, nil
	}, nil
}
