package storage

import (
	"context"
	"database/sql"

	"github.com/Masterminds/squirrel"
	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"github.com/pkg/errors"

	"github.com/fabienheureux/graphene-async/internal/model"
)

// Store reads books and authors from a SQLite database. These two reads are
// the only storage operations the GraphQL layer depends on.
type Store struct {
	db *sql.DB
	sq squirrel.StatementBuilderType
}

// Open opens the SQLite database at the given path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrap(err, "open database")
	}
	return New(db), nil
}

// New wraps an existing database handle.
func New(db *sql.DB) *Store {
	return &Store{
		db: db,
		sq: squirrel.StatementBuilder.RunWith(db),
	}
}

func (s *Store) Close() error {
	return s.db.Close()
}

const migration = `
	CREATE TABLE IF NOT EXISTS authors (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS books (
		id INTEGER PRIMARY KEY,
		title TEXT NOT NULL,
		author_id INTEGER NOT NULL
	);
`

// Migrate creates the authors and books tables.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, migration)
	return errors.Wrap(err, "migrate")
}

// Seed inserts sample authors and books, keyed by fixed ids so reseeding an
// existing database is a no-op.
func (s *Store) Seed(ctx context.Context) error {
	_, err := s.sq.Insert("authors").
		Options("OR IGNORE").
		Columns("id", "name").
		Values(1, "Andy Weir").
		Values(2, "Ursula K. Le Guin").
		Values(3, "N.K. Jemisin").
		ExecContext(ctx)
	if err != nil {
		return errors.Wrap(err, "seed authors")
	}

	_, err = s.sq.Insert("books").
		Options("OR IGNORE").
		Columns("id", "title", "author_id").
		Values(1, "The Martian", 1).
		Values(2, "Project Hail Mary", 1).
		Values(3, "A Wizard of Earthsea", 2).
		Values(4, "The Fifth Season", 3).
		ExecContext(ctx)
	return errors.Wrap(err, "seed books")
}

// AllBooks returns every book, ordered by id.
func (s *Store) AllBooks(ctx context.Context) ([]*model.Book, error) {
	rows, err := s.sq.Select("id", "title", "author_id").
		From("books").
		OrderBy("id").
		QueryContext(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "query books")
	}
	defer rows.Close()

	var books []*model.Book
	for rows.Next() {
		var b model.Book
		if err := rows.Scan(&b.ID, &b.Title, &b.AuthorID); err != nil {
			return nil, errors.Wrap(err, "scan book")
		}
		books = append(books, &b)
	}
	return books, errors.Wrap(rows.Err(), "iterate books")
}

// AuthorsByID returns the authors whose id is in ids, as a map keyed by id.
// Ids without a matching row are simply absent from the map.
func (s *Store) AuthorsByID(ctx context.Context, ids []int64) (map[int64]*model.Author, error) {
	if len(ids) == 0 {
		return map[int64]*model.Author{}, nil
	}

	rows, err := s.sq.Select("id", "name").
		From("authors").
		Where(squirrel.Eq{"id": ids}).
		QueryContext(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "query authors")
	}
	defer rows.Close()

	authors := make(map[int64]*model.Author, len(ids))
	for rows.Next() {
		var a model.Author
		if err := rows.Scan(&a.ID, &a.Name); err != nil {
			return nil, errors.Wrap(err, "scan author")
		}
		authors[a.ID] = &a
	}
	return authors, errors.Wrap(rows.Err(), "iterate authors")
}
