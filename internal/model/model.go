package model

// Author represents an author row.
type Author struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Book represents a book row. It carries the author id only; the Author row
// is never joined eagerly so that concurrent resolutions within one request
// can collapse into a single batched lookup.
type Book struct {
	ID       int64  `json:"id"`
	Title    string `json:"title"`
	AuthorID int64  `json:"author_id"`
}
