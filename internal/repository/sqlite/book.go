package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/mbriand/grimoire/internal/apperror"
	"github.com/mbriand/grimoire/internal/model"
	"github.com/mbriand/grimoire/internal/rating"
	"github.com/mbriand/grimoire/internal/repository"
)

// compile-time check that *DB implements repository.BookRepository
var _ repository.BookRepository = (*DB)(nil)

const bookColumns = `id, title, author, genre, year, image_url, owner_id, average_rating, created_at, updated_at`

// Create inserts a new book. ID and timestamps are generated here and
// written back to the caller's struct; a new book starts with no ratings
// and an average of 0.
func (db *DB) Create(ctx context.Context, book *model.Book) error {
	book.ID = xid.New().String()
	now := time.Now()
	book.CreatedAt = now
	book.UpdatedAt = now
	book.AverageRating = 0

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO books (id, title, author, genre, year, image_url, owner_id, average_rating, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		book.ID,
		book.Title,
		book.Author,
		book.Genre,
		book.Year,
		book.ImageURL,
		book.OwnerID,
		book.AverageRating,
		book.CreatedAt,
		book.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: creating book: %w", err)
	}

	return nil
}

// GetByID retrieves a single book with its ratings.
func (db *DB) GetByID(ctx context.Context, id string) (*model.Book, error) {
	book, err := scanBook(db.conn.QueryRowContext(ctx,
		`SELECT `+bookColumns+` FROM books WHERE id = ?`, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("book", id)
		}
		return nil, fmt.Errorf("sqlite: getting book %s: %w", id, err)
	}

	ratings, err := db.ratingsFor(ctx, db.conn, id)
	if err != nil {
		return nil, err
	}
	book.Ratings = ratings

	return book, nil
}

// List retrieves books ordered newest-first, with their ratings attached.
func (db *DB) List(ctx context.Context, opts repository.ListOptions) ([]model.Book, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}

	return db.queryBooks(ctx,
		`SELECT `+bookColumns+` FROM books ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		limit, offset)
}

// BestRated returns the top-rated books, highest average first. Ties keep
// insertion order (created_at ascending) so the result is stable.
func (db *DB) BestRated(ctx context.Context, limit int) ([]model.Book, error) {
	if limit <= 0 {
		limit = 3
	}

	return db.queryBooks(ctx,
		`SELECT `+bookColumns+` FROM books ORDER BY average_rating DESC, created_at ASC LIMIT ?`,
		limit)
}

// Update persists the mutable book fields. ID, owner and creation time
// never change; the rating columns are owned by Rate.
func (db *DB) Update(ctx context.Context, book *model.Book) error {
	book.UpdatedAt = time.Now()

	result, err := db.conn.ExecContext(ctx,
		`UPDATE books
		 SET title = ?, author = ?, genre = ?, year = ?, image_url = ?, updated_at = ?
		 WHERE id = ?`,
		book.Title,
		book.Author,
		book.Genre,
		book.Year,
		book.ImageURL,
		book.UpdatedAt,
		book.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating book %s: %w", book.ID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("book", book.ID)
	}

	return nil
}

// Delete removes a book. Its ratings go with it via ON DELETE CASCADE.
func (db *DB) Delete(ctx context.Context, id string) error {
	result, err := db.conn.ExecContext(ctx, `DELETE FROM books WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting book %s: %w", id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("book", id)
	}

	return nil
}

// Rate records a rating and recomputes the book's average, atomically.
//
// The whole load/duplicate-check/append/recompute/persist cycle runs in
// one transaction. SQLite allows a single writer at a time, so two
// concurrent raters for the same book serialize here instead of both
// reading the same rating set and racing on the write; a conflicting
// transaction fails and rolls back rather than corrupting the average.
// The rating engine does the duplicate scan and the arithmetic; the
// (book_id, rater_id) primary key is the last line of defence should a
// duplicate slip past it.
//
// Returns the updated book on success.
func (db *DB) Rate(ctx context.Context, bookID, raterID string, grade int) (*model.Book, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("sqlite: beginning rating transaction: %w", err)
	}
	defer tx.Rollback()

	book, err := scanBook(tx.QueryRowContext(ctx,
		`SELECT `+bookColumns+` FROM books WHERE id = ?`, bookID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("book", bookID)
		}
		return nil, fmt.Errorf("sqlite: getting book %s for rating: %w", bookID, err)
	}

	book.Ratings, err = db.ratingsFor(ctx, tx, bookID)
	if err != nil {
		return nil, err
	}

	// Pure in-memory step: duplicate check, append, recompute.
	if err := rating.Apply(book, raterID, grade); err != nil {
		return nil, err
	}

	added := book.Ratings[len(book.Ratings)-1]
	added.CreatedAt = time.Now()
	book.Ratings[len(book.Ratings)-1] = added

	_, err = tx.ExecContext(ctx,
		`INSERT INTO ratings (book_id, rater_id, grade, created_at) VALUES (?, ?, ?, ?)`,
		bookID, added.RaterID, added.Grade, added.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, apperror.DuplicateRating(bookID)
		}
		return nil, fmt.Errorf("sqlite: inserting rating for book %s: %w", bookID, err)
	}

	book.UpdatedAt = time.Now()
	_, err = tx.ExecContext(ctx,
		`UPDATE books SET average_rating = ?, updated_at = ? WHERE id = ?`,
		book.AverageRating, book.UpdatedAt, bookID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: updating average for book %s: %w", bookID, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("sqlite: committing rating for book %s: %w", bookID, err)
	}

	return book, nil
}

// querier is the subset of sql.DB/sql.Tx used by the read helpers, so
// they work inside and outside transactions.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// ratingsFor loads a book's ratings in submission order.
func (db *DB) ratingsFor(ctx context.Context, q querier, bookID string) ([]model.Rating, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT rater_id, grade, created_at FROM ratings WHERE book_id = ? ORDER BY created_at ASC, rowid ASC`,
		bookID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing ratings for book %s: %w", bookID, err)
	}
	defer rows.Close()

	var ratings []model.Rating
	for rows.Next() {
		var r model.Rating
		if err := rows.Scan(&r.RaterID, &r.Grade, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scanning rating row: %w", err)
		}
		ratings = append(ratings, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating ratings: %w", err)
	}

	return ratings, nil
}

// queryBooks runs a multi-row book query and attaches ratings to each
// result.
func (db *DB) queryBooks(ctx context.Context, query string, args ...any) ([]model.Book, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing books: %w", err)
	}
	defer rows.Close()

	books := make([]model.Book, 0, 20)
	for rows.Next() {
		var b model.Book
		if err := rows.Scan(
			&b.ID, &b.Title, &b.Author, &b.Genre, &b.Year,
			&b.ImageURL, &b.OwnerID, &b.AverageRating, &b.CreatedAt, &b.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("sqlite: scanning book row: %w", err)
		}
		books = append(books, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating books: %w", err)
	}

	for i := range books {
		ratings, err := db.ratingsFor(ctx, db.conn, books[i].ID)
		if err != nil {
			return nil, err
		}
		books[i].Ratings = ratings
	}

	return books, nil
}

// rowScanner abstracts sql.Row so scanBook works for both pool and tx
// queries.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanBook(row rowScanner) (*model.Book, error) {
	var b model.Book
	err := row.Scan(
		&b.ID, &b.Title, &b.Author, &b.Genre, &b.Year,
		&b.ImageURL, &b.OwnerID, &b.AverageRating, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &b, nil
}
