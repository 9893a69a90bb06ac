// Package repository defines the storage interfaces the service layer
// depends on. The sqlite subpackage provides the concrete implementation;
// tests substitute in-memory mocks.
package repository

import (
	"context"

	"github.com/mbriand/grimoire/internal/model"
)

// ListOptions controls pagination for list queries.
type ListOptions struct {
	Limit  int
	Offset int
}

// BookRepository persists books and their ratings.
//
// Rate is the one operation with internal transaction semantics: the
// whole load/duplicate-check/append/recompute/persist cycle for a book
// must execute atomically so concurrent raters can neither bypass the
// one-rating-per-rater invariant nor lose an update to the average.
type BookRepository interface {
	Create(ctx context.Context, book *model.Book) error
	GetByID(ctx context.Context, id string) (*model.Book, error)
	List(ctx context.Context, opts ListOptions) ([]model.Book, error)
	BestRated(ctx context.Context, limit int) ([]model.Book, error)
	Update(ctx context.Context, book *model.Book) error
	Delete(ctx context.Context, id string) error
	Rate(ctx context.Context, bookID, raterID string, grade int) (*model.Book, error)
}

// UserRepository persists user accounts. Method names carry the User
// prefix because the sqlite implementation shares a receiver with
// BookRepository.
type UserRepository interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	GetUserByID(ctx context.Context, id string) (*model.User, error)
}
