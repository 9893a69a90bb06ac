// Package model defines the data structures used throughout the application.
// In Go, we use structs to represent our data — plain values with no
// behaviour beyond small helpers, passed between the handler, service and
// repository layers.
package model

import "time"

// Book represents a catalogued book and its crowd-sourced ratings.
//
// AverageRating is derived data: it must always equal the mean of all
// grades in Ratings rounded to 2 decimal places, or 0 when Ratings is
// empty. It is recomputed by the rating engine every time Ratings changes
// and stored alongside the book so list queries never need to aggregate.
//
// OwnerID is set once at creation from the authenticated caller and never
// changes afterwards. Only the owner may update or delete the book; any
// authenticated user may rate it.
type Book struct {
	ID            string    `json:"id"            db:"id"`
	Title         string    `json:"title"         db:"title"`
	Author        string    `json:"author"        db:"author"`
	Genre         string    `json:"genre"         db:"genre"`
	Year          int       `json:"year"          db:"year"`
	ImageURL      string    `json:"imageUrl"      db:"image_url"` // empty when no cover was uploaded
	OwnerID       string    `json:"userId"        db:"owner_id"`
	Ratings       []Rating  `json:"ratings"       db:"-"`
	AverageRating float64   `json:"averageRating" db:"average_rating"`
	CreatedAt     time.Time `json:"createdAt"     db:"created_at"`
	UpdatedAt     time.Time `json:"updatedAt"     db:"updated_at"`
}

// Rating is a single user's grade for a book.
//
// A book holds at most one rating per rater — the (book, RaterID) pair is
// unique, enforced both by the rating engine's duplicate scan and by the
// ratings table's primary key.
type Rating struct {
	RaterID   string    `json:"userId"    db:"rater_id"`
	Grade     int       `json:"grade"     db:"grade"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// RatedBy reports whether the given user has already rated the book.
func (b *Book) RatedBy(userID string) bool {
	for _, r := range b.Ratings {
		if r.RaterID == userID {
			return true
		}
	}
	return false
}
