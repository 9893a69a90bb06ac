// Package rating implements the rating engine: the one-rating-per-rater
// invariant and the derived average kept consistent with the rating set.
//
// The engine is pure — it mutates an in-memory Book and never touches
// storage. Persistence is the caller's job; the sqlite repository runs
// Apply inside a single transaction so the load/check/append/recompute
// cycle is atomic per book.
package rating

import (
	"math"

	"github.com/mbriand/grimoire/internal/apperror"
	"github.com/mbriand/grimoire/internal/model"
)

// Grade bounds. Grades are whole stars from 0 to 5 inclusive.
const (
	MinGrade = 0
	MaxGrade = 5
)

// Apply records a rating on the book and recomputes its average.
//
// Failure modes, checked in order and with no partial mutation:
//   - InvalidRating when raterID is empty or grade is outside [0,5]
//   - DuplicateRating when the rater already appears in book.Ratings
//     (a linear scan — rating sets are small by nature)
//
// On success the rating is appended (order = submission order) and
// AverageRating is recomputed from the updated set.
func Apply(book *model.Book, raterID string, grade int) error {
	if raterID == "" {
		return apperror.InvalidRating("rater identity is required")
	}
	if grade < MinGrade || grade > MaxGrade {
		return apperror.InvalidRating("grade must be an integer between 0 and 5")
	}
	if book.RatedBy(raterID) {
		return apperror.DuplicateRating(book.ID)
	}

	book.Ratings = append(book.Ratings, model.Rating{
		RaterID: raterID,
		Grade:   grade,
	})
	book.AverageRating = Average(book.Ratings)
	return nil
}

// Average returns the mean grade rounded half-up to 2 decimal places,
// or 0 for an empty rating set.
//
// The average is a number, not a formatted string — clients and the
// bestrating query both do arithmetic and ordering on it.
func Average(ratings []model.Rating) float64 {
	if len(ratings) == 0 {
		return 0
	}
	sum := 0
	for _, r := range ratings {
		sum += r.Grade
	}
	mean := float64(sum) / float64(len(ratings))
	return math.Round(mean*100) / 100
}
