package rating

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/mbriand/grimoire/internal/apperror"
	"github.com/mbriand/grimoire/internal/model"
)

func newBook() *model.Book {
	return &model.Book{
		ID:      "book-1",
		Title:   "Le Grand Meaulnes",
		Author:  "Alain-Fournier",
		Genre:   "Roman",
		Year:    1913,
		OwnerID: "owner-1",
	}
}

func TestApplyFirstRatingSetsAverageToGrade(t *testing.T) {
	for grade := MinGrade; grade <= MaxGrade; grade++ {
		book := newBook()
		if err := Apply(book, "rater-1", grade); err != nil {
			t.Fatalf("Apply(grade=%d) error = %v", grade, err)
		}
		if book.AverageRating != float64(grade) {
			t.Errorf("AverageRating = %v after first grade %d, want %v", book.AverageRating, grade, float64(grade))
		}
		if len(book.Ratings) != 1 {
			t.Errorf("len(Ratings) = %d, want 1", len(book.Ratings))
		}
	}
}

func TestApplyRejectsOutOfRangeGrades(t *testing.T) {
	for _, grade := range []int{-1, 6, 100, -42} {
		book := newBook()
		err := Apply(book, "rater-1", grade)
		if !errors.Is(err, apperror.ErrInvalidRating) {
			t.Errorf("Apply(grade=%d) error = %v, want ErrInvalidRating", grade, err)
		}
		if len(book.Ratings) != 0 || book.AverageRating != 0 {
			t.Errorf("Apply(grade=%d) mutated the book on failure", grade)
		}
	}
}

func TestApplyRejectsEmptyRater(t *testing.T) {
	book := newBook()
	if err := Apply(book, "", 3); !errors.Is(err, apperror.ErrInvalidRating) {
		t.Errorf("Apply with empty rater error = %v, want ErrInvalidRating", err)
	}
	if len(book.Ratings) != 0 {
		t.Error("Apply with empty rater mutated the book")
	}
}

func TestApplyRejectsDuplicateRaterWithoutMutation(t *testing.T) {
	book := newBook()
	if err := Apply(book, "rater-1", 4); err != nil {
		t.Fatalf("first Apply error = %v", err)
	}

	err := Apply(book, "rater-1", 2)
	if !errors.Is(err, apperror.ErrDuplicateRating) {
		t.Fatalf("second Apply error = %v, want ErrDuplicateRating", err)
	}

	// Idempotent-reject, not idempotent-overwrite.
	if len(book.Ratings) != 1 {
		t.Errorf("len(Ratings) = %d after rejected duplicate, want 1", len(book.Ratings))
	}
	if book.Ratings[0].Grade != 4 {
		t.Errorf("stored grade = %d after rejected duplicate, want 4", book.Ratings[0].Grade)
	}
	if book.AverageRating != 4 {
		t.Errorf("AverageRating = %v after rejected duplicate, want 4", book.AverageRating)
	}
}

func TestApplyScenario(t *testing.T) {
	// B grades 4 → 4.0; C grades 5 → 4.5; B grades 2 again → rejected, 4.5 stays.
	book := newBook()

	if err := Apply(book, "user-b", 4); err != nil {
		t.Fatalf("Apply(user-b, 4) error = %v", err)
	}
	if book.AverageRating != 4.0 {
		t.Errorf("AverageRating = %v, want 4.0", book.AverageRating)
	}

	if err := Apply(book, "user-c", 5); err != nil {
		t.Fatalf("Apply(user-c, 5) error = %v", err)
	}
	if book.AverageRating != 4.5 {
		t.Errorf("AverageRating = %v, want 4.5", book.AverageRating)
	}

	if err := Apply(book, "user-b", 2); !errors.Is(err, apperror.ErrDuplicateRating) {
		t.Fatalf("Apply(user-b, 2) error = %v, want ErrDuplicateRating", err)
	}
	if book.AverageRating != 4.5 {
		t.Errorf("AverageRating = %v after rejected duplicate, want 4.5", book.AverageRating)
	}
}

func TestAverageRounding(t *testing.T) {
	tests := []struct {
		name   string
		grades []int
		want   float64
	}{
		{"empty set", nil, 0},
		{"single grade", []int{3}, 3},
		{"exact half", []int{1, 2}, 1.5},
		{"thirds round half-up", []int{0, 0, 5}, 1.67}, // 1.666... → 1.67
		{"repeating third", []int{1, 1, 2}, 1.33},      // 1.333... → 1.33
		{"sevenths", []int{5, 5, 5, 5, 5, 5, 1}, 4.43}, // 4.428... → 4.43
		{"all max", []int{5, 5, 5}, 5},
		{"all zero", []int{0, 0, 0, 0}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ratings := make([]model.Rating, len(tt.grades))
			for i, g := range tt.grades {
				ratings[i] = model.Rating{RaterID: string(rune('a' + i)), Grade: g}
			}
			if got := Average(ratings); got != tt.want {
				t.Errorf("Average(%v) = %v, want %v", tt.grades, got, tt.want)
			}
		})
	}
}

func TestAverageIsOrderIndependent(t *testing.T) {
	grades := []int{5, 0, 3, 4, 1, 2, 5, 3}

	book := newBook()
	for i, g := range grades {
		if err := Apply(book, string(rune('a'+i)), g); err != nil {
			t.Fatalf("Apply error = %v", err)
		}
	}
	want := book.AverageRating

	// Submit the same grades from the same raters in random orders; the
	// final average must not depend on submission order.
	for trial := 0; trial < 10; trial++ {
		perm := rand.Perm(len(grades))
		shuffled := newBook()
		for _, i := range perm {
			if err := Apply(shuffled, string(rune('a'+i)), grades[i]); err != nil {
				t.Fatalf("Apply error = %v", err)
			}
		}
		if shuffled.AverageRating != want {
			t.Fatalf("AverageRating = %v for permutation %v, want %v", shuffled.AverageRating, perm, want)
		}
	}
}
