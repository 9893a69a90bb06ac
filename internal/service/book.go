package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"

	"github.com/mbriand/grimoire/internal/apperror"
	"github.com/mbriand/grimoire/internal/model"
	"github.com/mbriand/grimoire/internal/repository"
	"github.com/mbriand/grimoire/internal/validate"
)

// bestRatedLimit caps the bestrating listing.
const bestRatedLimit = 3

// ImageStore abstracts the cover image pipeline so service tests can
// run without touching the filesystem.
type ImageStore interface {
	Save(r io.Reader, originalName string) (string, error)
	Remove(name string) error
}

// CoverUpload carries an uploaded cover image into the service layer.
type CoverUpload struct {
	Reader   io.Reader
	Filename string
}

// BookService implements the catalog operations: CRUD with owner-only
// mutation, cover image lifecycle, rating and the bestrating listing.
type BookService struct {
	books     repository.BookRepository
	images    ImageStore
	validator *validate.Validator
	baseURL   string
	logger    *slog.Logger
}

// NewBookService creates a BookService. baseURL is the public origin
// used to build absolute cover URLs, without a trailing slash.
func NewBookService(
	books repository.BookRepository,
	images ImageStore,
	validator *validate.Validator,
	baseURL string,
	logger *slog.Logger,
) *BookService {
	return &BookService{
		books:     books,
		images:    images,
		validator: validator,
		baseURL:   baseURL,
		logger:    logger,
	}
}

// Create validates the input, stores the cover image when one was
// uploaded and persists the book for ownerID. If the database insert
// fails the stored image is removed again.
func (s *BookService) Create(ctx context.Context, ownerID string, input validate.BookInput, cover *CoverUpload) (*model.Book, error) {
	input.Normalize()
	if err := s.validator.BookCreate(&input); err != nil {
		return nil, err
	}

	name := ""
	if cover != nil {
		var err error
		name, err = s.images.Save(cover.Reader, cover.Filename)
		if err != nil {
			return nil, err
		}
	}

	year, _ := input.YearValue()
	book := &model.Book{
		Title:   input.Title,
		Author:  input.Author,
		Genre:   input.Genre,
		Year:    year,
		OwnerID: ownerID,
	}
	if name != "" {
		book.ImageURL = s.imageURL(name)
	}
	if err := s.books.Create(ctx, book); err != nil {
		if name != "" {
			if removeErr := s.images.Remove(name); removeErr != nil {
				s.logger.Error("failed to remove orphaned cover image",
					slog.String("image", name),
					slog.String("error", removeErr.Error()),
				)
			}
		}
		return nil, fmt.Errorf("creating book: %w", err)
	}

	s.logger.Info("book created",
		slog.String("bookID", book.ID),
		slog.String("ownerID", ownerID),
	)
	return book, nil
}

// Get returns a single book with its ratings.
func (s *BookService) Get(ctx context.Context, id string) (*model.Book, error) {
	return s.books.GetByID(ctx, id)
}

// List returns a page of books.
func (s *BookService) List(ctx context.Context, opts repository.ListOptions) ([]model.Book, error) {
	return s.books.List(ctx, opts)
}

// BestRated returns the three books with the highest average rating.
func (s *BookService) BestRated(ctx context.Context) ([]model.Book, error) {
	return s.books.BestRated(ctx, bestRatedLimit)
}

// Update applies a partial update to a book owned by callerID. Fields
// left empty in the input keep their current value. When a new cover is
// uploaded the previous image file is removed after the update commits.
func (s *BookService) Update(ctx context.Context, callerID, bookID string, input validate.BookInput, cover *CoverUpload) (*model.Book, error) {
	input.Normalize()
	if err := s.validator.BookUpdate(&input); err != nil {
		return nil, err
	}

	book, err := s.books.GetByID(ctx, bookID)
	if err != nil {
		return nil, err
	}
	if book.OwnerID != callerID {
		return nil, apperror.Forbidden("only the owner may modify this book")
	}

	if input.Title != "" {
		book.Title = input.Title
	}
	if input.Author != "" {
		book.Author = input.Author
	}
	if input.Genre != "" {
		book.Genre = input.Genre
	}
	if year, ok := input.YearValue(); ok {
		book.Year = year
	}

	oldImage := ""
	if cover != nil {
		name, err := s.images.Save(cover.Reader, cover.Filename)
		if err != nil {
			return nil, err
		}
		oldImage = imageName(book.ImageURL)
		book.ImageURL = s.imageURL(name)
	}

	if err := s.books.Update(ctx, book); err != nil {
		if cover != nil {
			if removeErr := s.images.Remove(imageName(book.ImageURL)); removeErr != nil {
				s.logger.Error("failed to remove orphaned cover image",
					slog.String("error", removeErr.Error()),
				)
			}
		}
		return nil, err
	}

	if oldImage != "" {
		if err := s.images.Remove(oldImage); err != nil {
			s.logger.Warn("failed to remove replaced cover image",
				slog.String("image", oldImage),
				slog.String("error", err.Error()),
			)
		}
	}

	s.logger.Info("book updated", slog.String("bookID", bookID))
	return book, nil
}

// Delete removes a book owned by callerID along with its cover image
// and ratings. A failure to delete the image file is logged but does
// not fail the operation.
func (s *BookService) Delete(ctx context.Context, callerID, bookID string) error {
	book, err := s.books.GetByID(ctx, bookID)
	if err != nil {
		return err
	}
	if book.OwnerID != callerID {
		return apperror.Forbidden("only the owner may delete this book")
	}

	if err := s.books.Delete(ctx, bookID); err != nil {
		return err
	}

	if name := imageName(book.ImageURL); name != "" {
		if err := s.images.Remove(name); err != nil {
			s.logger.Warn("failed to remove cover image",
				slog.String("image", name),
				slog.String("error", err.Error()),
			)
		}
	}

	s.logger.Info("book deleted", slog.String("bookID", bookID))
	return nil
}

// Rate records raterID's grade for a book and returns the book with
// its recomputed average. Each user may rate a book once; a repeated
// attempt is rejected without changing the stored rating.
func (s *BookService) Rate(ctx context.Context, raterID, bookID string, grade int) (*model.Book, error) {
	book, err := s.books.Rate(ctx, bookID, raterID, grade)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) ||
			errors.Is(err, apperror.ErrInvalidRating) ||
			errors.Is(err, apperror.ErrDuplicateRating) {
			return nil, err
		}
		return nil, fmt.Errorf("rating book: %w", err)
	}

	s.logger.Info("book rated",
		slog.String("bookID", bookID),
		slog.String("raterID", raterID),
		slog.Int("grade", grade),
	)
	return book, nil
}

func (s *BookService) imageURL(name string) string {
	return s.baseURL + "/images/" + name
}

// imageName extracts the stored file name from a cover URL.
func imageName(imageURL string) string {
	if imageURL == "" {
		return ""
	}
	return path.Base(imageURL)
}
