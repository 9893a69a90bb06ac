package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/mbriand/grimoire/internal/apperror"
	"github.com/mbriand/grimoire/internal/auth"
	"github.com/mbriand/grimoire/internal/rating"
	"github.com/mbriand/grimoire/internal/repository"
	"github.com/mbriand/grimoire/internal/service"
	"github.com/mbriand/grimoire/internal/validate"
)

// BookHandler serves the book catalog endpoints.
type BookHandler struct {
	books          *service.BookService
	maxUploadBytes int64
	logger         *slog.Logger
}

// NewBookHandler creates a BookHandler. maxUploadBytes bounds the size
// of request bodies that may carry a cover image.
func NewBookHandler(books *service.BookService, maxUploadBytes int64, logger *slog.Logger) *BookHandler {
	return &BookHandler{
		books:          books,
		maxUploadBytes: maxUploadBytes,
		logger:         logger,
	}
}

// HandleList returns the catalog.
//
// GET /api/books?limit=20&offset=0
func (h *BookHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	opts := repository.ListOptions{
		Limit:  queryInt(r, "limit", 0),
		Offset: queryInt(r, "offset", 0),
	}

	books, err := h.books.List(r.Context(), opts)
	if err != nil {
		h.logger.Error("failed to list books", slog.String("error", err.Error()))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, books)
}

// HandleBestRated returns the three books with the highest average
// rating.
//
// GET /api/books/bestrating
func (h *BookHandler) HandleBestRated(w http.ResponseWriter, r *http.Request) {
	books, err := h.books.BestRated(r.Context())
	if err != nil {
		h.logger.Error("failed to list best rated books", slog.String("error", err.Error()))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, books)
}

// HandleGet returns a single book with its ratings.
//
// GET /api/books/{id}
func (h *BookHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	book, err := h.books.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, book)
}

// HandleCreate adds a book to the catalog. The caller becomes its
// owner.
//
// POST /api/books
// Body: multipart/form-data with a "book" JSON field and an "image"
// file, or a plain JSON body without a cover.
func (h *BookHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized("valid authentication required"))
		return
	}

	input, cover, err := h.parseBookRequest(w, r)
	if err != nil {
		writeError(w, err)
		return
	}

	book, err := h.books.Create(r.Context(), userID, input, cover)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, book)
}

// HandleUpdate modifies a book. Only the owner may do so; a new cover
// image is optional.
//
// PUT /api/books/{id}
func (h *BookHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized("valid authentication required"))
		return
	}

	input, cover, err := h.parseBookRequest(w, r)
	if err != nil {
		writeError(w, err)
		return
	}

	book, err := h.books.Update(r.Context(), userID, r.PathValue("id"), input, cover)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, book)
}

// HandleDelete removes a book. Only the owner may do so.
//
// DELETE /api/books/{id}
func (h *BookHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized("valid authentication required"))
		return
	}

	if err := h.books.Delete(r.Context(), userID, r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "book deleted"})
}

// HandleRate records the caller's grade for a book.
//
// POST /api/books/{id}/rating
// Body: {"grade": 4} ("rating" is accepted as a legacy alias)
func (h *BookHandler) HandleRate(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized("valid authentication required"))
		return
	}

	var body struct {
		Grade  *float64 `json:"grade"`
		Rating *float64 `json:"rating"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, apperror.ValidationFailed("request body must be valid JSON"))
		return
	}
	value := body.Grade
	if value == nil {
		value = body.Rating
	}

	// Missing and fractional grades funnel into the repository as an
	// out-of-range value: the book lookup still runs, so rating an
	// unknown book reports not found before the grade is judged.
	grade := rating.MinGrade - 1
	if value != nil && *value == math.Trunc(*value) {
		grade = int(*value)
	}

	book, err := h.books.Rate(r.Context(), userID, r.PathValue("id"), grade)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, book)
}

// parseBookRequest normalizes the body shapes clients send: a multipart
// form carrying a "book" JSON field (or the book fields spread across
// the form) plus an "image" file, or a plain JSON body with no cover.
// Either way the caller gets a typed input and an optional upload.
func (h *BookHandler) parseBookRequest(w http.ResponseWriter, r *http.Request) (validate.BookInput, *service.CoverUpload, error) {
	var input validate.BookInput

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)

	mediaType := ""
	if contentType := r.Header.Get("Content-Type"); contentType != "" {
		var err error
		mediaType, _, err = mime.ParseMediaType(contentType)
		if err != nil {
			return input, nil, apperror.ValidationFailed("unsupported content type")
		}
	}

	if !strings.HasPrefix(mediaType, "multipart/") {
		if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
			return input, nil, apperror.ValidationFailed("request body must be valid JSON")
		}
		return input, nil, nil
	}

	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return input, nil, apperror.ValidationFailed("request body exceeds the upload size limit")
		}
		return input, nil, apperror.ValidationFailed("malformed multipart body")
	}

	if raw := r.FormValue("book"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &input); err != nil {
			return input, nil, apperror.ValidationFailed("the book field must be valid JSON")
		}
	} else {
		// No "book" JSON field: some clients spread the fields across
		// the form instead.
		input.Title = r.FormValue("title")
		input.Author = r.FormValue("author")
		input.Genre = r.FormValue("genre")
		if rawYear := r.FormValue("year"); rawYear != "" {
			n, err := strconv.Atoi(rawYear)
			if err != nil {
				return input, nil, apperror.ValidationFailed("year must be a number")
			}
			year := validate.FlexInt(n)
			input.Year = &year
		}
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return input, nil, nil
		}
		return input, nil, apperror.ValidationFailed("malformed image upload")
	}
	// The server removes the parsed multipart form, and with it this
	// file, once the handler returns.
	return input, &service.CoverUpload{Reader: file, Filename: header.Filename}, nil
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
