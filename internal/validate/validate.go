// Package validate checks and normalizes incoming request data before it
// reaches the business layer.
//
// All field errors for one request are aggregated into a single
// ValidationError rather than failing on the first, so clients can fix a
// whole form in one round trip.
package validate

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/mbriand/grimoire/internal/apperror"
)

// BookInput is the normalized book payload for create and update requests.
// The handler parses both accepted body shapes (multipart with a "book"
// JSON field, or plain JSON) into this one struct; nothing downstream
// branches on transport shape.
//
// Year is a pointer so "absent" and "zero" are distinguishable — updates
// may omit it, creates may not.
type BookInput struct {
	Title  string   `json:"title"`
	Author string   `json:"author"`
	Genre  string   `json:"genre"`
	Year   *FlexInt `json:"year"`
}

// Normalize trims surrounding whitespace from the string fields.
// String fields are trimmed but never case-normalized.
func (in *BookInput) Normalize() {
	in.Title = strings.TrimSpace(in.Title)
	in.Author = strings.TrimSpace(in.Author)
	in.Genre = strings.TrimSpace(in.Genre)
}

// YearValue returns the year and whether one was supplied.
func (in *BookInput) YearValue() (int, bool) {
	if in.Year == nil {
		return 0, false
	}
	return int(*in.Year), true
}

// Credentials is the signup/login payload.
type Credentials struct {
	Email    string `json:"email"    validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

// Shadow structs carrying the validation tags. Create requires every
// field; update is partial — fields left empty mean "keep the current
// value" and are only validated when supplied.
type bookCreateRules struct {
	Title  string `validate:"required"`
	Author string `validate:"required"`
	Genre  string `validate:"required"`
	Year   *int   `validate:"required,bookyear"`
}

type bookUpdateRules struct {
	Title  string `validate:"omitempty"`
	Author string `validate:"omitempty"`
	Genre  string `validate:"omitempty"`
	Year   *int   `validate:"omitempty,bookyear"`
}

// Validator wraps go-playground/validator with the book-specific rules
// registered. Construct once and share; it is safe for concurrent use.
type Validator struct {
	v *validator.Validate
}

// New builds a Validator with the custom year rule registered.
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	// A publication year is plausible from 1000 up to the current
	// calendar year, evaluated at validation time.
	_ = v.RegisterValidation("bookyear", func(fl validator.FieldLevel) bool {
		year := fl.Field().Int()
		return year >= 1000 && year <= int64(time.Now().Year())
	})

	return &Validator{v: v}
}

// BookCreate validates a normalized BookInput for creation.
// Title, author and genre must be non-empty after trimming; year is
// required and must lie in [1000, currentYear].
func (val *Validator) BookCreate(in *BookInput) error {
	in.Normalize()
	rules := bookCreateRules{
		Title:  in.Title,
		Author: in.Author,
		Genre:  in.Genre,
		Year:   yearPtr(in),
	}
	return val.collect(val.v.Struct(rules))
}

// BookUpdate validates a normalized BookInput for a partial update.
// Year is only checked when supplied.
func (val *Validator) BookUpdate(in *BookInput) error {
	in.Normalize()
	rules := bookUpdateRules{
		Title:  in.Title,
		Author: in.Author,
		Genre:  in.Genre,
		Year:   yearPtr(in),
	}
	return val.collect(val.v.Struct(rules))
}

// CredentialsValid validates a signup/login payload.
func (val *Validator) CredentialsValid(c *Credentials) error {
	c.Email = strings.TrimSpace(c.Email)
	return val.collect(val.v.Struct(c))
}

func yearPtr(in *BookInput) *int {
	if in.Year == nil {
		return nil
	}
	y := int(*in.Year)
	return &y
}

// collect translates validator.ValidationErrors into one aggregated
// apperror with a message per failed field.
func (val *Validator) collect(err error) error {
	if err == nil {
		return nil
	}

	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return apperror.ValidationFailed(err.Error())
	}

	messages := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		messages = append(messages, fieldMessage(fe))
	}
	return apperror.ValidationErrors(messages)
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Field() {
	case "Title":
		return "title is required"
	case "Author":
		return "author is required"
	case "Genre":
		return "genre is required"
	case "Year":
		if fe.Tag() == "required" {
			return "year is required"
		}
		return "year must be between 1000 and the current year"
	case "Email":
		if fe.Tag() == "required" {
			return "email is required"
		}
		return "email format is invalid"
	case "Password":
		if fe.Tag() == "required" {
			return "password is required"
		}
		return "password must contain at least 6 characters"
	}
	return fmt.Sprintf("%s is invalid", strings.ToLower(fe.Field()))
}
