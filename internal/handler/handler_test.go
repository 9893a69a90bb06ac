package handler_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/mbriand/grimoire/internal/auth"
	"github.com/mbriand/grimoire/internal/handler"
	imagestore "github.com/mbriand/grimoire/internal/image"
	"github.com/mbriand/grimoire/internal/model"
	"github.com/mbriand/grimoire/internal/repository/sqlite"
	"github.com/mbriand/grimoire/internal/service"
	"github.com/mbriand/grimoire/internal/validate"
	"golang.org/x/crypto/bcrypt"
)

const testMaxUpload = 5 << 20

// testEnv wires real services over an in-memory database and a
// temporary image directory, so handler tests cover the full request
// path below the router.
type testEnv struct {
	auth     *handler.AuthHandler
	books    *handler.BookHandler
	tokens   *auth.TokenService
	require  func(http.Handler) http.Handler
	imageDir string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	db, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("sqlite.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	images, err := imagestore.NewStore(t.TempDir(), 800, 80, logger)
	if err != nil {
		t.Fatalf("image.NewStore: %v", err)
	}

	tokens, err := auth.NewTokenService("test-secret-at-least-16-chars!!", time.Hour)
	if err != nil {
		t.Fatalf("auth.NewTokenService: %v", err)
	}
	passwords := auth.NewPasswordService(bcrypt.MinCost)
	validator := validate.New()

	authSvc := service.NewAuthService(db, tokens, passwords, validator, logger)
	bookSvc := service.NewBookService(db, images, validator, "http://localhost:8080", logger)

	return &testEnv{
		auth:     handler.NewAuthHandler(authSvc, logger),
		books:    handler.NewBookHandler(bookSvc, testMaxUpload, logger),
		tokens:   tokens,
		require:  auth.RequireAuth(tokens),
		imageDir: images.Dir(),
	}
}

// signup registers a user and returns a bearer token plus the user ID.
func (env *testEnv) signup(t *testing.T, email string) (token, userID string) {
	t.Helper()

	body := fmt.Sprintf(`{"email":%q,"password":"secret123"}`, email)
	req := httptest.NewRequest(http.MethodPost, "/api/auth/signup", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	env.auth.HandleSignup(rr, req)
	if rr.Code != http.StatusCreated {
		t.Fatalf("signup status = %d, body = %s", rr.Code, rr.Body.String())
	}

	req = httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rr = httptest.NewRecorder()
	env.auth.HandleLogin(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("login status = %d, body = %s", rr.Code, rr.Body.String())
	}

	var result struct {
		UserID string `json:"userId"`
		Token  string `json:"token"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&result); err != nil {
		t.Fatalf("decoding login response: %v", err)
	}
	return result.Token, result.UserID
}

// authed runs an authenticated handler through the auth middleware.
func (env *testEnv) authed(h http.HandlerFunc, req *http.Request, token string) *httptest.ResponseRecorder {
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	env.require(h).ServeHTTP(rr, req)
	return rr
}

// pngBytes renders a small test image.
func pngBytes(t *testing.T) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, 10, 10))
	for x := 0; x < 10; x++ {
		for y := 0; y < 10; y++ {
			img.Set(x, y, color.RGBA{R: 180, G: 40, B: 40, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encoding test image: %v", err)
	}
	return buf.Bytes()
}

// multipartBook builds a multipart body with a "book" JSON field and an
// optional "image" file.
func multipartBook(t *testing.T, bookJSON string, imageData []byte) (io.Reader, string) {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("book", bookJSON); err != nil {
		t.Fatalf("writing book field: %v", err)
	}
	if imageData != nil {
		fw, err := mw.CreateFormFile("image", "cover.png")
		if err != nil {
			t.Fatalf("creating image part: %v", err)
		}
		if _, err := fw.Write(imageData); err != nil {
			t.Fatalf("writing image part: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("closing multipart writer: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

// createBook posts a valid book for the given token and returns it.
func (env *testEnv) createBook(t *testing.T, token, title string) *model.Book {
	t.Helper()

	bookJSON := fmt.Sprintf(`{"title":%q,"author":"Umberto Eco","genre":"Mystery","year":1980}`, title)
	body, contentType := multipartBook(t, bookJSON, pngBytes(t))
	req := httptest.NewRequest(http.MethodPost, "/api/books", body)
	req.Header.Set("Content-Type", contentType)

	rr := env.authed(env.books.HandleCreate, req, token)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create book status = %d, body = %s", rr.Code, rr.Body.String())
	}

	var book model.Book
	if err := json.NewDecoder(rr.Body).Decode(&book); err != nil {
		t.Fatalf("decoding book: %v", err)
	}
	return &book
}
