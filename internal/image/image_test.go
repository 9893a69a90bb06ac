package image

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/disintegration/imaging"

	"github.com/mbriand/grimoire/internal/apperror"
)

func newTestStore(t *testing.T, maxWidth int) *Store {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	store, err := NewStore(t.TempDir(), maxWidth, 80, logger)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	return store
}

// pngUpload renders a solid test image of the given size as PNG bytes.
func pngUpload(t *testing.T, width, height int) *bytes.Buffer {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			img.Set(x, y, color.RGBA{R: 200, G: 100, B: 50, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encoding test png: %v", err)
	}
	return &buf
}

func TestSaveStoresJPEG(t *testing.T) {
	store := newTestStore(t, 800)

	name, err := store.Save(pngUpload(t, 100, 80), "cover.png")
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if !strings.HasSuffix(name, ".jpg") {
		t.Errorf("Save() name = %q, want .jpg suffix", name)
	}

	stored, err := imaging.Open(filepath.Join(store.Dir(), name))
	if err != nil {
		t.Fatalf("opening stored cover: %v", err)
	}
	if stored.Bounds().Dx() != 100 {
		t.Errorf("stored width = %d, want 100 (small images are not enlarged)", stored.Bounds().Dx())
	}
}

func TestSaveBoundsWidth(t *testing.T) {
	store := newTestStore(t, 64)

	name, err := store.Save(pngUpload(t, 200, 100), "wide.png")
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	stored, err := imaging.Open(filepath.Join(store.Dir(), name))
	if err != nil {
		t.Fatalf("opening stored cover: %v", err)
	}
	if got := stored.Bounds().Dx(); got != 64 {
		t.Errorf("stored width = %d, want 64", got)
	}
	// Aspect ratio preserved: 200x100 → 64x32.
	if got := stored.Bounds().Dy(); got != 32 {
		t.Errorf("stored height = %d, want 32", got)
	}
}

func TestSaveRejectsDisallowedExtension(t *testing.T) {
	store := newTestStore(t, 800)

	_, err := store.Save(pngUpload(t, 10, 10), "cover.gif")
	if !errors.Is(err, apperror.ErrImage) {
		t.Errorf("Save(.gif) error = %v, want ErrImage", err)
	}
}

func TestSaveRejectsCorruptImage(t *testing.T) {
	store := newTestStore(t, 800)

	_, err := store.Save(strings.NewReader("not an image at all"), "cover.png")
	if !errors.Is(err, apperror.ErrImage) {
		t.Errorf("Save(corrupt) error = %v, want ErrImage", err)
	}

	// Failure leaves no partial file behind.
	entries, readErr := os.ReadDir(store.Dir())
	if readErr != nil {
		t.Fatalf("reading store dir: %v", readErr)
	}
	if len(entries) != 0 {
		t.Errorf("store dir has %d files after failed save, want 0", len(entries))
	}
}

func TestRemove(t *testing.T) {
	store := newTestStore(t, 800)

	name, err := store.Save(pngUpload(t, 10, 10), "cover.png")
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if err := store.Remove(name); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(store.Dir(), name)); !os.IsNotExist(err) {
		t.Error("Remove() left the file in place")
	}

	// Removing again (or removing nothing) is not an error.
	if err := store.Remove(name); err != nil {
		t.Errorf("Remove() of missing file error = %v, want nil", err)
	}
	if err := store.Remove(""); err != nil {
		t.Errorf("Remove(\"\") error = %v, want nil", err)
	}
}

func TestRemoveDoesNotEscapeDirectory(t *testing.T) {
	store := newTestStore(t, 800)

	outside := filepath.Join(t.TempDir(), "victim.txt")
	if err := os.WriteFile(outside, []byte("keep me"), 0o644); err != nil {
		t.Fatalf("writing victim file: %v", err)
	}

	// Base-name reduction means this targets <dir>/victim.txt, not the
	// real path.
	if err := store.Remove("../" + outside); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if _, err := os.Stat(outside); err != nil {
		t.Error("Remove() deleted a file outside the images directory")
	}
}
