// Package image implements the cover image pipeline: uploaded files are
// decoded, resized down to a bounded width, re-encoded as JPEG and stored
// under a generated name in the images directory.
//
// The original upload bytes are never written to disk — the pipeline
// streams from the multipart reader straight into the decoder, and a
// failed conversion leaves nothing behind. Stored covers are served by
// the static /images route and deleted when their book goes away.
package image

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/rs/xid"

	// Register the WebP decoder so webp uploads can be read. Covers are
	// always re-encoded as JPEG on the way out.
	_ "golang.org/x/image/webp"

	"github.com/mbriand/grimoire/internal/apperror"
)

// allowedExtensions is the upload allowlist, matched case-insensitively
// against the client-supplied file name.
var allowedExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".webp": true,
}

// Store owns the images directory and the conversion parameters.
type Store struct {
	dir      string
	maxWidth int
	quality  int
	logger   *slog.Logger
}

// NewStore creates the images directory if needed and returns a Store.
func NewStore(dir string, maxWidth, quality int, logger *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("image: creating directory %s: %w", dir, err)
	}
	return &Store{
		dir:      dir,
		maxWidth: maxWidth,
		quality:  quality,
		logger:   logger,
	}, nil
}

// Save converts an upload into an optimized stored cover and returns the
// stored file name.
//
// The image is resized to the configured maximum width — never enlarged,
// aspect ratio preserved — and encoded as JPEG at the configured quality.
// Any failure after the output file is created removes it again; Save
// either stores a complete cover or nothing.
func (s *Store) Save(r io.Reader, originalName string) (string, error) {
	ext := strings.ToLower(filepath.Ext(originalName))
	if !allowedExtensions[ext] {
		return "", apperror.ImageProcessing("unsupported image type: only jpg, jpeg, png and webp are accepted")
	}

	img, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return "", apperror.ImageProcessing("unable to decode image")
	}

	if img.Bounds().Dx() > s.maxWidth {
		img = imaging.Resize(img, s.maxWidth, 0, imaging.Lanczos)
	}

	name := xid.New().String() + ".jpg"
	path := filepath.Join(s.dir, name)

	out, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("image: creating %s: %w", path, err)
	}

	if err := imaging.Encode(out, img, imaging.JPEG, imaging.JPEGQuality(s.quality)); err != nil {
		out.Close()
		os.Remove(path)
		return "", apperror.ImageProcessing("unable to encode image")
	}
	if err := out.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("image: writing %s: %w", path, err)
	}

	s.logger.Info("cover image stored",
		slog.String("file", name),
		slog.String("original", originalName),
	)

	return name, nil
}

// Remove deletes a stored cover by file name. A missing file is not an
// error — delete flows must be idempotent.
//
// The name is reduced to its base before joining so a crafted value like
// "../../etc/passwd" cannot escape the images directory.
func (s *Store) Remove(name string) error {
	if name == "" {
		return nil
	}
	path := filepath.Join(s.dir, filepath.Base(name))

	err := os.Remove(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("image: removing %s: %w", path, err)
	}

	s.logger.Info("cover image removed", slog.String("file", filepath.Base(name)))
	return nil
}

// Dir returns the directory stored covers live in, for the static file
// route.
func (s *Store) Dir() string {
	return s.dir
}
