// Package storage persists uploaded listing images on local disk.
package storage

import (
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"campusmarket/internal/middleware"
	"campusmarket/internal/models"

	"github.com/google/uuid"
)

// allowedExtensions is the fixed allow-list for uploaded images, checked by
// filename extension only.
var allowedExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// Store writes and removes listing image files under a single root
// directory. Stored references are relative URLs the HTTP layer serves
// statically.
type Store struct {
	root      string
	urlPrefix string
}

// NewStore returns a Store rooted at dir. Files are addressed as
// /uploads/<name> in API responses.
func NewStore(dir string) *Store {
	return &Store{root: dir, urlPrefix: "/uploads/"}
}

// Root returns the directory files are written to.
func (s *Store) Root() string {
	return s.root
}

// Allowed reports whether the filename's extension is in the allow-list.
func (s *Store) Allowed(filename string) bool {
	return allowedExtensions[strings.ToLower(filepath.Ext(filename))]
}

// sanitizeFilename strips path components and unsafe characters.
func sanitizeFilename(name string) string {
	name = filepath.Base(name)
	// Windows-style separators are not handled by Base on other platforms.
	if idx := strings.LastIndexByte(name, '\\'); idx >= 0 {
		name = name[idx+1:]
	}
	name = unsafeChars.ReplaceAllString(name, "_")
	name = strings.Trim(name, "._")
	if name == "" {
		name = "upload"
	}
	return name
}

// Save validates the extension, sanitizes the client filename, and writes
// the file under a collision-resistant name. It returns the relative URL of
// the stored file.
func (s *Store) Save(file *multipart.FileHeader) (string, error) {
	if !s.Allowed(file.Filename) {
		return "", models.NewValidationError(fmt.Sprintf("File type not allowed: %s", file.Filename))
	}

	name := fmt.Sprintf("%s_%s", uuid.New().String()[:8], sanitizeFilename(file.Filename))

	src, err := file.Open()
	if err != nil {
		return "", models.NewInternalError(err)
	}
	defer func() { _ = src.Close() }()

	if err := os.MkdirAll(s.root, 0o750); err != nil {
		return "", models.NewInternalError(err)
	}

	dst, err := os.OpenFile(filepath.Join(s.root, name), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return "", models.NewInternalError(err)
	}

	written, err := io.Copy(dst, src)
	if cerr := dst.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(filepath.Join(s.root, name))
		return "", models.NewInternalError(err)
	}

	middleware.UploadedImageBytes.Observe(float64(written))
	return s.urlPrefix + name, nil
}

// Remove deletes the file a stored URL points at. Unknown URLs (outside the
// store's prefix) are rejected.
func (s *Store) Remove(url string) error {
	name, ok := strings.CutPrefix(url, s.urlPrefix)
	if !ok || name == "" || name != sanitizeFilename(name) {
		return fmt.Errorf("not a stored image URL: %q", url)
	}
	return os.Remove(filepath.Join(s.root, name))
}
