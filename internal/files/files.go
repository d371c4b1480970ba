// Package files stores uploaded images on disk and serves them back by
// relative path.
package files

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// MaxFileSize is the upload size cap.
const MaxFileSize = 5 << 20 // 5 MiB

// Upload purpose folders.
const (
	FolderProfilePictures = "profile_pictures"
	FolderFoodImages      = "food_images"
)

// ErrFileTooLarge is returned when an upload exceeds MaxFileSize.
var ErrFileTooLarge = errors.New("file exceeds size limit")

// ErrBadExtension is returned for file types outside the image whitelist.
var ErrBadExtension = errors.New("file extension not allowed")

// ErrNotFound is returned when a stored file does not exist.
var ErrNotFound = errors.New("file not found")

var allowedExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
}

// Service stores and retrieves uploaded files under a root directory.
type Service struct {
	root string
}

// NewService creates a file service rooted at dir, creating it if needed.
func NewService(dir string) (*Service, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &Service{root: dir}, nil
}

// Save writes the upload to the given folder under a random filename and
// returns the path relative to the service root. The original filename is
// used only for its extension.
func (s *Service) Save(r io.Reader, originalName, folder string) (string, error) {
	ext := strings.ToLower(filepath.Ext(originalName))
	if !allowedExtensions[ext] {
		return "", fmt.Errorf("%w: %q", ErrBadExtension, ext)
	}

	// Read one byte past the cap to distinguish "at the limit" from "over it".
	data, err := io.ReadAll(io.LimitReader(r, MaxFileSize+1))
	if err != nil {
		return "", fmt.Errorf("read upload: %w", err)
	}
	if len(data) > MaxFileSize {
		return "", ErrFileTooLarge
	}

	dir := filepath.Join(s.root, folder)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create folder: %w", err)
	}

	name := uuid.NewString() + ext
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}

	return filepath.ToSlash(filepath.Join(folder, name)), nil
}

// Resolve maps a stored relative path to its absolute location, rejecting
// paths that escape the root.
func (s *Service) Resolve(relPath string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(relPath))
	if clean == "." || strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", ErrNotFound
	}

	full := filepath.Join(s.root, clean)
	info, err := os.Stat(full)
	if err != nil || info.IsDir() {
		return "", ErrNotFound
	}
	return full, nil
}

// Delete removes a stored file by relative path.
func (s *Service) Delete(relPath string) error {
	full, err := s.Resolve(relPath)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil {
		return fmt.Errorf("remove file: %w", err)
	}
	return nil
}
