package region

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// Extensions lists the image file extensions accepted for input and output.
var Extensions = []string{".jpg", ".jpeg", ".png", ".webp"}

// SupportedExtension reports whether path ends in an accepted image extension.
func SupportedExtension(path string) bool {
	return slices.Contains(Extensions, strings.ToLower(filepath.Ext(path)))
}

// ValidateImagePath rejects traversal, missing or non-regular files,
// unsupported extensions, and files larger than maxSize bytes.
func ValidateImagePath(path string, maxSize int64) error {
	if path == "" {
		return fmt.Errorf("%w: empty path", ErrInvalidInput)
	}
	if strings.Contains(path, "..") {
		return fmt.Errorf("%w: path traversal", ErrInvalidInput)
	}

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: cannot access file", ErrInvalidInput)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%w: not a regular file", ErrInvalidInput)
	}
	if !SupportedExtension(path) {
		return fmt.Errorf("%w: unsupported file type", ErrInvalidInput)
	}
	if info.Size() > maxSize {
		return fmt.Errorf("%w: file too large", ErrInvalidInput)
	}
	return nil
}

// SafeName returns the base name of path with any remaining separators
// replaced so it cannot escape a results directory.
func SafeName(path string) string {
	name := filepath.Base(path)
	name = strings.ReplaceAll(name, "/", "_")
	return strings.ReplaceAll(name, "\\", "_")
}

// BoxedName is the annotated image file name derived from the input path.
func BoxedName(path string) string {
	return "boxed_" + SafeName(path)
}
