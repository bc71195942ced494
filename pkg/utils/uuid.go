package utils

import (
	"path/filepath"

	"github.com/google/uuid"
)

// TempPath returns a unique path in dir with the given extension.
func TempPath(dir, ext string) string {
	return filepath.Join(dir, uuid.NewString()+ext)
}
