package storage

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// NewName creates a unique asset name for a slide image.
// Format: slide_<index>_<unix-nanos>_<random><ext>
// Example: slide_3_1701432000123456789_a1b2c3d4.png
func NewName(index int, ext string, now time.Time) string {
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	random := make([]byte, 4)
	if _, err := rand.Read(random); err != nil {
		// Fallback to index and timestamp only if crypto/rand fails
		return fmt.Sprintf("slide_%d_%d%s", index, now.UnixNano(), ext)
	}
	return fmt.Sprintf("slide_%d_%d_%s%s", index, now.UnixNano(), hex.EncodeToString(random), ext)
}

// ValidateName rejects names that are empty, hidden or contain path elements.
func ValidateName(name string) error {
	if name == "" || name == "." || name == ".." {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if strings.HasPrefix(name, ".") || strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// ContentType returns the media type of an asset based on its extension.
func ContentType(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	case ".svg":
		return "image/svg+xml"
	default:
		return "application/octet-stream"
	}
}
