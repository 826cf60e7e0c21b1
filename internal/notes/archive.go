// Package notes extracts speaker notes from presentation packages.
// A package is a zip container of XML parts; the notes of slide k live in
// ppt/notesSlides/notesSlide<k>.xml.
package notes

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"

	"golang.org/x/text/unicode/norm"
)

// maxPartSize bounds how much of a single notes part is decompressed.
const maxPartSize = 8 << 20

// Static errors for archive access.
var (
	// ErrInvalidArchive is returned when the package is not a readable zip container.
	ErrInvalidArchive = errors.New("notes: invalid archive")
	// ErrInvalidIndex is returned for slide indexes below 1.
	ErrInvalidIndex = errors.New("notes: slide index must be positive")
	// ErrPartTooLarge is returned when a notes part exceeds maxPartSize.
	ErrPartTooLarge = errors.New("notes: part too large")
)

// PartName returns the archive path of the notes part for a 1-based slide index.
func PartName(index int) string {
	return fmt.Sprintf("ppt/notesSlides/notesSlide%d.xml", index)
}

// Archive is an opened presentation package.
// It is safe for concurrent use: each lookup opens its own part reader.
type Archive struct {
	parts map[string]*zip.File
}

// Open indexes the parts of a presentation package held in memory.
func Open(data []byte) (*Archive, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArchive, err)
	}

	parts := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		parts[f.Name] = f
	}
	return &Archive{parts: parts}, nil
}

// Lookup returns the notes text of the given slide.
// A missing part is not an error and yields "". Parse failures are returned
// so callers can record them; the text is "" in that case.
func (a *Archive) Lookup(index int) (string, error) {
	if index < 1 {
		return "", ErrInvalidIndex
	}

	f, ok := a.parts[PartName(index)]
	if !ok {
		return "", nil
	}

	rc, err := f.Open()
	if err != nil {
		return "", fmt.Errorf("notes: open %s: %w", f.Name, err)
	}
	defer func() { _ = rc.Close() }()

	data, err := io.ReadAll(io.LimitReader(rc, maxPartSize+1))
	if err != nil {
		return "", fmt.Errorf("notes: read %s: %w", f.Name, err)
	}
	if len(data) > maxPartSize {
		return "", fmt.Errorf("%w: %s", ErrPartTooLarge, f.Name)
	}

	root, err := Parse(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("%s: %w", f.Name, err)
	}

	return norm.NFC.String(root.Text()), nil
}

// Notes is Lookup with failures folded into an empty result.
func (a *Archive) Notes(index int) string {
	text, err := a.Lookup(index)
	if err != nil {
		return ""
	}
	return text
}

// Extract opens data and returns the notes of one slide, or "" if the
// package or the part cannot be read.
func Extract(data []byte, index int) string {
	a, err := Open(data)
	if err != nil {
		return ""
	}
	return a.Notes(index)
}
