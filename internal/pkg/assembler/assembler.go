// Package assembler converts an ordered list of page images into a single PDF document.
package assembler

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fredbi/docsnap/internal/pkg/model"
	"github.com/pdfcpu/pdfcpu/pkg/api"
)

var (
	// ErrNoPages is returned when there is no page to assemble.
	ErrNoPages = errors.New("assembler: no page to assemble")

	// ErrAssemblyWriteFailed is returned when the document could not be written to its destination.
	// Callers must not preview or share the destination file.
	ErrAssemblyWriteFailed = errors.New("assembler: document write failed")
)

// DefaultFileName is the name of the assembled document in the temporary directory.
const DefaultFileName = "ConvertedDocument.pdf"

// DefaultPath returns the default location of the assembled document.
func DefaultPath() string {
	return filepath.Join(os.TempDir(), DefaultFileName)
}

// Assembler builds a PDF with one page per image.
type Assembler struct {
	options
}

// New builds a PDF [Assembler].
func New(opts ...Option) *Assembler {
	return &Assembler{
		options: optionsWithDefaults(opts),
	}
}

// Write assembles the pages as a PDF into w.
//
// Pages are inserted in the order of the input.
func (a *Assembler) Write(w io.Writer, pages []model.Page) error {
	if len(pages) == 0 {
		return ErrNoPages
	}

	readers := make([]io.Reader, 0, len(pages))
	for i, page := range pages {
		data, err := model.EncodePNG(page.Image, a.level)
		if err != nil {
			return fmt.Errorf("encoding page %d (captured at index %d): %w", i, page.Index, err)
		}

		readers = append(readers, bytes.NewReader(data))
	}

	if err := api.ImportImages(nil, w, readers, a.imp, a.conf); err != nil {
		return fmt.Errorf("importing images: %w", err)
	}

	return nil
}

// WriteFile assembles the pages as a PDF file at path.
//
// The document is written to a temporary file in the same directory then renamed,
// so that path never holds a partially written document. On failure, the returned
// error wraps [ErrAssemblyWriteFailed].
func (a *Assembler) WriteFile(path string, pages []model.Page) error {
	if len(pages) == 0 {
		return ErrNoPages
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: creating temporary file in %q: %w", ErrAssemblyWriteFailed, dir, err)
	}

	tmpName := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}

	if err := a.Write(tmp, pages); err != nil {
		cleanup()

		return fmt.Errorf("%w: %w", ErrAssemblyWriteFailed, err)
	}

	if err := tmp.Sync(); err != nil {
		cleanup()

		return fmt.Errorf("%w: syncing %q: %w", ErrAssemblyWriteFailed, tmpName, err)
	}

	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)

		return fmt.Errorf("%w: closing %q: %w", ErrAssemblyWriteFailed, tmpName, err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)

		return fmt.Errorf("%w: renaming to %q: %w", ErrAssemblyWriteFailed, path, err)
	}

	a.logger.Info("document assembled", slog.String("path", path), slog.Int("pages", len(pages)))

	return nil
}
