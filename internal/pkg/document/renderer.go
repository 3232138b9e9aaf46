package document

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

// ErrConversionFailed is returned when a document could not be converted to HTML.
var ErrConversionFailed = errors.New("document: conversion to HTML failed")

// Renderer converts documents into HTML pages that a browser can display.
type Renderer struct {
	options

	L *slog.Logger
}

// NewRenderer builds a document [Renderer].
func NewRenderer(opts ...Option) *Renderer {
	o := optionsWithDefaults(opts)

	return &Renderer{
		options: o,
		L:       o.logger,
	}
}

// Render converts a document into an HTML file inside dir, and returns the path to that file.
func (r *Renderer) Render(ctx context.Context, doc Document, dir string) (string, error) {
	started := time.Now()

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("%w: preparing output directory: %w", ErrConversionFailed, err)
	}

	converter, err := r.pick(doc)
	if err != nil {
		return "", err
	}

	var output string
	switch converter {
	case ConverterLibreOffice:
		output, err = r.convertWithLibreOffice(ctx, doc, dir)
	default:
		output, err = r.convertNative(doc, dir)
	}
	if err != nil {
		return "", err
	}

	r.L.Info("document rendered as HTML",
		slog.String("document", doc.Path),
		slog.String("converter", string(converter)),
		slog.String("output", output),
		slog.Duration("duration", time.Since(started)),
	)

	return output, nil
}

// pick resolves the converter to use for a document.
func (r *Renderer) pick(doc Document) (Converter, error) {
	switch r.converter {
	case ConverterLibreOffice:
		return ConverterLibreOffice, nil
	case ConverterNative:
		if doc.Kind != KindDOCX {
			return "", fmt.Errorf("%w: %s documents can only be converted with LibreOffice", ErrUnsupportedDocument, doc.Kind)
		}

		return ConverterNative, nil
	default:
		if _, err := r.lookupLibreOffice(); err == nil {
			return ConverterLibreOffice, nil
		}

		if doc.Kind != KindDOCX {
			return "", fmt.Errorf("%w: %s documents require LibreOffice, which is not installed", ErrUnsupportedDocument, doc.Kind)
		}

		r.L.Debug("LibreOffice not found, using the native docx converter")

		return ConverterNative, nil
	}
}

func (r *Renderer) convertNative(doc Document, dir string) (string, error) {
	file, err := os.Open(doc.Path)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrPickerAccessDenied, err)
	}
	defer func() {
		_ = file.Close()
	}()

	info, err := file.Stat()
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrPickerAccessDenied, err)
	}

	page, err := DOCXToHTML(file, info.Size(), doc.Title)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrConversionFailed, err)
	}

	output := filepath.Join(dir, htmlName(doc.Path))
	if err := os.WriteFile(output, page, 0o600); err != nil {
		return "", fmt.Errorf("%w: writing %q: %w", ErrConversionFailed, output, err)
	}

	return output, nil
}

// lookupLibreOffice finds the first available LibreOffice executable.
func (r *Renderer) lookupLibreOffice() (string, error) {
	var errs []error
	for _, name := range r.libreOffice {
		pth, err := exec.LookPath(name)
		if err == nil {
			return pth, nil
		}

		errs = append(errs, err)
	}

	return "", errors.Join(errs...)
}

// htmlName is the name of the HTML file produced for a document, e.g. "report.docx" yields "report.html".
func htmlName(pth string) string {
	base := filepath.Base(pth)

	return base[:len(base)-len(filepath.Ext(base))] + ".html"
}
