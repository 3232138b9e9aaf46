// Package document picks word-processor documents and renders them as HTML for display in a browser.
package document

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	// ErrPickerAccessDenied is returned when the picked file cannot be accessed. No session should start.
	ErrPickerAccessDenied = errors.New("document: access to picked file denied")

	// ErrUnsupportedDocument is returned when the picked file is not an accepted word-processor document.
	ErrUnsupportedDocument = errors.New("document: unsupported document")
)

// Kind of word-processor document.
type Kind string

// Supported document kinds.
const (
	KindDOCX Kind = "docx"
	KindDOC  Kind = "doc"
	KindODT  Kind = "odt"
	KindRTF  Kind = "rtf"
)

// mimeTypes lists the content types accepted for every kind, including generic containers.
var mimeTypes = map[Kind][]string{
	KindDOCX: {"application/vnd.openxmlformats-officedocument.wordprocessingml.document", "application/zip"},
	KindDOC:  {"application/msword", "application/x-ole-storage", "application/x-cfb"},
	KindODT:  {"application/vnd.oasis.opendocument.text", "application/zip"},
	KindRTF:  {"text/rtf", "application/rtf"},
}

// DefaultKinds are the kinds accepted by default.
func DefaultKinds() []Kind {
	return []Kind{KindDOC, KindDOCX}
}

// Document is a picked word-processor document.
type Document struct {
	Path  string `json:"path"`
	Kind  Kind   `json:"kind"`
	MIME  string `json:"mime"`
	Title string `json:"title"`
	Size  int64  `json:"size"`
}

// Picker validates user-chosen files against a constrained set of document kinds.
type Picker struct {
	kinds []Kind
}

// NewPicker builds a [Picker] accepting the given kinds, or [DefaultKinds] when none is given.
func NewPicker(kinds ...Kind) *Picker {
	if len(kinds) == 0 {
		kinds = DefaultKinds()
	}

	return &Picker{kinds: kinds}
}

// Pick checks that pth is a readable document of an accepted kind.
//
// The file is opened to verify access, then released before returning.
func (p *Picker) Pick(pth string) (Document, error) {
	info, err := os.Stat(pth)
	if err != nil {
		return Document{}, fmt.Errorf("%w: %w", ErrPickerAccessDenied, err)
	}

	if !info.Mode().IsRegular() {
		return Document{}, fmt.Errorf("%w: %q is not a regular file", ErrUnsupportedDocument, pth)
	}

	kind := Kind(strings.TrimPrefix(strings.ToLower(filepath.Ext(pth)), "."))
	if !slices.Contains(p.kinds, kind) {
		return Document{}, fmt.Errorf("%w: extension of %q should be one of %v", ErrUnsupportedDocument, pth, p.kinds)
	}

	file, err := os.Open(pth)
	if err != nil {
		if errors.Is(err, fs.ErrPermission) || errors.Is(err, fs.ErrNotExist) {
			return Document{}, fmt.Errorf("%w: %w", ErrPickerAccessDenied, err)
		}

		return Document{}, err
	}
	defer func() {
		_ = file.Close()
	}()

	mtype, err := mimetype.DetectReader(file)
	if err != nil {
		return Document{}, fmt.Errorf("%w: detecting content type: %w", ErrPickerAccessDenied, err)
	}

	if !matchesKind(mtype, kind) {
		return Document{}, fmt.Errorf("%w: content of %q is %s, not a %s document", ErrUnsupportedDocument, pth, mtype, kind)
	}

	return Document{
		Path:  pth,
		Kind:  kind,
		MIME:  mtype.String(),
		Title: Titleize(strings.TrimSuffix(filepath.Base(pth), filepath.Ext(pth))),
		Size:  info.Size(),
	}, nil
}

// matchesKind checks the detected type and its parents against the types accepted for a kind.
func matchesKind(mtype *mimetype.MIME, kind Kind) bool {
	accepted := mimeTypes[kind]
	for m := mtype; m != nil; m = m.Parent() {
		if slices.Contains(accepted, m.String()) {
			return true
		}
	}

	return false
}

// Titleize turns a file name into a document title, e.g. "quarterly_report" into "Quarterly Report".
func Titleize(name string) string {
	caser := cases.Title(language.English, cases.NoLower) // the caser is stateful: cannot declare it globally

	return caser.String(strings.Map(func(r rune) rune {
		switch r {
		case '_', '-':
			return ' '
		default:
			return r
		}
	}, name))
}
