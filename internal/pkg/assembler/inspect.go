package assembler

import (
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// PageSize is the size of a document page, in PDF user space units.
type PageSize struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Summary describes an assembled document, for preview.
type Summary struct {
	Path      string     `json:"path"`
	PageCount int        `json:"page_count"`
	Pages     []PageSize `json:"pages"`
}

// Inspect reads back an assembled document.
func Inspect(path string) (Summary, error) {
	count, err := api.PageCountFile(path)
	if err != nil {
		return Summary{}, fmt.Errorf("counting pages of %q: %w", path, err)
	}

	dims, err := api.PageDimsFile(path)
	if err != nil {
		return Summary{}, fmt.Errorf("reading page sizes of %q: %w", path, err)
	}

	s := Summary{
		Path:      path,
		PageCount: count,
		Pages:     make([]PageSize, 0, len(dims)),
	}

	for _, dim := range dims {
		s.Pages = append(s.Pages, PageSize{Width: dim.Width, Height: dim.Height})
	}

	return s, nil
}
