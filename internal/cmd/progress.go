package cmd

import (
	"log/slog"

	"github.com/fredbi/docsnap/internal/pkg/model"
)

// progress reports the advancement of a capture session in the logs.
type progress struct {
	l     *slog.Logger
	total int
}

func newProgress(l *slog.Logger) *progress {
	return &progress{l: l}
}

func (p *progress) PageCountCalculated(total int) {
	p.total = total
	p.l.Info("capturing pages", slog.Int("total_pages", total))
}

func (p *progress) PagesCaptured(pages []model.Page) {
	last := pages[len(pages)-1]
	p.l.Debug("page captured",
		slog.Int("page", last.Index+1),
		slog.Int("total_pages", p.total),
		slog.Int("accepted", len(pages)),
	)
}

func (p *progress) AllPagesCaptured(pages []model.Page) {
	p.l.Info("all pages captured", slog.Int("accepted", len(pages)), slog.Int("total_pages", p.total))
}
