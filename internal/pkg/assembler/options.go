package assembler

import (
	"image/png"
	"log/slog"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// Option to tune the PDF [Assembler].
type Option func(*options)

type options struct {
	conf   *model.Configuration
	imp    *pdfcpu.Import
	level  png.CompressionLevel
	logger *slog.Logger
}

func optionsWithDefaults(opts []Option) options {
	o := options{
		level: png.BestSpeed,
	}

	for _, apply := range opts {
		apply(&o)
	}

	if o.conf == nil {
		o.conf = model.NewDefaultConfiguration()
	}

	if o.imp == nil {
		// default import: one page per image, sized to the image
		o.imp = pdfcpu.DefaultImportConfig()
	}

	if o.logger == nil {
		o.logger = slog.Default().With(slog.String("module", "assembler"))
	}

	return o
}

// WithConfiguration overrides the pdfcpu configuration.
func WithConfiguration(conf *model.Configuration) Option {
	return func(o *options) {
		o.conf = conf
	}
}

// WithImport overrides the pdfcpu image import settings (page size, position, scale).
//
// By default, every page is sized to its image.
func WithImport(imp *pdfcpu.Import) Option {
	return func(o *options) {
		o.imp = imp
	}
}

// WithCompression sets the PNG compression level used to hand over images to the PDF writer.
//
// Defaults to [png.BestSpeed].
func WithCompression(level png.CompressionLevel) Option {
	return func(o *options) {
		o.level = level
	}
}

// WithLogger injects a structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}
