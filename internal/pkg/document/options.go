package document

import (
	"log/slog"
	"time"
)

// Converter selects how documents are converted to HTML.
type Converter string

const (
	// ConverterAuto uses LibreOffice when it is installed, and the native docx converter otherwise.
	ConverterAuto Converter = "auto"

	// ConverterLibreOffice always uses LibreOffice.
	ConverterLibreOffice Converter = "libreoffice"

	// ConverterNative always uses the native docx converter. Legacy .doc documents are not supported.
	ConverterNative Converter = "native"
)

// Option configures the [Renderer].
type Option func(*options)

type options struct {
	converter   Converter
	libreOffice []string
	timeout     time.Duration
	logger      *slog.Logger
}

var defaultLibreOffice = []string{"soffice", "libreoffice"}

var defaultOptions = options{
	converter:   ConverterAuto,
	libreOffice: defaultLibreOffice,
	timeout:     3 * time.Minute,
}

func optionsWithDefaults(opts []Option) options {
	o := defaultOptions
	o.logger = slog.Default().With(slog.String("module", "document"))

	for _, apply := range opts {
		apply(&o)
	}

	return o
}

// WithConverter selects the conversion strategy. An empty value keeps [ConverterAuto].
func WithConverter(converter Converter) Option {
	return func(o *options) {
		if converter != "" {
			o.converter = converter
		}
	}
}

// WithLibreOffice sets the LibreOffice executable, either as a name looked up in the PATH or as a path.
//
// By default, "soffice" then "libreoffice" are searched.
func WithLibreOffice(executable string) Option {
	return func(o *options) {
		if executable != "" {
			o.libreOffice = []string{executable}
		}
	}
}

// WithTimeout bounds the duration of an external conversion.
func WithTimeout(timeout time.Duration) Option {
	return func(o *options) {
		if timeout > 0 {
			o.timeout = timeout
		}
	}
}

// WithLogger injects a structured logger. A nil logger is ignored.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}
