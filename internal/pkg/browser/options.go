package browser

import (
	"log/slog"
	"time"
)

// Option to tune the browser [Surface].
type Option func(*options)

type options struct {
	Height      int64
	Width       int64
	Scale       float64
	Mobile      bool
	NoSandbox   bool
	ExecPath    string
	LoadTimeout time.Duration
	logger      *slog.Logger
}

const (
	defaultHeight      int64 = 844
	defaultWidth       int64 = 390
	defaultScale             = 1.0
	defaultLoadTimeout       = 30 * time.Second
)

func optionsWithDefaults(opts []Option) options {
	o := options{
		Height:      defaultHeight,
		Width:       defaultWidth,
		Scale:       defaultScale,
		LoadTimeout: defaultLoadTimeout,
	}

	for _, apply := range opts {
		apply(&o)
	}

	if o.logger == nil {
		o.logger = slog.Default().With(slog.String("module", "browser"))
	}

	return o
}

// WithHeight sets the height of the viewport.
//
// Defaults to 844.
func WithHeight(height int64) Option {
	return func(o *options) {
		if height <= 0 {
			return
		}

		o.Height = height
	}
}

// WithWidth sets the width of the viewport.
//
// Defaults to 390.
func WithWidth(width int64) Option {
	return func(o *options) {
		if width <= 0 {
			return
		}

		o.Width = width
	}
}

// WithScale sets the device scale factor, i.e. the number of image pixels per CSS pixel in snapshots.
//
// Defaults to 1.
func WithScale(scale float64) Option {
	return func(o *options) {
		if scale <= 0 {
			return
		}

		o.Scale = scale
	}
}

// WithMobile emulates a mobile device (mobile viewport meta handling, touch).
func WithMobile(enabled bool) Option {
	return func(o *options) {
		o.Mobile = enabled
	}
}

// WithNoSandbox disables the Chrome sandbox, e.g. when running as root in a container.
func WithNoSandbox(enabled bool) Option {
	return func(o *options) {
		o.NoSandbox = enabled
	}
}

// WithExecPath sets the path to the Chrome executable.
//
// By default, chromedp looks up well-known locations.
func WithExecPath(pth string) Option {
	return func(o *options) {
		o.ExecPath = pth
	}
}

// WithLoadTimeout bounds the time allowed to start the browser, then the time allowed to load the document.
//
// Each step gets the full timeout. Defaults to 30s.
func WithLoadTimeout(timeout time.Duration) Option {
	return func(o *options) {
		if timeout <= 0 {
			return
		}

		o.LoadTimeout = timeout
	}
}

// WithLogger injects a structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}
