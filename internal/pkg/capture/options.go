package capture

import (
	"context"
	"log/slog"
	"time"

	"github.com/fredbi/docsnap/internal/pkg/blank"
	"github.com/fredbi/docsnap/internal/pkg/fingerprint"
)

// Option to tune the capture [Driver].
type Option func(*options)

type options struct {
	observer           ObserverRef
	hasher             Fingerprinter
	detector           BlankDetector
	initialSettle      time.Duration
	scrollSettle       time.Duration
	stepTimeout        time.Duration
	useSettledSignal   bool
	maxSnapshotRetries int
	sleep              func(context.Context, time.Duration) error
	logger             *slog.Logger
}

const (
	defaultInitialSettle = time.Second
	defaultScrollSettle  = 500 * time.Millisecond
	defaultStepTimeout   = 30 * time.Second
	defaultRetries       = 1
	maxRetries           = 5
)

func optionsWithDefaults(opts []Option) options {
	o := options{
		observer:           noObserver{},
		initialSettle:      defaultInitialSettle,
		scrollSettle:       defaultScrollSettle,
		stepTimeout:        defaultStepTimeout,
		useSettledSignal:   true,
		maxSnapshotRetries: defaultRetries,
		sleep:              sleepContext,
	}

	for _, apply := range opts {
		apply(&o)
	}

	if o.hasher == nil {
		o.hasher = fingerprint.New()
	}

	if o.detector == nil {
		o.detector = blank.New()
	}

	if o.logger == nil {
		o.logger = slog.Default().With(slog.String("module", "capture"))
	}

	return o
}

// WithObserver sets the handle to the observer notified of the session progress.
//
// Use [Weak] when the driver must not keep the observer alive.
func WithObserver(ref ObserverRef) Option {
	return func(o *options) {
		if ref == nil {
			return
		}

		o.observer = ref
	}
}

// WithFingerprinter overrides the image hasher used to deduplicate pages.
func WithFingerprinter(h Fingerprinter) Option {
	return func(o *options) {
		o.hasher = h
	}
}

// WithBlankDetector overrides the detector used to drop blank pages.
func WithBlankDetector(d BlankDetector) Option {
	return func(o *options) {
		o.detector = d
	}
}

// WithSettleDelays sets the fixed delays to wait after the document load and after each scroll.
//
// Defaults to 1s and 500ms. Negative values are ignored.
func WithSettleDelays(initial, scroll time.Duration) Option {
	return func(o *options) {
		if initial >= 0 {
			o.initialSettle = initial
		}

		if scroll >= 0 {
			o.scrollSettle = scroll
		}
	}
}

// WithSettledSignal enables waiting on the surface "render settled" signal, when the surface supports it.
//
// The fixed delays are used as a fallback. Enabled by default.
func WithSettledSignal(enabled bool) Option {
	return func(o *options) {
		o.useSettledSignal = enabled
	}
}

// WithStepTimeout bounds every call to the rendering surface.
//
// A call exceeding this timeout fails the session with [ErrCaptureTimeout]. Defaults to 30s.
func WithStepTimeout(timeout time.Duration) Option {
	return func(o *options) {
		if timeout <= 0 {
			return
		}

		o.stepTimeout = timeout
	}
}

// WithSnapshotRetries sets how many times a failed snapshot is retried before the page is skipped.
//
// Capped to 5. Defaults to 1.
func WithSnapshotRetries(retries int) Option {
	return func(o *options) {
		o.maxSnapshotRetries = min(max(retries, 0), maxRetries)
	}
}

// WithLogger injects a structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// withSleep replaces the settling wait, for testing.
func withSleep(sleep func(context.Context, time.Duration) error) Option {
	return func(o *options) {
		o.sleep = sleep
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
