// Package capture drives a rendering surface page by page, and collects the unique, non-blank page images.
//
// A capture session is an explicit state machine:
//
//	AwaitingHeight -> CapturingPage(0) -> ... -> CapturingPage(n-1) -> Done
//
// Any state may transition to Failed. Each call to [Driver.Step] performs exactly one transition,
// so that a host may interleave steps with its own event loop. [Driver.Run] loops until the session is over.
//
// The driver is not safe for concurrent use: a session is owned by a single goroutine.
package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"math"
	"time"

	"github.com/fredbi/docsnap/internal/pkg/model"
	"github.com/google/uuid"
)

// Driver captures the pages of a document displayed by a [Surface].
type Driver struct {
	options

	surface Surface
	session *session
	L       *slog.Logger
}

// New builds a capture [Driver] for a surface that has finished loading its document.
func New(surface Surface, opts ...Option) *Driver {
	o := optionsWithDefaults(opts)
	id := uuid.NewString()

	return &Driver{
		options: o,
		surface: surface,
		session: newSession(id),
		L:       o.logger.With(slog.String("session", id)),
	}
}

// SessionID identifies the capture session in logs.
func (d *Driver) SessionID() string {
	return d.session.id
}

// State returns the current state of the session.
func (d *Driver) State() State {
	return d.session.state
}

// CurrentPage returns the index of the next page to capture.
func (d *Driver) CurrentPage() int {
	return d.session.currentPage
}

// TotalPages returns the page count, or 0 while still awaiting the content height.
func (d *Driver) TotalPages() int {
	return d.session.totalPages
}

// Pages returns a copy of the pages accepted so far, in capture order.
func (d *Driver) Pages() []model.Page {
	return d.session.snapshot()
}

// Stats returns the counters of the session.
func (d *Driver) Stats() Stats {
	return d.session.stats
}

// Err returns the error that failed the session, if any.
func (d *Driver) Err() error {
	return d.session.err
}

// Run steps through the session until it is done or has failed.
//
// It returns the accepted pages in capture order. A session that completes without any accepted page
// returns [ErrNoPages].
func (d *Driver) Run(ctx context.Context) ([]model.Page, error) {
	started := time.Now()

	for !d.session.state.IsTerminal() {
		if err := d.Step(ctx); err != nil {
			return d.Pages(), err
		}
	}

	pages := d.Pages()
	d.L.Info("capture session completed",
		slog.Int("total_pages", d.session.totalPages),
		slog.Int("accepted", len(pages)),
		slog.Duration("duration", time.Since(started)),
	)

	if len(pages) == 0 {
		return nil, ErrNoPages
	}

	return pages, nil
}

// Step performs a single transition of the session state machine.
func (d *Driver) Step(ctx context.Context) error {
	if d.session.state.IsTerminal() {
		return ErrSessionOver
	}

	if err := ctx.Err(); err != nil {
		// the host abandoned the session
		return d.fail(err)
	}

	switch d.session.state {
	case StateAwaitingHeight:
		return d.start(ctx)
	case StateCapturingPage:
		return d.capturePage(ctx)
	default:
		return ErrSessionOver
	}
}

// start computes the page count, exactly once per session.
func (d *Driver) start(ctx context.Context) error {
	viewport, err := call(ctx, d.stepTimeout, d.surface.ViewportHeight)
	if err != nil {
		return d.fail(d.hostError(ctx, err, ErrRenderNotReady, "reading viewport height"))
	}

	if viewport <= 0 || math.IsNaN(viewport) || math.IsInf(viewport, 0) {
		return d.fail(fmt.Errorf("%w: invalid viewport height %v", ErrRenderNotReady, viewport))
	}

	content, err := call(ctx, d.stepTimeout, d.surface.ContentHeight)
	if err != nil {
		return d.fail(d.hostError(ctx, err, ErrRenderNotReady, "reading content height"))
	}

	if content < 0 || math.IsNaN(content) || math.IsInf(content, 0) {
		return d.fail(fmt.Errorf("%w: invalid content height %v", ErrRenderNotReady, content))
	}

	s := d.session
	s.pageHeight = viewport
	s.totalPages = PageCount(content, viewport)
	s.state = StateCapturingPage

	d.L.Info("page count calculated",
		slog.Float64("content_height", content),
		slog.Float64("viewport_height", viewport),
		slog.Int("total_pages", s.totalPages),
	)
	d.notify(ctx, func(o Observer) { o.PageCountCalculated(s.totalPages) })

	if err := d.settle(ctx, d.initialSettle); err != nil {
		return d.fail(err)
	}

	return nil
}

// capturePage visits the current page offset, or completes the session when all offsets have been visited.
func (d *Driver) capturePage(ctx context.Context) error {
	s := d.session
	if s.currentPage >= s.totalPages {
		return d.complete(ctx)
	}

	index := s.currentPage
	img, err := d.snapshotAt(ctx, float64(index)*s.pageHeight)
	if err != nil && !errors.Is(err, ErrSnapshotFailed) {
		return d.fail(err)
	}

	s.currentPage++
	s.stats.Visited++

	if err != nil {
		s.stats.SnapshotFailures++
		d.L.Warn("page skipped", slog.Int("page", index), slog.String("error", err.Error()))

		return nil
	}

	d.accept(ctx, index, img)

	return nil
}

// snapshotAt scrolls to an offset and takes a snapshot, retrying a bounded number of times.
//
// Per-page failures are reported as [ErrSnapshotFailed]. Any other error is fatal to the session.
func (d *Driver) snapshotAt(ctx context.Context, offset float64) (image.Image, error) {
	var lastErr error

	for attempt := range d.maxSnapshotRetries + 1 {
		if attempt > 0 {
			d.session.stats.Retries++
			d.L.Debug("retrying snapshot", slog.Float64("offset", offset), slog.Int("attempt", attempt))
		}

		_, err := call(ctx, d.stepTimeout, func(ctx context.Context) (struct{}, error) {
			return struct{}{}, d.surface.ScrollTo(ctx, offset)
		})
		if err != nil {
			lastErr = d.hostError(ctx, err, ErrSnapshotFailed, fmt.Sprintf("scrolling to %v", offset))
			if !errors.Is(lastErr, ErrSnapshotFailed) {
				return nil, lastErr
			}

			continue
		}

		if err := d.settle(ctx, d.scrollSettle); err != nil {
			return nil, err
		}

		img, err := call(ctx, d.stepTimeout, d.surface.Snapshot)
		if err != nil {
			lastErr = d.hostError(ctx, err, ErrSnapshotFailed, fmt.Sprintf("snapshot at %v", offset))
			if !errors.Is(lastErr, ErrSnapshotFailed) {
				return nil, lastErr
			}

			continue
		}

		if img == nil || img.Bounds().Empty() {
			lastErr = fmt.Errorf("%w: empty snapshot at %v", ErrSnapshotFailed, offset)

			continue
		}

		return img, nil
	}

	return nil, lastErr
}

// accept applies the blank filter then the duplicate filter to a captured image.
func (d *Driver) accept(ctx context.Context, index int, img image.Image) {
	s := d.session

	if d.detector.IsBlank(img) {
		s.stats.Blank++
		d.L.Debug("blank page dropped", slog.Int("page", index))

		return
	}

	fp, err := d.hasher.Fingerprint(img)
	if err != nil {
		s.stats.EncodeFailures++
		d.L.Warn("fingerprint degraded to sentinel value: pages failing to encode are considered duplicates",
			slog.Int("page", index),
			slog.String("error", err.Error()),
		)
	}

	if !s.record(fp) {
		s.stats.Duplicate++
		d.L.Debug("duplicate page dropped", slog.Int("page", index), slog.String("fingerprint", fp))

		return
	}

	s.pages = append(s.pages, model.Page{
		Index:       index,
		Image:       img,
		Fingerprint: fp,
	})
	s.stats.Accepted++

	d.L.Debug("page accepted", slog.Int("page", index), slog.Int("accepted", len(s.pages)))

	pages := s.snapshot()
	d.notify(ctx, func(o Observer) { o.PagesCaptured(pages) })
}

func (d *Driver) complete(ctx context.Context) error {
	s := d.session
	s.state = StateDone

	pages := s.snapshot()
	d.notify(ctx, func(o Observer) { o.AllPagesCaptured(pages) })

	return nil
}

func (d *Driver) fail(err error) error {
	s := d.session
	s.state = StateFailed
	s.err = err

	d.L.Error("capture session failed",
		slog.Int("page", s.currentPage),
		slog.Int("total_pages", s.totalPages),
		slog.String("error", err.Error()),
	)

	return err
}

// settle waits for the surface to finish rendering.
//
// The surface "settled" signal is preferred when available, with the fixed delay as a fallback.
func (d *Driver) settle(ctx context.Context, fallback time.Duration) error {
	if settler, ok := d.surface.(Settler); ok && d.useSettledSignal {
		_, err := call(ctx, d.stepTimeout, func(ctx context.Context) (struct{}, error) {
			return struct{}{}, settler.WaitSettled(ctx)
		})
		if err == nil {
			return nil
		}

		if werr := d.hostError(ctx, err, nil, "waiting for render to settle"); werr != nil {
			return werr
		}

		d.L.Debug("settled signal unavailable, falling back to fixed delay", slog.String("error", err.Error()))
	}

	return d.sleep(ctx, fallback)
}

// hostError qualifies an error returned by the surface.
//
// Cancellation of the parent context and step timeouts are fatal and take precedence over kind.
// When kind is nil, non-fatal errors are absorbed and hostError returns nil.
func (d *Driver) hostError(ctx context.Context, err error, kind error, msg string) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%s: %w", msg, ctxErr)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s after %v: %w", ErrCaptureTimeout, msg, d.stepTimeout, err)
	}

	if kind == nil {
		return nil
	}

	return fmt.Errorf("%w: %s: %w", kind, msg, err)
}

// notify calls the observer, unless it is gone or the session has been abandoned.
func (d *Driver) notify(ctx context.Context, fn func(Observer)) {
	if ctx.Err() != nil {
		return
	}

	o, ok := d.observer.Observer()
	if !ok {
		d.L.Debug("observer is gone, notification dropped")

		return
	}

	fn(o)
}

// PageCount returns the number of viewport-high pages needed to cover the content.
func PageCount(contentHeight, viewportHeight float64) int {
	if viewportHeight <= 0 || contentHeight <= 0 {
		return 0
	}

	return int(math.Ceil(contentHeight / viewportHeight))
}

// call runs a surface call bounded by a timeout.
//
// The call runs on its own goroutine so that a surface ignoring its context cannot hang the session.
func call[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		value T
		err   error
	}

	done := make(chan result, 1)
	go func() {
		v, err := fn(ctx)
		done <- result{value: v, err: err}
	}()

	select {
	case r := <-done:
		return r.value, r.err
	case <-ctx.Done():
		var zero T

		return zero, ctx.Err()
	}
}
