// Package browser exposes a headless Chrome tab as a scrollable rendering surface.
package browser

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"net/url"
	"path/filepath"
	"strconv"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/device"

	"github.com/fredbi/docsnap/internal/pkg/model"
)

const (
	contentHeightScript  = `Math.max(document.body ? document.body.scrollHeight : 0, document.documentElement.scrollHeight)`
	viewportHeightScript = `window.innerHeight`

	// scrollScript scrolls to an offset. The body is stretched when needed so that a short last page
	// can be scrolled to the top of the viewport.
	scrollScript = `(function(y) {
  var need = y + window.innerHeight;
  if (document.documentElement.scrollHeight < need && document.body) {
    document.body.style.minHeight = need + 'px';
  }
  window.scrollTo(0, y);
})(%s)`

	// settledScript resolves once web fonts are loaded and two animation frames have been painted.
	settledScript = `Promise.all([
  document.fonts ? document.fonts.ready : Promise.resolve(),
  new Promise(function(resolve) { requestAnimationFrame(function() { requestAnimationFrame(resolve); }); })
]).then(function() { return true; })`
)

// Surface is a browser tab that has loaded a document.
//
// It implements the capture Surface and Settler interfaces. A [Surface] must be used by one goroutine at a time.
type Surface struct {
	options

	ctx    context.Context
	cancel context.CancelFunc
	L      *slog.Logger
}

// Open starts a headless browser, emulates the configured viewport and loads the document at target.
//
// The browser lives until [Surface.Close] is called or ctx is cancelled.
func Open(ctx context.Context, target string, opts ...Option) (*Surface, error) {
	o := optionsWithDefaults(opts)

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.WindowSize(int(o.Width), int(o.Height)),
	)
	if o.NoSandbox {
		allocOpts = append(allocOpts, chromedp.NoSandbox)
	}
	if o.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(o.ExecPath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, allocOpts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	s := &Surface{
		options: o,
		ctx:     tabCtx,
		cancel: func() {
			tabCancel()
			allocCancel()
		},
		L: o.logger.With(slog.String("url", target)),
	}

	if err := s.start(o.LoadTimeout); err != nil {
		s.Close()

		return nil, fmt.Errorf("starting browser: %w", err)
	}

	loadCtx, loadCancel := context.WithTimeout(ctx, o.LoadTimeout)
	defer loadCancel()

	err := s.run(loadCtx,
		chromedp.Emulate(device.Info{
			Height: o.Height,
			Width:  o.Width,
			Scale:  o.Scale,
			Mobile: o.Mobile,
			Touch:  o.Mobile,
		}),
		chromedp.Navigate(target),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		s.Close()

		return nil, fmt.Errorf("loading document: %w", err)
	}

	s.L.Debug("document loaded", slog.Int64("width", o.Width), slog.Int64("height", o.Height))

	return s, nil
}

// start runs the first action on the tab, which launches the browser.
//
// That run must not use a context with a deadline, or the browser would be killed when it expires:
// the startup is bounded by a timer instead.
func (s *Surface) start(timeout time.Duration) error {
	started := make(chan error, 1)
	go func() {
		started <- chromedp.Run(s.ctx)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err := <-started:
		return err
	case <-timer.C:
		return fmt.Errorf("no response after %v: %w", timeout, context.DeadlineExceeded)
	}
}

// Close shuts the browser down.
func (s *Surface) Close() {
	s.cancel()
}

// ContentHeight returns the scroll height of the document, in CSS pixels.
func (s *Surface) ContentHeight(ctx context.Context) (float64, error) {
	var height float64
	if err := s.run(ctx, chromedp.Evaluate(contentHeightScript, &height)); err != nil {
		return 0, fmt.Errorf("evaluating content height: %w", err)
	}

	return height, nil
}

// ViewportHeight returns the height of the visible region, in CSS pixels.
func (s *Surface) ViewportHeight(ctx context.Context) (float64, error) {
	var height float64
	if err := s.run(ctx, chromedp.Evaluate(viewportHeightScript, &height)); err != nil {
		return 0, fmt.Errorf("evaluating viewport height: %w", err)
	}

	return height, nil
}

// ScrollTo scrolls the document vertically to offset, in CSS pixels.
func (s *Surface) ScrollTo(ctx context.Context, offset float64) error {
	script := fmt.Sprintf(scrollScript, strconv.FormatFloat(offset, 'f', -1, 64))
	if err := s.run(ctx, chromedp.Evaluate(script, nil)); err != nil {
		return fmt.Errorf("scrolling to %v: %w", offset, err)
	}

	return nil
}

// Snapshot captures the visible region as an image.
func (s *Surface) Snapshot(ctx context.Context) (image.Image, error) {
	var screenshot []byte
	if err := s.run(ctx, chromedp.CaptureScreenshot(&screenshot)); err != nil {
		return nil, fmt.Errorf("taking screenshot: %w", err)
	}

	return model.DecodePNG(screenshot)
}

// WaitSettled waits until fonts are loaded and the next frames have been painted.
func (s *Surface) WaitSettled(ctx context.Context) error {
	var settled bool
	err := s.run(ctx, chromedp.Evaluate(settledScript, &settled, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
		return p.WithAwaitPromise(true)
	}))
	if err != nil {
		return fmt.Errorf("waiting for render to settle: %w", err)
	}

	return nil
}

// run executes actions in the browser tab, bounded by ctx.
func (s *Surface) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(s.ctx)
	defer cancel()

	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		return err
	}

	return nil
}

// FileURL returns the file:// URL of a local file.
func FileURL(pth string) (string, error) {
	abs, err := filepath.Abs(pth)
	if err != nil {
		return "", err
	}

	u := url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}

	return u.String(), nil
}
