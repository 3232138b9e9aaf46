package capture

import (
	"context"
	"errors"
	"image"
	"image/color"
	"runtime"
	"testing"
	"time"

	"github.com/fredbi/docsnap/internal/pkg/model"

	"github.com/go-openapi/testify/v2/assert"
	"github.com/go-openapi/testify/v2/require"
)

func TestPageCount(t *testing.T) {
	tests := []struct {
		content  float64
		viewport float64
		want     int
	}{
		{1000, 400, 3},
		{800, 400, 2},
		{801, 400, 3},
		{1, 400, 1},
		{0, 400, 0},
		{1000, 0, 0},
		{1000, -1, 0},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, PageCount(tt.content, tt.viewport), "PageCount(%v, %v)", tt.content, tt.viewport)
	}
}

func TestRun(t *testing.T) {
	t.Run("should visit every offset exactly once", func(t *testing.T) {
		surface := newFakeSurface(1000, 400, page(1), page(2), page(3))
		obs := &recorder{}

		d := newTestDriver(surface, WithObserver(Strong(obs)))
		pages, err := d.Run(t.Context())
		require.NoError(t, err)

		assert.Equal(t, []float64{0, 400, 800}, surface.offsets)
		assert.Equal(t, 3, d.TotalPages())
		assert.Equal(t, StateDone, d.State())
		require.Len(t, pages, 3)
		assert.Equal(t, []int{0, 1, 2}, indices(pages))

		assert.Equal(t, []int{3}, obs.counts)
		assert.Equal(t, []int{1, 2, 3}, obs.progress)
		assert.Equal(t, 1, obs.completions)
		assert.Len(t, obs.final, 3)
	})

	t.Run("should retain only the first of identical pages", func(t *testing.T) {
		surface := newFakeSurface(1600, 400, page(1), page(2), page(1), page(3))

		d := newTestDriver(surface)
		pages, err := d.Run(t.Context())
		require.NoError(t, err)

		assert.Equal(t, []int{0, 1, 3}, indices(pages))
		assert.Equal(t, 1, d.Stats().Duplicate)
		assertUniqueFingerprints(t, pages)
	})

	t.Run("should drop blank pages and keep nearly blank ones", func(t *testing.T) {
		surface := newFakeSurface(1200, 400, page(1), whitePage(0), whitePage(200))

		d := newTestDriver(surface)
		pages, err := d.Run(t.Context())
		require.NoError(t, err)

		assert.Equal(t, []int{0, 2}, indices(pages))
		assert.Equal(t, 1, d.Stats().Blank)
	})

	t.Run("should skip a failed snapshot and carry on", func(t *testing.T) {
		surface := newFakeSurface(2000, 400, page(1), page(2), page(3), page(4), page(5))
		surface.failures = map[int]int{2: -1}

		d := newTestDriver(surface, WithSnapshotRetries(0))
		pages, err := d.Run(t.Context())
		require.NoError(t, err)

		assert.Equal(t, []int{0, 1, 3, 4}, indices(pages))
		assert.LessOrEqual(t, len(pages), 5)
		assert.Equal(t, 5, d.Stats().Visited)
		assert.Equal(t, 1, d.Stats().SnapshotFailures)
	})

	t.Run("should retry a transient snapshot failure", func(t *testing.T) {
		surface := newFakeSurface(800, 400, page(1), page(2))
		surface.failures = map[int]int{1: 1}

		d := newTestDriver(surface, WithSnapshotRetries(2))
		pages, err := d.Run(t.Context())
		require.NoError(t, err)

		assert.Equal(t, []int{0, 1}, indices(pages))
		assert.Equal(t, 1, d.Stats().Retries)
		assert.Zero(t, d.Stats().SnapshotFailures)
	})

	t.Run("should treat an empty snapshot as failed", func(t *testing.T) {
		surface := newFakeSurface(800, 400, page(1), image.NewRGBA(image.Rectangle{}))

		d := newTestDriver(surface, WithSnapshotRetries(0))
		pages, err := d.Run(t.Context())
		require.NoError(t, err)

		assert.Len(t, pages, 1)
		assert.Equal(t, 1, d.Stats().SnapshotFailures)
	})

	t.Run("should capture a short last page", func(t *testing.T) {
		surface := newFakeSurface(1000, 400, page(1), page(2), page(3))

		d := newTestDriver(surface)
		_, err := d.Run(t.Context())
		require.NoError(t, err)

		assert.Equal(t, 800.0, surface.offsets[len(surface.offsets)-1])
		assert.Equal(t, 3, surface.snapshots)
	})

	t.Run("should complete with no page", func(t *testing.T) {
		surface := newFakeSurface(0, 400)
		obs := &recorder{}

		d := newTestDriver(surface, WithObserver(Strong(obs)))
		pages, err := d.Run(t.Context())
		require.ErrorIs(t, err, ErrNoPages)
		assert.Empty(t, pages)

		assert.Equal(t, StateDone, d.State())
		assert.Equal(t, 1, obs.completions)
		assert.Zero(t, surface.snapshots)
	})

	t.Run("should complete with only blank pages", func(t *testing.T) {
		surface := newFakeSurface(800, 400, whitePage(0), whitePage(0))

		d := newTestDriver(surface)
		_, err := d.Run(t.Context())
		require.ErrorIs(t, err, ErrNoPages)
	})
}

func TestRenderNotReady(t *testing.T) {
	t.Run("with zero viewport height", func(t *testing.T) {
		surface := newFakeSurface(1000, 0, page(1))
		obs := &recorder{}

		d := newTestDriver(surface, WithObserver(Strong(obs)))
		_, err := d.Run(t.Context())
		require.ErrorIs(t, err, ErrRenderNotReady)

		assert.Equal(t, StateFailed, d.State())
		require.ErrorIs(t, d.Err(), ErrRenderNotReady)
		assert.Zero(t, surface.snapshots)
		assert.Empty(t, obs.counts)
		assert.Zero(t, obs.completions)
	})

	t.Run("with failing height query", func(t *testing.T) {
		surface := newFakeSurface(1000, 400, page(1))
		surface.heightErr = errors.New("javascript error")

		d := newTestDriver(surface)
		_, err := d.Run(t.Context())
		require.ErrorIs(t, err, ErrRenderNotReady)
		assert.ErrorContains(t, err, "javascript error")
		assert.Zero(t, surface.snapshots)
	})
}

func TestCaptureTimeout(t *testing.T) {
	t.Run("with a surface honoring its context", func(t *testing.T) {
		surface := newFakeSurface(800, 400, page(1), page(2))
		surface.block = func(ctx context.Context) { <-ctx.Done() }

		d := newTestDriver(surface, WithStepTimeout(20*time.Millisecond))
		_, err := d.Run(t.Context())
		require.ErrorIs(t, err, ErrCaptureTimeout)
		assert.Equal(t, StateFailed, d.State())
	})

	t.Run("with a surface ignoring its context", func(t *testing.T) {
		release := make(chan struct{})
		t.Cleanup(func() { close(release) })

		surface := newFakeSurface(800, 400, page(1), page(2))
		surface.block = func(context.Context) { <-release }

		d := newTestDriver(surface, WithStepTimeout(20*time.Millisecond))
		_, err := d.Run(t.Context())
		require.ErrorIs(t, err, ErrCaptureTimeout)
	})
}

func TestCancellation(t *testing.T) {
	surface := newFakeSurface(1600, 400, page(1), page(2), page(3), page(4))
	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	obs := &recorder{onProgress: func(pages []model.Page) {
		if len(pages) == 1 {
			cancel() // the host dismisses the view
		}
	}}

	d := newTestDriver(surface, WithObserver(Strong(obs)))
	pages, err := d.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)

	assert.Len(t, pages, 1)
	assert.Equal(t, StateFailed, d.State())
	assert.Equal(t, []int{1}, obs.progress)
	assert.Zero(t, obs.completions)
	assert.Equal(t, 1, surface.snapshots)

	require.ErrorIs(t, d.Step(ctx), ErrSessionOver)
}

func TestObserverRef(t *testing.T) {
	t.Run("should not notify a gone observer", func(t *testing.T) {
		surface := newFakeSurface(800, 400, page(1), page(2))
		obs := &recorder{}

		d := newTestDriver(surface, WithObserver(goneRef{o: obs}))
		pages, err := d.Run(t.Context())
		require.NoError(t, err)

		assert.Len(t, pages, 2)
		assert.Empty(t, obs.progress)
		assert.Zero(t, obs.completions)
	})

	t.Run("should notify a live observer through a weak reference", func(t *testing.T) {
		surface := newFakeSurface(800, 400, page(1), page(2))
		obs := &recorder{}

		d := newTestDriver(surface, WithObserver(Weak(obs)))
		_, err := d.Run(t.Context())
		require.NoError(t, err)

		assert.Equal(t, []int{1, 2}, obs.progress)
		assert.Equal(t, 1, obs.completions)
		runtime.KeepAlive(obs)
	})

	t.Run("should not notify a weakly held observer once collected", func(t *testing.T) {
		surface := newFakeSurface(800, 400, page(1), page(2))
		ref := Weak(&recorder{})

		runtime.GC()
		_, alive := ref.Observer()
		require.False(t, alive)

		d := newTestDriver(surface, WithObserver(ref))
		pages, err := d.Run(t.Context())
		require.NoError(t, err)

		assert.Len(t, pages, 2)
		assert.Equal(t, StateDone, d.State())
	})

	t.Run("should resolve a weak reference while alive", func(t *testing.T) {
		obs := &recorder{}
		ref := Weak(obs)

		o, ok := ref.Observer()
		require.True(t, ok)
		assert.Same(t, obs, o)
		runtime.KeepAlive(obs)
	})

	t.Run("should ignore a nil strong reference", func(t *testing.T) {
		_, ok := Strong(nil).Observer()
		assert.False(t, ok)
	})
}

func TestSettle(t *testing.T) {
	t.Run("should prefer the settled signal", func(t *testing.T) {
		surface := &settlingSurface{fakeSurface: newFakeSurface(800, 400, page(1), page(2))}
		var sleeps int

		d := New(surface, withSleep(countSleeps(&sleeps)))
		_, err := d.Run(t.Context())
		require.NoError(t, err)

		assert.Equal(t, 3, surface.settled, "one initial settle and one per page")
		assert.Zero(t, sleeps)
	})

	t.Run("should fall back to the fixed delay", func(t *testing.T) {
		surface := &settlingSurface{fakeSurface: newFakeSurface(800, 400, page(1), page(2)), err: errors.New("unsupported")}
		var delays []time.Duration

		d := New(surface,
			WithSettleDelays(time.Second, 250*time.Millisecond),
			withSleep(func(_ context.Context, d time.Duration) error {
				delays = append(delays, d)

				return nil
			}),
		)
		_, err := d.Run(t.Context())
		require.NoError(t, err)

		assert.Equal(t, []time.Duration{time.Second, 250 * time.Millisecond, 250 * time.Millisecond}, delays)
	})

	t.Run("should use fixed delays when the signal is disabled", func(t *testing.T) {
		surface := &settlingSurface{fakeSurface: newFakeSurface(800, 400, page(1), page(2))}
		var sleeps int

		d := New(surface, WithSettledSignal(false), withSleep(countSleeps(&sleeps)))
		_, err := d.Run(t.Context())
		require.NoError(t, err)

		assert.Zero(t, surface.settled)
		assert.Equal(t, 3, sleeps)
	})
}

func TestEncodeFailureSentinel(t *testing.T) {
	// pages failing to encode share the sentinel fingerprint: only the first one is kept
	surface := newFakeSurface(1200, 400, page(1), page(2), page(3))

	d := newTestDriver(surface, WithFingerprinter(failingHasher{}))
	pages, err := d.Run(t.Context())
	require.NoError(t, err)

	require.Len(t, pages, 1)
	assert.Empty(t, pages[0].Fingerprint)
	assert.Equal(t, 3, d.Stats().EncodeFailures)
	assert.Equal(t, 2, d.Stats().Duplicate)
}

func TestStep(t *testing.T) {
	surface := newFakeSurface(800, 400, page(1), page(2))
	d := newTestDriver(surface)
	ctx := t.Context()

	assert.Equal(t, StateAwaitingHeight, d.State())

	require.NoError(t, d.Step(ctx))
	assert.Equal(t, StateCapturingPage, d.State())
	assert.Equal(t, 2, d.TotalPages())
	assert.Zero(t, d.CurrentPage())

	require.NoError(t, d.Step(ctx))
	assert.Equal(t, 1, d.CurrentPage())
	require.NoError(t, d.Step(ctx))
	assert.Equal(t, 2, d.CurrentPage())
	assert.Equal(t, StateCapturingPage, d.State())

	require.NoError(t, d.Step(ctx))
	assert.Equal(t, StateDone, d.State())

	require.ErrorIs(t, d.Step(ctx), ErrSessionOver)
	assert.Len(t, d.Pages(), 2)
	assert.NotEmpty(t, d.SessionID())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "awaiting-height", StateAwaitingHeight.String())
	assert.Equal(t, "capturing-page", StateCapturingPage.String())
	assert.Equal(t, "done", StateDone.String())
	assert.Equal(t, "failed", StateFailed.String())
	assert.Equal(t, "unknown", State(42).String())
}

// helpers

func newTestDriver(surface Surface, opts ...Option) *Driver {
	return New(surface, append([]Option{withSleep(noSleep)}, opts...)...)
}

func noSleep(context.Context, time.Duration) error { return nil }

func countSleeps(n *int) func(context.Context, time.Duration) error {
	return func(context.Context, time.Duration) error {
		*n++

		return nil
	}
}

// page returns a distinct, non-blank image identified by n.
func page(n int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 20, 10))
	for y := range 10 {
		for x := range 20 {
			img.Set(x, y, color.RGBA{R: uint8(n * 40), G: uint8(x * 10), B: uint8(y * 20), A: 255})
		}
	}

	return img
}

// whitePage returns a white 100x100 image with dark black pixels.
func whitePage(dark int) image.Image {
	img := image.NewGray(image.Rect(0, 0, 100, 100))
	for i := range img.Pix {
		if i >= dark {
			img.Pix[i] = 0xff
		}
	}

	return img
}

func indices(pages []model.Page) []int {
	out := make([]int, 0, len(pages))
	for _, p := range pages {
		out = append(out, p.Index)
	}

	return out
}

func assertUniqueFingerprints(t *testing.T, pages []model.Page) {
	t.Helper()

	seen := make(map[string]struct{}, len(pages))
	for _, p := range pages {
		_, dup := seen[p.Fingerprint]
		assert.False(t, dup, "duplicate fingerprint %q", p.Fingerprint)
		seen[p.Fingerprint] = struct{}{}
	}
}

type fakeSurface struct {
	content   float64
	viewport  float64
	heightErr error
	images    []image.Image
	failures  map[int]int // page index -> remaining failures (-1: always)
	block     func(context.Context)

	current   float64
	offsets   []float64
	snapshots int
}

func newFakeSurface(content, viewport float64, images ...image.Image) *fakeSurface {
	return &fakeSurface{
		content:  content,
		viewport: viewport,
		images:   images,
	}
}

func (f *fakeSurface) ContentHeight(context.Context) (float64, error) {
	return f.content, f.heightErr
}

func (f *fakeSurface) ViewportHeight(context.Context) (float64, error) {
	return f.viewport, f.heightErr
}

func (f *fakeSurface) ScrollTo(_ context.Context, offset float64) error {
	f.current = offset
	f.offsets = append(f.offsets, offset)

	return nil
}

func (f *fakeSurface) Snapshot(ctx context.Context) (image.Image, error) {
	if f.block != nil {
		f.block(ctx)

		return nil, ctx.Err()
	}

	f.snapshots++
	index := int(f.current / f.viewport)

	if remaining, ok := f.failures[index]; ok && remaining != 0 {
		if remaining > 0 {
			f.failures[index] = remaining - 1
		}

		return nil, errors.New("snapshot unavailable")
	}

	if index >= len(f.images) {
		return nil, errors.New("out of content")
	}

	return f.images[index], nil
}

type settlingSurface struct {
	*fakeSurface

	err     error
	settled int
}

func (s *settlingSurface) WaitSettled(context.Context) error {
	if s.err != nil {
		return s.err
	}

	s.settled++

	return nil
}

type recorder struct {
	counts      []int
	progress    []int
	completions int
	final       []model.Page
	onProgress  func([]model.Page)
}

func (r *recorder) PageCountCalculated(total int) {
	r.counts = append(r.counts, total)
}

func (r *recorder) PagesCaptured(pages []model.Page) {
	r.progress = append(r.progress, len(pages))
	if r.onProgress != nil {
		r.onProgress(pages)
	}
}

func (r *recorder) AllPagesCaptured(pages []model.Page) {
	r.completions++
	r.final = pages
}

// goneRef simulates an observer torn down by the host.
type goneRef struct {
	o Observer
}

func (goneRef) Observer() (Observer, bool) { return nil, false }

type failingHasher struct{}

func (failingHasher) Fingerprint(image.Image) (string, error) {
	return "", errors.New("encode failure")
}
