package capture

import (
	"context"
	"image"
)

// Surface is a rendering surface that has finished loading a document.
//
// Heights and offsets are expressed in the surface's own units (CSS pixels for a browser).
type Surface interface {
	// ContentHeight returns the total height of the loaded content.
	ContentHeight(context.Context) (float64, error)

	// ViewportHeight returns the height of the visible region.
	ViewportHeight(context.Context) (float64, error)

	// ScrollTo sets the vertical scroll offset.
	ScrollTo(ctx context.Context, offset float64) error

	// Snapshot captures the currently visible region.
	Snapshot(context.Context) (image.Image, error)
}

// Settler is implemented by surfaces able to signal that rendering has settled after a load or a scroll.
//
// When a [Surface] is also a [Settler], the driver may wait on this signal instead of a fixed delay.
type Settler interface {
	WaitSettled(context.Context) error
}

// Fingerprinter computes a content digest for a captured image.
type Fingerprinter interface {
	Fingerprint(image.Image) (string, error)
}

// BlankDetector tells whether a captured image is blank.
type BlankDetector interface {
	IsBlank(image.Image) bool
}
