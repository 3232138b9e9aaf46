package capture

import "errors"

var (
	// ErrRenderNotReady is returned when the surface cannot report its content or viewport height.
	// The session aborts before any page is captured.
	ErrRenderNotReady = errors.New("capture: render not ready")

	// ErrSnapshotFailed marks a page whose snapshot could not be taken.
	// It never aborts a session: the page is skipped.
	ErrSnapshotFailed = errors.New("capture: snapshot failed")

	// ErrCaptureTimeout is returned when a call to the surface exceeds the step timeout.
	ErrCaptureTimeout = errors.New("capture: step timed out")

	// ErrNoPages is returned when a session completes without any accepted page.
	ErrNoPages = errors.New("capture: no page captured")

	// ErrSessionOver is returned when stepping a session that is already done or failed.
	ErrSessionOver = errors.New("capture: session is over")
)
