package session

import "errors"

// Hardware error taxonomy. All of these are fatal to the current
// verification session; none is retried automatically.
var (
	// ErrDeviceUnavailable: no physical device exists for the requested
	// logical position.
	ErrDeviceUnavailable = errors.New("camera device unavailable")

	// ErrPermissionDenied: capture authorization was not granted.
	ErrPermissionDenied = errors.New("camera permission denied")

	// ErrConfigurationFailed: the new device input could not be attached.
	ErrConfigurationFailed = errors.New("camera configuration failed")

	// ErrNotRunning: a capture was requested while the resource is stopped.
	ErrNotRunning = errors.New("capture resource not running")

	// ErrCaptureFailed: the hardware reported a capture error.
	ErrCaptureFailed = errors.New("photo capture failed")

	// ErrClosed: the manager's worker has shut down.
	ErrClosed = errors.New("session manager closed")
)
