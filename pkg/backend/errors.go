package backend

import "errors"

var (
	// ErrUnavailable is returned by Init when a backend's prerequisite
	// (service, device file, kernel interface) is absent.
	ErrUnavailable = errors.New("backend unavailable")

	// ErrSelectionExhausted is returned when not even the fallback backend
	// could be initialized. This indicates a broken build.
	ErrSelectionExhausted = errors.New("no usable backend")
)
