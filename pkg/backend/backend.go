// Package backend provides the platform-specific ways of reading battery
// and AC status, and selects the one that works on the running machine.
package backend

import (
	"context"

	"github.com/charlie0129/battstat/pkg/powerinfo"
)

// Backend is one platform-specific strategy for obtaining battery status.
type Backend interface {
	// Name identifies the backend in logs and API responses.
	Name() string
	// Init probes the platform and prepares the backend. Errors wrapping
	// ErrUnavailable mean a prerequisite is absent and another backend
	// should be tried.
	Init(ctx context.Context) error
	// Read returns the current status. Poll-driven backends query the
	// platform; event-driven backends return their cached snapshot.
	Read(ctx context.Context) (powerinfo.CompositeStatus, error)
	// Composite reports whether the backend tracks individual batteries
	// and adaptors itself rather than a single pre-aggregated reading.
	Composite() bool
	// Close releases event channels and handles. It is safe to call more
	// than once, and after a failed Init.
	Close() error
}

// EventDriven is implemented by backends that receive asynchronous
// notifications from the platform.
type EventDriven interface {
	Backend
	// Events becomes readable whenever HandleEvent has work to do. The
	// channel is the same for the lifetime of the backend.
	Events() <-chan struct{}
	// HandleEvent consumes pending notifications, updates the cached
	// device records and reports whether anything observable changed.
	HandleEvent() (bool, error)
}

// Poller is implemented by event-driven backends that still need regular
// reads, either to bound the staleness of their cache or because their
// event channel went away.
type Poller interface {
	NeedsPolling() bool
}

// Warner is implemented by backends that initialized successfully but
// hit a notable problem on the way.
type Warner interface {
	Warning() string
}
