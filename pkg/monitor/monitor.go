// Package monitor is the entry point for reading battery status. It picks
// a backend once, normalizes everything the backend reports and keeps the
// last good value around for when the platform misbehaves.
package monitor

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/charlie0129/battstat/pkg/backend"
	"github.com/charlie0129/battstat/pkg/powerinfo"
)

type options struct {
	candidates []backend.Backend
	fallback   backend.Backend
}

// Option customizes a Monitor.
type Option func(*options)

// WithCandidates replaces the platform's default backend candidates. With
// no arguments only the fallback is used.
func WithCandidates(candidates ...backend.Backend) Option {
	return func(o *options) {
		o.candidates = append([]backend.Backend{}, candidates...)
	}
}

// WithFallback replaces the backend used when no candidate works.
func WithFallback(b backend.Backend) Option {
	return func(o *options) {
		o.fallback = b
	}
}

// Monitor owns the selected backend. All calls into the backend are
// serialized, so a Monitor is safe for concurrent use.
type Monitor struct {
	opts options

	mu          sync.Mutex
	backend     backend.Backend
	eventDriven backend.EventDriven
	warning     string
	last        powerinfo.CompositeStatus
	initialized bool
}

// New creates a Monitor. Call Initialize before reading.
func New(opts ...Option) *Monitor {
	m := &Monitor{
		last: powerinfo.NotPresent(),
	}
	for _, opt := range opts {
		opt(&m.opts)
	}
	return m
}

// Initialize selects a backend. skipHAL bypasses hardware abstraction
// services such as UPower and goes straight to the kernel interfaces.
// The returned warning, if not empty, is a notice about a degraded but
// working setup.
func (m *Monitor) Initialize(ctx context.Context, skipHAL bool) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.initialized {
		return "", ErrAlreadyInitialized
	}

	sel, err := backend.Select(ctx, backend.Options{
		SkipHAL:    skipHAL,
		Candidates: m.opts.candidates,
		Fallback:   m.opts.fallback,
	})
	if err != nil {
		return "", err
	}

	m.initialized = true
	m.backend = sel.Backend
	m.warning = sel.Warning
	if ed, ok := sel.Backend.(backend.EventDriven); ok {
		m.eventDriven = ed
	}

	logrus.WithFields(logrus.Fields{
		"backend":     sel.Backend.Name(),
		"composite":   sel.Backend.Composite(),
		"eventDriven": m.eventDriven != nil,
		"skipHAL":     skipHAL,
	}).Info("battery monitor initialized")

	return sel.Warning, nil
}

// Read returns the current normalized status. If the backend fails, the
// last good status is returned instead. Before Initialize and after
// Shutdown this is NotPresent() or the last good status.
func (m *Monitor) Read(ctx context.Context) powerinfo.CompositeStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.backend == nil {
		return m.last
	}

	s, err := m.backend.Read(ctx)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"backend": m.backend.Name(),
			"error":   err,
		}).Warn("failed to read battery status, using last known value")
		return m.last
	}

	m.last = powerinfo.Normalize(s)
	return m.last
}

// HandleEvent processes pending backend notifications and reports whether
// the status may have changed. It is a no-op for poll-only backends.
func (m *Monitor) HandleEvent() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.eventDriven == nil || m.backend == nil {
		return false
	}

	changed, err := m.eventDriven.HandleEvent()
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"backend": m.backend.Name(),
			"error":   err,
		}).Warn("failed to handle battery event")
	}
	return changed
}

// Events becomes readable when HandleEvent has work to do. It is nil for
// poll-only backends, which blocks forever in a select.
func (m *Monitor) Events() <-chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.eventDriven == nil {
		return nil
	}
	return m.eventDriven.Events()
}

// EventDriven reports whether the backend delivers notifications.
func (m *Monitor) EventDriven() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.eventDriven != nil
}

// NeedsPolling reports whether the status must be read periodically to
// stay current.
func (m *Monitor) NeedsPolling() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.eventDriven == nil {
		return true
	}
	if p, ok := m.eventDriven.(backend.Poller); ok {
		return p.NeedsPolling()
	}
	return false
}

// IsCompositeCapable reports whether the backend tracks individual
// batteries and adaptors.
func (m *Monitor) IsCompositeCapable() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.backend != nil && m.backend.Composite()
}

// BackendName returns the name of the selected backend, or an empty string
// before Initialize.
func (m *Monitor) BackendName() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.backend == nil {
		return ""
	}
	return m.backend.Name()
}

// Warning returns the notice from backend selection, if any.
func (m *Monitor) Warning() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.warning
}

// Shutdown releases the backend. It may be called any number of times,
// including before or after a failed Initialize.
func (m *Monitor) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.backend == nil {
		return
	}

	if err := m.backend.Close(); err != nil {
		logrus.WithFields(logrus.Fields{
			"backend": m.backend.Name(),
			"error":   err,
		}).Warn("failed to close backend")
	}
	logrus.WithField("backend", m.backend.Name()).Debug("battery monitor shut down")

	m.backend = nil
	m.eventDriven = nil
}

// Info describes the selected backend.
type Info struct {
	Backend      string `json:"backend"`
	Composite    bool   `json:"composite"`
	EventDriven  bool   `json:"eventDriven"`
	NeedsPolling bool   `json:"needsPolling"`
	Warning      string `json:"warning,omitempty"`
}

// Info returns a description of the selected backend.
func (m *Monitor) Info() Info {
	return Info{
		Backend:      m.BackendName(),
		Composite:    m.IsCompositeCapable(),
		EventDriven:  m.EventDriven(),
		NeedsPolling: m.NeedsPolling(),
		Warning:      m.Warning(),
	}
}
