package backend

import (
	"context"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Options controls backend selection.
type Options struct {
	// SkipHAL skips backends that track individual devices through a
	// hardware abstraction service such as UPower.
	SkipHAL bool
	// Candidates are tried in order. Nil means DefaultCandidates.
	Candidates []Backend
	// Fallback is used when every candidate fails. Nil means Unsupported.
	Fallback Backend
}

// Selection is the outcome of Select.
type Selection struct {
	Backend Backend
	// Warning is a non-fatal notice from the selected backend, if any.
	Warning string
}

// DefaultCandidates returns the backends for this platform in order of
// preference: UPower, then the native kernel interface, then APM.
func DefaultCandidates() []Backend {
	candidates := []Backend{NewUPower()}
	candidates = append(candidates, nativeCandidates()...)
	candidates = append(candidates, NewAPM())
	return candidates
}

// Select initializes candidates in order and returns the first one that
// succeeds. Failed candidates are closed.
func Select(ctx context.Context, opts Options) (Selection, error) {
	candidates := opts.Candidates
	if candidates == nil {
		candidates = DefaultCandidates()
	}
	fallback := opts.Fallback
	if fallback == nil {
		fallback = NewUnsupported()
	}

	for _, b := range candidates {
		logger := logrus.WithField("backend", b.Name())

		if opts.SkipHAL && b.Composite() {
			logger.Debug("skipping HAL backend")
			continue
		}

		if err := ctx.Err(); err != nil {
			return Selection{}, err
		}

		err := b.Init(ctx)
		if err == nil {
			logger.Info("backend selected")
			return Selection{Backend: b, Warning: warningOf(b)}, nil
		}

		if pkgerrors.Is(err, ErrUnavailable) {
			logger.WithError(err).Debug("backend unavailable")
		} else {
			logger.WithError(err).Warn("backend failed to initialize")
		}
		if cerr := b.Close(); cerr != nil {
			logger.WithError(cerr).Debug("failed to close backend")
		}
	}

	logger := logrus.WithField("backend", fallback.Name())
	if err := fallback.Init(ctx); err != nil {
		_ = fallback.Close()
		return Selection{}, pkgerrors.Wrapf(ErrSelectionExhausted, "%s: %v", fallback.Name(), err)
	}
	logger.Info("no battery interface found, using fallback backend")

	return Selection{Backend: fallback, Warning: warningOf(fallback)}, nil
}

func warningOf(b Backend) string {
	if w, ok := b.(Warner); ok {
		return w.Warning()
	}
	return ""
}
