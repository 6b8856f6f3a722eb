package backend

import (
	"context"
	"errors"
	"testing"

	pkgerrors "github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charlie0129/battstat/pkg/powerinfo"
)

type fakeBackend struct {
	name      string
	composite bool
	initErr   error
	status    powerinfo.CompositeStatus
	warning   string

	inits  int
	closes int
}

func (f *fakeBackend) Name() string { return f.name }

func (f *fakeBackend) Init(context.Context) error {
	f.inits++
	return f.initErr
}

func (f *fakeBackend) Read(context.Context) (powerinfo.CompositeStatus, error) {
	return f.status, nil
}

func (f *fakeBackend) Composite() bool { return f.composite }

func (f *fakeBackend) Close() error {
	f.closes++
	return nil
}

func (f *fakeBackend) Warning() string { return f.warning }

func unavailable(name string) error {
	return pkgerrors.Wrapf(ErrUnavailable, "%s: not here", name)
}

func TestSelectFallsBackFromHAL(t *testing.T) {
	hal := &fakeBackend{name: "hal", composite: true, initErr: unavailable("hal")}
	native := &fakeBackend{
		name:    "native",
		status:  powerinfo.CompositeStatus{Present: true, Percent: 77, Minutes: 42},
		warning: acpiSocketWarning,
	}
	apm := &fakeBackend{name: "apm"}

	sel, err := Select(context.Background(), Options{Candidates: []Backend{hal, native, apm}})
	require.NoError(t, err)

	assert.Same(t, native, sel.Backend)
	assert.False(t, sel.Backend.Composite())
	assert.Equal(t, acpiSocketWarning, sel.Warning)
	assert.Equal(t, 1, hal.closes)
	assert.Equal(t, 0, apm.inits)

	got, err := sel.Backend.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 77, got.Percent)
}

func TestSelectSkipHAL(t *testing.T) {
	hal := &fakeBackend{name: "hal", composite: true}
	native := &fakeBackend{name: "native"}

	sel, err := Select(context.Background(), Options{SkipHAL: true, Candidates: []Backend{hal, native}})
	require.NoError(t, err)

	assert.Same(t, native, sel.Backend)
	assert.Equal(t, 0, hal.inits)
}

func TestSelectPrefersFirst(t *testing.T) {
	hal := &fakeBackend{name: "hal", composite: true}
	native := &fakeBackend{name: "native"}

	sel, err := Select(context.Background(), Options{Candidates: []Backend{hal, native}})
	require.NoError(t, err)

	assert.Same(t, hal, sel.Backend)
	assert.True(t, sel.Backend.Composite())
	assert.Equal(t, 0, native.inits)
}

func TestSelectUnsupportedFallback(t *testing.T) {
	a := &fakeBackend{name: "a", initErr: unavailable("a")}
	b := &fakeBackend{name: "b", initErr: errors.New("unexpected")}

	sel, err := Select(context.Background(), Options{Candidates: []Backend{a, b}})
	require.NoError(t, err)

	assert.Equal(t, "unsupported", sel.Backend.Name())
	assert.Empty(t, sel.Warning)
	assert.Equal(t, 1, a.closes)
	assert.Equal(t, 1, b.closes)

	got, err := sel.Backend.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, powerinfo.NotPresent(), got)
}

func TestSelectExhausted(t *testing.T) {
	fallback := &fakeBackend{name: "broken", initErr: errors.New("boom")}

	_, err := Select(context.Background(), Options{
		Candidates: []Backend{},
		Fallback:   fallback,
	})
	assert.ErrorIs(t, err, ErrSelectionExhausted)
	assert.Equal(t, 1, fallback.closes)
}

func TestSelectCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	native := &fakeBackend{name: "native"}
	_, err := Select(ctx, Options{Candidates: []Backend{native}})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, native.inits)
}

func TestDefaultCandidates(t *testing.T) {
	candidates := DefaultCandidates()
	require.NotEmpty(t, candidates)

	assert.Equal(t, "upower", candidates[0].Name())
	assert.True(t, candidates[0].Composite())
	assert.Equal(t, "apm", candidates[len(candidates)-1].Name())
	for _, c := range candidates[1:] {
		assert.False(t, c.Composite())
	}
}
