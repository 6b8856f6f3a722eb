package backend

import (
	"context"

	"github.com/charlie0129/battstat/pkg/powerinfo"
)

// Unsupported is the last resort. It always reports that there is no
// battery, which is treated as running on mains.
type Unsupported struct{}

var _ Backend = &Unsupported{}

// NewUnsupported returns the backend that is used when nothing else works.
func NewUnsupported() *Unsupported {
	return &Unsupported{}
}

func (u *Unsupported) Name() string { return "unsupported" }

func (u *Unsupported) Init(_ context.Context) error { return nil }

func (u *Unsupported) Read(_ context.Context) (powerinfo.CompositeStatus, error) {
	return powerinfo.NotPresent(), nil
}

func (u *Unsupported) Composite() bool { return false }

func (u *Unsupported) Close() error { return nil }
