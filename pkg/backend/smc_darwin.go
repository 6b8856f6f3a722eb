//go:build darwin

package backend

import (
	"context"
	"sync"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/battstat/pkg/powerinfo"
	"github.com/charlie0129/battstat/pkg/smc"
)

// SMC reads the Apple System Management Controller. It reports a single
// battery charge percentage and has no time estimate.
type SMC struct {
	conn *smc.AppleSMC

	mu     sync.Mutex
	opened bool
}

var _ Backend = &SMC{}

// NewSMC returns a backend using the machine's SMC.
func NewSMC() *SMC {
	return &SMC{conn: smc.New()}
}

func (s *SMC) Name() string { return "smc" }

func (s *SMC) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.conn.Open(); err != nil {
		return pkgerrors.Wrapf(ErrUnavailable, "smc: %v", err)
	}
	s.opened = true

	// Desktop Macs have an SMC but no battery key.
	if _, err := s.conn.BatteryCharge(); err != nil {
		_ = s.closeLocked()
		return pkgerrors.Wrapf(ErrUnavailable, "smc: %v", err)
	}

	return nil
}

func (s *SMC) Read(_ context.Context) (powerinfo.CompositeStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.opened {
		return powerinfo.CompositeStatus{}, pkgerrors.New("smc connection is not open")
	}

	p, err := s.conn.ReadPower()
	if err != nil {
		return powerinfo.CompositeStatus{}, pkgerrors.Wrap(err, "smc")
	}
	logrus.WithFields(logrus.Fields{
		"charge":          p.Charge,
		"pluggedIn":       p.PluggedIn,
		"chargingAllowed": p.ChargingAllowed,
		"adapterEnabled":  p.AdapterEnabled,
	}).Trace("smc power read")

	return powerinfo.FromReading(powerinfo.Reading{
		Present:   true,
		Percent:   p.Charge,
		Seconds:   -1,
		Charging:  p.Charging(),
		OnACPower: p.OnACPower(),
	}), nil
}

func (s *SMC) Composite() bool { return false }

func (s *SMC) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.closeLocked()
}

func (s *SMC) closeLocked() error {
	if !s.opened {
		return nil
	}
	s.opened = false
	return s.conn.Close()
}
