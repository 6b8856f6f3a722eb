package backend

import (
	"context"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/battstat/pkg/powerinfo"
)

// Battery state bits reported by the FreeBSD ACPI battery driver.
const (
	bsdBattDischarging = 0x0001
	bsdBattCharging    = 0x0002
	bsdBattNotPresent  = 0x0007
)

// ACPIBSD reads the FreeBSD ACPI battery sysctls. The driver offers no
// event channel here, so every read queries the kernel.
type ACPIBSD struct {
	sysctl func(name string) (uint32, error)
}

var _ Backend = &ACPIBSD{}

func newACPIBSD(sysctl func(name string) (uint32, error)) *ACPIBSD {
	return &ACPIBSD{sysctl: sysctl}
}

func (a *ACPIBSD) Name() string { return "acpi-bsd" }

func (a *ACPIBSD) Init(_ context.Context) error {
	if _, err := a.query(); err != nil {
		return pkgerrors.Wrapf(ErrUnavailable, "acpi-bsd: %v", err)
	}
	return nil
}

func (a *ACPIBSD) Read(_ context.Context) (powerinfo.CompositeStatus, error) {
	r, err := a.query()
	if err != nil {
		return powerinfo.CompositeStatus{}, err
	}
	return powerinfo.FromReading(r), nil
}

func (a *ACPIBSD) Composite() bool { return false }

func (a *ACPIBSD) Close() error { return nil }

func (a *ACPIBSD) query() (powerinfo.Reading, error) {
	life, err := a.sysctlInt("hw.acpi.battery.life")
	if err != nil {
		return powerinfo.Reading{}, err
	}
	minutes, err := a.sysctlInt("hw.acpi.battery.time")
	if err != nil {
		return powerinfo.Reading{}, err
	}
	state, err := a.sysctlInt("hw.acpi.battery.state")
	if err != nil {
		return powerinfo.Reading{}, err
	}
	acline, err := a.sysctlInt("hw.acpi.acline")
	if err != nil {
		return powerinfo.Reading{}, err
	}

	seconds := -1
	if minutes > 0 {
		seconds = minutes * 60
	}

	r := powerinfo.Reading{
		Present:   state != bsdBattNotPresent && life >= 0,
		Percent:   life,
		Seconds:   seconds,
		Charging:  state&bsdBattCharging != 0 && state&bsdBattDischarging == 0,
		OnACPower: acline == 1,
	}

	logrus.WithFields(logrus.Fields{
		"life":    life,
		"minutes": minutes,
		"state":   state,
		"acline":  acline,
	}).Trace("ACPI sysctls read")

	return r, nil
}

// sysctlInt reads an integer sysctl. The kernel reports unknown values as
// -1, which arrives here as the two's complement uint32.
func (a *ACPIBSD) sysctlInt(name string) (int, error) {
	v, err := a.sysctl(name)
	if err != nil {
		return 0, pkgerrors.Wrapf(err, "failed to read sysctl %s", name)
	}
	return int(int32(v)), nil
}
