package backend

import (
	"context"
	"os"
	"strconv"
	"strings"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/battstat/pkg/powerinfo"
)

const defaultAPMPath = "/proc/apm"

// Values of the APM BIOS power status fields.
const (
	apmACOnline         = 0x01
	apmBatteryCharging  = 0x03
	apmBatteryFlagNone  = 0x80
	apmBatteryFlagUnset = 0xff
)

// APM reads the generic APM BIOS power status. It has no event channel,
// so every read queries the kernel.
type APM struct {
	path     string
	readFile func(name string) ([]byte, error)
}

var _ Backend = &APM{}

// NewAPM returns an APM backend reading the kernel's APM status file.
func NewAPM() *APM {
	return &APM{
		path:     defaultAPMPath,
		readFile: os.ReadFile,
	}
}

func (a *APM) Name() string { return "apm" }

func (a *APM) Init(_ context.Context) error {
	if _, err := a.query(); err != nil {
		return pkgerrors.Wrapf(ErrUnavailable, "apm: %v", err)
	}
	return nil
}

func (a *APM) Read(_ context.Context) (powerinfo.CompositeStatus, error) {
	r, err := a.query()
	if err != nil {
		return powerinfo.CompositeStatus{}, err
	}
	return powerinfo.FromReading(r), nil
}

func (a *APM) Composite() bool { return false }

func (a *APM) Close() error { return nil }

func (a *APM) query() (powerinfo.Reading, error) {
	logrus.WithField("path", a.path).Trace("reading APM status")

	b, err := a.readFile(a.path)
	if err != nil {
		return powerinfo.Reading{}, pkgerrors.Wrapf(err, "failed to read %s", a.path)
	}

	r, err := parseAPM(string(b))
	if err != nil {
		return powerinfo.Reading{}, pkgerrors.Wrapf(err, "failed to parse %s", a.path)
	}

	logrus.WithFields(logrus.Fields{
		"present":   r.Present,
		"percent":   r.Percent,
		"seconds":   r.Seconds,
		"charging":  r.Charging,
		"onACPower": r.OnACPower,
	}).Trace("APM status read")

	return r, nil
}

// parseAPM parses one APM status line, e.g.
//
//	1.16 1.2 0x03 0x01 0x03 0x09 98% 123 min
//
// The fields are driver version, BIOS version, BIOS flags, AC line
// status, battery status, battery flag, percent, remaining time and the
// unit of the remaining time.
func parseAPM(s string) (powerinfo.Reading, error) {
	fields := strings.Fields(s)
	if len(fields) < 9 {
		return powerinfo.Reading{}, pkgerrors.Errorf("expected 9 fields, got %d", len(fields))
	}

	acLine, err := parseHexByte(fields[3])
	if err != nil {
		return powerinfo.Reading{}, pkgerrors.Wrap(err, "ac line status")
	}
	batteryStatus, err := parseHexByte(fields[4])
	if err != nil {
		return powerinfo.Reading{}, pkgerrors.Wrap(err, "battery status")
	}
	batteryFlag, err := parseHexByte(fields[5])
	if err != nil {
		return powerinfo.Reading{}, pkgerrors.Wrap(err, "battery flag")
	}
	percent, err := strconv.Atoi(strings.TrimSuffix(fields[6], "%"))
	if err != nil {
		return powerinfo.Reading{}, pkgerrors.Wrap(err, "percent")
	}
	remaining, err := strconv.Atoi(fields[7])
	if err != nil {
		return powerinfo.Reading{}, pkgerrors.Wrap(err, "remaining time")
	}

	seconds := -1
	if remaining >= 0 {
		switch fields[8] {
		case "min":
			seconds = remaining * 60
		case "sec":
			seconds = remaining
		}
	}

	present := percent >= 0
	if batteryFlag != apmBatteryFlagUnset && batteryFlag&apmBatteryFlagNone != 0 {
		present = false
	}

	return powerinfo.Reading{
		Present:   present,
		Percent:   percent,
		Seconds:   seconds,
		Charging:  batteryStatus == apmBatteryCharging,
		OnACPower: acLine == apmACOnline,
	}, nil
}

func parseHexByte(s string) (uint8, error) {
	v, err := strconv.ParseUint(strings.TrimPrefix(s, "0x"), 16, 8)
	if err != nil {
		return 0, err
	}
	return uint8(v), nil
}
