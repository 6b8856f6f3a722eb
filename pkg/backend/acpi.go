package backend

import (
	"bufio"
	"context"
	"math"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/distatus/battery"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/battstat/pkg/powerinfo"
)

const (
	defaultPowerSupplyPath = "/sys/class/power_supply"
	defaultACPIDSocketPath = "/var/run/acpid.socket"

	acpiSocketWarning = "Can't open ACPI events socket, falling back to polling."
)

// ACPI reads the Linux ACPI power supply interface and listens on the
// acpid event socket. While the socket is up, reads are served from a
// cache that is refreshed on power events and every DefaultRefreshEvery
// reads. Without the socket every read queries the kernel, and the
// socket is reopened opportunistically.
//
// All batteries are folded into one reading.
type ACPI struct {
	powerSupplyPath string
	socketPath      string
	getBatteries    func() ([]*battery.Battery, error)
	dial            func(path string) (net.Conn, error)

	mu      sync.Mutex
	refresh *refresher
	cached  powerinfo.Reading
	warning string
	conn    net.Conn
	gen     int
	closed  bool

	events    chan struct{}
	pendingMu sync.Mutex
	// powerEvent is set when a battery or adaptor event arrived since the
	// last HandleEvent. Other acpid events are not kept.
	powerEvent bool
	hangup     bool
}

var (
	_ EventDriven = &ACPI{}
	_ Poller      = &ACPI{}
	_ Warner      = &ACPI{}
)

// NewACPI returns an ACPI backend for the standard Linux paths.
func NewACPI() *ACPI {
	return &ACPI{
		powerSupplyPath: defaultPowerSupplyPath,
		socketPath:      defaultACPIDSocketPath,
		getBatteries:    battery.GetAll,
		dial: func(path string) (net.Conn, error) {
			return net.Dial("unix", path)
		},
		refresh: newRefresher(DefaultRefreshEvery),
		events:  make(chan struct{}, 1),
	}
}

func (a *ACPI) Name() string { return "acpi" }

func (a *ACPI) Init(_ context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, err := os.Stat(a.powerSupplyPath); err != nil {
		return pkgerrors.Wrapf(ErrUnavailable, "acpi: %v", err)
	}

	r, err := a.query()
	if err != nil {
		return pkgerrors.Wrapf(ErrUnavailable, "acpi: %v", err)
	}
	a.cached = r

	if err := a.openEvents(); err != nil {
		logrus.WithFields(logrus.Fields{
			"socket": a.socketPath,
			"error":  err,
		}).Info("ACPI event socket unavailable, polling instead")
		a.warning = acpiSocketWarning
		a.refresh.pollFallback()
		return nil
	}

	a.refresh.eventDriven()
	return nil
}

func (a *ACPI) Read(_ context.Context) (powerinfo.CompositeStatus, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return powerinfo.CompositeStatus{}, pkgerrors.New("acpi backend is closed")
	}

	if a.refresh.state == statePollFallback {
		if err := a.openEvents(); err == nil {
			logrus.WithField("socket", a.socketPath).Info("ACPI event socket reopened")
			a.refresh.eventDriven()
		}
	}

	if a.refresh.due() {
		r, err := a.query()
		if err != nil {
			a.refresh.invalidate()
			return powerinfo.CompositeStatus{}, err
		}
		a.cached = r
	}

	return powerinfo.FromReading(a.cached), nil
}

func (a *ACPI) Events() <-chan struct{} { return a.events }

func (a *ACPI) HandleEvent() (bool, error) {
	a.pendingMu.Lock()
	relevant := a.powerEvent
	hangup := a.hangup
	a.powerEvent = false
	a.hangup = false
	a.pendingMu.Unlock()

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return false, nil
	}

	if hangup {
		logrus.WithField("socket", a.socketPath).Warn("ACPI event socket closed, falling back to polling")
		a.closeConn()
		a.refresh.pollFallback()
		return false, nil
	}

	if !relevant {
		return false, nil
	}

	r, err := a.query()
	if err != nil {
		a.refresh.invalidate()
		return false, err
	}
	changed := r != a.cached
	a.cached = r

	return changed, nil
}

// NeedsPolling is always true: even with a live event socket the cache
// must be refreshed periodically.
func (a *ACPI) NeedsPolling() bool { return true }

func (a *ACPI) Warning() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.warning
}

func (a *ACPI) Composite() bool { return false }

func (a *ACPI) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.closed = true
	a.closeConn()
	return nil
}

// openEvents connects to acpid. Must be called with a.mu held.
func (a *ACPI) openEvents() error {
	if a.dial == nil {
		return pkgerrors.New("no event socket configured")
	}

	conn, err := a.dial(a.socketPath)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to connect to %s", a.socketPath)
	}

	a.gen++
	a.conn = conn
	go a.listen(conn, a.gen)

	return nil
}

// closeConn must be called with a.mu held.
func (a *ACPI) closeConn() {
	if a.conn == nil {
		return
	}
	if err := a.conn.Close(); err != nil {
		logrus.Debugf("failed to close ACPI event socket: %v", err)
	}
	a.conn = nil
	// Hangups of the old connection are no longer interesting.
	a.gen++
}

func (a *ACPI) listen(conn net.Conn, gen int) {
	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		a.push(gen, scanner.Text(), false)
	}
	if err := scanner.Err(); err != nil {
		logrus.Debugf("ACPI event socket read failed: %v", err)
	}
	a.push(gen, "", true)
}

func (a *ACPI) push(gen int, line string, hangup bool) {
	a.mu.Lock()
	current := gen == a.gen && !a.closed
	a.mu.Unlock()
	if !current {
		return
	}

	if !hangup {
		logrus.WithField("event", line).Trace("ACPI event received")
		if !isPowerEvent(line) {
			return
		}
	}

	a.pendingMu.Lock()
	if hangup {
		a.hangup = true
	} else {
		a.powerEvent = true
	}
	a.pendingMu.Unlock()

	select {
	case a.events <- struct{}{}:
	default:
	}
}

// isPowerEvent reports whether an acpid event line concerns batteries or
// AC adaptors, e.g. "ac_adapter ACPI0003:00 00000080 00000001".
func isPowerEvent(line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	class := fields[0]
	return strings.HasPrefix(class, "ac_adapter") || strings.HasPrefix(class, "battery")
}

// query reads all batteries and adaptors and folds them into one reading.
// Must be called with a.mu held.
func (a *ACPI) query() (powerinfo.Reading, error) {
	batteries, err := a.getBatteries()
	// A battery that failed is skipped rather than failing the whole read.
	errs, partialErrs := err.(battery.Errors)
	if err != nil && !partialErrs {
		return powerinfo.Reading{}, pkgerrors.Wrap(err, "failed to read ACPI batteries")
	}

	var (
		count                 int
		current, full, rate   float64
		charging, discharging bool
	)
	for i, bat := range batteries {
		if bat == nil || (partialErrs && i < len(errs) && !usableBattery(errs[i])) {
			continue
		}
		count++
		current += bat.Current
		full += bat.Full
		rate += math.Abs(bat.ChargeRate)

		switch bat.State {
		case battery.Charging:
			charging = true
		case battery.Discharging:
			discharging = true
		}
	}

	onACPower, found := a.adaptorOnline()
	if !found {
		onACPower = !discharging
	}

	r := powerinfo.Reading{
		Percent:   -1,
		Seconds:   -1,
		OnACPower: onACPower,
	}
	if count == 0 || full <= 0 {
		return r, nil
	}

	r.Present = true
	r.Percent = int(math.Floor(100*current/full + 0.5))
	r.Charging = charging && !discharging

	if rate > 0 {
		switch {
		case discharging:
			r.Seconds = int(3600 * current / rate)
		case charging:
			r.Seconds = int(3600 * math.Max(full-current, 0) / rate)
		}
	}

	logrus.WithFields(logrus.Fields{
		"batteries": count,
		"percent":   r.Percent,
		"seconds":   r.Seconds,
		"charging":  r.Charging,
		"onACPower": r.OnACPower,
	}).Trace("ACPI status read")

	return r, nil
}

// usableBattery reports whether a battery's charge can still be trusted
// despite err.
func usableBattery(err error) bool {
	switch e := err.(type) {
	case nil:
		return true
	case battery.ErrPartial:
		return e.Current == nil && e.Full == nil
	case *battery.ErrPartial:
		return e.Current == nil && e.Full == nil
	}
	return false
}

// adaptorOnline looks for mains-class power supplies. found is false if
// the machine exposes none.
func (a *ACPI) adaptorOnline() (online, found bool) {
	entries, err := os.ReadDir(a.powerSupplyPath)
	if err != nil {
		return false, false
	}

	for _, entry := range entries {
		dir := filepath.Join(a.powerSupplyPath, entry.Name())
		typ, err := os.ReadFile(filepath.Join(dir, "type"))
		if err != nil {
			continue
		}
		switch strings.TrimSpace(string(typ)) {
		case "Mains", "USB", "USB_PD":
		default:
			continue
		}

		b, err := os.ReadFile(filepath.Join(dir, "online"))
		if err != nil {
			continue
		}
		found = true
		if strings.TrimSpace(string(b)) == "1" {
			online = true
		}
	}

	return online, found
}
