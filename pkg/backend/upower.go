package backend

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/battstat/pkg/powerinfo"
)

const (
	upowerService     = "org.freedesktop.UPower"
	upowerPath        = dbus.ObjectPath("/org/freedesktop/UPower")
	upowerIface       = "org.freedesktop.UPower"
	upowerDeviceIface = "org.freedesktop.UPower.Device"
	propertiesIface   = "org.freedesktop.DBus.Properties"

	sigDeviceAdded       = upowerIface + ".DeviceAdded"
	sigDeviceRemoved     = upowerIface + ".DeviceRemoved"
	sigDeviceChanged     = upowerIface + ".DeviceChanged"
	sigPropertiesChanged = propertiesIface + ".PropertiesChanged"
)

// UPower device types.
const (
	upDeviceLinePower = 1
	upDeviceBattery   = 2
)

// UPower device states.
const (
	upStateUnknown = iota
	upStateCharging
	upStateDischarging
	upStateEmpty
	upStateFullyCharged
	upStatePendingCharge
	upStatePendingDischarge
)

const (
	// maxPendingSignals bounds the signals queued between two HandleEvent
	// calls. Past it the queue is dropped and every device is re-read.
	maxPendingSignals = 64
	// busCallTimeout bounds the bus calls made while handling signals.
	busCallTimeout = 5 * time.Second
)

// upowerBus is the part of the system bus the UPower backend talks to.
// The connection must outlive the context it was dialed with.
type upowerBus interface {
	EnumerateDevices(ctx context.Context) ([]dbus.ObjectPath, error)
	DeviceProperties(ctx context.Context, path dbus.ObjectPath) (map[string]dbus.Variant, error)
	// Signals is closed when the connection goes away.
	Signals() <-chan *dbus.Signal
	Close() error
}

// UPower tracks every battery and line power device known to the UPower
// daemon and keeps them current from bus signals. It is the only backend
// that tells individual batteries apart.
type UPower struct {
	dial func(ctx context.Context) (upowerBus, error)

	// handleMu serializes HandleEvent and guards bus.
	handleMu sync.Mutex
	bus      upowerBus

	// Device records are only written by Init and HandleEvent. Each update
	// replaces a whole record.
	mu        sync.RWMutex
	batteries map[dbus.ObjectPath]powerinfo.BatteryDevice
	adaptors  map[dbus.ObjectPath]powerinfo.AdaptorDevice

	events    chan struct{}
	pendingMu sync.Mutex
	pending   []*dbus.Signal
	// gen counts connections. Signals from an older connection are ignored.
	gen uint64
	// overflowed is set when signals were dropped. All devices are
	// re-read on the next HandleEvent.
	overflowed bool
	// lost is set when the signal channel closed. The bus is dialed again
	// on the next HandleEvent or Read.
	lost bool

	done      chan struct{}
	closeOnce sync.Once
}

var _ EventDriven = &UPower{}

// NewUPower returns a backend talking to UPower on the system bus.
func NewUPower() *UPower {
	return newUPower(dialSystemBus)
}

func newUPower(dial func(ctx context.Context) (upowerBus, error)) *UPower {
	return &UPower{
		dial:      dial,
		batteries: make(map[dbus.ObjectPath]powerinfo.BatteryDevice),
		adaptors:  make(map[dbus.ObjectPath]powerinfo.AdaptorDevice),
		events:    make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
}

func (u *UPower) Name() string { return "upower" }

// Init connects to UPower and loads every device. ctx bounds the setup
// calls only; the connection stays up after ctx is done.
func (u *UPower) Init(ctx context.Context) error {
	if err := u.connect(ctx); err != nil {
		return pkgerrors.Wrapf(ErrUnavailable, "upower: %v", err)
	}

	u.mu.RLock()
	logrus.WithFields(logrus.Fields{
		"batteries": len(u.batteries),
		"adaptors":  len(u.adaptors),
	}).Debug("UPower devices enumerated")
	u.mu.RUnlock()

	return nil
}

// connect dials the bus, loads every device and starts forwarding
// signals.
func (u *UPower) connect(ctx context.Context) error {
	bus, err := u.dial(ctx)
	if err != nil {
		return err
	}

	paths, err := bus.EnumerateDevices(ctx)
	if err != nil {
		_ = bus.Close()
		return pkgerrors.Wrap(err, "failed to enumerate devices")
	}
	u.bus = bus
	u.reload(ctx, paths)

	u.pendingMu.Lock()
	u.gen++
	gen := u.gen
	u.pendingMu.Unlock()

	go u.pump(gen, bus.Signals())

	return nil
}

// Read returns the composite of the cached device records. If the bus
// connection was lost it is re-established first, and an error is
// returned while that fails.
func (u *UPower) Read(_ context.Context) (powerinfo.CompositeStatus, error) {
	u.pendingMu.Lock()
	lost := u.lost
	u.pendingMu.Unlock()

	if lost {
		if _, err := u.HandleEvent(); err != nil {
			return powerinfo.CompositeStatus{}, err
		}
	}

	return powerinfo.Compute(u.snapshot()), nil
}

func (u *UPower) Events() <-chan struct{} { return u.events }

func (u *UPower) HandleEvent() (bool, error) {
	u.handleMu.Lock()
	defer u.handleMu.Unlock()

	u.pendingMu.Lock()
	signals, overflowed, lost := u.pending, u.overflowed, u.lost
	u.pending, u.overflowed, u.lost = nil, false, false
	u.pendingMu.Unlock()

	if u.isClosed() || (len(signals) == 0 && !overflowed && !lost) {
		return false, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), busCallTimeout)
	defer cancel()

	before := powerinfo.Compute(u.snapshot())

	var err error
	switch {
	case lost:
		err = u.reconnect(ctx)
	case overflowed:
		logrus.Debug("UPower signal queue overflowed, re-reading all devices")
		err = u.reloadAll(ctx)
	default:
		err = u.handleSignals(ctx, signals)
	}

	after := powerinfo.Compute(u.snapshot())

	return before != after, err
}

// handleSignals applies signals in order and returns the first error.
func (u *UPower) handleSignals(ctx context.Context, signals []*dbus.Signal) error {
	var firstErr error
	for _, sig := range signals {
		if err := u.handleSignal(ctx, sig); err != nil {
			logrus.WithFields(logrus.Fields{
				"signal": sig.Name,
				"path":   sig.Path,
				"error":  err,
			}).Debug("failed to handle UPower signal")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (u *UPower) reconnect(ctx context.Context) error {
	if u.bus != nil {
		_ = u.bus.Close()
		u.bus = nil
	}

	if err := u.connect(ctx); err != nil {
		u.pendingMu.Lock()
		u.lost = true
		u.pendingMu.Unlock()
		logrus.Warnf("failed to reconnect to UPower: %v", err)
		return pkgerrors.Wrap(err, "upower: bus connection lost")
	}

	logrus.Info("reconnected to UPower")
	return nil
}

func (u *UPower) reloadAll(ctx context.Context) error {
	paths, err := u.bus.EnumerateDevices(ctx)
	if err != nil {
		return pkgerrors.Wrap(err, "failed to enumerate devices")
	}
	u.reload(ctx, paths)
	return nil
}

// reload replaces all device records with the devices at paths. A device
// that cannot be read keeps its previous record.
func (u *UPower) reload(ctx context.Context, paths []dbus.ObjectPath) {
	batteries := make(map[dbus.ObjectPath]powerinfo.BatteryDevice)
	adaptors := make(map[dbus.ObjectPath]powerinfo.AdaptorDevice)

	for _, path := range paths {
		b, a, err := u.loadDevice(ctx, path)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"device": path,
				"error":  err,
			}).Warn("failed to read UPower device")

			u.mu.RLock()
			if old, ok := u.batteries[path]; ok {
				batteries[path] = old
			}
			if old, ok := u.adaptors[path]; ok {
				adaptors[path] = old
			}
			u.mu.RUnlock()
			continue
		}
		if b != nil {
			batteries[path] = *b
		}
		if a != nil {
			adaptors[path] = *a
		}
	}

	u.mu.Lock()
	u.batteries = batteries
	u.adaptors = adaptors
	u.mu.Unlock()
}

func (u *UPower) Composite() bool { return true }

func (u *UPower) Close() error {
	var err error
	u.closeOnce.Do(func() {
		close(u.done)

		u.handleMu.Lock()
		defer u.handleMu.Unlock()
		if u.bus != nil {
			err = u.bus.Close()
		}
	})
	return err
}

func (u *UPower) isClosed() bool {
	select {
	case <-u.done:
		return true
	default:
		return false
	}
}

func (u *UPower) pump(gen uint64, signals <-chan *dbus.Signal) {
	for {
		select {
		case <-u.done:
			return
		case sig, ok := <-signals:
			if !ok {
				u.hangup(gen)
				return
			}
			u.enqueue(gen, sig)
		}
	}
}

// hangup marks the connection of generation gen as lost.
func (u *UPower) hangup(gen uint64) {
	if u.isClosed() {
		return
	}

	u.pendingMu.Lock()
	if gen != u.gen {
		u.pendingMu.Unlock()
		return
	}
	u.lost = true
	u.pending = nil
	u.pendingMu.Unlock()

	logrus.Warn("UPower signal channel closed, reconnecting on next read")
	u.notify()
}

// enqueue queues a signal for HandleEvent.
func (u *UPower) enqueue(gen uint64, sig *dbus.Signal) {
	u.pendingMu.Lock()
	switch {
	case gen != u.gen:
		u.pendingMu.Unlock()
		return
	case u.overflowed || u.lost:
		// Everything is re-read anyway.
	case len(u.pending) >= maxPendingSignals:
		u.pending = nil
		u.overflowed = true
	default:
		u.pending = append(u.pending, sig)
	}
	u.pendingMu.Unlock()

	u.notify()
}

func (u *UPower) notify() {
	select {
	case u.events <- struct{}{}:
	default:
	}
}

func (u *UPower) handleSignal(ctx context.Context, sig *dbus.Signal) error {
	logrus.WithFields(logrus.Fields{
		"signal": sig.Name,
		"path":   sig.Path,
	}).Trace("UPower signal received")

	switch sig.Name {
	case sigDeviceAdded, sigDeviceChanged:
		path, ok := signalDevicePath(sig)
		if !ok {
			return pkgerrors.Errorf("malformed %s signal", sig.Name)
		}
		return u.refreshDevice(ctx, path)
	case sigDeviceRemoved:
		path, ok := signalDevicePath(sig)
		if !ok {
			return pkgerrors.Errorf("malformed %s signal", sig.Name)
		}
		u.removeDevice(path)
	case sigPropertiesChanged:
		if len(sig.Body) == 0 {
			return nil
		}
		if iface, _ := sig.Body[0].(string); iface != upowerDeviceIface {
			return nil
		}
		// Aggregate devices such as the display device also emit this.
		if !u.known(sig.Path) {
			return nil
		}
		return u.refreshDevice(ctx, sig.Path)
	}

	return nil
}

func signalDevicePath(sig *dbus.Signal) (dbus.ObjectPath, bool) {
	if len(sig.Body) == 0 {
		return "", false
	}
	switch v := sig.Body[0].(type) {
	case dbus.ObjectPath:
		return v, v.IsValid()
	case string:
		p := dbus.ObjectPath(v)
		return p, p.IsValid()
	}
	return "", false
}

func (u *UPower) known(path dbus.ObjectPath) bool {
	u.mu.RLock()
	defer u.mu.RUnlock()

	_, isBattery := u.batteries[path]
	_, isAdaptor := u.adaptors[path]
	return isBattery || isAdaptor
}

// refreshDevice re-reads all properties of a device and replaces its
// record.
func (u *UPower) refreshDevice(ctx context.Context, path dbus.ObjectPath) error {
	b, a, err := u.loadDevice(ctx, path)
	if err != nil {
		return err
	}

	u.mu.Lock()
	defer u.mu.Unlock()

	delete(u.batteries, path)
	delete(u.adaptors, path)
	if b != nil {
		u.batteries[path] = *b
	}
	if a != nil {
		u.adaptors[path] = *a
	}

	return nil
}

// loadDevice reads a device. Both results are nil for devices that are
// not tracked, such as peripheral batteries.
func (u *UPower) loadDevice(ctx context.Context, path dbus.ObjectPath) (*powerinfo.BatteryDevice, *powerinfo.AdaptorDevice, error) {
	props, err := u.bus.DeviceProperties(ctx, path)
	if err != nil {
		return nil, nil, pkgerrors.Wrapf(err, "failed to get properties of %s", path)
	}

	switch variantUint(props["Type"]) {
	case upDeviceBattery:
		// Peripheral batteries (mice, keyboards) do not power the machine.
		if v, ok := props["PowerSupply"]; ok && !variantBool(v) {
			return nil, nil, nil
		}
		b := batteryFromProperties(path, props)
		return &b, nil, nil
	case upDeviceLinePower:
		return nil, &powerinfo.AdaptorDevice{
			ID:      string(path),
			Present: variantBool(props["Online"]),
		}, nil
	}

	return nil, nil, nil
}

func (u *UPower) removeDevice(path dbus.ObjectPath) {
	u.mu.Lock()
	defer u.mu.Unlock()

	delete(u.batteries, path)
	delete(u.adaptors, path)
}

// snapshot copies the device records in a stable order.
func (u *UPower) snapshot() ([]powerinfo.BatteryDevice, []powerinfo.AdaptorDevice) {
	u.mu.RLock()
	defer u.mu.RUnlock()

	batteries := make([]powerinfo.BatteryDevice, 0, len(u.batteries))
	for _, b := range u.batteries {
		batteries = append(batteries, b)
	}
	sort.Slice(batteries, func(i, j int) bool { return batteries[i].ID < batteries[j].ID })

	adaptors := make([]powerinfo.AdaptorDevice, 0, len(u.adaptors))
	for _, a := range u.adaptors {
		adaptors = append(adaptors, a)
	}
	sort.Slice(adaptors, func(i, j int) bool { return adaptors[i].ID < adaptors[j].ID })

	return batteries, adaptors
}

// batteryFromProperties maps UPower battery properties. Energies are
// reported in Wh and rates in W; they are stored as mWh and mW.
func batteryFromProperties(path dbus.ObjectPath, props map[string]dbus.Variant) powerinfo.BatteryDevice {
	b := powerinfo.BatteryDevice{
		ID:               string(path),
		Present:          variantBool(props["IsPresent"]),
		CurrentCharge:    milli(variantFloat(props["Energy"])),
		FullCapacity:     milli(variantFloat(props["EnergyFull"])),
		CriticalCapacity: milli(variantFloat(props["EnergyEmpty"])),
		Rate:             milli(math.Abs(variantFloat(props["EnergyRate"]))),
	}

	switch variantUint(props["State"]) {
	case upStateCharging:
		b.Charging = true
		b.RemainingTime = time.Duration(variantInt(props["TimeToFull"])) * time.Second
	case upStateDischarging:
		b.Discharging = true
		b.RemainingTime = time.Duration(variantInt(props["TimeToEmpty"])) * time.Second
	}
	if b.RemainingTime < 0 {
		b.RemainingTime = 0
	}

	return b
}

func milli(v float64) uint64 {
	if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return uint64(math.Floor(v*1000 + 0.5))
}

func variantFloat(v dbus.Variant) float64 {
	switch x := v.Value().(type) {
	case float64:
		return x
	case float32:
		return float64(x)
	case int64:
		return float64(x)
	case uint64:
		return float64(x)
	case int32:
		return float64(x)
	case uint32:
		return float64(x)
	}
	return 0
}

func variantUint(v dbus.Variant) uint32 {
	switch x := v.Value().(type) {
	case uint32:
		return x
	case int32:
		if x >= 0 {
			return uint32(x)
		}
	case uint64:
		return uint32(x)
	case int64:
		if x >= 0 {
			return uint32(x)
		}
	}
	return 0
}

func variantInt(v dbus.Variant) int64 {
	switch x := v.Value().(type) {
	case int64:
		return x
	case int32:
		return int64(x)
	case uint32:
		return int64(x)
	case uint64:
		return int64(x)
	}
	return 0
}

func variantBool(v dbus.Variant) bool {
	b, _ := v.Value().(bool)
	return b
}

// systemBus is a private connection to the system bus.
type systemBus struct {
	conn    *dbus.Conn
	signals chan *dbus.Signal
}

func dialSystemBus(ctx context.Context) (upowerBus, error) {
	// ctx only bounds the handshake below. A connection made with
	// dbus.WithContext would be closed once ctx is done.
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to connect to system bus")
	}

	var hasOwner bool
	err = conn.BusObject().CallWithContext(ctx, "org.freedesktop.DBus.NameHasOwner", 0, upowerService).Store(&hasOwner)
	if err != nil {
		_ = conn.Close()
		return nil, pkgerrors.Wrapf(err, "failed to look up %s", upowerService)
	}
	if !hasOwner {
		_ = conn.Close()
		return nil, pkgerrors.Errorf("%s is not running", upowerService)
	}

	matches := [][]dbus.MatchOption{
		{
			dbus.WithMatchSender(upowerService),
			dbus.WithMatchObjectPath(upowerPath),
			dbus.WithMatchInterface(upowerIface),
		},
		{
			dbus.WithMatchSender(upowerService),
			dbus.WithMatchInterface(propertiesIface),
			dbus.WithMatchMember("PropertiesChanged"),
		},
	}
	for _, m := range matches {
		if err := conn.AddMatchSignal(m...); err != nil {
			_ = conn.Close()
			return nil, pkgerrors.Wrap(err, "failed to subscribe to UPower signals")
		}
	}

	b := &systemBus{
		conn:    conn,
		signals: make(chan *dbus.Signal, 32),
	}
	conn.Signal(b.signals)

	return b, nil
}

func (b *systemBus) EnumerateDevices(ctx context.Context) ([]dbus.ObjectPath, error) {
	var paths []dbus.ObjectPath
	err := b.conn.Object(upowerService, upowerPath).CallWithContext(ctx, upowerIface+".EnumerateDevices", 0).Store(&paths)
	if err != nil {
		return nil, err
	}
	return paths, nil
}

func (b *systemBus) DeviceProperties(ctx context.Context, path dbus.ObjectPath) (map[string]dbus.Variant, error) {
	props := map[string]dbus.Variant{}
	err := b.conn.Object(upowerService, path).CallWithContext(ctx, propertiesIface+".GetAll", 0, upowerDeviceIface).Store(&props)
	if err != nil {
		return nil, err
	}
	return props, nil
}

func (b *systemBus) Signals() <-chan *dbus.Signal { return b.signals }

func (b *systemBus) Close() error {
	b.conn.RemoveSignal(b.signals)
	return b.conn.Close()
}
