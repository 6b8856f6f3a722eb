package backend

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charlie0129/battstat/pkg/powerinfo"
)

type fakeUPowerBus struct {
	mu      sync.Mutex
	devices map[dbus.ObjectPath]map[string]dbus.Variant
	failing map[dbus.ObjectPath]bool
	order   []dbus.ObjectPath
	signals chan *dbus.Signal
	closed  int
	hungUp  sync.Once
}

func newFakeUPowerBus() *fakeUPowerBus {
	return &fakeUPowerBus{
		devices: make(map[dbus.ObjectPath]map[string]dbus.Variant),
		failing: make(map[dbus.ObjectPath]bool),
		signals: make(chan *dbus.Signal, 8),
	}
}

func (b *fakeUPowerBus) put(path dbus.ObjectPath, props map[string]interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.devices[path]; !ok {
		b.order = append(b.order, path)
	}
	m := make(map[string]dbus.Variant, len(props))
	for k, v := range props {
		m[k] = dbus.MakeVariant(v)
	}
	b.devices[path] = m
}

func (b *fakeUPowerBus) EnumerateDevices(context.Context) ([]dbus.ObjectPath, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]dbus.ObjectPath(nil), b.order...), nil
}

func (b *fakeUPowerBus) DeviceProperties(_ context.Context, path dbus.ObjectPath) (map[string]dbus.Variant, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.failing[path] {
		return nil, errors.New("org.freedesktop.DBus.Error.UnknownObject")
	}
	props, ok := b.devices[path]
	if !ok {
		return nil, errors.New("org.freedesktop.DBus.Error.UnknownObject")
	}
	return props, nil
}

func (b *fakeUPowerBus) Signals() <-chan *dbus.Signal { return b.signals }

func (b *fakeUPowerBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed++
	return nil
}

// hangup closes the signal channel like a dropped connection does.
func (b *fakeUPowerBus) hangup() {
	b.hungUp.Do(func() { close(b.signals) })
}

func (b *fakeUPowerBus) closeCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

func batteryProps(energy, full, rate float64, state uint32, seconds int64) map[string]interface{} {
	p := map[string]interface{}{
		"Type":        uint32(upDeviceBattery),
		"PowerSupply": true,
		"IsPresent":   true,
		"Energy":      energy,
		"EnergyFull":  full,
		"EnergyEmpty": 0.0,
		"EnergyRate":  rate,
		"State":       state,
		"TimeToFull":  int64(0),
		"TimeToEmpty": int64(0),
	}
	switch state {
	case upStateCharging:
		p["TimeToFull"] = seconds
	case upStateDischarging:
		p["TimeToEmpty"] = seconds
	}
	return p
}

func linePowerProps(online bool) map[string]interface{} {
	return map[string]interface{}{
		"Type":        uint32(upDeviceLinePower),
		"PowerSupply": true,
		"Online":      online,
	}
}

const (
	bat0 = dbus.ObjectPath("/org/freedesktop/UPower/devices/battery_BAT0")
	bat1 = dbus.ObjectPath("/org/freedesktop/UPower/devices/battery_BAT1")
	ac   = dbus.ObjectPath("/org/freedesktop/UPower/devices/line_power_AC")
	ms   = dbus.ObjectPath("/org/freedesktop/UPower/devices/mouse_dev_1")
)

func newTestUPower(t *testing.T, bus *fakeUPowerBus) *UPower {
	t.Helper()
	u := newUPower(func(context.Context) (upowerBus, error) { return bus, nil })
	require.NoError(t, u.Init(context.Background()))
	t.Cleanup(func() { _ = u.Close() })
	return u
}

func deliver(t *testing.T, u *UPower, bus *fakeUPowerBus, sig *dbus.Signal) (bool, error) {
	t.Helper()
	bus.signals <- sig
	waitEvent(t, u.Events())
	return u.HandleEvent()
}

func TestUPowerInit(t *testing.T) {
	bus := newFakeUPowerBus()
	bus.put(ac, linePowerProps(false))
	bus.put(bat0, batteryProps(25, 50, 10, upStateDischarging, 1800))
	mouse := batteryProps(1, 2, 0, upStateDischarging, 0)
	mouse["PowerSupply"] = false
	bus.put(ms, mouse)

	u := newTestUPower(t, bus)
	assert.True(t, u.Composite())
	assert.Equal(t, "upower", u.Name())

	got, err := u.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, powerinfo.CompositeStatus{Present: true, Percent: 50, Minutes: 30}, got)

	batteries, adaptors := u.snapshot()
	assert.Len(t, batteries, 1)
	assert.Len(t, adaptors, 1)
	assert.Equal(t, uint64(25000), batteries[0].CurrentCharge)
	assert.Equal(t, uint64(10000), batteries[0].Rate)
}

func TestUPowerInitUnavailable(t *testing.T) {
	u := newUPower(func(context.Context) (upowerBus, error) {
		return nil, errors.New("org.freedesktop.UPower is not running")
	})
	assert.ErrorIs(t, u.Init(context.Background()), ErrUnavailable)
	assert.NoError(t, u.Close())
	assert.NoError(t, u.Close())
}

func TestUPowerTwoBatteries(t *testing.T) {
	bus := newFakeUPowerBus()
	bus.put(bat0, batteryProps(20, 50, 4, upStateDischarging, 5000))
	bus.put(bat1, batteryProps(30, 50, 6, upStateUnknown, 0))

	u := newTestUPower(t, bus)
	got, err := u.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, powerinfo.CompositeStatus{Present: true, Percent: 50, Minutes: 300}, got)
}

func TestUPowerSignals(t *testing.T) {
	bus := newFakeUPowerBus()
	bus.put(ac, linePowerProps(true))
	bus.put(bat0, batteryProps(40, 50, 5, upStateCharging, 600))
	u := newTestUPower(t, bus)

	got, _ := u.Read(context.Background())
	assert.Equal(t, powerinfo.CompositeStatus{Present: true, OnACPower: true, Charging: true, Percent: 80, Minutes: 10}, got)

	t.Run("properties changed on a known device", func(t *testing.T) {
		bus.put(bat0, batteryProps(45, 50, 5, upStateCharging, 300))
		changed, err := deliver(t, u, bus, &dbus.Signal{
			Path: bat0,
			Name: sigPropertiesChanged,
			Body: []interface{}{upowerDeviceIface, map[string]dbus.Variant{}, []string{}},
		})
		require.NoError(t, err)
		assert.True(t, changed)

		got, _ := u.Read(context.Background())
		assert.Equal(t, 90, got.Percent)
		assert.Equal(t, 5, got.Minutes)
	})

	t.Run("properties changed on another interface", func(t *testing.T) {
		changed, err := deliver(t, u, bus, &dbus.Signal{
			Path: bat0,
			Name: sigPropertiesChanged,
			Body: []interface{}{"org.freedesktop.UPower.KbdBacklight", map[string]dbus.Variant{}, []string{}},
		})
		require.NoError(t, err)
		assert.False(t, changed)
	})

	t.Run("device added", func(t *testing.T) {
		bus.put(bat1, batteryProps(5, 50, 5, upStateCharging, 0))
		changed, err := deliver(t, u, bus, &dbus.Signal{
			Path: upowerPath,
			Name: sigDeviceAdded,
			Body: []interface{}{bat1},
		})
		require.NoError(t, err)
		assert.True(t, changed)

		got, _ := u.Read(context.Background())
		assert.Equal(t, 50, got.Percent)
	})

	t.Run("device removed", func(t *testing.T) {
		changed, err := deliver(t, u, bus, &dbus.Signal{
			Path: upowerPath,
			Name: sigDeviceRemoved,
			Body: []interface{}{string(bat1)},
		})
		require.NoError(t, err)
		assert.True(t, changed)

		got, _ := u.Read(context.Background())
		assert.Equal(t, 90, got.Percent)
	})

	t.Run("failed refresh keeps the record", func(t *testing.T) {
		bus.mu.Lock()
		bus.failing[bat0] = true
		bus.mu.Unlock()
		defer func() {
			bus.mu.Lock()
			delete(bus.failing, bat0)
			bus.mu.Unlock()
		}()

		changed, err := deliver(t, u, bus, &dbus.Signal{
			Path: upowerPath,
			Name: sigDeviceChanged,
			Body: []interface{}{bat0},
		})
		assert.Error(t, err)
		assert.False(t, changed)

		got, _ := u.Read(context.Background())
		assert.True(t, got.Present)
		assert.Equal(t, 90, got.Percent)
	})

	t.Run("malformed signal", func(t *testing.T) {
		changed, err := deliver(t, u, bus, &dbus.Signal{
			Path: upowerPath,
			Name: sigDeviceAdded,
		})
		assert.Error(t, err)
		assert.False(t, changed)
	})
}

func TestUPowerHandleEventWithoutSignals(t *testing.T) {
	u := newTestUPower(t, newFakeUPowerBus())
	changed, err := u.HandleEvent()
	assert.NoError(t, err)
	assert.False(t, changed)

	got, err := u.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, powerinfo.NotPresent(), got)
}

func TestUPowerClose(t *testing.T) {
	bus := newFakeUPowerBus()
	u := newUPower(func(context.Context) (upowerBus, error) { return bus, nil })
	require.NoError(t, u.Init(context.Background()))

	require.NoError(t, u.Close())
	require.NoError(t, u.Close())
	assert.Equal(t, 1, bus.closed)
}

func TestUPowerOutlivesInitContext(t *testing.T) {
	first := newFakeUPowerBus()
	first.put(bat0, batteryProps(20, 50, 0, upStateUnknown, 0))
	second := newFakeUPowerBus()
	second.put(bat0, batteryProps(40, 50, 0, upStateUnknown, 0))

	var mu sync.Mutex
	dials := 0
	u := newUPower(func(ctx context.Context) (upowerBus, error) {
		mu.Lock()
		defer mu.Unlock()
		dials++
		if dials == 1 {
			// The connection drops once the dial context is done.
			go func() {
				<-ctx.Done()
				first.hangup()
			}()
			return first, nil
		}
		return second, nil
	})
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, u.Init(ctx))
	t.Cleanup(func() { _ = u.Close() })
	cancel()

	waitEvent(t, u.Events())
	changed, err := u.HandleEvent()
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, 1, first.closeCount())

	got, err := u.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 80, got.Percent)

	second.put(bat0, batteryProps(45, 50, 0, upStateUnknown, 0))
	changed, err = deliver(t, u, second, &dbus.Signal{
		Path: bat0,
		Name: sigPropertiesChanged,
		Body: []interface{}{upowerDeviceIface, map[string]dbus.Variant{}, []string{}},
	})
	require.NoError(t, err)
	assert.True(t, changed)

	got, err = u.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 90, got.Percent)

	// Late signals from the first connection are dropped.
	u.enqueue(1, &dbus.Signal{Path: bat0, Name: sigPropertiesChanged})
	u.pendingMu.Lock()
	assert.Empty(t, u.pending)
	u.pendingMu.Unlock()
}

func TestUPowerReconnectFailure(t *testing.T) {
	first := newFakeUPowerBus()
	first.put(bat0, batteryProps(20, 50, 0, upStateUnknown, 0))
	second := newFakeUPowerBus()
	second.put(bat0, batteryProps(30, 50, 0, upStateUnknown, 0))

	var mu sync.Mutex
	dials := 0
	available := false
	u := newUPower(func(context.Context) (upowerBus, error) {
		mu.Lock()
		defer mu.Unlock()
		dials++
		switch {
		case dials == 1:
			return first, nil
		case available:
			return second, nil
		}
		return nil, errors.New("org.freedesktop.UPower is not running")
	})
	require.NoError(t, u.Init(context.Background()))
	t.Cleanup(func() { _ = u.Close() })

	first.hangup()
	waitEvent(t, u.Events())

	_, err := u.HandleEvent()
	assert.Error(t, err)
	_, err = u.Read(context.Background())
	assert.Error(t, err)
	assert.Equal(t, 1, first.closeCount())

	mu.Lock()
	available = true
	mu.Unlock()

	got, err := u.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 60, got.Percent)

	changed, err := u.HandleEvent()
	assert.NoError(t, err)
	assert.False(t, changed)
}

func TestUPowerSignalOverflow(t *testing.T) {
	bus := newFakeUPowerBus()
	bus.put(bat0, batteryProps(20, 50, 0, upStateUnknown, 0))
	u := newTestUPower(t, bus)

	bus.put(bat0, batteryProps(25, 50, 0, upStateUnknown, 0))
	bus.put(bat1, batteryProps(50, 50, 0, upStateUnknown, 0))

	u.pendingMu.Lock()
	gen := u.gen
	u.pendingMu.Unlock()
	for i := 0; i < maxPendingSignals+10; i++ {
		u.enqueue(gen, &dbus.Signal{
			Path: bat0,
			Name: sigPropertiesChanged,
			Body: []interface{}{upowerDeviceIface, map[string]dbus.Variant{}, []string{}},
		})
	}

	u.pendingMu.Lock()
	assert.LessOrEqual(t, len(u.pending), maxPendingSignals)
	assert.True(t, u.overflowed)
	u.pendingMu.Unlock()

	waitEvent(t, u.Events())
	changed, err := u.HandleEvent()
	require.NoError(t, err)
	assert.True(t, changed)

	got, err := u.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 75, got.Percent)

	batteries, _ := u.snapshot()
	assert.Len(t, batteries, 2)
}

func TestMilli(t *testing.T) {
	tests := []struct {
		in   float64
		want uint64
	}{
		{0, 0},
		{-3, 0},
		{1.2506, 1251},
		{50, 50000},
	}
	for _, tt := range tests {
		if got := milli(tt.in); got != tt.want {
			t.Errorf("milli(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
