//go:build darwin

package smc

import (
	"github.com/sirupsen/logrus"
)

// Power is one reading of the SMC power keys.
type Power struct {
	// Charge is the battery charge in percent.
	Charge int
	// PluggedIn is true when an adapter is connected.
	PluggedIn bool
	// ChargingAllowed is false when charging is inhibited, e.g. by a
	// charge limiter.
	ChargingAllowed bool
	// AdapterEnabled is false when the machine is made to run on
	// battery while plugged in.
	AdapterEnabled bool
}

// OnACPower reports whether the machine draws from the adapter.
func (p Power) OnACPower() bool {
	return p.PluggedIn && p.AdapterEnabled
}

// Charging reports whether the battery is taking charge.
func (p Power) Charging() bool {
	return p.OnACPower() && p.ChargingAllowed && p.Charge < 100
}

// BatteryCharge reads only the charge key. Machines without a battery
// fail here.
func (c *AppleSMC) BatteryCharge() (int, error) {
	b, err := c.readByte(keyBatteryCharge)
	return int(b), err
}

// ReadPower reads all power keys. A missing adapter key is treated as an
// enabled adapter since not every model has it.
func (c *AppleSMC) ReadPower() (Power, error) {
	charge, err := c.BatteryCharge()
	if err != nil {
		return Power{}, err
	}

	ac, err := c.readByte(keyACPower)
	if err != nil {
		return Power{}, err
	}

	inhibit, err := c.readByte(keyChargeInhibit)
	if err != nil {
		return Power{}, err
	}

	adapterEnabled := true
	if off, err := c.readByte(keyAdapterOff); err != nil {
		logrus.Debugf("adapter key unavailable: %v", err)
	} else {
		adapterEnabled = off == 0
	}

	return Power{
		Charge:          charge,
		PluggedIn:       int8(ac) > 0,
		ChargingAllowed: inhibit == 0,
		AdapterEnabled:  adapterEnabled,
	}, nil
}
