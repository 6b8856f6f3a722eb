//go:build darwin && amd64

package smc

// Intel keys. Only keyBatteryCharge has been checked on real hardware.
const (
	keyACPower       = "AC-W"
	keyChargeInhibit = "CH0B"
	keyAdapterOff    = "CH0K"
	keyBatteryCharge = "BBIF"
)
