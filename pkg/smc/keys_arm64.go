//go:build darwin && arm64

package smc

// Apple Silicon keys.
const (
	keyACPower       = "AC-W"
	keyChargeInhibit = "CH0B"
	keyAdapterOff    = "CH0I"
	keyBatteryCharge = "BUIC"
)
