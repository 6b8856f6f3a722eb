package powerinfo

import "time"

// BatteryState represents the charging state of the battery.
type BatteryState int

const (
	// Unknown indicates no battery is present or the state cannot be told.
	Unknown BatteryState = iota
	// Discharging indicates the battery is discharging.
	Discharging
	// Charging indicates the battery is charging.
	Charging
	// Full indicates the battery is full.
	Full
	// NotCharging indicates the machine is on AC but the battery is idle.
	NotCharging
)

func (s BatteryState) String() string {
	switch s {
	case Discharging:
		return "discharging"
	case Charging:
		return "charging"
	case Full:
		return "full"
	case NotCharging:
		return "notCharging"
	default:
		return "unknown"
	}
}

// BatteryDevice is a snapshot of one physical battery bay.
// Units of CurrentCharge, FullCapacity, LowCapacity, CriticalCapacity
// and Rate are backend-defined (mWh and mW for the UPower backend) and
// must only be compared within the same device.
type BatteryDevice struct {
	ID               string
	Present          bool
	CurrentCharge    uint64
	FullCapacity     uint64
	LowCapacity      uint64
	CriticalCapacity uint64
	// RemainingTime is the backend's estimate of time to empty or to
	// full. Zero means unknown.
	RemainingTime time.Duration
	Charging      bool
	Discharging   bool
	Rate          uint64
}

// AdaptorDevice is a snapshot of one AC adaptor.
type AdaptorDevice struct {
	ID      string
	Present bool
}

// CompositeStatus is the single normalized battery reading handed to
// callers. Minutes is -1 when the remaining time is unknown.
type CompositeStatus struct {
	Present   bool `json:"present"`
	OnACPower bool `json:"onACPower"`
	Charging  bool `json:"charging"`
	Percent   int  `json:"percent"`
	Minutes   int  `json:"minutes"`
}

// NotPresent returns the status reported when there is no usable
// battery. No battery is treated as running on mains.
func NotPresent() CompositeStatus {
	return CompositeStatus{
		Present:   false,
		OnACPower: true,
		Charging:  false,
		Percent:   0,
		Minutes:   -1,
	}
}

// State derives a display state from the status.
func (s CompositeStatus) State() BatteryState {
	switch {
	case !s.Present:
		return Unknown
	case s.Charging:
		return Charging
	case !s.OnACPower:
		return Discharging
	case s.Percent >= 100:
		return Full
	default:
		return NotCharging
	}
}

// Reading is the single pre-aggregated reading reported by backends
// that cannot tell individual batteries apart.
type Reading struct {
	Present bool
	// Percent is 0-100, or -1 if the backend cannot tell.
	Percent int
	// Seconds is the time to empty or to full. Zero or negative means
	// unknown.
	Seconds   int
	Charging  bool
	OnACPower bool
}
