package powerinfo

import (
	"math"
	"time"
)

// Compute combines the readings of all known batteries and adaptors into
// one CompositeStatus. It never modifies its arguments.
//
// Adaptor records are accepted for completeness but AC state is derived
// from the batteries alone: any discharging battery means the machine is
// running on battery.
//
// The returned percent is not clamped. Pass the result through Normalize
// before handing it to a caller.
func Compute(batteries []BatteryDevice, _ []AdaptorDevice) CompositeStatus {
	var (
		present                        int
		currentTotal, fullTotal, rateT float64
		charging                       bool
		onACPower                      = true
		last                           BatteryDevice
	)

	for _, b := range batteries {
		if !b.Present {
			continue
		}
		present++
		last = b

		currentTotal += float64(b.CurrentCharge)
		fullTotal += float64(b.FullCapacity)
		rateT += float64(b.Rate)

		if b.Charging {
			charging = true
		}
		if b.Discharging {
			onACPower = false
		}
	}

	if present == 0 {
		return NotPresent()
	}

	// Charging without AC power cannot happen, and an empty capacity
	// cannot give a percentage. Both are glitches between reads.
	if fullTotal <= 0 || (charging && !onACPower) {
		return NotPresent()
	}

	status := CompositeStatus{
		Present:   true,
		OnACPower: onACPower,
		Charging:  charging,
		Percent:   roundHalfUp(100 * currentTotal / fullTotal),
		Minutes:   -1,
	}

	switch {
	case present == 1:
		// The firmware estimate of a lone battery already accounts for
		// non-linear discharge curves.
		status.Minutes = durationToMinutes(last.RemainingTime)
	case !onACPower && rateT != 0:
		status.Minutes = roundHalfUp(60 * currentTotal / rateT)
	case charging && rateT != 0:
		// Very approximate with more than two batteries: assumes each one
		// charges at an equal share of the aggregate rate.
		toFull := math.Max(fullTotal-currentTotal, 0)
		status.Minutes = roundHalfUp(60 * toFull / rateT)
	}

	return status
}

// durationToMinutes converts a remaining time estimate to whole minutes,
// rounding half up. Zero means unknown and maps to -1.
func durationToMinutes(d time.Duration) int {
	if d <= 0 {
		return -1
	}
	return roundHalfUp(d.Seconds() / 60)
}

func roundHalfUp(v float64) int {
	return int(math.Floor(v + 0.5))
}
