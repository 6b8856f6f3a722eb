package powerinfo

// Normalize clamps and sanitizes a status before it reaches a caller.
// Every status leaving this package's consumers passes through here,
// regardless of which backend produced it.
//
// After Normalize, Percent is always within [0, 100], a status is never
// charging at 100%, and a status without a battery is exactly NotPresent().
func Normalize(s CompositeStatus) CompositeStatus {
	if s.Percent < 0 {
		s.Percent = 0
		s.Present = false
	}
	if s.Percent > 100 {
		s.Percent = 100
	}

	if s.Percent == 100 {
		s.Charging = false
	}

	if s.Minutes < -1 {
		s.Minutes = -1
	}

	if !s.Present {
		return NotPresent()
	}

	return s
}

// FromReading converts the single reading of a non-composite backend.
// A percent of -1 means the charge is unknowable, in which case the
// battery cannot be reported as present. Seconds are truncated to whole
// minutes.
func FromReading(r Reading) CompositeStatus {
	if !r.Present || r.Percent < 0 {
		return NotPresent()
	}

	minutes := -1
	if r.Seconds > 0 {
		minutes = r.Seconds / 60
	}

	return CompositeStatus{
		Present:   true,
		OnACPower: r.OnACPower,
		Charging:  r.Charging,
		Percent:   r.Percent,
		Minutes:   minutes,
	}
}
