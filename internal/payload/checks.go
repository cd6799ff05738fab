package payload

import (
	"fmt"
	"iter"
)

const (
	minPlausibleMV = 2500
	maxPlausibleMV = 4500
	minPlausibleC  = -40
	maxPlausibleC  = 85

	lowBatteryMV = 3000
	minNormalC   = -10
	maxNormalC   = 50
)

// CheckIntegrity reports whether raw is long enough for its frame type.
// Generic frames only need to be non-empty.
func CheckIntegrity(raw []byte, port FramePort, opts ...Option) bool {
	if n := MinLength(port, opts...); n > 0 {
		return len(raw) >= n
	}
	return len(raw) > 0
}

// CheckPlausibility range-checks the decoded values. It never affects
// decoding; a generic result has nothing to check and is not plausible.
func CheckPlausibility(t Telemetry) bool {
	if t.Kind == KindGeneric {
		return false
	}
	if t.BatteryMillivolts < minPlausibleMV || t.BatteryMillivolts > maxPlausibleMV {
		return false
	}
	if t.TemperatureCelsius < minPlausibleC || t.TemperatureCelsius > maxPlausibleC {
		return false
	}
	if c := t.Coordinates; c != nil {
		if c.Latitude < -90 || c.Latitude > 90 || c.Longitude < -180 || c.Longitude > 180 {
			return false
		}
	}
	return true
}

// CheckConsistency reports whether the header carries the "position fixed"
// tag. It is a tag check, not a structural one.
func CheckConsistency(raw []byte) bool {
	return len(raw) > 0 && raw[0]&0x01 == 0x01
}

// Diagnostics yields human-readable warnings in a fixed order: length, then
// battery, then temperature. A short payload yields only the length warning.
// The sequence may be ranged over any number of times.
func Diagnostics(raw []byte, port FramePort, opts ...Option) iter.Seq[string] {
	o := buildOptions(opts)
	l, ok := lookupLayout(KindForPort(port), o.encoding)
	return func(yield func(string) bool) {
		if !ok {
			return
		}
		if len(raw) < l.minLen {
			yield(fmt.Sprintf("payload too short: %d bytes, at least %d required", len(raw), l.minLen))
			return
		}
		if mv := readUint(raw, l.battery); mv < lowBatteryMV {
			if !yield(fmt.Sprintf("low battery voltage: %.3fV, risk of failure", float64(mv)/1000)) {
				return
			}
		}
		if c := float64(readInt(raw, l.temperature)) / 100; c < minNormalC || c > maxNormalC {
			yield(fmt.Sprintf("temperature out of normal range: %.2f°C", c))
		}
	}
}
