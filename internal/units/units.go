// Package units provides shared constants and validation for the display
// units accepted by the monitoring API
package units

import "math"

// Speed unit constants. Estimates are stored and computed in m/s.
const (
	MPS  = "mps"
	CMPS = "cmps"
	KMPH = "kmph"
)

// Angle unit constants. Headings are stored and computed in radians.
const (
	RAD = "rad"
	DEG = "deg"
)

// ValidSpeedUnits contains all valid speed unit values
var ValidSpeedUnits = []string{MPS, CMPS, KMPH}

// ValidAngleUnits contains all valid angle unit values
var ValidAngleUnits = []string{RAD, DEG}

// IsValidSpeedUnit checks if the given unit is a supported speed unit
func IsValidSpeedUnit(unit string) bool {
	for _, validUnit := range ValidSpeedUnits {
		if unit == validUnit {
			return true
		}
	}
	return false
}

// IsValidAngleUnit checks if the given unit is a supported angle unit
func IsValidAngleUnit(unit string) bool {
	for _, validUnit := range ValidAngleUnits {
		if unit == validUnit {
			return true
		}
	}
	return false
}

// ValidSpeedUnitsString returns a comma-separated list for error messages
func ValidSpeedUnitsString() string {
	return "mps, cmps, kmph"
}

// ConvertSpeed converts a speed from meters per second to the target units.
// Unknown units pass the value through unchanged.
func ConvertSpeed(speedMPS float64, targetUnits string) float64 {
	switch targetUnits {
	case CMPS:
		return speedMPS * 100
	case KMPH:
		return speedMPS * 3.6
	case MPS:
		return speedMPS
	default:
		return speedMPS
	}
}

// ConvertAngle converts an angle from radians to the target units.
func ConvertAngle(angleRad float64, targetUnits string) float64 {
	if targetUnits == DEG {
		return angleRad * 180 / math.Pi
	}
	return angleRad
}
