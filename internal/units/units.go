// Package units provides shared constants and conversions for report axes
// and integrated values.
package units

import "math"

// MetersPerNauticalMile is the international nautical mile.
const MetersPerNauticalMile = 1852.0

// Ping axis interval types.
const (
	IntervalPing     = "ping"
	IntervalTime     = "time"
	IntervalDistance = "distance"
)

// Ping axis interval units.
const (
	UnitPings   = "pings"
	UnitSeconds = "s"
	UnitNMI     = "nmi"
	UnitMeters  = "m"
)

// Integrated value units and types.
const (
	// SaUnit is the unit of the nautical area scattering coefficient.
	SaUnit = "m2nmi-2"
	// SaType marks a value as sA.
	SaType = "C"
)

// IntervalUnit returns the unit string for a ping axis interval type.
func IntervalUnit(intervalType string) string {
	switch intervalType {
	case IntervalTime:
		return UnitSeconds
	case IntervalDistance:
		return UnitNMI
	default:
		return UnitPings
	}
}

// MetersToNMI converts meters to nautical miles.
func MetersToNMI(m float64) float64 { return m / MetersPerNauticalMile }

// DBToLinear converts a logarithmic Sv value in dB to the linear domain.
func DBToLinear(db float64) float64 { return math.Pow(10, db/10) }

// LinearToDB converts a linear value to dB. Zero and negative values map
// to -Inf.
func LinearToDB(v float64) float64 {
	if v <= 0 {
		return math.Inf(-1)
	}
	return 10 * math.Log10(v)
}
