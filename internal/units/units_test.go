package units

import (
	"math"
	"testing"
)

func TestIntervalUnit(t *testing.T) {
	tests := map[string]string{
		IntervalPing:     UnitPings,
		IntervalTime:     UnitSeconds,
		IntervalDistance: UnitNMI,
		"unknown":        UnitPings,
	}
	for in, want := range tests {
		if got := IntervalUnit(in); got != want {
			t.Errorf("IntervalUnit(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestConversionAccuracy(t *testing.T) {
	if got := MetersToNMI(1852); got != 1 {
		t.Errorf("MetersToNMI(1852) = %f, want 1", got)
	}
	if got := MetersToNMI(926); got != 0.5 {
		t.Errorf("MetersToNMI(926) = %f, want 0.5", got)
	}

	for _, db := range []float64{-90, -70.5, -20, 0, 3} {
		back := LinearToDB(DBToLinear(db))
		if math.Abs(back-db) > 1e-9 {
			t.Errorf("dB round trip %f -> %f", db, back)
		}
	}
	if !math.IsInf(LinearToDB(0), -1) {
		t.Error("LinearToDB(0) should be -Inf")
	}
}
