package units

import (
	"math"
	"testing"
)

func TestIsValidSpeedUnit(t *testing.T) {
	for _, unit := range []string{MPS, CMPS, KMPH} {
		if !IsValidSpeedUnit(unit) {
			t.Errorf("IsValidSpeedUnit(%q) = false, want true", unit)
		}
	}
	for _, unit := range []string{"", "mph", "knots", "MPS"} {
		if IsValidSpeedUnit(unit) {
			t.Errorf("IsValidSpeedUnit(%q) = true, want false", unit)
		}
	}
}

func TestIsValidAngleUnit(t *testing.T) {
	if !IsValidAngleUnit(RAD) || !IsValidAngleUnit(DEG) {
		t.Error("rad and deg should be valid angle units")
	}
	if IsValidAngleUnit("grad") {
		t.Error("IsValidAngleUnit(\"grad\") = true, want false")
	}
}

func TestConvertSpeed(t *testing.T) {
	tests := []struct {
		name  string
		speed float64
		units string
		want  float64
	}{
		{"mps passthrough", 0.25, MPS, 0.25},
		{"to cmps", 0.25, CMPS, 25},
		{"to kmph", 1.0, KMPH, 3.6},
		{"unknown unit passthrough", 0.5, "furlongs", 0.5},
		{"zero", 0, KMPH, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ConvertSpeed(tt.speed, tt.units)
			if math.Abs(got-tt.want) > 1e-12 {
				t.Errorf("ConvertSpeed(%f, %q) = %f, want %f", tt.speed, tt.units, got, tt.want)
			}
		})
	}
}

func TestConvertAngle(t *testing.T) {
	if got := ConvertAngle(math.Pi, DEG); math.Abs(got-180) > 1e-9 {
		t.Errorf("ConvertAngle(pi, deg) = %f, want 180", got)
	}
	if got := ConvertAngle(1.5, RAD); got != 1.5 {
		t.Errorf("ConvertAngle(1.5, rad) = %f, want 1.5", got)
	}
}
