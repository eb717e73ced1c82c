package units

import (
	"errors"
	"math"
	"testing"
)

func TestConvert(t *testing.T) {
	tests := []struct {
		name    string
		value   float64
		from    string
		to      string
		want    float64
		wantErr error
	}{
		{"mcg to mg", 10000, "mcg", "mg", 10, nil},
		{"g to mg", 1.5, "g", "mg", 1500, nil},
		{"case insensitive", 2, "G", "MG", 2000, nil},
		{"ml to l", 250, "ml", "L", 0.25, nil},
		{"mg/dl to mg/l", 5, "mg/dl", "mg/l", 50, nil},
		{"mcg/ml to ng/ml", 2, "mcg/ml", "ng/ml", 2000, nil},
		{"per kg", 500, "mcg/kg", "mg/kg", 0.5, nil},
		{"mass to volume", 2, "ml", "mg", 0, ErrIncompatibleUnits},
		{"per kg to flat", 5, "mg/kg", "mg", 0, ErrIncompatibleUnits},
		{"unknown from", 1, "tablet", "mg", 0, ErrUnknownUnit},
		{"unknown to", 1, "mg", "puff", 0, ErrUnknownUnit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Convert(tt.value, tt.from, tt.to)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Convert(%v, %s, %s) = %v, want %v", tt.value, tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestConvertIdentity(t *testing.T) {
	for _, unit := range []string{"mg", "MG", "tablet", "puffs", "", "spoonful"} {
		got, err := Convert(42.5, unit, unit)
		if err != nil {
			t.Errorf("identity conversion for %q failed: %v", unit, err)
		}
		if got != 42.5 {
			t.Errorf("identity conversion for %q changed value to %v", unit, got)
		}
	}

	if _, err := Convert(1, "Tablet", "tablet"); err != nil {
		t.Errorf("identity should be case-insensitive, got %v", err)
	}
}

func TestConvertRoundTrip(t *testing.T) {
	byFamily := make(map[string][]string)
	for unit, def := range table {
		byFamily[def.family] = append(byFamily[def.family], unit)
	}

	for family, list := range byFamily {
		for _, a := range list {
			for _, b := range list {
				x := 123.456
				there, err := Convert(x, a, b)
				if err != nil {
					t.Fatalf("%s: %s -> %s: %v", family, a, b, err)
				}
				back, err := Convert(there, b, a)
				if err != nil {
					t.Fatalf("%s: %s -> %s: %v", family, b, a, err)
				}
				if math.Abs(back-x) > 1e-9*math.Max(1, x) {
					t.Errorf("%s: round trip %s -> %s -> %s gave %v, want %v", family, a, b, a, back, x)
				}
			}
		}
	}
}

func TestFamily(t *testing.T) {
	if f, err := Family("MCG"); err != nil || f != FamilyMass {
		t.Errorf("Family(MCG) = %q, %v", f, err)
	}
	if f, err := Family("mg/kg"); err != nil || f != FamilyMass+perKgSuffix {
		t.Errorf("Family(mg/kg) = %q, %v", f, err)
	}
	if _, err := Family("drops"); !errors.Is(err, ErrUnknownUnit) {
		t.Errorf("expected ErrUnknownUnit, got %v", err)
	}
	if !Known("ng/ml") || Known("capsule") {
		t.Error("Known returned wrong answer")
	}
}
