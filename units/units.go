// Package units converts dose and lab quantities between units of the same
// family. The table is closed: anything not listed is an unknown unit.
package units

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownUnit is returned when a unit is not in the table.
	ErrUnknownUnit = errors.New("unknown unit")
	// ErrIncompatibleUnits is returned when two known units belong to different families.
	ErrIncompatibleUnits = errors.New("incompatible units")
)

// Unit families.
const (
	FamilyMass          = "mass"
	FamilyVolume        = "volume"
	FamilyInternational = "international-units"
	FamilyMolar         = "molar"
	FamilyEquivalent    = "equivalent"
	FamilyMassConc      = "mass-concentration"
	FamilyMolarConc     = "molar-concentration"
)

type unitDef struct {
	family string
	// factor relative to the family base unit
	factor float64
}

// perKgSuffix marks weight-normalised doses such as "mg/kg".
const perKgSuffix = "/kg"

var table = map[string]unitDef{
	// mass, base mg
	"kg":         {FamilyMass, 1e6},
	"g":          {FamilyMass, 1000},
	"gram":       {FamilyMass, 1000},
	"grams":      {FamilyMass, 1000},
	"mg":         {FamilyMass, 1},
	"milligram":  {FamilyMass, 1},
	"milligrams": {FamilyMass, 1},
	"mcg":        {FamilyMass, 0.001},
	"ug":         {FamilyMass, 0.001},
	"µg":         {FamilyMass, 0.001},
	"microgram":  {FamilyMass, 0.001},
	"micrograms": {FamilyMass, 0.001},
	"ng":         {FamilyMass, 1e-6},

	// volume, base ml
	"l":   {FamilyVolume, 1000},
	"dl":  {FamilyVolume, 100},
	"ml":  {FamilyVolume, 1},
	"cc":  {FamilyVolume, 1},
	"mcl": {FamilyVolume, 0.001},
	"ul":  {FamilyVolume, 0.001},

	// international units, base iu
	"iu":    {FamilyInternational, 1},
	"u":     {FamilyInternational, 1},
	"unit":  {FamilyInternational, 1},
	"units": {FamilyInternational, 1},
	"miu":   {FamilyInternational, 0.001},
	"kiu":   {FamilyInternational, 1000},

	// amount of substance, base mmol
	"mol":  {FamilyMolar, 1000},
	"mmol": {FamilyMolar, 1},
	"umol": {FamilyMolar, 0.001},
	"µmol": {FamilyMolar, 0.001},
	"nmol": {FamilyMolar, 1e-6},

	// equivalents, base meq
	"eq":  {FamilyEquivalent, 1000},
	"meq": {FamilyEquivalent, 1},

	// mass concentration, base mg/l
	"g/l":    {FamilyMassConc, 1000},
	"g/dl":   {FamilyMassConc, 10000},
	"mg/l":   {FamilyMassConc, 1},
	"mg/dl":  {FamilyMassConc, 10},
	"mg/ml":  {FamilyMassConc, 1000},
	"mcg/ml": {FamilyMassConc, 1},
	"ug/ml":  {FamilyMassConc, 1},
	"mcg/l":  {FamilyMassConc, 0.001},
	"ug/l":   {FamilyMassConc, 0.001},
	"ng/ml":  {FamilyMassConc, 0.001},

	// molar concentration, base mmol/l
	"mol/l":  {FamilyMolarConc, 1000},
	"mmol/l": {FamilyMolarConc, 1},
	"umol/l": {FamilyMolarConc, 0.001},
	"µmol/l": {FamilyMolarConc, 0.001},
	"nmol/l": {FamilyMolarConc, 1e-6},
}

// Normalize returns the canonical spelling used as a table key.
func Normalize(unit string) string {
	return strings.ToLower(strings.TrimSpace(unit))
}

// Known reports whether unit is in the conversion table.
func Known(unit string) bool {
	_, err := lookup(Normalize(unit))
	return err == nil
}

// Family returns the family name of unit, or ErrUnknownUnit.
func Family(unit string) (string, error) {
	def, err := lookup(Normalize(unit))
	if err != nil {
		return "", err
	}
	return def.family, nil
}

// Convert converts value from one unit to another. Equal unit strings
// (case-insensitive) always succeed, even when the unit is not in the table.
func Convert(value float64, fromUnit, toUnit string) (float64, error) {
	from, to := Normalize(fromUnit), Normalize(toUnit)
	if from == to {
		return value, nil
	}

	fromDef, err := lookup(from)
	if err != nil {
		return 0, err
	}
	toDef, err := lookup(to)
	if err != nil {
		return 0, err
	}

	if fromDef.family != toDef.family {
		return 0, fmt.Errorf("%w: %s (%s) cannot be converted to %s (%s)",
			ErrIncompatibleUnits, fromUnit, fromDef.family, toUnit, toDef.family)
	}

	return value * fromDef.factor / toDef.factor, nil
}

// lookup resolves a normalized unit. A "/kg" suffix is kept as part of the
// family so that "mg/kg" converts to "mcg/kg" but never to "mg".
func lookup(unit string) (unitDef, error) {
	if def, ok := table[unit]; ok {
		return def, nil
	}

	if base, ok := strings.CutSuffix(unit, perKgSuffix); ok && base != "" {
		if def, ok := table[base]; ok {
			return unitDef{family: def.family + perKgSuffix, factor: def.factor}, nil
		}
	}

	return unitDef{}, fmt.Errorf("%w: %q", ErrUnknownUnit, unit)
}
