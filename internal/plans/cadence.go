package plans

import (
	internalerrors "github.com/rcourtman/paybridge/internal/errors"
)

// Cadence is a gateway billing cadence.
type Cadence string

const (
	Daily          Cadence = "DAILY"
	Weekly         Cadence = "WEEKLY"
	EveryTwoWeeks  Cadence = "EVERY_TWO_WEEKS"
	Monthly        Cadence = "MONTHLY"
	EveryTwoMonths Cadence = "EVERY_TWO_MONTHS"
	Quarterly      Cadence = "QUARTERLY"
	EverySixMonths Cadence = "EVERY_SIX_MONTHS"
	Annual         Cadence = "ANNUAL"
)

// CadenceSpec pairs a cadence with the CRM frequency it represents.
type CadenceSpec struct {
	Cadence Cadence `json:"cadence"`
	Unit    string  `json:"unit"`
	Step    int     `json:"step"`
}

var cadenceTable = []CadenceSpec{
	{Daily, "day", 1},
	{Weekly, "week", 1},
	{EveryTwoWeeks, "week", 2},
	{Monthly, "month", 1},
	{EveryTwoMonths, "month", 2},
	{Quarterly, "month", 3},
	{EverySixMonths, "month", 6},
	{Annual, "year", 1},
}

// Cadences returns the supported cadences in table order.
func Cadences() []CadenceSpec {
	out := make([]CadenceSpec, len(cadenceTable))
	copy(out, cadenceTable)
	return out
}

// ResolveCadence maps a CRM frequency (unit, step) onto a gateway cadence.
// The unit must match the CRM's lower-case unit name exactly.
func ResolveCadence(unit string, step int) (Cadence, error) {
	for _, c := range cadenceTable {
		if c.Unit == unit && c.Step == step {
			return c.Cadence, nil
		}
	}
	return "", internalerrors.UnsupportedCadence("resolve_cadence", "every %d %s(s)", step, unit)
}

// Interval returns the CRM frequency for c. ok is false for unknown cadences.
func (c Cadence) Interval() (unit string, step int, ok bool) {
	for _, spec := range cadenceTable {
		if spec.Cadence == c {
			return spec.Unit, spec.Step, true
		}
	}
	return "", 0, false
}
