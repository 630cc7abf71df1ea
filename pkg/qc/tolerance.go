package qc

import (
	"math"

	"github.com/sleeperqc/sleeperqc/pkg/types"
)

// ProportionTolerance is the maximum relative difference between a declared
// set value and its reference weight.
const ProportionTolerance = 0.01

// OutlierTolerancePct is the absolute deviation (in percent) above which an
// actual ingredient weight is an outlier. Exactly 3.0 is not an outlier.
const OutlierTolerancePct = 3.0

// floatNoise is the margin below which two computed values are treated as
// equal. Weights are entered to at most a few decimals, so anything smaller
// is representation error from the division, not a measured difference.
const floatNoise = 1e-9

// DefaultTheoreticalLoad is the target final tensioning load used when the
// caller does not provide one.
const DefaultTheoreticalLoad = 730.0

// Grade strength thresholds in N/mm².
const (
	StrengthThresholdM55     = 40.0
	StrengthThresholdDefault = 50.0
)

// SpecLimits is a lower/upper specification limit pair.
type SpecLimits struct {
	LSL float64 `json:"lsl"`
	USL float64 `json:"usl"`
}

// Within reports whether v lies inside [LSL, USL].
func (l SpecLimits) Within(v float64) bool {
	return v >= l.LSL && v <= l.USL
}

// RPMSpecLimits are the compaction vibrator speed limits.
var RPMSpecLimits = SpecLimits{LSL: 8640, USL: 9360}

// Bound is an acceptance window. A nil Min or Max leaves that side open.
type Bound struct {
	Min *float64 `json:"min,omitempty"`
	Max *float64 `json:"max,omitempty"`
}

// Contains reports whether v satisfies both defined sides of the bound.
func (b Bound) Contains(v float64) bool {
	if b.Min != nil && v < *b.Min {
		return false
	}
	if b.Max != nil && v > *b.Max {
		return false
	}
	return true
}

// AtLeast returns a bound open above.
func AtLeast(min float64) Bound { return Bound{Min: &min} }

// AtMost returns a bound open below.
func AtMost(max float64) Bound { return Bound{Max: &max} }

// Between returns a closed bound.
func Between(min, max float64) Bound { return Bound{Min: &min, Max: &max} }

// PhaseBound pairs a curing phase with its acceptance window.
type PhaseBound struct {
	Phase types.Phase `json:"phase"`
	Bound Bound       `json:"bound"`
}

// PhaseTable is an ordered bound table. Its order is the report order.
type PhaseTable []PhaseBound

// Lookup returns the bound for p.
func (t PhaseTable) Lookup(p types.Phase) (Bound, bool) {
	for _, pb := range t {
		if pb.Phase == p {
			return pb.Bound, true
		}
	}
	return Bound{}, false
}

// SteamCuringBounds returns the steam-curing phase windows.
// Durations are hours, rates °C/hour, temperature °C.
func SteamCuringBounds() PhaseTable {
	return PhaseTable{
		{types.PhasePreDur, AtLeast(2)},
		{types.PhaseRisePeriod, Between(2, 2.5)},
		{types.PhaseRiseRate, AtMost(15)},
		{types.PhaseConstTemp, Between(55, 60)},
		{types.PhaseConstDur, Between(3.5, 5)},
		{types.PhaseCoolDur, Between(2, 3)},
		{types.PhaseCoolRate, AtMost(15)},
	}
}

// ProportionMatches reports whether a set value is within ProportionTolerance
// of its reference. A zero reference only matches a zero set value.
func ProportionMatches(set, reference float64) bool {
	if reference == 0 {
		return set == 0
	}
	return math.Abs(set-reference)/reference <= ProportionTolerance+floatNoise
}

// IsOutlier reports whether a deviation percentage exceeds OutlierTolerancePct.
func IsOutlier(deviationPct float64) bool {
	return math.Abs(deviationPct) > OutlierTolerancePct+floatNoise
}

// StrengthThreshold returns the cube strength a grade must exceed.
// M-55 needs more than 40; every other grade needs more than 50.
func StrengthThreshold(grade types.Grade) float64 {
	if grade == types.GradeM55 {
		return StrengthThresholdM55
	}
	return StrengthThresholdDefault
}

// CubePasses reports whether one cube strength strictly exceeds its grade threshold.
func CubePasses(grade types.Grade, strength float64) bool {
	return strength > StrengthThreshold(grade)
}
