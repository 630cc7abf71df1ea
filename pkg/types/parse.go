package types

import (
	"math"
	"strings"

	"github.com/spf13/cast"
)

// ParseNumber coerces a raw form value into a float64.
// Empty, non-numeric, NaN and infinite inputs all become 0.
func ParseNumber(v any) float64 {
	if s, ok := v.(string); ok {
		v = strings.TrimSpace(s)
		if v == "" {
			return 0
		}
	}
	f, err := cast.ToFloat64E(v)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

// NormalizeSetValues converts a raw ingredient payload into IngredientSetValues.
// Every ingredient key is present in the result; unknown keys are dropped.
func NormalizeSetValues(raw map[string]any) IngredientSetValues {
	out := make(IngredientSetValues, len(Ingredients))
	for _, ing := range Ingredients {
		out[ing] = ParseNumber(raw[string(ing)])
	}
	return out
}

// NormalizeReference is NormalizeSetValues for reference weights.
func NormalizeReference(raw map[string]any) ReferenceWeights {
	return ReferenceWeights(NormalizeSetValues(raw))
}

// NormalizeValues converts a raw record payload for stage into typed values.
// Batching records are zero-filled for every ingredient; tensioning and
// compaction records keep only their stage metric.
func NormalizeValues(stage Stage, raw map[string]any) map[string]float64 {
	switch stage {
	case StageBatching:
		out := make(map[string]float64, len(Ingredients))
		for _, ing := range Ingredients {
			out[string(ing)] = ParseNumber(raw[string(ing)])
		}
		return out
	case StageTensioning:
		return map[string]float64{MetricFinalLoad: ParseNumber(raw[MetricFinalLoad])}
	case StageCompaction:
		return map[string]float64{MetricRPM: ParseNumber(raw[MetricRPM])}
	default:
		return map[string]float64{}
	}
}

// NormalizePhaseValues converts a raw curing payload into typed phase values,
// zero-filling every phase.
func NormalizePhaseValues(raw map[string]any) map[Phase]float64 {
	out := make(map[Phase]float64, len(Phases))
	for _, p := range Phases {
		out[p] = ParseNumber(raw[string(p)])
	}
	return out
}

// NormalizeMoistureSample converts one raw aggregate row into a MoistureSample.
func NormalizeMoistureSample(raw map[string]any) MoistureSample {
	return MoistureSample{
		WetSampleG:       ParseNumber(raw["wet_sample_g"]),
		DriedSampleG:     ParseNumber(raw["dried_sample_g"]),
		AbsorptionPct:    ParseNumber(raw["absorption_pct"]),
		BatchDryWeightKg: ParseNumber(raw["batch_dry_weight_kg"]),
	}
}

// NormalizeStrengths parses raw cube strengths, keeping their order.
func NormalizeStrengths(raw []any) []float64 {
	out := make([]float64, len(raw))
	for i, v := range raw {
		out[i] = ParseNumber(v)
	}
	return out
}
