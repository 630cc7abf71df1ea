package qc

import (
	"math"

	"github.com/sleeperqc/sleeperqc/pkg/types"
)

// MoistureCorrection is the derived correction for one aggregate.
type MoistureCorrection struct {
	MoistureInSampleG float64 `json:"moisture_in_sample_g"`
	MoisturePct       float64 `json:"moisture_pct"`
	FreeMoisturePct   float64 `json:"free_moisture_pct"`
	FreeMoistureKg    float64 `json:"free_moisture_kg"`
	AdjustedWeightKg  float64 `json:"adjusted_weight_kg"`
	AdoptedWeightKg   float64 `json:"adopted_weight_kg"`
}

// BatchCorrection is the moisture correction of a whole batch.
type BatchCorrection struct {
	Aggregates           map[types.Aggregate]MoistureCorrection `json:"aggregates"`
	TotalFreeMoistureKg  float64                                `json:"total_free_moisture_kg"`
	TotalAdoptedKg       float64                                `json:"total_adopted_kg"`
	AdjustedWaterKg      float64                                `json:"adjusted_water_kg"`
	WaterCementRatio     float64                                `json:"water_cement_ratio"`
	AggregateCementRatio float64                                `json:"aggregate_cement_ratio"`
}

// CorrectMoisture derives the free-moisture correction for one aggregate.
// Each step consumes the previous one; free moisture may be negative and is
// not clamped. The adopted weight is always rounded up.
func CorrectMoisture(s types.MoistureSample) MoistureCorrection {
	var c MoistureCorrection
	c.MoistureInSampleG = s.WetSampleG - s.DriedSampleG
	if s.DriedSampleG > 0 {
		c.MoisturePct = c.MoistureInSampleG / s.DriedSampleG * 100
	}
	c.FreeMoisturePct = c.MoisturePct - s.AbsorptionPct
	c.FreeMoistureKg = c.FreeMoisturePct * s.BatchDryWeightKg / 100
	c.AdjustedWeightKg = c.FreeMoistureKg + s.BatchDryWeightKg
	c.AdoptedWeightKg = AdoptWeight(c.AdjustedWeightKg)
	return c
}

// AdoptWeight rounds an adjusted weight up to the next whole kilogram.
// Float noise above a whole kilogram is ignored, so an exact 436 kg is not
// dosed as 437 kg.
func AdoptWeight(adjustedKg float64) float64 {
	adopted := math.Ceil(adjustedKg - floatNoise)
	if adopted == 0 {
		return 0 // not -0
	}
	return adopted
}

// CorrectBatch corrects CA1, CA2 and FA independently and derives the batch
// water and ratios. Aggregates missing from the sheet count as all-zero
// samples. Both ratios are 0 when the dry cement weight is not positive; the
// adjusted water may go negative and is surfaced as-is.
func CorrectBatch(sheet types.MoistureSheet) BatchCorrection {
	out := BatchCorrection{Aggregates: make(map[types.Aggregate]MoistureCorrection, len(types.Aggregates))}
	for _, agg := range types.Aggregates {
		c := CorrectMoisture(sheet.Samples[agg])
		out.Aggregates[agg] = c
		out.TotalFreeMoistureKg += c.FreeMoistureKg
		out.TotalAdoptedKg += c.AdoptedWeightKg
	}
	out.AdjustedWaterKg = sheet.UserDryWaterKg - out.TotalFreeMoistureKg
	if sheet.UserDryCementKg > 0 {
		out.WaterCementRatio = out.AdjustedWaterKg / sheet.UserDryCementKg
		out.AggregateCementRatio = out.TotalAdoptedKg / sheet.UserDryCementKg
	}
	return out
}
