package qc

import (
	"math"

	"github.com/sleeperqc/sleeperqc/pkg/types"
)

// DeviationStat summarises how far actual weights strayed from a set value.
// All fields are percentages of the set value except the counts.
type DeviationStat struct {
	Count                   int     `json:"count"`
	MeanDeviationPct        float64 `json:"mean_deviation_pct"`
	StdDeviationPct         float64 `json:"std_deviation_pct"`
	MaxPositiveDeviationPct float64 `json:"max_positive_deviation_pct"`
	MaxNegativeDeviationPct float64 `json:"max_negative_deviation_pct"`
	OutlierCount            int     `json:"outlier_count"`
}

// DeviationPct returns (actual-set)/set*100. A zero set value has no defined
// deviation and yields 0.
func DeviationPct(actual, setValue float64) float64 {
	if setValue == 0 {
		return 0
	}
	return (actual - setValue) / setValue * 100
}

// Deviation computes deviation statistics of actuals against setValue.
//
// The mean and population standard deviation are taken over the per-record
// deviation percentages. The extremes include 0, so a population with no
// positive (or no negative) deviation reports exactly 0 on that side.
func Deviation(setValue float64, actuals []float64) DeviationStat {
	if len(actuals) == 0 {
		return DeviationStat{}
	}
	devs := make([]float64, len(actuals))
	out := DeviationStat{Count: len(actuals)}
	for i, a := range actuals {
		d := DeviationPct(a, setValue)
		devs[i] = d
		out.MaxPositiveDeviationPct = math.Max(out.MaxPositiveDeviationPct, d)
		out.MaxNegativeDeviationPct = math.Min(out.MaxNegativeDeviationPct, d)
		if IsOutlier(d) {
			out.OutlierCount++
		}
	}
	out.MeanDeviationPct = mean(devs)
	out.StdDeviationPct = popStdDev(devs, out.MeanDeviationPct)
	return out
}

// IngredientDeviation computes the deviation stat of one ingredient across
// records. Records are taken as given; callers filter by batch.
func IngredientDeviation(ing types.Ingredient, setValue float64, records []types.ActualRecord) DeviationStat {
	actuals := make([]float64, 0, len(records))
	for _, r := range records {
		actuals = append(actuals, r.Value(string(ing)))
	}
	return Deviation(setValue, actuals)
}

// BatchDeviations computes per-ingredient deviation stats for one declared
// batch. Only batching-stage records with the declaration's batch number are
// used; ingredients are never pooled.
func BatchDeviations(decl types.BatchDeclaration, records []types.ActualRecord) map[types.Ingredient]DeviationStat {
	batch := make([]types.ActualRecord, 0, len(records))
	for _, r := range records {
		if r.BatchNo == decl.BatchNo && r.Stage == types.StageBatching {
			batch = append(batch, r)
		}
	}
	out := make(map[types.Ingredient]DeviationStat, len(types.Ingredients))
	for _, ing := range types.Ingredients {
		out[ing] = IngredientDeviation(ing, decl.SetValues[ing], batch)
	}
	return out
}
