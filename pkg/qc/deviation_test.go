package qc

import (
	"testing"

	"github.com/sleeperqc/sleeperqc/pkg/types"
)

func TestDeviation_Empty(t *testing.T) {
	got := Deviation(420, nil)
	if (got != DeviationStat{}) {
		t.Errorf("Deviation on no records = %+v, want all zeros", got)
	}
}

func TestDeviation_Stats(t *testing.T) {
	// Deviations: +2%, -2%, +5%, 0%.
	got := Deviation(100, []float64{102, 98, 105, 100})

	if got.Count != 4 {
		t.Errorf("Count = %d, want 4", got.Count)
	}
	if !almostEqual(got.MeanDeviationPct, 1.25, 1e-9) {
		t.Errorf("MeanDeviationPct = %v, want 1.25", got.MeanDeviationPct)
	}
	// Population variance: (0.75² + 3.25² + 3.75² + 1.25²)/4 = 6.6875.
	if !almostEqual(got.StdDeviationPct, 2.586020108, 1e-6) {
		t.Errorf("StdDeviationPct = %v, want ≈2.5860", got.StdDeviationPct)
	}
	if !almostEqual(got.MaxPositiveDeviationPct, 5, 1e-9) {
		t.Errorf("MaxPositiveDeviationPct = %v, want 5", got.MaxPositiveDeviationPct)
	}
	if !almostEqual(got.MaxNegativeDeviationPct, -2, 1e-9) {
		t.Errorf("MaxNegativeDeviationPct = %v, want -2", got.MaxNegativeDeviationPct)
	}
	if got.OutlierCount != 1 {
		t.Errorf("OutlierCount = %d, want 1", got.OutlierCount)
	}
}

func TestDeviation_ExtremesIncludeZero(t *testing.T) {
	allHigh := Deviation(100, []float64{101, 102})
	if allHigh.MaxNegativeDeviationPct != 0 {
		t.Errorf("no negative deviations: MaxNegativeDeviationPct = %v, want 0", allHigh.MaxNegativeDeviationPct)
	}
	allLow := Deviation(100, []float64{99, 97})
	if allLow.MaxPositiveDeviationPct != 0 {
		t.Errorf("no positive deviations: MaxPositiveDeviationPct = %v, want 0", allLow.MaxPositiveDeviationPct)
	}
}

func TestDeviation_OutlierBoundary(t *testing.T) {
	// 3.0% exactly is not an outlier; 3.0001% is.
	if got := Deviation(1000, []float64{1030}); got.OutlierCount != 0 {
		t.Errorf("3.0%% deviation counted as outlier (OutlierCount=%d)", got.OutlierCount)
	}
	if got := Deviation(1000, []float64{1030.001}); got.OutlierCount != 1 {
		t.Errorf("3.0001%% deviation not counted as outlier (OutlierCount=%d)", got.OutlierCount)
	}
	if got := Deviation(1000, []float64{969.999}); got.OutlierCount != 1 {
		t.Errorf("-3.0001%% deviation not counted as outlier (OutlierCount=%d)", got.OutlierCount)
	}
}

func TestDeviation_ZeroSetValue(t *testing.T) {
	got := Deviation(0, []float64{5, 10})
	if got.Count != 2 {
		t.Errorf("Count = %d, want 2", got.Count)
	}
	if got.MeanDeviationPct != 0 || got.StdDeviationPct != 0 || got.OutlierCount != 0 {
		t.Errorf("zero set value should give zero deviations, got %+v", got)
	}
}

func TestDeviation_OrderIndependent(t *testing.T) {
	a := Deviation(200, []float64{190, 204, 211, 199, 200})
	b := Deviation(200, []float64{211, 200, 190, 199, 204})
	if a.Count != b.Count || a.OutlierCount != b.OutlierCount ||
		a.MaxPositiveDeviationPct != b.MaxPositiveDeviationPct ||
		a.MaxNegativeDeviationPct != b.MaxNegativeDeviationPct ||
		!almostEqual(a.MeanDeviationPct, b.MeanDeviationPct, 1e-9) ||
		!almostEqual(a.StdDeviationPct, b.StdDeviationPct, 1e-9) {
		t.Errorf("order changed the result: %+v vs %+v", a, b)
	}
}

func TestBatchDeviations_FiltersBatchAndStage(t *testing.T) {
	decl := types.BatchDeclaration{
		BatchNo:   "B-7",
		SetValues: types.IngredientSetValues{types.CA1: 400, types.Cement: 200},
	}
	records := []types.ActualRecord{
		{BatchNo: "B-7", Stage: types.StageBatching, Values: map[string]float64{"ca1": 404, "cement": 200}},
		{BatchNo: "B-7", Stage: types.StageBatching, Values: map[string]float64{"ca1": 396, "cement": 210}},
		{BatchNo: "B-8", Stage: types.StageBatching, Values: map[string]float64{"ca1": 900}},
		{BatchNo: "B-7", Stage: types.StageTensioning, Values: map[string]float64{"final_load": 730}},
	}

	got := BatchDeviations(decl, records)
	if len(got) != len(types.Ingredients) {
		t.Fatalf("got %d ingredients, want %d", len(got), len(types.Ingredients))
	}

	ca1 := got[types.CA1]
	if ca1.Count != 2 || !almostEqual(ca1.MeanDeviationPct, 0, 1e-9) || ca1.OutlierCount != 0 {
		t.Errorf("ca1 = %+v, want count 2, mean 0, no outliers", ca1)
	}
	if !almostEqual(ca1.StdDeviationPct, 1, 1e-9) {
		t.Errorf("ca1 StdDeviationPct = %v, want 1", ca1.StdDeviationPct)
	}

	cement := got[types.Cement]
	if cement.OutlierCount != 1 || !almostEqual(cement.MaxPositiveDeviationPct, 5, 1e-9) {
		t.Errorf("cement = %+v, want 1 outlier and +5%% max", cement)
	}

	// fa was not declared: set value 0, deviations defined as 0.
	if fa := got[types.FA]; fa.Count != 2 || fa.MeanDeviationPct != 0 {
		t.Errorf("fa = %+v, want count 2 with zero deviation", fa)
	}
}
