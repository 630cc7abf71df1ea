package report

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sleeperqc/sleeperqc/pkg/qc"
	"github.com/sleeperqc/sleeperqc/pkg/types"
)

var fixedNow = time.Date(2024, 3, 1, 6, 0, 0, 0, time.UTC)

func sampleShift() types.Shift {
	ref := types.ReferenceWeights{
		types.CA1: 400, types.CA2: 600, types.FA: 550,
		types.Cement: 440, types.Water: 145, types.Admixture: 3.5,
	}
	okSet := types.IngredientSetValues{}
	for k, v := range ref {
		okSet[k] = v
	}
	badSet := types.IngredientSetValues{}
	for k, v := range ref {
		badSet[k] = v
	}
	badSet[types.Cement] = 460

	batch := func(no string, ca1 float64) types.ActualRecord {
		return types.ActualRecord{
			BatchNo: no, Stage: types.StageBatching, Source: types.SourceScada,
			Values: map[string]float64{"ca1": ca1, "ca2": 600, "fa": 550, "cement": 440, "water": 145, "admixture": 3.5},
		}
	}
	tension := func(kn float64) types.ActualRecord {
		return types.ActualRecord{BatchNo: "B-1", Stage: types.StageTensioning, Values: map[string]float64{types.MetricFinalLoad: kn}}
	}
	rpm := func(v float64) types.ActualRecord {
		return types.ActualRecord{BatchNo: "B-1", Stage: types.StageCompaction, Values: map[string]float64{types.MetricRPM: v}}
	}

	return types.Shift{
		ID: "2024-03-01-A",
		Declarations: []types.BatchDeclaration{
			{BatchNo: "B-1", SetValues: badSet, Reference: ref},
			{BatchNo: "B-2", SetValues: badSet, Reference: ref, Status: types.ProportionOK},
			{BatchNo: "B-1", SetValues: okSet, Reference: ref}, // supersedes the first B-1
		},
		Records: []types.ActualRecord{
			batch("B-1", 404), batch("B-1", 396), batch("B-2", 420),
			tension(728), tension(732), tension(730), tension(730),
			rpm(9000), rpm(9400),
		},
		Phases: []types.PhaseRecord{
			{ID: "p1", BatchNo: "B-1", Values: map[types.Phase]float64{
				types.PhasePreDur: 2.5, types.PhaseRisePeriod: 2.2, types.PhaseRiseRate: 10,
				types.PhaseConstTemp: 58, types.PhaseConstDur: 4, types.PhaseCoolDur: 2.5, types.PhaseCoolRate: 9,
			}},
			{ID: "p2", BatchNo: "B-2", Values: map[types.Phase]float64{types.PhaseConstTemp: 61}},
		},
		Cubes: []types.CubeSet{
			{ID: "c1", BatchNo: "B-1", Grade: types.GradeM55, Strengths: []float64{41, 42, 39.9}},
			{ID: "c2", BatchNo: "B-2", Grade: types.GradeM60, Strengths: []float64{51, 53}},
		},
		Moisture: &types.MoistureSheet{
			Samples: map[types.Aggregate]types.MoistureSample{
				types.AggregateCA1: {WetSampleG: 520, DriedSampleG: 500, AbsorptionPct: 1.0, BatchDryWeightKg: 436.2},
			},
			UserDryWaterKg:  145,
			UserDryCementKg: 440,
		},
	}
}

func TestBuild(t *testing.T) {
	r := Build(sampleShift(), Options{Now: func() time.Time { return fixedNow }})

	assert.Equal(t, "2024-03-01-A", r.ContainerID)
	assert.Equal(t, fixedNow, r.GeneratedAt)

	require.Len(t, r.Batches, 2)
	assert.Equal(t, "B-1", r.Batches[0].BatchNo)
	assert.Equal(t, types.ProportionOK, r.Batches[0].Status, "later declaration replaces the earlier one")
	assert.Equal(t, 2, r.Batches[0].Records)
	assert.Equal(t, 0, r.Batches[0].Outliers)

	// Stored status is ignored: B-2 claims OK but cement is 4.5% over.
	assert.Equal(t, types.ProportionNotOK, r.Batches[1].Status)
	assert.Equal(t, []types.Ingredient{types.Cement}, r.Batches[1].Mismatched)
	// ca1 420 vs 400 (+5%) and cement 440 vs 460 (-4.3%) are both outliers.
	assert.Equal(t, 2, r.Batches[1].Outliers)

	assert.Equal(t, 4, r.Tensioning.Count)
	assert.InDelta(t, 730, r.Tensioning.Mean, 1e-9)
	assert.InDelta(t, qc.DefaultTheoreticalLoad, r.Tensioning.TheoreticalMean, 1e-9)

	assert.Equal(t, 2, r.Compaction.Capability.Count)
	assert.Equal(t, 1, r.Compaction.Capability.OutOfSpec)

	assert.Equal(t, 2, r.Curing.TotalRecords)
	assert.Equal(t, 1, r.Curing.TotalOutliers)

	require.Len(t, r.Strength, 2)
	assert.False(t, r.Strength[0].Pass)
	assert.True(t, r.Strength[1].Pass)

	require.NotNil(t, r.Moisture)
	assert.InDelta(t, 145-13.086, r.Moisture.AdjustedWaterKg, 1e-9)

	assert.Equal(t, Summary{
		Batches:                2,
		NotOKBatches:           1,
		IngredientOutliers:     2,
		TensionSamples:         4,
		TensionOutOfControlPct: 0,
		TensionCV:              r.Tensioning.CV,
		RPMSamples:             2,
		RPMOutOfSpec:           1,
		CuringFailures:         1,
		StrengthFailures:       1,
		WaterCementRatio:       r.Moisture.WaterCementRatio,
	}, r.Summary)
}

func TestBuild_TheoreticalLoadOption(t *testing.T) {
	r := Build(sampleShift(), Options{TheoreticalLoad: 700})
	assert.InDelta(t, 700, r.Tensioning.TheoreticalMean, 1e-9)
	// (730-700)/700*100
	assert.InDelta(t, 30.0/700*100, r.Tensioning.DeviationFromTheoretical, 1e-9)
}

func TestBuild_EmptyShift(t *testing.T) {
	r := Build(types.Shift{ID: "empty"}, Options{})

	assert.Empty(t, r.Batches)
	assert.Empty(t, r.Strength)
	assert.Nil(t, r.Moisture)
	assert.Equal(t, 0, r.Tensioning.Count)
	assert.Equal(t, Summary{}, r.Summary)
	assert.False(t, r.GeneratedAt.IsZero())
}

func TestStageValues(t *testing.T) {
	records := []types.ActualRecord{
		{Stage: types.StageTensioning, Values: map[string]float64{types.MetricFinalLoad: 729}},
		{Stage: types.StageCompaction, Values: map[string]float64{types.MetricRPM: 9000}},
		{Stage: types.StageTensioning},
	}
	assert.Equal(t, []float64{729, 0}, StageValues(records, types.StageTensioning, types.MetricFinalLoad))
	assert.Nil(t, StageValues(records, types.StageBatching, "ca1"))
}
