// Package report assembles the full quality report of one shift from the
// pure calculators in pkg/qc. Nothing is cached: every caller (REST handler,
// WebSocket hub, alert engine, qcctl) rebuilds the report from the snapshot
// it holds.
package report

import (
	"time"

	"github.com/sleeperqc/sleeperqc/pkg/qc"
	"github.com/sleeperqc/sleeperqc/pkg/types"
)

// Options tunes a Build call. The zero value is usable.
type Options struct {
	// TheoreticalLoad is the target final tensioning load in kN.
	// Zero or negative selects qc.DefaultTheoreticalLoad.
	TheoreticalLoad float64
	// Now stamps GeneratedAt. Defaults to time.Now.
	Now func() time.Time
}

// BatchReport is the proportion verdict and actual-weight deviation of one
// declared batch class.
type BatchReport struct {
	BatchNo    string                                `json:"batch_no"`
	Status     types.ProportionStatus                `json:"status"`
	Mismatched []types.Ingredient                    `json:"mismatched,omitempty"`
	Records    int                                   `json:"records"`
	Deviations map[types.Ingredient]qc.DeviationStat `json:"deviations"`
	Outliers   int                                   `json:"outliers"`
}

// CompactionReport pairs the sigma profile of vibrator RPM with its
// spec-limit capability.
type CompactionReport struct {
	Sigma      qc.SigmaProfile     `json:"sigma"`
	Capability qc.CapabilityReport `json:"capability"`
}

// Summary holds the headline counts alert rules are written against.
type Summary struct {
	Batches                int     `json:"batches"`
	NotOKBatches           int     `json:"not_ok_batches"`
	IngredientOutliers     int     `json:"ingredient_outliers"`
	TensionSamples         int     `json:"tension_samples"`
	TensionOutOfControlPct float64 `json:"tension_out_of_control_pct"`
	TensionCV              float64 `json:"tension_cv"`
	RPMSamples             int     `json:"rpm_samples"`
	RPMOutOfSpec           int     `json:"rpm_out_of_spec"`
	CuringFailures         int     `json:"curing_failures"`
	StrengthFailures       int     `json:"strength_failures"`
	WaterCementRatio       float64 `json:"water_cement_ratio"`
}

// ShiftReport is the complete derived view of a shift.
type ShiftReport struct {
	ContainerID string               `json:"container_id"`
	GeneratedAt time.Time            `json:"generated_at"`
	Batches     []BatchReport        `json:"batches"`
	Tensioning  qc.SigmaProfile      `json:"tensioning"`
	Compaction  CompactionReport     `json:"compaction"`
	Curing      qc.PhaseReport       `json:"curing"`
	Strength    []qc.StrengthVerdict `json:"strength"`
	Moisture    *qc.BatchCorrection  `json:"moisture,omitempty"`
	Summary     Summary              `json:"summary"`
}

// Build computes the report for shift. Batch declarations are reported in
// first-declared order; a later declaration of the same batch number
// replaces the earlier one. Proportion status is always recomputed and the
// stored Status field is ignored.
func Build(shift types.Shift, opts Options) ShiftReport {
	theoretical := opts.TheoreticalLoad
	if theoretical <= 0 {
		theoretical = qc.DefaultTheoreticalLoad
	}
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}

	r := ShiftReport{
		ContainerID: shift.ID,
		GeneratedAt: now(),
		Batches:     make([]BatchReport, 0, len(shift.Declarations)),
		Strength:    make([]qc.StrengthVerdict, 0, len(shift.Cubes)),
	}

	for _, decl := range latestDeclarations(shift.Declarations) {
		br := buildBatch(decl, shift.Records)
		r.Batches = append(r.Batches, br)
		r.Summary.Batches++
		if br.Status == types.ProportionNotOK {
			r.Summary.NotOKBatches++
		}
		r.Summary.IngredientOutliers += br.Outliers
	}

	loads := StageValues(shift.Records, types.StageTensioning, types.MetricFinalLoad)
	r.Tensioning = qc.Classify(loads, theoretical)
	r.Summary.TensionSamples = r.Tensioning.Count
	r.Summary.TensionOutOfControlPct = r.Tensioning.Zones.OutOfControl
	r.Summary.TensionCV = r.Tensioning.CV

	rpm := StageValues(shift.Records, types.StageCompaction, types.MetricRPM)
	r.Compaction = CompactionReport{
		Sigma:      qc.Classify(rpm, 0),
		Capability: qc.Capability(rpm, qc.RPMSpecLimits),
	}
	r.Summary.RPMSamples = r.Compaction.Capability.Count
	r.Summary.RPMOutOfSpec = r.Compaction.Capability.OutOfSpec

	r.Curing = qc.SummarizePhases(shift.Phases, qc.SteamCuringBounds())
	r.Summary.CuringFailures = r.Curing.TotalOutliers

	for _, set := range shift.Cubes {
		v := qc.EvaluateCubeSet(set)
		if !v.Pass {
			r.Summary.StrengthFailures++
		}
		r.Strength = append(r.Strength, v)
	}

	if shift.Moisture != nil {
		mc := qc.CorrectBatch(*shift.Moisture)
		r.Moisture = &mc
		r.Summary.WaterCementRatio = mc.WaterCementRatio
	}
	return r
}

// StageValues extracts metric from every record measured at stage, in
// record order.
func StageValues(records []types.ActualRecord, stage types.Stage, metric string) []float64 {
	var out []float64
	for _, rec := range records {
		if rec.Stage == stage {
			out = append(out, rec.Value(metric))
		}
	}
	return out
}

func buildBatch(decl types.BatchDeclaration, records []types.ActualRecord) BatchReport {
	check := qc.CheckProportion(decl.SetValues, decl.Reference)
	br := BatchReport{
		BatchNo:    decl.BatchNo,
		Status:     check.Status,
		Mismatched: check.Mismatched,
		Deviations: qc.BatchDeviations(decl, records),
	}
	for _, ing := range types.Ingredients {
		br.Outliers += br.Deviations[ing].OutlierCount
	}
	br.Records = br.Deviations[types.CA1].Count
	return br
}

func latestDeclarations(decls []types.BatchDeclaration) []types.BatchDeclaration {
	idx := make(map[string]int, len(decls))
	out := make([]types.BatchDeclaration, 0, len(decls))
	for _, d := range decls {
		if i, ok := idx[d.BatchNo]; ok {
			out[i] = d
			continue
		}
		idx[d.BatchNo] = len(out)
		out = append(out, d)
	}
	return out
}
