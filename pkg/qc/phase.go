package qc

import "github.com/sleeperqc/sleeperqc/pkg/types"

// PhaseVerdict is the compliance result of one curing cycle.
type PhaseVerdict struct {
	RecordID   string        `json:"record_id,omitempty"`
	BatchNo    string        `json:"batch_no,omitempty"`
	OK         bool          `json:"ok"`
	Violations []types.Phase `json:"violations,omitempty"`
}

// PhaseStat is the per-phase statistic over a set of cycles.
type PhaseStat struct {
	Phase        types.Phase `json:"phase"`
	Bound        Bound       `json:"bound"`
	Count        int         `json:"count"`
	Min          float64     `json:"min"`
	Max          float64     `json:"max"`
	Mean         float64     `json:"mean"`
	StdDev       float64     `json:"std_dev"`
	OutlierCount int         `json:"outlier_count"`
}

// PhaseReport aggregates the compliance of a collection of cycles.
type PhaseReport struct {
	Phases       []PhaseStat    `json:"phases"`
	Verdicts     []PhaseVerdict `json:"verdicts"`
	TotalRecords int            `json:"total_records"`
	// TotalOutliers counts failing records, not failing phases: a record
	// violating several phases counts once.
	TotalOutliers int `json:"total_outliers"`
}

// CheckPhases flags every phase of rec that falls outside its bound in table.
// A phase missing from the record is checked as 0.
func CheckPhases(rec types.PhaseRecord, table PhaseTable) PhaseVerdict {
	v := PhaseVerdict{RecordID: rec.ID, BatchNo: rec.BatchNo}
	for _, pb := range table {
		if !pb.Bound.Contains(rec.Values[pb.Phase]) {
			v.Violations = append(v.Violations, pb.Phase)
		}
	}
	v.OK = len(v.Violations) == 0
	return v
}

// SummarizePhases checks every record and computes per-phase population
// statistics in table order.
func SummarizePhases(records []types.PhaseRecord, table PhaseTable) PhaseReport {
	out := PhaseReport{
		Phases:       make([]PhaseStat, 0, len(table)),
		Verdicts:     make([]PhaseVerdict, 0, len(records)),
		TotalRecords: len(records),
	}
	for _, rec := range records {
		v := CheckPhases(rec, table)
		if !v.OK {
			out.TotalOutliers++
		}
		out.Verdicts = append(out.Verdicts, v)
	}
	for _, pb := range table {
		values := make([]float64, len(records))
		st := PhaseStat{Phase: pb.Phase, Bound: pb.Bound}
		for i, rec := range records {
			values[i] = rec.Values[pb.Phase]
			if !pb.Bound.Contains(values[i]) {
				st.OutlierCount++
			}
		}
		sum := Summarize(values)
		st.Count, st.Min, st.Max, st.Mean, st.StdDev = sum.Count, sum.Min, sum.Max, sum.Mean, sum.StdDev
		out.Phases = append(out.Phases, st)
	}
	return out
}
