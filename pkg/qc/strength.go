package qc

import "github.com/sleeperqc/sleeperqc/pkg/types"

// StrengthVerdict is the pass/fail outcome of one cube set.
type StrengthVerdict struct {
	SetID     string      `json:"set_id,omitempty"`
	BatchNo   string      `json:"batch_no,omitempty"`
	Grade     types.Grade `json:"grade"`
	Threshold float64     `json:"threshold"`
	Count     int         `json:"count"`
	Average   float64     `json:"average"`
	Min       float64     `json:"min"`
	Pass      bool        `json:"pass"`
	// Failing holds the indexes of cubes at or below the threshold.
	Failing []int `json:"failing,omitempty"`
}

// EvaluateStrength passes a cube set only if every cube exceeds the grade
// threshold; a passing average is not enough. An empty set does not pass.
func EvaluateStrength(grade types.Grade, strengths []float64) StrengthVerdict {
	sum := Summarize(strengths)
	v := StrengthVerdict{
		Grade:     grade,
		Threshold: StrengthThreshold(grade),
		Count:     sum.Count,
		Average:   sum.Mean,
		Min:       sum.Min,
	}
	for i, s := range strengths {
		if !CubePasses(grade, s) {
			v.Failing = append(v.Failing, i)
		}
	}
	v.Pass = len(strengths) > 0 && len(v.Failing) == 0
	return v
}

// EvaluateCubeSet is EvaluateStrength for a stored cube set.
func EvaluateCubeSet(set types.CubeSet) StrengthVerdict {
	v := EvaluateStrength(set.Grade, set.Strengths)
	v.SetID = set.ID
	v.BatchNo = set.BatchNo
	return v
}
