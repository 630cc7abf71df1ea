package alerts

import (
	"strconv"
	"strings"

	"github.com/sleeperqc/sleeperqc/pkg/report"
)

// evalCondition evaluates a rule condition string against a shift report.
//
// Supported expressions (field operator value):
//
//	not_ok_batches > 0
//	ingredient_outliers >= 3
//	tension_out_of_control_pct > 0
//	tension_cv > 2.5
//	rpm_out_of_spec > 0
//	curing_failures > 0
//	strength_failures > 0
//	water_cement_ratio > 0.4
//
// Returns (fires bool, triggering value float64).
// Returns (false, 0) if the expression cannot be parsed or the field is unknown.
func evalCondition(cond string, r report.ShiftReport) (bool, float64) {
	parts := strings.Fields(cond)
	if len(parts) != 3 {
		return false, 0
	}
	field, op, rhs := parts[0], parts[1], parts[2]

	v, ok := numericField(field, r.Summary)
	if !ok {
		return false, 0
	}
	threshold, err := strconv.ParseFloat(rhs, 64)
	if err != nil {
		return false, 0
	}
	return compareFloat(v, op, threshold), v
}

// numericField maps a field name to its value in the report summary.
func numericField(field string, s report.Summary) (float64, bool) {
	switch field {
	case "not_ok_batches":
		return float64(s.NotOKBatches), true
	case "ingredient_outliers":
		return float64(s.IngredientOutliers), true
	case "tension_out_of_control_pct":
		return s.TensionOutOfControlPct, true
	case "tension_cv":
		return s.TensionCV, true
	case "rpm_out_of_spec":
		return float64(s.RPMOutOfSpec), true
	case "curing_failures":
		return float64(s.CuringFailures), true
	case "strength_failures":
		return float64(s.StrengthFailures), true
	case "water_cement_ratio":
		return s.WaterCementRatio, true
	default:
		return 0, false
	}
}

// compareFloat applies a comparison operator to two float64 values.
func compareFloat(v float64, op string, threshold float64) bool {
	switch op {
	case ">":
		return v > threshold
	case ">=":
		return v >= threshold
	case "<":
		return v < threshold
	case "<=":
		return v <= threshold
	case "==":
		return v == threshold
	case "!=":
		return v != threshold
	default:
		return false
	}
}
