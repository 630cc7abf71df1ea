package qc

import "github.com/sleeperqc/sleeperqc/pkg/types"

// ProportionCheck is the detailed outcome of a proportion validation.
type ProportionCheck struct {
	Status types.ProportionStatus `json:"status"`
	// Mismatched lists the failing ingredients in types.Ingredients order.
	Mismatched []types.Ingredient `json:"mismatched,omitempty"`
}

// CheckProportion compares every ingredient's set value against its reference
// weight. Ingredients missing from either map are treated as 0.
func CheckProportion(set types.IngredientSetValues, ref types.ReferenceWeights) ProportionCheck {
	var out ProportionCheck
	for _, ing := range types.Ingredients {
		if !ProportionMatches(set[ing], ref[ing]) {
			out.Mismatched = append(out.Mismatched, ing)
		}
	}
	out.Status = types.ProportionOK
	if len(out.Mismatched) > 0 {
		out.Status = types.ProportionNotOK
	}
	return out
}

// ValidateProportion returns OK only if every ingredient matches its reference.
func ValidateProportion(set types.IngredientSetValues, ref types.ReferenceWeights) types.ProportionStatus {
	return CheckProportion(set, ref).Status
}
