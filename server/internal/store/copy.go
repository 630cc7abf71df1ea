package store

import "github.com/sleeperqc/sleeperqc/pkg/types"

// copyShift deep-copies a shift so callers can build reports from it while
// the store keeps mutating the original.
func copyShift(in types.Shift) types.Shift {
	out := types.Shift{ID: in.ID, Moisture: copySheet(in.Moisture)}

	if in.Declarations != nil {
		out.Declarations = make([]types.BatchDeclaration, len(in.Declarations))
		for i, d := range in.Declarations {
			d.SetValues = copyIngredients(d.SetValues)
			d.Reference = types.ReferenceWeights(copyIngredients(types.IngredientSetValues(d.Reference)))
			out.Declarations[i] = d
		}
	}
	if in.Records != nil {
		out.Records = make([]types.ActualRecord, len(in.Records))
		for i, r := range in.Records {
			r.Values = copyValues(r.Values)
			if r.EditedAt != nil {
				t := *r.EditedAt
				r.EditedAt = &t
			}
			out.Records[i] = r
		}
	}
	if in.Phases != nil {
		out.Phases = make([]types.PhaseRecord, len(in.Phases))
		for i, p := range in.Phases {
			if p.Values != nil {
				vals := make(map[types.Phase]float64, len(p.Values))
				for k, v := range p.Values {
					vals[k] = v
				}
				p.Values = vals
			}
			out.Phases[i] = p
		}
	}
	if in.Cubes != nil {
		out.Cubes = make([]types.CubeSet, len(in.Cubes))
		for i, c := range in.Cubes {
			c.Strengths = append([]float64(nil), c.Strengths...)
			out.Cubes[i] = c
		}
	}
	return out
}

func copySheet(in *types.MoistureSheet) *types.MoistureSheet {
	if in == nil {
		return nil
	}
	out := *in
	if in.Samples != nil {
		out.Samples = make(map[types.Aggregate]types.MoistureSample, len(in.Samples))
		for k, v := range in.Samples {
			out.Samples[k] = v
		}
	}
	return &out
}

func copyValues(in map[string]float64) map[string]float64 {
	if in == nil {
		return nil
	}
	out := make(map[string]float64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func copyIngredients(in types.IngredientSetValues) types.IngredientSetValues {
	if in == nil {
		return nil
	}
	out := make(types.IngredientSetValues, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
