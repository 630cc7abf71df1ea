package qc

import "math"

// CapabilityReport compares a sample population against spec limits.
type CapabilityReport struct {
	Limits       SpecLimits `json:"limits"`
	Count        int        `json:"count"`
	WithinSpec   int        `json:"within_spec"`
	OutOfSpec    int        `json:"out_of_spec"`
	OutOfSpecPct float64    `json:"out_of_spec_pct"`
	Mean         float64    `json:"mean"`
	StdDev       float64    `json:"std_dev"`
	Cp           float64    `json:"cp"`
	Cpk          float64    `json:"cpk"`
}

// Capability counts samples inside and outside limits and derives the process
// capability indices. Cp and Cpk are 0 when the standard deviation is 0.
func Capability(samples []float64, limits SpecLimits) CapabilityReport {
	out := CapabilityReport{Limits: limits, Count: len(samples)}
	if len(samples) == 0 {
		return out
	}
	for _, x := range samples {
		if limits.Within(x) {
			out.WithinSpec++
		} else {
			out.OutOfSpec++
		}
	}
	out.OutOfSpecPct = pct(float64(out.OutOfSpec), float64(out.Count))
	out.Mean = mean(samples)
	out.StdDev = popStdDev(samples, out.Mean)
	if out.StdDev > 0 {
		out.Cp = (limits.USL - limits.LSL) / (6 * out.StdDev)
		out.Cpk = math.Min(limits.USL-out.Mean, out.Mean-limits.LSL) / (3 * out.StdDev)
	}
	return out
}
