package qc

import "math"

// Zone names of the control chart, nearest to farthest from the mean.
const (
	ZoneNormal       = "normal"
	ZoneWarning      = "warning"
	ZoneAction       = "action"
	ZoneOutOfControl = "out_of_control"
)

// Zones holds the share of samples in each sigma zone, in percent.
// For a non-empty population the four values sum to 100.
type Zones struct {
	Normal       float64 `json:"normal"`
	Warning      float64 `json:"warning"`
	Action       float64 `json:"action"`
	OutOfControl float64 `json:"out_of_control"`
}

// ZoneCounts holds the raw sample count per sigma zone.
type ZoneCounts struct {
	Normal       int `json:"normal"`
	Warning      int `json:"warning"`
	Action       int `json:"action"`
	OutOfControl int `json:"out_of_control"`
}

// SigmaProfile is the control-chart view of a sample population.
type SigmaProfile struct {
	Count                    int        `json:"count"`
	Mean                     float64    `json:"mean"`
	StdDev                   float64    `json:"std_dev"`
	CV                       float64    `json:"cv"`
	TheoreticalMean          float64    `json:"theoretical_mean"`
	DeviationFromTheoretical float64    `json:"deviation_from_theoretical"`
	Zones                    Zones      `json:"zones"`
	ZoneCounts               ZoneCounts `json:"zone_counts"`
}

// Zone returns the sigma zone of x for a population with the given mean and
// population standard deviation. Upper edges are inclusive, so with
// stdDev == 0 every sample equal to the mean is normal.
func Zone(x, mean, stdDev float64) string {
	d := math.Abs(x - mean)
	switch {
	case d <= stdDev:
		return ZoneNormal
	case d <= 2*stdDev:
		return ZoneWarning
	case d <= 3*stdDev:
		return ZoneAction
	default:
		return ZoneOutOfControl
	}
}

// Classify buckets every sample into exactly one sigma zone.
//
// cv is stdDev/mean*100 (0 when the mean is 0) and the deviation from
// theoretical is (mean-theoretical)/theoretical*100 (0 when theoretical is 0).
// An empty population returns a zero profile carrying only TheoreticalMean.
func Classify(samples []float64, theoreticalMean float64) SigmaProfile {
	out := SigmaProfile{Count: len(samples), TheoreticalMean: theoreticalMean}
	if len(samples) == 0 {
		return out
	}
	out.Mean = mean(samples)
	out.StdDev = popStdDev(samples, out.Mean)
	out.CV = pct(out.StdDev, out.Mean)
	out.DeviationFromTheoretical = pct(out.Mean-theoreticalMean, theoreticalMean)

	for _, x := range samples {
		switch Zone(x, out.Mean, out.StdDev) {
		case ZoneNormal:
			out.ZoneCounts.Normal++
		case ZoneWarning:
			out.ZoneCounts.Warning++
		case ZoneAction:
			out.ZoneCounts.Action++
		default:
			out.ZoneCounts.OutOfControl++
		}
	}

	n := float64(len(samples))
	out.Zones = Zones{
		Normal:       pct(float64(out.ZoneCounts.Normal), n),
		Warning:      pct(float64(out.ZoneCounts.Warning), n),
		Action:       pct(float64(out.ZoneCounts.Action), n),
		OutOfControl: pct(float64(out.ZoneCounts.OutOfControl), n),
	}
	return out
}
