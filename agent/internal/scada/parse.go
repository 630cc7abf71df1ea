package scada

import (
	"fmt"
	"io"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"github.com/sleeperqc/sleeperqc/agent/internal/config"
	"github.com/sleeperqc/sleeperqc/pkg/types"
)

// Metric families published by the plant PLC exporters.
const (
	// FamilyBatchWeight is the weighed quantity of one ingredient of the last
	// batch. Labels: batch_no, ingredient.
	FamilyBatchWeight = "sleeper_batch_weight_kg"

	// FamilyFinalLoad is the final jacking load of one tendon. Labels:
	// batch_no plus any labels identifying the tendon (line, wire).
	FamilyFinalLoad = "sleeper_tension_final_load_kn"

	// FamilyRPM is the measured speed of one table vibrator. Labels:
	// batch_no plus any labels identifying the vibrator.
	FamilyRPM = "sleeper_compaction_rpm"

	// FamilyCuringPhase is one measured phase of a steam-curing cycle.
	// Labels: batch_no, chamber, phase.
	FamilyCuringPhase = "sleeper_curing_phase"
)

const (
	labelBatch      = "batch_no"
	labelIngredient = "ingredient"
	labelChamber    = "chamber"
	labelPhase      = "phase"
)

// reading is one candidate observation extracted from a scrape. Key
// identifies the series it came from and Signature its current value.
type reading struct {
	Key       string
	Signature string
	Record    *types.ActualRecord
	Phase     *types.PhaseRecord
}

// parseMetrics decodes a Prometheus text exposition from r into metric families.
// A partial result with a non-fatal parse warning is still returned successfully.
func parseMetrics(r io.Reader) (map[string]*dto.MetricFamily, error) {
	var parser expfmt.TextParser
	mfs, err := parser.TextToMetricFamilies(r)
	if err != nil && len(mfs) == 0 {
		return nil, fmt.Errorf("parse prometheus text: %w", err)
	}
	return mfs, nil
}

// extract turns the families relevant to stage into readings. scrapedAt
// stamps readings whose samples carry no timestamp.
func extract(sourceID, stage string, mfs map[string]*dto.MetricFamily, scrapedAt time.Time) []reading {
	switch stage {
	case config.StageBatching:
		return batchReadings(sourceID, mfs[FamilyBatchWeight], scrapedAt)
	case config.StageTensioning:
		return seriesReadings(types.StageTensioning, types.MetricFinalLoad, mfs[FamilyFinalLoad], scrapedAt)
	case config.StageCompaction:
		return seriesReadings(types.StageCompaction, types.MetricRPM, mfs[FamilyRPM], scrapedAt)
	case config.StageCuring:
		return curingReadings(sourceID, mfs[FamilyCuringPhase], scrapedAt)
	}
	return nil
}

// batchReadings groups ingredient weights by batch into one batching record
// per batch. Ingredients not exposed are recorded as 0.
func batchReadings(sourceID string, mf *dto.MetricFamily, scrapedAt time.Time) []reading {
	if mf == nil {
		return nil
	}
	known := make(map[string]bool, len(types.Ingredients))
	for _, ing := range types.Ingredients {
		known[string(ing)] = true
	}

	batches := make(map[string]*types.ActualRecord)
	var order []string
	for _, m := range mf.GetMetric() {
		labels := labelMap(m)
		batch, ing := labels[labelBatch], strings.ToLower(labels[labelIngredient])
		v, ok := sampleValue(m)
		if batch == "" || !ok {
			continue
		}
		if !known[ing] {
			slog.Debug("scada: ignoring unknown ingredient", "source", sourceID, "ingredient", ing)
			continue
		}
		rec, seen := batches[batch]
		if !seen {
			rec = newRecord(batch, types.StageBatching, sampleTime(m, scrapedAt))
			for _, ing := range types.Ingredients {
				rec.Values[string(ing)] = 0
			}
			batches[batch] = rec
			order = append(order, batch)
		}
		rec.Values[ing] = v
	}

	out := make([]reading, 0, len(order))
	for _, batch := range order {
		rec := batches[batch]
		out = append(out, reading{
			Key:       "batching|" + batch,
			Signature: valueSignature(rec.Values),
			Record:    rec,
		})
	}
	return out
}

// seriesReadings maps every series of a single-metric family to its own
// record. The series labels other than batch_no become part of the key, so
// each tendon or vibrator is tracked independently.
func seriesReadings(stage types.Stage, metric string, mf *dto.MetricFamily, scrapedAt time.Time) []reading {
	if mf == nil {
		return nil
	}
	var out []reading
	for _, m := range mf.GetMetric() {
		labels := labelMap(m)
		batch := labels[labelBatch]
		v, ok := sampleValue(m)
		if batch == "" || !ok {
			continue
		}
		rec := newRecord(batch, stage, sampleTime(m, scrapedAt))
		rec.Values[metric] = v
		out = append(out, reading{
			Key:       string(stage) + "|" + seriesKey(labels),
			Signature: valueSignature(rec.Values),
			Record:    rec,
		})
	}
	return out
}

// curingReadings groups phase gauges by batch and chamber. A cycle is only
// reported once every phase is exposed; a cycle still in progress would
// otherwise fail on its missing phases.
func curingReadings(sourceID string, mf *dto.MetricFamily, scrapedAt time.Time) []reading {
	if mf == nil {
		return nil
	}
	known := make(map[types.Phase]bool, len(types.Phases))
	for _, p := range types.Phases {
		known[p] = true
	}

	cycles := make(map[string]*types.PhaseRecord)
	var order []string
	for _, m := range mf.GetMetric() {
		labels := labelMap(m)
		batch, phase := labels[labelBatch], types.Phase(labels[labelPhase])
		v, ok := sampleValue(m)
		if batch == "" || !ok {
			continue
		}
		if !known[phase] {
			slog.Debug("scada: ignoring unknown curing phase", "source", sourceID, "phase", phase)
			continue
		}
		key := batch + "|" + labels[labelChamber]
		rec, seen := cycles[key]
		if !seen {
			rec = &types.PhaseRecord{
				BatchNo:    batch,
				Chamber:    labels[labelChamber],
				Values:     make(map[types.Phase]float64, len(types.Phases)),
				RecordedAt: sampleTime(m, scrapedAt),
			}
			cycles[key] = rec
			order = append(order, key)
		}
		rec.Values[phase] = v
	}

	var out []reading
	for _, key := range order {
		rec := cycles[key]
		if len(rec.Values) < len(types.Phases) {
			continue
		}
		sig := make(map[string]float64, len(rec.Values))
		for p, v := range rec.Values {
			sig[string(p)] = v
		}
		out = append(out, reading{
			Key:       "curing|" + key,
			Signature: valueSignature(sig),
			Phase:     rec,
		})
	}
	return out
}

func newRecord(batch string, stage types.Stage, at time.Time) *types.ActualRecord {
	return &types.ActualRecord{
		BatchNo:    batch,
		Stage:      stage,
		Source:     types.SourceScada,
		Values:     make(map[string]float64, len(types.Ingredients)),
		RecordedAt: at,
	}
}

// sampleValue returns the value of a counter, gauge or untyped sample.
// NaN and infinite samples (a PLC with a faulted sensor) carry no reading
// and are skipped.
func sampleValue(m *dto.Metric) (float64, bool) {
	var v float64
	switch {
	case m.Gauge != nil:
		v = m.Gauge.GetValue()
	case m.Counter != nil:
		v = m.Counter.GetValue()
	case m.Untyped != nil:
		v = m.Untyped.GetValue()
	default:
		return 0, false
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// sampleTime prefers the exposition timestamp of a sample over the scrape time.
func sampleTime(m *dto.Metric, scrapedAt time.Time) time.Time {
	if ms := m.GetTimestampMs(); ms > 0 {
		return time.UnixMilli(ms).UTC()
	}
	return scrapedAt
}

func labelMap(m *dto.Metric) map[string]string {
	out := make(map[string]string, len(m.GetLabel()))
	for _, lp := range m.GetLabel() {
		out[lp.GetName()] = lp.GetValue()
	}
	return out
}

// seriesKey renders labels in name order as name=value pairs.
func seriesKey(labels map[string]string) string {
	names := make([]string, 0, len(labels))
	for n := range labels {
		names = append(names, n)
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, n := range names {
		parts[i] = n + "=" + labels[n]
	}
	return strings.Join(parts, ",")
}

// valueSignature renders values in key order at full precision.
func valueSignature(values map[string]float64) string {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(strconv.FormatFloat(values[k], 'g', -1, 64))
		b.WriteByte(';')
	}
	return b.String()
}
