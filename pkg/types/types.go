package types

import "time"

// Ingredient is a batch ingredient key.
type Ingredient string

const (
	CA1       Ingredient = "ca1"
	CA2       Ingredient = "ca2"
	FA        Ingredient = "fa"
	Cement    Ingredient = "cement"
	Water     Ingredient = "water"
	Admixture Ingredient = "admixture"
)

// Ingredients is the fixed, ordered key set of every batch.
var Ingredients = []Ingredient{CA1, CA2, FA, Cement, Water, Admixture}

// IngredientSetValues maps each ingredient to the operator-declared set value.
type IngredientSetValues map[Ingredient]float64

// ReferenceWeights maps each ingredient to its mix-design (adjusted) weight.
type ReferenceWeights map[Ingredient]float64

// ProportionStatus is the derived verdict of a batch declaration.
type ProportionStatus string

const (
	ProportionOK    ProportionStatus = "OK"
	ProportionNotOK ProportionStatus = "NOT_OK"
)

// BatchDeclaration is one batch class declared by an operator.
// Status is always recomputed from SetValues and Reference when stored.
type BatchDeclaration struct {
	BatchNo    string              `json:"batch_no" yaml:"batch_no"`
	SetValues  IngredientSetValues `json:"set_values" yaml:"set_values"`
	Reference  ReferenceWeights    `json:"reference" yaml:"reference"`
	Status     ProportionStatus    `json:"status" yaml:"status"`
	DeclaredAt time.Time           `json:"declared_at" yaml:"declared_at"`
}

// Source tells whether a record came from SCADA or was keyed in by hand.
type Source string

const (
	SourceScada  Source = "Scada"
	SourceManual Source = "Manual"
)

// Stage is the process stage an ActualRecord was measured at.
type Stage string

const (
	StageBatching   Stage = "batching"
	StageTensioning Stage = "tensioning"
	StageCompaction Stage = "compaction"
)

// Metric keys carried by non-batching records.
const (
	MetricFinalLoad = "final_load"
	MetricRPM       = "rpm"
)

// ValidStage reports whether s is a known record stage.
func ValidStage(s Stage) bool {
	switch s {
	case StageBatching, StageTensioning, StageCompaction:
		return true
	}
	return false
}

// ValidSource reports whether s is a known record source.
func ValidSource(s Source) bool {
	return s == SourceScada || s == SourceManual
}

// ActualRecord is a witnessed or manually entered measurement for one batch.
// Batching records carry one value per ingredient key; tensioning records
// carry MetricFinalLoad and compaction records MetricRPM.
type ActualRecord struct {
	ID         string             `json:"id" yaml:"id"`
	BatchNo    string             `json:"batch_no" yaml:"batch_no"`
	Stage      Stage              `json:"stage" yaml:"stage"`
	Source     Source             `json:"source" yaml:"source"`
	Values     map[string]float64 `json:"values" yaml:"values"`
	RecordedAt time.Time          `json:"recorded_at" yaml:"recorded_at"`
	EditedAt   *time.Time         `json:"edited_at,omitempty" yaml:"edited_at,omitempty"`
}

// Value returns the record's value for key, or 0 when absent.
func (r ActualRecord) Value(key string) float64 {
	return r.Values[key]
}

// Aggregate is an aggregate type sampled for moisture.
type Aggregate string

const (
	AggregateCA1 Aggregate = "CA1"
	AggregateCA2 Aggregate = "CA2"
	AggregateFA  Aggregate = "FA"
)

// Aggregates is the fixed order moisture corrections are reported in.
var Aggregates = []Aggregate{AggregateCA1, AggregateCA2, AggregateFA}

// MoistureSample holds the three lab inputs for one aggregate plus the dry
// batch weight the correction is applied to.
type MoistureSample struct {
	WetSampleG       float64 `json:"wet_sample_g" yaml:"wet_sample_g"`
	DriedSampleG     float64 `json:"dried_sample_g" yaml:"dried_sample_g"`
	AbsorptionPct    float64 `json:"absorption_pct" yaml:"absorption_pct"`
	BatchDryWeightKg float64 `json:"batch_dry_weight_kg" yaml:"batch_dry_weight_kg"`
}

// MoistureSheet is the moisture analysis entered for a shift.
type MoistureSheet struct {
	Samples         map[Aggregate]MoistureSample `json:"samples" yaml:"samples"`
	UserDryWaterKg  float64                      `json:"user_dry_water_kg" yaml:"user_dry_water_kg"`
	UserDryCementKg float64                      `json:"user_dry_cement_kg" yaml:"user_dry_cement_kg"`
}

// Phase names one steam-curing phase.
type Phase string

const (
	PhasePreDur     Phase = "preDur"
	PhaseRisePeriod Phase = "risePeriod"
	PhaseRiseRate   Phase = "riseRate"
	PhaseConstTemp  Phase = "constTemp"
	PhaseConstDur   Phase = "constDur"
	PhaseCoolDur    Phase = "coolDur"
	PhaseCoolRate   Phase = "coolRate"
)

// Phases is the fixed phase order of a curing cycle.
var Phases = []Phase{
	PhasePreDur, PhaseRisePeriod, PhaseRiseRate,
	PhaseConstTemp, PhaseConstDur, PhaseCoolDur, PhaseCoolRate,
}

// PhaseRecord is one measured steam-curing cycle.
type PhaseRecord struct {
	ID         string            `json:"id" yaml:"id"`
	BatchNo    string            `json:"batch_no" yaml:"batch_no"`
	Chamber    string            `json:"chamber,omitempty" yaml:"chamber,omitempty"`
	Values     map[Phase]float64 `json:"values" yaml:"values"`
	RecordedAt time.Time         `json:"recorded_at" yaml:"recorded_at"`
}

// Grade is a concrete grade such as "M-55".
type Grade string

const (
	GradeM55 Grade = "M-55"
	GradeM60 Grade = "M-60"
)

// CubeSet is one set of cube crushing strengths (N/mm²) for a batch.
type CubeSet struct {
	ID        string    `json:"id" yaml:"id"`
	BatchNo   string    `json:"batch_no" yaml:"batch_no"`
	Grade     Grade     `json:"grade" yaml:"grade"`
	Strengths []float64 `json:"strengths" yaml:"strengths"`
	TestedAt  time.Time `json:"tested_at" yaml:"tested_at"`
}

// Shift is an immutable snapshot of one shift container: everything the
// report is computed from.
type Shift struct {
	ID           string             `json:"id" yaml:"id"`
	Declarations []BatchDeclaration `json:"declarations" yaml:"declarations"`
	Records      []ActualRecord     `json:"records" yaml:"records"`
	Phases       []PhaseRecord      `json:"phases" yaml:"phases"`
	Cubes        []CubeSet          `json:"cubes" yaml:"cubes"`
	Moisture     *MoistureSheet     `json:"moisture,omitempty" yaml:"moisture,omitempty"`
}
