package api

import (
	"github.com/sleeperqc/sleeperqc/pkg/qc"
	"github.com/sleeperqc/sleeperqc/pkg/report"
	"github.com/sleeperqc/sleeperqc/pkg/types"
)

// HealthResponse is the payload for GET /api/v1/health.
type HealthResponse struct {
	State          string `json:"state"` // "ok" | "attention"
	ContainerCount int    `json:"container_count"`
	NotOKBatches   int    `json:"not_ok_batches"`
	AlertCount     int    `json:"alert_count"`
	GeneratedAt    string `json:"generated_at"`
}

// ContainerResponse is one entry in GET /api/v1/containers.
type ContainerResponse struct {
	ID           string `json:"id"`
	Batches      int    `json:"batches"`
	Records      int    `json:"records"`
	Phases       int    `json:"phases"`
	CubeSets     int    `json:"cube_sets"`
	HasMoisture  bool   `json:"has_moisture"`
	NotOKBatches int    `json:"not_ok_batches"`
}

// ReportResponse is the payload for GET /api/v1/containers/{cid}/report.
type ReportResponse struct {
	report.ShiftReport
	Diagnostics []DiagnosticHint `json:"diagnostics"`
}

// DeviationResponse is the payload for
// GET /api/v1/containers/{cid}/batches/{batch}/deviations.
type DeviationResponse struct {
	BatchNo    string                                `json:"batch_no"`
	Status     types.ProportionStatus                `json:"status"`
	Deviations map[types.Ingredient]qc.DeviationStat `json:"deviations"`
}

// --- request bodies ---------------------------------------------------------
//
// Numeric fields arrive as raw form values (numbers, numeric strings or
// blanks) and are normalized through pkg/types before reaching the store.

type declareRequest struct {
	BatchNo   string         `json:"batch_no"`
	SetValues map[string]any `json:"set_values"`
	Reference map[string]any `json:"reference"`
}

type recordRequest struct {
	ID      string         `json:"id"`
	BatchNo string         `json:"batch_no"`
	Stage   string         `json:"stage"`
	Source  string         `json:"source"`
	Values  map[string]any `json:"values"`
}

type editRequest struct {
	Values map[string]any `json:"values"`
}

type phaseRequest struct {
	ID      string         `json:"id"`
	BatchNo string         `json:"batch_no"`
	Chamber string         `json:"chamber"`
	Values  map[string]any `json:"values"`
}

type cubesRequest struct {
	BatchNo   string `json:"batch_no"`
	Grade     string `json:"grade"`
	Strengths []any  `json:"strengths"`
}

type moistureRequest struct {
	Samples         map[string]map[string]any `json:"samples"`
	UserDryWaterKg  any                       `json:"user_dry_water_kg"`
	UserDryCementKg any                       `json:"user_dry_cement_kg"`
}

type sigmaRequest struct {
	Values      []any `json:"values"`
	Theoretical any   `json:"theoretical"`
}

type errorResponse struct {
	Error string `json:"error"`
}
