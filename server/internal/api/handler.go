package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/sleeperqc/sleeperqc/pkg/qc"
	"github.com/sleeperqc/sleeperqc/pkg/report"
	"github.com/sleeperqc/sleeperqc/pkg/types"
	"github.com/sleeperqc/sleeperqc/server/internal/alerts"
	"github.com/sleeperqc/sleeperqc/server/internal/store"
)

const maxBodyBytes = 1 << 20

// AlertLister is the read side of the alert engine.
type AlertLister interface {
	Active() []*alerts.Alert
}

// Options wires the handler to the rest of the server.
type Options struct {
	// Report is passed to report.Build for every report the API serves.
	Report report.Options
	// Alerts backs GET /api/v1/alerts. Nil serves an empty list.
	Alerts AlertLister
	// OnChange is called with the container ID after every accepted write.
	OnChange func(containerID string)
}

// Handler is the HTTP handler for all /api/v1/* endpoints.
type Handler struct {
	store *store.Store
	opts  Options
	mux   *http.ServeMux
}

// New creates a Handler wired to the given shift store and registers all routes.
func New(st *store.Store, opts Options) http.Handler {
	h := &Handler{store: st, opts: opts, mux: http.NewServeMux()}

	h.mux.HandleFunc("GET /api/v1/health", h.health)
	h.mux.HandleFunc("GET /api/v1/alerts", h.alerts)
	h.mux.HandleFunc("GET /api/v1/containers", h.listContainers)
	h.mux.HandleFunc("GET /api/v1/containers/{cid}/report", h.report)
	h.mux.HandleFunc("GET /api/v1/containers/{cid}/batches", h.listBatches)
	h.mux.HandleFunc("POST /api/v1/containers/{cid}/batches", h.declare)
	h.mux.HandleFunc("GET /api/v1/containers/{cid}/batches/{batch}/deviations", h.deviations)
	h.mux.HandleFunc("POST /api/v1/containers/{cid}/records", h.addRecord)
	h.mux.HandleFunc("PUT /api/v1/containers/{cid}/records/{rid}", h.editRecord)
	h.mux.HandleFunc("POST /api/v1/containers/{cid}/phases", h.addPhase)
	h.mux.HandleFunc("POST /api/v1/containers/{cid}/cubes", h.addCubes)
	h.mux.HandleFunc("PUT /api/v1/containers/{cid}/moisture", h.setMoisture)
	h.mux.HandleFunc("POST /api/v1/calc/moisture", h.calcMoisture)
	h.mux.HandleFunc("POST /api/v1/calc/sigma", h.calcSigma)

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// --- read routes ------------------------------------------------------------

// health returns GET /api/v1/health: container count and headline state.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	shifts := h.store.Shifts()
	resp := HealthResponse{
		State:          "ok",
		ContainerCount: len(shifts),
		GeneratedAt:    time.Now().UTC().Format(time.RFC3339),
	}
	for _, sh := range shifts {
		resp.NotOKBatches += h.build(sh).Summary.NotOKBatches
	}
	for _, a := range h.activeAlerts() {
		if a.State == "firing" {
			resp.AlertCount++
		}
	}
	if resp.NotOKBatches > 0 || resp.AlertCount > 0 {
		resp.State = "attention"
	}
	jsonResp(w, http.StatusOK, resp)
}

// alerts returns GET /api/v1/alerts: firing and recently resolved alerts.
func (h *Handler) alerts(w http.ResponseWriter, r *http.Request) {
	jsonResp(w, http.StatusOK, h.activeAlerts())
}

// listContainers returns GET /api/v1/containers: one summary per live shift.
func (h *Handler) listContainers(w http.ResponseWriter, r *http.Request) {
	shifts := h.store.Shifts()
	out := make([]ContainerResponse, 0, len(shifts))
	for _, sh := range shifts {
		rep := h.build(sh)
		out = append(out, ContainerResponse{
			ID:           sh.ID,
			Batches:      len(rep.Batches),
			Records:      len(sh.Records),
			Phases:       len(sh.Phases),
			CubeSets:     len(sh.Cubes),
			HasMoisture:  sh.Moisture != nil,
			NotOKBatches: rep.Summary.NotOKBatches,
		})
	}
	jsonResp(w, http.StatusOK, out)
}

// report returns GET /api/v1/containers/{cid}/report: the full shift report
// plus diagnostic hints.
func (h *Handler) report(w http.ResponseWriter, r *http.Request) {
	sh, ok := h.store.Shift(r.PathValue("cid"))
	if !ok {
		jsonErr(w, http.StatusNotFound, "container not found")
		return
	}
	rep := h.build(sh)
	jsonResp(w, http.StatusOK, ReportResponse{ShiftReport: rep, Diagnostics: computeDiagnostics(rep)})
}

// listBatches returns GET /api/v1/containers/{cid}/batches: the current
// declaration of every batch class.
func (h *Handler) listBatches(w http.ResponseWriter, r *http.Request) {
	sh, ok := h.store.Shift(r.PathValue("cid"))
	if !ok {
		jsonErr(w, http.StatusNotFound, "container not found")
		return
	}
	jsonResp(w, http.StatusOK, h.build(sh).Batches)
}

// deviations returns the per-ingredient deviation of one batch class.
func (h *Handler) deviations(w http.ResponseWriter, r *http.Request) {
	sh, ok := h.store.Shift(r.PathValue("cid"))
	if !ok {
		jsonErr(w, http.StatusNotFound, "container not found")
		return
	}
	batch := r.PathValue("batch")
	for _, b := range h.build(sh).Batches {
		if b.BatchNo == batch {
			jsonResp(w, http.StatusOK, DeviationResponse{BatchNo: b.BatchNo, Status: b.Status, Deviations: b.Deviations})
			return
		}
	}
	jsonErr(w, http.StatusNotFound, "batch not declared")
}

// --- write routes -----------------------------------------------------------

func (h *Handler) declare(w http.ResponseWriter, r *http.Request) {
	var req declareRequest
	if !decode(w, r, &req) {
		return
	}
	cid := r.PathValue("cid")
	decl, err := h.store.Declare(cid, types.BatchDeclaration{
		BatchNo:   req.BatchNo,
		SetValues: types.NormalizeSetValues(req.SetValues),
		Reference: types.NormalizeReference(req.Reference),
	})
	h.respondWrite(w, cid, http.StatusCreated, decl, err)
}

func (h *Handler) addRecord(w http.ResponseWriter, r *http.Request) {
	var req recordRequest
	if !decode(w, r, &req) {
		return
	}
	cid := r.PathValue("cid")
	source := types.Source(req.Source)
	if source == "" {
		source = types.SourceManual
	}
	stage := types.Stage(req.Stage)
	rec, err := h.store.AddRecord(cid, types.ActualRecord{
		ID:      req.ID,
		BatchNo: req.BatchNo,
		Stage:   stage,
		Source:  source,
		Values:  types.NormalizeValues(stage, req.Values),
	})
	h.respondWrite(w, cid, http.StatusCreated, rec, err)
}

// editRecord corrects the values of an existing record. Values are
// normalized against the stage the record was taken at.
func (h *Handler) editRecord(w http.ResponseWriter, r *http.Request) {
	var req editRequest
	if !decode(w, r, &req) {
		return
	}
	cid, rid := r.PathValue("cid"), r.PathValue("rid")
	sh, ok := h.store.Shift(cid)
	if !ok {
		jsonErr(w, http.StatusNotFound, "container not found")
		return
	}
	var stage types.Stage
	for _, rec := range sh.Records {
		if rec.ID == rid {
			stage = rec.Stage
			break
		}
	}
	if stage == "" {
		jsonErr(w, http.StatusNotFound, "record not found")
		return
	}
	rec, err := h.store.EditRecord(cid, rid, types.NormalizeValues(stage, req.Values))
	h.respondWrite(w, cid, http.StatusOK, rec, err)
}

func (h *Handler) addPhase(w http.ResponseWriter, r *http.Request) {
	var req phaseRequest
	if !decode(w, r, &req) {
		return
	}
	cid := r.PathValue("cid")
	rec, err := h.store.AddPhase(cid, types.PhaseRecord{
		ID:      req.ID,
		BatchNo: req.BatchNo,
		Chamber: req.Chamber,
		Values:  types.NormalizePhaseValues(req.Values),
	})
	h.respondWrite(w, cid, http.StatusCreated, rec, err)
}

// addCubes stores a cube set and answers with the stored set and its verdict.
func (h *Handler) addCubes(w http.ResponseWriter, r *http.Request) {
	var req cubesRequest
	if !decode(w, r, &req) {
		return
	}
	cid := r.PathValue("cid")
	set, err := h.store.AddCubes(cid, types.CubeSet{
		BatchNo:   req.BatchNo,
		Grade:     types.Grade(req.Grade),
		Strengths: types.NormalizeStrengths(req.Strengths),
	})
	body := struct {
		types.CubeSet
		Verdict qc.StrengthVerdict `json:"verdict"`
	}{set, qc.EvaluateCubeSet(set)}
	h.respondWrite(w, cid, http.StatusCreated, body, err)
}

// setMoisture replaces the shift's moisture sheet and answers with the
// resulting correction.
func (h *Handler) setMoisture(w http.ResponseWriter, r *http.Request) {
	var req moistureRequest
	if !decode(w, r, &req) {
		return
	}
	cid := r.PathValue("cid")
	sheet := req.sheet()
	err := h.store.SetMoisture(cid, sheet)
	h.respondWrite(w, cid, http.StatusOK, qc.CorrectBatch(sheet), err)
}

// --- stateless calculators --------------------------------------------------

// calcMoisture corrects a moisture sheet without storing it.
func (h *Handler) calcMoisture(w http.ResponseWriter, r *http.Request) {
	var req moistureRequest
	if !decode(w, r, &req) {
		return
	}
	jsonResp(w, http.StatusOK, qc.CorrectBatch(req.sheet()))
}

// calcSigma classifies an ad-hoc sample population. A missing theoretical
// mean selects the default tensioning load.
func (h *Handler) calcSigma(w http.ResponseWriter, r *http.Request) {
	var req sigmaRequest
	if !decode(w, r, &req) {
		return
	}
	samples := make([]float64, 0, len(req.Values))
	for _, v := range req.Values {
		samples = append(samples, types.ParseNumber(v))
	}
	theoretical := types.ParseNumber(req.Theoretical)
	if req.Theoretical == nil {
		theoretical = h.theoreticalLoad()
	}
	jsonResp(w, http.StatusOK, qc.Classify(samples, theoretical))
}

// --- helpers ----------------------------------------------------------------

func (h *Handler) build(sh types.Shift) report.ShiftReport {
	return report.Build(sh, h.opts.Report)
}

func (h *Handler) theoreticalLoad() float64 {
	if h.opts.Report.TheoreticalLoad > 0 {
		return h.opts.Report.TheoreticalLoad
	}
	return qc.DefaultTheoreticalLoad
}

func (h *Handler) activeAlerts() []*alerts.Alert {
	if h.opts.Alerts == nil {
		return []*alerts.Alert{}
	}
	out := h.opts.Alerts.Active()
	if out == nil {
		out = []*alerts.Alert{}
	}
	return out
}

// respondWrite maps a store mutation result to a response and notifies
// OnChange when the write was accepted.
func (h *Handler) respondWrite(w http.ResponseWriter, cid string, code int, body any, err error) {
	if err != nil {
		jsonErr(w, statusFor(err), err.Error())
		return
	}
	if h.opts.OnChange != nil {
		h.opts.OnChange(cid)
	}
	jsonResp(w, code, body)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrEditWindowClosed), errors.Is(err, store.ErrDuplicate):
		return http.StatusConflict
	case errors.Is(err, store.ErrInvalid):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		jsonErr(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

// sheet normalizes the raw sheet. Unknown aggregate keys are ignored.
func (m moistureRequest) sheet() types.MoistureSheet {
	sheet := types.MoistureSheet{
		Samples:         make(map[types.Aggregate]types.MoistureSample, len(m.Samples)),
		UserDryWaterKg:  types.ParseNumber(m.UserDryWaterKg),
		UserDryCementKg: types.ParseNumber(m.UserDryCementKg),
	}
	for _, agg := range types.Aggregates {
		if raw, ok := m.Samples[string(agg)]; ok {
			sheet.Samples[agg] = types.NormalizeMoistureSample(raw)
		}
	}
	return sheet
}

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}
