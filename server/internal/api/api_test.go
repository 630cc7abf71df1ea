package api_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sleeperqc/sleeperqc/pkg/types"
	"github.com/sleeperqc/sleeperqc/server/internal/alerts"
	"github.com/sleeperqc/sleeperqc/server/internal/api"
	"github.com/sleeperqc/sleeperqc/server/internal/store"
)

// --- test helpers -----------------------------------------------------------

func newHandler(st *store.Store, changed *[]string) http.Handler {
	return api.New(st, api.Options{
		OnChange: func(cid string) {
			if changed != nil {
				*changed = append(*changed, cid)
			}
		},
	})
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(method, path, strings.NewReader(body)))
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("decode JSON: %v (body: %s)", err, rr.Body.String())
	}
}

func wantStatus(t *testing.T, rr *httptest.ResponseRecorder, code int) {
	t.Helper()
	if rr.Code != code {
		t.Fatalf("status: got %d, want %d (body: %s)", rr.Code, code, rr.Body.String())
	}
}

const okBatch = `{
	"batch_no": "B-1",
	"set_values": {"ca1": 436, "ca2": "290", "fa": 550, "cement": 440, "water": 150, "admixture": 4.4},
	"reference": {"ca1": 436, "ca2": 290, "fa": 550, "cement": 440, "water": 150, "admixture": 4.4}
}`

const badBatch = `{
	"batch_no": "B-2",
	"set_values": {"ca1": 450, "ca2": 290, "fa": 550, "cement": 440, "water": 150, "admixture": 4.4},
	"reference": {"ca1": 436, "ca2": 290, "fa": 550, "cement": 440, "water": 150, "admixture": 4.4}
}`

// --- /api/v1/health ---------------------------------------------------------

func TestHealth_EmptyStore(t *testing.T) {
	h := newHandler(store.New(time.Hour, time.Hour), nil)
	rr := do(t, h, http.MethodGet, "/api/v1/health", "")
	wantStatus(t, rr, http.StatusOK)

	var resp api.HealthResponse
	decode(t, rr, &resp)
	if resp.State != "ok" {
		t.Errorf("state: got %q, want ok", resp.State)
	}
	if resp.ContainerCount != 0 {
		t.Errorf("container_count: got %d, want 0", resp.ContainerCount)
	}
}

func TestHealth_NotOKBatchNeedsAttention(t *testing.T) {
	h := newHandler(store.New(time.Hour, time.Hour), nil)
	wantStatus(t, do(t, h, http.MethodPost, "/api/v1/containers/shift-a/batches", okBatch), http.StatusCreated)
	wantStatus(t, do(t, h, http.MethodPost, "/api/v1/containers/shift-a/batches", badBatch), http.StatusCreated)

	var resp api.HealthResponse
	decode(t, do(t, h, http.MethodGet, "/api/v1/health", ""), &resp)
	if resp.State != "attention" || resp.NotOKBatches != 1 || resp.ContainerCount != 1 {
		t.Errorf("health: got %+v, want attention with 1 NOT_OK batch in 1 container", resp)
	}
}

func TestHealth_MethodNotAllowed(t *testing.T) {
	h := newHandler(store.New(time.Hour, time.Hour), nil)
	rr := do(t, h, http.MethodPost, "/api/v1/health", "")
	wantStatus(t, rr, http.StatusMethodNotAllowed)
}

// --- declarations -----------------------------------------------------------

func TestDeclare_RecomputesStatus(t *testing.T) {
	var changed []string
	h := newHandler(store.New(time.Hour, time.Hour), &changed)

	rr := do(t, h, http.MethodPost, "/api/v1/containers/shift-a/batches", badBatch)
	wantStatus(t, rr, http.StatusCreated)
	var decl types.BatchDeclaration
	decode(t, rr, &decl)
	if decl.Status != types.ProportionNotOK {
		t.Errorf("status: got %q, want NOT_OK", decl.Status)
	}
	if len(changed) != 1 || changed[0] != "shift-a" {
		t.Errorf("OnChange calls: got %v, want [shift-a]", changed)
	}

	var batches []map[string]interface{}
	decode(t, do(t, h, http.MethodGet, "/api/v1/containers/shift-a/batches", ""), &batches)
	if len(batches) != 1 || batches[0]["status"] != "NOT_OK" {
		t.Errorf("batches: got %v", batches)
	}
}

func TestDeclare_Invalid(t *testing.T) {
	var changed []string
	h := newHandler(store.New(time.Hour, time.Hour), &changed)

	wantStatus(t, do(t, h, http.MethodPost, "/api/v1/containers/shift-a/batches", "{"), http.StatusBadRequest)
	wantStatus(t, do(t, h, http.MethodPost, "/api/v1/containers/shift-a/batches", `{"set_values":{}}`), http.StatusBadRequest)
	if len(changed) != 0 {
		t.Errorf("OnChange must not fire for rejected writes, got %v", changed)
	}
}

// --- records ----------------------------------------------------------------

func TestRecords_DeviationsFromManualEntry(t *testing.T) {
	h := newHandler(store.New(time.Hour, time.Hour), nil)
	wantStatus(t, do(t, h, http.MethodPost, "/api/v1/containers/shift-a/batches", okBatch), http.StatusCreated)

	rr := do(t, h, http.MethodPost, "/api/v1/containers/shift-a/records",
		`{"batch_no":"B-1","stage":"batching","values":{"ca1":"448","ca2":290,"fa":550,"cement":440,"water":150,"admixture":4.4}}`)
	wantStatus(t, rr, http.StatusCreated)
	var rec types.ActualRecord
	decode(t, rr, &rec)
	if rec.Source != types.SourceManual {
		t.Errorf("source: got %q, want Manual by default", rec.Source)
	}
	if rec.ID == "" {
		t.Error("record ID must be assigned")
	}

	var dev api.DeviationResponse
	rr = do(t, h, http.MethodGet, "/api/v1/containers/shift-a/batches/B-1/deviations", "")
	wantStatus(t, rr, http.StatusOK)
	decode(t, rr, &dev)
	ca1 := dev.Deviations[types.CA1]
	if ca1.Count != 1 || ca1.OutlierCount != 0 {
		t.Errorf("ca1 deviation: got %+v", ca1)
	}
	if ca1.MaxPositiveDeviationPct < 2.75 || ca1.MaxPositiveDeviationPct > 2.76 {
		t.Errorf("ca1 max positive: got %v, want ~2.75", ca1.MaxPositiveDeviationPct)
	}

	wantStatus(t, do(t, h, http.MethodGet, "/api/v1/containers/shift-a/batches/B-9/deviations", ""), http.StatusNotFound)
	wantStatus(t, do(t, h, http.MethodGet, "/api/v1/containers/nope/batches/B-1/deviations", ""), http.StatusNotFound)
}

func TestRecords_Rejections(t *testing.T) {
	h := newHandler(store.New(time.Hour, time.Hour), nil)

	wantStatus(t, do(t, h, http.MethodPost, "/api/v1/containers/shift-a/records",
		`{"batch_no":"B-1","stage":"mixing","values":{}}`), http.StatusBadRequest)
	wantStatus(t, do(t, h, http.MethodPost, "/api/v1/containers/shift-a/records",
		`{"batch_no":"B-1","stage":"compaction","source":"Robot","values":{"rpm":9000}}`), http.StatusBadRequest)

	body := `{"id":"r-1","batch_no":"B-1","stage":"compaction","values":{"rpm":9000}}`
	wantStatus(t, do(t, h, http.MethodPost, "/api/v1/containers/shift-a/records", body), http.StatusCreated)
	wantStatus(t, do(t, h, http.MethodPost, "/api/v1/containers/shift-a/records", body), http.StatusConflict)
}

func TestEditRecord(t *testing.T) {
	st := store.New(time.Hour, 8*time.Hour)
	h := newHandler(st, nil)

	if _, err := st.AddRecord("shift-a", types.ActualRecord{
		ID: "fresh", BatchNo: "B-1", Stage: types.StageTensioning, Source: types.SourceManual,
		Values: map[string]float64{types.MetricFinalLoad: 700},
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := st.AddRecord("shift-a", types.ActualRecord{
		ID: "old", BatchNo: "B-1", Stage: types.StageTensioning, Source: types.SourceManual,
		Values:     map[string]float64{types.MetricFinalLoad: 700},
		RecordedAt: time.Now().Add(-9 * time.Hour),
	}); err != nil {
		t.Fatal(err)
	}

	rr := do(t, h, http.MethodPut, "/api/v1/containers/shift-a/records/fresh", `{"values":{"final_load":"731.5"}}`)
	wantStatus(t, rr, http.StatusOK)
	var rec types.ActualRecord
	decode(t, rr, &rec)
	if rec.Value(types.MetricFinalLoad) != 731.5 {
		t.Errorf("final_load: got %v, want 731.5", rec.Value(types.MetricFinalLoad))
	}
	if rec.EditedAt == nil {
		t.Error("EditedAt must be set after an edit")
	}

	wantStatus(t, do(t, h, http.MethodPut, "/api/v1/containers/shift-a/records/old", `{"values":{"final_load":731}}`), http.StatusConflict)
	wantStatus(t, do(t, h, http.MethodPut, "/api/v1/containers/shift-a/records/missing", `{"values":{}}`), http.StatusNotFound)
	wantStatus(t, do(t, h, http.MethodPut, "/api/v1/containers/nope/records/fresh", `{"values":{}}`), http.StatusNotFound)
}

// --- phases, cubes, moisture ------------------------------------------------

func TestCubes_EveryCubeMustPass(t *testing.T) {
	h := newHandler(store.New(time.Hour, time.Hour), nil)
	rr := do(t, h, http.MethodPost, "/api/v1/containers/shift-a/cubes",
		`{"batch_no":"B-1","grade":"M-55","strengths":[41,"42",39.9]}`)
	wantStatus(t, rr, http.StatusCreated)

	var resp struct {
		ID      string `json:"id"`
		Verdict struct {
			Pass    bool  `json:"pass"`
			Failing []int `json:"failing"`
		} `json:"verdict"`
	}
	decode(t, rr, &resp)
	if resp.ID == "" {
		t.Error("cube set ID must be assigned")
	}
	if resp.Verdict.Pass || len(resp.Verdict.Failing) != 1 || resp.Verdict.Failing[0] != 2 {
		t.Errorf("verdict: got %+v, want fail on cube 2", resp.Verdict)
	}

	wantStatus(t, do(t, h, http.MethodPost, "/api/v1/containers/shift-a/cubes",
		`{"batch_no":"B-1","strengths":[60]}`), http.StatusBadRequest)
}

func TestReport_CuringAndMoisture(t *testing.T) {
	h := newHandler(store.New(time.Hour, time.Hour), nil)
	wantStatus(t, do(t, h, http.MethodGet, "/api/v1/containers/shift-a/report", ""), http.StatusNotFound)

	// constTemp 65 exceeds its 60 °C cap.
	wantStatus(t, do(t, h, http.MethodPost, "/api/v1/containers/shift-a/phases",
		`{"batch_no":"B-1","values":{"preDur":2.5,"risePeriod":2.5,"riseRate":12,"constTemp":65,"constDur":5,"coolDur":2.5,"coolRate":12}}`),
		http.StatusCreated)
	wantStatus(t, do(t, h, http.MethodPut, "/api/v1/containers/shift-a/moisture",
		`{"samples":{"CA1":{"wet_sample_g":520,"dried_sample_g":500,"absorption_pct":1,"batch_dry_weight_kg":436.2}},"user_dry_water_kg":150,"user_dry_cement_kg":440}`),
		http.StatusOK)

	rr := do(t, h, http.MethodGet, "/api/v1/containers/shift-a/report", "")
	wantStatus(t, rr, http.StatusOK)
	var resp api.ReportResponse
	decode(t, rr, &resp)

	if resp.ContainerID != "shift-a" {
		t.Errorf("container_id: got %q", resp.ContainerID)
	}
	if resp.Summary.CuringFailures != 1 {
		t.Errorf("curing_failures: got %d, want 1", resp.Summary.CuringFailures)
	}
	if resp.Moisture == nil || resp.Moisture.Aggregates[types.AggregateCA1].AdoptedWeightKg != 450 {
		t.Errorf("moisture: got %+v, want CA1 adopted 450", resp.Moisture)
	}
	if len(resp.Diagnostics) == 0 || resp.Diagnostics[0].Key != "curing_failures" {
		t.Errorf("diagnostics: got %+v, want curing_failures first", resp.Diagnostics)
	}
}

// --- stateless calculators --------------------------------------------------

func TestCalcMoisture(t *testing.T) {
	h := newHandler(store.New(time.Hour, time.Hour), nil)
	rr := do(t, h, http.MethodPost, "/api/v1/calc/moisture",
		`{"samples":{"CA1":{"wet_sample_g":"520","dried_sample_g":500,"absorption_pct":1,"batch_dry_weight_kg":436.2},"XX":{}},"user_dry_water_kg":150,"user_dry_cement_kg":440}`)
	wantStatus(t, rr, http.StatusOK)

	var resp struct {
		Aggregates map[string]struct {
			AdoptedWeightKg float64 `json:"adopted_weight_kg"`
		} `json:"aggregates"`
	}
	decode(t, rr, &resp)
	if resp.Aggregates["CA1"].AdoptedWeightKg != 450 {
		t.Errorf("CA1 adopted: got %v, want 450", resp.Aggregates["CA1"].AdoptedWeightKg)
	}
	if _, ok := resp.Aggregates["XX"]; ok {
		t.Error("unknown aggregate keys must be ignored")
	}
}

func TestCalcSigma_DefaultTheoretical(t *testing.T) {
	h := newHandler(store.New(time.Hour, time.Hour), nil)
	rr := do(t, h, http.MethodPost, "/api/v1/calc/sigma", `{"values":[720,730,"740"]}`)
	wantStatus(t, rr, http.StatusOK)

	var resp struct {
		Count           int     `json:"count"`
		Mean            float64 `json:"mean"`
		TheoreticalMean float64 `json:"theoretical_mean"`
	}
	decode(t, rr, &resp)
	if resp.Count != 3 || resp.Mean != 730 || resp.TheoreticalMean != 730 {
		t.Errorf("sigma: got %+v", resp)
	}
}

// --- containers and alerts --------------------------------------------------

type fixedAlerts []*alerts.Alert

func (f fixedAlerts) Active() []*alerts.Alert { return f }

func TestContainersAndAlerts(t *testing.T) {
	st := store.New(time.Hour, time.Hour)
	h := api.New(st, api.Options{Alerts: fixedAlerts{{ID: "a1", State: "firing", ContainerID: "shift-a"}}})
	wantStatus(t, do(t, h, http.MethodPost, "/api/v1/containers/shift-b/batches", okBatch), http.StatusCreated)
	wantStatus(t, do(t, h, http.MethodPost, "/api/v1/containers/shift-a/batches", badBatch), http.StatusCreated)

	var list []api.ContainerResponse
	decode(t, do(t, h, http.MethodGet, "/api/v1/containers", ""), &list)
	if len(list) != 2 {
		t.Fatalf("containers: got %d, want 2", len(list))
	}
	for _, c := range list {
		if c.ID == "shift-a" && c.NotOKBatches != 1 {
			t.Errorf("shift-a not_ok_batches: got %d, want 1", c.NotOKBatches)
		}
	}

	var active []map[string]interface{}
	decode(t, do(t, h, http.MethodGet, "/api/v1/alerts", ""), &active)
	if len(active) != 1 || active[0]["id"] != "a1" {
		t.Errorf("alerts: got %v", active)
	}

	var health api.HealthResponse
	decode(t, do(t, h, http.MethodGet, "/api/v1/health", ""), &health)
	if health.AlertCount != 1 {
		t.Errorf("alert_count: got %d, want 1", health.AlertCount)
	}
}

func TestAlerts_NilEngineReturnsEmptyArray(t *testing.T) {
	h := newHandler(store.New(time.Hour, time.Hour), nil)
	rr := do(t, h, http.MethodGet, "/api/v1/alerts", "")
	wantStatus(t, rr, http.StatusOK)
	if got := strings.TrimSpace(rr.Body.String()); got != "[]" {
		t.Errorf("body: got %s, want []", got)
	}
}

func TestContentTypeJSON(t *testing.T) {
	h := newHandler(store.New(time.Hour, time.Hour), nil)
	for _, path := range []string{"/api/v1/health", "/api/v1/containers", "/api/v1/alerts"} {
		rr := do(t, h, http.MethodGet, path, "")
		if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
			t.Errorf("%s Content-Type: got %q", path, ct)
		}
	}
}
