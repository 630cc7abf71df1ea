package alerts

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sleeperqc/sleeperqc/pkg/report"
	"github.com/sleeperqc/sleeperqc/server/internal/config"
)

func shiftReport(cid string, s report.Summary) report.ShiftReport {
	return report.ShiftReport{ContainerID: cid, Summary: s}
}

func TestEvalCondition(t *testing.T) {
	r := shiftReport("s", report.Summary{
		NotOKBatches:           1,
		IngredientOutliers:     4,
		TensionOutOfControlPct: 12.5,
		TensionCV:              1.2,
		RPMOutOfSpec:           0,
		CuringFailures:         2,
		StrengthFailures:       1,
		WaterCementRatio:       0.42,
	})
	tests := []struct {
		cond      string
		wantFire  bool
		wantValue float64
	}{
		{"not_ok_batches > 0", true, 1},
		{"ingredient_outliers >= 5", false, 4},
		{"tension_out_of_control_pct > 10", true, 12.5},
		{"tension_cv < 1", false, 1.2},
		{"rpm_out_of_spec == 0", true, 0},
		{"curing_failures != 0", true, 2},
		{"strength_failures > 0", true, 1},
		{"water_cement_ratio > 0.4", true, 0.42},
		{"unknown_field > 0", false, 0},
		{"not_ok_batches >", false, 0},
		{"not_ok_batches > many", false, 0},
		{"not_ok_batches ~ 0", false, 1},
	}
	for _, tc := range tests {
		t.Run(tc.cond, func(t *testing.T) {
			fires, v := evalCondition(tc.cond, r)
			assert.Equal(t, tc.wantFire, fires)
			assert.Equal(t, tc.wantValue, v)
		})
	}
}

func TestEvaluate_FireCooldownResolve(t *testing.T) {
	base := time.Date(2024, 3, 1, 6, 0, 0, 0, time.UTC)
	e := New(config.AlertsConfig{Rules: []config.AlertRule{
		{Name: "strength", Condition: "strength_failures > 0", Severity: "critical", Cooldown: 10 * time.Minute},
	}})
	e.now = func() time.Time { return base }

	failing := shiftReport("shift-a", report.Summary{StrengthFailures: 1})
	e.Evaluate(failing)

	active := e.Active()
	require.Len(t, active, 1)
	assert.Equal(t, "firing", active[0].State)
	assert.Equal(t, "shift-a", active[0].ContainerID)
	assert.Equal(t, "critical", active[0].Severity)
	firstID := active[0].ID

	// Within cooldown: no new alert.
	e.now = func() time.Time { return base.Add(5 * time.Minute) }
	e.Evaluate(failing)
	active = e.Active()
	require.Len(t, active, 1)
	assert.Equal(t, firstID, active[0].ID)

	// Condition clears: resolved and kept in recent history.
	e.now = func() time.Time { return base.Add(6 * time.Minute) }
	e.Evaluate(shiftReport("shift-a", report.Summary{}))
	active = e.Active()
	require.Len(t, active, 1)
	assert.Equal(t, "resolved", active[0].State)
	require.NotNil(t, active[0].ResolvedAt)

	// Past the recent window the resolved alert drops out.
	e.now = func() time.Time { return base.Add(2 * time.Hour) }
	assert.Empty(t, e.Active())
}

func TestEvaluate_PerContainerKeys(t *testing.T) {
	e := New(config.AlertsConfig{Rules: []config.AlertRule{
		{Name: "proportion", Condition: "not_ok_batches > 0"},
	}})
	e.Evaluate(shiftReport("a", report.Summary{NotOKBatches: 1}))
	e.Evaluate(shiftReport("b", report.Summary{NotOKBatches: 2}))

	active := e.Active()
	require.Len(t, active, 2)
	for _, a := range active {
		assert.Equal(t, "warning", a.Severity, "severity defaults to warning")
	}
}

func TestEvaluate_NoRulesIsNoop(t *testing.T) {
	e := New(config.AlertsConfig{})
	e.Evaluate(shiftReport("a", report.Summary{NotOKBatches: 3}))
	assert.Empty(t, e.Active())
}

func TestDeliver_Webhooks(t *testing.T) {
	var (
		mu     sync.Mutex
		bodies []map[string]any
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var m map[string]any
		json.Unmarshal(raw, &m) //nolint:errcheck
		mu.Lock()
		bodies = append(bodies, m)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()
	t.Setenv("QC_SLACK_URL", srv.URL)
	t.Setenv("QC_HTTP_URL", srv.URL)

	e := New(config.AlertsConfig{
		Rules: []config.AlertRule{{Name: "curing", Condition: "curing_failures > 0"}},
		Webhooks: []config.WebhookConfig{
			{Type: "slack", URLEnv: "QC_SLACK_URL"},
			{Type: "http", URLEnv: "QC_HTTP_URL"},
			{Type: "teams", URLEnv: "QC_UNSET_URL"}, // no URL: skipped
		},
		RatePerMinute: 60,
	})
	e.Evaluate(shiftReport("shift-a", report.Summary{CuringFailures: 1}))
	e.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, bodies, 2)
	assert.Contains(t, bodies[0]["text"], "curing")
	alert, ok := bodies[1]["alert"].(map[string]any)
	require.True(t, ok, "http payload wraps the alert")
	assert.Equal(t, "shift-a", alert["container_id"])
}

func TestNew_RateLimiter(t *testing.T) {
	limited := New(config.AlertsConfig{RatePerMinute: 2})
	assert.Equal(t, 2, limited.limiter.Burst())
	assert.InDelta(t, 2.0/60, float64(limited.limiter.Limit()), 1e-9)

	unlimited := New(config.AlertsConfig{})
	assert.True(t, unlimited.limiter.Allow())
}

func TestPayloads_ResolvedAlert(t *testing.T) {
	fired := time.Date(2024, 3, 1, 6, 0, 0, 0, time.UTC)
	resolved := fired.Add(time.Hour)
	a := &Alert{
		RuleName:    "strength",
		ContainerID: "shift-a",
		Severity:    "critical",
		Message:     "strength_failures > 0",
		FiredAt:     fired,
		ResolvedAt:  &resolved,
		State:       "resolved",
	}

	slack := slackPayload(a).(map[string]string)
	assert.Equal(t, "*Resolved: strength on shift shift-a*", slack["text"])

	card := teamsPayload(a).(map[string]any)
	assert.Equal(t, "2EB67D", card["themeColor"])
	sections := card["sections"].([]map[string]any)
	facts := sections[0]["facts"].([]map[string]string)
	assert.Equal(t, "Resolved", facts[len(facts)-1]["name"])

	a.State = "firing"
	a.ResolvedAt = nil
	assert.Equal(t, "D83B01", severityColor(a))
	assert.Contains(t, slackPayload(a).(map[string]string)["text"], "[CRITICAL] strength on shift shift-a")
}
