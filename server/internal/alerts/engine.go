package alerts

import (
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/sleeperqc/sleeperqc/pkg/report"
	"github.com/sleeperqc/sleeperqc/server/internal/config"
)

const (
	defaultCooldown = 15 * time.Minute
	maxHistoryLen   = 200
	recentWindow    = time.Hour
	deliverTimeout  = 30 * time.Second
)

// Alert represents a single alert event produced by the rule engine.
type Alert struct {
	ID          string     `json:"id"`
	RuleName    string     `json:"rule_name"`
	ContainerID string     `json:"container_id"`
	Severity    string     `json:"severity"`
	Message     string     `json:"message"`
	Value       float64    `json:"value"`
	FiredAt     time.Time  `json:"fired_at"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty"`
	State       string     `json:"state"` // "firing" | "resolved"
}

// Engine evaluates alert rules against shift reports and delivers webhook
// notifications when rules fire or resolve.
//
// Engine is safe for concurrent use.
type Engine struct {
	rules    []config.AlertRule
	webhooks []config.WebhookConfig

	mu       sync.Mutex
	active   map[string]*Alert    // key: "ruleName:containerID"
	lastFire map[string]time.Time // last fire time per key (for cooldown)
	history  []*Alert             // recently resolved alerts
	client   *http.Client
	limiter  *rate.Limiter
	now      func() time.Time
	wg       sync.WaitGroup
}

// New creates an Engine from the server alert configuration.
// An Engine with empty rules is valid; Evaluate becomes a no-op.
func New(cfg config.AlertsConfig) *Engine {
	limit := rate.Inf
	burst := 1
	if cfg.RatePerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(cfg.RatePerMinute))
		burst = cfg.RatePerMinute
	}
	return &Engine{
		rules:    cfg.Rules,
		webhooks: cfg.Webhooks,
		active:   make(map[string]*Alert),
		lastFire: make(map[string]time.Time),
		client:   &http.Client{Timeout: 10 * time.Second},
		limiter:  rate.NewLimiter(limit, burst),
		now:      time.Now,
	}
}

// Evaluate tests all configured rules against r.
// Alerts that fire are stored and webhook delivery is triggered asynchronously.
// Alerts that were firing but whose condition is now false are resolved.
func (e *Engine) Evaluate(r report.ShiftReport) {
	if len(e.rules) == 0 {
		return
	}

	now := e.now()
	for _, rule := range e.rules {
		key := rule.Name + ":" + r.ContainerID
		fires, value := evalCondition(rule.Condition, r)

		e.mu.Lock()
		var notify *Alert

		if fires {
			cooldown := rule.Cooldown
			if cooldown <= 0 {
				cooldown = defaultCooldown
			}
			last, seen := e.lastFire[key]
			if !seen || now.Sub(last) > cooldown {
				sev := rule.Severity
				if sev == "" {
					sev = "warning"
				}
				a := &Alert{
					ID:          uuid.NewString(),
					RuleName:    rule.Name,
					ContainerID: r.ContainerID,
					Severity:    sev,
					Value:       value,
					Message: fmt.Sprintf("[%s] %s fired on shift %s: %s (value %.2f)",
						sev, rule.Name, r.ContainerID, rule.Condition, value),
					FiredAt: now,
					State:   "firing",
				}
				e.active[key] = a
				e.lastFire[key] = now
				cp := *a
				notify = &cp

				slog.Warn("alerts: rule fired",
					"rule", rule.Name,
					"container", r.ContainerID,
					"value", value,
					"severity", sev,
				)
			}
		} else if a, ok := e.active[key]; ok && a.State == "firing" {
			resolved := now
			a.State = "resolved"
			a.ResolvedAt = &resolved
			delete(e.active, key)

			e.history = append(e.history, a)
			if len(e.history) > maxHistoryLen {
				e.history = e.history[len(e.history)-maxHistoryLen:]
			}
			cp := *a
			notify = &cp

			slog.Info("alerts: rule resolved",
				"rule", rule.Name,
				"container", r.ContainerID,
			)
		}
		e.mu.Unlock()

		if notify != nil && len(e.webhooks) > 0 {
			e.wg.Add(1)
			go func(a *Alert) {
				defer e.wg.Done()
				e.deliver(a)
			}(notify)
		}
	}
}

// Active returns copies of all currently firing alerts plus any alerts
// resolved within the past hour, sorted newest first.
func (e *Engine) Active() []*Alert {
	e.mu.Lock()
	defer e.mu.Unlock()

	cutoff := e.now().Add(-recentWindow)
	out := make([]*Alert, 0, len(e.active))

	for _, a := range e.active {
		cp := *a
		out = append(out, &cp)
	}
	for _, a := range e.history {
		if a.ResolvedAt != nil && a.ResolvedAt.After(cutoff) {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FiredAt.After(out[j].FiredAt) })
	return out
}

// Wait blocks until every in-flight webhook delivery has finished.
func (e *Engine) Wait() {
	e.wg.Wait()
}
