package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// formatters render an alert into the request body of one webhook type.
var formatters = map[string]func(a *Alert) any{
	"slack": slackPayload,
	"teams": teamsPayload,
	"http":  httpPayload,
}

// deliver posts a to every configured target that has a URL. Each POST
// waits for a token from the shared limiter; failures are only logged.
func (e *Engine) deliver(a *Alert) {
	ctx, cancel := context.WithTimeout(context.Background(), deliverTimeout)
	defer cancel()

	for _, wh := range e.webhooks {
		url := wh.URL()
		if url == "" {
			continue
		}
		format, ok := formatters[wh.Type]
		if !ok {
			slog.Warn("alerts: unknown webhook type, skipping", "type", wh.Type)
			continue
		}
		if err := e.limiter.Wait(ctx); err != nil {
			slog.Warn("alerts: webhook budget exhausted, dropping notification",
				"type", wh.Type, "rule", a.RuleName, "container", a.ContainerID, "err", err)
			return
		}

		if err := e.post(ctx, url, format(a)); err != nil {
			slog.Error("alerts: webhook delivery failed",
				"type", wh.Type,
				"rule", a.RuleName,
				"container", a.ContainerID,
				"err", err,
			)
			continue
		}
		slog.Debug("alerts: webhook delivered", "type", wh.Type, "rule", a.RuleName, "state", a.State)
	}
}

// headline is the one-line summary shared by every format.
func headline(a *Alert) string {
	if a.State == "resolved" {
		return fmt.Sprintf("Resolved: %s on shift %s", a.RuleName, a.ContainerID)
	}
	return fmt.Sprintf("%s %s on shift %s", severityLabel(a.Severity), a.RuleName, a.ContainerID)
}

func slackPayload(a *Alert) any {
	text := "*" + headline(a) + "*"
	if a.State != "resolved" {
		text += "\n" + a.Message
	}
	return map[string]string{"text": text}
}

func teamsPayload(a *Alert) any {
	facts := []map[string]string{
		{"name": "Shift", "value": a.ContainerID},
		{"name": "Rule", "value": a.RuleName},
		{"name": "Value", "value": fmt.Sprintf("%.2f", a.Value)},
		{"name": "Fired", "value": a.FiredAt.UTC().Format(time.RFC3339)},
	}
	if a.ResolvedAt != nil {
		facts = append(facts, map[string]string{"name": "Resolved", "value": a.ResolvedAt.UTC().Format(time.RFC3339)})
	}
	return map[string]any{
		"@type":      "MessageCard",
		"@context":   "http://schema.org/extensions",
		"themeColor": severityColor(a),
		"summary":    headline(a),
		"title":      "Sleeper QC: " + headline(a),
		"sections":   []map[string]any{{"text": a.Message, "facts": facts}},
	}
}

func httpPayload(a *Alert) any {
	return map[string]any{"source": "sleeperqc", "alert": a}
}

func (e *Engine) post(ctx context.Context, url string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook replied HTTP %d", resp.StatusCode)
	}
	return nil
}

func severityLabel(s string) string {
	switch s {
	case "critical":
		return "[CRITICAL]"
	case "warning":
		return "[WARNING]"
	default:
		return "[INFO]"
	}
}

// severityColor is the Teams card accent: green once resolved.
func severityColor(a *Alert) string {
	if a.State == "resolved" {
		return "2EB67D"
	}
	switch a.Severity {
	case "critical":
		return "D83B01"
	case "warning":
		return "FFB900"
	default:
		return "0078D4"
	}
}
