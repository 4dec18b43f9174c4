package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const webhookTimeout = 10 * time.Second

// severityStyle is the label and card colour used for each severity.
var severityStyle = map[string]struct{ label, color string }{
	"critical": {"CRITICAL", "D93025"},
	"warning":  {"WARNING", "F29900"},
	"info":     {"INFO", "1A73E8"},
}

func styleOf(severity string) (label, color string) {
	s, ok := severityStyle[severity]
	if !ok {
		s = severityStyle["info"]
	}
	return s.label, s.color
}

// headline is the one-line summary shared by the chat formats, e.g.
// "[WARNING] FIRING low-efficiency: record 7 (worker Ana, line L2)".
func headline(a *Alert) string {
	label, _ := styleOf(a.Severity)
	var who []string
	if a.Worker != "" {
		who = append(who, "worker "+a.Worker)
	}
	if a.Line != "" {
		who = append(who, "line "+a.Line)
	}
	s := fmt.Sprintf("[%s] %s %s: record %s", label, strings.ToUpper(a.State), a.RuleName, a.RecordID)
	if len(who) > 0 {
		s += " (" + strings.Join(who, ", ") + ")"
	}
	return s
}

type slackMessage struct {
	Text string `json:"text"`
}

type teamsFact struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type teamsSection struct {
	Facts []teamsFact `json:"facts"`
}

type teamsCard struct {
	Type       string         `json:"@type"`
	Context    string         `json:"@context"`
	ThemeColor string         `json:"themeColor"`
	Summary    string         `json:"summary"`
	Title      string         `json:"title"`
	Text       string         `json:"text"`
	Sections   []teamsSection `json:"sections,omitempty"`
}

type httpEnvelope struct {
	Alert *Alert `json:"alert"`
}

// render builds the request body for one webhook type.
func render(kind string, a *Alert) ([]byte, error) {
	switch kind {
	case "slack":
		return json.Marshal(slackMessage{Text: headline(a) + "\n" + a.Message})
	case "teams":
		_, color := styleOf(a.Severity)
		return json.Marshal(teamsCard{
			Type:       "MessageCard",
			Context:    "http://schema.org/extensions",
			ThemeColor: color,
			Summary:    a.RuleName,
			Title:      headline(a),
			Text:       a.Message,
			Sections: []teamsSection{{Facts: []teamsFact{
				{Name: "Record", Value: a.RecordID},
				{Name: "Worker", Value: a.Worker},
				{Name: "Line", Value: a.Line},
				{Name: "Value", Value: fmt.Sprintf("%g", a.Value)},
			}}},
		})
	case "http":
		return json.Marshal(httpEnvelope{Alert: a})
	}
	return nil, fmt.Errorf("unknown webhook type %q", kind)
}

// deliver posts a to every configured webhook. Failures are logged only.
func (e *Engine) deliver(a *Alert) {
	for _, wh := range e.webhooks {
		url := wh.URL()
		if url == "" {
			continue
		}
		body, err := render(wh.Type, a)
		if err == nil {
			err = e.post(url, body)
		}
		if err != nil {
			slog.Error("alerts: webhook delivery failed",
				"type", wh.Type, "rule", a.RuleName, "record_id", a.RecordID, "err", err)
			continue
		}
		slog.Debug("alerts: webhook delivered",
			"type", wh.Type, "rule", a.RuleName, "record_id", a.RecordID, "state", a.State)
	}
}

func (e *Engine) post(url string, body []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), webhookTimeout)
	defer cancel()

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
		return fmt.Errorf("webhook answered %s", resp.Status)
	}
	return nil
}
