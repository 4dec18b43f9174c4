package alerts

import (
	"cmp"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/floorscore/floorscore/server/internal/allocation"
	"github.com/floorscore/floorscore/server/internal/config"
)

const (
	defaultCooldown   = 15 * time.Minute
	maxHistoryLen     = 200
	recentWindowHours = 1
)

// Alert represents a single alert event produced by the rule engine.
type Alert struct {
	ID         string     `json:"id"`
	RuleName   string     `json:"rule_name"`
	RecordID   string     `json:"record_id"`
	Worker     string     `json:"worker"`
	Line       string     `json:"line"`
	Severity   string     `json:"severity"`
	Message    string     `json:"message"`
	Value      float64    `json:"value"`
	FiredAt    time.Time  `json:"fired_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	State      string     `json:"state"` // "firing" | "resolved"
}

type rule struct {
	config.AlertRule
	cond condition
}

// Engine evaluates alert rules against scored records and delivers webhook
// notifications when rules fire or resolve.
//
// Engine is safe for concurrent use.
type Engine struct {
	rules    []rule
	webhooks []config.WebhookConfig

	mu       sync.Mutex
	active   map[string]*Alert    // key: "ruleName:recordID"
	lastFire map[string]time.Time // last fire time per key (for cooldown)
	history  []*Alert             // recently resolved alerts
	client   *http.Client
	inflight sync.WaitGroup
	now      func() time.Time
}

// New creates an Engine from the alert configuration. It fails if any rule
// condition does not parse. An Engine with no rules is valid; Evaluate is then
// a no-op.
func New(cfg config.AlertsConfig) (*Engine, error) {
	e := &Engine{
		webhooks: cfg.Webhooks,
		active:   make(map[string]*Alert),
		lastFire: make(map[string]time.Time),
		client:   &http.Client{Timeout: 10 * time.Second},
		now:      time.Now,
	}
	for _, r := range cfg.Rules {
		c, err := parseCondition(r.Condition)
		if err != nil {
			return nil, fmt.Errorf("alerts: rule %q: %w", r.Name, err)
		}
		e.rules = append(e.rules, rule{AlertRule: r, cond: c})
	}
	return e, nil
}

// Handle is an allocation change listener: scored changes are evaluated and
// deletions resolve the record's alerts.
func (e *Engine) Handle(c allocation.Change) {
	if c.Scored == nil {
		e.Forget(c.ID)
		return
	}
	e.Evaluate(*c.Scored)
}

// Evaluate tests all configured rules against s.
// Alerts that fire are stored and webhook delivery is triggered asynchronously.
// Alerts that were firing but whose condition is now false are resolved.
func (e *Engine) Evaluate(s allocation.Scored) {
	if len(e.rules) == 0 {
		return
	}

	now := e.now()
	id := s.Record.ID
	for _, r := range e.rules {
		key := r.Name + ":" + id
		fires, value := r.cond.eval(s)

		e.mu.Lock()
		if fires {
			cooldown := r.Cooldown
			if cooldown <= 0 {
				cooldown = defaultCooldown
			}
			if _, firing := e.active[key]; firing || now.Sub(e.lastFire[key]) <= cooldown {
				e.mu.Unlock()
				continue
			}
			sev := r.Severity
			if sev == "" {
				sev = "warning"
			}
			a := &Alert{
				ID:       uuid.NewString(),
				RuleName: r.Name,
				RecordID: id,
				Worker:   s.Record.WorkerName,
				Line:     s.Record.LineNumber,
				Severity: sev,
				Value:    value,
				Message: fmt.Sprintf("[%s] %s fired on record %s (%s, line %s): %s, value %.2f",
					sev, r.Name, id, s.Record.WorkerName, s.Record.LineNumber, r.Condition, value),
				FiredAt: now,
				State:   "firing",
			}
			e.active[key] = a
			e.lastFire[key] = now
			alertCopy := *a
			e.mu.Unlock()

			slog.Warn("alerts: fired",
				"rule", r.Name,
				"record_id", id,
				"value", value,
				"severity", sev,
			)
			e.dispatch(&alertCopy)
			continue
		}

		a, ok := e.active[key]
		if !ok {
			e.mu.Unlock()
			continue
		}
		alertCopy := e.resolveLocked(key, a, now)
		e.mu.Unlock()

		slog.Info("alerts: resolved", "rule", r.Name, "record_id", id)
		e.dispatch(&alertCopy)
	}
}

// Forget resolves every firing alert for a deleted record.
func (e *Engine) Forget(recordID string) {
	now := e.now()
	var resolved []Alert

	e.mu.Lock()
	for key, a := range e.active {
		if a.RecordID == recordID {
			resolved = append(resolved, e.resolveLocked(key, a, now))
		}
	}
	for key := range e.lastFire {
		if strings.HasSuffix(key, ":"+recordID) {
			delete(e.lastFire, key)
		}
	}
	e.mu.Unlock()

	for i := range resolved {
		slog.Info("alerts: resolved on delete", "rule", resolved[i].RuleName, "record_id", recordID)
		e.dispatch(&resolved[i])
	}
}

// resolveLocked moves a firing alert into history. e.mu must be held.
func (e *Engine) resolveLocked(key string, a *Alert, now time.Time) Alert {
	resolved := now
	a.State = "resolved"
	a.ResolvedAt = &resolved
	delete(e.active, key)

	e.history = append(e.history, a)
	if len(e.history) > maxHistoryLen {
		e.history = e.history[len(e.history)-maxHistoryLen:]
	}
	return *a
}

// dispatch delivers a in the background.
func (e *Engine) dispatch(a *Alert) {
	if len(e.webhooks) == 0 {
		return
	}
	e.inflight.Add(1)
	go func() {
		defer e.inflight.Done()
		e.deliver(a)
	}()
}

// Wait blocks until in-flight webhook deliveries finish.
func (e *Engine) Wait() { e.inflight.Wait() }

// Active returns copies of all currently firing alerts plus any alerts
// resolved within the past hour, sorted newest first.
func (e *Engine) Active() []*Alert {
	e.mu.Lock()
	defer e.mu.Unlock()

	cutoff := e.now().Add(-recentWindowHours * time.Hour)
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
	slices.SortFunc(out, func(a, b *Alert) int {
		return cmp.Compare(latest(b).UnixNano(), latest(a).UnixNano())
	})
	return out
}

// FiringCount returns the number of currently firing alerts.
func (e *Engine) FiringCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.active)
}

func latest(a *Alert) time.Time {
	if a.ResolvedAt != nil {
		return *a.ResolvedAt
	}
	return a.FiredAt
}
