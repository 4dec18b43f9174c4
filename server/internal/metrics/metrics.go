package metrics

import (
	"context"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"sync"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"github.com/floorscore/floorscore/pkg/efficiency"
	"github.com/floorscore/floorscore/pkg/types"
	"github.com/floorscore/floorscore/server/internal/allocation"
)

const namespace = "floorscore"

// Collector builds metric families on every scrape.
type Collector struct {
	svc *allocation.Service

	// Optional gauges; nil funcs are skipped.
	firingAlerts func() int
	clients      func() int

	mu      sync.Mutex
	changes map[string]float64
}

// Option configures a Collector.
type Option func(*Collector)

// WithAlerts adds floorscore_alerts_firing, read from fn.
func WithAlerts(fn func() int) Option { return func(c *Collector) { c.firingAlerts = fn } }

// WithClients adds floorscore_dashboard_clients, read from fn.
func WithClients(fn func() int) Option { return func(c *Collector) { c.clients = fn } }

// New creates a Collector over svc.
func New(svc *allocation.Service, opts ...Option) *Collector {
	c := &Collector{svc: svc, changes: map[string]float64{}}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Observe counts a record change. Register it with allocation.Service.OnChange.
func (c *Collector) Observe(ch allocation.Change) {
	c.mu.Lock()
	c.changes[ch.Kind]++
	c.mu.Unlock()
}

// Gather returns every family, sorted by name.
func (c *Collector) Gather(ctx context.Context) ([]*dto.MetricFamily, error) {
	items, err := c.svc.Select(ctx, allocation.Filter{Sort: "id"})
	if err != nil {
		return nil, err
	}
	rep := allocation.Summarize(items)

	fams := []*dto.MetricFamily{
		gauge("records", "Shift records currently stored.", float64(rep.Count)),
		gauge("overage_records", "Records whose raw efficiency exceeds 100.", float64(rep.Overage)),
		gauge("products_made", "Products made across all records.", float64(rep.Totals.ProductsMade)),
		gauge("rework_count", "Rework units across all records.", float64(rep.Totals.ReworkCount)),
		gauge("downtime_minutes", "Downtime minutes across all records.", rep.Totals.DowntimeMinutes),
		gauge("hours_worked", "Hours worked across all records.", rep.Totals.TotalHoursWorked),
	}
	if rep.Average != nil {
		fams = append(fams, gauge("efficiency_average", "Mean efficiency over all records.", *rep.Average))
	}

	bands := family("records_by_band", "Records per efficiency band.", dto.MetricType_GAUGE)
	for _, b := range efficiency.Bands {
		bands.Metric = append(bands.Metric, sample(dto.MetricType_GAUGE, float64(rep.Bands[b]), "band", string(b)))
	}
	reasons := family("downtime_minutes_by_reason", "Downtime minutes from hourly updates per reason.", dto.MetricType_GAUGE)
	for _, r := range types.DowntimeReasons {
		reasons.Metric = append(reasons.Metric, sample(dto.MetricType_GAUGE, rep.DowntimeByReason[r], "reason", string(r)))
	}
	perRecord := family("record_efficiency", "Efficiency score per record.", dto.MetricType_GAUGE)
	for _, it := range items {
		perRecord.Metric = append(perRecord.Metric, sample(dto.MetricType_GAUGE, float64(it.Score.Value),
			"record_id", it.Record.ID, "worker", it.Record.WorkerName, "line", it.Record.LineNumber))
	}
	fams = append(fams, bands, reasons)
	if len(perRecord.Metric) > 0 {
		fams = append(fams, perRecord)
	}

	if c.firingAlerts != nil {
		fams = append(fams, gauge("alerts_firing", "Alerts currently firing.", float64(c.firingAlerts())))
	}
	if c.clients != nil {
		fams = append(fams, gauge("dashboard_clients", "Connected dashboard WebSocket clients.", float64(c.clients())))
	}

	c.mu.Lock()
	kinds := make([]string, 0, len(c.changes))
	for k := range c.changes {
		kinds = append(kinds, k)
	}
	slices.Sort(kinds)
	changes := family("record_changes_total", "Record changes by kind since start.", dto.MetricType_COUNTER)
	for _, k := range kinds {
		changes.Metric = append(changes.Metric, sample(dto.MetricType_COUNTER, c.changes[k], "kind", k))
	}
	c.mu.Unlock()
	if len(changes.Metric) > 0 {
		fams = append(fams, changes)
	}

	slices.SortFunc(fams, func(a, b *dto.MetricFamily) int { return strings.Compare(a.GetName(), b.GetName()) })
	return fams, nil
}

// ServeHTTP writes the families in the format negotiated from Accept.
func (c *Collector) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	fams, err := c.Gather(r.Context())
	if err != nil {
		slog.Error("metrics: gather", "err", err)
		http.Error(w, "gather failed", http.StatusInternalServerError)
		return
	}

	format := expfmt.Negotiate(r.Header)
	w.Header().Set("Content-Type", string(format))
	enc := expfmt.NewEncoder(w, format)
	for _, mf := range fams {
		if err := enc.Encode(mf); err != nil {
			slog.Warn("metrics: encode", "family", mf.GetName(), "err", err)
			return
		}
	}
	if cl, ok := enc.(expfmt.Closer); ok {
		cl.Close() //nolint:errcheck
	}
}

// --- family builders --------------------------------------------------------

func ptr[T any](v T) *T { return &v }

func family(name, help string, typ dto.MetricType) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name: ptr(namespace + "_" + name),
		Help: ptr(help),
		Type: typ.Enum(),
	}
}

func sample(typ dto.MetricType, v float64, labels ...string) *dto.Metric {
	m := &dto.Metric{}
	for i := 0; i+1 < len(labels); i += 2 {
		m.Label = append(m.Label, &dto.LabelPair{Name: ptr(labels[i]), Value: ptr(labels[i+1])})
	}
	if typ == dto.MetricType_COUNTER {
		m.Counter = &dto.Counter{Value: ptr(v)}
	} else {
		m.Gauge = &dto.Gauge{Value: ptr(v)}
	}
	return m
}

func gauge(name, help string, v float64) *dto.MetricFamily {
	mf := family(name, help, dto.MetricType_GAUGE)
	mf.Metric = []*dto.Metric{sample(dto.MetricType_GAUGE, v)}
	return mf
}
