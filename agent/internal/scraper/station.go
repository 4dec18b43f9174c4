package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/floorscore/floorscore/agent/internal/config"
)

// Reading is the raw counter totals read from one station in one scrape.
// Values are cumulative; the compute engine derives per-window deltas.
type Reading struct {
	StationID string
	ScrapedAt time.Time

	Products        float64
	Rework          float64
	DowntimeSeconds float64

	// Err is non-nil if the scrape itself failed (connectivity, auth, parse)
	// or the products counter was absent. The engine skips failed readings.
	Err error
}

// Scraper is implemented by every station scraper.
type Scraper interface {
	Scrape(ctx context.Context) (*Reading, error)
}

// Station scrapes one station's Prometheus metrics endpoint.
type Station struct {
	station config.Station
	names   config.MetricNames
	client  *http.Client
	now     func() time.Time
}

// New returns a Scraper for st. It builds the HTTP client once and reuses
// it across scrape calls.
func New(st config.Station, names config.MetricNames) (*Station, error) {
	client, err := NewHTTPClient(st.Auth, st.TLS, defaultScrapeTimeout)
	if err != nil {
		return nil, fmt.Errorf("scraper %q: build http client: %w", st.ID, err)
	}
	return &Station{station: st, names: names, client: client, now: time.Now}, nil
}

// Scrape fetches the station's metrics and extracts the three counters.
// Failures are reported in Reading.Err; the returned error is always nil so
// the caller's loop treats every station the same way.
func (s *Station) Scrape(ctx context.Context) (*Reading, error) {
	r := &Reading{StationID: s.station.ID, ScrapedAt: s.now().UTC()}

	mfs, err := fetchMetrics(ctx, s.client, s.station.Endpoint,
		s.names.Products, s.names.Rework, s.names.DowntimeSeconds)
	if err != nil {
		r.Err = fmt.Errorf("station scrape %q: %w", s.station.ID, err)
		slog.Warn("scraper: station fetch failed", "station", s.station.ID, "err", err)
		return r, nil
	}

	products, ok := mfs[s.names.Products]
	if !ok {
		r.Err = fmt.Errorf("station scrape %q: metric %q not found", s.station.ID, s.names.Products)
		slog.Warn("scraper: products counter missing", "station", s.station.ID, "metric", s.names.Products)
		return r, nil
	}

	r.Products = sumMatching(products, s.station.Labels)
	r.Rework = sumMatching(mfs[s.names.Rework], s.station.Labels)
	r.DowntimeSeconds = sumMatching(mfs[s.names.DowntimeSeconds], s.station.Labels)
	return r, nil
}
