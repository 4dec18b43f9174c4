package shipper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/floorscore/floorscore/agent/internal/compute"
	"github.com/floorscore/floorscore/agent/internal/config"
	"github.com/floorscore/floorscore/agent/internal/scraper"
	"github.com/floorscore/floorscore/pkg/ingest"
)

const (
	backoffInitial    = 1 * time.Second
	backoffMax        = 60 * time.Second
	backoffMultiplier = 2.0
	sendTimeout       = 10 * time.Second

	// maxAttempts bounds how often an update for a record the server does
	// not know yet is resent.
	maxAttempts = 5
)

// pending is an update waiting to be delivered.
type pending struct {
	upd      ingest.Update
	attempts int
}

// Shipper buffers closed windows and ships them to floorscore-server as
// hourly updates. Ship() is non-blocking; when the buffer is full the oldest
// update is evicted. Run() must be called in a goroutine to drain the buffer.
type Shipper struct {
	cfg    config.AgentConfig
	url    string
	client *http.Client
	buf    chan *pending

	mu       sync.RWMutex
	stations map[string]config.Station
}

// New creates a Shipper using the given agent config.
func New(cfg config.AgentConfig) (*Shipper, error) {
	client, err := scraper.NewHTTPClient(cfg.ServerAuth, config.TLSConfig{}, sendTimeout)
	if err != nil {
		return nil, fmt.Errorf("shipper: build http client: %w", err)
	}
	s := &Shipper{
		cfg:    cfg,
		url:    strings.TrimRight(cfg.ServerEndpoint, "/") + ingest.Path,
		client: client,
		buf:    make(chan *pending, cfg.BufferSize),
	}
	s.SetStations(cfg.Stations)
	return s, nil
}

// SetStations replaces the station to record mapping. Called on config reload
// when supervisors move a station to the next shift record.
func (s *Shipper) SetStations(stations []config.Station) {
	m := make(map[string]config.Station, len(stations))
	for _, st := range stations {
		m[st.ID] = st
	}
	s.mu.Lock()
	s.stations = m
	s.mu.Unlock()
}

// Ship converts w to an hourly update and enqueues it. Windows for stations
// without a record_id are dropped.
func (s *Shipper) Ship(w *compute.Window) {
	upd, ok := s.toUpdate(w)
	if !ok {
		slog.Warn("shipper: station has no record_id, dropping window",
			"station", w.StationID, "hour", w.Hour)
		return
	}
	p := &pending{upd: upd}
	select {
	case s.buf <- p:
	default:
		select {
		case <-s.buf:
			slog.Warn("shipper: buffer full, evicted oldest update",
				"station", w.StationID, "buffer_cap", cap(s.buf))
		default:
		}
		s.buf <- p
	}
}

func (s *Shipper) toUpdate(w *compute.Window) (ingest.Update, bool) {
	s.mu.RLock()
	st, ok := s.stations[w.StationID]
	s.mu.RUnlock()
	if !ok || st.RecordID == "" {
		return ingest.Update{}, false
	}
	key := fmt.Sprintf("%s|%s|%d|%d", st.ID, st.RecordID, w.Start.Unix(), w.Observed)
	return ingest.Update{
		ID:              uuid.NewSHA1(uuid.NameSpaceURL, []byte(key)).String(),
		RecordID:        st.RecordID,
		Time:            w.Hour,
		ProductsMade:    w.ProductsMade,
		ReworkCount:     w.ReworkCount,
		DowntimeMinutes: w.DowntimeMinutes,
		DowntimeReason:  string(st.DowntimeReason),
		Source:          "agent:" + st.ID,
	}, true
}

// Run sends buffered updates every ShipInterval, backing off while the
// server is unreachable. Run blocks until ctx is cancelled.
func (s *Shipper) Run(ctx context.Context) {
	bo := newBackoff()
	ticker := time.NewTicker(s.cfg.ShipInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		for {
			batch := s.take()
			if len(batch) == 0 {
				break
			}
			err := s.send(ctx, batch)
			if err == nil {
				bo.reset()
				continue
			}
			if ctx.Err() != nil {
				s.requeue(batch)
				return
			}
			var perm *permanentError
			if errors.As(err, &perm) {
				slog.Error("shipper: permanent send error, discarding batch",
					"updates", len(batch), "err", err)
				continue
			}
			s.requeue(batch)
			wait := bo.next()
			slog.Warn("shipper: send failed, will retry",
				"endpoint", s.url, "updates", len(batch), "err", err, "retry_in", wait)
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
			}
		}
	}
}

// Flush makes one delivery attempt for everything still buffered. It is
// called at shutdown with a bounded context and returns the number of
// updates that could not be delivered.
func (s *Shipper) Flush(ctx context.Context) int {
	lost := 0
	for {
		batch := s.take()
		if len(batch) == 0 {
			return lost
		}
		if err := s.send(ctx, batch); err != nil {
			slog.Error("shipper: flush failed", "updates", len(batch), "err", err)
			lost += len(batch) + len(s.buf)
			return lost
		}
	}
}

// Pending returns the number of buffered updates.
func (s *Shipper) Pending() int { return len(s.buf) }

// take removes up to BatchSize updates from the buffer without blocking.
func (s *Shipper) take() []*pending {
	n := s.cfg.BatchSize
	if n <= 0 || n > ingest.MaxBatch {
		n = ingest.MaxBatch
	}
	var out []*pending
	for len(out) < n {
		select {
		case p := <-s.buf:
			out = append(out, p)
		default:
			return out
		}
	}
	return out
}

// requeue puts updates back if there is room. Newer updates win over
// older ones that failed.
func (s *Shipper) requeue(batch []*pending) {
	for _, p := range batch {
		select {
		case s.buf <- p:
		default:
			slog.Warn("shipper: buffer full, dropping update", "id", p.upd.ID, "record_id", p.upd.RecordID)
		}
	}
}

// permanentError marks a response that will not succeed on retry.
type permanentError struct {
	status int
	body   string
}

func (e *permanentError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.status, e.body)
}

// send posts one batch and handles the per-update results.
func (s *Shipper) send(ctx context.Context, batch []*pending) error {
	body := ingest.Batch{Agent: s.cfg.ID, Updates: make([]ingest.Update, len(batch))}
	for i, p := range batch {
		body.Updates[i] = p.upd
	}
	data, err := json.Marshal(body)
	if err != nil {
		return &permanentError{body: err.Error()}
	}

	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(sendCtx, http.MethodPost, s.url, bytes.NewReader(data))
	if err != nil {
		return &permanentError{body: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("server returned %d", resp.StatusCode)
	case resp.StatusCode >= 400:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &permanentError{status: resp.StatusCode, body: strings.TrimSpace(string(msg))}
	}

	var out ingest.Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	s.handleResults(batch, out)
	return nil
}

func (s *Shipper) handleResults(batch []*pending, out ingest.Response) {
	byID := make(map[string]*pending, len(batch))
	for _, p := range batch {
		byID[p.upd.ID] = p
	}
	var retry []*pending
	for _, r := range out.Results {
		p := byID[r.ID]
		switch {
		case r.Status == ingest.StatusApplied || r.Status == ingest.StatusDuplicate:
			slog.Debug("shipper: update delivered", "id", r.ID, "record_id", r.RecordID, "status", r.Status)
		case r.Retryable() && p != nil:
			p.attempts++
			if p.attempts >= maxAttempts {
				slog.Error("shipper: record not found, giving up",
					"record_id", r.RecordID, "attempts", p.attempts)
				continue
			}
			slog.Warn("shipper: record not found, will resend", "record_id", r.RecordID)
			retry = append(retry, p)
		default:
			slog.Warn("shipper: server rejected update",
				"id", r.ID, "record_id", r.RecordID, "status", r.Status, "error", r.Error, "fields", r.Fields)
		}
	}
	s.requeue(retry)
}

// backoff implements truncated exponential backoff with jitter.
type backoff struct {
	current time.Duration
}

func newBackoff() *backoff {
	return &backoff{current: backoffInitial}
}

// next returns the current backoff duration and advances the internal state.
func (b *backoff) next() time.Duration {
	d := b.current
	// Apply ±25 % jitter.
	jitter := time.Duration(float64(b.current) * 0.25 * (rand.Float64()*2 - 1)) //nolint:gosec // not crypto
	d += jitter
	if d < 0 {
		d = 0
	}

	b.current = time.Duration(float64(b.current) * backoffMultiplier)
	if b.current > backoffMax {
		b.current = backoffMax
	}
	return d
}

func (b *backoff) reset() {
	b.current = backoffInitial
}
