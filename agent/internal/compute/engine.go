package compute

import (
	"cmp"
	"log/slog"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/floorscore/floorscore/agent/internal/scraper"
	"github.com/floorscore/floorscore/pkg/efficiency"
	"github.com/floorscore/floorscore/pkg/types"
)

// uptimeWindow is the number of recent scrape outcomes tracked for uptime %.
const uptimeWindow = 20

// Window is one closed production window for a station, ready to be shipped
// as an hourly update.
type Window struct {
	StationID string
	Start     time.Time
	End       time.Time
	Hour      string // hour label of Start, e.g. "1 PM"

	ProductsMade    int
	ReworkCount     int
	DowntimeMinutes float64

	// Observed is the scrape coverage inside the window. It is less than
	// End-Start when the agent started mid-window or scrapes failed.
	Observed time.Duration

	// Provisional is the window's efficiency with hours = Observed. It is
	// only meaningful when Scored is true.
	Provisional efficiency.Score
	Scored      bool

	UptimePct float64
}

// Engine maintains per-station counter baselines across scrape cycles and
// accumulates the deltas into fixed windows.
//
// All exported methods are safe for concurrent use.
type Engine struct {
	mu     sync.Mutex
	window time.Duration
	params efficiency.Params
	loc    *time.Location
	states map[string]*stationState
}

// NewEngine returns an Engine that closes a window every window and scores
// windows with p.
func NewEngine(window time.Duration, p efficiency.Params) *Engine {
	return &Engine{
		window: window,
		params: p,
		loc:    time.Local,
		states: make(map[string]*stationState),
	}
}

// SetParams replaces the parameters used for provisional scores.
func (e *Engine) SetParams(p efficiency.Params) {
	e.mu.Lock()
	e.params = p
	e.mu.Unlock()
}

// Process ingests a Reading and returns the window it closed, or nil.
//
// now is passed explicitly so callers (and tests) control the clock without
// sleeping. Use time.Now() in production.
//
// The first successful reading for a station only records the baseline
// counter values. The delta between two readings is attributed to the window
// holding the earlier one. A failed reading changes nothing but uptime, so
// the next successful reading covers the gap.
func (e *Engine) Process(r *scraper.Reading, now time.Time) *Window {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := e.stateFor(r.StationID)
	success := r.Err == nil
	st.recordScrape(success)

	if !success {
		slog.Warn("compute: scrape failed, skipping reading",
			"station", r.StationID, "err", r.Err)
		return nil
	}

	if !st.hasBaseline {
		st.open = e.newAcc(now)
		st.updateBaseline(r, now)
		return nil
	}

	elapsed := now.Sub(st.prevTime)
	if elapsed < 0 {
		elapsed = 0 // clock went backwards; keep the counts, skip the coverage
	}
	acc := st.open
	acc.products += deltaOf(r.Products, st.prev.Products)
	acc.rework += deltaOf(r.Rework, st.prev.Rework)
	acc.downtimeSec += deltaOf(r.DowntimeSeconds, st.prev.DowntimeSeconds)
	acc.observed += elapsed
	st.updateBaseline(r, now)

	if !e.windowStart(now).After(acc.start) {
		return nil
	}
	st.open = e.newAcc(now)
	return e.close(r.StationID, acc, st.uptimePct())
}

// Flush closes every open window that has seen at least one delta and
// returns them ordered by station. Used at shutdown so a partial window is
// not lost.
func (e *Engine) Flush() []*Window {
	e.mu.Lock()
	defer e.mu.Unlock()

	var out []*Window
	for id, st := range e.states {
		if st.open == nil || st.open.observed == 0 {
			continue
		}
		out = append(out, e.close(id, st.open, st.uptimePct()))
		st.open = &acc{start: st.open.start}
	}
	slices.SortFunc(out, func(a, b *Window) int {
		return cmp.Compare(a.StationID, b.StationID)
	})
	return out
}

// acc accumulates deltas for the window starting at start.
type acc struct {
	start       time.Time
	products    float64
	rework      float64
	downtimeSec float64
	observed    time.Duration
}

func (e *Engine) windowStart(t time.Time) time.Time {
	return t.Truncate(e.window)
}

func (e *Engine) newAcc(now time.Time) *acc {
	return &acc{start: e.windowStart(now)}
}

func (e *Engine) close(stationID string, a *acc, uptime float64) *Window {
	w := &Window{
		StationID:       stationID,
		Start:           a.start,
		End:             a.start.Add(e.window),
		Hour:            types.HourLabel(a.start.In(e.loc)),
		ProductsMade:    int(math.Round(a.products)),
		ReworkCount:     int(math.Round(a.rework)),
		DowntimeMinutes: a.downtimeSec / 60,
		Observed:        a.observed,
		UptimePct:       uptime,
	}
	w.Provisional, w.Scored = Provisional(w, e.params)
	return w
}

// stationState holds per-station counters, the open window and uptime history.
type stationState struct {
	prev        *scraper.Reading
	prevTime    time.Time
	hasBaseline bool
	open        *acc
	history     []bool // circular buffer of scrape outcomes, newest last
}

func (e *Engine) stateFor(id string) *stationState {
	if st, ok := e.states[id]; ok {
		return st
	}
	st := &stationState{}
	e.states[id] = st
	return st
}

func (st *stationState) updateBaseline(r *scraper.Reading, now time.Time) {
	st.prev = r
	st.prevTime = now
	st.hasBaseline = true
}

func (st *stationState) recordScrape(success bool) {
	if len(st.history) >= uptimeWindow {
		st.history = st.history[1:]
	}
	st.history = append(st.history, success)
}

func (st *stationState) uptimePct() float64 {
	if len(st.history) == 0 {
		return 100 // assume up before first observation
	}
	var ok int
	for _, s := range st.history {
		if s {
			ok++
		}
	}
	return float64(ok) / float64(len(st.history)) * 100
}

// deltaOf returns the positive counter delta between current and previous.
// If current < previous (counter reset after restart), returns 0.
func deltaOf(current, previous float64) float64 {
	d := current - previous
	if d < 0 {
		return 0
	}
	return d
}
