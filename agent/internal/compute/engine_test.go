package compute

import (
	"errors"
	"testing"
	"time"

	"github.com/floorscore/floorscore/agent/internal/scraper"
	"github.com/floorscore/floorscore/pkg/efficiency"
)

// baseTime is a fixed reference point so all test timings are deterministic.
var baseTime = time.Date(2026, 1, 1, 13, 0, 0, 0, time.UTC)

// tick returns baseTime advanced by n minutes.
func tick(n int) time.Time {
	return baseTime.Add(time.Duration(n) * time.Minute)
}

func newTestEngine() *Engine {
	e := NewEngine(time.Hour, efficiency.DefaultParams())
	e.loc = time.UTC
	return e
}

// reading builds a successful Reading with cumulative counters.
func reading(id string, products, rework, downtimeSec float64) *scraper.Reading {
	return &scraper.Reading{
		StationID:       id,
		ScrapedAt:       baseTime,
		Products:        products,
		Rework:          rework,
		DowntimeSeconds: downtimeSec,
	}
}

func failed(id string) *scraper.Reading {
	return &scraper.Reading{StationID: id, Err: errors.New("connection refused")}
}

// --- Baseline ---

func TestEngine_FirstScrape_OnlyRecordsBaseline(t *testing.T) {
	e := newTestEngine()
	if w := e.Process(reading("press-1", 1000, 10, 0), tick(0)); w != nil {
		t.Fatalf("first scrape returned window %+v, want nil", w)
	}
	if got := e.Flush(); len(got) != 0 {
		t.Errorf("Flush after baseline only = %d windows, want 0", len(got))
	}
}

// --- Window accumulation ---

func TestEngine_ClosesWindowOnBoundary(t *testing.T) {
	e := newTestEngine()
	e.Process(reading("press-1", 100, 5, 600), tick(0))
	if w := e.Process(reading("press-1", 110, 5, 660), tick(30)); w != nil {
		t.Fatalf("mid-window scrape returned %+v, want nil", w)
	}
	w := e.Process(reading("press-1", 118, 6, 720), tick(60))
	if w == nil {
		t.Fatal("scrape at boundary returned nil, want closed window")
	}

	if w.StationID != "press-1" {
		t.Errorf("StationID = %q, want press-1", w.StationID)
	}
	if !w.Start.Equal(tick(0)) || !w.End.Equal(tick(60)) {
		t.Errorf("window = [%v, %v), want [%v, %v)", w.Start, w.End, tick(0), tick(60))
	}
	if w.Hour != "1 PM" {
		t.Errorf("Hour = %q, want 1 PM", w.Hour)
	}
	if w.ProductsMade != 18 || w.ReworkCount != 1 {
		t.Errorf("products/rework = %d/%d, want 18/1", w.ProductsMade, w.ReworkCount)
	}
	if !almostEqual(w.DowntimeMinutes, 2, 1e-9) {
		t.Errorf("DowntimeMinutes = %f, want 2", w.DowntimeMinutes)
	}
	if w.Observed != time.Hour {
		t.Errorf("Observed = %v, want 1h", w.Observed)
	}
	// base 18/20*100 = 90, penalty 1*2 + 2*0.5 = 3
	if !w.Scored || w.Provisional.Value != 87 {
		t.Errorf("Provisional = %+v scored=%v, want value 87", w.Provisional, w.Scored)
	}
}

func TestEngine_DeltaAttributedToEarlierWindow(t *testing.T) {
	e := newTestEngine()
	e.Process(reading("press-1", 0, 0, 0), tick(0))
	e.Process(reading("press-1", 10, 0, 0), tick(50))

	// Straddles the boundary: counted in the 1 PM window.
	w := e.Process(reading("press-1", 15, 0, 0), tick(70))
	if w == nil || w.ProductsMade != 15 {
		t.Fatalf("closed window = %+v, want 15 products", w)
	}

	e.Process(reading("press-1", 20, 0, 0), tick(90))
	flushed := e.Flush()
	if len(flushed) != 1 {
		t.Fatalf("Flush = %d windows, want 1", len(flushed))
	}
	if flushed[0].Hour != "2 PM" || flushed[0].ProductsMade != 5 {
		t.Errorf("flushed = %s/%d, want 2 PM/5", flushed[0].Hour, flushed[0].ProductsMade)
	}
	if flushed[0].Observed != 20*time.Minute {
		t.Errorf("Observed = %v, want 20m", flushed[0].Observed)
	}
}

func TestEngine_CounterReset_TreatedAsZeroDelta(t *testing.T) {
	e := newTestEngine()
	e.Process(reading("press-1", 500, 20, 0), tick(0))
	e.Process(reading("press-1", 3, 0, 0), tick(10)) // station restarted
	e.Process(reading("press-1", 8, 1, 0), tick(20))

	w := e.Flush()[0]
	if w.ProductsMade != 5 || w.ReworkCount != 1 {
		t.Errorf("products/rework = %d/%d, want 5/1", w.ProductsMade, w.ReworkCount)
	}
}

func TestEngine_ScrapeFailure_DoesNotAdvanceBaseline(t *testing.T) {
	e := newTestEngine()
	e.Process(reading("press-1", 100, 0, 0), tick(0))
	e.Process(failed("press-1"), tick(10))
	e.Process(reading("press-1", 130, 0, 0), tick(20))

	w := e.Flush()[0]
	if w.ProductsMade != 30 {
		t.Errorf("ProductsMade = %d, want 30 (gap covered by next success)", w.ProductsMade)
	}
	if w.Observed != 20*time.Minute {
		t.Errorf("Observed = %v, want 20m", w.Observed)
	}
}

func TestEngine_FailureOnFirstScrape_NoBaseline(t *testing.T) {
	e := newTestEngine()
	if w := e.Process(failed("press-1"), tick(0)); w != nil {
		t.Fatalf("failed scrape returned %+v", w)
	}
	if w := e.Process(reading("press-1", 50, 0, 0), tick(1)); w != nil {
		t.Fatalf("first success returned %+v, want nil", w)
	}
}

func TestEngine_LongGap_NewWindowStartsAtNow(t *testing.T) {
	e := newTestEngine()
	e.Process(reading("press-1", 0, 0, 0), tick(0))
	w := e.Process(reading("press-1", 40, 0, 0), tick(185))
	if w == nil || !w.Start.Equal(tick(0)) {
		t.Fatalf("closed window = %+v, want start at 1 PM", w)
	}
	e.Process(reading("press-1", 45, 0, 0), tick(190))
	f := e.Flush()[0]
	if !f.Start.Equal(tick(180)) {
		t.Errorf("next window start = %v, want %v", f.Start, tick(180))
	}
}

// --- Uptime ---

func TestEngine_UptimePct_AllSuccess(t *testing.T) {
	e := newTestEngine()
	for i := range 5 {
		e.Process(reading("press-1", float64(i*10), 0, 0), tick(i))
	}
	if got := e.Flush()[0].UptimePct; got != 100 {
		t.Errorf("UptimePct = %f, want 100", got)
	}
}

func TestEngine_UptimePct_PartialFailure(t *testing.T) {
	e := newTestEngine()
	e.Process(reading("press-1", 0, 0, 0), tick(0))
	e.Process(failed("press-1"), tick(1))
	e.Process(reading("press-1", 5, 0, 0), tick(2))
	e.Process(failed("press-1"), tick(3))

	if got := e.Flush()[0].UptimePct; !almostEqual(got, 50, 1e-9) {
		t.Errorf("UptimePct = %f, want 50", got)
	}
}

func TestEngine_UptimePct_WindowCapped(t *testing.T) {
	e := newTestEngine()
	for i := range uptimeWindow {
		e.Process(failed("press-1"), tick(i))
	}
	e.Process(reading("press-1", 0, 0, 0), tick(uptimeWindow))
	e.Process(reading("press-1", 1, 0, 0), tick(uptimeWindow+1))

	want := 2.0 / float64(uptimeWindow) * 100
	if got := e.Flush()[0].UptimePct; !almostEqual(got, want, 1e-9) {
		t.Errorf("UptimePct = %f, want %f", got, want)
	}
}

// --- Multiple stations ---

func TestEngine_MultiStation_Independent(t *testing.T) {
	e := newTestEngine()
	e.Process(reading("press-2", 0, 0, 0), tick(0))
	e.Process(reading("press-1", 0, 0, 0), tick(0))
	e.Process(reading("press-1", 10, 0, 0), tick(5))
	e.Process(reading("press-2", 30, 0, 0), tick(5))

	got := e.Flush()
	if len(got) != 2 {
		t.Fatalf("Flush = %d windows, want 2", len(got))
	}
	if got[0].StationID != "press-1" || got[1].StationID != "press-2" {
		t.Errorf("order = %s, %s; want press-1, press-2", got[0].StationID, got[1].StationID)
	}
	if got[0].ProductsMade != 10 || got[1].ProductsMade != 30 {
		t.Errorf("products = %d, %d; want 10, 30", got[0].ProductsMade, got[1].ProductsMade)
	}
}

func TestEngine_FlushTwice_SecondEmpty(t *testing.T) {
	e := newTestEngine()
	e.Process(reading("press-1", 0, 0, 0), tick(0))
	e.Process(reading("press-1", 4, 0, 0), tick(5))
	if n := len(e.Flush()); n != 1 {
		t.Fatalf("first Flush = %d, want 1", n)
	}
	if n := len(e.Flush()); n != 0 {
		t.Errorf("second Flush = %d, want 0", n)
	}
}

func TestEngine_SetParams_AppliesToNextWindow(t *testing.T) {
	e := newTestEngine()
	p := efficiency.DefaultParams()
	p.TargetRatePerHour = 10
	e.SetParams(p)

	e.Process(reading("press-1", 0, 0, 0), tick(0))
	e.Process(reading("press-1", 5, 0, 0), tick(30))
	w := e.Flush()[0]
	// 5 units in 0.5h at 10/h is 100%.
	if w.Provisional.Value != 100 {
		t.Errorf("Provisional.Value = %d, want 100", w.Provisional.Value)
	}
}

// --- deltaOf ---

func TestDeltaOf(t *testing.T) {
	tests := []struct {
		cur, prev, want float64
	}{
		{100, 50, 50},
		{50, 50, 0},
		{10, 50, 0}, // reset
		{0, 0, 0},
	}
	for _, tt := range tests {
		if got := deltaOf(tt.cur, tt.prev); got != tt.want {
			t.Errorf("deltaOf(%v, %v) = %v, want %v", tt.cur, tt.prev, got, tt.want)
		}
	}
}
