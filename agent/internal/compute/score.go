package compute

import (
	"github.com/floorscore/floorscore/pkg/efficiency"
)

// Provisional scores a window as if it were a shift of Observed hours. The
// server scores the whole shift record; this figure is only for the agent's
// logs. ok is false when the window has no coverage, since zero hours has no
// defined efficiency.
func Provisional(w *Window, p efficiency.Params) (sc efficiency.Score, ok bool) {
	hours := w.Observed.Hours()
	if hours <= 0 {
		return efficiency.Score{}, false
	}
	rec := efficiency.Record{
		WorkerID:         w.StationID,
		TotalHoursWorked: hours,
		ProductsMade:     w.ProductsMade,
		ReworkCount:      w.ReworkCount,
		DowntimeMinutes:  w.DowntimeMinutes,
	}
	if err := rec.Check(); err != nil {
		return efficiency.Score{}, false
	}
	return efficiency.Compute(rec, p), true
}

// RatePerHour is the window's output rate over its observed coverage.
func RatePerHour(w *Window) float64 {
	hours := w.Observed.Hours()
	if hours <= 0 {
		return 0
	}
	return float64(w.ProductsMade) / hours
}
