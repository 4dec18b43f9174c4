package api

import (
	"fmt"

	"github.com/floorscore/floorscore/pkg/efficiency"
	"github.com/floorscore/floorscore/server/internal/allocation"
)

// DiagnosticHint is one human-readable insight about a record's efficiency.
// The UI shows these as chips on the record row; clicking one shows Detail.
type DiagnosticHint struct {
	// Key is a stable machine-readable identifier.
	Key string `json:"key"`
	// Level is "ok" | "info" | "warning" | "critical"
	Level string `json:"level"`
	// Title is a short label shown on the chip.
	Title string `json:"title"`
	// Detail is the full explanation shown on click/hover.
	Detail string `json:"detail"`
	// Value is an optional numeric value associated with this hint.
	Value *float64 `json:"value,omitempty"`
}

// computeDiagnostics derives hints from a scored record, most severe first.
func computeDiagnostics(s allocation.Scored) []DiagnosticHint {
	var hints []DiagnosticHint
	rec, sc := s.Record, s.Score

	if sc.Raw < 0 {
		v := sc.Raw
		hints = append(hints, DiagnosticHint{
			Key:   "penalty_exceeds_output",
			Level: "critical",
			Title: "Penalties exceed output",
			Detail: fmt.Sprintf(
				"Rework and downtime deductions (%.1f points) are larger than the output rate "+
					"(%.1f%% of target), so the score is held at 0. "+
					"Look at the downtime cause and the rework count before the output.",
				sc.Penalty, sc.Base),
			Value: &v,
		})
	}

	if sc.Overage {
		v := sc.Raw
		hints = append(hints, DiagnosticHint{
			Key:   "overage",
			Level: "warning",
			Title: "Above 100%, review",
			Detail: fmt.Sprintf(
				"The formula gives %.1f, above the 100 ceiling. "+
					"Either the worker beat the target rate by a wide margin or the counts are wrong. "+
					"Check products made and hours worked; if the rate is real, the target for this "+
					"skill may be set too low.", sc.Raw),
			Value: &v,
		})
	}

	if rec.TotalHoursWorked > 0 && rec.DowntimeMinutes > 0 {
		share := rec.DowntimeMinutes / (rec.TotalHoursWorked * 60) * 100
		level := ""
		switch {
		case share >= 20:
			level = "warning"
		case share >= 10:
			level = "info"
		}
		if level != "" {
			cause := "no cause recorded"
			if rec.DowntimeReason != "" {
				cause = "cause: " + string(rec.DowntimeReason)
			}
			hints = append(hints, DiagnosticHint{
				Key:   "downtime",
				Level: level,
				Title: fmt.Sprintf("%.0f%% of shift down", share),
				Detail: fmt.Sprintf(
					"%.0f minutes of downtime (%s) out of %.1f hours worked. "+
						"Downtime costs %.1f points on its own.",
					rec.DowntimeMinutes, cause, rec.TotalHoursWorked,
					sc.DowntimePenalty),
				Value: &share,
			})
		}
	}

	if rec.ProductsMade > 0 && rec.ReworkCount > 0 {
		share := float64(rec.ReworkCount) / float64(rec.ProductsMade) * 100
		if share >= 5 {
			level := "info"
			if share >= 10 {
				level = "warning"
			}
			hints = append(hints, DiagnosticHint{
				Key:   "rework",
				Level: level,
				Title: fmt.Sprintf("%.0f%% rework", share),
				Detail: fmt.Sprintf(
					"%d of %d units needed rework, costing %.1f points. "+
						"A rework rate above 5%% usually points at setup or material quality.",
					rec.ReworkCount, rec.ProductsMade, sc.ReworkPenalty),
				Value: &share,
			})
		}
	}

	if sc.Raw >= 0 && s.Band == efficiency.BandLow {
		v := float64(sc.Value)
		hints = append(hints, DiagnosticHint{
			Key:   "low_band",
			Level: "warning",
			Title: "Below 75%",
			Detail: fmt.Sprintf(
				"Efficiency is %d, in the low band. Output alone reaches %.1f%% of target; "+
					"deductions take off %.1f points.", sc.Value, sc.Base, sc.Penalty),
			Value: &v,
		})
	}

	if n := len(rec.WorkerChanges); n > 0 {
		last := rec.WorkerChanges[n-1]
		hints = append(hints, DiagnosticHint{
			Key:   "worker_changed",
			Level: "info",
			Title: "Worker replaced",
			Detail: fmt.Sprintf(
				"%s replaced %s (%s). The score uses the replacement's %.1f hours.",
				last.Replacement, last.Original, last.Reason, last.HoursReplacement),
		})
	}

	if len(hints) == 0 {
		v := float64(sc.Value)
		hints = append(hints, DiagnosticHint{
			Key:    "on_target",
			Level:  "ok",
			Title:  "On target",
			Detail: fmt.Sprintf("Efficiency is %d with no significant rework or downtime.", sc.Value),
			Value:  &v,
		})
	}

	return sortHints(hints)
}

var levelRank = map[string]int{"critical": 0, "warning": 1, "info": 2, "ok": 3}

// sortHints orders hints by severity, keeping insertion order within a level.
func sortHints(h []DiagnosticHint) []DiagnosticHint {
	out := make([]DiagnosticHint, 0, len(h))
	for rank := 0; rank <= 3; rank++ {
		for _, x := range h {
			if levelRank[x.Level] == rank {
				out = append(out, x)
			}
		}
	}
	return out
}
