package efficiency

import "math"

// OverageThreshold is the value above which a score is flagged for review.
const OverageThreshold = 100.0

// MaxValue bounds every term of a score. Tiny hours produce rates far beyond
// anything meaningful; they saturate here and stay flagged as overage.
const MaxValue = math.MaxInt32

// Score is the derived efficiency for one record. It is never stored; it is
// recomputed whenever the record's quantities or the parameters change.
type Score struct {
	// Value is the displayed integer percentage, floor-clamped at 0 and capped
	// at MaxValue.
	Value int `json:"value"`

	// Base is the output rate against target, as a percentage.
	Base float64 `json:"base"`

	// Penalty is the rework and downtime deduction in points.
	Penalty float64 `json:"penalty"`

	// ReworkPenalty and DowntimePenalty are the two parts of Penalty.
	ReworkPenalty   float64 `json:"rework_penalty"`
	DowntimePenalty float64 `json:"downtime_penalty"`

	// Raw is Base - Penalty before clamping and rounding.
	Raw float64 `json:"raw"`

	// Overage is set when Raw exceeds 100, regardless of ceiling policy.
	Overage bool `json:"overage"`
}

// Band returns the dashboard band for s.Value.
func (s Score) Band() Band { return BandOf(s.Value) }

// Compute applies the efficiency formula to a validated record.
//
// rec must have passed Validate (or Record.Check); in particular
// TotalHoursWorked must be positive. Compute has no error path of its own.
func Compute(rec Record, p Params) Score {
	base := saturate(float64(rec.ProductsMade) / (rec.TotalHoursWorked * p.TargetRatePerHour) * 100)
	rework := saturate(float64(rec.ReworkCount) * p.ReworkPenaltyPerUnit)
	downtime := saturate(rec.DowntimeMinutes * p.DowntimeCostPerMinute)
	penalty := rework + downtime
	raw := base - penalty

	value := min(roundHalfUp(math.Max(0, raw)), MaxValue)
	if p.Ceiling == CeilingClamp && value > OverageThreshold {
		value = OverageThreshold
	}

	return Score{
		Value:           int(value),
		Base:            base,
		Penalty:         penalty,
		ReworkPenalty:   rework,
		DowntimePenalty: downtime,
		Raw:             raw,
		Overage:         raw > OverageThreshold,
	}
}

// ScoreRaw validates raw and computes its score.
func ScoreRaw(raw RawRecord, p Params) (Record, Score, error) {
	rec, err := Validate(raw)
	if err != nil {
		return Record{}, Score{}, err
	}
	return rec, Compute(rec, p), nil
}

// roundHalfUp rounds to the nearest integer with .5 going up. Inputs are
// already non-negative, so this matches the behaviour form views display.
func roundHalfUp(v float64) float64 {
	return math.Floor(v + 0.5)
}

// saturate caps v at MaxValue. NaN cannot reach here: Validate rejects
// non-finite inputs and zero hours.
func saturate(v float64) float64 {
	return math.Min(v, MaxValue)
}
