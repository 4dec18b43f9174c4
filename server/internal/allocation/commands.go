package allocation

import (
	"context"
	"errors"
	"log/slog"

	"github.com/floorscore/floorscore/pkg/csvio"
	"github.com/floorscore/floorscore/pkg/efficiency"
	"github.com/floorscore/floorscore/pkg/types"
)

// Validation sentinels for fields outside the scoring formula.
var (
	ErrUnknownReason = errors.New("downtime reason must be one of Machine, Men, Material, Manufacturing")
	errDuplicate     = errors.New("allocation: duplicate hourly update")
)

// buildRecord validates raw in full and returns the record it describes.
func buildRecord(raw efficiency.RawRecord) (*types.ShiftRecord, error) {
	scoring, serr := efficiency.Validate(raw)

	rec := &types.ShiftRecord{}
	derr := applyDescriptive(rec, raw)
	if err := efficiency.Merge(serr, derr); err != nil {
		return nil, err
	}

	rec.WorkerID = scoring.WorkerID
	rec.TotalHoursWorked = scoring.TotalHoursWorked
	rec.ProductsMade = scoring.ProductsMade
	rec.ReworkCount = scoring.ReworkCount
	rec.DowntimeMinutes = scoring.DowntimeMinutes
	if v, ok := raw[fieldID]; ok {
		rec.ID = str(v)
	}
	return rec, nil
}

// Create validates raw and stores a new record. An ID is generated when raw
// carries none.
func (s *Service) Create(ctx context.Context, raw efficiency.RawRecord) (Scored, error) {
	rec, err := buildRecord(raw)
	if err != nil {
		return Scored{}, err
	}
	if rec.ID == "" {
		rec.ID = s.newID()
	}
	if err := s.store.Create(ctx, rec); err != nil {
		return Scored{}, err
	}
	sc := s.scoreAndFlag(rec)
	s.notify(Change{Kind: "created", ID: rec.ID, Scored: &sc})
	return sc, nil
}

// Update merges the fields present in raw onto record id and re-validates the
// result. Hourly updates and worker changes are kept.
func (s *Service) Update(ctx context.Context, id string, raw efficiency.RawRecord) (Scored, error) {
	rec, err := s.store.Mutate(ctx, id, func(cur *types.ShiftRecord) error {
		merged := overlay(rawOf(cur), raw)
		merged[fieldID] = id
		next, err := buildRecord(merged)
		if err != nil {
			return err
		}
		next.HourlyUpdates = cur.HourlyUpdates
		next.WorkerChanges = cur.WorkerChanges
		*cur = *next
		return nil
	})
	if err != nil {
		return Scored{}, err
	}
	sc := s.scoreAndFlag(rec)
	s.notify(Change{Kind: "updated", ID: id, Scored: &sc})
	return sc, nil
}

// parseHourlyUpdate validates an hourly update body. Quantities default to
// zero; the downtime reason is always required.
func (s *Service) parseHourlyUpdate(raw efficiency.RawRecord) (types.HourlyUpdate, error) {
	var (
		u  = types.HourlyUpdate{RecordedAt: s.now().UTC()}
		ve []error
	)
	u.ID = str(raw["id"])
	if u.ID == "" {
		u.ID = s.newID()
	}
	u.Time = str(raw["time"])
	if u.Time == "" {
		u.Time = types.HourLabel(s.now())
	}
	u.Source = str(raw["source"])
	if u.Source == "" {
		u.Source = "manual"
	}

	count := func(field string) int {
		v, ok := raw.Lookup(field)
		if !ok {
			return 0
		}
		n, err := efficiency.Int(v)
		if err != nil {
			ve = append(ve, efficiency.Invalid(field, efficiency.ErrTypeMismatch, v))
			return 0
		}
		if n < 0 {
			ve = append(ve, efficiency.Invalid(field, efficiency.ErrNegativeQuantity, v))
		}
		return n
	}
	u.ProductsMade = count(efficiency.FieldProductsMade)
	u.ReworkCount = count(efficiency.FieldReworkCount)

	if v, ok := raw.Lookup(efficiency.FieldDowntimeMinutes); ok {
		f, err := efficiency.Float(v)
		switch {
		case err != nil:
			ve = append(ve, efficiency.Invalid(efficiency.FieldDowntimeMinutes, efficiency.ErrTypeMismatch, v))
		case f < 0:
			ve = append(ve, efficiency.Invalid(efficiency.FieldDowntimeMinutes, efficiency.ErrNegativeQuantity, v))
		default:
			u.DowntimeMinutes = f
		}
	}

	v, _ := lookup(raw, fieldDowntimeReason)
	switch r, ok := ParseReason(str(v)); {
	case str(v) == "":
		ve = append(ve, efficiency.Invalid(fieldDowntimeReason, efficiency.ErrMissingField, nil))
	case !ok:
		ve = append(ve, efficiency.Invalid(fieldDowntimeReason, ErrUnknownReason, v))
	default:
		u.DowntimeReason = r
	}

	if err := efficiency.Merge(ve...); err != nil {
		return types.HourlyUpdate{}, err
	}
	return u, nil
}

// AddHourlyUpdate appends an hourly update to record id and adds its
// quantities to the totals. Re-sending an update with a known ID changes
// nothing; applied reports whether this call changed the record.
func (s *Service) AddHourlyUpdate(ctx context.Context, id string, raw efficiency.RawRecord) (sc Scored, applied bool, err error) {
	u, err := s.parseHourlyUpdate(raw)
	if err != nil {
		return Scored{}, false, err
	}

	rec, err := s.store.Mutate(ctx, id, func(cur *types.ShiftRecord) error {
		if !cur.ApplyHourlyUpdate(u) {
			return errDuplicate
		}
		return nil
	})
	if errors.Is(err, errDuplicate) {
		sc, err := s.Get(ctx, id)
		return sc, false, err
	}
	if err != nil {
		return Scored{}, false, err
	}

	sc = s.scoreAndFlag(rec)
	s.notify(Change{Kind: "hourly_update", ID: id, Scored: &sc})
	return sc, true, nil
}

// ChangeWorker hands record id to a replacement worker. The record's hours
// become the replacement's hours and the score is recomputed from them.
func (s *Service) ChangeWorker(ctx context.Context, id string, raw efficiency.RawRecord) (Scored, error) {
	var ve []error
	c := types.WorkerChange{
		ID:          str(raw["id"]),
		Original:    str(raw["original"]),
		Replacement: str(raw["replacement"]),
		Reason:      str(raw["reason"]),
		Timestamp:   s.now().UTC(),
	}
	if c.ID == "" {
		c.ID = s.newID()
	}
	if c.Replacement == "" {
		ve = append(ve, efficiency.Invalid("replacement", efficiency.ErrMissingField, nil))
	}
	if c.Reason == "" {
		ve = append(ve, efficiency.Invalid("reason", efficiency.ErrMissingField, nil))
	}

	if v, ok := raw.Lookup("hours_replacement"); !ok {
		ve = append(ve, efficiency.Invalid("hours_replacement", efficiency.ErrMissingField, nil))
	} else if f, err := efficiency.Float(v); err != nil {
		ve = append(ve, efficiency.Invalid("hours_replacement", efficiency.ErrTypeMismatch, v))
	} else if f <= 0 {
		ve = append(ve, efficiency.Invalid("hours_replacement", efficiency.ErrInvalidDivisor, v))
	} else {
		c.HoursReplacement = f
	}

	if v, ok := raw.Lookup("hours_original"); ok {
		if f, err := efficiency.Float(v); err != nil {
			ve = append(ve, efficiency.Invalid("hours_original", efficiency.ErrTypeMismatch, v))
		} else if f < 0 {
			ve = append(ve, efficiency.Invalid("hours_original", efficiency.ErrNegativeQuantity, v))
		} else {
			c.HoursOriginal = f
		}
	}
	if err := efficiency.Merge(ve...); err != nil {
		return Scored{}, err
	}

	rec, err := s.store.Mutate(ctx, id, func(cur *types.ShiftRecord) error {
		cur.ApplyWorkerChange(c)
		return nil
	})
	if err != nil {
		return Scored{}, err
	}
	sc := s.scoreAndFlag(rec)
	s.notify(Change{Kind: "worker_change", ID: id, Scored: &sc})
	return sc, nil
}

// Delete removes record id.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.notify(Change{Kind: "deleted", ID: id})
	return nil
}

// RowError reports why one import row was rejected.
type RowError struct {
	Line   int               `json:"line"`
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

// ImportResult summarises a bulk import.
type ImportResult struct {
	Created []string   `json:"created"`
	Failed  []RowError `json:"failed"`
}

// Import creates one record per row. Invalid rows are reported and skipped;
// valid rows are still stored. Only context cancellation aborts the import.
func (s *Service) Import(ctx context.Context, rows []csvio.Row) (ImportResult, error) {
	res := ImportResult{Created: []string{}, Failed: []RowError{}}
	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		sc, err := s.Create(ctx, row.Raw)
		if err != nil {
			re := RowError{Line: row.Line, Error: err.Error()}
			var ve *efficiency.ValidationError
			if errors.As(err, &ve) {
				re.Fields = ve.Fields()
			}
			res.Failed = append(res.Failed, re)
			continue
		}
		res.Created = append(res.Created, sc.Record.ID)
	}
	if len(res.Failed) > 0 {
		slog.Warn("allocation: import rejected rows", "rejected", len(res.Failed), "rows", len(rows))
	}
	return res, nil
}
