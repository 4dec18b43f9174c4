package allocation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/floorscore/floorscore/pkg/csvio"
	"github.com/floorscore/floorscore/pkg/efficiency"
	"github.com/floorscore/floorscore/pkg/types"
	"github.com/floorscore/floorscore/server/internal/store"
)

// fixedClock returns a func() time.Time that always returns t.
func fixedClock(t time.Time) func() time.Time { return func() time.Time { return t } }

func newService(t *testing.T, opts ...Option) *Service {
	t.Helper()
	s := New(store.NewMemory(), opts...)
	s.now = fixedClock(time.Date(2024, 3, 1, 13, 20, 0, 0, time.UTC))
	n := 0
	s.newID = func() string { n++; return fmt.Sprintf("gen-%d", n) }
	return s
}

func johnDoe() efficiency.RawRecord {
	return efficiency.RawRecord{
		"id": "1", "worker_id": "1", "worker_name": "John Doe",
		"line_number": "L1", "machine_number": "M1", "product_id": "P100", "shift": "Morning",
		"date": "2024-03-01", "total_hours_worked": 8, "products_made": 100,
		"rework_count": 5, "downtime_minutes": 30, "downtime_reason": "Machine",
	}
}

func janeSmith() efficiency.RawRecord {
	return efficiency.RawRecord{
		"id": "2", "worker_id": "2", "worker_name": "Jane Smith",
		"line_number": "L2", "machine_number": "M2", "product_id": "P200", "shift": "Evening",
		"date": "2024-03-01T14:30", "total_hours_worked": "6", "products_made": "80",
		"rework_count": "3", "downtime_minutes": "15", "downtime_reason": "material",
	}
}

func mustCreate(t *testing.T, s *Service, raw efficiency.RawRecord) Scored {
	t.Helper()
	sc, err := s.Create(context.Background(), raw)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return sc
}

// --- commands ---

func TestCreate_Scores(t *testing.T) {
	s := newService(t)
	john := mustCreate(t, s, johnDoe())
	if john.Score.Value != 38 || john.Band != efficiency.BandLow || john.Profile != "default" {
		t.Errorf("John: got %+v", john.Score)
	}
	jane := mustCreate(t, s, janeSmith())
	if jane.Score.Value != 53 {
		t.Errorf("Jane: got %d, want 53", jane.Score.Value)
	}
	if jane.Record.Date != "2024-03-01" || jane.Record.DowntimeReason != types.ReasonMaterial {
		t.Errorf("Jane descriptive fields: date=%q reason=%q", jane.Record.Date, jane.Record.DowntimeReason)
	}
}

func TestCreate_GeneratesID(t *testing.T) {
	s := newService(t)
	raw := johnDoe()
	delete(raw, "id")
	sc := mustCreate(t, s, raw)
	if sc.Record.ID != "gen-1" {
		t.Errorf("ID: got %q, want gen-1", sc.Record.ID)
	}
}

func TestCreate_Invalid(t *testing.T) {
	s := newService(t)
	raw := johnDoe()
	raw["total_hours_worked"] = 0
	raw["downtime_reason"] = "Weather"
	raw["date"] = "yesterday"

	_, err := s.Create(context.Background(), raw)
	var ve *efficiency.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("want *ValidationError, got %v", err)
	}
	if !ve.Has(efficiency.FieldTotalHoursWorked, efficiency.ErrInvalidDivisor) {
		t.Errorf("missing InvalidDivisor: %v", err)
	}
	if !ve.Has("downtime_reason", ErrUnknownReason) || !ve.Has("date", efficiency.ErrTypeMismatch) {
		t.Errorf("missing descriptive failures: %v", err)
	}
	if n, _ := s.Count(context.Background()); n != 0 {
		t.Errorf("invalid record was stored")
	}
}

func TestCreate_Duplicate(t *testing.T) {
	s := newService(t)
	mustCreate(t, s, johnDoe())
	if _, err := s.Create(context.Background(), johnDoe()); !errors.Is(err, store.ErrExists) {
		t.Errorf("got %v, want ErrExists", err)
	}
}

func TestUpdate_PartialMerge(t *testing.T) {
	s := newService(t)
	mustCreate(t, s, johnDoe())

	// Only products change: 160/(8*20)*100 = 100; minus 25 → 75
	sc, err := s.Update(context.Background(), "1", efficiency.RawRecord{"productsMade": "160", "id": "other"})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if sc.Record.ID != "1" || sc.Record.WorkerName != "John Doe" || sc.Record.ProductsMade != 160 {
		t.Errorf("after Update: %+v", sc.Record)
	}
	if sc.Score.Value != 75 || sc.Band != efficiency.BandMedium {
		t.Errorf("score after Update: %d/%s, want 75/medium", sc.Score.Value, sc.Band)
	}

	_, err = s.Update(context.Background(), "1", efficiency.RawRecord{"total_hours_worked": -1})
	if !errors.Is(err, efficiency.ErrInvalidDivisor) {
		t.Errorf("invalid Update: got %v, want InvalidDivisor", err)
	}
	got, _ := s.Get(context.Background(), "1")
	if got.Record.TotalHoursWorked != 8 {
		t.Errorf("rejected Update was persisted: hours=%v", got.Record.TotalHoursWorked)
	}

	if _, err := s.Update(context.Background(), "missing", efficiency.RawRecord{}); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Update missing: got %v, want ErrNotFound", err)
	}
}

func TestAddHourlyUpdate(t *testing.T) {
	s := newService(t)
	mustCreate(t, s, johnDoe())
	ctx := context.Background()

	body := efficiency.RawRecord{"id": "u-1", "products_made": 20, "rework_count": "1", "downtime_minutes": 5, "downtime_reason": "Men"}
	sc, applied, err := s.AddHourlyUpdate(ctx, "1", body)
	if err != nil || !applied {
		t.Fatalf("AddHourlyUpdate: applied=%v err=%v", applied, err)
	}
	// 120/160*100 = 75; 6*2 + 35*0.5 = 29.5 → 45.5 → 46
	if sc.Score.Value != 46 {
		t.Errorf("score: got %d, want 46", sc.Score.Value)
	}
	u := sc.Record.HourlyUpdates[0]
	if u.Time != "1 PM" || u.Source != "manual" || u.DowntimeReason != types.ReasonMen {
		t.Errorf("update defaults: %+v", u)
	}

	// Retrying the same update ID changes nothing.
	sc, applied, err = s.AddHourlyUpdate(ctx, "1", body)
	if err != nil || applied {
		t.Fatalf("retry: applied=%v err=%v", applied, err)
	}
	if sc.Record.ProductsMade != 120 || len(sc.Record.HourlyUpdates) != 1 {
		t.Errorf("retry double-counted: products=%d updates=%d", sc.Record.ProductsMade, len(sc.Record.HourlyUpdates))
	}
}

func TestAddHourlyUpdate_Invalid(t *testing.T) {
	s := newService(t)
	mustCreate(t, s, johnDoe())
	ctx := context.Background()

	tests := []struct {
		name  string
		body  efficiency.RawRecord
		field string
		want  error
	}{
		{"missing reason", efficiency.RawRecord{"products_made": 1}, "downtime_reason", efficiency.ErrMissingField},
		{"unknown reason", efficiency.RawRecord{"downtime_reason": "Method"}, "downtime_reason", ErrUnknownReason},
		{"negative products", efficiency.RawRecord{"products_made": -1, "downtime_reason": "Men"}, "products_made", efficiency.ErrNegativeQuantity},
		{"fractional rework", efficiency.RawRecord{"rework_count": 1.5, "downtime_reason": "Men"}, "rework_count", efficiency.ErrTypeMismatch},
		{"negative downtime", efficiency.RawRecord{"downtime_minutes": "-3", "downtime_reason": "Men"}, "downtime_minutes", efficiency.ErrNegativeQuantity},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := s.AddHourlyUpdate(ctx, "1", tc.body)
			var ve *efficiency.ValidationError
			if !errors.As(err, &ve) || !ve.Has(tc.field, tc.want) {
				t.Errorf("got %v, want %s: %v", err, tc.field, tc.want)
			}
		})
	}

	_, _, err := s.AddHourlyUpdate(ctx, "missing", efficiency.RawRecord{"downtime_reason": "Men"})
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("missing record: got %v, want ErrNotFound", err)
	}
}

func TestChangeWorker(t *testing.T) {
	s := newService(t)
	mustCreate(t, s, johnDoe())
	ctx := context.Background()

	sc, err := s.ChangeWorker(ctx, "1", efficiency.RawRecord{
		"replacement": "Alex Kim", "hours_original": 3, "hours_replacement": "5", "reason": "sick leave",
	})
	if err != nil {
		t.Fatalf("ChangeWorker: %v", err)
	}
	if sc.Record.WorkerName != "Alex Kim" || sc.Record.TotalHoursWorked != 5 {
		t.Errorf("record: %+v", sc.Record)
	}
	// 100/(5*20)*100 = 100; minus 25 → 75
	if sc.Score.Value != 75 {
		t.Errorf("score: got %d, want 75", sc.Score.Value)
	}
	c := sc.Record.WorkerChanges[0]
	if c.Original != "John Doe" || c.HoursOriginal != 3 || c.ID != "gen-1" {
		t.Errorf("change entry: %+v", c)
	}
}

func TestChangeWorker_Invalid(t *testing.T) {
	s := newService(t)
	mustCreate(t, s, johnDoe())

	_, err := s.ChangeWorker(context.Background(), "1", efficiency.RawRecord{"hours_replacement": 0})
	var ve *efficiency.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("want *ValidationError, got %v", err)
	}
	for field, want := range map[string]error{
		"hours_replacement": efficiency.ErrInvalidDivisor,
		"replacement":       efficiency.ErrMissingField,
		"reason":            efficiency.ErrMissingField,
	} {
		if !ve.Has(field, want) {
			t.Errorf("%s: want %v in %v", field, want, err)
		}
	}
}

func TestDelete(t *testing.T) {
	s := newService(t)
	mustCreate(t, s, johnDoe())
	ctx := context.Background()
	if err := s.Delete(ctx, "1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(ctx, "1"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Get after Delete: got %v", err)
	}
	if err := s.Delete(ctx, "1"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("second Delete: got %v", err)
	}
}

func TestImport(t *testing.T) {
	s := newService(t)
	rows, err := csvio.ReadAll(strings.NewReader(
		"id,worker_id,name,total_hours_worked,products_made,rework_count,downtime_minutes\n" +
			"1,1,John Doe,8,100,5,30\n" +
			"2,2,Jane Smith,0,80,3,15\n" +
			"3,3,Mike Johnson,4,50,1,10\n"))
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}

	res, err := s.Import(context.Background(), rows)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if fmt.Sprint(res.Created) != "[1 3]" {
		t.Errorf("Created: got %v, want [1 3]", res.Created)
	}
	if len(res.Failed) != 1 || res.Failed[0].Line != 3 {
		t.Fatalf("Failed: got %+v", res.Failed)
	}
	if res.Failed[0].Fields["total_hours_worked"] != efficiency.ErrInvalidDivisor.Error() {
		t.Errorf("Failed fields: %v", res.Failed[0].Fields)
	}
	mike, _ := s.Get(context.Background(), "3")
	if mike.Record.WorkerName != "Mike Johnson" || mike.Score.Value != 56 {
		t.Errorf("Mike: name=%q score=%d, want 56", mike.Record.WorkerName, mike.Score.Value)
	}
}

// --- parameters ---

func TestSetParams(t *testing.T) {
	s := newService(t)
	raw := johnDoe()
	raw["skill"] = "Welding"
	mustCreate(t, s, raw)

	err := s.SetParams(efficiency.Profiles{
		Default: efficiency.DefaultParams(),
		BySkill: map[string]efficiency.Params{
			"welding": {TargetRatePerHour: 10, ReworkPenaltyPerUnit: 2, DowntimeCostPerMinute: 0.5, Ceiling: efficiency.CeilingClamp},
		},
	})
	if err != nil {
		t.Fatalf("SetParams: %v", err)
	}
	// 100/(8*10)*100 = 125; minus 25 → 100
	got, _ := s.Get(context.Background(), "1")
	if got.Score.Value != 100 || got.Profile != "welding" {
		t.Errorf("rescored: value=%d profile=%q", got.Score.Value, got.Profile)
	}

	if err := s.SetParams(efficiency.Profiles{Default: efficiency.Params{}}); err == nil {
		t.Error("SetParams with zero target: expected error")
	}
	if s.Profiles().Default.TargetRatePerHour != 20 {
		t.Error("rejected params were installed")
	}
}

func TestScoreRaw(t *testing.T) {
	s := newService(t)
	_, sc, profile, err := s.ScoreRaw(efficiency.RawRecord{
		"worker_id": "x", "total_hours_worked": 6, "products_made": 80, "rework_count": 3, "downtime_minutes": 15,
	})
	if err != nil {
		t.Fatalf("ScoreRaw: %v", err)
	}
	if sc.Value != 53 || profile != "default" {
		t.Errorf("got %d/%q", sc.Value, profile)
	}
}

func TestOnChange(t *testing.T) {
	s := newService(t)
	var kinds []string
	s.OnChange(func(c Change) { kinds = append(kinds, c.Kind) })

	ctx := context.Background()
	mustCreate(t, s, johnDoe())
	_, _ = s.Update(ctx, "1", efficiency.RawRecord{"shift": "Night"})
	_, _, _ = s.AddHourlyUpdate(ctx, "1", efficiency.RawRecord{"downtime_reason": "Men"})
	_, _ = s.ChangeWorker(ctx, "1", efficiency.RawRecord{"replacement": "A", "reason": "r", "hours_replacement": 2})
	_ = s.Delete(ctx, "1")

	want := "[created updated hourly_update worker_change deleted]"
	if fmt.Sprint(kinds) != want {
		t.Errorf("kinds: got %v, want %s", kinds, want)
	}
}
