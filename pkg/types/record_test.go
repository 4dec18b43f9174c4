package types

import (
	"testing"
	"time"

	"github.com/floorscore/floorscore/pkg/efficiency"
)

func sample() *ShiftRecord {
	return &ShiftRecord{
		ID: "1", WorkerID: "1", WorkerName: "John Doe",
		TotalHoursWorked: 8, ProductsMade: 100, ReworkCount: 5, DowntimeMinutes: 30,
	}
}

func TestDowntimeReason_Valid(t *testing.T) {
	for _, r := range DowntimeReasons {
		if !r.Valid() {
			t.Errorf("%q: Valid() = false", r)
		}
	}
	for _, r := range []DowntimeReason{"", "machine", "Method"} {
		if r.Valid() {
			t.Errorf("%q: Valid() = true", r)
		}
	}
}

func TestApplyHourlyUpdate(t *testing.T) {
	r := sample()
	u := HourlyUpdate{ID: "u1", Time: "1 PM", ProductsMade: 20, ReworkCount: 1, DowntimeMinutes: 5, DowntimeReason: ReasonMaterial}

	if !r.ApplyHourlyUpdate(u) {
		t.Fatal("first apply returned false")
	}
	if r.ProductsMade != 120 || r.ReworkCount != 6 || r.DowntimeMinutes != 35 {
		t.Errorf("totals = %d/%d/%v, want 120/6/35", r.ProductsMade, r.ReworkCount, r.DowntimeMinutes)
	}
	if r.DowntimeReason != ReasonMaterial {
		t.Errorf("DowntimeReason = %q, want Material", r.DowntimeReason)
	}
	if r.TotalHoursWorked != 8 {
		t.Errorf("hours changed to %v", r.TotalHoursWorked)
	}

	if r.ApplyHourlyUpdate(u) {
		t.Error("re-applying the same update ID returned true")
	}
	if r.ProductsMade != 120 || len(r.HourlyUpdates) != 1 {
		t.Errorf("duplicate update was counted: products=%d updates=%d", r.ProductsMade, len(r.HourlyUpdates))
	}

	// 120/(8*20)*100 = 75; 6*2 + 35*0.5 = 29.5 → 45.5 → 46
	if got := efficiency.Compute(r.ScoringRecord(), efficiency.DefaultParams()).Value; got != 46 {
		t.Errorf("score after update = %d, want 46", got)
	}
}

func TestApplyWorkerChange(t *testing.T) {
	r := sample()
	r.ApplyWorkerChange(WorkerChange{Replacement: "Alex", HoursOriginal: 3, HoursReplacement: 5, Reason: "sick"})

	if r.WorkerName != "Alex" || r.TotalHoursWorked != 5 {
		t.Errorf("after change: name=%q hours=%v", r.WorkerName, r.TotalHoursWorked)
	}
	if len(r.WorkerChanges) != 1 || r.WorkerChanges[0].Original != "John Doe" {
		t.Errorf("WorkerChanges = %+v", r.WorkerChanges)
	}
	// 100/(5*20)*100 = 100; minus 25 → 75
	if got := efficiency.Compute(r.ScoringRecord(), efficiency.DefaultParams()).Value; got != 75 {
		t.Errorf("score after change = %d, want 75", got)
	}
}

func TestClone_IsDeep(t *testing.T) {
	r := sample()
	r.ApplyHourlyUpdate(HourlyUpdate{ID: "u1"})
	c := r.Clone()
	c.HourlyUpdates[0].ID = "changed"
	c.WorkerName = "other"
	if r.HourlyUpdates[0].ID != "u1" || r.WorkerName != "John Doe" {
		t.Error("Clone shares state with the original")
	}
}

func TestHourLabel(t *testing.T) {
	tests := map[int]string{0: "12 AM", 9: "9 AM", 12: "12 PM", 13: "1 PM", 23: "11 PM"}
	for h, want := range tests {
		got := HourLabel(time.Date(2024, 3, 1, h, 42, 0, 0, time.UTC))
		if got != want {
			t.Errorf("HourLabel(%02d:42) = %q, want %q", h, got, want)
		}
	}
}
