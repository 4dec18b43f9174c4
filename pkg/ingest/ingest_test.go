package ingest

import (
	"testing"

	"github.com/floorscore/floorscore/pkg/efficiency"
)

func TestUpdate_Raw(t *testing.T) {
	u := Update{
		ID: "u1", RecordID: "r1", Time: "9 AM",
		ProductsMade: 12, ReworkCount: 1, DowntimeMinutes: 7.5, DowntimeReason: "Machine",
	}
	raw := u.Raw()

	if n, err := efficiency.Int(raw[efficiency.FieldProductsMade]); err != nil || n != 12 {
		t.Errorf("products_made: got %d, %v", n, err)
	}
	if f, err := efficiency.Float(raw[efficiency.FieldDowntimeMinutes]); err != nil || f != 7.5 {
		t.Errorf("downtime_minutes: got %v, %v", f, err)
	}
	if raw["id"] != "u1" || raw["downtime_reason"] != "Machine" {
		t.Errorf("raw: %v", raw)
	}
	if _, ok := raw["record_id"]; ok {
		t.Error("record_id must not be part of the update body")
	}
}

func TestResult_Retryable(t *testing.T) {
	for status, want := range map[string]bool{
		StatusApplied:   false,
		StatusDuplicate: false,
		StatusRejected:  false,
		StatusNotFound:  true,
	} {
		if got := (Result{Status: status}).Retryable(); got != want {
			t.Errorf("Retryable(%s): got %v, want %v", status, got, want)
		}
	}
}
