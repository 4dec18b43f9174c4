package receiver_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/floorscore/floorscore/pkg/efficiency"
	"github.com/floorscore/floorscore/pkg/ingest"
	"github.com/floorscore/floorscore/server/internal/allocation"
	"github.com/floorscore/floorscore/server/internal/auth"
	"github.com/floorscore/floorscore/server/internal/receiver"
	"github.com/floorscore/floorscore/server/internal/store"
)

// startServer starts an httptest server with the receiver behind the auth
// middleware and returns its URL and the backing service.
func startServer(t *testing.T, mode, key string) (string, *allocation.Service) {
	t.Helper()

	svc := allocation.New(store.NewMemory())
	_, err := svc.Create(context.Background(), efficiency.RawRecord{
		"id": "r1", "worker_id": "1", "worker_name": "John Doe",
		"total_hours_worked": 8, "products_made": 100, "rework_count": 5, "downtime_minutes": 30,
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	mux := http.NewServeMux()
	mux.Handle(ingest.Path, receiver.New(svc))
	srv := httptest.NewServer(auth.Middleware(mode, "x-api-key", key)(mux))
	t.Cleanup(srv.Close)
	return srv.URL, svc
}

func post(t *testing.T, url, key string, body interface{}) (*http.Response, ingest.Response) {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case string:
		buf.WriteString(b)
	default:
		if err := json.NewEncoder(&buf).Encode(b); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req, _ := http.NewRequest(http.MethodPost, url+ingest.Path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("x-api-key", key)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()

	var out ingest.Response
	if resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			t.Fatalf("decode: %v", err)
		}
	}
	return resp, out
}

func update(id, record string, products int) ingest.Update {
	return ingest.Update{
		ID: id, RecordID: record, Time: "9 AM",
		ProductsMade: products, DowntimeReason: "Machine",
	}
}

func TestReceiver_Applies(t *testing.T) {
	url, svc := startServer(t, "none", "")

	resp, out := post(t, url, "", ingest.Batch{Agent: "station-1", Updates: []ingest.Update{update("u1", "r1", 20)}})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: got %d, want 200", resp.StatusCode)
	}
	if out.Applied != 1 || len(out.Results) != 1 || out.Results[0].Status != ingest.StatusApplied {
		t.Fatalf("response: %+v", out)
	}
	// 120/8*100/20 - 10 - 15 = 50
	if e := out.Results[0].Efficiency; e == nil || *e != 50 {
		t.Errorf("efficiency: got %v, want 50", e)
	}

	sc, err := svc.Get(context.Background(), "r1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if sc.Record.ProductsMade != 120 {
		t.Errorf("products_made: got %d, want 120", sc.Record.ProductsMade)
	}
	if src := sc.Record.HourlyUpdates[0].Source; src != "agent" {
		t.Errorf("source: got %q, want agent", src)
	}
}

func TestReceiver_Idempotent(t *testing.T) {
	url, svc := startServer(t, "none", "")
	batch := ingest.Batch{Updates: []ingest.Update{update("u1", "r1", 20)}}

	post(t, url, "", batch)
	_, out := post(t, url, "", batch)
	if out.Duplicate != 1 || out.Results[0].Status != ingest.StatusDuplicate {
		t.Errorf("replay: %+v", out)
	}
	sc, _ := svc.Get(context.Background(), "r1")
	if sc.Record.ProductsMade != 120 {
		t.Errorf("products_made after replay: got %d, want 120", sc.Record.ProductsMade)
	}
}

func TestReceiver_PerUpdateResults(t *testing.T) {
	url, _ := startServer(t, "none", "")

	bad := update("u3", "r1", -4)
	_, out := post(t, url, "", ingest.Batch{Updates: []ingest.Update{
		update("u1", "r1", 10),
		update("u2", "", 10),
		bad,
		update("u4", "missing", 10),
	}})

	want := []string{ingest.StatusApplied, ingest.StatusRejected, ingest.StatusRejected, ingest.StatusNotFound}
	if len(out.Results) != len(want) {
		t.Fatalf("results: got %d, want %d", len(out.Results), len(want))
	}
	for i, w := range want {
		if out.Results[i].Status != w {
			t.Errorf("results[%d]: got %q, want %q (%s)", i, out.Results[i].Status, w, out.Results[i].Error)
		}
	}
	if out.Results[1].Error != "record_id is required" {
		t.Errorf("empty record_id error: %q", out.Results[1].Error)
	}
	if _, ok := out.Results[2].Fields[efficiency.FieldProductsMade]; !ok {
		t.Errorf("expected products_made field error, got %v", out.Results[2].Fields)
	}
	if out.Applied != 1 || out.Rejected != 3 {
		t.Errorf("counts: applied=%d rejected=%d", out.Applied, out.Rejected)
	}
}

func TestReceiver_BadRequests(t *testing.T) {
	url, _ := startServer(t, "none", "")

	tests := []struct {
		name string
		body interface{}
		want int
	}{
		{"invalid JSON", `{"updates":`, http.StatusBadRequest},
		{"empty batch", ingest.Batch{}, http.StatusBadRequest},
		{"too large", ingest.Batch{Updates: make([]ingest.Update, ingest.MaxBatch+1)}, http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, _ := post(t, url, "", tt.body)
			if resp.StatusCode != tt.want {
				t.Errorf("status: got %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
}

func TestReceiver_MethodNotAllowed(t *testing.T) {
	url, _ := startServer(t, "none", "")
	resp, err := http.Get(url + ingest.Path)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("status: got %d, want 405", resp.StatusCode)
	}
}

func TestReceiver_Auth(t *testing.T) {
	url, _ := startServer(t, "apikey", "secret")
	batch := ingest.Batch{Updates: []ingest.Update{update("u1", "r1", 1)}}

	if resp, _ := post(t, url, "", batch); resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("no key: got %d, want 401", resp.StatusCode)
	}
	if resp, _ := post(t, url, "wrong", batch); resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("wrong key: got %d, want 401", resp.StatusCode)
	}
	resp, out := post(t, url, "secret", batch)
	if resp.StatusCode != http.StatusOK || out.Applied != 1 {
		t.Errorf("correct key: status %d, %+v", resp.StatusCode, out)
	}
}
