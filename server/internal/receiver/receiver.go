package receiver

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/floorscore/floorscore/pkg/efficiency"
	"github.com/floorscore/floorscore/pkg/ingest"
	"github.com/floorscore/floorscore/server/internal/allocation"
	"github.com/floorscore/floorscore/server/internal/store"
)

const maxBodyBytes = 4 << 20

// Receiver accepts hourly-update batches from floorscore-agent instances
// and applies them to shift records.
type Receiver struct {
	svc *allocation.Service
}

// New creates a Receiver that writes accepted updates through svc.
func New(svc *allocation.Service) *Receiver {
	return &Receiver{svc: svc}
}

// ServeHTTP handles POST ingest.Path. Authentication is enforced by the
// middleware in front of it.
func (rc *Receiver) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var batch ingest.Batch
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&batch); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}
	if len(batch.Updates) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "updates is required"})
		return
	}
	if len(batch.Updates) > ingest.MaxBatch {
		writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "batch too large"})
		return
	}

	resp := ingest.Response{Results: make([]ingest.Result, 0, len(batch.Updates))}
	for _, u := range batch.Updates {
		res := rc.apply(r, u)
		switch res.Status {
		case ingest.StatusApplied:
			resp.Applied++
		case ingest.StatusDuplicate:
			resp.Duplicate++
		default:
			resp.Rejected++
		}
		resp.Results = append(resp.Results, res)
	}

	slog.Debug("receiver: batch processed",
		"agent", batch.Agent,
		"applied", resp.Applied,
		"duplicate", resp.Duplicate,
		"rejected", resp.Rejected,
	)
	if resp.Rejected > 0 {
		slog.Warn("receiver: updates rejected", "agent", batch.Agent, "count", resp.Rejected)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (rc *Receiver) apply(r *http.Request, u ingest.Update) ingest.Result {
	res := ingest.Result{ID: u.ID, RecordID: u.RecordID}
	if u.RecordID == "" {
		res.Status = ingest.StatusRejected
		res.Error = "record_id is required"
		return res
	}
	if u.Source == "" {
		u.Source = "agent"
	}

	sc, applied, err := rc.svc.AddHourlyUpdate(r.Context(), u.RecordID, u.Raw())
	var ve *efficiency.ValidationError
	switch {
	case errors.As(err, &ve):
		res.Status = ingest.StatusRejected
		res.Error = ve.Error()
		res.Fields = ve.Fields()
	case errors.Is(err, store.ErrNotFound):
		res.Status = ingest.StatusNotFound
		res.Error = "record not found"
	case err != nil:
		slog.Error("receiver: apply update", "record_id", u.RecordID, "update_id", u.ID, "err", err)
		res.Status = ingest.StatusRejected
		res.Error = "internal error"
	default:
		res.Status = ingest.StatusApplied
		if !applied {
			res.Status = ingest.StatusDuplicate
		}
		v := sc.Score.Value
		res.Efficiency = &v
	}
	return res
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}
