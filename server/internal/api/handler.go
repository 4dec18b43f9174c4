package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/floorscore/floorscore/pkg/csvio"
	"github.com/floorscore/floorscore/pkg/efficiency"
	"github.com/floorscore/floorscore/server/internal/alerts"
	"github.com/floorscore/floorscore/server/internal/allocation"
	"github.com/floorscore/floorscore/server/internal/store"
)

// maxBodyBytes bounds JSON and CSV request bodies.
const maxBodyBytes = 8 << 20

// Handler is the HTTP handler for all /api/v1/* endpoints.
type Handler struct {
	svc    *allocation.Service
	alerts *alerts.Engine // nil when alerting is not configured
	mux    *http.ServeMux
}

// New creates a Handler over svc and registers all routes. al may be nil.
func New(svc *allocation.Service, al *alerts.Engine) http.Handler {
	h := &Handler{svc: svc, alerts: al, mux: http.NewServeMux()}

	h.mux.HandleFunc("/api/v1/health", h.health)
	h.mux.HandleFunc("/api/v1/records", h.records)
	h.mux.HandleFunc("/api/v1/records/", h.record) // subtree: {id}[/hourly-updates|/worker-changes]
	h.mux.HandleFunc("/api/v1/report", h.report)
	h.mux.HandleFunc("/api/v1/options/", h.options)
	h.mux.HandleFunc("/api/v1/score", h.score)
	h.mux.HandleFunc("/api/v1/params", h.params)
	h.mux.HandleFunc("/api/v1/import", h.importCSV)
	h.mux.HandleFunc("/api/v1/export", h.exportCSV)
	h.mux.HandleFunc("/api/v1/alerts", h.listAlerts)

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// --- route handlers ---------------------------------------------------------

// health returns GET /api/v1/health: record count, average efficiency and band counts.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	rep, err := h.svc.Report(r.Context(), allocation.Filter{})
	if err != nil {
		writeErr(w, err)
		return
	}
	resp := HealthResponse{
		RecordCount:       rep.Count,
		AverageEfficiency: rep.Average,
		State:             "no_data",
		Bands:             rep.Bands,
		OverageCount:      rep.Overage,
	}
	if rep.Average != nil {
		resp.State = string(efficiency.BandOf(int(*rep.Average + 0.5)))
	}
	if h.alerts != nil {
		resp.AlertCount = h.alerts.FiringCount()
	}
	jsonResp(w, http.StatusOK, resp)
}

// records serves GET (query) and POST (create) on /api/v1/records.
func (h *Handler) records(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		f, err := allocation.ParseFilter(r.URL.Query())
		if err != nil {
			writeErr(w, err)
			return
		}
		page, err := h.svc.Query(r.Context(), f)
		if err != nil {
			writeErr(w, err)
			return
		}
		resp := PageResponse{
			Items:      make([]RecordResponse, 0, len(page.Items)),
			Total:      page.Total,
			Page:       page.Page,
			PageSize:   page.PageSize,
			TotalPages: page.TotalPages,
		}
		for _, it := range page.Items {
			resp.Items = append(resp.Items, toRecordResponse(it))
		}
		jsonResp(w, http.StatusOK, resp)

	case http.MethodPost:
		raw, ok := decodeRaw(w, r)
		if !ok {
			return
		}
		sc, err := h.svc.Create(r.Context(), raw)
		if err != nil {
			writeErr(w, err)
			return
		}
		jsonResp(w, http.StatusCreated, toRecordResponse(sc))

	default:
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// record serves /api/v1/records/{id} and its hourly-updates and
// worker-changes sub-resources.
func (h *Handler) record(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/records/"), "/")
	if rest == "" {
		h.records(w, r)
		return
	}
	id, sub, _ := strings.Cut(rest, "/")

	switch sub {
	case "":
		h.recordItem(w, r, id)
	case "hourly-updates":
		if r.Method != http.MethodPost {
			jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		raw, ok := decodeRaw(w, r)
		if !ok {
			return
		}
		sc, applied, err := h.svc.AddHourlyUpdate(r.Context(), id, raw)
		if err != nil {
			writeErr(w, err)
			return
		}
		code := http.StatusCreated
		if !applied {
			code = http.StatusOK
		}
		jsonResp(w, code, HourlyUpdateResponse{Applied: applied, Record: toRecordResponse(sc)})
	case "worker-changes":
		if r.Method != http.MethodPost {
			jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		raw, ok := decodeRaw(w, r)
		if !ok {
			return
		}
		sc, err := h.svc.ChangeWorker(r.Context(), id, raw)
		if err != nil {
			writeErr(w, err)
			return
		}
		jsonResp(w, http.StatusCreated, toRecordResponse(sc))
	default:
		jsonErr(w, http.StatusNotFound, "not found")
	}
}

func (h *Handler) recordItem(w http.ResponseWriter, r *http.Request, id string) {
	switch r.Method {
	case http.MethodGet:
		sc, err := h.svc.Get(r.Context(), id)
		if err != nil {
			writeErr(w, err)
			return
		}
		jsonResp(w, http.StatusOK, toRecordResponse(sc))

	case http.MethodPut, http.MethodPatch:
		raw, ok := decodeRaw(w, r)
		if !ok {
			return
		}
		sc, err := h.svc.Update(r.Context(), id, raw)
		if err != nil {
			writeErr(w, err)
			return
		}
		jsonResp(w, http.StatusOK, toRecordResponse(sc))

	case http.MethodDelete:
		if err := h.svc.Delete(r.Context(), id); err != nil {
			writeErr(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// report returns GET /api/v1/report: the aggregate over the filtered records.
func (h *Handler) report(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	f, err := allocation.ParseFilter(r.URL.Query())
	if err != nil {
		writeErr(w, err)
		return
	}
	rep, err := h.svc.Report(r.Context(), f)
	if err != nil {
		writeErr(w, err)
		return
	}
	jsonResp(w, http.StatusOK, rep)
}

// options returns GET /api/v1/options/{field}: distinct values for a filter dropdown.
func (h *Handler) options(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	field := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/options/"), "/")
	vals, err := h.svc.Options(r.Context(), field)
	if err != nil {
		writeErr(w, err)
		return
	}
	if vals == nil {
		vals = []string{}
	}
	jsonResp(w, http.StatusOK, OptionsResponse{Field: field, Values: vals})
}

// score returns POST /api/v1/score: the efficiency of an unsaved record.
func (h *Handler) score(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	raw, ok := decodeRaw(w, r)
	if !ok {
		return
	}
	rec, sc, profile, err := h.svc.ScoreRaw(raw)
	if err != nil {
		writeErr(w, err)
		return
	}
	jsonResp(w, http.StatusOK, ScoreResponse{Input: rec, Score: sc, Band: sc.Band(), Profile: profile})
}

// params returns GET /api/v1/params: the scoring parameters in effect.
func (h *Handler) params(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	jsonResp(w, http.StatusOK, h.svc.Profiles())
}

// importCSV serves POST /api/v1/import with a CSV body.
func (h *Handler) importCSV(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	rows, err := csvio.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		jsonErr(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := h.svc.Import(r.Context(), rows)
	if err != nil {
		writeErr(w, err)
		return
	}
	jsonResp(w, http.StatusOK, res)
}

// exportColumns are the CSV export columns after the record fields.
var exportColumns = []string{"raw_efficiency", "overage", "profile"}

// exportCSV serves GET /api/v1/export: every filtered record as CSV.
func (h *Handler) exportCSV(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	f, err := allocation.ParseFilter(r.URL.Query())
	if err != nil {
		writeErr(w, err)
		return
	}
	items, err := h.svc.Select(r.Context(), f)
	if err != nil {
		writeErr(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="allocation-report.csv"`)
	cols := append(allocation.Columns(), exportColumns...)
	cw, err := csvio.NewWriter(w, cols)
	if err != nil {
		slog.Error("api: export header", "err", err)
		return
	}
	for _, it := range items {
		row := allocation.Row(it)
		row["raw_efficiency"] = fmt.Sprintf("%.2f", it.Score.Raw)
		row["overage"] = it.Score.Overage
		row["profile"] = it.Profile
		if err := cw.Write(row); err != nil {
			slog.Error("api: export row", "record_id", it.Record.ID, "err", err)
			return
		}
	}
	if err := cw.Flush(); err != nil {
		slog.Error("api: export flush", "err", err)
	}
}

// listAlerts returns GET /api/v1/alerts: firing and recently resolved alerts.
func (h *Handler) listAlerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if h.alerts == nil {
		jsonResp(w, http.StatusOK, []struct{}{})
		return
	}
	jsonResp(w, http.StatusOK, h.alerts.Active())
}

// --- helpers ----------------------------------------------------------------

// decodeRaw reads a JSON object body. Numbers are kept as json.Number so that
// validation sees exactly what the client sent. On failure it writes a 400
// and returns false.
func decodeRaw(w http.ResponseWriter, r *http.Request) (efficiency.RawRecord, bool) {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.UseNumber()
	var raw efficiency.RawRecord
	if err := dec.Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			jsonErr(w, http.StatusBadRequest, "request body is empty")
		} else {
			jsonErr(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		}
		return nil, false
	}
	if raw == nil {
		raw = efficiency.RawRecord{}
	}
	return raw, true
}

// writeErr maps service errors onto HTTP status codes.
func writeErr(w http.ResponseWriter, err error) {
	var ve *efficiency.ValidationError
	switch {
	case errors.As(err, &ve):
		jsonResp(w, http.StatusUnprocessableEntity, errorResponse{Error: ve.Error(), Fields: ve.Fields()})
	case errors.Is(err, store.ErrNotFound):
		jsonErr(w, http.StatusNotFound, "record not found")
	case errors.Is(err, store.ErrExists):
		jsonErr(w, http.StatusConflict, "record already exists")
	case errors.Is(err, allocation.ErrBadFilter):
		jsonErr(w, http.StatusBadRequest, err.Error())
	default:
		slog.Error("api: request failed", "err", err)
		jsonErr(w, http.StatusInternalServerError, "internal error")
	}
}

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}
