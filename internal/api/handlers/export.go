package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/cloo-solutions/discover/internal/api"
	"github.com/cloo-solutions/discover/internal/domain"
	"github.com/cloo-solutions/discover/internal/export"
	"github.com/cloo-solutions/discover/internal/pagination"
	"github.com/cloo-solutions/discover/internal/repository"
	"github.com/go-chi/chi/v5"
)

type ExportService interface {
	Export(ctx context.Context, req domain.ExportRequest) (*domain.ExportResult, error)
	Fetch(ctx context.Context, req domain.ExportRequest) ([]*domain.Hit, error)
	State() export.State
}

type ExportLogReader interface {
	GetByID(ctx context.Context, id string) (*domain.ExportLog, error)
	ListWithCursor(ctx context.Context, cursor *pagination.Cursor, limit int) (*repository.ExportLogPage, error)
}

type ExportHandler struct {
	svc  ExportService
	logs ExportLogReader
}

// NewExportHandler creates an ExportHandler. logs may be nil when no
// database is configured; the audit endpoints then answer 404.
func NewExportHandler(svc ExportService, logs ExportLogReader) *ExportHandler {
	return &ExportHandler{svc: svc, logs: logs}
}

type ExportLogResponse struct {
	ID             string    `json:"id"`
	Scope          string    `json:"scope"`
	Fields         []string  `json:"fields"`
	Size           int       `json:"size"`
	Outcome        string    `json:"outcome"`
	Records        int       `json:"records"`
	QueryLatencyMS int64     `json:"query_latency_ms"`
	BuildLatencyMS int64     `json:"build_latency_ms"`
	Archived       bool      `json:"archived"`
	CreatedAt      time.Time `json:"created_at"`
}

type ExportLogListResponse struct {
	Items   []*ExportLogResponse `json:"items"`
	Cursor  string               `json:"cursor,omitempty"`
	HasMore bool                 `json:"has_more"`
}

func exportLogToResponse(l *domain.ExportLog) *ExportLogResponse {
	return &ExportLogResponse{
		ID:             l.ID,
		Scope:          l.Scope,
		Fields:         l.Fields,
		Size:           l.Size,
		Outcome:        string(l.Outcome),
		Records:        l.Records,
		QueryLatencyMS: l.QueryLatencyMS,
		BuildLatencyMS: l.BuildLatencyMS,
		Archived:       l.ObjectKey != "",
		CreatedAt:      l.CreatedAt,
	}
}

// Raw answers with the bare hits array, unwrapped, or {} when the backend
// gave nothing usable. The path id is accepted and ignored.
func (h *ExportHandler) Raw(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeExportRequest(w, r)
	if !ok {
		return
	}

	hits, err := h.svc.Fetch(r.Context(), req)
	if err != nil {
		if domain.IsUsageError(err) {
			api.HandleError(w, err)
			return
		}
		log.Printf("raw export failed: %v", err)
		api.JSON(w, http.StatusOK, struct{}{})
		return
	}
	if len(hits) == 0 {
		api.JSON(w, http.StatusOK, struct{}{})
		return
	}
	api.JSON(w, http.StatusOK, hits)
}

// CSV runs a guarded export and streams the document back.
func (h *ExportHandler) CSV(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeExportRequest(w, r)
	if !ok {
		return
	}

	result, err := h.svc.Export(r.Context(), req)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	w.Header().Set("X-Export-ID", result.ID)
	w.Header().Set("X-Export-Outcome", string(result.Outcome))
	w.Header().Set("X-Query-Latency", strconv.FormatInt(result.QueryLatency.Milliseconds(), 10))

	if result.TimedOut() {
		api.HandleError(w, domain.ErrExportTimedOut)
		return
	}

	w.Header().Set("X-Build-Latency", strconv.FormatInt(result.BuildLatency.Milliseconds(), 10))
	w.Header().Set("X-Export-Records", strconv.Itoa(result.Records))
	if result.DownloadURL != "" {
		w.Header().Set("X-Download-URL", result.DownloadURL)
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(result.Body); err != nil {
		log.Printf("export %s: failed to write response: %v", result.ID, err)
	}
}

func (h *ExportHandler) State(w http.ResponseWriter, r *http.Request) {
	api.Success(w, http.StatusOK, h.svc.State())
}

func (h *ExportHandler) ListLogs(w http.ResponseWriter, r *http.Request) {
	if h.logs == nil {
		api.Error(w, http.StatusNotFound, "export audit log is not enabled")
		return
	}

	var cursor *pagination.Cursor
	if raw := r.URL.Query().Get("cursor"); raw != "" {
		c, err := pagination.DecodeCursor(raw)
		if err != nil {
			api.Error(w, http.StatusBadRequest, err.Error())
			return
		}
		cursor = c
	}

	limit, err := pagination.ParseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		api.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	page, err := h.logs.ListWithCursor(r.Context(), cursor, limit)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	items := make([]*ExportLogResponse, len(page.Items))
	for i, l := range page.Items {
		items[i] = exportLogToResponse(l)
	}
	api.Success(w, http.StatusOK, ExportLogListResponse{
		Items:   items,
		Cursor:  page.Cursor,
		HasMore: page.HasMore,
	})
}

func (h *ExportHandler) GetLog(w http.ResponseWriter, r *http.Request) {
	if h.logs == nil {
		api.Error(w, http.StatusNotFound, "export audit log is not enabled")
		return
	}

	entry, err := h.logs.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, repository.ErrExportLogNotFound) {
			api.Error(w, http.StatusNotFound, "export not found")
			return
		}
		api.HandleError(w, err)
		return
	}
	api.Success(w, http.StatusOK, exportLogToResponse(entry))
}

// decodeExportRequest reads the request body for both GET and POST. An empty
// body yields the zero request, which the builder rejects for lack of fields.
func decodeExportRequest(w http.ResponseWriter, r *http.Request) (domain.ExportRequest, bool) {
	var req domain.ExportRequest
	if r.Body == nil {
		return req, true
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			api.Error(w, http.StatusRequestEntityTooLarge, "request body too large")
			return req, false
		}
		if domain.IsUsageError(err) {
			api.HandleError(w, err)
			return req, false
		}
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return req, false
	}
	return req, true
}
