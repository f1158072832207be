package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cloo-solutions/discover/internal/domain"
	"github.com/cloo-solutions/discover/internal/export"
	"github.com/cloo-solutions/discover/internal/pagination"
	"github.com/cloo-solutions/discover/internal/repository"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockExportService struct {
	mock.Mock
}

func (m *MockExportService) Export(ctx context.Context, req domain.ExportRequest) (*domain.ExportResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ExportResult), args.Error(1)
}

func (m *MockExportService) Fetch(ctx context.Context, req domain.ExportRequest) ([]*domain.Hit, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Hit), args.Error(1)
}

func (m *MockExportService) State() export.State {
	args := m.Called()
	return args.Get(0).(export.State)
}

type MockExportLogReader struct {
	mock.Mock
}

func (m *MockExportLogReader) GetByID(ctx context.Context, id string) (*domain.ExportLog, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ExportLog), args.Error(1)
}

func (m *MockExportLogReader) ListWithCursor(ctx context.Context, cursor *pagination.Cursor, limit int) (*repository.ExportLogPage, error) {
	args := m.Called(ctx, cursor, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.ExportLogPage), args.Error(1)
}

func jsonBody(t *testing.T, v any) *bytes.Reader {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewReader(b)
}

func exportRouter(h *ExportHandler) http.Handler {
	r := chi.NewRouter()
	r.Get("/export", h.Raw)
	r.Post("/export", h.Raw)
	r.Post("/export/{id}", h.Raw)
	r.Post("/export/csv", h.CSV)
	r.Get("/export/state", h.State)
	r.Get("/exports", h.ListLogs)
	r.Get("/exports/{id}", h.GetLog)
	return r
}

func TestExportHandler_Raw(t *testing.T) {
	svc := new(MockExportService)
	svc.On("Fetch", mock.Anything, mock.MatchedBy(func(req domain.ExportRequest) bool {
		return len(req.SelectedFields) == 1 && req.SelectedFields[0] == "host" && req.Size == domain.SizeOf(2)
	})).Return([]*domain.Hit{
		{Index: "logs-1", Source: map[string]any{"host": "a"}},
		{Index: "logs-1", Source: map[string]any{"host": "b"}},
	}, nil)

	h := NewExportHandler(svc, nil)
	req := httptest.NewRequest(http.MethodPost, "/export/ignored", jsonBody(t, map[string]any{
		"selectedFields": []string{"host"},
		"size":           2,
	}))
	w := httptest.NewRecorder()
	exportRouter(h).ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var hits []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &hits))
	require.Len(t, hits, 2)
	assert.Equal(t, "logs-1", hits[0]["_index"])
	svc.AssertExpectations(t)
}

func TestExportHandler_RawBackendFailureYieldsEmptyObject(t *testing.T) {
	svc := new(MockExportService)
	svc.On("Fetch", mock.Anything, mock.Anything).Return(nil, domain.ErrBackendRejected)

	h := NewExportHandler(svc, nil)
	req := httptest.NewRequest(http.MethodPost, "/export", jsonBody(t, map[string]any{"selectedFields": []string{"host"}}))
	w := httptest.NewRecorder()
	exportRouter(h).ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{}`, w.Body.String())
}

func TestExportHandler_RawNoMatchesYieldsEmptyObject(t *testing.T) {
	tests := []struct {
		name string
		hits []*domain.Hit
	}{
		{name: "projected response without hits", hits: nil},
		{name: "empty hit list", hits: []*domain.Hit{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockExportService)
			svc.On("Fetch", mock.Anything, mock.Anything).Return(tt.hits, nil)

			h := NewExportHandler(svc, nil)
			req := httptest.NewRequest(http.MethodPost, "/export", jsonBody(t, map[string]any{"selectedFields": []string{"host"}}))
			w := httptest.NewRecorder()
			exportRouter(h).ServeHTTP(w, req)

			assert.Equal(t, http.StatusOK, w.Code)
			assert.JSONEq(t, `{}`, w.Body.String())
		})
	}
}

func TestExportHandler_RawUsageError(t *testing.T) {
	svc := new(MockExportService)
	svc.On("Fetch", mock.Anything, mock.Anything).Return(nil, domain.ErrNoFieldsSelected)

	h := NewExportHandler(svc, nil)
	req := httptest.NewRequest(http.MethodGet, "/export", nil)
	w := httptest.NewRecorder()
	exportRouter(h).ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestExportHandler_InvalidBody(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "malformed json", body: `{"selectedFields":`},
		{name: "bad size", body: `{"selectedFields":["a"],"size":"lots"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockExportService)
			h := NewExportHandler(svc, nil)

			req := httptest.NewRequest(http.MethodPost, "/export/csv", bytes.NewBufferString(tt.body))
			w := httptest.NewRecorder()
			exportRouter(h).ServeHTTP(w, req)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			svc.AssertNotCalled(t, "Export", mock.Anything, mock.Anything)
		})
	}
}

func TestExportHandler_CSV(t *testing.T) {
	svc := new(MockExportService)
	svc.On("Export", mock.Anything, mock.Anything).Return(&domain.ExportResult{
		ID:           "exp-1",
		Outcome:      domain.ExportCompleted,
		Body:         []byte("host\n\"a\"\n"),
		Filename:     "hosts.csv",
		Records:      1,
		QueryLatency: 120 * time.Millisecond,
		BuildLatency: 3 * time.Millisecond,
		DownloadURL:  "https://objects.example/exports/exp-1/hosts.csv",
	}, nil)

	h := NewExportHandler(svc, nil)
	req := httptest.NewRequest(http.MethodPost, "/export/csv", jsonBody(t, map[string]any{
		"selectedFields": []string{"host"},
		"filename":       "hosts.csv",
		"archive":        true,
	}))
	w := httptest.NewRecorder()
	exportRouter(h).ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "host\n\"a\"\n", w.Body.String())
	assert.Equal(t, "text/csv; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="hosts.csv"`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, "120", w.Header().Get("X-Query-Latency"))
	assert.Equal(t, "3", w.Header().Get("X-Build-Latency"))
	assert.Equal(t, "completed", w.Header().Get("X-Export-Outcome"))
	assert.Equal(t, "https://objects.example/exports/exp-1/hosts.csv", w.Header().Get("X-Download-URL"))
}

func TestExportHandler_CSVFailedExportStillServesHeader(t *testing.T) {
	svc := new(MockExportService)
	svc.On("Export", mock.Anything, mock.Anything).Return(&domain.ExportResult{
		ID:       "exp-2",
		Outcome:  domain.ExportFailed,
		Body:     []byte("host\n"),
		Filename: "export.csv",
	}, nil)

	h := NewExportHandler(svc, nil)
	req := httptest.NewRequest(http.MethodPost, "/export/csv", jsonBody(t, map[string]any{"selectedFields": []string{"host"}}))
	w := httptest.NewRecorder()
	exportRouter(h).ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "host\n", w.Body.String())
	assert.Equal(t, "failed", w.Header().Get("X-Export-Outcome"))
	assert.Empty(t, w.Header().Get("X-Download-URL"))
}

func TestExportHandler_CSVErrors(t *testing.T) {
	tests := []struct {
		name       string
		result     *domain.ExportResult
		err        error
		wantStatus int
	}{
		{
			name:       "busy",
			err:        domain.ErrExportInProgress,
			wantStatus: http.StatusConflict,
		},
		{
			name:       "usage error",
			err:        domain.ErrInvalidSize,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "timed out",
			result:     &domain.ExportResult{ID: "exp-3", Outcome: domain.ExportTimedOut, QueryLatency: 10 * time.Second},
			wantStatus: http.StatusGatewayTimeout,
		},
		{
			name:       "unexpected",
			err:        errors.New("boom"),
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockExportService)
			if tt.result != nil {
				svc.On("Export", mock.Anything, mock.Anything).Return(tt.result, nil)
			} else {
				svc.On("Export", mock.Anything, mock.Anything).Return(nil, tt.err)
			}

			h := NewExportHandler(svc, nil)
			req := httptest.NewRequest(http.MethodPost, "/export/csv", jsonBody(t, map[string]any{"selectedFields": []string{"host"}}))
			w := httptest.NewRecorder()
			exportRouter(h).ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.NotEqual(t, "text/csv; charset=utf-8", w.Header().Get("Content-Type"))
		})
	}
}

func TestExportHandler_State(t *testing.T) {
	svc := new(MockExportService)
	svc.On("State").Return(export.State{InFlight: true})

	h := NewExportHandler(svc, nil)
	w := httptest.NewRecorder()
	exportRouter(h).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/export/state", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"data":{"in_flight":true,"timed_out":false}}`, w.Body.String())
}

func TestExportHandler_ListLogs(t *testing.T) {
	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	logs := new(MockExportLogReader)
	logs.On("ListWithCursor", mock.Anything, (*pagination.Cursor)(nil), 2).Return(&repository.ExportLogPage{
		Items: []*domain.ExportLog{
			{ID: "a", Scope: "logs-*", Fields: []string{"host"}, Size: 5, Outcome: domain.ExportCompleted, ObjectKey: "exports/a/export.csv", CreatedAt: created},
			{ID: "b", Scope: "logs-*", Fields: []string{"host"}, Size: 5, Outcome: domain.ExportTimedOut, CreatedAt: created},
		},
		Cursor:  "next",
		HasMore: true,
	}, nil)

	h := NewExportHandler(new(MockExportService), logs)
	w := httptest.NewRecorder()
	exportRouter(h).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/exports?limit=2", nil))

	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data ExportLogListResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Data.Items, 2)
	assert.True(t, resp.Data.Items[0].Archived)
	assert.False(t, resp.Data.Items[1].Archived)
	assert.Equal(t, "timed_out", resp.Data.Items[1].Outcome)
	assert.Equal(t, "next", resp.Data.Cursor)
	assert.True(t, resp.Data.HasMore)
}

func TestExportHandler_ListLogsBadParams(t *testing.T) {
	tests := []struct {
		name  string
		query string
	}{
		{name: "bad cursor", query: "?cursor=notbase64!"},
		{name: "bad limit", query: "?limit=-1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logs := new(MockExportLogReader)
			h := NewExportHandler(new(MockExportService), logs)

			w := httptest.NewRecorder()
			exportRouter(h).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/exports"+tt.query, nil))

			assert.Equal(t, http.StatusBadRequest, w.Code)
			logs.AssertNotCalled(t, "ListWithCursor", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestExportHandler_AuditDisabled(t *testing.T) {
	h := NewExportHandler(new(MockExportService), nil)

	for _, path := range []string{"/exports", "/exports/a"} {
		w := httptest.NewRecorder()
		exportRouter(h).ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusNotFound, w.Code, path)
	}
}

func TestExportHandler_GetLog(t *testing.T) {
	logs := new(MockExportLogReader)
	logs.On("GetByID", mock.Anything, "a").Return(&domain.ExportLog{ID: "a", Outcome: domain.ExportCompleted}, nil)
	logs.On("GetByID", mock.Anything, "missing").Return(nil, repository.ErrExportLogNotFound)

	h := NewExportHandler(new(MockExportService), logs)

	w := httptest.NewRecorder()
	exportRouter(h).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/exports/a", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	exportRouter(h).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/exports/missing", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
