package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cloo-solutions/discover/internal/domain"
	"github.com/cloo-solutions/discover/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockSearchService struct {
	mock.Mock
}

func (m *MockSearchService) Search(ctx context.Context, input service.SearchInput) (*service.SearchOutput, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.SearchOutput), args.Error(1)
}

func TestSearchHandler_Search(t *testing.T) {
	svc := new(MockSearchService)
	svc.On("Search", mock.Anything, mock.MatchedBy(func(in service.SearchInput) bool {
		return in.SampleSize == 50 && in.Range != nil && in.Range.Gte == 1 && len(in.Sort) == 2
	})).Return(&service.SearchOutput{
		Rows:        []*domain.Hit{{ID: "a", Source: map[string]any{"host": "x"}}},
		FieldCounts: map[string]int{"host": 1},
		Hits:        1,
		Status:      domain.FetchSettled,
		State:       domain.ResultReady,
	}, nil)

	h := NewSearchHandler(svc)
	body := `{"query_string":{"query":"host:x"},"timestamp":{"gte":1,"lte":2},"sort":["@timestamp","asc"],"sample_size":50}`
	req := httptest.NewRequest(http.MethodPost, "/search", bytes.NewBufferString(body))
	w := httptest.NewRecorder()
	h.Search(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data service.SearchOutput `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, int64(1), resp.Data.Hits)
	assert.Equal(t, domain.ResultReady, resp.Data.State)
	assert.Equal(t, 1, resp.Data.FieldCounts["host"])
	svc.AssertExpectations(t)
}

func TestSearchHandler_Errors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		svcErr     error
		wantStatus int
	}{
		{name: "invalid json", body: `{`, wantStatus: http.StatusBadRequest},
		{name: "negative sample", body: `{"sample_size":-1}`, wantStatus: http.StatusBadRequest},
		{name: "inverted range", body: `{"timestamp":{"gte":5,"lte":1}}`, svcErr: domain.ErrInvalidTimeRange, wantStatus: http.StatusBadRequest},
		{name: "backend", body: `{}`, svcErr: domain.ErrBackendRejected, wantStatus: http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockSearchService)
			if tt.svcErr != nil {
				svc.On("Search", mock.Anything, mock.Anything).Return(nil, tt.svcErr)
			}

			h := NewSearchHandler(svc)
			w := httptest.NewRecorder()
			h.Search(w, httptest.NewRequest(http.MethodPost, "/search", bytes.NewBufferString(tt.body)))

			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
}
