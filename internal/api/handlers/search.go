package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/cloo-solutions/discover/internal/api"
	"github.com/cloo-solutions/discover/internal/domain"
	"github.com/cloo-solutions/discover/internal/service"
)

type SearchService interface {
	Search(ctx context.Context, input service.SearchInput) (*service.SearchOutput, error)
}

type SearchHandler struct {
	svc SearchService
}

func NewSearchHandler(svc SearchService) *SearchHandler {
	return &SearchHandler{svc: svc}
}

type SearchRequest struct {
	QueryString json.RawMessage   `json:"query_string,omitempty"`
	Timestamp   *domain.TimeRange `json:"timestamp,omitempty"`
	Sort        []string          `json:"sort,omitempty"`
	SampleSize  int               `json:"sample_size,omitempty"`
}

func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.SampleSize < 0 {
		api.Error(w, http.StatusBadRequest, "sample_size must not be negative")
		return
	}

	out, err := h.svc.Search(r.Context(), service.SearchInput{
		Query:      req.QueryString,
		Range:      req.Timestamp,
		Sort:       req.Sort,
		SampleSize: req.SampleSize,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, out)
}
