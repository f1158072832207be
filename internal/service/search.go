package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cloo-solutions/discover/internal/domain"
	"github.com/cloo-solutions/discover/internal/segment"
	"github.com/cloo-solutions/discover/internal/telemetry"
)

// FailuresShown is how many shard failures a search result lists in full.
const FailuresShown = 5

// SearchInput is one live search request.
type SearchInput struct {
	Query      json.RawMessage
	Range      *domain.TimeRange
	Sort       []string
	SampleSize int
}

// SearchOutput is the settled view of a live search.
type SearchOutput struct {
	Rows         []*domain.Hit         `json:"rows"`
	FieldCounts  map[string]int        `json:"field_counts"`
	Failures     []domain.ShardFailure `json:"failures"`
	FailureCount int                   `json:"failure_count"`
	Hits         int64                 `json:"hits"`
	Status       domain.FetchStatus    `json:"status"`
	State        domain.ResultState    `json:"state"`
}

// SearchService runs a segmented search to completion and returns the
// consumer's final view.
type SearchService struct {
	searcher   segment.Searcher
	scope      func() string
	timeField  string
	sampleSize int
}

func NewSearchService(searcher segment.Searcher, scope func() string, timeField string, sampleSize int) *SearchService {
	return &SearchService{
		searcher:   searcher,
		scope:      scope,
		timeField:  timeField,
		sampleSize: sampleSize,
	}
}

func (s *SearchService) Search(ctx context.Context, input SearchInput) (*SearchOutput, error) {
	if input.Range != nil && input.Range.Gte > input.Range.Lte {
		return nil, domain.ErrInvalidTimeRange
	}
	if len(input.Query) > 0 && !json.Valid(input.Query) {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "query_string must be a JSON object")
	}

	sampleSize := s.sampleSize
	if input.SampleSize > 0 && input.SampleSize < sampleSize {
		sampleSize = input.SampleSize
	}

	scope := s.scope()
	ctx, span := telemetry.StartSpan(ctx, "SearchService.Search", telemetry.SpanAttributes{
		Index:     scope,
		Operation: "search",
	})
	defer span.End()

	consumer := segment.NewConsumer()
	plan := consumer.BeginSearch(domain.ParseSortSpec(input.Sort, s.timeField), sampleSize, s.timeField)

	events := segment.NewFetcher(s.searcher).Stream(ctx, segment.Request{
		Scope: scope,
		Query: input.Query,
		Range: input.Range,
	}, plan)
	consumer.Run(ctx, events)

	if err := ctx.Err(); err != nil {
		span.SetError(err)
		return nil, fmt.Errorf("search cancelled: %w", err)
	}

	snap := consumer.Snapshot()
	failures := snap.Failures
	if len(failures) > FailuresShown {
		failures = failures[:FailuresShown]
	}

	return &SearchOutput{
		Rows:         snap.Rows,
		FieldCounts:  snap.FieldCounts,
		Failures:     failures,
		FailureCount: len(snap.Failures),
		Hits:         snap.Hits,
		Status:       snap.Status,
		State:        snap.State,
	}, nil
}
