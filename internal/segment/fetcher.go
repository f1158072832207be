package segment

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"slices"
	"sort"

	"github.com/cloo-solutions/discover/internal/domain"
)

// Searcher is the slice of the search gateway a segmented fetch needs.
type Searcher interface {
	ResolveIndices(ctx context.Context, pattern string) ([]string, error)
	Execute(ctx context.Context, q domain.SearchQuery) (*domain.SearchResponse, error)
}

// Request selects the records of one live search.
type Request struct {
	Scope string
	Query json.RawMessage
	Range *domain.TimeRange
}

// Fetcher searches the indices of a scope one segment at a time and emits
// the ordered event stream a Consumer folds.
type Fetcher struct {
	searcher Searcher
}

// NewFetcher creates a Fetcher.
func NewFetcher(searcher Searcher) *Fetcher {
	return &Fetcher{searcher: searcher}
}

// Stream starts the search and returns its events. The channel is closed
// after the complete event, or early when ctx ends.
func (f *Fetcher) Stream(ctx context.Context, req Request, plan Plan) <-chan Event {
	out := make(chan Event, 4)

	go func() {
		defer close(out)

		send := func(ev Event) bool {
			select {
			case out <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		if !send(Event{Kind: EventStatus, Status: domain.FetchInFlight}) {
			return
		}
		if !send(Event{Kind: EventFirst}) {
			return
		}

		body, err := buildSegmentBody(req, plan)
		if err != nil {
			log.Printf("segment: invalid search body: %v", err)
			send(Event{Kind: EventComplete})
			return
		}
		segments := f.segments(ctx, req.Scope, plan)

		var merged []*domain.Hit
		var total int64
		for _, index := range segments {
			if ctx.Err() != nil {
				return
			}

			resp, err := f.searcher.Execute(ctx, domain.SearchQuery{Index: index, Body: body})
			if err != nil {
				log.Printf("segment: search of %s failed: %v", index, err)
				resp = failedSegment(index, err)
			}

			total += resp.Total()
			merged = append(merged, resp.HitList()...)
			if plan.SortFn != nil {
				slices.SortStableFunc(merged, plan.SortFn)
			}
			if plan.Size > 0 && len(merged) > plan.Size {
				merged = merged[:plan.Size]
			}

			if !send(Event{Kind: EventSegment, Segment: resp}) {
				return
			}
			snapshot := make([]*domain.Hit, len(merged))
			copy(snapshot, merged)
			if !send(Event{Kind: EventMerged, Merged: &domain.SearchResponse{
				Hits: &domain.HitsEnvelope{Total: domain.TotalHits{Value: total, Relation: "eq"}, Hits: snapshot},
			}}) {
				return
			}
		}

		send(Event{Kind: EventComplete})
	}()

	return out
}

// segments lists the indices to search in plan order. When the scope cannot
// be resolved the scope pattern itself is searched as one segment.
func (f *Fetcher) segments(ctx context.Context, scope string, plan Plan) []string {
	indices, err := f.searcher.ResolveIndices(ctx, scope)
	if err != nil {
		log.Printf("segment: resolving %q failed, searching it as one segment: %v", scope, err)
	}
	if len(indices) == 0 {
		return []string{scope}
	}

	sort.Strings(indices)
	if plan.Direction != domain.Asc {
		slices.Reverse(indices)
	}
	if plan.MaxSegments > 0 && len(indices) > plan.MaxSegments {
		// A single capped segment has to cover the whole scope.
		if plan.MaxSegments == 1 {
			return []string{scope}
		}
		indices = indices[:plan.MaxSegments]
	}
	return indices
}

func failedSegment(index string, err error) *domain.SearchResponse {
	return &domain.SearchResponse{
		Shards: &domain.ShardStats{
			Total:  1,
			Failed: 1,
			Failures: []domain.ShardFailure{{
				Index:  index,
				Shard:  -1,
				Reason: domain.FailureReason{Type: "search_exception", Reason: err.Error()},
			}},
		},
	}
}

func buildSegmentBody(req Request, plan Plan) (json.RawMessage, error) {
	must := make([]any, 0, 2)
	if len(req.Query) > 0 && string(req.Query) != "null" {
		must = append(must, map[string]json.RawMessage{"query_string": req.Query})
	} else {
		must = append(must, map[string]any{"match_all": map[string]any{}})
	}
	if req.Range != nil && plan.TimeField != "" {
		if req.Range.Gte > req.Range.Lte {
			return nil, fmt.Errorf("range %d > %d: %w", req.Range.Gte, req.Range.Lte, domain.ErrInvalidTimeRange)
		}
		format := req.Range.Format
		if format == "" {
			format = "epoch_millis"
		}
		must = append(must, map[string]any{"range": map[string]any{
			plan.TimeField: map[string]any{"format": format, "gte": req.Range.Gte, "lte": req.Range.Lte},
		}})
	}

	body := map[string]any{
		"size":             plan.Size,
		"track_total_hits": true,
		"query":            map[string]any{"bool": map[string]any{"must": must}},
	}
	if plan.SortField != "" && plan.SortField != "_score" {
		order := plan.SortDirection
		if order == "" {
			order = plan.Direction
		}
		body["sort"] = []any{map[string]any{
			plan.SortField: map[string]any{"order": string(order), "unmapped_type": "boolean"},
		}}
	}

	return json.Marshal(body)
}
