package segment

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/cloo-solutions/discover/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockSearcher struct {
	mock.Mock
}

func (m *MockSearcher) ResolveIndices(ctx context.Context, pattern string) ([]string, error) {
	args := m.Called(ctx, pattern)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockSearcher) Execute(ctx context.Context, q domain.SearchQuery) (*domain.SearchResponse, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.SearchResponse), args.Error(1)
}

func onIndex(index string) any {
	return mock.MatchedBy(func(q domain.SearchQuery) bool { return q.Index == index })
}

func response(total int64, hits ...*domain.Hit) *domain.SearchResponse {
	return &domain.SearchResponse{
		Shards: &domain.ShardStats{Total: 1, Successful: 1},
		Hits:   &domain.HitsEnvelope{Total: domain.TotalHits{Value: total}, Hits: hits},
	}
}

func drain(t *testing.T, events <-chan Event) []Event {
	t.Helper()
	var out []Event
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatal("stream did not close")
			return out
		}
	}
}

func kinds(events []Event) []EventKind {
	out := make([]EventKind, len(events))
	for i, ev := range events {
		out[i] = ev.Kind
	}
	return out
}

func TestFetcher_StreamsSegmentsNewestFirst(t *testing.T) {
	searcher := new(MockSearcher)
	searcher.On("ResolveIndices", mock.Anything, "logs-*").Return([]string{"logs-1", "logs-3", "logs-2"}, nil)

	var order []string
	searcher.On("Execute", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		order = append(order, args.Get(1).(domain.SearchQuery).Index)
	}).Return(response(1, &domain.Hit{ID: "x"}), nil)

	plan := NewConsumer().BeginSearch(domain.SortSpec{Kind: domain.SortTime, Field: "@timestamp"}, 10, "@timestamp")
	events := drain(t, NewFetcher(searcher).Stream(context.Background(), Request{Scope: "logs-*"}, plan))

	assert.Equal(t, []string{"logs-3", "logs-2", "logs-1"}, order)
	assert.Equal(t, []EventKind{
		EventStatus, EventFirst,
		EventSegment, EventMerged,
		EventSegment, EventMerged,
		EventSegment, EventMerged,
		EventComplete,
	}, kinds(events))
	assert.Equal(t, domain.FetchInFlight, events[0].Status)

	last := events[len(events)-2].Merged
	assert.Equal(t, int64(3), last.Total())
	assert.Len(t, last.HitList(), 3)
	searcher.AssertExpectations(t)
}

func TestFetcher_ImplicitSortSearchesScopeOnce(t *testing.T) {
	searcher := new(MockSearcher)
	searcher.On("ResolveIndices", mock.Anything, "logs-*").Return([]string{"logs-1", "logs-2"}, nil)
	searcher.On("Execute", mock.Anything, onIndex("logs-*")).Return(response(0), nil).Once()

	plan := NewConsumer().BeginSearch(domain.SortSpec{Kind: domain.SortImplicit}, 10, "@timestamp")
	events := drain(t, NewFetcher(searcher).Stream(context.Background(), Request{Scope: "logs-*"}, plan))

	assert.Equal(t, []EventKind{EventStatus, EventFirst, EventSegment, EventMerged, EventComplete}, kinds(events))
	searcher.AssertExpectations(t)
}

func TestFetcher_UnresolvableScopeIsOneSegment(t *testing.T) {
	searcher := new(MockSearcher)
	searcher.On("ResolveIndices", mock.Anything, "*").Return(nil, errors.New("cat failed"))
	searcher.On("Execute", mock.Anything, onIndex("*")).Return(response(0), nil).Once()

	plan := NewConsumer().BeginSearch(domain.SortSpec{Kind: domain.SortTime}, 10, "@timestamp")
	events := drain(t, NewFetcher(searcher).Stream(context.Background(), Request{Scope: "*"}, plan))

	assert.Len(t, events, 5)
	searcher.AssertExpectations(t)
}

func TestFetcher_FieldSortMergesAndTruncates(t *testing.T) {
	searcher := new(MockSearcher)
	searcher.On("ResolveIndices", mock.Anything, "logs-*").Return([]string{"logs-1", "logs-2"}, nil)
	searcher.On("Execute", mock.Anything, onIndex("logs-2")).Return(response(2, sorted("a", 1.0), sorted("b", 5.0)), nil)
	searcher.On("Execute", mock.Anything, onIndex("logs-1")).Return(response(2, sorted("c", 9.0), sorted("d", 3.0)), nil)

	plan := NewConsumer().BeginSearch(domain.SortSpec{Kind: domain.SortField, Field: "bytes"}, 3, "@timestamp")
	events := drain(t, NewFetcher(searcher).Stream(context.Background(), Request{Scope: "logs-*"}, plan))

	var last *domain.SearchResponse
	for _, ev := range events {
		if ev.Kind == EventMerged {
			last = ev.Merged
		}
	}
	require.NotNil(t, last)
	assert.Equal(t, []string{"c", "b", "d"}, ids(last.HitList()))
	assert.Equal(t, int64(4), last.Total())
}

func TestFetcher_FailedSegmentBecomesShardFailure(t *testing.T) {
	searcher := new(MockSearcher)
	searcher.On("ResolveIndices", mock.Anything, "logs-*").Return([]string{"logs-1"}, nil)
	searcher.On("Execute", mock.Anything, onIndex("logs-1")).Return(nil, errors.New("node down"))

	c := NewConsumer()
	plan := c.BeginSearch(domain.SortSpec{Kind: domain.SortTime}, 10, "@timestamp")
	events := drain(t, NewFetcher(searcher).Stream(context.Background(), Request{Scope: "logs-*"}, plan))

	require.Len(t, events, 5)
	seg := events[2].Segment
	require.NotNil(t, seg)
	require.Len(t, seg.Shards.Failures, 1)
	assert.Equal(t, "logs-1", seg.Shards.Failures[0].Index)
	assert.Contains(t, seg.Shards.Failures[0].Reason.Reason, "node down")

	for _, ev := range events[:4] {
		c.Handle(ev)
	}
	assert.Len(t, c.Snapshot().Failures, 1)
}

func TestFetcher_InvalidRangeCompletesWithoutSearching(t *testing.T) {
	searcher := new(MockSearcher)

	plan := NewConsumer().BeginSearch(domain.SortSpec{Kind: domain.SortTime}, 10, "@timestamp")
	req := Request{Scope: "logs-*", Range: &domain.TimeRange{Gte: 10, Lte: 1}}
	events := drain(t, NewFetcher(searcher).Stream(context.Background(), req, plan))

	assert.Equal(t, []EventKind{EventStatus, EventFirst, EventComplete}, kinds(events))
	searcher.AssertNotCalled(t, "Execute", mock.Anything, mock.Anything)
}

func TestFetcher_CancelClosesStream(t *testing.T) {
	searcher := new(MockSearcher)
	searcher.On("ResolveIndices", mock.Anything, mock.Anything).Return([]string{"a", "b", "c"}, nil).Maybe()
	searcher.On("Execute", mock.Anything, mock.Anything).Return(response(0), nil).Maybe()

	ctx, cancel := context.WithCancel(context.Background())
	plan := NewConsumer().BeginSearch(domain.SortSpec{Kind: domain.SortTime}, 10, "@timestamp")
	events := NewFetcher(searcher).Stream(ctx, Request{Scope: "*"}, plan)

	<-events
	cancel()
	drain(t, events)
}

func TestBuildSegmentBody(t *testing.T) {
	plan := Plan{Size: 50, SortField: "@timestamp", SortDirection: domain.Asc, Direction: domain.Asc, TimeField: "@timestamp"}
	req := Request{
		Query: json.RawMessage(`{"query":"status:500","analyze_wildcard":true}`),
		Range: &domain.TimeRange{Gte: 1000, Lte: 2000},
	}

	raw, err := buildSegmentBody(req, plan)
	require.NoError(t, err)

	var body map[string]any
	require.NoError(t, json.Unmarshal(raw, &body))
	assert.EqualValues(t, 50, body["size"])
	assert.Equal(t, true, body["track_total_hits"])

	must := body["query"].(map[string]any)["bool"].(map[string]any)["must"].([]any)
	require.Len(t, must, 2)
	assert.Equal(t, "status:500", must[0].(map[string]any)["query_string"].(map[string]any)["query"])

	rng := must[1].(map[string]any)["range"].(map[string]any)["@timestamp"].(map[string]any)
	assert.Equal(t, "epoch_millis", rng["format"])
	assert.EqualValues(t, 1000, rng["gte"])
	assert.EqualValues(t, 2000, rng["lte"])

	sortSpec := body["sort"].([]any)[0].(map[string]any)["@timestamp"].(map[string]any)
	assert.Equal(t, "asc", sortSpec["order"])
	assert.Equal(t, "boolean", sortSpec["unmapped_type"])
}

func TestBuildSegmentBody_MatchAllAndScoreSort(t *testing.T) {
	raw, err := buildSegmentBody(Request{}, Plan{Size: 5, SortField: "_score"})
	require.NoError(t, err)

	var body map[string]any
	require.NoError(t, json.Unmarshal(raw, &body))
	must := body["query"].(map[string]any)["bool"].(map[string]any)["must"].([]any)
	require.Len(t, must, 1)
	assert.Contains(t, must[0], "match_all")
	assert.NotContains(t, body, "sort")
}
