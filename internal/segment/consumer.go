// Package segment folds the incremental batches of one live search into a
// single continuously updated view.
package segment

import (
	"context"
	"log"
	"sync"

	"github.com/cloo-solutions/discover/internal/domain"
)

// EventKind identifies a segmented-search event.
type EventKind int

const (
	EventStatus EventKind = iota
	EventFirst
	EventSegment
	EventMerged
	EventComplete
)

func (k EventKind) String() string {
	switch k {
	case EventStatus:
		return "status"
	case EventFirst:
		return "first"
	case EventSegment:
		return "segment"
	case EventMerged:
		return "merged"
	case EventComplete:
		return "complete"
	default:
		return "unknown"
	}
}

// Event is one step of a segmented search. Producers emit first, then any
// number of segment/merged pairs, then complete. Status events may appear
// anywhere.
type Event struct {
	Kind    EventKind
	Status  domain.FetchStatus
	Segment *domain.SearchResponse
	Merged  *domain.SearchResponse
}

// Plan is what the producer needs to know about a search after BeginSearch.
// MaxSegments of zero means unbounded. Direction orders the segments;
// SortDirection orders hits on SortField.
type Plan struct {
	MaxSegments   int
	Direction     domain.Direction
	SortFn        SortFunc
	Size          int
	SortField     string
	SortDirection domain.Direction
	TimeField     string
}

// Snapshot is a copy of the consumer's view at one instant.
type Snapshot struct {
	Rows        []*domain.Hit
	FieldCounts map[string]int
	Failures    []domain.ShardFailure
	Hits        int64
	Status      domain.FetchStatus
	State       domain.ResultState
}

// Consumer owns the merged result of one search at a time.
type Consumer struct {
	mu sync.RWMutex

	sampleSize int
	sortFn     SortFunc

	rows        []*domain.Hit
	fieldCounts map[string]int
	counted     map[*domain.Hit]struct{}
	failures    []domain.ShardFailure
	failureKeys map[string]struct{}
	hits        int64
	status      domain.FetchStatus
}

// NewConsumer creates an idle consumer.
func NewConsumer() *Consumer {
	return &Consumer{}
}

// BeginSearch configures the consumer for a new search and returns the plan
// the producer must honour. Rows from a previous search stay visible until
// the first event of the new one arrives.
func (c *Consumer) BeginSearch(spec domain.SortSpec, sampleSize int, timeField string) Plan {
	c.mu.Lock()
	defer c.mu.Unlock()

	plan := Plan{
		Direction: domain.Desc,
		Size:      sampleSize,
		SortField: spec.Field,
		TimeField: timeField,
	}

	switch spec.Kind {
	case domain.SortImplicit:
		plan.MaxSegments = 1
	case domain.SortTime:
		if spec.Direction != "" {
			plan.Direction = spec.Direction
		}
		plan.SortDirection = plan.Direction
	case domain.SortField:
		plan.SortDirection = spec.Direction
		if plan.SortDirection == "" {
			plan.SortDirection = domain.Desc
		}
		plan.SortFn = NewHitSortFn(plan.SortDirection)
	}

	c.sampleSize = sampleSize
	c.sortFn = plan.SortFn
	c.status = domain.FetchPreparing
	if c.rows == nil {
		c.flush()
	}

	return plan
}

// Run applies events in arrival order until the channel closes or ctx ends.
func (c *Consumer) Run(ctx context.Context, events <-chan Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			c.Handle(ev)
		}
	}
}

// Handle applies a single event. It never panics on malformed input.
func (c *Consumer) Handle(ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch ev.Kind {
	case EventStatus:
		c.status = ev.Status
	case EventFirst:
		c.flush()
	case EventSegment:
		c.onSegment(ev.Segment)
	case EventMerged:
		c.onMerged(ev.Merged)
	case EventComplete:
		if c.hits == 0 {
			c.flush()
		}
		c.status = domain.FetchSettled
	default:
		log.Printf("segment: ignoring unknown event kind %d", ev.Kind)
	}
}

func (c *Consumer) flush() {
	c.hits = 0
	c.rows = []*domain.Hit{}
	c.fieldCounts = map[string]int{}
	c.counted = map[*domain.Hit]struct{}{}
	c.failures = []domain.ShardFailure{}
	c.failureKeys = map[string]struct{}{}
}

func (c *Consumer) onSegment(resp *domain.SearchResponse) {
	if resp == nil || resp.Shards == nil || resp.Shards.Failed <= 0 {
		return
	}
	if c.failureKeys == nil {
		c.failureKeys = map[string]struct{}{}
	}
	for _, f := range resp.Shards.Failures {
		key := f.Key()
		if _, seen := c.failureKeys[key]; seen {
			continue
		}
		c.failureKeys[key] = struct{}{}
		c.failures = append(c.failures, f)
	}
}

func (c *Consumer) onMerged(merged *domain.SearchResponse) {
	if merged == nil {
		return
	}

	c.hits = merged.Total()

	hits := merged.HitList()
	rows := make([]*domain.Hit, 0, len(hits))
	for _, h := range hits {
		if h == nil {
			continue
		}
		rows = append(rows, h)
	}
	if c.sampleSize > 0 && len(rows) > c.sampleSize {
		rows = rows[:c.sampleSize]
	}
	c.rows = rows

	// Under a client-side resort the top-N sample can change arbitrarily
	// between merges, so counts are rebuilt from the current rows.
	if c.fieldCounts == nil || c.sortFn != nil {
		c.fieldCounts = map[string]int{}
		c.counted = map[*domain.Hit]struct{}{}
	}

	for _, h := range c.rows {
		if _, done := c.counted[h]; done {
			continue
		}
		if c.sortFn == nil {
			c.counted[h] = struct{}{}
		}
		for _, field := range h.FlattenedFields() {
			c.fieldCounts[field]++
		}
	}
}

// Snapshot returns a copy of the current view with its derived state.
func (c *Consumer) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var rows []*domain.Hit
	if c.rows != nil {
		rows = make([]*domain.Hit, len(c.rows))
		copy(rows, c.rows)
	}

	counts := make(map[string]int, len(c.fieldCounts))
	for k, v := range c.fieldCounts {
		counts[k] = v
	}

	failures := make([]domain.ShardFailure, len(c.failures))
	copy(failures, c.failures)

	return Snapshot{
		Rows:        rows,
		FieldCounts: counts,
		Failures:    failures,
		Hits:        c.hits,
		Status:      c.status,
		State:       Classify(rows, c.status),
	}
}
