package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"path"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cloo-solutions/discover/internal/domain"
	"github.com/cloo-solutions/discover/internal/telemetry"
	"github.com/google/uuid"
)

// DefaultTimeout bounds the backend call of one export.
const DefaultTimeout = 10 * time.Second

// Searcher runs a built query against the cluster.
type Searcher interface {
	Execute(ctx context.Context, q domain.SearchQuery) (*domain.SearchResponse, error)
}

// LogStore persists the audit record of each export.
type LogStore interface {
	Create(ctx context.Context, entry *domain.ExportLog) error
}

// Archiver keeps a copy of a finished export and hands out a link to it.
type Archiver interface {
	PutObject(ctx context.Context, key string, body []byte, contentType string) error
	GenerateDownloadURL(ctx context.Context, key string) (string, error)
}

// State is a snapshot of the coordinator's flags.
type State struct {
	InFlight bool `json:"in_flight"`
	TimedOut bool `json:"timed_out"`
}

// Coordinator runs at most one export at a time and bounds it by a timeout.
type Coordinator struct {
	searcher  Searcher
	scope     func() string
	timeField string
	timeout   time.Duration
	now       func() time.Time

	logs     LogStore
	archiver Archiver

	inFlight atomic.Bool
	timedOut atomic.Bool
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithTimeField sets the field the time range and sort apply to.
func WithTimeField(field string) Option {
	return func(c *Coordinator) {
		if field != "" {
			c.timeField = field
		}
	}
}

// WithClock replaces time.Now for latency measurement.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// WithLogStore records every export outcome.
func WithLogStore(store LogStore) Option {
	return func(c *Coordinator) { c.logs = store }
}

// WithArchiver enables archival of exports that ask for it.
func WithArchiver(a Archiver) Option {
	return func(c *Coordinator) { c.archiver = a }
}

// NewCoordinator creates a Coordinator. scope is read on every export so a
// scope resolved after construction is honoured.
func NewCoordinator(searcher Searcher, scope func() string, opts ...Option) *Coordinator {
	c := &Coordinator{
		searcher:  searcher,
		scope:     scope,
		timeField: "@timestamp",
		timeout:   DefaultTimeout,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State reports whether an export is running and whether the last one timed out.
func (c *Coordinator) State() State {
	return State{InFlight: c.inFlight.Load(), TimedOut: c.timedOut.Load()}
}

type searchOutcome struct {
	resp *domain.SearchResponse
	err  error
}

// Export builds, runs and serializes one export. Usage errors and
// ErrExportInProgress are returned as errors with no state change. A timeout
// or backend failure is reported through the result's Outcome; a failed
// export still carries a header-only document.
func (c *Coordinator) Export(ctx context.Context, req domain.ExportRequest) (*domain.ExportResult, error) {
	q, size, err := BuildQuery(req, c.scope(), c.timeField)
	if err != nil {
		return nil, err
	}
	opts := CSVOptions{Delimiter: req.Delimiter, Quote: req.Quote}
	if _, err := opts.normalize(); err != nil {
		return nil, err
	}

	if !c.inFlight.CompareAndSwap(false, true) {
		return nil, domain.ErrExportInProgress
	}
	defer c.inFlight.Store(false)
	c.timedOut.Store(false)

	result := &domain.ExportResult{
		ID:       uuid.NewString(),
		Filename: sanitizeFilename(req.Filename),
	}

	ctx, span := telemetry.StartSpan(ctx, "Coordinator.Export", telemetry.SpanAttributes{
		Index:     q.Index,
		ExportID:  result.ID,
		Operation: "export",
	})
	defer span.End()

	cols := Columns(req.SelectedFields)
	start := c.now()
	outcome := c.search(ctx, *q)
	result.QueryLatency = c.now().Sub(start)

	var hits []*domain.Hit
	switch {
	case outcome.err == nil:
		hits = outcome.resp.HitList()
		result.Outcome = domain.ExportCompleted
	case errors.Is(outcome.err, context.DeadlineExceeded):
		c.timedOut.Store(true)
		result.Outcome = domain.ExportTimedOut
		span.SetTimedOut()
		span.SetTag("outcome", string(result.Outcome))
		log.Printf("export %s: timed out after %s", result.ID, c.timeout)
		c.record(ctx, req, q.Index, cols, size, result, "")
		return result, nil
	default:
		log.Printf("export %s: search failed: %v", result.ID, outcome.err)
		span.SetError(outcome.err)
		result.Outcome = domain.ExportFailed
	}

	buildStart := c.now()
	var buf bytes.Buffer
	records, err := WriteCSV(&buf, cols, hits, opts)
	if err != nil {
		log.Printf("export %s: serialization failed: %v", result.ID, err)
		result.Outcome = domain.ExportFailed
	}
	result.BuildLatency = c.now().Sub(buildStart)
	result.Body = buf.Bytes()
	result.Records = records

	var objectKey string
	if req.Archive && c.archiver != nil && result.Outcome == domain.ExportCompleted {
		objectKey, result.DownloadURL = c.archive(ctx, result)
	}

	span.SetTag("outcome", string(result.Outcome))
	log.Printf("export %s: %d records, query %s, build %s", result.ID, records, result.QueryLatency, result.BuildLatency)
	c.record(ctx, req, q.Index, cols, size, result, objectKey)
	return result, nil
}

// Fetch runs the export query without the in-flight guard and returns the
// matching hits. It is bounded by the same timeout as Export.
func (c *Coordinator) Fetch(ctx context.Context, req domain.ExportRequest) ([]*domain.Hit, error) {
	q, _, err := BuildQuery(req, c.scope(), c.timeField)
	if err != nil {
		return nil, err
	}

	outcome := c.search(ctx, *q)
	if outcome.err != nil {
		return nil, outcome.err
	}
	return outcome.resp.HitList(), nil
}

// search runs the backend call under the export timeout. The call sees a
// cancelled context once the deadline passes; a late result is dropped.
func (c *Coordinator) search(ctx context.Context, q domain.SearchQuery) searchOutcome {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	done := make(chan searchOutcome, 1)
	go func() {
		resp, err := c.searcher.Execute(ctx, q)
		done <- searchOutcome{resp: resp, err: err}
	}()

	select {
	case out := <-done:
		if out.err == nil && out.resp == nil {
			out.resp = &domain.SearchResponse{}
		}
		if out.err != nil && ctx.Err() != nil {
			out.err = fmt.Errorf("%w: %w", ctx.Err(), out.err)
		}
		return out
	case <-ctx.Done():
		return searchOutcome{err: ctx.Err()}
	}
}

func (c *Coordinator) archive(ctx context.Context, result *domain.ExportResult) (string, string) {
	key := fmt.Sprintf("exports/%s/%s", result.ID, result.Filename)
	if err := c.archiver.PutObject(ctx, key, result.Body, "text/csv"); err != nil {
		log.Printf("export %s: archival failed: %v", result.ID, err)
		telemetry.CaptureError(ctx, err)
		return "", ""
	}
	url, err := c.archiver.GenerateDownloadURL(ctx, key)
	if err != nil {
		log.Printf("export %s: failed to sign download url: %v", result.ID, err)
		return key, ""
	}
	return key, url
}

func (c *Coordinator) record(ctx context.Context, req domain.ExportRequest, scope string, cols []string, size int, result *domain.ExportResult, objectKey string) {
	if c.logs == nil {
		return
	}
	entry := &domain.ExportLog{
		ID:             result.ID,
		Scope:          scope,
		Fields:         cols,
		Size:           size,
		Outcome:        result.Outcome,
		Records:        result.Records,
		QueryLatencyMS: result.QueryLatency.Milliseconds(),
		BuildLatencyMS: result.BuildLatency.Milliseconds(),
		ObjectKey:      objectKey,
	}
	// The request context may already be done after a timeout.
	if err := c.logs.Create(context.WithoutCancel(ctx), entry); err != nil {
		log.Printf("export %s: failed to record audit log: %v", result.ID, err)
	}
}

func sanitizeFilename(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return DefaultFilename
	}
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.Map(func(r rune) rune {
		if r == '"' || r < 0x20 {
			return -1
		}
		return r
	}, name)
	if name == "" || name == "." || name == "/" {
		return DefaultFilename
	}
	return name
}
