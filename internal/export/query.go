// Package export turns a field selection into a bounded search and a
// delimited-text document.
package export

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloo-solutions/discover/internal/domain"
)

var matchEverything = json.RawMessage(`{"query":"*","analyze_wildcard":true}`)

// Columns normalizes a field selection into the exported columns: blanks and
// duplicates are dropped, as is the catch-all _source field. Order is kept.
func Columns(selected []string) []string {
	seen := make(map[string]struct{}, len(selected))
	cols := make([]string, 0, len(selected))
	for _, f := range selected {
		f = strings.TrimSpace(f)
		if f == "" || f == domain.SourceField {
			continue
		}
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		cols = append(cols, f)
	}
	return cols
}

// BuildQuery builds the export search for req against scope. It returns the
// query, the effective document count and any usage error. No I/O happens
// here, so usage errors always precede backend calls.
func BuildQuery(req domain.ExportRequest, scope, timeField string) (*domain.SearchQuery, int, error) {
	cols := Columns(req.SelectedFields)
	if len(cols) == 0 {
		return nil, 0, domain.ErrNoFieldsSelected
	}

	size, err := req.Size.Resolve(req.Hits)
	if err != nil {
		return nil, 0, err
	}

	ts := req.Timestamp
	if ts != nil && ts.Gte > ts.Lte {
		return nil, 0, domain.ErrInvalidTimeRange
	}

	query := req.QueryString
	if len(query) == 0 || string(query) == "null" {
		query = matchEverything
	}
	if !json.Valid(query) {
		return nil, 0, domain.NewDomainError(domain.ErrCodeValidation, "query_string must be a JSON object")
	}

	must := []any{map[string]json.RawMessage{"query_string": query}}
	if ts != nil {
		format := ts.Format
		if format == "" {
			format = "epoch_millis"
		}
		must = append(must, map[string]any{"range": map[string]any{
			timeField: map[string]any{"format": format, "gte": ts.Gte, "lte": ts.Lte},
		}})
	}

	body := map[string]any{
		"size": size,
		"query": map[string]any{"bool": map[string]any{
			"must":     must,
			"must_not": []any{},
		}},
		"sort": []any{map[string]any{
			timeField: map[string]any{"order": "desc", "unmapped_type": "boolean"},
		}},
		"_source": map[string]any{"includes": cols},
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to encode export query: %w", err)
	}

	filter := make([]string, 0, len(cols)+1)
	filter = append(filter, "hits.hits._index")
	for _, f := range cols {
		filter = append(filter, "hits.hits._source."+f)
	}

	return &domain.SearchQuery{Index: scope, Body: raw, FilterPath: filter}, size, nil
}
