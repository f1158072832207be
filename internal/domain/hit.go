package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Hit is one matched record as returned by the search cluster.
type Hit struct {
	Index  string         `json:"_index,omitempty"`
	Type   string         `json:"_type,omitempty"`
	ID     string         `json:"_id,omitempty"`
	Score  *float64       `json:"_score,omitempty"`
	Source map[string]any `json:"_source,omitempty"`
	Sort   []any          `json:"sort,omitempty"`
}

// Lookup returns the value stored under field in the hit's source.
// A literal top-level key wins; otherwise dotted names walk nested objects.
func (h *Hit) Lookup(field string) (any, bool) {
	if h == nil || h.Source == nil {
		return nil, false
	}
	if v, ok := h.Source[field]; ok {
		return v, true
	}
	if !strings.Contains(field, ".") {
		return nil, false
	}

	var cur any = h.Source
	for _, part := range strings.Split(field, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = obj[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// FlattenedFields lists every field name present on the hit: source fields
// flattened to dotted paths plus the populated metadata fields.
func (h *Hit) FlattenedFields() []string {
	if h == nil {
		return nil
	}

	fields := make([]string, 0, len(h.Source)+3)
	flattenInto(&fields, "", h.Source)

	if h.Index != "" {
		fields = append(fields, "_index")
	}
	if h.Type != "" {
		fields = append(fields, "_type")
	}
	if h.ID != "" {
		fields = append(fields, "_id")
	}
	if h.Score != nil {
		fields = append(fields, "_score")
	}
	if h.Source != nil {
		fields = append(fields, "_source")
	}
	return fields
}

func flattenInto(out *[]string, prefix string, obj map[string]any) {
	for k, v := range obj {
		name := k
		if prefix != "" {
			name = prefix + "." + k
		}
		if nested, ok := v.(map[string]any); ok && len(nested) > 0 {
			flattenInto(out, name, nested)
			continue
		}
		*out = append(*out, name)
	}
}

// TotalHits accepts both the legacy integer form and the {value, relation} object.
type TotalHits struct {
	Value    int64  `json:"value"`
	Relation string `json:"relation,omitempty"`
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *TotalHits) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*t = TotalHits{}
		return nil
	}
	if data[0] != '{' {
		var n int64
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("hits.total: %w", err)
		}
		*t = TotalHits{Value: n, Relation: "eq"}
		return nil
	}

	type plain TotalHits
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("hits.total: %w", err)
	}
	*t = TotalHits(p)
	return nil
}

// HitsEnvelope is the "hits" section of a search response.
type HitsEnvelope struct {
	Total    TotalHits `json:"total"`
	MaxScore *float64  `json:"max_score,omitempty"`
	Hits     []*Hit    `json:"hits"`
}

// FailureReason describes why a shard failed.
type FailureReason struct {
	Type   string `json:"type,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// String renders the reason for keys and logs.
func (r FailureReason) String() string {
	switch {
	case r.Type == "":
		return r.Reason
	case r.Reason == "":
		return r.Type
	default:
		return r.Type + ": " + r.Reason
	}
}

// UnmarshalJSON accepts a plain string as well as the structured form.
func (r *FailureReason) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*r = FailureReason{Reason: s}
		return nil
	}
	type plain FailureReason
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*r = FailureReason(p)
	return nil
}

// ShardFailure is one shard-level failure descriptor.
type ShardFailure struct {
	Index  string        `json:"index"`
	Shard  int           `json:"shard"`
	Node   string        `json:"node,omitempty"`
	Reason FailureReason `json:"reason"`
}

// Key identifies a failure by (index, shard, reason).
func (f ShardFailure) Key() string {
	return fmt.Sprintf("%s\x00%d\x00%s", f.Index, f.Shard, f.Reason.String())
}

// ShardStats is the "_shards" section of a search response.
type ShardStats struct {
	Total      int            `json:"total"`
	Successful int            `json:"successful"`
	Skipped    int            `json:"skipped,omitempty"`
	Failed     int            `json:"failed"`
	Failures   []ShardFailure `json:"failures,omitempty"`
}

// SearchResponse is a decoded search response. Sections omitted by
// filter_path decode as zero values.
type SearchResponse struct {
	Took     int           `json:"took,omitempty"`
	TimedOut bool          `json:"timed_out,omitempty"`
	Shards   *ShardStats   `json:"_shards,omitempty"`
	Hits     *HitsEnvelope `json:"hits,omitempty"`
}

// HitList returns the hits, or nil when the section is absent.
func (r *SearchResponse) HitList() []*Hit {
	if r == nil || r.Hits == nil {
		return nil
	}
	return r.Hits.Hits
}

// Total returns the total hit count, or zero when absent.
func (r *SearchResponse) Total() int64 {
	if r == nil || r.Hits == nil {
		return 0
	}
	return r.Hits.Total.Value
}

// SearchQuery is a fully built request for the search cluster.
type SearchQuery struct {
	Index      string
	Body       json.RawMessage
	FilterPath []string
}
