package domain

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"
)

// SourceField is the catch-all field holding the entire raw record.
const SourceField = "_source"

// DefaultExportSize applies when a request carries no size at all.
const DefaultExportSize = 5

// Size is an export size: a positive integer or the "*" sentinel meaning
// "as many as the caller last saw".
type Size struct {
	N   int
	All bool
	Set bool
}

// SizeOf returns a concrete integer size.
func SizeOf(n int) Size { return Size{N: n, Set: true} }

// SizeAll returns the "*" sentinel.
func SizeAll() Size { return Size{All: true, Set: true} }

// UnmarshalJSON implements json.Unmarshaler.
func (s *Size) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*s = Size{}
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		if str == "*" {
			*s = SizeAll()
			return nil
		}
		n, err := strconv.Atoi(str)
		if err != nil {
			return ErrInvalidSize
		}
		*s = SizeOf(n)
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return ErrInvalidSize
	}
	*s = SizeOf(n)
	return nil
}

// MarshalJSON implements json.Marshaler.
func (s Size) MarshalJSON() ([]byte, error) {
	switch {
	case !s.Set:
		return []byte("null"), nil
	case s.All:
		return []byte(`"*"`), nil
	default:
		return []byte(strconv.Itoa(s.N)), nil
	}
}

// Resolve turns the size into a concrete document count. lastHits is the
// total hit count of the view the export was triggered from; "*" needs it
// to be positive.
func (s Size) Resolve(lastHits int64) (int, error) {
	switch {
	case !s.Set:
		return DefaultExportSize, nil
	case s.All:
		if lastHits <= 0 {
			return 0, ErrInvalidSize
		}
		return int(lastHits), nil
	case s.N <= 0:
		return 0, ErrInvalidSize
	default:
		return s.N, nil
	}
}

// TimeRange is an inclusive epoch-millisecond window.
type TimeRange struct {
	Format string `json:"format,omitempty"`
	Gte    int64  `json:"gte"`
	Lte    int64  `json:"lte"`
}

// ExportRequest is the selection an export is built from.
type ExportRequest struct {
	Hits           int64           `json:"hits"`
	SelectedFields []string        `json:"selectedFields"`
	Size           Size            `json:"size"`
	QueryString    json.RawMessage `json:"query_string,omitempty"`
	Timestamp      *TimeRange      `json:"timestamp,omitempty"`
	Delimiter      string          `json:"delimiter,omitempty"`
	Quote          string          `json:"quote,omitempty"`
	Filename       string          `json:"filename,omitempty"`
	Archive        bool            `json:"archive,omitempty"`
}

// ExportOutcome records how an export ended.
type ExportOutcome string

const (
	ExportCompleted ExportOutcome = "completed"
	ExportTimedOut  ExportOutcome = "timed_out"
	ExportFailed    ExportOutcome = "failed"
)

// ExportResult is the serialized body plus stage latencies.
type ExportResult struct {
	ID           string
	Outcome      ExportOutcome
	Body         []byte
	Filename     string
	Records      int
	QueryLatency time.Duration
	BuildLatency time.Duration
	DownloadURL  string
}

// TimedOut reports whether the export lost the race against its deadline.
func (r *ExportResult) TimedOut() bool {
	return r != nil && r.Outcome == ExportTimedOut
}

// ExportLog is the persisted audit record of one export invocation.
type ExportLog struct {
	ID             string
	Scope          string
	Fields         []string
	Size           int
	Outcome        ExportOutcome
	Records        int
	QueryLatencyMS int64
	BuildLatencyMS int64
	ObjectKey      string
	CreatedAt      time.Time
}
