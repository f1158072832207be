package domain

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSize_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Size
		wantErr bool
	}{
		{name: "integer", input: `250`, want: SizeOf(250)},
		{name: "sentinel", input: `"*"`, want: SizeAll()},
		{name: "numeric string", input: `"20"`, want: SizeOf(20)},
		{name: "null", input: `null`, want: Size{}},
		{name: "word", input: `"lots"`, wantErr: true},
		{name: "float", input: `2.5`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got Size
			err := json.Unmarshal([]byte(tt.input), &got)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSize_Absent(t *testing.T) {
	var req ExportRequest
	require.NoError(t, json.Unmarshal([]byte(`{"selectedFields":["a"]}`), &req))
	assert.False(t, req.Size.Set)
}

func TestSize_MarshalJSON(t *testing.T) {
	out, err := json.Marshal(struct {
		A Size `json:"a"`
		B Size `json:"b"`
		C Size `json:"c"`
	}{A: SizeOf(3), B: SizeAll(), C: Size{}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":3,"b":"*","c":null}`, string(out))
}

func TestSize_Resolve(t *testing.T) {
	tests := []struct {
		name     string
		size     Size
		lastHits int64
		want     int
		wantErr  error
	}{
		{name: "explicit", size: SizeOf(2), lastHits: 900, want: 2},
		{name: "sentinel uses last hits", size: SizeAll(), lastHits: 900, want: 900},
		{name: "sentinel without hit count rejected", size: SizeAll(), lastHits: 0, wantErr: ErrInvalidSize},
		{name: "absent defaults", size: Size{}, lastHits: 900, want: DefaultExportSize},
		{name: "zero rejected", size: SizeOf(0), wantErr: ErrInvalidSize},
		{name: "negative rejected", size: SizeOf(-4), wantErr: ErrInvalidSize},
		{name: "negative hits rejected", size: SizeAll(), lastHits: -1, wantErr: ErrInvalidSize},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.size.Resolve(tt.lastHits)
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExportRequest_DecodeWireFormat(t *testing.T) {
	raw := `{
		"hits": 1234,
		"selectedFields": ["host", "message"],
		"size": "*",
		"query_string": {"query": "status:500", "analyze_wildcard": true},
		"timestamp": {"format": "epoch_millis", "gte": 1000, "lte": 2000}
	}`

	var req ExportRequest
	require.NoError(t, json.Unmarshal([]byte(raw), &req))

	assert.Equal(t, int64(1234), req.Hits)
	assert.Equal(t, []string{"host", "message"}, req.SelectedFields)
	assert.True(t, req.Size.All)
	assert.JSONEq(t, `{"query": "status:500", "analyze_wildcard": true}`, string(req.QueryString))
	require.NotNil(t, req.Timestamp)
	assert.Equal(t, TimeRange{Format: "epoch_millis", Gte: 1000, Lte: 2000}, *req.Timestamp)
}

func TestIsUsageError(t *testing.T) {
	assert.True(t, IsUsageError(ErrNoFieldsSelected))
	assert.True(t, IsUsageError(NewDomainErrorWithCause(ErrCodeValidation, "bad", errors.New("x"))))
	assert.False(t, IsUsageError(ErrExportInProgress))
	assert.False(t, IsUsageError(errors.New("plain")))
}

func TestExportResult_TimedOut(t *testing.T) {
	var nilResult *ExportResult
	assert.False(t, nilResult.TimedOut())
	assert.True(t, (&ExportResult{Outcome: ExportTimedOut}).TimedOut())
	assert.False(t, (&ExportResult{Outcome: ExportCompleted}).TimedOut())
}
