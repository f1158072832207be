package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseSortSpec(t *testing.T) {
	tests := []struct {
		name string
		pair []string
		want SortSpec
	}{
		{name: "empty", pair: nil, want: SortSpec{Kind: SortImplicit, Field: "_score"}},
		{name: "score", pair: []string{"_score", "desc"}, want: SortSpec{Kind: SortImplicit, Field: "_score"}},
		{name: "time without direction", pair: []string{"@timestamp"}, want: SortSpec{Kind: SortTime, Field: "@timestamp"}},
		{name: "time asc", pair: []string{"@timestamp", "ASC"}, want: SortSpec{Kind: SortTime, Field: "@timestamp", Direction: Asc}},
		{name: "other field", pair: []string{"bytes", "desc"}, want: SortSpec{Kind: SortField, Field: "bytes", Direction: Desc}},
		{name: "unknown direction", pair: []string{"bytes", "sideways"}, want: SortSpec{Kind: SortField, Field: "bytes"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseSortSpec(tt.pair, "@timestamp"))
		})
	}
}

func TestParseSortSpec_NoTimeField(t *testing.T) {
	spec := ParseSortSpec([]string{"@timestamp", "asc"}, "")
	assert.Equal(t, SortField, spec.Kind)
}
