package domain

import "strings"

// SortKind is the ordering mode of a live search.
type SortKind string

const (
	// SortImplicit is relevance order; no client-side resort.
	SortImplicit SortKind = "implicit"
	// SortTime orders by the designated time field.
	SortTime SortKind = "time"
	// SortField orders by an arbitrary field and needs a client-side comparison.
	SortField SortKind = "field"
)

// Direction is a sort direction.
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// ParseDirection normalizes a direction string; empty or unknown yields "".
func ParseDirection(s string) Direction {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "asc":
		return Asc
	case "desc":
		return Desc
	default:
		return ""
	}
}

// SortSpec describes how a search is ordered.
type SortSpec struct {
	Kind      SortKind
	Field     string
	Direction Direction
}

// ParseSortSpec classifies a [field, direction] pair against the time field.
// An empty pair or the _score field is implicit.
func ParseSortSpec(pair []string, timeField string) SortSpec {
	if len(pair) == 0 || pair[0] == "" || pair[0] == "_score" {
		return SortSpec{Kind: SortImplicit, Field: "_score"}
	}

	var dir Direction
	if len(pair) > 1 {
		dir = ParseDirection(pair[1])
	}

	if timeField != "" && pair[0] == timeField {
		return SortSpec{Kind: SortTime, Field: pair[0], Direction: dir}
	}
	return SortSpec{Kind: SortField, Field: pair[0], Direction: dir}
}

// FetchStatus is the lifecycle state of a live search's requests.
type FetchStatus string

const (
	FetchPreparing FetchStatus = "preparing"
	FetchInFlight  FetchStatus = "in_flight"
	FetchSettled   FetchStatus = "settled"
)

// ResultState is the derived display state of a live search.
type ResultState string

const (
	ResultLoading   ResultState = "loading"
	ResultReady     ResultState = "ready"
	ResultNoResults ResultState = "none"
)
