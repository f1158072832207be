package segment

import "github.com/cloo-solutions/discover/internal/domain"

// Classify derives the display state of a search from its rows and fetch
// status. A nil rows slice means no rows have been produced yet.
func Classify(rows []*domain.Hit, status domain.FetchStatus) domain.ResultState {
	if len(rows) > 0 {
		return domain.ResultReady
	}
	if status == domain.FetchPreparing || status == domain.FetchInFlight {
		return domain.ResultLoading
	}
	if rows == nil && status == "" {
		return domain.ResultLoading
	}
	return domain.ResultNoResults
}
