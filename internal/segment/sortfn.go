package segment

import (
	"cmp"
	"encoding/json"
	"fmt"

	"github.com/cloo-solutions/discover/internal/domain"
)

// SortFunc orders two hits; negative means a sorts before b.
type SortFunc func(a, b *domain.Hit) int

// NewHitSortFn compares hits by their first sort value. Hits without a sort
// value go last regardless of direction.
func NewHitSortFn(dir domain.Direction) SortFunc {
	desc := dir != domain.Asc
	return func(a, b *domain.Hit) int {
		av, aok := firstSortValue(a)
		bv, bok := firstSortValue(b)
		switch {
		case !aok && !bok:
			return 0
		case !aok:
			return 1
		case !bok:
			return -1
		}

		c := compareValues(av, bv)
		if desc {
			return -c
		}
		return c
	}
}

func firstSortValue(h *domain.Hit) (any, bool) {
	if h == nil || len(h.Sort) == 0 || h.Sort[0] == nil {
		return nil, false
	}
	return h.Sort[0], true
}

func compareValues(a, b any) int {
	af, aNum := toFloat(a)
	bf, bNum := toFloat(b)
	switch {
	case aNum && bNum:
		return cmp.Compare(af, bf)
	case aNum:
		return -1
	case bNum:
		return 1
	}
	return cmp.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}
