// Package ranking selects the most central Types when a diagram is capped.
package ranking

import (
	"sort"

	"github.com/phobologic/rsuml/internal/model"
)

// SelectTypes returns the maxTypes highest-ranked Types, sorted by name.
// Ties are broken by name. If maxTypes is <= 0 or >= len(types), types is
// returned unchanged.
func SelectTypes(types []*model.Type, ranks map[string]float64, maxTypes int) []*model.Type {
	if maxTypes <= 0 || maxTypes >= len(types) {
		return types
	}

	byRank := make([]*model.Type, len(types))
	copy(byRank, types)
	sort.SliceStable(byRank, func(i, j int) bool {
		ri, rj := ranks[byRank[i].Name], ranks[byRank[j].Name]
		if ri != rj {
			return ri > rj
		}
		return byRank[i].Name < byRank[j].Name
	})

	selected := byRank[:maxTypes]
	sort.Slice(selected, func(i, j int) bool {
		return selected[i].Name < selected[j].Name
	})
	return selected
}
