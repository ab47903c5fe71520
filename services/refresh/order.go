package refresh

import (
	"cmp"
	"math/rand/v2"
	"slices"
	"strings"

	"smartlists/models"
)

// orderMembers sorts the matched item indexes by the list's ordering. Ties
// fall back to name then id so repeated passes agree.
func orderMembers(items []models.Item, matched []int, list models.SmartList) {
	by, order := list.Ordering()
	if by == models.SortByRandom {
		rand.Shuffle(len(matched), func(i, j int) { matched[i], matched[j] = matched[j], matched[i] })
		return
	}

	primary := sortComparator(by)
	slices.SortStableFunc(matched, func(a, b int) int {
		x, y := items[a], items[b]
		c := primary(x, y)
		if order == models.SortDescending {
			c = -c
		}
		if c != 0 {
			return c
		}
		return strings.Compare(nameKey(x), nameKey(y))
	})
}

func sortComparator(by models.SortField) func(a, b models.Item) int {
	switch by {
	case models.SortByProductionYear:
		return func(a, b models.Item) int { return cmp.Compare(a.ProductionYear, b.ProductionYear) }
	case models.SortByDateCreated:
		return func(a, b models.Item) int { return a.DateCreated.Compare(b.DateCreated) }
	case models.SortByPremiereDate:
		return func(a, b models.Item) int { return a.PremiereDate.Compare(b.PremiereDate) }
	case models.SortByCommunityRating:
		return func(a, b models.Item) int { return cmp.Compare(a.CommunityRating, b.CommunityRating) }
	case models.SortByCriticRating:
		return func(a, b models.Item) int { return cmp.Compare(a.CriticRating, b.CriticRating) }
	case models.SortByRuntime:
		return func(a, b models.Item) int { return cmp.Compare(a.RunTimeTicks, b.RunTimeTicks) }
	default:
		return func(a, b models.Item) int { return strings.Compare(nameKey(a), nameKey(b)) }
	}
}

func nameKey(item models.Item) string {
	name := item.SortName
	if name == "" {
		name = item.Name
	}
	return strings.ToLower(name) + "\x00" + item.ID
}
