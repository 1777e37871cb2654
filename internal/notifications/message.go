package notifications

import (
	"fmt"
	"math"
	"strings"

	"github.com/albapepper/nearlist/internal/geo"
	"github.com/albapepper/nearlist/internal/zone"
)

func arrivalMessage(store zone.Store, distance float64) (title, body string) {
	title = fmt.Sprintf("📍 Near %s!", store.Name)
	body = fmt.Sprintf("You're %dm away. %s on your list.",
		int(math.Round(distance)), pluralItems(store.ItemCount))
	return title, body
}

func departureMessage(left zone.Store, candidates []zone.Match) (title, body string) {
	title = fmt.Sprintf("Leaving %s? Stores nearby", left.Name)
	parts := make([]string, 0, len(candidates))
	for _, c := range candidates {
		parts = append(parts, fmt.Sprintf("%s (%s, %s)",
			c.Store.Name, geo.FormatDistance(c.DistanceMeters), pluralItems(c.Store.ItemCount)))
	}
	body = "Still on your lists: " + strings.Join(parts, ", ")
	return title, body
}

func arrivalTag(storeID string) string   { return "store-" + storeID }
func departureTag(storeID string) string { return "departed-" + storeID }

func pluralItems(n int) string {
	if n == 1 {
		return "1 item"
	}
	return fmt.Sprintf("%d items", n)
}

// eligibleCandidates re-applies the nearby rules so a hand-built Leave event
// can never mention a distant, empty or departed store.
func eligibleCandidates(left zone.Store, candidates []zone.Match) []zone.Match {
	out := make([]zone.Match, 0, len(candidates))
	for _, c := range candidates {
		if c.Store.ID == left.ID || c.Store.ItemCount <= 0 || c.DistanceMeters > zone.NearbyRadiusMeters {
			continue
		}
		out = append(out, c)
	}
	zone.SortByDistance(out)
	if len(out) > zone.MaxCandidates {
		out = out[:zone.MaxCandidates]
	}
	return out
}
