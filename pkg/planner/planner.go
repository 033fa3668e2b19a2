package planner

import (
	"sort"

	"github.com/rs/zerolog"

	"github.com/drvig/updns/pkg/types"
)

// Plan derives the update plan from collected identities. Pure function:
// no side effects beyond the WARN for excluded unknowns.
//
// A component enters the plan iff it is outdated by digest comparison.
// Entries are sorted stable ascending by rank, so components sharing a
// rank keep the collector's enumeration order and plans are reproducible.
// Identities whose latest digest could not be resolved are excluded: on
// missing data the planner assumes nothing.
func Plan(identities []types.ComponentIdentity, logger zerolog.Logger) types.UpdatePlan {
	var entries []types.ComponentIdentity

	for _, id := range identities {
		if !id.LatestKnown {
			logger.Warn().
				Str("component", id.Name).
				Msg("latest digest unknown, not planning an update")
			continue
		}
		if id.Outdated() {
			entries = append(entries, id)
		}
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Rank < entries[j].Rank
	})

	return types.UpdatePlan{Entries: entries}
}
