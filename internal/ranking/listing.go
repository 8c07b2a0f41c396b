package ranking

import (
	"sort"
	"strings"
	"time"

	"github.com/playerstats-proxy/internal/stats"
)

// TotalsQuery filters the aggregate totals listing.
type TotalsQuery struct {
	MinValue int64
	// LimitPerSection truncates each section when positive.
	LimitPerSection int
}

// BasicPlayers lists every identified player, sorted by name ignoring case.
func BasicPlayers(players []stats.PlayerRecord, at time.Time) BasicPlayersResponse {
	out := make([]BasicPlayerEntry, 0, len(players))
	for _, p := range players {
		if !p.Identified() {
			continue
		}
		out = append(out, BasicPlayerEntry{UUID: p.UUID, Name: p.Name})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})

	return BasicPlayersResponse{
		Count:     len(out),
		UpdatedAt: at,
		Players:   out,
	}
}

// AggregateTotals lists the totals at or above MinValue, each section sorted
// by total descending then key ascending. Sections are emitted in name order
// and dropped when nothing survives the filter.
func AggregateTotals(aggregate AggregateTable, playerCount int, q TotalsQuery, at time.Time) AggregateStatsResponse {
	sections := make([]string, 0, len(aggregate))
	for s := range aggregate {
		sections = append(sections, s)
	}
	sort.Strings(sections)

	out := make(OrderedTotals, 0, len(sections))
	for _, section := range sections {
		var totals []StatTotal
		for key, v := range aggregate[section] {
			if v >= q.MinValue {
				totals = append(totals, StatTotal{StatKey: key, Total: v})
			}
		}
		sort.Slice(totals, func(i, j int) bool {
			if totals[i].Total != totals[j].Total {
				return totals[i].Total > totals[j].Total
			}
			return totals[i].StatKey < totals[j].StatKey
		})
		if q.LimitPerSection > 0 && len(totals) > q.LimitPerSection {
			totals = totals[:q.LimitPerSection]
		}
		if len(totals) > 0 {
			out = append(out, SectionTotals{Section: section, Totals: totals})
		}
	}

	return AggregateStatsResponse{
		Players:         playerCount,
		MinValue:        q.MinValue,
		LimitPerSection: q.LimitPerSection,
		UpdatedAt:       at,
		Stats:           out,
	}
}
