package ranking

import (
	"sort"
	"time"

	"github.com/playerstats-proxy/internal/stats"
)

// TopQuery selects a per-stat leaderboard.
type TopQuery struct {
	Section      string
	StatKey      string
	Limit        int
	IncludeZeros bool
}

// SectionQuery selects a section-total leaderboard.
type SectionQuery struct {
	Section      string
	Limit        int
	IncludeZeros bool
}

// scored is a candidate row before truncation.
type scored struct {
	player stats.PlayerRecord
	value  int64
}

// rank sorts by value descending, then case-insensitive name ascending, and
// truncates to limit. The sort is stable so equal names keep snapshot order.
func rank(rows []scored, limit int) []scored {
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].value != rows[j].value {
			return rows[i].value > rows[j].value
		}
		return rows[i].player.NameKey() < rows[j].player.NameKey()
	})
	if len(rows) > limit {
		rows = rows[:limit]
	}
	return rows
}

// TopByStat ranks players on one (section, key) counter. Percentages are
// always relative to the global total, not to the returned subset.
func TopByStat(players []stats.PlayerRecord, aggregate AggregateTable, q TopQuery, at time.Time) TopResponse {
	limit := max(1, q.Limit)
	total := max(0, aggregate.Total(q.Section, q.StatKey))

	rows := make([]scored, 0, len(players))
	for _, p := range players {
		if !p.Identified() {
			continue
		}
		v := p.Value(q.Section, q.StatKey)
		if v == 0 && !q.IncludeZeros {
			continue
		}
		rows = append(rows, scored{player: p, value: v})
	}

	results := make([]TopEntry, 0, min(limit, len(rows)))
	for _, r := range rank(rows, limit) {
		results = append(results, TopEntry{
			UUID:           r.player.UUID,
			Name:           r.player.Name,
			Value:          r.value,
			Section:        q.Section,
			StatKey:        q.StatKey,
			TotalValue:     total,
			PercentOfTotal: PercentOfTotal(r.value, total),
		})
	}

	return TopResponse{
		Section:      q.Section,
		StatKey:      q.StatKey,
		Limit:        limit,
		IncludeZeros: q.IncludeZeros,
		UpdatedAt:    at,
		TotalValue:   total,
		Results:      results,
	}
}

// TopBySection ranks players on the sum of their counters in one section.
// Only strictly positive values contribute to a player's sum.
func TopBySection(players []stats.PlayerRecord, aggregate AggregateTable, q SectionQuery, at time.Time) SectionTopResponse {
	limit := max(1, q.Limit)
	total := aggregate.SectionTotal(q.Section)

	rows := make([]scored, 0, len(players))
	for _, p := range players {
		if !p.Identified() {
			continue
		}
		var sum int64
		for _, v := range p.Stats[q.Section] {
			if v > 0 {
				sum = addSat(sum, v)
			}
		}
		if sum == 0 && !q.IncludeZeros {
			continue
		}
		rows = append(rows, scored{player: p, value: sum})
	}

	results := make([]SectionTopEntry, 0, min(limit, len(rows)))
	for _, r := range rank(rows, limit) {
		results = append(results, SectionTopEntry{
			UUID:           r.player.UUID,
			Name:           r.player.Name,
			Value:          r.value,
			Section:        q.Section,
			TotalValue:     total,
			PercentOfTotal: PercentOfTotal(r.value, total),
		})
	}

	return SectionTopResponse{
		Section:      q.Section,
		Limit:        limit,
		IncludeZeros: q.IncludeZeros,
		UpdatedAt:    at,
		TotalValue:   total,
		Results:      results,
	}
}
