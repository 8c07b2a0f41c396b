// Package ranking derives aggregate and maxima tables from a player snapshot
// and answers the leaderboard queries built on them. Everything here is a
// pure function of its inputs.
package ranking

import (
	"math"

	"github.com/playerstats-proxy/internal/stats"
)

// AggregateTable maps section -> stat key -> sum across all players.
type AggregateTable map[string]map[string]int64

// Total returns the global total for (section, key), 0 when absent.
func (t AggregateTable) Total(section, key string) int64 {
	return t[section][key]
}

// SectionTotal sums every key of a section, floored at 0.
func (t AggregateTable) SectionTotal(section string) int64 {
	var sum int64
	for _, v := range t[section] {
		sum = addSat(sum, v)
	}
	if sum < 0 {
		return 0
	}
	return sum
}

// StatRef identifies one counter.
type StatRef struct {
	Section string
	StatKey string
}

// Maximum is the highest value seen for a counter and how many players share it.
type Maximum struct {
	Value   int64
	Winners int
}

// MaximaTable maps each counter to its maximum.
type MaximaTable map[StatRef]Maximum

// Lookup returns the maximum for (section, key), or {0, 1} when unseen.
func (t MaximaTable) Lookup(section, key string) Maximum {
	if m, ok := t[StatRef{Section: section, StatKey: key}]; ok {
		return m
	}
	return Maximum{Value: 0, Winners: 1}
}

// ComputeAggregate sums every coerced value per (section, key). The result
// does not depend on player order.
func ComputeAggregate(players []stats.PlayerRecord) AggregateTable {
	totals := make(AggregateTable)
	for _, p := range players {
		for section, values := range p.Stats {
			row, ok := totals[section]
			if !ok {
				row = make(map[string]int64, len(values))
				totals[section] = row
			}
			for key, v := range values {
				row[key] = addSat(row[key], v)
			}
		}
	}
	return totals
}

// ComputeMaxima records, per (section, key), the maximum coerced value and
// the number of players holding it. The first value seen always seeds the
// entry, so Winners is at least 1.
func ComputeMaxima(players []stats.PlayerRecord) MaximaTable {
	maxima := make(MaximaTable)
	for _, p := range players {
		for section, values := range p.Stats {
			for key, v := range values {
				ref := StatRef{Section: section, StatKey: key}
				cur, seen := maxima[ref]
				switch {
				case !seen, v > cur.Value:
					maxima[ref] = Maximum{Value: v, Winners: 1}
				case v == cur.Value:
					cur.Winners++
					maxima[ref] = cur
				}
			}
		}
	}
	return maxima
}

// addSat adds two non-negative values, saturating at MaxInt64.
func addSat(a, b int64) int64 {
	if b > 0 && a > math.MaxInt64-b {
		return math.MaxInt64
	}
	return a + b
}

// PercentOfTotal is value/total*100 rounded to 6 decimals, or 0 when total
// is not positive.
func PercentOfTotal(value, total int64) float64 {
	if total <= 0 {
		return 0
	}
	p := float64(value) / float64(total) * 100
	return math.Round(p*1e6) / 1e6
}
