package ranking

import (
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/playerstats-proxy/internal/stats"
)

// ErrPlayerNotFound is returned by BestStats when no player matches.
var ErrPlayerNotFound = errors.New("player not found")

// BestQuery selects the counters one player leads.
type BestQuery struct {
	Player       string
	MinValue     int64
	IncludeZeros bool
	MaxResults   int
}

// FindPlayer matches id against player names case-insensitively (surrounding
// whitespace ignored). If no name matches and id is a valid UUID, it is
// matched against player uuids instead.
func FindPlayer(players []stats.PlayerRecord, id string) (stats.PlayerRecord, bool) {
	needle := strings.ToLower(strings.TrimSpace(id))
	if needle == "" {
		return stats.PlayerRecord{}, false
	}

	for _, p := range players {
		if strings.ToLower(strings.TrimSpace(p.Name)) == needle {
			return p, true
		}
	}

	want, err := uuid.Parse(needle)
	if err != nil {
		return stats.PlayerRecord{}, false
	}
	for _, p := range players {
		if got, err := uuid.Parse(p.UUID); err == nil && got == want {
			return p, true
		}
	}
	return stats.PlayerRecord{}, false
}

// BestStats lists every counter on which the player holds the global
// maximum, alone or tied. A zero value only counts as a win when
// IncludeZeros is set.
func BestStats(players []stats.PlayerRecord, maxima MaximaTable, aggregate AggregateTable, q BestQuery, at time.Time) (BestStatsResponse, error) {
	target, ok := FindPlayer(players, q.Player)
	if !ok {
		return BestStatsResponse{}, ErrPlayerNotFound
	}
	maxResults := max(1, q.MaxResults)

	results := make([]BestStatEntry, 0)
	for section, values := range target.Stats {
		for key, v := range values {
			if v == 0 && !q.IncludeZeros {
				continue
			}
			if v < q.MinValue {
				continue
			}
			m := maxima.Lookup(section, key)
			if v != m.Value || !(q.IncludeZeros || m.Value > 0) {
				continue
			}
			total := max(0, aggregate.Total(section, key))
			results = append(results, BestStatEntry{
				Section:        section,
				StatKey:        key,
				Value:          v,
				MaxValue:       m.Value,
				WinnersCount:   m.Winners,
				Tied:           m.Winners > 1,
				TotalValue:     total,
				PercentOfTotal: PercentOfTotal(v, total),
			})
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Value != b.Value {
			return a.Value > b.Value
		}
		if a.Section != b.Section {
			return a.Section < b.Section
		}
		return a.StatKey < b.StatKey
	})
	if len(results) > maxResults {
		results = results[:maxResults]
	}

	return BestStatsResponse{
		UUID:         target.UUID,
		Name:         target.Name,
		MinValue:     q.MinValue,
		IncludeZeros: q.IncludeZeros,
		MaxResults:   maxResults,
		UpdatedAt:    at,
		Results:      results,
	}, nil
}
