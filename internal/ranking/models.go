package ranking

import (
	"bytes"
	"encoding/json"
	"time"
)

// TopEntry is one row of a per-stat leaderboard.
type TopEntry struct {
	UUID           string  `json:"uuid"`
	Name           string  `json:"name"`
	Value          int64   `json:"value"`
	Section        string  `json:"section"`
	StatKey        string  `json:"stat_key"`
	TotalValue     int64   `json:"total_value"`
	PercentOfTotal float64 `json:"percent_of_total"`
}

// TopResponse is the per-stat leaderboard.
type TopResponse struct {
	Section      string     `json:"section"`
	StatKey      string     `json:"stat_key"`
	Limit        int        `json:"limit"`
	IncludeZeros bool       `json:"include_zeros"`
	UpdatedAt    time.Time  `json:"updated_at"`
	TotalValue   int64      `json:"total_value"`
	Results      []TopEntry `json:"results"`
}

// SectionTopEntry is one row of a section-total leaderboard.
type SectionTopEntry struct {
	UUID           string  `json:"uuid"`
	Name           string  `json:"name"`
	Value          int64   `json:"value"`
	Section        string  `json:"section"`
	TotalValue     int64   `json:"total_value"`
	PercentOfTotal float64 `json:"percent_of_total"`
}

// SectionTopResponse is the section-total leaderboard.
type SectionTopResponse struct {
	Section      string            `json:"section"`
	Limit        int               `json:"limit"`
	IncludeZeros bool              `json:"include_zeros"`
	UpdatedAt    time.Time         `json:"updated_at"`
	TotalValue   int64             `json:"total_value"`
	Results      []SectionTopEntry `json:"results"`
}

// BestStatEntry is a counter on which the player holds the maximum.
type BestStatEntry struct {
	Section        string  `json:"section"`
	StatKey        string  `json:"stat_key"`
	Value          int64   `json:"value"`
	MaxValue       int64   `json:"max_value"`
	WinnersCount   int     `json:"winners_count"`
	Tied           bool    `json:"tied"`
	TotalValue     int64   `json:"total_value"`
	PercentOfTotal float64 `json:"percent_of_total"`
}

// BestStatsResponse lists the counters a player leads.
type BestStatsResponse struct {
	UUID         string          `json:"uuid"`
	Name         string          `json:"name"`
	MinValue     int64           `json:"min_value"`
	IncludeZeros bool            `json:"include_zeros"`
	MaxResults   int             `json:"max_results"`
	UpdatedAt    time.Time       `json:"updated_at"`
	Results      []BestStatEntry `json:"results"`
}

// BasicPlayerEntry is a player's identity only.
type BasicPlayerEntry struct {
	UUID string `json:"uuid"`
	Name string `json:"name"`
}

// BasicPlayersResponse is the lightweight player listing.
type BasicPlayersResponse struct {
	Count     int                `json:"count"`
	UpdatedAt time.Time          `json:"updated_at"`
	Players   []BasicPlayerEntry `json:"players"`
}

// StatTotal is one key of a section's totals.
type StatTotal struct {
	StatKey string
	Total   int64
}

// SectionTotals is one section's filtered totals, in output order.
type SectionTotals struct {
	Section string
	Totals  []StatTotal
}

// OrderedTotals renders as a JSON object of objects
// ({"section": {"key": total}}) preserving slice order.
type OrderedTotals []SectionTotals

// MarshalJSON implements json.Marshaler.
func (o OrderedTotals) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, s := range o {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeKey(&buf, s.Section); err != nil {
			return nil, err
		}
		buf.WriteByte('{')
		for j, t := range s.Totals {
			if j > 0 {
				buf.WriteByte(',')
			}
			if err := writeKey(&buf, t.StatKey); err != nil {
				return nil, err
			}
			v, err := json.Marshal(t.Total)
			if err != nil {
				return nil, err
			}
			buf.Write(v)
		}
		buf.WriteByte('}')
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func writeKey(buf *bytes.Buffer, key string) error {
	k, err := json.Marshal(key)
	if err != nil {
		return err
	}
	buf.Write(k)
	buf.WriteByte(':')
	return nil
}

// AggregateStatsResponse lists global totals per section.
type AggregateStatsResponse struct {
	Players         int           `json:"players"`
	MinValue        int64         `json:"min_value"`
	LimitPerSection int           `json:"limit_per_section"`
	UpdatedAt       time.Time     `json:"updated_at"`
	Stats           OrderedTotals `json:"stats"`
}
