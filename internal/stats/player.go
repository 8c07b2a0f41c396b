// Package stats holds the typed player model parsed from the upstream
// statistics payload. All coercion of untrusted values happens here, once,
// so the ranking code only ever sees non-negative integers.
package stats

import (
	"strings"
	"time"
)

// Sections maps section -> stat key -> coerced value.
type Sections map[string]map[string]int64

// PlayerRecord is one player as reported by the upstream plugin.
type PlayerRecord struct {
	UUID  string   `json:"uuid"`
	Name  string   `json:"name"`
	Stats Sections `json:"stats"`
}

// Identified reports whether the record carries both a uuid and a name.
// Unidentified records are skipped by every listing and ranking.
func (p PlayerRecord) Identified() bool {
	return p.UUID != "" && p.Name != ""
}

// Value returns the coerced value at (section, key), 0 when absent.
func (p PlayerRecord) Value(section, key string) int64 {
	return p.Stats[section][key]
}

// NameKey is the case-insensitive sort and match key for the player name.
func (p PlayerRecord) NameKey() string {
	return strings.ToLower(p.Name)
}

// Snapshot is the full player list produced by one upstream fetch.
type Snapshot struct {
	Players   []PlayerRecord
	FetchedAt time.Time
	// Generation increases by one on every successful fetch. Derived tables
	// record the generation they were computed from.
	Generation uint64
}

// Len returns the number of players, including unidentified ones.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Players)
}
