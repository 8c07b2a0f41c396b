package ranking

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/playerstats-proxy/internal/stats"
)

func best(t *testing.T, players []stats.PlayerRecord, q BestQuery) BestStatsResponse {
	t.Helper()
	resp, err := BestStats(players, ComputeMaxima(players), ComputeAggregate(players), q, at)
	require.NoError(t, err)
	return resp
}

func TestBestStats_TiedScenario(t *testing.T) {
	players := []stats.PlayerRecord{
		player("a", "A", stats.Sections{"combat": {"kills": 10}}),
		player("b", "B", stats.Sections{"combat": {"kills": 10}}),
	}

	resp := best(t, players, BestQuery{Player: "A", MinValue: 1, MaxResults: 10})

	require.Len(t, resp.Results, 1)
	e := resp.Results[0]
	assert.Equal(t, "combat", e.Section)
	assert.Equal(t, "kills", e.StatKey)
	assert.Equal(t, int64(10), e.Value)
	assert.Equal(t, int64(10), e.MaxValue)
	assert.Equal(t, 2, e.WinnersCount)
	assert.True(t, e.Tied)
	assert.Equal(t, int64(20), e.TotalValue)
	assert.Equal(t, 50.0, e.PercentOfTotal)
	assert.Equal(t, "a", resp.UUID)
	assert.Equal(t, "A", resp.Name)
}

func TestBestStats_OnlyLeadingStats(t *testing.T) {
	resp := best(t, samplePlayers(), BestQuery{Player: "alice", MinValue: 1, MaxResults: 10})

	// Alice leads mining.stone alone; kills is beaten by the unidentified Ghost.
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "stone", resp.Results[0].StatKey)
	assert.False(t, resp.Results[0].Tied)
	assert.Equal(t, 1, resp.Results[0].WinnersCount)
}

func TestBestStats_ZeroNeverWinsWithoutIncludeZeros(t *testing.T) {
	players := []stats.PlayerRecord{
		player("a", "A", stats.Sections{"s": {"z": 0, "k": 3}}),
		player("b", "B", stats.Sections{"s": {"z": 0}}),
	}

	resp := best(t, players, BestQuery{Player: "A", MinValue: 0, MaxResults: 10})
	for _, e := range resp.Results {
		assert.NotZero(t, e.Value)
	}
	require.Len(t, resp.Results, 1)

	resp = best(t, players, BestQuery{Player: "A", MinValue: 0, IncludeZeros: true, MaxResults: 10})
	require.Len(t, resp.Results, 2)
	assert.Equal(t, "k", resp.Results[0].StatKey)
	assert.Equal(t, "z", resp.Results[1].StatKey)
	assert.True(t, resp.Results[1].Tied)
	assert.Equal(t, 0.0, resp.Results[1].PercentOfTotal)
}

func TestBestStats_MinValue(t *testing.T) {
	players := []stats.PlayerRecord{
		player("a", "A", stats.Sections{"s": {"big": 500, "small": 4}}),
	}

	resp := best(t, players, BestQuery{Player: "A", MinValue: 10, MaxResults: 10})
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "big", resp.Results[0].StatKey)
	assert.Equal(t, int64(10), resp.MinValue)
}

func TestBestStats_SortAndTruncate(t *testing.T) {
	players := []stats.PlayerRecord{
		player("a", "A", stats.Sections{
			"b_section": {"y": 5, "x": 5},
			"a_section": {"z": 5},
			"c_section": {"w": 9},
		}),
	}

	resp := best(t, players, BestQuery{Player: "A", MinValue: 1, MaxResults: 10})
	got := make([]string, 0, len(resp.Results))
	for _, e := range resp.Results {
		got = append(got, e.Section+"."+e.StatKey)
	}
	assert.Equal(t, []string{"c_section.w", "a_section.z", "b_section.x", "b_section.y"}, got)

	resp = best(t, players, BestQuery{Player: "A", MinValue: 1, MaxResults: 2})
	assert.Len(t, resp.Results, 2)
	assert.Equal(t, 2, resp.MaxResults)
}

func TestBestStats_OrderIsDeterministic(t *testing.T) {
	sections := stats.Sections{}
	for _, sec := range []string{"s3", "s1", "s2"} {
		sections[sec] = map[string]int64{"k2": 4, "k1": 4, "k3": 4, "k0": 7}
	}
	players := []stats.PlayerRecord{player("a", "A", sections)}

	order := func() []string {
		resp := best(t, players, BestQuery{Player: "A", MinValue: 1, MaxResults: 100})
		out := make([]string, 0, len(resp.Results))
		for _, e := range resp.Results {
			out = append(out, e.Section+"."+e.StatKey)
		}
		return out
	}

	want := []string{
		"s1.k0", "s2.k0", "s3.k0",
		"s1.k1", "s1.k2", "s1.k3",
		"s2.k1", "s2.k2", "s2.k3",
		"s3.k1", "s3.k2", "s3.k3",
	}
	for i := 0; i < 20; i++ {
		require.Equal(t, want, order())
	}
}

func TestBestStats_NotFound(t *testing.T) {
	players := samplePlayers()
	_, err := BestStats(players, ComputeMaxima(players), ComputeAggregate(players), BestQuery{Player: "nobody", MaxResults: 5}, at)
	assert.ErrorIs(t, err, ErrPlayerNotFound)
}

func TestBestStats_ResultsNeverNull(t *testing.T) {
	players := []stats.PlayerRecord{player("a", "A", nil)}
	resp := best(t, players, BestQuery{Player: "A", MaxResults: 5})

	data, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"results":[]`)
}

func TestFindPlayer(t *testing.T) {
	players := []stats.PlayerRecord{
		player("123e4567-e89b-12d3-a456-426614174000", "Notch", nil),
		player("223e4567-e89b-12d3-a456-426614174000", " Jeb_ ", nil),
	}

	p, ok := FindPlayer(players, "NOTCH")
	require.True(t, ok)
	assert.Equal(t, "Notch", p.Name)

	p, ok = FindPlayer(players, "jeb_")
	require.True(t, ok)
	assert.Equal(t, " Jeb_ ", p.Name)

	p, ok = FindPlayer(players, "223E4567E89B12D3A456426614174000")
	require.True(t, ok)
	assert.Equal(t, " Jeb_ ", p.Name)

	_, ok = FindPlayer(players, "")
	assert.False(t, ok)

	_, ok = FindPlayer(players, "dinnerbone")
	assert.False(t, ok)
}
