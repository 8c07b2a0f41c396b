package ranking

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/playerstats-proxy/internal/stats"
)

func TestBasicPlayers(t *testing.T) {
	players := append(samplePlayers(), player("u9", "", nil), player("u4", "aaron", nil))

	resp := BasicPlayers(players, at)

	assert.Equal(t, 4, resp.Count)
	assert.Equal(t, []BasicPlayerEntry{
		{UUID: "u4", Name: "aaron"},
		{UUID: "u1", Name: "Alice"},
		{UUID: "u2", Name: "bob"},
		{UUID: "u3", Name: "Carol"},
	}, resp.Players)
	assert.Equal(t, at, resp.UpdatedAt)
}

func TestAggregateTotals(t *testing.T) {
	players := samplePlayers()
	agg := ComputeAggregate(players)

	resp := AggregateTotals(agg, len(players), TotalsQuery{MinValue: 1}, at)

	assert.Equal(t, 4, resp.Players)
	require.Len(t, resp.Stats, 3)
	assert.Equal(t, SectionTotals{Section: "combat", Totals: []StatTotal{{"kills", 73}, {"deaths", 7}}}, resp.Stats[0])
	assert.Equal(t, SectionTotals{Section: "mining", Totals: []StatTotal{{"stone", 140}}}, resp.Stats[1])
	assert.Equal(t, SectionTotals{Section: "travel", Totals: []StatTotal{{"walk", 7}}}, resp.Stats[2])
}

func TestAggregateTotals_FilterAndLimit(t *testing.T) {
	agg := AggregateTable{
		"s": {"b": 5, "a": 5, "c": 9, "d": 1},
		"t": {"x": 2},
	}

	resp := AggregateTotals(agg, 2, TotalsQuery{MinValue: 3, LimitPerSection: 2}, at)

	require.Len(t, resp.Stats, 1, "section t has nothing at or above 3")
	assert.Equal(t, []StatTotal{{"c", 9}, {"a", 5}}, resp.Stats[0].Totals)
	assert.Equal(t, 2, resp.LimitPerSection)
}

func TestAggregateTotals_MinValueZeroKeepsZeros(t *testing.T) {
	agg := AggregateTable{"s": {"zero": 0}}

	resp := AggregateTotals(agg, 1, TotalsQuery{MinValue: 0}, at)
	require.Len(t, resp.Stats, 1)
	assert.Equal(t, []StatTotal{{"zero", 0}}, resp.Stats[0].Totals)
}

func TestOrderedTotals_MarshalPreservesOrder(t *testing.T) {
	o := OrderedTotals{
		{Section: "zeta", Totals: []StatTotal{{"b", 9}, {"a", 1}}},
		{Section: `we"ird`, Totals: []StatTotal{{"k", 2}}},
	}

	data, err := json.Marshal(o)
	require.NoError(t, err)
	assert.Equal(t, `{"zeta":{"b":9,"a":1},"we\"ird":{"k":2}}`, string(data))

	empty, err := json.Marshal(OrderedTotals{})
	require.NoError(t, err)
	assert.Equal(t, `{}`, string(empty))
}

func TestAggregateStatsResponse_JSON(t *testing.T) {
	players := []stats.PlayerRecord{player("a", "A", stats.Sections{"s": {"k": 3}})}
	resp := AggregateTotals(ComputeAggregate(players), 1, TotalsQuery{MinValue: 1}, at)

	data, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"players": 1,
		"min_value": 1,
		"limit_per_section": 0,
		"updated_at": "2024-05-01T12:00:00Z",
		"stats": {"s": {"k": 3}}
	}`, string(data))
}
