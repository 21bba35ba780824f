package protocol

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewPartition(t *testing.T) {
	p, err := NewPartition(4, map[NodeID][]MemberID{
		"agg-A": {1, 0},
		"agg-B": {3, 2},
	})
	require.NoError(t, err)
	require.Equal(t, 4, p.Size())
	require.Equal(t, []NodeID{"agg-A", "agg-B"}, p.Aggregators())
	require.Equal(t, []MemberID{0, 1}, p.MembersOf("agg-A"))

	agg, ok := p.AggregatorOf(3)
	require.True(t, ok)
	require.Equal(t, "agg-B", agg)

	_, ok = p.AggregatorOf(4)
	require.False(t, ok)
}

func TestNewPartitionRejectsInvalidAssignments(t *testing.T) {
	cases := map[string]map[NodeID][]MemberID{
		"missing member":  {"agg-A": {0, 1}, "agg-B": {2}},
		"assigned twice":  {"agg-A": {0, 1, 2}, "agg-B": {2, 3}},
		"repeated member": {"agg-A": {0, 0, 1}, "agg-B": {2, 3}},
		"out of range":    {"agg-A": {0, 1}, "agg-B": {2, 3, 4}},
		"negative member": {"agg-A": {-1, 0, 1}, "agg-B": {2, 3}},
		"no aggregators":  {},
		"empty id":        {"": {0, 1}, "agg-B": {2, 3}},
	}

	for name, assignments := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewPartition(4, assignments)
			var configErr *ConfigurationError
			require.ErrorAs(t, err, &configErr)
		})
	}
}

func TestBuildChannelsPairsAggregators(t *testing.T) {
	p, err := NewPartition(5, map[NodeID][]MemberID{
		"agg-A": {0, 3},
		"agg-B": {1},
		"agg-C": {2, 4},
	})
	require.NoError(t, err)

	channels, err := BuildChannels(p, nil)
	require.NoError(t, err)
	require.Len(t, channels, 2)

	pair := channels[0]
	require.Equal(t, "channel-0", pair.ID)
	require.Equal(t, []NodeID{"agg-A", "agg-B"}, pair.Aggregators)
	require.Equal(t, []MemberID{0, 1, 3}, pair.Members)
	require.False(t, pair.Solo())

	peer, ok := pair.Peer("agg-B")
	require.True(t, ok)
	require.Equal(t, "agg-A", peer)

	idx, ok := pair.IndexOf(3)
	require.True(t, ok)
	require.Equal(t, 2, idx)
	_, ok = pair.IndexOf(2)
	require.False(t, ok)

	solo := channels[1]
	require.True(t, solo.Solo())
	require.Equal(t, []MemberID{2, 4}, solo.Members)
	_, ok = solo.Peer("agg-C")
	require.False(t, ok)
}

func TestBuildChannelsEmptyAssignment(t *testing.T) {
	p, err := NewPartition(2, map[NodeID][]MemberID{
		"agg-A": {0, 1},
		"agg-B": {},
	})
	require.NoError(t, err)

	channels, err := BuildChannels(p, nil)
	require.NoError(t, err)
	require.Len(t, channels, 1)
	require.Equal(t, 2, channels[0].Size())
	require.Empty(t, p.MembersOf("agg-B"))
}

func TestBuildChannelsRejectsInvalidChannels(t *testing.T) {
	p, err := NewPartition(4, map[NodeID][]MemberID{
		"agg-A": {0},
		"agg-B": {1},
		"agg-C": {2, 3},
	})
	require.NoError(t, err)

	cases := map[string][]ChannelConfig{
		"unknown aggregator": {{ID: "x", Aggregators: []NodeID{"agg-A", "agg-Z"}}, {ID: "y", Aggregators: []NodeID{"agg-B", "agg-C"}}},
		"aggregator twice":   {{ID: "x", Aggregators: []NodeID{"agg-A", "agg-B"}}, {ID: "y", Aggregators: []NodeID{"agg-B", "agg-C"}}},
		"uncovered":          {{ID: "x", Aggregators: []NodeID{"agg-A", "agg-B"}}},
		"too many":           {{ID: "x", Aggregators: []NodeID{"agg-A", "agg-B", "agg-C"}}},
		"empty channel":      {{ID: "x"}, {ID: "y", Aggregators: []NodeID{"agg-A", "agg-B", "agg-C"}}},
		"duplicate id":       {{ID: "x", Aggregators: []NodeID{"agg-A", "agg-B"}}, {ID: "x", Aggregators: []NodeID{"agg-C"}}},
	}

	for name, configs := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := BuildChannels(p, configs)
			var configErr *ConfigurationError
			require.ErrorAs(t, err, &configErr)
		})
	}

	channels, err := BuildChannels(p, []ChannelConfig{
		{ID: "pair", Aggregators: []NodeID{"agg-C", "agg-A"}},
		{Aggregators: []NodeID{"agg-B"}},
	})
	require.NoError(t, err)
	require.Equal(t, []NodeID{"agg-A", "agg-C"}, channels[0].Aggregators)
	require.Equal(t, []MemberID{0, 2, 3}, channels[0].Members)
	require.Equal(t, "channel-1", channels[1].ID)
}
