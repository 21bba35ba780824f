package protocol

import (
	"fmt"
	"maps"
	"slices"
)

// Partition assigns every Member to exactly one Aggregator.
type Partition struct {
	owners      map[MemberID]NodeID
	members     map[NodeID][]MemberID
	aggregators []NodeID
}

// NewPartition builds a partition of members 0..n-1 from per-Aggregator
// assignments. Returns a *ConfigurationError if a Member is missing, out of
// range or assigned more than once.
func NewPartition(n int, assignments map[NodeID][]MemberID) (*Partition, error) {
	if len(assignments) == 0 {
		return nil, configErrorf("assignments", "no aggregators configured")
	}

	p := &Partition{
		owners:      make(map[MemberID]NodeID, n),
		members:     make(map[NodeID][]MemberID, len(assignments)),
		aggregators: slices.Sorted(maps.Keys(assignments)),
	}

	for _, agg := range p.aggregators {
		if agg == "" {
			return nil, configErrorf("assignments", "empty aggregator id")
		}

		assigned := slices.Clone(assignments[agg])
		slices.Sort(assigned)
		for _, m := range assigned {
			if m < 0 || int(m) >= n {
				return nil, configErrorf("assignments", "member %d of %s is out of range [0, %d)", m, agg, n)
			}
			if owner, taken := p.owners[m]; taken && owner == agg {
				return nil, configErrorf("assignments", "member %d is assigned twice to %s", m, agg)
			} else if taken {
				return nil, configErrorf("assignments", "member %d is assigned to both %s and %s", m, owner, agg)
			}
			p.owners[m] = agg
		}
		p.members[agg] = assigned
	}

	for m := range MemberID(n) {
		if _, ok := p.owners[m]; !ok {
			return nil, configErrorf("assignments", "member %d is not assigned to any aggregator", m)
		}
	}

	return p, nil
}

// AggregatorOf returns the Aggregator a Member is assigned to.
func (p *Partition) AggregatorOf(m MemberID) (NodeID, bool) {
	agg, ok := p.owners[m]
	return agg, ok
}

// MembersOf returns the Members assigned to an Aggregator in ascending order.
func (p *Partition) MembersOf(agg NodeID) []MemberID {
	return slices.Clone(p.members[agg])
}

// Aggregators returns all Aggregators in sorted order.
func (p *Partition) Aggregators() []NodeID {
	return slices.Clone(p.aggregators)
}

// Size returns the number of Members.
func (p *Partition) Size() int {
	return len(p.owners)
}

// Channel is a group of one or two Aggregators sharing a combined mask.
// Members are ordered by ascending id over the union of the Aggregators'
// assignments; mask vectors are indexed in that order.
type Channel struct {
	ID          string
	Aggregators []NodeID
	Members     []MemberID

	index map[MemberID]int
}

func newChannel(id string, aggregators []NodeID, p *Partition) *Channel {
	c := &Channel{
		ID:          id,
		Aggregators: aggregators,
		index:       make(map[MemberID]int),
	}
	for _, agg := range aggregators {
		c.Members = append(c.Members, p.members[agg]...)
	}
	slices.Sort(c.Members)
	for i, m := range c.Members {
		c.index[m] = i
	}
	return c
}

// Size returns the length of the channel's mask vectors.
func (c *Channel) Size() int {
	return len(c.Members)
}

// IndexOf returns the position of a Member in the channel's mask vectors.
func (c *Channel) IndexOf(m MemberID) (int, bool) {
	i, ok := c.index[m]
	return i, ok
}

// Solo reports whether the channel has a single Aggregator.
func (c *Channel) Solo() bool {
	return len(c.Aggregators) == 1
}

// Peer returns the other Aggregator of the channel.
func (c *Channel) Peer(self NodeID) (NodeID, bool) {
	if c.Solo() {
		return "", false
	}
	for _, agg := range c.Aggregators {
		if agg != self {
			return agg, true
		}
	}
	return "", false
}

// BuildChannels groups the partition's Aggregators into channels. Without
// explicit configuration Aggregators are paired in sorted order and a
// remaining one forms a solo channel.
func BuildChannels(p *Partition, configs []ChannelConfig) ([]*Channel, error) {
	if len(configs) == 0 {
		for i := 0; i < len(p.aggregators); i += 2 {
			end := min(i+2, len(p.aggregators))
			configs = append(configs, ChannelConfig{
				ID:          fmt.Sprintf("channel-%d", i/2),
				Aggregators: slices.Clone(p.aggregators[i:end]),
			})
		}
	}

	seenIDs := make(map[string]bool)
	placed := make(map[NodeID]string)
	channels := make([]*Channel, 0, len(configs))
	for i, cc := range configs {
		id := cc.ID
		if id == "" {
			id = fmt.Sprintf("channel-%d", i)
		}
		if seenIDs[id] {
			return nil, configErrorf("channels", "duplicate channel id %s", id)
		}
		seenIDs[id] = true

		if len(cc.Aggregators) == 0 || len(cc.Aggregators) > 2 {
			return nil, configErrorf("channels", "channel %s must have one or two aggregators, got %d", id, len(cc.Aggregators))
		}
		for _, agg := range cc.Aggregators {
			if _, ok := p.members[agg]; !ok {
				return nil, configErrorf("channels", "channel %s references unknown aggregator %s", id, agg)
			}
			if other, dup := placed[agg]; dup {
				return nil, configErrorf("channels", "aggregator %s is in both %s and %s", agg, other, id)
			}
			placed[agg] = id
		}

		aggregators := slices.Clone(cc.Aggregators)
		slices.Sort(aggregators)
		channels = append(channels, newChannel(id, aggregators, p))
	}

	for _, agg := range p.aggregators {
		if _, ok := placed[agg]; !ok {
			return nil, configErrorf("channels", "aggregator %s is not in any channel", agg)
		}
	}

	return channels, nil
}
