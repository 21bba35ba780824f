// Package report defines round reports and where they go: stores that keep
// them and reporters that receive them at the end of every round.
package report

import (
	"time"

	"github.com/flashbots/maskagg/protocol"
	"github.com/flashbots/maskagg/sim"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// RoundReport describes the outcome of one round of a session.
type RoundReport struct {
	SessionID string               `json:"session_id"`
	Round     int                  `json:"round"`
	Type      protocol.SessionType `json:"type"`
	Remask    bool                 `json:"remask"`
	StartedAt time.Duration        `json:"started_at"`
	EndedAt   time.Duration        `json:"ended_at"`

	// Members is the number of Members in the session.
	Members int `json:"members"`
	// Contributed counts Members that completed the round: collected by
	// their Aggregator, or holding an offset after a distribute-only round.
	Contributed int `json:"contributed"`
	// Completeness is Contributed/Members as a percentage.
	Completeness decimal.Decimal `json:"completeness"`
	Gaps         []Gap           `json:"gaps"`

	Channels []ChannelReport `json:"channels"`

	MemberCounters     protocol.CounterSnapshot `json:"member_counters"`
	AggregatorCounters protocol.CounterSnapshot `json:"aggregator_counters"`

	Flow          sim.FlowStats `json:"flow"`
	MeanDelay     time.Duration `json:"mean_delay"`
	DeliveryRatio float64       `json:"delivery_ratio"`
}

// Gap names a Member that did not contribute and why.
type Gap struct {
	Member     protocol.MemberID  `json:"member"`
	Aggregator protocol.NodeID    `json:"aggregator"`
	Reason     protocol.GapReason `json:"reason"`
}

// ChannelReport holds the per-Aggregator results of a channel.
type ChannelReport struct {
	Channel     string             `json:"channel"`
	Solo        bool               `json:"solo"`
	Aggregators []AggregatorReport `json:"aggregators"`
}

// AggregatorReport holds what one Aggregator forwards upstream.
type AggregatorReport struct {
	Aggregator protocol.NodeID          `json:"aggregator"`
	Assigned   int                      `json:"assigned"`
	Collected  int                      `json:"collected"`
	Batch      protocol.UplinkBatch     `json:"batch"`
	Sum        protocol.GroupSum        `json:"sum"`
	Counters   protocol.CounterSnapshot `json:"counters"`
}

// Completeness returns contributed/members as a percentage rounded to four
// decimal places. A round without Members is complete.
func Completeness(contributed, members int) decimal.Decimal {
	if members == 0 {
		return hundred
	}
	return decimal.NewFromInt(int64(contributed)).Mul(hundred).DivRound(decimal.NewFromInt(int64(members)), 4)
}

// SetFlow attaches network statistics to the report.
func (r *RoundReport) SetFlow(stats sim.FlowStats) {
	r.Flow = stats
	r.MeanDelay = stats.MeanDelay()
	r.DeliveryRatio = stats.DeliveryRatio()
}

// GroupSum returns the total of all Aggregators' group sums.
func (r *RoundReport) GroupSum() protocol.GroupSum {
	var total protocol.GroupSum
	for _, ch := range r.Channels {
		for _, agg := range ch.Aggregators {
			total.Count += agg.Sum.Count
			total.Sum += agg.Sum.Sum
			total.Estimate += agg.Sum.Estimate
			total.Remasked = total.Remasked || agg.Sum.Remasked
		}
	}
	return total
}
