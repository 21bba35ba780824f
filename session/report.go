package session

import (
	"time"

	"github.com/flashbots/maskagg/protocol"
	"github.com/flashbots/maskagg/report"
)

// buildReport ends the round on every role and summarizes it.
func (s *Session) buildReport(round protocol.Round, start, end time.Duration) *report.RoundReport {
	r := &report.RoundReport{
		SessionID: s.config.SessionID,
		Round:     round.Number,
		Type:      round.Type,
		Remask:    round.Remask,
		StartedAt: start,
		EndedAt:   end,
		Members:   s.config.Members,
		Gaps:      []report.Gap{},
	}

	collected := make(map[protocol.MemberID]bool)
	for _, ch := range s.channels {
		cr := report.ChannelReport{Channel: ch.ID, Solo: ch.Solo()}
		for _, id := range ch.Aggregators {
			a, _ := s.Aggregator(id)
			outcome := a.EndRound()
			counters := a.Counters().Reset()
			r.AggregatorCounters = r.AggregatorCounters.Add(counters)

			cr.Aggregators = append(cr.Aggregators, report.AggregatorReport{
				Aggregator: id,
				Assigned:   len(outcome.Assigned),
				Collected:  len(outcome.Collected),
				Batch:      outcome.Batch,
				Sum:        outcome.Sum,
				Counters:   counters,
			})
			for m := range outcome.Collected {
				collected[m] = true
			}
		}
		r.Channels = append(r.Channels, cr)
	}

	collects := round.Type.Includes(protocol.CollectPhase)
	for _, m := range s.members {
		outcome := m.EndRound()
		r.MemberCounters = r.MemberCounters.Add(m.Counters().Reset())

		var contributed bool
		if collects {
			contributed = collected[m.ID()]
		} else {
			contributed = outcome.State == protocol.MemberBlinded
		}
		if contributed {
			r.Contributed++
			continue
		}

		agg, _ := s.partition.AggregatorOf(m.ID())
		r.Gaps = append(r.Gaps, report.Gap{
			Member:     m.ID(),
			Aggregator: agg,
			Reason:     s.gapReason(m, outcome),
		})
	}

	r.Completeness = report.Completeness(r.Contributed, r.Members)
	r.SetFlow(s.network.ResetStats())
	return r
}

func (s *Session) gapReason(m *protocol.MemberService, outcome protocol.MemberOutcome) protocol.GapReason {
	switch {
	case s.torn[m.Node()]:
		return protocol.GapTornDown
	case outcome.Gap != protocol.GapNone:
		return outcome.Gap
	case outcome.State == protocol.MemberSent:
		return protocol.GapNotReceived
	case outcome.State == protocol.MemberBlinded:
		return protocol.GapNotSent
	default:
		return protocol.GapNoOffset
	}
}
