package session

import (
	"fmt"
	"time"

	"github.com/flashbots/maskagg/masking"
	"github.com/flashbots/maskagg/protocol"
)

// sendStream suffixes the stream a Member draws its send jitter from.
const sendStream = "/send"

// schedule registers the phase entry and deadline actions of a round. Node
// streams are derived up front so that nothing is scheduled on failure.
func (s *Session) schedule(round protocol.Round, start time.Duration) error {
	type memberStreams struct {
		mask, send *masking.Generator
	}

	aggStreams := make(map[protocol.NodeID]*masking.Generator, len(s.aggregators))
	for _, a := range s.aggregators {
		g, err := masking.NewDerivedGenerator(s.seed, round.Number, a.ID())
		if err != nil {
			return fmt.Errorf("deriving stream of %s: %w", a.ID(), err)
		}
		aggStreams[a.ID()] = g
	}

	memStreams := make(map[protocol.MemberID]memberStreams, len(s.members))
	for _, m := range s.members {
		mask, err := masking.NewDerivedGenerator(s.seed, round.Number, m.Node())
		if err != nil {
			return fmt.Errorf("deriving stream of %s: %w", m.Node(), err)
		}
		send, err := masking.NewDerivedGenerator(s.seed, round.Number, m.Node()+sendStream)
		if err != nil {
			return fmt.Errorf("deriving stream of %s: %w", m.Node(), err)
		}
		memStreams[m.ID()] = memberStreams{mask: mask, send: send}
	}

	at := func(p protocol.Phase) (time.Duration, time.Duration) {
		timing := s.config.Phases.Timing(p)
		return start + timing.Start, start + timing.Deadline
	}

	// Round start: every node captures its per-round state first.
	for _, a := range s.aggregators {
		if s.torn[a.ID()] {
			continue
		}
		src := aggStreams[a.ID()]
		s.engine.ScheduleAt(start, a.ID(), func() { a.BeginRound(round, src) })
	}
	for _, m := range s.members {
		if s.torn[m.Node()] {
			continue
		}
		src := memStreams[m.ID()].mask
		reading := s.readings.Reading(m.ID(), round.Number)
		s.engine.ScheduleAt(start, m.Node(), func() {
			if err := m.BeginRound(round, reading, src); err != nil {
				s.logger.Debug("member sits out round", "member", m.ID(), "round", round.Number, "err", err)
			}
		})
	}

	if round.Type.Includes(protocol.ExchangePhase) {
		open, deadline := at(protocol.ExchangePhase)
		for _, a := range s.liveAggregators() {
			s.engine.ScheduleAt(open, a.ID(), func() {
				if err := a.StartExchange(); err != nil {
					s.logger.Warn("mask exchange failed", "aggregator", a.ID(), "round", round.Number, "err", err)
				}
			})
			s.engine.ScheduleAt(deadline, a.ID(), a.CloseExchange)
		}
	}

	if round.Type.Includes(protocol.DistributePhase) {
		open, deadline := at(protocol.DistributePhase)
		for _, a := range s.liveAggregators() {
			s.engine.ScheduleAt(open, a.ID(), func() {
				if err := a.Distribute(); err != nil {
					s.logger.Warn("distribution failed", "aggregator", a.ID(), "round", round.Number, "err", err)
				}
			})
		}
		for _, m := range s.liveMembers() {
			s.engine.ScheduleAt(deadline, m.Node(), m.CloseOffsetWindow)
		}
	}

	if round.Type.Includes(protocol.CollectPhase) {
		open, deadline := at(protocol.CollectPhase)
		for _, a := range s.liveAggregators() {
			s.engine.ScheduleAt(open, a.ID(), a.OpenCollect)
			s.engine.ScheduleAt(deadline, a.ID(), a.CloseCollect)
		}
		for _, m := range s.liveMembers() {
			var jitter time.Duration
			if s.config.SendJitter > 0 {
				jitter = time.Duration(memStreams[m.ID()].send.Draw(masking.Range{Low: 0, High: int64(s.config.SendJitter), Inclusive: true}))
			}
			s.engine.ScheduleAt(open+jitter, m.Node(), m.OpenCollect)
			s.engine.ScheduleAt(deadline, m.Node(), m.CloseCollect)
		}
	}

	return nil
}

func (s *Session) liveAggregators() []*protocol.AggregatorService {
	live := make([]*protocol.AggregatorService, 0, len(s.aggregators))
	for _, a := range s.aggregators {
		if !s.torn[a.ID()] {
			live = append(live, a)
		}
	}
	return live
}

func (s *Session) liveMembers() []*protocol.MemberService {
	live := make([]*protocol.MemberService, 0, len(s.members))
	for _, m := range s.members {
		if !s.torn[m.Node()] {
			live = append(live, m)
		}
	}
	return live
}
