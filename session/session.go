// Package session runs aggregation sessions: it validates the configuration,
// builds the Member and Aggregator roles on a simulated network and schedules
// the phases of every round in virtual time.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/flashbots/maskagg/masking"
	"github.com/flashbots/maskagg/protocol"
	"github.com/flashbots/maskagg/report"
	"github.com/flashbots/maskagg/sim"
)

// networkStream names the random stream of the simulated network.
const networkStream = "network"

// Session owns the engine, network and roles of one aggregation session.
// A Session is single-threaded; run separate sessions for concurrency.
type Session struct {
	config    *protocol.SessionConfig
	seed      []byte
	partition *protocol.Partition
	channels  []*protocol.Channel

	logger      *slog.Logger
	reporter    report.Reporter
	readings    protocol.ReadingSource
	dropFilters []sim.DropFilter

	engine  *sim.Engine
	network *sim.Network
	base    time.Duration

	aggregators []*protocol.AggregatorService
	members     []*protocol.MemberService
	torn        map[protocol.NodeID]bool
	nextRound   int
}

// New validates cfg and builds a session. Configuration problems are
// returned as *protocol.ConfigurationError before anything is scheduled.
func New(cfg *protocol.SessionConfig, opts ...Option) (*Session, error) {
	partition, channels, err := cfg.Topology()
	if err != nil {
		return nil, err
	}

	s := &Session{
		config:    cfg,
		seed:      []byte(cfg.Seed),
		partition: partition,
		channels:  channels,
		torn:      make(map[protocol.NodeID]bool),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With("session", cfg.SessionID)
	if s.readings == nil {
		s.readings = newConfigReadings(cfg, s.seed)
	}
	if s.engine == nil {
		s.engine = sim.NewEngine()
	}
	s.base = s.engine.Now()

	netRng, err := masking.NewDerivedGenerator(s.seed, 0, networkStream)
	if err != nil {
		return nil, fmt.Errorf("deriving network stream: %w", err)
	}
	s.network = sim.NewNetwork(s.engine, cfg.Network, netRng)
	for _, f := range s.dropFilters {
		s.network.AddDropFilter(f)
	}

	s.members = make([]*protocol.MemberService, cfg.Members)
	for _, ch := range channels {
		for _, agg := range ch.Aggregators {
			assigned := partition.MembersOf(agg)
			a := protocol.NewAggregatorService(cfg, agg, assigned, ch, s.network, s.logger)
			s.network.Register(agg, a.HandleMessage)
			s.aggregators = append(s.aggregators, a)

			for _, id := range assigned {
				m := protocol.NewMemberService(cfg, id, agg, ch, s.network, s.logger)
				s.network.Register(m.Node(), m.HandleMessage)
				s.members[id] = m
			}
		}
	}

	s.logger.Info("session created",
		"members", cfg.Members,
		"aggregators", len(s.aggregators),
		"channels", len(channels),
		"rounds", len(cfg.Rounds),
	)
	return s, nil
}

// Engine returns the engine driving the session.
func (s *Session) Engine() *sim.Engine { return s.engine }

// Network returns the simulated network.
func (s *Session) Network() *sim.Network { return s.network }

// Channels returns the session's channels.
func (s *Session) Channels() []*protocol.Channel { return s.channels }

// Aggregator returns the Aggregator with the given id.
func (s *Session) Aggregator(id protocol.NodeID) (*protocol.AggregatorService, bool) {
	for _, a := range s.aggregators {
		if a.ID() == id {
			return a, true
		}
	}
	return nil, false
}

// Member returns the Member with the given id.
func (s *Session) Member(id protocol.MemberID) (*protocol.MemberService, bool) {
	if id < 0 || int(id) >= len(s.members) {
		return nil, false
	}
	return s.members[id], true
}

// Teardown removes a node: its pending actions are cancelled, messages in
// flight to it are lost and it takes no part in later rounds.
func (s *Session) Teardown(node protocol.NodeID) int {
	cancelled := s.engine.CancelNode(node)
	s.network.Unregister(node)
	s.torn[node] = true
	s.logger.Info("node torn down", "node", node, "cancelled", cancelled)
	return cancelled
}

// Run runs every configured round and returns their reports.
func (s *Session) Run(ctx context.Context) ([]*report.RoundReport, error) {
	reports := make([]*report.RoundReport, 0, len(s.config.Rounds))
	for s.nextRound < len(s.config.Rounds) {
		r, err := s.RunRound(ctx)
		if err != nil {
			return reports, err
		}
		reports = append(reports, r)
	}
	return reports, nil
}

// RunRound schedules and runs the next round, then hands its report to the
// reporter. Rounds beyond the configured list cycle through it.
func (s *Session) RunRound(ctx context.Context) (*report.RoundReport, error) {
	round := s.config.Round(s.nextRound)
	start := s.base + s.config.RoundStart(round.Number)
	end := start + s.config.Phases.End(round.Type)

	if now := s.engine.Now(); start < now {
		return nil, fmt.Errorf("%s starts at %s, engine is already at %s", round, start, now)
	}

	if err := s.schedule(round, start); err != nil {
		return nil, err
	}
	s.nextRound++

	s.logger.Debug("running round", "round", round.Number, "type", round.Type, "start", start, "end", end)
	if err := s.engine.Run(ctx, end); err != nil {
		return nil, fmt.Errorf("running %s: %w", round, err)
	}

	r := s.buildReport(round, start, end)
	if s.reporter != nil {
		if err := s.reporter.RoundCompleted(ctx, r); err != nil {
			s.logger.Error("reporting round", "round", round.Number, "err", err)
		}
	}
	return r, nil
}
