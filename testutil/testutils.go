package testutil

import (
	"fmt"
	"time"

	"github.com/flashbots/maskagg/masking"
	"github.com/flashbots/maskagg/protocol"
)

// =====================================
// Configuration Generators
// =====================================

// TestConfigOption is a function that modifies a SessionConfig
type TestConfigOption func(*protocol.SessionConfig)

// AggregatorID returns the id of the i-th test aggregator: agg-A, agg-B, ...
func AggregatorID(i int) protocol.NodeID {
	if i < 26 {
		return fmt.Sprintf("agg-%c", 'A'+i)
	}
	return fmt.Sprintf("agg-%d", i)
}

// WithMembers sets the member count and splits members into contiguous
// blocks over the given number of aggregators
func WithMembers(members, aggregators int) TestConfigOption {
	return func(c *protocol.SessionConfig) {
		c.Members = members
		c.Assignments = make(map[protocol.NodeID][]protocol.MemberID, aggregators)
		for i := range aggregators {
			c.Assignments[AggregatorID(i)] = []protocol.MemberID{}
		}
		for m := range members {
			agg := AggregatorID(m * aggregators / members)
			c.Assignments[agg] = append(c.Assignments[agg], protocol.MemberID(m))
		}
	}
}

// WithAssignments sets explicit aggregator assignments
func WithAssignments(members int, assignments map[protocol.NodeID][]protocol.MemberID) TestConfigOption {
	return func(c *protocol.SessionConfig) {
		c.Members = members
		c.Assignments = assignments
	}
}

// WithChannels sets explicit channels
func WithChannels(channels ...protocol.ChannelConfig) TestConfigOption {
	return func(c *protocol.SessionConfig) {
		c.Channels = channels
	}
}

// WithReadings fixes member readings
func WithReadings(readings map[protocol.MemberID]int64) TestConfigOption {
	return func(c *protocol.SessionConfig) {
		c.Readings = readings
	}
}

// WithSeed sets the session seed
func WithSeed(seed string) TestConfigOption {
	return func(c *protocol.SessionConfig) {
		c.Seed = seed
	}
}

// WithSessionID sets the session id
func WithSessionID(id string) TestConfigOption {
	return func(c *protocol.SessionConfig) {
		c.SessionID = id
	}
}

// WithRounds sets one round per session type
func WithRounds(types ...protocol.SessionType) TestConfigOption {
	return func(c *protocol.SessionConfig) {
		c.Rounds = make([]protocol.RoundConfig, len(types))
		for i, t := range types {
			c.Rounds[i] = protocol.RoundConfig{Type: t}
		}
	}
}

// WithRemask enables the second-stage re-mask on every round
func WithRemask() TestConfigOption {
	return func(c *protocol.SessionConfig) {
		for i := range c.Rounds {
			c.Rounds[i].Remask = true
		}
	}
}

// WithNetwork sets the simulated link behaviour
func WithNetwork(latency, jitter time.Duration, lossRate float64) TestConfigOption {
	return func(c *protocol.SessionConfig) {
		c.Network = protocol.NetworkConfig{Latency: latency, Jitter: jitter, LossRate: lossRate}
	}
}

// WithSendJitter sets the maximum member send delay
func WithSendJitter(jitter time.Duration) TestConfigOption {
	return func(c *protocol.SessionConfig) {
		c.SendJitter = jitter
	}
}

// WithPhases sets the phase schedule
func WithPhases(phases protocol.PhaseSchedule) TestConfigOption {
	return func(c *protocol.SessionConfig) {
		c.Phases = phases
		c.RoundInterval = 0
	}
}

// NewTestConfig creates a test configuration with customizable options.
// Options are applied in order.
func NewTestConfig(options ...TestConfigOption) *protocol.SessionConfig {
	config := protocol.DefaultSessionConfig()
	config.SessionID = "test-session"
	config.Seed = "test-seed"
	WithMembers(4, 2)(config)

	for _, option := range options {
		option(config)
	}

	return config
}

// =====================================
// Masks and Readings
// =====================================

// ScriptedSource implements masking.Source with predetermined draws.
// It panics when a script runs out.
type ScriptedSource struct {
	Vectors []masking.Vector
	Draws   []int64
}

// DrawVector returns the next scripted vector
func (s *ScriptedSource) DrawVector(n int, _ masking.Range) masking.Vector {
	if len(s.Vectors) == 0 {
		panic("testutil: no scripted vector left")
	}
	v := s.Vectors[0]
	s.Vectors = s.Vectors[1:]
	if len(v) != n {
		panic(fmt.Sprintf("testutil: scripted vector has %d values, want %d", len(v), n))
	}
	return v.Clone()
}

// Draw returns the next scripted value
func (s *ScriptedSource) Draw(_ masking.Range) int64 {
	if len(s.Draws) == 0 {
		panic("testutil: no scripted draw left")
	}
	x := s.Draws[0]
	s.Draws = s.Draws[1:]
	return x
}

// SumReadings sums the readings of the given members
func SumReadings(readings map[protocol.MemberID]int64, members ...protocol.MemberID) int64 {
	var sum int64
	for _, m := range members {
		sum += readings[m]
	}
	return sum
}
