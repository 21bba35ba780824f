package protocol

import (
	"time"

	"github.com/flashbots/maskagg/masking"
)

// SessionConfig provides configuration parameters for one aggregation session.
type SessionConfig struct {
	// SessionID names the session in reports.
	SessionID string `json:"session_id" yaml:"session_id"`

	// Seed is the session seed every node stream is derived from.
	// Sessions with equal configuration and seed replay identically.
	Seed string `json:"seed" yaml:"seed"`

	// Members is the number of Members, identified 0..Members-1.
	Members int `json:"members" yaml:"members"`

	// Assignments maps each Aggregator to the Members it serves.
	// Every Member must be assigned to exactly one Aggregator.
	Assignments map[NodeID][]MemberID `json:"assignments" yaml:"assignments"`

	// Channels pairs Aggregators. When empty, Aggregators are paired in
	// sorted order and an odd one out forms a solo channel.
	Channels []ChannelConfig `json:"channels,omitempty" yaml:"channels,omitempty"`

	// PeerMaskRange bounds the mask halves exchanged between peers.
	PeerMaskRange masking.Range `json:"peer_mask_range" yaml:"peer_mask_range"`

	// RemaskRange bounds the second-stage re-mask.
	RemaskRange masking.Range `json:"remask_range" yaml:"remask_range"`

	// ReadingRange bounds valid Member readings.
	ReadingRange masking.Range `json:"reading_range" yaml:"reading_range"`

	// Readings fixes the reading of some Members for every round. Other
	// Members draw a uniform reading from ReadingRange each round.
	Readings map[MemberID]int64 `json:"readings,omitempty" yaml:"readings,omitempty"`

	// Phases holds the phase windows, relative to each round start.
	Phases PhaseSchedule `json:"phases" yaml:"phases"`

	// Rounds lists the rounds to run.
	Rounds []RoundConfig `json:"rounds" yaml:"rounds"`

	// RoundInterval is the time between round starts. Zero means the
	// latest phase deadline used by any round.
	RoundInterval time.Duration `json:"round_interval" yaml:"round_interval"`

	// SendJitter is the upper bound of the random delay a Member waits
	// after the collect window opens before reporting.
	SendJitter time.Duration `json:"send_jitter" yaml:"send_jitter"`

	// Network describes the simulated links.
	Network NetworkConfig `json:"network" yaml:"network"`
}

// ChannelConfig lists the Aggregators sharing a combined mask.
type ChannelConfig struct {
	ID          string   `json:"id" yaml:"id"`
	Aggregators []NodeID `json:"aggregators" yaml:"aggregators"`
}

// RoundConfig describes one round.
type RoundConfig struct {
	Type   SessionType `json:"type" yaml:"type"`
	Remask bool        `json:"remask,omitempty" yaml:"remask,omitempty"`
}

// NetworkConfig describes link behaviour of the simulated network.
type NetworkConfig struct {
	// Latency is the base one-way delay of every message.
	Latency time.Duration `json:"latency" yaml:"latency"`
	// Jitter adds a uniform random delay in [0, Jitter], which may reorder messages.
	Jitter time.Duration `json:"jitter" yaml:"jitter"`
	// LossRate is the probability that a message is dropped.
	LossRate float64 `json:"loss_rate" yaml:"loss_rate"`
}

// DefaultSessionConfig returns a configuration with the default ranges and
// phase windows. Members and Assignments still have to be provided.
func DefaultSessionConfig() *SessionConfig {
	return &SessionConfig{
		SessionID:     "session",
		Seed:          "maskagg",
		PeerMaskRange: masking.PeerMaskRange,
		RemaskRange:   masking.RemaskRange,
		ReadingRange:  masking.Range{Low: 0, High: 1_000_000, Inclusive: true},
		Phases: PhaseSchedule{
			Exchange:   PhaseTiming{Start: 0, Deadline: 10 * time.Second},
			Distribute: PhaseTiming{Start: 10 * time.Second, Deadline: 30 * time.Second},
			Collect:    PhaseTiming{Start: 45 * time.Second, Deadline: 60 * time.Second},
		},
		Rounds:        []RoundConfig{{Type: Bidirectional}},
		RoundInterval: 60 * time.Second,
		SendJitter:    9 * time.Millisecond,
		Network: NetworkConfig{
			Latency: 2 * time.Millisecond,
			Jitter:  time.Millisecond,
		},
	}
}

// Validate checks the whole configuration. All failures are *ConfigurationError.
func (c *SessionConfig) Validate() error {
	_, _, err := c.Topology()
	return err
}

// Topology validates the configuration and builds the partition and channels.
func (c *SessionConfig) Topology() (*Partition, []*Channel, error) {
	if err := c.validateParameters(); err != nil {
		return nil, nil, err
	}

	partition, err := NewPartition(c.Members, c.Assignments)
	if err != nil {
		return nil, nil, err
	}

	channels, err := BuildChannels(partition, c.Channels)
	if err != nil {
		return nil, nil, err
	}

	return partition, channels, nil
}

func (c *SessionConfig) validateParameters() error {
	if c.Seed == "" {
		return configErrorf("seed", "must not be empty")
	}
	if c.Members < 0 {
		return configErrorf("members", "must not be negative, got %d", c.Members)
	}

	if err := c.PeerMaskRange.Validate(); err != nil {
		return configErrorf("peer_mask_range", "%s", err)
	}
	if err := c.ReadingRange.Validate(); err != nil {
		return configErrorf("reading_range", "%s", err)
	}

	if len(c.Rounds) == 0 {
		return configErrorf("rounds", "at least one round is required")
	}
	for i, r := range c.Rounds {
		if err := r.Type.Validate(); err != nil {
			return configErrorf("rounds", "round %d: %s", i, err)
		}
		if err := c.Phases.Validate(r.Type); err != nil {
			return err
		}
		if r.Remask {
			if err := c.RemaskRange.Validate(); err != nil {
				return configErrorf("remask_range", "%s", err)
			}
		}
	}

	if err := c.validateRangeArithmetic(); err != nil {
		return err
	}

	if c.RoundInterval < 0 {
		return configErrorf("round_interval", "must not be negative")
	}
	if c.RoundInterval > 0 && c.RoundInterval < c.RoundLength() {
		return configErrorf("round_interval", "%s is shorter than the phase schedule (%s)", c.RoundInterval, c.RoundLength())
	}
	if c.SendJitter < 0 {
		return configErrorf("send_jitter", "must not be negative")
	}

	if c.Network.Latency < 0 || c.Network.Jitter < 0 {
		return configErrorf("network", "latency and jitter must not be negative")
	}
	if c.Network.LossRate < 0 || c.Network.LossRate > 1 {
		return configErrorf("network.loss_rate", "must be within [0, 1], got %v", c.Network.LossRate)
	}

	return nil
}

// validateRangeArithmetic rejects ranges whose sums would wrap when offsets
// and re-masks are added to readings.
func (c *SessionConfig) validateRangeArithmetic() error {
	offsets, err := c.PeerMaskRange.CheckedPlus(c.PeerMaskRange)
	if err != nil {
		return configErrorf("peer_mask_range", "%s", err)
	}
	reports, err := c.ReadingRange.CheckedPlus(offsets)
	if err != nil {
		return configErrorf("reading_range", "%s", err)
	}
	for _, r := range c.Rounds {
		if !r.Remask {
			continue
		}
		if _, err := reports.CheckedPlus(c.RemaskRange); err != nil {
			return configErrorf("remask_range", "%s", err)
		}
		break
	}
	return nil
}

// RoundLength returns the latest phase deadline used by any configured round.
func (c *SessionConfig) RoundLength() time.Duration {
	var length time.Duration
	for _, r := range c.Rounds {
		length = max(length, c.Phases.End(r.Type))
	}
	return length
}

// RoundStart returns the virtual time at which round n starts.
func (c *SessionConfig) RoundStart(n int) time.Duration {
	interval := c.RoundInterval
	if interval == 0 {
		interval = c.RoundLength()
	}
	return time.Duration(n) * interval
}

// Round returns round n of the session. Round configurations are cycled
// when n exceeds the configured list.
func (c *SessionConfig) Round(n int) Round {
	rc := c.Rounds[n%len(c.Rounds)]
	return Round{Number: n, Type: rc.Type, Remask: rc.Remask}
}

// OffsetRange bounds the offsets a Member may receive on a channel.
func (c *SessionConfig) OffsetRange(solo bool) masking.Range {
	if solo {
		return c.PeerMaskRange
	}
	return c.PeerMaskRange.Plus(c.PeerMaskRange)
}

// ReportRange bounds the blinded values an Aggregator may receive.
func (c *SessionConfig) ReportRange(solo, remask bool) masking.Range {
	r := c.ReadingRange.Plus(c.OffsetRange(solo))
	if remask {
		r = r.Plus(c.RemaskRange)
	}
	return r
}
