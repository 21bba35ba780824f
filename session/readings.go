package session

import (
	"github.com/flashbots/maskagg/masking"
	"github.com/flashbots/maskagg/protocol"
)

const readingStream = "/reading"

// configReadings serves the fixed readings of the configuration and draws
// the others uniformly from the reading range, one stream per Member and round.
type configReadings struct {
	fixed map[protocol.MemberID]int64
	rng   masking.Range
	seed  []byte
}

func newConfigReadings(cfg *protocol.SessionConfig, seed []byte) *configReadings {
	return &configReadings{fixed: cfg.Readings, rng: cfg.ReadingRange, seed: seed}
}

func (c *configReadings) Reading(member protocol.MemberID, round int) int64 {
	if v, ok := c.fixed[member]; ok {
		return v
	}
	g, err := masking.NewDerivedGenerator(c.seed, round, protocol.MemberNode(member)+readingStream)
	if err != nil {
		// The seed is validated with the configuration.
		panic(err)
	}
	return g.Draw(c.rng)
}
