package sim

import (
	"fmt"
	"time"

	"github.com/flashbots/maskagg/masking"
	"github.com/flashbots/maskagg/protocol"
)

// DropFilter discards the messages for which it returns true.
type DropFilter func(from, to protocol.NodeID, payload []byte) bool

// Network is a simulated transport delivering payloads through an Engine
// with configurable latency, jitter and loss. It implements protocol.Transport.
type Network struct {
	sched    protocol.Scheduler
	config   protocol.NetworkConfig
	rng      *masking.Generator
	handlers map[protocol.NodeID]protocol.ReceiveFunc
	filters  []DropFilter
	stats    FlowStats
}

// NewNetwork creates a network scheduling deliveries on sched. Loss and
// jitter decisions are drawn from rng.
func NewNetwork(sched protocol.Scheduler, config protocol.NetworkConfig, rng *masking.Generator) *Network {
	return &Network{
		sched:    sched,
		config:   config,
		rng:      rng,
		handlers: make(map[protocol.NodeID]protocol.ReceiveFunc),
	}
}

// Register implements protocol.Transport.
func (n *Network) Register(node protocol.NodeID, handler protocol.ReceiveFunc) {
	n.handlers[node] = handler
}

// Unregister removes a node. Messages already in flight to it are lost.
func (n *Network) Unregister(node protocol.NodeID) {
	delete(n.handlers, node)
}

// AddDropFilter installs a filter consulted for every sent message.
func (n *Network) AddDropFilter(f DropFilter) {
	n.filters = append(n.filters, f)
}

// Send implements protocol.Transport. Lost messages are not reported to the
// sender; only unknown destinations are.
func (n *Network) Send(from, to protocol.NodeID, payload []byte) error {
	if _, ok := n.handlers[to]; !ok {
		return fmt.Errorf("unknown destination %s", to)
	}

	sentAt := n.sched.Now()
	n.stats.TxPackets++
	n.stats.TxBytes += uint64(len(payload))

	for _, drop := range n.filters {
		if drop(from, to, payload) {
			n.stats.LostPackets++
			return nil
		}
	}
	if n.config.LossRate > 0 && n.rng.Float64() < n.config.LossRate {
		n.stats.LostPackets++
		return nil
	}

	delay := n.config.Latency
	if n.config.Jitter > 0 {
		delay += time.Duration(n.rng.Draw(masking.Range{Low: 0, High: int64(n.config.Jitter), Inclusive: true}))
	}

	data := append([]byte(nil), payload...)
	n.sched.ScheduleAt(sentAt+delay, to, func() {
		handler, ok := n.handlers[to]
		if !ok {
			n.stats.LostPackets++
			return
		}
		n.stats.RxPackets++
		n.stats.RxBytes += uint64(len(data))
		n.stats.TotalDelay += n.sched.Now() - sentAt
		handler(data, from)
	})
	return nil
}

// Stats returns the flow statistics gathered since the last reset.
func (n *Network) Stats() FlowStats {
	return n.stats
}

// ResetStats returns the current statistics and starts a new interval.
func (n *Network) ResetStats() FlowStats {
	s := n.stats
	n.stats = FlowStats{}
	return s
}
