package sim

import (
	"time"
)

// FlowStats aggregates message delivery over an interval.
type FlowStats struct {
	TxPackets   uint64        `json:"tx_packets"`
	RxPackets   uint64        `json:"rx_packets"`
	LostPackets uint64        `json:"lost_packets"`
	TxBytes     uint64        `json:"tx_bytes"`
	RxBytes     uint64        `json:"rx_bytes"`
	TotalDelay  time.Duration `json:"total_delay"`
}

// MeanDelay returns the average delay of delivered messages.
func (s FlowStats) MeanDelay() time.Duration {
	if s.RxPackets == 0 {
		return 0
	}
	return s.TotalDelay / time.Duration(s.RxPackets)
}

// DeliveryRatio returns the fraction of sent messages that were delivered.
func (s FlowStats) DeliveryRatio() float64 {
	if s.TxPackets == 0 {
		return 0
	}
	return float64(s.RxPackets) / float64(s.TxPackets)
}

// Add returns the sum of two intervals.
func (s FlowStats) Add(o FlowStats) FlowStats {
	return FlowStats{
		TxPackets:   s.TxPackets + o.TxPackets,
		RxPackets:   s.RxPackets + o.RxPackets,
		LostPackets: s.LostPackets + o.LostPackets,
		TxBytes:     s.TxBytes + o.TxBytes,
		RxBytes:     s.RxBytes + o.RxBytes,
		TotalDelay:  s.TotalDelay + o.TotalDelay,
	}
}
