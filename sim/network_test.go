package sim

import (
	"context"
	"testing"
	"time"

	"github.com/flashbots/maskagg/masking"
	"github.com/flashbots/maskagg/protocol"
	"github.com/stretchr/testify/require"
)

type delivery struct {
	at      time.Duration
	from    protocol.NodeID
	payload string
}

func newTestNetwork(config protocol.NetworkConfig) (*Engine, *Network, *[]delivery) {
	e := NewEngine()
	n := NewNetwork(e, config, masking.NewGenerator([masking.SeedSize]byte{1}))
	var got []delivery
	n.Register("dst", func(payload []byte, from protocol.NodeID) {
		got = append(got, delivery{at: e.Now(), from: from, payload: string(payload)})
	})
	n.Register("src", func([]byte, protocol.NodeID) {})
	return e, n, &got
}

func TestNetworkDelivery(t *testing.T) {
	e, n, got := newTestNetwork(protocol.NetworkConfig{Latency: 5 * time.Millisecond})

	e.ScheduleAt(time.Second, "src", func() {
		require.NoError(t, n.Send("src", "dst", []byte("hello")))
	})
	require.Error(t, n.Send("src", "nowhere", []byte("x")))

	require.NoError(t, e.RunAll(context.Background()))
	require.Equal(t, []delivery{{at: time.Second + 5*time.Millisecond, from: "src", payload: "hello"}}, *got)

	stats := n.ResetStats()
	require.Equal(t, uint64(1), stats.TxPackets)
	require.Equal(t, uint64(1), stats.RxPackets)
	require.Equal(t, uint64(5), stats.RxBytes)
	require.Equal(t, 5*time.Millisecond, stats.MeanDelay())
	require.Equal(t, 1.0, stats.DeliveryRatio())
	require.Equal(t, FlowStats{}, n.Stats())
}

func TestNetworkLossAndFilters(t *testing.T) {
	e, n, got := newTestNetwork(protocol.NetworkConfig{LossRate: 1})
	require.NoError(t, n.Send("src", "dst", []byte("lost")))
	require.NoError(t, e.RunAll(context.Background()))
	require.Empty(t, *got)
	require.Equal(t, uint64(1), n.Stats().LostPackets)
	require.Equal(t, 0.0, n.Stats().DeliveryRatio())

	e, n, got = newTestNetwork(protocol.NetworkConfig{})
	n.AddDropFilter(func(_, _ protocol.NodeID, payload []byte) bool { return string(payload) == "drop me" })
	require.NoError(t, n.Send("src", "dst", []byte("drop me")))
	require.NoError(t, n.Send("src", "dst", []byte("keep me")))
	require.NoError(t, e.RunAll(context.Background()))
	require.Len(t, *got, 1)
	require.Equal(t, "keep me", (*got)[0].payload)
}

func TestNetworkJitterStaysBounded(t *testing.T) {
	e, n, got := newTestNetwork(protocol.NetworkConfig{Latency: 10 * time.Millisecond, Jitter: 4 * time.Millisecond})
	for i := 0; i < 100; i++ {
		require.NoError(t, n.Send("src", "dst", []byte{byte(i)}))
	}
	require.NoError(t, e.RunAll(context.Background()))
	require.Len(t, *got, 100)

	for i, d := range *got {
		require.GreaterOrEqual(t, d.at, 10*time.Millisecond)
		require.LessOrEqual(t, d.at, 14*time.Millisecond)
		if i > 0 {
			require.GreaterOrEqual(t, d.at, (*got)[i-1].at)
		}
	}
}

func TestTeardownDropsInFlightMessages(t *testing.T) {
	e, n, got := newTestNetwork(protocol.NetworkConfig{Latency: time.Second})
	require.NoError(t, n.Send("src", "dst", []byte("a")))
	require.Equal(t, 1, e.CancelNode("dst"))
	require.NoError(t, e.RunAll(context.Background()))
	require.Empty(t, *got)

	require.NoError(t, n.Send("src", "dst", []byte("b")))
	n.Unregister("dst")
	require.NoError(t, e.RunAll(context.Background()))
	require.Empty(t, *got)
	require.Equal(t, uint64(1), n.Stats().LostPackets)
}
