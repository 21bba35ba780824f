package session

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/flashbots/maskagg/masking"
	"github.com/flashbots/maskagg/protocol"
	"github.com/flashbots/maskagg/report"
	"github.com/flashbots/maskagg/sim"
	"github.com/flashbots/maskagg/testutil"
	"github.com/stretchr/testify/require"
)

var scenarioReadings = map[protocol.MemberID]int64{0: 7, 1: 11, 2: 2, 3: 5}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newSession(t *testing.T, cfg *protocol.SessionConfig, opts ...Option) *Session {
	s, err := New(cfg, append([]Option{WithLogger(quietLogger())}, opts...)...)
	require.NoError(t, err)
	return s
}

func sumsByAggregator(r *report.RoundReport) map[protocol.NodeID]protocol.GroupSum {
	sums := make(map[protocol.NodeID]protocol.GroupSum)
	for _, ch := range r.Channels {
		for _, agg := range ch.Aggregators {
			sums[agg.Aggregator] = agg.Sum
		}
	}
	return sums
}

func TestSessionScenarioA(t *testing.T) {
	cfg := testutil.NewTestConfig(testutil.WithReadings(scenarioReadings))
	collector := &report.Collector{}
	s := newSession(t, cfg, WithReporter(collector))

	// Observe both halves once the distribution window has closed.
	var combinedA, combinedB masking.Vector
	s.Engine().ScheduleAt(cfg.Phases.Distribute.Deadline, "observer", func() {
		a, _ := s.Aggregator("agg-A")
		b, _ := s.Aggregator("agg-B")
		combinedA, combinedB = a.CombinedMask(), b.CombinedMask()
	})

	reports, err := s.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, reports, 1)
	require.Equal(t, reports, collector.Reports)

	require.Len(t, combinedA, 4)
	require.Equal(t, combinedA, combinedB)
	for _, x := range combinedA {
		require.True(t, cfg.OffsetRange(false).Contains(x))
	}

	r := reports[0]
	require.Equal(t, "test-session", r.SessionID)
	require.Equal(t, protocol.Bidirectional, r.Type)
	require.Equal(t, 4, r.Contributed)
	require.Equal(t, "100", r.Completeness.String())
	require.Empty(t, r.Gaps)

	sums := sumsByAggregator(r)
	require.Equal(t, int64(18), sums["agg-A"].Sum)
	require.Equal(t, int64(7), sums["agg-B"].Sum)

	batch := r.Channels[0].Aggregators[1].Batch
	require.Equal(t, []protocol.MemberID{2, 3}, batch.Members)
	values, err := protocol.DecodeVector(batch.Payload)
	require.NoError(t, err)
	require.Equal(t, masking.Vector{2 + combinedA[2], 5 + combinedA[3]}, values)

	require.Equal(t, int64(4), r.MemberCounters.Sent)
	require.Equal(t, int64(4), r.MemberCounters.Received)
	// Two halves plus four offsets.
	require.Equal(t, int64(6), r.AggregatorCounters.Sent)
	require.Equal(t, uint64(10), r.Flow.TxPackets)
	require.Equal(t, 1.0, r.DeliveryRatio)
}

func TestSessionScenarioC(t *testing.T) {
	cfg := testutil.NewTestConfig(testutil.WithReadings(scenarioReadings))
	s := newSession(t, cfg, WithDropFilter(sim.DropReportsFrom(2)))

	r, err := s.RunRound(context.Background())
	require.NoError(t, err)

	require.Equal(t, 3, r.Contributed)
	require.Equal(t, "75", r.Completeness.String())
	require.Equal(t, []report.Gap{{Member: 2, Aggregator: "agg-B", Reason: protocol.GapNotReceived}}, r.Gaps)

	sums := sumsByAggregator(r)
	require.Equal(t, protocol.GroupSum{Count: 2, Sum: 18, Estimate: 18}, sums["agg-A"])
	require.Equal(t, protocol.GroupSum{Count: 1, Sum: 5, Estimate: 5}, sums["agg-B"])
	require.Equal(t, uint64(1), r.Flow.LostPackets)
}

func TestSessionOffsetLost(t *testing.T) {
	cfg := testutil.NewTestConfig(testutil.WithReadings(scenarioReadings))
	s := newSession(t, cfg, WithDropFilter(sim.DropOffsetsTo(2)))

	r, err := s.RunRound(context.Background())
	require.NoError(t, err)

	require.Equal(t, 3, r.Contributed)
	require.Equal(t, "75", r.Completeness.String())
	require.Equal(t, []report.Gap{{Member: 2, Aggregator: "agg-B", Reason: protocol.GapNoOffset}}, r.Gaps)

	sums := sumsByAggregator(r)
	require.Equal(t, protocol.GroupSum{Count: 2, Sum: 18, Estimate: 18}, sums["agg-A"])
	require.Equal(t, protocol.GroupSum{Count: 1, Sum: 5, Estimate: 5}, sums["agg-B"])
	require.Equal(t, int64(3), r.MemberCounters.Sent)
	require.Equal(t, uint64(1), r.Flow.LostPackets)
}

func TestSessionLostMaskExchange(t *testing.T) {
	cfg := testutil.NewTestConfig(testutil.WithReadings(scenarioReadings))
	s := newSession(t, cfg, WithDropFilter(sim.DropKind(protocol.KindMaskExchange)))

	r, err := s.RunRound(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, r.Contributed)
	require.Len(t, r.Gaps, 4)
	for _, gap := range r.Gaps {
		require.Equal(t, protocol.GapNoOffset, gap.Reason)
	}
	// Nothing beyond the two lost halves was sent.
	require.Equal(t, uint64(2), r.Flow.TxPackets)
	require.Equal(t, uint64(2), r.Flow.LostPackets)
}

func TestSessionReadingSource(t *testing.T) {
	readings := protocol.ConstantReadings{
		Values:  map[protocol.MemberID]int64{3: 2_000_000},
		Default: 10,
	}
	s := newSession(t, testutil.NewTestConfig(), WithReadingSource(readings))

	r, err := s.RunRound(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, r.Contributed)
	require.Equal(t, []report.Gap{{Member: 3, Aggregator: "agg-B", Reason: protocol.GapReadingOutOfRange}}, r.Gaps)
	require.Equal(t, int64(30), r.GroupSum().Sum)
	require.Equal(t, int64(1), r.MemberCounters.RangeErrors)
}

func TestSessionIsReproducible(t *testing.T) {
	run := func(seed string) []byte {
		cfg := testutil.NewTestConfig(
			testutil.WithSeed(seed),
			testutil.WithMembers(9, 3),
			testutil.WithRounds(protocol.Bidirectional, protocol.Bidirectional),
			testutil.WithRemask(),
			testutil.WithNetwork(3*time.Millisecond, 2*time.Millisecond, 0.2),
		)
		reports, err := newSession(t, cfg).Run(context.Background())
		require.NoError(t, err)
		data, err := json.Marshal(reports)
		require.NoError(t, err)
		return data
	}

	first := run("seed-1")
	require.Equal(t, first, run("seed-1"))
	require.NotEqual(t, first, run("seed-2"))
}

func TestSessionRejectsInvalidConfiguration(t *testing.T) {
	engine := sim.NewEngine()
	cfg := testutil.NewTestConfig(testutil.WithAssignments(4, map[protocol.NodeID][]protocol.MemberID{
		"agg-A": {0, 1, 2},
		"agg-B": {2, 3},
	}))

	_, err := New(cfg, WithEngine(engine), WithLogger(quietLogger()))
	var configErr *protocol.ConfigurationError
	require.ErrorAs(t, err, &configErr)
	require.Equal(t, 0, engine.Pending())

	cfg = testutil.NewTestConfig(testutil.WithRounds("weekly"))
	_, err = New(cfg, WithEngine(engine), WithLogger(quietLogger()))
	require.ErrorAs(t, err, &configErr)
	require.Equal(t, 0, engine.Pending())
}

func TestSessionDistributeThenCollect(t *testing.T) {
	cfg := testutil.NewTestConfig(
		testutil.WithReadings(scenarioReadings),
		testutil.WithRounds(protocol.DistributeOnly, protocol.CollectOnly),
	)
	s := newSession(t, cfg)

	reports, err := s.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, reports, 2)

	distribute, collect := reports[0], reports[1]
	require.Equal(t, protocol.DistributeOnly, distribute.Type)
	require.Equal(t, 4, distribute.Contributed)
	require.Equal(t, 0, distribute.GroupSum().Count)
	require.Equal(t, int64(0), distribute.MemberCounters.Sent)

	require.Equal(t, protocol.CollectOnly, collect.Type)
	require.Equal(t, cfg.RoundStart(1), collect.StartedAt)
	require.Equal(t, 4, collect.Contributed)
	require.Equal(t, protocol.GroupSum{Count: 4, Sum: 25, Estimate: 25}, collect.GroupSum())
	// Collect-only rounds exchange no masks and send no offsets.
	require.Equal(t, int64(0), collect.AggregatorCounters.Sent)

	// A third round cycles back to distribution.
	third, err := s.RunRound(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, third.Round)
	require.Equal(t, protocol.DistributeOnly, third.Type)
}

func TestSessionCollectWithoutDistribution(t *testing.T) {
	cfg := testutil.NewTestConfig(testutil.WithRounds(protocol.CollectOnly))
	r, err := newSession(t, cfg).RunRound(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, r.Contributed)
	require.True(t, r.Completeness.IsZero())
	require.Len(t, r.Gaps, 4)
	for _, gap := range r.Gaps {
		require.Equal(t, protocol.GapNoOffset, gap.Reason)
	}
}

func TestSessionTeardown(t *testing.T) {
	cfg := testutil.NewTestConfig(testutil.WithReadings(scenarioReadings))
	s := newSession(t, cfg)
	s.Teardown(protocol.MemberNode(1))

	r, err := s.RunRound(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, r.Contributed)
	require.Equal(t, []report.Gap{{Member: 1, Aggregator: "agg-A", Reason: protocol.GapTornDown}}, r.Gaps)
	require.Equal(t, int64(7), sumsByAggregator(r)["agg-A"].Sum)

	// Without its peer an aggregator has no combined mask to distribute.
	s.Teardown("agg-B")
	r, err = s.RunRound(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, r.Contributed)
	for _, gap := range r.Gaps {
		if gap.Member != 1 {
			require.Equal(t, protocol.GapNoOffset, gap.Reason)
		}
	}
}

func TestSessionLateOffsets(t *testing.T) {
	phases := protocol.DefaultSessionConfig().Phases
	phases.Distribute = protocol.PhaseTiming{Start: 10 * time.Second, Deadline: 10*time.Second + time.Millisecond}
	cfg := testutil.NewTestConfig(
		testutil.WithPhases(phases),
		testutil.WithNetwork(5*time.Millisecond, 0, 0),
	)

	r, err := newSession(t, cfg).RunRound(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, r.Contributed)
	require.Equal(t, int64(4), r.MemberCounters.Late)
	for _, gap := range r.Gaps {
		require.Equal(t, protocol.GapNoOffset, gap.Reason)
	}
}

func TestSessionLossyNetwork(t *testing.T) {
	readings := make(map[protocol.MemberID]int64)
	for m := range protocol.MemberID(20) {
		readings[m] = int64(100 + m)
	}
	cfg := testutil.NewTestConfig(
		testutil.WithMembers(20, 5),
		testutil.WithReadings(readings),
		testutil.WithRounds(protocol.Bidirectional, protocol.Bidirectional, protocol.Bidirectional),
		testutil.WithNetwork(2*time.Millisecond, 4*time.Millisecond, 0.25),
	)
	s := newSession(t, cfg)
	require.True(t, s.Channels()[2].Solo())

	reports, err := s.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, reports, 3)

	for _, r := range reports {
		require.Equal(t, r.Contributed+len(r.Gaps), r.Members)
		require.Less(t, r.DeliveryRatio, 1.0)

		// Masks cancel for exactly the collected members.
		for _, ch := range r.Channels {
			for _, agg := range ch.Aggregators {
				require.Equal(t, agg.Collected, len(agg.Batch.Members))
				require.Equal(t, testutil.SumReadings(readings, agg.Batch.Members...), agg.Sum.Sum)
			}
		}
	}
}

func TestSessionRemaskEstimate(t *testing.T) {
	cfg := testutil.NewTestConfig(
		testutil.WithReadings(scenarioReadings),
		testutil.WithRemask(),
	)
	r, err := newSession(t, cfg).RunRound(context.Background())
	require.NoError(t, err)

	sum := r.GroupSum()
	require.True(t, sum.Remasked)
	require.Equal(t, 4, sum.Count)

	// Each re-mask lies in [50, 99], so the raw sum is offset by 200..396.
	require.GreaterOrEqual(t, sum.Sum, int64(25+200))
	require.LessOrEqual(t, sum.Sum, int64(25+396))
	require.InDelta(t, 25, sum.Estimate, 4*24.5)
}

func TestSessionHonoursCancellation(t *testing.T) {
	s := newSession(t, testutil.NewTestConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.RunRound(ctx)
	require.ErrorIs(t, err, context.Canceled)
}
