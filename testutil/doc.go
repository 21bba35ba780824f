/*
Package testutil provides test fixtures for the aggregation protocol.

# Configuration Generators

Functions for creating customizable SessionConfig instances:

	// Create default test config: 4 members split over two aggregators
	config := testutil.NewTestConfig()

	// Create custom config with specific options
	customConfig := testutil.NewTestConfig(
	    testutil.WithMembers(10, 3),
	    testutil.WithRounds(protocol.DistributeOnly, protocol.CollectOnly),
	    testutil.WithNetwork(5*time.Millisecond, time.Millisecond, 0.1),
	)

# Scripted Masks

ScriptedSource implements masking.Source with predetermined draws, for tests
that need exact mask values:

	src := &testutil.ScriptedSource{Vectors: []masking.Vector{{5, -3, 10, 0}}}

SumReadings adds up the readings of selected Members, to compare with the
group sums of a round.
*/
package testutil
