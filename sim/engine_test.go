package sim

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEngineOrdering(t *testing.T) {
	e := NewEngine()
	var order []string
	record := func(name string) func() {
		return func() { order = append(order, name) }
	}

	e.ScheduleAt(3*time.Second, "b", record("b@3"))
	e.ScheduleAt(time.Second, "a", record("a@1"))
	e.ScheduleAt(3*time.Second, "a", record("a@3"))
	e.ScheduleAt(2*time.Second, "c", func() {
		order = append(order, "c@2")
		// Scheduling in the past runs at the current time, after queued peers.
		e.ScheduleAt(0, "c", record("c@2-late"))
	})

	require.NoError(t, e.RunAll(context.Background()))
	require.Equal(t, []string{"a@1", "c@2", "c@2-late", "b@3", "a@3"}, order)
	require.Equal(t, 3*time.Second, e.Now())
	require.Equal(t, uint64(5), e.Executed())
}

func TestEngineCancel(t *testing.T) {
	e := NewEngine()
	ran := map[string]bool{}

	h1 := e.ScheduleAt(time.Second, "a", func() { ran["a1"] = true })
	e.ScheduleAt(2*time.Second, "a", func() { ran["a2"] = true })
	e.ScheduleAt(2*time.Second, "b", func() { ran["b"] = true })
	h4 := e.ScheduleAt(3*time.Second, "b", func() { ran["b2"] = true })

	require.True(t, e.Cancel(h1))
	require.False(t, e.Cancel(h1))
	require.Equal(t, 3, e.Pending())

	require.Equal(t, 1, e.CancelNode("a"))
	require.Equal(t, 0, e.CancelNode("a"))

	require.NoError(t, e.RunAll(context.Background()))
	require.Equal(t, map[string]bool{"b": true, "b2": true}, ran)
	require.False(t, e.Cancel(h4))
}

func TestEngineRunUntil(t *testing.T) {
	e := NewEngine()
	count := 0
	for i := 1; i <= 5; i++ {
		e.ScheduleAt(time.Duration(i)*time.Second, "n", func() { count++ })
	}

	require.NoError(t, e.Run(context.Background(), 3*time.Second))
	require.Equal(t, 3, count)
	require.Equal(t, 3*time.Second, e.Now())

	require.NoError(t, e.Run(context.Background(), 10*time.Second))
	require.Equal(t, 5, count)
	require.Equal(t, 10*time.Second, e.Now())

	e.Schedule(time.Second, "n", func() { count++ })
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, e.Run(ctx, 20*time.Second), context.Canceled)
	require.Equal(t, 5, count)
	require.Equal(t, 1, e.Pending())
}
