package sim

import (
	"container/heap"
	"context"
	"time"

	"github.com/flashbots/maskagg/protocol"
)

type event struct {
	at     time.Duration
	seq    uint64
	handle protocol.Handle
	owner  protocol.NodeID
	action func()
	index  int
}

// eventQueue orders events by virtual time, then by scheduling order.
type eventQueue []*event

func (q eventQueue) Len() int { return len(q) }

func (q eventQueue) Less(i, j int) bool {
	if q[i].at != q[j].at {
		return q[i].at < q[j].at
	}
	return q[i].seq < q[j].seq
}

func (q eventQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *eventQueue) Push(x any) {
	e := x.(*event)
	e.index = len(*q)
	*q = append(*q, e)
}

func (q *eventQueue) Pop() any {
	old := *q
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*q = old[:n-1]
	return e
}

// Engine is a single-threaded discrete-event scheduler over virtual time.
// It implements protocol.Scheduler. Not safe for concurrent use.
type Engine struct {
	now      time.Duration
	seq      uint64
	queue    eventQueue
	pending  map[protocol.Handle]*event
	byOwner  map[protocol.NodeID]map[protocol.Handle]struct{}
	executed uint64
}

// NewEngine creates an engine at virtual time zero.
func NewEngine() *Engine {
	return &Engine{
		pending: make(map[protocol.Handle]*event),
		byOwner: make(map[protocol.NodeID]map[protocol.Handle]struct{}),
	}
}

// Now returns the current virtual time.
func (e *Engine) Now() time.Duration {
	return e.now
}

// ScheduleAt runs action at virtual time at on behalf of owner. Times in
// the past are moved to the current time, keeping per-node ordering
// nondecreasing.
func (e *Engine) ScheduleAt(at time.Duration, owner protocol.NodeID, action func()) protocol.Handle {
	if at < e.now {
		at = e.now
	}
	e.seq++
	ev := &event{
		at:     at,
		seq:    e.seq,
		handle: protocol.Handle(e.seq),
		owner:  owner,
		action: action,
	}
	heap.Push(&e.queue, ev)
	e.pending[ev.handle] = ev

	owned, ok := e.byOwner[owner]
	if !ok {
		owned = make(map[protocol.Handle]struct{})
		e.byOwner[owner] = owned
	}
	owned[ev.handle] = struct{}{}

	return ev.handle
}

// Schedule runs action after delay.
func (e *Engine) Schedule(delay time.Duration, owner protocol.NodeID, action func()) protocol.Handle {
	return e.ScheduleAt(e.now+delay, owner, action)
}

// Cancel removes a pending action. Returns false if it already ran or was
// cancelled before.
func (e *Engine) Cancel(h protocol.Handle) bool {
	ev, ok := e.pending[h]
	if !ok {
		return false
	}
	heap.Remove(&e.queue, ev.index)
	e.forget(ev)
	return true
}

// CancelNode cancels every pending action owned by a node and returns how
// many were cancelled.
func (e *Engine) CancelNode(owner protocol.NodeID) int {
	cancelled := 0
	for h := range e.byOwner[owner] {
		if e.Cancel(h) {
			cancelled++
		}
	}
	return cancelled
}

func (e *Engine) forget(ev *event) {
	delete(e.pending, ev.handle)
	if owned, ok := e.byOwner[ev.owner]; ok {
		delete(owned, ev.handle)
		if len(owned) == 0 {
			delete(e.byOwner, ev.owner)
		}
	}
}

// Pending returns the number of scheduled actions.
func (e *Engine) Pending() int {
	return len(e.queue)
}

// Executed returns the number of actions run so far.
func (e *Engine) Executed() uint64 {
	return e.executed
}

// Step runs the next action. Returns false if nothing is scheduled.
func (e *Engine) Step() bool {
	if len(e.queue) == 0 {
		return false
	}
	ev := heap.Pop(&e.queue).(*event)
	e.forget(ev)
	e.now = ev.at
	e.executed++
	ev.action()
	return true
}

// Run executes actions scheduled at or before until, in time order, and
// leaves the clock at until. The context is checked between actions.
func (e *Engine) Run(ctx context.Context, until time.Duration) error {
	for len(e.queue) > 0 && e.queue[0].at <= until {
		if err := ctx.Err(); err != nil {
			return err
		}
		e.Step()
	}
	if until > e.now {
		e.now = until
	}
	return ctx.Err()
}

// RunAll executes actions until none remain.
func (e *Engine) RunAll(ctx context.Context) error {
	for len(e.queue) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		e.Step()
	}
	return nil
}
