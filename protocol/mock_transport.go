package protocol

import (
	"fmt"
	"sync"
)

// MockTransport implements the Transport interface for testing purposes.
// Sent payloads are queued until Flush delivers them in send order.
type MockTransport struct {
	mu       sync.Mutex
	handlers map[NodeID]ReceiveFunc
	queue    []mockDelivery

	// DropFunc, when set, discards the messages for which it returns true.
	DropFunc func(from, to NodeID, payload []byte) bool
}

type mockDelivery struct {
	from, to NodeID
	payload  []byte
}

// NewMockTransport creates an empty mock transport.
func NewMockTransport() *MockTransport {
	return &MockTransport{handlers: make(map[NodeID]ReceiveFunc)}
}

// Register implements the Transport interface.
func (t *MockTransport) Register(node NodeID, handler ReceiveFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers[node] = handler
}

// Send implements the Transport interface.
func (t *MockTransport) Send(from, to NodeID, payload []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.handlers[to]; !ok {
		return fmt.Errorf("unknown destination %s", to)
	}
	t.queue = append(t.queue, mockDelivery{from: from, to: to, payload: payload})
	return nil
}

// Pending returns the number of queued messages.
func (t *MockTransport) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.queue)
}

// Flush delivers queued messages, including those sent by handlers while
// flushing, and returns the number delivered.
func (t *MockTransport) Flush() int {
	delivered := 0
	for {
		t.mu.Lock()
		if len(t.queue) == 0 {
			t.mu.Unlock()
			return delivered
		}
		d := t.queue[0]
		t.queue = t.queue[1:]
		handler := t.handlers[d.to]
		drop := t.DropFunc != nil && t.DropFunc(d.from, d.to, d.payload)
		t.mu.Unlock()

		if drop {
			continue
		}
		handler(d.payload, d.from)
		delivered++
	}
}

// Inject delivers payload to a node immediately, bypassing the queue.
func (t *MockTransport) Inject(from, to NodeID, payload []byte) {
	t.mu.Lock()
	handler := t.handlers[to]
	t.mu.Unlock()
	handler(payload, from)
}
