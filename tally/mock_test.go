package tally

import (
	"sync"
	"testing"
	"time"
)

type mockInput struct {
	name     string
	failOpen error

	mu      sync.Mutex
	running bool
	opens   int
	closes  int
	fn      func(State)

	blockClose chan struct{}
}

func (m *mockInput) Name() string { return m.name }

func (m *mockInput) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *mockInput) Open() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failOpen != nil {
		return m.failOpen
	}
	if m.running {
		return nil
	}
	m.opens++
	m.running = true
	return nil
}

func (m *mockInput) Close() error {
	if m.blockClose != nil {
		<-m.blockClose
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return nil
	}
	m.closes++
	m.running = false
	return nil
}

func (m *mockInput) Notify(fn func(State)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fn = fn
}

func (m *mockInput) emit(st State) {
	m.mu.Lock()
	fn := m.fn
	m.mu.Unlock()
	if fn != nil {
		fn(st)
	}
}

type mockOutput struct {
	name        string
	failOpen    error
	failRender  error
	renderDelay time.Duration

	mu      sync.Mutex
	running bool
	opens   int
	closes  int
	renders [][]State

	rendered chan []State
}

func newMockOutput(name string) *mockOutput {
	return &mockOutput{name: name, rendered: make(chan []State, 32)}
}

func (m *mockOutput) Name() string { return m.name }

func (m *mockOutput) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *mockOutput) Open() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failOpen != nil {
		return m.failOpen
	}
	if m.running {
		return nil
	}
	m.opens++
	m.running = true
	return nil
}

func (m *mockOutput) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return nil
	}
	m.closes++
	m.running = false
	return nil
}

func (m *mockOutput) Render(states []State) error {
	if m.renderDelay > 0 {
		time.Sleep(m.renderDelay)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failRender != nil {
		return m.failRender
	}
	seq := make([]State, len(states))
	copy(seq, states)
	m.renders = append(m.renders, seq)
	select {
	case m.rendered <- seq:
	default:
	}
	return nil
}

func (m *mockOutput) renderCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.renders)
}

func waitRender(t *testing.T, out *mockOutput) []State {
	t.Helper()
	select {
	case seq := <-out.rendered:
		return seq
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s to render", out.name)
		return nil
	}
}

func drainRenders(out *mockOutput) [][]State {
	var seqs [][]State
	for {
		select {
		case seq := <-out.rendered:
			seqs = append(seqs, seq)
		case <-time.After(100 * time.Millisecond):
			return seqs
		}
	}
}
