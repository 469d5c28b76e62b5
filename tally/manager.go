package tally

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/jbialy/tally_controller/util"
)

type managerState int

const (
	managerUnstarted managerState = iota
	managerRunning
	managerStopped
)

func (s managerState) String() string {
	switch s {
	case managerRunning:
		return "running"
	case managerStopped:
		return "stopped"
	}
	return "unstarted"
}

// DefaultCloseGrace bounds how long Stop waits for inputs to close
// before reporting them and moving on.
const DefaultCloseGrace = 5 * time.Second

type cached struct {
	State
	seq uint64
}

// Binding is the monitor view of one output registration.
type Binding struct {
	Output  string `json:"output"`
	Running bool   `json:"running"`
	Config  Config `json:"config"`
}

// Manager owns the inputs, the outputs and the routing between them.
// Every state change received from any input updates a last-writer-wins
// cache and is fanned out to the outputs whose binding references the
// affected tally.
//
// The routing table and the cache are confined to a single dispatch
// goroutine once the manager is running; inputs and outputs never
// touch them. A manager is single use: once stopped it cannot be
// restarted.
type Manager struct {
	inputs  *Container
	outputs *Container

	mu    sync.Mutex
	state managerState

	bindings map[Output]Config
	workers  map[Output]*renderWorker
	cache    map[Key]cached
	seq      uint64
	onUpdate func(State)

	events chan State
	cmds   chan func()
	quit   chan struct{}
	done   chan struct{}

	closeGrace time.Duration
}

func NewManager() *Manager {
	return &Manager{
		inputs:     NewContainer(),
		outputs:    NewContainer(),
		bindings:   make(map[Output]Config),
		workers:    make(map[Output]*renderWorker),
		cache:      make(map[Key]cached),
		events:     make(chan State, 64),
		cmds:       make(chan func()),
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
		closeGrace: DefaultCloseGrace,
	}
}

// SetCloseGrace overrides the Stop grace period. Must be called
// before Start.
func (m *Manager) SetCloseGrace(d time.Duration) {
	m.closeGrace = d
}

// OnUpdate registers a callback invoked from the dispatch loop for
// every accepted state change. Must be called before Start.
func (m *Manager) OnUpdate(fn func(State)) {
	m.onUpdate = fn
}

func (m *Manager) Inputs() *Container  { return m.inputs }
func (m *Manager) Outputs() *Container { return m.outputs }

func (m *Manager) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == managerRunning
}

// AddInput registers an input and subscribes to its event stream. If
// the manager is already running the input is opened immediately.
func (m *Manager) AddInput(in Input) {
	in.Notify(m.enqueue)
	m.inputs.Add(in)
	if m.Running() && !in.Running() {
		if err := in.Open(); err != nil {
			util.Logger.Error().Msgf("failed to open %s: %v", in.Name(), err)
		}
	}
}

// Bind registers an output under the given tally binding, replacing
// any previous binding for the same output. Re-binding an output that
// is already displaying triggers an immediate re-render from cached
// state, so a config reload takes effect without waiting for network
// traffic. An invalid config is refused and the output left untouched.
func (m *Manager) Bind(out Output, cfg Config) error {
	if cfg == nil {
		return configErrorf("output %s has no tally binding", out.Name())
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	m.outputs.Add(out)
	if m.Running() && !out.Running() {
		if err := out.Open(); err != nil {
			util.Logger.Error().Msgf("failed to open %s: %v", out.Name(), err)
		}
	}
	m.exec(func() {
		prev, had := m.bindings[out]
		m.bindings[out] = cfg
		w, ok := m.workers[out]
		if !ok && m.state == managerRunning {
			w = newRenderWorker(out)
			m.workers[out] = w
			w.start()
			ok = true
		}
		if ok && (!had || !prev.Equal(cfg)) && out.Running() {
			w.submit(m.sequence(cfg))
		}
	})
	return nil
}

// Unbind removes an output from the routing table. The device is left
// at its last rendered state.
func (m *Manager) Unbind(out Output) {
	m.outputs.Remove(out)
	m.exec(func() {
		delete(m.bindings, out)
		if w, ok := m.workers[out]; ok {
			delete(m.workers, out)
			w.stop(m.closeGrace)
		}
	})
}

// Start opens all outputs, then all inputs, so every output is ready
// before the first event can arrive. Open failures are collected, not
// fatal: devices that failed stay closed and excluded from dispatch.
func (m *Manager) Start() error {
	m.mu.Lock()
	if m.state != managerUnstarted {
		m.mu.Unlock()
		return fmt.Errorf("manager already %s", m.state)
	}
	m.state = managerRunning
	for out := range m.bindings {
		w := newRenderWorker(out)
		m.workers[out] = w
		w.start()
	}
	m.mu.Unlock()

	util.Logger.Info().Msg("manager starting")
	go m.run()

	var errs error
	errs = multierr.Append(errs, m.outputs.OpenAll())
	m.exec(func() {
		for out, cfg := range m.bindings {
			if out.Running() {
				m.workers[out].submit(m.sequence(cfg))
			}
		}
	})
	errs = multierr.Append(errs, m.inputs.OpenAll())
	util.Logger.Info().Msg("manager running")
	return errs
}

// Stop closes all inputs first, so no new events arrive during
// teardown, then stops dispatch and closes all outputs. It always
// runs to completion, collecting errors; an input that does not close
// within the grace period is reported but does not block shutdown.
func (m *Manager) Stop() error {
	m.mu.Lock()
	if m.state != managerRunning {
		m.mu.Unlock()
		return nil
	}
	m.state = managerStopped
	m.mu.Unlock()

	util.Logger.Info().Msg("manager stopping")
	var errs error
	errs = multierr.Append(errs, m.closeInputs())

	close(m.quit)
	<-m.done

	m.mu.Lock()
	workers := make([]*renderWorker, 0, len(m.workers))
	for out, w := range m.workers {
		delete(m.workers, out)
		workers = append(workers, w)
	}
	m.mu.Unlock()
	for _, w := range workers {
		w.stop(m.closeGrace)
	}

	errs = multierr.Append(errs, m.outputs.CloseAll())
	util.Logger.Info().Msg("manager stopped")
	return errs
}

// States returns the cached tally states, ordered by key.
func (m *Manager) States() []State {
	var states []State
	m.exec(func() {
		states = make([]State, 0, len(m.cache))
		for _, c := range m.cache {
			states = append(states, c.State)
		}
	})
	sort.Slice(states, func(i, j int) bool {
		if states[i].Screen != states[j].Screen {
			return states[i].Screen < states[j].Screen
		}
		return states[i].Index < states[j].Index
	})
	return states
}

// Bindings returns the monitor view of the routing table, ordered by
// output name.
func (m *Manager) Bindings() []Binding {
	var bindings []Binding
	m.exec(func() {
		bindings = make([]Binding, 0, len(m.bindings))
		for out, cfg := range m.bindings {
			bindings = append(bindings, Binding{Output: out.Name(), Running: out.Running(), Config: cfg})
		}
	})
	sort.Slice(bindings, func(i, j int) bool {
		return bindings[i].Output < bindings[j].Output
	})
	return bindings
}

// enqueue is the callback handed to every input. It may be called
// from any goroutine and never touches manager state directly.
func (m *Manager) enqueue(st State) {
	select {
	case m.events <- st:
	case <-m.quit:
	}
}

// exec runs fn with exclusive access to the routing table and cache:
// directly under the lock before Start, inside the dispatch loop once
// the loop exists, under the lock again after the loop has exited.
func (m *Manager) exec(fn func()) {
	m.mu.Lock()
	if m.state == managerUnstarted {
		defer m.mu.Unlock()
		fn()
		return
	}
	m.mu.Unlock()

	ran := make(chan struct{})
	select {
	case m.cmds <- func() {
		fn()
		close(ran)
	}:
		<-ran
	case <-m.done:
		m.mu.Lock()
		fn()
		m.mu.Unlock()
	}
}

func (m *Manager) run() {
	defer close(m.done)
	for {
		select {
		case st := <-m.events:
			m.dispatch(st)
		case fn := <-m.cmds:
			fn()
		case <-m.quit:
			return
		}
	}
}

// dispatch applies one state change: update the cache (last writer
// wins, by arrival order at this loop) and hand each affected output
// its recomputed render sequence. Fan-out goes through per-output
// mailboxes, so one slow output cannot delay the others.
func (m *Manager) dispatch(st State) {
	m.seq++
	m.cache[st.Key()] = cached{State: st, seq: m.seq}
	util.Logger.Debug().Msgf("tally %s", st)
	if m.onUpdate != nil {
		m.onUpdate(st)
	}
	for out, cfg := range m.bindings {
		if !cfg.Matches(st.Key()) || !out.Running() {
			continue
		}
		if w, ok := m.workers[out]; ok {
			w.submit(m.sequence(cfg))
		}
	}
}

// sequence builds an output's full render sequence from the cache,
// one State per slot in slot order, substituting Off for any slot
// whose tally has not reported yet.
func (m *Manager) sequence(cfg Config) []State {
	slots := cfg.Slots()
	seq := make([]State, len(slots))
	for i, k := range slots {
		if st, ok := m.lookup(k); ok {
			seq[i] = st
		} else {
			seq[i] = State{Screen: k.Screen, Index: k.Index, Color: Off}
		}
	}
	return seq
}

// lookup resolves a slot against the cache. Slots bound to the
// broadcast screen match states from any screen; the most recently
// received wins.
func (m *Manager) lookup(k Key) (State, bool) {
	if c, ok := m.cache[k]; ok {
		return c.State, true
	}
	var best cached
	found := false
	for key, c := range m.cache {
		if k.Matches(key) && (!found || c.seq > best.seq) {
			best = c
			found = true
		}
	}
	return best.State, found
}

func (m *Manager) closeInputs() error {
	items := m.inputs.Items()
	type result struct {
		idx int
		err error
	}
	results := make(chan result, len(items))
	for i, item := range items {
		go func(i int, item IO) {
			results <- result{i, item.Close()}
		}(i, item)
	}

	pending := make(map[int]struct{}, len(items))
	for i := range items {
		pending[i] = struct{}{}
	}
	timeout := time.After(m.closeGrace)
	var errs error
	for len(pending) > 0 {
		select {
		case r := <-results:
			delete(pending, r.idx)
			if r.err != nil {
				errs = multierr.Append(errs, &DeviceError{Device: items[r.idx].Name(), Op: "close", Err: r.err})
			}
		case <-timeout:
			for i := range pending {
				util.Logger.Warn().Msgf("%s did not close within %s", items[i].Name(), m.closeGrace)
				errs = multierr.Append(errs, &DeviceError{Device: items[i].Name(), Op: "close", Err: errors.New("grace period expired")})
			}
			return errs
		}
	}
	return errs
}
