package tally

// IO is the lifecycle contract shared by inputs and outputs. Open and
// Close are idempotent: opening an open device or closing a closed
// one is a no-op. A failed Open leaves the device closed.
type IO interface {
	Name() string
	Running() bool
	Open() error
	Close() error
}

// Input is a protocol listener producing tally state changes for zero
// or more logical tallies. Events for the same tally are delivered in
// protocol order; nothing is guaranteed across tallies.
type Input interface {
	IO
	// Notify registers the callback invoked for every observed state
	// change. Must be called before Open.
	Notify(func(State))
}

// Output renders a tally state snapshot on a device. The sequence
// carries one State per configured slot, in slot order. Render never
// corrupts the display on failure: it reports the error and the
// device holds its last good state.
type Output interface {
	IO
	Render(states []State) error
}
