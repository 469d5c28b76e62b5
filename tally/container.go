package tally

import (
	"sync"

	"go.uber.org/multierr"

	"github.com/jbialy/tally_controller/util"
)

// Container is an ordered collection of inputs or outputs with
// uniform open-all / close-all semantics.
type Container struct {
	mu    sync.Mutex
	items []IO
}

func NewContainer() *Container {
	return &Container{}
}

// Add appends a device. Adding the same instance twice is a no-op.
func (c *Container) Add(item IO) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, existing := range c.items {
		if existing == item {
			return
		}
	}
	c.items = append(c.items, item)
}

func (c *Container) Remove(item IO) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, existing := range c.items {
		if existing == item {
			c.items = append(c.items[:i], c.items[i+1:]...)
			return
		}
	}
}

func (c *Container) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Items returns a snapshot of the members in insertion order.
func (c *Container) Items() []IO {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]IO, len(c.items))
	copy(out, c.items)
	return out
}

// OpenAll opens every member, collecting failures instead of stopping
// at the first. A device that fails to open stays closed and is
// skipped by dispatch; the rest run normally.
func (c *Container) OpenAll() error {
	var errs error
	for _, item := range c.Items() {
		if err := item.Open(); err != nil {
			util.Logger.Error().Msgf("failed to open %s: %v", item.Name(), err)
			errs = multierr.Append(errs, &DeviceError{Device: item.Name(), Op: "open", Err: err})
		}
	}
	return errs
}

// CloseAll closes every member with the same partial-failure
// tolerance as OpenAll.
func (c *Container) CloseAll() error {
	var errs error
	for _, item := range c.Items() {
		if err := item.Close(); err != nil {
			util.Logger.Error().Msgf("failed to close %s: %v", item.Name(), err)
			errs = multierr.Append(errs, &DeviceError{Device: item.Name(), Op: "close", Err: err})
		}
	}
	return errs
}
