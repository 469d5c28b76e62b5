// Package outputs contains the tally output variants: hardware
// indicators and network publishers driven by the manager.
package outputs

import (
	"fmt"
	"sync"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	"github.com/jbialy/tally_controller/tally"
)

// LED drives a single indicator on a GPIO pin. Any lit color in the
// rendered sequence energizes the pin; an all-off sequence or Close
// de-energizes it.
type LED struct {
	name string
	pin  string

	mu      sync.Mutex
	running bool
	out     gpio.PinIO

	// initHost and lookup are swapped in tests
	initHost func() error
	lookup   func(name string) gpio.PinIO
}

// NewLED creates an output driving the named pin, for example
// "GPIO18".
func NewLED(name, pin string) *LED {
	return &LED{
		name: name,
		pin:  pin,
		initHost: func() error {
			_, err := host.Init()
			return err
		},
		lookup: gpioreg.ByName,
	}
}

func (l *LED) Name() string { return l.name }

func (l *LED) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

func (l *LED) Open() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running {
		return nil
	}
	if err := l.initHost(); err != nil {
		return fmt.Errorf("host init: %w", err)
	}
	pin := l.lookup(l.pin)
	if pin == nil {
		return fmt.Errorf("no such pin %q", l.pin)
	}
	if err := pin.Out(gpio.Low); err != nil {
		return fmt.Errorf("configure %s: %w", l.pin, err)
	}
	l.out = pin
	l.running = true
	return nil
}

func (l *LED) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.running {
		return nil
	}
	l.running = false
	pin := l.out
	l.out = nil
	if err := pin.Out(gpio.Low); err != nil {
		return err
	}
	return pin.Halt()
}

func (l *LED) Render(states []tally.State) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.running {
		return fmt.Errorf("%s is not open", l.name)
	}
	level := gpio.Low
	for _, st := range states {
		if st.Color != tally.Off {
			level = gpio.High
			break
		}
	}
	return l.out.Out(level)
}
