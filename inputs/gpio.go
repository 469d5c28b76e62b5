package inputs

import (
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	"github.com/jbialy/tally_controller/tally"
	"github.com/jbialy/tally_controller/util"
)

// GPIOInput turns a physical contact on a GPIO pin into a single
// logical tally: contact closed emits the configured color, contact
// open emits off. The pin is pulled up, so a closed contact reads low.
type GPIOInput struct {
	name  string
	pin   string
	key   tally.Key
	color tally.Color

	mu      sync.Mutex
	running bool
	fn      func(tally.State)

	quit chan struct{}
	done chan struct{}
}

// NewGPIOInput creates an input watching the named pin (for example
// "GPIO17") for the given tally slot. A zero color defaults to red.
func NewGPIOInput(name, pin string, key tally.Key, color tally.Color) *GPIOInput {
	if color == tally.Off {
		color = tally.Red
	}
	return &GPIOInput{name: name, pin: pin, key: key, color: color}
}

func (g *GPIOInput) Name() string { return g.name }

func (g *GPIOInput) Running() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.running
}

func (g *GPIOInput) Notify(fn func(tally.State)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fn = fn
}

func (g *GPIOInput) Open() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.running {
		return nil
	}
	if _, err := host.Init(); err != nil {
		return fmt.Errorf("host init: %w", err)
	}
	pin := gpioreg.ByName(g.pin)
	if pin == nil {
		return fmt.Errorf("no such pin %q", g.pin)
	}
	if err := pin.In(gpio.PullUp, gpio.BothEdges); err != nil {
		return fmt.Errorf("configure %s: %w", g.pin, err)
	}
	g.quit = make(chan struct{})
	g.done = make(chan struct{})
	g.running = true
	go g.watch(pin, g.quit, g.done)
	return nil
}

func (g *GPIOInput) Close() error {
	g.mu.Lock()
	if !g.running {
		g.mu.Unlock()
		return nil
	}
	g.running = false
	quit, done := g.quit, g.done
	g.mu.Unlock()

	close(quit)
	<-done
	return nil
}

// watch polls with a bounded edge wait so Close never hangs on a
// quiet pin.
func (g *GPIOInput) watch(pin gpio.PinIO, quit, done chan struct{}) {
	defer close(done)
	defer func() {
		if err := pin.Halt(); err != nil {
			util.Logger.Warn().Msgf("%s halt: %v", g.name, err)
		}
	}()

	last := pin.Read()
	g.emit(last)
	for {
		select {
		case <-quit:
			return
		default:
		}
		pin.WaitForEdge(500 * time.Millisecond)
		if level := pin.Read(); level != last {
			last = level
			g.emit(level)
		}
	}
}

func (g *GPIOInput) emit(level gpio.Level) {
	color := tally.Off
	if level == gpio.Low { // pulled up, closed contact reads low
		color = g.color
	}
	g.mu.Lock()
	fn := g.fn
	g.mu.Unlock()
	if fn != nil {
		fn(tally.State{Screen: g.key.Screen, Index: g.key.Index, Color: color})
	}
}
