package outputs

import (
	"fmt"
	"sync"
	"time"

	"github.com/goburrow/modbus"

	"github.com/jbialy/tally_controller/tally"
)

const (
	coilOn  uint16 = 0xff00
	coilOff uint16 = 0x0000
)

// ModbusRelay drives a bank of relay coils over Modbus TCP. Slot i of
// the rendered sequence maps to coil base+i; any lit color closes the
// coil. Close leaves every coil released.
type ModbusRelay struct {
	name string
	addr string
	unit byte
	base uint16

	mu      sync.Mutex
	running bool
	client  modbus.Client
	closer  func() error
	coils   int

	// dial is swapped in tests
	dial func() (modbus.Client, func() error, error)
}

// NewModbusRelay creates an output talking to addr (host:port) as the
// given unit, starting at coil base.
func NewModbusRelay(name, addr string, unit byte, base uint16) *ModbusRelay {
	r := &ModbusRelay{name: name, addr: addr, unit: unit, base: base}
	r.dial = r.dialTCP
	return r
}

func (r *ModbusRelay) Name() string { return r.name }

func (r *ModbusRelay) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

func (r *ModbusRelay) Open() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return nil
	}
	client, closer, err := r.dial()
	if err != nil {
		return fmt.Errorf("connect %s: %w", r.addr, err)
	}
	r.client = client
	r.closer = closer
	r.coils = 0
	r.running = true
	return nil
}

func (r *ModbusRelay) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.running {
		return nil
	}
	r.running = false
	var err error
	for i := 0; i < r.coils; i++ {
		if _, werr := r.client.WriteSingleCoil(r.base+uint16(i), coilOff); werr != nil && err == nil {
			err = fmt.Errorf("release coil %d: %w", r.base+uint16(i), werr)
		}
	}
	if r.closer != nil {
		if cerr := r.closer(); err == nil {
			err = cerr
		}
	}
	r.client = nil
	r.closer = nil
	return err
}

func (r *ModbusRelay) Render(states []tally.State) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.running {
		return fmt.Errorf("%s is not open", r.name)
	}
	if len(states) > r.coils {
		r.coils = len(states)
	}
	for i, st := range states {
		value := coilOff
		if st.Color != tally.Off {
			value = coilOn
		}
		if _, err := r.client.WriteSingleCoil(r.base+uint16(i), value); err != nil {
			return fmt.Errorf("coil %d: %w", r.base+uint16(i), err)
		}
	}
	return nil
}

func (r *ModbusRelay) dialTCP() (modbus.Client, func() error, error) {
	handler := modbus.NewTCPClientHandler(r.addr)
	handler.Timeout = 5 * time.Second
	handler.SlaveId = r.unit
	if err := handler.Connect(); err != nil {
		return nil, nil, err
	}
	return modbus.NewClient(handler), handler.Close, nil
}
