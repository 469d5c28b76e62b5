package outputs

import (
	"errors"
	"image"
	"image/color"
	"time"

	MQTT "github.com/eclipse/paho.mqtt.golang"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
)

// fakePin records output levels written to it.
type fakePin struct {
	levels []gpio.Level
	halted bool
	outErr error
}

func (p *fakePin) String() string                        { return "fake" }
func (p *fakePin) Name() string                          { return "fake" }
func (p *fakePin) Number() int                           { return 0 }
func (p *fakePin) Function() string                      { return "Out" }
func (p *fakePin) Halt() error                           { p.halted = true; return nil }
func (p *fakePin) In(gpio.Pull, gpio.Edge) error         { return nil }
func (p *fakePin) Read() gpio.Level                      { return gpio.Low }
func (p *fakePin) WaitForEdge(time.Duration) bool        { return false }
func (p *fakePin) Pull() gpio.Pull                       { return gpio.Float }
func (p *fakePin) DefaultPull() gpio.Pull                { return gpio.Float }
func (p *fakePin) PWM(gpio.Duty, physic.Frequency) error { return nil }

func (p *fakePin) Out(l gpio.Level) error {
	if p.outErr != nil {
		return p.outErr
	}
	p.levels = append(p.levels, l)
	return nil
}

func (p *fakePin) last() gpio.Level {
	if len(p.levels) == 0 {
		return gpio.Low
	}
	return p.levels[len(p.levels)-1]
}

// fakeDrawer captures each frame drawn to it.
type fakeDrawer struct {
	bounds image.Rectangle
	frames []*image.NRGBA
	halted bool
}

func (d *fakeDrawer) String() string          { return "fake" }
func (d *fakeDrawer) Halt() error             { d.halted = true; return nil }
func (d *fakeDrawer) ColorModel() color.Model { return color.NRGBAModel }
func (d *fakeDrawer) Bounds() image.Rectangle { return d.bounds }

func (d *fakeDrawer) Draw(r image.Rectangle, src image.Image, sp image.Point) error {
	frame := image.NewNRGBA(d.bounds)
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			frame.Set(x, y, src.At(sp.X+x-r.Min.X, sp.Y+y-r.Min.Y))
		}
	}
	d.frames = append(d.frames, frame)
	return nil
}

func (d *fakeDrawer) last() *image.NRGBA {
	if len(d.frames) == 0 {
		return nil
	}
	return d.frames[len(d.frames)-1]
}

type coilWrite struct {
	address uint16
	value   uint16
}

var errModbus = errors.New("modbus fault")

// fakeModbus records single coil writes and fails everything else.
type fakeModbus struct {
	writes   []coilWrite
	writeErr error
}

func (c *fakeModbus) WriteSingleCoil(address, value uint16) ([]byte, error) {
	if c.writeErr != nil {
		return nil, c.writeErr
	}
	c.writes = append(c.writes, coilWrite{address: address, value: value})
	return nil, nil
}

func (c *fakeModbus) ReadCoils(address, quantity uint16) ([]byte, error) {
	return nil, errModbus
}
func (c *fakeModbus) ReadDiscreteInputs(address, quantity uint16) ([]byte, error) {
	return nil, errModbus
}
func (c *fakeModbus) WriteMultipleCoils(address, quantity uint16, value []byte) ([]byte, error) {
	return nil, errModbus
}
func (c *fakeModbus) ReadInputRegisters(address, quantity uint16) ([]byte, error) {
	return nil, errModbus
}
func (c *fakeModbus) ReadHoldingRegisters(address, quantity uint16) ([]byte, error) {
	return nil, errModbus
}
func (c *fakeModbus) WriteSingleRegister(address, value uint16) ([]byte, error) {
	return nil, errModbus
}
func (c *fakeModbus) WriteMultipleRegisters(address, quantity uint16, value []byte) ([]byte, error) {
	return nil, errModbus
}
func (c *fakeModbus) ReadWriteMultipleRegisters(readAddress, readQuantity, writeAddress, writeQuantity uint16, value []byte) ([]byte, error) {
	return nil, errModbus
}
func (c *fakeModbus) MaskWriteRegister(address, andMask, orMask uint16) ([]byte, error) {
	return nil, errModbus
}
func (c *fakeModbus) ReadFIFOQueue(address uint16) ([]byte, error) {
	return nil, errModbus
}

type fakeToken struct{ err error }

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t *fakeToken) Error() error { return t.err }

type publishRecord struct {
	topic    string
	retained bool
	payload  string
}

// fakeMQTT records publishes.
type fakeMQTT struct {
	published    []publishRecord
	disconnected bool
	publishErr   error
}

func (c *fakeMQTT) IsConnected() bool       { return !c.disconnected }
func (c *fakeMQTT) IsConnectionOpen() bool  { return !c.disconnected }
func (c *fakeMQTT) Connect() MQTT.Token     { return &fakeToken{} }
func (c *fakeMQTT) Disconnect(quiesce uint) { c.disconnected = true }

func (c *fakeMQTT) Publish(topic string, qos byte, retained bool, payload interface{}) MQTT.Token {
	if c.publishErr != nil {
		return &fakeToken{err: c.publishErr}
	}
	c.published = append(c.published, publishRecord{
		topic:    topic,
		retained: retained,
		payload:  string(payload.([]byte)),
	})
	return &fakeToken{}
}

func (c *fakeMQTT) Subscribe(topic string, qos byte, callback MQTT.MessageHandler) MQTT.Token {
	return &fakeToken{}
}
func (c *fakeMQTT) SubscribeMultiple(filters map[string]byte, callback MQTT.MessageHandler) MQTT.Token {
	return &fakeToken{}
}
func (c *fakeMQTT) Unsubscribe(topics ...string) MQTT.Token       { return &fakeToken{} }
func (c *fakeMQTT) AddRoute(topic string, cb MQTT.MessageHandler) {}
func (c *fakeMQTT) OptionsReader() MQTT.ClientOptionsReader {
	return MQTT.ClientOptionsReader{}
}
