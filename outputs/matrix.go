package outputs

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"sync"

	"periph.io/x/conn/v3/display"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/devices/v3/nrzled"
	"periph.io/x/extra/devices/screen"
	"periph.io/x/host/v3"

	"github.com/jbialy/tally_controller/tally"
	"github.com/jbialy/tally_controller/util"
)

// matrixRefreshHz sizes the SPI clock so a full frame fits in one
// refresh interval with margin for the NRZ reset gap.
const matrixRefreshHz = 30

// Matrix drives a chain of addressable RGB pixels arranged as one
// segment of cols pixels per bound tally slot. When no SPI port is
// present the frame is painted to the console instead, so the output
// stays usable on a development machine.
type Matrix struct {
	name       string
	cols       int
	rows       int
	brightness uint8

	mu      sync.Mutex
	running bool
	drawer  display.Drawer
	closer  func() error
	frame   *image.NRGBA

	// openDrawer is swapped in tests
	openDrawer func() (display.Drawer, func() error, error)
}

// NewMatrix creates an output with one cols-wide segment per slot.
// Brightness scales every channel, 255 meaning full drive.
func NewMatrix(name string, cols, rows int, brightness uint8) *Matrix {
	m := &Matrix{name: name, cols: cols, rows: rows, brightness: brightness}
	m.openDrawer = m.openSPI
	return m
}

func (m *Matrix) Name() string { return m.name }

func (m *Matrix) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *Matrix) Open() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return nil
	}
	if m.cols <= 0 || m.rows <= 0 {
		return fmt.Errorf("%s: bad geometry %dx%d", m.name, m.cols, m.rows)
	}
	drawer, closer, err := m.openDrawer()
	if err != nil {
		return err
	}
	m.drawer = drawer
	m.closer = closer
	m.frame = image.NewNRGBA(drawer.Bounds())
	m.running = true
	return nil
}

// Close blanks the chain before releasing the port so pixels do not
// stay lit with stale state.
func (m *Matrix) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return nil
	}
	m.running = false
	draw.Draw(m.frame, m.frame.Bounds(), image.Black, image.Point{}, draw.Src)
	err := m.drawer.Draw(m.drawer.Bounds(), m.frame, image.Point{})
	if herr := m.drawer.Halt(); err == nil {
		err = herr
	}
	if m.closer != nil {
		if cerr := m.closer(); err == nil {
			err = cerr
		}
	}
	m.drawer = nil
	m.closer = nil
	return err
}

func (m *Matrix) Render(states []tally.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return fmt.Errorf("%s is not open", m.name)
	}
	draw.Draw(m.frame, m.frame.Bounds(), image.Black, image.Point{}, draw.Src)
	for i, st := range states {
		if i >= m.rows {
			break
		}
		m.fillSegment(i, m.scale(st.Color.RGB()))
	}
	return m.drawer.Draw(m.drawer.Bounds(), m.frame, image.Point{})
}

// fillSegment paints one slot's run of pixels. The chain is a single
// strip, so segment i occupies pixels [i*cols, (i+1)*cols).
func (m *Matrix) fillSegment(i int, c color.NRGBA) {
	bounds := m.frame.Bounds()
	start := i * m.cols
	for p := start; p < start+m.cols; p++ {
		x := bounds.Min.X + p%bounds.Dx()
		y := bounds.Min.Y + p/bounds.Dx()
		if y >= bounds.Max.Y {
			return
		}
		m.frame.SetNRGBA(x, y, c)
	}
}

func (m *Matrix) scale(c color.RGBA) color.NRGBA {
	b := uint16(m.brightness)
	return color.NRGBA{
		R: uint8(uint16(c.R) * b / 255),
		G: uint8(uint16(c.G) * b / 255),
		B: uint8(uint16(c.B) * b / 255),
		A: 0xff,
	}
}

func (m *Matrix) openSPI() (display.Drawer, func() error, error) {
	if _, err := host.Init(); err != nil {
		return nil, nil, fmt.Errorf("host init: %w", err)
	}
	port, err := spireg.Open("")
	if err != nil {
		util.Logger.Warn().Msgf("%s: no SPI port, painting to console: %v", m.name, err)
		return screen.New(m.cols * m.rows), nil, nil
	}
	dev, err := nrzled.NewSPI(port, &nrzled.Opts{
		NumPixels: m.cols * m.rows,
		Channels:  3,
		Freq:      ((matrixRefreshHz * 3) + 100) * physic.KiloHertz,
	})
	if err != nil {
		port.Close()
		return nil, nil, fmt.Errorf("nrzled: %w", err)
	}
	return dev, port.Close, nil
}
