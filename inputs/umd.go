// Package inputs contains the tally input variants: network protocol
// listeners and hardware sensors that feed state changes into the
// manager.
package inputs

import (
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/jbialy/tally_controller/tally"
	"github.com/jbialy/tally_controller/util"
)

// Decoder turns one received datagram into tally states, one per
// affected tally in the order the protocol reported them. The wire
// format is entirely the decoder's business.
type Decoder interface {
	Decode(packet []byte) ([]tally.State, error)
}

// DecoderFunc adapts a plain function to the Decoder interface.
type DecoderFunc func(packet []byte) ([]tally.State, error)

func (f DecoderFunc) Decode(packet []byte) ([]tally.State, error) {
	return f(packet)
}

// UMD listens for UMD-style tally datagrams on a UDP port and emits
// one event per decoded tally update, in arrival order. Malformed
// packets are logged and dropped; they never reach the manager.
type UMD struct {
	name string
	addr string
	dec  Decoder

	mu      sync.Mutex
	running bool
	conn    *net.UDPConn
	fn      func(tally.State)
	done    chan struct{}
}

// NewUMD creates a listener on addr (for example ":8900"). A nil
// decoder selects the built-in TSL 3.1 decoder.
func NewUMD(name, addr string, dec Decoder) *UMD {
	if dec == nil {
		dec = DecoderFunc(DecodeTSL31)
	}
	return &UMD{name: name, addr: addr, dec: dec}
}

func (u *UMD) Name() string { return u.name }

func (u *UMD) Running() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.running
}

func (u *UMD) Notify(fn func(tally.State)) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.fn = fn
}

func (u *UMD) Open() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.running {
		return nil
	}
	addr, err := net.ResolveUDPAddr("udp", u.addr)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", u.addr, err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", u.addr, err)
	}
	u.conn = conn
	u.done = make(chan struct{})
	u.running = true
	util.Logger.Info().Msgf("%s listening on %s", u.name, conn.LocalAddr())
	go u.listen(conn, u.done)
	return nil
}

// Close shuts the socket, which unblocks the listen loop, and waits
// for it to drain.
func (u *UMD) Close() error {
	u.mu.Lock()
	if !u.running {
		u.mu.Unlock()
		return nil
	}
	u.running = false
	conn, done := u.conn, u.done
	u.conn = nil
	u.mu.Unlock()

	err := conn.Close()
	<-done
	return err
}

func (u *UMD) listen(conn *net.UDPConn, done chan struct{}) {
	defer close(done)
	buffer := make([]byte, 2048)
	for {
		n, _, err := conn.ReadFromUDP(buffer)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			util.Logger.Warn().Msgf("%s read: %v", u.name, err)
			continue
		}
		states, err := u.dec.Decode(buffer[:n])
		if err != nil {
			util.Logger.Warn().Msgf("%s dropped packet: %v", u.name, err)
			continue
		}
		u.mu.Lock()
		fn := u.fn
		u.mu.Unlock()
		if fn == nil {
			continue
		}
		for _, st := range states {
			fn(st)
		}
	}
}
