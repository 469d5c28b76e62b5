package inputs

import (
	"fmt"
	"strings"

	"github.com/jbialy/tally_controller/tally"
)

// tslMessageLen is the fixed size of one TSL 3.1 display message:
// address byte, control byte, 16 characters of display text.
const tslMessageLen = 18

// DecodeTSL31 decodes TSL UMD 3.1 datagrams. A datagram carries one
// or more fixed-size messages back to back; tally 1 maps to red
// (program), tally 2 to green (preview), both lit reads as amber.
// TSL 3.1 has no screen concept, so everything lands on screen 0.
func DecodeTSL31(packet []byte) ([]tally.State, error) {
	if len(packet) == 0 || len(packet)%tslMessageLen != 0 {
		return nil, fmt.Errorf("tsl 3.1: packet length %d is not a multiple of %d", len(packet), tslMessageLen)
	}
	states := make([]tally.State, 0, len(packet)/tslMessageLen)
	for off := 0; off < len(packet); off += tslMessageLen {
		msg := packet[off : off+tslMessageLen]
		if msg[0] < 0x80 {
			return nil, fmt.Errorf("tsl 3.1: invalid display address byte %#02x", msg[0])
		}
		var color tally.Color
		if msg[1]&0x01 != 0 {
			color |= tally.Red
		}
		if msg[1]&0x02 != 0 {
			color |= tally.Green
		}
		states = append(states, tally.State{
			Index: uint16(msg[0] - 0x80),
			Color: color,
			Text:  strings.TrimRight(string(msg[2:]), " \x00"),
		})
	}
	return states, nil
}
