package inputs

import (
	"net"
	"testing"
	"time"

	"github.com/jbialy/tally_controller/tally"
)

func tslMsg(addr, control byte, label string) []byte {
	msg := make([]byte, tslMessageLen)
	msg[0] = addr
	msg[1] = control
	copy(msg[2:], label)
	for i := 2 + len(label); i < tslMessageLen; i++ {
		msg[i] = ' '
	}
	return msg
}

func TestDecodeTSL31(t *testing.T) {
	cases := []struct {
		name   string
		packet []byte
		want   []tally.State
		fails  bool
	}{
		{
			name:   "program",
			packet: tslMsg(0x85, 0x01, "CAM 1"),
			want:   []tally.State{{Index: 5, Color: tally.Red, Text: "CAM 1"}},
		},
		{
			name:   "preview",
			packet: tslMsg(0x80, 0x02, "WIDE"),
			want:   []tally.State{{Index: 0, Color: tally.Green, Text: "WIDE"}},
		},
		{
			name:   "both lamps read amber",
			packet: tslMsg(0x82, 0x03, ""),
			want:   []tally.State{{Index: 2, Color: tally.Amber}},
		},
		{
			name:   "clear",
			packet: tslMsg(0x81, 0x00, "CAM 2"),
			want:   []tally.State{{Index: 1, Color: tally.Off, Text: "CAM 2"}},
		},
		{
			name:   "two messages in one datagram",
			packet: append(tslMsg(0x81, 0x01, "A"), tslMsg(0x82, 0x02, "B")...),
			want: []tally.State{
				{Index: 1, Color: tally.Red, Text: "A"},
				{Index: 2, Color: tally.Green, Text: "B"},
			},
		},
		{
			name:   "nul padded label is trimmed",
			packet: tslMsg(0x83, 0x01, "CAM 3\x00\x00"),
			want:   []tally.State{{Index: 3, Color: tally.Red, Text: "CAM 3"}},
		},
		{name: "empty packet", packet: nil, fails: true},
		{name: "truncated message", packet: tslMsg(0x81, 0x01, "A")[:10], fails: true},
		{name: "address below display range", packet: tslMsg(0x10, 0x01, "A"), fails: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := DecodeTSL31(tc.packet)
			if tc.fails {
				if err == nil {
					t.Errorf("expected decode error, got %v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if len(got) != len(tc.want) {
				t.Fatalf("got %d states, want %d", len(got), len(tc.want))
			}
			for i := range got {
				if got[i] != tc.want[i] {
					t.Errorf("state %d: got %v, want %v", i, got[i], tc.want[i])
				}
			}
		})
	}
}

func TestUMDReceivesDatagram(t *testing.T) {
	u := NewUMD("umd", "127.0.0.1:0", nil)
	events := make(chan tally.State, 8)
	u.Notify(func(st tally.State) { events <- st })
	if err := u.Open(); err != nil {
		t.Fatalf("open: %v", err)
	}
	defer u.Close()

	conn, err := net.Dial("udp", u.conn.LocalAddr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Write(tslMsg(0x84, 0x01, "CAM 4")); err != nil {
		t.Fatalf("write: %v", err)
	}
	select {
	case st := <-events:
		want := tally.State{Index: 4, Color: tally.Red, Text: "CAM 4"}
		if st != want {
			t.Errorf("got %v, want %v", st, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no event after datagram")
	}

	// Malformed traffic is dropped, good traffic keeps flowing.
	if _, err := conn.Write([]byte{0x01, 0x02}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := conn.Write(tslMsg(0x84, 0x00, "CAM 4")); err != nil {
		t.Fatalf("write: %v", err)
	}
	select {
	case st := <-events:
		if st.Color != tally.Off {
			t.Errorf("got %v, want off", st)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no event after malformed packet")
	}
}

func TestUMDOpenCloseIdempotent(t *testing.T) {
	u := NewUMD("umd", "127.0.0.1:0", nil)
	if err := u.Open(); err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := u.Open(); err != nil {
		t.Errorf("second open: %v", err)
	}
	if !u.Running() {
		t.Error("not running after open")
	}
	if err := u.Close(); err != nil {
		t.Errorf("close: %v", err)
	}
	if err := u.Close(); err != nil {
		t.Errorf("second close: %v", err)
	}
	if u.Running() {
		t.Error("still running after close")
	}
}
