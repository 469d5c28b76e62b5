package tally

import "fmt"

// Broadcast is the wildcard screen or tally address. A key carrying it
// matches any value in that position.
const Broadcast uint16 = 0xffff

// Key identifies one logical tally slot: a screen and an index within
// that screen. Protocols without a screen concept use screen 0.
type Key struct {
	Screen uint16 `json:"screen" mapstructure:"screen"`
	Index  uint16 `json:"index" mapstructure:"index"`
}

// Matches reports whether two keys refer to the same slot, honoring
// the broadcast wildcard on either side of either field.
func (k Key) Matches(other Key) bool {
	if k.Screen != other.Screen && k.Screen != Broadcast && other.Screen != Broadcast {
		return false
	}
	if k.Index != other.Index && k.Index != Broadcast && other.Index != Broadcast {
		return false
	}
	return true
}

func (k Key) String() string {
	if k.Screen == Broadcast {
		return fmt.Sprintf("*/%d", k.Index)
	}
	return fmt.Sprintf("%d/%d", k.Screen, k.Index)
}

// State is the last reported condition of one logical tally. Produced
// by inputs, cached by the manager, consumed by outputs.
type State struct {
	Screen uint16 `json:"screen"`
	Index  uint16 `json:"index"`
	Color  Color  `json:"color"`
	Text   string `json:"text,omitempty"`
}

func (s State) Key() Key {
	return Key{Screen: s.Screen, Index: s.Index}
}

func (s State) String() string {
	return fmt.Sprintf("%s=%s", s.Key(), s.Color)
}
