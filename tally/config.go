package tally

// Config binds an output to the logical tallies it displays.
// Implemented by SingleConfig and MultiConfig.
type Config interface {
	// Validate checks the binding at registration time.
	Validate() error
	// Matches reports whether an update for the given key concerns
	// this binding.
	Matches(Key) bool
	// Slots returns the bound keys in render order. An output's
	// render sequence carries exactly one State per slot.
	Slots() []Key
	// Equal reports whether two bindings are equivalent, used to
	// detect assignment changes across config reloads.
	Equal(Config) bool
}

// SingleConfig binds an output to exactly one logical tally. A Screen
// of Broadcast matches the tally index on any screen.
type SingleConfig struct {
	Screen uint16 `json:"screen" mapstructure:"screen"`
	Index  uint16 `json:"index" mapstructure:"index"`
	Name   string `json:"name,omitempty" mapstructure:"name"`
}

func (c SingleConfig) Validate() error {
	if c.Index == Broadcast {
		return configErrorf("tally index %#04x is the broadcast address", c.Index)
	}
	return nil
}

func (c SingleConfig) Matches(k Key) bool {
	return c.key().Matches(k)
}

func (c SingleConfig) Slots() []Key {
	return []Key{c.key()}
}

func (c SingleConfig) Equal(other Config) bool {
	o, ok := other.(SingleConfig)
	return ok && o == c
}

func (c SingleConfig) key() Key {
	return Key{Screen: c.Screen, Index: c.Index}
}

// MultiConfig binds an output with several display slots (a matrix, a
// relay bank) to one logical tally per slot. Slot order is the render
// order and each (screen, index) pair may appear only once.
type MultiConfig struct {
	Tallies []SingleConfig `json:"tallies" mapstructure:"tallies"`
	Name    string         `json:"name,omitempty" mapstructure:"name"`
}

func (c MultiConfig) Validate() error {
	if len(c.Tallies) == 0 {
		return configErrorf("multi tally config has no entries")
	}
	seen := make(map[Key]struct{}, len(c.Tallies))
	for _, t := range c.Tallies {
		if err := t.Validate(); err != nil {
			return err
		}
		k := t.key()
		if _, ok := seen[k]; ok {
			return configErrorf("duplicate slot %s", k)
		}
		seen[k] = struct{}{}
	}
	return nil
}

func (c MultiConfig) Matches(k Key) bool {
	for _, t := range c.Tallies {
		if t.Matches(k) {
			return true
		}
	}
	return false
}

func (c MultiConfig) Slots() []Key {
	keys := make([]Key, len(c.Tallies))
	for i, t := range c.Tallies {
		keys[i] = t.key()
	}
	return keys
}

func (c MultiConfig) Equal(other Config) bool {
	o, ok := other.(MultiConfig)
	if !ok || len(o.Tallies) != len(c.Tallies) {
		return false
	}
	for i, t := range c.Tallies {
		if o.Tallies[i] != t {
			return false
		}
	}
	return true
}
