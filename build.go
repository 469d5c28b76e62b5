package main

import (
	"fmt"
	"time"

	. "github.com/jbialy/tally_controller/util"

	"github.com/jbialy/tally_controller/inputs"
	"github.com/jbialy/tally_controller/outputs"
	"github.com/jbialy/tally_controller/tally"
)

// TallyRef is the config file form of one tally assignment. A missing
// screen means "any screen".
type TallyRef struct {
	Screen *uint16 `mapstructure:"screen"`
	Index  uint16  `mapstructure:"index"`
	Name   string  `mapstructure:"name"`
}

func (r TallyRef) single() tally.SingleConfig {
	screen := tally.Broadcast
	if r.Screen != nil {
		screen = *r.Screen
	}
	return tally.SingleConfig{Screen: screen, Index: r.Index, Name: r.Name}
}

// InputConfig describes one input instance. Type selects the variant;
// the remaining fields are per-variant options.
type InputConfig struct {
	Type   string    `mapstructure:"type"`
	Name   string    `mapstructure:"name"`
	Listen string    `mapstructure:"listen"`
	Broker string    `mapstructure:"broker"`
	Topic  string    `mapstructure:"topic"`
	Pin    string    `mapstructure:"pin"`
	Color  string    `mapstructure:"color"`
	Tally  *TallyRef `mapstructure:"tally"`
}

// OutputConfig describes one output instance plus its tally binding.
type OutputConfig struct {
	Type          string     `mapstructure:"type"`
	Name          string     `mapstructure:"name"`
	Essential     bool       `mapstructure:"essential"`
	Pin           string     `mapstructure:"pin"`
	Cols          int        `mapstructure:"cols"`
	Rows          int        `mapstructure:"rows"`
	Brightness    int        `mapstructure:"brightness"`
	Address       string     `mapstructure:"address"`
	Unit          int        `mapstructure:"unit"`
	CoilBase      int        `mapstructure:"coil_base"`
	Broker        string     `mapstructure:"broker"`
	Topic         string     `mapstructure:"topic"`
	Retain        bool       `mapstructure:"retain"`
	AllOffOnClose bool       `mapstructure:"all_off_on_close"`
	Tally         *TallyRef  `mapstructure:"tally"`
	Tallies       []TallyRef `mapstructure:"tallies"`
}

// binding returns the tally assignment for an output: either a single
// tally or an ordered slot list, never both.
func (c OutputConfig) binding() (tally.Config, error) {
	switch {
	case c.Tally != nil && len(c.Tallies) > 0:
		return nil, fmt.Errorf("output %s: tally and tallies are mutually exclusive", c.Name)
	case c.Tally != nil:
		return c.Tally.single(), nil
	case len(c.Tallies) > 0:
		multi := tally.MultiConfig{Name: c.Name}
		for _, ref := range c.Tallies {
			multi.Tallies = append(multi.Tallies, ref.single())
		}
		return multi, nil
	}
	return nil, fmt.Errorf("output %s: no tally assignment", c.Name)
}

var inputBuilders = map[string]func(InputConfig) (tally.Input, error){
	"umd": func(cfg InputConfig) (tally.Input, error) {
		if cfg.Listen == "" {
			return nil, fmt.Errorf("input %s: listen address required", cfg.Name)
		}
		return inputs.NewUMD(cfg.Name, cfg.Listen, nil), nil
	},
	"mqtt": func(cfg InputConfig) (tally.Input, error) {
		if cfg.Topic == "" {
			return nil, fmt.Errorf("input %s: topic required", cfg.Name)
		}
		return inputs.NewMQTTInput(cfg.Name, cfg.Broker, cfg.Topic), nil
	},
	"gpio": func(cfg InputConfig) (tally.Input, error) {
		if cfg.Pin == "" {
			return nil, fmt.Errorf("input %s: pin required", cfg.Name)
		}
		if cfg.Tally == nil {
			return nil, fmt.Errorf("input %s: tally assignment required", cfg.Name)
		}
		var color tally.Color
		if err := color.UnmarshalText([]byte(cfg.Color)); err != nil {
			return nil, fmt.Errorf("input %s: %w", cfg.Name, err)
		}
		single := cfg.Tally.single()
		key := tally.Key{Screen: single.Screen, Index: single.Index}
		return inputs.NewGPIOInput(cfg.Name, cfg.Pin, key, color), nil
	},
}

var outputBuilders = map[string]func(OutputConfig) (tally.Output, error){
	"gpio": func(cfg OutputConfig) (tally.Output, error) {
		if cfg.Pin == "" {
			return nil, fmt.Errorf("output %s: pin required", cfg.Name)
		}
		return outputs.NewLED(cfg.Name, cfg.Pin), nil
	},
	"matrix": func(cfg OutputConfig) (tally.Output, error) {
		cols, rows := cfg.Cols, cfg.Rows
		if cols == 0 {
			cols = 5
		}
		if rows == 0 {
			rows = 5
		}
		brightness := cfg.Brightness
		if brightness <= 0 || brightness > 255 {
			brightness = 255
		}
		return outputs.NewMatrix(cfg.Name, cols, rows, uint8(brightness)), nil
	},
	"relay": func(cfg OutputConfig) (tally.Output, error) {
		if cfg.Address == "" {
			return nil, fmt.Errorf("output %s: address required", cfg.Name)
		}
		if cfg.Unit < 0 || cfg.Unit > 0xff {
			return nil, fmt.Errorf("output %s: unit %d out of range", cfg.Name, cfg.Unit)
		}
		if cfg.CoilBase < 0 || cfg.CoilBase > 0xffff {
			return nil, fmt.Errorf("output %s: coil_base %d out of range", cfg.Name, cfg.CoilBase)
		}
		return outputs.NewModbusRelay(cfg.Name, cfg.Address, byte(cfg.Unit), uint16(cfg.CoilBase)), nil
	},
	"mqtt": func(cfg OutputConfig) (tally.Output, error) {
		if cfg.Topic == "" {
			return nil, fmt.Errorf("output %s: topic required", cfg.Name)
		}
		out := outputs.NewMQTTOutput(cfg.Name, cfg.Broker, cfg.Topic)
		out.Retain = cfg.Retain
		out.AllOffOnClose = cfg.AllOffOnClose
		return out, nil
	},
}

// BuildManager populates the manager from the inputs and outputs
// sections of the config. It returns the set of essential output
// names, whose open failures are fatal to the process.
func BuildManager(m *tally.Manager) (map[string]bool, error) {
	if grace := Config.GetInt("close_grace_seconds"); grace > 0 {
		m.SetCloseGrace(time.Duration(grace) * time.Second)
	}

	var inputCfgs []InputConfig
	if err := Config.UnmarshalKey("inputs", &inputCfgs); err != nil {
		return nil, fmt.Errorf("inputs section: %w", err)
	}
	for i, cfg := range inputCfgs {
		if cfg.Name == "" {
			cfg.Name = fmt.Sprintf("%s-in-%d", cfg.Type, i)
		}
		build, ok := inputBuilders[cfg.Type]
		if !ok {
			return nil, fmt.Errorf("input %s: unknown type %q", cfg.Name, cfg.Type)
		}
		in, err := build(cfg)
		if err != nil {
			return nil, err
		}
		m.AddInput(in)
	}

	outputCfgs, err := outputSection()
	if err != nil {
		return nil, err
	}
	essential := make(map[string]bool)
	for _, cfg := range outputCfgs {
		build, ok := outputBuilders[cfg.Type]
		if !ok {
			return nil, fmt.Errorf("output %s: unknown type %q", cfg.Name, cfg.Type)
		}
		out, err := build(cfg)
		if err != nil {
			return nil, err
		}
		binding, err := cfg.binding()
		if err != nil {
			return nil, err
		}
		if err := m.Bind(out, binding); err != nil {
			return nil, fmt.Errorf("output %s: %w", cfg.Name, err)
		}
		essential[cfg.Name] = cfg.Essential
	}
	return essential, nil
}

func outputSection() ([]OutputConfig, error) {
	var cfgs []OutputConfig
	if err := Config.UnmarshalKey("outputs", &cfgs); err != nil {
		return nil, fmt.Errorf("outputs section: %w", err)
	}
	for i := range cfgs {
		if cfgs[i].Name == "" {
			cfgs[i].Name = fmt.Sprintf("%s-out-%d", cfgs[i].Type, i)
		}
	}
	return cfgs, nil
}

// RefreshBindings re-reads the outputs section after a config change
// and re-binds existing outputs whose tally assignment moved. Adding
// or removing devices still needs a restart.
func RefreshBindings(m *tally.Manager) {
	cfgs, err := outputSection()
	if err != nil {
		Logger.Error().Msgf("config reload: %v", err)
		return
	}
	byName := make(map[string]OutputConfig, len(cfgs))
	for _, cfg := range cfgs {
		byName[cfg.Name] = cfg
	}
	for _, item := range m.Outputs().Items() {
		out, ok := item.(tally.Output)
		if !ok {
			continue
		}
		cfg, ok := byName[out.Name()]
		if !ok {
			Logger.Warn().Msgf("config reload: output %s removed, restart to drop it", out.Name())
			continue
		}
		binding, err := cfg.binding()
		if err != nil {
			Logger.Error().Msgf("config reload: %v", err)
			continue
		}
		if err := m.Bind(out, binding); err != nil {
			Logger.Error().Msgf("config reload: rebind %s: %v", out.Name(), err)
		}
		delete(byName, out.Name())
	}
	for name := range byName {
		Logger.Warn().Msgf("config reload: new output %s needs a restart", name)
	}
}
