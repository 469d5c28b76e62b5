package tally

import "fmt"

// ConfigError marks a malformed or conflicting tally configuration.
// It is fatal at registration time: the manager refuses the binding.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return "tally config: " + e.Reason
}

func configErrorf(format string, args ...any) *ConfigError {
	return &ConfigError{Reason: fmt.Sprintf(format, args...)}
}

// DeviceError wraps an open or close failure of a single input or
// output. Non-fatal: the device stays closed, the rest carry on.
type DeviceError struct {
	Device string
	Op     string
	Err    error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Device, e.Err)
}

func (e *DeviceError) Unwrap() error { return e.Err }

// RenderError wraps a failed Render call. The output keeps its last
// good display; dispatch to other outputs is unaffected.
type RenderError struct {
	Device string
	Err    error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render %s: %v", e.Device, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }
