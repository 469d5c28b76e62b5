package tally

import (
	"fmt"
	"image/color"
	"strings"

	"golang.org/x/image/colornames"
)

// Color is the displayed state of a single tally indicator. Red and
// green combine bitwise, so a source that is simultaneously on program
// and preview reads as amber.
type Color uint8

const (
	Off   Color = 0
	Red   Color = 1
	Green Color = 2
	Amber Color = Red | Green
)

func (c Color) String() string {
	switch c {
	case Off:
		return "off"
	case Red:
		return "red"
	case Green:
		return "green"
	case Amber:
		return "amber"
	}
	return fmt.Sprintf("color(%d)", uint8(c))
}

// RGB returns the rendered color. Off maps to black so hardware
// drivers de-energize fully.
func (c Color) RGB() color.RGBA {
	switch c {
	case Red:
		return colornames.Red
	case Green:
		return colornames.Green
	case Amber:
		return color.RGBA{R: 0xff, G: 0xbf, A: 0xff}
	}
	return color.RGBA{A: 0xff}
}

func (c Color) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Color) UnmarshalText(text []byte) error {
	switch strings.ToLower(string(text)) {
	case "off", "":
		*c = Off
	case "red", "program":
		*c = Red
	case "green", "preview":
		*c = Green
	case "amber", "both":
		*c = Amber
	default:
		return fmt.Errorf("unknown tally color %q", text)
	}
	return nil
}
