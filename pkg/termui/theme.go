// Package termui renders readings and collects input on a terminal.
package termui

import (
	"io"

	"github.com/muesli/termenv"

	"fortuneteller/pkg/fortune"
)

// Palette colours, loosely following the five-element convention.
const (
	colorCyan   = "#22d3ee"
	colorYellow = "#facc15"
	colorGreen  = "#4ade80"
	colorRed    = "#f87171"
	colorBlue   = "#60a5fa"
	colorBrown  = "#d97706"
	colorGrey   = "#9ca3af"
	colorViolet = "#c084fc"
)

// Theme styles text for one output.
type Theme struct {
	out *termenv.Output
}

// NewTheme detects the colour profile of w.
func NewTheme(w io.Writer) *Theme {
	return &Theme{out: termenv.NewOutput(w)}
}

// NewPlainTheme never emits escape sequences.
func NewPlainTheme(w io.Writer) *Theme {
	return &Theme{out: termenv.NewOutput(w, termenv.WithProfile(termenv.Ascii))}
}

// Colored reports whether the theme emits colour.
func (t *Theme) Colored() bool {
	return t.out.Profile != termenv.Ascii
}

func (t *Theme) fg(s, hex string) termenv.Style {
	return t.out.String(s).Foreground(t.out.Color(hex))
}

// Title renders a bold yellow heading.
func (t *Theme) Title(s string) string {
	return t.fg(s, colorYellow).Bold().String()
}

// Accent renders cyan decoration.
func (t *Theme) Accent(s string) string {
	return t.fg(s, colorCyan).String()
}

// Good renders green text.
func (t *Theme) Good(s string) string {
	return t.fg(s, colorGreen).String()
}

// Bad renders red text.
func (t *Theme) Bad(s string) string {
	return t.fg(s, colorRed).String()
}

// Bold renders bold text.
func (t *Theme) Bold(s string) string {
	return t.out.String(s).Bold().String()
}

// Tone renders s in the colour of a display tone.
func (t *Theme) Tone(s string, tone fortune.Tone) string {
	switch tone {
	case fortune.ToneHighlight:
		return t.fg(s, colorYellow).Bold().String()
	case fortune.ToneMuted:
		return t.fg(s, colorGrey).String()
	case fortune.ToneWood, fortune.ToneUpright:
		return t.fg(s, colorGreen).String()
	case fortune.ToneFire, fortune.ToneReversed:
		return t.fg(s, colorRed).String()
	case fortune.ToneEarth:
		return t.fg(s, colorBrown).String()
	case fortune.ToneMetal:
		return t.out.String(s).Bold().String()
	case fortune.ToneWater:
		return t.fg(s, colorBlue).String()
	case fortune.ToneAir:
		return t.fg(s, colorViolet).String()
	default:
		return s
	}
}
