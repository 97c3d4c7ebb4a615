// Package styles provides the lipgloss styles of the command line output.
package styles

import (
	"sort"

	"github.com/charmbracelet/lipgloss"
)

// Palette defines a minimal semantic theme palette.
type Palette struct {
	Primary    lipgloss.Color
	Secondary  lipgloss.Color
	Foreground lipgloss.Color
	Muted      lipgloss.Color
	Success    lipgloss.Color
	Warning    lipgloss.Color
	Error      lipgloss.Color
}

// DefaultTheme is the name of the default theme.
const DefaultTheme = "tokyo-night"

// themes holds the built-in named palettes.
var themes = map[string]Palette{
	"tokyo-night": {
		Primary:    lipgloss.Color("#7aa2f7"),
		Secondary:  lipgloss.Color("#7dcfff"),
		Foreground: lipgloss.Color("#c0caf5"),
		Muted:      lipgloss.Color("#565f89"),
		Success:    lipgloss.Color("#9ece6a"),
		Warning:    lipgloss.Color("#e0af68"),
		Error:      lipgloss.Color("#f7768e"),
	},
	"gruvbox": {
		Primary:    lipgloss.Color("#83a598"),
		Secondary:  lipgloss.Color("#8ec07c"),
		Foreground: lipgloss.Color("#ebdbb2"),
		Muted:      lipgloss.Color("#665c54"),
		Success:    lipgloss.Color("#b8bb26"),
		Warning:    lipgloss.Color("#fabd2f"),
		Error:      lipgloss.Color("#fb4934"),
	},
	"plain": {},
}

// ThemeNames returns sorted names of all built-in themes.
func ThemeNames() []string {
	names := make([]string, 0, len(themes))
	for name := range themes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetPalette returns the palette for the given theme name.
func GetPalette(name string) (Palette, bool) {
	p, ok := themes[name]
	return p, ok
}

// CurrentPalette holds the active theme palette.
var CurrentPalette Palette

// Glyphs prefixed to event lines.
const (
	IconWatch   = "+"
	IconUnwatch = "-"
	IconChange  = "~"
	IconFailed  = "!"
	IconInfo    = "*"
)

// Style exports.
var (
	HeaderStyle  lipgloss.Style
	MutedStyle   lipgloss.Style
	KeyStyle     lipgloss.Style
	SuccessStyle lipgloss.Style
	WarningStyle lipgloss.Style
	ErrorStyle   lipgloss.Style

	// Event line styles.
	WatchStyle   lipgloss.Style
	UnwatchStyle lipgloss.Style
	ChangeStyle  lipgloss.Style
	FailedStyle  lipgloss.Style
	MarkerStyle  lipgloss.Style
)

// SetTheme sets the active palette and rebuilds all global styles. Empty
// colors leave the terminal default.
func SetTheme(p Palette) {
	CurrentPalette = p

	HeaderStyle = fg(p.Primary).Bold(true)
	MutedStyle = fg(p.Muted)
	KeyStyle = fg(p.Secondary)
	SuccessStyle = fg(p.Success)
	WarningStyle = fg(p.Warning)
	ErrorStyle = fg(p.Error).Bold(true)

	WatchStyle = fg(p.Success)
	UnwatchStyle = fg(p.Muted)
	ChangeStyle = fg(p.Foreground)
	FailedStyle = fg(p.Error)
	MarkerStyle = fg(p.Secondary).Bold(true)
}

func fg(c lipgloss.Color) lipgloss.Style {
	s := lipgloss.NewStyle()
	if c != "" {
		s = s.Foreground(c)
	}
	return s
}

func init() {
	p, _ := GetPalette(DefaultTheme)
	SetTheme(p)
}
