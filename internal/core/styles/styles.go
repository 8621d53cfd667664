// Package styles provides shared lipgloss styles for CLI and TUI output.
package styles

import (
	"sort"

	"github.com/charmbracelet/lipgloss"

	"github.com/hay-kot/orderbell/internal/core/status"
)

// Palette defines a minimal semantic theme palette.
type Palette struct {
	Primary    lipgloss.Color
	Foreground lipgloss.Color
	Muted      lipgloss.Color
	Surface    lipgloss.Color
	Info       lipgloss.Color
	Success    lipgloss.Color
	Warning    lipgloss.Color
	Error      lipgloss.Color
}

// DefaultTheme is the name of the default theme.
const DefaultTheme = "tokyo-night"

var themes = map[string]Palette{
	"tokyo-night": {
		Primary:    lipgloss.Color("#7aa2f7"),
		Foreground: lipgloss.Color("#c0caf5"),
		Muted:      lipgloss.Color("#565f89"),
		Surface:    lipgloss.Color("#3b4261"),
		Info:       lipgloss.Color("#7dcfff"),
		Success:    lipgloss.Color("#9ece6a"),
		Warning:    lipgloss.Color("#e0af68"),
		Error:      lipgloss.Color("#f7768e"),
	},
	"gruvbox": {
		Primary:    lipgloss.Color("#83a598"),
		Foreground: lipgloss.Color("#ebdbb2"),
		Muted:      lipgloss.Color("#665c54"),
		Surface:    lipgloss.Color("#3c3836"),
		Info:       lipgloss.Color("#8ec07c"),
		Success:    lipgloss.Color("#b8bb26"),
		Warning:    lipgloss.Color("#fabd2f"),
		Error:      lipgloss.Color("#fb4934"),
	},
	"catppuccin": {
		Primary:    lipgloss.Color("#89b4fa"),
		Foreground: lipgloss.Color("#cdd6f4"),
		Muted:      lipgloss.Color("#6c7086"),
		Surface:    lipgloss.Color("#313244"),
		Info:       lipgloss.Color("#94e2d5"),
		Success:    lipgloss.Color("#a6e3a1"),
		Warning:    lipgloss.Color("#f9e2af"),
		Error:      lipgloss.Color("#f38ba8"),
	},
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

var (
	HeaderStyle   lipgloss.Style
	MutedStyle    lipgloss.Style
	SelectedStyle lipgloss.Style
	UnreadStyle   lipgloss.Style
	HelpStyle     lipgloss.Style

	// Toast frames, one per tone.
	ToastInfoStyle    lipgloss.Style
	ToastSuccessStyle lipgloss.Style
	ToastWarningStyle lipgloss.Style
	ToastErrorStyle   lipgloss.Style
)

func init() {
	SetTheme(themes[DefaultTheme])
}

// SetTheme rebuilds every exported style from p.
func SetTheme(p Palette) {
	CurrentPalette = p

	HeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(p.Primary)
	MutedStyle = lipgloss.NewStyle().Foreground(p.Muted)
	SelectedStyle = lipgloss.NewStyle().Background(p.Surface).Foreground(p.Foreground)
	UnreadStyle = lipgloss.NewStyle().Bold(true).Foreground(p.Foreground)
	HelpStyle = lipgloss.NewStyle().Foreground(p.Muted).MarginTop(1)

	toast := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		Padding(0, 1).
		Foreground(p.Foreground)
	ToastInfoStyle = toast.BorderForeground(p.Info)
	ToastSuccessStyle = toast.BorderForeground(p.Success)
	ToastWarningStyle = toast.BorderForeground(p.Warning)
	ToastErrorStyle = toast.BorderForeground(p.Error)
}

// ToneColor maps a status tone to a palette color.
func ToneColor(t status.Tone) lipgloss.Color {
	switch t {
	case status.ToneSuccess:
		return CurrentPalette.Success
	case status.ToneWarning:
		return CurrentPalette.Warning
	case status.ToneError:
		return CurrentPalette.Error
	default:
		return CurrentPalette.Info
	}
}

// ToastStyle returns the toast frame for a tone.
func ToastStyle(t status.Tone) lipgloss.Style {
	switch t {
	case status.ToneSuccess:
		return ToastSuccessStyle
	case status.ToneWarning:
		return ToastWarningStyle
	case status.ToneError:
		return ToastErrorStyle
	default:
		return ToastInfoStyle
	}
}

// Badge renders the label of a status code as a colored pill.
func Badge(code string) string {
	meta := status.Resolve(code)
	return lipgloss.NewStyle().
		Padding(0, 1).
		Bold(true).
		Foreground(lipgloss.Color("#1a1b26")).
		Background(ToneColor(meta.Tone)).
		Render(meta.Label)
}
