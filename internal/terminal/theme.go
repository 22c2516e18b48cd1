package terminal

// Theme is the screen color scheme.
type Theme string

const (
	ThemeDark  Theme = "dark"
	ThemeLight Theme = "light"
)

// Toggle returns the other theme. Unknown values toggle to dark.
func (t Theme) Toggle() Theme {
	if t == ThemeDark {
		return ThemeLight
	}
	return ThemeDark
}

// Palette holds the ANSI sequences used to style each screen element.
type Palette struct {
	Title  string
	Text   string
	Muted  string
	Error  string
	Accent string
}

const ansiReset = "\x1b[0m"

var palettes = map[Theme]Palette{
	ThemeDark: {
		Title:  "\x1b[1;97m",
		Text:   "\x1b[37m",
		Muted:  "\x1b[90m",
		Error:  "\x1b[1;91m",
		Accent: "\x1b[96m",
	},
	ThemeLight: {
		Title:  "\x1b[1;30m",
		Text:   "\x1b[30m",
		Muted:  "\x1b[2;30m",
		Error:  "\x1b[1;31m",
		Accent: "\x1b[34m",
	},
}

// Palette returns the sequences for t.
func (t Theme) Palette() Palette {
	if p, ok := palettes[t]; ok {
		return p
	}
	return palettes[ThemeDark]
}
