package analyst

// Theme defines semantic color mappings using ANSI color indices (0-15).
// The user's terminal theme determines the actual RGB values, so the app
// automatically matches any color scheme.
type Theme struct {
	UserMsg int // User message accent
	Query   int // Generated SQL shown while the tool runs
	Error   int // Error messages
	Muted   int // Status bar, placeholders, raw result text
	Accent  int // Headings, emphasis
}

// DefaultTheme returns the default ANSI color mapping.
func DefaultTheme() Theme {
	return Theme{
		UserMsg: 4,
		Query:   3,
		Error:   1,
		Muted:   8,
		Accent:  5,
	}
}
