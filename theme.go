package synapse

// Theme defines semantic color mappings using ANSI color indices (0-15),
// so the terminal's own palette decides the actual colors.
type Theme struct {
	UserMsg  int // Trader message accent
	ToolCall int // Tool call header
	Error    int // Error messages and failed checks
	Success  int // Successful tool results
	Muted    int // Status bar, placeholders
	Accent   int // Assistant name
}

// DefaultTheme returns the default ANSI color mapping.
func DefaultTheme() Theme {
	return Theme{
		UserMsg:  4,
		ToolCall: 3,
		Error:    1,
		Success:  2,
		Muted:    8,
		Accent:   5,
	}
}
