package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/mhma/stockbarcode/internal/version"
)

// Application branding constants
const (
	AppName = "STOCK BARCODE"
)

// AppVersion returns the application version from the centralized version package
func AppVersion() string {
	return version.Version
}

// Layout constants for responsive terminal width
const (
	MinTerminalWidth = 60  // Minimum supported terminal width
	MaxContentWidth  = 120 // Maximum content width before capping
)

// Color palette
var (
	PrimaryColor   = lipgloss.Color("#7D56F4") // Purple
	SecondaryColor = lipgloss.Color("#43BF6D") // Green
	AccentColor    = lipgloss.Color("#FF8B94") // Pink
	WarningColor   = lipgloss.Color("#FFA500") // Orange
	ErrorColor     = lipgloss.Color("#FF5555") // Red
	InfoColor      = lipgloss.Color("#5FAFFF") // Blue

	TextColor       = lipgloss.Color("#FFFFFF") // White
	SubtleColor     = lipgloss.Color("#626262") // Gray
	BorderColor     = lipgloss.Color("#7D56F4") // Purple (same as primary)
	HighlightColor  = lipgloss.Color("#43BF6D") // Green (same as secondary)
	BackgroundColor = lipgloss.Color("#1A1A1A") // Dark gray
)

// Common styles
var (
	TitleStyle = lipgloss.NewStyle().
			Foreground(PrimaryColor).
			Bold(true)

	SubtitleStyle = lipgloss.NewStyle().
			Foreground(SubtleColor).
			Italic(true)

	MenuItemStyle = lipgloss.NewStyle().
			PaddingLeft(4).
			Foreground(TextColor)

	SelectedMenuItemStyle = lipgloss.NewStyle().
				PaddingLeft(2).
				Foreground(HighlightColor).
				Bold(true)

	DisabledMenuItemStyle = lipgloss.NewStyle().
				PaddingLeft(4).
				Foreground(SubtleColor)

	SpinnerStyle = lipgloss.NewStyle().
			Foreground(PrimaryColor)

	// Line list styles. A line is pending, partially done or done; the
	// highlighted line (the one the next scan applies to) is reversed.
	LinePendingStyle   = lipgloss.NewStyle().Foreground(TextColor)
	LinePartialStyle   = lipgloss.NewStyle().Foreground(WarningColor)
	LineDoneStyle      = lipgloss.NewStyle().Foreground(SecondaryColor)
	LineDetailStyle    = lipgloss.NewStyle().Foreground(SubtleColor).PaddingLeft(4)
	LineHighlightStyle = lipgloss.NewStyle().Reverse(true).Bold(true)
	GroupHeaderStyle   = lipgloss.NewStyle().Foreground(PrimaryColor).Bold(true)
	PackageHeaderStyle = lipgloss.NewStyle().Foreground(AccentColor).Bold(true)

	// ValidateButtonStyle is used for the validate hint once every line is done
	ValidateButtonStyle = lipgloss.NewStyle().
				Foreground(BackgroundColor).
				Background(SecondaryColor).
				Bold(true).
				Padding(0, 1)

	NoteStyle = lipgloss.NewStyle().
			Foreground(WarningColor).
			Italic(true)

	FocusedInputStyle = lipgloss.NewStyle().
				Foreground(PrimaryColor).
				Bold(true)

	BlurredInputStyle = lipgloss.NewStyle().
				Foreground(SubtleColor)

	DialogStyle = lipgloss.NewStyle().
			Border(lipgloss.DoubleBorder()).
			BorderForeground(WarningColor).
			Padding(1, 2)

	FormStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(BorderColor).
			Padding(1, 2)

	FormKeyStyle = lipgloss.NewStyle().
			Foreground(SubtleColor).
			Width(16)
)

// NoticeStyle returns the style and marker for a notice level name.
func NoticeStyle(level string) (lipgloss.Style, string) {
	switch level {
	case "success":
		return lipgloss.NewStyle().Foreground(SecondaryColor).Bold(true), "✓"
	case "warning":
		return lipgloss.NewStyle().Foreground(WarningColor).Bold(true), "⚠"
	case "danger":
		return lipgloss.NewStyle().Foreground(ErrorColor).Bold(true), "✗"
	default:
		return lipgloss.NewStyle().Foreground(InfoColor), "●"
	}
}

// BuildHeaderContent creates header content with app name and version
func BuildHeaderContent(subject string) string {
	left := lipgloss.NewStyle().
		Foreground(TextColor).
		Bold(true).
		Render(AppName + " v" + AppVersion())

	right := lipgloss.NewStyle().
		Foreground(SubtleColor).
		Render(subject)

	return lipgloss.JoinHorizontal(lipgloss.Top, left, "  ", right)
}

// BuildFooterContent creates footer content with help text
func BuildFooterContent(helpText string) string {
	return lipgloss.NewStyle().
		Foreground(SubtleColor).
		Render(helpText)
}

// RenderApplicationContainer wraps every screen: application header,
// content, and a footer carrying the context-sensitive help. It fills the
// terminal and pins the footer to the bottom.
func RenderApplicationContainer(header, content, footerText string, terminalWidth, terminalHeight int) string {
	if terminalWidth < MinTerminalWidth {
		terminalWidth = MinTerminalWidth
	}
	if terminalHeight < 10 {
		terminalHeight = 10
	}

	headerStyle := lipgloss.NewStyle().
		BorderStyle(lipgloss.Border{Bottom: "─"}).
		BorderForeground(BorderColor).
		Width(terminalWidth-4). // Leave room for outer border
		Padding(0, 1)

	footerStyle := lipgloss.NewStyle().
		BorderStyle(lipgloss.Border{Top: "─"}).
		BorderForeground(BorderColor).
		Width(terminalWidth-4).
		Padding(0, 1)

	contentStyle := lipgloss.NewStyle().
		Width(terminalWidth - 4)

	inner := lipgloss.JoinVertical(
		lipgloss.Left,
		headerStyle.Render(header),
		contentStyle.Render(content),
		footerStyle.Render(BuildFooterContent(footerText)),
	)

	bordered := lipgloss.NewStyle().
		Border(lipgloss.NormalBorder()).
		BorderForeground(BorderColor).
		Width(terminalWidth - 2).
		Height(terminalHeight - 2).
		AlignVertical(lipgloss.Top).
		Render(inner)

	return lipgloss.Place(terminalWidth, terminalHeight, lipgloss.Left, lipgloss.Top, bordered)
}

// RenderModal centers a dialog over the screen.
func RenderModal(modalContent string, terminalWidth, terminalHeight int) string {
	return lipgloss.Place(
		terminalWidth,
		terminalHeight,
		lipgloss.Center,
		lipgloss.Center,
		modalContent,
		lipgloss.WithWhitespaceChars("░"),
		lipgloss.WithWhitespaceForeground(lipgloss.Color("240")),
	)
}

// SafeModalWidth returns the smaller of requestedWidth and what fits the
// terminal.
func SafeModalWidth(requestedWidth, terminalWidth int) int {
	maxWidth := terminalWidth - 4
	if maxWidth < 40 {
		maxWidth = 40
	}
	if requestedWidth < maxWidth {
		return requestedWidth
	}
	return maxWidth
}
