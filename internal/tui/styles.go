package tui

import "github.com/charmbracelet/lipgloss"

var (
	ColorPrimary   = lipgloss.Color("205")
	ColorSuccess   = lipgloss.Color("35")
	ColorWarning   = lipgloss.Color("214")
	ColorError     = lipgloss.Color("196")
	ColorDim       = lipgloss.Color("241")
	ColorAccent    = lipgloss.Color("39")
	ColorHighlight = lipgloss.Color("212")
)

const (
	SymbolPrompt = "❯"
	SymbolBullet = "●"
	SymbolTree   = "└"
	SymbolArrow  = "▸"
	SymbolCheck  = "✓"
	SymbolCross  = "✗"
)

var (
	TitleStyle = lipgloss.NewStyle().
			Foreground(ColorPrimary).
			Bold(true)

	LabelStyle = lipgloss.NewStyle().
			Foreground(ColorDim).
			Width(16)

	ValueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))

	AddressStyle = lipgloss.NewStyle().
			Foreground(ColorAccent)

	HashStyle = lipgloss.NewStyle().
			Foreground(ColorSuccess).
			Bold(true)

	LinkStyle = lipgloss.NewStyle().
			Foreground(ColorAccent).
			Underline(true)

	PromptStyle = lipgloss.NewStyle().
			Foreground(ColorAccent).
			Bold(true)

	PendingStyle = lipgloss.NewStyle().
			Foreground(ColorWarning)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(ColorError)

	MenuCursor = lipgloss.NewStyle().
			Foreground(ColorAccent).
			Bold(true)

	MenuItemStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))

	MenuActive = lipgloss.NewStyle().
			Foreground(ColorHighlight).
			Bold(true)

	MenuDim = lipgloss.NewStyle().
			Foreground(ColorDim)

	HelpStyle = lipgloss.NewStyle().
			Foreground(ColorDim)
)
