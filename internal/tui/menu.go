package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
)

// MenuItem is one action on the account screen.
type MenuItem struct {
	ID          string
	Label       string
	Description string
	Disabled    bool
}

// Menu is a vertical action list. Enter picks the item under the cursor.
type Menu struct {
	items  []MenuItem
	cursor int
	picked string
}

// NewMenu creates a menu with the cursor on the first enabled item.
func NewMenu(items []MenuItem) Menu {
	m := Menu{items: items}
	for i, item := range items {
		if !item.Disabled {
			m.cursor = i
			break
		}
	}
	return m
}

// SetItems replaces the items, keeping the cursor on the same ID if present.
func (m *Menu) SetItems(items []MenuItem) {
	current := m.Current()
	m.items = items
	m.cursor = 0
	for i, item := range items {
		if item.ID == current && !item.Disabled {
			m.cursor = i
			return
		}
	}
	for i, item := range items {
		if !item.Disabled {
			m.cursor = i
			return
		}
	}
}

// Current returns the ID under the cursor.
func (m *Menu) Current() string {
	if m.cursor >= 0 && m.cursor < len(m.items) {
		return m.items[m.cursor].ID
	}
	return ""
}

// Picked returns and clears the last chosen ID.
func (m *Menu) Picked() string {
	id := m.picked
	m.picked = ""
	return id
}

// Update handles navigation and selection
func (m *Menu) Update(msg tea.Msg) (*Menu, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	switch key.String() {
	case "up", "k":
		m.move(-1)
	case "down", "j":
		m.move(1)
	case "enter":
		if m.cursor < len(m.items) && !m.items[m.cursor].Disabled {
			m.picked = m.items[m.cursor].ID
		}
	}
	return m, nil
}

func (m *Menu) move(delta int) {
	for i := m.cursor + delta; i >= 0 && i < len(m.items); i += delta {
		if !m.items[i].Disabled {
			m.cursor = i
			return
		}
	}
}

// View renders the menu
func (m *Menu) View() string {
	var b strings.Builder
	for i, item := range m.items {
		isCursor := i == m.cursor
		if isCursor {
			b.WriteString(MenuCursor.Render(SymbolArrow) + " ")
		} else {
			b.WriteString("  ")
		}

		label := fmt.Sprintf("%-28s", item.Label)
		switch {
		case item.Disabled:
			b.WriteString(MenuDim.Render(label))
		case isCursor:
			b.WriteString(MenuActive.Render(label))
		default:
			b.WriteString(MenuItemStyle.Render(label))
		}
		if item.Description != "" {
			b.WriteString(MenuDim.Render(item.Description))
		}
		b.WriteString("\n")
	}
	return b.String()
}
