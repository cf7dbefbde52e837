package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/yolodolo42/aaflow/internal/identity"
)

// Form collects the email and passphrase for an email login.
type Form struct {
	inputs []textinput.Model
	focus  int
	width  int
}

const (
	fieldEmail = iota
	fieldPassphrase
)

// NewForm creates an empty login form focused on the email field.
func NewForm() Form {
	email := textinput.New()
	email.Placeholder = "you@example.com"
	email.CharLimit = 254
	email.Width = 40
	email.Prompt = ""
	email.Focus()

	pass := textinput.New()
	pass.Placeholder = "passphrase"
	pass.CharLimit = 256
	pass.Width = 40
	pass.Prompt = ""
	pass.EchoMode = textinput.EchoPassword
	pass.EchoCharacter = '•'

	return Form{
		inputs: []textinput.Model{email, pass},
		width:  80,
	}
}

// SetWidth sets the width of both inputs
func (f *Form) SetWidth(w int) {
	f.width = w
	for i := range f.inputs {
		f.inputs[i].Width = max(w-20, 10)
	}
}

// Credentials returns the entered values.
func (f *Form) Credentials() identity.Credentials {
	return identity.Credentials{
		Email:      strings.TrimSpace(f.inputs[fieldEmail].Value()),
		Passphrase: f.inputs[fieldPassphrase].Value(),
	}
}

// Complete reports whether both fields are filled in.
func (f *Form) Complete() bool {
	c := f.Credentials()
	return c.Email != "" && c.Passphrase != ""
}

// OnLast reports whether the passphrase field has focus.
func (f *Form) OnLast() bool {
	return f.focus == len(f.inputs)-1
}

// Next moves focus to the next field, wrapping around.
func (f *Form) Next() tea.Cmd {
	return f.setFocus((f.focus + 1) % len(f.inputs))
}

// Prev moves focus to the previous field, wrapping around.
func (f *Form) Prev() tea.Cmd {
	return f.setFocus((f.focus + len(f.inputs) - 1) % len(f.inputs))
}

func (f *Form) setFocus(i int) tea.Cmd {
	f.inputs[f.focus].Blur()
	f.focus = i
	return f.inputs[f.focus].Focus()
}

// Reset clears the passphrase and keeps the email for the next attempt.
func (f *Form) Reset() tea.Cmd {
	f.inputs[fieldPassphrase].Reset()
	return f.setFocus(fieldPassphrase)
}

// Update forwards input events to the focused field
func (f *Form) Update(msg tea.Msg) (*Form, tea.Cmd) {
	var cmd tea.Cmd
	f.inputs[f.focus], cmd = f.inputs[f.focus].Update(msg)
	return f, cmd
}

// View renders the form
func (f *Form) View() string {
	labels := []string{"Email", "Passphrase"}

	var b strings.Builder
	for i, in := range f.inputs {
		marker := MenuDim.Render(SymbolPrompt)
		if i == f.focus {
			marker = PromptStyle.Render(SymbolPrompt)
		}
		b.WriteString(marker + " " + LabelStyle.Render(labels[i]) + in.View())
		b.WriteString("\n")
	}
	return b.String()
}
