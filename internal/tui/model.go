// Package tui is the interactive front-end: an email sign-in screen and an
// account screen that sends the demo transaction and shows its hash.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/browser"
	"github.com/yolodolo42/aaflow/internal/chain"
	"github.com/yolodolo42/aaflow/internal/flow"
	"github.com/yolodolo42/aaflow/internal/identity"
)

const (
	signInTimeout = 2 * time.Minute
	sendTimeout   = 3 * time.Minute
)

// Flow is what the UI drives. *flow.Controller implements it.
type Flow interface {
	State() flow.State
	SignIn(ctx context.Context) error
	SendTransaction(ctx context.Context) (common.Hash, error)
	SignOut(ctx context.Context) error
}

// ErrNoCredentials is returned to the identity provider when a login starts
// before the form was submitted.
var ErrNoCredentials = errors.New("no credentials entered")

// CredentialSource hands the form values to the identity provider. Each
// submitted set is consumed by exactly one login.
type CredentialSource struct {
	mu    sync.Mutex
	creds *identity.Credentials
}

// NewCredentialSource returns an empty source.
func NewCredentialSource() *CredentialSource {
	return &CredentialSource{}
}

// Set stores credentials for the next login.
func (s *CredentialSource) Set(c identity.Credentials) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds = &c
}

// Func adapts the source to identity.CredentialsFunc.
func (s *CredentialSource) Func() identity.CredentialsFunc {
	return func(ctx context.Context) (identity.Credentials, error) {
		if err := ctx.Err(); err != nil {
			return identity.Credentials{}, err
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.creds == nil {
			return identity.Credentials{}, ErrNoCredentials
		}
		c := *s.creds
		s.creds = nil
		return c, nil
	}
}

// Bridge forwards controller transitions into a running program. Pass
// OnChange as flow.Config.OnChange.
type Bridge struct {
	mu sync.Mutex
	p  *tea.Program
}

// OnChange sends s to the attached program, if any.
func (b *Bridge) OnChange(s flow.State) {
	b.mu.Lock()
	p := b.p
	b.mu.Unlock()
	if p != nil {
		p.Send(stateMsg(s))
	}
}

func (b *Bridge) attach(p *tea.Program) {
	b.mu.Lock()
	b.p = p
	b.mu.Unlock()
}

// Options configures the UI.
type Options struct {
	Chain       *chain.ChainConfig
	ExplorerURL string // empty means the chain's explorer
	Credentials *CredentialSource
	Sponsored   bool
	OpenURL     func(url string) error  // defaults to browser.OpenURL
	CopyText    func(text string) error // defaults to clipboard.WriteAll
}

type stateMsg flow.State

type signInMsg struct{ err error }

type sendMsg struct {
	hash common.Hash
	err  error
}

type signOutMsg struct{ err error }

type openedMsg struct {
	url string
	err error
}

type copiedMsg struct {
	text string
	err  error
}

// Menu item IDs on the account screen.
const (
	actionSend    = "send"
	actionOpen    = "open"
	actionCopy    = "copy"
	actionSignOut = "signout"
	actionQuit    = "quit"
)

// Model is the bubbletea model for the whole UI.
type Model struct {
	ctx     context.Context
	flow    Flow
	opts    Options
	state   flow.State
	form    Form
	menu    Menu
	spinner spinner.Model
	notice  string
	uiErr   error
	width   int
	quit    bool
}

// New builds the initial model from the controller's current state.
func New(ctx context.Context, f Flow, opts Options) Model {
	if opts.Credentials == nil {
		opts.Credentials = NewCredentialSource()
	}
	if opts.OpenURL == nil {
		opts.OpenURL = browser.OpenURL
	}
	if opts.CopyText == nil {
		opts.CopyText = clipboard.WriteAll
	}

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(ColorPrimary)

	m := Model{
		ctx:     ctx,
		flow:    f,
		opts:    opts,
		state:   f.State(),
		form:    NewForm(),
		spinner: sp,
		width:   80,
	}
	m.menu = NewMenu(m.menuItems())
	return m
}

// Init starts the cursor blink and spinner.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick)
}

// State is the last controller state the UI rendered.
func (m Model) State() flow.State {
	return m.state
}

// Update handles messages and updates state
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			m.quit = true
			return m, tea.Quit
		}
		switch {
		case m.state.Phase == flow.PhaseDisconnected && m.state.Connected:
			return m.updateRetry(msg)
		case m.state.Phase == flow.PhaseDisconnected:
			return m.updateSignIn(msg)
		case m.state.Phase == flow.PhaseConnecting:
			if msg.String() == "x" {
				return m.act(actionSignOut)
			}
			return m, nil
		case m.state.Ready() || m.state.Phase == flow.PhasePending:
			return m.updateAccount(msg)
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.form.SetWidth(msg.Width)
		return m, nil

	case stateMsg:
		m.setState(flow.State(msg))
		return m, nil

	case signInMsg:
		// The passphrase is cleared whatever the outcome; a failure is
		// already in the controller state.
		m.setState(m.flow.State())
		return m, m.form.Reset()

	case sendMsg:
		m.setState(m.flow.State())
		return m, nil

	case signOutMsg:
		m.setState(m.flow.State())
		m.notice = ""
		if msg.err != nil {
			m.uiErr = msg.err
		}
		return m, m.form.Reset()

	case openedMsg:
		if msg.err != nil {
			m.uiErr = fmt.Errorf("open browser: %w", msg.err)
		} else {
			m.notice = "Opened " + msg.url
		}
		return m, nil

	case copiedMsg:
		if msg.err != nil {
			m.uiErr = fmt.Errorf("copy to clipboard: %w", msg.err)
		} else {
			m.notice = "Copied " + msg.text
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	if m.state.Phase == flow.PhaseDisconnected {
		var cmd tea.Cmd
		_, cmd = m.form.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) updateSignIn(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.quit = true
		return m, tea.Quit
	case tea.KeyTab, tea.KeyDown:
		return m, m.form.Next()
	case tea.KeyShiftTab, tea.KeyUp:
		return m, m.form.Prev()
	case tea.KeyEnter:
		if !m.form.OnLast() {
			return m, m.form.Next()
		}
		if !m.form.Complete() {
			m.uiErr = errors.New("email and passphrase are required")
			return m, nil
		}
		m.uiErr = nil
		m.notice = ""
		m.opts.Credentials.Set(m.form.Credentials())
		return m, m.signIn()
	}

	var cmd tea.Cmd
	_, cmd = m.form.Update(msg)
	return m, cmd
}

// updateRetry handles a live session whose smart account setup failed. The
// session is reused by a retry, so the credential form is not offered.
func (m Model) updateRetry(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "r", "enter":
		m.uiErr = nil
		m.notice = ""
		return m, m.signIn()
	case "x":
		return m.act(actionSignOut)
	case "q", "esc":
		return m.act(actionQuit)
	}
	return m, nil
}

func (m Model) updateAccount(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q":
		m.quit = true
		return m, tea.Quit
	case "s":
		return m.act(actionSend)
	case "o":
		return m.act(actionOpen)
	case "c":
		return m.act(actionCopy)
	case "x":
		return m.act(actionSignOut)
	}

	m.menu.Update(msg)
	if id := m.menu.Picked(); id != "" {
		return m.act(id)
	}
	return m, nil
}

func (m Model) act(id string) (tea.Model, tea.Cmd) {
	m.uiErr = nil
	switch id {
	case actionSend:
		if !m.state.Ready() {
			return m, nil
		}
		m.notice = ""
		return m, m.send()
	case actionOpen:
		if !m.state.HasResult() {
			return m, nil
		}
		return m, m.open(m.TxURL())
	case actionCopy:
		if !m.state.HasResult() {
			return m, nil
		}
		return m, m.copyHash(m.state.TxHash.Hex())
	case actionSignOut:
		return m, m.signOut()
	case actionQuit:
		m.quit = true
		return m, tea.Quit
	}
	return m, nil
}

func (m *Model) setState(s flow.State) {
	m.state = s
	m.menu.SetItems(m.menuItems())
}

func (m Model) menuItems() []MenuItem {
	pending := m.state.Phase == flow.PhasePending
	return []MenuItem{
		{ID: actionSend, Label: "Send demo transaction", Description: "s", Disabled: pending},
		{ID: actionOpen, Label: "Open in explorer", Description: "o", Disabled: !m.state.HasResult()},
		{ID: actionCopy, Label: "Copy transaction hash", Description: "c", Disabled: !m.state.HasResult()},
		{ID: actionSignOut, Label: "Sign out", Description: "x"},
		{ID: actionQuit, Label: "Quit", Description: "q"},
	}
}

// TxURL links the displayed transaction hash, or is empty without one.
func (m Model) TxURL() string {
	if !m.state.HasResult() || m.opts.Chain == nil {
		return ""
	}
	return m.opts.Chain.TxURL(m.opts.ExplorerURL, m.state.TxHash)
}

func (m Model) signIn() tea.Cmd {
	f, ctx := m.flow, m.ctx
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(ctx, signInTimeout)
		defer cancel()
		return signInMsg{err: f.SignIn(ctx)}
	}
}

func (m Model) send() tea.Cmd {
	f, ctx := m.flow, m.ctx
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(ctx, sendTimeout)
		defer cancel()
		hash, err := f.SendTransaction(ctx)
		return sendMsg{hash: hash, err: err}
	}
}

func (m Model) signOut() tea.Cmd {
	f, ctx := m.flow, m.ctx
	return func() tea.Msg {
		return signOutMsg{err: f.SignOut(ctx)}
	}
}

func (m Model) open(url string) tea.Cmd {
	openURL := m.opts.OpenURL
	return func() tea.Msg {
		return openedMsg{url: url, err: openURL(url)}
	}
}

func (m Model) copyHash(text string) tea.Cmd {
	copyText := m.opts.CopyText
	return func() tea.Msg {
		return copiedMsg{text: text, err: copyText(text)}
	}
}

// View renders the UI
func (m Model) View() string {
	if m.quit {
		return ""
	}

	var b strings.Builder
	title := "  aaflow"
	if m.opts.Chain != nil {
		title += " · " + m.opts.Chain.Name
	}
	b.WriteString(TitleStyle.Render(title) + "\n\n")

	switch {
	case m.state.Phase == flow.PhaseDisconnected && m.state.Connected:
		b.WriteString(m.viewRetry())
	case m.state.Phase == flow.PhaseDisconnected:
		b.WriteString(m.viewSignIn())
	case m.state.Phase == flow.PhaseConnecting:
		b.WriteString(m.viewConnecting())
	default:
		b.WriteString(m.viewAccount())
	}

	if err := m.displayErr(); err != nil {
		b.WriteString("\n" + ErrorStyle.Render(SymbolCross+" "+err.Error()) + "\n")
	}
	if m.notice != "" {
		b.WriteString("\n" + HelpStyle.Render(m.notice) + "\n")
	}
	return b.String()
}

func (m Model) displayErr() error {
	if m.uiErr != nil {
		return m.uiErr
	}
	return m.state.Err
}

func (m Model) viewSignIn() string {
	var b strings.Builder
	b.WriteString("Sign in with email. A wallet is created on first sign-in.\n\n")
	b.WriteString(m.form.View())
	b.WriteString("\n" + HelpStyle.Render("  tab switch field • enter sign in • esc quit"))
	b.WriteString("\n")
	return b.String()
}

func (m Model) viewConnecting() string {
	step := "Signing in..."
	if m.state.WalletAddress != (common.Address{}) {
		step = "Deriving smart account..."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "  %s %s\n", m.spinner.View(), PendingStyle.Render(step))
	if m.state.WalletAddress != (common.Address{}) {
		b.WriteString("\n" + m.row("Wallet", AddressStyle.Render(m.state.WalletAddress.Hex())))
	}
	b.WriteString("\n" + HelpStyle.Render("  x sign out • ctrl+c quit"))
	b.WriteString("\n")
	return b.String()
}

func (m Model) viewRetry() string {
	var b strings.Builder
	b.WriteString("Signed in, but the smart account could not be set up.\n\n")
	if m.state.WalletAddress != (common.Address{}) {
		b.WriteString(m.row("Wallet", AddressStyle.Render(m.state.WalletAddress.Hex())))
		b.WriteString("\n")
	}
	b.WriteString(HelpStyle.Render("  r retry • x sign out • q quit"))
	b.WriteString("\n")
	return b.String()
}

func (m Model) viewAccount() string {
	var b strings.Builder
	b.WriteString(m.row("Wallet", AddressStyle.Render(m.state.WalletAddress.Hex())))
	b.WriteString(m.row("Smart account", AddressStyle.Render(m.state.AccountAddress.Hex())))
	gas := "self-paid"
	if m.opts.Sponsored {
		gas = "sponsored by paymaster"
	}
	b.WriteString(m.row("Gas", ValueStyle.Render(gas)))
	b.WriteString("\n")

	switch {
	case m.state.Phase == flow.PhasePending:
		fmt.Fprintf(&b, "  %s %s\n\n", m.spinner.View(), PendingStyle.Render("Submitting user operation..."))
	case m.state.HasResult():
		b.WriteString(HashStyle.Render("  "+SymbolCheck+" Transaction included") + "\n")
		b.WriteString(m.row("Hash", HashStyle.Render(m.state.TxHash.Hex())))
		if url := m.TxURL(); url != "" {
			b.WriteString(m.row("Explorer", LinkStyle.Render(url)))
		}
		b.WriteString("\n")
	}

	b.WriteString(m.menu.View())
	b.WriteString("\n" + HelpStyle.Render("  ↑/↓ navigate • enter select • ctrl+c quit"))
	b.WriteString("\n")
	return b.String()
}

func (m Model) row(label, value string) string {
	return "  " + LabelStyle.Render(label) + value + "\n"
}

// Run shows the UI until the user quits. bridge, when non-nil, must be the
// one whose OnChange the controller was built with.
func Run(ctx context.Context, f Flow, bridge *Bridge, opts Options) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(New(ctx, f, opts), tea.WithAltScreen(), tea.WithContext(ctx))
	if bridge != nil {
		bridge.attach(p)
		defer bridge.attach(nil)
	}

	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
