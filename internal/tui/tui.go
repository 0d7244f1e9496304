// Package tui renders the chat session in the terminal: transcript,
// connection status, typing indicator, and the input box.
package tui

import (
	"fmt"
	"strings"

	"charm.land/bubbles/v2/spinner"
	"charm.land/bubbles/v2/textarea"
	"charm.land/bubbles/v2/viewport"
	tea "charm.land/bubbletea/v2"
	"github.com/charmbracelet/lipgloss"

	"github.com/raphaelgruber/termchat/internal/chat"
	"github.com/raphaelgruber/termchat/internal/conn"
	"github.com/raphaelgruber/termchat/internal/models"
)

// Theme holds the color scheme for the chat display.
type Theme struct {
	User      lipgloss.Color
	Assistant lipgloss.Color
	Online    lipgloss.Color
	Offline   lipgloss.Color
	Hint      lipgloss.Color
	Error     lipgloss.Color
}

// defaultTheme provides default colors.
var defaultTheme = Theme{
	User:      lipgloss.Color("#5FAFD7"), // light blue
	Assistant: lipgloss.Color("#00D787"), // green
	Online:    lipgloss.Color("#00D787"), // green
	Offline:   lipgloss.Color("#FF005F"), // red
	Hint:      lipgloss.Color("#6C6C6C"), // dim gray
	Error:     lipgloss.Color("#FF005F"), // red
}

func (t Theme) userStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.User).Bold(true)
}

func (t Theme) assistantStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Assistant).Bold(true)
}

func (t Theme) hintStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Hint).Italic(true)
}

func (t Theme) errorStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Error)
}

func (t Theme) statusStyle(online bool) lipgloss.Style {
	if online {
		return lipgloss.NewStyle().Foreground(t.Online)
	}
	return lipgloss.NewStyle().Foreground(t.Offline)
}

// snapshotMsg carries a fresh session snapshot into the model.
type snapshotMsg chat.Snapshot

// sendResultMsg reports the outcome of a SendMessage call.
type sendResultMsg struct {
	err error
}

// Model is the bubbletea model for the chat screen.
type Model struct {
	session *chat.Session
	theme   Theme

	viewport viewport.Model
	input    textarea.Model
	spinner  spinner.Model

	snap     chat.Snapshot
	width    int
	height   int
	ready    bool
	notice   string
	quitting bool
}

// New creates the chat model bound to a running session.
func New(session *chat.Session) Model {
	input := textarea.New()
	input.Placeholder = "Type a message..."
	input.CharLimit = 10000
	input.SetHeight(1)
	input.ShowLineNumbers = false
	input.Focus()

	sp := spinner.New()

	return Model{
		session:  session,
		theme:    defaultTheme,
		viewport: viewport.New(),
		input:    input,
		spinner:  sp,
		snap:     session.Snapshot(),
	}
}

// Init starts the snapshot subscription and the input cursor.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.waitForUpdate(),
		m.spinner.Tick,
		textarea.Blink,
	)
}

// Update handles messages and returns the updated model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.layout()
		m.ready = true
		m.refreshTranscript(true)
		return m, nil

	case tea.KeyPressMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit

		case "enter":
			return m.submit()

		case "pgup", "ctrl+u":
			wasAtTop := m.viewport.AtTop()
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			// Scrolling against the top asks for older history.
			if wasAtTop && m.snap.HasMore && !m.snap.Loading {
				m.session.LoadOlderMessages()
			}
			return m, cmd

		case "pgdown", "ctrl+d":
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}

		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd

	case snapshotMsg:
		atBottom := m.viewport.AtBottom()
		m.snap = chat.Snapshot(msg)
		m.refreshTranscript(atBottom)
		return m, m.waitForUpdate()

	case sendResultMsg:
		if msg.err != nil {
			m.notice = msg.err.Error()
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmds []tea.Cmd
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

// View renders the chat screen.
func (m Model) View() tea.View {
	if m.quitting || !m.ready {
		return tea.NewView("")
	}

	var b strings.Builder
	b.WriteString(m.header())
	b.WriteString("\n")
	b.WriteString(m.viewport.View())
	b.WriteString("\n")
	b.WriteString(m.statusLine())
	b.WriteString("\n")
	b.WriteString(m.inputArea())
	return tea.NewView(b.String())
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	content := strings.TrimSpace(m.input.Value())
	if content == "" {
		return m, nil
	}
	if !m.snap.Connected {
		// Send affordance is disabled while disconnected.
		m.notice = "disconnected - message not sent"
		return m, nil
	}

	m.input.Reset()
	m.notice = ""
	session := m.session
	return m, func() tea.Msg {
		return sendResultMsg{err: session.SendMessage(content)}
	}
}

// waitForUpdate blocks on the session's change signal and delivers a fresh
// snapshot. Re-issued after every snapshotMsg.
func (m Model) waitForUpdate() tea.Cmd {
	session := m.session
	return func() tea.Msg {
		<-session.Updates()
		return snapshotMsg(session.Snapshot())
	}
}

func (m *Model) layout() {
	m.viewport.SetWidth(m.width)
	m.viewport.SetHeight(max(m.height-5, 3))
	m.input.SetWidth(max(m.width-2, 10))
}

func (m *Model) refreshTranscript(stickToBottom bool) {
	if !m.ready {
		return
	}
	m.viewport.SetContent(renderTranscript(m.snap, m.theme, m.width))
	if stickToBottom {
		m.viewport.GotoBottom()
	}
}

func (m Model) header() string {
	var status string
	switch m.snap.ConnState {
	case conn.StateOpen:
		status = m.theme.statusStyle(true).Render("● Online")
	case conn.StateConnecting:
		status = m.theme.statusStyle(false).Render("○ Connecting...")
	case conn.StateRetrying:
		status = m.theme.statusStyle(false).Render("○ Reconnecting...")
	default:
		status = m.theme.statusStyle(false).Render("○ Offline")
	}

	title := lipgloss.NewStyle().Bold(true).Render("termchat")
	return fmt.Sprintf("%s  %s", title, status)
}

func (m Model) statusLine() string {
	if m.snap.Loading {
		return m.spinner.View() + " " + m.theme.hintStyle().Render("loading older messages...")
	}
	if m.snap.Typing {
		return m.theme.assistantStyle().Render("assistant is typing...")
	}
	if m.notice != "" {
		return m.theme.errorStyle().Render(m.notice)
	}
	return ""
}

func (m Model) inputArea() string {
	if !m.snap.Connected {
		return m.theme.hintStyle().Render("(input disabled while disconnected)")
	}
	return m.input.View()
}

// renderTranscript builds the scrollback content for a snapshot.
func renderTranscript(snap chat.Snapshot, theme Theme, width int) string {
	var b strings.Builder

	if !snap.HasMore && len(snap.Messages) > 0 {
		b.WriteString(theme.hintStyle().Render("— start of conversation —"))
		b.WriteString("\n\n")
	}

	if len(snap.Messages) == 0 {
		b.WriteString(theme.hintStyle().Render("No messages yet. Start a conversation!"))
		b.WriteString("\n")
		return b.String()
	}

	for _, msg := range snap.Messages {
		b.WriteString(renderMessage(msg, theme))
		b.WriteString("\n")
	}
	return b.String()
}

// renderMessage formats one message as "sender time\ncontent".
func renderMessage(msg models.Message, theme Theme) string {
	var sender string
	if msg.Role == models.RoleUser {
		sender = theme.userStyle().Render("you")
	} else {
		sender = theme.assistantStyle().Render("assistant")
	}

	meta := theme.hintStyle().Render(formatTimestamp(msg))
	return fmt.Sprintf("%s %s\n%s\n", sender, meta, msg.Content)
}

// formatTimestamp renders the message time; provisional entries show a
// sending marker instead, since their timestamp is only a local guess.
func formatTimestamp(msg models.Message) string {
	if msg.Provisional() {
		return "sending..."
	}
	return msg.CreatedAt.Local().Format("Jan 2 15:04")
}

// Run starts the interactive chat UI and blocks until the user quits.
func Run(session *chat.Session) error {
	p := tea.NewProgram(New(session))
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("chat UI error: %w", err)
	}
	return nil
}
