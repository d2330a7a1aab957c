package cli

import (
	"context"
	"errors"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Veraticus/receipt-ledger/internal/query"
)

// chatKeyMap defines the chat keyboard shortcuts.
type chatKeyMap struct {
	Submit     key.Binding
	Quit       key.Binding
	ScrollUp   key.Binding
	ScrollDown key.Binding
}

func defaultChatKeyMap() chatKeyMap {
	return chatKeyMap{
		Submit: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "ask"),
		),
		Quit: key.NewBinding(
			key.WithKeys("esc", "ctrl+c"),
			key.WithHelp("esc", "quit"),
		),
		ScrollUp: key.NewBinding(
			key.WithKeys("pgup"),
			key.WithHelp("pgup", "scroll up"),
		),
		ScrollDown: key.NewBinding(
			key.WithKeys("pgdown"),
			key.WithHelp("pgdn", "scroll down"),
		),
	}
}

func (k chatKeyMap) help() string {
	parts := make([]string, 0, 4)
	for _, b := range []key.Binding{k.Submit, k.ScrollUp, k.ScrollDown, k.Quit} {
		h := b.Help()
		parts = append(parts, h.Key+" "+h.Desc)
	}
	return SubtleStyle.Render(strings.Join(parts, " • ") + " • /help for commands")
}

// answerMsg carries the engine's reply back into the update loop.
type answerMsg struct {
	resp *query.Response
	err  error
}

// ChatModel is the full-screen chat.
type ChatModel struct {
	ctx        context.Context
	asker      Asker
	session    *chatSession
	transcript []string
	keys       chatKeyMap
	viewport   viewport.Model
	input      textinput.Model
	spinner    spinner.Model
	width      int
	waiting    bool
	quitting   bool
}

// chrome is the number of lines around the transcript.
const chrome = 4

// NewChatModel creates the chat model.
func NewChatModel(ctx context.Context, asker Asker, opts ChatOptions) ChatModel {
	input := textinput.New()
	input.Placeholder = "Ask about your receipts..."
	input.CharLimit = 500
	input.Prompt = FormatPrompt("ask")
	input.Focus()

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(PrimaryColor)

	m := ChatModel{
		ctx:      ctx,
		asker:    asker,
		session:  &chatSession{opts: opts},
		keys:     defaultChatKeyMap(),
		viewport: viewport.New(80, 20),
		input:    input,
		spinner:  s,
	}
	m.appendTranscript(SubtleStyle.Render(chatHelp))
	return m
}

// Init returns initial commands.
func (m ChatModel) Init() tea.Cmd {
	return textinput.Blink
}

// Update handles messages.
func (m ChatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.viewport.Width = msg.Width
		m.viewport.Height = max(msg.Height-chrome, 1)
		m.input.Width = max(msg.Width-lipgloss.Width(m.input.Prompt)-1, 10)
		m.refresh()

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			m.quitting = true
			return m, tea.Quit

		case key.Matches(msg, m.keys.Submit):
			if m.waiting {
				return m, nil
			}
			return m.submit()

		case key.Matches(msg, m.keys.ScrollUp), key.Matches(msg, m.keys.ScrollDown):
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			cmds = append(cmds, cmd)

		default:
			var cmd tea.Cmd
			m.input, cmd = m.input.Update(msg)
			cmds = append(cmds, cmd)
		}

	case answerMsg:
		m.waiting = false
		t, err := m.session.answer(msg.resp, msg.err)
		if err != nil {
			m.appendTranscript(FormatError(err.Error()))
		} else if t.output != "" {
			m.appendTranscript(t.output)
		}

	case spinner.TickMsg:
		if m.waiting {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			cmds = append(cmds, cmd)
		}
	}

	return m, tea.Batch(cmds...)
}

func (m ChatModel) submit() (tea.Model, tea.Cmd) {
	line := strings.TrimSpace(m.input.Value())
	m.input.SetValue("")

	if t, handled := m.session.command(line); handled {
		if t.quit {
			m.quitting = true
			return m, tea.Quit
		}
		if t.output != "" {
			m.appendTranscript(t.output)
		}
		return m, nil
	}

	m.appendTranscript(PromptStyle.Render("you: ") + line)
	m.waiting = true

	req := m.session.request(line)
	ctx, asker := m.ctx, m.asker
	ask := func() tea.Msg {
		resp, err := asker.Ask(ctx, req)
		return answerMsg{resp: resp, err: err}
	}
	return m, tea.Batch(m.spinner.Tick, ask)
}

func (m *ChatModel) appendTranscript(entry string) {
	m.transcript = append(m.transcript, entry)
	m.refresh()
}

func (m *ChatModel) refresh() {
	content := strings.Join(m.transcript, "\n\n")
	if m.width > 0 {
		content = lipgloss.NewStyle().Width(m.width).Render(content)
	}
	m.viewport.SetContent(content)
	m.viewport.GotoBottom()
}

// View renders the chat.
func (m ChatModel) View() string {
	if m.quitting {
		return ""
	}

	header := FormatTitle("Receipt ledger")
	if m.session.opts.UseModel && m.session.opts.ModelAvailable {
		header += " " + SubtleStyle.Render(RobotIcon+" model")
	}

	bottom := m.input.View()
	if m.waiting {
		bottom = m.spinner.View() + " " + SubtleStyle.Render("Thinking...")
	}

	return lipgloss.JoinVertical(
		lipgloss.Left,
		strings.TrimRight(header, "\n"),
		m.viewport.View(),
		bottom,
		m.keys.help(),
	)
}

// SessionID returns the session the chat is writing to.
func (m ChatModel) SessionID() string {
	return m.session.opts.SessionID
}

// RunChat runs the full-screen chat until the user quits or ctx is canceled.
// It returns the session ID.
func RunChat(ctx context.Context, asker Asker, opts ChatOptions) (string, error) {
	p := tea.NewProgram(NewChatModel(ctx, asker, opts), tea.WithContext(ctx), tea.WithAltScreen())

	final, err := p.Run()
	sessionID := opts.SessionID
	if cm, ok := final.(ChatModel); ok {
		sessionID = cm.SessionID()
	}
	if err != nil {
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return sessionID, nil
		}
		return sessionID, err
	}
	return sessionID, nil
}
