package cli

import (
	"context"
	"errors"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/receipt-ledger/internal/query"
)

// fakeAsker returns a fixed reply and records requests.
type fakeAsker struct {
	resp     *query.Response
	err      error
	requests []query.Request
	calls    int
}

func (f *fakeAsker) Ask(_ context.Context, req query.Request) (*query.Response, error) {
	f.calls++
	f.requests = append(f.requests, req)
	return f.resp, f.err
}

// collect runs cmd and any batched commands, returning the messages.
func collect(cmd tea.Cmd) []tea.Msg {
	if cmd == nil {
		return nil
	}
	msg := cmd()
	if batch, ok := msg.(tea.BatchMsg); ok {
		var msgs []tea.Msg
		for _, c := range batch {
			msgs = append(msgs, collect(c)...)
		}
		return msgs
	}
	return []tea.Msg{msg}
}

func findAnswer(t *testing.T, msgs []tea.Msg) answerMsg {
	t.Helper()
	for _, msg := range msgs {
		if a, ok := msg.(answerMsg); ok {
			return a
		}
	}
	require.FailNow(t, "no answer message produced")
	return answerMsg{}
}

func TestChatModel_AskAndAnswer(t *testing.T) {
	asker := &fakeAsker{resp: &query.Response{
		SessionID:          "s-1",
		Message:            "Found 1 receipt above Rp 50,000",
		Source:             query.SourceRules,
		ReferencedReceipts: []int64{2},
	}}
	m := NewChatModel(context.Background(), asker, ChatOptions{})

	m.input.SetValue("show receipts above 50000")
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(ChatModel)

	assert.True(t, m.waiting)
	assert.Empty(t, m.input.Value())
	assert.Contains(t, m.View(), "Thinking...")

	answer := findAnswer(t, collect(cmd))
	require.Len(t, asker.requests, 1)
	assert.Equal(t, "show receipts above 50000", asker.requests[0].Message)
	assert.Empty(t, asker.requests[0].SessionID)

	next, _ = m.Update(answer)
	m = next.(ChatModel)
	assert.False(t, m.waiting)
	assert.Equal(t, "s-1", m.SessionID())
	assert.Contains(t, m.transcript[len(m.transcript)-1], "Found 1 receipt above Rp 50,000")
	assert.Contains(t, m.transcript[len(m.transcript)-1], "#2")

	// The next question continues the session.
	m.input.SetValue("and below?")
	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	findAnswer(t, collect(cmd))
	require.Len(t, asker.requests, 2)
	assert.Equal(t, "s-1", asker.requests[1].SessionID)
}

func TestChatModel_IgnoresEnterWhileWaiting(t *testing.T) {
	asker := &fakeAsker{resp: &query.Response{SessionID: "s"}}
	m := NewChatModel(context.Background(), asker, ChatOptions{})
	m.waiting = true
	m.input.SetValue("again")

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Nil(t, cmd)
	assert.Zero(t, asker.calls)
}

func TestChatModel_Commands(t *testing.T) {
	asker := &fakeAsker{}
	m := NewChatModel(context.Background(), asker, ChatOptions{ModelAvailable: true})

	m.input.SetValue("/model")
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(ChatModel)
	assert.Nil(t, cmd)
	assert.True(t, m.session.opts.UseModel)
	assert.Contains(t, m.View(), RobotIcon)

	m.input.SetValue("/quit")
	next, cmd = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(ChatModel)
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
	assert.True(t, m.quitting)
	assert.Empty(t, m.View())
	assert.Zero(t, asker.calls)
}

func TestChatModel_EscQuits(t *testing.T) {
	m := NewChatModel(context.Background(), &fakeAsker{}, ChatOptions{})
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}

func TestChatModel_Errors(t *testing.T) {
	t.Run("execution error stays in chat", func(t *testing.T) {
		m := NewChatModel(context.Background(), &fakeAsker{}, ChatOptions{})
		resp := &query.Response{SessionID: "s-2", Message: "query execution failed: no such column"}
		next, _ := m.Update(answerMsg{resp: resp, err: &query.ExecutionError{Err: errors.New("no such column")}})
		m = next.(ChatModel)
		assert.Equal(t, "s-2", m.SessionID())
		assert.Contains(t, m.transcript[len(m.transcript)-1], "no such column")
	})

	t.Run("storage failure is shown", func(t *testing.T) {
		m := NewChatModel(context.Background(), &fakeAsker{}, ChatOptions{})
		next, _ := m.Update(answerMsg{err: errors.New("database is locked")})
		m = next.(ChatModel)
		assert.Contains(t, m.transcript[len(m.transcript)-1], "failed to answer question: database is locked")
	})
}

func TestChatModel_WindowSize(t *testing.T) {
	m := NewChatModel(context.Background(), &fakeAsker{}, ChatOptions{})
	next, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	m = next.(ChatModel)
	assert.Equal(t, 100, m.viewport.Width)
	assert.Equal(t, 30-chrome, m.viewport.Height)
}

func TestChatSession_Command(t *testing.T) {
	tests := []struct {
		name     string
		line     string
		opts     ChatOptions
		handled  bool
		quit     bool
		contains string
	}{
		{name: "blank", line: "   ", handled: true},
		{name: "quit", line: "/quit", handled: true, quit: true},
		{name: "exit uppercase", line: "/EXIT", handled: true, quit: true},
		{name: "help", line: "/help", handled: true, contains: "/model"},
		{name: "model unavailable", line: "/model", handled: true, contains: "No language model"},
		{name: "model toggled", line: "/model", opts: ChatOptions{ModelAvailable: true}, handled: true, contains: "Model answers: on"},
		{name: "question", line: "how many receipts", handled: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &chatSession{opts: tt.opts}
			got, handled := s.command(tt.line)
			assert.Equal(t, tt.handled, handled)
			assert.Equal(t, tt.quit, got.quit)
			if tt.contains != "" {
				assert.Contains(t, got.output, tt.contains)
			}
		})
	}
}

func TestChatSession_RequestNeedsModel(t *testing.T) {
	s := &chatSession{opts: ChatOptions{UseModel: true, SessionID: "abc"}}
	req := s.request("total spending")
	assert.False(t, req.UseModel)
	assert.Equal(t, "abc", req.SessionID)

	s.opts.ModelAvailable = true
	assert.True(t, s.request("total spending").UseModel)
}
