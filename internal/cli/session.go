package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Veraticus/receipt-ledger/internal/query"
)

// Asker answers questions. *query.Engine implements it.
type Asker interface {
	Ask(ctx context.Context, req query.Request) (*query.Response, error)
}

// ChatOptions configures an interactive chat.
type ChatOptions struct {
	// SessionID continues an existing session; empty starts a new one.
	SessionID      string
	UseModel       bool
	ModelAvailable bool
	ShowSQL        bool
}

// Chat commands.
const (
	cmdQuit  = "/quit"
	cmdExit  = "/exit"
	cmdHelp  = "/help"
	cmdModel = "/model"
	cmdSQL   = "/sql"
)

const chatHelp = `Ask anything about your receipts, for example:
  how many flagged receipts are there
  show receipts above 50000
  what is our total spending

Commands:
  /model  toggle model answers
  /sql    toggle showing the query
  /quit   leave the chat`

// turn is the outcome of one line typed into the chat.
type turn struct {
	output string
	quit   bool
}

// chatSession holds the state shared by the terminal UI and the plain
// line-based chat.
type chatSession struct {
	opts ChatOptions
}

// command handles a slash command. It reports false when line is a question.
func (s *chatSession) command(line string) (turn, bool) {
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "":
		return turn{}, true
	case cmdQuit, cmdExit:
		return turn{quit: true}, true
	case cmdHelp:
		return turn{output: chatHelp}, true
	case cmdSQL:
		s.opts.ShowSQL = !s.opts.ShowSQL
		return turn{output: FormatInfo("Show SQL: " + onOff(s.opts.ShowSQL))}, true
	case cmdModel:
		if !s.opts.ModelAvailable {
			return turn{output: FormatWarning("No language model is configured.")}, true
		}
		s.opts.UseModel = !s.opts.UseModel
		return turn{output: FormatInfo("Model answers: " + onOff(s.opts.UseModel))}, true
	}
	return turn{}, false
}

func (s *chatSession) request(line string) query.Request {
	return query.Request{
		Message:   line,
		SessionID: s.opts.SessionID,
		UseModel:  s.opts.UseModel && s.opts.ModelAvailable,
	}
}

// answer renders the engine's reply. A failed query is shown and the chat
// goes on; any other error ends it.
func (s *chatSession) answer(resp *query.Response, err error) (turn, error) {
	var execErr *query.ExecutionError
	switch {
	case errors.As(err, &execErr):
		s.opts.SessionID = resp.SessionID
		return turn{output: FormatError(resp.Message)}, nil
	case errors.Is(err, query.ErrEmptyQuestion):
		return turn{}, nil
	case err != nil:
		return turn{}, fmt.Errorf("failed to answer question: %w", err)
	}

	s.opts.SessionID = resp.SessionID
	return turn{output: RenderAnswer(resp, s.opts.ShowSQL)}, nil
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
