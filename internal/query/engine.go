package query

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/Veraticus/receipt-ledger/internal/common"
	"github.com/Veraticus/receipt-ledger/internal/llm"
	"github.com/Veraticus/receipt-ledger/internal/model"
	"github.com/Veraticus/receipt-ledger/internal/service"
)

// ErrEmptyQuestion is returned for a blank question.
var ErrEmptyQuestion = errors.New("question is empty")

// Request is one question, optionally continuing a session.
type Request struct {
	Message   string `json:"message"`
	SessionID string `json:"sessionId,omitempty"`
	// UseModel selects the model path when the engine has an assistant.
	UseModel bool `json:"useModel,omitempty"`
}

// Response is the reply envelope for a question.
type Response struct {
	SessionID          string  `json:"sessionId"`
	Message            string  `json:"message"`
	Intent             Intent  `json:"intent,omitempty"`
	SQL                string  `json:"sql,omitempty"`
	Source             Source  `json:"source"`
	Error              string  `json:"error,omitempty"`
	ReferencedReceipts []int64 `json:"referencedReceipts"`
	ResultCount        int     `json:"resultCount"`
}

// ExecutionError reports a query that failed to run. It is returned
// alongside a populated Response.
type ExecutionError struct {
	Err error
	SQL string
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("query execution failed: %v", e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// Assistant is the model-backed path. *llm.Assistant implements it.
type Assistant interface {
	GenerateSQL(ctx context.Context, question string) (string, error)
	Summarize(ctx context.Context, question, query string, rows []model.Row) (string, error)
}

// Options configures an Engine.
type Options struct {
	Assistant Assistant
	Logger    *slog.Logger
	Currency  string
	// DisableChatLog skips writing questions and answers to the session log.
	DisableChatLog bool
}

// Engine answers questions against a store.
type Engine struct {
	store      service.Storage
	classifier *Classifier
	formatter  *Formatter
	assistant  Assistant
	logger     *slog.Logger
	newID      func() string
	logChat    bool
}

// NewEngine creates an engine over store.
func NewEngine(store service.Storage, opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:      store,
		classifier: NewClassifier(),
		formatter:  NewFormatter(opts.Currency),
		assistant:  opts.Assistant,
		logger:     logger,
		newID:      uuid.NewString,
		logChat:    !opts.DisableChatLog,
	}
}

// HasModel reports whether the model path is available.
func (e *Engine) HasModel() bool {
	return e.assistant != nil
}

// Ask answers one question. A question the engine cannot understand still
// produces a Response with a nil error; only a query that fails to execute
// returns an error, an *ExecutionError, together with the Response.
//
// The question and its answer are logged to the session together: if either
// write fails neither is kept, and the computed Response is returned with the
// error.
func (e *Engine) Ask(ctx context.Context, req Request) (*Response, error) {
	question := Normalize(req.Message)
	if question == "" {
		return nil, ErrEmptyQuestion
	}

	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		sessionID = e.newID()
	}

	var (
		resp    *Response
		execErr error
	)
	if req.UseModel && e.assistant != nil {
		resp, execErr = e.askModel(ctx, question)
	} else {
		resp, execErr = e.askRules(ctx, question)
	}
	resp.SessionID = sessionID

	exchange := []*model.ChatMessage{
		{SessionID: sessionID, Role: model.RoleUser, Content: question},
		{
			SessionID:          sessionID,
			Role:               model.RoleAssistant,
			Content:            resp.Message,
			Intent:             string(resp.Intent),
			SQL:                resp.SQL,
			ReferencedReceipts: resp.ReferencedReceipts,
		},
	}
	if err := e.record(ctx, exchange...); err != nil {
		return resp, err
	}

	return resp, execErr
}

func (e *Engine) askRules(ctx context.Context, question string) (*Response, error) {
	c := e.classifier.Classify(question)
	q := Synthesize(c)

	e.logger.Debug("Classified question", "intent", q.Intent, "threshold", c.Threshold, "payment", c.Payment)

	resp := &Response{Intent: q.Intent, SQL: q.SQL, Source: SourceRules, ReferencedReceipts: []int64{}}

	rows, err := e.store.RunQuery(ctx, q.SQL, q.Args...)
	if err != nil {
		return failed(resp, q.SQL, err)
	}

	answer := e.formatter.Format(c, rows)
	resp.Message = answer.Text
	resp.ReferencedReceipts = answer.ReferencedReceipts
	resp.ResultCount = len(rows)
	return resp, nil
}

func (e *Engine) askModel(ctx context.Context, question string) (*Response, error) {
	query, err := e.assistant.GenerateSQL(ctx, question)
	switch {
	case errors.Is(err, llm.ErrNotSelect):
		return &Response{
			Message:            ApologyMessage,
			Source:             SourceModel,
			Error:              err.Error(),
			ReferencedReceipts: []int64{},
		}, nil
	case err != nil:
		if common.IsModelFailure(err) {
			e.logger.Warn("Model unavailable, using rules", "error", err, "rate_limited", errors.Is(err, common.ErrRateLimit))
		} else {
			e.logger.Error("Model query generation failed, using rules", "error", err)
		}
		resp, execErr := e.askRules(ctx, question)
		resp.Source = SourceFallback
		return resp, execErr
	}

	resp := &Response{SQL: query, Source: SourceModel, ReferencedReceipts: []int64{}}

	rows, err := e.store.RunReadOnlyQuery(ctx, query)
	if err != nil {
		return failed(resp, query, err)
	}
	resp.ResultCount = len(rows)
	resp.ReferencedReceipts = References(rows)

	if len(rows) == 0 {
		resp.Message = NoResultsMessage
		return resp, nil
	}

	summary, err := e.assistant.Summarize(ctx, question, query, rows)
	if err != nil {
		e.logger.Warn("Model summary failed, using formatter", "error", err)
		answer := e.formatter.FormatRows(rows)
		resp.Message = answer.Text
		resp.Source = answer.Source
		return resp, nil
	}

	resp.Message = summary
	return resp, nil
}

func failed(resp *Response, query string, err error) (*Response, error) {
	execErr := &ExecutionError{SQL: query, Err: err}
	resp.Message = execErr.Error()
	resp.Error = err.Error()
	return resp, execErr
}

func (e *Engine) record(ctx context.Context, msgs ...*model.ChatMessage) (err error) {
	if !e.logChat {
		return nil
	}

	tx, err := e.store.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to start chat log write: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, msg := range msgs {
		if err = tx.AppendChatMessage(ctx, msg); err != nil {
			return fmt.Errorf("failed to record %s message: %w", msg.Role, err)
		}
	}
	return tx.Commit()
}

// History returns the messages of a session in order.
func (e *Engine) History(ctx context.Context, sessionID string) ([]model.ChatMessage, error) {
	return e.store.GetChatHistory(ctx, sessionID)
}
