package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Veraticus/receipt-ledger/internal/model"
	"github.com/Veraticus/receipt-ledger/internal/service"
)

// AppendChatMessage adds a message to the end of its session. Messages are
// never updated or removed.
func (s *SQLiteStorage) AppendChatMessage(ctx context.Context, msg *model.ChatMessage) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateChatMessage(msg); err != nil {
		return err
	}
	return s.appendChatMessageTx(ctx, s.db, msg)
}

func (s *SQLiteStorage) appendChatMessageTx(ctx context.Context, q queryable, msg *model.ChatMessage) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}

	var refs any
	if len(msg.ReferencedReceipts) > 0 {
		data, err := json.Marshal(msg.ReferencedReceipts)
		if err != nil {
			return fmt.Errorf("failed to encode referenced receipts: %w", err)
		}
		refs = string(data)
	}

	result, err := q.ExecContext(ctx, `
		INSERT INTO chat_messages (session_id, role, content, intent, sql_text, referenced_receipts, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, msg.SessionID, string(msg.Role), msg.Content, nullIfEmpty(msg.Intent), nullIfEmpty(msg.SQL), refs, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append chat message: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get chat message ID: %w", err)
	}
	msg.ID = id
	return nil
}

// GetChatHistory returns a session's messages in the order they were appended.
func (s *SQLiteStorage) GetChatHistory(ctx context.Context, sessionID string) ([]model.ChatMessage, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(sessionID, "sessionID"); err != nil {
		return nil, err
	}
	return s.getChatHistoryTx(ctx, s.db, sessionID)
}

func (s *SQLiteStorage) getChatHistoryTx(ctx context.Context, q queryable, sessionID string) ([]model.ChatMessage, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, session_id, role, content, intent, sql_text, referenced_receipts, created_at
		FROM chat_messages
		WHERE session_id = ?
		ORDER BY id
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query chat history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var messages []model.ChatMessage
	for rows.Next() {
		var msg model.ChatMessage
		var role string
		var intent, sqlText, refs sql.NullString
		if err := rows.Scan(&msg.ID, &msg.SessionID, &role, &msg.Content, &intent, &sqlText, &refs, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan chat message: %w", err)
		}
		msg.Role = model.ChatRole(role)
		msg.Intent = intent.String
		msg.SQL = sqlText.String
		if refs.Valid && refs.String != "" {
			if err := json.Unmarshal([]byte(refs.String), &msg.ReferencedReceipts); err != nil {
				return nil, fmt.Errorf("failed to decode referenced receipts: %w", err)
			}
		}
		messages = append(messages, msg)
	}

	return messages, rows.Err()
}

// ListChatSessions summarizes every session, most recently started first.
func (s *SQLiteStorage) ListChatSessions(ctx context.Context) ([]service.ChatSessionSummary, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return s.listChatSessionsTx(ctx, s.db)
}

func (s *SQLiteStorage) listChatSessionsTx(ctx context.Context, q queryable) ([]service.ChatSessionSummary, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT session_id, MIN(created_at) AS first_message, COUNT(*) AS message_count
		FROM chat_messages
		GROUP BY session_id
		ORDER BY MIN(id) DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query chat sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var sessions []service.ChatSessionSummary
	for rows.Next() {
		var summary service.ChatSessionSummary
		var first string
		if err := rows.Scan(&summary.SessionID, &first, &summary.MessageCount); err != nil {
			return nil, fmt.Errorf("failed to scan chat session: %w", err)
		}
		summary.FirstMessage = parseSQLiteTime(first)
		sessions = append(sessions, summary)
	}

	return sessions, rows.Err()
}

// parseSQLiteTime handles timestamps that lose their column type through aggregates.
func parseSQLiteTime(s string) time.Time {
	for _, layout := range []string{
		"2006-01-02 15:04:05.999999999-07:00",
		"2006-01-02T15:04:05.999999999-07:00",
		"2006-01-02 15:04:05",
		time.RFC3339Nano,
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
