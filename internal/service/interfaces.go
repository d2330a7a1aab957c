// Package service defines the interfaces shared between application layers.
package service

import (
	"context"
	"time"

	"github.com/Veraticus/receipt-ledger/internal/model"
)

// ReceiptFilter narrows receipt listings.
type ReceiptFilter struct {
	Status         model.ReceiptStatus
	Limit          int
	Offset         int
	IncludeDeleted bool
}

// Storage defines the contract for the persistence layer.
type Storage interface {
	// Receipt operations
	SaveReceipt(ctx context.Context, receipt *model.Receipt) (int64, error)
	GetReceipt(ctx context.Context, id int64) (*model.Receipt, error)
	ListReceipts(ctx context.Context, filter ReceiptFilter) ([]model.Receipt, error)
	ReceiptExists(ctx context.Context, sourceHash string) (bool, error)
	SetReceiptStatus(ctx context.Context, id int64, status model.ReceiptStatus, findings []string) error
	DeleteReceipt(ctx context.Context, id int64) error

	// Vendor operations
	SaveVendor(ctx context.Context, vendor *model.Vendor) (*model.Vendor, error)
	GetVendor(ctx context.Context, name string) (*model.Vendor, error)
	GetAllVendors(ctx context.Context) ([]model.Vendor, error)

	// Query execution
	RunQuery(ctx context.Context, query string, args ...any) ([]model.Row, error)
	RunReadOnlyQuery(ctx context.Context, query string) ([]model.Row, error)

	// Chat session log
	AppendChatMessage(ctx context.Context, msg *model.ChatMessage) error
	GetChatHistory(ctx context.Context, sessionID string) ([]model.ChatMessage, error)
	ListChatSessions(ctx context.Context) ([]ChatSessionSummary, error)

	// Database management
	Migrate(ctx context.Context) error
	BeginTx(ctx context.Context) (Transaction, error)
	Close() error
}

// Transaction represents a database transaction. Savepoints let a batch
// discard one record's writes without abandoning the whole transaction.
type Transaction interface {
	Commit() error
	Rollback() error
	Savepoint(ctx context.Context, name string) error
	RollbackTo(ctx context.Context, name string) error
	Release(ctx context.Context, name string) error
	// Include all Storage methods for use within transaction
	Storage
}

// ChatSessionSummary describes one chat session for listings.
type ChatSessionSummary struct {
	FirstMessage time.Time
	SessionID    string
	MessageCount int
}
