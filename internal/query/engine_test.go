package query

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/receipt-ledger/internal/common"
	"github.com/Veraticus/receipt-ledger/internal/llm"
	"github.com/Veraticus/receipt-ledger/internal/model"
	"github.com/Veraticus/receipt-ledger/internal/service"
	"github.com/Veraticus/receipt-ledger/internal/testutil"
	"github.com/Veraticus/receipt-ledger/internal/testutil/receipts"
)

// scriptedClient replays canned model replies in order.
type scriptedClient struct {
	replies []scriptedReply
	calls   int
}

type scriptedReply struct {
	err  error
	text string
}

func (c *scriptedClient) Complete(_ context.Context, _, _ string) (string, error) {
	if c.calls >= len(c.replies) {
		return "", errors.New("unexpected model call")
	}
	r := c.replies[c.calls]
	c.calls++
	return r.text, r.err
}

func newLedgerEngine(t *testing.T, opts Options) (*Engine, *testutil.TestDB) {
	t.Helper()
	db := testutil.SetupTestDB(t, receipts.Ledger()...)
	return NewEngine(db.Storage, opts), db
}

func modelAssistant(t *testing.T, replies ...scriptedReply) (*llm.Assistant, *scriptedClient) {
	t.Helper()
	client := &scriptedClient{replies: replies}
	a := llm.NewAssistant(client, llm.Config{}, nil)
	t.Cleanup(a.Close)
	return a, client
}

func TestEngine_RuleBasedAnswers(t *testing.T) {
	tests := []struct {
		name        string
		question    string
		intent      Intent
		contains    string
		refs        []int64
		resultCount int
	}{
		{
			name:        "total spending",
			question:    "What is our total spending?",
			intent:      IntentTotalSpending,
			contains:    "Total spending is Rp 310,050 across 6 receipts (average Rp 51,675). 2 flagged receipts account for Rp 125,050.",
			refs:        []int64{},
			resultCount: 1,
		},
		{
			name:        "count flagged",
			question:    "how many flagged receipts are there",
			intent:      IntentCountFlagged,
			contains:    "There are 2 flagged receipts totalling Rp 125,050.",
			refs:        []int64{},
			resultCount: 1,
		},
		{
			name:        "count all",
			question:    "How many receipts?",
			intent:      IntentCountAll,
			contains:    "There are 6 receipts totalling Rp 310,050.",
			refs:        []int64{},
			resultCount: 1,
		},
		{
			name:        "above threshold",
			question:    "Show receipts above 50000",
			intent:      IntentHighValue,
			contains:    "1. #2 Bakmi GM, Rp 120,000 (card, verified, 2019-03-19)",
			refs:        []int64{2, 5, 3},
			resultCount: receipts.LedgerAbove50000,
		},
		{
			name:        "below threshold",
			question:    "receipts below 20000",
			intent:      IntentLowValue,
			contains:    "Found 2 receipts below Rp 20,000:",
			refs:        []int64{4, 6},
			resultCount: receipts.LedgerBelow20000,
		},
		{
			name:        "cash only",
			question:    "which receipts were paid in cash",
			intent:      IntentPaymentBreakdown,
			contains:    "Found 3 receipts paid by cash:",
			refs:        []int64{3, 1, 4},
			resultCount: receipts.LedgerCashCount,
		},
		{
			name:        "payment grouped",
			question:    "spending per payment method?",
			intent:      IntentTotalSpending,
			contains:    "Total spending is Rp 310,050",
			refs:        []int64{},
			resultCount: 1,
		},
		{
			name:        "payment breakdown",
			question:    "break down by payment method",
			intent:      IntentPaymentBreakdown,
			contains:    "- card: 2 receipts, Rp 125,000\n- cash: 3 receipts, Rp 110,050\n- mixed: 1 receipt, Rp 75,000",
			refs:        []int64{},
			resultCount: 3,
		},
		{
			name:        "tax",
			question:    "show me tax",
			intent:      IntentTaxInfo,
			contains:    "Tax of Rp 14,090 was recorded on 2 receipts (average Rp 7,045). Service charges total Rp 10,000.",
			refs:        []int64{},
			resultCount: 1,
		},
		{
			name:        "flagged listing",
			question:    "list flagged receipts",
			intent:      IntentFlaggedReceipts,
			contains:    "#3 " + receipts.LedgerFlaggedVendor,
			refs:        []int64{5, 3},
			resultCount: receipts.LedgerFlaggedCount,
		},
		{
			name:        "audit findings",
			question:    "audit findings please",
			intent:      IntentAuditFindings,
			contains:    "difference",
			refs:        []int64{5, 3},
			resultCount: 2,
		},
		{
			name:        "default listing",
			question:    "show me everything",
			intent:      IntentListReceipts,
			contains:    "Showing 6 receipts by amount:",
			refs:        []int64{2, 5, 3, 1, 4, 6},
			resultCount: receipts.LedgerCount,
		},
	}

	engine, _ := newLedgerEngine(t, Options{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := engine.Ask(context.Background(), Request{Message: tt.question})
			require.NoError(t, err)

			assert.Equal(t, tt.intent, resp.Intent)
			assert.Contains(t, resp.Message, tt.contains)
			assert.Equal(t, tt.refs, resp.ReferencedReceipts)
			assert.Equal(t, tt.resultCount, resp.ResultCount)
			assert.Equal(t, SourceRules, resp.Source)
			assert.NotEmpty(t, resp.SQL)
			assert.Empty(t, resp.Error)

			_, parseErr := uuid.Parse(resp.SessionID)
			assert.NoError(t, parseErr, "new sessions get a UUID")
		})
	}
}

func TestEngine_ExcludesDeletedReceipts(t *testing.T) {
	engine, db := newLedgerEngine(t, Options{})
	ctx := context.Background()
	require.NoError(t, db.Storage.DeleteReceipt(ctx, db.IDs[1]))

	resp, err := engine.Ask(ctx, Request{Message: "Show receipts above 50000"})
	require.NoError(t, err)
	assert.Equal(t, []int64{5, 3}, resp.ReferencedReceipts)

	resp, err = engine.Ask(ctx, Request{Message: "total spent"})
	require.NoError(t, err)
	assert.Contains(t, resp.Message, "Rp 190,050 across 5 receipts")
}

func TestEngine_NoResults(t *testing.T) {
	db := testutil.SetupTestDB(t)
	engine := NewEngine(db.Storage, Options{})

	for _, question := range []string{"Show receipts above 50000", "total spending", "tax", "anything"} {
		resp, err := engine.Ask(context.Background(), Request{Message: question})
		require.NoError(t, err)
		assert.Equal(t, NoResultsMessage, resp.Message, question)
		assert.Equal(t, []int64{}, resp.ReferencedReceipts, question)
	}
}

func TestEngine_ChatLog(t *testing.T) {
	engine, db := newLedgerEngine(t, Options{})
	ctx := context.Background()

	first, err := engine.Ask(ctx, Request{Message: "Show receipts above 50000"})
	require.NoError(t, err)

	second, err := engine.Ask(ctx, Request{Message: "  how many   flagged? ", SessionID: first.SessionID})
	require.NoError(t, err)
	assert.Equal(t, first.SessionID, second.SessionID)

	history, err := engine.History(ctx, first.SessionID)
	require.NoError(t, err)
	require.Len(t, history, 4)

	assert.Equal(t, model.RoleUser, history[0].Role)
	assert.Equal(t, "Show receipts above 50000", history[0].Content)
	assert.Equal(t, model.RoleAssistant, history[1].Role)
	assert.Equal(t, string(IntentHighValue), history[1].Intent)
	assert.Equal(t, first.SQL, history[1].SQL)
	assert.Equal(t, []int64{2, 5, 3}, history[1].ReferencedReceipts)
	assert.Equal(t, "how many flagged?", history[2].Content)
	assert.Equal(t, second.Message, history[3].Content)

	sessions, err := db.Storage.ListChatSessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, 4, sessions[0].MessageCount)
}

func TestEngine_ChatLogDisabled(t *testing.T) {
	engine, db := newLedgerEngine(t, Options{DisableChatLog: true})
	resp, err := engine.Ask(context.Background(), Request{Message: "total", SessionID: "quiet"})
	require.NoError(t, err)
	assert.Equal(t, "quiet", resp.SessionID)

	history, err := db.Storage.GetChatHistory(context.Background(), "quiet")
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestEngine_EmptyQuestion(t *testing.T) {
	engine, _ := newLedgerEngine(t, Options{})
	_, err := engine.Ask(context.Background(), Request{Message: " \n "})
	assert.ErrorIs(t, err, ErrEmptyQuestion)
}

func TestEngine_ModelRejectsNonSelect(t *testing.T) {
	assistant, _ := modelAssistant(t, scriptedReply{text: "I cannot help with that"})
	engine, db := newLedgerEngine(t, Options{Assistant: assistant})

	resp, err := engine.Ask(context.Background(), Request{Message: "drop everything", UseModel: true, SessionID: "s1"})
	require.NoError(t, err, "an unanswerable question is a success-shaped reply")

	assert.Equal(t, ApologyMessage, resp.Message)
	assert.NotEmpty(t, resp.Error)
	assert.Equal(t, SourceModel, resp.Source)
	assert.Empty(t, resp.SQL)
	assert.Equal(t, []int64{}, resp.ReferencedReceipts)

	history, err := db.Storage.GetChatHistory(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, ApologyMessage, history[1].Content)
}

func TestEngine_ModelAnswer(t *testing.T) {
	assistant, client := modelAssistant(t,
		scriptedReply{text: "```sql\nSELECT r.id AS id, r.total_amount FROM receipts r WHERE r.deleted_at IS NULL AND r.total_amount > 60000 ORDER BY r.total_amount DESC\n```"},
		scriptedReply{text: "Two receipts exceed 60,000: Bakmi GM and one without a vendor."},
	)
	engine, _ := newLedgerEngine(t, Options{Assistant: assistant})
	assert.True(t, engine.HasModel())

	resp, err := engine.Ask(context.Background(), Request{Message: "big receipts over 60000", UseModel: true})
	require.NoError(t, err)

	assert.Equal(t, SourceModel, resp.Source)
	assert.Equal(t, "Two receipts exceed 60,000: Bakmi GM and one without a vendor.", resp.Message)
	assert.Equal(t, []int64{2, 5}, resp.ReferencedReceipts)
	assert.Equal(t, 2, resp.ResultCount)
	assert.Contains(t, resp.SQL, "r.total_amount > 60000")
	assert.Empty(t, resp.Intent)
	assert.Equal(t, 2, client.calls)
}

func TestEngine_ModelSummaryFallsBack(t *testing.T) {
	assistant, _ := modelAssistant(t,
		scriptedReply{text: "SELECT r.id AS id, v.name AS vendor FROM receipts r JOIN vendors v ON v.id = r.vendor_id WHERE r.status = 'pending'"},
		scriptedReply{err: common.ErrModelUnavailable},
	)
	engine, _ := newLedgerEngine(t, Options{Assistant: assistant})

	resp, err := engine.Ask(context.Background(), Request{Message: "pending receipts", UseModel: true})
	require.NoError(t, err)

	assert.Equal(t, SourceFallback, resp.Source)
	assert.Equal(t, "Found 1 result:\n1. id: 6, vendor: Indomaret", resp.Message)
	assert.Equal(t, []int64{6}, resp.ReferencedReceipts)
}

func TestEngine_ModelUnavailableUsesRules(t *testing.T) {
	assistant, _ := modelAssistant(t, scriptedReply{err: common.ErrModelUnavailable})
	engine, _ := newLedgerEngine(t, Options{Assistant: assistant})

	resp, err := engine.Ask(context.Background(), Request{Message: "how many flagged receipts are there", UseModel: true})
	require.NoError(t, err)

	assert.Equal(t, SourceFallback, resp.Source)
	assert.Equal(t, IntentCountFlagged, resp.Intent)
	assert.Equal(t, "There are 2 flagged receipts totalling Rp 125,050.", resp.Message)
	assert.Empty(t, resp.Error)
}

func TestEngine_ModelQueryFailsToExecute(t *testing.T) {
	assistant, _ := modelAssistant(t, scriptedReply{text: "SELECT * FROM invoices"})
	engine, _ := newLedgerEngine(t, Options{Assistant: assistant})

	resp, err := engine.Ask(context.Background(), Request{Message: "invoices?", UseModel: true})

	var execErr *ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, "SELECT * FROM invoices", execErr.SQL)

	require.NotNil(t, resp)
	assert.Contains(t, resp.Error, "no such table")
	assert.Contains(t, resp.Message, "query execution failed")
}

func TestEngine_UseModelWithoutAssistant(t *testing.T) {
	engine, _ := newLedgerEngine(t, Options{})
	assert.False(t, engine.HasModel())

	resp, err := engine.Ask(context.Background(), Request{Message: "total", UseModel: true})
	require.NoError(t, err)
	assert.Equal(t, SourceRules, resp.Source)
}

func TestEngine_Currency(t *testing.T) {
	engine, _ := newLedgerEngine(t, Options{Currency: "IDR"})
	resp, err := engine.Ask(context.Background(), Request{Message: "how many receipts"})
	require.NoError(t, err)
	assert.Equal(t, "There are 6 receipts totalling IDR 310,050.", resp.Message)
}

func TestEngine_UnexpectedGenerationErrorUsesRules(t *testing.T) {
	assistant, _ := modelAssistant(t, scriptedReply{err: errors.New("unexpected end of JSON input")})
	engine, _ := newLedgerEngine(t, Options{Assistant: assistant})

	resp, err := engine.Ask(context.Background(), Request{Message: "how many receipts", UseModel: true})
	require.NoError(t, err)

	assert.Equal(t, SourceFallback, resp.Source)
	assert.Equal(t, IntentCountAll, resp.Intent)
	assert.Equal(t, "There are 6 receipts totalling Rp 310,050.", resp.Message)
}

// replyLogFailure fails every attempt to log an assistant message.
type replyLogFailure struct {
	service.Storage
}

func (s replyLogFailure) BeginTx(ctx context.Context) (service.Transaction, error) {
	tx, err := s.Storage.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	return replyLogFailureTx{Transaction: tx}, nil
}

type replyLogFailureTx struct {
	service.Transaction
}

func (t replyLogFailureTx) AppendChatMessage(ctx context.Context, msg *model.ChatMessage) error {
	if msg.Role == model.RoleAssistant {
		return errors.New("database is locked")
	}
	return t.Transaction.AppendChatMessage(ctx, msg)
}

func TestEngine_ChatLogFailureKeepsSessionPaired(t *testing.T) {
	db := testutil.SetupTestDB(t, receipts.Ledger()...)
	engine := NewEngine(replyLogFailure{Storage: db.Storage}, Options{})
	ctx := context.Background()

	resp, err := engine.Ask(ctx, Request{Message: "how many receipts", SessionID: "s-log"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to record assistant message")

	require.NotNil(t, resp, "the computed answer is still returned")
	assert.Equal(t, "s-log", resp.SessionID)
	assert.Equal(t, "There are 6 receipts totalling Rp 310,050.", resp.Message)

	history, err := db.Storage.GetChatHistory(ctx, "s-log")
	require.NoError(t, err)
	assert.Empty(t, history, "the question is not logged without its answer")
}
