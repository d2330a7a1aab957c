package cli

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/receipt-ledger/internal/query"
	"github.com/Veraticus/receipt-ledger/internal/testutil"
	"github.com/Veraticus/receipt-ledger/internal/testutil/receipts"
)

func TestLineReader_ReadLine(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "successful read", input: "test input\n", expected: "test input"},
		{name: "extra whitespace", input: "  test input  \n", expected: "test input"},
		{name: "empty line", input: "\n", expected: ""},
		{name: "no trailing newline", input: "last line", expected: "last line"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewLineReader(strings.NewReader(tt.input))
			line, err := r.ReadLine(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.expected, line)
		})
	}
}

func TestLineReader_EOF(t *testing.T) {
	r := NewLineReader(strings.NewReader("only\n"))

	line, err := r.ReadLine(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "only", line)

	_, err = r.ReadLine(context.Background())
	assert.ErrorIs(t, err, io.EOF)
}

func TestLineReader_ContextCancellation(t *testing.T) {
	t.Run("immediate cancellation", func(t *testing.T) {
		pr, pw := io.Pipe()
		defer func() { _ = pw.Close() }()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := NewLineReader(pr).ReadLine(ctx)
		assert.Equal(t, ErrInputCancelled, err)
	})

	t.Run("cancellation during read", func(t *testing.T) {
		pr, pw := io.Pipe()
		defer func() { _ = pw.Close() }()

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		_, err := NewLineReader(pr).ReadLine(ctx)
		assert.Equal(t, ErrInputCancelled, err)
	})
}

func TestRunPlainChat(t *testing.T) {
	db := testutil.SetupTestDB(t, receipts.Ledger()...)
	engine := query.NewEngine(db.Storage, query.Options{})

	in := strings.NewReader("how many flagged receipts are there\n/model\n\n/sql\nhow many receipts\n/quit\nnever asked\n")
	var out bytes.Buffer

	sessionID, err := RunPlainChat(context.Background(), engine, in, &out, ChatOptions{})
	require.NoError(t, err)
	require.NotEmpty(t, sessionID)

	text := out.String()
	assert.Contains(t, text, "There are 2 flagged receipts totalling Rp 125,050.")
	assert.Contains(t, text, "No language model is configured.")
	assert.Contains(t, text, "Show SQL: on")
	assert.Contains(t, text, "There are 6 receipts totalling Rp 310,050.")
	assert.Contains(t, text, "COUNT(*) AS receipt_count")

	history, err := engine.History(context.Background(), sessionID)
	require.NoError(t, err)
	assert.Len(t, history, 4, "both questions share one session")
}

func TestRunPlainChat_EndOfInput(t *testing.T) {
	asker := &fakeAsker{}
	var out bytes.Buffer

	sessionID, err := RunPlainChat(context.Background(), asker, strings.NewReader(""), &out, ChatOptions{SessionID: "existing"})
	require.NoError(t, err)
	assert.Equal(t, "existing", sessionID)
	assert.Zero(t, asker.calls)
}
