package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Veraticus/receipt-ledger/internal/model"
)

// SummaryRowLimit is the number of result rows shown to the model when
// summarizing.
const SummaryRowLimit = 10

const sqlSystemPrompt = `You translate questions about a receipt ledger into one SQLite SELECT query.

Schema:
  vendors(id INTEGER, name TEXT, address TEXT, phone TEXT, business_number TEXT)
  receipts(id INTEGER, vendor_id INTEGER REFERENCES vendors(id), receipt_date TEXT,
           subtotal REAL, tax_amount REAL, service_charge REAL, discount REAL,
           total_amount REAL, payment_method TEXT ('cash','card','mixed','other'),
           cash_paid REAL, card_paid REAL, change_amount REAL,
           item_type_count INTEGER, total_item_count INTEGER,
           status TEXT ('pending','verified','flagged'), confidence REAL,
           validation_errors TEXT, created_at DATETIME, deleted_at DATETIME)
  line_items(id INTEGER, receipt_id INTEGER REFERENCES receipts(id),
             parent_id INTEGER REFERENCES line_items(id), position INTEGER,
             name TEXT, quantity INTEGER, unit_price REAL, total_price REAL)

Rules:
- Reply with the query only. No explanation, no markdown.
- Always exclude deleted receipts with receipts.deleted_at IS NULL.
- When rows describe individual receipts, select receipts.id AS id.
- Amounts are whole currency units.
- Limit listings to 20 rows.`

const summarySystemPrompt = `You answer questions about a receipt ledger in two or three plain sentences.
Use only the query results you are given. Group thousands with commas. Do not mention SQL.`

func buildSQLPrompt(question string) string {
	return "Question: " + strings.TrimSpace(question)
}

func buildSummaryPrompt(question, query string, rows []model.Row) (string, error) {
	shown := rows
	if len(shown) > SummaryRowLimit {
		shown = shown[:SummaryRowLimit]
	}

	data, err := json.Marshal(shown)
	if err != nil {
		return "", fmt.Errorf("failed to encode rows: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n\n", strings.TrimSpace(question))
	fmt.Fprintf(&b, "Query:\n%s\n\n", query)
	fmt.Fprintf(&b, "Results (%d rows total, first %d shown):\n%s\n", len(rows), len(shown), data)
	return b.String(), nil
}
