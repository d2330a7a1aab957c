package query

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/Veraticus/receipt-ledger/internal/amount"
	"github.com/Veraticus/receipt-ledger/internal/model"
)

// Fixed replies.
const (
	NoResultsMessage = "I couldn't find any receipts matching your question."
	ApologyMessage   = "Sorry, I couldn't understand that question. Try asking about spending, flagged receipts, payment methods or tax."
)

// MaxReferences caps the receipt references attached to an answer.
const MaxReferences = 20

// DefaultCurrency labels amounts when no currency is configured.
const DefaultCurrency = "Rp"

// Source records which path produced an answer.
type Source string

// Answer sources.
const (
	SourceRules    Source = "rules"
	SourceModel    Source = "model"
	SourceFallback Source = "fallback"
)

// Answer is a formatted reply with the receipts it refers to.
type Answer struct {
	Text               string
	Source             Source
	ReferencedReceipts []int64
}

// Formatter renders query results deterministically.
type Formatter struct {
	currency string
}

// NewFormatter creates a formatter that labels amounts with currency.
func NewFormatter(currency string) *Formatter {
	if strings.TrimSpace(currency) == "" {
		currency = DefaultCurrency
	}
	return &Formatter{currency: currency}
}

// Format renders rows with the template for c's intent. An empty result
// always yields NoResultsMessage and no references.
func (f *Formatter) Format(c Classification, rows []model.Row) Answer {
	if len(rows) == 0 {
		return Answer{Text: NoResultsMessage, Source: SourceRules, ReferencedReceipts: []int64{}}
	}

	var text string
	switch c.Intent {
	case IntentTotalSpending:
		text = f.totalSpending(rows[0])
	case IntentCountAll:
		text = f.count(rows[0], "")
	case IntentCountFlagged:
		text = f.count(rows[0], "flagged ")
	case IntentFlaggedReceipts:
		text = f.listing(fmt.Sprintf("Found %s:", plural(len(rows), "flagged receipt")), rows, firstFinding)
	case IntentHighValue:
		text = f.listing(fmt.Sprintf("Found %s above %s:", plural(len(rows), "receipt"), f.money(float64(threshold(c)))), rows, nil)
	case IntentLowValue:
		text = f.listing(fmt.Sprintf("Found %s below %s:", plural(len(rows), "receipt"), f.money(float64(threshold(c)))), rows, nil)
	case IntentPaymentBreakdown:
		if c.Payment != "" {
			text = f.listing(fmt.Sprintf("Found %s paid by %s:", plural(len(rows), "receipt"), c.Payment), rows, nil)
		} else {
			text = f.paymentBreakdown(rows)
		}
	case IntentTaxInfo:
		text = f.taxInfo(rows[0])
	case IntentAuditFindings:
		text = f.listing(fmt.Sprintf("Found %s with audit findings:", plural(len(rows), "receipt")), rows, allFindings)
	default:
		text = f.listing(fmt.Sprintf("Showing %s by amount:", plural(len(rows), "receipt")), rows, nil)
	}

	if text == "" {
		return Answer{Text: NoResultsMessage, Source: SourceRules, ReferencedReceipts: []int64{}}
	}
	return Answer{Text: text, Source: SourceRules, ReferencedReceipts: References(rows)}
}

// FormatRows renders arbitrary result rows, used when a model-generated
// query ran but the model could not describe its result.
func (f *Formatter) FormatRows(rows []model.Row) Answer {
	if len(rows) == 0 {
		return Answer{Text: NoResultsMessage, Source: SourceFallback, ReferencedReceipts: []int64{}}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %s:", plural(len(rows), "result"))
	for i, row := range rows {
		if i == ListLimit {
			fmt.Fprintf(&b, "\n... and %d more", len(rows)-ListLimit)
			break
		}

		cols := make([]string, 0, len(row))
		for col := range row {
			cols = append(cols, col)
		}
		sort.Strings(cols)

		parts := make([]string, 0, len(cols))
		for _, col := range cols {
			parts = append(parts, col+": "+formatValue(row[col]))
		}
		fmt.Fprintf(&b, "\n%d. %s", i+1, strings.Join(parts, ", "))
	}

	return Answer{Text: b.String(), Source: SourceFallback, ReferencedReceipts: References(rows)}
}

// References collects the id column of rows in result order, capped at
// MaxReferences. The slice is never nil.
func References(rows []model.Row) []int64 {
	refs := []int64{}
	for _, row := range rows {
		if len(refs) == MaxReferences {
			break
		}
		if id, ok := row.Int64("id"); ok {
			refs = append(refs, id)
		}
	}
	return refs
}

func (f *Formatter) totalSpending(row model.Row) string {
	count, _ := row.Int64("receipt_count")
	if count == 0 {
		return ""
	}
	total, _ := row.Float("total_spending")
	avg, _ := row.Float("average_amount")

	text := fmt.Sprintf("Total spending is %s across %s (average %s).",
		f.money(total), plural(int(count), "receipt"), f.money(avg))

	if flagged, _ := row.Int64("flagged_count"); flagged > 0 {
		flaggedSpend, _ := row.Float("flagged_spending")
		text += fmt.Sprintf(" %s account for %s.", capitalize(plural(int(flagged), "flagged receipt")), f.money(flaggedSpend))
	}
	return text
}

func (f *Formatter) count(row model.Row, qualifier string) string {
	count, _ := row.Int64("receipt_count")
	total, _ := row.Float("total_spending")

	verb := "are"
	if count == 1 {
		verb = "is"
	}
	text := fmt.Sprintf("There %s %s", verb, plural(int(count), qualifier+"receipt"))
	if count > 0 {
		text += " totalling " + f.money(total)
	}
	return text + "."
}

func (f *Formatter) paymentBreakdown(rows []model.Row) string {
	var b strings.Builder
	b.WriteString("Spending by payment method:")
	for _, row := range rows {
		count, _ := row.Int64("receipt_count")
		total, _ := row.Float("total_spending")
		fmt.Fprintf(&b, "\n- %s: %s, %s", row.String("payment_method"), plural(int(count), "receipt"), f.money(total))
	}
	return b.String()
}

func (f *Formatter) taxInfo(row model.Row) string {
	taxed, _ := row.Int64("taxed_count")
	service, _ := row.Float("total_service")
	if taxed == 0 && service == 0 {
		return ""
	}

	var text string
	if taxed > 0 {
		total, _ := row.Float("total_tax")
		avg, _ := row.Float("average_tax")
		text = fmt.Sprintf("Tax of %s was recorded on %s (average %s).", f.money(total), plural(int(taxed), "receipt"), f.money(avg))
	} else {
		text = "No tax was recorded."
	}
	if service > 0 {
		text += fmt.Sprintf(" Service charges total %s.", f.money(service))
	}
	return text
}

// listing renders one numbered line per receipt row. detail, when set,
// appends extra text taken from the row.
func (f *Formatter) listing(header string, rows []model.Row, detail func(model.Row) string) string {
	var b strings.Builder
	b.WriteString(header)
	for i, row := range rows {
		id, _ := row.Int64("id")
		total, _ := row.Float("total_amount")

		vendor := row.String("vendor")
		if vendor == "" {
			vendor = "Unknown vendor"
		}

		fmt.Fprintf(&b, "\n%d. #%d %s, %s (%s, %s", i+1, id, vendor, f.money(total), row.String("payment_method"), row.String("status"))
		if date := row.String("receipt_date"); date != "" {
			b.WriteString(", " + date)
		}
		b.WriteString(")")

		if detail != nil {
			if extra := detail(row); extra != "" {
				b.WriteString(": " + extra)
			}
		}
	}
	return b.String()
}

func (f *Formatter) money(v float64) string {
	return f.currency + " " + amount.Format(v)
}

func findings(row model.Row) []string {
	raw := row.String("validation_errors")
	if raw == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return []string{raw}
	}
	return out
}

func firstFinding(row model.Row) string {
	if f := findings(row); len(f) > 0 {
		return f[0]
	}
	return ""
}

func allFindings(row model.Row) string {
	return strings.Join(findings(row), "; ")
}

func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "-"
	case int64:
		return amount.Format(float64(val))
	case float64:
		return amount.Format(val)
	case string:
		return val
	default:
		return fmt.Sprint(val)
	}
}

func plural(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", noun)
	}
	return fmt.Sprintf("%d %ss", n, noun)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
