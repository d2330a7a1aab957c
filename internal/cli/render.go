package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/Veraticus/receipt-ledger/internal/amount"
	"github.com/Veraticus/receipt-ledger/internal/ingest"
	"github.com/Veraticus/receipt-ledger/internal/model"
	"github.com/Veraticus/receipt-ledger/internal/query"
)

const maxReportedErrors = 10

// RenderBatchReport summarizes an ingest run.
func RenderBatchReport(report *ingest.BatchReport, dryRun bool) string {
	title := fmt.Sprintf("Ingested %d records", report.Total)
	if dryRun {
		title = fmt.Sprintf("Dry run over %d records", report.Total)
	}

	lines := []string{
		fmt.Sprintf("Inserted:   %d", report.Inserted),
		fmt.Sprintf("Duplicates: %d", report.Duplicates),
		SuccessStyle.Render(fmt.Sprintf("Verified:   %d", report.Verified)),
		ErrorStyle.Render(fmt.Sprintf("Flagged:    %d", report.Flagged)),
		WarningStyle.Render(fmt.Sprintf("Pending:    %d", report.Pending)),
	}

	if len(report.Errors) > 0 {
		lines = append(lines, "", ErrorStyle.Render(fmt.Sprintf("Rejected:   %d", len(report.Errors))))
		for i, e := range report.Errors {
			if i == maxReportedErrors {
				lines = append(lines, SubtleStyle.Render(fmt.Sprintf("  ... and %d more", len(report.Errors)-maxReportedErrors)))
				break
			}
			lines = append(lines, "  "+ErrorIcon+" "+e.Error())
		}
	}

	return RenderBox(title, strings.Join(lines, "\n"))
}

// RenderReceiptTable lists receipts one per row.
func RenderReceiptTable(receipts []model.Receipt, currency string) string {
	if len(receipts) == 0 {
		return SubtleStyle.Render("No receipts found.")
	}

	headers := []string{"ID", "Date", "Vendor", "Total", "Payment", "Status"}
	rows := make([][]string, 0, len(receipts))
	for _, r := range receipts {
		rows = append(rows, []string{
			fmt.Sprintf("%d", r.ID),
			valueOr(r.Header.Date, "-"),
			vendorLabel(&r),
			money(currency, r.Header.TotalAmount),
			string(r.Header.PaymentMethod),
			string(r.Status),
		})
	}

	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], lipgloss.Width(cell))
		}
	}

	var b strings.Builder
	header := make([]string, len(headers))
	for i, h := range headers {
		header[i] = TableCellStyle.Width(widths[i] + 2).Render(h)
	}
	b.WriteString(TableHeaderStyle.Render(lipgloss.JoinHorizontal(lipgloss.Top, header...)))
	b.WriteString("\n")

	for i, row := range rows {
		cells := make([]string, len(row))
		for j, cell := range row {
			style := TableCellStyle.Width(widths[j] + 2)
			if j == len(row)-1 {
				style = style.Inherit(StatusStyle(receipts[i].Status))
			}
			cells[j] = style.Render(cell)
		}
		b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, cells...))
		b.WriteString("\n")
	}

	return b.String()
}

// RenderReceipt shows one receipt with its items and findings.
func RenderReceipt(r *model.Receipt, currency string) string {
	lines := []string{
		fmt.Sprintf("Vendor:  %s", vendorLabel(r)),
	}
	if r.Vendor != nil && r.Vendor.Address != nil {
		lines = append(lines, fmt.Sprintf("Address: %s", *r.Vendor.Address))
	}
	lines = append(lines,
		fmt.Sprintf("Date:    %s", valueOr(r.Header.Date, "-")),
		fmt.Sprintf("Status:  %s", StatusStyle(r.Status).Render(string(r.Status))),
		fmt.Sprintf("Payment: %s", r.Header.PaymentMethod),
		"",
	)

	for _, item := range r.Items {
		lines = append(lines, renderItem(item, currency, "")...)
	}
	lines = append(lines, "")

	h := r.Header
	for _, amt := range []struct {
		value *float64
		label string
	}{
		{h.Subtotal, "Subtotal"},
		{h.ServiceCharge, "Service"},
		{h.TaxAmount, "Tax"},
		{h.Discount, "Discount"},
	} {
		if amt.value != nil {
			lines = append(lines, fmt.Sprintf("%-9s %s", amt.label, money(currency, *amt.value)))
		}
	}
	lines = append(lines, BoldStyle.Render(fmt.Sprintf("%-9s %s", "Total", money(currency, h.TotalAmount))))
	for _, amt := range []struct {
		value *float64
		label string
	}{
		{h.CashPaid, "Cash"},
		{h.CardPaid, "Card"},
		{h.ChangeAmount, "Change"},
	} {
		if amt.value != nil {
			lines = append(lines, fmt.Sprintf("%-9s %s", amt.label, money(currency, *amt.value)))
		}
	}

	if len(r.ValidationErrors) > 0 {
		lines = append(lines, "", ErrorStyle.Render("Findings:"))
		for _, f := range r.ValidationErrors {
			lines = append(lines, "  "+ErrorIcon+" "+f)
		}
	}

	return RenderBox(fmt.Sprintf("%s Receipt #%d", ReceiptIcon, r.ID), strings.Join(lines, "\n"))
}

func renderItem(item model.LineItem, currency, indent string) []string {
	line := fmt.Sprintf("%s%dx %s", indent, item.Quantity, item.Name)
	lines := []string{fmt.Sprintf("%-40s %s", line, money(currency, item.TotalPrice))}
	for _, sub := range item.SubItems {
		lines = append(lines, renderItem(sub, currency, indent+"  ")...)
	}
	return lines
}

// RenderAnswer shows the reply to a question.
func RenderAnswer(resp *query.Response, showSQL bool) string {
	var b strings.Builder
	icon := ChartIcon
	if resp.Source == query.SourceModel {
		icon = RobotIcon
	}
	b.WriteString(icon + " " + resp.Message)

	if len(resp.ReferencedReceipts) > 0 {
		refs := make([]string, len(resp.ReferencedReceipts))
		for i, id := range resp.ReferencedReceipts {
			refs[i] = fmt.Sprintf("#%d", id)
		}
		b.WriteString("\n" + SubtleStyle.Render("Receipts: "+strings.Join(refs, ", ")))
	}
	if showSQL && resp.SQL != "" {
		b.WriteString("\n" + SubtleStyle.Render(resp.SQL))
	}
	return b.String()
}

// RenderHistory prints a chat session transcript.
func RenderHistory(messages []model.ChatMessage) string {
	if len(messages) == 0 {
		return SubtleStyle.Render("No messages in this session.")
	}

	var b strings.Builder
	for _, msg := range messages {
		stamp := SubtleStyle.Render(msg.CreatedAt.Format("2006-01-02 15:04"))
		switch msg.Role {
		case model.RoleUser:
			b.WriteString(fmt.Sprintf("%s %s %s\n", stamp, PromptStyle.Render("you:"), msg.Content))
		default:
			b.WriteString(fmt.Sprintf("%s %s %s\n", stamp, InfoStyle.Render("ledger:"), msg.Content))
		}
	}
	return b.String()
}

func vendorLabel(r *model.Receipt) string {
	if name := r.VendorName(); name != "" {
		return name
	}
	return "Unknown vendor"
}

func valueOr(s *string, fallback string) string {
	if s == nil || *s == "" {
		return fallback
	}
	return *s
}

func money(currency string, v float64) string {
	if currency == "" {
		currency = query.DefaultCurrency
	}
	return currency + " " + amount.Format(v)
}
