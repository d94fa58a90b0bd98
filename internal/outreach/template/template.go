// Package template renders outreach subjects and bodies.
package template

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	brandingdomain "github.com/smallbiznis/recouply/internal/branding/domain"
	"github.com/smallbiznis/recouply/internal/money"
	"github.com/smallbiznis/recouply/internal/outreach/domain"
)

// Supported placeholder names.
const (
	VarCustomerName  = "customer_name"
	VarInvoiceNumber = "invoice_number"
	VarAmount        = "amount"
	VarDueDate       = "due_date"
	VarDaysPastDue   = "days_past_due"
	VarCompanyName   = "company_name"
	VarPaymentLink   = "payment_link"
	VarInvoiceLink   = "invoice_link"
	VarARPageURL     = "ar_page_url"
)

var placeholder = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_]+)\s*\}\}`)

// Vars maps placeholder names to values. Empty values count as unresolved.
type Vars map[string]string

// Render substitutes placeholders. Unknown or unresolved placeholders are
// removed together with the single gap of spaces or tabs they would leave;
// all other spacing is kept as written.
func Render(text string, vars Vars) string {
	var b strings.Builder
	b.Grow(len(text))
	last := 0
	for _, loc := range placeholder.FindAllStringSubmatchIndex(text, -1) {
		start, end := loc[0], loc[1]
		b.WriteString(text[last:start])
		last = end

		if value := vars[strings.ToLower(text[loc[2]:loc[3]])]; value != "" {
			b.WriteString(value)
			continue
		}
		out := b.String()
		trimmed := strings.TrimRight(out, " \t")
		if len(trimmed) < len(out) {
			b.Reset()
			b.WriteString(trimmed)
			continue
		}
		if trimmed == "" || strings.HasSuffix(trimmed, "\n") {
			for last < len(text) && (text[last] == ' ' || text[last] == '\t') {
				last++
			}
		}
	}
	b.WriteString(text[last:])
	return strings.TrimSpace(b.String())
}

// BuildVars collects the values for one invoice on one day.
func BuildVars(c domain.Candidate, b brandingdomain.Branding, today time.Time) Vars {
	customer := strings.TrimSpace(c.DebtorName)
	if customer == "" {
		customer = strings.TrimSpace(c.CompanyName)
	}
	dpd := max(daysBetween(c.DueDate, today), 0)
	return Vars{
		VarCustomerName:  customer,
		VarInvoiceNumber: c.InvoiceNumber,
		VarAmount:        money.Format(c.AmountOutstanding, c.Currency),
		VarDueDate:       c.DueDate.UTC().Format("January 2, 2006"),
		VarDaysPastDue:   strconv.Itoa(dpd),
		VarCompanyName:   b.CompanyName,
		VarPaymentLink:   b.PaymentLink,
		VarInvoiceLink:   b.InvoiceLink(c.InvoiceNumber),
		VarARPageURL:     b.ARPageURL,
	}
}

func daysBetween(from, to time.Time) int {
	f := from.UTC()
	t := to.UTC()
	f = time.Date(f.Year(), f.Month(), f.Day(), 0, 0, 0, 0, time.UTC)
	t = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return int(t.Sub(f).Hours() / 24)
}
