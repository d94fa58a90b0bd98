package upload

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/smallbiznis/recouply/internal/batch"
	"github.com/smallbiznis/recouply/internal/money"
)

const defaultCurrency = "USD"

// AgingRecord is one validated invoice-aging row.
type AgingRecord struct {
	Row               int
	AccountReference  string
	CustomerName      string
	CustomerID        string
	CustomerEmail     string
	CompanyName       string
	InvoiceNumber     string
	IssueDate         *time.Time
	DueDate           time.Time
	AmountOriginal    int64
	AmountOutstanding int64
	Currency          string
}

// PaymentRecord is one validated payment row. Identifiers stay optional; the
// matcher decides whether they are sufficient.
type PaymentRecord struct {
	Row              int
	AccountReference string
	InvoiceNumber    string
	CustomerName     string
	CustomerID       string
	PaymentDate      time.Time
	Amount           int64
	Currency         string
}

// Ref identifies the record in error messages.
func (r PaymentRecord) Ref() string {
	return r.InvoiceNumber
}

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006/01/02",
	"01/02/2006",
	"1/2/2006",
	"01/02/06",
	"1/2/06",
	"02-Jan-2006",
	"2-Jan-2006",
	"Jan 2, 2006",
	"January 2, 2006",
}

// ParseDate accepts the date layouts common in accounting exports and returns
// the UTC calendar day.
func ParseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			t = t.UTC()
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", raw)
}

// ParseAging validates invoice-aging rows. Invalid rows are returned as row
// errors and never reach matching.
func ParseAging(rows []map[string]string, mapping Mapping) ([]AgingRecord, []batch.RowError) {
	records := make([]AgingRecord, 0, len(rows))
	var rowErrs []batch.RowError
	for i, raw := range rows {
		fields := mapping.Canonicalize(raw)
		record, err := parseAgingRow(i+1, fields)
		if err != nil {
			rowErrs = append(rowErrs, batch.NewRowError(i+1, fields[FieldInvoiceNumber], err))
			continue
		}
		records = append(records, record)
	}
	return records, rowErrs
}

func parseAgingRow(row int, f map[string]string) (AgingRecord, error) {
	record := AgingRecord{
		Row:              row,
		AccountReference: f[FieldAccountReference],
		CustomerName:     f[FieldCustomerName],
		CustomerID:       f[FieldCustomerID],
		CustomerEmail:    f[FieldCustomerEmail],
		CompanyName:      f[FieldCompanyName],
		InvoiceNumber:    f[FieldInvoiceNumber],
	}
	if record.InvoiceNumber == "" {
		return record, batch.Validationf("missing %s", FieldInvoiceNumber)
	}
	if record.AccountReference == "" && record.CustomerName == "" && record.CustomerID == "" && record.CompanyName == "" {
		return record, batch.Validationf("missing customer identifier")
	}

	var err error
	if f[FieldDueDate] == "" {
		return record, batch.Validationf("missing %s", FieldDueDate)
	}
	if record.DueDate, err = ParseDate(f[FieldDueDate]); err != nil {
		return record, batch.Validationf("%s: %v", FieldDueDate, err)
	}
	if raw := f[FieldInvoiceDate]; raw != "" {
		issued, err := ParseDate(raw)
		if err != nil {
			return record, batch.Validationf("%s: %v", FieldInvoiceDate, err)
		}
		record.IssueDate = &issued
	}

	if record.AmountOutstanding, err = parseAmount(f, FieldAmountOutstanding, true); err != nil {
		return record, err
	}
	if f[FieldAmountOriginal] == "" {
		record.AmountOriginal = record.AmountOutstanding
	} else if record.AmountOriginal, err = parseAmount(f, FieldAmountOriginal, true); err != nil {
		return record, err
	}
	if record.AmountOutstanding > record.AmountOriginal {
		return record, batch.Validationf("%s exceeds %s", FieldAmountOutstanding, FieldAmountOriginal)
	}
	if record.Currency, err = parseCurrency(f[FieldCurrency]); err != nil {
		return record, err
	}
	return record, nil
}

// ParsePayments validates payment rows. The invoice hint comes from
// payment_invoice_number, falling back to invoice_number.
func ParsePayments(rows []map[string]string, mapping Mapping) ([]PaymentRecord, []batch.RowError) {
	records := make([]PaymentRecord, 0, len(rows))
	var rowErrs []batch.RowError
	for i, raw := range rows {
		fields := mapping.Canonicalize(raw)
		record, err := parsePaymentRow(i+1, fields)
		if err != nil {
			rowErrs = append(rowErrs, batch.NewRowError(i+1, record.Ref(), err))
			continue
		}
		records = append(records, record)
	}
	return records, rowErrs
}

func parsePaymentRow(row int, f map[string]string) (PaymentRecord, error) {
	record := PaymentRecord{
		Row:              row,
		AccountReference: f[FieldAccountReference],
		InvoiceNumber:    f[FieldPaymentInvoiceNumber],
		CustomerName:     f[FieldCustomerName],
		CustomerID:       f[FieldCustomerID],
	}
	if record.InvoiceNumber == "" {
		record.InvoiceNumber = f[FieldInvoiceNumber]
	}

	var err error
	if f[FieldPaymentDate] == "" {
		return record, batch.Validationf("missing %s", FieldPaymentDate)
	}
	if record.PaymentDate, err = ParseDate(f[FieldPaymentDate]); err != nil {
		return record, batch.Validationf("%s: %v", FieldPaymentDate, err)
	}
	if record.Amount, err = parseAmount(f, FieldPaymentAmount, false); err != nil {
		return record, err
	}
	if record.Currency, err = parseCurrency(f[FieldCurrency]); err != nil {
		return record, err
	}
	return record, nil
}

func parseAmount(f map[string]string, field string, allowZero bool) (int64, error) {
	amount, err := money.Parse(f[field])
	switch {
	case errors.Is(err, money.ErrEmptyAmount):
		return 0, batch.Validationf("missing %s", field)
	case err != nil:
		return 0, batch.Validationf("%s: invalid amount %q", field, f[field])
	case amount < 0:
		return 0, batch.Validationf("%s must not be negative", field)
	case amount == 0 && !allowZero:
		return 0, batch.Validationf("%s must be positive", field)
	}
	return amount, nil
}

func parseCurrency(raw string) (string, error) {
	currency := strings.ToUpper(strings.TrimSpace(raw))
	if currency == "" {
		return defaultCurrency, nil
	}
	if len(currency) != 3 {
		return "", batch.Validationf("invalid %s %q", FieldCurrency, raw)
	}
	for _, r := range currency {
		if r < 'A' || r > 'Z' {
			return "", batch.Validationf("invalid %s %q", FieldCurrency, raw)
		}
	}
	return currency, nil
}
