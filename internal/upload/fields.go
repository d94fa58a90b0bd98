// Package upload turns parsed spreadsheet rows into validated, typed records.
package upload

import (
	"strings"

	"github.com/smallbiznis/recouply/internal/batch"
)

// FileType selects how an upload's rows are interpreted.
type FileType string

const (
	FileTypeInvoiceAging FileType = "invoice_aging"
	FileTypePayments     FileType = "payments"
)

// Canonical field names accepted in rows and as field-mapping targets.
const (
	FieldAccountReference     = "recouply_account_id"
	FieldCustomerName         = "customer_name"
	FieldCustomerID           = "customer_id"
	FieldCustomerEmail        = "customer_email"
	FieldCompanyName          = "company_name"
	FieldInvoiceNumber        = "invoice_number"
	FieldInvoiceDate          = "invoice_date"
	FieldDueDate              = "due_date"
	FieldAmountOriginal       = "amount_original"
	FieldAmountOutstanding    = "amount_outstanding"
	FieldPaymentInvoiceNumber = "payment_invoice_number"
	FieldPaymentDate          = "payment_date"
	FieldPaymentAmount        = "payment_amount"
	FieldCurrency             = "currency"
)

var canonicalFields = map[string]bool{
	FieldAccountReference:     true,
	FieldCustomerName:         true,
	FieldCustomerID:           true,
	FieldCustomerEmail:        true,
	FieldCompanyName:          true,
	FieldInvoiceNumber:        true,
	FieldInvoiceDate:          true,
	FieldDueDate:              true,
	FieldAmountOriginal:       true,
	FieldAmountOutstanding:    true,
	FieldPaymentInvoiceNumber: true,
	FieldPaymentDate:          true,
	FieldPaymentAmount:        true,
	FieldCurrency:             true,
}

func ParseFileType(raw string) (FileType, error) {
	switch FileType(strings.ToLower(strings.TrimSpace(raw))) {
	case FileTypeInvoiceAging:
		return FileTypeInvoiceAging, nil
	case FileTypePayments:
		return FileTypePayments, nil
	}
	return "", batch.Validationf("unsupported fileType %q", raw)
}

// Mapping renames source columns to canonical fields.
type Mapping map[string]string

// NewMapping validates a sourceColumn to canonicalField mapping. Columns
// missing from the mapping keep their own name when it is already canonical.
func NewMapping(raw map[string]string) (Mapping, error) {
	mapping := make(Mapping, len(raw))
	for source, target := range raw {
		source = strings.TrimSpace(source)
		target = strings.ToLower(strings.TrimSpace(target))
		if source == "" || target == "" {
			continue
		}
		if !canonicalFields[target] {
			return nil, batch.Validationf("fieldMapping targets unknown field %q", target)
		}
		mapping[source] = target
	}
	return mapping, nil
}

// Canonicalize projects a raw row onto canonical field names. Unmapped,
// non-canonical columns are dropped; blank values are treated as absent.
func (m Mapping) Canonicalize(row map[string]string) map[string]string {
	out := make(map[string]string, len(row))
	for column, value := range row {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		field, ok := m[strings.TrimSpace(column)]
		if !ok {
			field = strings.ToLower(strings.TrimSpace(column))
			if !canonicalFields[field] {
				continue
			}
		}
		if _, exists := out[field]; exists && !ok {
			// An explicit mapping wins over a column that shares the canonical name.
			continue
		}
		out[field] = value
	}
	return out
}
