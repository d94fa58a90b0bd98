package domain

import (
	"context"
	"errors"
)

// UploadRequest is a parsed spreadsheet. FieldMapping maps source columns to
// canonical field names.
type UploadRequest struct {
	Rows         []map[string]string `json:"rows"`
	FieldMapping map[string]string   `json:"fieldMapping"`
	FileType     string              `json:"fileType"`
}

// UploadResult always describes the whole batch; row failures are reported
// in Errors and ErrorDetails.
type UploadResult struct {
	Processed             int      `json:"processed"`
	Matched               int      `json:"matched"`
	NewCustomers          int      `json:"newCustomers"`
	Errors                int      `json:"errors"`
	InvoicesCreated       int      `json:"invoicesCreated"`
	InvoicesUpdated       int      `json:"invoicesUpdated"`
	InvoicesPaid          int      `json:"invoicesPaid"`
	InvoicesPartiallyPaid int      `json:"invoicesPartiallyPaid"`
	NeedsReview           int      `json:"needsReview"`
	Duplicates            int      `json:"duplicates"`
	UnappliedAmount       int64    `json:"unappliedAmount"`
	ErrorDetails          []string `json:"errorDetails"`
}

// FeedPaymentRequest is a single payment pushed by an external feed.
// ExternalID is required and makes redelivery of the same payment a no-op.
type FeedPaymentRequest struct {
	ExternalID       string `json:"externalId"`
	AccountReference string `json:"recouply_account_id"`
	InvoiceNumber    string `json:"invoice_number"`
	Amount           string `json:"payment_amount"`
	Currency         string `json:"currency"`
	PaymentDate      string `json:"payment_date"`
}

type Service interface {
	Ingest(context.Context, UploadRequest) (UploadResult, error)
	RecordPayment(context.Context, FeedPaymentRequest) (UploadResult, error)
}

var (
	ErrInvalidAccount = errors.New("invalid_account")
	ErrEmptyUpload    = errors.New("empty_upload")
)
