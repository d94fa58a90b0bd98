package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

type IngestInvoiceRequest struct {
	DebtorID          snowflake.ID
	InvoiceNumber     string
	IssueDate         *time.Time
	DueDate           time.Time
	AmountOriginal    int64
	AmountOutstanding int64
	Currency          string
}

type IngestOutcome string

const (
	IngestCreated   IngestOutcome = "created"
	IngestUpdated   IngestOutcome = "updated"
	IngestUnchanged IngestOutcome = "unchanged"
)

type Service interface {
	Ingest(context.Context, IngestInvoiceRequest) (Invoice, IngestOutcome, error)
	GetByID(ctx context.Context, id string) (Invoice, error)
	UpdateStatus(ctx context.Context, id string, status string) (Invoice, error)
	SetOutreachPaused(ctx context.Context, id string, paused bool) (Invoice, error)
}

var (
	ErrInvalidAccount     = errors.New("invalid_account")
	ErrInvalidID          = errors.New("invalid_id")
	ErrInvalidStatus      = errors.New("invalid_status")
	ErrInvalidTransition  = errors.New("invalid_status_transition")
	ErrNotFound           = errors.New("invoice_not_found")
	ErrConcurrentUpdate   = errors.New("invoice_concurrent_update")
	ErrOwnedByOtherDebtor = errors.New("invoice_owned_by_other_debtor")
)
