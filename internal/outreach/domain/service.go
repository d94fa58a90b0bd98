package domain

import (
	"context"
	"errors"
	"time"
)

// RunOptions scope one phase of an engine run.
type RunOptions struct {
	RunID string
	Today time.Time
}

// PhaseResult is the outcome of one engine phase. Errors never include
// conflicts from concurrent runs.
type PhaseResult struct {
	Processed int
	Generated int
	Cancelled int64
	Sent      int
	Errors    []string
}

// DispatchRequest is what the delivery collaborator receives per draft.
type DispatchRequest struct {
	DraftID   string `json:"draftId"`
	Channel   string `json:"channel"`
	Recipient string `json:"recipient"`
	Subject   string `json:"subject"`
	Body      string `json:"body"`
}

// Dispatcher hands approved drafts to an outbound transport.
type Dispatcher interface {
	Dispatch(ctx context.Context, req DispatchRequest) error
}

type DispatchResultRequest struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

type ListDraftsRequest struct {
	Status    string
	InvoiceID string
	PageToken string
	PageSize  int
}

type ListDraftsResponse struct {
	Drafts        []Draft `json:"drafts"`
	NextPageToken string  `json:"next_page_token,omitempty"`
	HasMore       bool    `json:"has_more"`
}

type CreateWorkflowRequest struct {
	InvoiceID        string         `json:"invoice_id"`
	AgingBucket      string         `json:"aging_bucket"`
	CadenceDays      []int          `json:"cadence_days"`
	Tone             string         `json:"tone"`
	TemplateApproved bool           `json:"template_approved"`
	Steps            []TemplateStep `json:"steps"`
}

type TemplateStep struct {
	StepNumber int    `json:"step_number"`
	Subject    string `json:"subject"`
	Body       string `json:"body"`
	Approved   bool   `json:"approved"`
}

type Service interface {
	CancelStale(ctx context.Context, opts RunOptions) (PhaseResult, error)
	Generate(ctx context.Context, opts RunOptions) (PhaseResult, error)
	Dispatch(ctx context.Context, opts RunOptions) (PhaseResult, error)

	CreateWorkflow(ctx context.Context, req CreateWorkflowRequest) (Workflow, error)
	Approve(ctx context.Context, id string) (Draft, error)
	RecordDispatchResult(ctx context.Context, id string, req DispatchResultRequest) (Draft, error)
	ListDrafts(ctx context.Context, req ListDraftsRequest) (ListDraftsResponse, error)
}

var (
	ErrInvalidAccount    = errors.New("invalid_account")
	ErrInvalidID         = errors.New("invalid_id")
	ErrInvalidCadence    = errors.New("invalid_cadence")
	ErrInvalidPageToken  = errors.New("invalid_page_token")
	ErrNotFound          = errors.New("draft_not_found")
	ErrInvalidTransition = errors.New("invalid_draft_transition")
)
