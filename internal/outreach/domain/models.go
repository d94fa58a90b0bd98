// Package domain contains outreach workflows, templates and drafts.
package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	invoicedomain "github.com/smallbiznis/recouply/internal/invoice/domain"
	"gorm.io/datatypes"
)

// DraftStatus is the lifecycle state of an outreach draft. sent and
// cancelled are final.
type DraftStatus string

const (
	DraftStatusPendingApproval DraftStatus = "pending_approval"
	DraftStatusApproved        DraftStatus = "approved"
	DraftStatusSent            DraftStatus = "sent"
	DraftStatusCancelled       DraftStatus = "cancelled"
)

// InFlightStatuses are the statuses the cancellation sweep retires.
var InFlightStatuses = []DraftStatus{DraftStatusPendingApproval, DraftStatusApproved}

func (s DraftStatus) IsFinal() bool {
	return s == DraftStatusSent || s == DraftStatusCancelled
}

const ChannelEmail = "email"

type TemplateStatus string

const (
	TemplateStatusDraft    TemplateStatus = "draft"
	TemplateStatusApproved TemplateStatus = "approved"
)

// Workflow holds the cadence for one invoice, one aging bucket, or the
// account default when both InvoiceID and AgingBucket are nil.
type Workflow struct {
	ID               snowflake.ID             `gorm:"primaryKey" json:"id"`
	AccountID        snowflake.ID             `gorm:"not null;index" json:"account_id"`
	InvoiceID        *snowflake.ID            `json:"invoice_id,omitempty"`
	AgingBucket      *string                  `json:"aging_bucket,omitempty"`
	CadenceDays      datatypes.JSONSlice[int] `gorm:"type:jsonb;not null" json:"cadence_days"`
	Tone             string                   `json:"tone"`
	IsActive         bool                     `json:"is_active"`
	TemplateApproved bool                     `json:"template_approved"`
	CreatedAt        time.Time                `json:"created_at"`
	UpdatedAt        time.Time                `json:"updated_at"`
}

func (Workflow) TableName() string { return "outreach_workflows" }

type StepTemplate struct {
	ID         snowflake.ID   `gorm:"primaryKey" json:"id"`
	WorkflowID snowflake.ID   `gorm:"not null" json:"workflow_id"`
	StepNumber int            `gorm:"not null" json:"step_number"`
	Subject    string         `json:"subject"`
	Body       string         `json:"body"`
	Status     TemplateStatus `gorm:"type:text" json:"status"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

func (StepTemplate) TableName() string { return "outreach_step_templates" }

// Draft is one outreach attempt, unique per (invoice, step).
type Draft struct {
	ID                  snowflake.ID  `gorm:"primaryKey" json:"id"`
	AccountID           snowflake.ID  `gorm:"not null;index" json:"account_id"`
	InvoiceID           snowflake.ID  `gorm:"not null" json:"invoice_id"`
	DebtorID            snowflake.ID  `gorm:"not null" json:"debtor_id"`
	WorkflowID          *snowflake.ID `json:"workflow_id,omitempty"`
	StepNumber          int           `gorm:"not null" json:"step_number"`
	Channel             string        `json:"channel"`
	Recipient           string        `json:"recipient"`
	Subject             string        `json:"subject"`
	Body                string        `json:"body"`
	Status              DraftStatus   `gorm:"type:text;not null" json:"status"`
	RecommendedSendDate time.Time     `json:"recommended_send_date"`
	DaysPastDue         int           `json:"days_past_due"`
	DispatchAttempts    int           `json:"dispatch_attempts"`
	LastDispatchError   string        `json:"last_dispatch_error,omitempty"`
	CancelReason        string        `json:"cancel_reason,omitempty"`
	ApprovedAt          *time.Time    `json:"approved_at,omitempty"`
	SentAt              *time.Time    `json:"sent_at,omitempty"`
	CancelledAt         *time.Time    `json:"cancelled_at,omitempty"`
	CreatedAt           time.Time     `json:"created_at"`
	UpdatedAt           time.Time     `json:"updated_at"`
}

func (Draft) TableName() string { return "outreach_drafts" }

// Candidate is an active, unpaused invoice joined with what draft generation
// needs from its debtor and account.
type Candidate struct {
	InvoiceID         snowflake.ID
	AccountID         snowflake.ID
	DebtorID          snowflake.ID
	InvoiceNumber     string
	DueDate           time.Time
	AmountOutstanding int64
	Currency          string
	Status            invoicedomain.InvoiceStatus
	AgingBucket       string
	BucketEnteredAt   time.Time
	DebtorName        string
	CompanyName       string
	Email             string
	AutoApprove       bool
}

// CancelReason is stored on drafts retired because their invoice left the
// active set.
func CancelReason(status invoicedomain.InvoiceStatus) string {
	return "invoice_" + strings.ToLower(string(status))
}
