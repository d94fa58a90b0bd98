// Package domain contains payment reconciliation models.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type ReconciliationStatus string

const (
	ReconciliationUnmatched   ReconciliationStatus = "unmatched"
	ReconciliationMatched     ReconciliationStatus = "matched"
	ReconciliationNeedsReview ReconciliationStatus = "needs_review"
)

// Payment is an incoming payment record. DebtorID is set once the paying
// party is known.
type Payment struct {
	ID                   snowflake.ID         `gorm:"primaryKey" json:"id"`
	AccountID            snowflake.ID         `gorm:"not null;index" json:"account_id"`
	DebtorID             *snowflake.ID        `json:"debtor_id,omitempty"`
	Amount               int64                `gorm:"not null" json:"amount"`
	Currency             string               `gorm:"not null" json:"currency"`
	PaymentDate          time.Time            `gorm:"not null" json:"payment_date"`
	InvoiceNumberHint    string               `json:"invoice_number_hint"`
	AccountReferenceHint string               `json:"account_reference_hint"`
	ReconciliationStatus ReconciliationStatus `gorm:"type:text;not null" json:"reconciliation_status"`
	ReviewReason         string               `json:"review_reason,omitempty"`
	UnappliedAmount      int64                `json:"unapplied_amount"`
	SourceFingerprint    string               `gorm:"not null" json:"-"`
	CreatedAt            time.Time            `json:"created_at"`
	UpdatedAt            time.Time            `json:"updated_at"`
}

func (Payment) TableName() string { return "payments" }

// PaymentInvoiceLink records how much of a payment settled an invoice.
type PaymentInvoiceLink struct {
	ID              snowflake.ID `gorm:"primaryKey" json:"id"`
	PaymentID       snowflake.ID `gorm:"not null;index" json:"payment_id"`
	InvoiceID       snowflake.ID `gorm:"not null;index" json:"invoice_id"`
	AmountApplied   int64        `gorm:"not null" json:"amount_applied"`
	MatchConfidence float64      `gorm:"not null" json:"match_confidence"`
	MatchMethod     string       `gorm:"not null" json:"match_method"`
	CreatedAt       time.Time    `json:"created_at"`
}

func (PaymentInvoiceLink) TableName() string { return "payment_invoice_links" }
