// Package domain contains persistence models for receivable invoices.
package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
)

// InvoiceStatus represents invoice lifecycle states.
type InvoiceStatus string

const (
	InvoiceStatusOpen          InvoiceStatus = "Open"
	InvoiceStatusPartiallyPaid InvoiceStatus = "PartiallyPaid"
	InvoiceStatusInPaymentPlan InvoiceStatus = "InPaymentPlan"
	InvoiceStatusPaid          InvoiceStatus = "Paid"
	InvoiceStatusCanceled      InvoiceStatus = "Canceled"
	InvoiceStatusVoided        InvoiceStatus = "Voided"
)

// ActiveStatuses are the statuses that keep outreach running.
var ActiveStatuses = []InvoiceStatus{
	InvoiceStatusOpen,
	InvoiceStatusPartiallyPaid,
	InvoiceStatusInPaymentPlan,
}

func (s InvoiceStatus) IsActive() bool {
	switch s {
	case InvoiceStatusOpen, InvoiceStatusPartiallyPaid, InvoiceStatusInPaymentPlan:
		return true
	}
	return false
}

func (s InvoiceStatus) IsTerminal() bool {
	switch s {
	case InvoiceStatusPaid, InvoiceStatusCanceled, InvoiceStatusVoided:
		return true
	}
	return false
}

// ParseStatus accepts a status in any letter case.
func ParseStatus(raw string) (InvoiceStatus, bool) {
	raw = strings.TrimSpace(raw)
	for _, status := range []InvoiceStatus{
		InvoiceStatusOpen,
		InvoiceStatusPartiallyPaid,
		InvoiceStatusInPaymentPlan,
		InvoiceStatusPaid,
		InvoiceStatusCanceled,
		InvoiceStatusVoided,
	} {
		if strings.EqualFold(raw, string(status)) {
			return status, true
		}
	}
	return "", false
}

// StatusForBalance derives the status after a balance reduction: Paid once
// nothing is outstanding, PartiallyPaid otherwise. A payment plan becomes
// PartiallyPaid on the first partial payment.
func StatusForBalance(outstanding int64) InvoiceStatus {
	if outstanding <= 0 {
		return InvoiceStatusPaid
	}
	return InvoiceStatusPartiallyPaid
}

// Invoice is a receivable owed by a debtor. Amounts are minor units.
type Invoice struct {
	ID                      snowflake.ID  `gorm:"primaryKey" json:"id"`
	AccountID               snowflake.ID  `gorm:"not null;index" json:"account_id"`
	DebtorID                snowflake.ID  `gorm:"not null;index" json:"debtor_id"`
	InvoiceNumber           string        `gorm:"not null" json:"invoice_number"`
	InvoiceNumberNormalized string        `gorm:"not null" json:"-"`
	IssueDate               *time.Time    `json:"issue_date,omitempty"`
	DueDate                 time.Time     `gorm:"not null" json:"due_date"`
	AmountOriginal          int64         `gorm:"not null" json:"amount_original"`
	AmountOutstanding       int64         `gorm:"not null" json:"amount_outstanding"`
	Currency                string        `gorm:"not null" json:"currency"`
	Status                  InvoiceStatus `gorm:"type:text;not null" json:"status"`
	AgingBucket             string        `json:"aging_bucket"`
	BucketEnteredAt         time.Time     `gorm:"not null" json:"bucket_entered_at"`
	OutreachPaused          bool          `gorm:"not null" json:"outreach_paused"`
	CreatedAt               time.Time     `json:"created_at"`
	UpdatedAt               time.Time     `json:"updated_at"`
}

// TableName sets the database table name.
func (Invoice) TableName() string { return "invoices" }

// NormalizeInvoiceNumber is the lookup key for invoice numbers within an account.
func NormalizeInvoiceNumber(number string) string {
	return strings.ToLower(strings.TrimSpace(number))
}

// DaysPastDue counts whole days between the due date and today. Invoices not
// yet due return a negative value.
func DaysPastDue(dueDate, today time.Time) int {
	due := dueDate.UTC()
	due = time.Date(due.Year(), due.Month(), due.Day(), 0, 0, 0, 0, time.UTC)
	t := today.UTC()
	t = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return int(t.Sub(due).Hours() / 24)
}
