package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
)

// Debtor is the paying party behind one or more invoices.
type Debtor struct {
	ID                 snowflake.ID `gorm:"primaryKey" json:"id"`
	AccountID          snowflake.ID `gorm:"not null;index" json:"account_id"`
	ReferenceID        string       `gorm:"not null" json:"reference_id"`
	Name               string       `gorm:"not null" json:"name"`
	CompanyName        string       `json:"company_name"`
	Email              string       `json:"email"`
	ExternalCustomerID *string      `json:"external_customer_id,omitempty"`
	OutreachPaused     bool         `gorm:"not null" json:"outreach_paused"`
	ArchivedAt         *time.Time   `json:"archived_at,omitempty"`
	CreatedAt          time.Time    `json:"created_at"`
	UpdatedAt          time.Time    `json:"updated_at"`
}

const referencePrefix = "RCP-"

// NewReferenceID returns a human-shareable reference token such as RCP-7ZQ4M1X9KD.
func NewReferenceID() string {
	id := ulid.Make().String()
	return referencePrefix + id[len(id)-10:]
}

// NormalizeReferenceID canonicalizes user-entered references for lookups.
func NormalizeReferenceID(ref string) string {
	return strings.ToLower(strings.TrimSpace(ref))
}
