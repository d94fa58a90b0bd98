// Package domain holds the per-account values merged into outreach messages.
package domain

import (
	"context"
	"net/url"
	"strings"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Branding struct {
	AccountID       snowflake.ID `json:"account_id"`
	CompanyName     string       `json:"company_name"`
	PaymentLink     string       `json:"payment_link"`
	InvoiceLinkBase string       `json:"invoice_link_base"`
	ARPageURL       string       `gorm:"column:ar_page_url" json:"ar_page_url"`
}

// InvoiceLink points at one invoice under InvoiceLinkBase, or is empty.
func (b Branding) InvoiceLink(invoiceNumber string) string {
	base := strings.TrimRight(strings.TrimSpace(b.InvoiceLinkBase), "/")
	if base == "" || strings.TrimSpace(invoiceNumber) == "" {
		return ""
	}
	return base + "/" + url.PathEscape(strings.TrimSpace(invoiceNumber))
}

type Repository interface {
	// Find falls back to the account name when no branding row exists.
	Find(ctx context.Context, db *gorm.DB, accountID snowflake.ID) (*Branding, error)
}

type Service interface {
	Get(ctx context.Context, accountID snowflake.ID) (Branding, error)
}
